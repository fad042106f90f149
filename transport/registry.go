// Package transport implements the Transport Registry (SPEC_FULL.md §E): a
// process-wide, explicitly managed pool of long-lived emulating clients, one
// per createTransport call, with no idle eviction — callers own the
// lifecycle via dropTransport.
package transport

import (
	"fmt"
	"net/http"
	"sync"

	"github.com/google/uuid"

	"github.com/firasghr/wreqbridge/client"
)

// idleCloser is satisfied by RoundTrippers that can drain pooled
// connections on drop (client.headerOverlayRoundTripper implements it).
type idleCloser interface {
	CloseIdleConnections()
}

// Entry is one registered transport: its built client and the config that
// produced it (kept so Descriptor-dependent callers, e.g. wsbridge, can
// re-derive the emulation profile without re-parsing IDs).
type Entry struct {
	ID     string
	Client *http.Client
	Config client.TransportConfig
}

// Registry is the Transport Registry (§4.E). The zero value is not usable;
// construct with NewRegistry.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]*Entry
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]*Entry)}
}

// Create builds an emulating client for cfg, registers it under a new UUID,
// and returns the id.
func (r *Registry) Create(cfg client.TransportConfig) (string, error) {
	c, err := client.New(cfg, client.PurposeSession)
	if err != nil {
		return "", fmt.Errorf("transport registry: %w", err)
	}

	id := uuid.NewString()
	entry := &Entry{ID: id, Client: c, Config: cfg}

	r.mu.Lock()
	r.entries[id] = entry
	r.mu.Unlock()

	return id, nil
}

// Get returns the entry registered under id, or ok=false if id is unknown
// (§7: transport-not-found).
func (r *Registry) Get(id string) (*Entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[id]
	return e, ok
}

// Drop removes and closes the transport registered under id. It reports
// false if id was not registered.
func (r *Registry) Drop(id string) bool {
	r.mu.Lock()
	e, ok := r.entries[id]
	if ok {
		delete(r.entries, id)
	}
	r.mu.Unlock()

	if !ok {
		return false
	}
	if ic, ok := e.Client.Transport.(idleCloser); ok {
		ic.CloseIdleConnections()
	}
	return true
}
