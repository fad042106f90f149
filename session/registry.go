// Package session implements the Session Registry (SPEC_FULL.md §F): a
// TTL-idle cookie-jar registry keyed by session_id. A session entry expires
// after 300 seconds with no access, matching the Ephemeral Client Cache's
// idle policy (§9).
package session

import (
	"errors"
	"time"

	"github.com/jellydator/ttlcache/v3"

	"github.com/firasghr/wreqbridge/jar"
)

// IdleTTL is the idle-eviction window for session jars (§4.F).
const IdleTTL = 300 * time.Second

// ErrNotFound is returned by Clear when session_id has no live entry (§7:
// session-not-found; the FFI layer surfaces this as a synchronous throw
// rather than a rejected promise).
var ErrNotFound = errors.New("session not found")

// Registry is the Session Registry. Construct with NewRegistry.
type Registry struct {
	cache *ttlcache.Cache[string, *jar.Jar]
}

// NewRegistry starts a Registry with IdleTTL idle eviction.
func NewRegistry() *Registry {
	c := ttlcache.New[string, *jar.Jar](
		ttlcache.WithTTL[string, *jar.Jar](IdleTTL),
	)
	go c.Start()
	return &Registry{cache: c}
}

// Create ensures a jar exists for sessionID, creating one if absent. It is
// idempotent: calling Create on an already-registered session_id only
// refreshes its idle timer.
func (r *Registry) Create(sessionID string) error {
	_, err := r.JarFor(sessionID)
	return err
}

// JarFor returns the jar bound to sessionID, creating one on first use
// (get-or-insert), per the invariant that the same session_id always maps
// to the same jar (§3 invariant 3).
func (r *Registry) JarFor(sessionID string) (*jar.Jar, error) {
	if item := r.cache.Get(sessionID); item != nil {
		return item.Value(), nil
	}

	j, err := jar.New()
	if err != nil {
		return nil, err
	}

	item, loadedExisting := r.cache.GetOrSet(sessionID, j)
	if loadedExisting {
		return item.Value(), nil
	}
	return j, nil
}

// Clear empties the cookie jar bound to sessionID without removing the
// session entry itself. Returns ErrNotFound if sessionID has no live entry
// (§4.F).
func (r *Registry) Clear(sessionID string) error {
	item := r.cache.Get(sessionID)
	if item == nil {
		return ErrNotFound
	}
	item.Value().Clear()
	return nil
}

// Drop removes the session entry entirely. Dropping an unknown or already
// expired session_id is a no-op.
func (r *Registry) Drop(sessionID string) {
	r.cache.Delete(sessionID)
}

// Stop halts the Registry's background eviction goroutine. Intended for
// tests and graceful shutdown.
func (r *Registry) Stop() {
	r.cache.Stop()
}
