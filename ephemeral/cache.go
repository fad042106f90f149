// Package ephemeral implements the Ephemeral Client Cache (SPEC_FULL.md §G):
// a TTL-idle pool of clients keyed by structural SessionConfig, shared only
// by ephemeral requests (RequestOptions.ephemeral = true) and never joined
// to any session's cookie jar (§3 invariant 4).
package ephemeral

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/jellydator/ttlcache/v3"

	"github.com/firasghr/wreqbridge/client"
)

// IdleTTL is the idle-eviction window, identical to the Session Registry's
// (§9: "ephemeral and session caches share the same TTL-idle policy").
const IdleTTL = 300 * time.Second

// Cache is the Ephemeral Client Cache. Construct with NewCache.
type Cache struct {
	cache *ttlcache.Cache[client.SessionConfig, *http.Client]
}

// NewCache starts a Cache with IdleTTL idle eviction.
func NewCache() *Cache {
	onEvict := func(_ context.Context, _ ttlcache.EvictionReason, item *ttlcache.Item[client.SessionConfig, *http.Client]) {
		if ic, ok := item.Value().Transport.(interface{ CloseIdleConnections() }); ok {
			ic.CloseIdleConnections()
		}
	}
	c := ttlcache.New[client.SessionConfig, *http.Client](
		ttlcache.WithTTL[client.SessionConfig, *http.Client](IdleTTL),
	)
	c.OnEviction(onEvict)
	go c.Start()
	return &Cache{cache: c}
}

// ClientFor returns the cached client for cfg, building and caching a new
// one on first use. cfg is compared structurally (§9: never a serialized
// label), so two RequestOptions that resolve to the same emulation profile,
// OS, proxy, and insecure flag share one pooled client within IdleTTL.
func (c *Cache) ClientFor(cfg client.SessionConfig) (*http.Client, error) {
	if item := c.cache.Get(cfg); item != nil {
		return item.Value(), nil
	}

	built, err := client.New(client.TransportConfig{SessionConfig: cfg}, client.PurposeEphemeral)
	if err != nil {
		return nil, fmt.Errorf("ephemeral cache: %w", err)
	}

	item, existed := c.cache.GetOrSet(cfg, built)
	if existed {
		// Another goroutine won the race; drop the client we built.
		if ic, ok := built.Transport.(interface{ CloseIdleConnections() }); ok {
			ic.CloseIdleConnections()
		}
		return item.Value(), nil
	}
	return built, nil
}

// Stop halts the Cache's background eviction goroutine. Intended for tests
// and graceful shutdown.
func (c *Cache) Stop() {
	c.cache.Stop()
}
