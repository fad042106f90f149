// Package config provides process-startup configuration for the bridge.
// It supports JSON-based configuration loading with safe defaults so an
// embedding host can run with zero configuration and still get sane pool,
// timeout, and buffer tunables.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// Config holds the bridge's startup-time tunables. The struct is loaded once
// and then shared across goroutines as a read-only value, making it
// inherently thread-safe after initialisation.
//
// main reads WorkerCount (passed to bridge.New) and DefaultRequestTimeout
// (the smoke request's timeout). The other fields are loaded and defaulted
// here but are not passed to any component: the registries, the body store,
// the WebSocket subsystem and the client factory use their own package
// constants, whose values equal DefaultConfig's.
type Config struct {
	// WorkerCount sizes the Runtime Host's goroutine pool (§4.K), which
	// delivers WebSocket events to host callbacks.
	WorkerCount int `json:"worker_count"`

	// DefaultRequestTimeout is the timeout main gives the smoke request.
	// The request pipeline's own timeout_ms default is a separate constant
	// (§3).
	DefaultRequestTimeout time.Duration `json:"default_request_timeout"`

	// SessionIdleTTL and EphemeralIdleTTL are the idle-eviction windows for
	// the Session Registry and the Ephemeral Client Cache respectively
	// (§4.F, §4.G). The spec fixes both at 300s; the registries use their
	// own constants and do not read these fields.
	SessionIdleTTL   time.Duration `json:"session_idle_ttl"`
	EphemeralIdleTTL time.Duration `json:"ephemeral_idle_ttl"`

	// InlineBodyMax is the inclusive byte threshold below which a response
	// body is materialised inline rather than streamed through a body
	// handle (§4.H step 5).
	InlineBodyMax int `json:"inline_body_max"`

	// WSEventBuffer is the bounded WebSocket event-queue capacity
	// (WS_EVENT_BUFFER, §4.I).
	WSEventBuffer int `json:"ws_event_buffer"`

	// Pool defaults for an omitted TransportConfig field (§4.D, §6). The
	// defaults client.New applies are its own constants, not these fields.
	PoolIdleTimeout     time.Duration `json:"pool_idle_timeout"`
	PoolMaxIdlePerHost  int           `json:"pool_max_idle_per_host"`
	PoolMaxSize         int           `json:"pool_max_size"`
	ConnectTimeout      time.Duration `json:"connect_timeout"`
	ReadTimeout         time.Duration `json:"read_timeout"`
}

// LoadConfig reads a JSON file at filename and deserialises it into a
// Config. It returns an error if the file cannot be opened or the JSON is
// malformed. The returned *Config is ready to use; zero-value fields retain
// Go's zero values, so callers should validate required fields after
// loading.
func LoadConfig(filename string) (*Config, error) {
	f, err := os.Open(filename) // #nosec G304 – filename is caller-provided config path
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", filename, err)
	}
	defer f.Close()

	var cfg Config
	dec := json.NewDecoder(f)
	dec.DisallowUnknownFields() // catch typos in config files early
	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("config: decode %q: %w", filename, err)
	}
	return &cfg, nil
}

// DefaultConfig returns a *Config pre-filled with the defaults named
// throughout SPEC_FULL.md (300s idle TTLs, 64 KiB inline threshold, 64-slot
// WebSocket event buffer, 30s request/connect/read timeouts). Callers are
// free to mutate the returned struct before passing it to other components;
// each call returns a fresh independent copy.
func DefaultConfig() *Config {
	return &Config{
		WorkerCount:           256,
		DefaultRequestTimeout: 30 * time.Second,
		SessionIdleTTL:        300 * time.Second,
		EphemeralIdleTTL:      300 * time.Second,
		InlineBodyMax:         64 * 1024,
		WSEventBuffer:         64,
		PoolIdleTimeout:       90 * time.Second,
		PoolMaxIdlePerHost:    100,
		PoolMaxSize:           200,
		ConnectTimeout:        30 * time.Second,
		ReadTimeout:           30 * time.Second,
	}
}
