package config_test

import (
	"encoding/json"
	"os"
	"testing"
	"time"

	"github.com/firasghr/wreqbridge/config"
)

func TestDefaultConfig(t *testing.T) {
	cfg := config.DefaultConfig()
	if cfg == nil {
		t.Fatal("DefaultConfig returned nil")
	}
	if cfg.WorkerCount <= 0 {
		t.Errorf("WorkerCount should be > 0, got %d", cfg.WorkerCount)
	}
	if cfg.DefaultRequestTimeout <= 0 {
		t.Errorf("DefaultRequestTimeout should be > 0, got %v", cfg.DefaultRequestTimeout)
	}
	if cfg.SessionIdleTTL != 300*time.Second {
		t.Errorf("SessionIdleTTL = %v, want 300s", cfg.SessionIdleTTL)
	}
	if cfg.EphemeralIdleTTL != 300*time.Second {
		t.Errorf("EphemeralIdleTTL = %v, want 300s", cfg.EphemeralIdleTTL)
	}
	if cfg.InlineBodyMax != 64*1024 {
		t.Errorf("InlineBodyMax = %d, want 65536", cfg.InlineBodyMax)
	}
	if cfg.WSEventBuffer != 64 {
		t.Errorf("WSEventBuffer = %d, want 64", cfg.WSEventBuffer)
	}
}

func TestLoadConfig_ValidFile(t *testing.T) {
	raw := map[string]interface{}{
		"worker_count":            64,
		"default_request_timeout": int64(15 * time.Second),
		"session_idle_ttl":        int64(60 * time.Second),
		"ephemeral_idle_ttl":      int64(60 * time.Second),
		"inline_body_max":         1024,
		"ws_event_buffer":         32,
		"pool_idle_timeout":       int64(45 * time.Second),
		"pool_max_idle_per_host":  10,
		"pool_max_size":           20,
		"connect_timeout":         int64(5 * time.Second),
		"read_timeout":            int64(5 * time.Second),
	}
	f, err := os.CreateTemp(t.TempDir(), "config*.json")
	if err != nil {
		t.Fatal(err)
	}
	if err := json.NewEncoder(f).Encode(raw); err != nil {
		t.Fatal(err)
	}
	f.Close()

	cfg, err := config.LoadConfig(f.Name())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.WorkerCount != 64 {
		t.Errorf("got WorkerCount=%d, want 64", cfg.WorkerCount)
	}
	if cfg.InlineBodyMax != 1024 {
		t.Errorf("got InlineBodyMax=%d, want 1024", cfg.InlineBodyMax)
	}
}

func TestLoadConfig_MissingFile(t *testing.T) {
	_, err := config.LoadConfig("/nonexistent/path/config.json")
	if err == nil {
		t.Error("expected error for missing file, got nil")
	}
}

func TestLoadConfig_InvalidJSON(t *testing.T) {
	f, err := os.CreateTemp(t.TempDir(), "bad*.json")
	if err != nil {
		t.Fatal(err)
	}
	f.WriteString("{not valid json}")
	f.Close()

	_, err = config.LoadConfig(f.Name())
	if err == nil {
		t.Error("expected error for invalid JSON, got nil")
	}
}
