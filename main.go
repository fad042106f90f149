// wreqbridge is a native HTTP/WebSocket browser-emulation bridge meant to be
// embedded behind a host-language binding layer (§1, §6). This binary is not
// that binding layer — it is a thin process that wires the bridge up,
// exposes it for local diagnostics, and runs a smoke request against a
// caller-supplied URL so the binary is independently useful for verifying a
// deployment.
//
// Startup sequence:
//  1. Initialise the logger.
//  2. Load configuration (JSON file or defaults).
//  3. Construct the Bridge, starting its Runtime Host worker pool and its
//     Metrics instance.
//  4. Start the introspection HTTP server (metrics/log SSE streams) against
//     the Bridge's own Metrics.
//  5. If -smoke-url is set, issue one request through the bridge and log
//     the outcome.
//  6. Block until OS signals SIGINT or SIGTERM, then perform a clean
//     shutdown.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/firasghr/wreqbridge/bridge"
	"github.com/firasghr/wreqbridge/config"
	"github.com/firasghr/wreqbridge/introspection"
	"github.com/firasghr/wreqbridge/logger"
	"github.com/firasghr/wreqbridge/request"
)

func main() {
	// ── Flags ──────────────────────────────────────────────────────────────
	configFile := flag.String("config", "", "Path to JSON config file (optional; uses defaults if omitted)")
	introspectAddr := flag.String("introspect", ":9090", "Address for the introspection HTTP server (e.g. :9090)")
	smokeURL := flag.String("smoke-url", "", "Optional URL to request once at startup, to verify the bridge is wired correctly")
	flag.Parse()

	// ── Logger ─────────────────────────────────────────────────────────────
	log := logger.New(logger.LevelInfo)
	log.Info("wreqbridge starting up")

	// ── Configuration ──────────────────────────────────────────────────────
	var cfg *config.Config
	if *configFile != "" {
		var err error
		cfg, err = config.LoadConfig(*configFile)
		if err != nil {
			log.Errorf("failed to load config from %q: %v", *configFile, err)
			os.Exit(1)
		}
		log.Infof("configuration loaded from %q", *configFile)
	} else {
		cfg = config.DefaultConfig()
		log.Info("using default configuration")
	}

	// ── Bridge ─────────────────────────────────────────────────────────────
	// Bridge.New owns its Metrics instance and updates it from every
	// Execute/WebSocket call the bridge serves (§O), so introspection below
	// reads live counters rather than a separate, host-driven copy.
	b := bridge.New(cfg.WorkerCount)
	m := b.Metrics()
	log.Infof("bridge started with %d workers", cfg.WorkerCount)

	// ── Introspection server ────────────────────────────────────────────────
	introspect := introspection.New(m)
	go func() {
		if err := introspect.ListenAndServe(*introspectAddr); err != nil {
			log.Errorf("introspection server error: %v", err)
		}
	}()
	log.Infof("introspection server starting on %s", *introspectAddr)
	introspect.AddLog("INFO", fmt.Sprintf("bridge started with %d workers", cfg.WorkerCount))

	// ── Smoke request ──────────────────────────────────────────────────────
	if *smokeURL != "" {
		ctx, cancel := context.WithTimeout(context.Background(), cfg.DefaultRequestTimeout)
		resp, err := b.Request(ctx, request.Options{URL: *smokeURL}, 1, false)
		cancel()
		if err != nil {
			log.ErrorKind(fmt.Sprintf("smoke request to %q failed", *smokeURL), err)
			introspect.AddLog("ERROR", fmt.Sprintf("smoke request to %q failed: %v", *smokeURL, err))
		} else {
			log.Infof("smoke request to %q returned status %d", *smokeURL, resp.Status)
			introspect.AddLog("INFO", fmt.Sprintf("smoke request to %q returned status %d", *smokeURL, resp.Status))
		}
	}

	// ── Metrics monitor ────────────────────────────────────────────────────
	go func() {
		ticker := time.NewTicker(10 * time.Second)
		defer ticker.Stop()
		for range ticker.C {
			total, failed, inline, streamed := m.Snapshot()
			opened, closed := m.WSSnapshot()
			log.Infof("metrics – total: %d | failed: %d | inline: %d | streamed: %d | rps: %.1f | ws open: %d | ws closed: %d",
				total, failed, inline, streamed, m.RequestsPerSecond(), opened, closed)
		}
	}()

	// ── Graceful shutdown ──────────────────────────────────────────────────
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	fmt.Println() // newline after ^C
	log.Infof("received signal %s; shutting down", sig)
	introspect.AddLog("INFO", fmt.Sprintf("received signal %s; shutting down", sig))

	b.Stop()

	total, failed, inline, streamed := m.Snapshot()
	log.Infof("final metrics – total: %d | failed: %d | inline: %d | streamed: %d | rps: %.1f",
		total, failed, inline, streamed, m.RequestsPerSecond())
	log.Info("wreqbridge shut down cleanly")
}
