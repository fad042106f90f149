// Package introspection provides a read-only HTTP surface an embedding host
// can scrape or tail while the bridge is running: a live metrics snapshot
// endpoint and a polled metrics SSE stream plus a fanned-out log stream.
//
// It exposes:
//   - GET /api/metrics       – point-in-time metrics snapshot (JSON)
//   - GET /api/metrics/stream – SSE stream of the same snapshot (250 ms ticks)
//   - GET /api/logs/stream    – SSE stream of log entries recorded via AddLog
//
// CORS is wide-open since this is a local diagnostics surface, not a
// host-facing API; embedding applications that expose it beyond localhost
// should front it with their own auth/reverse proxy.
package introspection

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/firasghr/wreqbridge/metrics"
)

// MetricsSnapshot is the JSON payload pushed to subscribers every tick.
type MetricsSnapshot struct {
	Timestamp         int64   `json:"timestamp"`
	TotalRequests     uint64  `json:"total_requests"`
	Failed            uint64  `json:"failed"`
	InlineResponses   uint64  `json:"inline_responses"`
	StreamedResponses uint64  `json:"streamed_responses"`
	RPS               float64 `json:"requests_per_second"`
	WSOpened          uint64  `json:"ws_connections_opened"`
	WSClosed          uint64  `json:"ws_connections_closed"`
}

// LogEntry is a structured log line streamed to subscribers.
type LogEntry struct {
	Timestamp int64  `json:"ts"`
	Level     string `json:"level"`
	Message   string `json:"message"`
}

const maxLogs = 10_000

// Server exposes the bridge's Metrics over HTTP for an embedding host's
// operational tooling. It holds no reference to any bridge internals beyond
// the Metrics counters, so it can be wired up, torn down, or omitted
// entirely without touching request/session/transport code paths.
type Server struct {
	metrics *metrics.Metrics

	logMu   sync.Mutex
	logs    []LogEntry
	logSubs map[chan LogEntry]struct{}

	metricsSubMu sync.Mutex
	metricsSubs  map[chan MetricsSnapshot]struct{}

	mux *http.ServeMux
}

// New creates a Server backed by m. Call ListenAndServe to start accepting
// connections, or use Handler to mount the routes on an existing mux.
func New(m *metrics.Metrics) *Server {
	s := &Server{
		metrics:     m,
		logs:        make([]LogEntry, 0, 512),
		logSubs:     make(map[chan LogEntry]struct{}),
		metricsSubs: make(map[chan MetricsSnapshot]struct{}),
		mux:         http.NewServeMux(),
	}
	s.registerRoutes()
	return s
}

// Handler returns the http.Handler serving the introspection routes, for
// embedding into a host's own server/mux instead of calling ListenAndServe.
func (s *Server) Handler() http.Handler { return s.mux }

// AddLog appends a structured log entry to the ring buffer and fans it out
// to every active /api/logs/stream subscriber.
func (s *Server) AddLog(level, message string) {
	entry := LogEntry{Timestamp: time.Now().UnixMilli(), Level: level, Message: message}

	s.logMu.Lock()
	s.logs = append(s.logs, entry)
	if len(s.logs) > maxLogs {
		s.logs = s.logs[len(s.logs)-maxLogs:]
	}
	for ch := range s.logSubs {
		select {
		case ch <- entry:
		default:
			// Slow subscriber – drop rather than block.
		}
	}
	s.logMu.Unlock()
}

// ListenAndServe starts the HTTP server on addr (e.g. ":9090") and blocks
// until the process exits or the server errors. It also starts the
// background goroutine ticking metrics snapshots to SSE subscribers.
func (s *Server) ListenAndServe(addr string) error {
	go s.metricsTicker()
	log.Printf("introspection: listening on %s", addr)
	srv := &http.Server{
		Addr:         addr,
		Handler:      s.mux,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0, // SSE streams are long-lived and unbounded
		IdleTimeout:  120 * time.Second,
	}
	return srv.ListenAndServe()
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("/api/metrics", s.withCORS(s.handleMetrics))
	s.mux.HandleFunc("/api/metrics/stream", s.withCORS(s.handleMetricsStream))
	s.mux.HandleFunc("/api/logs/stream", s.withCORS(s.handleLogsStream))
}

func (s *Server) withCORS(h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		h(w, r)
	}
}

func (s *Server) snapshot() MetricsSnapshot {
	total, failed, inline, streamed := s.metrics.Snapshot()
	opened, closed := s.metrics.WSSnapshot()
	return MetricsSnapshot{
		Timestamp:         time.Now().UnixMilli(),
		TotalRequests:     total,
		Failed:            failed,
		InlineResponses:   inline,
		StreamedResponses: streamed,
		RPS:               s.metrics.RequestsPerSecond(),
		WSOpened:          opened,
		WSClosed:          closed,
	}
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(s.snapshot()); err != nil {
		log.Printf("introspection: encode metrics: %v", err)
	}
}

func (s *Server) metricsTicker() {
	ticker := time.NewTicker(250 * time.Millisecond)
	defer ticker.Stop()
	for range ticker.C {
		snap := s.snapshot()
		s.metricsSubMu.Lock()
		for ch := range s.metricsSubs {
			select {
			case ch <- snap:
			default:
			}
		}
		s.metricsSubMu.Unlock()
	}
}

func (s *Server) handleMetricsStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	ch := make(chan MetricsSnapshot, 16)
	s.metricsSubMu.Lock()
	s.metricsSubs[ch] = struct{}{}
	s.metricsSubMu.Unlock()
	defer func() {
		s.metricsSubMu.Lock()
		delete(s.metricsSubs, ch)
		s.metricsSubMu.Unlock()
	}()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case snap := <-ch:
			if err := sseWrite(w, snap); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

func (s *Server) handleLogsStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	s.logMu.Lock()
	history := make([]LogEntry, len(s.logs))
	copy(history, s.logs)
	s.logMu.Unlock()
	for _, entry := range history {
		if err := sseWrite(w, entry); err != nil {
			return
		}
	}
	flusher.Flush()

	ch := make(chan LogEntry, 256)
	s.logMu.Lock()
	s.logSubs[ch] = struct{}{}
	s.logMu.Unlock()
	defer func() {
		s.logMu.Lock()
		delete(s.logSubs, ch)
		s.logMu.Unlock()
	}()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case entry := <-ch:
			if err := sseWrite(w, entry); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

func sseWrite(w io.Writer, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "data: %s\n\n", data)
	return err
}
