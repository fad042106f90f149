// Package runtime implements the Runtime Host (SPEC_FULL.md §K): the
// process-wide, multi-threaded cooperative worker pool, the Go analogue of
// the original's shared Tokio runtime (original_source/rust/src/client.rs's
// HTTP_RUNTIME). In this module the work submitted to it is the delivery of
// WebSocket events to host callbacks (package dispatch); request sends, body
// reads and WebSocket upgrades/sends run on the caller's goroutine, and each
// connection's frame reader runs on a goroutine of its own.
package runtime

import (
	"fmt"
	"os"
	"runtime/debug"
	"sync"
)

// Host manages a fixed number of goroutines that drain a shared job queue.
//
// Design choices:
//   - workerCount goroutines are started once and reused, avoiding the cost
//     of spawning a goroutine per submitted unit of work.
//   - jobQueue is a buffered channel (capacity workerCount*4): workers can
//     pick up the next job immediately after finishing the current one. Go
//     blocks only when the buffer is full, applying natural back-pressure to
//     callers.
//   - Stop closes the channel and waits (via wg) for every in-flight job to
//     finish before returning, preventing goroutine leaks.
//   - A job that panics (a WebSocket callback from the FFI boundary that
//     panics, say) is recovered per-job so it can't take its worker
//     goroutine down with it; the other workerCount-1 workers, and every job
//     still queued behind it, are unaffected.
type Host struct {
	workerCount int
	jobQueue    chan func()
	wg          sync.WaitGroup
}

// NewHost creates a Host with workerCount goroutines ready to receive work.
func NewHost(workerCount int) *Host {
	if workerCount <= 0 {
		workerCount = 1
	}
	return &Host{
		workerCount: workerCount,
		jobQueue:    make(chan func(), workerCount*4),
	}
}

// Start launches the worker goroutines. It must be called exactly once
// before any work is submitted.
func (h *Host) Start() {
	for i := 0; i < h.workerCount; i++ {
		h.wg.Add(1)
		go func() {
			defer h.wg.Done()
			for job := range h.jobQueue {
				runJob(job)
			}
		}()
	}
}

// Go submits job for execution by one of the Host's goroutines (§4.K);
// within this module its caller is dispatch.Dispatcher, which submits
// WebSocket callback invocations. It blocks if the internal buffer is
// full, applying back-pressure to the caller. Go must not be called after
// Stop.
func (h *Host) Go(job func()) {
	h.jobQueue <- job
}

// Stop signals the Host to finish all queued work and then waits for all
// worker goroutines to exit. No new work may be submitted after Stop is
// called.
func (h *Host) Stop() {
	close(h.jobQueue)
	h.wg.Wait()
}

// runJob executes job with its own recover so a single panicking submission
// can't kill the worker goroutine draining it.
func runJob(job func()) {
	defer func() {
		if r := recover(); r != nil {
			fmt.Fprintf(os.Stderr, "runtime: PANIC in Host job: %v\n%s\n", r, debug.Stack())
		}
	}()
	job()
}
