// Package dispatch implements the Event Dispatcher (SPEC_FULL.md §L): it
// drains one connection's event channel and submits one host-callback
// invocation per event to a runtime.Host, the same "message passing between
// a reader task and a dispatcher task" design spec §9 calls for.
//
// Repurposed from the teacher's scheduler.Scheduler, which fanned a job out
// to every active session on a timer; this Dispatcher instead drains a
// single channel and preserves the order its events arrive in, since the
// bridge has no "iterate all sessions" concept — WebSocket frames arrive one
// connection's event loop at a time.
package dispatch

import (
	"context"

	"golang.org/x/sync/semaphore"

	"github.com/firasghr/wreqbridge/runtime"
)

// Dispatcher gates host-callback delivery for one connection's event stream
// through a weighted semaphore, so a slow host consumer back-pressures the
// reader task feeding events rather than letting it buffer unboundedly
// (§4.J "Backpressure").
type Dispatcher[T any] struct {
	host *runtime.Host
	sem  *semaphore.Weighted
}

// NewDispatcher returns a Dispatcher that submits callback invocations to
// host, gated to at most capacity outstanding at a time.
func NewDispatcher[T any](host *runtime.Host, capacity int64) *Dispatcher[T] {
	return &Dispatcher[T]{host: host, sem: semaphore.NewWeighted(capacity)}
}

// Run drains events until the channel is closed or ctx is cancelled,
// invoking handle for each one via the Runtime Host. Run blocks until each
// submitted handle call returns before acquiring the next event, so a
// single reader → single dispatcher pairing preserves per-connection frame
// order end-to-end (§5) even though handle runs on a shared worker pool.
func (d *Dispatcher[T]) Run(ctx context.Context, events <-chan T, handle func(T)) {
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return
			}
			if d.sem.Acquire(ctx, 1) != nil {
				return
			}
			done := make(chan struct{})
			d.host.Go(func() {
				defer close(done)
				defer d.sem.Release(1)
				handle(ev)
			})
			<-done
		case <-ctx.Done():
			return
		}
	}
}
