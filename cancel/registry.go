// Package cancel implements the Cancellation Registry (SPEC_FULL.md §I): a
// single-shot, request-id-indexed table of context.CancelFunc values backing
// cancelRequest (§6).
package cancel

import "sync"

// Registry maps an in-flight request_id to the CancelFunc that aborts it.
// Entries are single-shot: Cancel and Remove both consume the entry, so a
// given request_id can only ever be cancelled once (§5: "cancellation
// affects only its own request_id").
type Registry struct {
	mu     sync.Mutex
	tokens map[uint64]func()
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{tokens: make(map[uint64]func())}
}

// Register associates requestID with cancel, so a later Cancel(requestID)
// call invokes it. Callers must call Remove once the request completes
// through its normal path (§4.H.2: "remove the token on either path —
// completion or cancellation").
func (r *Registry) Register(requestID uint64, cancel func()) {
	r.mu.Lock()
	r.tokens[requestID] = cancel
	r.mu.Unlock()
}

// Cancel invokes and removes the CancelFunc registered for requestID. It
// reports false if requestID has no live registration — either it was
// never registered, already completed, or already cancelled.
func (r *Registry) Cancel(requestID uint64) bool {
	r.mu.Lock()
	cancel, ok := r.tokens[requestID]
	if ok {
		delete(r.tokens, requestID)
	}
	r.mu.Unlock()

	if !ok {
		return false
	}
	cancel()
	return true
}

// Remove discards the registration for requestID without invoking it, used
// when a request completes on its own before any cancellation arrives.
func (r *Registry) Remove(requestID uint64) {
	r.mu.Lock()
	delete(r.tokens, requestID)
	r.mu.Unlock()
}
