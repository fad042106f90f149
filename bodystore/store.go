// Package bodystore implements the streaming Body Stream Store
// (SPEC_FULL.md §B): a handle-addressed registry of response bodies too
// large to inline into a Response.
package bodystore

import (
	"errors"
	"io"
	"sync"
	"sync/atomic"
)

// InlineBodyMax is the inclusive byte threshold below which a response body
// is materialized inline (Response.inline_bytes) rather than streamed
// through a handle (§4.H step 5).
const InlineBodyMax = 64 * 1024

// ChunkSize is the amount of data ReadChunk reads per call.
const ChunkSize = 32 * 1024

// ErrNotFound is returned by ReadChunk, ReadAll, and Drop when handle does
// not identify a live stream — either it was never issued, or a prior
// ReadAll/EOF/Drop already removed it (§7: body-handle-not-found).
var ErrNotFound = errors.New("body handle not found")

type stream struct {
	mu   sync.Mutex
	body io.ReadCloser
}

// Store is the process-wide Body Stream Store. The zero value is ready to
// use.
type Store struct {
	next    atomic.Uint64
	streams sync.Map // uint64 -> *stream
}

// New returns an empty Store.
func New() *Store {
	return &Store{}
}

// Store registers body under a new monotonic handle, starting at 1, and
// returns the handle (§4.B, invariant: "handle ids are never reused").
func (s *Store) Store(body io.ReadCloser) uint64 {
	id := s.next.Add(1)
	s.streams.Store(id, &stream{body: body})
	return id
}

// ReadChunk reads up to ChunkSize bytes from the stream identified by
// handle. eof reports whether this read reached the end of the stream; when
// eof is true the handle is dropped (closed and removed) before ReadChunk
// returns, so a subsequent call with the same handle returns ErrNotFound.
// A read that returns data without the body reporting io.EOF leaves the
// handle live, so the end of a stream is often reported by a further call
// that returns no data.
//
// Each handle is guarded by its own lock (not the Store's), so concurrent
// reads of different handles never contend, matching §5's "no registry lock
// is held across a suspension point" rule: the byte read itself happens
// outside any Store-wide lock.
func (s *Store) ReadChunk(handle uint64) (data []byte, eof bool, err error) {
	v, ok := s.streams.Load(handle)
	if !ok {
		return nil, false, ErrNotFound
	}
	st := v.(*stream)

	st.mu.Lock()
	defer st.mu.Unlock()

	buf := make([]byte, ChunkSize)
	n, readErr := st.body.Read(buf)
	data = buf[:n]

	if readErr == io.EOF || (n == 0 && readErr != nil) {
		s.dropLocked(handle, st)
		return data, true, nil
	}
	if readErr != nil {
		s.dropLocked(handle, st)
		return nil, false, readErr
	}
	return data, false, nil
}

// ReadAll drains the stream identified by handle to completion and drops
// the handle before returning (§8: "body-handle-not-found after read_all
// completes").
func (s *Store) ReadAll(handle uint64) ([]byte, error) {
	v, ok := s.streams.Load(handle)
	if !ok {
		return nil, ErrNotFound
	}
	st := v.(*stream)

	st.mu.Lock()
	defer st.mu.Unlock()

	data, err := io.ReadAll(st.body)
	s.dropLocked(handle, st)
	if err != nil {
		return nil, err
	}
	return data, nil
}

// Drop closes and removes handle without reading further. Dropping an
// already-removed handle returns ErrNotFound. Cancellation does not call
// this automatically (§9 Open Question 2): callers that cancel a request
// mid-stream are responsible for dropping any body handle it produced, if
// they no longer intend to read it.
func (s *Store) Drop(handle uint64) error {
	v, ok := s.streams.LoadAndDelete(handle)
	if !ok {
		return ErrNotFound
	}
	st := v.(*stream)
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.body.Close()
}

// dropLocked removes handle from the registry and closes its body. Callers
// must already hold st.mu.
func (s *Store) dropLocked(handle uint64, st *stream) {
	s.streams.Delete(handle)
	_ = st.body.Close()
}
