// Package wsbridge implements the WebSocket Subsystem (SPEC_FULL.md §J): an
// upgrade path that preserves the emulated TLS/header fingerprint, a
// mutex-guarded write sink, and a bounded, semaphore-gated event loop that
// delivers Text/Binary/Close/Error events to host callbacks in frame order.
package wsbridge

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/firasghr/wreqbridge/errs"
	"github.com/firasghr/wreqbridge/metrics"
)

// EventKind identifies which of the four host-visible event shapes an Event
// carries (§4.I: "Text → emit Text(string). Binary → emit Binary(bytes).
// Close → emit Close(code, reason). Error → emit Error(message)").
type EventKind int

const (
	EventText EventKind = iota
	EventBinary
	EventClose
	EventError
)

// Event is one item flowing through a connection's bounded event queue.
type Event struct {
	Kind        EventKind
	Text        string
	Binary      []byte
	CloseCode   int
	CloseReason string
	Err         error
}

// ClosePayload is the optional {code, reason} pair a caller supplies to
// Close; a nil payload closes with an empty reason and the normal-closure
// code (§4.I "Close semantics").
type ClosePayload struct {
	Code   int
	Reason string
}

// Connection is one registered WebSocket: a write sink guarded by a mutex so
// concurrent senders serialise (§4.I "owns only the write sink behind an
// async mutex"), plus the close-emitted latch that keeps a double
// peer-close/local-close from producing two close events (§4.I, §5).
type Connection struct {
	id   uint64
	conn *websocket.Conn

	mu sync.Mutex

	closeEmitted atomic.Bool
}

func newConnection(conn *websocket.Conn) *Connection {
	return &Connection{conn: conn}
}

// ID returns the connection's registry handle.
func (c *Connection) ID() uint64 { return c.id }

// SendText writes a text frame. Concurrent callers serialise on the
// connection's write mutex.
func (c *Connection) SendText(text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.conn.WriteMessage(websocket.TextMessage, []byte(text)); err != nil {
		return errs.New(errs.WSSendFailed, "send text message", err)
	}
	return nil
}

// SendBinary writes a binary frame.
func (c *Connection) SendBinary(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.conn.WriteMessage(websocket.BinaryMessage, data); err != nil {
		return errs.New(errs.WSSendFailed, "send binary message", err)
	}
	return nil
}

// closeWriteDeadline bounds how long a close frame write may block, matching
// gorilla's own documented pattern for WriteControl-class sends.
const closeWriteDeadline = 5 * time.Second

// Close sends a Close frame with the given optional payload. The event loop
// observing the resulting Close frame (or a read error) is what actually
// removes the connection from its registry and emits the close event; Close
// itself only triggers the frame (§4.I, §5: "close(payload?) sends a Close
// frame and removes the registry entry once the event loop observes
// closure").
func (c *Connection) Close(payload *ClosePayload) error {
	code := websocket.CloseNormalClosure
	reason := ""
	if payload != nil {
		code = payload.Code
		reason = payload.Reason
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	msg := websocket.FormatCloseMessage(code, reason)
	err := c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(closeWriteDeadline))
	if err != nil && err != websocket.ErrCloseSent {
		return errs.New(errs.WSCloseFailed, "send close frame", err)
	}
	return nil
}

// markCloseEmitted reports whether this call is the first to observe
// closure, so the event loop emits at most one Close event per connection
// (§5 invariant: "WebSocket close idempotence: at most one onClose
// invocation per connection").
func (c *Connection) markCloseEmitted() bool {
	return c.closeEmitted.CompareAndSwap(false, true)
}

// Registry is the process-wide WebSocket connection table, keyed by a
// monotonic id distinct from the Transport/Session/Body handle counters
// (§3: "ID allocated from a separate atomic counter").
type Registry struct {
	mu    sync.RWMutex
	conns map[uint64]*Connection
	next  atomic.Uint64

	// Metrics, when non-nil, is updated once per registered/removed
	// connection (§O: "active WS connections"). Left nil in tests that
	// don't care about counters.
	Metrics *metrics.Metrics
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{conns: make(map[uint64]*Connection)}
}

func (r *Registry) store(c *Connection) uint64 {
	id := r.next.Add(1)
	c.id = id
	r.mu.Lock()
	r.conns[id] = c
	r.mu.Unlock()
	if r.Metrics != nil {
		r.Metrics.IncrementWSOpened()
	}
	return id
}

// Get returns the connection registered under id, if any.
func (r *Registry) Get(id uint64) (*Connection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.conns[id]
	return c, ok
}

func (r *Registry) remove(id uint64) {
	r.mu.Lock()
	delete(r.conns, id)
	r.mu.Unlock()
	if r.Metrics != nil {
		r.Metrics.IncrementWSClosed()
	}
}
