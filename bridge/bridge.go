// Package bridge is the top-level FFI surface (SPEC_FULL.md §6): the
// operation table a host-language bindings layer calls into. It owns every
// process-wide registry (sessions, transports, ephemeral clients, body
// streams, cancellations, WebSocket connections) and the single Runtime Host
// that delivers WebSocket events to host callbacks (§4.K).
//
// The host-language bindings layer itself — argument coercion, callback
// rooting, promise/value marshalling — is explicitly out of scope (§1); this
// package is the boundary those bindings would call into, one exported
// method per row of §6's table.
package bridge

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/firasghr/wreqbridge/bodystore"
	"github.com/firasghr/wreqbridge/cancel"
	"github.com/firasghr/wreqbridge/client"
	"github.com/firasghr/wreqbridge/emulation"
	"github.com/firasghr/wreqbridge/ephemeral"
	"github.com/firasghr/wreqbridge/errs"
	"github.com/firasghr/wreqbridge/header"
	"github.com/firasghr/wreqbridge/metrics"
	"github.com/firasghr/wreqbridge/request"
	"github.com/firasghr/wreqbridge/runtime"
	"github.com/firasghr/wreqbridge/session"
	"github.com/firasghr/wreqbridge/transport"
	"github.com/firasghr/wreqbridge/wsbridge"
)

// Bridge wires every component in SPEC_FULL.md §2's table together. One
// instance is constructed at host startup (New) and shared across every
// subsequent call the host makes across the foreign-function boundary.
type Bridge struct {
	pipeline   *request.Pipeline
	transports *transport.Registry
	sessions   *session.Registry
	ephemeral  *ephemeral.Cache
	bodies     *bodystore.Store
	cancels    *cancel.Registry
	sockets    *wsbridge.Registry
	host       *runtime.Host
	metrics    *metrics.Metrics
}

// New wires the registries together and starts the Runtime Host with
// workerCount goroutines (§4.K). workerCount is clamped to at least 1 by
// runtime.NewHost. The Bridge owns its own Metrics instance (§O); every
// request.Pipeline.Execute call and every WebSocket connect/close updates
// it, so counters stay live for any embedding host driving the bridge
// through its real FFI surface, not just a one-off demo path — see
// Metrics.
func New(workerCount int) *Bridge {
	sessions := session.NewRegistry()
	eph := ephemeral.NewCache()
	transports := transport.NewRegistry()
	bodies := bodystore.New()
	cancels := cancel.NewRegistry()
	sockets := wsbridge.NewRegistry()
	host := runtime.NewHost(workerCount)
	host.Start()

	m := metrics.NewMetrics()
	sockets.Metrics = m

	pipeline := request.New(transports, eph, sessions, bodies, cancels)
	pipeline.Metrics = m

	return &Bridge{
		pipeline:   pipeline,
		transports: transports,
		sessions:   sessions,
		ephemeral:  eph,
		bodies:     bodies,
		cancels:    cancels,
		sockets:    sockets,
		host:       host,
		metrics:    m,
	}
}

// Metrics returns the Bridge's live counters (§O): total requests,
// inline/streamed responses, failures, cancellations, and open/closed
// WebSocket connections. The returned *metrics.Metrics is safe for
// concurrent reads while the Bridge is in use.
func (b *Bridge) Metrics() *metrics.Metrics {
	return b.metrics
}

// Stop halts the Runtime Host and every registry's background eviction
// goroutine. Intended for graceful host shutdown; no further calls should be
// made on a stopped Bridge.
func (b *Bridge) Stop() {
	b.sessions.Stop()
	b.ephemeral.Stop()
	b.host.Stop()
}

// Request executes one request end to end (§6 "request"). requestID is only
// meaningful when cancellable is true; it identifies the registration
// CancelRequest looks up.
func (b *Bridge) Request(ctx context.Context, opts request.Options, requestID uint64, cancellable bool) (*request.Response, error) {
	return b.pipeline.Execute(ctx, opts, requestID, cancellable)
}

// CancelRequest aborts the in-flight request registered under requestID, if
// any (§6 "cancelRequest"). A requestID with no live registration — already
// completed, never registered, or already cancelled — is a no-op.
func (b *Bridge) CancelRequest(requestID uint64) {
	b.cancels.Cancel(requestID)
}

// ReadBodyChunk reads the next chunk of a streamed response body (§6
// "readBodyChunk"). eof reports whether the stream was exhausted by this
// read, in which case handle is no longer valid.
func (b *Bridge) ReadBodyChunk(handle uint64) (data []byte, eof bool, err error) {
	data, eof, err = b.bodies.ReadChunk(handle)
	if err == bodystore.ErrNotFound {
		return nil, false, errs.New(errs.BodyHandleNotFound, "body handle not found", err)
	}
	return data, eof, err
}

// ReadBodyAll drains a streamed response body to a single buffer, removing
// handle in the process (§6 "readBodyAll").
func (b *Bridge) ReadBodyAll(handle uint64) ([]byte, error) {
	data, err := b.bodies.ReadAll(handle)
	if err == bodystore.ErrNotFound {
		return nil, errs.New(errs.BodyHandleNotFound, "body handle not found", err)
	}
	return data, err
}

// CancelBody drops a streamed response body without reading the remainder
// (§6 "cancelBody"). A no-op if handle is already gone.
func (b *Bridge) CancelBody(handle uint64) {
	_ = b.bodies.Drop(handle)
}

// CreateSession registers a fresh session, generating a v4 UUID when
// sessionID is empty or whitespace-only (§6 "createSession"; §9 Open
// Question 1). It returns the resolved session id.
func (b *Bridge) CreateSession(sessionID string) (string, error) {
	id := strings.TrimSpace(sessionID)
	if id == "" {
		id = uuid.NewString()
	}
	if err := b.sessions.Create(id); err != nil {
		return "", errs.New(errs.ClientBuild, "create session "+id, err)
	}
	return id, nil
}

// ClearSession empties the cookie jar bound to id, keeping the session entry
// alive (§6 "clearSession"). Errors with session-not-found if id has no live
// entry.
func (b *Bridge) ClearSession(id string) error {
	if err := b.sessions.Clear(id); err != nil {
		if err == session.ErrNotFound {
			return errs.New(errs.SessionNotFound, "session "+id+" not found", err)
		}
		return err
	}
	return nil
}

// DropSession invalidates the session entry for id (§6 "dropSession"). A
// no-op for an unknown or already expired id.
func (b *Bridge) DropSession(id string) {
	b.sessions.Drop(id)
}

// CreateTransport builds and registers a long-lived emulating client under a
// fresh UUID (§6 "createTransport").
func (b *Bridge) CreateTransport(cfg client.TransportConfig) (string, error) {
	return b.transports.Create(cfg)
}

// DropTransport removes and closes the transport registered under id (§6
// "dropTransport"). Reports false if id was not registered.
func (b *Bridge) DropTransport(id string) bool {
	return b.transports.Drop(id)
}

// GetProfiles returns every known emulation profile identifier (§6
// "getProfiles").
func (b *Bridge) GetProfiles() []string {
	return emulation.Profiles()
}

// GetOperatingSystems returns every known OS identifier (§6
// "getOperatingSystems").
func (b *Bridge) GetOperatingSystems() []string {
	return emulation.OperatingSystems()
}

// WebSocketOptions mirrors the host's websocketConnect input record (§6:
// "{url, browser, os, headers, proxy, onMessage, onClose?, onError?}"), plus
// the optional session+transport pairing that routes the upgrade through a
// registered transport's client and a session's cookie jar (§4.I.2). The
// callbacks themselves travel separately as WebSocketCallbacks.
type WebSocketOptions struct {
	URL       string
	Emulation string
	OS        string
	Headers   *header.OrderedHeader
	Protocols []string
	Proxy     string
	Insecure  bool

	// SessionID and TransportID, when both set, select the session-bound
	// upgrade path (§4.I.2). Otherwise Connect builds a fresh emulating
	// client from Emulation/OS/Proxy/Insecure.
	SessionID   string
	TransportID string
}

// WebSocketCallbacks mirrors the host's onMessage/onClose/onError callback
// trio (§6).
type WebSocketCallbacks = wsbridge.Callbacks

// WebsocketConnect upgrades to a WebSocket connection and starts its event
// loop (§6 "websocketConnect"), returning the connection's registry handle
// and the negotiated subprotocol/extensions.
func (b *Bridge) WebsocketConnect(ctx context.Context, opts WebSocketOptions, cb WebSocketCallbacks) (uint64, wsbridge.UpgradeMetadata, error) {
	wsOpts := wsbridge.Options{
		URL:       opts.URL,
		Emulation: opts.Emulation,
		OS:        opts.OS,
		Headers:   opts.Headers,
		Protocols: opts.Protocols,
		Proxy:     opts.Proxy,
		Insecure:  opts.Insecure,
	}

	if opts.SessionID != "" && opts.TransportID != "" {
		return wsbridge.ConnectWithSession(ctx, b.sockets, b.host, b.transports, b.sessions, opts.TransportID, opts.SessionID, wsOpts, cb)
	}
	return wsbridge.Connect(ctx, b.sockets, b.host, wsOpts, cb)
}

// WebsocketSend writes one frame — text when isText, binary otherwise — on
// the connection registered under id (§6 "websocketSend").
func (b *Bridge) WebsocketSend(id uint64, data []byte, isText bool) error {
	conn, ok := b.sockets.Get(id)
	if !ok {
		return errs.New(errs.WSSendFailed, "websocket connection not found", nil)
	}
	if isText {
		return conn.SendText(string(data))
	}
	return conn.SendBinary(data)
}

// WebsocketClose sends a Close frame on the connection registered under id
// (§6 "websocketClose"). payload may be nil for a default-code, empty-reason
// close.
func (b *Bridge) WebsocketClose(id uint64, payload *wsbridge.ClosePayload) error {
	conn, ok := b.sockets.Get(id)
	if !ok {
		return errs.New(errs.WSCloseFailed, "websocket connection not found", nil)
	}
	return conn.Close(payload)
}
