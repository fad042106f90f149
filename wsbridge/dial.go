package wsbridge

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/gorilla/websocket"

	"github.com/firasghr/wreqbridge/client"
	"github.com/firasghr/wreqbridge/dispatch"
	"github.com/firasghr/wreqbridge/emulation"
	"github.com/firasghr/wreqbridge/errs"
	"github.com/firasghr/wreqbridge/header"
	"github.com/firasghr/wreqbridge/jar"
	"github.com/firasghr/wreqbridge/runtime"
	"github.com/firasghr/wreqbridge/session"
	"github.com/firasghr/wreqbridge/transport"
)

// EventBuffer is the bounded event-queue capacity (WS_EVENT_BUFFER, §4.I):
// the reader task's channel and the dispatcher's semaphore share this
// weight, matching the original's constant of the same name.
const EventBuffer = 64

// handshakeTimeout bounds the upgrade request itself, distinct from the
// connection's subsequent read/write deadlines (none are set once upgraded,
// matching a long-lived WebSocket's normal lifetime).
const handshakeTimeout = 30 * time.Second

// Callbacks are the host-supplied functions an event loop delivers events to
// (§6: "onMessage, onClose?, onError?"). OnMessage receives both Text and
// Binary events; OnClose and OnError may be nil.
type Callbacks struct {
	OnMessage func(Event)
	OnClose   func(Event)
	OnError   func(Event)
}

// Options mirrors WebSocketOptions (§6: "{url, browser, os, headers, proxy,
// onMessage, onClose?, onError?}"; the callbacks themselves travel
// separately as Callbacks).
type Options struct {
	URL       string
	Emulation string
	OS        string
	Headers   *header.OrderedHeader
	Protocols []string
	Proxy     string
	Insecure  bool
}

// UpgradeMetadata is the subprotocol/extensions pair a successful handshake
// returns (§4.I "Return upgrade metadata").
type UpgradeMetadata struct {
	Protocol   string
	Extensions string
}

// Connect builds a fresh emulating client for opts and performs the
// WebSocket upgrade (§4.I). host runs the resulting event loop's
// callback dispatch.
func Connect(ctx context.Context, registry *Registry, host *runtime.Host, opts Options, cb Callbacks) (uint64, UpgradeMetadata, error) {
	descriptor := emulation.Resolve(opts.Emulation, opts.OS)

	var proxyURL *url.URL
	if opts.Proxy != "" {
		var err error
		proxyURL, err = url.Parse(opts.Proxy)
		if err != nil {
			return 0, UpgradeMetadata{}, errs.New(errs.WSUpgradeFailed, fmt.Sprintf("parse proxy %q", opts.Proxy), err)
		}
	}

	dialer := buildDialer(descriptor, proxyURL, opts.Insecure)

	var callerCookie string
	if opts.Headers != nil {
		callerCookie = opts.Headers.Get("Cookie")
	}
	upgradeHeader := buildUpgradeHeader(descriptor.Headers, opts.Headers, callerCookie)

	return dial(ctx, registry, host, dialer, opts, upgradeHeader, cb)
}

// ConnectWithSession performs the upgrade using an already-registered
// transport's client (so TLS/H2 fingerprint matches the rest of that
// transport's HTTPS traffic) and a session's cookie jar, coalesced into a
// single Cookie header (§4.I.2).
func ConnectWithSession(ctx context.Context, registry *Registry, host *runtime.Host, transports *transport.Registry, sessions *session.Registry, transportID, sessionID string, opts Options, cb Callbacks) (uint64, UpgradeMetadata, error) {
	entry, ok := transports.Get(transportID)
	if !ok {
		return 0, UpgradeMetadata{}, errs.New(errs.TransportNotFound, "transport "+transportID+" not found", nil)
	}

	descriptor := client.Descriptor(entry.Config.SessionConfig)

	var proxyURL *url.URL
	if entry.Config.Proxy != "" {
		var err error
		proxyURL, err = url.Parse(entry.Config.Proxy)
		if err != nil {
			return 0, UpgradeMetadata{}, errs.New(errs.WSUpgradeFailed, fmt.Sprintf("parse proxy %q", entry.Config.Proxy), err)
		}
	}
	dialer := buildDialer(descriptor, proxyURL, entry.Config.Insecure)

	j, err := sessions.JarFor(sessionID)
	if err != nil {
		return 0, UpgradeMetadata{}, errs.New(errs.SessionNotFound, "session "+sessionID+" not found", err)
	}

	target, err := url.Parse(opts.URL)
	if err != nil {
		return 0, UpgradeMetadata{}, errs.New(errs.WSUpgradeFailed, fmt.Sprintf("parse url %q", opts.URL), err)
	}

	var callerCookie string
	if opts.Headers != nil {
		callerCookie = opts.Headers.Get("Cookie")
	}
	merged := jar.MergeIntoCookieHeader(j.Bundle(target), callerCookie)

	upgradeHeader := buildUpgradeHeader(descriptor.Headers, opts.Headers, merged)

	return dial(ctx, registry, host, dialer, opts, upgradeHeader, cb)
}

func dial(ctx context.Context, registry *Registry, host *runtime.Host, dialer *websocket.Dialer, opts Options, upgradeHeader map[string][]string, cb Callbacks) (uint64, UpgradeMetadata, error) {
	dialer.Subprotocols = opts.Protocols
	dialer.HandshakeTimeout = handshakeTimeout

	dialCtx, cancel := context.WithTimeout(ctx, handshakeTimeout)
	defer cancel()

	conn, resp, err := dialer.DialContext(dialCtx, opts.URL, upgradeHeader)
	if err != nil {
		return 0, UpgradeMetadata{}, errs.New(errs.WSUpgradeFailed, fmt.Sprintf("upgrade %s", opts.URL), err)
	}

	meta := UpgradeMetadata{
		Protocol:   resp.Header.Get("Sec-WebSocket-Protocol"),
		Extensions: resp.Header.Get("Sec-WebSocket-Extensions"),
	}

	c := newConnection(conn)
	id := registry.store(c)

	go runEventLoop(context.Background(), registry, host, c, cb)

	return id, meta, nil
}

// buildDialer constructs a *websocket.Dialer whose NetDialTLSContext hook
// runs the same uTLS handshake (and, when configured, the same
// CONNECT/SOCKS5 tunnel) client.NewTransport wires into an *http.Transport,
// so a wss:// upgrade presents the identical TLS fingerprint as HTTPS
// traffic from the same descriptor (§4.J). NetDialContext is not set: a
// ws:// upgrade dials the target directly and does not use proxyURL.
func buildDialer(descriptor *emulation.Descriptor, proxyURL *url.URL, insecure bool) *websocket.Dialer {
	rawDial := client.RawDialer(descriptor, proxyURL, insecure)
	return &websocket.Dialer{
		NetDialTLSContext: rawDial,
	}
}

// runEventLoop is the reader task (§4.I "Event loop (one per connection)"):
// it reads frames until Close or a read error, translating each into an
// Event on a bounded channel, and runs a dispatch.Dispatcher that drains the
// channel into cb in order.
func runEventLoop(ctx context.Context, registry *Registry, host *runtime.Host, c *Connection, cb Callbacks) {
	events := make(chan Event, EventBuffer)
	dispatcher := dispatch.NewDispatcher[Event](host, EventBuffer)

	go dispatcher.Run(ctx, events, func(ev Event) {
		deliver(cb, ev)
	})

	defer func() {
		registry.remove(c.id)
		close(events)
	}()

	for {
		msgType, data, err := c.conn.ReadMessage()
		if err != nil {
			// gorilla's default close handler answers a peer's Close frame
			// and surfaces it here as a *websocket.CloseError; anything
			// else is a genuine read error (§4.I "Error → emit Error(message)
			// then emit Close then terminate").
			if ce, ok := err.(*websocket.CloseError); ok {
				emitClose(c, events, ce.Code, ce.Text)
			} else {
				events <- Event{Kind: EventError, Err: err}
				emitClose(c, events, websocket.CloseAbnormalClosure, err.Error())
			}
			return
		}

		switch msgType {
		case websocket.TextMessage:
			events <- Event{Kind: EventText, Text: string(data)}
		case websocket.BinaryMessage:
			events <- Event{Kind: EventBinary, Binary: data}
		}
		// Ping/Pong frames never reach here: gorilla answers them via its
		// default control-frame handlers before ReadMessage returns (§4.I
		// "Ping/Pong → silently ignore").
	}
}

// emitClose implements the close-emitted latch (§4.I, §5): at most one
// Close event reaches the host per connection, even if both a peer-close
// frame and a local read error observe closure.
func emitClose(c *Connection, events chan<- Event, code int, reason string) {
	if c.markCloseEmitted() {
		events <- Event{Kind: EventClose, CloseCode: code, CloseReason: reason}
	}
}

// deliver routes one Event to the matching callback, skipping nil callbacks
// the host chose not to supply (§6: "onClose?, onError?").
func deliver(cb Callbacks, ev Event) {
	switch ev.Kind {
	case EventText, EventBinary:
		if cb.OnMessage != nil {
			cb.OnMessage(ev)
		}
	case EventError:
		if cb.OnError != nil {
			cb.OnError(ev)
		}
	case EventClose:
		if cb.OnClose != nil {
			cb.OnClose(ev)
		}
	}
}
