package client

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/net/http2"

	"github.com/firasghr/wreqbridge/emulation"
	"github.com/firasghr/wreqbridge/header"
)

// PseudoHeaderOrder lists the HTTP/2 pseudo-header names in the order a real
// browser sends them.
//
// The standard golang.org/x/net/http2 library writes pseudo-headers in a
// fixed internal order (:method, :path, :scheme, :authority). Browsers write
// them as :method → :authority → :scheme → :path. Full wire-level fidelity
// for pseudo-header ordering requires either a patched http2 package or a
// custom HPACK/framing layer; this constant documents the target order for
// integrators who need that level of precision.
var PseudoHeaderOrder = []string{
	":method",
	":authority",
	":scheme",
	":path",
}

// H2TransportConfig groups the tunable parameters for NewTransport.
type H2TransportConfig struct {
	// Descriptor selects the TLS fingerprint, SETTINGS tuple, and default
	// header template to emulate.
	Descriptor *emulation.Descriptor

	// Insecure disables certificate verification (RequestOptions.insecure).
	Insecure bool

	// MaxIdleConns, MaxIdleConnsPerHost, MaxConnsPerHost are pool tunables
	// (§4.D, honoured only for Transport configs).
	MaxIdleConns        int
	MaxIdleConnsPerHost int
	MaxConnsPerHost     int

	// IdleConnTimeout is the maximum time an idle connection (HTTP/1.1 or
	// HTTP/2) is kept alive. Defaults to 90 s.
	IdleConnTimeout time.Duration

	// ConnectTimeout bounds the raw TCP dial + TLS handshake.
	ConnectTimeout time.Duration

	// Proxy, if non-nil, routes the connection through a CONNECT (http/https)
	// or SOCKS5 tunnel before the uTLS handshake runs (see proxy.go).
	Proxy *url.URL
}

// RawDialer selects the raw TLS dial function for a descriptor/proxy/
// insecure combination: a direct uTLS handshake, or — when proxy is
// non-nil — a CONNECT/SOCKS5 tunnel followed by the uTLS handshake over it
// (see proxy.go). Exported so wsbridge can reuse the exact same dial
// selection NewTransport uses, keeping the WebSocket upgrade's TLS
// fingerprint consistent with HTTPS traffic from the same descriptor (§4.J).
func RawDialer(descriptor *emulation.Descriptor, proxy *url.URL, insecure bool) func(ctx context.Context, network, addr string) (net.Conn, error) {
	switch {
	case proxy != nil:
		return proxyDialTLS(proxy, descriptor.HelloID, insecure)
	case insecure:
		return UTLSDialerHTTP1Insecure(descriptor.HelloID)
	default:
		return UTLSDialerHTTP1(descriptor.HelloID)
	}
}

// NewTransport returns an http.RoundTripper that mimics cfg.Descriptor's
// browser as closely as possible within the constraints of the
// golang.org/x/net/http2 package:
//
//   - TLS handshake uses the descriptor's uTLS ClientHelloSpec (JA3/JA4 bypass).
//   - ALPN negotiation picks HTTP/1.1 or HTTP/2 exactly as a browser's does;
//     http2.ConfigureTransports wires the two together so h2 is used only
//     when the server actually negotiates it.
//   - SETTINGS_HEADER_TABLE_SIZE, SETTINGS_INITIAL_WINDOW_SIZE, the
//     connection-level WINDOW_UPDATE, and SETTINGS_MAX_HEADER_LIST_SIZE all
//     come from the descriptor's H2Settings.
//
// Note on pseudo-header ordering: the golang.org/x/net/http2 library does
// not expose an API for reordering pseudo-headers. PseudoHeaderOrder
// documents the target order; achieving exact wire-level fidelity requires
// a patched http2 package.
//
// The returned transport applies the descriptor's OrderedHeader (exact
// capitalisation; see header.OrderedHeader.ApplyToRequest on ordering) to
// every outgoing request before handing it off to the underlying transport.
func NewTransport(cfg H2TransportConfig) (http.RoundTripper, error) {
	if cfg.IdleConnTimeout == 0 {
		cfg.IdleConnTimeout = 90 * time.Second
	}
	if cfg.ConnectTimeout == 0 {
		cfg.ConnectTimeout = 30 * time.Second
	}

	connectTimeout := cfg.ConnectTimeout
	rawDial := RawDialer(cfg.Descriptor, cfg.Proxy, cfg.Insecure)
	dialTLS := func(ctx context.Context, network, addr string) (net.Conn, error) {
		ctx, cancel := context.WithTimeout(ctx, connectTimeout)
		defer cancel()
		return rawDial(ctx, network, addr)
	}

	h1 := &http.Transport{
		DialTLSContext:      dialTLS,
		MaxIdleConns:        cfg.MaxIdleConns,
		MaxIdleConnsPerHost: cfg.MaxIdleConnsPerHost,
		MaxConnsPerHost:     cfg.MaxConnsPerHost,
		IdleConnTimeout:     cfg.IdleConnTimeout,
		DisableCompression:  false,
	}

	h2t, err := http2.ConfigureTransports(h1)
	if err != nil {
		return nil, fmt.Errorf("client: configure http2 transport: %w", err)
	}

	settings := cfg.Descriptor.H2
	h2t.MaxDecoderHeaderTableSize = settings.HeaderTableSize
	h2t.MaxEncoderHeaderTableSize = settings.HeaderTableSize
	h2t.MaxHeaderListSize = settings.MaxHeaderListSize
	h1.HTTP2 = &http.HTTP2Config{
		MaxReceiveBufferPerStream:     int(settings.InitialWindowSize),
		MaxReceiveBufferPerConnection: int(settings.ConnWindowSize),
	}

	return &headerOverlayRoundTripper{inner: h1, defaults: cfg.Descriptor.Headers}, nil
}

// headerOverlayRoundTripper wraps an *http.Transport (already ALPN-wired for
// HTTP/2 via http2.ConfigureTransports) and applies an emulation profile's
// ordered headers to every request before forwarding it.
type headerOverlayRoundTripper struct {
	inner    *http.Transport
	defaults *header.OrderedHeader
}

// RoundTrip satisfies http.RoundTripper. It clones the incoming request,
// applies the profile's ordered headers (preserving exact capitalisation),
// and delegates to the underlying transport.
//
// Headers already present on the request are NOT discarded: the caller's own
// headers are layered on top of the defaults so per-request overrides (e.g.
// Authorization, Cookie) win. A default whose name matches a caller header
// (case-insensitively) is removed, so only the caller's values are sent.
func (t *headerOverlayRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	r := req.Clone(req.Context())

	if !defaultHeadersDisabled(r.Context()) {
		callerHeaders := r.Header
		t.defaults.ApplyToRequest(r)
		for key := range callerHeaders {
			canon := http.CanonicalHeaderKey(key)
			for dk := range r.Header {
				if http.CanonicalHeaderKey(dk) == canon {
					delete(r.Header, dk)
				}
			}
		}
		for key, vals := range callerHeaders {
			for _, v := range vals {
				r.Header[key] = append(r.Header[key], v)
			}
		}
	}

	return t.inner.RoundTrip(r)
}

type noDefaultHeadersKey struct{}

// WithoutDefaultHeaders marks ctx so the emulation profile's default ordered
// headers are skipped for requests built from it, leaving only the caller's
// own headers on the wire (RequestOptions.disable_default_headers, §4.H).
func WithoutDefaultHeaders(ctx context.Context) context.Context {
	return context.WithValue(ctx, noDefaultHeadersKey{}, true)
}

func defaultHeadersDisabled(ctx context.Context) bool {
	v, _ := ctx.Value(noDefaultHeadersKey{}).(bool)
	return v
}

// CloseIdleConnections forwards to the underlying transport so client.New
// callers (e.g. transport.Registry.Drop, ephemeral cache eviction) can drain
// pooled connections.
func (t *headerOverlayRoundTripper) CloseIdleConnections() {
	t.inner.CloseIdleConnections()
}
