// Package request implements the Request Pipeline (SPEC_FULL.md §H): client
// and jar resolution, method normalization, header/cookie/body assembly,
// redirect policy, cancellation, and response materialization (inline vs.
// streamed bodies).
package request

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/firasghr/wreqbridge/bodystore"
	"github.com/firasghr/wreqbridge/cancel"
	"github.com/firasghr/wreqbridge/client"
	"github.com/firasghr/wreqbridge/ephemeral"
	"github.com/firasghr/wreqbridge/errs"
	"github.com/firasghr/wreqbridge/jar"
	"github.com/firasghr/wreqbridge/metrics"
	"github.com/firasghr/wreqbridge/session"
	"github.com/firasghr/wreqbridge/transport"
)

// knownMethods are the verbs the pipeline recognises directly without
// syntax validation (§4.H).
var knownMethods = map[string]bool{
	http.MethodGet:     true,
	http.MethodPost:    true,
	http.MethodPut:     true,
	http.MethodDelete:  true,
	http.MethodPatch:   true,
	http.MethodHead:    true,
	http.MethodOptions: true,
	http.MethodConnect: true,
	http.MethodTrace:   true,
}

// statusesWithoutBody are response statuses that never carry a body,
// regardless of Content-Length (§4.H step 5).
var statusesWithoutBody = map[int]bool{
	http.StatusSwitchingProtocols: true, // 101
	http.StatusNoContent:          true, // 204
	http.StatusResetContent:       true, // 205
	http.StatusNotModified:        true, // 304
}

// Pipeline wires together the registries a request resolves against.
type Pipeline struct {
	Transports TransportResolver
	Ephemeral  *ephemeral.Cache
	Sessions   *session.Registry
	Bodies     *bodystore.Store
	Cancels    *cancel.Registry

	// Metrics, when non-nil, is updated once per Execute call (§O): total
	// requests, inline/streamed materialisation, failures, and
	// cancellations. Left nil in tests that don't care about counters.
	Metrics *metrics.Metrics
}

// TransportResolver is the subset of *transport.Registry the pipeline needs,
// kept as an interface so tests can substitute a fake without constructing a
// real registry. Its method signature matches transport.Registry.Get
// exactly, since Go requires identical signatures (not merely structurally
// equivalent ones) for interface satisfaction.
type TransportResolver interface {
	Get(id string) (*transport.Entry, bool)
}

// New builds a Pipeline from its constituent registries/caches.
func New(transports TransportResolver, eph *ephemeral.Cache, sessions *session.Registry, bodies *bodystore.Store, cancels *cancel.Registry) *Pipeline {
	return &Pipeline{Transports: transports, Ephemeral: eph, Sessions: sessions, Bodies: bodies, Cancels: cancels}
}

// Execute runs one request end-to-end per §4.H. requestID is the caller's
// identifier for cancelRequest; cancellable controls whether the request is
// registered in the Cancellation Registry at all (a request the caller never
// intends to cancel need not pay for the registration).
func (p *Pipeline) Execute(ctx context.Context, opts Options, requestID uint64, cancellable bool) (resp *Response, err error) {
	if p.Metrics != nil {
		p.Metrics.IncrementTotal()
		defer func() {
			switch {
			case err != nil && errs.KindOf(err) == errs.RequestAborted:
				p.Metrics.IncrementCancelled()
			case err != nil:
				p.Metrics.IncrementFailed()
			case resp != nil && resp.HasHandle:
				p.Metrics.IncrementStreamed()
			case resp != nil:
				p.Metrics.IncrementInline()
			}
		}()
	}

	opts = normalizeOptions(opts)

	method, err := normalizeMethod(opts.Method)
	if err != nil {
		return nil, err
	}

	httpClient, j, err := p.resolveClient(opts)
	if err != nil {
		return nil, err
	}

	parsedURL, err := url.Parse(opts.URL)
	if err != nil {
		return nil, errs.New(errs.SendFailed, fmt.Sprintf("%s %s: invalid URL", method, opts.URL), err)
	}

	req, err := http.NewRequest(method, opts.URL, opts.Body)
	if err != nil {
		return nil, errs.New(errs.SendFailed, fmt.Sprintf("%s %s: build request", method, opts.URL), err)
	}

	applyHeaders(req, opts, j, parsedURL)

	reqCtx, cancelFn := context.WithTimeout(ctx, time.Duration(opts.TimeoutMS)*time.Millisecond)
	defer cancelFn()
	if opts.DisableDefaultHeaders {
		reqCtx = client.WithoutDefaultHeaders(reqCtx)
	}

	reqCtx, cancelToken := context.WithCancel(reqCtx)
	defer cancelToken()
	if cancellable {
		p.Cancels.Register(requestID, cancelToken)
		defer p.Cancels.Remove(requestID)
	}

	req = req.WithContext(reqCtx)

	doClient := &http.Client{
		Transport:     httpClient.Transport,
		Timeout:       httpClient.Timeout,
		CheckRedirect: checkRedirectFor(opts.Redirect),
	}

	httpResp, err := doClient.Do(req)
	if err != nil {
		if reqCtx.Err() != nil {
			return nil, errs.New(errs.RequestAborted, fmt.Sprintf("%s %s aborted", method, opts.URL), reqCtx.Err())
		}
		var kindErr *errs.Error
		if asErrs(err, &kindErr) {
			return nil, kindErr
		}
		return nil, errs.New(errs.SendFailed, fmt.Sprintf("%s %s", method, opts.URL), err)
	}

	if j != nil {
		j.SetCookies(httpResp.Request.URL, httpResp.Cookies())
	}

	return materializeResponse(httpResp, method, p.Bodies)
}

// resolveClient implements the client/jar resolution priority from §4.H:
// transport_id first, then the ephemeral cache, then a fresh per-request
// client. Ephemeral requests never touch the Session Registry (§3 invariant
// 4), so j is nil whenever opts.Ephemeral.
func (p *Pipeline) resolveClient(opts Options) (*http.Client, *jar.Jar, error) {
	if opts.TransportID != "" {
		entry, ok := p.Transports.Get(opts.TransportID)
		if !ok {
			return nil, nil, errs.New(errs.TransportNotFound, "transport "+opts.TransportID+" not found", nil)
		}
		j, err := p.jarForRequest(opts)
		if err != nil {
			return nil, nil, err
		}
		return entry.Client, j, nil
	}

	sessCfg := client.SessionConfig{Emulation: opts.Emulation, OS: opts.OS, Proxy: opts.Proxy, Insecure: opts.Insecure}

	if opts.Ephemeral {
		c, err := p.Ephemeral.ClientFor(sessCfg)
		if err != nil {
			return nil, nil, errs.New(errs.ClientBuild, "build ephemeral client", err)
		}
		return c, nil, nil
	}

	c, err := client.New(client.TransportConfig{
		SessionConfig:      sessCfg,
		PoolIdleTimeoutMS:  opts.PoolIdleTimeoutMS,
		PoolMaxIdlePerHost: opts.PoolMaxIdlePerHost,
		PoolMaxSize:        opts.PoolMaxSize,
		ConnectTimeoutMS:   opts.ConnectTimeoutMS,
		ReadTimeoutMS:      opts.ReadTimeoutMS,
	}, client.PurposeSession)
	if err != nil {
		return nil, nil, errs.New(errs.ClientBuild, "build per-request client", err)
	}
	j, err := p.jarForRequest(opts)
	if err != nil {
		return nil, nil, err
	}
	return c, j, nil
}

// jarForRequest resolves the session jar for a non-ephemeral request. A
// whitespace-only session_id is treated as absent and assigned a fresh
// UUID (§9 Open Question 1); the original value is not otherwise
// recoverable, which is the documented trade-off.
func (p *Pipeline) jarForRequest(opts Options) (*jar.Jar, error) {
	if opts.Ephemeral {
		return nil, nil
	}
	sessionID := strings.TrimSpace(opts.SessionID)
	if sessionID == "" {
		sessionID = uuid.NewString()
	}
	return p.Sessions.JarFor(sessionID)
}

// normalizeMethod implements §4.H's method normalization: empty means GET,
// recognised verbs are used directly, and any other syntactically valid
// HTTP token is passed through verbatim. Anything else is bad-method.
func normalizeMethod(m string) (string, error) {
	if m == "" {
		return http.MethodGet, nil
	}
	upper := strings.ToUpper(m)
	if knownMethods[upper] {
		return upper, nil
	}
	if isValidToken(m) {
		return m, nil
	}
	return "", errs.New(errs.BadMethod, fmt.Sprintf("invalid HTTP method %q", m), nil)
}

// isValidToken reports whether s is a valid HTTP token (RFC 7230 §3.2.6):
// one or more tchar characters, no separators or whitespace.
func isValidToken(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if !isTChar(r) {
			return false
		}
	}
	return true
}

func isTChar(r rune) bool {
	switch {
	case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		return true
	}
	switch r {
	case '!', '#', '$', '%', '&', '\'', '*', '+', '-', '.', '^', '_', '`', '|', '~':
		return true
	}
	return false
}

// applyHeaders writes opts.Headers onto req (preserving name casing; see
// header.OrderedHeader.ApplyToRequest on ordering) and
// overlays the resolved session jar's cookies, merged with any caller
// Cookie header per the same coalescing rule the WebSocket Subsystem uses
// (§4.I.2, §9).
func applyHeaders(req *http.Request, opts Options, j *jar.Jar, target *url.URL) {
	if opts.Headers != nil {
		opts.Headers.ApplyToRequest(req)
	}

	if j == nil {
		return
	}
	bundle := j.Bundle(target)
	if bundle == "" {
		return
	}
	caller := req.Header.Get("Cookie")
	req.Header.Set("Cookie", jar.MergeIntoCookieHeader(bundle, caller))
}

// materializeResponse builds a Response from an *http.Response, inlining
// bodies up to bodystore.InlineBodyMax and streaming the rest through a
// bodystore handle (§4.H step 5).
func materializeResponse(resp *http.Response, method string, bodies *bodystore.Store) (*Response, error) {
	out := &Response{
		Status:        resp.StatusCode,
		ContentLength: resp.ContentLength,
	}
	if resp.Request != nil && resp.Request.URL != nil {
		out.FinalURL = resp.Request.URL.String()
	}
	out.Headers = sortedHeaderPairs(resp.Header)
	out.Cookies = cookiePairs(resp.Cookies())

	out.AllowsBody = method != http.MethodHead && !statusesWithoutBody[resp.StatusCode]
	if !out.AllowsBody {
		_ = resp.Body.Close()
		out.ContentLength = 0
		return out, nil
	}

	buf := make([]byte, bodystore.InlineBodyMax+1)
	n, err := io.ReadFull(resp.Body, buf)
	switch {
	case err == io.ErrUnexpectedEOF || err == io.EOF:
		// Body fully consumed within the inline threshold.
		out.InlineBytes = buf[:n]
		out.ContentLength = int64(n)
		_ = resp.Body.Close()
	case err == nil:
		// Body exceeds the inline threshold; hand the remainder off to the
		// Body Stream Store behind a reader that first replays what we
		// already buffered.
		rc := &prefixedBody{prefix: bytes.NewReader(buf[:n]), rest: resp.Body}
		out.HasHandle = true
		out.BodyHandle = bodies.Store(rc)
	default:
		_ = resp.Body.Close()
		return nil, errs.New(errs.SendFailed, "read response body", err)
	}

	return out, nil
}

// prefixedBody replays a buffered prefix before falling through to the
// underlying body, so peeking at the first InlineBodyMax+1 bytes to decide
// inline-vs-streamed never loses data.
type prefixedBody struct {
	prefix *bytes.Reader
	rest   io.ReadCloser
}

func (p *prefixedBody) Read(b []byte) (int, error) {
	if p.prefix.Len() > 0 {
		return p.prefix.Read(b)
	}
	return p.rest.Read(b)
}

func (p *prefixedBody) Close() error { return p.rest.Close() }

func sortedHeaderPairs(h http.Header) [][2]string {
	keys := make([]string, 0, len(h))
	for k := range h {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var out [][2]string
	for _, k := range keys {
		for _, v := range h[k] {
			out = append(out, [2]string{k, v})
		}
	}
	return out
}

func cookiePairs(cookies []*http.Cookie) [][2]string {
	out := make([][2]string, len(cookies))
	for i, c := range cookies {
		out[i] = [2]string{c.Name, c.Value}
	}
	return out
}

// asErrs reports whether err is (or wraps) an *errs.Error, writing it into
// *target on success. Implemented locally to avoid importing errors.As
// solely for one call site.
func asErrs(err error, target **errs.Error) bool {
	for err != nil {
		if e, ok := err.(*errs.Error); ok {
			*target = e
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}
