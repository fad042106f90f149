// Package jar implements the per-session cookie store (SPEC_FULL.md §C).
//
// Unlike http.Client.Jar, a jar.Jar is never attached to a shared Transport
// or Ephemeral client: those are reused across many sessions/requests and
// cannot carry one fixed jar. Instead the Request Pipeline (package request)
// resolves a session's Jar explicitly, reads it to build the outgoing
// Cookie header, and feeds Set-Cookie response headers back into it after
// each response (§9).
package jar

import (
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"sync"

	"golang.org/x/net/publicsuffix"
)

// Jar is a thread-safe, clearable cookie store bound to one session_id.
// Grounded on client/client.go's newCookieJar, extended with publicsuffix
// (for correct domain-matching of cookies set by subdomains) and a Clear
// operation the stdlib jar does not expose.
type Jar struct {
	mu    sync.RWMutex
	inner *cookiejar.Jar
}

// New builds an empty Jar.
func New() (*Jar, error) {
	inner, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, err
	}
	return &Jar{inner: inner}, nil
}

// SetCookies records cookies received in a response from u (satisfies
// http.CookieJar).
func (j *Jar) SetCookies(u *url.URL, cookies []*http.Cookie) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.inner.SetCookies(u, cookies)
}

// Cookies returns the cookies to send in a request to u, in the jar's
// internal order (satisfies http.CookieJar).
func (j *Jar) Cookies(u *url.URL) []*http.Cookie {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.inner.Cookies(u)
}

// Bundle renders the cookies applicable to u as a single Cookie header
// value ("a=1; b=2"), or "" if the jar holds nothing for u.
func (j *Jar) Bundle(u *url.URL) string {
	cookies := j.Cookies(u)
	if len(cookies) == 0 {
		return ""
	}
	parts := make([]string, len(cookies))
	for i, c := range cookies {
		parts[i] = c.Name + "=" + c.Value
	}
	return strings.Join(parts, "; ")
}

// Clear discards every cookie in the jar (§4.C). net/http/cookiejar.Jar has
// no eviction API, so Clear swaps in a fresh empty jar under the lock.
func (j *Jar) Clear() {
	inner, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		// cookiejar.New only fails if Options is malformed; our Options
		// literal never is, so this is unreachable in practice. Fall back
		// to a nil-safe no-op rather than panicking a live session.
		return
	}
	j.mu.Lock()
	j.inner = inner
	j.mu.Unlock()
}

// MergeIntoCookieHeader combines a jar Bundle with a caller-supplied Cookie
// header value, per the WebSocket Subsystem's cookie-coalescing rule
// (§4.I.2): the jar's cookies come first, the caller's own Cookie header
// segments are appended, both trimmed and joined by "; ".
func MergeIntoCookieHeader(jarBundle, callerCookie string) string {
	var segments []string
	if jarBundle != "" {
		segments = append(segments, strings.Split(jarBundle, ";")...)
	}
	if callerCookie != "" {
		segments = append(segments, strings.Split(callerCookie, ";")...)
	}
	for i, s := range segments {
		segments[i] = strings.TrimSpace(s)
	}
	out := segments[:0]
	for _, s := range segments {
		if s != "" {
			out = append(out, s)
		}
	}
	return strings.Join(out, "; ")
}
