package wsbridge

import (
	"strings"

	"github.com/firasghr/wreqbridge/header"
)

// TitleCaseHeaders is the fixed, fingerprint-sensitive header list an
// HTTP/1.1 WebSocket upgrade must send in Title-Case (§4.I): servers that
// treat lowercase names as non-browser traffic reject the connection
// otherwise.
var TitleCaseHeaders = []string{
	"Host",
	"Connection",
	"Pragma",
	"Cache-Control",
	"User-Agent",
	"Upgrade",
	"Origin",
	"Sec-WebSocket-Version",
	"Accept-Encoding",
	"Accept-Language",
	"Accept",
	"Cookie",
	"Sec-WebSocket-Key",
	"Sec-WebSocket-Extensions",
	"Sec-WebSocket-Protocol",
	"Sec-Fetch-Dest",
	"Sec-Fetch-Mode",
	"Sec-Fetch-Site",
	"Sec-Fetch-User",
}

func titleCaseNameFor(key string) (string, bool) {
	for _, n := range TitleCaseHeaders {
		if strings.EqualFold(n, key) {
			return n, true
		}
	}
	return "", false
}

// buildUpgradeHeader assembles the http.Header passed to
// websocket.Dialer.DialContext. Keys matching TitleCaseHeaders are
// normalised to their canonical Title-Case spelling regardless of how the
// caller supplied them; every other key keeps the caller's exact casing,
// bypassing http.Header's own canonicalisation the same way
// header.OrderedHeader.ApplyToRequest does for plain requests. cookieHeader,
// if non-empty, replaces any Cookie entry the caller supplied (callers merge
// session jar cookies into it beforehand via jar.MergeIntoCookieHeader).
//
// gorilla/websocket writes the returned map's keys to the wire verbatim (it
// assigns req.Header[k] = vs directly rather than calling Header.Add), so
// the casing set here survives onto the connection.
func buildUpgradeHeader(defaults, user *header.OrderedHeader, cookieHeader string) map[string][]string {
	out := make(map[string][]string)

	apply := func(h *header.OrderedHeader) {
		if h == nil {
			return
		}
		for _, p := range h.Pairs() {
			key, value := p[0], p[1]
			if strings.EqualFold(key, "Cookie") {
				continue
			}
			if canon, ok := titleCaseNameFor(key); ok {
				key = canon
			}
			out[key] = append(out[key], value)
		}
	}

	apply(defaults)
	apply(user)

	if cookieHeader != "" {
		out["Cookie"] = []string{cookieHeader}
	}

	return out
}
