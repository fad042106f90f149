// Package header provides an order- and case-preserving HTTP header list.
//
// Anti-bot fingerprinting inspects both the exact capitalisation of header
// names (e.g. "sec-ch-ua-platform" vs "Sec-Ch-Ua-Platform") and their
// insertion order on the wire. The standard library's http.Header is a
// map[string][]string keyed by the canonical form, so it cannot reproduce
// either signal. OrderedHeader is a slice-backed companion type used
// wherever emulated traffic needs browser-exact header framing: plain HTTP
// requests, HTTP/2 requests, and WebSocket upgrade requests alike.
package header

import "net/http"

// entry stores a single header key/value pair with its original casing.
type entry struct {
	key   string
	value string
}

// OrderedHeader preserves the exact capitalisation and insertion order of a
// sequence of HTTP headers, including duplicate names.
//
// OrderedHeader is NOT safe for concurrent use without external
// synchronisation: callers build one per request (or per WebSocket upgrade)
// before handing it to a single goroutine.
type OrderedHeader struct {
	entries []entry
}

// Add appends key/value to the header list, preserving the exact casing of
// key. Multiple calls with the same key produce multiple entries
// (equivalent to http.Header.Add).
func (h *OrderedHeader) Add(key, value string) {
	h.entries = append(h.entries, entry{key: key, value: value})
}

// Set replaces the first entry whose key matches key (case-insensitively)
// with the new value and removes any subsequent duplicates. If no entry with
// that key exists, Set behaves like Add. The canonical casing of the
// surviving entry is updated to key.
func (h *OrderedHeader) Set(key, value string) {
	canon := http.CanonicalHeaderKey(key)
	replaced := false
	out := h.entries[:0]
	for _, e := range h.entries {
		if http.CanonicalHeaderKey(e.key) == canon {
			if !replaced {
				out = append(out, entry{key: key, value: value})
				replaced = true
			}
			continue
		}
		out = append(out, e)
	}
	if !replaced {
		out = append(out, entry{key: key, value: value})
	}
	h.entries = out
}

// Del removes all entries whose key matches key (case-insensitively).
func (h *OrderedHeader) Del(key string) {
	canon := http.CanonicalHeaderKey(key)
	out := h.entries[:0]
	for _, e := range h.entries {
		if http.CanonicalHeaderKey(e.key) != canon {
			out = append(out, e)
		}
	}
	h.entries = out
}

// Get returns the value of the first entry whose key matches key
// (case-insensitively), or an empty string if no such entry exists.
func (h *OrderedHeader) Get(key string) string {
	canon := http.CanonicalHeaderKey(key)
	for _, e := range h.entries {
		if http.CanonicalHeaderKey(e.key) == canon {
			return e.value
		}
	}
	return ""
}

// Has reports whether any entry matches key (case-insensitively).
func (h *OrderedHeader) Has(key string) bool {
	canon := http.CanonicalHeaderKey(key)
	for _, e := range h.entries {
		if http.CanonicalHeaderKey(e.key) == canon {
			return true
		}
	}
	return false
}

// Len returns the number of header entries, including duplicates.
func (h *OrderedHeader) Len() int { return len(h.entries) }

// Clone returns a deep copy of the receiver. A nil receiver clones to an
// empty, non-nil OrderedHeader.
func (h *OrderedHeader) Clone() *OrderedHeader {
	if h == nil {
		return &OrderedHeader{}
	}
	c := &OrderedHeader{entries: make([]entry, len(h.entries))}
	copy(c.entries, h.entries)
	return c
}

// Pairs returns the entries as ordered (name, value) pairs, e.g. for
// returning a Response's header list to the host (§6: "headers (array of
// [k,v])").
func (h *OrderedHeader) Pairs() [][2]string {
	out := make([][2]string, len(h.entries))
	for i, e := range h.entries {
		out[i] = [2]string{e.key, e.value}
	}
	return out
}

// ApplyToRequest writes every entry in h into req.Header, preserving the
// exact key casing by bypassing http.Header's canonical key normalisation
// and writing directly into the underlying map. Values of a repeated name
// keep their relative order, but the order of distinct names is not kept:
// http.Header is a map, and net/http chooses the order in which its keys
// are written. Existing headers on req are discarded.
func (h *OrderedHeader) ApplyToRequest(req *http.Request) {
	req.Header = make(http.Header, len(h.entries))
	for _, e := range h.entries {
		req.Header[e.key] = append(req.Header[e.key], e.value)
	}
}

// MergeOnto overlays h onto an existing http.Header, preserving h's exact
// casing for the keys it introduces while leaving unrelated header map
// entries alone. Values for a key already present in dst are appended after
// dst's own values.
func (h *OrderedHeader) MergeOnto(dst http.Header) {
	for _, e := range h.entries {
		dst[e.key] = append(dst[e.key], e.value)
	}
}

// FromPairs builds an OrderedHeader from a sequence of (name, value) pairs,
// e.g. the ordered headers supplied in a host's RequestOptions (§3).
func FromPairs(pairs [][2]string) *OrderedHeader {
	h := &OrderedHeader{entries: make([]entry, 0, len(pairs))}
	for _, p := range pairs {
		h.Add(p[0], p[1])
	}
	return h
}
