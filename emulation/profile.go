// Package emulation resolves browser/OS profile strings into opaque
// emulation descriptors: a uTLS ClientHello fingerprint, an HTTP/2 SETTINGS
// tuple, and a default ordered header template. The profile database itself
// (which exact fingerprints exist for which browser builds) is treated as a
// hand-populated, opaque catalogue — generating it from a live browser corpus
// is explicitly out of scope.
package emulation

import (
	"sort"
	"strings"
	"sync"

	utls "github.com/refraction-networking/utls"

	"github.com/firasghr/wreqbridge/header"
)

// DefaultProfile and DefaultOS are used whenever a caller supplies an
// unrecognised or empty profile/OS string (§4.A: "no error surfaced for
// unknown names").
const (
	DefaultProfile = "chrome_142"
	DefaultOS      = "macos"
)

// H2Settings bundles the HTTP/2 SETTINGS-frame values a profile advertises.
type H2Settings struct {
	// HeaderTableSize is sent as SETTINGS_HEADER_TABLE_SIZE.
	HeaderTableSize uint32
	// InitialWindowSize is sent as SETTINGS_INITIAL_WINDOW_SIZE (stream-level).
	InitialWindowSize int32
	// ConnWindowSize is the connection-level WINDOW_UPDATE increment sent
	// immediately after the client preface.
	ConnWindowSize int32
	// MaxHeaderListSize is sent as SETTINGS_MAX_HEADER_LIST_SIZE.
	MaxHeaderListSize uint32
}

// Descriptor is the opaque emulation bundle produced by Resolve. Callers
// (client.New, wsbridge.Dial) never need to know which concrete browser
// build a Descriptor represents; they only need the fields below.
type Descriptor struct {
	// Profile and OS are the resolved (possibly defaulted) identifiers.
	Profile string
	OS      string

	// HelloID selects the uTLS ClientHello fingerprint.
	HelloID utls.ClientHelloID

	// H2 carries the HTTP/2 SETTINGS tuple for this profile.
	H2 H2Settings

	// Headers is the default ordered header template for plain HTTP
	// requests and WebSocket upgrades (§4.I). Callers overlay their own
	// headers on top; Clone before mutating.
	Headers *header.OrderedHeader

	// UserAgent is the profile's default User-Agent string.
	UserAgent string
}

type template struct {
	helloID utls.ClientHelloID
	h2      H2Settings
	headers func(os string) *header.OrderedHeader
}

var (
	initOnce sync.Once
	profiles map[string]template
	osNames  = []string{"windows", "macos", "linux"}
)

func platformToken(os string) string {
	switch os {
	case "windows":
		return `"Windows"`
	case "linux":
		return `"Linux"`
	default:
		return `"macOS"`
	}
}

func osUAFragment(os string) string {
	switch os {
	case "windows":
		return "Windows NT 10.0; Win64; x64"
	case "linux":
		return "X11; Linux x86_64"
	default:
		return "Macintosh; Intel Mac OS X 10_15_7"
	}
}

func chromeHeaders(uaVersion string) func(string) *header.OrderedHeader {
	return func(os string) *header.OrderedHeader {
		h := &header.OrderedHeader{}
		h.Add("sec-ch-ua", `"Not_A Brand";v="8", "Chromium";v="`+uaVersion+`", "Google Chrome";v="`+uaVersion+`"`)
		h.Add("sec-ch-ua-mobile", "?0")
		h.Add("sec-ch-ua-platform", platformToken(os))
		h.Add("Upgrade-Insecure-Requests", "1")
		h.Add("User-Agent", "Mozilla/5.0 ("+osUAFragment(os)+") AppleWebKit/537.36 (KHTML, like Gecko) Chrome/"+uaVersion+".0.0.0 Safari/537.36")
		h.Add("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,image/apng,*/*;q=0.8,application/signed-exchange;v=b3;q=0.7")
		h.Add("sec-fetch-site", "none")
		h.Add("sec-fetch-mode", "navigate")
		h.Add("sec-fetch-user", "?1")
		h.Add("sec-fetch-dest", "document")
		h.Add("accept-encoding", "gzip, deflate, br")
		h.Add("accept-language", "en-US,en;q=0.9")
		return h
	}
}

func firefoxHeaders() func(string) *header.OrderedHeader {
	return func(os string) *header.OrderedHeader {
		h := &header.OrderedHeader{}
		h.Add("User-Agent", "Mozilla/5.0 ("+osUAFragment(os)+"; rv:121.0) Gecko/20100101 Firefox/121.0")
		h.Add("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,*/*;q=0.8")
		h.Add("Accept-Language", "en-US,en;q=0.5")
		h.Add("Accept-Encoding", "gzip, deflate, br")
		h.Add("Upgrade-Insecure-Requests", "1")
		h.Add("Sec-Fetch-Dest", "document")
		h.Add("Sec-Fetch-Mode", "navigate")
		h.Add("Sec-Fetch-Site", "none")
		h.Add("Sec-Fetch-User", "?1")
		return h
	}
}

// chrome120H2 captures Chrome 120's SETTINGS frame, verified against
// Wireshark traces: a raised header table size, an enlarged stream window,
// a matching connection-level WINDOW_UPDATE, and a 256 KiB header cap.
var chrome120H2 = H2Settings{
	HeaderTableSize:   65536,
	InitialWindowSize: 6291456,
	ConnWindowSize:    15663105,
	MaxHeaderListSize: 262144,
}

func initProfiles() {
	profiles = map[string]template{
		"chrome_120": {
			helloID: utls.HelloChrome_120,
			h2:      chrome120H2,
			headers: chromeHeaders("120"),
		},
		"chrome_131": {
			helloID: utls.HelloChrome_131,
			h2:      chrome120H2,
			headers: chromeHeaders("131"),
		},
		"chrome_142": {
			helloID: utls.HelloChrome_Auto,
			h2:      chrome120H2,
			headers: chromeHeaders("142"),
		},
		"firefox_121": {
			helloID: utls.HelloFirefox_105,
			h2: H2Settings{
				HeaderTableSize:   65536,
				InitialWindowSize: 131072,
				ConnWindowSize:    12517377,
				MaxHeaderListSize: 393216,
			},
			headers: firefoxHeaders(),
		},
	}
}

func table() map[string]template {
	initOnce.Do(initProfiles)
	return profiles
}

// Resolve maps a profile/OS string pair to an opaque Descriptor. Unknown or
// empty inputs fall back to DefaultProfile/DefaultOS without error (§4.A).
func Resolve(profile, os string) *Descriptor {
	t := table()

	profile = strings.TrimSpace(profile)
	tmpl, ok := t[profile]
	if !ok {
		profile = DefaultProfile
		tmpl = t[DefaultProfile]
	}

	os = strings.TrimSpace(strings.ToLower(os))
	if !validOS(os) {
		os = DefaultOS
	}

	h := tmpl.headers(os)
	return &Descriptor{
		Profile:   profile,
		OS:        os,
		HelloID:   tmpl.helloID,
		H2:        tmpl.h2,
		Headers:   h,
		UserAgent: h.Get("User-Agent"),
	}
}

func validOS(os string) bool {
	for _, n := range osNames {
		if n == os {
			return true
		}
	}
	return false
}

// Profiles returns the sorted list of known profile identifiers, for
// getProfiles() (§6).
func Profiles() []string {
	t := table()
	out := make([]string, 0, len(t))
	for k := range t {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// OperatingSystems returns the sorted list of known OS identifiers, for
// getOperatingSystems() (§6).
func OperatingSystems() []string {
	out := make([]string, len(osNames))
	copy(out, osNames)
	sort.Strings(out)
	return out
}
