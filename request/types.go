package request

import (
	"io"

	"github.com/firasghr/wreqbridge/header"
)

// RedirectPolicy is a closed sum type, never a magic string, mapped onto
// http.Client.CheckRedirect (§4.H.1, §9).
type RedirectPolicy int

const (
	// RedirectFollow follows redirects automatically, up to 10 hops; past
	// that the last redirect response is returned as-is (see
	// checkRedirectFor).
	RedirectFollow RedirectPolicy = iota
	// RedirectManual stops at the first redirect response and returns it to
	// the caller unfollowed, via http.ErrUseLastResponse.
	RedirectManual
	// RedirectError fails the request with errs.RedirectDisabled the moment
	// a redirect response is encountered.
	RedirectError
)

// defaultTimeoutMS is RequestOptions.timeout_ms's default (§3).
const defaultTimeoutMS = 30_000

// Options mirrors RequestOptions (§3). Zero values for numeric tunables mean
// "use the default": normalizeOptions applies TimeoutMS's, and client.New
// applies the pool and connect/read timeout defaults when a fresh
// per-request client is built. Requests served by a transport_id or by the
// ephemeral cache do not use the pool and connect/read timeout fields.
type Options struct {
	URL    string
	Method string

	Emulation string
	OS        string
	Headers   *header.OrderedHeader
	Body      io.Reader

	Proxy     string
	TimeoutMS int64
	Redirect  RedirectPolicy

	SessionID             string
	Ephemeral             bool
	DisableDefaultHeaders bool
	Insecure              bool
	TransportID           string

	PoolIdleTimeoutMS  int64
	PoolMaxIdlePerHost int
	PoolMaxSize        int
	ConnectTimeoutMS   int64
	ReadTimeoutMS      int64
}

func normalizeOptions(o Options) Options {
	if o.TimeoutMS == 0 {
		o.TimeoutMS = defaultTimeoutMS
	}
	return o
}

// Response mirrors the Response data model and the host-facing shape from
// §3/§6. Exactly one of InlineBytes/BodyHandle is populated, unless
// AllowsBody is false, in which case neither is (§3 invariant 1).
type Response struct {
	Status        int
	FinalURL      string
	Headers       [][2]string
	Cookies       [][2]string
	ContentLength int64

	AllowsBody  bool
	InlineBytes []byte
	HasHandle   bool
	BodyHandle  uint64
}
