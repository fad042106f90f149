package client

import (
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/firasghr/wreqbridge/emulation"
)

// Purpose distinguishes a client built for a long-lived Session/Transport
// from one built for a single ephemeral request (§4.D).
type Purpose int

const (
	// PurposeSession builds a client for the Session or Transport Registry:
	// pool tunables are honoured as given.
	PurposeSession Purpose = iota
	// PurposeEphemeral builds a client for the Ephemeral Client Cache.
	// pool_max_idle_per_host is forced to 0 regardless of the caller's
	// TransportConfig (§4.D: "Ephemeral clients never keep an idle
	// connection alive past the request that created them").
	PurposeEphemeral
)

// SessionConfig is the structural cache key shared by the Session Registry
// and the Ephemeral Client Cache. It is a plain comparable struct — never a
// serialised label — so two RequestOptions that resolve to the same
// emulation profile, OS, proxy, and insecure flag compare equal and share a
// cached client (§9: "client cache keying must be structural, not a
// serialized label string").
type SessionConfig struct {
	Emulation string
	OS        string
	Proxy     string
	Insecure  bool
}

// TransportConfig extends SessionConfig with the pool and timeout tunables
// accepted by createTransport (§6) and RequestOptions (§3).
type TransportConfig struct {
	SessionConfig

	PoolIdleTimeoutMS  int64
	PoolMaxIdlePerHost int
	PoolMaxSize        int
	ConnectTimeoutMS   int64
	ReadTimeoutMS      int64
}

// defaultTransportConfig fills in the pool/timeout defaults used whenever a
// caller omits a createTransport field (§6).
func defaultTransportConfig(cfg TransportConfig) TransportConfig {
	if cfg.PoolIdleTimeoutMS == 0 {
		cfg.PoolIdleTimeoutMS = 90_000
	}
	if cfg.PoolMaxIdlePerHost == 0 {
		cfg.PoolMaxIdlePerHost = 100
	}
	if cfg.PoolMaxSize == 0 {
		cfg.PoolMaxSize = 200
	}
	if cfg.ConnectTimeoutMS == 0 {
		cfg.ConnectTimeoutMS = 30_000
	}
	if cfg.ReadTimeoutMS == 0 {
		cfg.ReadTimeoutMS = 30_000
	}
	return cfg
}

// New builds an *http.Client emulating cfg.Emulation/cfg.OS, dialed through
// cfg.Proxy (if set), for the given Purpose (§4.D).
//
// New never sets Client.Jar: cookie scoping is session-bound, and a single
// shared Transport/Ephemeral client may back many sessions at once, so no
// single fixed jar can be correct here. The Request Pipeline (package
// request) reads and writes cookies explicitly via the resolved session jar
// instead (§4.C, §9).
func New(cfg TransportConfig, purpose Purpose) (*http.Client, error) {
	cfg = defaultTransportConfig(cfg)

	descriptor := emulation.Resolve(cfg.Emulation, cfg.OS)

	maxIdlePerHost := cfg.PoolMaxIdlePerHost
	if purpose == PurposeEphemeral {
		maxIdlePerHost = 0
	}

	var proxyURL *url.URL
	if cfg.Proxy != "" {
		var err error
		proxyURL, err = url.Parse(cfg.Proxy)
		if err != nil {
			return nil, fmt.Errorf("client build failed for profile %q/%q: parse proxy %q: %w", cfg.Emulation, cfg.OS, cfg.Proxy, err)
		}
	}

	transportCfg := H2TransportConfig{
		Descriptor:          descriptor,
		Insecure:            cfg.Insecure,
		MaxIdleConns:        cfg.PoolMaxSize,
		MaxIdleConnsPerHost: maxIdlePerHost,
		MaxConnsPerHost:     cfg.PoolMaxSize,
		IdleConnTimeout:     time.Duration(cfg.PoolIdleTimeoutMS) * time.Millisecond,
		ConnectTimeout:      time.Duration(cfg.ConnectTimeoutMS) * time.Millisecond,
		Proxy:               proxyURL,
	}

	rt, err := NewTransport(transportCfg)
	if err != nil {
		return nil, fmt.Errorf("client build failed for profile %q/%q: %w", cfg.Emulation, cfg.OS, err)
	}

	return &http.Client{
		Transport: rt,
		Timeout:   time.Duration(cfg.ReadTimeoutMS) * time.Millisecond,
	}, nil
}

// Descriptor resolves the emulation descriptor a TransportConfig/SessionConfig
// would use, for callers (wsbridge.Dial) that need the header template and
// HelloID directly rather than a built *http.Client.
func Descriptor(cfg SessionConfig) *emulation.Descriptor {
	return emulation.Resolve(cfg.Emulation, cfg.OS)
}
