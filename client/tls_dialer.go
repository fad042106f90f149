// Package client builds emulating HTTP clients: the TLS/HTTP2 fingerprint
// layer, header overlay, and pool-tunable client factory described by
// SPEC_FULL.md §D.
package client

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"

	utls "github.com/refraction-networking/utls"
)

// UTLSDialer returns a DialTLSContext-compatible function that performs the
// TLS handshake using the uTLS library, impersonating the browser
// fingerprint described by helloID.
//
// The returned dialer is safe for concurrent use and has the signature of an
// http2.Transport.DialTLSContext field; http.Transport.DialTLSContext takes
// no *tls.Config, so it needs a wrapper (see UTLSDialerHTTP1).
//
// The dialer applies the full ClientHelloSpec associated with helloID,
// including GREASE values, cipher-suite ordering, and extension ordering, to
// produce a TLS fingerprint that matches a real browser.
//
// tlsCfg may be nil; if provided, its ServerName is used as the SNI hostname
// (the dialer also derives SNI from the addr argument when tlsCfg.ServerName
// is empty).
func UTLSDialer(helloID utls.ClientHelloID) func(ctx context.Context, network, addr string, tlsCfg *tls.Config) (net.Conn, error) {
	return func(ctx context.Context, network, addr string, tlsCfg *tls.Config) (net.Conn, error) {
		host, _, err := net.SplitHostPort(addr)
		if err != nil {
			return nil, fmt.Errorf("utls dialer: parse addr %q: %w", addr, err)
		}
		sni := host
		if tlsCfg != nil && tlsCfg.ServerName != "" {
			sni = tlsCfg.ServerName
		}

		var d net.Dialer
		rawConn, err := d.DialContext(ctx, network, addr)
		if err != nil {
			return nil, fmt.Errorf("utls dialer: dial %s: %w", addr, err)
		}

		// We deliberately do not copy the caller's *tls.Config verbatim:
		// fields like CipherSuites/CurvePreferences are overridden by the
		// ClientHelloSpec anyway. Only InsecureSkipVerify survives.
		uCfg := &utls.Config{
			ServerName:         sni,
			InsecureSkipVerify: tlsCfg != nil && tlsCfg.InsecureSkipVerify, // #nosec G402 – caller-controlled
		}

		uConn := utls.UClient(rawConn, uCfg, helloID)

		spec := buildClientHelloSpec(helloID)
		if err := uConn.ApplyPreset(&spec); err != nil {
			_ = rawConn.Close()
			return nil, fmt.Errorf("utls dialer: apply preset for %s: %w", helloID.Str(), err)
		}

		if err := uConn.HandshakeContext(ctx); err != nil {
			_ = uConn.Close()
			return nil, fmt.Errorf("utls dialer: TLS handshake with %s: %w", addr, err)
		}

		return uConn, nil
	}
}

// UTLSDialerHTTP1 is identical to UTLSDialer but returns a function whose
// signature matches http.Transport.DialTLSContext, which does not receive a
// *tls.Config argument (the SNI is derived solely from addr). Use this when
// wiring uTLS into an http.Transport for HTTP/1.1; use UTLSDialer for
// golang.org/x/net/http2.Transport.
func UTLSDialerHTTP1(helloID utls.ClientHelloID) func(ctx context.Context, network, addr string) (net.Conn, error) {
	inner := UTLSDialer(helloID)
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		return inner(ctx, network, addr, nil)
	}
}

// UTLSDialerHTTP1Insecure is like UTLSDialerHTTP1 but always disables
// certificate verification, for RequestOptions.insecure / TransportConfig
// (§4.D).
func UTLSDialerHTTP1Insecure(helloID utls.ClientHelloID) func(ctx context.Context, network, addr string) (net.Conn, error) {
	inner := UTLSDialer(helloID)
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		return inner(ctx, network, addr, &tls.Config{InsecureSkipVerify: true}) // #nosec G402 – caller opted in
	}
}

// buildClientHelloSpec returns the ClientHelloSpec for the given helloID.
// Recognised IDs are returned verbatim from uTLS's parrot table (GREASE
// placeholders, cipher-suite list, and shuffled extension order already
// included); any other ID falls back to the uTLS default spec so callers can
// still pass custom IDs without error.
func buildClientHelloSpec(helloID utls.ClientHelloID) utls.ClientHelloSpec {
	switch helloID {
	case utls.HelloChrome_120,
		utls.HelloChrome_120_PQ,
		utls.HelloChrome_131,
		utls.HelloChrome_Auto,
		utls.HelloFirefox_105:
		spec, err := utls.UTLSIdToSpec(helloID)
		if err == nil {
			return spec
		}
	}
	return utls.ClientHelloSpec{}
}
