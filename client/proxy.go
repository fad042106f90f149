package client

import (
	"bufio"
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"time"

	utls "github.com/refraction-networking/utls"
	"golang.org/x/net/proxy"
)

// proxyDialTLS returns a DialTLSContext-compatible dialer that routes the
// uTLS handshake through proxyURL instead of dialing the target directly.
//
// http.Transport's own Proxy field cannot be used here: when a proxy is
// configured, the standard library performs the target TLS handshake itself
// (using crypto/tls, not uTLS), which would erase the fingerprint this
// package exists to produce. Instead this dialer tunnels through the proxy
// itself — a CONNECT tunnel for http/https proxies, a SOCKS5 relay for
// socks5 proxies — and then runs the uTLS ClientHello over the tunnel, so
// the fingerprint survives proxying exactly as it would on a direct
// connection.
func proxyDialTLS(proxyURL *url.URL, helloID utls.ClientHelloID, insecure bool) func(ctx context.Context, network, addr string) (net.Conn, error) {
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		tunnel, err := dialTunnel(ctx, proxyURL, network, addr)
		if err != nil {
			return nil, fmt.Errorf("proxy dialer: %w", err)
		}

		host, _, err := net.SplitHostPort(addr)
		if err != nil {
			_ = tunnel.Close()
			return nil, fmt.Errorf("proxy dialer: parse addr %q: %w", addr, err)
		}

		uConn := utls.UClient(tunnel, &utls.Config{
			ServerName:         host,
			InsecureSkipVerify: insecure, // #nosec G402 – caller-controlled
		}, helloID)

		spec := buildClientHelloSpec(helloID)
		if err := uConn.ApplyPreset(&spec); err != nil {
			_ = tunnel.Close()
			return nil, fmt.Errorf("proxy dialer: apply preset: %w", err)
		}
		if err := uConn.HandshakeContext(ctx); err != nil {
			_ = uConn.Close()
			return nil, fmt.Errorf("proxy dialer: TLS handshake with %s via proxy: %w", addr, err)
		}
		return uConn, nil
	}
}

// dialTunnel establishes a byte-stream tunnel to addr via proxyURL, ready for
// a TLS ClientHello to be written directly onto it.
func dialTunnel(ctx context.Context, proxyURL *url.URL, network, addr string) (net.Conn, error) {
	switch proxyURL.Scheme {
	case "socks5", "socks5h":
		return dialSOCKS5(ctx, proxyURL, network, addr)
	case "http", "https":
		return dialConnect(ctx, proxyURL, addr)
	default:
		return nil, fmt.Errorf("unsupported proxy scheme %q", proxyURL.Scheme)
	}
}

func dialSOCKS5(ctx context.Context, proxyURL *url.URL, network, addr string) (net.Conn, error) {
	var auth *proxy.Auth
	if proxyURL.User != nil {
		pass, _ := proxyURL.User.Password()
		auth = &proxy.Auth{User: proxyURL.User.Username(), Password: pass}
	}
	d, err := proxy.SOCKS5(network, proxyURL.Host, auth, proxy.Direct)
	if err != nil {
		return nil, fmt.Errorf("build socks5 dialer: %w", err)
	}
	if cd, ok := d.(proxy.ContextDialer); ok {
		return cd.DialContext(ctx, network, addr)
	}
	return d.Dial(network, addr)
}

func dialConnect(ctx context.Context, proxyURL *url.URL, addr string) (net.Conn, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", proxyURL.Host)
	if err != nil {
		return nil, fmt.Errorf("dial proxy %s: %w", proxyURL.Host, err)
	}

	if proxyURL.Scheme == "https" {
		conn = tls.Client(conn, &tls.Config{ServerName: proxyURL.Hostname()}) // #nosec G402 – proxy leg, not the emulated target
	}

	req := &http.Request{
		Method: http.MethodConnect,
		URL:    &url.URL{Opaque: addr},
		Host:   addr,
		Header: make(http.Header),
	}
	if proxyURL.User != nil {
		if pass, ok := proxyURL.User.Password(); ok {
			req.SetBasicAuth(proxyURL.User.Username(), pass)
		}
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}
	if err := req.Write(conn); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("write CONNECT to %s: %w", proxyURL.Host, err)
	}

	br := bufio.NewReader(conn)
	resp, err := http.ReadResponse(br, req)
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("read CONNECT response from %s: %w", proxyURL.Host, err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		_ = conn.Close()
		return nil, fmt.Errorf("CONNECT to %s via %s: %s", addr, proxyURL.Host, resp.Status)
	}
	_ = conn.SetDeadline(time.Time{})

	if br.Buffered() > 0 {
		_ = conn.Close()
		return nil, fmt.Errorf("CONNECT to %s via %s: unexpected data before TLS handshake", addr, proxyURL.Host)
	}
	return conn, nil
}
