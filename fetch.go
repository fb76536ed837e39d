package main

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/andybalholm/brotli"
	"github.com/klauspost/compress/gzip"
	utls "github.com/refraction-networking/utls"
	"golang.org/x/net/http2"
)

// defaultMaxResponseBytes caps any single API response or attachment
// download unless overridden by --max-response-size. 0 means unlimited.
const defaultMaxResponseBytes int64 = 128 * 1024 * 1024 // 128 MB

// httpOptions configures the transport used for every request to the wiki.
type httpOptions struct {
	timeout time.Duration
	// proxy, when non-empty, routes requests through an HTTP proxy. uTLS
	// cannot negotiate CONNECT tunnels, so proxied requests use standard TLS.
	proxy string
	// blockPrivate refuses connections to loopback, link-local and RFC1918
	// addresses.
	blockPrivate bool
}

// newHTTPClient picks the transport for a base URL scheme: standard TLS
// through a proxy, a browser TLS fingerprint for direct HTTPS, or plain
// HTTP otherwise.
func newHTTPClient(opts httpOptions, scheme string) *http.Client {
	switch {
	case opts.proxy != "":
		return newProxyClient(opts.proxy, opts.timeout, opts.blockPrivate)
	case scheme == "https":
		return newBrowserClient(opts.timeout, opts.blockPrivate)
	default:
		return &http.Client{
			Timeout: opts.timeout,
			Transport: &http.Transport{
				DialContext: dialContext(&net.Dialer{Timeout: opts.timeout}, opts.blockPrivate),
			},
		}
	}
}

// newProxyClient creates an HTTP client that routes through the given proxy
// address using standard TLS. If proxyAddr is empty, it creates a direct
// (no-proxy) client with standard TLS.
func newProxyClient(proxyAddr string, timeout time.Duration, blockPrivate bool) *http.Client {
	transport := &http.Transport{
		DialContext: dialContext(&net.Dialer{Timeout: timeout}, blockPrivate),
	}
	if proxyAddr != "" {
		if proxyURL, err := url.Parse(proxyAddr); err == nil {
			transport.Proxy = http.ProxyURL(proxyURL)
		}
	}
	return &http.Client{
		Timeout:   timeout,
		Transport: transport,
	}
}

// readLimited reads up to limit bytes from r. If the response exceeds
// the limit, it returns an error. If limit is 0, it reads without
// limit (equivalent to io.ReadAll).
func readLimited(r io.Reader, limit int64) ([]byte, error) {
	if limit <= 0 {
		return io.ReadAll(r)
	}
	// Read limit+1 bytes so we can detect overflow without a custom reader.
	lr := io.LimitReader(r, limit+1)
	data, err := io.ReadAll(lr)
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > limit {
		return nil, fmt.Errorf("response body exceeds maximum allowed size (%s)", humanSize(limit))
	}
	return data, nil
}

// copyLimited streams r into w, failing once more than limit bytes arrive.
func copyLimited(w io.Writer, r io.Reader, limit int64) (int64, error) {
	if limit <= 0 {
		return io.Copy(w, r)
	}
	n, err := io.Copy(w, io.LimitReader(r, limit+1))
	if err != nil {
		return n, err
	}
	if n > limit {
		return n, fmt.Errorf("response body exceeds maximum allowed size (%s)", humanSize(limit))
	}
	return n, nil
}

// decodedBody unwraps a response body according to its Content-Encoding.
// Requests set Accept-Encoding themselves, so net/http leaves decoding to us.
func decodedBody(resp *http.Response) (io.Reader, error) {
	switch strings.ToLower(strings.TrimSpace(resp.Header.Get("Content-Encoding"))) {
	case "", "identity":
		return resp.Body, nil
	case "gzip", "x-gzip":
		zr, err := gzip.NewReader(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("gzip response: %w", err)
		}
		return zr, nil
	case "br":
		return brotli.NewReader(resp.Body), nil
	default:
		return nil, fmt.Errorf("unsupported content encoding %q", resp.Header.Get("Content-Encoding"))
	}
}

// utlsConn wraps a utls.UConn and satisfies net.Conn + the
// ConnectionState interface that net/http2 needs.
type utlsConn struct {
	*utls.UConn
}

func (c *utlsConn) ConnectionState() tls.ConnectionState {
	cs := c.UConn.ConnectionState()
	return tls.ConnectionState{
		Version:                    cs.Version,
		HandshakeComplete:          cs.HandshakeComplete,
		CipherSuite:                cs.CipherSuite,
		NegotiatedProtocol:         cs.NegotiatedProtocol,
		NegotiatedProtocolIsMutual: cs.NegotiatedProtocolIsMutual,
		ServerName:                 cs.ServerName,
		PeerCertificates:           cs.PeerCertificates,
		VerifiedChains:             cs.VerifiedChains,
		OCSPResponse:               cs.OCSPResponse,
		TLSUnique:                  cs.TLSUnique,
	}
}

// newBrowserClient creates an HTTP client that mimics a real browser's
// TLS fingerprint using utls. Supports both HTTP/1.1 and HTTP/2.
func newBrowserClient(timeout time.Duration, blockPrivate bool) *http.Client {
	dialer := &net.Dialer{Timeout: timeout}

	rt := &browserTransport{
		dial: dialContext(dialer, blockPrivate),
		h1: &http.Transport{
			DialContext: dialContext(dialer, blockPrivate),
		},
		h2: &http2.Transport{},
	}

	return &http.Client{
		Timeout:   timeout,
		Transport: rt,
	}
}

// browserTransport dials with utls and routes to h1 or h2 based on ALPN
// negotiation.
type browserTransport struct {
	dial func(context.Context, string, string) (net.Conn, error)
	h1   *http.Transport
	h2   *http2.Transport
}

func (bt *browserTransport) dialUTLS(ctx context.Context, network, addr string) (net.Conn, string, error) {
	conn, err := bt.dial(ctx, network, addr)
	if err != nil {
		return nil, "", err
	}

	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		host = addr
	}

	tlsConn := utls.UClient(conn, &utls.Config{
		ServerName: host,
	}, utls.HelloFirefox_120)

	if err := tlsConn.HandshakeContext(ctx); err != nil {
		conn.Close()
		return nil, "", err
	}

	alpn := tlsConn.ConnectionState().NegotiatedProtocol
	return &utlsConn{tlsConn}, alpn, nil
}

func (bt *browserTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.URL.Scheme != "https" {
		return bt.h1.RoundTrip(req)
	}

	addr := req.URL.Host
	if !hasPort(addr) {
		addr = addr + ":443"
	}

	conn, alpn, err := bt.dialUTLS(req.Context(), "tcp", addr)
	if err != nil {
		return nil, err
	}

	if alpn == "h2" {
		h2conn, err := bt.h2.NewClientConn(conn)
		if err != nil {
			conn.Close()
			return nil, err
		}
		return h2conn.RoundTrip(req)
	}

	// For HTTP/1.1, inject the TLS conn into a one-shot transport
	transport := &http.Transport{
		DialTLSContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
			return conn, nil
		},
	}
	return transport.RoundTrip(req)
}

func hasPort(host string) bool {
	_, _, err := net.SplitHostPort(host)
	return err == nil
}
