package engine

import (
	"bufio"
	"context"
	stdtls "crypto/tls"
	"encoding/base64"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"time"

	tls "github.com/refraction-networking/utls"
	"golang.org/x/net/proxy"
)

// TransportOptions configures one strategy of the chain.
type TransportOptions struct {
	// Proxy is the gateway to tunnel through; nil dials directly.
	Proxy *url.URL

	// ViaProxy marks a proxied strategy. It fails with ErrNoProxy when
	// Proxy is nil instead of silently going direct.
	ViaProxy bool

	// Timeout bounds the whole request including body read.
	Timeout time.Duration

	// Insecure disables certificate verification.
	Insecure bool
}

// TLSTransport speaks HTTP/1.1 over a utls connection whose ClientHello
// matches the identity's TLS profile. Proxied connections are tunnelled
// with CONNECT (or SOCKS5) before the handshake, so the origin sees the
// browser hello and not Go's.
type TLSTransport struct {
	name string
	opts TransportOptions
}

// NewTLSTransport creates a fingerprinted transport.
func NewTLSTransport(name string, opts TransportOptions) *TLSTransport {
	return &TLSTransport{name: name, opts: opts}
}

func (t *TLSTransport) Name() string { return t.name }

func (t *TLSTransport) Fetch(ctx context.Context, req *Request) (*Response, error) {
	if t.opts.ViaProxy && t.opts.Proxy == nil {
		return nil, ErrNoProxy
	}
	profile, ok := LookupTLSProfile(req.Identity.TLSProfile)
	if !ok {
		return nil, fmt.Errorf("%s: unknown TLS profile %q", t.name, req.Identity.TLSProfile)
	}

	transport := &http.Transport{
		DialContext: t.dial,
		DialTLSContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
			return t.dialTLS(ctx, network, addr, profile.Hello)
		},
		ForceAttemptHTTP2:     false,
		DisableKeepAlives:     true,
		ResponseHeaderTimeout: t.opts.Timeout,
	}
	// Plain-http targets go through the proxy the ordinary way. https
	// targets are tunnelled inside DialTLSContext; net/http would otherwise
	// run its own crypto/tls handshake after CONNECT.
	if p := t.opts.Proxy; p != nil && p.Scheme != "socks5" && p.Scheme != "socks5h" {
		transport.Proxy = func(r *http.Request) (*url.URL, error) {
			if r.URL.Scheme == "http" {
				return p, nil
			}
			return nil, nil
		}
	}

	client := &http.Client{
		Transport:     transport,
		Jar:           req.Jar,
		Timeout:       t.opts.Timeout,
		CheckRedirect: limitRedirects,
	}
	defer client.CloseIdleConnections()

	resp, err := do(ctx, client, req)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", t.name, err)
	}
	return resp, nil
}

// dial opens a raw TCP connection to addr, through the SOCKS5 gateway when
// one is configured. HTTP gateways are handled by dialTLS and Transport.Proxy.
func (t *TLSTransport) dial(ctx context.Context, network, addr string) (net.Conn, error) {
	d := &net.Dialer{Timeout: 10 * time.Second}
	p := t.opts.Proxy
	if p == nil || (p.Scheme != "socks5" && p.Scheme != "socks5h") {
		return d.DialContext(ctx, network, addr)
	}
	pd, err := proxy.FromURL(p, d)
	if err != nil {
		return nil, fmt.Errorf("socks5 dialer: %w", err)
	}
	if cd, ok := pd.(proxy.ContextDialer); ok {
		return cd.DialContext(ctx, network, addr)
	}
	return pd.Dial(network, addr)
}

// dialTLS reaches addr (directly, via SOCKS5 or via an HTTP CONNECT tunnel)
// and performs the fingerprinted handshake.
func (t *TLSTransport) dialTLS(ctx context.Context, network, addr string, hello tls.ClientHelloID) (net.Conn, error) {
	var (
		raw net.Conn
		err error
	)
	if p := t.opts.Proxy; p != nil && (p.Scheme == "http" || p.Scheme == "https") {
		raw, err = dialConnect(ctx, p, addr)
	} else {
		raw, err = t.dial(ctx, network, addr)
	}
	if err != nil {
		return nil, err
	}

	spec, err := http1Spec(hello)
	if err != nil {
		raw.Close()
		return nil, fmt.Errorf("tls spec: %w", err)
	}

	host, _, _ := net.SplitHostPort(addr)
	uconn := tls.UClient(raw, &tls.Config{
		ServerName:         host,
		InsecureSkipVerify: t.opts.Insecure,
	}, tls.HelloCustom)
	if err := uconn.ApplyPreset(&spec); err != nil {
		raw.Close()
		return nil, fmt.Errorf("apply tls spec: %w", err)
	}
	if err := uconn.HandshakeContext(ctx); err != nil {
		raw.Close()
		return nil, fmt.Errorf("tls handshake: %w", err)
	}
	return uconn, nil
}

// http1Spec expands hello into a spec with ALPN locked to http/1.1, since
// Go's http.Transport cannot speak h2 over a utls connection, and with the
// extension order shuffled the way Chrome does.
func http1Spec(hello tls.ClientHelloID) (tls.ClientHelloSpec, error) {
	spec, err := tls.UTLSIdToSpec(hello)
	if err != nil {
		return spec, err
	}
	for i, ext := range spec.Extensions {
		if alpn, ok := ext.(*tls.ALPNExtension); ok {
			alpn.AlpnProtocols = []string{"http/1.1"}
			spec.Extensions[i] = alpn
			break
		}
	}
	spec.Extensions = tls.ShuffleChromeTLSExtensions(spec.Extensions)
	return spec, nil
}

// dialConnect opens a CONNECT tunnel to addr through an HTTP(S) proxy.
func dialConnect(ctx context.Context, p *url.URL, addr string) (net.Conn, error) {
	d := &net.Dialer{Timeout: 10 * time.Second}
	conn, err := d.DialContext(ctx, "tcp", p.Host)
	if err != nil {
		return nil, fmt.Errorf("dial proxy: %w", err)
	}
	if p.Scheme == "https" {
		tc := stdtls.Client(conn, &stdtls.Config{ServerName: p.Hostname()})
		if err := tc.HandshakeContext(ctx); err != nil {
			conn.Close()
			return nil, fmt.Errorf("proxy tls: %w", err)
		}
		conn = tc
	}

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
		defer conn.SetDeadline(time.Time{})
	}

	connectReq := &http.Request{
		Method: http.MethodConnect,
		URL:    &url.URL{Opaque: addr},
		Host:   addr,
		Header: make(http.Header),
	}
	if p.User != nil {
		pass, _ := p.User.Password()
		cred := base64.StdEncoding.EncodeToString([]byte(p.User.Username() + ":" + pass))
		connectReq.Header.Set("Proxy-Authorization", "Basic "+cred)
	}
	if err := connectReq.Write(conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("proxy CONNECT: %w", err)
	}

	resp, err := http.ReadResponse(bufio.NewReader(conn), connectReq)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("proxy CONNECT response: %w", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		conn.Close()
		return nil, fmt.Errorf("proxy CONNECT: %s", resp.Status)
	}
	return conn, nil
}
