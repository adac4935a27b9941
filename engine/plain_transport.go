package engine

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/http"
	"time"
)

// PlainTransport is the stock net/http client with certificate
// verification disabled. Its ClientHello is Go's, so it is the fallback
// when the fingerprinted handshake itself is what fails.
type PlainTransport struct {
	name string
	opts TransportOptions
}

// NewPlainTransport creates a plain transport.
func NewPlainTransport(name string, opts TransportOptions) *PlainTransport {
	return &PlainTransport{name: name, opts: opts}
}

func (t *PlainTransport) Name() string { return t.name }

func (t *PlainTransport) Fetch(ctx context.Context, req *Request) (*Response, error) {
	if t.opts.ViaProxy && t.opts.Proxy == nil {
		return nil, ErrNoProxy
	}

	transport := &http.Transport{
		DialContext:         (&net.Dialer{Timeout: 10 * time.Second}).DialContext,
		TLSClientConfig:     &tls.Config{InsecureSkipVerify: true},
		TLSHandshakeTimeout: 10 * time.Second,
		DisableKeepAlives:   true,
	}
	if t.opts.Proxy != nil {
		transport.Proxy = http.ProxyURL(t.opts.Proxy)
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
