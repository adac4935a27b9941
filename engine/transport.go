// Package engine fetches pages from a site that fingerprints and blocks
// automated clients. An Engine rotates its whole client identity on every
// attempt and walks an ordered chain of transports until one answers.
package engine

import (
	"bufio"
	"compress/flate"
	"compress/gzip"
	"compress/zlib"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/andybalholm/brotli"

	"github.com/use-agent/pricescout/models"
)

// maxBody caps how much of a response is read.
const maxBody = 10 << 20

// ErrNoProxy is returned by proxied transports when no gateway is configured.
var ErrNoProxy = errors.New("engine: no proxy configured")

// Transport is one strategy in the fallback chain.
type Transport interface {
	// Name returns the strategy identifier (e.g. "tls+proxy", "http-direct").
	Name() string

	// Fetch performs a single GET with the request's identity. Any response
	// with a readable body is a success regardless of status code.
	Fetch(ctx context.Context, req *Request) (*Response, error)
}

// Request contains everything a transport needs for one attempt.
type Request struct {
	URL      string
	Identity models.FetchIdentity
	Jar      http.CookieJar
}

// Response is the raw output of a transport.
type Response struct {
	StatusCode int
	Body       []byte
	Header     http.Header
	FinalURL   string
	Transport  string
}

// do executes req on client with the identity's headers applied and reads
// the decoded body.
func do(ctx context.Context, client *http.Client, req *Request) (*Response, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, req.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Identity.Headers.Apply(httpReq.Header)
	if req.Identity.UserAgent != "" {
		httpReq.Header.Set("User-Agent", req.Identity.UserAgent)
	}

	resp, err := client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	body, err := readBody(resp)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}

	finalURL := req.URL
	if resp.Request != nil && resp.Request.URL != nil {
		finalURL = resp.Request.URL.String()
	}

	return &Response{
		StatusCode: resp.StatusCode,
		Body:       body,
		Header:     resp.Header,
		FinalURL:   finalURL,
	}, nil
}

// readBody decodes the response according to Content-Encoding. Requests
// advertise gzip, deflate and br themselves, so net/http never decodes.
func readBody(resp *http.Response) ([]byte, error) {
	var r io.Reader = resp.Body
	switch strings.ToLower(strings.TrimSpace(resp.Header.Get("Content-Encoding"))) {
	case "", "identity":
	case "gzip", "x-gzip":
		gz, err := gzip.NewReader(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("gzip: %w", err)
		}
		defer gz.Close()
		r = gz
	case "deflate":
		// Most servers send zlib-wrapped deflate; a few send it raw.
		buf := bufio.NewReader(resp.Body)
		if hdr, _ := buf.Peek(1); len(hdr) == 1 && hdr[0]&0x0f == 8 {
			zr, err := zlib.NewReader(buf)
			if err != nil {
				return nil, fmt.Errorf("deflate: %w", err)
			}
			defer zr.Close()
			r = zr
		} else {
			fr := flate.NewReader(buf)
			defer fr.Close()
			r = fr
		}
	case "br":
		r = brotli.NewReader(resp.Body)
	default:
		return nil, fmt.Errorf("unsupported content-encoding %q", resp.Header.Get("Content-Encoding"))
	}

	return io.ReadAll(io.LimitReader(r, maxBody))
}

// limitRedirects stops redirect loops.
func limitRedirects(req *http.Request, via []*http.Request) error {
	if len(via) >= 10 {
		return fmt.Errorf("too many redirects")
	}
	return nil
}
