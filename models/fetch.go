package models

import (
	"net/http"
	"time"
)

// Header is a single request header.
type Header struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// HeaderSet is the list of request headers in generation order. The order
// is kept for the attempt log only; net/http writes headers sorted by name.
type HeaderSet []Header

// Get returns the first value for name (case-insensitive).
func (h HeaderSet) Get(name string) string {
	key := http.CanonicalHeaderKey(name)
	for _, hdr := range h {
		if http.CanonicalHeaderKey(hdr.Name) == key {
			return hdr.Value
		}
	}
	return ""
}

// Apply copies every header onto dst, replacing existing values. The
// resulting http.Header does not preserve order.
func (h HeaderSet) Apply(dst http.Header) {
	for _, hdr := range h {
		dst.Set(hdr.Name, hdr.Value)
	}
}

// Map returns the headers as a plain map.
func (h HeaderSet) Map() map[string]string {
	m := make(map[string]string, len(h))
	for _, hdr := range h {
		m[hdr.Name] = hdr.Value
	}
	return m
}

// FetchIdentity is everything an origin can use to recognise a client.
// It is replaced wholesale on every fetch attempt, never patched.
type FetchIdentity struct {
	TLSProfile string    `json:"tls_profile"`
	UserAgent  string    `json:"user_agent"`
	Headers    HeaderSet `json:"headers"`

	// Proxy is the redacted proxy URL, empty when none is configured.
	Proxy string `json:"proxy,omitempty"`
}

// FetchAttempt is one row of the append-only attempt audit log.
// StatusCode is 0 when no strategy produced a response.
type FetchAttempt struct {
	Timestamp      time.Time         `json:"timestamp"`
	URL            string            `json:"url"`
	Proxy          string            `json:"proxy"`
	UserAgent      string            `json:"user_agent"`
	Headers        map[string]string `json:"headers"`
	StatusCode     int               `json:"status_code"`
	RetryIndex     int               `json:"retry_index"`
	ResponseLength int               `json:"response_length"`
	Transport      string            `json:"transport,omitempty"`
	Err            string            `json:"error,omitempty"`
}

// FetchResult is the outcome of a fetch that produced a response.
// StatusCode is always the real status of the last response.
type FetchResult struct {
	// URL is the final URL after redirects.
	URL        string      `json:"url"`
	Body       []byte      `json:"-"`
	StatusCode int         `json:"status_code"`
	Header     http.Header `json:"-"`

	// Transport names the strategy that produced the response.
	Transport string `json:"transport"`

	// Attempts is the number of attempts spent, including this one.
	Attempts int `json:"attempts"`

	// Blocked is set when the response still looked like a soft-block
	// after all retries were spent.
	Blocked bool `json:"blocked"`
}

// OK reports whether the result is a usable 2xx page.
func (r *FetchResult) OK() bool {
	return r != nil && !r.Blocked && r.StatusCode >= 200 && r.StatusCode < 300
}
