package engine

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/use-agent/pricescout/config"
	"github.com/use-agent/pricescout/models"
)

// stubTransport replays scripted outcomes, repeating the last one.
type stubTransport struct {
	name  string
	steps []func(req *Request) (*Response, error)

	mu    sync.Mutex
	calls int
	seen  []models.FetchIdentity
}

func (s *stubTransport) Name() string { return s.name }

func (s *stubTransport) Fetch(_ context.Context, req *Request) (*Response, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.calls
	if i >= len(s.steps) {
		i = len(s.steps) - 1
	}
	s.calls++
	s.seen = append(s.seen, req.Identity)
	return s.steps[i](req)
}

func respond(status int, body string) func(*Request) (*Response, error) {
	return func(req *Request) (*Response, error) {
		return &Response{StatusCode: status, Body: []byte(body), FinalURL: req.URL}, nil
	}
}

func fail(msg string) func(*Request) (*Response, error) {
	return func(*Request) (*Response, error) { return nil, errors.New(msg) }
}

type memRecorder struct {
	mu       sync.Mutex
	attempts []models.FetchAttempt
}

func (m *memRecorder) Record(a models.FetchAttempt) {
	m.mu.Lock()
	m.attempts = append(m.attempts, a)
	m.mu.Unlock()
}

func newTestFactory(t *testing.T, rec *memRecorder, ts ...Transport) *Factory {
	t.Helper()
	f, err := NewFactory(config.Load().Fetch, config.ProxyConfig{Scheme: "http"},
		WithTransports(ts...),
		WithRecorder(rec),
	)
	require.NoError(t, err)
	return f
}

func TestFetchRetriesSoftBlock(t *testing.T) {
	stub := &stubTransport{name: "stub", steps: []func(*Request) (*Response, error){
		respond(200, "<html><body>Access blocked</body></html>"),
		respond(200, "<html><body>offerte</body></html>"),
	}}
	rec := &memRecorder{}
	eng := newTestFactory(t, rec, stub).New()

	res, err := eng.Fetch(context.Background(), "https://shop.test/a", 2)
	require.NoError(t, err)

	assert.True(t, res.OK())
	assert.Equal(t, 2, res.Attempts)
	assert.Equal(t, "stub", res.Transport)
	assert.Contains(t, string(res.Body), "offerte")
	assert.Len(t, rec.attempts, 2)

	// Every attempt runs under a freshly drawn identity.
	require.Len(t, stub.seen, 2)
	assert.NotEqual(t,
		stub.seen[0].Headers.Get("X-Browser-Fingerprint"),
		stub.seen[1].Headers.Get("X-Browser-Fingerprint"))
}

func TestFetchAttemptsAreBounded(t *testing.T) {
	for _, maxRetries := range []int{0, 1, 3} {
		stub := &stubTransport{name: "stub", steps: []func(*Request) (*Response, error){
			respond(403, "forbidden"),
		}}
		rec := &memRecorder{}
		eng := newTestFactory(t, rec, stub).New()

		res, err := eng.Fetch(context.Background(), "https://shop.test/a", maxRetries)
		require.NoError(t, err)

		assert.True(t, res.Blocked)
		assert.Equal(t, 403, res.StatusCode)
		assert.False(t, res.OK())
		assert.LessOrEqual(t, len(rec.attempts), maxRetries+1)
		assert.Equal(t, maxRetries+1, stub.calls)
		for i, a := range rec.attempts {
			assert.Equal(t, i, a.RetryIndex)
			assert.Equal(t, 403, a.StatusCode)
		}
	}
}

func TestFetchBlockedOnLastAttemptKeepsRealStatus(t *testing.T) {
	stub := &stubTransport{name: "stub", steps: []func(*Request) (*Response, error){
		respond(200, "please solve the CAPTCHA"),
	}}
	eng := newTestFactory(t, &memRecorder{}, stub).New()

	res, err := eng.Fetch(context.Background(), "https://shop.test/a", 1)
	require.NoError(t, err)
	assert.Equal(t, 200, res.StatusCode)
	assert.True(t, res.Blocked)
	assert.Equal(t, 2, res.Attempts)
}

func TestFetchNonBlockingErrorStatusReturnsImmediately(t *testing.T) {
	stub := &stubTransport{name: "stub", steps: []func(*Request) (*Response, error){
		respond(404, "pagina non trovata"),
	}}
	eng := newTestFactory(t, &memRecorder{}, stub).New()

	res, err := eng.Fetch(context.Background(), "https://shop.test/a", 5)
	require.NoError(t, err)
	assert.Equal(t, 404, res.StatusCode)
	assert.False(t, res.Blocked)
	assert.Equal(t, 1, stub.calls)
}

func TestFetchExhaustedReturnsNil(t *testing.T) {
	first := &stubTransport{name: "first", steps: []func(*Request) (*Response, error){fail("dial refused")}}
	second := &stubTransport{name: "second", steps: []func(*Request) (*Response, error){fail("timeout")}}
	rec := &memRecorder{}
	eng := newTestFactory(t, rec, first, second).New()

	res, err := eng.Fetch(context.Background(), "https://shop.test/a", 2)
	assert.Nil(t, res)

	var se *models.ScrapeError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, models.ErrCodeFetchExhausted, se.Code)
	assert.ErrorContains(t, err, "dial refused")

	assert.Equal(t, 3, first.calls)
	assert.Equal(t, 3, second.calls)
	require.Len(t, rec.attempts, 3)
	for _, a := range rec.attempts {
		assert.Equal(t, 0, a.StatusCode)
		assert.NotEmpty(t, a.Err)
	}
}

func TestFetchSurfacesEarlierBlockWhenLaterAttemptsFail(t *testing.T) {
	stub := &stubTransport{name: "stub", steps: []func(*Request) (*Response, error){
		respond(403, "denied"),
		fail("reset by peer"),
	}}
	eng := newTestFactory(t, &memRecorder{}, stub).New()

	res, err := eng.Fetch(context.Background(), "https://shop.test/a", 2)
	require.NoError(t, err)
	assert.True(t, res.Blocked)
	assert.Equal(t, 403, res.StatusCode)
}

func TestFetchCanceledContext(t *testing.T) {
	stub := &stubTransport{name: "stub", steps: []func(*Request) (*Response, error){respond(200, "ok")}}
	eng := newTestFactory(t, &memRecorder{}, stub).New()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := eng.Fetch(ctx, "https://shop.test/a", 3)
	assert.Nil(t, res)
	var se *models.ScrapeError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, models.ErrCodeTimeout, se.Code)
	assert.Equal(t, 0, stub.calls)
}

func TestChainStrictOrder(t *testing.T) {
	first := &stubTransport{name: "tls+proxy", steps: []func(*Request) (*Response, error){
		func(*Request) (*Response, error) { return nil, ErrNoProxy },
	}}
	second := &stubTransport{name: "http+proxy", steps: []func(*Request) (*Response, error){fail("proxy 407")}}
	third := &stubTransport{name: "tls-direct", steps: []func(*Request) (*Response, error){respond(200, "ok")}}
	fourth := &stubTransport{name: "http-direct", steps: []func(*Request) (*Response, error){respond(200, "never")}}

	c := NewChain(first, second, third, fourth)
	resp, err := c.Fetch(context.Background(), &Request{URL: "https://shop.test"})
	require.NoError(t, err)

	assert.Equal(t, "tls-direct", resp.Transport)
	assert.Equal(t, 1, first.calls)
	assert.Equal(t, 1, second.calls)
	assert.Equal(t, 1, third.calls)
	assert.Equal(t, 0, fourth.calls)
	assert.Equal(t, []string{"tls+proxy", "http+proxy", "tls-direct", "http-direct"}, c.Names())
}

func TestEmptyChain(t *testing.T) {
	_, err := NewChain().Fetch(context.Background(), &Request{URL: "https://shop.test"})
	assert.Error(t, err)
}

func TestRecordedAttemptCarriesIdentity(t *testing.T) {
	stub := &stubTransport{name: "stub", steps: []func(*Request) (*Response, error){respond(200, "hello")}}
	rec := &memRecorder{}
	fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	f, err := NewFactory(config.Load().Fetch, config.ProxyConfig{Gateway: "gw.test:33335", Scheme: "http", Username: "u", Password: "secret"},
		WithTransports(stub), WithRecorder(rec), WithClock(func() time.Time { return fixed }))
	require.NoError(t, err)
	eng := f.New()

	_, err = eng.Fetch(context.Background(), "https://shop.test/a", 0)
	require.NoError(t, err)

	require.Len(t, rec.attempts, 1)
	a := rec.attempts[0]
	assert.Equal(t, fixed, a.Timestamp)
	assert.Equal(t, 200, a.StatusCode)
	assert.Equal(t, 5, a.ResponseLength)
	assert.Equal(t, "stub", a.Transport)
	assert.Equal(t, eng.Identity().UserAgent, a.UserAgent)
	assert.Equal(t, a.UserAgent, a.Headers["User-Agent"])
	assert.Contains(t, a.Proxy, "gw.test:33335")
	assert.NotContains(t, a.Proxy, "secret")
	assert.True(t, f.ProxyConfigured())
}

func TestIdentityMatchesTLSProfile(t *testing.T) {
	for _, name := range TLSProfileNames() {
		p, _ := LookupTLSProfile(name)
		id := newIdentity(p, nil)
		assert.Equal(t, name, id.TLSProfile)
		assert.Equal(t, id.UserAgent, id.Headers.Get("User-Agent"))
		assert.Contains(t, id.UserAgent, "Chrome/")
		assert.Empty(t, id.Proxy)
	}
}

func TestNewFactoryRejectsUnknownProfile(t *testing.T) {
	fetch := config.Load().Fetch
	fetch.TLSProfiles = []string{"chrome_120", "netscape_4"}
	_, err := NewFactory(fetch, config.ProxyConfig{})
	assert.ErrorContains(t, err, "netscape_4")
}

func TestDefaultChainOrder(t *testing.T) {
	f, err := NewFactory(config.Load().Fetch, config.ProxyConfig{})
	require.NoError(t, err)
	assert.Equal(t, []string{"tls+proxy", "http+proxy", "tls-direct", "http-direct"}, f.TransportNames())
	assert.False(t, f.ProxyConfigured())
	assert.NoError(t, f.Close())
}

func TestSignatureDetector(t *testing.T) {
	d := NewSignatureDetector(DefaultSignatures)
	tests := []struct {
		name   string
		body   string
		status int
		want   bool
	}{
		{"forbidden", "", 403, true},
		{"blocked banner", "<h1>Access Blocked</h1>", 200, true},
		{"captcha", "<div class=g-recaptcha>CAPTCHA</div>", 200, true},
		{"banned", "your IP was BANNED", 200, true},
		{"normal page", "<div class=item_name>TV</div>", 200, false},
		{"server error", "oops", 500, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, d.IsBlocked([]byte(tt.body), tt.status))
		})
	}

	custom := BlockDetectorFunc(func(_ []byte, status int) bool { return status == 429 })
	assert.True(t, custom.IsBlocked(nil, 429))
	assert.False(t, NewSignatureDetector([]string{" ", ""}).IsBlocked([]byte("blocked"), 200))
}

func TestFactoryWithCustomDetector(t *testing.T) {
	stub := &stubTransport{name: "stub", steps: []func(*Request) (*Response, error){
		respond(429, "slow down"),
		respond(200, "ok"),
	}}
	f, err := NewFactory(config.Load().Fetch, config.ProxyConfig{},
		WithTransports(stub),
		WithDetector(BlockDetectorFunc(func(_ []byte, status int) bool { return status == 429 })))
	require.NoError(t, err)

	res, err := f.New().Fetch(context.Background(), "https://shop.test", 1)
	require.NoError(t, err)
	assert.Equal(t, 200, res.StatusCode)
	assert.Equal(t, 2, res.Attempts)
}
