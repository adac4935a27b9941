package engine

import (
	"net/url"
	"time"

	"github.com/use-agent/pricescout/audit"
	"github.com/use-agent/pricescout/config"
)

// Factory builds independent engines that share configuration, the
// transport chain, the block detector and the attempt recorder. It is
// safe for concurrent use; the engines it returns are not.
type Factory struct {
	profiles   []TLSProfile
	proxy      *url.URL
	transports []Transport
	detector   BlockDetector
	recorder   audit.Recorder
	browser    *BrowserTransport
	now        func() time.Time
}

// Option customises a Factory.
type Option func(*Factory)

// WithDetector replaces the default signature-based block detector.
func WithDetector(d BlockDetector) Option {
	return func(f *Factory) { f.detector = d }
}

// WithRecorder sets where fetch attempts are recorded.
func WithRecorder(r audit.Recorder) Option {
	return func(f *Factory) { f.recorder = r }
}

// WithTransports replaces the default four-strategy chain.
func WithTransports(ts ...Transport) Option {
	return func(f *Factory) { f.transports = ts }
}

// WithBrowser appends a browser strategy after the HTTP strategies.
func WithBrowser(b *BrowserTransport) Option {
	return func(f *Factory) { f.browser = b }
}

// WithClock overrides the timestamp source of attempt records.
func WithClock(now func() time.Time) Option {
	return func(f *Factory) { f.now = now }
}

// NewFactory validates the TLS profiles and assembles the default chain:
// fingerprinted via proxy, plain via proxy, fingerprinted direct, plain
// direct.
func NewFactory(fetch config.FetchConfig, proxyCfg config.ProxyConfig, opts ...Option) (*Factory, error) {
	profiles, err := resolveProfiles(fetch.TLSProfiles)
	if err != nil {
		return nil, err
	}
	proxy := proxyCfg.URL()

	f := &Factory{
		profiles:   profiles,
		proxy:      proxy,
		transports: DefaultTransports(proxy, fetch),
		detector:   NewSignatureDetector(fetch.BlockSignatures),
		recorder:   audit.Nop{},
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(f)
	}
	if f.browser != nil {
		f.transports = append(f.transports, f.browser)
	}
	return f, nil
}

// DefaultTransports returns the four HTTP strategies in fallback order.
func DefaultTransports(proxy *url.URL, fetch config.FetchConfig) []Transport {
	return []Transport{
		NewTLSTransport("tls+proxy", TransportOptions{Proxy: proxy, ViaProxy: true, Timeout: fetch.TLSTimeout, Insecure: fetch.InsecureTLS}),
		NewPlainTransport("http+proxy", TransportOptions{Proxy: proxy, ViaProxy: true, Timeout: fetch.PlainTimeout}),
		NewTLSTransport("tls-direct", TransportOptions{Timeout: fetch.TLSTimeout, Insecure: fetch.InsecureTLS}),
		NewPlainTransport("http-direct", TransportOptions{Timeout: fetch.PlainTimeout}),
	}
}

// New returns a fresh engine for one task.
func (f *Factory) New() *Engine {
	return &Engine{
		chain:    NewChain(f.transports...),
		detector: f.detector,
		recorder: f.recorder,
		profiles: f.profiles,
		proxy:    f.proxy,
		now:      f.now,
	}
}

// TransportNames lists the strategies in fallback order.
func (f *Factory) TransportNames() []string {
	return NewChain(f.transports...).Names()
}

// ProxyConfigured reports whether the proxied strategies can run.
func (f *Factory) ProxyConfigured() bool { return f.proxy != nil }

// Close releases the browser, if one was configured.
func (f *Factory) Close() error {
	if f.browser == nil {
		return nil
	}
	return f.browser.Close()
}
