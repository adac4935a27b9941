package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig
	Auth      AuthConfig
	RateLimit RateLimitConfig
	Log       LogConfig
	Site      SiteConfig
	Proxy     ProxyConfig
	Fetch     FetchConfig
	Crawl     CrawlConfig
	Browser   BrowserConfig
	API       APIConfig
	Audit     AuditConfig
	Cache     CacheConfig
	Sentry    SentryConfig
}

// ServerConfig controls the HTTP server.
type ServerConfig struct {
	Host string // default: "0.0.0.0"
	Port int    // default: 8080
	Mode string // "debug", "release", "test"; default: "release"

	// ActionTimeout bounds a single inbound action.
	ActionTimeout time.Duration // default: 15m
}

// AuthConfig controls API key authentication.
type AuthConfig struct {
	// Enabled toggles API key authentication.
	Enabled bool // default: true

	// APIKeys is the list of valid API keys.
	APIKeys []string
}

// RateLimitConfig controls per-key rate limiting.
type RateLimitConfig struct {
	// RequestsPerSecond is the sustained rate per API key.
	RequestsPerSecond float64 // default: 2

	// Burst is the maximum burst size per API key.
	Burst int // default: 5
}

// LogConfig controls structured logging.
type LogConfig struct {
	Level  string // default: "info"
	Format string // "json" or "text"; default: "json"
}

// SiteConfig points at the comparison site being scraped.
type SiteConfig struct {
	// BaseURL is the site root without trailing slash.
	BaseURL string // default: "https://www.trovaprezzi.it"

	// NextLabels are the anchor labels that mark the "next page" link.
	NextLabels []string // default: ["Successive", "Successiva", "Successivo", "»"]
}

// ProxyConfig describes the fixed rotating-proxy gateway. Every attempt
// reconnects through the gateway, which hands out a fresh exit address.
type ProxyConfig struct {
	// Gateway is host:port of the proxy gateway. Empty disables the
	// proxied strategies.
	Gateway string

	// Scheme is "http" (CONNECT tunnel) or "socks5"; default: "http".
	Scheme string

	Username string
	Password string
}

// URL returns the proxy URL with credentials, or nil when no gateway is set.
func (p ProxyConfig) URL() *url.URL {
	if p.Gateway == "" {
		return nil
	}
	u := &url.URL{Scheme: p.Scheme, Host: p.Gateway}
	if u.Scheme == "" {
		u.Scheme = "http"
	}
	if p.Username != "" {
		u.User = url.UserPassword(p.Username, p.Password)
	}
	return u
}

// FetchConfig controls the resilient fetch engine.
type FetchConfig struct {
	// MaxRetries bounds the attempts of a fetch to MaxRetries+1.
	MaxRetries int // default: 3

	// TLSProfiles is the enumerated set of client hello profiles drawn
	// from on every attempt.
	TLSProfiles []string // default: ["chrome_120", "chrome_120_pq", "chrome_131"]

	// TLSTimeout bounds one request through a TLS-fingerprinted strategy.
	TLSTimeout time.Duration // default: 45s

	// PlainTimeout bounds one request through a plain HTTP strategy.
	PlainTimeout time.Duration // default: 30s

	// InsecureTLS disables certificate verification on the fingerprinted
	// strategies too. Plain strategies never verify.
	InsecureTLS bool // default: true

	// BlockSignatures are lowercase body substrings that mark a soft-block.
	BlockSignatures []string // default: ["captcha", "blocked", "banned"]
}

// CrawlConfig controls pagination discovery and batch crawling.
type CrawlConfig struct {
	// BatchSize is the default number of pages fetched concurrently.
	BatchSize int // default: 20

	// PauseMin and PauseMax bound the randomized pause between batches.
	PauseMin time.Duration // default: 200ms
	PauseMax time.Duration // default: 500ms

	// VariantPauseMin and VariantPauseMax bound the pause before following
	// a resolved variant or suggestion link.
	VariantPauseMin time.Duration // default: 1s
	VariantPauseMax time.Duration // default: 2s

	// MaxDiscoveryHops caps the "next" links followed by pagination discovery.
	MaxDiscoveryHops int // default: 500

	// CompetitorConcurrency bounds concurrent competitor lookups per job.
	CompetitorConcurrency int // default: 4

	// MaxQuotes caps competitor quotes per product, at most QuoteCap.
	MaxQuotes int // default: 10

	// MinQuotes is the quote count under which suggested products are tried.
	MinQuotes int // default: 4
}

// BrowserConfig controls the optional headless browser strategy.
type BrowserConfig struct {
	// Enabled appends the browser strategy after the four HTTP strategies.
	Enabled bool // default: false

	Headless   bool   // default: true
	NoSandbox  bool   // default: false
	BrowserBin string // overrides the Chromium binary path

	// NavigationTimeout bounds page.Navigate plus DOM settling.
	NavigationTimeout time.Duration // default: 30s

	// BlockedResourceTypes lists resource types aborted by the hijack router.
	BlockedResourceTypes []string // default: ["Image", "Stylesheet", "Font", "Media"]
}

// APIConfig points at the downstream business API that stores results.
type APIConfig struct {
	// BaseURL has no trailing slash. Empty disables outbound pushes.
	BaseURL string // default: "http://172.17.0.1:8000/businessManager"

	// Token is sent as a bearer token when set.
	Token string

	// Secret signs request bodies with HMAC-SHA256 when set.
	Secret string

	Timeout time.Duration // default: 10s
}

// AuditConfig controls the fetch attempt audit log.
type AuditConfig struct {
	// Path is the CSV file attempts are appended to. Empty disables it.
	Path string // default: "request_history.csv"
}

// CacheConfig controls the competitor lookup cache.
type CacheConfig struct {
	// MaxEntries is the maximum number of cached lookups. 0 disables caching.
	MaxEntries int // default: 1000

	// TTL is how long a lookup stays valid.
	TTL time.Duration // default: 6h
}

// SentryConfig controls error reporting.
type SentryConfig struct {
	DSN         string
	Environment string // default: "production"
}

// Load reads configuration from environment variables with sane defaults.
func Load() *Config {
	return &Config{
		Server: ServerConfig{
			Host:          envOr("PRICESCOUT_HOST", "0.0.0.0"),
			Port:          envIntOr("PRICESCOUT_PORT", 8080),
			Mode:          envOr("PRICESCOUT_MODE", "release"),
			ActionTimeout: envDurationOr("PRICESCOUT_ACTION_TIMEOUT", 15*time.Minute),
		},
		Auth: AuthConfig{
			Enabled: envBoolOr("PRICESCOUT_AUTH_ENABLED", true),
			APIKeys: envSliceOr("PRICESCOUT_API_KEYS", nil),
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: envFloatOr("PRICESCOUT_RATE_RPS", 2.0),
			Burst:             envIntOr("PRICESCOUT_RATE_BURST", 5),
		},
		Log: LogConfig{
			Level:  envOr("PRICESCOUT_LOG_LEVEL", "info"),
			Format: envOr("PRICESCOUT_LOG_FORMAT", "json"),
		},
		Site: SiteConfig{
			BaseURL:    strings.TrimRight(envOr("PRICESCOUT_SITE_URL", "https://www.trovaprezzi.it"), "/"),
			NextLabels: envSliceOr("PRICESCOUT_NEXT_LABELS", []string{"Successive", "Successiva", "Successivo", "»"}),
		},
		Proxy: ProxyConfig{
			Gateway:  os.Getenv("PRICESCOUT_PROXY_GATEWAY"),
			Scheme:   envOr("PRICESCOUT_PROXY_SCHEME", "http"),
			Username: os.Getenv("PRICESCOUT_PROXY_USER"),
			Password: os.Getenv("PRICESCOUT_PROXY_PASS"),
		},
		Fetch: FetchConfig{
			MaxRetries:      envIntOr("PRICESCOUT_MAX_RETRIES", 3),
			TLSProfiles:     envSliceOr("PRICESCOUT_TLS_PROFILES", []string{"chrome_120", "chrome_120_pq", "chrome_131"}),
			TLSTimeout:      envDurationOr("PRICESCOUT_TLS_TIMEOUT", 45*time.Second),
			PlainTimeout:    envDurationOr("PRICESCOUT_PLAIN_TIMEOUT", 30*time.Second),
			InsecureTLS:     envBoolOr("PRICESCOUT_INSECURE_TLS", true),
			BlockSignatures: envSliceOr("PRICESCOUT_BLOCK_SIGNATURES", []string{"captcha", "blocked", "banned"}),
		},
		Crawl: CrawlConfig{
			BatchSize:             envIntOr("PRICESCOUT_BATCH_SIZE", 20),
			PauseMin:              envDurationOr("PRICESCOUT_PAUSE_MIN", 200*time.Millisecond),
			PauseMax:              envDurationOr("PRICESCOUT_PAUSE_MAX", 500*time.Millisecond),
			VariantPauseMin:       envDurationOr("PRICESCOUT_VARIANT_PAUSE_MIN", time.Second),
			VariantPauseMax:       envDurationOr("PRICESCOUT_VARIANT_PAUSE_MAX", 2*time.Second),
			MaxDiscoveryHops:      envIntOr("PRICESCOUT_MAX_DISCOVERY_HOPS", 500),
			CompetitorConcurrency: envIntOr("PRICESCOUT_COMPETITOR_CONCURRENCY", 4),
			MaxQuotes:             envIntOr("PRICESCOUT_MAX_QUOTES", QuoteCap),
			MinQuotes:             envIntOr("PRICESCOUT_MIN_QUOTES", 4),
		},
		Browser: BrowserConfig{
			Enabled:           envBoolOr("PRICESCOUT_BROWSER_FALLBACK", false),
			Headless:          envBoolOr("PRICESCOUT_HEADLESS", true),
			NoSandbox:         envBoolOr("PRICESCOUT_NO_SANDBOX", false),
			BrowserBin:        os.Getenv("PRICESCOUT_BROWSER_BIN"),
			NavigationTimeout: envDurationOr("PRICESCOUT_NAV_TIMEOUT", 30*time.Second),
			BlockedResourceTypes: envSliceOr("PRICESCOUT_BLOCKED_RESOURCES", []string{
				"Image", "Stylesheet", "Font", "Media",
			}),
		},
		API: APIConfig{
			BaseURL: strings.TrimRight(envOr("PRICESCOUT_API_BASE_URL", "http://172.17.0.1:8000/businessManager"), "/"),
			Token:   os.Getenv("PRICESCOUT_API_TOKEN"),
			Secret:  os.Getenv("PRICESCOUT_API_SECRET"),
			Timeout: envDurationOr("PRICESCOUT_API_TIMEOUT", 10*time.Second),
		},
		Audit: AuditConfig{
			Path: envOr("PRICESCOUT_AUDIT_PATH", "request_history.csv"),
		},
		Cache: CacheConfig{
			MaxEntries: envIntOr("PRICESCOUT_CACHE_MAX_ENTRIES", 1000),
			TTL:        envDurationOr("PRICESCOUT_CACHE_TTL", 6*time.Hour),
		},
		Sentry: SentryConfig{
			DSN:         os.Getenv("SENTRY_DSN"),
			Environment: envOr("PRICESCOUT_ENV", "production"),
		},
	}
}

// QuoteCap is the most competitor quotes kept per product.
const QuoteCap = 10

// Validate reports configuration values that would make the service
// misbehave rather than fail loudly.
func (c *Config) Validate() error {
	var errs []error
	if _, err := url.Parse(c.Site.BaseURL); err != nil || c.Site.BaseURL == "" {
		errs = append(errs, fmt.Errorf("config: invalid PRICESCOUT_SITE_URL %q", c.Site.BaseURL))
	}
	if c.Fetch.MaxRetries < 0 {
		errs = append(errs, errors.New("config: PRICESCOUT_MAX_RETRIES must be >= 0"))
	}
	if len(c.Fetch.TLSProfiles) == 0 {
		errs = append(errs, errors.New("config: PRICESCOUT_TLS_PROFILES must not be empty"))
	}
	if c.Crawl.BatchSize < 1 {
		errs = append(errs, errors.New("config: PRICESCOUT_BATCH_SIZE must be >= 1"))
	}
	if c.Crawl.MaxQuotes < 1 || c.Crawl.MaxQuotes > QuoteCap {
		errs = append(errs, fmt.Errorf("config: PRICESCOUT_MAX_QUOTES must be between 1 and %d", QuoteCap))
	}
	if c.Crawl.PauseMax < c.Crawl.PauseMin {
		errs = append(errs, errors.New("config: PRICESCOUT_PAUSE_MAX must be >= PRICESCOUT_PAUSE_MIN"))
	}
	if c.Crawl.VariantPauseMax < c.Crawl.VariantPauseMin {
		errs = append(errs, errors.New("config: PRICESCOUT_VARIANT_PAUSE_MAX must be >= PRICESCOUT_VARIANT_PAUSE_MIN"))
	}
	switch c.Proxy.Scheme {
	case "http", "https", "socks5":
	default:
		errs = append(errs, fmt.Errorf("config: unsupported PRICESCOUT_PROXY_SCHEME %q", c.Proxy.Scheme))
	}
	return errors.Join(errs...)
}

// --- helper functions ---

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envIntOr(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func envBoolOr(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func envFloatOr(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envDurationOr(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func envSliceOr(key string, fallback []string) []string {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		result := make([]string, 0, len(parts))
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				result = append(result, trimmed)
			}
		}
		return result
	}
	return fallback
}
