package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()

	assert.Equal(t, "https://www.trovaprezzi.it", cfg.Site.BaseURL)
	assert.Equal(t, 3, cfg.Fetch.MaxRetries)
	assert.Equal(t, []string{"chrome_120", "chrome_120_pq", "chrome_131"}, cfg.Fetch.TLSProfiles)
	assert.Equal(t, 30*time.Second, cfg.Fetch.PlainTimeout)
	assert.Equal(t, 20, cfg.Crawl.BatchSize)
	assert.Nil(t, cfg.Proxy.URL())
	require.NoError(t, cfg.Validate())
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("PRICESCOUT_SITE_URL", "http://127.0.0.1:9999/")
	t.Setenv("PRICESCOUT_PROXY_GATEWAY", "gw.example.net:33335")
	t.Setenv("PRICESCOUT_PROXY_USER", "scout")
	t.Setenv("PRICESCOUT_PROXY_PASS", "s3cret")
	t.Setenv("PRICESCOUT_TLS_PROFILES", "chrome_131, chrome_120")
	t.Setenv("PRICESCOUT_PAUSE_MAX", "1s")

	cfg := Load()

	assert.Equal(t, "http://127.0.0.1:9999", cfg.Site.BaseURL)
	assert.Equal(t, []string{"chrome_131", "chrome_120"}, cfg.Fetch.TLSProfiles)
	assert.Equal(t, time.Second, cfg.Crawl.PauseMax)

	u := cfg.Proxy.URL()
	require.NotNil(t, u)
	assert.Equal(t, "http", u.Scheme)
	assert.Equal(t, "gw.example.net:33335", u.Host)
	pass, _ := u.User.Password()
	assert.Equal(t, "s3cret", pass)
	assert.NotContains(t, u.Redacted(), "s3cret")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"negative retries", func(c *Config) { c.Fetch.MaxRetries = -1 }},
		{"no tls profiles", func(c *Config) { c.Fetch.TLSProfiles = nil }},
		{"zero batch", func(c *Config) { c.Crawl.BatchSize = 0 }},
		{"zero max quotes", func(c *Config) { c.Crawl.MaxQuotes = 0 }},
		{"negative max quotes", func(c *Config) { c.Crawl.MaxQuotes = -3 }},
		{"max quotes over cap", func(c *Config) { c.Crawl.MaxQuotes = QuoteCap + 1 }},
		{"inverted pause", func(c *Config) { c.Crawl.PauseMin = time.Second; c.Crawl.PauseMax = time.Millisecond }},
		{"bad proxy scheme", func(c *Config) { c.Proxy.Scheme = "ftp" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Load()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
