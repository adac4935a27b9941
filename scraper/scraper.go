// Package scraper implements the inbound actions on top of the fetch
// engine, the crawler and the extraction layer.
package scraper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/use-agent/pricescout/cache"
	"github.com/use-agent/pricescout/config"
	"github.com/use-agent/pricescout/crawler"
	"github.com/use-agent/pricescout/engine"
	"github.com/use-agent/pricescout/models"
	"github.com/use-agent/pricescout/webhook"
)

// Scraper owns the long-lived collaborators of the actions. It is safe for
// concurrent use; every task draws its own engine from the factory.
type Scraper struct {
	cfg     *config.Config
	factory *engine.Factory
	crawler *crawler.Crawler
	api     *webhook.Client
	cache   *cache.Cache

	startTime time.Time
	now       func() time.Time

	// pause runs before a resolved variant or suggestion is followed.
	pause func(ctx context.Context) error
}

// New wires a Scraper. api and c may be nil.
func New(cfg *config.Config, factory *engine.Factory, api *webhook.Client, c *cache.Cache) *Scraper {
	var pusher crawler.Pusher
	if api != nil {
		pusher = api
	}
	s := &Scraper{
		cfg:       cfg,
		factory:   factory,
		crawler:   crawler.New(cfg, factory, pusher),
		api:       api,
		cache:     c,
		startTime: time.Now(),
		now:       time.Now,
	}
	s.pause = func(ctx context.Context) error {
		return crawler.Sleep(ctx, crawler.Jitter(cfg.Crawl.VariantPauseMin, cfg.Crawl.VariantPauseMax))
	}
	return s
}

// Health reports the service state for the health endpoint.
func (s *Scraper) Health(version string) models.HealthResponse {
	status := "healthy"
	if !s.factory.ProxyConfigured() {
		status = "degraded"
	}
	return models.HealthResponse{
		Status:          status,
		Uptime:          time.Since(s.startTime).Round(time.Second).String(),
		Version:         version,
		Transports:      s.factory.TransportNames(),
		ProxyConfigured: s.factory.ProxyConfigured(),
		CacheEntries:    s.cache.Len(),
	}
}

// Close waits for pending business API pushes, then stops the cache and
// the browser. Call this on graceful shutdown.
func (s *Scraper) Close() {
	slog.Info("scraper shutting down: waiting for pending pushes")
	if s.api != nil {
		s.api.Wait()
	}
	s.cache.Close()
	if err := s.factory.Close(); err != nil {
		slog.Warn("browser close failed", "error", err)
	}
	slog.Info("scraper shutdown complete")
}

// siteURL joins a path (and optional query) onto the site root.
func (s *Scraper) siteURL(path string, q url.Values) string {
	u := s.cfg.Site.BaseURL + path
	if len(q) > 0 {
		u += "?" + q.Encode()
	}
	return u
}

func (s *Scraper) merchantURL(vendor string) string {
	return s.siteURL("/negozi/"+url.PathEscape(vendor), nil)
}

func (s *Scraper) categoriesURL(vendor string) string {
	return s.siteURL("/negozi/"+url.PathEscape(vendor)+"/categorie", nil)
}

// SearchURL returns the product search URL for title. A missing category,
// or the catch-all category "1", searches every category.
func (s *Scraper) SearchURL(title, categoryID string) string {
	if categoryID == "" || categoryID == "1" {
		categoryID = "-1"
	}
	return s.siteURL("/categoria.aspx", url.Values{"id": {categoryID}, "libera": {title}})
}

// fetch runs one engine fetch and turns every unusable outcome into a
// coded error.
func (s *Scraper) fetch(ctx context.Context, eng *engine.Engine, rawURL string) (*models.FetchResult, error) {
	res, err := eng.Fetch(ctx, rawURL, s.cfg.Fetch.MaxRetries)
	if err != nil {
		return nil, categorizeError(err, "fetch "+rawURL)
	}
	switch {
	case res.Blocked:
		return res, models.NewScrapeError(models.ErrCodeBlocked,
			fmt.Sprintf("%s still blocked after %d attempts (status %d)", rawURL, res.Attempts, res.StatusCode), nil)
	case res.StatusCode == http.StatusNotFound:
		return res, models.NewScrapeError(models.ErrCodeNotFound, rawURL+" not found", nil)
	case !res.OK():
		return res, models.NewScrapeError(models.ErrCodeUpstreamStatus,
			fmt.Sprintf("%s answered %d", rawURL, res.StatusCode), nil)
	}
	return res, nil
}

// categorizeError wraps raw errors into typed ScrapeErrors so the API layer
// can map them to appropriate HTTP status codes.
func categorizeError(err error, msg string) *models.ScrapeError {
	var se *models.ScrapeError
	switch {
	case errors.As(err, &se):
		return se
	case errors.Is(err, context.DeadlineExceeded):
		return models.NewScrapeError(models.ErrCodeTimeout, msg, err)
	case errors.Is(err, context.Canceled):
		return models.NewScrapeError(models.ErrCodeTimeout, "request canceled", err)
	default:
		return models.NewScrapeError(models.ErrCodeInternal, msg, err)
	}
}
