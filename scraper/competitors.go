package scraper

import (
	"context"
	"log/slog"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/sync/errgroup"

	"github.com/use-agent/pricescout/cache"
	"github.com/use-agent/pricescout/config"
	"github.com/use-agent/pricescout/engine"
	"github.com/use-agent/pricescout/extract"
	"github.com/use-agent/pricescout/models"
	"github.com/use-agent/pricescout/webhook"
)

// Job statuses reported to the business API.
const (
	JobCompleted = "completed"
	JobFailed    = "failed"
)

// Competitors prices every product of a job against other merchants,
// a bounded number of products at a time, then reports the job outcome to
// the business API in the background. The job is completed when at least
// one product was priced.
func (s *Scraper) Competitors(ctx context.Context, req models.CompetitorsRequest) (*models.CompetitorsResult, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	results := make([]models.ProductCompetitors, len(req.Products))
	var g errgroup.Group
	g.SetLimit(max(1, s.cfg.Crawl.CompetitorConcurrency))
	for i, p := range req.Products {
		g.Go(func() error {
			defer func() {
				if r := recover(); r != nil {
					err := reportPanic(models.ActionProductsCompetitors, r)
					results[i] = failedProduct(p, models.NewScrapeError(models.ErrCodeInternal, "internal error", err))
				}
			}()
			results[i] = s.productCompetitors(ctx, p)
			return nil
		})
	}
	_ = g.Wait()

	out := &models.CompetitorsResult{JobID: req.JobID, Status: JobFailed, Results: results}
	for _, r := range results {
		if r.Success {
			out.Succeeded++
		}
	}
	if out.Succeeded > 0 {
		out.Status = JobCompleted
	}

	slog.Info("competitors job finished",
		"job_id", req.JobID,
		"products", len(results),
		"succeeded", out.Succeeded,
		"status", out.Status,
	)

	if s.api != nil {
		s.api.UpdateJob(webhook.JobUpdate{
			Job:        req.Job,
			JobID:      req.JobID,
			Status:     out.Status,
			ResultData: results,
		})
	}
	return out, nil
}

// productCompetitors serves a search-based lookup from the cache when it
// can. Lookups from a known product page are never cached.
func (s *Scraper) productCompetitors(ctx context.Context, p models.ProductInput) models.ProductCompetitors {
	out := models.ProductCompetitors{ProductID: p.ID, Name: p.Name}

	direct := p.ExistingRecord != nil && p.ExistingRecord.URL != ""
	key := cache.Key(p.Name, string(p.Category.ID))
	if !direct {
		if hit, ok := s.cache.Get(key); ok {
			out.CompetitorLookup = *hit
			out.Cached = true
			return out
		}
	}

	lk := s.LookupCompetitors(ctx, p)
	if lk.Success && !direct {
		s.cache.Set(key, &lk)
	}
	out.CompetitorLookup = lk
	return out
}

func failedProduct(p models.ProductInput, se *models.ScrapeError) models.ProductCompetitors {
	return models.ProductCompetitors{
		ProductID: p.ID,
		Name:      p.Name,
		CompetitorLookup: models.CompetitorLookup{
			Title:  p.Name,
			Quotes: []models.CompetitorQuote{},
			Error:  se.ToDetail(),
		},
	}
}

// LookupCompetitors finds the quotes other merchants offer for a product.
//
// With a known product page the quotes are read from it directly.
// Otherwise the title is searched; when the result is a product family
// the best-matching variant is followed, and when fewer than MinQuotes
// quotes were found the best-matching suggested product contributes its
// quotes too. At most MaxQuotes quotes are returned, in page order.
func (s *Scraper) LookupCompetitors(ctx context.Context, p models.ProductInput) models.CompetitorLookup {
	lk := models.CompetitorLookup{Title: p.Name, Quotes: []models.CompetitorQuote{}}
	eng := s.factory.New()

	target := s.SearchURL(strings.TrimSpace(p.Name), string(p.Category.ID))
	direct := p.ExistingRecord != nil && p.ExistingRecord.URL != ""
	if direct {
		target = p.ExistingRecord.URL
	}

	res, err := s.fetch(ctx, eng, target)
	if err != nil {
		lk.Error = categorizeError(err, "competitor search").ToDetail()
		slog.Warn("competitor lookup failed", "title", p.Name, "url", target, "error", err)
		return lk
	}
	doc, err := extract.Parse(res.Body, res.URL)
	if err != nil {
		lk.Error = categorizeError(err, "parse search page").ToDetail()
		return lk
	}
	lk.SourceURL = res.URL

	if !direct && p.Name != "" && extract.HasVariations(doc) {
		if best, ok := extract.ResolveBestCandidate(p.Name, extract.VariantCandidates(doc)); ok {
			if vdoc, vurl, ok := s.follow(ctx, eng, best, "variant"); ok {
				doc = vdoc
				lk.SourceURL = vurl
				lk.Resolved = &best
			}
		}
	}

	quotes := extract.ParseQuotes(doc, 0)

	if !direct && p.Name != "" && len(quotes) < s.cfg.Crawl.MinQuotes {
		if best, ok := extract.ResolveBestCandidate(p.Name, extract.SuggestionCandidates(doc)); ok {
			if sdoc, _, ok := s.follow(ctx, eng, best, "suggestion"); ok {
				extra := extract.ParseQuotes(sdoc, 0)
				quotes = append(quotes, extra...)
				if len(extra) > 0 && lk.Resolved == nil {
					lk.Resolved = &best
				}
			}
		}
	}

	limit := s.cfg.Crawl.MaxQuotes
	if limit < 1 || limit > config.QuoteCap {
		limit = config.QuoteCap
	}
	if len(quotes) > limit {
		quotes = quotes[:limit]
	}
	lk.Quotes = append(lk.Quotes, quotes...)
	lk.Success = true

	slog.Info("competitors found",
		"title", p.Name,
		"quotes", len(quotes),
		"source", lk.SourceURL,
	)
	return lk
}

// follow pauses briefly, then fetches and parses a resolved candidate.
// Failures are logged and reported as !ok; the caller keeps what it had.
func (s *Scraper) follow(ctx context.Context, eng *engine.Engine, c models.VariantCandidate, kind string) (*goquery.Document, string, bool) {
	slog.Debug("following candidate", "kind", kind, "label", c.Label, "score", c.MatchScore, "url", c.TargetURL)
	if err := s.pause(ctx); err != nil {
		return nil, "", false
	}
	res, err := s.fetch(ctx, eng, c.TargetURL)
	if err != nil {
		slog.Warn("candidate page unusable", "kind", kind, "url", c.TargetURL, "error", err)
		return nil, "", false
	}
	doc, err := extract.Parse(res.Body, res.URL)
	if err != nil {
		return nil, "", false
	}
	return doc, res.URL, true
}
