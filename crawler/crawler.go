// Package crawler discovers a merchant's offer pages and scrapes them in
// bounded concurrent batches.
package crawler

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"net/url"
	"runtime/debug"
	"slices"
	"strings"
	"time"

	"github.com/getsentry/sentry-go"
	"golang.org/x/sync/errgroup"

	"github.com/use-agent/pricescout/config"
	"github.com/use-agent/pricescout/engine"
	"github.com/use-agent/pricescout/extract"
	"github.com/use-agent/pricescout/models"
)

// Pusher receives every scraped page. Push errors are logged and never
// fail the crawl.
type Pusher interface {
	AddProducts(ctx context.Context, vendor string, page models.PageRef) error
}

// Crawler drives pagination discovery and batch scraping. It holds no
// per-crawl state and is safe for concurrent use.
type Crawler struct {
	factory    *engine.Factory
	pusher     Pusher
	site       config.SiteConfig
	crawl      config.CrawlConfig
	maxRetries int
	now        func() time.Time
}

// New creates a crawler. pusher may be nil.
func New(cfg *config.Config, factory *engine.Factory, pusher Pusher) *Crawler {
	return &Crawler{
		factory:    factory,
		pusher:     pusher,
		site:       cfg.Site,
		crawl:      cfg.Crawl,
		maxRetries: cfg.Fetch.MaxRetries,
		now:        time.Now,
	}
}

// OffersURL returns the offer listing URL of vendor, optionally filtered
// by category and positioned on page (0 means no page parameter).
func (c *Crawler) OffersURL(vendor, categoryID string, page int) string {
	u := c.site.BaseURL + "/negozi/" + url.PathEscape(vendor) + "/offerte"
	q := url.Values{}
	if categoryID != "" {
		q.Set("category_id", categoryID)
	}
	if page > 0 {
		q.Set("page", fmt.Sprint(page))
	}
	if len(q) > 0 {
		u += "?" + q.Encode()
	}
	return u
}

// DiscoverPages walks the "next" links of the vendor's offer listing and
// returns a plan covering pages 1 through the highest page number seen.
//
// The walk stops at the first page without numeric pagination links or
// without a next link, on a fetch failure, on a URL seen before, or after
// MaxDiscoveryHops pages. Whatever was learnt up to that point is returned;
// a failure on the very first page yields an empty plan. The only error is
// an invalid vendor id.
func (c *Crawler) DiscoverPages(ctx context.Context, vendor string) ([]models.PageRef, error) {
	req := models.VendorRequest{VendorID: vendor}
	if err := req.Validate(); err != nil {
		return nil, err
	}
	vendor = req.VendorID

	hops := c.crawl.MaxDiscoveryHops
	if hops <= 0 {
		hops = 500
	}

	current := c.OffersURL(vendor, "", 0)
	seen := make(map[string]bool)
	last := 0

	for hop := 0; hop < hops; hop++ {
		if seen[current] {
			slog.Warn("pagination loops back, stopping", "vendor", vendor, "url", current)
			break
		}
		seen[current] = true

		res, err := c.factory.New().Fetch(ctx, current, c.maxRetries)
		if err != nil || !res.OK() {
			slog.Warn("pagination fetch failed, keeping partial plan",
				"vendor", vendor,
				"url", current,
				"pages_so_far", last,
				"error", fetchFailure(res, err),
			)
			break
		}

		doc, err := extract.Parse(res.Body, res.URL)
		if err != nil {
			slog.Warn("pagination page unparseable", "vendor", vendor, "url", current, "error", err)
			break
		}
		numbers, next := extract.ParsePagination(doc, c.site.NextLabels)
		if len(numbers) == 0 {
			// A fetched page without pagination is a single-page listing.
			last = max(last, 1)
			break
		}
		last = max(last, slices.Max(numbers))
		slog.Debug("pagination hop", "vendor", vendor, "url", current, "max_page", last)

		if next == "" {
			break
		}
		current = next
	}

	plan := make([]models.PageRef, 0, last)
	for n := 1; n <= last; n++ {
		plan = append(plan, models.PageRef{
			PageNumber: n,
			URL:        c.OffersURL(vendor, "", n),
			Products:   []models.Product{},
		})
	}
	slog.Info("pagination discovered", "vendor", vendor, "pages", len(plan))
	return plan, nil
}

// PlanCategories builds a plan from merchant categories whose page counts
// are already known, one entry per category page.
func (c *Crawler) PlanCategories(vendor string, cats []models.Category) []models.PageRef {
	var plan []models.PageRef
	for _, cat := range cats {
		for n := 1; n <= max(1, cat.Pages); n++ {
			plan = append(plan, models.PageRef{
				PageNumber:   n,
				URL:          c.OffersURL(vendor, cat.ID, n),
				Products:     []models.Product{},
				CategoryID:   cat.ID,
				CategoryName: cat.Name,
			})
		}
	}
	return plan
}

// CrawlBatch scrapes every unscraped page of the plan, batchSize pages at
// a time, and returns the same slice updated in place. Batches run one
// after another with a short randomized pause between them. A page whose
// fetch fails or is blocked stays unscraped for a later call.
func (c *Crawler) CrawlBatch(ctx context.Context, pages []models.PageRef, vendor string, batchSize int) []models.PageRef {
	if batchSize <= 0 {
		batchSize = c.crawl.BatchSize
	}
	if batchSize <= 0 {
		batchSize = 1
	}
	for i := range pages {
		if pages[i].Products == nil {
			pages[i].Products = []models.Product{}
		}
	}

	for start := 0; start < len(pages); start += batchSize {
		if ctx.Err() != nil {
			slog.Warn("crawl canceled, leaving remaining pages unscraped", "vendor", vendor, "next_index", start)
			break
		}
		end := min(start+batchSize, len(pages))

		var g errgroup.Group
		launched := 0
		for i := start; i < end; i++ {
			if pages[i].Scraped {
				pagesTotal.WithLabelValues("skipped").Inc()
				continue
			}
			launched++
			g.Go(func() error {
				defer c.recoverPage(&pages[i], vendor)
				c.scrapePage(ctx, &pages[i], vendor)
				return nil
			})
		}
		_ = g.Wait()

		if launched > 0 && end < len(pages) {
			if err := Sleep(ctx, Jitter(c.crawl.PauseMin, c.crawl.PauseMax)); err != nil {
				break
			}
		}
	}
	return pages
}

// scrapePage fetches one listing page with its own engine and fills the
// entry. Only this goroutine touches *p.
func (c *Crawler) scrapePage(ctx context.Context, p *models.PageRef, vendor string) {
	res, err := c.factory.New().Fetch(ctx, p.URL, c.maxRetries)
	if err != nil || !res.OK() {
		pagesTotal.WithLabelValues("failed").Inc()
		slog.Warn("page fetch failed, leaving unscraped",
			"vendor", vendor,
			"page", p.PageNumber,
			"url", p.URL,
			"error", fetchFailure(res, err),
		)
		return
	}

	doc, err := extract.Parse(res.Body, res.URL)
	if err != nil {
		pagesTotal.WithLabelValues("failed").Inc()
		slog.Warn("page unparseable", "vendor", vendor, "page", p.PageNumber, "error", err)
		return
	}

	now := c.now()
	offers := extract.ParseOffers(doc)
	products := make([]models.Product, 0, len(offers))
	for _, o := range offers {
		products = append(products, models.Product{
			Name:       o.Name,
			TotalPrice: o.Price,
			VendorName: vendor,
			SourceURL:  res.URL,
			ScrapedAt:  now,
			PageNumber: p.PageNumber,
			CategoryID: p.CategoryID,
		})
	}

	p.Scraped = true
	p.ProductCount = len(products)
	p.Products = products
	pagesTotal.WithLabelValues("scraped").Inc()
	productsTotal.Add(float64(len(products)))

	slog.Info("page scraped",
		"vendor", vendor,
		"page", p.PageNumber,
		"products", len(products),
		"attempts", res.Attempts,
		"transport", res.Transport,
	)

	if c.pusher == nil {
		return
	}
	if err := c.pusher.AddProducts(ctx, vendor, *p); err != nil {
		slog.Warn("add-products push failed", "vendor", vendor, "page", p.PageNumber, "error", err)
	}
}

// recoverPage turns a panic while scraping p into an unscraped page so
// the rest of the batch carries on. Deferred directly by the page task.
func (c *Crawler) recoverPage(p *models.PageRef, vendor string) {
	r := recover()
	if r == nil {
		return
	}
	err := fmt.Errorf("panic scraping %s page %d: %v", vendor, p.PageNumber, r)
	sentry.WithScope(func(scope *sentry.Scope) {
		scope.SetTag("vendor", vendor)
		scope.SetTag("url", p.URL)
		scope.SetContext("panic", map[string]any{"stack": string(debug.Stack())})
		sentry.CaptureException(err)
	})
	slog.Error("page task panicked, leaving unscraped", "vendor", vendor, "page", p.PageNumber, "panic", r)

	pagesTotal.WithLabelValues("failed").Inc()
	p.Scraped = false
	p.ProductCount = 0
	p.Products = []models.Product{}
}

// VendorFromURL extracts the vendor slug from a /negozi/{vendor}/... URL.
func VendorFromURL(raw string) (string, bool) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", false
	}
	segs := strings.Split(strings.Trim(u.Path, "/"), "/")
	for i := 0; i+1 < len(segs); i++ {
		if segs[i] == "negozi" && segs[i+1] != "" {
			return segs[i+1], true
		}
	}
	return "", false
}

// Jitter returns a random duration in [lo, hi].
func Jitter(lo, hi time.Duration) time.Duration {
	if hi <= lo {
		return lo
	}
	return lo + rand.N(hi-lo+1)
}

// Sleep waits for d or until ctx is done.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// fetchFailure describes why a fetch produced nothing usable.
func fetchFailure(res *models.FetchResult, err error) string {
	switch {
	case err != nil:
		return err.Error()
	case res == nil:
		return "no response"
	case res.Blocked:
		return fmt.Sprintf("blocked (status %d)", res.StatusCode)
	default:
		return fmt.Sprintf("status %d", res.StatusCode)
	}
}
