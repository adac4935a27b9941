package scraper

import (
	"context"
	"log/slog"

	"github.com/use-agent/pricescout/crawler"
	"github.com/use-agent/pricescout/extract"
	"github.com/use-agent/pricescout/models"
)

// MerchantInfo scrapes the merchant profile and its category list and
// pushes both to the business API. A failed category page is reported in
// the result without failing the action.
func (s *Scraper) MerchantInfo(ctx context.Context, req models.VendorRequest) (*models.MerchantInfoResult, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	vendor := req.VendorID
	eng := s.factory.New()

	res, err := s.fetch(ctx, eng, s.merchantURL(vendor))
	if err != nil {
		return nil, err
	}
	doc, err := extract.Parse(res.Body, res.URL)
	if err != nil {
		return nil, categorizeError(err, "parse merchant page")
	}

	out := &models.MerchantInfoResult{
		Merchant:   extract.ParseMerchant(doc, vendor, s.now()),
		Categories: []models.Category{},
	}

	cats, err := s.categories(ctx, vendor)
	if err != nil {
		slog.Warn("category page failed", "vendor", vendor, "error", err)
		out.CategoriesError = categorizeError(err, "categories").ToDetail()
	} else {
		out.Categories = cats
	}

	slog.Info("merchant scraped",
		"vendor", vendor,
		"categories", len(out.Categories),
		"attempts", res.Attempts,
	)

	if s.api != nil {
		if err := s.api.AddMerchantInfo(ctx, vendor, out.Merchant, out.Categories); err != nil {
			slog.Warn("add-merchant-info push failed", "vendor", vendor, "error", err)
		}
	}
	return out, nil
}

func (s *Scraper) categories(ctx context.Context, vendor string) ([]models.Category, error) {
	res, err := s.fetch(ctx, s.factory.New(), s.categoriesURL(vendor))
	if err != nil {
		return nil, err
	}
	doc, err := extract.Parse(res.Body, res.URL)
	if err != nil {
		return nil, err
	}
	cats := extract.ParseCategories(doc)
	if cats == nil {
		cats = []models.Category{}
	}
	return cats, nil
}

// PaginationURLs builds the page plan of a merchant's offer listing.
func (s *Scraper) PaginationURLs(ctx context.Context, req models.PaginationRequest) (*models.PaginationResult, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	vendor := req.VendorID

	var (
		plan []models.PageRef
		err  error
	)
	if req.ByCategory {
		var cats []models.Category
		cats, err = s.categories(ctx, vendor)
		if err == nil {
			plan = s.crawler.PlanCategories(vendor, cats)
		}
	} else {
		plan, err = s.crawler.DiscoverPages(ctx, vendor)
	}
	if err != nil {
		return nil, err
	}
	if len(plan) == 0 {
		return nil, models.NewScrapeError(models.ErrCodeFetchExhausted, "no offer pages found for "+vendor, nil)
	}
	return &models.PaginationResult{Vendor: vendor, Pages: plan}, nil
}

// SellerProducts scrapes every unscraped page of the plan. The vendor is
// read from the page URLs. Pages that fail stay unscraped so the caller
// can submit the same plan again.
func (s *Scraper) SellerProducts(ctx context.Context, req models.SellerProductsRequest) (*models.SellerProductsResult, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	vendor, ok := crawler.VendorFromURL(req.Pages[0].URL)
	if !ok {
		return nil, models.NewScrapeError(models.ErrCodeInvalidInput, "pages[0].url is not a /negozi/{vendor}/ URL", nil)
	}

	pages := s.crawler.CrawlBatch(ctx, req.Pages, vendor, req.BatchSize)

	out := &models.SellerProductsResult{Vendor: vendor, Pages: pages}
	for _, p := range pages {
		if p.Scraped {
			out.ScrapedPages++
			out.TotalProducts += p.ProductCount
		}
	}
	slog.Info("seller products crawl finished",
		"vendor", vendor,
		"scraped_pages", out.ScrapedPages,
		"pages", len(pages),
		"products", out.TotalProducts,
	)
	return out, nil
}
