package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// Inbound action names.
const (
	ActionMerchantInfo        = "scrape_merchant_info"
	ActionPaginationURLs      = "get_pagination_urls"
	ActionSellerProducts      = "scrape_seller_products_by_category"
	ActionProductsCompetitors = "scrape_products_competitors"
)

// ActionRequest is an inbound invocation: an action name and its payload.
type ActionRequest struct {
	Action  string          `json:"action"`
	Payload json.RawMessage `json:"payload"`
}

// ActionResult is the tagged outcome of an action. Data is populated on
// success (and sometimes partially on failure), Error only on failure.
type ActionResult struct {
	Success bool         `json:"success"`
	Action  string       `json:"action"`
	Data    any          `json:"data,omitempty"`
	Error   *ErrorDetail `json:"error,omitempty"`
}

// VendorRequest is the payload of scrape_merchant_info and get_pagination_urls.
type VendorRequest struct {
	VendorID string `json:"vendor_id"`
}

// Validate checks that the vendor id is a single path segment.
func (r *VendorRequest) Validate() error {
	r.VendorID = strings.TrimSpace(r.VendorID)
	if r.VendorID == "" {
		return NewScrapeError(ErrCodeInvalidInput, "vendor_id is required", nil)
	}
	if strings.ContainsAny(r.VendorID, "/?#") {
		return NewScrapeError(ErrCodeInvalidInput, fmt.Sprintf("vendor_id %q is not a path segment", r.VendorID), nil)
	}
	return nil
}

// PaginationRequest is the payload of get_pagination_urls. With ByCategory
// the plan is built from the merchant's category list instead of walking
// the unfiltered listing.
type PaginationRequest struct {
	VendorRequest
	ByCategory bool `json:"by_category,omitempty"`
}

// SellerProductsRequest is the payload of scrape_seller_products_by_category.
type SellerProductsRequest struct {
	Pages     []PageRef `json:"pages"`
	BatchSize int       `json:"batch_size,omitempty"`
}

// Validate checks the pagination plan.
func (r *SellerProductsRequest) Validate() error {
	if len(r.Pages) == 0 {
		return NewScrapeError(ErrCodeInvalidInput, "pages must not be empty", nil)
	}
	for i, p := range r.Pages {
		if p.URL == "" {
			return NewScrapeError(ErrCodeInvalidInput, fmt.Sprintf("pages[%d].url is required", i), nil)
		}
	}
	if r.BatchSize < 0 {
		return NewScrapeError(ErrCodeInvalidInput, "batch_size must be >= 0", nil)
	}
	return nil
}

// FlexibleID accepts both string and numeric ids from the business API.
type FlexibleID string

// ProductID identifies a product of a competitors job.
type ProductID = FlexibleID

func (id *FlexibleID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*id = FlexibleID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("id: %w", err)
	}
	*id = FlexibleID(n.String())
	return nil
}

// ExistingRecord carries what the business API already knows about a product.
type ExistingRecord struct {
	// URL is a known product page; when set the search step is skipped.
	URL string `json:"url,omitempty"`
}

// ProductInput is one product to price against competitors.
type ProductInput struct {
	ID       ProductID `json:"id"`
	Name     string    `json:"name"`
	Category struct {
		ID FlexibleID `json:"id"`
	} `json:"category"`
	ExistingRecord *ExistingRecord `json:"existing_record,omitempty"`
}

// CompetitorsRequest is the payload of scrape_products_competitors.
type CompetitorsRequest struct {
	JobID    string         `json:"job_id"`
	Job      map[string]any `json:"job,omitempty"`
	Products []ProductInput `json:"products"`
}

// Validate checks the job id and product list.
func (r *CompetitorsRequest) Validate() error {
	if strings.TrimSpace(r.JobID) == "" {
		return NewScrapeError(ErrCodeInvalidInput, "job_id is required", nil)
	}
	if len(r.Products) == 0 {
		return NewScrapeError(ErrCodeInvalidInput, "products must not be empty", nil)
	}
	for i, p := range r.Products {
		if strings.TrimSpace(p.Name) == "" && (p.ExistingRecord == nil || p.ExistingRecord.URL == "") {
			return NewScrapeError(ErrCodeInvalidInput, fmt.Sprintf("products[%d] needs a name or existing_record.url", i), nil)
		}
	}
	return nil
}

// MerchantInfoResult is the data of a successful scrape_merchant_info.
type MerchantInfoResult struct {
	Merchant        Merchant     `json:"merchant_data"`
	Categories      []Category   `json:"categories"`
	CategoriesError *ErrorDetail `json:"categories_error,omitempty"`
}

// SellerProductsResult is the data of scrape_seller_products_by_category.
type SellerProductsResult struct {
	Vendor        string    `json:"vendor"`
	Pages         []PageRef `json:"pages"`
	ScrapedPages  int       `json:"scraped_pages"`
	TotalProducts int       `json:"total_products"`
}

// PaginationResult is the data of get_pagination_urls.
type PaginationResult struct {
	Vendor string    `json:"vendor"`
	Pages  []PageRef `json:"pages"`
}

// ProductCompetitors is the per-product entry of a competitors job.
type ProductCompetitors struct {
	ProductID ProductID `json:"product_id"`
	Name      string    `json:"name"`
	Cached    bool      `json:"cached,omitempty"`
	CompetitorLookup
}

// CompetitorsResult is the data of scrape_products_competitors.
type CompetitorsResult struct {
	JobID     string               `json:"job_id"`
	Status    string               `json:"status"`
	Results   []ProductCompetitors `json:"result_data"`
	Succeeded int                  `json:"succeeded"`
}
