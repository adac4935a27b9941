package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Prices are sent to the business API as JSON numbers.
func init() { decimal.MarshalJSONWithoutQuotes = true }

// PageRef is one entry of a pagination plan. A plan is a []PageRef that
// is mutated in place and never shrinks.
type PageRef struct {
	PageNumber   int       `json:"page_number"`
	URL          string    `json:"url"`
	Scraped      bool      `json:"scraped"`
	ProductCount int       `json:"scraped_products"`
	Products     []Product `json:"products"`
	CategoryID   string    `json:"category_id,omitempty"`
	CategoryName string    `json:"category_name,omitempty"`
}

// Product is an offer listed on a merchant's offer page.
type Product struct {
	Name       string          `json:"name"`
	TotalPrice decimal.Decimal `json:"total_price"`
	VendorName string          `json:"vendor_name"`
	SourceURL  string          `json:"source_url"`
	ScrapedAt  time.Time       `json:"scraped_at"`
	PageNumber int             `json:"page_number"`
	CategoryID string          `json:"category_id,omitempty"`
}

// CompetitorQuote is a price offered by another merchant for the same item.
type CompetitorQuote struct {
	Price  decimal.Decimal `json:"price"`
	Vendor string          `json:"vendor"`
}

// VariantCandidate is a link considered while disambiguating a search.
type VariantCandidate struct {
	Label      string `json:"label"`
	TargetURL  string `json:"url"`
	MatchScore int    `json:"match_score"`
}

// Merchant is the profile shown on a merchant's page.
type Merchant struct {
	BusinessName string    `json:"business_name"`
	ScrapedAt    time.Time `json:"scraping_date"`
	SourceURL    string    `json:"source_url"`
	Website      string    `json:"website,omitempty"`
	Domain       string    `json:"domain,omitempty"`
	Email        string    `json:"email,omitempty"`
	Address      string    `json:"address,omitempty"`
	Phone        string    `json:"phone,omitempty"`
	Description  string    `json:"description,omitempty"`
	Rating       *Rating   `json:"rating,omitempty"`
	Logo         *Logo     `json:"logo,omitempty"`
}

// Rating is the merchant's last-year review summary.
type Rating struct {
	Label       string `json:"label,omitempty"`
	Description string `json:"description,omitempty"`
	Score       string `json:"score,omitempty"`
	Reviews     string `json:"reviews,omitempty"`
}

// Logo is the merchant's logo image.
type Logo struct {
	URL   string `json:"url"`
	Alt   string `json:"alt,omitempty"`
	Title string `json:"title,omitempty"`
}

// Category is a product category a merchant sells in.
type Category struct {
	ID           string `json:"category_id"`
	Name         string `json:"name"`
	URL          string `json:"url"`
	ProductCount int    `json:"product_count"`
	Pages        int    `json:"pages"`
}

// CompetitorLookup is the outcome of searching one product title.
type CompetitorLookup struct {
	Title     string            `json:"title"`
	SourceURL string            `json:"source_url,omitempty"`
	Quotes    []CompetitorQuote `json:"competitors"`

	// Resolved is the candidate followed to reach the product page, if any.
	Resolved *VariantCandidate `json:"resolved,omitempty"`

	Success bool         `json:"success"`
	Error   *ErrorDetail `json:"error,omitempty"`
}
