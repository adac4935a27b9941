package extract

import (
	"log/slog"
	"net/url"
	"path"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/shopspring/decimal"

	"github.com/use-agent/pricescout/models"
)

var (
	itemName       = sel("a.item_name")
	itemTotalPrice = sel("div.item_total_price")
	merchantName   = sel("div.merchant_name_and_logo")
	paginationLink = sel("div.pagination a")
)

// Offer is one row of a merchant's offer listing.
type Offer struct {
	Name  string
	Price decimal.Decimal
}

// ParseOffers pairs item names with total prices by position. When the two
// lists differ in length the extra entries are dropped; a row whose price
// cannot be read is skipped.
func ParseOffers(doc *goquery.Document) []Offer {
	names := doc.FindMatcher(itemName)
	prices := doc.FindMatcher(itemTotalPrice)
	n := min(names.Length(), prices.Length())

	out := make([]Offer, 0, n)
	for i := range n {
		raw := text(prices.Eq(i))
		price, err := ParsePrice(raw)
		if err != nil {
			slog.Debug("offer price unreadable, skipping", "index", i, "raw", raw)
			continue
		}
		out = append(out, Offer{Name: text(names.Eq(i)), Price: price})
	}
	return out
}

// ParsePagination returns the numeric page labels of the pagination block
// and the absolute URL of its "next" link, or "" when there is none.
// nextLabels are compared case-insensitively; a rel="next" anchor also
// counts.
func ParsePagination(doc *goquery.Document, nextLabels []string) (numbers []int, next string) {
	doc.FindMatcher(paginationLink).Each(func(_ int, a *goquery.Selection) {
		label := text(a)
		if n, err := strconv.Atoi(label); err == nil && n > 0 {
			numbers = append(numbers, n)
			return
		}
		if next != "" {
			return
		}
		href := attr(a, "href")
		if href == "" {
			return
		}
		if attr(a, "rel") == "next" || matchesLabel(label, nextLabels) {
			next = resolve(doc, href)
		}
	})
	return numbers, next
}

func matchesLabel(label string, labels []string) bool {
	for _, l := range labels {
		if strings.EqualFold(label, l) {
			return true
		}
	}
	return false
}

// ParseQuotes pairs total prices with merchant blocks by position and
// returns at most limit quotes in page order (limit <= 0 means no cap).
// The vendor is the last path segment of the merchant link.
func ParseQuotes(doc *goquery.Document, limit int) []models.CompetitorQuote {
	prices := doc.FindMatcher(itemTotalPrice)
	merchants := doc.FindMatcher(merchantName)
	n := min(prices.Length(), merchants.Length())

	var out []models.CompetitorQuote
	for i := range n {
		if limit > 0 && len(out) >= limit {
			break
		}
		price, err := ParsePrice(text(prices.Eq(i)))
		if err != nil {
			continue
		}
		vendor := vendorSlug(attr(merchants.Eq(i).FindMatcher(anchor).First(), "href"))
		if vendor == "" {
			continue
		}
		out = append(out, models.CompetitorQuote{Price: price, Vendor: vendor})
	}
	return out
}

func vendorSlug(href string) string {
	if href == "" {
		return ""
	}
	u, err := url.Parse(href)
	if err != nil {
		return ""
	}
	slug := path.Base(strings.TrimSuffix(u.Path, "/"))
	if slug == "." || slug == "/" {
		return ""
	}
	return slug
}
