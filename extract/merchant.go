package extract

import (
	"math"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/use-agent/pricescout/models"
)

// ProductsPerPage is how many offers the site lists per offer page.
const ProductsPerPage = 20

var (
	websiteLink     = sel(`a[data-ga-action="website"]`)
	merchantSection = sel("section.single_section_merchant")
	tableRow        = sel("div.table_row")
	labelCell       = sel("div.label_cell")
	infoCell        = sel("div.info_cell")
	contactInfo     = sel("div.merchant_contact_info")
	contactPhone    = sel("div.phone")
	contactEmail    = sel("div.email")
	contactAddress  = sel("div.address")
	description     = sel("p.merchant_description_info")
	ratingWrapper   = sel("div.last_year_rating_wrapper")
	ratingImage     = sel(".rating_image")
	rateNr          = sel(".rate_nr")
	reviewCounter   = sel(".counter")
	merchantLogo    = sel("img.merchant_logo")

	categoryItem  = sel("div.three_columns_list ul li")
	anchor        = sel("a")
	resultsNumber = sel("span.results_number")
)

// ParseMerchant reads the merchant profile from /negozi/{vendor}.
func ParseMerchant(doc *goquery.Document, vendor string, now time.Time) models.Merchant {
	m := models.Merchant{
		BusinessName: vendor,
		ScrapedAt:    now,
	}
	if doc.Url != nil {
		m.SourceURL = doc.Url.String()
	}

	m.Website = attr(doc.FindMatcher(websiteLink).First(), "href")

	doc.FindMatcher(merchantSection).First().FindMatcher(tableRow).Each(func(_ int, row *goquery.Selection) {
		label := row.FindMatcher(labelCell).First()
		value := row.FindMatcher(infoCell).First()
		if label.Length() == 0 || value.Length() == 0 {
			return
		}
		v := text(value)
		switch text(label) {
		case "Indirizzo web":
			m.Domain = v
		case "E-mail di riferimento":
			m.Email = v
		case "Indirizzo postale":
			m.Address = v
		case "Telefono":
			m.Phone = v
		}
	})

	// The contact block only fills what the data table left empty.
	if c := doc.FindMatcher(contactInfo).First(); c.Length() > 0 {
		fill(&m.Phone, c.FindMatcher(contactPhone).First())
		fill(&m.Email, c.FindMatcher(contactEmail).First())
		fill(&m.Address, c.FindMatcher(contactAddress).First())
	}

	m.Description = text(doc.FindMatcher(description).First())

	if w := doc.FindMatcher(ratingWrapper).First(); w.Length() > 0 {
		img := w.FindMatcher(ratingImage).First()
		m.Rating = &models.Rating{
			Label:       attr(img, "title"),
			Description: text(img),
			Score:       text(w.FindMatcher(rateNr).First()),
			Reviews:     text(w.FindMatcher(reviewCounter).First()),
		}
	}

	if img := doc.FindMatcher(merchantLogo).First(); img.Length() > 0 {
		m.Logo = &models.Logo{
			URL:   resolve(doc, attr(img, "src")),
			Alt:   attr(img, "alt"),
			Title: attr(img, "title"),
		}
	}
	return m
}

func fill(dst *string, s *goquery.Selection) {
	if *dst != "" || s.Length() == 0 {
		return
	}
	*dst = text(s)
}

// ParseCategories reads the category list from /negozi/{vendor}/categorie.
// Items without a link are skipped.
func ParseCategories(doc *goquery.Document) []models.Category {
	var out []models.Category
	doc.FindMatcher(categoryItem).Each(func(_ int, li *goquery.Selection) {
		link := li.FindMatcher(anchor).First()
		href := attr(link, "href")
		if href == "" {
			return
		}

		name := attr(link, "title")
		if name == "" {
			name = text(link)
		}
		count := parseCount(text(li.FindMatcher(resultsNumber).First()))

		out = append(out, models.Category{
			ID:           categoryID(href),
			Name:         name,
			URL:          resolve(doc, href),
			ProductCount: count,
			Pages:        PagesFor(count),
		})
	})
	return out
}

// PagesFor returns how many offer pages n products span, at least one.
func PagesFor(n int) int {
	return max(1, int(math.Ceil(float64(n)/ProductsPerPage)))
}

// parseCount reads "(1.234)" as 1234. Anything unreadable is 0.
func parseCount(s string) int {
	s = strings.NewReplacer("(", "", ")", "", ".", "").Replace(s)
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || n < 0 {
		return 0
	}
	return n
}

func categoryID(href string) string {
	u, err := url.Parse(href)
	if err != nil {
		return ""
	}
	return u.Query().Get("category_id")
}
