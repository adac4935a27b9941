package extract

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"

	"github.com/use-agent/pricescout/models"
)

// modelCodeWeight is what one model code found in a candidate is worth;
// a plain keyword is worth 1.
const modelCodeWeight = 10

// modelCode matches manufacturer part numbers such as 9B9R8EA or
// SM-S921B. It runs on the title as written: lower-case words never match.
var modelCode = regexp.MustCompile(`[A-Z0-9]{5,}(?:-[A-Z0-9]+)?`)

var (
	variationsContainer = sel("div.variations_container")

	variantCascade = []cascadia.Selector{
		sel("a.variation"),
		sel("div.slick-slide a"),
		sel("div.variation a"),
		sel("a[href]"),
	}

	suggestionCascade = []cascadia.Selector{
		sel("section.search_suggestions a.suggested_product"),
		sel("div.desktop_sidebar a.suggested_product"),
		sel("a.suggested_product.variant_with_versione"),
		sel("div.related_products a[href]"),
	}
)

// HasVariations reports whether the page is a product family with a
// variant picker.
func HasVariations(doc *goquery.Document) bool {
	return doc.FindMatcher(variationsContainer).Length() > 0
}

// VariantCandidates lists the links of the variant picker. The first
// selector of the cascade that matches anything wins.
func VariantCandidates(doc *goquery.Document) []models.VariantCandidate {
	container := doc.FindMatcher(variationsContainer).First()
	if container.Length() == 0 {
		return nil
	}
	return candidates(doc, firstNonEmpty(container, variantCascade...))
}

// SuggestionCandidates lists suggested or related products of a search
// page, using the first selector of the cascade that matches anything.
func SuggestionCandidates(doc *goquery.Document) []models.VariantCandidate {
	return candidates(doc, firstNonEmpty(doc.Selection, suggestionCascade...))
}

func candidates(doc *goquery.Document, links *goquery.Selection) []models.VariantCandidate {
	var out []models.VariantCandidate
	links.Each(func(_ int, a *goquery.Selection) {
		href := attr(a, "href")
		label := attr(a, "title")
		if label == "" {
			label = text(a)
		}
		if href == "" || label == "" {
			return
		}
		out = append(out, models.VariantCandidate{Label: label, TargetURL: resolve(doc, href)})
	})
	return out
}

// Keywords splits a title into lower-case word tokens.
func Keywords(title string) []string {
	return strings.FieldsFunc(strings.ToLower(title), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_'
	})
}

// ModelCodes returns the part numbers found in a title.
func ModelCodes(title string) []string {
	return modelCode.FindAllString(title, -1)
}

// Score rates how well a candidate matches the query title: each model
// code found in the label or URL is worth ten, each keyword found in the
// label one. Matching is case-insensitive substring matching.
func Score(query string, c models.VariantCandidate) int {
	label := strings.ToLower(c.Label)
	target := strings.ToLower(c.TargetURL)

	score := 0
	for _, code := range ModelCodes(query) {
		code = strings.ToLower(code)
		if strings.Contains(label, code) || strings.Contains(target, code) {
			score += modelCodeWeight
		}
	}
	for _, kw := range Keywords(query) {
		if strings.Contains(label, kw) {
			score++
		}
	}
	return score
}

// ResolveBestCandidate scores every candidate and returns the highest, the
// first one on ties. It reports false when no candidate scores above zero.
func ResolveBestCandidate(query string, cs []models.VariantCandidate) (models.VariantCandidate, bool) {
	best := -1
	var winner models.VariantCandidate
	for _, c := range cs {
		c.MatchScore = Score(query, c)
		if c.MatchScore > best {
			best = c.MatchScore
			winner = c
		}
	}
	if best <= 0 {
		return models.VariantCandidate{}, false
	}
	return winner, true
}
