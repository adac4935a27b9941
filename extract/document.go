// Package extract turns the three trovaprezzi page templates (merchant
// page, offer listing, product search) into typed records. Every function
// is tolerant of missing nodes: a template change yields empty fields,
// never an error.
package extract

import (
	"bytes"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"
	"golang.org/x/net/html"
)

// Parse builds a document from a page body. pageURL is the final URL the
// body was served from; relative links are resolved against it.
func Parse(body []byte, pageURL string) (*goquery.Document, error) {
	root, err := html.Parse(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("extract: parse html: %w", err)
	}
	doc := goquery.NewDocumentFromNode(root)
	if pageURL != "" {
		if u, err := url.Parse(pageURL); err == nil {
			doc.Url = u
		}
	}
	return doc, nil
}

// sel compiles a selector once at package init.
func sel(s string) cascadia.Selector {
	return cascadia.MustCompile(s)
}

// text returns the selection's text with runs of whitespace (including
// NBSP) collapsed to one space.
func text(s *goquery.Selection) string {
	return strings.Join(strings.Fields(s.Text()), " ")
}

// attr returns a trimmed attribute value, or "".
func attr(s *goquery.Selection, name string) string {
	v, _ := s.Attr(name)
	return strings.TrimSpace(v)
}

// resolve makes href absolute against the document URL. Unparseable hrefs
// are returned unchanged.
func resolve(doc *goquery.Document, href string) string {
	if href == "" || doc.Url == nil {
		return href
	}
	ref, err := url.Parse(href)
	if err != nil {
		return href
	}
	return doc.Url.ResolveReference(ref).String()
}

// firstNonEmpty returns the matches of the first selector in the cascade
// that matches anything.
func firstNonEmpty(s *goquery.Selection, cascade ...cascadia.Selector) *goquery.Selection {
	for _, m := range cascade {
		if found := s.FindMatcher(m); found.Length() > 0 {
			return found
		}
	}
	return s.FindMatcher(cascade[len(cascade)-1])
}
