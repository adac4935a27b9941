package scraper

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/use-agent/pricescout/cache"
	"github.com/use-agent/pricescout/config"
	"github.com/use-agent/pricescout/engine"
	"github.com/use-agent/pricescout/models"
	"github.com/use-agent/pricescout/webhook"
)

const merchantPage = `<html><body>
<div class="merchant_header"><a data-ga-action="website" href="https://www.acme-store.it/">Vai al sito</a></div>
<section class="single_section_merchant">
  <div class="table_row"><div class="label_cell">E-mail di riferimento</div><div class="info_cell">info@acme-store.it</div></div>
  <div class="table_row"><div class="label_cell">Partita IVA</div><div class="info_cell">01234567890</div></div>
</section>
</body></html>`

const categoriesPage = `<html><body><div class="three_columns_list"><ul>
<li><a href="/negozi/acme-store/offerte?category_id=27" title="Notebook">Notebook</a> <span class="results_number">(45)</span></li>
<li><a href="/negozi/acme-store/offerte?category_id=3" title="Cavi">Cavi</a></li>
</ul></div></body></html>`

// quotesPage renders a product page with one quote per vendor, priced
// from base upwards.
func quotesPage(base int, vendors ...string) string {
	var b strings.Builder
	b.WriteString("<html><body><ul>")
	for i, v := range vendors {
		fmt.Fprintf(&b, `<li><div class="item_total_price">€ %d,00 Tot</div><div class="merchant_name_and_logo"><a href="/negozi/%s">%s</a></div></li>`,
			base+i, v, v)
	}
	b.WriteString("</ul></body></html>")
	return b.String()
}

const hpSearchPage = `<html><body>
<div class="variations_container">
  <div class="slick-slide"><a href="/prezzo_hp_14.aspx">HP Laptop 14</a></div>
  <div class="slick-slide"><a href="/prezzo_hp_15.aspx">HP Laptop 15 9B9R8EA</a></div>
</div>
</body></html>`

var lenovoSearchPage = `<html><body>` + quotesPage(700, "shop-one") + `
<div class="desktop_sidebar">
  <a class="suggested_product" href="/prezzo_mouse.aspx" title="Mouse ottico">Mouse</a>
  <a class="suggested_product" href="/prezzo_lenovo.aspx" title="Lenovo IdeaPad Slim 2024">Lenovo</a>
</div></body></html>`

// fixtureSite serves the merchant, listing, search and product pages of a
// small catalog and counts hits per path.
type fixtureSite struct {
	mu   sync.Mutex
	hits map[string]int
}

func (f *fixtureSite) hitsFor(path string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.hits[path]
}

func (f *fixtureSite) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	f.hits[r.URL.Path]++
	f.mu.Unlock()

	switch r.URL.Path {
	case "/negozi/acme-store", "/negozi/no-cats":
		_, _ = io.WriteString(w, merchantPage)
	case "/negozi/acme-store/categorie":
		_, _ = io.WriteString(w, categoriesPage)
	case "/negozi/no-cats/categorie":
		http.Error(w, "boom", http.StatusInternalServerError)
	case "/negozi/walled":
		_, _ = io.WriteString(w, "<html><body>Verify you are human: CAPTCHA</body></html>")
	case "/negozi/acme-store/offerte":
		page, _ := strconv.Atoi(r.URL.Query().Get("page"))
		page = max(page, 1)
		var b strings.Builder
		b.WriteString("<html><body><ul>")
		for i := 1; i <= 2; i++ {
			fmt.Fprintf(&b, `<li><a class="item_name" href="/p/%d%d">Offerta %d-%d</a><div class="item_total_price">€ %d,00 Tot</div></li>`,
				page, i, page, i, 100*page+i)
		}
		b.WriteString(`</ul><div class="pagination"><a href="/negozi/acme-store/offerte?page=1">1</a><a href="/negozi/acme-store/offerte?page=2">2</a>`)
		if page < 2 {
			b.WriteString(`<a href="/negozi/acme-store/offerte?page=2">Successive</a>`)
		}
		b.WriteString("</div></body></html>")
		_, _ = io.WriteString(w, b.String())
	case "/categoria.aspx":
		switch r.URL.Query().Get("libera") {
		case "HP Laptop 15 9B9R8EA":
			_, _ = io.WriteString(w, hpSearchPage)
		case "Lenovo IdeaPad Slim":
			_, _ = io.WriteString(w, lenovoSearchPage)
		default:
			http.NotFound(w, r)
		}
	case "/prezzo_hp_15.aspx":
		_, _ = io.WriteString(w, quotesPage(500, "shop-one", "shop-two", "shop-three", "shop-four", "shop-five"))
	case "/prezzo_crowded.aspx":
		vendors := make([]string, 12)
		for i := range vendors {
			vendors[i] = fmt.Sprintf("shop-%02d", i+1)
		}
		_, _ = io.WriteString(w, quotesPage(100, vendors...))
	case "/prezzo_lenovo.aspx":
		_, _ = io.WriteString(w, quotesPage(650, "shop-two", "shop-three"))
	default:
		http.NotFound(w, r)
	}
}

// businessAPI records every push it receives.
type businessAPI struct {
	mu    sync.Mutex
	calls map[string][]json.RawMessage
}

func (b *businessAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	b.mu.Lock()
	b.calls[r.URL.Path] = append(b.calls[r.URL.Path], body)
	b.mu.Unlock()
	w.WriteHeader(http.StatusOK)
}

func (b *businessAPI) received(path string) []json.RawMessage {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]json.RawMessage(nil), b.calls[path]...)
}

type harness struct {
	s    *Scraper
	site *fixtureSite
	api  *businessAPI
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	site := &fixtureSite{hits: map[string]int{}}
	siteSrv := httptest.NewServer(site)
	t.Cleanup(siteSrv.Close)

	api := &businessAPI{calls: map[string][]json.RawMessage{}}
	apiSrv := httptest.NewServer(api)
	t.Cleanup(apiSrv.Close)

	cfg := config.Load()
	cfg.Site.BaseURL = siteSrv.URL
	cfg.Fetch.MaxRetries = 0
	cfg.Crawl.PauseMin = 0
	cfg.Crawl.PauseMax = time.Millisecond

	f, err := engine.NewFactory(cfg.Fetch, config.ProxyConfig{},
		engine.WithTransports(engine.NewPlainTransport("http-direct", engine.TransportOptions{Timeout: 5 * time.Second})))
	require.NoError(t, err)

	client := webhook.New(config.APIConfig{BaseURL: apiSrv.URL, Timeout: 2 * time.Second}).
		WithRetryDelays(0, 10*time.Millisecond)

	s := New(cfg, f, client, cache.New(100, time.Hour))
	s.now = func() time.Time { return time.Date(2026, 10, 18, 9, 30, 0, 0, time.UTC) }
	s.pause = func(context.Context) error { return nil }
	t.Cleanup(s.Close)

	return &harness{s: s, site: site, api: api}
}

func TestSearchURL(t *testing.T) {
	s := &Scraper{cfg: &config.Config{Site: config.SiteConfig{BaseURL: "https://www.trovaprezzi.it"}}}

	assert.Equal(t, "https://www.trovaprezzi.it/categoria.aspx?id=-1&libera=HP+Laptop+15", s.SearchURL("HP Laptop 15", ""))
	assert.Equal(t, "https://www.trovaprezzi.it/categoria.aspx?id=-1&libera=x", s.SearchURL("x", "1"))
	assert.Equal(t, "https://www.trovaprezzi.it/categoria.aspx?id=27&libera=caff%C3%A8+%26+t%C3%A8", s.SearchURL("caffè & tè", "27"))
}

func TestMerchantInfo(t *testing.T) {
	h := newHarness(t)

	out, err := h.s.MerchantInfo(context.Background(), models.VendorRequest{VendorID: " acme-store "})
	require.NoError(t, err)

	assert.Equal(t, "acme-store", out.Merchant.BusinessName)
	assert.Equal(t, "info@acme-store.it", out.Merchant.Email)
	assert.Equal(t, "https://www.acme-store.it/", out.Merchant.Website)
	assert.Equal(t, time.Date(2026, 10, 18, 9, 30, 0, 0, time.UTC), out.Merchant.ScrapedAt)
	require.Len(t, out.Categories, 2)
	assert.Equal(t, "27", out.Categories[0].ID)
	assert.Equal(t, 3, out.Categories[0].Pages)
	assert.Nil(t, out.CategoriesError)

	pushes := h.api.received(webhook.PathAddMerchantInfo)
	require.Len(t, pushes, 1)
	var body webhook.MerchantInfo
	require.NoError(t, json.Unmarshal(pushes[0], &body))
	assert.Equal(t, "acme-store", body.BusinessName)
	assert.Len(t, body.Categories, 2)
}

func TestMerchantInfoCategoryFailureIsPartial(t *testing.T) {
	h := newHarness(t)

	out, err := h.s.MerchantInfo(context.Background(), models.VendorRequest{VendorID: "no-cats"})
	require.NoError(t, err)
	assert.Equal(t, "info@acme-store.it", out.Merchant.Email)
	assert.Empty(t, out.Categories)
	require.NotNil(t, out.CategoriesError)
	assert.Equal(t, models.ErrCodeUpstreamStatus, out.CategoriesError.Code)
}

func TestMerchantInfoErrors(t *testing.T) {
	h := newHarness(t)

	tests := []struct {
		vendor string
		code   string
	}{
		{"", models.ErrCodeInvalidInput},
		{"a/b", models.ErrCodeInvalidInput},
		{"ghost", models.ErrCodeNotFound},
		{"walled", models.ErrCodeBlocked},
	}
	for _, tt := range tests {
		t.Run(tt.vendor, func(t *testing.T) {
			_, err := h.s.MerchantInfo(context.Background(), models.VendorRequest{VendorID: tt.vendor})
			var se *models.ScrapeError
			require.ErrorAs(t, err, &se)
			assert.Equal(t, tt.code, se.Code)
		})
	}
	assert.Empty(t, h.api.received(webhook.PathAddMerchantInfo))
}

func TestPaginationAndSellerProducts(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	plan, err := h.s.PaginationURLs(ctx, models.PaginationRequest{VendorRequest: models.VendorRequest{VendorID: "acme-store"}})
	require.NoError(t, err)
	require.Len(t, plan.Pages, 2)
	assert.Equal(t, "acme-store", plan.Vendor)

	out, err := h.s.SellerProducts(ctx, models.SellerProductsRequest{Pages: plan.Pages, BatchSize: 1})
	require.NoError(t, err)
	assert.Equal(t, "acme-store", out.Vendor)
	assert.Equal(t, 2, out.ScrapedPages)
	assert.Equal(t, 4, out.TotalProducts)
	assert.Equal(t, "Offerta 2-1", out.Pages[1].Products[0].Name)
	assert.Equal(t, "201", out.Pages[1].Products[0].TotalPrice.String())
	assert.Len(t, h.api.received(webhook.PathAddProducts), 2)

	again, err := h.s.SellerProducts(ctx, models.SellerProductsRequest{Pages: out.Pages})
	require.NoError(t, err)
	assert.Equal(t, 2, again.ScrapedPages)
	assert.Len(t, h.api.received(webhook.PathAddProducts), 2, "a scraped plan is not crawled again")
}

func TestPaginationByCategory(t *testing.T) {
	h := newHarness(t)

	plan, err := h.s.PaginationURLs(context.Background(), models.PaginationRequest{
		VendorRequest: models.VendorRequest{VendorID: "acme-store"},
		ByCategory:    true,
	})
	require.NoError(t, err)
	require.Len(t, plan.Pages, 4, "3 notebook pages plus 1 for the uncounted category")
	assert.Equal(t, "27", plan.Pages[0].CategoryID)
	assert.Equal(t, "3", plan.Pages[3].CategoryID)
}

func TestPaginationURLsNothingFound(t *testing.T) {
	h := newHarness(t)

	_, err := h.s.PaginationURLs(context.Background(), models.PaginationRequest{VendorRequest: models.VendorRequest{VendorID: "ghost"}})
	var se *models.ScrapeError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, models.ErrCodeFetchExhausted, se.Code)
}

func TestSellerProductsRejectsForeignURL(t *testing.T) {
	h := newHarness(t)

	_, err := h.s.SellerProducts(context.Background(), models.SellerProductsRequest{
		Pages: []models.PageRef{{PageNumber: 1, URL: "https://example.com/elsewhere"}},
	})
	var se *models.ScrapeError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, models.ErrCodeInvalidInput, se.Code)
}

func TestLookupCompetitorsFollowsVariant(t *testing.T) {
	h := newHarness(t)

	var p models.ProductInput
	p.Name = "HP Laptop 15 9B9R8EA"
	lk := h.s.LookupCompetitors(context.Background(), p)

	require.True(t, lk.Success)
	require.Len(t, lk.Quotes, 5)
	assert.Equal(t, "shop-one", lk.Quotes[0].Vendor)
	assert.Equal(t, "500", lk.Quotes[0].Price.String())
	require.NotNil(t, lk.Resolved)
	assert.Equal(t, "HP Laptop 15 9B9R8EA", lk.Resolved.Label)
	assert.True(t, strings.HasSuffix(lk.SourceURL, "/prezzo_hp_15.aspx"))
	assert.Zero(t, h.site.hitsFor("/prezzo_hp_14.aspx"))
}

func TestLookupCompetitorsAddsSuggestionQuotes(t *testing.T) {
	h := newHarness(t)

	var p models.ProductInput
	p.Name = "Lenovo IdeaPad Slim"
	lk := h.s.LookupCompetitors(context.Background(), p)

	require.True(t, lk.Success)
	require.Len(t, lk.Quotes, 3)
	assert.Equal(t, []string{"shop-one", "shop-two", "shop-three"},
		[]string{lk.Quotes[0].Vendor, lk.Quotes[1].Vendor, lk.Quotes[2].Vendor})
	require.NotNil(t, lk.Resolved)
	assert.Equal(t, "Lenovo IdeaPad Slim 2024", lk.Resolved.Label)
	assert.Zero(t, h.site.hitsFor("/prezzo_mouse.aspx"))
}

func TestLookupCompetitorsCapsQuotes(t *testing.T) {
	h := newHarness(t)
	h.s.cfg.Crawl.MaxQuotes = 3

	var p models.ProductInput
	p.ExistingRecord = &models.ExistingRecord{URL: h.s.cfg.Site.BaseURL + "/prezzo_hp_15.aspx"}
	lk := h.s.LookupCompetitors(context.Background(), p)

	require.True(t, lk.Success)
	assert.Len(t, lk.Quotes, 3)
	assert.Zero(t, h.site.hitsFor("/categoria.aspx"), "known product page skips the search")
}

func TestLookupCompetitorsQuoteCapWithoutLimit(t *testing.T) {
	h := newHarness(t)
	h.s.cfg.Crawl.MaxQuotes = 0

	var p models.ProductInput
	p.ExistingRecord = &models.ExistingRecord{URL: h.s.cfg.Site.BaseURL + "/prezzo_crowded.aspx"}
	lk := h.s.LookupCompetitors(context.Background(), p)

	require.True(t, lk.Success)
	assert.Len(t, lk.Quotes, config.QuoteCap)
	assert.Equal(t, "shop-01", lk.Quotes[0].Vendor)
}

func TestLookupCompetitorsNotFound(t *testing.T) {
	h := newHarness(t)

	var p models.ProductInput
	p.Name = "Prodotto inesistente"
	lk := h.s.LookupCompetitors(context.Background(), p)

	assert.False(t, lk.Success)
	require.NotNil(t, lk.Error)
	assert.Equal(t, models.ErrCodeNotFound, lk.Error.Code)
	assert.NotNil(t, lk.Quotes)
	assert.Empty(t, lk.Quotes)
}

func TestCompetitorsJob(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	raw := []byte(`{
		"job_id": "job-42",
		"job": {"job_id": "ignored", "tenant": "acme", "status": "pending"},
		"products": [
			{"id": 1, "name": "HP Laptop 15 9B9R8EA", "category": {"id": "27"}},
			{"id": "sku-2", "name": "Lenovo IdeaPad Slim"},
			{"id": 3, "name": "Prodotto inesistente"}
		]
	}`)
	var req models.CompetitorsRequest
	require.NoError(t, json.Unmarshal(raw, &req))

	out, err := h.s.Competitors(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, "job-42", out.JobID)
	assert.Equal(t, JobCompleted, out.Status)
	assert.Equal(t, 2, out.Succeeded)
	require.Len(t, out.Results, 3)
	assert.Equal(t, models.ProductID("1"), out.Results[0].ProductID)
	assert.Equal(t, models.ProductID("sku-2"), out.Results[1].ProductID)
	assert.False(t, out.Results[2].Success)

	h.s.api.Wait()
	updates := h.api.received(webhook.PathJobUpdate)
	require.Len(t, updates, 1)
	var update map[string]any
	require.NoError(t, json.Unmarshal(updates[0], &update))
	assert.Equal(t, "job-42", update["job_id"])
	assert.Equal(t, JobCompleted, update["status"])
	assert.Equal(t, "acme", update["tenant"])
	assert.Len(t, update["result_data"], 3)

	// The same title is served from the cache on the next job.
	searches := h.site.hitsFor("/categoria.aspx")
	again, err := h.s.Competitors(ctx, models.CompetitorsRequest{JobID: "job-43", Products: req.Products[:1]})
	require.NoError(t, err)
	assert.True(t, again.Results[0].Cached)
	assert.Len(t, again.Results[0].Quotes, 5)
	assert.Equal(t, searches, h.site.hitsFor("/categoria.aspx"))
}

func TestCompetitorsJobFailed(t *testing.T) {
	h := newHarness(t)

	req := models.CompetitorsRequest{JobID: "job-7", Products: []models.ProductInput{{Name: "Prodotto inesistente"}}}
	out, err := h.s.Competitors(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, JobFailed, out.Status)
	assert.Zero(t, out.Succeeded)
	assert.Zero(t, h.s.cache.Len(), "failed lookups are not cached")
}

func TestDispatch(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	res := h.s.Dispatch(ctx, models.ActionRequest{
		Action:  models.ActionMerchantInfo,
		Payload: json.RawMessage(`{"vendor_id":"acme-store"}`),
	})
	require.True(t, res.Success, "%+v", res.Error)
	assert.Equal(t, models.ActionMerchantInfo, res.Action)
	info, ok := res.Data.(*models.MerchantInfoResult)
	require.True(t, ok)
	assert.Equal(t, "acme-store", info.Merchant.BusinessName)

	tests := []struct {
		name    string
		action  string
		payload string
		code    string
	}{
		{"unknown action", "scrape_everything", `{}`, models.ErrCodeUnknownAction},
		{"missing payload", models.ActionMerchantInfo, ``, models.ErrCodeInvalidInput},
		{"null payload", models.ActionSellerProducts, `null`, models.ErrCodeInvalidInput},
		{"wrong type", models.ActionMerchantInfo, `{"vendor_id": 5}`, models.ErrCodeInvalidInput},
		{"malformed", models.ActionProductsCompetitors, `{"job_id":`, models.ErrCodeInvalidInput},
		{"no products", models.ActionProductsCompetitors, `{"job_id":"j"}`, models.ErrCodeInvalidInput},
		{"not found", models.ActionPaginationURLs, `{"vendor_id":"ghost"}`, models.ErrCodeFetchExhausted},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := h.s.Dispatch(ctx, models.ActionRequest{Action: tt.action, Payload: json.RawMessage(tt.payload)})
			assert.False(t, res.Success)
			assert.Nil(t, res.Data)
			require.NotNil(t, res.Error)
			assert.Equal(t, tt.code, res.Error.Code)
		})
	}
}

func TestDispatchRecoversPanic(t *testing.T) {
	h := newHarness(t)
	factory := h.s.factory
	h.s.factory = nil
	defer func() { h.s.factory = factory }()

	res := h.s.Dispatch(context.Background(), models.ActionRequest{
		Action:  models.ActionMerchantInfo,
		Payload: json.RawMessage(`{"vendor_id":"acme-store"}`),
	})
	assert.False(t, res.Success)
	require.NotNil(t, res.Error)
	assert.Equal(t, models.ErrCodeInternal, res.Error.Code)
	assert.Equal(t, models.ActionMerchantInfo, res.Action)
}

func TestDispatchCompetitorsRecoversProductPanic(t *testing.T) {
	h := newHarness(t)
	factory := h.s.factory
	h.s.factory = nil
	defer func() { h.s.factory = factory }()

	res := h.s.Dispatch(context.Background(), models.ActionRequest{
		Action:  models.ActionProductsCompetitors,
		Payload: json.RawMessage(`{"job_id":"j1","products":[{"id":1,"name":"HP Laptop"},{"id":2,"name":"Lenovo IdeaPad Slim"}]}`),
	})
	require.True(t, res.Success, "%+v", res.Error)
	out, ok := res.Data.(*models.CompetitorsResult)
	require.True(t, ok)
	assert.Equal(t, JobFailed, out.Status)
	assert.Zero(t, out.Succeeded)
	require.Len(t, out.Results, 2)
	for _, r := range out.Results {
		assert.False(t, r.Success)
		require.NotNil(t, r.Error)
		assert.Equal(t, models.ErrCodeInternal, r.Error.Code)
		assert.NotNil(t, r.Quotes)
	}
	assert.Equal(t, models.ProductID("2"), out.Results[1].ProductID)
	h.s.api.Wait()
}

func TestDispatchCompetitorsNumericCategory(t *testing.T) {
	h := newHarness(t)

	res := h.s.Dispatch(context.Background(), models.ActionRequest{
		Action:  models.ActionProductsCompetitors,
		Payload: json.RawMessage(`{"job_id":"j2","products":[{"id":7,"name":"HP Laptop 15 9B9R8EA","category":{"id":1}}]}`),
	})
	require.True(t, res.Success, "%+v", res.Error)
	out := res.Data.(*models.CompetitorsResult)
	assert.Equal(t, JobCompleted, out.Status)
	assert.Len(t, out.Results[0].Quotes, 5)
	h.s.api.Wait()
}

func TestDispatchTimeout(t *testing.T) {
	h := newHarness(t)
	h.s.cfg.Server.ActionTimeout = time.Nanosecond

	res := h.s.Dispatch(context.Background(), models.ActionRequest{
		Action:  models.ActionMerchantInfo,
		Payload: json.RawMessage(`{"vendor_id":"acme-store"}`),
	})
	assert.False(t, res.Success)
	require.NotNil(t, res.Error)
	assert.Equal(t, models.ErrCodeTimeout, res.Error.Code)
}

func TestHealth(t *testing.T) {
	h := newHarness(t)

	health := h.s.Health("1.2.3")
	assert.Equal(t, "degraded", health.Status, "no proxy configured")
	assert.Equal(t, "1.2.3", health.Version)
	assert.Equal(t, []string{"http-direct"}, health.Transports)
	assert.False(t, health.ProxyConfigured)
}
