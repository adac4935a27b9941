package engine

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/launcher/flags"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
	"github.com/ysmood/gson"

	"github.com/use-agent/pricescout/config"
)

// BrowserTransport renders the page in headless Chromium. It is the last
// strategy of the chain and only runs when every HTTP strategy failed.
// The browser is launched lazily on first use and shared; each fetch gets
// its own incognito context so no cookie survives an attempt.
type BrowserTransport struct {
	cfg config.BrowserConfig

	once      sync.Once
	browser   *rod.Browser
	launchErr error
}

// NewBrowserTransport creates a browser transport. Chromium is not started
// until the first Fetch.
func NewBrowserTransport(cfg config.BrowserConfig) *BrowserTransport {
	return &BrowserTransport{cfg: cfg}
}

func (b *BrowserTransport) Name() string { return "browser" }

func (b *BrowserTransport) connect() (*rod.Browser, error) {
	b.once.Do(func() {
		l := launcher.New().
			Headless(b.cfg.Headless).
			NoSandbox(b.cfg.NoSandbox)
		if b.cfg.BrowserBin != "" {
			l = l.Bin(b.cfg.BrowserBin)
		}

		// ── Stealth flags ────────────────────────────────────────────
		l.Set(flags.Flag("disable-blink-features"), "AutomationControlled")
		l.Delete(flags.Flag("enable-automation"))
		l.Set(flags.Flag("disable-dev-shm-usage"))
		l.Set(flags.Flag("disable-extensions"))
		l.Set(flags.Flag("no-first-run"))
		l.Set(flags.Flag("lang"), "it-IT")

		controlURL, err := l.Launch()
		if err != nil {
			b.launchErr = fmt.Errorf("browser: launch: %w", err)
			return
		}
		br := rod.New().ControlURL(controlURL)
		if err := br.Connect(); err != nil {
			b.launchErr = fmt.Errorf("browser: connect: %w", err)
			return
		}
		slog.Info("browser launched", "controlURL", controlURL)
		b.browser = br
	})
	return b.browser, b.launchErr
}

// Fetch navigates to the URL in a fresh incognito context.
//
// Lifecycle:
//
//  1. Incognito context      – isolated cookies and storage
//  2. Stealth injection      – before navigation, or it has no effect
//  3. Identity               – user agent, language and extra headers
//  4. Hijack mount           – block heavy resource types
//  5. Navigate + settle      – bounded by NavigationTimeout
//  6. Extract                – status, final URL, rendered HTML
func (b *BrowserTransport) Fetch(ctx context.Context, req *Request) (*Response, error) {
	browser, err := b.connect()
	if err != nil {
		return nil, err
	}

	// ── 1. Incognito context ─────────────────────────────────────────
	incognito, err := browser.Incognito()
	if err != nil {
		return nil, fmt.Errorf("browser: incognito: %w", err)
	}
	defer func() { _ = incognito.Close() }()

	page, err := incognito.Page(proto.TargetCreateTarget{})
	if err != nil {
		return nil, fmt.Errorf("browser: new page: %w", err)
	}
	defer func() { _ = page.Close() }()

	// ── 2. Stealth injection ─────────────────────────────────────────
	if _, evalErr := page.EvalOnNewDocument(stealth.JS); evalErr != nil {
		slog.Warn("stealth injection failed, proceeding without stealth", "error", evalErr)
	}

	// ── 3. Identity ──────────────────────────────────────────────────
	lang := req.Identity.Headers.Get("Accept-Language")
	if err := page.SetUserAgent(&proto.NetworkSetUserAgentOverride{
		UserAgent:      req.Identity.UserAgent,
		AcceptLanguage: lang,
	}); err != nil {
		slog.Debug("browser: set user agent failed", "error", err)
	}
	extra := make(proto.NetworkHeaders)
	for _, h := range req.Identity.Headers {
		switch strings.ToLower(h.Name) {
		case "user-agent", "accept-encoding", "accept-language":
			continue
		}
		extra[h.Name] = gson.New(h.Value)
	}
	if len(extra) > 0 {
		_ = proto.NetworkSetExtraHTTPHeaders{Headers: extra}.Call(page)
	}

	// ── 4. Hijack mount ──────────────────────────────────────────────
	if router := setupHijack(page, b.cfg.BlockedResourceTypes); router != nil {
		defer func() { _ = router.Stop() }()
	}

	// ── 5. Navigate + settle ─────────────────────────────────────────
	timeout := b.cfg.NavigationTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	navCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	p := page.Context(navCtx)

	if err := p.Navigate(req.URL); err != nil {
		return nil, fmt.Errorf("browser: navigate: %w", err)
	}
	if err := p.WaitDOMStable(300*time.Millisecond, 0.1); err != nil {
		slog.Debug("WaitDOMStable did not converge, proceeding with current DOM", "error", err)
	}

	// ── 6. Extract ───────────────────────────────────────────────────
	// Navigation timing carries the status without a Network listener,
	// which would fight the hijack router for the Fetch domain.
	status := 0
	if res, err := p.Eval(`() => {
		try {
			const entries = performance.getEntriesByType("navigation");
			if (entries.length > 0) return entries[0].responseStatus || 0;
		} catch(e) {}
		return 0;
	}`); err == nil {
		status = res.Value.Int()
	}
	if status == 0 {
		// Chromium before 109 has no responseStatus.
		status = 200
	}

	html, err := p.HTML()
	if err != nil {
		return nil, fmt.Errorf("browser: read html: %w", err)
	}

	finalURL := evalStringOrEmpty(p, `() => window.location.href`)
	if finalURL == "" {
		finalURL = req.URL
	}

	return &Response{
		StatusCode: status,
		Body:       []byte(html),
		FinalURL:   finalURL,
	}, nil
}

// Close shuts the browser down if it was ever launched.
func (b *BrowserTransport) Close() error {
	if b.browser == nil {
		return nil
	}
	return b.browser.Close()
}

// evalStringOrEmpty evaluates a JS expression and returns the string result,
// swallowing any errors.
func evalStringOrEmpty(page *rod.Page, js string) string {
	res, err := page.Eval(js)
	if err != nil {
		return ""
	}
	return res.Value.Str()
}
