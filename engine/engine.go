package engine

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"time"

	"golang.org/x/net/publicsuffix"

	"github.com/use-agent/pricescout/audit"
	"github.com/use-agent/pricescout/models"
)

// Engine fetches one URL at a time, resetting its whole identity (TLS
// profile, user agent, headers, cookies, proxy session) before every
// attempt. An Engine is not safe for concurrent use; get one per task
// from a Factory.
type Engine struct {
	chain    *Chain
	detector BlockDetector
	recorder audit.Recorder
	profiles []TLSProfile
	proxy    *url.URL

	identity models.FetchIdentity
	jar      http.CookieJar
	now      func() time.Time
}

// Identity returns the identity used by the most recent attempt.
func (e *Engine) Identity() models.FetchIdentity { return e.identity }

// reset discards every trace of the previous attempt.
func (e *Engine) reset() {
	// cookiejar.New never returns a non-nil error.
	e.jar, _ = cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	profile := e.profiles[rand.IntN(len(e.profiles))]
	e.identity = newIdentity(profile, e.proxy)
}

// Fetch retrieves rawURL, spending at most maxRetries+1 attempts.
//
//   - A response that is not a soft-block returns immediately, whatever its
//     status code.
//   - A soft-block is retried while attempts remain. When they run out the
//     last blocked response is returned with Blocked set.
//   - When no attempt produced any response the result is nil and the
//     error is a FETCH_EXHAUSTED (or SCRAPE_TIMEOUT on cancellation)
//     *models.ScrapeError.
func (e *Engine) Fetch(ctx context.Context, rawURL string, maxRetries int) (*models.FetchResult, error) {
	if maxRetries < 0 {
		maxRetries = 0
	}
	start := time.Now()

	var (
		blocked *models.FetchResult
		lastErr error
	)
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			lastErr = err
			break
		}

		e.reset()
		resp, err := e.chain.Fetch(ctx, &Request{URL: rawURL, Identity: e.identity, Jar: e.jar})
		e.record(rawURL, attempt, resp, err)

		if err != nil {
			lastErr = err
			attemptsTotal.WithLabelValues("none", "failed").Inc()
			slog.Debug("fetch attempt failed",
				"url", rawURL,
				"attempt", attempt+1,
				"tls_profile", e.identity.TLSProfile,
				"error", err,
			)
			continue
		}

		result := &models.FetchResult{
			URL:        resp.FinalURL,
			Body:       resp.Body,
			StatusCode: resp.StatusCode,
			Header:     resp.Header,
			Transport:  resp.Transport,
			Attempts:   attempt + 1,
		}

		if e.detector.IsBlocked(resp.Body, resp.StatusCode) {
			result.Blocked = true
			blocked = result
			attemptsTotal.WithLabelValues(resp.Transport, "blocked").Inc()
			slog.Info("soft-block detected, rotating identity",
				"url", rawURL,
				"status", resp.StatusCode,
				"attempt", attempt+1,
				"transport", resp.Transport,
			)
			continue
		}

		attemptsTotal.WithLabelValues(resp.Transport, "success").Inc()
		fetchDuration.WithLabelValues("success").Observe(time.Since(start).Seconds())
		return result, nil
	}

	if blocked != nil {
		fetchDuration.WithLabelValues("blocked").Observe(time.Since(start).Seconds())
		slog.Warn("retries exhausted on soft-block",
			"url", rawURL,
			"status", blocked.StatusCode,
			"attempts", maxRetries+1,
		)
		return blocked, nil
	}

	fetchDuration.WithLabelValues("failed").Observe(time.Since(start).Seconds())
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, models.NewScrapeError(models.ErrCodeTimeout, "fetch canceled", ctxErr)
	}
	return nil, models.NewScrapeError(
		models.ErrCodeFetchExhausted,
		fmt.Sprintf("no response for %s after %d attempts", rawURL, maxRetries+1),
		lastErr,
	)
}

func (e *Engine) record(rawURL string, attempt int, resp *Response, err error) {
	a := models.FetchAttempt{
		Timestamp:  e.now(),
		URL:        rawURL,
		Proxy:      e.identity.Proxy,
		UserAgent:  e.identity.UserAgent,
		Headers:    e.identity.Headers.Map(),
		RetryIndex: attempt,
	}
	if resp != nil {
		a.StatusCode = resp.StatusCode
		a.ResponseLength = len(resp.Body)
		a.Transport = resp.Transport
	}
	if err != nil {
		a.Err = err.Error()
	}
	e.recorder.Record(a)
}
