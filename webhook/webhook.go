// Package webhook pushes scraped records to the business API that stores
// them. Pushes never fail the scrape that produced them; callers log the
// returned error and move on.
package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/use-agent/pricescout/config"
	"github.com/use-agent/pricescout/models"
)

// Business API endpoints, relative to the configured base URL.
const (
	PathAddMerchantInfo = "/onboarding/add-merchant-info/"
	PathAddProducts     = "/onboarding/add-products/"
	PathJobUpdate       = "/scraping/job/update/"
)

// SignatureHeader carries the HMAC of the request body when a secret is set.
const SignatureHeader = "X-Pricescout-Signature"

// DefaultRetryDelays are the waits before each delivery of an async push.
var DefaultRetryDelays = []time.Duration{0, 1 * time.Second, 5 * time.Second, 30 * time.Second}

// Client posts JSON payloads to the business API. The zero value is not
// usable; build one with New.
type Client struct {
	baseURL string
	token   string
	secret  string
	http    *http.Client
	delays  []time.Duration

	wg sync.WaitGroup
}

// New creates a client from the API configuration. An empty base URL gives
// a client whose pushes are no-ops.
func New(cfg config.APIConfig) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL: cfg.BaseURL,
		token:   cfg.Token,
		secret:  cfg.Secret,
		http:    &http.Client{Timeout: timeout},
		delays:  DefaultRetryDelays,
	}
}

// WithRetryDelays returns c with different async retry delays.
func (c *Client) WithRetryDelays(delays ...time.Duration) *Client {
	c.delays = delays
	return c
}

// Enabled reports whether pushes go anywhere.
func (c *Client) Enabled() bool { return c != nil && c.baseURL != "" }

// MerchantInfo is the add-merchant-info payload.
type MerchantInfo struct {
	BusinessName string            `json:"business_name"`
	MerchantData models.Merchant   `json:"merchant_data"`
	Categories   []models.Category `json:"categories"`
}

// PageProducts is the add-products payload: one scraped page.
type PageProducts struct {
	BusinessName string         `json:"business_name"`
	PageEntry    models.PageRef `json:"page_entry"`
}

// JobUpdate is the job-update payload: the job record as received, plus
// the outcome.
type JobUpdate struct {
	Job        map[string]any              `json:"-"`
	JobID      string                      `json:"job_id"`
	Status     string                      `json:"status"`
	ResultData []models.ProductCompetitors `json:"result_data"`
}

// MarshalJSON merges the job record with the outcome fields; the outcome
// wins on key clashes.
func (u JobUpdate) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(u.Job)+3)
	for k, v := range u.Job {
		out[k] = v
	}
	out["job_id"] = u.JobID
	out["status"] = u.Status
	out["result_data"] = u.ResultData
	return json.Marshal(out)
}

// AddMerchantInfo stores a merchant profile and its categories.
func (c *Client) AddMerchantInfo(ctx context.Context, vendor string, m models.Merchant, cats []models.Category) error {
	if cats == nil {
		cats = []models.Category{}
	}
	return c.Deliver(ctx, PathAddMerchantInfo, MerchantInfo{BusinessName: vendor, MerchantData: m, Categories: cats})
}

// AddProducts stores one scraped page of a merchant's offers.
func (c *Client) AddProducts(ctx context.Context, vendor string, page models.PageRef) error {
	return c.Deliver(ctx, PathAddProducts, PageProducts{BusinessName: vendor, PageEntry: page})
}

// UpdateJob reports a competitors job outcome asynchronously, retrying on
// failure. Use Wait to block until in-flight updates finish.
func (c *Client) UpdateJob(u JobUpdate) {
	c.DeliverAsync(PathJobUpdate, u)
}

// Deliver posts payload to path synchronously.
// The body is signed with HMAC-SHA256 when a secret is configured.
// Header: X-Pricescout-Signature: sha256=<hex>
func (c *Client) Deliver(ctx context.Context, path string, payload any) error {
	if !c.Enabled() {
		slog.Debug("business API disabled, dropping push", "path", path)
		return nil
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("webhook: marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("webhook: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "Pricescout/1.0")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	if c.secret != "" {
		req.Header.Set(SignatureHeader, "sha256="+Sign(c.secret, body))
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("webhook: deliver %s: %w", path, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	if resp.StatusCode >= 400 {
		return fmt.Errorf("webhook: %s returned status %d", path, resp.StatusCode)
	}
	return nil
}

// DeliverAsync posts payload in the background, retrying after each
// configured delay.
func (c *Client) DeliverAsync(path string, payload any) {
	if !c.Enabled() {
		return
	}
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		for attempt, delay := range c.delays {
			if delay > 0 {
				time.Sleep(delay)
			}
			ctx, cancel := context.WithTimeout(context.Background(), c.http.Timeout)
			err := c.Deliver(ctx, path, payload)
			cancel()
			if err == nil {
				slog.Info("business API push delivered",
					"path", path,
					"attempt", attempt+1,
				)
				return
			}
			slog.Warn("business API push failed",
				"path", path,
				"attempt", attempt+1,
				"error", err,
			)
		}
		slog.Error("business API push exhausted all retries", "path", path)
	}()
}

// Wait blocks until every async push has finished.
func (c *Client) Wait() {
	c.wg.Wait()
}

// Sign returns the hex HMAC-SHA256 of body.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}
