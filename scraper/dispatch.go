package scraper

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/use-agent/pricescout/models"
)

var actionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "pricescout_actions_total",
	Help: "Inbound actions by name and result code (ok or an error code).",
}, []string{"action", "code"})

// Dispatch runs one inbound action and always returns a tagged result.
// The action is bounded by the configured action timeout. A panic inside
// the action is recovered, reported to Sentry and returned as
// INTERNAL_ERROR.
func (s *Scraper) Dispatch(ctx context.Context, req models.ActionRequest) (res models.ActionResult) {
	res.Action = req.Action
	start := time.Now()

	if d := s.cfg.Server.ActionTimeout; d > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d)
		defer cancel()
	}

	span := sentry.StartSpan(ctx, "scraper.dispatch")
	span.SetTag("action", req.Action)
	defer span.Finish()
	ctx = span.Context()

	defer func() {
		if r := recover(); r != nil {
			err := reportPanic(req.Action, r)
			res = models.ActionResult{
				Action: req.Action,
				Error:  models.NewScrapeError(models.ErrCodeInternal, "internal error", err).ToDetail(),
			}
		}

		code := "ok"
		if res.Error != nil {
			code = res.Error.Code
		}
		actionsTotal.WithLabelValues(req.Action, code).Inc()
		slog.Info("action finished",
			"action", req.Action,
			"success", res.Success,
			"code", code,
			"duration_ms", time.Since(start).Milliseconds(),
		)
	}()

	data, err := s.run(ctx, req)
	if err != nil {
		res.Error = categorizeError(err, req.Action+" failed").ToDetail()
		return res
	}
	res.Success = true
	res.Data = data
	return res
}

func (s *Scraper) run(ctx context.Context, req models.ActionRequest) (any, error) {
	switch req.Action {
	case models.ActionMerchantInfo:
		var p models.VendorRequest
		if err := decodePayload(req.Payload, &p); err != nil {
			return nil, err
		}
		return s.MerchantInfo(ctx, p)
	case models.ActionPaginationURLs:
		var p models.PaginationRequest
		if err := decodePayload(req.Payload, &p); err != nil {
			return nil, err
		}
		return s.PaginationURLs(ctx, p)
	case models.ActionSellerProducts:
		var p models.SellerProductsRequest
		if err := decodePayload(req.Payload, &p); err != nil {
			return nil, err
		}
		return s.SellerProducts(ctx, p)
	case models.ActionProductsCompetitors:
		var p models.CompetitorsRequest
		if err := decodePayload(req.Payload, &p); err != nil {
			return nil, err
		}
		return s.Competitors(ctx, p)
	default:
		return nil, models.NewScrapeError(models.ErrCodeUnknownAction, fmt.Sprintf("unknown action %q", req.Action), nil)
	}
}

// reportPanic captures a recovered panic value to Sentry and returns it
// as an error.
func reportPanic(task string, r any) error {
	err := fmt.Errorf("panic in %s: %v", task, r)
	sentry.WithScope(func(scope *sentry.Scope) {
		scope.SetTag("action", task)
		scope.SetContext("panic", map[string]any{"stack": string(debug.Stack())})
		sentry.CaptureException(err)
	})
	slog.Error("task panicked", "task", task, "panic", r)
	return err
}

// decodePayload unmarshals an action payload. A missing payload decodes
// as an empty object so validation reports the missing fields.
func decodePayload(raw json.RawMessage, v any) error {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		raw = []byte("{}")
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return models.NewScrapeError(models.ErrCodeInvalidInput, "invalid payload: "+err.Error(), err)
	}
	return nil
}
