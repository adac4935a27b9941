package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// Chain walks its transports in strict order and returns the first
// response. Unlike a race, a later strategy only runs once every earlier
// one has failed, so a healthy proxy path is never bypassed.
type Chain struct {
	transports []Transport
}

// NewChain creates a Chain over transports, tried in the given order.
func NewChain(transports ...Transport) *Chain {
	return &Chain{transports: transports}
}

// Names lists the transports in fallback order.
func (c *Chain) Names() []string {
	names := make([]string, len(c.transports))
	for i, t := range c.transports {
		names[i] = t.Name()
	}
	return names
}

// Fetch returns the first successful response, or the joined errors of
// every strategy when none produced one.
func (c *Chain) Fetch(ctx context.Context, req *Request) (*Response, error) {
	if len(c.transports) == 0 {
		return nil, errors.New("engine: empty transport chain")
	}

	var errs []error
	for _, t := range c.transports {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}

		resp, err := t.Fetch(ctx, req)
		if err == nil {
			resp.Transport = t.Name()
			return resp, nil
		}

		transportFailures.WithLabelValues(t.Name()).Inc()
		if !errors.Is(err, ErrNoProxy) {
			slog.Debug("transport failed", "transport", t.Name(), "url", req.URL, "error", err)
		}
		errs = append(errs, fmt.Errorf("%s: %w", t.Name(), err))
	}
	return nil, errors.Join(errs...)
}
