package handler

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/use-agent/pricescout/models"
)

// maxBodyBytes caps an action request body.
const maxBodyBytes = 8 << 20

// Dispatcher runs inbound actions.
type Dispatcher interface {
	Dispatch(ctx context.Context, req models.ActionRequest) models.ActionResult
}

// HealthReporter reports the service state.
type HealthReporter interface {
	Health(version string) models.HealthResponse
}

// Service is everything the router needs from the scraper.
type Service interface {
	Dispatcher
	HealthReporter
}

// Action returns a handler for POST /api/v1/actions and
// POST /api/v1/actions/:action.
//
// Without a path parameter the body is an ActionRequest envelope. With one
// the body is the payload of the named action. The response is always an
// ActionResult; its error code selects the HTTP status.
func Action(d Dispatcher) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBodyBytes)

		var req models.ActionRequest
		if name := c.Param("action"); name != "" {
			body, err := io.ReadAll(c.Request.Body)
			if err != nil {
				respondError(c, name, models.NewScrapeError(models.ErrCodeInvalidInput, readError(err), err))
				return
			}
			req = models.ActionRequest{Action: name, Payload: body}
		} else if err := c.ShouldBindJSON(&req); err != nil {
			respondError(c, "", models.NewScrapeError(models.ErrCodeInvalidInput, err.Error(), err))
			return
		}

		res := d.Dispatch(c.Request.Context(), req)
		status := http.StatusOK
		if !res.Success && res.Error != nil {
			status = mapErrorToStatus(res.Error.Code)
		}
		c.JSON(status, res)
	}
}

func readError(err error) string {
	var tooBig *http.MaxBytesError
	if errors.As(err, &tooBig) {
		return "request body too large"
	}
	return "cannot read request body: " + err.Error()
}

// respondError writes a failed ActionResult for an error raised before
// dispatch.
func respondError(c *gin.Context, action string, e *models.ScrapeError) {
	c.JSON(mapErrorToStatus(e.Code), models.ActionResult{
		Success: false,
		Action:  action,
		Error:   e.ToDetail(),
	})
}

// mapErrorToStatus translates error codes to HTTP status codes.
func mapErrorToStatus(code string) int {
	switch code {
	case models.ErrCodeTimeout:
		return http.StatusGatewayTimeout // 504
	case models.ErrCodeFetchExhausted, models.ErrCodeBlocked, models.ErrCodeUpstreamStatus:
		return http.StatusBadGateway // 502
	case models.ErrCodeNotFound, models.ErrCodeUnknownAction:
		return http.StatusNotFound // 404
	case models.ErrCodeInvalidInput:
		return http.StatusBadRequest // 400
	case models.ErrCodeRateLimited:
		return http.StatusTooManyRequests // 429
	case models.ErrCodeUnauthorized:
		return http.StatusUnauthorized // 401
	default:
		return http.StatusInternalServerError // 500
	}
}
