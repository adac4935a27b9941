package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Health returns a handler for GET /api/v1/health.
//
// Reports uptime, the fetch strategy chain and whether a proxy gateway is
// configured; without one the status is "degraded".
func Health(svc HealthReporter, version string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, svc.Health(version))
	}
}
