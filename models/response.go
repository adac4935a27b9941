package models

// HealthResponse is the response for GET /api/v1/health.
type HealthResponse struct {
	Status  string `json:"status"` // "healthy" or "degraded"
	Uptime  string `json:"uptime"`
	Version string `json:"version"`

	// Transports lists the fetch strategies in fallback order.
	Transports []string `json:"transports"`

	// ProxyConfigured reports whether the proxied strategies are active.
	ProxyConfigured bool `json:"proxy_configured"`

	CacheEntries int `json:"cache_entries"`
}
