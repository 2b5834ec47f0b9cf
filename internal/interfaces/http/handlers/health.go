package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// HealthCheck probes one dependency
type HealthCheck struct {
	Name  string
	Check func(ctx context.Context) error
	// Optional dependencies report degraded instead of unhealthy.
	Optional bool
}

// HealthHandler reports dependency health
type HealthHandler struct {
	checks   []HealthCheck
	version  string
	started  time.Time
	sessions func() int
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(version string, sessions func() int, checks ...HealthCheck) *HealthHandler {
	return &HealthHandler{checks: checks, version: version, started: time.Now(), sessions: sessions}
}

// Health handles GET /health
func (h *HealthHandler) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
	defer cancel()

	status := "healthy"
	code := http.StatusOK
	deps := gin.H{}
	for _, hc := range h.checks {
		if err := hc.Check(ctx); err != nil {
			deps[hc.Name] = err.Error()
			if hc.Optional {
				if status == "healthy" {
					status = "degraded"
				}
				continue
			}
			status = "unhealthy"
			code = http.StatusServiceUnavailable
			continue
		}
		deps[hc.Name] = "ok"
	}

	body := gin.H{
		"status":       status,
		"timestamp":    time.Now().UTC(),
		"version":      h.version,
		"uptime":       time.Since(h.started).Round(time.Second).String(),
		"dependencies": deps,
	}
	if h.sessions != nil {
		body["sessions"] = h.sessions()
	}
	c.JSON(code, body)
}
