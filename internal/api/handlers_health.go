// handlers_health.go - Health check handlers
package api

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
)

// HealthHandlerImpl implements the HealthHandler interface
type HealthHandlerImpl struct {
	version string
	started time.Time
	backend string
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(version, backendURL string) HealthHandler {
	return &HealthHandlerImpl{
		version: version,
		started: time.Now(),
		backend: backendURL,
	}
}

// HandleHealth returns server health status
func (h *HealthHandlerImpl) HandleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]interface{}{
		"status":  "ok",
		"version": h.version,
		"backend": h.backend,
		"uptime":  time.Since(h.started).Round(time.Second).String(),
	})
}
