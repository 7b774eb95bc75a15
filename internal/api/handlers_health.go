// handlers_health.go - Health check handlers
package api

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
)

// HealthHandlerImpl implements the HealthHandler interface
type HealthHandlerImpl struct {
	version  string
	sessions SessionManager
	history  HistoryStore
	started  time.Time
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(version string, sessions SessionManager, history HistoryStore) HealthHandler {
	return &HealthHandlerImpl{
		version:  version,
		sessions: sessions,
		history:  history,
		started:  time.Now(),
	}
}

// HandleHealth returns server health status
func (h *HealthHandlerImpl) HandleHealth(c echo.Context) error {
	resp := map[string]interface{}{
		"status":        "ok",
		"version":       h.version,
		"uptimeSeconds": int64(time.Since(h.started).Seconds()),
		"sessions":      h.sessions.Count(),
		"history":       h.history != nil,
	}
	if h.history != nil {
		if n, err := h.history.RunCount(c.Request().Context()); err == nil {
			resp["historyRuns"] = n
		}
	}
	return c.JSON(http.StatusOK, resp)
}
