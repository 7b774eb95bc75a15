// handlers_history.go - Run history query handlers
package api

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
)

// HistoryHandlerImpl implements the HistoryHandler interface
type HistoryHandlerImpl struct {
	history HistoryStore
}

// NewHistoryHandler creates a new history handler instance. A nil store
// means history is disabled and every endpoint answers 503.
func NewHistoryHandler(history HistoryStore) HistoryHandler {
	return &HistoryHandlerImpl{history: history}
}

// HandleRecentRuns returns the most recent recorded runs
func (h *HistoryHandlerImpl) HandleRecentRuns(c echo.Context) error {
	if h.history == nil {
		return NewServiceUnavailableError("run history is disabled")
	}

	limit := queryLimit(c, 20, 200)
	runs, err := h.history.RecentRuns(c.Request().Context(), limit)
	if err != nil {
		return NewInternalError("failed to query runs", err)
	}

	return c.JSON(http.StatusOK, runs)
}

// HandleGetRun returns a single recorded run
func (h *HistoryHandlerImpl) HandleGetRun(c echo.Context) error {
	if h.history == nil {
		return NewServiceUnavailableError("run history is disabled")
	}

	id := c.Param("runId")
	if id == "" {
		return NewValidationError("runId")
	}

	run, err := h.history.Run(c.Request().Context(), id)
	if err != nil {
		return NewNotFoundError("run", id)
	}

	return c.JSON(http.StatusOK, run)
}

// HandleDeleteRun removes a recorded run and its device timings
func (h *HistoryHandlerImpl) HandleDeleteRun(c echo.Context) error {
	if h.history == nil {
		return NewServiceUnavailableError("run history is disabled")
	}

	id := c.Param("runId")
	if id == "" {
		return NewValidationError("runId")
	}

	if err := h.history.DeleteRun(c.Request().Context(), id); err != nil {
		return NewNotFoundError("run", id)
	}

	return c.NoContent(http.StatusNoContent)
}

// HandleModeSummary returns per-mode aggregates of the headline durations
func (h *HistoryHandlerImpl) HandleModeSummary(c echo.Context) error {
	if h.history == nil {
		return NewServiceUnavailableError("run history is disabled")
	}

	summaries, err := h.history.ModeSummaries(c.Request().Context())
	if err != nil {
		return NewInternalError("failed to summarize runs", err)
	}

	return c.JSON(http.StatusOK, summaries)
}

// HandleSlowestDevices returns devices ranked by average callback time
// across all recorded runs
func (h *HistoryHandlerImpl) HandleSlowestDevices(c echo.Context) error {
	if h.history == nil {
		return NewServiceUnavailableError("run history is disabled")
	}

	family := c.QueryParam("family")
	switch family {
	case "", "suspend", "resume":
	default:
		return NewBadRequestError("family must be suspend or resume", nil)
	}

	limit := queryLimit(c, 20, 100)
	devices, err := h.history.SlowestDevices(c.Request().Context(), family, limit)
	if err != nil {
		return NewInternalError("failed to query device timings", err)
	}

	return c.JSON(http.StatusOK, devices)
}

// HandleDeviceHistory returns one device's callback times across runs
func (h *HistoryHandlerImpl) HandleDeviceHistory(c echo.Context) error {
	if h.history == nil {
		return NewServiceUnavailableError("run history is disabled")
	}

	name := c.Param("name")
	if name == "" {
		return NewValidationError("name")
	}

	limit := queryLimit(c, 50, 500)
	samples, err := h.history.DeviceHistory(c.Request().Context(), name, limit)
	if err != nil {
		return NewInternalError("failed to query device history", err)
	}

	return c.JSON(http.StatusOK, samples)
}

// queryLimit parses the limit query param, clamped to (0, max].
func queryLimit(c echo.Context, def, max int) int {
	limit, err := strconv.Atoi(c.QueryParam("limit"))
	if err != nil || limit < 1 {
		return def
	}
	if limit > max {
		return max
	}
	return limit
}
