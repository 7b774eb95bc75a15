// handlers_analyses.go - Analysis session operation handlers
package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/i72421/pm-graph/internal/models"
	"github.com/i72421/pm-graph/internal/render"
	"github.com/i72421/pm-graph/internal/storage"
)

// AnalysisHandlerImpl implements the AnalysisHandler interface
type AnalysisHandlerImpl struct {
	store    storage.Store
	sessions SessionManager
}

// NewAnalysisHandler creates a new analysis handler instance
func NewAnalysisHandler(store storage.Store, sessions SessionManager) AnalysisHandler {
	return &AnalysisHandlerImpl{
		store:    store,
		sessions: sessions,
	}
}

// HandleStartAnalysis starts a background analysis over an uploaded console
// log and an optional trace log
func (h *AnalysisHandlerImpl) HandleStartAnalysis(c echo.Context) error {
	var req startAnalysisRequest
	if err := c.Bind(&req); err != nil {
		return NewBadRequestError("invalid request body", err)
	}

	if req.DmesgFileID == "" {
		return NewValidationError("dmesgFileId")
	}

	dmesgPath, err := h.resolveLogFile(req.DmesgFileID, "ftrace")
	if err != nil {
		return err
	}

	var ftracePath string
	if req.FtraceFileID != "" {
		ftracePath, err = h.resolveLogFile(req.FtraceFileID, "dmesg")
		if err != nil {
			return err
		}
	}

	sess, err := h.sessions.StartAnalysis(req.DmesgFileID, dmesgPath, req.FtraceFileID, ftracePath)
	if err != nil {
		return NewInternalError("failed to start analysis", err)
	}

	return c.JSON(http.StatusAccepted, sess)
}

// HandleListSessions returns all resident analysis sessions
func (h *AnalysisHandlerImpl) HandleListSessions(c echo.Context) error {
	return c.JSON(http.StatusOK, h.sessions.Sessions())
}

// HandleSessionStatus returns the current status of an analysis session
func (h *AnalysisHandlerImpl) HandleSessionStatus(c echo.Context) error {
	id := c.Param("sessionId")
	if id == "" {
		return NewValidationError("sessionId")
	}

	sess, ok := h.sessions.GetSession(id)
	if !ok {
		return NewNotFoundError("session", id)
	}

	// Touch session to prevent cleanup while being viewed
	h.sessions.TouchSession(id)

	return c.JSON(http.StatusOK, sess)
}

// HandleSessionKeepAlive extends session lifetime for active viewing
func (h *AnalysisHandlerImpl) HandleSessionKeepAlive(c echo.Context) error {
	id := c.Param("sessionId")
	if id == "" {
		return NewValidationError("sessionId")
	}

	if ok := h.sessions.TouchSession(id); !ok {
		return NewNotFoundError("session", id)
	}

	return c.NoContent(http.StatusNoContent)
}

// HandleProgressStream streams analysis progress via SSE
func (h *AnalysisHandlerImpl) HandleProgressStream(c echo.Context) error {
	id := c.Param("sessionId")
	if id == "" {
		return NewValidationError("sessionId")
	}

	c.Response().Header().Set("Content-Type", "text/event-stream")
	c.Response().Header().Set("Cache-Control", "no-cache")
	c.Response().Header().Set("Connection", "keep-alive")
	c.Response().Header().Set("X-Accel-Buffering", "no")
	c.Response().WriteHeader(http.StatusOK)

	sess, ok := h.sessions.GetSession(id)
	if !ok {
		h.sendSSEError(c, "session not found")
		return nil
	}

	h.sendSSEData(c, sess)
	if sess.Status == models.SessionStatusComplete ||
		sess.Status == models.SessionStatusError {
		return nil
	}

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	timeout := time.NewTimer(5 * time.Minute)
	defer timeout.Stop()

	for {
		select {
		case <-ticker.C:
			sess, ok := h.sessions.GetSession(id)
			if !ok {
				h.sendSSEError(c, "session not found")
				return nil
			}

			h.sendSSEData(c, sess)

			if sess.Status == models.SessionStatusComplete ||
				sess.Status == models.SessionStatusError {
				return nil
			}

		case <-c.Request().Context().Done():
			return nil

		case <-timeout.C:
			h.sendSSEError(c, "stream timeout")
			return nil
		}
	}
}

// HandleResult returns the full reconstructed timeline as JSON
func (h *AnalysisHandlerImpl) HandleResult(c echo.Context) error {
	data, err := h.sessionData(c)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, data)
}

// HandleResultMsgpack returns the full timeline in MessagePack format
func (h *AnalysisHandlerImpl) HandleResultMsgpack(c echo.Context) error {
	data, err := h.sessionData(c)
	if err != nil {
		return err
	}

	blob, err := msgpack.Marshal(data)
	if err != nil {
		return NewInternalError("failed to encode result", err)
	}

	return c.Blob(http.StatusOK, "application/x-msgpack", blob)
}

// HandlePhases returns per-phase summaries of a completed analysis
func (h *AnalysisHandlerImpl) HandlePhases(c echo.Context) error {
	data, err := h.sessionData(c)
	if err != nil {
		return err
	}

	phases := make([]phaseSummary, 0, len(data.Phases))
	for _, p := range data.Phases {
		phases = append(phases, phaseSummary{
			Name:        p.Name,
			Order:       p.Order,
			Color:       p.Color,
			Start:       p.Start,
			End:         p.End,
			Rows:        p.Rows,
			DeviceCount: len(p.Devices),
		})
	}

	return c.JSON(http.StatusOK, phasesResponse{
		Start:         data.Start,
		End:           data.End,
		SuspendTimeMs: data.SuspendTime(),
		ResumeTimeMs:  data.ResumeTime(),
		Phases:        phases,
	})
}

// HandleDevices returns the devices of a completed analysis, optionally
// restricted to one phase
func (h *AnalysisHandlerImpl) HandleDevices(c echo.Context) error {
	data, err := h.sessionData(c)
	if err != nil {
		return err
	}

	phaseFilter := c.QueryParam("phase")
	if phaseFilter != "" && data.PhaseByName(phaseFilter) == nil {
		return NewBadRequestError(fmt.Sprintf("unknown phase: %s", phaseFilter), nil)
	}

	var devices []deviceRow
	for _, p := range data.Phases {
		if phaseFilter != "" && p.Name != phaseFilter {
			continue
		}
		for _, dev := range p.SortedDevices() {
			devices = append(devices, newDeviceRow(p.Name, dev))
		}
	}

	return c.JSON(http.StatusOK, devices)
}

// HandleDeviceDetail returns one device with its dependency chain
func (h *AnalysisHandlerImpl) HandleDeviceDetail(c echo.Context) error {
	data, err := h.sessionData(c)
	if err != nil {
		return err
	}

	phase, dev, apiErr := findDevice(data, c.Param("deviceId"))
	if apiErr != nil {
		return apiErr
	}

	detail := deviceDetail{
		deviceRow: newDeviceRow(phase.Name, dev),
		Parent:    dev.Parent,
		PID:       dev.PID,
	}
	if !phase.IsCPUPhase() {
		// A root's ancestry ends in the empty parent name; drop it.
		tree := data.DeviceTree(dev.Name, phase.Name)
		named := tree[:0:0]
		for _, n := range tree {
			if n != "" {
				named = append(named, n)
			}
		}
		detail.Tree = named
		detail.TreeIDs = data.DeviceIDs(named)
	}

	return c.JSON(http.StatusOK, detail)
}

// HandleCallGraph returns the reconstructed call tree of one device callback
func (h *AnalysisHandlerImpl) HandleCallGraph(c echo.Context) error {
	data, err := h.sessionData(c)
	if err != nil {
		return err
	}

	_, dev, apiErr := findDevice(data, c.Param("deviceId"))
	if apiErr != nil {
		return apiErr
	}

	if dev.Graph == nil {
		return NewNotFoundError("call graph", dev.ID)
	}

	return c.JSON(http.StatusOK, dev.Graph)
}

// HandleReport renders the timeline as a standalone HTML page
func (h *AnalysisHandlerImpl) HandleReport(c echo.Context) error {
	id := c.Param("sessionId")
	if id == "" {
		return NewValidationError("sessionId")
	}

	sess, ok := h.sessions.GetSession(id)
	if !ok {
		return NewNotFoundError("session", id)
	}

	data, ok := h.sessions.GetData(id)
	if !ok {
		return NewConflictError("analysis result not available")
	}
	h.sessions.TouchSession(id)

	c.Response().Header().Set(echo.HeaderContentType, echo.MIMETextHTMLCharsetUTF8)
	c.Response().WriteHeader(http.StatusOK)
	return render.Report(c.Response(), data, sess.Errors)
}

// HandleDeleteSession drops a session and its timeline
func (h *AnalysisHandlerImpl) HandleDeleteSession(c echo.Context) error {
	id := c.Param("sessionId")
	if id == "" {
		return NewValidationError("sessionId")
	}

	if ok := h.sessions.DeleteSession(id); !ok {
		return NewNotFoundError("session", id)
	}

	return c.NoContent(http.StatusNoContent)
}

// Request/Response types

type startAnalysisRequest struct {
	DmesgFileID  string `json:"dmesgFileId"`
	FtraceFileID string `json:"ftraceFileId"`
}

type phaseSummary struct {
	Name        string  `json:"name"`
	Order       int     `json:"order"`
	Color       string  `json:"color"`
	Start       float64 `json:"start"`
	End         float64 `json:"end"`
	Rows        int     `json:"rows"`
	DeviceCount int     `json:"deviceCount"`
}

type phasesResponse struct {
	Start         float64        `json:"start"`
	End           float64        `json:"end"`
	SuspendTimeMs float64        `json:"suspendTimeMs"`
	ResumeTimeMs  float64        `json:"resumeTimeMs"`
	Phases        []phaseSummary `json:"phases"`
}

type deviceRow struct {
	ID       string  `json:"id"`
	Name     string  `json:"name"`
	Phase    string  `json:"phase"`
	Start    float64 `json:"start"`
	End      float64 `json:"end"`
	LengthUs float64 `json:"lengthUs"`
	Row      int     `json:"row"`
	HasGraph bool    `json:"hasGraph"`
}

type deviceDetail struct {
	deviceRow
	Parent  string   `json:"parent"`
	PID     int      `json:"pid"`
	Tree    []string `json:"tree,omitempty"`
	TreeIDs []string `json:"treeIds,omitempty"`
}

func newDeviceRow(phase string, dev *models.Device) deviceRow {
	return deviceRow{
		ID:       dev.ID,
		Name:     dev.Name,
		Phase:    phase,
		Start:    dev.Start,
		End:      dev.End,
		LengthUs: dev.Length,
		Row:      dev.Row,
		HasGraph: dev.Graph != nil,
	}
}

// Helper methods

// sessionData resolves the :sessionId param to a completed timeline,
// distinguishing a missing session from one that has not finished.
func (h *AnalysisHandlerImpl) sessionData(c echo.Context) (*models.Data, error) {
	id := c.Param("sessionId")
	if id == "" {
		return nil, NewValidationError("sessionId")
	}

	sess, ok := h.sessions.GetSession(id)
	if !ok {
		return nil, NewNotFoundError("session", id)
	}

	data, ok := h.sessions.GetData(id)
	if !ok {
		if sess.Status == models.SessionStatusError {
			return nil, NewConflictError("analysis failed")
		}
		return nil, NewConflictError("analysis not complete")
	}

	h.sessions.TouchSession(id)
	return data, nil
}

// resolveLogFile maps a file id to its on-disk path, rejecting files whose
// detected kind says they belong in the other slot.
func (h *AnalysisHandlerImpl) resolveLogFile(fileID, wrongKind string) (string, error) {
	info, err := h.store.Get(fileID)
	if err != nil {
		return "", NewNotFoundError("file", fileID)
	}

	if info.Kind == wrongKind {
		return "", NewBadRequestError(
			fmt.Sprintf("file %s is a %s log", fileID, wrongKind), nil)
	}

	path, err := h.store.GetFilePath(fileID)
	if err != nil {
		return "", NewInternalError("failed to get file path", err)
	}

	return path, nil
}

func findDevice(data *models.Data, deviceID string) (*models.Phase, *models.Device, *APIError) {
	if deviceID == "" {
		return nil, nil, NewValidationError("deviceId")
	}
	for _, p := range data.Phases {
		for _, dev := range p.Devices {
			if dev.ID == deviceID {
				return p, dev, nil
			}
		}
	}
	return nil, nil, NewNotFoundError("device", deviceID)
}

func (h *AnalysisHandlerImpl) sendSSEData(c echo.Context, data interface{}) {
	jsonData, _ := json.Marshal(data)
	fmt.Fprintf(c.Response(), "data: %s\n\n", jsonData)
	c.Response().Flush()
}

func (h *AnalysisHandlerImpl) sendSSEError(c echo.Context, message string) {
	h.sendSSEData(c, map[string]string{"error": message})
}
