// interfaces.go - Handler interface definitions for clean separation of concerns
package api

import (
	"context"

	"github.com/labstack/echo/v4"

	"github.com/i72421/pm-graph/internal/history"
	"github.com/i72421/pm-graph/internal/models"
	"github.com/i72421/pm-graph/internal/upload"
)

// FileHandler handles log file upload and management operations
type FileHandler interface {
	HandleUploadFile(c echo.Context) error
	HandleUploadChunk(c echo.Context) error
	HandleCompleteUpload(c echo.Context) error
	HandleUploadJobStatus(c echo.Context) error
	HandleRecentFiles(c echo.Context) error
	HandleGetFile(c echo.Context) error
	HandleDeleteFile(c echo.Context) error
	HandleRenameFile(c echo.Context) error
}

// AnalysisHandler handles suspend/resume analysis session operations
type AnalysisHandler interface {
	HandleStartAnalysis(c echo.Context) error
	HandleListSessions(c echo.Context) error
	HandleSessionStatus(c echo.Context) error
	HandleSessionKeepAlive(c echo.Context) error
	HandleProgressStream(c echo.Context) error
	HandleResult(c echo.Context) error
	HandleResultMsgpack(c echo.Context) error
	HandlePhases(c echo.Context) error
	HandleDevices(c echo.Context) error
	HandleDeviceDetail(c echo.Context) error
	HandleCallGraph(c echo.Context) error
	HandleReport(c echo.Context) error
	HandleDeleteSession(c echo.Context) error
}

// HistoryHandler handles queries over the persisted run history
type HistoryHandler interface {
	HandleRecentRuns(c echo.Context) error
	HandleGetRun(c echo.Context) error
	HandleDeleteRun(c echo.Context) error
	HandleModeSummary(c echo.Context) error
	HandleSlowestDevices(c echo.Context) error
	HandleDeviceHistory(c echo.Context) error
}

// HealthHandler handles health check operations
type HealthHandler interface {
	HandleHealth(c echo.Context) error
}

// SessionManager defines the interface for analysis session management
// This allows mocking in tests
type SessionManager interface {
	StartAnalysis(dmesgFileID, dmesgPath, ftraceFileID, ftracePath string) (*models.AnalysisSession, error)
	GetSession(id string) (*models.AnalysisSession, bool)
	GetData(id string) (*models.Data, bool)
	TouchSession(id string) bool
	DeleteSession(id string) bool
	Sessions() []*models.AnalysisSession
	Count() int
}

// HistoryStore defines the history queries the handlers need
type HistoryStore interface {
	RecentRuns(ctx context.Context, limit int) ([]history.RunSummary, error)
	Run(ctx context.Context, id string) (*history.RunSummary, error)
	ModeSummaries(ctx context.Context) ([]history.ModeSummary, error)
	SlowestDevices(ctx context.Context, family string, limit int) ([]history.DeviceAggregate, error)
	DeviceHistory(ctx context.Context, name string, limit int) ([]history.DeviceSample, error)
	DeleteRun(ctx context.Context, id string) error
	RunCount(ctx context.Context) (int, error)
}

// JobTracker defines the upload finalization surface the handlers need
type JobTracker interface {
	StartJob(uploadID, fileName string, totalChunks int, originalSize, compressedSize int64, encoding string) *upload.Job
	GetJob(id string) (*upload.Job, bool)
}

// ResultInvalidator drops cached analysis results when their source file
// goes away
type ResultInvalidator interface {
	DeleteForFile(fileID string) int
}
