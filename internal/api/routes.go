// routes.go - Route registration helpers
// This file provides a clean way to register all API routes
package api

import (
	"github.com/labstack/echo/v4"

	"github.com/i72421/pm-graph/internal/history"
	"github.com/i72421/pm-graph/internal/session"
	"github.com/i72421/pm-graph/internal/storage"
	"github.com/i72421/pm-graph/internal/upload"
)

// Dependencies holds all handler dependencies
type Dependencies struct {
	Store      storage.Store
	SessionMgr *session.Manager
	UploadMgr  *upload.Manager
	Cache      *session.ResultCache
	History    *history.Store
	Version    string
}

// Handlers holds all handler instances
type Handlers struct {
	Health   HealthHandler
	Files    FileHandler
	Analyses AnalysisHandler
	History  HistoryHandler
	Socket   *SocketHandler
}

// NewHandlers creates all handler instances
func NewHandlers(deps *Dependencies) *Handlers {
	// A typed nil *history.Store must not end up behind the interface:
	// the handlers test the interface against nil to detect disabled
	// history.
	var hist HistoryStore
	if deps.History != nil {
		hist = deps.History
	}
	var cache ResultInvalidator
	if deps.Cache != nil {
		cache = deps.Cache
	}

	return &Handlers{
		Health:   NewHealthHandler(deps.Version, deps.SessionMgr, hist),
		Files:    NewFileHandler(deps.Store, deps.UploadMgr, cache),
		Analyses: NewAnalysisHandler(deps.Store, deps.SessionMgr),
		History:  NewHistoryHandler(hist),
		Socket:   NewSocketHandler(deps.SessionMgr, deps.UploadMgr),
	}
}

// RegisterRoutes registers all API routes with the Echo instance
func RegisterRoutes(e *echo.Echo, handlers *Handlers) {
	// Health check
	e.GET("/health", handlers.Health.HandleHealth)

	// File upload routes
	fileGroup := e.Group("/api/files")
	fileGroup.POST("/upload", handlers.Files.HandleUploadFile)
	fileGroup.POST("/upload/chunk", handlers.Files.HandleUploadChunk)
	fileGroup.POST("/upload/complete", handlers.Files.HandleCompleteUpload)
	fileGroup.GET("/upload/jobs/:jobId", handlers.Files.HandleUploadJobStatus)
	fileGroup.GET("/recent", handlers.Files.HandleRecentFiles)
	fileGroup.GET("/:id", handlers.Files.HandleGetFile)
	fileGroup.DELETE("/:id", handlers.Files.HandleDeleteFile)
	fileGroup.PUT("/:id", handlers.Files.HandleRenameFile)

	// Analysis session routes
	analysisGroup := e.Group("/api/analyses")
	analysisGroup.POST("", handlers.Analyses.HandleStartAnalysis)
	analysisGroup.GET("", handlers.Analyses.HandleListSessions)
	analysisGroup.GET("/:sessionId/status", handlers.Analyses.HandleSessionStatus)
	analysisGroup.POST("/:sessionId/keepalive", handlers.Analyses.HandleSessionKeepAlive)
	analysisGroup.GET("/:sessionId/progress", handlers.Analyses.HandleProgressStream)
	analysisGroup.GET("/:sessionId/result", handlers.Analyses.HandleResult)
	analysisGroup.GET("/:sessionId/result/msgpack", handlers.Analyses.HandleResultMsgpack)
	analysisGroup.GET("/:sessionId/phases", handlers.Analyses.HandlePhases)
	analysisGroup.GET("/:sessionId/devices", handlers.Analyses.HandleDevices)
	analysisGroup.GET("/:sessionId/devices/:deviceId", handlers.Analyses.HandleDeviceDetail)
	analysisGroup.GET("/:sessionId/devices/:deviceId/callgraph", handlers.Analyses.HandleCallGraph)
	analysisGroup.GET("/:sessionId/report", handlers.Analyses.HandleReport)
	analysisGroup.DELETE("/:sessionId", handlers.Analyses.HandleDeleteSession)

	// Run history routes
	historyGroup := e.Group("/api/history")
	historyGroup.GET("/runs", handlers.History.HandleRecentRuns)
	historyGroup.GET("/runs/:runId", handlers.History.HandleGetRun)
	historyGroup.DELETE("/runs/:runId", handlers.History.HandleDeleteRun)
	historyGroup.GET("/summary", handlers.History.HandleModeSummary)
	historyGroup.GET("/devices/slowest", handlers.History.HandleSlowestDevices)
	historyGroup.GET("/devices/:name", handlers.History.HandleDeviceHistory)
}

// RegisterWebSocketRoutes registers WebSocket routes
func RegisterWebSocketRoutes(e *echo.Echo, handlers *Handlers) {
	e.GET("/api/ws", handlers.Socket.HandleSocket)
}
