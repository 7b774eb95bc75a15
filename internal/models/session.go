package models

// SessionStatus represents the status of an analysis session.
type SessionStatus string

const (
	SessionStatusPending   SessionStatus = "pending"
	SessionStatusAnalyzing SessionStatus = "analyzing"
	SessionStatusComplete  SessionStatus = "complete"
	SessionStatusError     SessionStatus = "error"
)

// AnalysisSession represents one background suspend/resume analysis run
// over an uploaded console log and optional trace log.
type AnalysisSession struct {
	ID               string        `json:"id"`
	DmesgFileID      string        `json:"dmesgFileId"`
	FtraceFileID     string        `json:"ftraceFileId,omitempty"`
	Status           SessionStatus `json:"status"`
	Progress         float64       `json:"progress"` // 0-100
	DeviceCount      int           `json:"deviceCount,omitempty"`
	GraphCount       int           `json:"graphCount,omitempty"`
	SuspendTimeMs    float64       `json:"suspendTimeMs,omitempty"`
	ResumeTimeMs     float64       `json:"resumeTimeMs,omitempty"`
	ProcessingTimeMs int64         `json:"processingTimeMs,omitempty"`
	StartTime        int64         `json:"startTime,omitempty"` // Unix ms
	EndTime          int64         `json:"endTime,omitempty"`   // Unix ms
	Errors           []ParseError  `json:"errors,omitempty"`
}

// ParseError represents a non-fatal problem encountered during analysis.
type ParseError struct {
	Line    int    `json:"line"`
	Content string `json:"content"`
	Reason  string `json:"reason"`
}

// NewAnalysisSession creates a new AnalysisSession in pending status.
func NewAnalysisSession(id, dmesgFileID, ftraceFileID string) *AnalysisSession {
	return &AnalysisSession{
		ID:           id,
		DmesgFileID:  dmesgFileID,
		FtraceFileID: ftraceFileID,
		Status:       SessionStatusPending,
		Progress:     0,
		Errors:       make([]ParseError, 0),
	}
}
