// Package session runs suspend/resume analyses in the background and keeps
// their results available for the API.
package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"

	"github.com/i72421/pm-graph/internal/history"
	"github.com/i72421/pm-graph/internal/models"
	"github.com/i72421/pm-graph/internal/parser"
)

// MaxSessions caps resident sessions; completed ones are evicted first.
const MaxSessions = 10

// SessionMaxAge is how long completed sessions are kept before cleanup.
const SessionMaxAge = 30 * time.Minute

// SessionKeepAliveWindow protects recently accessed sessions from cleanup.
const SessionKeepAliveWindow = 5 * time.Minute

// State holds one session's metadata and, once complete, its timeline.
type State struct {
	Session      *models.AnalysisSession
	Data         *models.Data
	LastAccessed time.Time
}

// Manager tracks active analysis sessions.
type Manager struct {
	sessions map[string]*State
	mu       sync.RWMutex
	sem      *semaphore.Weighted
	workers  int
	history  *history.Store
	cache    *ResultCache
}

// NewManager creates a session manager. maxConcurrent bounds how many
// analyses run at once, graphWorkers is passed through to the trace parser,
// hist and cache may be nil to disable run recording and result reuse.
func NewManager(maxConcurrent, graphWorkers int, hist *history.Store, cache *ResultCache) *Manager {
	if maxConcurrent <= 0 {
		maxConcurrent = 3
	}
	return &Manager{
		sessions: make(map[string]*State),
		sem:      semaphore.NewWeighted(int64(maxConcurrent)),
		workers:  graphWorkers,
		history:  hist,
		cache:    cache,
	}
}

// StartAnalysis queues a background analysis of a console log and an
// optional trace log. The returned session starts in pending status.
func (m *Manager) StartAnalysis(dmesgFileID, dmesgPath, ftraceFileID, ftracePath string) (*models.AnalysisSession, error) {
	m.evictIfAtCapacity()

	sessionID := uuid.New().String()
	session := models.NewAnalysisSession(sessionID, dmesgFileID, ftraceFileID)

	state := &State{
		Session:      session,
		LastAccessed: time.Now(),
	}

	m.mu.Lock()
	m.sessions[sessionID] = state
	m.mu.Unlock()

	go m.runAnalysis(sessionID, dmesgFileID, dmesgPath, ftraceFileID, ftracePath)

	return session, nil
}

func (m *Manager) runAnalysis(sessionID, dmesgFileID, dmesgPath, ftraceFileID, ftracePath string) {
	log := logrus.WithField("analysis", shortID(sessionID))

	defer func() {
		if r := recover(); r != nil {
			log.Errorf("analysis panicked: %v", r)
			m.failSession(sessionID, fmt.Sprintf("analysis panicked: %v", r), nil)
		}
	}()

	if err := m.sem.Acquire(context.Background(), 1); err != nil {
		m.failSession(sessionID, fmt.Sprintf("could not schedule analysis: %v", err), nil)
		return
	}
	defer m.sem.Release(1)

	start := time.Now()

	if m.cache != nil {
		if data, ok := m.cache.Load(dmesgFileID, ftraceFileID); ok {
			log.Debug("reusing cached analysis result")
			m.completeSession(sessionID, data, nil, 0, false)
			return
		}
	}

	m.mu.Lock()
	if state, ok := m.sessions[sessionID]; ok {
		state.Session.Status = models.SessionStatusAnalyzing
		state.Session.Progress = 5
	}
	m.mu.Unlock()

	log.Debugf("analyzing %s", dmesgPath)

	// The console log covers 5-40% of the bar and the trace 40-90%; the
	// remainder is finalization.
	progress := func(stage string, lines int, bytesRead, totalBytes int64) {
		frac := 0.0
		if totalBytes > 0 {
			frac = float64(bytesRead) / float64(totalBytes)
		}
		var pct float64
		switch stage {
		case parser.StageDmesg:
			pct = 5 + frac*35
		case parser.StageFtrace:
			pct = 40 + frac*50
		default:
			return
		}
		if pct > 89.9 {
			pct = 89.9
		}

		m.mu.Lock()
		if state, ok := m.sessions[sessionID]; ok && pct > state.Session.Progress {
			state.Session.Progress = pct
		}
		m.mu.Unlock()
	}

	analyzer := parser.NewAnalyzer()
	analyzer.Workers = m.workers
	data, parseErrors, err := analyzer.AnalyzeWithProgress(dmesgPath, ftracePath, progress)
	if err != nil {
		log.Warnf("analysis failed: %v", err)
		m.failSession(sessionID, fmt.Sprintf("analysis failed: %v", err), parseErrors)
		return
	}

	if m.cache != nil {
		if cerr := m.cache.Store(dmesgFileID, ftraceFileID, data); cerr != nil {
			log.Warnf("could not cache result: %v", cerr)
		}
	}

	m.completeSession(sessionID, data, parseErrors, time.Since(start).Milliseconds(), true)
	log.Debugf("analysis done in %s", time.Since(start).Round(time.Millisecond))
}

// completeSession publishes the finished timeline onto the session and,
// for fresh results, records the run in history.
func (m *Manager) completeSession(sessionID string, data *models.Data, parseErrors []models.ParseError, elapsedMs int64, record bool) {
	m.mu.Lock()
	state, ok := m.sessions[sessionID]
	if !ok {
		m.mu.Unlock()
		return
	}

	state.Data = data
	s := state.Session
	s.Status = models.SessionStatusComplete
	s.Progress = 100
	s.DeviceCount = data.DeviceCount()
	s.GraphCount = data.GraphCount()
	s.SuspendTimeMs = data.SuspendTime()
	s.ResumeTimeMs = data.ResumeTime()
	s.ProcessingTimeMs = elapsedMs
	if parseErrors != nil {
		s.Errors = parseErrors
	}
	if data.Stamp != nil {
		s.StartTime = data.Stamp.Time.UnixMilli()
		if data.End > data.Start {
			s.EndTime = s.StartTime + int64((data.End-data.Start)*1000)
		}
	}
	recorded := *s
	m.mu.Unlock()

	if record && m.history != nil {
		if err := m.history.RecordRun(&recorded, data); err != nil {
			logrus.WithField("analysis", shortID(sessionID)).Warnf("could not record run: %v", err)
		}
	}
}

func (m *Manager) failSession(sessionID, reason string, parseErrors []models.ParseError) {
	m.mu.Lock()
	defer m.mu.Unlock()

	state, ok := m.sessions[sessionID]
	if !ok {
		return
	}

	state.Session.Status = models.SessionStatusError
	state.Session.Errors = append(append(state.Session.Errors, parseErrors...), models.ParseError{
		Reason: reason,
	})
}

// GetSession returns a session by id.
func (m *Manager) GetSession(id string) (*models.AnalysisSession, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	state, ok := m.sessions[id]
	if !ok {
		return nil, false
	}
	return state.Session, true
}

// GetData returns the completed timeline for a session, or false while the
// analysis is still running or after it failed.
func (m *Manager) GetData(id string) (*models.Data, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	state, ok := m.sessions[id]
	if !ok || state.Data == nil {
		return nil, false
	}
	return state.Data, true
}

// TouchSession refreshes the keep-alive timestamp of a session.
func (m *Manager) TouchSession(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	state, ok := m.sessions[id]
	if !ok {
		return false
	}
	state.LastAccessed = time.Now()
	return true
}

// DeleteSession drops a session and its timeline.
func (m *Manager) DeleteSession(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.sessions[id]; !ok {
		return false
	}
	delete(m.sessions, id)
	return true
}

// Sessions returns all resident sessions, for the listing endpoint.
func (m *Manager) Sessions() []*models.AnalysisSession {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*models.AnalysisSession, 0, len(m.sessions))
	for _, state := range m.sessions {
		out = append(out, state.Session)
	}
	return out
}

// Count returns the number of resident sessions.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// evictIfAtCapacity removes finished sessions when the manager is full.
func (m *Manager) evictIfAtCapacity() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.sessions) < MaxSessions {
		return
	}

	toFree := len(m.sessions) - MaxSessions + 1
	for id, state := range m.sessions {
		if toFree == 0 {
			break
		}
		if state.Session.Status != models.SessionStatusComplete &&
			state.Session.Status != models.SessionStatusError {
			continue
		}
		delete(m.sessions, id)
		toFree--
		logrus.Debugf("evicted session %s to stay under capacity", shortID(id))
	}
}

// CleanupOldSessions removes finished sessions older than maxAge, keeping
// anything accessed within the keep-alive window.
func (m *Manager) CleanupOldSessions(maxAge time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cutoff := time.Now().Add(-maxAge)
	keepAliveCutoff := time.Now().Add(-SessionKeepAliveWindow)

	for id, state := range m.sessions {
		if state.Session.Status != models.SessionStatusComplete &&
			state.Session.Status != models.SessionStatusError {
			continue
		}
		if state.LastAccessed.After(keepAliveCutoff) {
			continue
		}
		if state.LastAccessed.Before(cutoff) {
			delete(m.sessions, id)
			logrus.Debugf("cleaned up aged session %s", shortID(id))
		}
	}
}
