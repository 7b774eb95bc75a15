// websocket.go - Live status push for analysis sessions and upload jobs
package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"github.com/i72421/pm-graph/internal/models"
	"github.com/i72421/pm-graph/internal/upload"
)

// WebSocket message types for the status protocol
const (
	// Client -> Server messages
	MsgTypeWatchSession   = "watch:session"
	MsgTypeUnwatchSession = "unwatch:session"
	MsgTypeWatchJob       = "watch:job"
	MsgTypeUnwatchJob     = "unwatch:job"
	MsgTypePing           = "ping"

	// Server -> Client messages
	MsgTypeConnected = "connected"
	MsgTypeSession   = "session"
	MsgTypeJob       = "job"
	MsgTypeError     = "error"
	MsgTypePong      = "pong"
)

// WSMessage is the envelope for both directions
type WSMessage struct {
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Timestamp int64           `json:"timestamp"`
}

type watchPayload struct {
	ID string `json:"id"`
}

// statusPushInterval is how often watched sessions and jobs are pushed to
// connected clients.
const statusPushInterval = 250 * time.Millisecond

// SocketHandler pushes session and upload job status over a WebSocket.
// A client subscribes with watch messages; each watched id is pushed on a
// ticker until it reaches a terminal state.
type SocketHandler struct {
	sessions SessionManager
	jobs     JobTracker
	upgrader websocket.Upgrader
}

// NewSocketHandler creates a new status push handler
func NewSocketHandler(sessions SessionManager, jobs JobTracker) *SocketHandler {
	return &SocketHandler{
		sessions: sessions,
		jobs:     jobs,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				// Allow connections from dev server
				return true
			},
			ReadBufferSize:  4 * 1024,
			WriteBufferSize: 16 * 1024,
		},
	}
}

// HandleSocket upgrades the connection and runs the watch loop. All writes
// happen on this goroutine; a reader goroutine feeds client messages in.
func (sh *SocketHandler) HandleSocket(c echo.Context) error {
	ws, err := sh.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}
	defer ws.Close()

	logrus.Debug("status socket connected")
	sh.sendMessage(ws, WSMessage{Type: MsgTypeConnected, Timestamp: time.Now().UnixMilli()})

	commands := make(chan WSMessage)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			var msg WSMessage
			if err := ws.ReadJSON(&msg); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
					logrus.Debugf("status socket read error: %v", err)
				}
				return
			}
			commands <- msg
		}
	}()

	watchedSessions := make(map[string]bool)
	watchedJobs := make(map[string]bool)

	ticker := time.NewTicker(statusPushInterval)
	defer ticker.Stop()

	for {
		select {
		case msg := <-commands:
			sh.handleCommand(ws, msg, watchedSessions, watchedJobs)

		case <-ticker.C:
			sh.pushSessions(ws, watchedSessions)
			sh.pushJobs(ws, watchedJobs)

		case <-done:
			logrus.Debug("status socket disconnected")
			return nil
		}
	}
}

func (sh *SocketHandler) handleCommand(ws *websocket.Conn, msg WSMessage, sessions, jobs map[string]bool) {
	switch msg.Type {
	case MsgTypePing:
		sh.sendMessage(ws, WSMessage{Type: MsgTypePong, Timestamp: time.Now().UnixMilli()})

	case MsgTypeWatchSession:
		id, ok := sh.watchID(ws, msg)
		if !ok {
			return
		}
		sess, ok := sh.sessions.GetSession(id)
		if !ok {
			sh.sendError(ws, "session not found: "+id)
			return
		}
		sessions[id] = true
		sh.sendMessage(ws, WSMessage{Type: MsgTypeSession, Payload: mustJSON(sess), Timestamp: time.Now().UnixMilli()})

	case MsgTypeUnwatchSession:
		if id, ok := sh.watchID(ws, msg); ok {
			delete(sessions, id)
		}

	case MsgTypeWatchJob:
		id, ok := sh.watchID(ws, msg)
		if !ok {
			return
		}
		job, ok := sh.jobs.GetJob(id)
		if !ok {
			sh.sendError(ws, "job not found: "+id)
			return
		}
		jobs[id] = true
		sh.sendMessage(ws, WSMessage{Type: MsgTypeJob, Payload: mustJSON(job), Timestamp: time.Now().UnixMilli()})

	case MsgTypeUnwatchJob:
		if id, ok := sh.watchID(ws, msg); ok {
			delete(jobs, id)
		}

	default:
		sh.sendError(ws, "unknown message type: "+msg.Type)
	}
}

// pushSessions sends a snapshot of every watched session and drops watches
// that reached a terminal state.
func (sh *SocketHandler) pushSessions(ws *websocket.Conn, watched map[string]bool) {
	for id := range watched {
		sess, ok := sh.sessions.GetSession(id)
		if !ok {
			sh.sendError(ws, "session not found: "+id)
			delete(watched, id)
			continue
		}
		sh.sendMessage(ws, WSMessage{Type: MsgTypeSession, Payload: mustJSON(sess), Timestamp: time.Now().UnixMilli()})
		if sess.Status == models.SessionStatusComplete || sess.Status == models.SessionStatusError {
			delete(watched, id)
		}
	}
}

func (sh *SocketHandler) pushJobs(ws *websocket.Conn, watched map[string]bool) {
	for id := range watched {
		job, ok := sh.jobs.GetJob(id)
		if !ok {
			sh.sendError(ws, "job not found: "+id)
			delete(watched, id)
			continue
		}
		sh.sendMessage(ws, WSMessage{Type: MsgTypeJob, Payload: mustJSON(job), Timestamp: time.Now().UnixMilli()})
		if job.Status == upload.StatusComplete || job.Status == upload.StatusError {
			delete(watched, id)
		}
	}
}

func (sh *SocketHandler) watchID(ws *websocket.Conn, msg WSMessage) (string, bool) {
	var payload watchPayload
	if err := json.Unmarshal(msg.Payload, &payload); err != nil || payload.ID == "" {
		sh.sendError(ws, "invalid watch payload")
		return "", false
	}
	return payload.ID, true
}

func (sh *SocketHandler) sendMessage(ws *websocket.Conn, msg WSMessage) {
	if err := ws.WriteJSON(msg); err != nil {
		logrus.Debugf("status socket write error: %v", err)
	}
}

func (sh *SocketHandler) sendError(ws *websocket.Conn, message string) {
	sh.sendMessage(ws, WSMessage{
		Type:      MsgTypeError,
		Payload:   mustJSON(map[string]string{"message": message}),
		Timestamp: time.Now().UnixMilli(),
	})
}

func mustJSON(v interface{}) json.RawMessage {
	data, err := json.Marshal(v)
	if err != nil {
		return json.RawMessage(`{}`)
	}
	return data
}
