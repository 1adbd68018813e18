// -----------------------------------------------------------------------
// WebSocket handler - bridges job observer streams to clients
// -----------------------------------------------------------------------

package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/darkwatch/internal/common"
	"github.com/ternarybob/darkwatch/internal/findings"
	"github.com/ternarybob/darkwatch/internal/models"
	"github.com/ternarybob/darkwatch/internal/orchestrator"
	"golang.org/x/time/rate"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins for local development
	},
}

// WSMessage is the envelope for every message sent to a client
type WSMessage struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

// WebSocketHandler upgrades clients onto a job's observer stream. Each
// connection supersedes any previous observer for the same job: at most
// one live sink per job.
type WebSocketHandler struct {
	logger           arbor.ILogger
	orch             *orchestrator.Orchestrator
	allowedEvents    map[string]bool
	throttlers       map[models.ObserverEventType]*rate.Limiter
	serverInstanceID string
}

// NewWebSocketHandler builds the stream bridge. An empty AllowedEvents
// list allows every event type; throttle intervals apply per event type.
func NewWebSocketHandler(orch *orchestrator.Orchestrator, config *common.WebSocketConfig, logger arbor.ILogger) *WebSocketHandler {
	h := &WebSocketHandler{
		logger:           logger,
		orch:             orch,
		allowedEvents:    make(map[string]bool),
		throttlers:       make(map[models.ObserverEventType]*rate.Limiter),
		serverInstanceID: uuid.New().String(),
	}

	if config != nil {
		for _, eventType := range config.AllowedEvents {
			h.allowedEvents[eventType] = true
		}
		for eventType, intervalStr := range config.ThrottleIntervals {
			duration, err := time.ParseDuration(intervalStr)
			if err != nil {
				logger.Warn().
					Str("event_type", eventType).
					Str("interval", intervalStr).
					Msg("Invalid throttle interval - throttling disabled for event type")
				continue
			}
			h.throttlers[models.ObserverEventType(eventType)] = rate.NewLimiter(rate.Every(duration), 1)
		}
	}

	logger.Info().
		Str("server_instance_id", h.serverInstanceID).
		Int("allowed_events", len(h.allowedEvents)).
		Int("throttled_events", len(h.throttlers)).
		Msg("WebSocket handler initialized")
	return h
}

// HandleJobStream streams one job's observer events to the client.
// Query params: job_id (required), since_id (optional resume point -
// findings published after that ID are replayed before live events).
func (h *WebSocketHandler) HandleJobStream(w http.ResponseWriter, r *http.Request) {
	jobID := r.URL.Query().Get("job_id")
	if jobID == "" {
		WriteError(w, http.StatusBadRequest, "MISSING_JOB_ID", "job_id query parameter is required")
		return
	}
	if _, err := h.orch.GetJob(jobID); err != nil {
		WriteError(w, http.StatusNotFound, "JOB_NOT_FOUND", "no job with id "+jobID)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to upgrade WebSocket connection")
		return
	}
	defer conn.Close()

	h.logger.Debug().Str("job_id", jobID).Msg("WebSocket observer connected")

	h.send(conn, WSMessage{Type: "hello", Payload: map[string]string{
		"job_id":             jobID,
		"server_instance_id": h.serverInstanceID,
	}})

	// Replay missed findings so a reconnecting client catches up before
	// the live stream starts
	if sinceID := r.URL.Query().Get("since_id"); sinceID != "" {
		for _, f := range h.orch.Findings().GetSince(jobID, findings.Since{ID: sinceID}) {
			h.send(conn, WSMessage{Type: string(models.ObserverFinding), Payload: f.ToDict()})
		}
	}

	events := h.orch.Observers().Subscribe(jobID)
	defer h.orch.Observers().Unsubscribe(jobID, events)

	// Reader goroutine detects client disconnect
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
					h.logger.Warn().Str("job_id", jobID).Err(err).Msg("WebSocket read error")
				}
				return
			}
		}
	}()

	for {
		select {
		case <-done:
			h.logger.Debug().Str("job_id", jobID).Msg("WebSocket observer disconnected")
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			if !h.shouldSend(ev) {
				continue
			}
			if !h.send(conn, WSMessage{Type: string(ev.Type), Payload: ev}) {
				return
			}
			// Terminal events end the stream
			switch ev.Type {
			case models.ObserverComplete, models.ObserverError, models.ObserverSuperseded:
				return
			}
		}
	}
}

// shouldSend applies the whitelist and per-type throttling. Terminal
// events always pass so the client sees the stream end.
func (h *WebSocketHandler) shouldSend(ev models.ObserverEvent) bool {
	switch ev.Type {
	case models.ObserverComplete, models.ObserverError, models.ObserverSuperseded:
		return true
	}
	if len(h.allowedEvents) > 0 && !h.allowedEvents[string(ev.Type)] {
		return false
	}
	if limiter, ok := h.throttlers[ev.Type]; ok && !limiter.Allow() {
		return false
	}
	return true
}

func (h *WebSocketHandler) send(conn *websocket.Conn, msg WSMessage) bool {
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error().Err(err).Str("type", msg.Type).Msg("Failed to marshal WebSocket message")
		return true
	}
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		h.logger.Warn().Err(err).Msg("Failed to write to WebSocket client")
		return false
	}
	return true
}
