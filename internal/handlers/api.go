// -----------------------------------------------------------------------
// System handlers - health, version, events, intelligence reads
// -----------------------------------------------------------------------

package handlers

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/darkwatch/internal/common"
	"github.com/ternarybob/darkwatch/internal/graph"
	"github.com/ternarybob/darkwatch/internal/interfaces"
	"github.com/ternarybob/darkwatch/internal/orchestrator"
	"github.com/ternarybob/darkwatch/internal/risk"
)

// APIHandler serves system-level endpoints
type APIHandler struct {
	logger  arbor.ILogger
	orch    *orchestrator.Orchestrator
	riskEng *risk.Engine
	graph   *graph.Service
	storage interfaces.StorageManager
	started time.Time
}

// NewAPIHandler creates the system handler. riskEng, graphSvc, and
// storage may be nil in reduced deployments; the affected endpoints
// then return 503.
func NewAPIHandler(orch *orchestrator.Orchestrator, riskEng *risk.Engine, graphSvc *graph.Service, storage interfaces.StorageManager, logger arbor.ILogger) *APIHandler {
	return &APIHandler{
		logger:  logger,
		orch:    orch,
		riskEng: riskEng,
		graph:   graphSvc,
		storage: storage,
		started: time.Now(),
	}
}

// HealthHandler reports liveness: GET /api/health
func (h *APIHandler) HealthHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}
	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"status":         "ok",
		"uptime_seconds": int(time.Since(h.started).Seconds()),
	})
}

// VersionHandler returns the build version: GET /api/version
func (h *APIHandler) VersionHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}
	WriteJSON(w, http.StatusOK, map[string]string{"version": common.Version})
}

// NotFoundHandler is the catch-all for unmatched API routes
func (h *APIHandler) NotFoundHandler(w http.ResponseWriter, r *http.Request) {
	WriteError(w, http.StatusNotFound, "NOT_FOUND", "no such endpoint: "+r.URL.Path)
}

// EventsHandler returns recent system events: GET /api/events?limit=N
func (h *APIHandler) EventsHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}
	limit := 100
	if n, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && n > 0 {
		limit = n
	}
	events := h.orch.Events().Recent(limit)
	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"events": events,
		"count":  len(events),
	})
}

// TopFindingsHandler returns the highest-risk findings seen this
// process: GET /api/findings/top?limit=N
func (h *APIHandler) TopFindingsHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}
	limit := 20
	if n, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && n > 0 {
		limit = n
	}
	top := h.orch.TopFindings(limit)
	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"findings": top,
		"count":    len(top),
	})
}

// RiskScoreHandler recalculates the risk score for a target from its
// stored findings and indicators: GET /api/risk/{target}
func (h *APIHandler) RiskScoreHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}
	if h.riskEng == nil || h.storage == nil {
		WriteError(w, http.StatusServiceUnavailable, "RISK_UNAVAILABLE", "risk scoring is not configured")
		return
	}

	target := strings.TrimPrefix(r.URL.Path, "/api/risk/")
	if target == "" {
		WriteError(w, http.StatusBadRequest, "MISSING_TARGET", "target path element is required")
		return
	}

	found, err := h.storage.FindingStorage().GetFindingsByTarget(r.Context(), interfaces.AdminScope, target)
	if err != nil {
		WriteError(w, http.StatusInternalServerError, "STORAGE_ERROR", err.Error())
		return
	}
	indicators, err := h.storage.IndicatorStorage().GetIndicatorsByTarget(r.Context(), interfaces.AdminScope, target)
	if err != nil {
		WriteError(w, http.StatusInternalServerError, "STORAGE_ERROR", err.Error())
		return
	}

	score := h.riskEng.CalculateRiskScore(r.Context(), target, found, indicators)
	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"score":   score,
		"history": h.riskEng.History(target),
	})
}

// GraphNeighborsHandler walks the domain graph around an entity:
// GET /api/graph/neighbors?entity_id=X&depth=N
func (h *APIHandler) GraphNeighborsHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}
	if h.graph == nil {
		WriteError(w, http.StatusServiceUnavailable, "GRAPH_UNAVAILABLE", "domain graph is not configured")
		return
	}

	entityID := r.URL.Query().Get("entity_id")
	if entityID == "" {
		WriteError(w, http.StatusBadRequest, "MISSING_ENTITY_ID", "entity_id query parameter is required")
		return
	}
	depth := 1
	if n, err := strconv.Atoi(r.URL.Query().Get("depth")); err == nil && n > 0 {
		depth = n
	}

	neighbors, err := h.graph.GetNeighbors(r.Context(), interfaces.AdminScope, entityID, depth)
	if err != nil {
		WriteError(w, http.StatusInternalServerError, "GRAPH_ERROR", err.Error())
		return
	}
	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"entity_id": entityID,
		"depth":     depth,
		"neighbors": neighbors,
	})
}

// NotificationsHandler lists a user's notification records:
// GET /api/notifications?user_id=X&unread=true&limit=N
func (h *APIHandler) NotificationsHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}
	if h.storage == nil {
		WriteError(w, http.StatusServiceUnavailable, "STORAGE_UNAVAILABLE", "persistence is not configured")
		return
	}

	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		WriteError(w, http.StatusBadRequest, "MISSING_USER_ID", "user_id query parameter is required")
		return
	}
	unreadOnly := r.URL.Query().Get("unread") == "true"
	limit := 50
	if n, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && n > 0 {
		limit = n
	}

	notifications, err := h.storage.NotificationStorage().ListNotifications(
		r.Context(), interfaces.Scope{UserID: userID}, unreadOnly, limit)
	if err != nil {
		WriteError(w, http.StatusInternalServerError, "STORAGE_ERROR", err.Error())
		return
	}
	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"notifications": notifications,
		"count":         len(notifications),
	})
}
