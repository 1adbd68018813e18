// -----------------------------------------------------------------------
// Job handlers - REST surface over the orchestrator
// -----------------------------------------------------------------------

package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/darkwatch/internal/interfaces"
	"github.com/ternarybob/darkwatch/internal/models"
	"github.com/ternarybob/darkwatch/internal/orchestrator"
	"github.com/ternarybob/darkwatch/internal/queue"
)

// JobHandler serves job management endpoints
type JobHandler struct {
	logger arbor.ILogger
	orch   *orchestrator.Orchestrator
}

// NewJobHandler creates a job handler over the orchestrator
func NewJobHandler(orch *orchestrator.Orchestrator, logger arbor.ILogger) *JobHandler {
	return &JobHandler{logger: logger, orch: orch}
}

// createJobRequest is the POST /api/jobs body
type createJobRequest struct {
	Capability string                 `json:"capability"`
	Target     string                 `json:"target"`
	Config     map[string]interface{} `json:"config,omitempty"`
	Priority   string                 `json:"priority,omitempty"`
	UserID     string                 `json:"user_id,omitempty"`
}

// CreateJobHandler creates and enqueues a job
func (h *JobHandler) CreateJobHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}

	var req createJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, http.StatusBadRequest, "INVALID_BODY", "request body must be valid JSON")
		return
	}

	job, err := h.orch.CreateJob(r.Context(), scopeFor(req.UserID),
		models.Capability(req.Capability), req.Target, req.Config,
		models.ParsePriority(req.Priority))
	if err != nil {
		switch {
		case errors.Is(err, queue.ErrQueueFull):
			WriteError(w, http.StatusServiceUnavailable, "QUEUE_FULL", "job queue is at capacity")
		default:
			WriteError(w, http.StatusBadRequest, "INVALID_JOB", err.Error())
		}
		return
	}
	WriteJSON(w, http.StatusCreated, job)
}

// GetJobHandler returns one job by ID: GET /api/jobs/{id}
func (h *JobHandler) GetJobHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}
	job, err := h.orch.GetJob(jobIDFromPath(r.URL.Path))
	if err != nil {
		WriteError(w, http.StatusNotFound, "JOB_NOT_FOUND", err.Error())
		return
	}
	WriteJSON(w, http.StatusOK, job)
}

// ListJobsHandler lists jobs with optional capability/status/target
// filters and limit/offset paging.
func (h *JobHandler) ListJobsHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	q := r.URL.Query()
	filter := &queue.Filter{
		Capability: models.Capability(q.Get("capability")),
		Status:     models.JobStatus(q.Get("status")),
		Target:     q.Get("target"),
	}
	if limit, err := strconv.Atoi(q.Get("limit")); err == nil {
		filter.Limit = limit
	}
	if offset, err := strconv.Atoi(q.Get("offset")); err == nil {
		filter.Offset = offset
	}

	jobs := h.orch.ListJobs(filter)
	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"jobs":  jobs,
		"count": len(jobs),
	})
}

// CancelJobHandler cancels a queued or running job:
// POST /api/jobs/{id}/cancel
func (h *JobHandler) CancelJobHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}
	jobID := jobIDFromPath(strings.TrimSuffix(r.URL.Path, "/cancel"))
	if err := h.orch.CancelJob(jobID); err != nil {
		if errors.Is(err, orchestrator.ErrJobNotFound) {
			WriteError(w, http.StatusNotFound, "JOB_NOT_FOUND", err.Error())
			return
		}
		WriteError(w, http.StatusConflict, "CANCEL_FAILED", err.Error())
		return
	}
	WriteJSON(w, http.StatusOK, map[string]string{"job_id": jobID, "status": "cancelled"})
}

// GetJobFindingsHandler returns a job's findings:
// GET /api/jobs/{id}/findings
func (h *JobHandler) GetJobFindingsHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}
	jobID := jobIDFromPath(strings.TrimSuffix(r.URL.Path, "/findings"))
	if _, err := h.orch.GetJob(jobID); err != nil {
		WriteError(w, http.StatusNotFound, "JOB_NOT_FOUND", err.Error())
		return
	}
	found := h.orch.Findings().Get(jobID)
	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"job_id":   jobID,
		"findings": found,
		"count":    len(found),
	})
}

// quickScanRequest is the POST /api/quickscan body
type quickScanRequest struct {
	Domain string `json:"domain"`
	UserID string `json:"user_id,omitempty"`
}

// QuickScanHandler runs the sequential exposure/infrastructure/email
// scan inline and returns the aggregated summary.
func (h *JobHandler) QuickScanHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}

	var req quickScanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Domain == "" {
		WriteError(w, http.StatusBadRequest, "INVALID_BODY", "domain is required")
		return
	}

	results, err := h.orch.QuickScan(r.Context(), scopeFor(req.UserID), req.Domain)
	if err != nil {
		WriteError(w, http.StatusInternalServerError, "QUICK_SCAN_FAILED", err.Error())
		return
	}
	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"domain":  req.Domain,
		"results": results,
	})
}

// scopeFor maps an optional user ID to a storage scope. Requests without
// a user run with system scope.
func scopeFor(userID string) interfaces.Scope {
	if userID == "" {
		return interfaces.AdminScope
	}
	return interfaces.Scope{UserID: userID}
}

// jobIDFromPath extracts the trailing path element as the job ID
func jobIDFromPath(path string) string {
	parts := strings.Split(strings.Trim(path, "/"), "/")
	return parts[len(parts)-1]
}
