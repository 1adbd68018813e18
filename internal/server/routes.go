// -----------------------------------------------------------------------
// HTTP routes - REST API plus the observer WebSocket
// -----------------------------------------------------------------------

package server

import (
	"net/http"
	"strings"
)

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() *http.ServeMux {
	mux := http.NewServeMux()

	// WebSocket route - per-job observer stream
	mux.HandleFunc("/ws", s.app.WSHandler.HandleJobStream)

	// API routes - Jobs
	mux.HandleFunc("/api/jobs", s.handleJobsRoute)
	mux.HandleFunc("/api/jobs/", s.handleJobRoutes)

	// API routes - Scans
	mux.HandleFunc("/api/quickscan", s.app.JobHandler.QuickScanHandler)

	// API routes - Intelligence reads
	mux.HandleFunc("/api/findings/top", s.app.APIHandler.TopFindingsHandler)
	mux.HandleFunc("/api/risk/", s.app.APIHandler.RiskScoreHandler)
	mux.HandleFunc("/api/graph/neighbors", s.app.APIHandler.GraphNeighborsHandler)
	mux.HandleFunc("/api/notifications", s.app.APIHandler.NotificationsHandler)
	mux.HandleFunc("/api/events", s.app.APIHandler.EventsHandler)

	// API routes - System
	mux.HandleFunc("/api/version", s.app.APIHandler.VersionHandler)
	mux.HandleFunc("/api/health", s.app.APIHandler.HealthHandler)

	// 404 handler for unmatched API routes
	mux.HandleFunc("/api/", s.app.APIHandler.NotFoundHandler)

	return mux
}

// handleJobsRoute routes /api/jobs (list and create)
func (s *Server) handleJobsRoute(w http.ResponseWriter, r *http.Request) {
	RouteResourceCollection(w, r, s.app.JobHandler.ListJobsHandler, s.app.JobHandler.CreateJobHandler)
}

// handleJobRoutes routes /api/jobs/{id} and its subpaths
func (s *Server) handleJobRoutes(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Path

	switch {
	case strings.HasSuffix(path, "/cancel"):
		s.app.JobHandler.CancelJobHandler(w, r)
	case strings.HasSuffix(path, "/findings"):
		s.app.JobHandler.GetJobFindingsHandler(w, r)
	default:
		s.app.JobHandler.GetJobHandler(w, r)
	}
}
