package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/ternarybob/quaero/internal/common"
	"github.com/ternarybob/quaero/internal/model"
)

// setupRoutes wires every HTTP/WebSocket endpoint the Metrics Calculation
// Service exposes onto a plain http.ServeMux, mirroring the teacher's manual
// method/path-suffix routing style rather than a third-party router.
func (s *Server) setupRoutes() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("/api/health", s.handleHealth)
	mux.HandleFunc("/api/version", s.handleVersion)
	mux.HandleFunc("/api/shutdown", s.ShutdownHandler)

	mux.HandleFunc("/api/cluster/start", s.handleClusterStart)
	mux.HandleFunc("/api/cluster/status", s.handleClusterStatus)

	mux.HandleFunc("/api/dependencies", s.handleDependencies)

	mux.HandleFunc("/api/jobs", s.handleJobsCollection)
	mux.HandleFunc("/api/jobs/", s.handleJobItem)

	mux.HandleFunc("/ws/jobs", s.handleWSAllJobs)
	mux.HandleFunc("/ws/jobs/", s.handleWSJob)

	return mux
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"version": common.GetVersion(),
		"build":   common.GetBuild(),
	})
}

// handleClusterStart starts the Cluster Manager's worker pool (spec §4.3).
// POST /api/cluster/start {"min":1,"max":8}
func (s *Server) handleClusterStart(w http.ResponseWriter, r *http.Request) {
	RouteByMethod(w, r, MethodRouter{http.MethodPost: s.doClusterStart})
}

func (s *Server) doClusterStart(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Min int `json:"min"`
		Max int `json:"max"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	status, err := s.app.Scheduler.StartCluster(r.Context(), body.Min, body.Max)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func (s *Server) handleClusterStatus(w http.ResponseWriter, r *http.Request) {
	RouteByMethod(w, r, MethodRouter{http.MethodGet: s.doClusterStatus})
}

func (s *Server) doClusterStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.app.Scheduler.ClusterStatus())
}

// handleDependencies inspects or seeds known exported table references
// (spec §4.1 "inspect/add existing exported table references").
// GET  /api/dependencies -> inspect
// POST /api/dependencies -> add existing
func (s *Server) handleDependencies(w http.ResponseWriter, r *http.Request) {
	RouteResourceCollection(w, r, s.doInspectDependencies, s.doAddDependencies)
}

func (s *Server) doInspectDependencies(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.app.Scheduler.InspectExportedTableReferences())
}

func (s *Server) doAddDependencies(w http.ResponseWriter, r *http.Request) {
	var refs map[string]model.ExportReference
	if err := json.NewDecoder(r.Body).Decode(&refs); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	s.app.Scheduler.AddExistingExportedTableReferences(refs)
	w.WriteHeader(http.StatusNoContent)
}

// handleJobsCollection submits a new job.
// POST /api/jobs
func (s *Server) handleJobsCollection(w http.ResponseWriter, r *http.Request) {
	RouteByMethod(w, r, MethodRouter{http.MethodPost: s.doSubmitJob})
}

func (s *Server) doSubmitJob(w http.ResponseWriter, r *http.Request) {
	var req model.SubmitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	resp, err := s.app.Scheduler.SubmitJob(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, resp)
}

// handleJobItem returns a job's status.
// GET /api/jobs/{id}?stats=true
func (s *Server) handleJobItem(w http.ResponseWriter, r *http.Request) {
	RouteByMethod(w, r, MethodRouter{http.MethodGet: s.doJobStatus})
}

func (s *Server) doJobStatus(w http.ResponseWriter, r *http.Request) {
	jobID := strings.TrimPrefix(r.URL.Path, "/api/jobs/")
	if jobID == "" {
		http.Error(w, "missing job id", http.StatusBadRequest)
		return
	}

	includeStats, _ := strconv.ParseBool(r.URL.Query().Get("stats"))

	resp, err := s.app.Scheduler.JobStatus(jobID, includeStats)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleWSJob streams updates for a single job (spec §4.4 per-job channel).
// GET /ws/jobs/{id}
func (s *Server) handleWSJob(w http.ResponseWriter, r *http.Request) {
	jobID := strings.TrimPrefix(r.URL.Path, "/ws/jobs/")
	if jobID == "" {
		http.Error(w, "missing job id", http.StatusBadRequest)
		return
	}

	source, unsubscribe := s.app.Scheduler.SubscribeJobUpdates(jobID)
	defer unsubscribe()

	s.app.Hub.ServeJobUpdates(w, r, source)
}

// handleWSAllJobs streams every job's updates (spec §4.4 broadcast channel).
// GET /ws/jobs
func (s *Server) handleWSAllJobs(w http.ResponseWriter, r *http.Request) {
	source, unsubscribe := s.app.Scheduler.SubscribeAllJobUpdates()
	defer unsubscribe()

	s.app.Hub.ServeJobUpdates(w, r, source)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, model.ErrJobNotFound):
		status = http.StatusNotFound
	case errors.Is(err, model.ErrInvalidRequest):
		status = http.StatusBadRequest
	case errors.Is(err, model.ErrClusterUnavailable):
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
