package tracking

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/oncotrack-ai/platform/internal/report"
	"github.com/oncotrack-ai/platform/pkg/logging"
)

// SubmitRequest is the payload for POST /v1/tracking/runs.
type SubmitRequest struct {
	Reports     []report.MedicalReport `json:"reports"`
	NotifyEmail string                 `json:"notify_email,omitempty"`
}

// SubmitResponse acknowledges an accepted tracking run.
type SubmitResponse struct {
	JobID  string    `json:"job_id"`
	RunID  string    `json:"run_id"`
	Status JobStatus `json:"status"`
}

// Handler exposes the async tracking API: run submission and job status.
type Handler struct {
	publisher *Publisher
	jobs      JobRecorder
	logger    *logging.Logger
}

// NewHandler creates a tracking handler.
func NewHandler(publisher *Publisher, jobs JobRecorder, logger *logging.Logger) *Handler {
	if publisher == nil {
		panic("tracking: publisher cannot be nil")
	}
	if jobs == nil {
		panic("tracking: job recorder cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{
		publisher: publisher,
		jobs:      jobs,
		logger:    logger,
	}
}

// Submit handles POST /v1/tracking/runs. It validates the reports, records a
// pending job, and enqueues the run for the worker.
func (h *Handler) Submit(w http.ResponseWriter, r *http.Request) {
	var req SubmitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Error("failed to decode submit request", "error", err)
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if len(req.Reports) == 0 {
		http.Error(w, "At least one report is required", http.StatusBadRequest)
		return
	}
	for i := range req.Reports {
		if err := req.Reports[i].Validate(); err != nil {
			h.logger.Warn("rejected submit request", "error", err, "index", i)
			http.Error(w, "Invalid report: "+err.Error(), http.StatusBadRequest)
			return
		}
	}

	jobID := uuid.NewString()
	run := RunRequest{
		Reports:     req.Reports,
		NotifyEmail: req.NotifyEmail,
		SubmittedAt: time.Now().UTC(),
	}

	if err := h.jobs.PutPending(r.Context(), &JobRecord{
		JobID:        jobID,
		PatientCount: countPatients(req.Reports),
	}); err != nil {
		h.logger.Error("failed to record tracking job", "error", err, "job_id", jobID)
		http.Error(w, "Failed to record job", http.StatusInternalServerError)
		return
	}

	runID, err := h.publisher.EnqueueRun(r.Context(), jobID, run)
	if err != nil {
		h.logger.Error("failed to enqueue tracking run", "error", err, "job_id", jobID)
		http.Error(w, "Failed to enqueue run", http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, http.StatusAccepted, SubmitResponse{
		JobID:  jobID,
		RunID:  runID,
		Status: JobStatusPending,
	})
}

// JobStatus handles GET /v1/tracking/jobs/{jobID}.
func (h *Handler) JobStatus(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")
	if jobID == "" {
		http.Error(w, "Job ID is required", http.StatusBadRequest)
		return
	}

	job, err := h.jobs.GetJob(r.Context(), jobID)
	if err != nil {
		if errors.Is(err, ErrJobNotFound) {
			http.Error(w, "Job not found", http.StatusNotFound)
			return
		}
		h.logger.Error("failed to fetch tracking job", "error", err, "job_id", jobID)
		http.Error(w, "Failed to fetch job", http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, http.StatusOK, job)
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		h.logger.Error("failed to write JSON response", "error", err)
	}
}

func countPatients(reports []report.MedicalReport) int {
	seen := make(map[string]struct{}, len(reports))
	for _, r := range reports {
		seen[r.PatientID] = struct{}{}
	}
	return len(seen)
}
