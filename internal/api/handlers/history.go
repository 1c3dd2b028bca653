package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/oncotrack-ai/platform/internal/compliance"
	"github.com/oncotrack-ai/platform/internal/http/middleware"
	"github.com/oncotrack-ai/platform/internal/lesion"
	"github.com/oncotrack-ai/platform/internal/results"
	"github.com/oncotrack-ai/platform/pkg/logging"
)

// HistoryStore serves persisted tracking results.
type HistoryStore interface {
	GetPatientHistory(ctx context.Context, runID, patientID string) (*lesion.PatientLesionHistory, error)
	ListRunPatients(ctx context.Context, runID string) ([]string, error)
}

// HistoryHandler serves stored patient lesion histories.
type HistoryHandler struct {
	store  HistoryStore
	audit  *compliance.AuditService
	logger *logging.Logger
}

// NewHistoryHandler creates a history handler. audit may be nil.
func NewHistoryHandler(store HistoryStore, audit *compliance.AuditService, logger *logging.Logger) *HistoryHandler {
	if store == nil {
		panic("handlers: history store cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &HistoryHandler{
		store:  store,
		audit:  audit,
		logger: logger,
	}
}

// GetPatient handles GET /v1/runs/{runID}/patients/{patientID}.
func (h *HistoryHandler) GetPatient(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "runID")
	patientID := chi.URLParam(r, "patientID")
	if runID == "" || patientID == "" {
		http.Error(w, "Run ID and patient ID are required", http.StatusBadRequest)
		return
	}

	history, err := h.store.GetPatientHistory(r.Context(), runID, patientID)
	if err != nil {
		if errors.Is(err, results.ErrHistoryNotFound) {
			http.Error(w, "History not found", http.StatusNotFound)
			return
		}
		h.logger.Error("failed to fetch history", "error", err, "run_id", runID, "patient_id", patientID)
		http.Error(w, "Failed to fetch history", http.StatusInternalServerError)
		return
	}

	if h.audit != nil {
		if err := h.audit.LogHistoryAccessed(r.Context(), runID, patientID, actorFromRequest(r)); err != nil {
			h.logger.Warn("audit log failed", "error", err, "run_id", runID)
		}
	}

	h.writeJSON(w, http.StatusOK, history)
}

// ListPatients handles GET /v1/runs/{runID}/patients.
func (h *HistoryHandler) ListPatients(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "runID")
	if runID == "" {
		http.Error(w, "Run ID is required", http.StatusBadRequest)
		return
	}

	patients, err := h.store.ListRunPatients(r.Context(), runID)
	if err != nil {
		h.logger.Error("failed to list patients", "error", err, "run_id", runID)
		http.Error(w, "Failed to list patients", http.StatusInternalServerError)
		return
	}
	if patients == nil {
		patients = []string{}
	}

	h.writeJSON(w, http.StatusOK, map[string]any{
		"run_id":   runID,
		"patients": patients,
	})
}

func (h *HistoryHandler) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		h.logger.Error("failed to write JSON response", "error", err)
	}
}

// actorFromRequest identifies the caller for audit purposes: the admin JWT
// subject when present, else the remote address.
func actorFromRequest(r *http.Request) string {
	if claims, ok := middleware.AdminClaimsFromContext(r.Context()); ok && claims.Subject != "" {
		return claims.Subject
	}
	return r.RemoteAddr
}
