package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/oncotrack-ai/platform/internal/compliance"
	"github.com/oncotrack-ai/platform/pkg/logging"
)

// AuditHandler serves the compliance audit trail to administrators.
type AuditHandler struct {
	audit  *compliance.AuditService
	logger *logging.Logger
}

// NewAuditHandler creates an audit query handler.
func NewAuditHandler(audit *compliance.AuditService, logger *logging.Logger) *AuditHandler {
	if audit == nil {
		panic("handlers: audit service cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &AuditHandler{
		audit:  audit,
		logger: logger,
	}
}

// QueryEvents handles GET /admin/runs/{runID}/audit.
func (h *AuditHandler) QueryEvents(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "runID")
	if runID == "" {
		http.Error(w, "Run ID is required", http.StatusBadRequest)
		return
	}

	filter := compliance.AuditFilter{
		RunID:     runID,
		PatientID: r.URL.Query().Get("patient_id"),
		EventType: compliance.AuditEventType(r.URL.Query().Get("event_type")),
		Limit:     100,
	}
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit <= 0 {
			http.Error(w, "Invalid limit", http.StatusBadRequest)
			return
		}
		filter.Limit = limit
	}
	if raw := r.URL.Query().Get("since"); raw != "" {
		since, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			http.Error(w, "Invalid since timestamp", http.StatusBadRequest)
			return
		}
		filter.StartTime = since
	}

	events, err := h.audit.QueryEvents(r.Context(), filter)
	if err != nil {
		h.logger.Error("failed to query audit events", "error", err, "run_id", runID)
		http.Error(w, "Failed to query audit events", http.StatusInternalServerError)
		return
	}
	if events == nil {
		events = []compliance.AuditEvent{}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(map[string]any{
		"run_id": runID,
		"events": events,
	}); err != nil {
		h.logger.Error("failed to write JSON response", "error", err)
	}
}
