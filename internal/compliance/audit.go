// Package compliance provides healthcare regulatory compliance features.
package compliance

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

// AuditEventType represents the type of compliance event.
type AuditEventType string

const (
	// EventRunSubmitted is logged when a tracking run enters the system.
	EventRunSubmitted AuditEventType = "audit.run_submitted"
	// EventRunCompleted is logged when a tracking run finishes.
	EventRunCompleted AuditEventType = "audit.run_completed"
	// EventTimepointDegraded is logged when extraction failed and a timepoint
	// was recorded with zero observations.
	EventTimepointDegraded AuditEventType = "audit.timepoint_degraded"
	// EventCandidateRejected is logged when an extracted lesion candidate was
	// dropped during validation.
	EventCandidateRejected AuditEventType = "audit.candidate_rejected"
	// EventHistoryAccessed is logged when a patient history is read over the API.
	EventHistoryAccessed AuditEventType = "audit.history_accessed"
	// EventResultsExported is logged when run artifacts leave the system.
	EventResultsExported AuditEventType = "audit.results_exported"
)

// AuditEvent represents an immutable compliance audit record. Report text is
// never stored here; reasons and details carry derived facts only.
type AuditEvent struct {
	ID        string          `json:"id"`
	EventType AuditEventType  `json:"event_type"`
	RunID     string          `json:"run_id"`
	PatientID string          `json:"patient_id,omitempty"`
	Actor     string          `json:"actor,omitempty"`
	Reasons   []string        `json:"reasons,omitempty"`
	Details   json.RawMessage `json:"details,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

// AuditDetails contains event-specific details.
type AuditDetails struct {
	// For run submitted / completed
	JobID              string `json:"job_id,omitempty"`
	Patients           int    `json:"patients,omitempty"`
	Completed          int    `json:"completed,omitempty"`
	Failed             int    `json:"failed,omitempty"`
	DegradedTimepoints int    `json:"degraded_timepoints,omitempty"`

	// For degraded timepoints and rejected candidates
	TimepointDate string `json:"timepoint_date,omitempty"`

	// For exports
	ExportKeys []string `json:"export_keys,omitempty"`
	Recipients []string `json:"recipients,omitempty"`
}

// AuditService handles compliance audit logging.
type AuditService struct {
	db *sql.DB
}

// NewAuditService creates a new audit service.
func NewAuditService(db *sql.DB) *AuditService {
	return &AuditService{db: db}
}

// LogEvent records a compliance audit event.
func (s *AuditService) LogEvent(ctx context.Context, event AuditEvent) error {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO lesion_audit_events (
			id, event_type, run_id, patient_id, actor, reasons, details, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	_, err := s.db.ExecContext(ctx, query,
		event.ID,
		event.EventType,
		event.RunID,
		nullString(event.PatientID),
		nullString(event.Actor),
		pq.Array(event.Reasons),
		event.Details,
		event.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("compliance: failed to log audit event: %w", err)
	}

	return nil
}

// LogRunSubmitted logs a new tracking run entering the system.
func (s *AuditService) LogRunSubmitted(ctx context.Context, runID, jobID, actor string, patients int) error {
	details := AuditDetails{
		JobID:    jobID,
		Patients: patients,
	}
	detailsJSON, _ := json.Marshal(details)

	return s.LogEvent(ctx, AuditEvent{
		EventType: EventRunSubmitted,
		RunID:     runID,
		Actor:     actor,
		Details:   detailsJSON,
	})
}

// LogRunCompleted logs the outcome of a finished run.
func (s *AuditService) LogRunCompleted(ctx context.Context, runID string, patients, completed, failed, degraded int) error {
	details := AuditDetails{
		Patients:           patients,
		Completed:          completed,
		Failed:             failed,
		DegradedTimepoints: degraded,
	}
	detailsJSON, _ := json.Marshal(details)

	return s.LogEvent(ctx, AuditEvent{
		EventType: EventRunCompleted,
		RunID:     runID,
		Details:   detailsJSON,
	})
}

// LogTimepointDegraded logs a timepoint recorded without observations.
func (s *AuditService) LogTimepointDegraded(ctx context.Context, runID, patientID string, date time.Time, reasons []string) error {
	details := AuditDetails{
		TimepointDate: date.Format(time.DateOnly),
	}
	detailsJSON, _ := json.Marshal(details)

	return s.LogEvent(ctx, AuditEvent{
		EventType: EventTimepointDegraded,
		RunID:     runID,
		PatientID: patientID,
		Reasons:   reasons,
		Details:   detailsJSON,
	})
}

// LogCandidateRejected logs an extracted candidate dropped during validation.
func (s *AuditService) LogCandidateRejected(ctx context.Context, runID, patientID string, date time.Time, reasons []string) error {
	details := AuditDetails{
		TimepointDate: date.Format(time.DateOnly),
	}
	detailsJSON, _ := json.Marshal(details)

	return s.LogEvent(ctx, AuditEvent{
		EventType: EventCandidateRejected,
		RunID:     runID,
		PatientID: patientID,
		Reasons:   reasons,
		Details:   detailsJSON,
	})
}

// LogHistoryAccessed logs an API read of one patient's history.
func (s *AuditService) LogHistoryAccessed(ctx context.Context, runID, patientID, actor string) error {
	return s.LogEvent(ctx, AuditEvent{
		EventType: EventHistoryAccessed,
		RunID:     runID,
		PatientID: patientID,
		Actor:     actor,
	})
}

// LogResultsExported logs run artifacts leaving the system.
func (s *AuditService) LogResultsExported(ctx context.Context, runID, actor string, keys, recipients []string) error {
	details := AuditDetails{
		ExportKeys: keys,
		Recipients: recipients,
	}
	detailsJSON, _ := json.Marshal(details)

	return s.LogEvent(ctx, AuditEvent{
		EventType: EventResultsExported,
		RunID:     runID,
		Actor:     actor,
		Details:   detailsJSON,
	})
}

// QueryEvents retrieves audit events with filters.
func (s *AuditService) QueryEvents(ctx context.Context, filter AuditFilter) ([]AuditEvent, error) {
	query := `
		SELECT id, event_type, run_id, patient_id, actor, reasons, details, created_at
		FROM lesion_audit_events
		WHERE run_id = $1
	`
	args := []interface{}{filter.RunID}
	argIdx := 2

	if filter.PatientID != "" {
		query += fmt.Sprintf(" AND patient_id = $%d", argIdx)
		args = append(args, filter.PatientID)
		argIdx++
	}
	if filter.EventType != "" {
		query += fmt.Sprintf(" AND event_type = $%d", argIdx)
		args = append(args, filter.EventType)
		argIdx++
	}
	if !filter.StartTime.IsZero() {
		query += fmt.Sprintf(" AND created_at >= $%d", argIdx)
		args = append(args, filter.StartTime)
		argIdx++
	}
	if !filter.EndTime.IsZero() {
		query += fmt.Sprintf(" AND created_at <= $%d", argIdx)
		args = append(args, filter.EndTime)
		argIdx++
	}

	query += " ORDER BY created_at DESC"

	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}
	if filter.Offset > 0 {
		query += fmt.Sprintf(" OFFSET %d", filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("compliance: failed to query audit events: %w", err)
	}
	defer rows.Close()

	var events []AuditEvent
	for rows.Next() {
		var e AuditEvent
		var patientID, actor sql.NullString
		err := rows.Scan(
			&e.ID, &e.EventType, &e.RunID, &patientID, &actor,
			pq.Array(&e.Reasons), &e.Details, &e.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("compliance: failed to scan audit event: %w", err)
		}
		e.PatientID = patientID.String
		e.Actor = actor.String
		events = append(events, e)
	}

	return events, nil
}

// AuditFilter specifies criteria for querying audit events.
type AuditFilter struct {
	RunID     string
	PatientID string
	EventType AuditEventType
	StartTime time.Time
	EndTime   time.Time
	Limit     int
	Offset    int
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
