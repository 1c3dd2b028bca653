package results

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/oncotrack-ai/platform/internal/lesion"
	"github.com/oncotrack-ai/platform/internal/tracking"
)

// ErrHistoryNotFound indicates no stored history for the run/patient pair.
var ErrHistoryNotFound = errors.New("results: history not found")

type db interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// Repository persists tracking runs and their per-patient histories.
type Repository struct {
	db db
}

// NewRepository initializes a repo backed by pgxpool.
func NewRepository(db db) *Repository {
	if db == nil {
		panic("results: database required")
	}
	return &Repository{db: db}
}

// SaveRun stores the run summary plus every patient history and its flattened
// lesion observations.
func (r *Repository) SaveRun(ctx context.Context, summary *tracking.RunSummary, histories []*lesion.PatientLesionHistory) error {
	if summary == nil {
		return errors.New("results: summary required")
	}

	query := `
		INSERT INTO tracking_runs (run_id, started_at, completed_at, patients, completed, failed, degraded_timepoints)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	if _, err := r.db.Exec(ctx, query,
		summary.RunID,
		summary.StartedAt,
		summary.CompletedAt,
		summary.Patients,
		summary.Completed,
		summary.Failed,
		summary.DegradedTimepoints,
	); err != nil {
		return fmt.Errorf("results: insert run failed: %w", err)
	}

	for _, history := range histories {
		if err := r.saveHistory(ctx, summary.RunID, history); err != nil {
			return err
		}
	}
	return nil
}

func (r *Repository) saveHistory(ctx context.Context, runID string, history *lesion.PatientLesionHistory) error {
	payload, err := json.Marshal(history)
	if err != nil {
		return fmt.Errorf("results: encode history failed: %w", err)
	}

	query := `
		INSERT INTO patient_histories (run_id, patient_id, history)
		VALUES ($1, $2, $3)
	`
	if _, err := r.db.Exec(ctx, query, runID, history.PatientID, payload); err != nil {
		return fmt.Errorf("results: insert history failed: %w", err)
	}

	obsQuery := `
		INSERT INTO lesion_observations (run_id, patient_id, lesion_id, location, size_cm, characteristics, timepoint_date)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	for _, tp := range history.Timepoints {
		for _, a := range tp.Assignments {
			if _, err := r.db.Exec(ctx, obsQuery,
				runID,
				history.PatientID,
				a.LesionID,
				a.Observation.Location,
				a.Observation.SizeCM,
				a.Observation.Characteristics,
				a.Observation.TimepointDate,
			); err != nil {
				return fmt.Errorf("results: insert observation failed: %w", err)
			}
		}
	}
	return nil
}

// GetPatientHistory fetches one stored history by run and patient.
func (r *Repository) GetPatientHistory(ctx context.Context, runID, patientID string) (*lesion.PatientLesionHistory, error) {
	query := `
		SELECT history
		FROM patient_histories
		WHERE run_id = $1 AND patient_id = $2
	`
	var payload []byte
	if err := r.db.QueryRow(ctx, query, runID, patientID).Scan(&payload); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrHistoryNotFound
		}
		return nil, fmt.Errorf("results: select history failed: %w", err)
	}

	var history lesion.PatientLesionHistory
	if err := json.Unmarshal(payload, &history); err != nil {
		return nil, fmt.Errorf("results: decode history failed: %w", err)
	}
	return &history, nil
}

// ListRunPatients returns the patient IDs stored for a run.
func (r *Repository) ListRunPatients(ctx context.Context, runID string) ([]string, error) {
	query := `
		SELECT patient_id
		FROM patient_histories
		WHERE run_id = $1
		ORDER BY patient_id
	`
	rows, err := r.db.Query(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("results: list patients failed: %w", err)
	}
	defer rows.Close()

	var patients []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("results: scan patient failed: %w", err)
		}
		patients = append(patients, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("results: iterate patients failed: %w", err)
	}
	return patients, nil
}
