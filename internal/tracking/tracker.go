package tracking

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/oncotrack-ai/platform/internal/extraction"
	"github.com/oncotrack-ai/platform/internal/lesion"
	"github.com/oncotrack-ai/platform/internal/observability/metrics"
	"github.com/oncotrack-ai/platform/internal/report"
	"github.com/oncotrack-ai/platform/pkg/logging"
)

var tracer = otel.Tracer("oncotrack/tracking")

// ErrNoReports indicates a patient arrived with an empty report list.
var ErrNoReports = errors.New("tracking: patient has no reports")

// Gateway is the extraction boundary the tracker drives. Retry policy lives
// behind it; by the time a Result comes back it is final for that timepoint.
type Gateway interface {
	ExtractFirstTimepoint(ctx context.Context, reportText string) extraction.Result
	ExtractFollowup(ctx context.Context, reportText string, previous []extraction.IdentitySummary) extraction.Result
}

// WarningKind classifies a recovered degradation so callers can count
// or filter warnings without parsing the human-readable reason.
type WarningKind string

const (
	WarnExtractionFailed  WarningKind = "extraction_failed"
	WarnCandidateRejected WarningKind = "candidate_rejected"
	WarnDuplicateDate     WarningKind = "duplicate_date"
	WarnPatientFailed     WarningKind = "patient_failed"
)

// Warning records one recovered degradation: a timepoint with failed
// extraction, a rejected candidate, or a skipped duplicate date.
type Warning struct {
	PatientID string      `json:"patient_id"`
	Date      time.Time   `json:"date,omitempty"`
	Kind      WarningKind `json:"kind"`
	Reason    string      `json:"reason"`
}

// RunSummary is the user-visible account of a batch run: which patients and
// timepoints were degraded and why.
type RunSummary struct {
	RunID              string    `json:"run_id"`
	StartedAt          time.Time `json:"started_at"`
	CompletedAt        time.Time `json:"completed_at"`
	Patients           int       `json:"patients"`
	Completed          int       `json:"completed"`
	Failed             int       `json:"failed"`
	DegradedTimepoints int       `json:"degraded_timepoints"`
	Warnings           []Warning `json:"warnings,omitempty"`
}

// Tracker drives the extraction→normalize→resolve→aggregate pipeline across
// patients and timepoints. Patients are independent; timepoints within one
// patient are strictly sequential.
type Tracker struct {
	gateway  Gateway
	metrics  *metrics.TrackingMetrics
	logger   *logging.Logger
	progress ProgressSink
	workers  int
}

// NewTracker builds a tracker. m may be nil.
func NewTracker(gateway Gateway, m *metrics.TrackingMetrics, logger *logging.Logger) *Tracker {
	if gateway == nil {
		panic("tracking: gateway cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Tracker{
		gateway: gateway,
		metrics: m,
		logger:  logger,
		workers: 2,
	}
}

// WithWorkers sets the number of patients processed concurrently.
func (t *Tracker) WithWorkers(n int) *Tracker {
	if n > 0 {
		t.workers = n
	}
	return t
}

// WithProgress attaches a sink receiving per-patient progress events.
func (t *Tracker) WithProgress(sink ProgressSink) *Tracker {
	t.progress = sink
	return t
}

// TrackPatient processes one patient's reports in date order and returns the
// finished history plus any recovered warnings. The only hard error is an
// empty report list.
func (t *Tracker) TrackPatient(ctx context.Context, patientID string, reports []report.MedicalReport) (*lesion.PatientLesionHistory, []Warning, error) {
	if len(reports) == 0 {
		return nil, nil, fmt.Errorf("%w: %s", ErrNoReports, patientID)
	}

	ctx, span := tracer.Start(ctx, "tracking.patient")
	defer span.End()
	span.SetAttributes(attribute.Int("tracking.timepoints", len(reports)))

	start := time.Now()

	sorted := make([]report.MedicalReport, len(reports))
	copy(sorted, reports)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Date.Before(sorted[j].Date) })

	resolver := lesion.NewResolver()
	agg := lesion.NewAggregator(patientID)
	var warnings []Warning

	for i, rep := range sorted {
		// Duplicate report dates violate the strict timepoint ordering;
		// keep the first report for the date and drop the rest before any
		// extraction runs, so a dropped report never touches identity state.
		if i > 0 && rep.Date.Equal(sorted[i-1].Date) {
			warnings = append(warnings, Warning{
				PatientID: patientID,
				Date:      rep.Date,
				Kind:      WarnDuplicateDate,
				Reason:    fmt.Sprintf("timepoint skipped: duplicate report date %s", rep.Date.Format("2006-01-02")),
			})
			t.logger.Warn("timepoint skipped", "patient_id", patientID, "date", rep.Date)
			continue
		}

		observations, tpWarnings := t.extractTimepoint(ctx, patientID, rep, i == 0, resolver)
		warnings = append(warnings, tpWarnings...)

		assignments := resolver.ResolveTimepoint(observations, rep.Date)
		if err := agg.AddTimepoint(rep.Date, assignments); err != nil {
			warnings = append(warnings, Warning{
				PatientID: patientID,
				Date:      rep.Date,
				Kind:      WarnDuplicateDate,
				Reason:    fmt.Sprintf("timepoint skipped: %v", err),
			})
			t.logger.Warn("timepoint skipped", "patient_id", patientID, "date", rep.Date, "error", err)
		}
	}

	history := agg.Finalize(resolver.Identities())
	t.metrics.ObserveLesionsCreated(len(history.Identities))
	t.metrics.ObservePatientLatency(time.Since(start).Seconds())
	span.SetAttributes(attribute.Int("tracking.lesions", len(history.Identities)))

	return history, warnings, nil
}

// extractTimepoint runs the gateway for one report and normalizes its
// candidates. A failed extraction degrades to zero observations.
func (t *Tracker) extractTimepoint(ctx context.Context, patientID string, rep report.MedicalReport, first bool, resolver *lesion.Resolver) ([]lesion.Observation, []Warning) {
	var result extraction.Result
	if first {
		result = t.gateway.ExtractFirstTimepoint(ctx, rep.ReportText)
	} else {
		result = t.gateway.ExtractFollowup(ctx, rep.ReportText, identitySummaries(resolver))
	}

	if !result.Success {
		t.metrics.ObserveDegradedTimepoint()
		t.logger.Warn("timepoint degraded to zero observations",
			"patient_id", patientID,
			"date", rep.Date,
			"error", result.ErrorMessage,
		)
		return nil, []Warning{{
			PatientID: patientID,
			Date:      rep.Date,
			Kind:      WarnExtractionFailed,
			Reason:    fmt.Sprintf("extraction failed: %s", result.ErrorMessage),
		}}
	}

	var observations []lesion.Observation
	var warnings []Warning
	for _, raw := range result.Candidates {
		obs, err := lesion.Normalize(raw, rep.Date)
		if err != nil {
			warnings = append(warnings, Warning{
				PatientID: patientID,
				Date:      rep.Date,
				Kind:      WarnCandidateRejected,
				Reason:    fmt.Sprintf("candidate dropped: %v", err),
			})
			t.logger.Warn("candidate dropped", "patient_id", patientID, "date", rep.Date, "error", err)
			continue
		}
		observations = append(observations, obs)
	}
	return observations, warnings
}

func identitySummaries(resolver *lesion.Resolver) []extraction.IdentitySummary {
	identities := resolver.Identities()
	summaries := make([]extraction.IdentitySummary, 0, len(identities))
	for _, id := range identities {
		summaries = append(summaries, extraction.IdentitySummary{
			LesionID: id.ID,
			Location: id.AnchorLocation,
			SizeCM:   id.LastSizeCM,
		})
	}
	return summaries
}

// TrackAllPatients processes patients concurrently with a bounded worker
// pool. One patient's failure never aborts the batch, and cancellation
// keeps the histories already completed.
func (t *Tracker) TrackAllPatients(ctx context.Context, runID string, order []string, timelines map[string][]report.MedicalReport) ([]*lesion.PatientLesionHistory, *RunSummary) {
	summary := &RunSummary{
		RunID:     runID,
		StartedAt: time.Now().UTC(),
		Patients:  len(order),
	}

	histories := make([]*lesion.PatientLesionHistory, len(order))
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(t.workers)

	for i, patientID := range order {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			history, warnings, err := t.TrackPatient(gctx, patientID, timelines[patientID])

			mu.Lock()
			defer mu.Unlock()

			if err != nil {
				summary.Failed++
				summary.Warnings = append(summary.Warnings, Warning{
					PatientID: patientID,
					Kind:      WarnPatientFailed,
					Reason:    err.Error(),
				})
				t.metrics.ObservePatient("failed")
				t.logger.Error("patient tracking failed", "patient_id", patientID, "error", err)
				// The batch still reports the patient, with an empty history.
				histories[i] = &lesion.PatientLesionHistory{
					PatientID: patientID,
					Summary:   fmt.Sprintf("tracking failed: %v", err),
				}
				t.publishProgress(runID, patientID, "failed")
				return nil
			}

			histories[i] = history
			summary.Completed++
			summary.Warnings = append(summary.Warnings, warnings...)
			for _, w := range warnings {
				if isDegradedTimepoint(w) {
					summary.DegradedTimepoints++
				}
			}
			t.metrics.ObservePatient("completed")
			t.publishProgress(runID, patientID, "completed")
			return nil
		})
	}
	_ = g.Wait()

	out := make([]*lesion.PatientLesionHistory, 0, len(histories))
	for _, h := range histories {
		if h != nil {
			out = append(out, h)
		}
	}

	summary.CompletedAt = time.Now().UTC()
	return out, summary
}

func (t *Tracker) publishProgress(runID, patientID, status string) {
	if t.progress == nil {
		return
	}
	t.progress.Publish(ProgressEvent{
		RunID:     runID,
		PatientID: patientID,
		Status:    status,
		At:        time.Now().UTC(),
	})
}

func isDegradedTimepoint(w Warning) bool {
	return w.Kind == WarnExtractionFailed
}
