package trackingworker

import (
	"context"
	"fmt"
	"strings"

	"github.com/oncotrack-ai/platform/internal/compliance"
	"github.com/oncotrack-ai/platform/internal/lesion"
	"github.com/oncotrack-ai/platform/internal/report"
	"github.com/oncotrack-ai/platform/internal/results"
	"github.com/oncotrack-ai/platform/internal/tracking"
	"github.com/oncotrack-ai/platform/pkg/logging"
)

const auditActor = "worker"

type runStore interface {
	SaveRun(ctx context.Context, summary *tracking.RunSummary, histories []*lesion.PatientLesionHistory) error
}

type runArchiver interface {
	ArchiveRun(ctx context.Context, runID string, histories []*lesion.PatientLesionHistory) (*results.ArchiveResult, error)
}

type runNotifier interface {
	NotifyRunCompleted(ctx context.Context, summary *tracking.RunSummary, recipients []string) error
}

// Processor executes one queued tracking run: track every patient, persist
// the histories, archive the raw results, and notify the configured
// recipients. Persistence failures fail the run; archival and notification
// failures degrade it.
type Processor struct {
	tracker    *tracking.Tracker
	store      runStore
	archiver   runArchiver
	notifier   runNotifier
	audit      *compliance.AuditService
	recipients []string
	logger     *logging.Logger
}

// ProcessorOption customizes a Processor.
type ProcessorOption func(*Processor)

// WithStore persists run results to Postgres.
func WithStore(store runStore) ProcessorOption {
	return func(p *Processor) { p.store = store }
}

// WithArchiver uploads run results to S3.
func WithArchiver(archiver runArchiver) ProcessorOption {
	return func(p *Processor) { p.archiver = archiver }
}

// WithNotifier sends run completion emails.
func WithNotifier(notifier runNotifier) ProcessorOption {
	return func(p *Processor) { p.notifier = notifier }
}

// WithAudit records compliance events for each run.
func WithAudit(audit *compliance.AuditService) ProcessorOption {
	return func(p *Processor) { p.audit = audit }
}

// WithRecipients sets the always-notified addresses, merged with the
// per-run notify address.
func WithRecipients(recipients []string) ProcessorOption {
	return func(p *Processor) { p.recipients = recipients }
}

// NewProcessor builds a run processor. Everything but the tracker is optional.
func NewProcessor(tracker *tracking.Tracker, logger *logging.Logger, opts ...ProcessorOption) *Processor {
	if tracker == nil {
		panic("trackingworker: tracker cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}

	p := &Processor{
		tracker: tracker,
		logger:  logger,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// ProcessRun implements tracking.RunProcessor.
func (p *Processor) ProcessRun(ctx context.Context, jobID string, run tracking.RunRequest) (*tracking.RunSummary, error) {
	if len(run.Reports) == 0 {
		return nil, fmt.Errorf("trackingworker: run %s has no reports", run.RunID)
	}

	order, timelines := report.PatientTimelines(run.Reports)

	if p.audit != nil {
		if err := p.audit.LogRunSubmitted(ctx, run.RunID, jobID, auditActor, len(order)); err != nil {
			p.logger.Warn("failed to audit run submission", "error", err, "run_id", run.RunID)
		}
	}

	histories, summary := p.tracker.TrackAllPatients(ctx, run.RunID, order, timelines)

	if p.store != nil {
		if err := p.store.SaveRun(ctx, summary, histories); err != nil {
			return nil, fmt.Errorf("trackingworker: failed to persist run %s: %w", run.RunID, err)
		}
	}

	recipients := p.runRecipients(run)

	if p.archiver != nil {
		archived, err := p.archiver.ArchiveRun(ctx, run.RunID, histories)
		if err != nil {
			p.logger.Error("failed to archive run results", "error", err, "run_id", run.RunID)
		} else if p.audit != nil {
			keys := []string{archived.ReportKey, archived.ObservationsKey}
			if err := p.audit.LogResultsExported(ctx, run.RunID, auditActor, keys, recipients); err != nil {
				p.logger.Warn("failed to audit results export", "error", err, "run_id", run.RunID)
			}
		}
	}

	if p.audit != nil {
		if err := p.audit.LogRunCompleted(ctx, run.RunID, summary.Patients, summary.Completed, summary.Failed, summary.DegradedTimepoints); err != nil {
			p.logger.Warn("failed to audit run completion", "error", err, "run_id", run.RunID)
		}
	}

	if p.notifier != nil && len(recipients) > 0 {
		if err := p.notifier.NotifyRunCompleted(ctx, summary, recipients); err != nil {
			p.logger.Error("failed to send run notification", "error", err, "run_id", run.RunID)
		}
	}

	return summary, nil
}

func (p *Processor) runRecipients(run tracking.RunRequest) []string {
	recipients := append([]string(nil), p.recipients...)
	if addr := strings.TrimSpace(run.NotifyEmail); addr != "" {
		seen := false
		for _, existing := range recipients {
			if strings.EqualFold(existing, addr) {
				seen = true
				break
			}
		}
		if !seen {
			recipients = append(recipients, addr)
		}
	}
	return recipients
}
