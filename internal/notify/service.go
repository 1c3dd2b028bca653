package notify

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/oncotrack-ai/platform/internal/tracking"
	"github.com/oncotrack-ai/platform/pkg/logging"
)

// Service sends run lifecycle notifications to the submitting clinicians.
type Service struct {
	email  EmailSender
	logger *logging.Logger
}

// NewService creates a notification service.
func NewService(email EmailSender, logger *logging.Logger) *Service {
	if logger == nil {
		logger = logging.Default()
	}
	return &Service{
		email:  email,
		logger: logger,
	}
}

// NotifyRunCompleted emails the run outcome to every recipient. Send failures
// are logged and the first one is returned; remaining recipients still get
// their copy.
func (s *Service) NotifyRunCompleted(ctx context.Context, summary *tracking.RunSummary, recipients []string) error {
	if s.email == nil {
		s.logger.Debug("notify: email sender not configured, skipping notification")
		return nil
	}
	if summary == nil {
		return fmt.Errorf("notify: summary required")
	}
	if len(recipients) == 0 {
		s.logger.Debug("notify: no recipients for run", "run_id", summary.RunID)
		return nil
	}

	subject := fmt.Sprintf("Lesion tracking run %s completed", summary.RunID)
	if summary.Failed > 0 {
		subject = fmt.Sprintf("Lesion tracking run %s completed with %d failed patients", summary.RunID, summary.Failed)
	}
	body := buildRunBody(summary)

	var firstErr error
	for _, to := range recipients {
		to = strings.TrimSpace(to)
		if to == "" {
			continue
		}
		err := s.email.Send(ctx, EmailMessage{
			To:      to,
			Subject: subject,
			Body:    body,
		})
		if err != nil {
			s.logger.Error("notify: run completion email failed", "error", err, "to", to, "run_id", summary.RunID)
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
	}
	return firstErr
}

// NotifyRunFailed emails a hard failure notice, e.g. when a worker could not
// process the run at all.
func (s *Service) NotifyRunFailed(ctx context.Context, runID, reason string, recipients []string) error {
	if s.email == nil || len(recipients) == 0 {
		return nil
	}

	subject := fmt.Sprintf("Lesion tracking run %s failed", runID)
	body := fmt.Sprintf("Run ID: %s\n\nThe run could not be processed:\n%s\n", runID, reason)

	var firstErr error
	for _, to := range recipients {
		to = strings.TrimSpace(to)
		if to == "" {
			continue
		}
		if err := s.email.Send(ctx, EmailMessage{To: to, Subject: subject, Body: body}); err != nil {
			s.logger.Error("notify: run failure email failed", "error", err, "to", to, "run_id", runID)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

func buildRunBody(summary *tracking.RunSummary) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Run ID: %s\n", summary.RunID)
	fmt.Fprintf(&b, "Started: %s\n", summary.StartedAt.Format(time.RFC1123))
	fmt.Fprintf(&b, "Completed: %s\n", summary.CompletedAt.Format(time.RFC1123))
	fmt.Fprintf(&b, "Duration: %s\n\n", summary.CompletedAt.Sub(summary.StartedAt).Round(time.Second))

	fmt.Fprintf(&b, "Patients: %d\n", summary.Patients)
	fmt.Fprintf(&b, "Completed: %d\n", summary.Completed)
	fmt.Fprintf(&b, "Failed: %d\n", summary.Failed)
	fmt.Fprintf(&b, "Degraded timepoints: %d\n", summary.DegradedTimepoints)

	if len(summary.Warnings) > 0 {
		fmt.Fprintf(&b, "\nWarnings (%d):\n", len(summary.Warnings))
		limit := len(summary.Warnings)
		if limit > 20 {
			limit = 20
		}
		for _, w := range summary.Warnings[:limit] {
			if w.Date.IsZero() {
				fmt.Fprintf(&b, "  - %s: %s\n", w.PatientID, w.Reason)
				continue
			}
			fmt.Fprintf(&b, "  - %s %s: %s\n", w.PatientID, w.Date.Format(time.DateOnly), w.Reason)
		}
		if len(summary.Warnings) > limit {
			fmt.Fprintf(&b, "  ... and %d more\n", len(summary.Warnings)-limit)
		}
	}

	return b.String()
}
