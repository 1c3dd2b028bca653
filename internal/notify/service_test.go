package notify

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/oncotrack-ai/platform/internal/tracking"
	"github.com/oncotrack-ai/platform/pkg/logging"
)

type recordingSender struct {
	sent []EmailMessage
	errs map[string]error
}

func (r *recordingSender) Send(_ context.Context, msg EmailMessage) error {
	if err, ok := r.errs[msg.To]; ok {
		return err
	}
	r.sent = append(r.sent, msg)
	return nil
}

func testSummary() *tracking.RunSummary {
	started := time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)
	return &tracking.RunSummary{
		RunID:              "run-1",
		StartedAt:          started,
		CompletedAt:        started.Add(90 * time.Second),
		Patients:           3,
		Completed:          2,
		Failed:             1,
		DegradedTimepoints: 1,
		Warnings: []tracking.Warning{
			{PatientID: "P002", Date: time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), Kind: tracking.WarnExtractionFailed, Reason: "extraction failed: timeout"},
			{PatientID: "P003", Kind: tracking.WarnPatientFailed, Reason: "tracking: patient has no reports: P003"},
		},
	}
}

func TestNotifyRunCompleted_SendsToAllRecipients(t *testing.T) {
	sender := &recordingSender{}
	svc := NewService(sender, logging.Default())

	err := svc.NotifyRunCompleted(context.Background(), testSummary(), []string{"a@example.com", " b@example.com ", ""})
	if err != nil {
		t.Fatalf("NotifyRunCompleted returned error: %v", err)
	}

	if len(sender.sent) != 2 {
		t.Fatalf("expected 2 emails, got %d", len(sender.sent))
	}
	if sender.sent[1].To != "b@example.com" {
		t.Errorf("expected trimmed recipient, got %q", sender.sent[1].To)
	}

	msg := sender.sent[0]
	if !strings.Contains(msg.Subject, "run-1") || !strings.Contains(msg.Subject, "1 failed") {
		t.Errorf("unexpected subject: %q", msg.Subject)
	}
	for _, want := range []string{
		"Patients: 3",
		"Completed: 2",
		"Failed: 1",
		"Degraded timepoints: 1",
		"P002 2024-03-01: extraction failed: timeout",
		"P003: tracking: patient has no reports",
	} {
		if !strings.Contains(msg.Body, want) {
			t.Errorf("body missing %q:\n%s", want, msg.Body)
		}
	}
}

func TestNotifyRunCompleted_CleanRunSubject(t *testing.T) {
	sender := &recordingSender{}
	svc := NewService(sender, logging.Default())

	summary := testSummary()
	summary.Failed = 0
	summary.Warnings = nil

	if err := svc.NotifyRunCompleted(context.Background(), summary, []string{"a@example.com"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if strings.Contains(sender.sent[0].Subject, "failed") {
		t.Errorf("clean run should not mention failures: %q", sender.sent[0].Subject)
	}
	if strings.Contains(sender.sent[0].Body, "Warnings") {
		t.Errorf("clean run should not list warnings:\n%s", sender.sent[0].Body)
	}
}

func TestNotifyRunCompleted_ContinuesAfterFailure(t *testing.T) {
	sender := &recordingSender{errs: map[string]error{"a@example.com": errors.New("bounce")}}
	svc := NewService(sender, logging.Default())

	err := svc.NotifyRunCompleted(context.Background(), testSummary(), []string{"a@example.com", "b@example.com"})
	if err == nil || !strings.Contains(err.Error(), "bounce") {
		t.Fatalf("expected first send error, got %v", err)
	}
	if len(sender.sent) != 1 || sender.sent[0].To != "b@example.com" {
		t.Fatalf("expected second recipient to still receive email, got %#v", sender.sent)
	}
}

func TestNotifyRunCompleted_NoSenderConfigured(t *testing.T) {
	svc := NewService(nil, logging.Default())
	if err := svc.NotifyRunCompleted(context.Background(), testSummary(), []string{"a@example.com"}); err != nil {
		t.Fatalf("expected nil error without sender, got %v", err)
	}
}

func TestNotifyRunCompleted_NilSummary(t *testing.T) {
	svc := NewService(&recordingSender{}, logging.Default())
	if err := svc.NotifyRunCompleted(context.Background(), nil, []string{"a@example.com"}); err == nil {
		t.Fatal("expected error for nil summary")
	}
}

func TestNotifyRunFailed(t *testing.T) {
	sender := &recordingSender{}
	svc := NewService(sender, logging.Default())

	err := svc.NotifyRunFailed(context.Background(), "run-9", "queue payload malformed", []string{"a@example.com"})
	if err != nil {
		t.Fatalf("NotifyRunFailed returned error: %v", err)
	}
	if len(sender.sent) != 1 {
		t.Fatalf("expected 1 email, got %d", len(sender.sent))
	}
	if !strings.Contains(sender.sent[0].Subject, "failed") {
		t.Errorf("unexpected subject: %q", sender.sent[0].Subject)
	}
	if !strings.Contains(sender.sent[0].Body, "queue payload malformed") {
		t.Errorf("body missing reason:\n%s", sender.sent[0].Body)
	}
}
