package tracking

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/oncotrack-ai/platform/internal/report"
)

type queueClient interface {
	Send(ctx context.Context, body string) error
	Receive(ctx context.Context, maxMessages int, waitSeconds int) ([]queueMessage, error)
	Delete(ctx context.Context, receiptHandle string) error
}

type queueMessage struct {
	ID            string
	Body          string
	ReceiptHandle string
}

// RunRequest describes one batch tracking job: the reports to process and
// where to send the completion notice.
type RunRequest struct {
	RunID       string                 `json:"run_id"`
	Reports     []report.MedicalReport `json:"reports"`
	NotifyEmail string                 `json:"notify_email,omitempty"`
	SubmittedAt time.Time              `json:"submitted_at"`
}

type queuePayload struct {
	ID  string     `json:"id"`
	Run RunRequest `json:"run"`
}

func encodePayload(payload queuePayload) (queuePayload, string, error) {
	if payload.ID == "" {
		payload.ID = uuid.NewString()
	}
	if payload.Run.RunID == "" {
		payload.Run.RunID = uuid.NewString()
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return queuePayload{}, "", fmt.Errorf("tracking: failed to encode payload: %w", err)
	}

	return payload, string(body), nil
}
