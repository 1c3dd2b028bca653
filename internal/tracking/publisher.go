package tracking

import (
	"context"
	"fmt"

	"github.com/oncotrack-ai/platform/pkg/logging"
)

// Publisher enqueues tracking runs for asynchronous processing.
type Publisher struct {
	queue  queueClient
	logger *logging.Logger
}

// NewPublisher creates a queue-backed publisher.
func NewPublisher(queue queueClient, logger *logging.Logger) *Publisher {
	if queue == nil {
		panic("tracking: queue cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Publisher{
		queue:  queue,
		logger: logger,
	}
}

// EnqueueRun publishes a tracking run under the given job ID and returns the
// run ID assigned to it.
func (p *Publisher) EnqueueRun(ctx context.Context, jobID string, run RunRequest) (string, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	payload, body, err := encodePayload(queuePayload{ID: jobID, Run: run})
	if err != nil {
		return "", err
	}

	if err := p.queue.Send(ctx, body); err != nil {
		return "", fmt.Errorf("tracking: failed to enqueue run: %w", err)
	}

	p.logger.Debug("tracking run enqueued",
		"job_id", payload.ID,
		"run_id", payload.Run.RunID,
		"reports", len(payload.Run.Reports),
	)
	return payload.Run.RunID, nil
}
