package tracking

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/oncotrack-ai/platform/pkg/logging"
)

const (
	defaultWorkerCount   = 2
	defaultWaitSeconds   = 2
	defaultBatchSize     = 5
	maxWaitSeconds       = 20
	maxReceiveBatchSize  = 10
	deleteTimeoutSeconds = 5
)

// RunProcessor executes one tracking run end to end and returns its summary.
type RunProcessor interface {
	ProcessRun(ctx context.Context, jobID string, run RunRequest) (*RunSummary, error)
}

type workerConfig struct {
	workers          int
	receiveWaitSecs  int
	receiveBatchSize int
}

// WorkerOption customizes a Worker.
type WorkerOption func(*workerConfig)

// WithWorkerCount sets how many goroutines poll the queue concurrently.
func WithWorkerCount(n int) WorkerOption {
	return func(cfg *workerConfig) {
		if n > 0 {
			cfg.workers = n
		}
	}
}

// WithReceiveWait sets the long-poll wait in seconds, capped at the SQS
// maximum of 20.
func WithReceiveWait(seconds int) WorkerOption {
	return func(cfg *workerConfig) {
		if seconds < 0 {
			return
		}
		if seconds > maxWaitSeconds {
			seconds = maxWaitSeconds
		}
		cfg.receiveWaitSecs = seconds
	}
}

// WithReceiveBatch sets how many messages each poll requests, capped at the
// SQS maximum of 10.
func WithReceiveBatch(n int) WorkerOption {
	return func(cfg *workerConfig) {
		if n <= 0 {
			return
		}
		if n > maxReceiveBatchSize {
			n = maxReceiveBatchSize
		}
		cfg.receiveBatchSize = n
	}
}

// Worker consumes queued tracking runs and hands them to a RunProcessor.
// Job status updates are optional; jobs may be nil for fire-and-forget use.
type Worker struct {
	queue     queueClient
	processor RunProcessor
	jobs      JobUpdater
	logger    *logging.Logger
	cfg       workerConfig
	wg        sync.WaitGroup
}

// NewWorker builds a queue consumer.
func NewWorker(queue queueClient, processor RunProcessor, jobs JobUpdater, logger *logging.Logger, opts ...WorkerOption) *Worker {
	if queue == nil {
		panic("tracking: queue cannot be nil")
	}
	if processor == nil {
		panic("tracking: processor cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}

	cfg := workerConfig{
		workers:          defaultWorkerCount,
		receiveWaitSecs:  defaultWaitSeconds,
		receiveBatchSize: defaultBatchSize,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	return &Worker{
		queue:     queue,
		processor: processor,
		jobs:      jobs,
		logger:    logger,
		cfg:       cfg,
	}
}

// Start launches the polling goroutines. It returns immediately; call Wait
// after cancelling ctx to drain in-flight runs.
func (w *Worker) Start(ctx context.Context) {
	for i := 0; i < w.cfg.workers; i++ {
		w.wg.Add(1)
		go w.run(ctx, i+1)
	}
}

// Wait blocks until every polling goroutine has exited.
func (w *Worker) Wait() {
	w.wg.Wait()
}

func (w *Worker) run(ctx context.Context, workerID int) {
	defer w.wg.Done()
	w.logger.Debug("tracking worker started", "worker_id", workerID)

	backoff := time.Second

	for {
		select {
		case <-ctx.Done():
			w.logger.Debug("tracking worker stopping", "worker_id", workerID)
			return
		default:
		}

		messages, err := w.queue.Receive(ctx, w.cfg.receiveBatchSize, w.cfg.receiveWaitSecs)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			w.logger.Error("failed to receive tracking runs", "error", err, "worker_id", workerID)
			time.Sleep(backoff)
			if backoff < 5*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second

		for _, msg := range messages {
			w.handleMessage(ctx, msg)
		}
	}
}

func (w *Worker) handleMessage(ctx context.Context, msg queueMessage) {
	var payload queuePayload
	if err := json.Unmarshal([]byte(msg.Body), &payload); err != nil {
		w.logger.Error("failed to decode tracking run", "error", err, "msg_id", msg.ID)
		w.deleteMessage(context.Background(), msg.ReceiptHandle)
		return
	}

	w.logger.Info("worker processing run",
		"job_id", payload.ID,
		"run_id", payload.Run.RunID,
		"reports", len(payload.Run.Reports),
	)

	summary, err := w.processor.ProcessRun(ctx, payload.ID, payload.Run)
	if err != nil {
		w.logger.Error("tracking run failed", "error", err, "job_id", payload.ID, "run_id", payload.Run.RunID)
		if w.jobs != nil {
			if storeErr := w.jobs.MarkFailed(ctx, payload.ID, err.Error()); storeErr != nil {
				w.logger.Error("failed to update job status", "error", storeErr, "job_id", payload.ID)
			}
		}
		w.deleteMessage(context.Background(), msg.ReceiptHandle)
		return
	}

	if summary == nil {
		summary = &RunSummary{RunID: payload.Run.RunID}
	}
	if w.jobs != nil {
		if storeErr := w.jobs.MarkCompleted(ctx, payload.ID, summary); storeErr != nil {
			w.logger.Error("failed to update job status", "error", storeErr, "job_id", payload.ID)
		}
	}

	w.logger.Info("tracking run processed",
		"job_id", payload.ID,
		"run_id", payload.Run.RunID,
		"completed", summary.Completed,
		"failed", summary.Failed,
	)
	w.deleteMessage(context.Background(), msg.ReceiptHandle)
}

func (w *Worker) deleteMessage(ctx context.Context, receiptHandle string) {
	if receiptHandle == "" {
		return
	}

	deleteCtx, cancel := context.WithTimeout(ctx, deleteTimeoutSeconds*time.Second)
	defer cancel()

	if err := w.queue.Delete(deleteCtx, receiptHandle); err != nil {
		w.logger.Error("failed to delete tracking run message", "error", err)
	}
}
