package tracking

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/oncotrack-ai/platform/internal/report"
	"github.com/oncotrack-ai/platform/pkg/logging"
)

func TestWorkerProcessesRun(t *testing.T) {
	queue := newScriptedQueue()
	processor := &recordingProcessor{}
	jobs := &stubJobUpdater{}
	worker := NewWorker(queue, processor, jobs, logging.Default(), WithWorkerCount(1), WithReceiveBatch(1), WithReceiveWait(0))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	worker.Start(ctx)

	payload := queuePayload{
		ID: "job-1",
		Run: RunRequest{
			RunID: "run-1",
			Reports: []report.MedicalReport{
				{PatientID: "P001", Date: time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC), ReportText: "nodule"},
			},
		},
	}
	body, _ := json.Marshal(payload)
	queue.enqueue(queueMessage{ID: "msg-1", Body: string(body), ReceiptHandle: "rh-1"})

	waitFor(func() bool {
		return processor.count() > 0
	}, time.Second, t)

	cancel()
	worker.Wait()

	if processor.count() != 1 {
		t.Fatalf("expected 1 processor call, got %d", processor.count())
	}
	if got := processor.lastJob(); got != "job-1" {
		t.Fatalf("expected job-1, got %s", got)
	}
	if completed := jobs.completedJobs(); len(completed) != 1 || completed[0] != "job-1" {
		t.Fatalf("expected job completion to be recorded, got %#v", completed)
	}
	if queue.deletedCount() != 1 {
		t.Fatalf("expected delete to be invoked once, got %d", queue.deletedCount())
	}
}

func TestWorkerMarksFailedOnProcessorError(t *testing.T) {
	queue := newScriptedQueue()
	processor := &recordingProcessor{fail: true}
	jobs := &stubJobUpdater{}
	worker := NewWorker(queue, processor, jobs, logging.Default(), WithWorkerCount(1), WithReceiveBatch(1), WithReceiveWait(0))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	worker.Start(ctx)

	payload := queuePayload{ID: "job-fail", Run: RunRequest{RunID: "run-fail"}}
	body, _ := json.Marshal(payload)
	queue.enqueue(queueMessage{ID: "msg-fail", Body: string(body), ReceiptHandle: "rh-fail"})

	waitFor(func() bool {
		return jobs.failureCount() == 1
	}, time.Second, t)

	cancel()
	worker.Wait()

	if len(jobs.completedJobs()) != 0 {
		t.Fatalf("expected no completions for failed run")
	}
	if queue.deletedCount() != 1 {
		t.Fatalf("failed run message should still be deleted")
	}
}

func TestWorkerSkipsMalformedPayload(t *testing.T) {
	queue := newScriptedQueue()
	processor := &recordingProcessor{}
	jobs := &stubJobUpdater{}
	worker := NewWorker(queue, processor, jobs, logging.Default(), WithWorkerCount(1), WithReceiveBatch(1), WithReceiveWait(0))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	worker.Start(ctx)

	queue.enqueue(queueMessage{ID: "bad", Body: "{", ReceiptHandle: "rh-bad"})

	waitFor(func() bool {
		return queue.deletedCount() == 1
	}, time.Second, t)

	cancel()
	worker.Wait()

	if processor.count() != 0 {
		t.Fatalf("expected no processor calls for malformed body")
	}
	if len(jobs.completedJobs()) != 0 || jobs.failureCount() != 0 {
		t.Fatalf("expected no job updates for malformed payload")
	}
}

func TestWorkerConfigOptions(t *testing.T) {
	worker := NewWorker(
		newScriptedQueue(),
		&recordingProcessor{},
		nil,
		logging.Default(),
		WithWorkerCount(3),
		WithReceiveBatch(20),
		WithReceiveWait(30),
	)

	if worker.cfg.workers != 3 {
		t.Fatalf("expected worker count override, got %d", worker.cfg.workers)
	}
	if worker.cfg.receiveBatchSize != maxReceiveBatchSize {
		t.Fatalf("expected batch size capped at %d, got %d", maxReceiveBatchSize, worker.cfg.receiveBatchSize)
	}
	if worker.cfg.receiveWaitSecs != maxWaitSeconds {
		t.Fatalf("expected wait seconds capped at %d, got %d", maxWaitSeconds, worker.cfg.receiveWaitSecs)
	}
}

type recordingProcessor struct {
	mu    sync.Mutex
	calls int
	jobID string
	fail  bool
}

func (r *recordingProcessor) ProcessRun(ctx context.Context, jobID string, run RunRequest) (*RunSummary, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	r.jobID = jobID
	if r.fail {
		return nil, errors.New("processor boom")
	}
	return &RunSummary{RunID: run.RunID, Patients: 1, Completed: 1}, nil
}

func (r *recordingProcessor) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}

func (r *recordingProcessor) lastJob() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.jobID
}

type stubJobUpdater struct {
	mu        sync.Mutex
	completed []string
	failures  int
}

func (s *stubJobUpdater) MarkCompleted(ctx context.Context, jobID string, summary *RunSummary) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.completed = append(s.completed, jobID)
	return nil
}

func (s *stubJobUpdater) MarkFailed(ctx context.Context, jobID string, errMsg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures++
	return nil
}

func (s *stubJobUpdater) completedJobs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.completed...)
}

func (s *stubJobUpdater) failureCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.failures
}

type scriptedQueue struct {
	ch      chan queueMessage
	mu      sync.Mutex
	deleted int
}

func newScriptedQueue() *scriptedQueue {
	return &scriptedQueue{ch: make(chan queueMessage, 10)}
}

func (s *scriptedQueue) enqueue(msg queueMessage) {
	s.ch <- msg
}

func (s *scriptedQueue) Send(ctx context.Context, body string) error { return nil }

func (s *scriptedQueue) Receive(ctx context.Context, maxMessages int, waitSeconds int) ([]queueMessage, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case msg := <-s.ch:
		return []queueMessage{msg}, nil
	case <-time.After(50 * time.Millisecond):
		return nil, nil
	}
}

func (s *scriptedQueue) Delete(ctx context.Context, receiptHandle string) error {
	s.mu.Lock()
	s.deleted++
	s.mu.Unlock()
	return nil
}

func (s *scriptedQueue) deletedCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.deleted
}

func waitFor(cond func() bool, timeout time.Duration, t *testing.T) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("condition not met within %s", timeout)
}
