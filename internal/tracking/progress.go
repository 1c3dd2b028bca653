package tracking

import (
	"sync"
	"time"
)

// ProgressEvent reports one patient reaching a terminal state within a run.
type ProgressEvent struct {
	RunID     string    `json:"run_id"`
	PatientID string    `json:"patient_id"`
	Status    string    `json:"status"`
	At        time.Time `json:"at"`
}

// ProgressSink receives progress events. Publish must not block.
type ProgressSink interface {
	Publish(event ProgressEvent)
}

// ProgressHub fans progress events out to per-run subscribers. Slow
// subscribers drop events rather than stalling the pipeline.
type ProgressHub struct {
	mu   sync.Mutex
	subs map[string][]chan ProgressEvent
}

func NewProgressHub() *ProgressHub {
	return &ProgressHub{subs: make(map[string][]chan ProgressEvent)}
}

// Publish delivers the event to every subscriber of its run.
func (h *ProgressHub) Publish(event ProgressEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, ch := range h.subs[event.RunID] {
		select {
		case ch <- event:
		default:
		}
	}
}

// Subscribe returns a channel of events for runID and a cancel func that
// unsubscribes and closes the channel.
func (h *ProgressHub) Subscribe(runID string) (<-chan ProgressEvent, func()) {
	ch := make(chan ProgressEvent, 64)

	h.mu.Lock()
	h.subs[runID] = append(h.subs[runID], ch)
	h.mu.Unlock()

	cancel := func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		subs := h.subs[runID]
		for i, c := range subs {
			if c == ch {
				h.subs[runID] = append(subs[:i], subs[i+1:]...)
				close(ch)
				break
			}
		}
		if len(h.subs[runID]) == 0 {
			delete(h.subs, runID)
		}
	}
	return ch, cancel
}
