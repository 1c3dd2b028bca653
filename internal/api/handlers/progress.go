package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"golang.org/x/net/websocket"

	"github.com/oncotrack-ai/platform/internal/tracking"
	"github.com/oncotrack-ai/platform/pkg/logging"
)

// ProgressHandler streams per-patient run progress over a websocket.
type ProgressHandler struct {
	hub    *tracking.ProgressHub
	logger *logging.Logger
}

// NewProgressHandler creates a progress websocket handler.
func NewProgressHandler(hub *tracking.ProgressHub, logger *logging.Logger) *ProgressHandler {
	if hub == nil {
		panic("handlers: progress hub cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &ProgressHandler{
		hub:    hub,
		logger: logger,
	}
}

// Serve handles GET /v1/runs/{runID}/progress as a websocket upgrade.
func (h *ProgressHandler) Serve(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "runID")
	if runID == "" {
		http.Error(w, "Run ID is required", http.StatusBadRequest)
		return
	}

	websocket.Handler(func(conn *websocket.Conn) {
		h.stream(conn, runID)
	}).ServeHTTP(w, r)
}

func (h *ProgressHandler) stream(conn *websocket.Conn, runID string) {
	defer conn.Close()

	events, cancel := h.hub.Subscribe(runID)
	defer cancel()

	// Drain client frames so we notice a closed connection.
	done := make(chan struct{})
	go func() {
		defer close(done)
		var discard map[string]any
		for {
			if err := websocket.JSON.Receive(conn, &discard); err != nil {
				return
			}
		}
	}()

	h.logger.Debug("progress subscriber connected", "run_id", runID)
	for {
		select {
		case <-done:
			return
		case event, ok := <-events:
			if !ok {
				return
			}
			if err := websocket.JSON.Send(conn, event); err != nil {
				h.logger.Debug("progress subscriber dropped", "run_id", runID, "error", err)
				return
			}
		}
	}
}
