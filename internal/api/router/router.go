package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/oncotrack-ai/platform/internal/api/handlers"
	httpmiddleware "github.com/oncotrack-ai/platform/internal/http/middleware"
	"github.com/oncotrack-ai/platform/internal/tracking"
	"github.com/oncotrack-ai/platform/pkg/logging"
)

// Config holds router configuration
type Config struct {
	Logger          *logging.Logger
	TrackingHandler *tracking.Handler
	HistoryHandler  *handlers.HistoryHandler
	ProgressHandler *handlers.ProgressHandler
	AuditHandler    *handlers.AuditHandler
	MetricsHandler  http.Handler

	AdminAuthSecret    string
	CORSAllowedOrigins []string

	// Requests/sec per client IP for the submission endpoint. Zero disables
	// rate limiting.
	SubmitRateLimit float64
	SubmitBurst     int
}

// New creates a new Chi router with all routes configured
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))
	if len(cfg.CORSAllowedOrigins) > 0 {
		r.Use(httpmiddleware.CORS(cfg.CORSAllowedOrigins))
	}
	if cfg.Logger != nil {
		r.Use(httpmiddleware.RequestLogger(cfg.Logger))
	}

	// Public endpoints (health, metrics)
	r.Group(func(public chi.Router) {
		public.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte(`{"status":"ok"}`))
		})
		if cfg.MetricsHandler != nil {
			public.Handle("/metrics", cfg.MetricsHandler)
		}
	})

	// API routes (protected by the admin JWT when a secret is configured)
	r.Route("/v1", func(api chi.Router) {
		if cfg.AdminAuthSecret != "" {
			api.Use(httpmiddleware.AdminJWT(cfg.AdminAuthSecret))
		}

		if cfg.TrackingHandler != nil {
			api.Route("/tracking", func(t chi.Router) {
				submit := t
				if cfg.SubmitRateLimit > 0 {
					submit = t.With(httpmiddleware.RateLimit(cfg.SubmitRateLimit, cfg.SubmitBurst))
				}
				submit.Post("/runs", cfg.TrackingHandler.Submit)
				t.Get("/jobs/{jobID}", cfg.TrackingHandler.JobStatus)
			})
		}

		api.Route("/runs/{runID}", func(run chi.Router) {
			if cfg.HistoryHandler != nil {
				run.Get("/patients", cfg.HistoryHandler.ListPatients)
				run.Get("/patients/{patientID}", cfg.HistoryHandler.GetPatient)
			}
			if cfg.ProgressHandler != nil {
				run.Get("/progress", cfg.ProgressHandler.Serve)
			}
		})
	})

	// Admin routes
	if cfg.AuditHandler != nil && cfg.AdminAuthSecret != "" {
		r.Route("/admin", func(admin chi.Router) {
			admin.Use(httpmiddleware.AdminJWT(cfg.AdminAuthSecret))
			admin.Get("/runs/{runID}/audit", cfg.AuditHandler.QueryEvents)
		})
	}

	return r
}
