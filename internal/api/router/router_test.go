package router

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/oncotrack-ai/platform/internal/tracking"
	"github.com/oncotrack-ai/platform/pkg/logging"
)

const testSecret = "test-admin-secret"

type memoryJobs struct {
	jobs map[string]*tracking.JobRecord
}

func (m *memoryJobs) PutPending(_ context.Context, job *tracking.JobRecord) error {
	if m.jobs == nil {
		m.jobs = make(map[string]*tracking.JobRecord)
	}
	job.Status = tracking.JobStatusPending
	m.jobs[job.JobID] = job
	return nil
}

func (m *memoryJobs) GetJob(_ context.Context, jobID string) (*tracking.JobRecord, error) {
	job, ok := m.jobs[jobID]
	if !ok {
		return nil, tracking.ErrJobNotFound
	}
	return job, nil
}

func newTestRouter(t *testing.T, secret string) http.Handler {
	t.Helper()

	logger := logging.Default()
	queue := tracking.NewMemoryQueue(8)
	publisher := tracking.NewPublisher(queue, logger)
	trackingHandler := tracking.NewHandler(publisher, &memoryJobs{}, logger)

	cfg := &Config{
		Logger:          logger,
		TrackingHandler: trackingHandler,
		MetricsHandler:  promhttp.HandlerFor(prometheus.NewRegistry(), promhttp.HandlerOpts{}),
		AdminAuthSecret: secret,
	}

	return New(cfg)
}

func adminToken(t *testing.T) string {
	t.Helper()
	claims := jwt.RegisteredClaims{
		Subject:   "tester@example.com",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}
	return token
}

func TestRouterHealthEndpoint(t *testing.T) {
	router := newTestRouter(t, testSecret)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rr := httptest.NewRecorder()

	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rr.Code)
	}
	var body map[string]string
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid health body: %v", err)
	}
	if body["status"] != "ok" {
		t.Fatalf("unexpected health body: %v", body)
	}
}

func TestRouterMetricsEndpoint(t *testing.T) {
	router := newTestRouter(t, testSecret)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rr := httptest.NewRecorder()

	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rr.Code)
	}
}

func TestRouterSubmitRequiresAuth(t *testing.T) {
	router := newTestRouter(t, testSecret)

	req := httptest.NewRequest(http.MethodPost, "/v1/tracking/runs", strings.NewReader(`{}`))
	rr := httptest.NewRecorder()

	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected status %d, got %d", http.StatusUnauthorized, rr.Code)
	}
}

func TestRouterSubmitWithToken(t *testing.T) {
	router := newTestRouter(t, testSecret)

	body := `{"reports": [{"patient_id": "P001", "date": "2024-01-15T00:00:00Z", "report_text": "2.3 cm nodule"}]}`
	req := httptest.NewRequest(http.MethodPost, "/v1/tracking/runs", strings.NewReader(body))
	req.Header.Set("Authorization", "Bearer "+adminToken(t))
	rr := httptest.NewRecorder()

	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusAccepted {
		t.Fatalf("expected status %d, got %d: %s", http.StatusAccepted, rr.Code, rr.Body.String())
	}

	var resp tracking.SubmitResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid submit response: %v", err)
	}
	if resp.JobID == "" || resp.RunID == "" {
		t.Fatalf("expected job and run IDs, got %+v", resp)
	}

	statusReq := httptest.NewRequest(http.MethodGet, "/v1/tracking/jobs/"+resp.JobID, nil)
	statusReq.Header.Set("Authorization", "Bearer "+adminToken(t))
	statusRR := httptest.NewRecorder()
	router.ServeHTTP(statusRR, statusReq)

	if statusRR.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, statusRR.Code)
	}
}

func TestRouterNoAuthWhenSecretEmpty(t *testing.T) {
	router := newTestRouter(t, "")

	body := `{"reports": [{"patient_id": "P001", "date": "2024-01-15T00:00:00Z", "report_text": "2.3 cm nodule"}]}`
	req := httptest.NewRequest(http.MethodPost, "/v1/tracking/runs", strings.NewReader(body))
	rr := httptest.NewRecorder()

	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusAccepted {
		t.Fatalf("expected status %d, got %d", http.StatusAccepted, rr.Code)
	}
}

func TestRouterUnknownRoute(t *testing.T) {
	router := newTestRouter(t, testSecret)

	req := httptest.NewRequest(http.MethodGet, "/nope", nil)
	rr := httptest.NewRecorder()

	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected status %d, got %d", http.StatusNotFound, rr.Code)
	}
}
