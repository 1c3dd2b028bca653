package extraction

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/oncotrack-ai/platform/internal/lesion"
	"github.com/oncotrack-ai/platform/internal/observability/metrics"
	"github.com/oncotrack-ai/platform/pkg/logging"
)

var tracer = otel.Tracer("oncotrack/extraction")

const (
	// KindFirst marks a baseline extraction, KindFollowup one with prior
	// lesion context. Used for cache keys and metric labels.
	KindFirst    = "first"
	KindFollowup = "followup"
)

const firstSystemPrompt = `You are a medical AI assistant specialized in extracting structured lesion information from radiology reports.

Your task is to extract ALL lesions mentioned in the report and return them as a JSON array.

For each lesion, extract:
- location: anatomical location (e.g., "right upper lobe", "liver segment 7", "left frontal lobe")
- size_cm and/or size_mm: the measured size
- characteristics: any additional descriptors (e.g., "enhancing", "nodular")
- raw_text: the exact phrase from the report describing this lesion

Return ONLY a valid JSON array of lesions, with no additional text or explanation.

Example format:
[
  {
    "location": "right upper lobe",
    "size_cm": 2.3,
    "size_mm": 23.0,
    "characteristics": "nodule",
    "raw_text": "2.3 cm nodule in the right upper lobe"
  }
]

If no lesions are found, return an empty array: []`

const followupSystemPrompt = `You are a medical AI assistant specialized in extracting structured lesion information from follow-up radiology reports.

You are given the lesions already being tracked for this patient. Extract ALL lesions from the current report. When a lesion in the report is the same as a tracked one, reuse the tracked lesion's location wording exactly so measurements line up across reports.

For each lesion, extract:
- location: anatomical location, matching the tracked wording when it is the same lesion
- size_cm and/or size_mm: the measured size
- characteristics: any additional descriptors
- raw_text: the exact phrase from the report

Return ONLY a valid JSON array of lesions, with no additional text or explanation.`

// IdentitySummary is the compact view of a tracked lesion passed as context
// to follow-up extraction prompts.
type IdentitySummary struct {
	LesionID string   `json:"lesion_id"`
	Location string   `json:"location"`
	SizeCM   *float64 `json:"size_cm,omitempty"`
}

// Result is the gateway's tagged outcome: success with loosely-typed
// candidates, or failure with a reason. A malformed model response is a
// failed attempt, never a propagated parse error.
type Result struct {
	Candidates   []lesion.RawCandidate
	RawResponse  string
	Success      bool
	ErrorMessage string
	Attempts     int
	CacheHit     bool
}

// Config tunes the extractor's retry and inference behavior.
type Config struct {
	Model       string
	MaxRetries  int
	RetryDelay  time.Duration
	MaxTokens   int32
	Temperature float32
}

// Extractor turns free-text radiology reports into raw lesion candidates via
// an LLM, with bounded retries and an optional Redis cache.
type Extractor struct {
	client  LLMClient
	cfg     Config
	cache   *Cache
	metrics *metrics.ExtractionMetrics
	logger  *logging.Logger
}

// NewExtractor builds an extraction gateway. cache and m may be nil.
func NewExtractor(client LLMClient, cfg Config, cache *Cache, m *metrics.ExtractionMetrics, logger *logging.Logger) *Extractor {
	if client == nil {
		panic("extraction: llm client cannot be nil")
	}
	if cfg.MaxRetries < 1 {
		cfg.MaxRetries = 3
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = time.Second
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 2048
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Extractor{
		client:  client,
		cfg:     cfg,
		cache:   cache,
		metrics: m,
		logger:  logger,
	}
}

// ExtractFirstTimepoint extracts lesions from a patient's baseline report.
func (e *Extractor) ExtractFirstTimepoint(ctx context.Context, reportText string) Result {
	userPrompt := fmt.Sprintf("Extract all lesions from this medical report:\n\n%s\n\nReturn the lesions as a JSON array.", reportText)
	return e.extract(ctx, KindFirst, reportText, firstSystemPrompt, userPrompt)
}

// ExtractFollowup extracts lesions from a follow-up report, passing the
// lesions tracked so far as context so the model keeps location wording
// stable across timepoints.
func (e *Extractor) ExtractFollowup(ctx context.Context, reportText string, previous []IdentitySummary) Result {
	prevJSON, err := json.MarshalIndent(previous, "", "  ")
	if err != nil {
		prevJSON = []byte("[]")
	}
	userPrompt := fmt.Sprintf(
		"Here are the previously tracked lesions:\n\n%s\n\nNow extract all lesions from this follow-up report:\n\n%s\n\nReturn the lesions as a JSON array.",
		prevJSON, reportText)
	return e.extract(ctx, KindFollowup, reportText, followupSystemPrompt, userPrompt)
}

func (e *Extractor) extract(ctx context.Context, kind, reportText, systemPrompt, userPrompt string) Result {
	ctx, span := tracer.Start(ctx, "extraction.extract")
	defer span.End()
	span.SetAttributes(attribute.String("extraction.kind", kind))

	cacheKey := Key(kind, e.cfg.Model, reportText)
	if e.cache != nil {
		if candidates, raw, ok := e.cache.Get(ctx, cacheKey); ok {
			e.metrics.ObserveCache(true)
			span.SetAttributes(attribute.Bool("extraction.cache_hit", true))
			return Result{Candidates: candidates, RawResponse: raw, Success: true, CacheHit: true}
		}
		e.metrics.ObserveCache(false)
	}

	req := LLMRequest{
		Model:       e.cfg.Model,
		System:      []string{systemPrompt},
		Messages:    []ChatMessage{{Role: ChatRoleUser, Content: userPrompt}},
		MaxTokens:   e.cfg.MaxTokens,
		Temperature: e.cfg.Temperature,
	}

	var lastErr error
	for attempt := 1; attempt <= e.cfg.MaxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			lastErr = err
			break
		}

		start := time.Now()
		resp, err := e.client.Complete(ctx, req)
		e.metrics.ObserveCallLatency(time.Since(start).Seconds())

		if err == nil {
			candidates, parseErr := parseCandidates(resp.Text)
			if parseErr == nil {
				e.metrics.ObserveAttempt(kind, "success")
				span.SetAttributes(attribute.Int("extraction.candidates", len(candidates)))
				if e.cache != nil {
					if cacheErr := e.cache.Set(ctx, cacheKey, candidates, resp.Text); cacheErr != nil {
						e.logger.Warn("extraction cache write failed", "error", cacheErr)
					}
				}
				return Result{
					Candidates:  candidates,
					RawResponse: resp.Text,
					Success:     true,
					Attempts:    attempt,
				}
			}
			err = parseErr
		}

		lastErr = err
		e.metrics.ObserveAttempt(kind, "error")
		e.logger.Warn("extraction attempt failed",
			"kind", kind,
			"attempt", attempt,
			"max_retries", e.cfg.MaxRetries,
			"error", err,
		)

		if attempt < e.cfg.MaxRetries {
			if err := sleepCtx(ctx, e.cfg.RetryDelay); err != nil {
				lastErr = err
				break
			}
		}
	}

	return Result{
		Success:      false,
		ErrorMessage: fmt.Sprintf("extraction failed after %d attempts: %v", e.cfg.MaxRetries, lastErr),
		Attempts:     e.cfg.MaxRetries,
	}
}

// parseCandidates parses a JSON array of lesion candidates from an LLM
// response, tolerating markdown code fences around the payload.
func parseCandidates(response string) ([]lesion.RawCandidate, error) {
	cleaned := stripCodeFences(response)

	var candidates []lesion.RawCandidate
	if err := json.Unmarshal([]byte(cleaned), &candidates); err != nil {
		preview := cleaned
		if len(preview) > 200 {
			preview = preview[:200]
		}
		return nil, fmt.Errorf("extraction: response is not a JSON array: %w (response: %q)", err, preview)
	}
	return candidates, nil
}

func stripCodeFences(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```json") {
		s = s[len("```json"):]
	} else if strings.HasPrefix(s, "```") {
		s = s[len("```"):]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
