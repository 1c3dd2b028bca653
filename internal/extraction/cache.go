package extraction

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/oncotrack-ai/platform/internal/lesion"
)

// Cache memoizes successful extraction results in Redis, keyed by a digest
// of the prompt kind, model and report text. Identical reports are common in
// longitudinal datasets and each skipped LLM call is real money.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewCache wraps a Redis client. TTL <= 0 disables expiry.
func NewCache(client *redis.Client, ttl time.Duration) *Cache {
	if client == nil {
		panic("extraction: redis client cannot be nil")
	}
	return &Cache{client: client, ttl: ttl}
}

type cachedResult struct {
	Candidates  []lesion.RawCandidate `json:"candidates"`
	RawResponse string                `json:"raw_response"`
}

// Key derives the cache key for one extraction call.
func Key(kind, model, reportText string) string {
	sum := sha256.Sum256([]byte(kind + "\x00" + model + "\x00" + reportText))
	return "extraction:v1:" + hex.EncodeToString(sum[:])
}

// Get returns the cached result for key, or ok=false on miss or any Redis
// error. Cache failures never block extraction.
func (c *Cache) Get(ctx context.Context, key string) ([]lesion.RawCandidate, string, bool) {
	raw, err := c.client.Get(ctx, key).Result()
	if err != nil {
		return nil, "", false
	}
	var cached cachedResult
	if err := json.Unmarshal([]byte(raw), &cached); err != nil {
		return nil, "", false
	}
	return cached.Candidates, cached.RawResponse, true
}

// Set stores a successful extraction result.
func (c *Cache) Set(ctx context.Context, key string, candidates []lesion.RawCandidate, rawResponse string) error {
	data, err := json.Marshal(cachedResult{Candidates: candidates, RawResponse: rawResponse})
	if err != nil {
		return fmt.Errorf("extraction: cache marshal: %w", err)
	}
	if err := c.client.Set(ctx, key, data, c.ttl).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("extraction: cache set: %w", err)
	}
	return nil
}
