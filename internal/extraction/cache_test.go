package extraction

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oncotrack-ai/platform/internal/lesion"
)

func newTestCache(t *testing.T, ttl time.Duration) (*Cache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewCache(client, ttl), mr
}

func TestCacheRoundTrip(t *testing.T) {
	cache, _ := newTestCache(t, time.Hour)
	ctx := context.Background()

	key := Key(KindFirst, "model-a", "report text")
	candidates := []lesion.RawCandidate{{Location: "liver", SizeCM: 2.3}}

	_, _, ok := cache.Get(ctx, key)
	assert.False(t, ok, "empty cache must miss")

	require.NoError(t, cache.Set(ctx, key, candidates, `[{"location":"liver"}]`))

	got, raw, ok := cache.Get(ctx, key)
	require.True(t, ok)
	require.Len(t, got, 1)
	assert.Equal(t, "liver", got[0].Location)
	assert.Equal(t, `[{"location":"liver"}]`, raw)
}

func TestCacheKeyDiscriminates(t *testing.T) {
	k1 := Key(KindFirst, "model-a", "report")
	k2 := Key(KindFollowup, "model-a", "report")
	k3 := Key(KindFirst, "model-b", "report")
	k4 := Key(KindFirst, "model-a", "other report")

	assert.NotEqual(t, k1, k2)
	assert.NotEqual(t, k1, k3)
	assert.NotEqual(t, k1, k4)
}

func TestCacheEntriesExpire(t *testing.T) {
	cache, mr := newTestCache(t, time.Minute)
	ctx := context.Background()

	key := Key(KindFirst, "model-a", "report")
	require.NoError(t, cache.Set(ctx, key, nil, "[]"))

	mr.FastForward(2 * time.Minute)

	_, _, ok := cache.Get(ctx, key)
	assert.False(t, ok)
}

func TestExtractorUsesCache(t *testing.T) {
	cache, _ := newTestCache(t, time.Hour)
	client := &scriptedClient{
		responses: []LLMResponse{{Text: `[{"location": "liver", "size_cm": 2.3}]`}},
	}
	e := NewExtractor(client, testConfig(), cache, nil, nil)
	ctx := context.Background()

	first := e.ExtractFirstTimepoint(ctx, "identical report")
	require.True(t, first.Success)
	assert.False(t, first.CacheHit)
	assert.Equal(t, 1, client.calls)

	second := e.ExtractFirstTimepoint(ctx, "identical report")
	require.True(t, second.Success)
	assert.True(t, second.CacheHit)
	assert.Equal(t, 1, client.calls, "second call must be served from cache")
	require.Len(t, second.Candidates, 1)
	assert.Equal(t, "liver", second.Candidates[0].Location)
}
