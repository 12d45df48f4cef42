package data

import (
	"context"
	"testing"
	"time"

	"BharatSetu/internal/model"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestCache(t *testing.T) (CacheClient, *miniredis.Miniredis) {
	mr := miniredis.RunT(t)

	rdb := redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})

	cache := NewCacheClient(rdb)

	return cache, mr
}

func TestNewCacheClient(t *testing.T) {
	mr := miniredis.RunT(t)
	defer mr.Close()

	rdb := redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})

	cache := NewCacheClient(rdb)
	assert.NotNil(t, cache)
}

func TestCacheSetGet_HealthSnapshot(t *testing.T) {
	cache, mr := setupTestCache(t)
	defer mr.Close()

	ctx := context.Background()

	report := model.HealthReport{
		Total:     2,
		Healthy:   1,
		Unhealthy: 1,
		Dependencies: []model.EngineHealth{
			{Engine: "neural_network", Status: model.EngineHealthy, URL: "http://127.0.0.1:8007", LatencyMs: 12},
			{Engine: "vector_database", Status: model.EngineUnreachable, URL: "http://127.0.0.1:8006"},
		},
	}

	err := cache.Set(ctx, CacheKeyHealth, report, TTLHealthSnapshot)
	require.NoError(t, err)

	var got model.HealthReport
	err = cache.Get(ctx, CacheKeyHealth, &got)
	require.NoError(t, err)
	assert.Equal(t, report, got)

	// TTL should be set
	ttl := mr.TTL(CacheKeyHealth)
	assert.Greater(t, ttl, time.Duration(0))
	assert.LessOrEqual(t, ttl, TTLHealthSnapshot)
}

func TestCacheGet_NotFound(t *testing.T) {
	cache, mr := setupTestCache(t)
	defer mr.Close()

	ctx := context.Background()

	var dest map[string]any
	err := cache.Get(ctx, "missing:key", &dest)
	assert.ErrorIs(t, err, ErrCacheNotFound)
}

func TestCacheGet_Expired(t *testing.T) {
	cache, mr := setupTestCache(t)
	defer mr.Close()

	ctx := context.Background()

	err := cache.Set(ctx, CacheKeyHealth, map[string]any{"healthy": float64(3)}, TTLHealthSnapshot)
	require.NoError(t, err)

	// Advance past the TTL
	mr.FastForward(TTLHealthSnapshot + time.Second)

	var dest map[string]any
	err = cache.Get(ctx, CacheKeyHealth, &dest)
	assert.ErrorIs(t, err, ErrCacheNotFound)
}

func TestCacheDelete(t *testing.T) {
	cache, mr := setupTestCache(t)
	defer mr.Close()

	ctx := context.Background()

	require.NoError(t, cache.Set(ctx, CacheKeyHealth, "snapshot", TTLHealthSnapshot))

	exists, err := cache.Exists(ctx, CacheKeyHealth)
	require.NoError(t, err)
	assert.True(t, exists)

	require.NoError(t, cache.Delete(ctx, CacheKeyHealth))

	exists, err = cache.Exists(ctx, CacheKeyHealth)
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestCache_NilClient(t *testing.T) {
	cache := NewCacheClient(nil)
	ctx := context.Background()

	var dest map[string]any
	assert.Error(t, cache.Get(ctx, "k", &dest))
	assert.Error(t, cache.Set(ctx, "k", "v", time.Minute))
	assert.Error(t, cache.Delete(ctx, "k"))

	_, err := cache.Exists(ctx, "k")
	assert.Error(t, err)
}

func TestCacheGet_CorruptPayload(t *testing.T) {
	cache, mr := setupTestCache(t)
	defer mr.Close()

	ctx := context.Background()

	require.NoError(t, mr.Set(CacheKeyHealth, "not-json{"))

	var dest model.HealthReport
	err := cache.Get(ctx, CacheKeyHealth, &dest)
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrCacheNotFound)
}
