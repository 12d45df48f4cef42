package data

import (
	"context"
	"fmt"
	"time"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/redis/go-redis/v9"
)

// RateLimitRepo implements biz.RateLimitRepo interface.
// Counters live in Redis fixed windows keyed by client IP.
type RateLimitRepo struct {
	rdb    *redis.Client
	logger *log.Helper
}

// NewRateLimitRepo creates a new rate limit repository.
func NewRateLimitRepo(rdb *redis.Client, logger log.Logger) *RateLimitRepo {
	return &RateLimitRepo{
		rdb:    rdb,
		logger: log.NewHelper(logger),
	}
}

// IncrementMinute increments the per-minute request counter for a
// client. Uses Redis INCR with a 60 second expiration set on the first
// increment of the window. Returns the new count.
func (r *RateLimitRepo) IncrementMinute(ctx context.Context, clientIP string) (int32, error) {
	return r.increment(ctx, rateLimitKey(clientIP, "rpm"), 60*time.Second)
}

// IncrementBurst increments the per-second burst counter for a client.
// The window expires after 1 second.
func (r *RateLimitRepo) IncrementBurst(ctx context.Context, clientIP string) (int32, error) {
	return r.increment(ctx, rateLimitKey(clientIP, "burst"), time.Second)
}

func (r *RateLimitRepo) increment(ctx context.Context, key string, ttl time.Duration) (int32, error) {
	if r.rdb == nil {
		return 0, fmt.Errorf("redis client is nil")
	}

	count, err := r.rdb.Incr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to increment rate limit counter: %w", err)
	}

	// Set expiration on first increment only
	if count == 1 {
		if err := r.rdb.Expire(ctx, key, ttl).Err(); err != nil {
			r.logger.Warnw("failed to set rate limit expiration",
				"key", key,
				"error", err,
				"type", "rate_limit")
			// Counter is still incremented, don't return error
		}
	}

	// Prevent overflow when converting int64 to int32
	if count > 2147483647 {
		count = 2147483647
	}

	return int32(count), nil // #nosec G115 -- overflow is handled above
}

func rateLimitKey(clientIP, window string) string {
	return fmt.Sprintf("ratelimit:%s:%s", clientIP, window)
}
