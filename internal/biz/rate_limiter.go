package biz

import (
	"context"
	"fmt"

	"BharatSetu/internal/conf"

	"github.com/go-kratos/kratos/v2/errors"
	"github.com/go-kratos/kratos/v2/log"
)

// RateLimiterUseCase enforces per-client-IP request limits: a fixed
// per-minute window plus a one-second burst guard.
type RateLimiterUseCase struct {
	repo           RateLimitRepo
	perMinute      int32
	burstPerSecond int32
	logger         *log.Helper
}

// NewRateLimiterUseCase creates a new rate limiter use case.
func NewRateLimiterUseCase(c *conf.Bootstrap, repo RateLimitRepo, logger log.Logger) *RateLimiterUseCase {
	perMinute := int32(100)
	burst := int32(10)
	if c != nil && c.Orchestrator != nil && c.Orchestrator.RateLimit != nil {
		if c.Orchestrator.RateLimit.PerMinute > 0 {
			perMinute = c.Orchestrator.RateLimit.PerMinute
		}
		if c.Orchestrator.RateLimit.BurstPerSecond > 0 {
			burst = c.Orchestrator.RateLimit.BurstPerSecond
		}
	}

	return &RateLimiterUseCase{
		repo:           repo,
		perMinute:      perMinute,
		burstPerSecond: burst,
		logger:         log.NewHelper(logger),
	}
}

// newRateLimitExceededError builds the 429 returned to throttled clients.
func newRateLimitExceededError(limitType string, current, limit int32, retryAfter int64) error {
	return errors.New(
		429,
		fmt.Sprintf("RATE_LIMIT_EXCEEDED_%s", limitType),
		fmt.Sprintf("rate limit exceeded: %s current=%d limit=%d retry_after=%ds",
			limitType, current, limit, retryAfter),
	)
}

// Check enforces both windows for one inbound request.
// Redis degradation: on Redis failure, logs warning and allows the
// request rather than turning a cache outage into a gateway outage.
func (uc *RateLimiterUseCase) Check(ctx context.Context, clientIP string) error {
	count, err := uc.repo.IncrementBurst(ctx, clientIP)
	if err != nil {
		uc.logger.Warnf("Redis burst check failed for %s: %v (request allowed)", clientIP, err)
		return nil
	}
	if count > uc.burstPerSecond {
		uc.logger.Warnw("burst limit exceeded",
			"client_ip", clientIP,
			"current", count,
			"limit", uc.burstPerSecond,
			"type", "rate_limit")
		return newRateLimitExceededError("BURST", count, uc.burstPerSecond, 1)
	}

	count, err = uc.repo.IncrementMinute(ctx, clientIP)
	if err != nil {
		uc.logger.Warnf("Redis RPM check failed for %s: %v (request allowed)", clientIP, err)
		return nil
	}
	if count > uc.perMinute {
		uc.logger.Warnw("RPM limit exceeded",
			"client_ip", clientIP,
			"current", count,
			"limit", uc.perMinute,
			"type", "rate_limit")
		return newRateLimitExceededError("RPM", count, uc.perMinute, 60)
	}

	return nil
}
