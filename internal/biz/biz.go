// Package biz contains business logic layer implementations.
// It holds the composite flow controller, the six orchestrated flows,
// the health aggregator, and the rate limiter.
package biz

import (
	"context"
	"time"

	"BharatSetu/internal/data"
	"BharatSetu/internal/model"

	"github.com/google/wire"
)

// ProviderSet is biz providers.
var ProviderSet = wire.NewSet(
	NewFlowExecutor,
	NewGroundedQueryUsecase,
	NewOnboardingUsecase,
	NewEligibilityUsecase,
	NewIngestionUsecase,
	NewVoiceUsecase,
	NewSimulationUsecase,
	NewHealthUsecase,
	NewRateLimiterUseCase,
	// Bind data layer implementations to biz layer interfaces
	wire.Bind(new(EngineInvoker), new(*data.EngineClient)),
	wire.Bind(new(AuditSink), new(*data.AuditEmitter)),
	wire.Bind(new(RateLimitRepo), new(*data.RateLimitRepo)),
)

// EngineInvoker calls downstream engines through the circuit breaker.
// Defined here so flows can be tested against a fake invoker.
type EngineInvoker interface {
	Call(ctx context.Context, engine, method, path string, payload map[string]any, timeout time.Duration) (map[string]any, error)
	Probe(ctx context.Context, engine string, timeout time.Duration) (int64, error)
	URLs() map[string]string
}

// AuditSink receives fire-and-forget audit events after a flow completes.
type AuditSink interface {
	Emit(eventType model.AuditEventType, correlationID, userID string, payload map[string]any)
}

// RateLimitRepo increments per-client fixed-window counters.
type RateLimitRepo interface {
	IncrementMinute(ctx context.Context, clientIP string) (int32, error)
	IncrementBurst(ctx context.Context, clientIP string) (int32, error)
}
