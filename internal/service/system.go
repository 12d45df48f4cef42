package service

import (
	"context"

	"BharatSetu/internal/biz"
	"BharatSetu/internal/data"
	"BharatSetu/internal/model"

	"github.com/go-kratos/kratos/v2/log"
)

// SystemService exposes the gateway's introspection endpoints: engine
// health aggregation and circuit breaker state.
type SystemService struct {
	health   *biz.HealthUsecase
	breakers *data.CircuitBreakerRegistry
	logger   *log.Helper
}

// NewSystemService creates a new system service.
func NewSystemService(health *biz.HealthUsecase, breakers *data.CircuitBreakerRegistry, logger log.Logger) *SystemService {
	return &SystemService{
		health:   health,
		breakers: breakers,
		logger:   log.NewHelper(logger),
	}
}

// EnginesHealth returns the aggregated health of every configured
// engine. A cached snapshot is served when one is fresh; otherwise a
// full probe sweep runs. The gateway itself is healthy either way, so
// this never returns a transport error for engine failures.
func (s *SystemService) EnginesHealth(ctx context.Context, force bool) (*model.HealthReport, error) {
	if !force {
		if report, ok := s.health.Snapshot(ctx); ok {
			return report, nil
		}
	}

	report, err := s.health.Check(ctx)
	if err != nil {
		return nil, asTransportError(err)
	}
	return report, nil
}

// BreakerStatus reports the circuit state of every engine that has
// received at least one request.
func (s *SystemService) BreakerStatus(_ context.Context) map[string]model.CircuitSnapshot {
	return s.breakers.Status()
}
