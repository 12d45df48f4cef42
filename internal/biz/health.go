package biz

import (
	"context"
	"sort"
	"time"

	"BharatSetu/internal/conf"
	"BharatSetu/internal/data"
	"BharatSetu/internal/model"

	"github.com/go-kratos/kratos/v2/log"
	"golang.org/x/sync/errgroup"
)

// HealthUsecase fans a health probe out to every registered engine and
// aggregates the results. All probes launch at once so the sweep
// finishes within a single probe timeout; each probe has its own
// deadline and failures never cancel sibling probes. An unreachable
// engine is a data point, not an error.
type HealthUsecase struct {
	engines      EngineInvoker
	cache        data.CacheClient
	probeTimeout time.Duration
	logger       *log.Helper
}

// NewHealthUsecase creates the health aggregator.
func NewHealthUsecase(c *conf.Bootstrap, engines EngineInvoker, d *data.Data, logger log.Logger) *HealthUsecase {
	probeTimeout := 5 * time.Second
	if c != nil && c.Engines != nil && c.Engines.HealthTimeout != nil {
		probeTimeout = c.Engines.HealthTimeout.AsDuration()
	}

	var cache data.CacheClient
	if d != nil {
		cache = d.GetCache()
	}

	return &HealthUsecase{
		engines:      engines,
		cache:        cache,
		probeTimeout: probeTimeout,
		logger:       log.NewHelper(logger),
	}
}

// Check probes every engine concurrently and returns the aggregated
// report. The snapshot is cached best-effort for consumers that only
// need a recent view.
func (uc *HealthUsecase) Check(ctx context.Context) (*model.HealthReport, error) {
	urls := uc.engines.URLs()

	keys := make([]string, 0, len(urls))
	for k := range urls {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	results := make([]model.EngineHealth, len(keys))

	var g errgroup.Group
	for i, key := range keys {
		i, key := i, key
		g.Go(func() error {
			latency, err := uc.engines.Probe(ctx, key, uc.probeTimeout)
			status := model.EngineHealthy
			if err != nil {
				status = model.EngineUnreachable
				uc.logger.Warnw("engine probe failed",
					"engine", key,
					"error", err,
					"type", "health")
			}
			results[i] = model.EngineHealth{
				Engine:    key,
				Status:    status,
				URL:       urls[key],
				LatencyMs: latency,
			}
			// Probe failures are reported in the result set, never as
			// an error, so siblings always run to completion.
			return nil
		})
	}
	_ = g.Wait()

	report := &model.HealthReport{
		Total:        len(results),
		Dependencies: results,
	}
	for _, r := range results {
		if r.Status == model.EngineHealthy {
			report.Healthy++
		} else {
			report.Unhealthy++
		}
	}

	if uc.cache != nil {
		if err := uc.cache.Set(ctx, data.CacheKeyHealth, report, data.TTLHealthSnapshot); err != nil {
			uc.logger.Warnw("failed to cache health snapshot",
				"error", err,
				"type", "health")
		}
	}

	uc.logger.Infow("engine health sweep complete",
		"total", report.Total,
		"healthy", report.Healthy,
		"unhealthy", report.Unhealthy,
		"type", "health")

	return report, nil
}

// Snapshot returns the most recently cached report, or false when no
// sweep has happened within the snapshot TTL.
func (uc *HealthUsecase) Snapshot(ctx context.Context) (*model.HealthReport, bool) {
	if uc.cache == nil {
		return nil, false
	}

	var report model.HealthReport
	if err := uc.cache.Get(ctx, data.CacheKeyHealth, &report); err != nil {
		return nil, false
	}
	return &report, true
}
