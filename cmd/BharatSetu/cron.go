package main

import (
	"context"
	"time"

	"BharatSetu/internal/biz"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/robfig/cron/v3"
)

// StartHealthSweep starts the periodic engine health sweep.
// It runs every 30 seconds, matching the snapshot cache TTL so the
// /engines/health endpoint almost always serves a warm snapshot instead
// of blocking on a full probe fan-out.
func StartHealthSweep(health *biz.HealthUsecase, logger log.Logger) *cron.Cron {
	helper := log.NewHelper(logger)

	c := cron.New(cron.WithSeconds())

	_, err := c.AddFunc("*/30 * * * * *", func() {
		ctx, cancel := context.WithTimeout(context.Background(), 25*time.Second)
		defer cancel()

		report, err := health.Check(ctx)
		if err != nil {
			helper.Errorw("health sweep failed", "error", err)
			return
		}
		if report.Unhealthy > 0 {
			helper.Warnw("health sweep found unhealthy engines",
				"unhealthy", report.Unhealthy,
				"total", report.Total)
		}
	})

	if err != nil {
		helper.Errorw("failed to register health sweep cron job", "error", err)
		return nil
	}

	c.Start()
	helper.Info("Health sweep cron job started: runs every 30 seconds")

	return c
}
