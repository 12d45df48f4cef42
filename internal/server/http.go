// Package server assembles the kratos HTTP transport: middleware chain
// and route registration for the composite flows.
package server

import (
	"context"
	stdhttp "net/http"

	"BharatSetu/internal/biz"
	"BharatSetu/internal/conf"
	"BharatSetu/internal/model"
	"BharatSetu/internal/server/middleware"
	"BharatSetu/internal/service"
	pkglog "BharatSetu/pkg/log"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/go-kratos/kratos/v2/middleware/recovery"
	"github.com/go-kratos/kratos/v2/transport/http"
)

// NewHTTPServer new an HTTP server.
func NewHTTPServer(
	c *conf.Server,
	orchestrator *service.OrchestratorService,
	system *service.SystemService,
	limiter *biz.RateLimiterUseCase,
	logger log.Logger,
) *http.Server {
	logHelper := pkglog.NewLogHelper(logger)

	var auth *conf.Server_Auth
	if c != nil {
		auth = c.Auth
	}

	var opts = []http.ServerOption{
		http.Middleware(
			recovery.Recovery(),
			middleware.Logging(logHelper),
			middleware.RateLimit(limiter, logHelper),
			middleware.Auth(auth, logHelper),
		),
	}
	if c != nil && c.Http != nil {
		if c.Http.Network != "" {
			opts = append(opts, http.Network(c.Http.Network))
		}
		if c.Http.Addr != "" {
			opts = append(opts, http.Address(c.Http.Addr))
		}
		if c.Http.Timeout != nil {
			opts = append(opts, http.Timeout(c.Http.Timeout.AsDuration()))
		}
	}
	srv := http.NewServer(opts...)

	registerRoutes(srv, orchestrator, system)

	return srv
}

// registerRoutes wires the composite flow endpoints plus the
// introspection and liveness routes.
func registerRoutes(srv *http.Server, orchestrator *service.OrchestratorService, system *service.SystemService) {
	r := srv.Route("/api/v1")

	r.POST("/query", func(ctx http.Context) error {
		var in model.QueryRequest
		if err := ctx.Bind(&in); err != nil {
			return err
		}
		http.SetOperation(ctx, "/bharatsetu.v1.Orchestrator/Query")
		h := ctx.Middleware(func(c context.Context, req interface{}) (interface{}, error) {
			return orchestrator.Query(c, req.(*model.QueryRequest))
		})
		out, err := h(ctx, &in)
		if err != nil {
			return err
		}
		return ctx.Result(stdhttp.StatusOK, out)
	})

	r.POST("/onboard", func(ctx http.Context) error {
		var in model.OnboardRequest
		if err := ctx.Bind(&in); err != nil {
			return err
		}
		http.SetOperation(ctx, "/bharatsetu.v1.Orchestrator/Onboard")
		h := ctx.Middleware(func(c context.Context, req interface{}) (interface{}, error) {
			return orchestrator.Onboard(c, req.(*model.OnboardRequest))
		})
		out, err := h(ctx, &in)
		if err != nil {
			return err
		}
		return ctx.Result(stdhttp.StatusCreated, out)
	})

	r.POST("/check-eligibility", func(ctx http.Context) error {
		var in model.EligibilityRequest
		if err := ctx.Bind(&in); err != nil {
			return err
		}
		http.SetOperation(ctx, "/bharatsetu.v1.Orchestrator/CheckEligibility")
		h := ctx.Middleware(func(c context.Context, req interface{}) (interface{}, error) {
			return orchestrator.CheckEligibility(c, req.(*model.EligibilityRequest))
		})
		out, err := h(ctx, &in)
		if err != nil {
			return err
		}
		return ctx.Result(stdhttp.StatusOK, out)
	})

	r.POST("/ingest-policy", func(ctx http.Context) error {
		var in model.IngestPolicyRequest
		if err := ctx.Bind(&in); err != nil {
			return err
		}
		http.SetOperation(ctx, "/bharatsetu.v1.Orchestrator/IngestPolicy")
		h := ctx.Middleware(func(c context.Context, req interface{}) (interface{}, error) {
			return orchestrator.IngestPolicy(c, req.(*model.IngestPolicyRequest))
		})
		out, err := h(ctx, &in)
		if err != nil {
			return err
		}
		return ctx.Result(stdhttp.StatusCreated, out)
	})

	r.POST("/voice-query", func(ctx http.Context) error {
		var in model.VoiceQueryRequest
		if err := ctx.Bind(&in); err != nil {
			return err
		}
		http.SetOperation(ctx, "/bharatsetu.v1.Orchestrator/VoiceQuery")
		h := ctx.Middleware(func(c context.Context, req interface{}) (interface{}, error) {
			return orchestrator.VoiceQuery(c, req.(*model.VoiceQueryRequest))
		})
		out, err := h(ctx, &in)
		if err != nil {
			return err
		}
		return ctx.Result(stdhttp.StatusOK, out)
	})

	r.POST("/simulate", func(ctx http.Context) error {
		var in model.SimulateRequest
		if err := ctx.Bind(&in); err != nil {
			return err
		}
		http.SetOperation(ctx, "/bharatsetu.v1.Orchestrator/Simulate")
		h := ctx.Middleware(func(c context.Context, req interface{}) (interface{}, error) {
			return orchestrator.Simulate(c, req.(*model.SimulateRequest))
		})
		out, err := h(ctx, &in)
		if err != nil {
			return err
		}
		return ctx.Result(stdhttp.StatusOK, out)
	})

	r.GET("/circuit-breaker/status", func(ctx http.Context) error {
		http.SetOperation(ctx, "/bharatsetu.v1.System/BreakerStatus")
		h := ctx.Middleware(func(c context.Context, _ interface{}) (interface{}, error) {
			return system.BreakerStatus(c), nil
		})
		out, err := h(ctx, nil)
		if err != nil {
			return err
		}
		return ctx.Result(stdhttp.StatusOK, out)
	})

	r.GET("/engines/health", func(ctx http.Context) error {
		force := ctx.Query().Get("force") == "true"
		http.SetOperation(ctx, "/bharatsetu.v1.System/EnginesHealth")
		h := ctx.Middleware(func(c context.Context, _ interface{}) (interface{}, error) {
			return system.EnginesHealth(c, force)
		})
		out, err := h(ctx, nil)
		if err != nil {
			return err
		}
		return ctx.Result(stdhttp.StatusOK, out)
	})

	// Gateway liveness. Engine state is deliberately excluded here so a
	// down engine never makes the gateway look dead to its own probes.
	root := srv.Route("/")
	root.GET("/health", func(ctx http.Context) error {
		return ctx.Result(stdhttp.StatusOK, map[string]string{
			"status":  "healthy",
			"service": "api_gateway",
		})
	})
}
