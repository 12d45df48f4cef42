package biz

import (
	"context"
	"fmt"
	"time"

	"BharatSetu/internal/conf"
	"BharatSetu/internal/model"

	"github.com/go-kratos/kratos/v2/log"

	pkglog "BharatSetu/pkg/log"
)

// SimulationUsecase runs the what-if simulation flow. Same shape as the
// eligibility flow: deterministic evaluation first, optional cosmetic
// explanation second.
type SimulationUsecase struct {
	flows  *FlowExecutor
	audit  AuditSink
	logger *log.Helper
}

// NewSimulationUsecase creates the simulation flow.
func NewSimulationUsecase(_ *conf.Bootstrap, flows *FlowExecutor, audit AuditSink, logger log.Logger) *SimulationUsecase {
	return &SimulationUsecase{
		flows:  flows,
		audit:  audit,
		logger: log.NewHelper(logger),
	}
}

// Simulate executes the flow.
func (uc *SimulationUsecase) Simulate(ctx context.Context, req *model.SimulateRequest) (*model.SimulateResponse, error) {
	start := time.Now()

	fc, err := uc.flows.Run(ctx, "simulation", []Group{
		Seq(Step{
			Name:     "simulation_evaluation",
			Engine:   "simulation",
			Path:     "/simulate/what-if",
			Critical: true,
			Payload: func(_ *FlowContext) map[string]any {
				return map[string]any{
					"user_id":         req.UserID,
					"current_profile": req.CurrentProfile,
					"changes":         req.Changes,
				}
			},
		}),
		Seq(Step{
			Name:   "ai_explanation",
			Engine: "neural_network",
			Path:   "/ai/summarize",
			When: func(_ *FlowContext) bool {
				return req.Explain
			},
			Payload: func(fc *FlowContext) map[string]any {
				return map[string]any{
					"text": fmt.Sprintf(
						"Simulation results for user %s: Changes applied: %v. Before: %v. After: %v. Delta: %v.",
						req.UserID, req.Changes,
						fc.Map("simulation_evaluation", "before"),
						fc.Map("simulation_evaluation", "after"),
						fc.Map("simulation_evaluation", "delta")),
					"max_length": 300,
				}
			},
		}),
	})
	if err != nil {
		return nil, err
	}

	uc.audit.Emit(model.AuditEventSimulationRun, pkglog.GetRequestID(ctx), req.UserID, map[string]any{
		"changes": req.Changes,
	})

	return &model.SimulateResponse{
		Before:        fc.Map("simulation_evaluation", "before"),
		After:         fc.Map("simulation_evaluation", "after"),
		Delta:         fc.Map("simulation_evaluation", "delta"),
		SchemesGained: stringList(fc.List("simulation_evaluation", "schemes_gained")),
		SchemesLost:   stringList(fc.List("simulation_evaluation", "schemes_lost")),
		Explanation:   fc.String("ai_explanation", "summary"),
		Degraded:      fc.Degraded(),
		LatencyMs:     elapsedMs(start),
	}, nil
}

// stringList narrows a decoded JSON array to its string members.
func stringList(raw []any) []string {
	out := make([]string, 0, len(raw))
	for _, r := range raw {
		if s, ok := r.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
