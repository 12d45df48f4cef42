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

// EligibilityUsecase runs the eligibility evaluation flow. The verdict
// comes from deterministic boolean rules and is load-bearing; the
// AI-generated explanation is cosmetic and opt-in.
type EligibilityUsecase struct {
	flows  *FlowExecutor
	audit  AuditSink
	logger *log.Helper
}

// NewEligibilityUsecase creates the eligibility flow.
func NewEligibilityUsecase(_ *conf.Bootstrap, flows *FlowExecutor, audit AuditSink, logger log.Logger) *EligibilityUsecase {
	return &EligibilityUsecase{
		flows:  flows,
		audit:  audit,
		logger: log.NewHelper(logger),
	}
}

// Check executes the flow.
func (uc *EligibilityUsecase) Check(ctx context.Context, req *model.EligibilityRequest) (*model.EligibilityResponse, error) {
	start := time.Now()

	fc, err := uc.flows.Run(ctx, "eligibility", []Group{
		Seq(Step{
			Name:     "eligibility_evaluation",
			Engine:   "eligibility_rules",
			Path:     "/eligibility/check",
			Critical: true,
			Payload: func(_ *FlowContext) map[string]any {
				return map[string]any{
					"user_id":    req.UserID,
					"profile":    req.Profile,
					"scheme_ids": req.SchemeIDs,
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
					"text": fmt.Sprintf("Eligibility results for user %s: %v",
						req.UserID, fc.Value("eligibility_evaluation", "results")),
					"max_length": 300,
				}
			},
		}),
	})
	if err != nil {
		return nil, err
	}

	evaluation := fc.Result("eligibility_evaluation")
	uc.audit.Emit(model.AuditEventEligibilityChecked, pkglog.GetRequestID(ctx), req.UserID, map[string]any{
		"eligible":      evaluation["eligible"],
		"partial":       evaluation["partial"],
		"total_checked": evaluation["total_schemes_checked"],
	})

	return &model.EligibilityResponse{
		Results: resultList(fc.List("eligibility_evaluation", "results")),
		Summary: map[string]any{
			"eligible":     evaluation["eligible"],
			"partial":      evaluation["partial"],
			"totalChecked": evaluation["total_schemes_checked"],
		},
		Explanation: fc.String("ai_explanation", "summary"),
		Degraded:    fc.Degraded(),
		LatencyMs:   elapsedMs(start),
	}, nil
}

// resultList narrows a decoded JSON array to its object members.
func resultList(raw []any) []map[string]any {
	out := make([]map[string]any, 0, len(raw))
	for _, r := range raw {
		if m, ok := r.(map[string]any); ok {
			out = append(out, m)
		}
	}
	return out
}
