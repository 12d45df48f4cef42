package biz

import (
	"context"
	"time"

	"BharatSetu/internal/conf"
	"BharatSetu/internal/model"

	"github.com/go-kratos/kratos/v2/log"

	pkglog "BharatSetu/pkg/log"
)

// OnboardingUsecase runs the user onboarding flow. Only registration is
// critical; every enrichment step after it degrades gracefully so a new
// user always walks away with an account and a token.
type OnboardingUsecase struct {
	flows  *FlowExecutor
	audit  AuditSink
	logger *log.Helper
}

// NewOnboardingUsecase creates the onboarding flow.
func NewOnboardingUsecase(_ *conf.Bootstrap, flows *FlowExecutor, audit AuditSink, logger log.Logger) *OnboardingUsecase {
	return &OnboardingUsecase{
		flows:  flows,
		audit:  audit,
		logger: log.NewHelper(logger),
	}
}

// Onboard executes the flow.
func (uc *OnboardingUsecase) Onboard(ctx context.Context, req *model.OnboardRequest) (*model.OnboardResponse, error) {
	start := time.Now()

	userID := func(fc *FlowContext) string {
		return fc.String("registration", "user_id")
	}

	fc, err := uc.flows.Run(ctx, "onboarding", []Group{
		Seq(Step{
			Name:     "registration",
			Engine:   "login_register",
			Path:     "/auth/register",
			Critical: true,
			Payload: func(_ *FlowContext) map[string]any {
				return map[string]any{
					"phone":                   req.Phone,
					"password":                req.Password,
					"name":                    req.Name,
					"state":                   req.State,
					"district":                req.District,
					"language_preference":     req.LanguagePreference,
					"consent_data_processing": req.ConsentData,
				}
			},
		}),
		Seq(Step{
			Name:   "identity_creation",
			Engine: "identity",
			Path:   "/identity/create",
			Payload: func(fc *FlowContext) map[string]any {
				return map[string]any{
					"user_id": userID(fc),
					"name":    req.Name,
					"phone":   req.Phone,
					"dob":     req.Profile["dateOfBirth"],
				}
			},
		}),
		Seq(Step{
			Name:   "metadata_normalization",
			Engine: "metadata",
			Path:   "/metadata/process",
			Payload: func(fc *FlowContext) map[string]any {
				fields := map[string]any{
					"user_id":             userID(fc),
					"name":                req.Name,
					"phone":               req.Phone,
					"state":               req.State,
					"district":            req.District,
					"language_preference": req.LanguagePreference,
				}
				for k, v := range req.Profile {
					if v != nil {
						fields[k] = v
					}
				}
				return fields
			},
		}),
		Seq(Step{
			Name:   "processed_metadata_store",
			Engine: "processed_metadata",
			Path:   "/processed-metadata/store",
			Payload: func(fc *FlowContext) map[string]any {
				return map[string]any{
					"user_id":            userID(fc),
					"processed_data":     normalizedProfile(fc),
					"derived_attributes": fc.Map("metadata_normalization", "derived_attributes"),
				}
			},
		}),
		Parallel(
			Step{
				Name:   "eligibility_check",
				Engine: "eligibility_rules",
				Path:   "/eligibility/check",
				Payload: func(fc *FlowContext) map[string]any {
					return map[string]any{
						"user_id": userID(fc),
						"profile": normalizedProfile(fc),
					}
				},
			},
			Step{
				Name:   "deadline_check",
				Engine: "deadline_monitoring",
				Path:   "/deadlines/check",
				Payload: func(fc *FlowContext) map[string]any {
					return map[string]any{
						"user_id": userID(fc),
						"state":   req.State,
					}
				},
			},
		),
		Seq(Step{
			Name:   "profile_generation",
			Engine: "json_user_info",
			Path:   "/profile/generate",
			Payload: func(fc *FlowContext) map[string]any {
				return map[string]any{
					"user_id":     userID(fc),
					"metadata":    fc.Result("metadata_normalization"),
					"eligibility": fc.Result("eligibility_check"),
					"deadlines":   fc.Result("deadline_check"),
				}
			},
		}),
	})
	if err != nil {
		return nil, err
	}

	degraded := fc.Degraded()
	uc.audit.Emit(model.AuditEventUserOnboarded, pkglog.GetRequestID(ctx), userID(fc), map[string]any{
		"phone":           maskPhone(req.Phone),
		"steps_completed": 7 - len(degraded),
		"degraded":        degraded,
	})

	return &model.OnboardResponse{
		UserID:             userID(fc),
		AccessToken:        fc.String("registration", "access_token"),
		RefreshToken:       fc.String("registration", "refresh_token"),
		IdentityToken:      fc.String("identity_creation", "identity_token"),
		EligibilityResults: fc.Result("eligibility_check"),
		UpcomingDeadlines:  fc.Result("deadline_check"),
		Degraded:           degraded,
		LatencyMs:          elapsedMs(start),
	}, nil
}

// normalizedProfile prefers the normalizer's output but falls back to
// its raw result so downstream steps still get something useful when
// normalization degraded.
func normalizedProfile(fc *FlowContext) map[string]any {
	if m := fc.Map("metadata_normalization", "normalized"); m != nil {
		return m
	}
	return fc.Result("metadata_normalization")
}

func maskPhone(phone string) string {
	if len(phone) < 4 {
		return "****"
	}
	return phone[:4] + "****"
}
