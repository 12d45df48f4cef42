package biz

import (
	"context"
	"fmt"
	"strings"
	"time"

	"BharatSetu/internal/conf"
	"BharatSetu/internal/model"

	"github.com/go-kratos/kratos/v2/log"

	pkglog "BharatSetu/pkg/log"
)

const voiceFallbackText = "I'm sorry, the service is temporarily unavailable. Please try again."

// VoiceUsecase runs the voice query flow: classify intent, route the
// utterance to exactly one downstream pipeline, translate the reply to
// the caller's language if needed, then synthesize speech. Routing is a
// pure function of the classified intent; anything unknown falls through
// to conversational chat.
type VoiceUsecase struct {
	flows      *FlowExecutor
	audit      AuditSink
	genTimeout time.Duration
	logger     *log.Helper
}

// NewVoiceUsecase creates the voice query flow.
func NewVoiceUsecase(c *conf.Bootstrap, flows *FlowExecutor, audit AuditSink, logger log.Logger) *VoiceUsecase {
	return &VoiceUsecase{
		flows:      flows,
		audit:      audit,
		genTimeout: generativeTimeout(c),
		logger:     log.NewHelper(logger),
	}
}

// Query executes the flow.
func (uc *VoiceUsecase) Query(ctx context.Context, req *model.VoiceQueryRequest) (*model.VoiceQueryResponse, error) {
	start := time.Now()

	userID := req.UserID
	if userID == "" {
		userID = "anonymous"
	}

	fc, err := uc.flows.Run(ctx, "voice_query", []Group{
		Seq(Step{
			Name:     "intent_classification",
			Engine:   "neural_network",
			Path:     "/ai/intent",
			Critical: true,
			Payload: func(_ *FlowContext) map[string]any {
				return map[string]any{"message": req.Text, "user_id": userID}
			},
		}),
	})
	if err != nil {
		return nil, err
	}

	intent := strings.ToLower(fc.String("intent_classification", "intent"))
	if intent == "" {
		intent = "general"
	}

	if err := uc.route(ctx, fc, intent, req.Text, userID); err != nil {
		return nil, err
	}

	answer := uc.composeAnswer(fc, intent)

	if err := uc.flows.RunOn(ctx, fc, []Group{
		Seq(Step{
			Name:   "translation",
			Engine: "neural_network",
			Path:   "/ai/translate",
			When: func(_ *FlowContext) bool {
				return needsTranslation(req.Language) && answer != ""
			},
			Payload: func(_ *FlowContext) map[string]any {
				return map[string]any{
					"text":        answer,
					"source_lang": "en",
					"target_lang": req.Language,
				}
			},
		}),
	}); err != nil {
		return nil, err
	}

	if translated := fc.String("translation", "translated"); translated != "" {
		answer = translated
	}

	if err := uc.flows.RunOn(ctx, fc, []Group{
		Seq(Step{
			Name:   "text_to_speech",
			Engine: "speech_interface",
			Path:   "/speech/tts",
			Payload: func(_ *FlowContext) map[string]any {
				return map[string]any{
					"text":     answer,
					"language": req.Language,
					"user_id":  userID,
				}
			},
		}),
	}); err != nil {
		return nil, err
	}

	uc.audit.Emit(model.AuditEventVoiceQuery, pkglog.GetRequestID(ctx), userID, map[string]any{
		"query":    req.Text,
		"language": req.Language,
		"intent":   intent,
	})

	return &model.VoiceQueryResponse{
		Transcript: req.Text,
		Answer:     answer,
		Intent:     intent,
		Language:   req.Language,
		AudioRef:   fc.String("text_to_speech", "session_id"),
		Degraded:   fc.Degraded(),
		LatencyMs:  elapsedMs(start),
	}, nil
}

// route dispatches the utterance to exactly one downstream pipeline.
// Every routed step is non-critical with an apology fallback so a dead
// branch still produces a spoken reply.
func (uc *VoiceUsecase) route(ctx context.Context, fc *FlowContext, intent, text, userID string) error {
	switch intent {
	case "eligibility", "eligibility_check":
		return uc.flows.RunOn(ctx, fc, []Group{Seq(Step{
			Name:   "intent_routing",
			Engine: "eligibility_rules",
			Path:   "/eligibility/check",
			Payload: func(_ *FlowContext) map[string]any {
				return map[string]any{"user_id": userID, "profile": map[string]any{}}
			},
		})})

	case "deadline":
		return uc.flows.RunOn(ctx, fc, []Group{Seq(Step{
			Name:   "intent_routing",
			Engine: "deadline_monitoring",
			Path:   "/deadlines/check",
			Payload: func(_ *FlowContext) map[string]any {
				return map[string]any{"user_id": userID}
			},
		})})

	case "scheme_query", "scheme_info", "policy":
		if err := uc.flows.RunOn(ctx, fc, []Group{Seq(Step{
			Name:   "vector_search",
			Engine: "vector_database",
			Path:   "/vectors/search",
			Payload: func(_ *FlowContext) map[string]any {
				return map[string]any{"query": text, "top_k": 3}
			},
			Fallback: func(_ *FlowContext) map[string]any {
				return map[string]any{"results": []any{}}
			},
		})}); err != nil {
			return err
		}

		// Answer with retrieved context when the search produced any,
		// direct chat otherwise.
		passages, _ := extractPassages(fc.List("vector_search", "results"))
		step := Step{
			Name:    "intent_routing",
			Engine:  "neural_network",
			Path:    "/ai/rag",
			Timeout: uc.genTimeout,
			Payload: func(_ *FlowContext) map[string]any {
				return map[string]any{
					"user_id":          userID,
					"question":         text,
					"context_passages": passages,
				}
			},
		}
		if len(passages) == 0 {
			step.Path = "/ai/chat"
			step.Payload = func(_ *FlowContext) map[string]any {
				return map[string]any{"user_id": userID, "message": text}
			}
		}
		return uc.flows.RunOn(ctx, fc, []Group{Seq(step)})

	default:
		return uc.flows.RunOn(ctx, fc, []Group{Seq(Step{
			Name:    "intent_routing",
			Engine:  "neural_network",
			Path:    "/ai/chat",
			Timeout: uc.genTimeout,
			Payload: func(_ *FlowContext) map[string]any {
				return map[string]any{"user_id": userID, "message": text}
			},
		})})
	}
}

// composeAnswer turns the routed step's structured output into the
// sentence handed to translation and speech synthesis.
func (uc *VoiceUsecase) composeAnswer(fc *FlowContext, intent string) string {
	for _, d := range fc.Degraded() {
		if d == "intent_routing" {
			return voiceFallbackText
		}
	}

	routed := fc.Result("intent_routing")
	switch intent {
	case "eligibility", "eligibility_check":
		return fmt.Sprintf("You are eligible for %.0f schemes. Total schemes checked: %.0f.",
			fc.Float("intent_routing", "eligible"),
			fc.Float("intent_routing", "total_schemes_checked"))

	case "deadline":
		return fmt.Sprintf("You have %.0f upcoming deadlines. %.0f are critical.",
			fc.Float("intent_routing", "total_deadlines"),
			fc.Float("intent_routing", "critical"))

	default:
		if answer, ok := routed["answer"].(string); ok && answer != "" {
			return answer
		}
		if response, ok := routed["response"].(string); ok && response != "" {
			return response
		}
		return voiceFallbackText
	}
}

func needsTranslation(language string) bool {
	switch strings.ToLower(language) {
	case "", "en", "english":
		return false
	default:
		return true
	}
}
