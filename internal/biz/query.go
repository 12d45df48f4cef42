package biz

import (
	"context"
	"time"

	"BharatSetu/internal/conf"
	"BharatSetu/internal/model"

	"github.com/go-kratos/kratos/v2/log"

	pkglog "BharatSetu/pkg/log"
)

const defaultTopK = 5

// GroundedQueryUsecase runs the retrieval-augmented query flow: intent
// classification, context retrieval, grounded generation, then safety
// check and trust scoring in parallel.
type GroundedQueryUsecase struct {
	flows      *FlowExecutor
	audit      AuditSink
	genTimeout time.Duration
	logger     *log.Helper
}

// NewGroundedQueryUsecase creates the grounded query flow.
func NewGroundedQueryUsecase(c *conf.Bootstrap, flows *FlowExecutor, audit AuditSink, logger log.Logger) *GroundedQueryUsecase {
	return &GroundedQueryUsecase{
		flows:      flows,
		audit:      audit,
		genTimeout: generativeTimeout(c),
		logger:     log.NewHelper(logger),
	}
}

// Query executes the flow. Generation is load-bearing: if it fails the
// whole request fails. Retrieval failure degrades to an ungrounded
// answer instead of aborting.
func (uc *GroundedQueryUsecase) Query(ctx context.Context, req *model.QueryRequest) (*model.QueryResponse, error) {
	start := time.Now()

	topK := req.TopK
	if topK <= 0 {
		topK = defaultTopK
	}

	fc, err := uc.flows.Run(ctx, "grounded_query", []Group{
		Seq(Step{
			Name:     "intent_classification",
			Engine:   "neural_network",
			Path:     "/ai/intent",
			Critical: true,
			Payload: func(_ *FlowContext) map[string]any {
				return map[string]any{"message": req.Message, "user_id": req.UserID}
			},
		}),
		Seq(Step{
			Name:   "vector_search",
			Engine: "vector_database",
			Path:   "/vectors/search",
			Payload: func(_ *FlowContext) map[string]any {
				return map[string]any{"query": req.Message, "top_k": topK}
			},
			Fallback: func(_ *FlowContext) map[string]any {
				return map[string]any{"results": []any{}}
			},
		}),
	})
	if err != nil {
		return nil, err
	}

	passages, sources := extractPassages(fc.List("vector_search", "results"))

	// Grounded generation when retrieval produced context, direct chat
	// otherwise.
	answerStep := Step{
		Name:     "answer_generation",
		Engine:   "neural_network",
		Path:     "/ai/rag",
		Timeout:  uc.genTimeout,
		Critical: true,
		Payload: func(_ *FlowContext) map[string]any {
			return map[string]any{
				"user_id":          req.UserID,
				"question":         req.Message,
				"context_passages": passages,
			}
		},
	}
	if len(passages) == 0 {
		answerStep.Path = "/ai/chat"
		answerStep.Payload = func(_ *FlowContext) map[string]any {
			return map[string]any{
				"user_id":    req.UserID,
				"message":    req.Message,
				"session_id": req.SessionID,
			}
		}
	}

	if err := uc.flows.RunOn(ctx, fc, []Group{
		Seq(answerStep),
		Parallel(
			Step{
				Name:   "anomaly_check",
				Engine: "anomaly_detection",
				Path:   "/anomaly/check",
				Payload: func(fc *FlowContext) map[string]any {
					return map[string]any{
						"user_id": req.UserID,
						"profile": map[string]any{
							"response_length": len(fc.String("answer_generation", "answer")),
						},
					}
				},
			},
			Step{
				Name:   "trust_scoring",
				Engine: "trust_scoring",
				Path:   "/trust/score",
				Payload: func(fc *FlowContext) map[string]any {
					ids := make([]string, 0, 3)
					for _, s := range sources {
						if len(ids) == 3 {
							break
						}
						ids = append(ids, s.ID)
					}
					return map[string]any{
						"user_id":          req.UserID,
						"data_sources":     ids,
						"model_confidence": fc.Float("intent_classification", "confidence"),
					}
				},
			},
		),
	}); err != nil {
		return nil, err
	}

	uc.audit.Emit(model.AuditEventRAGQuery, pkglog.GetRequestID(ctx), req.UserID, map[string]any{
		"query":         req.Message,
		"intent":        fc.String("intent_classification", "intent"),
		"sources_count": len(sources),
	})

	answer := fc.String("answer_generation", "answer")
	if answer == "" {
		answer = fc.String("answer_generation", "response")
	}

	return &model.QueryResponse{
		Answer:           answer,
		Intent:           fc.String("intent_classification", "intent"),
		IntentConfidence: fc.Float("intent_classification", "confidence"),
		Sources:          sources,
		Trust:            fc.Result("trust_scoring"),
		Safety:           fc.Result("anomaly_check"),
		Degraded:         fc.Degraded(),
		LatencyMs:        elapsedMs(start),
	}, nil
}

// extractPassages pulls the passage texts and the response source list
// out of a retrieval result.
func extractPassages(results []any) ([]string, []model.Source) {
	passages := make([]string, 0, len(results))
	sources := make([]model.Source, 0, len(results))
	for _, r := range results {
		m, ok := r.(map[string]any)
		if !ok {
			continue
		}
		content, _ := m["content"].(string)
		if content == "" {
			continue
		}
		passages = append(passages, content)
		if len(sources) < defaultTopK {
			id, _ := m["vector_id"].(string)
			score, _ := m["score"].(float64)
			sources = append(sources, model.Source{
				ID:      id,
				Score:   score,
				Content: truncate(content, 200),
			})
		}
	}
	return passages, sources
}

func truncate(s string, n int) string {
	if len(s) > n {
		return s[:n]
	}
	return s
}

func elapsedMs(start time.Time) float64 {
	return float64(time.Since(start).Microseconds()) / 1000.0
}

func generativeTimeout(c *conf.Bootstrap) time.Duration {
	if c != nil && c.Engines != nil && c.Engines.GenerativeTimeout != nil {
		return c.Engines.GenerativeTimeout.AsDuration()
	}
	return 20 * time.Second
}
