package biz

import (
	"context"
	"errors"
	"fmt"
	"time"

	"BharatSetu/internal/conf"
	"BharatSetu/internal/model"

	"github.com/go-kratos/kratos/v2/log"

	pkglog "BharatSetu/pkg/log"
)

// Ingestion pipeline errors surfaced to the caller as client errors
// rather than upstream failures.
var (
	ErrEmptyDocument     = errors.New("fetched document has no text content")
	ErrEmbeddingMismatch = errors.New("embedding count does not match chunk count")
)

// IngestionUsecase runs the policy ingestion pipeline: fetch, parse,
// chunk, embed, upsert, tag. Every stage consumes the previous stage's
// output, so every stage is critical; a broken stage makes the rest of
// the pipeline meaningless and aborts the flow.
type IngestionUsecase struct {
	flows      *FlowExecutor
	audit      AuditSink
	genTimeout time.Duration
	logger     *log.Helper
}

// NewIngestionUsecase creates the ingestion pipeline.
func NewIngestionUsecase(c *conf.Bootstrap, flows *FlowExecutor, audit AuditSink, logger log.Logger) *IngestionUsecase {
	return &IngestionUsecase{
		flows:      flows,
		audit:      audit,
		genTimeout: generativeTimeout(c),
		logger:     log.NewHelper(logger),
	}
}

// Ingest executes the pipeline. Callers supply either a source URL to
// fetch or the raw document text directly.
func (uc *IngestionUsecase) Ingest(ctx context.Context, req *model.IngestPolicyRequest) (*model.IngestPolicyResponse, error) {
	start := time.Now()

	fc, err := uc.flows.Run(ctx, "policy_ingestion", []Group{
		Seq(Step{
			Name:     "policy_fetch",
			Engine:   "policy_fetching",
			Path:     "/schemes/fetch",
			Timeout:  30 * time.Second,
			Critical: true,
			When: func(_ *FlowContext) bool {
				return req.RawText == ""
			},
			Payload: func(_ *FlowContext) map[string]any {
				return map[string]any{
					"source_url":  req.URL,
					"source_type": req.SourceMeta["sourceType"],
				}
			},
		}),
	})
	if err != nil {
		return nil, err
	}

	if req.RawText != "" {
		fc.Seed("policy_fetch", map[string]any{
			"document_id": "doc_" + pkglog.GenerateRequestID(),
			"text":        req.RawText,
			"title":       stringOr(req.SourceMeta["title"], req.URL),
		})
	}

	docID := firstString(fc, "policy_fetch", "document_id", "id")
	policyID := firstString(fc, "policy_fetch", "policy_id", "scheme_id")
	if policyID == "" {
		policyID = docID
	}
	text := firstString(fc, "policy_fetch", "text", "content")
	title := fc.String("policy_fetch", "title")
	if title == "" {
		title = req.URL
	}

	if text == "" {
		return nil, ErrEmptyDocument
	}

	if err := uc.flows.RunOn(ctx, fc, []Group{
		Seq(Step{
			Name:     "document_parsing",
			Engine:   "doc_understanding",
			Path:     "/documents/parse",
			Timeout:  uc.genTimeout,
			Critical: true,
			Payload: func(_ *FlowContext) map[string]any {
				return map[string]any{
					"document_id": docID,
					"policy_id":   policyID,
					"title":       title,
					"text":        text,
				}
			},
		}),
		Seq(Step{
			Name:     "chunking",
			Engine:   "chunks",
			Path:     "/chunks/create",
			Critical: true,
			Payload: func(_ *FlowContext) map[string]any {
				return map[string]any{
					"document_id": docID,
					"policy_id":   policyID,
					"text":        text,
					"strategy":    "sentence",
					"chunk_size":  512,
					"overlap":     64,
					"metadata":    map[string]any{"title": title, "source_url": req.URL},
				}
			},
		}),
		Seq(Step{
			Name:     "embedding",
			Engine:   "neural_network",
			Path:     "/ai/embeddings",
			Timeout:  uc.genTimeout,
			Critical: true,
			Payload: func(fc *FlowContext) map[string]any {
				texts := []string{}
				for _, c := range fc.List("chunking", "chunks") {
					if m, ok := c.(map[string]any); ok {
						if content, ok := m["content"].(string); ok {
							texts = append(texts, content)
						}
					}
				}
				return map[string]any{"texts": texts}
			},
		}),
	}); err != nil {
		return nil, err
	}

	chunks := fc.List("chunking", "chunks")
	embeddings := fc.List("embedding", "embeddings")
	if len(chunks) == 0 || len(embeddings) != len(chunks) {
		uc.logger.Errorw("ingestion pipeline produced inconsistent stages",
			"document_id", docID,
			"chunks", len(chunks),
			"embeddings", len(embeddings),
			"type", "flow")
		return nil, ErrEmbeddingMismatch
	}

	vectors := make([]map[string]any, 0, len(chunks))
	for i, c := range chunks {
		chunk, _ := c.(map[string]any)
		vectors = append(vectors, map[string]any{
			"chunk_id":    stringOr(chunk["chunk_id"], fmt.Sprintf("%s_%d", docID, i)),
			"document_id": docID,
			"policy_id":   policyID,
			"content":     chunk["content"],
			"embedding":   embeddings[i],
			"namespace":   "policies",
			"metadata": map[string]any{
				"title":       title,
				"chunk_index": i,
				"source_url":  req.URL,
			},
		})
	}

	if err := uc.flows.RunOn(ctx, fc, []Group{
		Seq(Step{
			Name:     "vector_upsert",
			Engine:   "vector_database",
			Path:     "/vectors/upsert/batch",
			Critical: true,
			Payload: func(_ *FlowContext) map[string]any {
				return map[string]any{"vectors": vectors}
			},
		}),
		Seq(Step{
			Name:     "metadata_tagging",
			Engine:   "metadata",
			Path:     "/metadata/process",
			Critical: true,
			Payload: func(fc *FlowContext) map[string]any {
				return map[string]any{
					"user_id":    "policy:" + policyID,
					"name":       title,
					"state":      fc.Value("document_parsing", "state"),
					"occupation": fc.Value("document_parsing", "scheme_type"),
				}
			},
		}),
	}); err != nil {
		return nil, err
	}

	uc.audit.Emit(model.AuditEventPolicyIngested, pkglog.GetRequestID(ctx), "system", map[string]any{
		"document_id":      docID,
		"policy_id":        policyID,
		"title":            title,
		"chunks_created":   len(chunks),
		"vectors_upserted": len(vectors),
	})

	return &model.IngestPolicyResponse{
		DocumentID: docID,
		PolicyID:   policyID,
		Title:      title,
		ChunkCount: len(chunks),
		Indexed:    true,
		LatencyMs:  elapsedMs(start),
	}, nil
}

func firstString(fc *FlowContext, step string, keys ...string) string {
	for _, k := range keys {
		if s := fc.String(step, k); s != "" {
			return s
		}
	}
	return ""
}

func stringOr(v any, fallback string) string {
	if s, ok := v.(string); ok && s != "" {
		return s
	}
	return fallback
}
