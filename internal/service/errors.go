package service

import (
	stderrors "errors"
	"fmt"

	"BharatSetu/internal/biz"
	"BharatSetu/internal/data"

	"github.com/go-kratos/kratos/v2/errors"
)

// asTransportError converts flow and engine failures into kratos errors
// carrying the right HTTP status. A critical step failing because its
// engine is down or open-circuited is the orchestrator's unavailability
// (503); a timeout is a gateway timeout (504); an engine rejecting the
// forwarded payload keeps the upstream status; an engine crashing is a
// bad gateway (502).
func asTransportError(err error) error {
	if err == nil {
		return nil
	}

	if ke := new(errors.Error); stderrors.As(err, &ke) {
		return err
	}

	switch {
	case stderrors.Is(err, biz.ErrEmptyDocument):
		return errors.New(422, "EMPTY_DOCUMENT", "document contains no extractable text")
	case stderrors.Is(err, biz.ErrEmbeddingMismatch):
		return errors.New(422, "EMBEDDING_MISMATCH", "embedding count does not match chunk count")
	}

	step := ""
	if abort := new(biz.FlowAbortError); stderrors.As(err, &abort) {
		step = abort.Step
	}

	if ee := new(data.EngineError); stderrors.As(err, &ee) {
		msg := fmt.Sprintf("engine %s failed", ee.Engine)
		if step != "" {
			msg = fmt.Sprintf("step %s failed: engine %s unavailable", step, ee.Engine)
		}
		switch ee.Kind {
		case data.ErrKindCircuitOpen:
			return errors.New(503, "ENGINE_CIRCUIT_OPEN", msg)
		case data.ErrKindUnreachable:
			return errors.New(503, "ENGINE_UNREACHABLE", msg)
		case data.ErrKindTimeout:
			return errors.New(504, "ENGINE_TIMEOUT", msg)
		case data.ErrKindUpstreamClient:
			// Client rejections carry actionable detail from the engine,
			// so the truncated upstream message travels with the status.
			return errors.New(ee.Status, "ENGINE_REJECTED", fmt.Sprintf("engine %s rejected the request: %v", ee.Engine, ee.Err))
		case data.ErrKindUpstreamServer:
			return errors.New(502, "ENGINE_ERROR", msg)
		case data.ErrKindBadResponse:
			return errors.New(502, "ENGINE_BAD_RESPONSE", msg)
		}
	}

	return errors.New(500, "ORCHESTRATION_FAILED", "orchestration failed")
}

func badRequest(msg string) error {
	return errors.BadRequest("INVALID_ARGUMENT", msg)
}
