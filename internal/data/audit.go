package data

import (
	"context"
	"net/http"
	"time"

	"BharatSetu/internal/conf"
	"BharatSetu/internal/model"

	"github.com/go-kratos/kratos/v2/log"
)

// AuditEmitter ships audit events to the raw data store and the
// analytics warehouse without ever blocking or failing the request that
// produced them. Events go through a buffered channel drained by a
// single background goroutine; a full buffer drops the event with a
// warning rather than applying backpressure.
type AuditEmitter struct {
	engines *EngineClient
	events  chan *model.AuditRecord
	logger  *log.Helper
}

// NewAuditEmitter creates the emitter and starts its drain goroutine.
func NewAuditEmitter(c *conf.Bootstrap, engines *EngineClient, logger log.Logger) *AuditEmitter {
	queueSize := 1000
	if c != nil && c.Orchestrator != nil && c.Orchestrator.Audit != nil && c.Orchestrator.Audit.QueueSize > 0 {
		queueSize = int(c.Orchestrator.Audit.QueueSize)
	}

	ae := &AuditEmitter{
		engines: engines,
		events:  make(chan *model.AuditRecord, queueSize),
		logger:  log.NewHelper(logger),
	}

	go ae.start()

	return ae
}

// Emit queues an audit event. The timestamp is stamped here so queue
// latency never skews it.
func (a *AuditEmitter) Emit(eventType model.AuditEventType, correlationID, userID string, payload map[string]any) {
	record := &model.AuditRecord{
		EventType:     eventType,
		CorrelationID: correlationID,
		UserID:        userID,
		Payload:       payload,
		Timestamp:     time.Now().UTC(),
	}

	select {
	case a.events <- record:
	default:
		a.logger.Warnw("audit queue full, dropping event",
			"event_type", eventType,
			"correlation_id", correlationID,
			"type", "audit")
	}
}

// start drains the event channel. Sink failures are logged and
// swallowed; audit delivery is best-effort and must never surface into
// a user-facing flow.
func (a *AuditEmitter) start() {
	for record := range a.events {
		a.deliver(record)
	}
}

func (a *AuditEmitter) deliver(record *model.AuditRecord) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// The two sinks take different shapes: the raw data store records the
	// full payload attributed to this service, the warehouse takes the
	// same payload as event properties.
	auditBody := map[string]any{
		"event_type":     record.EventType,
		"source_engine":  "orchestrator",
		"user_id":        record.UserID,
		"payload":        record.Payload,
		"correlation_id": record.CorrelationID,
		"timestamp":      record.Timestamp.Format(time.RFC3339Nano),
	}
	analyticsBody := map[string]any{
		"event_type": record.EventType,
		"user_id":    record.UserID,
		"properties": record.Payload,
	}

	if _, err := a.engines.Call(ctx, "raw_data_store", http.MethodPost, "/raw-data/events", auditBody, 0); err != nil {
		a.logger.Warnw("failed to write audit event to raw data store",
			"event_type", record.EventType,
			"correlation_id", record.CorrelationID,
			"error", err,
			"type", "audit")
	}

	if _, err := a.engines.Call(ctx, "analytics_warehouse", http.MethodPost, "/analytics/event", analyticsBody, 0); err != nil {
		a.logger.Warnw("failed to write audit event to analytics warehouse",
			"event_type", record.EventType,
			"correlation_id", record.CorrelationID,
			"error", err,
			"type", "audit")
	}

	a.logger.Debugw("audit event delivered",
		"event_type", record.EventType,
		"correlation_id", record.CorrelationID,
		"type", "audit")
}
