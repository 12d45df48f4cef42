package model

import "time"

// AuditEventType defines audit event type constants.
// Every composite flow emits exactly one of these after it completes.
type AuditEventType string

const (
	// AuditEventRAGQuery is emitted after a grounded query flow
	AuditEventRAGQuery AuditEventType = "RAG_QUERY"

	// AuditEventUserOnboarded is emitted after an onboarding flow
	AuditEventUserOnboarded AuditEventType = "USER_ONBOARDED"

	// AuditEventEligibilityChecked is emitted after an eligibility check flow
	AuditEventEligibilityChecked AuditEventType = "ELIGIBILITY_CHECKED"

	// AuditEventPolicyIngested is emitted after a policy ingestion flow
	AuditEventPolicyIngested AuditEventType = "POLICY_INGESTED"

	// AuditEventVoiceQuery is emitted after a voice query flow
	AuditEventVoiceQuery AuditEventType = "VOICE_QUERY"

	// AuditEventSimulationRun is emitted after a what-if simulation flow
	AuditEventSimulationRun AuditEventType = "SIMULATION_RUN"
)

// String returns the string representation of AuditEventType
func (e AuditEventType) String() string {
	return string(e)
}

// AuditRecord is a write-once, fire-and-forget audit event. It is
// dual-written to the raw event store and the analytics warehouse;
// there is no read path in the gateway.
type AuditRecord struct {
	EventType     AuditEventType
	CorrelationID string
	UserID        string
	Payload       map[string]any
	Timestamp     time.Time
}
