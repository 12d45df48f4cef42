// Package model holds the wire types shared between the service, biz,
// and data layers.
package model

// Circuit breaker states. Transitions follow the usual pattern:
// CLOSED → OPEN on repeated consecutive failures, OPEN → HALF_OPEN after
// the cooldown elapses, HALF_OPEN → CLOSED on a successful probe.
const (
	CircuitClosed   = "closed"
	CircuitOpen     = "open"
	CircuitHalfOpen = "half_open"
)

// CircuitSnapshot is a point-in-time view of one engine's breaker,
// safe to serialize for the status endpoint.
type CircuitSnapshot struct {
	State               string `json:"state"`
	ConsecutiveFailures int    `json:"consecutiveFailures"`
}
