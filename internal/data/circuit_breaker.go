package data

import (
	"sync"
	"time"

	"BharatSetu/internal/conf"
	"BharatSetu/internal/model"

	"github.com/go-kratos/kratos/v2/log"
)

// breaker holds the per-engine state machine. All fields are guarded by mu.
type breaker struct {
	mu                  sync.Mutex
	state               string
	consecutiveFailures int
	openedAt            time.Time
}

// CircuitBreakerRegistry tracks one breaker per downstream engine.
// State is process-local and in-memory only; a restart resets every
// breaker to closed, which is acceptable because the registry exists to
// protect this process from hammering dead dependencies, not to share
// failure knowledge across replicas.
type CircuitBreakerRegistry struct {
	mu       sync.RWMutex
	breakers map[string]*breaker

	failureThreshold int
	cooldown         time.Duration

	// now is injectable for deterministic state-transition tests.
	now func() time.Time

	logger *log.Helper
}

// NewCircuitBreakerRegistry creates a registry using the configured
// failure threshold and open-state cooldown.
func NewCircuitBreakerRegistry(c *conf.Bootstrap, logger log.Logger) *CircuitBreakerRegistry {
	threshold := 5
	cooldown := 30 * time.Second
	if c != nil && c.Orchestrator != nil && c.Orchestrator.Breaker != nil {
		if c.Orchestrator.Breaker.FailureThreshold > 0 {
			threshold = int(c.Orchestrator.Breaker.FailureThreshold)
		}
		if c.Orchestrator.Breaker.Cooldown != nil {
			cooldown = c.Orchestrator.Breaker.Cooldown.AsDuration()
		}
	}

	return &CircuitBreakerRegistry{
		breakers:         make(map[string]*breaker),
		failureThreshold: threshold,
		cooldown:         cooldown,
		now:              time.Now,
		logger:           log.NewHelper(logger),
	}
}

// get returns the breaker for an engine, creating it in the closed state
// on first use.
func (r *CircuitBreakerRegistry) get(engine string) *breaker {
	r.mu.RLock()
	b, ok := r.breakers[engine]
	r.mu.RUnlock()
	if ok {
		return b
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if b, ok = r.breakers[engine]; ok {
		return b
	}
	b = &breaker{state: model.CircuitClosed}
	r.breakers[engine] = b
	return b
}

// AllowRequest reports whether a call to the engine may proceed.
// An open breaker whose cooldown has elapsed transitions to half-open
// and admits exactly this one probe request; the cooldown check happens
// lazily here, there is no background timer.
func (r *CircuitBreakerRegistry) AllowRequest(engine string) bool {
	b := r.get(engine)
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case model.CircuitClosed, model.CircuitHalfOpen:
		return true
	case model.CircuitOpen:
		if r.now().Sub(b.openedAt) >= r.cooldown {
			b.state = model.CircuitHalfOpen
			r.logger.Infow("circuit half-open, admitting probe request",
				"engine", engine,
				"type", "circuit")
			return true
		}
		return false
	default:
		return true
	}
}

// RecordSuccess resets the failure count and closes the breaker. A
// successful probe in half-open fully closes the circuit.
func (r *CircuitBreakerRegistry) RecordSuccess(engine string) {
	b := r.get(engine)
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == model.CircuitHalfOpen {
		r.logger.Infow("circuit closed after successful probe",
			"engine", engine,
			"type", "circuit")
	}
	b.state = model.CircuitClosed
	b.consecutiveFailures = 0
}

// RecordFailure increments the consecutive failure count. Reaching the
// threshold opens the breaker; any failure in half-open reopens it
// immediately with a fresh cooldown window.
func (r *CircuitBreakerRegistry) RecordFailure(engine string) {
	b := r.get(engine)
	b.mu.Lock()
	defer b.mu.Unlock()

	b.consecutiveFailures++

	switch b.state {
	case model.CircuitHalfOpen:
		b.state = model.CircuitOpen
		b.openedAt = r.now()
		r.logger.Warnw("circuit reopened, probe request failed",
			"engine", engine,
			"consecutive_failures", b.consecutiveFailures,
			"type", "circuit")
	case model.CircuitClosed:
		if b.consecutiveFailures >= r.failureThreshold {
			b.state = model.CircuitOpen
			b.openedAt = r.now()
			r.logger.Warnw("circuit opened, failure threshold reached",
				"engine", engine,
				"consecutive_failures", b.consecutiveFailures,
				"threshold", r.failureThreshold,
				"type", "circuit")
		}
	}
}

// Status returns a point-in-time snapshot of every breaker the registry
// has seen. Engines that were never called do not appear.
func (r *CircuitBreakerRegistry) Status() map[string]model.CircuitSnapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string]model.CircuitSnapshot, len(r.breakers))
	for engine, b := range r.breakers {
		b.mu.Lock()
		out[engine] = model.CircuitSnapshot{
			State:               b.state,
			ConsecutiveFailures: b.consecutiveFailures,
		}
		b.mu.Unlock()
	}
	return out
}
