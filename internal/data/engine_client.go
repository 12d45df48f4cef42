package data

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"BharatSetu/internal/conf"

	"github.com/go-kratos/kratos/v2/log"

	pkglog "BharatSetu/pkg/log"
)

// Engine error kinds, used by the service layer to pick the HTTP status
// returned to the caller.
const (
	ErrKindCircuitOpen    = "circuit_open"
	ErrKindUnreachable    = "unreachable"
	ErrKindTimeout        = "timeout"
	ErrKindUpstreamClient = "upstream_client"
	ErrKindUpstreamServer = "upstream_server"
	ErrKindBadResponse    = "bad_response"
)

// EngineError describes a failed downstream engine call.
type EngineError struct {
	Engine string
	Kind   string
	// Status is the upstream HTTP status code, zero when the call never
	// produced a response.
	Status int
	Err    error
}

func (e *EngineError) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("engine %s: %s (status %d): %v", e.Engine, e.Kind, e.Status, e.Err)
	}
	return fmt.Sprintf("engine %s: %s: %v", e.Engine, e.Kind, e.Err)
}

func (e *EngineError) Unwrap() error {
	return e.Err
}

// EngineClient invokes downstream engines over HTTP through the circuit
// breaker registry. It never retries; retry policy belongs to the flows
// that decide whether a step is critical or degradable.
type EngineClient struct {
	urls        map[string]string
	client      *http.Client
	breakers    *CircuitBreakerRegistry
	callTimeout time.Duration
	logger      *log.Helper
}

// NewEngineClient creates the shared engine invoker. The http.Client
// carries no timeout of its own; every call gets a per-call context
// deadline instead.
func NewEngineClient(c *conf.Bootstrap, breakers *CircuitBreakerRegistry, logger log.Logger) *EngineClient {
	callTimeout := 15 * time.Second
	if c != nil && c.Engines != nil && c.Engines.CallTimeout != nil {
		callTimeout = c.Engines.CallTimeout.AsDuration()
	}

	var urls map[string]string
	if c != nil && c.Engines != nil {
		urls = c.Engines.Urls
	}

	return &EngineClient{
		urls: urls,
		client: &http.Client{
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		breakers:    breakers,
		callTimeout: callTimeout,
		logger:      log.NewHelper(logger),
	}
}

// URLs returns the configured engine base URLs keyed by engine name.
func (ec *EngineClient) URLs() map[string]string {
	return ec.urls
}

// Breakers returns the circuit breaker registry backing this client.
func (ec *EngineClient) Breakers() *CircuitBreakerRegistry {
	return ec.breakers
}

// Call invokes an engine endpoint and returns the decoded response body.
// Engines wrap results in a {"success": bool, "data": {...}} envelope;
// Call unwraps the data object when the envelope is present. A zero
// timeout falls back to the configured default. Every non-2xx outcome
// counts as a breaker failure for the engine.
func (ec *EngineClient) Call(ctx context.Context, engine, method, path string, payload map[string]any, timeout time.Duration) (map[string]any, error) {
	base, ok := ec.urls[engine]
	if !ok {
		return nil, &EngineError{Engine: engine, Kind: ErrKindUnreachable, Err: fmt.Errorf("unknown engine %q", engine)}
	}

	if !ec.breakers.AllowRequest(engine) {
		ec.logger.Warnw("request rejected, circuit open",
			"engine", engine,
			"path", path,
			"type", "circuit")
		return nil, &EngineError{Engine: engine, Kind: ErrKindCircuitOpen, Err: errors.New("circuit breaker open")}
	}

	if timeout <= 0 {
		timeout = ec.callTimeout
	}
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, &EngineError{Engine: engine, Kind: ErrKindBadResponse, Err: fmt.Errorf("marshal payload: %w", err)}
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(callCtx, method, base+path, body)
	if err != nil {
		return nil, &EngineError{Engine: engine, Kind: ErrKindUnreachable, Err: err}
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if rid := pkglog.GetRequestID(ctx); rid != "unknown" {
		req.Header.Set("X-Request-ID", rid)
	}

	start := time.Now()
	resp, err := ec.client.Do(req)
	if err != nil {
		ec.breakers.RecordFailure(engine)
		kind := ErrKindUnreachable
		if errors.Is(err, context.DeadlineExceeded) || callCtx.Err() == context.DeadlineExceeded {
			kind = ErrKindTimeout
		}
		ec.logger.Warnw("engine call failed",
			"engine", engine,
			"path", path,
			"kind", kind,
			"duration_ms", time.Since(start).Milliseconds(),
			"error", err,
			"type", "engine")
		return nil, &EngineError{Engine: engine, Kind: kind, Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		ec.breakers.RecordFailure(engine)
		return nil, &EngineError{Engine: engine, Kind: ErrKindUnreachable, Err: fmt.Errorf("read response: %w", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		ec.breakers.RecordFailure(engine)
		kind := ErrKindUpstreamServer
		if resp.StatusCode >= 400 && resp.StatusCode < 500 {
			kind = ErrKindUpstreamClient
		}
		ec.logger.Warnw("engine returned error status",
			"engine", engine,
			"path", path,
			"status", resp.StatusCode,
			"duration_ms", time.Since(start).Milliseconds(),
			"type", "engine")
		return nil, &EngineError{
			Engine: engine,
			Kind:   kind,
			Status: resp.StatusCode,
			Err:    fmt.Errorf("upstream returned %d: %s", resp.StatusCode, truncateBody(raw)),
		}
	}

	ec.breakers.RecordSuccess(engine)

	var decoded map[string]any
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &decoded); err != nil {
			return nil, &EngineError{Engine: engine, Kind: ErrKindBadResponse, Status: resp.StatusCode, Err: fmt.Errorf("decode response: %w", err)}
		}
	}

	ec.logger.Debugw("engine call succeeded",
		"engine", engine,
		"path", path,
		"status", resp.StatusCode,
		"duration_ms", time.Since(start).Milliseconds(),
		"type", "engine")

	return unwrapEnvelope(decoded), nil
}

// Probe checks an engine's health endpoint. Probes bypass the circuit
// breaker so that a quiet engine with an open breaker can still be
// observed recovering.
func (ec *EngineClient) Probe(ctx context.Context, engine string, timeout time.Duration) (int64, error) {
	base, ok := ec.urls[engine]
	if !ok {
		return 0, fmt.Errorf("unknown engine %q", engine)
	}

	probeCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(probeCtx, http.MethodGet, base+"/health", nil)
	if err != nil {
		return 0, err
	}

	start := time.Now()
	resp, err := ec.client.Do(req)
	latency := time.Since(start).Milliseconds()
	if err != nil {
		return latency, err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return latency, fmt.Errorf("health endpoint returned %d", resp.StatusCode)
	}
	return latency, nil
}

// unwrapEnvelope extracts the data object from the standard engine
// response envelope. Responses without the envelope pass through as-is.
func unwrapEnvelope(decoded map[string]any) map[string]any {
	if decoded == nil {
		return map[string]any{}
	}
	if _, ok := decoded["success"]; !ok {
		return decoded
	}
	if data, ok := decoded["data"].(map[string]any); ok {
		return data
	}
	return decoded
}

// truncateBody keeps error messages readable when an engine returns a
// large error page.
func truncateBody(raw []byte) string {
	const max = 256
	if len(raw) > max {
		return string(raw[:max]) + "..."
	}
	return string(raw)
}
