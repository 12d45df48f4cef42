package data

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"BharatSetu/internal/conf"
	"BharatSetu/internal/model"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/types/known/durationpb"

	pkglog "BharatSetu/pkg/log"
)

func newTestEngineClient(t *testing.T, urls map[string]string) *EngineClient {
	t.Helper()

	c := &conf.Bootstrap{
		Engines: &conf.Engines{
			Urls:        urls,
			CallTimeout: durationpb.New(2 * time.Second),
		},
		Orchestrator: &conf.Orchestrator{
			Breaker: &conf.Orchestrator_Breaker{
				FailureThreshold: 3,
				Cooldown:         durationpb.New(30 * time.Second),
			},
		},
	}

	logger := log.NewStdLogger(os.Stdout)
	breakers := NewCircuitBreakerRegistry(c, logger)
	return NewEngineClient(c, breakers, logger)
}

func TestEngineCall_UnwrapsEnvelope(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/classify", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"success": true, "data": {"intent": "eligibility_check", "confidence": 0.92}}`))
	}))
	defer srv.Close()

	ec := newTestEngineClient(t, map[string]string{"neural_network": srv.URL})

	out, err := ec.Call(context.Background(), "neural_network", http.MethodPost, "/classify", map[string]any{"text": "am I eligible"}, 0)
	require.NoError(t, err)
	assert.Equal(t, "eligibility_check", out["intent"])
	assert.Equal(t, 0.92, out["confidence"])
}

func TestEngineCall_PassthroughWithoutEnvelope(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"status": "ok"}`))
	}))
	defer srv.Close()

	ec := newTestEngineClient(t, map[string]string{"metadata": srv.URL})

	out, err := ec.Call(context.Background(), "metadata", http.MethodGet, "/schemes", nil, 0)
	require.NoError(t, err)
	assert.Equal(t, "ok", out["status"])
}

func TestEngineCall_ForwardsRequestID(t *testing.T) {
	var gotRequestID atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotRequestID.Store(r.Header.Get("X-Request-ID"))
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	ec := newTestEngineClient(t, map[string]string{"chunks": srv.URL})

	ctx := pkglog.WithRequestContext(context.Background(), "req1234567", "", "")
	_, err := ec.Call(ctx, "chunks", http.MethodPost, "/chunk", map[string]any{"text": "x"}, 0)
	require.NoError(t, err)
	assert.Equal(t, "req1234567", gotRequestID.Load())
}

func TestEngineCall_ClientErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"success": false, "error": "bad request"}`, http.StatusUnprocessableEntity)
	}))
	defer srv.Close()

	ec := newTestEngineClient(t, map[string]string{"eligibility_rules": srv.URL})

	_, err := ec.Call(context.Background(), "eligibility_rules", http.MethodPost, "/evaluate", map[string]any{}, 0)
	require.Error(t, err)

	var engineErr *EngineError
	require.ErrorAs(t, err, &engineErr)
	assert.Equal(t, ErrKindUpstreamClient, engineErr.Kind)
	assert.Equal(t, http.StatusUnprocessableEntity, engineErr.Status)

	// A 4xx still counts against the breaker
	assert.Equal(t, 1, ec.Breakers().Status()["eligibility_rules"].ConsecutiveFailures)
}

func TestEngineCall_ServerErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	ec := newTestEngineClient(t, map[string]string{"simulation": srv.URL})

	_, err := ec.Call(context.Background(), "simulation", http.MethodPost, "/simulate", map[string]any{}, 0)
	require.Error(t, err)

	var engineErr *EngineError
	require.ErrorAs(t, err, &engineErr)
	assert.Equal(t, ErrKindUpstreamServer, engineErr.Kind)
	assert.Equal(t, http.StatusInternalServerError, engineErr.Status)
}

func TestEngineCall_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(300 * time.Millisecond)
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	ec := newTestEngineClient(t, map[string]string{"doc_understanding": srv.URL})

	_, err := ec.Call(context.Background(), "doc_understanding", http.MethodPost, "/parse", map[string]any{}, 50*time.Millisecond)
	require.Error(t, err)

	var engineErr *EngineError
	require.ErrorAs(t, err, &engineErr)
	assert.Equal(t, ErrKindTimeout, engineErr.Kind)
	assert.Equal(t, 1, ec.Breakers().Status()["doc_understanding"].ConsecutiveFailures)
}

func TestEngineCall_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	ec := newTestEngineClient(t, map[string]string{"identity": url})

	_, err := ec.Call(context.Background(), "identity", http.MethodPost, "/verify", map[string]any{}, 0)
	require.Error(t, err)

	var engineErr *EngineError
	require.ErrorAs(t, err, &engineErr)
	assert.Equal(t, ErrKindUnreachable, engineErr.Kind)
}

func TestEngineCall_UnknownEngine(t *testing.T) {
	ec := newTestEngineClient(t, map[string]string{})

	_, err := ec.Call(context.Background(), "nonexistent", http.MethodGet, "/x", nil, 0)
	require.Error(t, err)

	var engineErr *EngineError
	require.ErrorAs(t, err, &engineErr)
	assert.Equal(t, ErrKindUnreachable, engineErr.Kind)
}

func TestEngineCall_OpenCircuitShortCircuits(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "down", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	ec := newTestEngineClient(t, map[string]string{"trust_scoring": srv.URL})

	// Threshold is 3 in the test config
	for i := 0; i < 3; i++ {
		_, err := ec.Call(context.Background(), "trust_scoring", http.MethodPost, "/score", map[string]any{}, 0)
		require.Error(t, err)
	}
	assert.Equal(t, int32(3), calls.Load())
	assert.Equal(t, model.CircuitOpen, ec.Breakers().Status()["trust_scoring"].State)

	// Further calls are rejected without touching the engine
	_, err := ec.Call(context.Background(), "trust_scoring", http.MethodPost, "/score", map[string]any{}, 0)
	require.Error(t, err)

	var engineErr *EngineError
	require.ErrorAs(t, err, &engineErr)
	assert.Equal(t, ErrKindCircuitOpen, engineErr.Kind)
	assert.Equal(t, int32(3), calls.Load())
}

func TestEngineCall_SuccessClosesBreaker(t *testing.T) {
	var fail atomic.Bool
	fail.Store(true)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if fail.Load() {
			http.Error(w, "down", http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(`{"success": true, "data": {}}`))
	}))
	defer srv.Close()

	ec := newTestEngineClient(t, map[string]string{"deadline_monitoring": srv.URL})

	_, err := ec.Call(context.Background(), "deadline_monitoring", http.MethodGet, "/deadlines", nil, 0)
	require.Error(t, err)
	assert.Equal(t, 1, ec.Breakers().Status()["deadline_monitoring"].ConsecutiveFailures)

	fail.Store(false)
	_, err = ec.Call(context.Background(), "deadline_monitoring", http.MethodGet, "/deadlines", nil, 0)
	require.NoError(t, err)
	assert.Equal(t, 0, ec.Breakers().Status()["deadline_monitoring"].ConsecutiveFailures)
}

func TestEngineProbe(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/health", r.URL.Path)
		_, _ = w.Write([]byte(`{"status": "healthy"}`))
	}))
	defer srv.Close()

	ec := newTestEngineClient(t, map[string]string{"speech_interface": srv.URL})

	latency, err := ec.Probe(context.Background(), "speech_interface", time.Second)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, latency, int64(0))
}

func TestEngineProbe_BypassesOpenCircuit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"status": "healthy"}`))
	}))
	defer srv.Close()

	ec := newTestEngineClient(t, map[string]string{"policy_fetching": srv.URL})
	for i := 0; i < 3; i++ {
		ec.Breakers().RecordFailure("policy_fetching")
	}
	require.False(t, ec.Breakers().AllowRequest("policy_fetching"))

	_, err := ec.Probe(context.Background(), "policy_fetching", time.Second)
	assert.NoError(t, err)
}

func TestEngineProbe_UnhealthyStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "degraded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	ec := newTestEngineClient(t, map[string]string{"json_user_info": srv.URL})

	_, err := ec.Probe(context.Background(), "json_user_info", time.Second)
	assert.Error(t, err)
}
