package data

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"BharatSetu/internal/conf"
	"BharatSetu/internal/model"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/types/known/durationpb"
)

func newTestAuditEmitter(t *testing.T, urls map[string]string, queueSize int32) *AuditEmitter {
	t.Helper()

	c := &conf.Bootstrap{
		Engines: &conf.Engines{
			Urls:        urls,
			CallTimeout: durationpb.New(2 * time.Second),
		},
		Orchestrator: &conf.Orchestrator{
			Breaker: &conf.Orchestrator_Breaker{
				FailureThreshold: 5,
				Cooldown:         durationpb.New(30 * time.Second),
			},
			Audit: &conf.Orchestrator_Audit{QueueSize: queueSize},
		},
	}

	logger := log.NewStdLogger(os.Stdout)
	engines := NewEngineClient(c, NewCircuitBreakerRegistry(c, logger), logger)
	return NewAuditEmitter(c, engines, logger)
}

func TestAuditEmit_DeliversToBothSinks(t *testing.T) {
	type received struct {
		path string
		body map[string]any
	}
	got := make(chan received, 2)

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		var body map[string]any
		_ = json.Unmarshal(raw, &body)
		got <- received{path: r.URL.Path, body: body}
		_, _ = w.Write([]byte(`{"success": true, "data": {}}`))
	})

	rawStore := httptest.NewServer(handler)
	defer rawStore.Close()
	warehouse := httptest.NewServer(handler)
	defer warehouse.Close()

	emitter := newTestAuditEmitter(t, map[string]string{
		"raw_data_store":      rawStore.URL,
		"analytics_warehouse": warehouse.URL,
	}, 16)

	emitter.Emit(model.AuditEventRAGQuery, "corr123456", "user-1", map[string]any{"intent": "greeting"})

	bodies := map[string]map[string]any{}
	for i := 0; i < 2; i++ {
		select {
		case r := <-got:
			bodies[r.path] = r.body
		case <-time.After(3 * time.Second):
			t.Fatal("timed out waiting for audit delivery")
		}
	}

	audit := bodies["/raw-data/events"]
	require.NotNil(t, audit)
	assert.Equal(t, "RAG_QUERY", audit["event_type"])
	assert.Equal(t, "orchestrator", audit["source_engine"])
	assert.Equal(t, "user-1", audit["user_id"])
	assert.Equal(t, map[string]any{"intent": "greeting"}, audit["payload"])
	assert.Equal(t, "corr123456", audit["correlation_id"])
	assert.NotEmpty(t, audit["timestamp"])

	analytics := bodies["/analytics/event"]
	require.NotNil(t, analytics)
	assert.Equal(t, "RAG_QUERY", analytics["event_type"])
	assert.Equal(t, "user-1", analytics["user_id"])
	assert.Equal(t, map[string]any{"intent": "greeting"}, analytics["properties"])
	assert.NotContains(t, analytics, "payload")
	assert.NotContains(t, analytics, "source_engine")
}

func TestAuditEmit_SinkFailureDoesNotStopSecondSink(t *testing.T) {
	delivered := make(chan string, 1)

	rawStore := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusInternalServerError)
	}))
	defer rawStore.Close()

	warehouse := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		delivered <- r.URL.Path
		_, _ = w.Write([]byte(`{}`))
	}))
	defer warehouse.Close()

	emitter := newTestAuditEmitter(t, map[string]string{
		"raw_data_store":      rawStore.URL,
		"analytics_warehouse": warehouse.URL,
	}, 16)

	emitter.Emit(model.AuditEventUserOnboarded, "corr1", "user-2", nil)

	select {
	case path := <-delivered:
		assert.Equal(t, "/analytics/event", path)
	case <-time.After(3 * time.Second):
		t.Fatal("analytics sink never received the event")
	}
}

func TestAuditEmit_FullQueueDropsWithoutBlocking(t *testing.T) {
	blocked := make(chan struct{})
	release := make(chan struct{})

	slow := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case blocked <- struct{}{}:
		default:
		}
		<-release
		_, _ = w.Write([]byte(`{}`))
	}))
	defer slow.Close()
	defer close(release)

	emitter := newTestAuditEmitter(t, map[string]string{
		"raw_data_store":      slow.URL,
		"analytics_warehouse": slow.URL,
	}, 1)

	// First event occupies the drain goroutine
	emitter.Emit(model.AuditEventVoiceQuery, "c1", "", nil)
	select {
	case <-blocked:
	case <-time.After(3 * time.Second):
		t.Fatal("drain goroutine never started delivering")
	}

	// Second fills the queue, third is dropped. Neither may block.
	done := make(chan struct{})
	go func() {
		emitter.Emit(model.AuditEventVoiceQuery, "c2", "", nil)
		emitter.Emit(model.AuditEventVoiceQuery, "c3", "", nil)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Emit blocked on a full queue")
	}
}

func TestAuditEmit_StampsTimestamp(t *testing.T) {
	emitter := newTestAuditEmitter(t, map[string]string{}, 16)

	before := time.Now().UTC()
	emitter.Emit(model.AuditEventSimulationRun, "c1", "u1", nil)

	select {
	case record := <-emitter.events:
		require.NotNil(t, record)
		assert.False(t, record.Timestamp.Before(before.Add(-time.Second)))
		assert.Equal(t, model.AuditEventSimulationRun, record.EventType)
	case <-time.After(time.Second):
		// Drain goroutine may have consumed it already, which is fine;
		// the delivery tests cover the payload contents.
	}
}
