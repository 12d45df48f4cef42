package biz

import (
	"context"
	"testing"

	"BharatSetu/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newVoiceFixture() (*VoiceUsecase, *fakeInvoker, *fakeAudit) {
	inv := newFakeInvoker()
	audit := &fakeAudit{}
	uc := NewVoiceUsecase(nil, NewFlowExecutor(inv, testLogger()), audit, testLogger())
	return uc, inv, audit
}

func TestVoiceQuery_EligibilityIntent(t *testing.T) {
	uc, inv, audit := newVoiceFixture()

	inv.respond("neural_network", "/ai/intent", map[string]any{"intent": "eligibility", "confidence": 0.95})
	inv.respond("eligibility_rules", "/eligibility/check", map[string]any{
		"eligible": 3.0, "total_schemes_checked": 10.0,
	})
	inv.respond("speech_interface", "/speech/tts", map[string]any{"session_id": "a1", "audio_available": true})

	resp, err := uc.Query(context.Background(), &model.VoiceQueryRequest{Text: "kya main patra hoon", UserID: "u1", Language: "en"})
	require.NoError(t, err)

	assert.Equal(t, "eligibility", resp.Intent)
	assert.Equal(t, "You are eligible for 3 schemes. Total schemes checked: 10.", resp.Answer)
	assert.Equal(t, "a1", resp.AudioRef)
	assert.Empty(t, resp.Degraded)

	// Exactly one branch ran
	assert.Equal(t, 1, inv.callCount("eligibility_rules", "/eligibility/check"))
	assert.Equal(t, 0, inv.callCount("neural_network", "/ai/chat"))
	assert.Equal(t, 0, inv.callCount("deadline_monitoring", "/deadlines/check"))

	events := audit.recorded()
	require.Len(t, events, 1)
	assert.Equal(t, model.AuditEventVoiceQuery, events[0].EventType)
	assert.Equal(t, "eligibility", events[0].Payload["intent"])
}

func TestVoiceQuery_DeadlineIntent(t *testing.T) {
	uc, inv, _ := newVoiceFixture()

	inv.respond("neural_network", "/ai/intent", map[string]any{"intent": "deadline"})
	inv.respond("deadline_monitoring", "/deadlines/check", map[string]any{
		"total_deadlines": 4.0, "critical": 1.0,
	})

	resp, err := uc.Query(context.Background(), &model.VoiceQueryRequest{Text: "deadlines?", UserID: "u1"})
	require.NoError(t, err)

	assert.Equal(t, "You have 4 upcoming deadlines. 1 are critical.", resp.Answer)
	assert.Equal(t, 1, inv.callCount("deadline_monitoring", "/deadlines/check"))
}

func TestVoiceQuery_SchemeIntentUsesRetrievedContext(t *testing.T) {
	uc, inv, _ := newVoiceFixture()

	inv.respond("neural_network", "/ai/intent", map[string]any{"intent": "scheme_query"})
	inv.respond("vector_database", "/vectors/search", map[string]any{
		"results": []any{map[string]any{"vector_id": "v1", "score": 0.8, "content": "passage"}},
	})
	inv.respond("neural_network", "/ai/rag", map[string]any{"answer": "Grounded answer."})

	resp, err := uc.Query(context.Background(), &model.VoiceQueryRequest{Text: "pm kisan kya hai", UserID: "u1"})
	require.NoError(t, err)

	assert.Equal(t, "Grounded answer.", resp.Answer)
	assert.Equal(t, 1, inv.callCount("neural_network", "/ai/rag"))
	assert.Equal(t, 0, inv.callCount("neural_network", "/ai/chat"))
}

func TestVoiceQuery_SchemeIntentWithoutContextFallsBackToChat(t *testing.T) {
	uc, inv, _ := newVoiceFixture()

	inv.respond("neural_network", "/ai/intent", map[string]any{"intent": "policy"})
	inv.fail("vector_database", "/vectors/search", assert.AnError)
	inv.respond("neural_network", "/ai/chat", map[string]any{"response": "Chat answer."})

	resp, err := uc.Query(context.Background(), &model.VoiceQueryRequest{Text: "policy?", UserID: "u1"})
	require.NoError(t, err)

	assert.Equal(t, "Chat answer.", resp.Answer)
	assert.Contains(t, resp.Degraded, "vector_search")
	assert.Equal(t, 0, inv.callCount("neural_network", "/ai/rag"))
}

func TestVoiceQuery_UnknownIntentDefaultsToChat(t *testing.T) {
	uc, inv, _ := newVoiceFixture()

	inv.respond("neural_network", "/ai/intent", map[string]any{"intent": "weather_smalltalk"})
	inv.respond("neural_network", "/ai/chat", map[string]any{"response": "Namaste!"})

	resp, err := uc.Query(context.Background(), &model.VoiceQueryRequest{Text: "hello", UserID: "u1"})
	require.NoError(t, err)

	assert.Equal(t, "Namaste!", resp.Answer)
	assert.Equal(t, 1, inv.callCount("neural_network", "/ai/chat"))
}

func TestVoiceQuery_RoutingFailureDegradesWithApology(t *testing.T) {
	uc, inv, _ := newVoiceFixture()

	inv.respond("neural_network", "/ai/intent", map[string]any{"intent": "deadline"})
	inv.fail("deadline_monitoring", "/deadlines/check", assert.AnError)
	inv.respond("speech_interface", "/speech/tts", map[string]any{"session_id": "a2"})

	resp, err := uc.Query(context.Background(), &model.VoiceQueryRequest{Text: "deadlines?", UserID: "u1"})
	require.NoError(t, err)

	assert.Equal(t, voiceFallbackText, resp.Answer)
	assert.Contains(t, resp.Degraded, "intent_routing")
	// TTS still synthesizes the apology
	assert.Equal(t, 1, inv.callCount("speech_interface", "/speech/tts"))
}

func TestVoiceQuery_TranslatesNonEnglish(t *testing.T) {
	uc, inv, _ := newVoiceFixture()

	inv.respond("neural_network", "/ai/intent", map[string]any{"intent": "general"})
	inv.respond("neural_network", "/ai/chat", map[string]any{"response": "Hello farmer."})
	inv.respond("neural_network", "/ai/translate", map[string]any{"translated": "Namaste kisan."})

	resp, err := uc.Query(context.Background(), &model.VoiceQueryRequest{Text: "hi", UserID: "u1", Language: "hindi"})
	require.NoError(t, err)

	assert.Equal(t, "Namaste kisan.", resp.Answer)
	assert.Equal(t, 1, inv.callCount("neural_network", "/ai/translate"))
}

func TestVoiceQuery_EnglishSkipsTranslation(t *testing.T) {
	uc, inv, _ := newVoiceFixture()

	inv.respond("neural_network", "/ai/intent", map[string]any{"intent": "general"})
	inv.respond("neural_network", "/ai/chat", map[string]any{"response": "Hello."})

	_, err := uc.Query(context.Background(), &model.VoiceQueryRequest{Text: "hi", UserID: "u1", Language: "english"})
	require.NoError(t, err)

	assert.Equal(t, 0, inv.callCount("neural_network", "/ai/translate"))
}

func TestVoiceQuery_IntentFailureAborts(t *testing.T) {
	uc, inv, _ := newVoiceFixture()

	inv.fail("neural_network", "/ai/intent", assert.AnError)

	_, err := uc.Query(context.Background(), &model.VoiceQueryRequest{Text: "hi", UserID: "u1"})
	require.Error(t, err)

	var abort *FlowAbortError
	require.ErrorAs(t, err, &abort)
	assert.Equal(t, "intent_classification", abort.Step)
}

func TestVoiceQuery_AnonymousUser(t *testing.T) {
	uc, inv, audit := newVoiceFixture()

	inv.respond("neural_network", "/ai/intent", map[string]any{"intent": "general"})
	inv.respond("neural_network", "/ai/chat", map[string]any{"response": "Hi."})

	_, err := uc.Query(context.Background(), &model.VoiceQueryRequest{Text: "hi"})
	require.NoError(t, err)

	events := audit.recorded()
	require.Len(t, events, 1)
	assert.Equal(t, "anonymous", events[0].UserID)

	for _, c := range inv.calls {
		if c.Engine == "neural_network" && c.Path == "/ai/chat" {
			assert.Equal(t, "anonymous", c.Payload["user_id"])
		}
	}
}
