package log

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGenerateRequestID(t *testing.T) {
	id1 := GenerateRequestID()
	id2 := GenerateRequestID()

	assert.Len(t, id1, 10)
	assert.Len(t, id2, 10)
	assert.NotEqual(t, id1, id2)

	for _, c := range id1 {
		assert.Contains(t, base36Chars, string(c))
	}
}

func TestRequestContext_RoundTrip(t *testing.T) {
	ctx := WithRequestContext(context.Background(), "abc123defg", "user-42", "grounded_query")

	reqCtx := GetRequestContext(ctx)
	assert.Equal(t, "abc123defg", reqCtx.RequestID)
	assert.Equal(t, "user-42", reqCtx.UserID)
	assert.Equal(t, "grounded_query", reqCtx.Flow)
	assert.False(t, reqCtx.StartTime.IsZero())

	assert.Equal(t, "abc123defg", GetRequestID(ctx))
	assert.Equal(t, "user-42", GetUserID(ctx))
}

func TestRequestContext_Defaults(t *testing.T) {
	// Missing context falls back to "unknown" rather than panicking
	assert.Equal(t, "unknown", GetRequestID(context.Background()))
	assert.Equal(t, "unknown", GetRequestContext(nil).RequestID)
	assert.Equal(t, int64(0), GetElapsedTime(context.Background()))
}

func TestRequestContext_SetUserID(t *testing.T) {
	ctx := WithRequestContext(context.Background(), "abc123defg", "", "")

	SetUserID(ctx, "user-99")
	assert.Equal(t, "user-99", GetUserID(ctx))

	SetFlow(ctx, "onboarding")
	assert.Equal(t, "onboarding", GetRequestContext(ctx).Flow)
}

func TestRequestContext_Metadata(t *testing.T) {
	ctx := WithRequestContext(context.Background(), "abc123defg", "", "")

	SetMetadata(ctx, "intent", "eligibility")
	v, ok := GetMetadata(ctx, "intent")
	assert.True(t, ok)
	assert.Equal(t, "eligibility", v)

	_, ok = GetMetadata(ctx, "missing")
	assert.False(t, ok)
}
