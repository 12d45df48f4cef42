package log

import (
	"context"
	"math/rand"
	"sync"
	"time"
)

// contextKey is a private key type for storing the RequestContext
type contextKey string

const requestContextKey contextKey = "bharatsetu_request_context"

// RequestContext carries request tracing information through the whole
// composite flow. The RequestID doubles as the correlation id forwarded
// to every downstream engine call and audit record.
type RequestContext struct {
	RequestID string                 // correlation id (10-char short id, e.g. mgrn0zfqda)
	UserID    string                 // authenticated user id, if any
	Flow      string                 // composite flow name (e.g. "grounded_query")
	StartTime time.Time              // request start time
	Metadata  map[string]interface{} // extension metadata
}

var (
	randSource = rand.NewSource(time.Now().UnixNano())
	randMutex  sync.Mutex
	// base36 charset (lowercase letters + digits)
	base36Chars = "0123456789abcdefghijklmnopqrstuvwxyz"
)

// GenerateRequestID generates a 10-character random request id.
// base36 encoding keeps it short and cheap compared to a UUID.
func GenerateRequestID() string {
	randMutex.Lock()
	defer randMutex.Unlock()

	b := make([]byte, 10)
	for i := range b {
		b[i] = base36Chars[randSource.Int63()%36]
	}
	return string(b)
}

// WithRequestContext injects a RequestContext into the Context.
// Usually called from middleware so the whole request lifecycle can be traced.
func WithRequestContext(ctx context.Context, requestID, userID, flow string) context.Context {
	reqCtx := &RequestContext{
		RequestID: requestID,
		UserID:    userID,
		Flow:      flow,
		StartTime: time.Now(),
		Metadata:  make(map[string]interface{}),
	}
	return context.WithValue(ctx, requestContextKey, reqCtx)
}

// GetRequestContext extracts the RequestContext from a Context.
// Returns a default empty RequestContext if none is present.
func GetRequestContext(ctx context.Context) *RequestContext {
	if ctx == nil {
		return &RequestContext{
			RequestID: "unknown",
			Metadata:  make(map[string]interface{}),
		}
	}

	if reqCtx, ok := ctx.Value(requestContextKey).(*RequestContext); ok {
		return reqCtx
	}

	return &RequestContext{
		RequestID: "unknown",
		Metadata:  make(map[string]interface{}),
	}
}

// GetRequestID extracts the correlation id from a Context.
func GetRequestID(ctx context.Context) string {
	return GetRequestContext(ctx).RequestID
}

// GetUserID extracts the user id from a Context.
func GetUserID(ctx context.Context) string {
	return GetRequestContext(ctx).UserID
}

// SetUserID records the authenticated user id on the RequestContext,
// once the auth middleware has resolved it.
func SetUserID(ctx context.Context, userID string) {
	GetRequestContext(ctx).UserID = userID
}

// SetFlow records which composite flow is handling the request.
func SetFlow(ctx context.Context, flow string) {
	GetRequestContext(ctx).Flow = flow
}

// SetMetadata sets extension metadata on the RequestContext.
func SetMetadata(ctx context.Context, key string, value interface{}) {
	reqCtx := GetRequestContext(ctx)
	if reqCtx.Metadata == nil {
		reqCtx.Metadata = make(map[string]interface{})
	}
	reqCtx.Metadata[key] = value
}

// GetMetadata reads extension metadata from the RequestContext.
func GetMetadata(ctx context.Context, key string) (interface{}, bool) {
	reqCtx := GetRequestContext(ctx)
	if reqCtx.Metadata == nil {
		return nil, false
	}
	value, ok := reqCtx.Metadata[key]
	return value, ok
}

// GetElapsedTime returns the elapsed request time in milliseconds.
func GetElapsedTime(ctx context.Context) int64 {
	reqCtx := GetRequestContext(ctx)
	if reqCtx.StartTime.IsZero() {
		return 0
	}
	return time.Since(reqCtx.StartTime).Milliseconds()
}
