package log

import (
	"context"
	"fmt"

	"github.com/go-kratos/kratos/v2/log"
)

// LogHelper extends the Kratos log.Helper with convenience methods that
// tag entries with a "type" field, which the EmojiConsoleEncoder maps to
// an emoji in development output.
type LogHelper struct {
	*log.Helper
}

// NewLogHelper creates an enhanced log helper
func NewLogHelper(logger log.Logger) *LogHelper {
	return &LogHelper{
		Helper: log.NewHelper(logger),
	}
}

// Gateway logs gateway lifecycle events (emoji: 🚪)
func (h *LogHelper) Gateway(msg string, kvs ...interface{}) {
	allKvs := append([]interface{}{"msg", msg}, kvs...)
	allKvs = append(allKvs, "type", "gateway")
	h.Infow(allKvs...)
}

// Auth logs authentication events (emoji: 🔓)
func (h *LogHelper) Auth(msg string, kvs ...interface{}) {
	allKvs := append([]interface{}{"msg", msg}, kvs...)
	allKvs = append(allKvs, "type", "auth")
	h.Infow(allKvs...)
}

// Request logs HTTP requests (emoji by status code)
func (h *LogHelper) Request(method, url string, status int, durationMs int64, kvs ...interface{}) {
	msg := fmt.Sprintf("%s %s - %d (%dms)", method, url, status, durationMs)
	allKvs := append([]interface{}{"msg", msg}, kvs...)
	allKvs = append(allKvs,
		"type", "request",
		"method", method,
		"url", url,
		"status", status,
		"duration_ms", durationMs,
	)
	h.Infow(allKvs...)
}

// RequestWithContext logs an HTTP request, prefixing the correlation id
// from the request context.
func (h *LogHelper) RequestWithContext(ctx context.Context, method, url string, status int, durationMs int64, kvs ...interface{}) {
	requestID := GetRequestID(ctx)
	msg := fmt.Sprintf("[%s] %s %s - %d (%dms)", requestID, method, url, status, durationMs)
	allKvs := append([]interface{}{"msg", msg}, kvs...)
	allKvs = append(allKvs,
		"type", "request",
		"request_id", requestID,
		"method", method,
		"url", url,
		"status", status,
		"duration_ms", durationMs,
	)
	h.Infow(allKvs...)

	// Flag slow composite requests separately so they stand out
	if durationMs > 10000 {
		h.Warnw(
			"msg", fmt.Sprintf("[%s] Slow request detected | %s %s | %dms", requestID, method, url, durationMs),
			"type", "slow_request",
			"request_id", requestID,
			"duration_ms", durationMs,
		)
	}
}

// Engine logs downstream engine calls (emoji: ⚙️)
func (h *LogHelper) Engine(msg string, kvs ...interface{}) {
	allKvs := append([]interface{}{"msg", msg}, kvs...)
	allKvs = append(allKvs, "type", "engine")
	h.Debugw(allKvs...)
}

// Flow logs composite flow progress (emoji: 🪜)
func (h *LogHelper) Flow(msg string, kvs ...interface{}) {
	allKvs := append([]interface{}{"msg", msg}, kvs...)
	allKvs = append(allKvs, "type", "flow")
	h.Infow(allKvs...)
}

// Degraded logs a non-critical step failure being absorbed (emoji: 🩹)
func (h *LogHelper) Degraded(msg string, kvs ...interface{}) {
	allKvs := append([]interface{}{"msg", msg}, kvs...)
	allKvs = append(allKvs, "type", "degraded")
	h.Warnw(allKvs...)
}

// Circuit logs circuit breaker state changes (emoji: ⚡)
func (h *LogHelper) Circuit(msg string, kvs ...interface{}) {
	allKvs := append([]interface{}{"msg", msg}, kvs...)
	allKvs = append(allKvs, "type", "circuit")
	h.Warnw(allKvs...)
}

// Audit logs audit emission events (emoji: 📋)
func (h *LogHelper) Audit(msg string, kvs ...interface{}) {
	allKvs := append([]interface{}{"msg", msg}, kvs...)
	allKvs = append(allKvs, "type", "audit")
	h.Debugw(allKvs...)
}

// Health logs health probe results (emoji: 🩺)
func (h *LogHelper) Health(msg string, kvs ...interface{}) {
	allKvs := append([]interface{}{"msg", msg}, kvs...)
	allKvs = append(allKvs, "type", "health")
	h.Infow(allKvs...)
}

// RateLimit logs rate limiting events (emoji: 🚦)
func (h *LogHelper) RateLimit(msg string, kvs ...interface{}) {
	allKvs := append([]interface{}{"msg", msg}, kvs...)
	allKvs = append(allKvs, "type", "rate_limit")
	h.Warnw(allKvs...)
}

// Redis logs Redis operations (emoji: 📦)
func (h *LogHelper) Redis(msg string, kvs ...interface{}) {
	allKvs := append([]interface{}{"msg", msg}, kvs...)
	allKvs = append(allKvs, "type", "redis")
	h.Debugw(allKvs...)
}

// Scheduler logs cron/background task events (emoji: 🎯)
func (h *LogHelper) Scheduler(msg string, kvs ...interface{}) {
	allKvs := append([]interface{}{"msg", msg}, kvs...)
	allKvs = append(allKvs, "type", "scheduler")
	h.Infow(allKvs...)
}

// Startup logs service startup events (emoji: 🚀)
func (h *LogHelper) Startup(msg string, kvs ...interface{}) {
	allKvs := append([]interface{}{"msg", msg}, kvs...)
	allKvs = append(allKvs, "type", "startup")
	h.Infow(allKvs...)
}

// Success logs successful operations (emoji: ✅)
func (h *LogHelper) Success(msg string, kvs ...interface{}) {
	allKvs := append([]interface{}{"msg", msg}, kvs...)
	allKvs = append(allKvs, "type", "success")
	h.Infow(allKvs...)
}
