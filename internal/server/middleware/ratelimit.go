package middleware

import (
	"context"

	"BharatSetu/internal/biz"
	pkglog "BharatSetu/pkg/log"

	"github.com/go-kratos/kratos/v2/errors"
	"github.com/go-kratos/kratos/v2/middleware"
	"github.com/go-kratos/kratos/v2/transport"
	"github.com/go-kratos/kratos/v2/transport/http"
)

// RateLimit returns a middleware enforcing the per-client-IP windows.
// Liveness probes and CORS preflights are never counted. A rejected
// request gets a Retry-After hint sized to the window that tripped.
func RateLimit(limiter *biz.RateLimiterUseCase, logger *pkglog.LogHelper) middleware.Middleware {
	return func(handler middleware.Handler) middleware.Handler {
		return func(ctx context.Context, req interface{}) (interface{}, error) {
			tr, ok := transport.FromServerContext(ctx)
			if !ok {
				return handler(ctx, req)
			}
			ht, ok := tr.(http.Transporter)
			if !ok {
				return handler(ctx, req)
			}

			httpReq := ht.Request()
			if httpReq.URL.Path == "/health" || httpReq.Method == "OPTIONS" {
				return handler(ctx, req)
			}

			ip := extractClientIP(httpReq)
			if err := limiter.Check(ctx, ip); err != nil {
				retryAfter := "60"
				if errors.FromError(err).Reason == "RATE_LIMIT_EXCEEDED_BURST" {
					retryAfter = "1"
				}
				ht.ReplyHeader().Set("Retry-After", retryAfter)

				logger.RateLimit("Rate limit exceeded",
					"ip", ip,
					"path", httpReq.URL.Path,
					"reason", errors.FromError(err).Reason,
				)
				return nil, err
			}

			return handler(ctx, req)
		}
	}
}
