// Package middleware provides HTTP middleware for request logging,
// bearer-token authentication, and per-IP rate limiting.
package middleware

import (
	"context"
	"strings"
	"time"

	pkglog "BharatSetu/pkg/log"

	"github.com/go-kratos/kratos/v2/errors"
	"github.com/go-kratos/kratos/v2/middleware"
	"github.com/go-kratos/kratos/v2/transport"
	"github.com/go-kratos/kratos/v2/transport/http"
)

// Logging returns a middleware that logs every HTTP request and seeds
// the request context used for correlation. The X-Request-ID header is
// reused when the caller supplies one, otherwise a fresh id is
// generated; either way the id follows the request into every
// downstream engine call and audit record.
//
// Example output:
//
//	🟢 [mgrn0zfqda] POST /api/v1/query - 200 (542ms)
//	🐌 [mgrn0zfqda] Slow request detected | POST /api/v1/query | 13438ms
func Logging(logger *pkglog.LogHelper) middleware.Middleware {
	return func(handler middleware.Handler) middleware.Handler {
		return func(ctx context.Context, req interface{}) (interface{}, error) {
			startTime := time.Now()

			var (
				method    string
				path      string
				ip        string
				userAgent string
				requestID string
			)

			if tr, ok := transport.FromServerContext(ctx); ok {
				method = tr.Operation()
				path = tr.Operation()

				if ht, ok := tr.(http.Transporter); ok {
					httpReq := ht.Request()
					method = httpReq.Method
					path = httpReq.URL.Path
					if httpReq.URL.RawQuery != "" {
						path = path + "?" + httpReq.URL.RawQuery
					}

					ip = extractClientIP(httpReq)
					userAgent = httpReq.Header.Get("User-Agent")

					requestID = httpReq.Header.Get("X-Request-ID")
					if requestID == "" {
						requestID = pkglog.GenerateRequestID()
					}

					// Echo the correlation id so callers can trace
					// degraded responses back through the logs.
					ht.ReplyHeader().Set("X-Request-ID", requestID)
				}
			}

			ctx = pkglog.WithRequestContext(ctx, requestID, "", "")

			reply, err := handler(ctx, req)

			duration := time.Since(startTime).Milliseconds()

			status := 200
			if err != nil {
				status = int(errors.FromError(err).Code)
			}

			logger.RequestWithContext(ctx, method, path, status, duration,
				"ip", ip,
				"user_agent", userAgent,
			)

			return reply, err
		}
	}
}

// extractClientIP resolves the client address behind proxies.
// Priority: X-Real-IP > X-Forwarded-For (first hop) > RemoteAddr.
func extractClientIP(req *http.Request) string {
	if ip := req.Header.Get("X-Real-IP"); ip != "" {
		return ip
	}

	if forwarded := req.Header.Get("X-Forwarded-For"); forwarded != "" {
		ips := strings.Split(forwarded, ",")
		if len(ips) > 0 {
			return strings.TrimSpace(ips[0])
		}
	}

	return req.RemoteAddr
}

// requestPath returns the HTTP path of the in-flight request, empty
// when the transport is not HTTP.
func requestPath(ctx context.Context) string {
	if tr, ok := transport.FromServerContext(ctx); ok {
		if ht, ok := tr.(http.Transporter); ok {
			return ht.Request().URL.Path
		}
	}
	return ""
}
