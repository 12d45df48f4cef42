package middleware

import (
	"context"
	"fmt"
	"strings"
	"time"

	"BharatSetu/internal/conf"
	pkglog "BharatSetu/pkg/log"

	"github.com/go-kratos/kratos/v2/errors"
	"github.com/go-kratos/kratos/v2/middleware"
	"github.com/go-kratos/kratos/v2/transport"
	"github.com/go-kratos/kratos/v2/transport/http"
	"github.com/golang-jwt/jwt/v5"
	lru "github.com/hashicorp/golang-lru/v2"
)

// publicPaths lists routes that never require a bearer token: liveness,
// registration (no account exists yet), and the voice entrypoint used
// by feature-phone callers.
var publicPaths = map[string]bool{
	"/health":             true,
	"/api/v1/onboard":     true,
	"/api/v1/voice-query": true,
}

// cachedClaims is an LRU entry for an already verified token. ExpiresAt
// is rechecked on every hit so a cached token cannot outlive its exp.
type cachedClaims struct {
	UserID    string
	ExpiresAt time.Time
}

// Auth returns a middleware that verifies HS256 bearer tokens issued by
// the login_register engine. Verified claims are cached in an LRU so
// repeat requests skip signature checks. With no secret configured the
// middleware only logs the masked token and lets everything through,
// which matches local development where engines run without auth.
func Auth(c *conf.Server_Auth, logger *pkglog.LogHelper) middleware.Middleware {
	secret := ""
	cacheSize := 1024
	if c != nil {
		secret = c.JwtSecret
		if c.ClaimCacheSize > 0 {
			cacheSize = int(c.ClaimCacheSize)
		}
	}

	// lru.New only fails on size <= 0, which is excluded above.
	claimCache, _ := lru.New[string, cachedClaims](cacheSize)

	return func(handler middleware.Handler) middleware.Handler {
		return func(ctx context.Context, req interface{}) (interface{}, error) {
			startTime := time.Now()

			var (
				token     string
				userAgent string
			)

			if tr, ok := transport.FromServerContext(ctx); ok {
				if ht, ok := tr.(http.Transporter); ok {
					httpReq := ht.Request()
					token = bearerToken(httpReq.Header.Get("Authorization"))
					userAgent = httpReq.Header.Get("User-Agent")
				}
			}

			if secret == "" {
				if token != "" {
					logger.Auth(
						fmt.Sprintf("Unverified request from token (%s), no secret configured", maskToken(token)),
						"token_masked", maskToken(token),
					)
				}
				return handler(ctx, req)
			}

			if publicPaths[requestPath(ctx)] {
				return handler(ctx, req)
			}

			if token == "" {
				return nil, errors.Unauthorized("AUTH_REQUIRED", "authentication required")
			}

			claims, ok := claimCache.Get(token)
			if !ok || time.Now().After(claims.ExpiresAt) {
				verified, err := verifyToken(token, secret)
				if err != nil {
					logger.Auth(
						fmt.Sprintf("Rejected token (%s): %v", maskToken(token), err),
						"token_masked", maskToken(token),
						"error", err.Error(),
					)
					return nil, errors.Unauthorized("AUTH_REQUIRED", "authentication required")
				}
				claims = verified
				claimCache.Add(token, claims)
			}

			authDuration := time.Since(startTime).Milliseconds()
			logger.Auth(
				fmt.Sprintf("Authenticated request from user %s (%s) in %s", claims.UserID, maskToken(token), formatDuration(authDuration)),
				"user_id", claims.UserID,
				"token_masked", maskToken(token),
				"duration_ms", authDuration,
				"user_agent", userAgent,
			)

			pkglog.SetUserID(ctx, claims.UserID)

			return handler(ctx, req)
		}
	}
}

// verifyToken checks the HS256 signature and expiry and extracts the
// subject claim.
func verifyToken(token, secret string) (cachedClaims, error) {
	parsed, err := jwt.ParseWithClaims(token, &jwt.RegisteredClaims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return []byte(secret), nil
	})
	if err != nil {
		return cachedClaims{}, err
	}

	claims, ok := parsed.Claims.(*jwt.RegisteredClaims)
	if !ok || claims.Subject == "" {
		return cachedClaims{}, fmt.Errorf("token has no subject")
	}

	expiresAt := time.Now().Add(time.Minute)
	if claims.ExpiresAt != nil {
		expiresAt = claims.ExpiresAt.Time
	}

	return cachedClaims{UserID: claims.Subject, ExpiresAt: expiresAt}, nil
}

// bearerToken extracts the token from an "Authorization: Bearer x" header.
func bearerToken(header string) string {
	if header == "" {
		return ""
	}
	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

// maskToken shows only the first 8 characters of a token.
func maskToken(token string) string {
	if len(token) <= 8 {
		return strings.Repeat("*", len(token))
	}
	return token[:8] + "***"
}

// formatDuration renders a millisecond count as 5ms / 150ms / 2.5s.
func formatDuration(ms int64) string {
	if ms < 1000 {
		return fmt.Sprintf("%dms", ms)
	}
	return fmt.Sprintf("%.1fs", float64(ms)/1000.0)
}
