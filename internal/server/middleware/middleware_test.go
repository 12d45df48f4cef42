package middleware

import (
	"context"
	stdhttp "net/http"
	"testing"
	"time"

	"BharatSetu/internal/biz"
	"BharatSetu/internal/conf"
	"BharatSetu/internal/data"
	pkglog "BharatSetu/pkg/log"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-kratos/kratos/v2/errors"
	"github.com/go-kratos/kratos/v2/log"
	"github.com/go-kratos/kratos/v2/transport"
	"github.com/golang-jwt/jwt/v5"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type headerCarrier map[string][]string

func (h headerCarrier) Get(key string) string {
	v := h[key]
	if len(v) == 0 {
		return ""
	}
	return v[0]
}
func (h headerCarrier) Set(key, value string) { h[key] = []string{value} }
func (h headerCarrier) Add(key, value string) { h[key] = append(h[key], value) }
func (h headerCarrier) Keys() []string {
	keys := make([]string, 0, len(h))
	for k := range h {
		keys = append(keys, k)
	}
	return keys
}
func (h headerCarrier) Values(key string) []string { return h[key] }

// fakeTransport satisfies the kratos HTTP Transporter so middleware can
// be exercised without a listening server.
type fakeTransport struct {
	req   *stdhttp.Request
	reply headerCarrier
}

func (t *fakeTransport) Kind() transport.Kind            { return transport.KindHTTP }
func (t *fakeTransport) Endpoint() string                { return "" }
func (t *fakeTransport) Operation() string               { return t.req.URL.Path }
func (t *fakeTransport) RequestHeader() transport.Header { return headerCarrier(t.req.Header) }
func (t *fakeTransport) ReplyHeader() transport.Header   { return t.reply }
func (t *fakeTransport) Request() *stdhttp.Request       { return t.req }
func (t *fakeTransport) PathTemplate() string            { return t.req.URL.Path }

func serverContext(req *stdhttp.Request) (context.Context, *fakeTransport) {
	tr := &fakeTransport{req: req, reply: headerCarrier{}}
	return transport.NewServerContext(context.Background(), tr), tr
}

func newRequest(method, path string) *stdhttp.Request {
	req, _ := stdhttp.NewRequest(method, "http://gateway.local"+path, nil)
	req.RemoteAddr = "192.0.2.10:52011"
	return req
}

func passHandler(captured *context.Context) func(ctx context.Context, req interface{}) (interface{}, error) {
	return func(ctx context.Context, req interface{}) (interface{}, error) {
		if captured != nil {
			*captured = ctx
		}
		return "ok", nil
	}
}

func testHelper() *pkglog.LogHelper {
	return pkglog.NewLogHelper(log.DefaultLogger)
}

func TestLogging_GeneratesRequestID(t *testing.T) {
	var seen context.Context
	mw := Logging(testHelper())(passHandler(&seen))

	ctx, tr := serverContext(newRequest("POST", "/api/v1/query"))
	_, err := mw(ctx, nil)
	require.NoError(t, err)

	id := pkglog.GetRequestID(seen)
	assert.NotEqual(t, "unknown", id)
	assert.Len(t, id, 10)
	assert.Equal(t, id, tr.reply.Get("X-Request-ID"))
}

func TestLogging_ReusesIncomingRequestID(t *testing.T) {
	var seen context.Context
	mw := Logging(testHelper())(passHandler(&seen))

	req := newRequest("POST", "/api/v1/query")
	req.Header.Set("X-Request-ID", "abc123defg")
	ctx, tr := serverContext(req)

	_, err := mw(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, "abc123defg", pkglog.GetRequestID(seen))
	assert.Equal(t, "abc123defg", tr.reply.Get("X-Request-ID"))
}

func TestExtractClientIP(t *testing.T) {
	req := newRequest("GET", "/health")
	assert.Equal(t, "192.0.2.10:52011", extractClientIP(req))

	req.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.1")
	assert.Equal(t, "203.0.113.7", extractClientIP(req))

	req.Header.Set("X-Real-IP", "198.51.100.2")
	assert.Equal(t, "198.51.100.2", extractClientIP(req))
}

func signToken(t *testing.T, secret, sub string, expiresIn time.Duration) string {
	t.Helper()
	claims := jwt.RegisteredClaims{
		Subject:   sub,
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(expiresIn)),
		IssuedAt:  jwt.NewNumericDate(time.Now()),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return token
}

func authConf(secret string) *conf.Server_Auth {
	return &conf.Server_Auth{JwtSecret: secret, ClaimCacheSize: 16}
}

func TestAuth_NoSecretAllowsEverything(t *testing.T) {
	mw := Auth(authConf(""), testHelper())(passHandler(nil))

	ctx, _ := serverContext(newRequest("POST", "/api/v1/query"))
	_, err := mw(ctx, nil)
	assert.NoError(t, err)
}

func TestAuth_MissingTokenRejected(t *testing.T) {
	mw := Auth(authConf("test-secret"), testHelper())(passHandler(nil))

	ctx, _ := serverContext(newRequest("POST", "/api/v1/query"))
	_, err := mw(ctx, nil)
	require.Error(t, err)
	assert.Equal(t, int32(401), errors.FromError(err).Code)
}

func TestAuth_PublicPathsSkipVerification(t *testing.T) {
	mw := Auth(authConf("test-secret"), testHelper())(passHandler(nil))

	for _, path := range []string{"/health", "/api/v1/onboard", "/api/v1/voice-query"} {
		ctx, _ := serverContext(newRequest("POST", path))
		_, err := mw(ctx, nil)
		assert.NoError(t, err, path)
	}
}

func TestAuth_ValidTokenSetsUser(t *testing.T) {
	var seen context.Context
	mw := Auth(authConf("test-secret"), testHelper())(passHandler(&seen))

	req := newRequest("POST", "/api/v1/query")
	req.Header.Set("Authorization", "Bearer "+signToken(t, "test-secret", "user-42", time.Hour))
	ctx, _ := serverContext(req)
	ctx = pkglog.WithRequestContext(ctx, "req-1", "", "")

	_, err := mw(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, "user-42", pkglog.GetUserID(seen))
}

func TestAuth_ExpiredTokenRejected(t *testing.T) {
	mw := Auth(authConf("test-secret"), testHelper())(passHandler(nil))

	req := newRequest("POST", "/api/v1/query")
	req.Header.Set("Authorization", "Bearer "+signToken(t, "test-secret", "user-42", -time.Minute))
	ctx, _ := serverContext(req)

	_, err := mw(ctx, nil)
	require.Error(t, err)
	assert.Equal(t, int32(401), errors.FromError(err).Code)
}

func TestAuth_WrongSecretRejected(t *testing.T) {
	mw := Auth(authConf("test-secret"), testHelper())(passHandler(nil))

	req := newRequest("POST", "/api/v1/query")
	req.Header.Set("Authorization", "Bearer "+signToken(t, "other-secret", "user-42", time.Hour))
	ctx, _ := serverContext(req)

	_, err := mw(ctx, nil)
	require.Error(t, err)
	assert.Equal(t, int32(401), errors.FromError(err).Code)
}

func TestBearerToken(t *testing.T) {
	assert.Equal(t, "tok123", bearerToken("Bearer tok123"))
	assert.Equal(t, "tok123", bearerToken("bearer tok123"))
	assert.Equal(t, "", bearerToken("Basic dXNlcjpwYXNz"))
	assert.Equal(t, "", bearerToken(""))
	assert.Equal(t, "", bearerToken("Bearer"))
}

func TestMaskToken(t *testing.T) {
	assert.Equal(t, "eyJhbGci***", maskToken("eyJhbGciOiJIUzI1NiJ9"))
	assert.Equal(t, "****", maskToken("shrt"))
}

func newRateLimitMiddleware(t *testing.T, perMinute, burst int32) func(ctx context.Context, req interface{}) (interface{}, error) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	bc := &conf.Bootstrap{
		Orchestrator: &conf.Orchestrator{
			RateLimit: &conf.Orchestrator_RateLimit{PerMinute: perMinute, BurstPerSecond: burst},
		},
	}
	limiter := biz.NewRateLimiterUseCase(bc, data.NewRateLimitRepo(rdb, log.DefaultLogger), log.DefaultLogger)
	return RateLimit(limiter, testHelper())(passHandler(nil))
}

func TestRateLimit_BurstExceeded(t *testing.T) {
	mw := newRateLimitMiddleware(t, 100, 2)

	req := newRequest("POST", "/api/v1/query")
	ctx, tr := serverContext(req)

	// Ten rapid calls always overflow a 2-per-second budget even when
	// the loop straddles a second boundary.
	var rejected error
	for i := 0; i < 10 && rejected == nil; i++ {
		_, rejected = mw(ctx, nil)
	}

	require.Error(t, rejected)
	assert.Equal(t, int32(429), errors.FromError(rejected).Code)
	assert.Equal(t, "1", tr.reply.Get("Retry-After"))
}

func TestRateLimit_SkipsHealthAndPreflight(t *testing.T) {
	mw := newRateLimitMiddleware(t, 100, 1)

	for i := 0; i < 5; i++ {
		ctx, _ := serverContext(newRequest("GET", "/health"))
		_, err := mw(ctx, nil)
		require.NoError(t, err)
	}

	for i := 0; i < 5; i++ {
		ctx, _ := serverContext(newRequest("OPTIONS", "/api/v1/query"))
		_, err := mw(ctx, nil)
		require.NoError(t, err)
	}
}

func TestRateLimit_SeparateIPsCountSeparately(t *testing.T) {
	mw := newRateLimitMiddleware(t, 100, 1)

	first := newRequest("POST", "/api/v1/query")
	first.Header.Set("X-Real-IP", "198.51.100.1")
	ctxA, _ := serverContext(first)
	_, err := mw(ctxA, nil)
	require.NoError(t, err)

	second := newRequest("POST", "/api/v1/query")
	second.Header.Set("X-Real-IP", "198.51.100.2")
	ctxB, _ := serverContext(second)
	_, err = mw(ctxB, nil)
	assert.NoError(t, err)
}
