package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"ipgeo-ws/internal/redis"
	"ipgeo-ws/pkg/logger"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeLimiter struct {
	result *redis.RateLimitResult
	err    error
	ips    []string
}

func (f *fakeLimiter) AllowHandshake(_ context.Context, ip string) (*redis.RateLimitResult, error) {
	f.ips = append(f.ips, ip)
	return f.result, f.err
}

func newEngine(handlers ...gin.HandlerFunc) *gin.Engine {
	engine := gin.New()
	engine.GET("/ws", append(handlers, func(c *gin.Context) {
		c.String(http.StatusOK, "upgraded")
	})...)
	return engine
}

func TestHandshakeRateLimit_Allows(t *testing.T) {
	limiter := &fakeLimiter{result: &redis.RateLimitResult{Allowed: true, Remaining: 9, ResetIn: 30 * time.Second, Limit: 10}}
	engine := newEngine(HandshakeRateLimitMiddleware(limiter, logger.NewNop()))

	req := httptest.NewRequest(http.MethodGet, "/ws", nil)
	req.RemoteAddr = "10.1.2.3:5555"
	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "10", rec.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, "9", rec.Header().Get("X-RateLimit-Remaining"))
	assert.Equal(t, "30", rec.Header().Get("X-RateLimit-Reset"))
	assert.Equal(t, []string{"10.1.2.3"}, limiter.ips)
}

func TestHandshakeRateLimit_Rejects(t *testing.T) {
	limiter := &fakeLimiter{result: &redis.RateLimitResult{Allowed: false, Limit: 10, ResetIn: 5 * time.Second}}
	engine := newEngine(HandshakeRateLimitMiddleware(limiter, logger.NewNop()))

	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ws", nil))

	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.JSONEq(t, `{"success":false,"error":"connection rate limit exceeded","code":"RATE_LIMITED"}`, rec.Body.String())
}

func TestHandshakeRateLimit_FailsOpen(t *testing.T) {
	limiter := &fakeLimiter{err: errors.New("redis down")}
	engine := newEngine(HandshakeRateLimitMiddleware(limiter, logger.NewNop()))

	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ws", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Header().Get("X-RateLimit-Limit"))
}

func TestRequestIDMiddleware(t *testing.T) {
	var seen string
	engine := gin.New()
	engine.Use(RequestIDMiddleware())
	engine.GET("/ws", func(c *gin.Context) {
		seen = logger.RequestID(c.Request.Context())
		c.Status(http.StatusNoContent)
	})

	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ws", nil))
	require.NotEmpty(t, seen)
	assert.Equal(t, seen, rec.Header().Get("X-Request-Id"))

	req := httptest.NewRequest(http.MethodGet, "/ws", nil)
	req.Header.Set("X-Request-Id", "client-supplied")
	rec = httptest.NewRecorder()
	engine.ServeHTTP(rec, req)
	assert.Equal(t, "client-supplied", seen)
	assert.Equal(t, "client-supplied", rec.Header().Get("X-Request-Id"))
}

func TestLoggingMiddleware(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	l := &logger.Logger{Logger: zap.New(core)}

	engine := gin.New()
	engine.Use(LoggingMiddleware(l))
	engine.GET("/ws", func(c *gin.Context) { c.Status(http.StatusTeapot) })

	engine.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/ws", nil))

	require.Equal(t, 1, logs.Len())
	assert.Contains(t, logs.All()[0].Message, "GET /ws 418")
}

func TestErrorHandler(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	l := &logger.Logger{Logger: zap.New(core)}

	engine := gin.New()
	engine.Use(ErrorHandler(l))
	engine.GET("/unwritten", func(c *gin.Context) { _ = c.Error(errors.New("boom")) })
	engine.GET("/written", func(c *gin.Context) {
		c.String(http.StatusBadRequest, "bad handshake")
		_ = c.Error(errors.New("upgrade failed"))
	})

	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/unwritten", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"success":false,"error":"boom","code":"INTERNAL_ERROR"}`, rec.Body.String())

	rec = httptest.NewRecorder()
	engine.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/written", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "bad handshake", rec.Body.String())

	assert.Equal(t, 2, logs.Len())
}
