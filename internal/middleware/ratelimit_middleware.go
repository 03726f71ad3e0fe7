package middleware

import (
	"context"
	"net/http"
	"strconv"

	"ipgeo-ws/internal/redis"
	"ipgeo-ws/internal/transport/httpdto"
	"ipgeo-ws/pkg/logger"

	"github.com/gin-gonic/gin"
)

// HandshakeLimiter is satisfied by *redis.RateLimiter.
type HandshakeLimiter interface {
	AllowHandshake(ctx context.Context, ip string) (*redis.RateLimitResult, error)
}

// HandshakeRateLimitMiddleware rejects upgrade attempts from client IPs that
// exceeded their window with 429, before any session exists. If the limiter
// itself fails the request is let through.
func HandshakeRateLimitMiddleware(limiter HandshakeLimiter, l *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		clientIP := c.ClientIP()

		result, err := limiter.AllowHandshake(c.Request.Context(), clientIP)
		if err != nil {
			if l != nil {
				l.WithContext(c.Request.Context()).Sugar().Warnf("handshake rate limit unavailable for %s: %v", clientIP, err)
			}
			c.Next()
			return
		}

		setRateLimitHeaders(c, result)

		if !result.Allowed {
			if l != nil {
				l.WithContext(c.Request.Context()).Sugar().Infof("handshake rejected for %s: rate limited", clientIP)
			}
			c.JSON(http.StatusTooManyRequests, httpdto.NewErrorResponse("connection rate limit exceeded", "RATE_LIMITED"))
			c.Abort()
			return
		}

		c.Next()
	}
}

// setRateLimitHeaders sets standard rate limit response headers
func setRateLimitHeaders(c *gin.Context, result *redis.RateLimitResult) {
	c.Header("X-RateLimit-Limit", strconv.Itoa(result.Limit))
	c.Header("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
	c.Header("X-RateLimit-Reset", strconv.FormatInt(int64(result.ResetIn.Seconds()), 10))
}
