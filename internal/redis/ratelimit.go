package redis

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// Key pattern: ratelimit:{ip}:handshake, TTL = window.

// RateLimitConfig contains configuration for handshake rate limiting
type RateLimitConfig struct {
	HandshakeLimit  int           // Max upgrades per window per client IP
	HandshakeWindow time.Duration // Rate limit window
}

// DefaultRateLimitConfig returns sensible defaults
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		HandshakeLimit:  60,
		HandshakeWindow: 60 * time.Second,
	}
}

// WithOverrides replaces the limit and window with any positive values given.
func (c RateLimitConfig) WithOverrides(limit int, window time.Duration) RateLimitConfig {
	if limit > 0 {
		c.HandshakeLimit = limit
	}
	if window > 0 {
		c.HandshakeWindow = window
	}
	return c
}

// RateLimitResult contains the result of a rate limit check
type RateLimitResult struct {
	Allowed   bool          // Whether the action is allowed
	Remaining int           // Remaining actions in the window
	ResetIn   time.Duration // Time until the window resets
	Limit     int           // The limit for this action
}

// fixed window counter: GET, compare, INCR, EXPIRE on first hit
var checkLimitScript = goredis.NewScript(`
	local key = KEYS[1]
	local limit = tonumber(ARGV[1])
	local window = tonumber(ARGV[2])

	local current = redis.call('GET', key)
	if current == false then
		current = 0
	else
		current = tonumber(current)
	end

	local ttl = redis.call('TTL', key)
	if ttl < 0 then
		ttl = window
	end

	if current < limit then
		redis.call('INCR', key)
		if ttl == window then
			redis.call('EXPIRE', key, window)
		end
		return {1, limit - current - 1, ttl}
	else
		return {0, 0, ttl}
	end
`)

// RateLimiter limits WebSocket handshakes per client IP using Redis
type RateLimiter struct {
	client *goredis.Client
	config RateLimitConfig
}

// NewRateLimiter creates a new rate limiter
func NewRateLimiter(client *goredis.Client, config RateLimitConfig) *RateLimiter {
	return &RateLimiter{
		client: client,
		config: config,
	}
}

func handshakeKey(ip string) string {
	return fmt.Sprintf("ratelimit:%s:handshake", ip)
}

// AllowHandshake checks whether ip may open another connection in the current window
func (r *RateLimiter) AllowHandshake(ctx context.Context, ip string) (*RateLimitResult, error) {
	return r.checkLimit(ctx, handshakeKey(ip), r.config.HandshakeLimit, r.config.HandshakeWindow)
}

func (r *RateLimiter) checkLimit(ctx context.Context, key string, limit int, window time.Duration) (*RateLimitResult, error) {
	result, err := checkLimitScript.Run(ctx, r.client, []string{key}, limit, int(window.Seconds())).Result()
	if err != nil {
		return nil, fmt.Errorf("rate limit check failed: %w", err)
	}
	return parseLimitResult(result, limit)
}

// parseLimitResult decodes the {allowed, remaining, ttl} reply of the script.
func parseLimitResult(result interface{}, limit int) (*RateLimitResult, error) {
	resultSlice, ok := result.([]interface{})
	if !ok || len(resultSlice) < 3 {
		return nil, fmt.Errorf("unexpected rate limit result format")
	}

	values := make([]int64, 3)
	for i := range values {
		v, ok := resultSlice[i].(int64)
		if !ok {
			return nil, fmt.Errorf("unexpected rate limit result element %d: %T", i, resultSlice[i])
		}
		values[i] = v
	}

	return &RateLimitResult{
		Allowed:   values[0] == 1,
		Remaining: int(values[1]),
		ResetIn:   time.Duration(values[2]) * time.Second,
		Limit:     limit,
	}, nil
}
