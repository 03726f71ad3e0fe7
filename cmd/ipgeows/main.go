// Command ipgeows bridges WebSocket clients to the IP geolocation API.
// Each text frame {"api":"...","ip":"...","id":"..."} becomes one upstream
// GET, and the JSON answer is written back on the same connection.
package main

import (
	"context"
	"log"

	"ipgeo-ws/config"
	"ipgeo-ws/internal/lookup"
	"ipgeo-ws/internal/middleware"
	"ipgeo-ws/internal/protocol"
	"ipgeo-ws/internal/redis"
	"ipgeo-ws/internal/server"
	"ipgeo-ws/internal/session"
	"ipgeo-ws/pkg/logger"
)

func main() {
	cfg := config.LoadConfig()

	l := logger.New(cfg.AppMode)
	logger.SetGlobalLogger(l)
	defer l.Sync()

	// One client for the whole process, shared by every session.
	client := lookup.NewClient(cfg.UpstreamBaseURL, cfg.UpstreamTimeout)

	opts := server.Options{
		Variant: server.VariantProxy,
		Port:    cfg.ProxyPort,
		Handler: protocol.NewProxy(client),
		Session: session.ProxyConfig(cfg.IdleTimeout),
	}

	if cfg.RateLimitEnabled() {
		limiter, closeFn := newLimiter(cfg, l)
		defer closeFn()
		opts.Limiter = limiter
	}

	l.Infof("WebSocket server running on ws://0.0.0.0:%s (upstream %s)", cfg.ProxyPort, client.BaseURL())
	if err := server.New(cfg, l, opts).Start(); err != nil {
		log.Fatalf("Server error: %v", err)
	}
}

func newLimiter(cfg *config.Config, l *logger.Logger) (middleware.HandshakeLimiter, func()) {
	rdb := redis.NewClient(redis.Config{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	if err := redis.Ping(context.Background(), rdb); err != nil {
		l.Errorf("Handshake rate limiting degraded: %s", err)
	}
	limiter := redis.NewRateLimiter(rdb,
		redis.DefaultRateLimitConfig().WithOverrides(cfg.HandshakeLimit, cfg.HandshakeWindow))
	return limiter, func() { _ = rdb.Close() }
}
