// Command wsping is a WebSocket heartbeat endpoint: "PING <anything>" is
// answered with "PONG <epoch-millis>".
package main

import (
	"context"
	"log"

	"ipgeo-ws/config"
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

	opts := server.Options{
		Variant: server.VariantHeartbeat,
		Port:    cfg.HeartbeatPort,
		Path:    cfg.HeartbeatPath,
		Handler: protocol.NewHeartbeat(),
		Session: session.HeartbeatConfig(cfg.IdleTimeout),
	}

	if cfg.RateLimitEnabled() {
		rdb := redis.NewClient(redis.Config{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		defer rdb.Close()
		if err := redis.Ping(context.Background(), rdb); err != nil {
			l.Errorf("Handshake rate limiting degraded: %s", err)
		}
		opts.Limiter = redis.NewRateLimiter(rdb,
			redis.DefaultRateLimitConfig().WithOverrides(cfg.HandshakeLimit, cfg.HandshakeWindow))
	}

	l.Infof("WebSocket server listening on ws://0.0.0.0:%s%s", cfg.HeartbeatPort, cfg.HeartbeatPath)
	if err := server.New(cfg, l, opts).Start(); err != nil {
		log.Fatalf("Server error: %v", err)
	}
}
