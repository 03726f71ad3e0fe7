package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	AppMode         string
	ProxyPort       string
	HeartbeatPort   string
	HeartbeatPath   string
	IdleTimeout     time.Duration
	UpstreamBaseURL string
	UpstreamTimeout time.Duration
	RedisAddr       string
	RedisPassword   string
	RedisDB         int
	HandshakeLimit  int
	HandshakeWindow time.Duration
}

const (
	DefaultProxyPort       = "45278"
	DefaultHeartbeatPort   = "45203"
	DefaultHeartbeatPath   = "/ws"
	DefaultIdleTimeout     = 180 * time.Second
	DefaultUpstreamBaseURL = "https://fur1.foxomy.com/rustapps/ipgeolocation"
	DefaultUpstreamTimeout = 30 * time.Second
)

func LoadConfig() *Config {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	return &Config{
		AppMode:         getEnv("APP_MODE", "debug"),
		ProxyPort:       getEnv("PROXY_PORT", DefaultProxyPort),
		HeartbeatPort:   getEnv("HEARTBEAT_PORT", DefaultHeartbeatPort),
		HeartbeatPath:   getEnv("HEARTBEAT_PATH", DefaultHeartbeatPath),
		IdleTimeout:     getEnvAsDuration("IDLE_TIMEOUT", DefaultIdleTimeout),
		UpstreamBaseURL: getEnv("UPSTREAM_BASE_URL", DefaultUpstreamBaseURL),
		UpstreamTimeout: getEnvAsDuration("UPSTREAM_TIMEOUT", DefaultUpstreamTimeout),
		RedisAddr:       getEnv("REDIS_ADDR", ""),
		RedisPassword:   getEnv("REDIS_PASSWORD", ""),
		RedisDB:         getEnvAsInt("REDIS_DB", 0),
		HandshakeLimit:  getEnvAsInt("HANDSHAKE_LIMIT", 60),
		HandshakeWindow: getEnvAsDuration("HANDSHAKE_WINDOW", time.Minute),
	}
}

// RateLimitEnabled reports whether a Redis address was configured.
func (c *Config) RateLimitEnabled() bool {
	return c.RedisAddr != ""
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return fallback
}

func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if value, err := time.ParseDuration(valueStr); err == nil && value > 0 {
		return value
	}
	return fallback
}
