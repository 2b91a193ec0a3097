// Package config loads edge-router configuration from the environment.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration for the edge router.
type Config struct {
	Port      int
	Version   string
	Registry  RegistryConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	NATS      NATSConfig
	Telemetry TelemetryConfig
	Auth      AuthConfig
	Gateway   GatewayConfig
	Webhook   WebhookConfig
}

type RegistryConfig struct {
	Path string
}

type DatabaseConfig struct {
	URL            string
	MaxConnections int
	MigrationsPath string
}

type RedisConfig struct {
	URL string
}

type NATSConfig struct {
	URL string
}

type TelemetryConfig struct {
	Enabled      bool
	OTLPEndpoint string
	ServiceName  string
}

type AuthConfig struct {
	JWTSecret        string
	JWTIssuer        string
	APIKeyHeader     string
	SessionCookie    string
	PBKDF2Iterations int
}

type GatewayConfig struct {
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration
	ConnectTimeout    time.Duration
	DispatchTimeout   time.Duration
	MaxBodyBytes      int64
	CORSAllowOrigins  []string
	RateLimitPerMin   int
	RateLimitBurst    int
	AuditRetentionDays int
	WSRooms           []string
	InternalToken     string
	OriginPools       map[string]string
}

type WebhookConfig struct {
	QueueCapacity int
	ReplayWindow  time.Duration
	Secrets       map[string]string
}

// Load reads configuration from environment variables with sensible defaults.
func Load() *Config {
	return &Config{
		Port:    envInt("EDGEROUTER_PORT", 8080),
		Version: envStr("EDGEROUTER_VERSION", "0.1.0"),
		Registry: RegistryConfig{
			Path: envStr("REGISTRY_PATH", "registry.yaml"),
		},
		Database: DatabaseConfig{
			URL:            envStr("DATABASE_URL", ""),
			MaxConnections: envInt("DATABASE_MAX_CONNECTIONS", 25),
			MigrationsPath: envStr("DATABASE_MIGRATIONS_PATH", "internal/audit/pgstore/migrations"),
		},
		Redis: RedisConfig{
			URL: envStr("REDIS_URL", ""),
		},
		NATS: NATSConfig{
			URL: envStr("NATS_URL", ""),
		},
		Telemetry: TelemetryConfig{
			Enabled:      envBool("OTEL_ENABLED", true),
			OTLPEndpoint: envStr("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			ServiceName:  envStr("OTEL_SERVICE_NAME", "edge-router"),
		},
		Auth: AuthConfig{
			JWTSecret:        envStr("AUTH_JWT_SECRET", ""),
			JWTIssuer:        envStr("AUTH_JWT_ISSUER", "edge-router"),
			APIKeyHeader:     envStr("AUTH_API_KEY_HEADER", "X-API-Key"),
			SessionCookie:    envStr("AUTH_SESSION_COOKIE", "er_session"),
			PBKDF2Iterations: envInt("AUTH_PBKDF2_ITERATIONS", 120000),
		},
		Gateway: GatewayConfig{
			ReadTimeout:        envDuration("GATEWAY_READ_TIMEOUT", 10*time.Second),
			WriteTimeout:       envDuration("GATEWAY_WRITE_TIMEOUT", 30*time.Second),
			IdleTimeout:        envDuration("GATEWAY_IDLE_TIMEOUT", 120*time.Second),
			ConnectTimeout:     envDuration("GATEWAY_CONNECT_TIMEOUT", 5*time.Second),
			DispatchTimeout:    envDuration("GATEWAY_DISPATCH_TIMEOUT", 30*time.Second),
			MaxBodyBytes:       envInt64("GATEWAY_MAX_BODY_BYTES", 10<<20),
			CORSAllowOrigins:   envList("GATEWAY_CORS_ORIGINS", []string{"*"}),
			RateLimitPerMin:    envInt("GATEWAY_RATE_LIMIT_PER_MIN", 120),
			RateLimitBurst:     envInt("GATEWAY_RATE_LIMIT_BURST", 20),
			AuditRetentionDays: envInt("AUDIT_RETENTION_DAYS", 90),
			WSRooms:            envList("GATEWAY_WS_ROOMS", []string{"signals", "metrics", "alerts", "chat", "status"}),
			InternalToken:      envStr("GATEWAY_INTERNAL_TOKEN", ""),
			OriginPools:        envOriginPools(),
		},
		Webhook: WebhookConfig{
			QueueCapacity: envInt("WEBHOOK_QUEUE_CAPACITY", 1024),
			ReplayWindow:  envDuration("WEBHOOK_REPLAY_WINDOW", 300*time.Second),
			Secrets:       envSecretMap(),
		},
	}
}

// envOriginPools reads the upstream base URL for each of the three origin
// pools the proxy forwards to (primary, storage, agents; spec.md §6's
// path-to-origin map). No compute pool is read. A pool
// with no URL configured is simply omitted — the proxy then answers
// 502 origin_unreachable for paths that resolve to it.
func envOriginPools() map[string]string {
	pools := map[string]string{"primary": "", "storage": "", "agents": ""}
	out := make(map[string]string, len(pools))
	for name := range pools {
		key := "GATEWAY_ORIGIN_" + strings.ToUpper(name) + "_URL"
		if url := envStr(key, ""); url != "" {
			out[name] = url
		}
	}
	return out
}

func envSecretMap() map[string]string {
	providers := []string{"github", "stripe", "salesforce", "slack", "cloudflare", "google", "figma"}
	out := make(map[string]string, len(providers))
	for _, p := range providers {
		key := "WEBHOOK_SECRET_" + strings.ToUpper(p)
		out[p] = envStr(key, "")
	}
	return out
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func envInt64(key string, fallback int64) int64 {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.ParseInt(v, 10, 64); err == nil {
			return i
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func envList(key string, fallback []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}
