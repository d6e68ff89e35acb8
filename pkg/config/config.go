package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/guildhall-io/guildhall/pkg/observability"
)

// Config holds all application configuration.
type Config struct {
	Server        ServerConfig
	Database      DatabaseConfig
	Redis         RedisConfig
	Auth          AuthConfig
	Governance    GovernanceConfig
	Observability ObservabilityConfig
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host            string
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	// Health/metrics server (separate port for probes)
	HealthPort string
}

// DatabaseConfig holds PostgreSQL settings.
type DatabaseConfig struct {
	URL          string
	MaxOpenConns int
	MaxIdleConns int
	Timeout      time.Duration
}

// RedisConfig holds the optional Redis settings for rate limiting.
// Leaving URL empty disables the rate limiter.
type RedisConfig struct {
	URL               string
	Password          string
	DB                int
	RequestsPerMinute int
}

// AuthMode selects how bearer tokens are verified.
type AuthMode string

const (
	AuthModeOIDC AuthMode = "oidc"
	// AuthModeStatic maps fixed tokens to subjects, for local development.
	AuthModeStatic AuthMode = "static"
)

// AuthConfig holds identity provider settings.
type AuthConfig struct {
	Mode         AuthMode
	OIDCIssuer   string
	OIDCClientID string

	// StaticTokens is "token=subject,token2=subject2", static mode only.
	StaticTokens map[string]string
}

// GovernanceConfig holds subsystem-specific settings.
type GovernanceConfig struct {
	PolicyPath     string
	AuditEnabled   bool
	AuditRetention time.Duration

	// AuditSweepSchedule is a cron expression for the retention sweep.
	AuditSweepSchedule string
}

// ObservabilityConfig holds logging, metrics and tracing settings.
type ObservabilityConfig struct {
	LogLevel       observability.LogLevel
	MetricsEnabled bool

	OTelEnabled        bool
	OTelEndpoint       string
	OTelServiceName    string
	OTelServiceVersion string
	OTelInsecure       bool
}

// LoadConfig loads configuration from environment variables.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Host:            getEnv("GUILDHALL_HOST", "0.0.0.0"),
			Port:            getEnv("GUILDHALL_PORT", "8080"),
			ReadTimeout:     getEnvDuration("GUILDHALL_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:    getEnvDuration("GUILDHALL_WRITE_TIMEOUT", 15*time.Second),
			IdleTimeout:     getEnvDuration("GUILDHALL_IDLE_TIMEOUT", 60*time.Second),
			ShutdownTimeout: getEnvDuration("GUILDHALL_SHUTDOWN_TIMEOUT", 30*time.Second),
			HealthPort:      getEnv("GUILDHALL_HEALTH_PORT", "9090"),
		},
		Database: DatabaseConfig{
			URL:          getEnv("GUILDHALL_POSTGRES_URL", ""),
			MaxOpenConns: getEnvInt("GUILDHALL_POSTGRES_MAX_CONNS", 20),
			MaxIdleConns: getEnvInt("GUILDHALL_POSTGRES_IDLE_CONNS", 2),
			Timeout:      getEnvDuration("GUILDHALL_POSTGRES_TIMEOUT", 5*time.Second),
		},
		Redis: RedisConfig{
			URL:               getEnv("GUILDHALL_REDIS_URL", ""),
			Password:          getEnv("GUILDHALL_REDIS_PASSWORD", ""),
			DB:                getEnvInt("GUILDHALL_REDIS_DB", 0),
			RequestsPerMinute: getEnvInt("GUILDHALL_RATE_LIMIT_PER_MINUTE", 120),
		},
		Auth: AuthConfig{
			Mode:         AuthMode(getEnv("GUILDHALL_AUTH_MODE", string(AuthModeOIDC))),
			OIDCIssuer:   getEnv("GUILDHALL_OIDC_ISSUER", ""),
			OIDCClientID: getEnv("GUILDHALL_OIDC_CLIENT_ID", ""),
			StaticTokens: parseStaticTokens(getEnv("GUILDHALL_STATIC_TOKENS", "")),
		},
		Governance: GovernanceConfig{
			PolicyPath:         getEnv("GUILDHALL_POLICY_PATH", "policy.json"),
			AuditEnabled:       getEnvBool("GUILDHALL_AUDIT_ENABLED", true),
			AuditRetention:     getEnvDuration("GUILDHALL_AUDIT_RETENTION", 90*24*time.Hour),
			AuditSweepSchedule: getEnv("GUILDHALL_AUDIT_SWEEP_SCHEDULE", "0 3 * * *"),
		},
		Observability: ObservabilityConfig{
			LogLevel:           parseLogLevel(getEnv("GUILDHALL_LOG_LEVEL", "info")),
			MetricsEnabled:     getEnvBool("GUILDHALL_METRICS_ENABLED", true),
			OTelEnabled:        getEnvBool("GUILDHALL_OTEL_ENABLED", false),
			OTelEndpoint:       getEnv("GUILDHALL_OTEL_ENDPOINT", "localhost:4317"),
			OTelServiceName:    getEnv("GUILDHALL_OTEL_SERVICE_NAME", "guildhall"),
			OTelServiceVersion: getEnv("GUILDHALL_OTEL_SERVICE_VERSION", "1.0.0"),
			OTelInsecure:       getEnvBool("GUILDHALL_OTEL_INSECURE", true),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// Validate checks the configuration is coherent.
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}
	if c.Server.HealthPort == "" {
		return fmt.Errorf("health port is required")
	}
	if c.Server.Port == c.Server.HealthPort {
		return fmt.Errorf("server port and health port must be different")
	}

	if c.Database.URL == "" {
		return fmt.Errorf("postgres URL is required")
	}

	switch c.Auth.Mode {
	case AuthModeOIDC:
		if c.Auth.OIDCIssuer == "" || c.Auth.OIDCClientID == "" {
			return fmt.Errorf("OIDC issuer and client id are required in oidc auth mode")
		}
	case AuthModeStatic:
		if len(c.Auth.StaticTokens) == 0 {
			return fmt.Errorf("static auth mode needs at least one token in GUILDHALL_STATIC_TOKENS")
		}
	default:
		return fmt.Errorf("invalid auth mode: %s (must be oidc or static)", c.Auth.Mode)
	}

	if c.Governance.PolicyPath == "" {
		return fmt.Errorf("policy path is required")
	}
	if c.Governance.AuditEnabled && c.Governance.AuditRetention <= 0 {
		return fmt.Errorf("audit retention must be positive when auditing is enabled")
	}

	if c.Observability.OTelEnabled && c.Observability.OTelEndpoint == "" {
		return fmt.Errorf("OpenTelemetry endpoint is required when OTel is enabled")
	}
	return nil
}

// parseStaticTokens parses "token=subject,token2=subject2".
func parseStaticTokens(raw string) map[string]string {
	if raw == "" {
		return nil
	}
	tokens := make(map[string]string)
	for _, pair := range strings.Split(raw, ",") {
		parts := strings.SplitN(strings.TrimSpace(pair), "=", 2)
		if len(parts) == 2 && parts[0] != "" && parts[1] != "" {
			tokens[parts[0]] = parts[1]
		}
	}
	return tokens
}

func parseLogLevel(level string) observability.LogLevel {
	switch strings.ToLower(level) {
	case "debug":
		return observability.DebugLevel
	case "info":
		return observability.InfoLevel
	case "warn", "warning":
		return observability.WarnLevel
	case "error":
		return observability.ErrorLevel
	default:
		return observability.InfoLevel
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return strings.ToLower(value) == "true" || value == "1"
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
