package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/xceleratortech/communitiesx/pkg/observability"
)

// Config holds all application configuration
type Config struct {
	Server        ServerConfig
	Database      DatabaseConfig
	Redis         RedisConfig
	Cache         CacheConfig
	Push          PushConfig
	Notify        NotifyConfig
	Auth          AuthConfig
	Observability ObservabilityConfig

	// OverlayPath is an optional YAML file layered on top of the
	// environment, watched for changes at runtime.
	OverlayPath string
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	// Health/metrics server (separate port for k8s probes)
	HealthPort string

	// AllowedOrigins enables CORS for the listed origins. Empty means
	// CORS headers are not emitted.
	AllowedOrigins []string
}

// DatabaseConfig holds PostgreSQL connection configuration
type DatabaseConfig struct {
	URL         string
	ReplicaURLs string // comma-separated read replicas
	MaxConns    int
	MinConns    int
	Timeout     time.Duration
	MaxLifetime time.Duration
	MaxIdleTime time.Duration
}

// RedisConfig holds Redis connection configuration. Redis is optional;
// an empty URL disables the L2 cache and distributed rate limiting.
type RedisConfig struct {
	URL        string
	Password   string
	DB         int
	MaxRetries int
	PoolSize   int
}

// CacheConfig holds role-set cache settings
type CacheConfig struct {
	Enabled   bool
	L1Entries int
	TTL       time.Duration
}

// PushConfig holds web push (VAPID) configuration. Both keys empty means
// push delivery is disabled and dispatch degrades to in-app only.
type PushConfig struct {
	VAPIDPublicKey  string
	VAPIDPrivateKey string
	Subject         string
	Timeout         time.Duration
	Concurrency     int
	TTL             int // push message TTL in seconds
}

// Enabled reports whether web push delivery is configured.
func (p PushConfig) Enabled() bool {
	return p.VAPIDPublicKey != "" && p.VAPIDPrivateKey != ""
}

// NotifyConfig holds notification dispatch and retention settings
type NotifyConfig struct {
	TitleMaxLen       int
	RetentionDays     int
	SweepSchedule     string // cron expression
	StaleSubscription time.Duration
}

// AuthConfig holds API token settings
type AuthConfig struct {
	TokenTTL time.Duration
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	LogLevel observability.LogLevel

	MetricsEnabled bool

	OTelEnabled        bool
	OTelEndpoint       string
	OTelServiceName    string
	OTelServiceVersion string
	OTelSampleRate     float64
}

// LoadConfig loads configuration from environment variables, then applies
// the YAML overlay if COMMUNITYD_CONFIG_FILE is set.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		Server:        loadServerConfig(),
		Database:      loadDatabaseConfig(),
		Redis:         loadRedisConfig(),
		Cache:         loadCacheConfig(),
		Push:          loadPushConfig(),
		Notify:        loadNotifyConfig(),
		Auth:          loadAuthConfig(),
		Observability: loadObservabilityConfig(),
		OverlayPath:   getEnv("COMMUNITYD_CONFIG_FILE", ""),
	}

	if cfg.OverlayPath != "" {
		if err := cfg.ApplyOverlay(cfg.OverlayPath); err != nil {
			return nil, fmt.Errorf("failed to apply config overlay: %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

func loadServerConfig() ServerConfig {
	return ServerConfig{
		Host:            getEnv("COMMUNITYD_HOST", "0.0.0.0"),
		Port:            getEnv("COMMUNITYD_PORT", "8080"),
		ReadTimeout:     getEnvDuration("COMMUNITYD_READ_TIMEOUT", 15*time.Second),
		WriteTimeout:    getEnvDuration("COMMUNITYD_WRITE_TIMEOUT", 15*time.Second),
		IdleTimeout:     getEnvDuration("COMMUNITYD_IDLE_TIMEOUT", 60*time.Second),
		ShutdownTimeout: getEnvDuration("COMMUNITYD_SHUTDOWN_TIMEOUT", 30*time.Second),
		HealthPort:      getEnv("COMMUNITYD_HEALTH_PORT", "9090"),
		AllowedOrigins:  splitAndTrim(getEnv("COMMUNITYD_ALLOWED_ORIGINS", "")),
	}
}

func splitAndTrim(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(s, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func loadDatabaseConfig() DatabaseConfig {
	return DatabaseConfig{
		URL:         getEnv("COMMUNITYD_POSTGRES_URL", ""),
		ReplicaURLs: getEnv("COMMUNITYD_POSTGRES_REPLICA_URLS", ""),
		MaxConns:    getEnvInt("COMMUNITYD_POSTGRES_MAX_CONNS", 20),
		MinConns:    getEnvInt("COMMUNITYD_POSTGRES_MIN_CONNS", 2),
		Timeout:     getEnvDuration("COMMUNITYD_POSTGRES_TIMEOUT", 10*time.Second),
		MaxLifetime: getEnvDuration("COMMUNITYD_POSTGRES_MAX_LIFETIME", 30*time.Minute),
		MaxIdleTime: getEnvDuration("COMMUNITYD_POSTGRES_MAX_IDLE_TIME", 5*time.Minute),
	}
}

func loadRedisConfig() RedisConfig {
	return RedisConfig{
		URL:        getEnv("COMMUNITYD_REDIS_URL", ""),
		Password:   getEnv("COMMUNITYD_REDIS_PASSWORD", ""),
		DB:         getEnvInt("COMMUNITYD_REDIS_DB", 0),
		MaxRetries: getEnvInt("COMMUNITYD_REDIS_MAX_RETRIES", 3),
		PoolSize:   getEnvInt("COMMUNITYD_REDIS_POOL_SIZE", 10),
	}
}

func loadCacheConfig() CacheConfig {
	return CacheConfig{
		Enabled:   getEnvBool("COMMUNITYD_CACHE_ENABLED", true),
		L1Entries: getEnvInt("COMMUNITYD_CACHE_L1_ENTRIES", 10000),
		TTL:       getEnvDuration("COMMUNITYD_CACHE_TTL", 5*time.Minute),
	}
}

func loadPushConfig() PushConfig {
	return PushConfig{
		VAPIDPublicKey:  getEnv("COMMUNITYD_VAPID_PUBLIC_KEY", ""),
		VAPIDPrivateKey: getEnv("COMMUNITYD_VAPID_PRIVATE_KEY", ""),
		Subject:         getEnv("COMMUNITYD_VAPID_SUBJECT", "mailto:admin@example.com"),
		Timeout:         getEnvDuration("COMMUNITYD_PUSH_TIMEOUT", 10*time.Second),
		Concurrency:     getEnvInt("COMMUNITYD_PUSH_CONCURRENCY", 16),
		TTL:             getEnvInt("COMMUNITYD_PUSH_TTL", 86400),
	}
}

func loadNotifyConfig() NotifyConfig {
	return NotifyConfig{
		TitleMaxLen:       getEnvInt("COMMUNITYD_NOTIFY_TITLE_MAX_LEN", 100),
		RetentionDays:     getEnvInt("COMMUNITYD_NOTIFY_RETENTION_DAYS", 90),
		SweepSchedule:     getEnv("COMMUNITYD_NOTIFY_SWEEP_SCHEDULE", "0 3 * * *"),
		StaleSubscription: getEnvDuration("COMMUNITYD_NOTIFY_STALE_SUBSCRIPTION", 180*24*time.Hour),
	}
}

func loadAuthConfig() AuthConfig {
	return AuthConfig{
		TokenTTL: getEnvDuration("COMMUNITYD_TOKEN_TTL", 30*24*time.Hour),
	}
}

func loadObservabilityConfig() ObservabilityConfig {
	return ObservabilityConfig{
		LogLevel:           parseLogLevel(getEnv("COMMUNITYD_LOG_LEVEL", "info")),
		MetricsEnabled:     getEnvBool("COMMUNITYD_METRICS_ENABLED", true),
		OTelEnabled:        getEnvBool("COMMUNITYD_OTEL_ENABLED", false),
		OTelEndpoint:       getEnv("COMMUNITYD_OTEL_ENDPOINT", "localhost:4317"),
		OTelServiceName:    getEnv("COMMUNITYD_OTEL_SERVICE_NAME", "communityd"),
		OTelServiceVersion: getEnv("COMMUNITYD_OTEL_SERVICE_VERSION", "1.0.0"),
		OTelSampleRate:     getEnvFloat("COMMUNITYD_OTEL_SAMPLE_RATE", 1.0),
	}
}

// Validate checks if the configuration is valid
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

	// VAPID keys come as a pair; a lone key is a misconfiguration rather
	// than an intent to disable push.
	if (c.Push.VAPIDPublicKey == "") != (c.Push.VAPIDPrivateKey == "") {
		return fmt.Errorf("VAPID public and private keys must be set together")
	}
	if c.Push.Enabled() && c.Push.Subject == "" {
		return fmt.Errorf("VAPID subject is required when push is enabled")
	}
	if c.Push.Concurrency < 1 {
		return fmt.Errorf("push concurrency must be at least 1")
	}

	if c.Notify.TitleMaxLen < 1 {
		return fmt.Errorf("notification title max length must be at least 1")
	}
	if c.Notify.RetentionDays < 0 {
		return fmt.Errorf("notification retention days must not be negative")
	}

	if c.Observability.OTelEnabled {
		if c.Observability.OTelEndpoint == "" {
			return fmt.Errorf("OpenTelemetry endpoint is required when OTel is enabled")
		}
		if c.Observability.OTelServiceName == "" {
			return fmt.Errorf("OpenTelemetry service name is required when OTel is enabled")
		}
	}

	return nil
}

// parseLogLevel parses a log level string
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

// getEnv returns an environment variable value or a default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool returns a boolean environment variable or a default
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return strings.ToLower(value) == "true" || value == "1"
	}
	return defaultValue
}

// getEnvInt returns an integer environment variable or a default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvFloat returns a float environment variable or a default
func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

// getEnvDuration returns a duration environment variable or a default
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
