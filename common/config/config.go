package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all service configuration
type Config struct {
	Service   ServiceConfig
	Database  DatabaseConfig
	Auth      AuthConfig
	Secrets   SecretsConfig
	Poller    PollerConfig
	Telemetry TelemetryConfig
}

// ServiceConfig holds service-specific settings
type ServiceConfig struct {
	Name        string
	Port        int
	Environment string
	LogLevel    string
	LogFormat   string
	DevMode     bool
	CORSOrigins []string
}

// DatabaseConfig holds Postgres connection settings
type DatabaseConfig struct {
	Host        string
	Port        int
	Database    string
	User        string
	Password    string
	URL         string
	MaxConns    int
	MinConns    int
	MaxIdleTime time.Duration
	MaxLifetime time.Duration
}

// AuthConfig holds settings for the JWT surface this service treats as an
// external collaborator. They are loaded from the environment but nothing in
// this service reads them.
type AuthConfig struct {
	JWTSecret            string
	JWTAlgorithm         string
	JWTExpirationMinutes int
}

// SecretsConfig holds keys for the LLM fallback and the credential sealer.
type SecretsConfig struct {
	OpenAIAPIKey  string
	EncryptionKey string
	RedisURL      string // reserved; unused by core, see DESIGN.md
}

// PollerConfig holds Gmail poller tunables.
type PollerConfig struct {
	Enabled         bool
	IntervalSeconds int
}

// TelemetryConfig holds observability settings
type TelemetryConfig struct {
	EnablePprof   bool
	PprofPort     int
	EnableMetrics bool
	MetricsPort   int
}

// Load loads configuration from environment variables
func Load(serviceName string) (*Config, error) {
	cfg := &Config{
		Service: ServiceConfig{
			Name:        serviceName,
			Port:        getEnvInt("PORT", 8080),
			Environment: getEnv("ENVIRONMENT", "development"),
			LogLevel:    getEnv("LOG_LEVEL", "info"),
			LogFormat:   getEnv("LOG_FORMAT", "text"),
			DevMode:     getEnvBool("DEV_MODE", false),
			CORSOrigins: getEnvSlice("CORS_ORIGINS", []string{"*"}),
		},
		Database: DatabaseConfig{
			Host:        getEnv("POSTGRES_HOST", "localhost"),
			Port:        getEnvInt("POSTGRES_PORT", 5432),
			Database:    getEnv("POSTGRES_DB", "agentkit"),
			User:        getEnv("POSTGRES_USER", "agentkit"),
			Password:    getEnv("POSTGRES_PASSWORD", "agentkit"),
			URL:         getEnv("DATABASE_URL", ""),
			MaxConns:    getEnvInt("POSTGRES_MAX_CONNS", 20),
			MinConns:    getEnvInt("POSTGRES_MIN_CONNS", 2),
			MaxIdleTime: getEnvDuration("POSTGRES_MAX_IDLE_TIME", 30*time.Minute),
			MaxLifetime: getEnvDuration("POSTGRES_MAX_LIFETIME", 1*time.Hour),
		},
		Auth: AuthConfig{
			JWTSecret:            getEnv("JWT_SECRET", ""),
			JWTAlgorithm:         getEnv("JWT_ALGORITHM", "HS256"),
			JWTExpirationMinutes: getEnvInt("JWT_EXPIRATION_MINUTES", 60),
		},
		Secrets: SecretsConfig{
			OpenAIAPIKey:  getEnv("OPENAI_API_KEY", ""),
			EncryptionKey: getEnv("ENCRYPTION_KEY", ""),
			RedisURL:      getEnv("REDIS_URL", ""),
		},
		Poller: PollerConfig{
			Enabled:         getEnvBool("POLLER_ENABLED", true),
			IntervalSeconds: getEnvInt("POLLER_INTERVAL_SECONDS", 60),
		},
		Telemetry: TelemetryConfig{
			EnablePprof:   getEnvBool("ENABLE_PPROF", true),
			PprofPort:     getEnvInt("PPROF_PORT", 6060),
			EnableMetrics: getEnvBool("ENABLE_METRICS", true),
			MetricsPort:   getEnvInt("METRICS_PORT", 9090),
		},
	}

	return cfg, cfg.Validate()
}

// Validate checks if configuration is valid
func (c *Config) Validate() error {
	if c.Service.Port < 1 || c.Service.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Service.Port)
	}

	if c.Database.URL == "" && c.Database.Host == "" {
		return fmt.Errorf("database host or DATABASE_URL is required")
	}

	if c.Database.MaxConns < c.Database.MinConns {
		return fmt.Errorf("max_conns must be >= min_conns")
	}

	if c.Poller.IntervalSeconds <= 0 {
		return fmt.Errorf("poller interval must be positive")
	}

	return nil
}

// DatabaseURL returns the PostgreSQL connection string, preferring an
// explicit DATABASE_URL over the discrete POSTGRES_* fields.
func (c *Config) DatabaseURL() string {
	if c.Database.URL != "" {
		return c.Database.URL
	}
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=disable",
		c.Database.User,
		c.Database.Password,
		c.Database.Host,
		c.Database.Port,
		c.Database.Database,
	)
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
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

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
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

func getEnvSlice(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		parts := strings.Split(value, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
		if len(out) > 0 {
			return out
		}
	}
	return defaultValue
}
