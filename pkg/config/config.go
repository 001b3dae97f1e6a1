package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/joho/godotenv"
)

// Config holds process-wide configuration, loaded once at startup and
// treated as immutable for the process lifetime.
type Config struct {
	Environment string
	Port        string

	// PostgresDSN selects the Postgres store; empty falls back to the
	// in-memory store (local development only).
	PostgresDSN string

	// SessionSecret keys the HMAC binding of session tokens. It is injected
	// into the resolver at construction, never read at call sites.
	SessionSecret string

	AllowedOrigins []string

	Debug bool
}

// LoadConfig reads the environment, backed by .env files per environment.
func LoadConfig() *Config {
	env := os.Getenv("ENVIRONMENT")
	if env == "" {
		env = "development"
	}

	// Existing environment variables win over .env file contents.
	switch env {
	case "production":
		_ = godotenv.Load(".env.production")
	default:
		_ = godotenv.Load(".env.local")
	}

	cfg := &Config{
		Environment:   getEnvWithDefault("ENVIRONMENT", "development"),
		Port:          getEnvWithDefault("PORT", "3000"),
		PostgresDSN:   strings.TrimSpace(os.Getenv("POSTGRES_DSN")),
		SessionSecret: strings.TrimSpace(os.Getenv("SESSION_SECRET")),
		Debug:         getEnvBool("DEBUG", false),
	}

	allowedOrigins := getEnvWithDefault("ALLOWED_ORIGINS", "*")
	if allowedOrigins == "*" {
		cfg.AllowedOrigins = []string{"*"}
	} else {
		cfg.AllowedOrigins = strings.Split(allowedOrigins, ",")
	}

	if cfg.Environment == "production" {
		cfg.Debug = false
	}

	return cfg
}

var (
	cachedConfig *Config
	configOnce   sync.Once
)

// GetCached returns the process-wide cached Config, initialized once.
func GetCached() *Config {
	configOnce.Do(func() {
		cachedConfig = LoadConfig()
	})
	return cachedConfig
}

// Validate checks the configuration for fatal problems.
func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("PORT is required")
	}

	if c.SessionSecret == "" {
		return fmt.Errorf("SESSION_SECRET is required (set it in the environment or .env file)")
	}

	if c.IsProduction() && c.PostgresDSN == "" {
		return fmt.Errorf("POSTGRES_DSN is required in production")
	}

	return nil
}

// IsProduction reports whether the server runs in production mode.
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// IsDevelopment reports whether the server runs in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

func getEnvWithDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}
