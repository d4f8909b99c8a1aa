package config

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Supported VISITOR_STORE values
const (
	StoreFile     = "file"
	StoreSQLite   = "sqlite"
	StoreBadger   = "badger"
	StoreRedis    = "redis"
	StorePostgres = "postgres"
)

// Config holds all configuration values for the application
type Config struct {
	Port           string
	AllowedOrigins []string
	LogLevel       string
	Environment    string

	VisitorStore    string
	VisitorDataPath string // file path for file/sqlite, directory for badger
	DatabaseURL     string
	RedisURL        string

	ModelPath           string
	PredictionCacheSize int

	SessionSecret     string
	SessionCookieName string
	SessionTTL        time.Duration

	AdminAPIKey        string
	RateLimitPerMinute int
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	store := strings.ToLower(getEnv("VISITOR_STORE", StoreFile))

	cfg := &Config{
		Port:                getEnv("PORT", "8080"),
		AllowedOrigins:      parseOrigins(getEnv("ALLOWED_ORIGINS", "http://localhost:5173,http://localhost:8501")),
		LogLevel:            getEnv("LOG_LEVEL", "info"),
		Environment:         getEnv("ENVIRONMENT", "production"),
		VisitorStore:        store,
		VisitorDataPath:     getEnv("VISITOR_DATA_PATH", defaultDataPath(store)),
		DatabaseURL:         getEnv("DATABASE_URL", ""),
		RedisURL:            getEnv("REDIS_URL", ""),
		ModelPath:           getEnv("MODEL_PATH", "models/crop_forest.json"),
		PredictionCacheSize: getIntEnv("PREDICTION_CACHE_SIZE", 1024),
		SessionSecret:       getEnv("SESSION_SECRET", ""),
		SessionCookieName:   getEnv("SESSION_COOKIE_NAME", "crop_session"),
		SessionTTL:          time.Duration(getIntEnv("SESSION_TTL_HOURS", 24)) * time.Hour,
		AdminAPIKey:         getEnv("ADMIN_API_KEY", ""),
		RateLimitPerMinute:  getIntEnv("RATE_LIMIT_PER_MINUTE", 120),
	}

	if cfg.SessionSecret == "" {
		// Sessions will not survive a restart, which only re-counts returning browsers
		secret, err := randomSecret()
		if err != nil {
			return nil, fmt.Errorf("failed to generate session secret: %w", err)
		}
		cfg.SessionSecret = secret
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that the selected backend has what it needs
func (c *Config) Validate() error {
	switch c.VisitorStore {
	case StoreFile, StoreSQLite:
		if c.VisitorDataPath == "" {
			return fmt.Errorf("VISITOR_DATA_PATH is required for the %s visitor store", c.VisitorStore)
		}
	case StoreBadger:
		// an empty path runs badger in memory
	case StoreRedis:
		if c.RedisURL == "" {
			return fmt.Errorf("REDIS_URL is required for the redis visitor store")
		}
	case StorePostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required for the postgres visitor store")
		}
	default:
		return fmt.Errorf("unknown VISITOR_STORE %q", c.VisitorStore)
	}

	if c.ModelPath == "" {
		return fmt.Errorf("MODEL_PATH is required")
	}
	if c.PredictionCacheSize < 0 {
		return fmt.Errorf("PREDICTION_CACHE_SIZE must not be negative")
	}
	if c.SessionTTL <= 0 {
		return fmt.Errorf("SESSION_TTL_HOURS must be positive")
	}
	if c.RateLimitPerMinute <= 0 {
		return fmt.Errorf("RATE_LIMIT_PER_MINUTE must be positive")
	}

	return nil
}

// IsProduction reports whether cookies should be marked Secure
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

func defaultDataPath(store string) string {
	switch store {
	case StoreSQLite:
		return "data/visitors.db"
	case StoreBadger:
		return "data/badger"
	default:
		return "data/visitor_data.json"
	}
}

// getEnv gets an environment variable with a fallback value
func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

// getIntEnv gets an integer environment variable with a fallback value
func getIntEnv(key string, fallback int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return fallback
}

// parseOrigins parses comma-separated origins into a slice
func parseOrigins(origins string) []string {
	if origins == "" {
		return []string{}
	}

	parts := strings.Split(origins, ",")
	result := make([]string, 0, len(parts))

	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}

func randomSecret() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
