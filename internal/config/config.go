package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config captures all runtime configuration derived from environment variables.
type Config struct {
	Port                string
	DBDriver            string
	DBURL               string
	ReadTimeoutSecs     int
	WriteTimeoutSecs    int
	IdleTimeoutSecs     int
	DBMaxConns          int
	DBMinConns          int
	DBMaxIdleSecs       int
	DBMaxLifeSecs       int
	DBConnTimeoutSecs   int
	DBStatementCache    int
	CORSAllowedOrigins  []string
	RateLimitRequests   int
	RateLimitWindowSecs int
	LogLevel            string
	LogFormat           string
	MetricsEnabled      bool
}

// LoadDotEnv reads a .env file into the process environment without
// overriding variables that are already set. A missing file is not an error.
func LoadDotEnv(paths ...string) error {
	if err := godotenv.Load(paths...); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load .env: %w", err)
	}
	return nil
}

// Load reads configuration from environment variables, applying defaults and validation.
func Load() (Config, error) {
	cfg := Config{
		Port:                getEnv("PORT", "3000"),
		DBDriver:            strings.ToLower(getEnv("DB_DRIVER", "postgres")),
		DBURL:               os.Getenv("DB_URL"),
		ReadTimeoutSecs:     getEnvInt("SERVER_READ_TIMEOUT", 15),
		WriteTimeoutSecs:    getEnvInt("SERVER_WRITE_TIMEOUT", 15),
		IdleTimeoutSecs:     getEnvInt("SERVER_IDLE_TIMEOUT", 60),
		DBMaxConns:          getEnvInt("DB_MAX_CONNS", 20),
		DBMinConns:          getEnvInt("DB_MIN_CONNS", 2),
		DBMaxIdleSecs:       getEnvInt("DB_MAX_CONN_IDLE_SECS", 300),
		DBMaxLifeSecs:       getEnvInt("DB_MAX_CONN_LIFETIME_SECS", 3600),
		DBConnTimeoutSecs:   getEnvInt("DB_CONN_TIMEOUT_SECS", 10),
		DBStatementCache:    getEnvInt("DB_STATEMENT_CACHE_CAPACITY", 256),
		CORSAllowedOrigins:  getEnvList("CORS_ALLOWED_ORIGINS", []string{"*"}),
		RateLimitRequests:   getEnvInt("RATE_LIMIT_REQUESTS", 0),
		RateLimitWindowSecs: getEnvInt("RATE_LIMIT_WINDOW_SECS", 60),
		LogLevel:            getEnv("LOG_LEVEL", "info"),
		LogFormat:           getEnv("LOG_FORMAT", "json"),
		MetricsEnabled:      getEnvBool("METRICS_ENABLED", true),
	}

	if cfg.DBDriver != "postgres" && cfg.DBDriver != "mysql" {
		return Config{}, fmt.Errorf("DB_DRIVER must be postgres or mysql, got %q", cfg.DBDriver)
	}
	if cfg.DBURL == "" {
		return Config{}, fmt.Errorf("DB_URL is required")
	}
	if cfg.DBMaxConns <= 0 {
		return Config{}, fmt.Errorf("DB_MAX_CONNS must be positive")
	}
	if cfg.DBMinConns < 0 {
		return Config{}, fmt.Errorf("DB_MIN_CONNS must be non-negative")
	}
	if cfg.DBMinConns > cfg.DBMaxConns {
		return Config{}, fmt.Errorf("DB_MIN_CONNS cannot exceed DB_MAX_CONNS")
	}
	if cfg.DBStatementCache < 0 {
		return Config{}, fmt.Errorf("DB_STATEMENT_CACHE_CAPACITY must be non-negative")
	}
	if cfg.RateLimitRequests < 0 {
		return Config{}, fmt.Errorf("RATE_LIMIT_REQUESTS must be non-negative")
	}
	if cfg.RateLimitRequests > 0 && cfg.RateLimitWindowSecs <= 0 {
		return Config{}, fmt.Errorf("RATE_LIMIT_WINDOW_SECS must be positive")
	}
	if f := strings.ToLower(cfg.LogFormat); f != "json" && f != "console" {
		return Config{}, fmt.Errorf("LOG_FORMAT must be json or console, got %q", cfg.LogFormat)
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if val := os.Getenv(key); val != "" {
		if parsed, err := strconv.Atoi(val); err == nil {
			return parsed
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if val := os.Getenv(key); val != "" {
		if parsed, err := strconv.ParseBool(val); err == nil {
			return parsed
		}
	}
	return fallback
}

func getEnvList(key string, fallback []string) []string {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(val, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}
