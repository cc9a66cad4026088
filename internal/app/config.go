package app

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	APIBaseURL string // Optional: explicit backend base URL, overrides Env/Platform resolution
	APIPrefix  string // Optional: path prefix for all API routes (default: /api/v1)
	Platform   string // Optional: client platform (android, ios, other) used for dev URL resolution
	Env        string // Environment (dev, prod) (default: dev)

	Timeout       time.Duration // Optional: per-attempt request timeout (default: 30s)
	RetryAttempts int           // Optional: total attempts per request (default: 3)
	RetryDelay    time.Duration // Optional: base retry backoff (default: 1s)
	UseCookies    bool          // Optional: cookie-session mode instead of bearer tokens
	RateLimit     float64       // Optional: outbound requests per second, 0 disables (default: 0)
	RateBurst     int           // Optional: rate limiter burst size (default: 5)

	DatabaseFile  string // Optional: path to SQLite credential store (default: ./travion.db)
	MasterKeyPath string // Optional: path to master encryption key file

	LogLevel  string // Log level (debug, info, warn, error) (default: info)
	LogFormat string // Log format (json, text) (default: text)
}

func LoadConfig() Config {
	cfg := Config{
		APIBaseURL:    os.Getenv("TRAVION_API_BASE_URL"), // Optional: wins over resolution
		APIPrefix:     getEnvOrDefault("TRAVION_API_PREFIX", "/api/v1"),
		Platform:      getEnvOrDefault("TRAVION_PLATFORM", "other"),
		Env:           getEnvOrDefault("ENV", "dev"),
		Timeout:       getEnvDurationOrDefault("TRAVION_TIMEOUT", 30*time.Second),
		RetryAttempts: getEnvIntOrDefault("TRAVION_RETRY_ATTEMPTS", 3),
		RetryDelay:    getEnvDurationOrDefault("TRAVION_RETRY_DELAY", time.Second),
		UseCookies:    getEnvBoolOrDefault("TRAVION_USE_COOKIES", false),
		RateBurst:     getEnvIntOrDefault("TRAVION_RATE_BURST", 5),
		DatabaseFile:  getEnvOrDefault("TRAVION_DATABASE_FILE", "travion.db"),
		MasterKeyPath: os.Getenv("TRAVION_MASTER_KEY_PATH"), // Optional
		LogLevel:      getEnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:     getEnvOrDefault("LOG_FORMAT", "text"),
	}

	if limitStr := os.Getenv("TRAVION_RATE_LIMIT"); limitStr != "" {
		if limit, err := strconv.ParseFloat(limitStr, 64); err == nil {
			cfg.RateLimit = limit
		}
	}

	return cfg
}

// BaseURL resolves the backend origin. An explicit override always wins. In
// dev the Android emulator reaches the host machine via 10.0.2.2 while the
// iOS simulator shares the host loopback.
func (c Config) BaseURL() string {
	if c.APIBaseURL != "" {
		return c.APIBaseURL
	}
	if c.Env == "prod" {
		return "https://api.travion.com"
	}
	if c.Platform == "android" {
		return "http://10.0.2.2:3001"
	}
	return "http://localhost:3001"
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	if intValue, err := strconv.Atoi(value); err == nil {
		return intValue
	}

	return defaultValue
}

func getEnvBoolOrDefault(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	if boolValue, err := strconv.ParseBool(value); err == nil {
		return boolValue
	}

	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	if duration, err := time.ParseDuration(value); err == nil {
		return duration
	}

	// Plain integers are taken as seconds
	if seconds, err := strconv.Atoi(value); err == nil {
		return time.Duration(seconds) * time.Second
	}

	return defaultValue
}
