package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	// Server
	Port        int
	Host        string
	BaseURL     string
	CORSOrigins []string

	// Database
	DatabasePath string

	// Auth
	JWTSecret  string
	TokenTTL   time.Duration
	BcryptCost int

	// Rate Limiting
	RedisURL        string // empty selects the in-memory limiter
	SubmitRateLimit int    // per window
	TagRateLimit    int
	RateRateLimit   int
	FlagRateLimit   int
	SignupRateLimit int
	RateLimitWindow time.Duration

	// Economy
	SubmissionCost int

	// Deferred writes
	QueueWorkers     int
	QueueSize        int
	QueueTaskTimeout time.Duration

	// Listing
	LegacyPageOffset bool
}

func Load() *Config {
	return &Config{
		Port:             getEnvInt("PORT", 8080),
		Host:             getEnv("HOST", "0.0.0.0"),
		BaseURL:          getEnv("BASE_URL", "http://localhost:8080"),
		CORSOrigins:      getEnvList("CORS_ORIGINS", []string{"*"}),
		DatabasePath:     getEnv("DATABASE_PATH", "stumble.db"),
		JWTSecret:        getEnv("JWT_SECRET", ""),
		TokenTTL:         getEnvDuration("TOKEN_TTL", 7*24*time.Hour),
		BcryptCost:       getEnvInt("BCRYPT_COST", 10),
		RedisURL:         getEnv("REDIS_URL", ""),
		SubmitRateLimit:  getEnvInt("SUBMIT_RATE_LIMIT", 20),
		TagRateLimit:     getEnvInt("TAG_RATE_LIMIT", 240),
		RateRateLimit:    getEnvInt("RATE_RATE_LIMIT", 240),
		FlagRateLimit:    getEnvInt("FLAG_RATE_LIMIT", 60),
		SignupRateLimit:  getEnvInt("SIGNUP_RATE_LIMIT", 10),
		RateLimitWindow:  getEnvDuration("RATE_LIMIT_WINDOW", time.Hour),
		SubmissionCost:   getEnvInt("SUBMISSION_COST", 50),
		QueueWorkers:     getEnvInt("QUEUE_WORKERS", 4),
		QueueSize:        getEnvInt("QUEUE_SIZE", 1024),
		QueueTaskTimeout: getEnvDuration("QUEUE_TASK_TIMEOUT", 10*time.Second),
		LegacyPageOffset: getEnvBool("LEGACY_PAGE_OFFSET", true),
	}
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			return b
		}
	}
	return defaultVal
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return defaultVal
}

// getEnvList splits a comma separated value, dropping empty entries.
func getEnvList(key string, defaultVal []string) []string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	var out []string
	for _, part := range strings.Split(val, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return defaultVal
	}
	return out
}
