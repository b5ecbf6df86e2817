// Package config provides application configuration.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration.
type Config struct {
	Port                string
	DBPath              string
	DefaultUserID       string
	CORSAllowedOrigins  []string
	MaxRequestBodyBytes int64
	Completion          CompletionConfig
	Plans               PlanConfig
	ChatRateLimit       RateLimitConfig
	ConversationLog     ConversationLogConfig
}

// CompletionConfig locates the completion service.
type CompletionConfig struct {
	Addr           string
	FallbackAddr   string
	Timeout        time.Duration
	ConnectTimeout time.Duration
}

// PlanConfig controls pending plan eviction. Zero values disable it.
type PlanConfig struct {
	TTL           time.Duration
	MaxPending    int
	SweepInterval time.Duration
}

// RateLimitConfig bounds chat requests per user. A zero rate disables it.
type RateLimitConfig struct {
	PerSecond float64
	Burst     int
}

// ConversationLogConfig controls JSON conversation logging.
type ConversationLogConfig struct {
	Enabled   bool
	Dir       string
	QueueSize int
}

var defaultCORSOrigins = []string{
	"http://localhost:3000",
	"http://localhost:8080",
	"http://localhost:5173",
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	queueSize := getEnvInt("CONVERSATION_LOG_QUEUE_SIZE", 1000)
	if queueSize <= 0 {
		queueSize = 1000
	}

	cfg := &Config{
		Port:                getEnv("PORT", "8000"),
		DBPath:              getEnv("DB_PATH", "./data/fretcoach.db"),
		DefaultUserID:       getEnv("DEFAULT_USER_ID", "default_user"),
		CORSAllowedOrigins:  getEnvList("CORS_ALLOWED_ORIGINS", defaultCORSOrigins),
		MaxRequestBodyBytes: int64(getEnvInt("MAX_REQUEST_BODY_BYTES", 1<<20)),
		Completion: CompletionConfig{
			Addr:           getEnv("COMPLETION_ADDR", "localhost:50051"),
			FallbackAddr:   getEnv("COMPLETION_FALLBACK_ADDR", ""),
			Timeout:        getEnvDuration("COMPLETION_TIMEOUT", 0),
			ConnectTimeout: getEnvDuration("COMPLETION_CONNECT_TIMEOUT", 5*time.Second),
		},
		Plans: PlanConfig{
			TTL:           getEnvDuration("PLAN_TTL", 0),
			MaxPending:    getEnvInt("PLAN_MAX_PENDING", 0),
			SweepInterval: getEnvDuration("PLAN_SWEEP_INTERVAL", time.Minute),
		},
		ChatRateLimit: RateLimitConfig{
			PerSecond: getEnvFloat("CHAT_RATE_LIMIT", 0),
			Burst:     getEnvInt("CHAT_RATE_BURST", 5),
		},
		ConversationLog: ConversationLogConfig{
			Enabled:   getEnvBool("CONVERSATION_LOG_ENABLED", false),
			Dir:       getEnv("CONVERSATION_LOG_DIR", "./data/logs/conversations"),
			QueueSize: queueSize,
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required configuration fields are set.
func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("PORT cannot be empty")
	}
	if c.DBPath == "" {
		return fmt.Errorf("DB_PATH cannot be empty")
	}
	if c.DefaultUserID == "" {
		return fmt.Errorf("DEFAULT_USER_ID cannot be empty")
	}
	if c.Completion.Addr == "" {
		return fmt.Errorf("COMPLETION_ADDR cannot be empty")
	}
	if c.MaxRequestBodyBytes <= 0 {
		return fmt.Errorf("MAX_REQUEST_BODY_BYTES must be > 0")
	}
	if c.Plans.TTL < 0 {
		return fmt.Errorf("PLAN_TTL cannot be negative")
	}
	if c.Plans.MaxPending < 0 {
		return fmt.Errorf("PLAN_MAX_PENDING cannot be negative")
	}
	if c.Plans.TTL > 0 && c.Plans.SweepInterval <= 0 {
		return fmt.Errorf("PLAN_SWEEP_INTERVAL must be > 0 when PLAN_TTL is set")
	}
	if c.ChatRateLimit.PerSecond < 0 {
		return fmt.Errorf("CHAT_RATE_LIMIT cannot be negative")
	}
	if c.ChatRateLimit.PerSecond > 0 && c.ChatRateLimit.Burst <= 0 {
		return fmt.Errorf("CHAT_RATE_BURST must be > 0 when CHAT_RATE_LIMIT is set")
	}
	if c.ConversationLog.Enabled && c.ConversationLog.Dir == "" {
		return fmt.Errorf("CONVERSATION_LOG_DIR cannot be empty")
	}
	return nil
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

func getEnvInt(key string, fallback int) int {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return n
}

func getEnvFloat(key string, fallback float64) float64 {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return fallback
	}
	return f
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	d, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return d
}

// getEnvList splits a comma-separated variable, dropping blank entries.
func getEnvList(key string, fallback []string) []string {
	value, ok := os.LookupEnv(key)
	if !ok {
		return append([]string(nil), fallback...)
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
