// Package config provides application configuration loading.
// This is part of the platform layer and contains no business logic.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// =============================================================================
// Module-Specific Config Interfaces (Principle of Least Privilege)
// =============================================================================

// DatabaseConfig provides database connection settings.
type DatabaseConfig interface {
	GetDatabaseURL() string
}

// HTTPConfig provides settings for the HTTP server.
type HTTPConfig interface {
	GetHTTPAddr() string
	GetCORSAllowAll() bool
	GetCORSOrigins() []string
}

// JWTConfig provides the secret used to sign funnel session tokens.
type JWTConfig interface {
	GetSessionSecret() string
	GetSessionTTL() time.Duration
}

// SessionConfig provides settings for the lead session store.
type SessionConfig interface {
	GetRedisURL() string
	GetSessionTTL() time.Duration
}

// SchedulerConfig provides settings for the asynq call queue.
type SchedulerConfig interface {
	GetRedisURL() string
	GetRedisTLSInsecure() bool
	GetAsynqQueueName() string
	GetAsynqConcurrency() int
}

// FunnelConfig provides qualification flow settings.
type FunnelConfig interface {
	GetFunnelResetDelay() time.Duration
	GetPhoneRegion() string
	GetFunnelIdleTTL() time.Duration
}

// AlertConfig provides SMTP settings for hot-lead alerts.
type AlertConfig interface {
	GetSMTPHost() string
	GetSMTPPort() int
	GetSMTPUsername() string
	GetSMTPPassword() string
	GetSMTPFromAddress() string
	GetSMTPFromName() string
	GetHotLeadAlertEmail() string
	IsAlertEnabled() bool
}

// =============================================================================
// Main Config Struct
// =============================================================================

// Config holds all application configuration values.
type Config struct {
	Env               string
	HTTPAddr          string
	DatabaseURL       string
	CORSAllowAll      bool
	CORSOrigins       []string
	RedisURL          string
	RedisTLSInsecure  bool
	AsynqQueueName    string
	AsynqConcurrency  int
	SessionSecret     string
	SessionTTL        time.Duration
	FunnelResetDelay  time.Duration
	FunnelIdleTTL     time.Duration
	PhoneRegion       string
	SMTPHost          string
	SMTPPort          int
	SMTPUsername      string
	SMTPPassword      string
	SMTPFromAddress   string
	SMTPFromName      string
	HotLeadAlertEmail string
}

// =============================================================================
// Interface Implementations
// =============================================================================

// DatabaseConfig implementation
func (c *Config) GetDatabaseURL() string { return c.DatabaseURL }

// HTTPConfig implementation
func (c *Config) GetHTTPAddr() string      { return c.HTTPAddr }
func (c *Config) GetCORSAllowAll() bool    { return c.CORSAllowAll }
func (c *Config) GetCORSOrigins() []string { return c.CORSOrigins }

// JWTConfig / SessionConfig implementation
func (c *Config) GetSessionSecret() string     { return c.SessionSecret }
func (c *Config) GetSessionTTL() time.Duration { return c.SessionTTL }
func (c *Config) GetRedisURL() string          { return c.RedisURL }

// SchedulerConfig implementation
func (c *Config) GetRedisTLSInsecure() bool { return c.RedisTLSInsecure }
func (c *Config) GetAsynqQueueName() string { return c.AsynqQueueName }
func (c *Config) GetAsynqConcurrency() int  { return c.AsynqConcurrency }

// FunnelConfig implementation
func (c *Config) GetFunnelResetDelay() time.Duration { return c.FunnelResetDelay }
func (c *Config) GetFunnelIdleTTL() time.Duration    { return c.FunnelIdleTTL }
func (c *Config) GetPhoneRegion() string             { return c.PhoneRegion }

// AlertConfig implementation
func (c *Config) GetSMTPHost() string          { return c.SMTPHost }
func (c *Config) GetSMTPPort() int             { return c.SMTPPort }
func (c *Config) GetSMTPUsername() string      { return c.SMTPUsername }
func (c *Config) GetSMTPPassword() string      { return c.SMTPPassword }
func (c *Config) GetSMTPFromAddress() string   { return c.SMTPFromAddress }
func (c *Config) GetSMTPFromName() string      { return c.SMTPFromName }
func (c *Config) GetHotLeadAlertEmail() string { return c.HotLeadAlertEmail }
func (c *Config) IsAlertEnabled() bool {
	return c.SMTPHost != "" && c.HotLeadAlertEmail != "" && c.SMTPFromAddress != ""
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	_ = godotenv.Load()

	corsOrigins := splitCSV(getEnv("CORS_ORIGINS", "http://localhost:3000"))
	corsAllowAll := strings.EqualFold(getEnv("CORS_ALLOW_ALL", "false"), "true")
	if containsWildcard(corsOrigins) {
		corsAllowAll = true
	}

	cfg := &Config{
		Env:               getEnv("APP_ENV", "development"),
		HTTPAddr:          getEnv("HTTP_ADDR", ":8080"),
		DatabaseURL:       getEnv("DATABASE_URL", ""),
		CORSAllowAll:      corsAllowAll,
		CORSOrigins:       corsOrigins,
		RedisURL:          getEnv("REDIS_URL", ""),
		RedisTLSInsecure:  strings.EqualFold(getEnv("REDIS_TLS_INSECURE", "false"), "true"),
		AsynqQueueName:    getEnv("ASYNQ_QUEUE", "calls"),
		AsynqConcurrency:  int(mustInt64(getEnv("ASYNQ_CONCURRENCY", "5"))),
		SessionSecret:     getEnv("SESSION_SECRET", ""),
		SessionTTL:        mustDuration(getEnv("SESSION_TTL", "12h")),
		FunnelResetDelay:  mustDuration(getEnv("FUNNEL_RESET_DELAY", "2s")),
		FunnelIdleTTL:     mustDuration(getEnv("FUNNEL_IDLE_TTL", "30m")),
		PhoneRegion:       getEnv("PHONE_REGION", "US"),
		SMTPHost:          getEnv("SMTP_HOST", ""),
		SMTPPort:          int(mustInt64(getEnv("SMTP_PORT", "587"))),
		SMTPUsername:      getEnv("SMTP_USERNAME", ""),
		SMTPPassword:      getEnv("SMTP_PASSWORD", ""),
		SMTPFromAddress:   getEnv("SMTP_FROM_ADDRESS", ""),
		SMTPFromName:      getEnv("SMTP_FROM_NAME", "Impact Windows"),
		HotLeadAlertEmail: getEnv("HOT_LEAD_ALERT_EMAIL", ""),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	if c.SessionSecret == "" {
		return fmt.Errorf("SESSION_SECRET is required")
	}
	if c.SessionTTL <= 0 {
		return fmt.Errorf("SESSION_TTL must be a positive duration")
	}
	if c.FunnelResetDelay < 0 {
		return fmt.Errorf("FUNNEL_RESET_DELAY must not be negative")
	}
	if c.HotLeadAlertEmail != "" && c.SMTPHost == "" {
		return fmt.Errorf("SMTP_HOST is required when HOT_LEAD_ALERT_EMAIL is set")
	}
	return nil
}

func getEnv(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		return val
	}
	return fallback
}

func mustDuration(value string) time.Duration {
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0
	}
	return d
}

func mustInt64(value string) int64 {
	result, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return 0
	}
	return result
}

func splitCSV(value string) []string {
	parts := strings.Split(value, ",")
	results := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			results = append(results, trimmed)
		}
	}
	return results
}

func containsWildcard(values []string) bool {
	for _, value := range values {
		if value == "*" {
			return true
		}
	}
	return false
}
