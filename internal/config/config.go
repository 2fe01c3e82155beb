package config

import "time"

// Config holds all application configuration.
// It organizes settings into logical groups for better maintainability.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"   validate:"required"`
	App      AppConfig      `mapstructure:"app"      validate:"required"`
	Database DatabaseConfig `mapstructure:"database" validate:"required"`
	Auth     AuthConfig     `mapstructure:"auth"     validate:"required"`
	N8N      N8NConfig      `mapstructure:"n8n"      validate:"required"`
	Slack    SlackConfig    `mapstructure:"slack"`
	Job      JobConfig      `mapstructure:"job"      validate:"required"`
}

// ServerConfig contains all server-related configuration settings.
type ServerConfig struct {
	Port     int    `mapstructure:"port"      validate:"required,gt=0,lt=65536"`
	LogLevel string `mapstructure:"log_level" validate:"required,oneof=debug info warn error"`
}

// AppConfig holds settings describing how the application is reachable from outside.
type AppConfig struct {
	// BaseURL is used to build callback URLs handed to n8n and links in notifications.
	BaseURL string `mapstructure:"base_url" validate:"required,url"`
}

// DatabaseConfig contains all database-related configuration settings.
type DatabaseConfig struct {
	URL                    string `mapstructure:"url"                       validate:"required,url"`
	MaxOpenConns           int    `mapstructure:"max_open_conns"            validate:"gt=0"`
	MaxIdleConns           int    `mapstructure:"max_idle_conns"            validate:"gte=0"`
	ConnMaxLifetimeMinutes int    `mapstructure:"conn_max_lifetime_minutes" validate:"gt=0"`
}

// AuthConfig contains all authentication and authorization settings.
type AuthConfig struct {
	JWTSecret                   string `mapstructure:"jwt_secret"                     validate:"required,min=32"`
	TokenLifetimeMinutes        int    `mapstructure:"token_lifetime_minutes"         validate:"required,gt=0"`
	RefreshTokenLifetimeMinutes int    `mapstructure:"refresh_token_lifetime_minutes" validate:"required,gt=0"`
	BCryptCost                  int    `mapstructure:"bcrypt_cost"                    validate:"gte=4,lte=31"`
}

// N8NConfig configures the outbound workflow webhook and the inbound callback credentials.
type N8NConfig struct {
	// WebhookURL may be empty; dispatch then fails fast and marks tasks failed.
	WebhookURL string `mapstructure:"webhook_url" validate:"omitempty,url"`

	// APIKey is sent on dispatch and, when set, required on callbacks.
	APIKey string `mapstructure:"api_key"`

	// WebhookSecret enables HMAC signature checks on callbacks when set.
	WebhookSecret string `mapstructure:"webhook_secret"`

	TimeoutSeconds int             `mapstructure:"timeout_seconds" validate:"gt=0"`
	RateLimit      RateLimitConfig `mapstructure:"rate_limit"`
	Retry          RetryConfig     `mapstructure:"retry"`
}

// Timeout returns the dispatch request timeout.
func (c N8NConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// RateLimitConfig bounds how many tasks a single caller may create per window.
type RateLimitConfig struct {
	MaxAttempts  int `mapstructure:"max_attempts"  validate:"gt=0"`
	DecayMinutes int `mapstructure:"decay_minutes" validate:"gt=0"`
}

// Window returns the rate limit decay window.
func (c RateLimitConfig) Window() time.Duration {
	return time.Duration(c.DecayMinutes) * time.Minute
}

// RetryConfig controls how often a failed dispatch is attempted.
type RetryConfig struct {
	MaxAttempts  int `mapstructure:"max_attempts"  validate:"gt=0"`
	DelaySeconds int `mapstructure:"delay_seconds" validate:"gte=0"`
}

// Delay returns the fixed backoff between dispatch attempts.
func (c RetryConfig) Delay() time.Duration {
	return time.Duration(c.DelaySeconds) * time.Second
}

// SlackConfig configures failure notifications.
type SlackConfig struct {
	// WebhookURL may be empty; notifications are then skipped.
	WebhookURL     string `mapstructure:"webhook_url"     validate:"omitempty,url"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds" validate:"gt=0"`
}

// Timeout returns the notification request timeout.
func (c SlackConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// JobConfig configures the background job runner.
type JobConfig struct {
	WorkerCount        int `mapstructure:"worker_count"          validate:"gt=0"`
	QueueSize          int `mapstructure:"queue_size"            validate:"gt=0"`
	StuckJobAgeMinutes int `mapstructure:"stuck_job_age_minutes" validate:"gt=0"`
}
