package config

import "time"

// Config holds all application configuration.
// It organizes settings into logical groups for better maintainability.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"    validate:"required"`
	Database  DatabaseConfig  `mapstructure:"database"  validate:"required"`
	Auth      AuthConfig      `mapstructure:"auth"      validate:"required"`
	Quota     QuotaConfig     `mapstructure:"quota"     validate:"required"`
	Task      TaskConfig      `mapstructure:"task"      validate:"required"`
	Providers ProvidersConfig `mapstructure:"providers" validate:"required"`
}

// ServerConfig contains all server-related configuration settings.
type ServerConfig struct {
	Port     int    `mapstructure:"port"      validate:"required,gt=0,lt=65536"`
	LogLevel string `mapstructure:"log_level" validate:"required,oneof=debug info warn error"`

	// PublicBaseURL is the externally reachable base URL of this server,
	// used to build per-task webhook callback URLs handed to providers.
	PublicBaseURL string `mapstructure:"public_base_url" validate:"required,url"`
}

// DatabaseConfig contains all database-related configuration settings.
type DatabaseConfig struct {
	URL string `mapstructure:"url" validate:"required,url"`
}

// AuthConfig contains all authentication and authorization settings.
type AuthConfig struct {
	JWTSecret string `mapstructure:"jwt_secret" validate:"required,min=32"`

	// TokenLifetimeMinutes is the access token lifetime in minutes.
	TokenLifetimeMinutes int `mapstructure:"token_lifetime_minutes" validate:"required,gt=0"`
}

// QuotaConfig configures the remote quota-ledger client.
type QuotaConfig struct {
	BaseURL string `mapstructure:"base_url" validate:"required,url"`
	APIKey  string `mapstructure:"api_key"  validate:"required"`

	// Asset and Variant identify the billable resource in the ledger.
	Asset   string `mapstructure:"asset"   validate:"required"`
	Variant string `mapstructure:"variant"`

	// MaxRetries and RetryDelay apply only to the idempotent quota read;
	// usage metering is never retried to avoid double billing.
	MaxRetries int           `mapstructure:"max_retries" validate:"gte=0"`
	RetryDelay time.Duration `mapstructure:"retry_delay"`
}

// TaskConfig contains orchestration settings shared by all task kinds.
type TaskConfig struct {
	// FanOutConcurrency caps concurrent provider calls for the sub-jobs of
	// one task (per-page OCR, per-chunk translation). It bounds provider
	// load regardless of document size.
	FanOutConcurrency int `mapstructure:"fan_out_concurrency" validate:"required,gt=0"`

	// SyncWaitTimeout bounds how long a blocking submission waits for an
	// asynchronous completion before returning the task still processing.
	SyncWaitTimeout time.Duration `mapstructure:"sync_wait_timeout" validate:"required"`

	// StuckTaskAge and StuckTaskCheckInterval drive the monitor that
	// reports tasks sitting in processing for too long. The monitor only
	// logs; it never fails a task.
	StuckTaskAge           time.Duration `mapstructure:"stuck_task_age"`
	StuckTaskCheckInterval time.Duration `mapstructure:"stuck_task_check_interval"`
}

// ProvidersConfig groups the external AI provider settings.
type ProvidersConfig struct {
	Gemini GeminiConfig `mapstructure:"gemini" validate:"required"`
	Soniox SonioxConfig `mapstructure:"soniox" validate:"required"`
}

// GeminiConfig configures the Gemini-backed OCR/translation adapter.
type GeminiConfig struct {
	APIKey    string `mapstructure:"api_key"    validate:"required"`
	ModelName string `mapstructure:"model_name" validate:"required"`

	// MaxRetries and RetryDelaySeconds configure the exponential backoff
	// used for transient API failures.
	MaxRetries        int `mapstructure:"max_retries"         validate:"gte=0"`
	RetryDelaySeconds int `mapstructure:"retry_delay_seconds" validate:"gte=0"`

	// RequestsPerSecond throttles calls to the Gemini API across all
	// fan-out workers. Zero disables throttling.
	RequestsPerSecond float64 `mapstructure:"requests_per_second" validate:"gte=0"`

	// TargetLanguage is the language translation tasks translate into.
	TargetLanguage string `mapstructure:"target_language"`
}

// SonioxConfig configures the asynchronous transcription provider client.
type SonioxConfig struct {
	APIKey  string `mapstructure:"api_key"  validate:"required"`
	BaseURL string `mapstructure:"base_url" validate:"required,url"`

	// MinutesPrice converts the provider's reported audio duration into
	// billable units: units = ceil(minutes) * MinutesPrice.
	MinutesPrice float64 `mapstructure:"minutes_price" validate:"required,gt=0"`
}
