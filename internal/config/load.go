package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// Load reads configuration from environment variables and an optional
// config.yaml in the working directory. Environment variables take
// precedence over file values and use the MEDIAGATE_ prefix with
// underscores for nesting (e.g. MEDIAGATE_SERVER_PORT).
// Returns a populated Config struct or an error if loading or validation fails.
func Load() (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	if err := v.ReadInConfig(); err != nil {
		// A missing config file is fine; environment variables and
		// defaults still apply. Any other read error is fatal.
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	v.SetEnvPrefix("MEDIAGATE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// setDefaults registers defaults for everything that has a sensible one.
// Secrets and URLs have no defaults and must be supplied.
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.log_level", "info")

	// Keys without real defaults are still registered (empty) so that
	// AutomaticEnv can bind them; validation rejects empty values.
	v.SetDefault("server.public_base_url", "")
	v.SetDefault("database.url", "")
	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.token_lifetime_minutes", 60)
	v.SetDefault("quota.base_url", "")
	v.SetDefault("quota.api_key", "")
	v.SetDefault("providers.gemini.api_key", "")
	v.SetDefault("providers.soniox.api_key", "")

	v.SetDefault("quota.asset", "coin")
	v.SetDefault("quota.variant", "")
	v.SetDefault("quota.max_retries", 2)
	v.SetDefault("quota.retry_delay", 500*time.Millisecond)

	v.SetDefault("task.fan_out_concurrency", 16)
	v.SetDefault("task.sync_wait_timeout", 2*time.Minute)
	v.SetDefault("task.stuck_task_age", 30*time.Minute)
	v.SetDefault("task.stuck_task_check_interval", 5*time.Minute)

	v.SetDefault("providers.gemini.model_name", "gemini-2.0-flash")
	v.SetDefault("providers.gemini.max_retries", 3)
	v.SetDefault("providers.gemini.retry_delay_seconds", 2)
	v.SetDefault("providers.gemini.requests_per_second", 8)
	v.SetDefault("providers.gemini.target_language", "English")

	v.SetDefault("providers.soniox.base_url", "https://api.soniox.com")
	v.SetDefault("providers.soniox.minutes_price", 1)
}
