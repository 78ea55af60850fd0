package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment variable read by Load.
const EnvPrefix = "RADAR"

// Load configuration from environment variables and optionally a config file.
// A .env file in the working directory is loaded first when present; it never
// overrides variables already set in the process environment.
// Environment variables take precedence over values from config files.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env file: %w", err)
	}

	v := viper.New()
	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	bindEnvs(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validator.New().Struct(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.log_level", "info")
	v.SetDefault("server.api_prefix", "/api/v1")
	v.SetDefault("server.cors_origins", []string{})

	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 25)
	v.SetDefault("database.conn_max_lifetime", 5*time.Minute)

	v.SetDefault("auth.token_lifetime_minutes", 60*24*8)
	v.SetDefault("auth.refresh_token_lifetime_minutes", 60*24*30)
	v.SetDefault("auth.bcrypt_cost", 10)
	v.SetDefault("auth.skip_auth", false)

	v.SetDefault("llm.model_name", "gemini-2.0-flash")
	v.SetDefault("llm.prompt_version", "v1.0")
	v.SetDefault("llm.max_retries", 3)
	v.SetDefault("llm.retry_delay", 2*time.Second)

	v.SetDefault("cache.ttl", 30*24*time.Hour)

	v.SetDefault("storage.backend", "local")
	v.SetDefault("storage.upload_dir", "./uploads")
	v.SetDefault("storage.max_upload_size", 10*1024*1024)

	v.SetDefault("task.food_image_workers", 2)
	v.SetDefault("task.nutrient_workers", 2)
	v.SetDefault("task.receipt_workers", 1)
	v.SetDefault("task.queue_size", 100)
	v.SetDefault("task.max_retries", 3)
	v.SetDefault("task.retry_delay", 60*time.Second)
	v.SetDefault("task.time_limit", 300*time.Second)
	v.SetDefault("task.stuck_task_age", 30*time.Minute)
	v.SetDefault("task.stuck_check_interval", 5*time.Minute)
}

// bindEnvs registers keys that have no default so AutomaticEnv picks them up
// during Unmarshal.
func bindEnvs(v *viper.Viper) {
	for _, key := range []string{
		"database.url",
		"auth.jwt_secret",
		"llm.gemini_api_key",
		"cache.redis_url",
		"storage.s3_bucket",
		"storage.s3_region",
		"storage.s3_prefix",
	} {
		_ = v.BindEnv(key)
	}
}
