package config

import "time"

// Config holds all application configuration.
// It organizes settings into logical groups for better maintainability.
type Config struct {
	Server   ServerConfig   `mapstructure:"server" validate:"required"`
	Database DatabaseConfig `mapstructure:"database" validate:"required"`
	Auth     AuthConfig     `mapstructure:"auth" validate:"required"`
	LLM      LLMConfig      `mapstructure:"llm" validate:"required"`
	Cache    CacheConfig    `mapstructure:"cache"`
	Storage  StorageConfig  `mapstructure:"storage" validate:"required"`
	Task     TaskConfig     `mapstructure:"task" validate:"required"`
}

// ServerConfig contains all server-related configuration settings.
type ServerConfig struct {
	Port        int      `mapstructure:"port" validate:"required,gt=0,lt=65536"`
	LogLevel    string   `mapstructure:"log_level" validate:"required,oneof=debug info warn error"`
	APIPrefix   string   `mapstructure:"api_prefix" validate:"required,startswith=/"`
	CORSOrigins []string `mapstructure:"cors_origins"`
}

// DatabaseConfig contains all database-related configuration settings.
type DatabaseConfig struct {
	URL             string        `mapstructure:"url" validate:"required,url"`
	MaxOpenConns    int           `mapstructure:"max_open_conns" validate:"gte=1"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns" validate:"gte=0"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// AuthConfig contains all authentication and authorization settings.
type AuthConfig struct {
	JWTSecret                   string `mapstructure:"jwt_secret" validate:"required,min=32"`
	TokenLifetimeMinutes        int    `mapstructure:"token_lifetime_minutes" validate:"required,gt=0,lt=525600"`
	RefreshTokenLifetimeMinutes int    `mapstructure:"refresh_token_lifetime_minutes" validate:"required,gt=0,lt=1051200"`
	BCryptCost                  int    `mapstructure:"bcrypt_cost" validate:"gte=4,lte=31"`
	// SkipAuth makes every request act as the earliest registered user.
	// Local debugging only.
	SkipAuth bool `mapstructure:"skip_auth"`
}

// LLMConfig contains the Gemini settings used for vision, nutrient and receipt calls.
type LLMConfig struct {
	GeminiAPIKey  string        `mapstructure:"gemini_api_key" validate:"required"`
	ModelName     string        `mapstructure:"model_name" validate:"required"`
	PromptVersion string        `mapstructure:"prompt_version" validate:"required"`
	MaxRetries    int           `mapstructure:"max_retries" validate:"gte=0,lte=10"`
	RetryDelay    time.Duration `mapstructure:"retry_delay"`
}

// CacheConfig configures the nutrient profile cache.
// An empty RedisURL selects the in-process cache.
type CacheConfig struct {
	RedisURL string        `mapstructure:"redis_url" validate:"omitempty,url"`
	TTL      time.Duration `mapstructure:"ttl"`
}

// StorageConfig selects where uploaded images and receipts are written.
type StorageConfig struct {
	Backend       string `mapstructure:"backend" validate:"required,oneof=local s3"`
	UploadDir     string `mapstructure:"upload_dir" validate:"required_if=Backend local"`
	S3Bucket      string `mapstructure:"s3_bucket" validate:"required_if=Backend s3"`
	S3Region      string `mapstructure:"s3_region"`
	S3Prefix      string `mapstructure:"s3_prefix"`
	MaxUploadSize int64  `mapstructure:"max_upload_size" validate:"required,gt=0"`
}

// TaskConfig configures the background task runner and its queues.
type TaskConfig struct {
	FoodImageWorkers   int           `mapstructure:"food_image_workers" validate:"gte=1"`
	NutrientWorkers    int           `mapstructure:"nutrient_workers" validate:"gte=1"`
	ReceiptWorkers     int           `mapstructure:"receipt_workers" validate:"gte=1"`
	QueueSize          int           `mapstructure:"queue_size" validate:"gte=1"`
	MaxRetries         int           `mapstructure:"max_retries" validate:"gte=0,lte=10"`
	RetryDelay         time.Duration `mapstructure:"retry_delay"`
	TimeLimit          time.Duration `mapstructure:"time_limit" validate:"gt=0"`
	StuckTaskAge       time.Duration `mapstructure:"stuck_task_age" validate:"gt=0"`
	StuckCheckInterval time.Duration `mapstructure:"stuck_check_interval" validate:"gt=0"`
}
