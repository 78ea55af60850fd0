package gemini

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/dingsen2/micronutrient-radar/internal/config"
	"github.com/dingsen2/micronutrient-radar/internal/generation"
)

// validateConfig checks the settings a Client cannot run without.
// Out-of-range retry settings are logged and replaced by defaults in NewClient.
func validateConfig(ctx context.Context, logger *slog.Logger, cfg config.LLMConfig) error {
	if cfg.GeminiAPIKey == "" {
		logger.ErrorContext(ctx, "missing Gemini API key")
		return fmt.Errorf("%w: gemini_api_key cannot be empty", generation.ErrInvalidConfig)
	}

	if cfg.ModelName == "" {
		logger.ErrorContext(ctx, "missing Gemini model name")
		return fmt.Errorf("%w: model_name cannot be empty", generation.ErrInvalidConfig)
	}

	if cfg.MaxRetries < 0 {
		logger.WarnContext(ctx, "invalid max_retries value, using default",
			slog.Int("value", cfg.MaxRetries))
	}

	if cfg.RetryDelay < 0 {
		logger.WarnContext(ctx, "invalid retry_delay value, using default",
			slog.Duration("value", cfg.RetryDelay))
	}

	return nil
}
