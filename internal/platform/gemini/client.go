package gemini

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/sethvargo/go-retry"
	"google.golang.org/genai"

	"github.com/dingsen2/micronutrient-radar/internal/config"
	"github.com/dingsen2/micronutrient-radar/internal/generation"
	"github.com/dingsen2/micronutrient-radar/internal/platform/logger"
)

const (
	defaultMaxRetries = 3
	defaultRetryDelay = 2 * time.Second
)

// contentGenerator is the subset of *genai.Models the Client uses.
type contentGenerator interface {
	GenerateContent(
		ctx context.Context,
		model string,
		contents []*genai.Content,
		config *genai.GenerateContentConfig,
	) (*genai.GenerateContentResponse, error)
}

// Client calls the Gemini API for food recognition, nutrient estimation
// and receipt reading.
type Client struct {
	models        contentGenerator
	model         string
	promptVersion string
	maxRetries    int
	retryDelay    time.Duration
	logger        *slog.Logger
}

var (
	_ generation.FoodRecognizer    = (*Client)(nil)
	_ generation.NutrientEstimator = (*Client)(nil)
	_ generation.ReceiptReader     = (*Client)(nil)
)

// NewClient validates cfg and creates a Gemini API client.
func NewClient(ctx context.Context, logger *slog.Logger, cfg config.LLMConfig) (*Client, error) {
	if logger == nil {
		return nil, fmt.Errorf("%w: logger cannot be nil", generation.ErrInvalidConfig)
	}
	if err := validateConfig(ctx, logger, cfg); err != nil {
		return nil, err
	}

	genaiClient, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.GeminiAPIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create genai client: %v", generation.ErrInvalidConfig, err)
	}

	return newClient(genaiClient.Models, logger, cfg), nil
}

func newClient(models contentGenerator, logger *slog.Logger, cfg config.LLMConfig) *Client {
	maxRetries := cfg.MaxRetries
	if maxRetries < 0 {
		maxRetries = defaultMaxRetries
	}
	retryDelay := cfg.RetryDelay
	if retryDelay <= 0 {
		retryDelay = defaultRetryDelay
	}
	promptVersion := cfg.PromptVersion
	if promptVersion == "" {
		promptVersion = "v1.0"
	}

	return &Client{
		models:        models,
		model:         cfg.ModelName,
		promptVersion: promptVersion,
		maxRetries:    maxRetries,
		retryDelay:    retryDelay,
		logger:        logger.With(slog.String("component", "gemini"), slog.String("model", cfg.ModelName)),
	}
}

// ModelName returns the configured model.
func (c *Client) ModelName() string {
	return c.model
}

// generate sends parts as one user turn and returns the text of the first
// candidate. Transient failures are retried after a fixed delay.
func (c *Client) generate(
	ctx context.Context,
	operation string,
	parts []*genai.Part,
	genConfig *genai.GenerateContentConfig,
) (string, error) {
	log := logger.FromContextOrDefault(ctx, c.logger).With(slog.String("operation", operation))
	contents := []*genai.Content{genai.NewContentFromParts(parts, genai.RoleUser)}

	var (
		text     string
		attempts int
		lastErr  error
	)
	err := retry.Do(ctx, c.newBackoff(), func(ctx context.Context) error {
		attempts++
		start := time.Now()
		resp, err := c.models.GenerateContent(ctx, c.model, contents, genConfig)
		if err != nil {
			lastErr = classifyAPIError(err)
			log.WarnContext(ctx, "gemini call failed",
				slog.Int("attempt", attempts),
				slog.Duration("duration", time.Since(start)),
				slog.String("error", err.Error()))
			if errors.Is(lastErr, generation.ErrTransientFailure) {
				return retry.RetryableError(lastErr)
			}
			return lastErr
		}

		text, lastErr = responseText(resp)
		if lastErr != nil {
			log.WarnContext(ctx, "gemini returned an unusable response",
				slog.Int("attempt", attempts),
				slog.String("error", lastErr.Error()))
			return lastErr
		}

		log.DebugContext(ctx, "gemini call succeeded",
			slog.Int("attempt", attempts),
			slog.Duration("duration", time.Since(start)))
		return nil
	})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil && !errors.Is(err, generation.ErrTransientFailure) {
			return "", fmt.Errorf("%w: %w", generation.ErrTransientFailure, ctxErr)
		}
		if errors.Is(err, generation.ErrTransientFailure) && attempts > c.maxRetries {
			return "", fmt.Errorf("exceeded maximum retry attempts (%d): %w", c.maxRetries, err)
		}
		return "", err
	}
	return text, nil
}

// classifyAPIError maps a genai error onto the generation error values.
// Rate limits and server errors are transient; other client errors are not.
func classifyAPIError(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w", generation.ErrTransientFailure, err)
	}

	code := 0
	var apiErr genai.APIError
	var apiErrPtr *genai.APIError
	switch {
	case errors.As(err, &apiErr):
		code = apiErr.Code
	case errors.As(err, &apiErrPtr):
		code = apiErrPtr.Code
	}

	switch {
	case code == http.StatusTooManyRequests || code >= http.StatusInternalServerError:
		return fmt.Errorf("%w: %v", generation.ErrTransientFailure, err)
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return fmt.Errorf("%w: %v", generation.ErrInvalidConfig, err)
	case code >= http.StatusBadRequest:
		return fmt.Errorf("%w: %v", generation.ErrGenerationFailed, err)
	default:
		// Network failures carry no status code.
		return fmt.Errorf("%w: %v", generation.ErrTransientFailure, err)
	}
}

// responseText extracts the text of the first candidate, mapping safety
// blocks and empty responses onto generation errors.
func responseText(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil {
		return "", fmt.Errorf("%w: nil response", generation.ErrInvalidResponse)
	}
	if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != "" {
		return "", fmt.Errorf("%w: prompt blocked: %s", generation.ErrContentBlocked, resp.PromptFeedback.BlockReason)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0] == nil {
		return "", fmt.Errorf("%w: no candidates in response", generation.ErrInvalidResponse)
	}

	candidate := resp.Candidates[0]
	if candidate.FinishReason == genai.FinishReasonSafety {
		return "", fmt.Errorf("%w: finish reason %s", generation.ErrContentBlocked, candidate.FinishReason)
	}
	if candidate.Content == nil {
		return "", fmt.Errorf("%w: %w", generation.ErrInvalidResponse, ErrNoText)
	}

	var sb strings.Builder
	for _, part := range candidate.Content.Parts {
		if part != nil && part.Text != "" {
			sb.WriteString(part.Text)
		}
	}
	if strings.TrimSpace(sb.String()) == "" {
		return "", fmt.Errorf("%w: %w", generation.ErrInvalidResponse, ErrNoText)
	}
	return sb.String(), nil
}

// stripCodeFence removes a surrounding Markdown code fence, if any.
func stripCodeFence(text string) string {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "```") {
		return text
	}
	text = strings.TrimPrefix(text, "```")
	if nl := strings.IndexByte(text, '\n'); nl >= 0 {
		text = text[nl+1:]
	} else {
		text = strings.TrimPrefix(text, "json")
	}
	text = strings.TrimSuffix(strings.TrimSpace(text), "```")
	return strings.TrimSpace(text)
}

// newBackoff allows maxRetries retries, each after retryDelay.
func (c *Client) newBackoff() retry.Backoff {
	return retry.WithMaxRetries(uint64(c.maxRetries), retry.NewConstant(c.retryDelay))
}

func clampUnit(v float64) float64 {
	switch {
	case v < 0 || math.IsNaN(v):
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
