package gemini

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"

	"google.golang.org/genai"

	"github.com/dingsen2/micronutrient-radar/internal/domain"
	"github.com/dingsen2/micronutrient-radar/internal/generation"
	"github.com/dingsen2/micronutrient-radar/internal/platform/logger"
)

const visionPrompt = `Identify all food items in this image. For each item, provide: ` +
	`1) Description, 2) Quantity (as a number, e.g., 1, 2, 0.5), ` +
	`3) Unit (one of g, kg, lb, oz, piece), 4) Confidence (0-1). ` +
	`Format as JSON array with fields: description, quantity, unit, confidence. ` +
	`Use numeric values only for quantity and confidence. Keep descriptions concise.`

// RecognizeFoodItems implements generation.FoodRecognizer.
// Output that cannot be parsed is logged and yields no items.
func (c *Client) RecognizeFoodItems(
	ctx context.Context,
	image []byte,
	mimeType string,
) ([]generation.RecognizedItem, error) {
	if len(image) == 0 {
		return nil, fmt.Errorf("%w: %w", generation.ErrEmptyInput, ErrEmptyImage)
	}
	log := logger.FromContextOrDefault(ctx, c.logger)

	parts := []*genai.Part{
		genai.NewPartFromText(visionPrompt),
		genai.NewPartFromBytes(image, mimeType),
	}
	text, err := c.generate(ctx, "recognize_food_items", parts, &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
	})
	if err != nil {
		return nil, err
	}

	items, err := parseRecognizedItems(text)
	if err != nil {
		log.WarnContext(ctx, "could not parse vision response",
			slog.String("error", err.Error()),
			slog.Int("response_length", len(text)))
		return []generation.RecognizedItem{}, nil
	}

	log.InfoContext(ctx, "recognized food items", slog.Int("item_count", len(items)))
	return items, nil
}

// parseRecognizedItems reads the vision model's item list. It accepts a bare
// array, an array missing its brackets, or an object wrapping the array
// under "items" or "food_items". Confidence falls back to confidence_score,
// a quantity that is not a number becomes 1, and items without a description
// are dropped.
func parseRecognizedItems(text string) ([]generation.RecognizedItem, error) {
	text = stripCodeFence(text)
	if text == "" {
		return nil, fmt.Errorf("%w: empty item list", generation.ErrInvalidResponse)
	}

	var raw []map[string]any
	if strings.HasPrefix(text, "{") {
		var wrapper map[string]json.RawMessage
		if err := json.Unmarshal([]byte(text), &wrapper); err == nil {
			for _, key := range []string{"items", "food_items"} {
				if list, ok := wrapper[key]; ok {
					text = string(list)
					break
				}
			}
		}
	}
	if !strings.HasPrefix(text, "[") {
		text = "[" + text
	}
	if !strings.HasSuffix(text, "]") {
		text += "]"
	}
	if err := json.Unmarshal([]byte(text), &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", generation.ErrInvalidResponse, err)
	}

	items := make([]generation.RecognizedItem, 0, len(raw))
	for _, entry := range raw {
		description, _ := entry["description"].(string)
		description = strings.TrimSpace(description)
		if description == "" {
			continue
		}

		quantity, ok := asFloat(entry["quantity"])
		if !ok || quantity <= 0 {
			quantity = 1
		}

		confidence, ok := asFloat(entry["confidence"])
		if !ok {
			confidence, _ = asFloat(entry["confidence_score"])
		}

		unit, _ := entry["unit"].(string)
		unit = strings.ToLower(strings.TrimSpace(unit))
		if _, err := domain.ToGrams(1, unit); err != nil {
			unit = domain.UnitPiece
		}

		items = append(items, generation.RecognizedItem{
			Description: description,
			Quantity:    quantity,
			Unit:        unit,
			Confidence:  clampUnit(confidence),
		})
	}
	return items, nil
}

// asFloat reads a JSON number or a numeric string. NaN and infinities are
// rejected.
func asFloat(v any) (float64, bool) {
	var f float64
	switch n := v.(type) {
	case float64:
		f = n
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return 0, false
		}
		f = parsed
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}
