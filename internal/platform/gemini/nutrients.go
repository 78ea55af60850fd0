package gemini

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"google.golang.org/genai"

	"github.com/dingsen2/micronutrient-radar/internal/domain"
	"github.com/dingsen2/micronutrient-radar/internal/generation"
	"github.com/dingsen2/micronutrient-radar/internal/platform/logger"
)

// nutrientPrompt builds the estimation request for 100 g of foodName.
func nutrientPrompt(foodName string) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Estimate the nutrient content per 100 g of %s.\n", foodName)
	sb.WriteString("Return a JSON object with a \"nutrients\" object holding a number for each of:\n")
	for _, name := range domain.Nutrients {
		fmt.Fprintf(&sb, "- %s\n", name)
	}
	sb.WriteString("The suffix of each name is its unit. Use 0 when the food contains none.")
	return sb.String()
}

// nutrientSchema requires every tracked nutrient as a number.
func nutrientSchema() *genai.Schema {
	properties := make(map[string]*genai.Schema, len(domain.Nutrients))
	for _, name := range domain.Nutrients {
		properties[name] = &genai.Schema{Type: genai.TypeNumber}
	}
	required := make([]string, len(domain.Nutrients))
	copy(required, domain.Nutrients)

	return &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"nutrients": {
				Type:       genai.TypeObject,
				Properties: properties,
				Required:   required,
			},
		},
		Required: []string{"nutrients"},
	}
}

// EstimateNutrientProfile implements generation.NutrientEstimator.
func (c *Client) EstimateNutrientProfile(ctx context.Context, foodName string) (*domain.NutrientProfile, error) {
	foodName = strings.TrimSpace(foodName)
	if foodName == "" {
		return nil, fmt.Errorf("%w: %w", generation.ErrEmptyInput, ErrEmptyFoodName)
	}
	log := logger.FromContextOrDefault(ctx, c.logger)

	text, err := c.generate(ctx, "estimate_nutrients",
		[]*genai.Part{genai.NewPartFromText(nutrientPrompt(foodName))},
		&genai.GenerateContentConfig{
			ResponseMIMEType: "application/json",
			ResponseSchema:   nutrientSchema(),
		})
	if err != nil {
		return nil, err
	}

	nutrients, err := parseNutrients(text)
	if err != nil {
		log.WarnContext(ctx, "could not parse nutrient estimate",
			slog.String("food_name", foodName),
			slog.String("error", err.Error()))
		return nil, err
	}

	now := time.Now().UTC()
	profile := &domain.NutrientProfile{
		FoodName:         foodName,
		Nutrients:        nutrients,
		Source:           domain.ProfileSourceModel,
		LLMPromptVersion: c.promptVersion,
		EstimatedBy:      c.model,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := profile.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", generation.ErrInvalidResponse, err)
	}
	return profile, nil
}

// parseNutrients reads {"nutrients": {...}}. Every tracked nutrient must be
// present as a finite, non-negative number; unknown keys are ignored.
func parseNutrients(text string) (domain.NutrientMap, error) {
	var payload struct {
		Nutrients map[string]*float64 `json:"nutrients"`
	}
	if err := json.Unmarshal([]byte(stripCodeFence(text)), &payload); err != nil {
		return nil, fmt.Errorf("%w: %v", generation.ErrInvalidResponse, err)
	}
	if payload.Nutrients == nil {
		return nil, fmt.Errorf("%w: missing nutrients object", generation.ErrInvalidResponse)
	}

	nutrients := make(domain.NutrientMap, len(domain.Nutrients))
	for _, name := range domain.Nutrients {
		v := payload.Nutrients[name]
		if v == nil {
			return nil, fmt.Errorf("%w: missing %s", generation.ErrInvalidResponse, name)
		}
		if math.IsNaN(*v) || math.IsInf(*v, 0) || *v < 0 {
			return nil, fmt.Errorf("%w: %s has invalid amount %v", generation.ErrInvalidResponse, name, *v)
		}
		nutrients[name] = *v
	}
	return nutrients, nil
}
