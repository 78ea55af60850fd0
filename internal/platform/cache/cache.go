package cache

import (
	"context"
	"errors"
	"strings"

	"github.com/dingsen2/micronutrient-radar/internal/domain"
)

// ErrMiss is returned by Get when no profile is cached for the description.
var ErrMiss = errors.New("cache miss")

// NutrientCache stores nutrient profiles by food description.
type NutrientCache interface {
	// Get returns the cached profile for description, or ErrMiss.
	Get(ctx context.Context, description string) (*domain.NutrientProfile, error)

	// Set stores profile under its FoodName.
	Set(ctx context.Context, profile *domain.NutrientProfile) error
}

// Key normalizes a food description into a cache key.
func Key(description string) string {
	return strings.ToLower(strings.TrimSpace(description))
}
