package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/dingsen2/micronutrient-radar/internal/domain"
	"github.com/dingsen2/micronutrient-radar/internal/events"
	"github.com/dingsen2/micronutrient-radar/internal/generation"
	"github.com/dingsen2/micronutrient-radar/internal/platform/cache"
	"github.com/dingsen2/micronutrient-radar/internal/task"
)

// NutrientEstimationService estimates the nutrient content of food items.
type NutrientEstimationService interface {
	// EstimateNutrients returns one estimate per item, in order. An item
	// whose estimate failed has a nil Profile; the error return is reserved
	// for failures of the whole batch, such as a cancelled context.
	EstimateNutrients(ctx context.Context, items []domain.FoodItem) ([]domain.ItemEstimate, error)

	// CalculateTotalNutrients scales profile to the item's quantity.
	CalculateTotalNutrients(item domain.FoodItem, profile *domain.NutrientProfile) (domain.NutrientMap, error)

	// RequestEstimate enqueues an estimate_nutrients task and returns its id.
	RequestEstimate(ctx context.Context, userID uuid.UUID, items []domain.FoodItem) (uuid.UUID, error)
}

type nutrientServiceImpl struct {
	cache     cache.NutrientCache
	estimator generation.NutrientEstimator
	emitter   events.EventEmitter
	logger    *slog.Logger
}

var _ task.NutrientEstimator = (*nutrientServiceImpl)(nil)

// NewNutrientEstimationService creates a NutrientEstimationService.
func NewNutrientEstimationService(
	profileCache cache.NutrientCache,
	estimator generation.NutrientEstimator,
	emitter events.EventEmitter,
	logger *slog.Logger,
) (NutrientEstimationService, error) {
	if profileCache == nil {
		return nil, nilDependency("nutrient", "cache")
	}
	if estimator == nil {
		return nil, nilDependency("nutrient", "estimator")
	}
	if emitter == nil {
		return nil, nilDependency("nutrient", "eventEmitter")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &nutrientServiceImpl{
		cache:     profileCache,
		estimator: estimator,
		emitter:   emitter,
		logger:    logger.With("component", "nutrient_service"),
	}, nil
}

// EstimateNutrients implements NutrientEstimationService.EstimateNutrients.
func (s *nutrientServiceImpl) EstimateNutrients(
	ctx context.Context,
	items []domain.FoodItem,
) ([]domain.ItemEstimate, error) {
	estimates := make([]domain.ItemEstimate, 0, len(items))
	for _, item := range items {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		estimate := domain.ItemEstimate{Item: item}
		profile, err := s.profileFor(ctx, item.Description)
		if err != nil {
			s.logger.Warn("nutrient estimation failed for item",
				"error", err,
				"description", item.Description)
			estimate.Err = err
			estimates = append(estimates, estimate)
			continue
		}

		totals, err := s.CalculateTotalNutrients(item, profile)
		if err != nil {
			s.logger.Warn("could not scale nutrients for item",
				"error", err,
				"description", item.Description,
				"unit", item.Unit)
			estimate.Err = err
			estimates = append(estimates, estimate)
			continue
		}

		estimate.Profile = profile
		estimate.Totals = totals
		estimates = append(estimates, estimate)
	}
	return estimates, nil
}

// profileFor returns the cached profile for description or asks the model.
// Cache failures are logged and treated as misses.
func (s *nutrientServiceImpl) profileFor(ctx context.Context, description string) (*domain.NutrientProfile, error) {
	cached, err := s.cache.Get(ctx, description)
	switch {
	case err == nil:
		hit := *cached
		hit.Source = domain.ProfileSourceCache
		s.logger.Debug("nutrient profile cache hit", "key", cache.Key(description))
		return &hit, nil
	case errors.Is(err, cache.ErrMiss):
	default:
		s.logger.Warn("nutrient cache read failed", "error", err, "key", cache.Key(description))
	}

	profile, err := s.estimator.EstimateNutrientProfile(ctx, description)
	if err != nil {
		return nil, err
	}

	if err := s.cache.Set(ctx, profile); err != nil {
		s.logger.Warn("nutrient cache write failed", "error", err, "key", cache.Key(description))
	}
	return profile, nil
}

// CalculateTotalNutrients implements NutrientEstimationService.CalculateTotalNutrients.
func (s *nutrientServiceImpl) CalculateTotalNutrients(
	item domain.FoodItem,
	profile *domain.NutrientProfile,
) (domain.NutrientMap, error) {
	return domain.TotalNutrients(item.Quantity, item.Unit, profile)
}

// RequestEstimate implements NutrientEstimationService.RequestEstimate.
func (s *nutrientServiceImpl) RequestEstimate(
	ctx context.Context,
	userID uuid.UUID,
	items []domain.FoodItem,
) (uuid.UUID, error) {
	if len(items) == 0 {
		return uuid.Nil, domain.NewValidationError("food_items", "must contain at least one item", nil)
	}
	for i := range items {
		if err := items[i].Validate(); err != nil {
			return uuid.Nil, fmt.Errorf("food_items[%d]: %w", i, err)
		}
		if _, err := domain.ToGrams(items[i].Quantity, items[i].Unit); err != nil {
			return uuid.Nil, fmt.Errorf("food_items[%d]: %w", i, err)
		}
	}

	event, err := events.NewTaskRequestEvent(task.TaskTypeEstimateNutrients, task.EstimateNutrientsPayload{
		UserID:    userID,
		FoodItems: items,
	})
	if err != nil {
		return uuid.Nil, NewServiceError("nutrient", "request_estimate", "failed to create event", err)
	}
	if err := s.emitter.EmitEvent(ctx, event); err != nil {
		s.logger.Error("failed to emit nutrient estimation event",
			"error", err,
			"user_id", userID,
			"event_id", event.ID)
		return uuid.Nil, NewServiceError("nutrient", "request_estimate", "failed to enqueue estimate", err)
	}

	s.logger.Info("nutrient estimation requested",
		"user_id", userID,
		"task_id", event.ID,
		"items", len(items))
	return event.ID, nil
}
