package task

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/dingsen2/micronutrient-radar/internal/domain"
)

// ErrNoFoodItems is returned when an estimate task has nothing to estimate.
var ErrNoFoodItems = errors.New("at least one food item is required")

// EstimateNutrientsPayload is the persisted payload of an estimate_nutrients task.
type EstimateNutrientsPayload struct {
	UserID    uuid.UUID         `json:"user_id"`
	FoodItems []domain.FoodItem `json:"food_items"`
}

// EstimateNutrientsResult is the stored result of an estimate_nutrients task.
// Status is "error" when the batch failed as a whole; the task itself still
// completes.
type EstimateNutrientsResult struct {
	Status  string                `json:"status"`
	Results []domain.ItemEstimate `json:"results,omitempty"`
	Error   string                `json:"error,omitempty"`
}

// EstimateNutrientsTask estimates nutrients for directly submitted items.
type EstimateNutrientsTask struct {
	baseTask
	items     []domain.FoodItem
	estimator NutrientEstimator
	logger    *slog.Logger
}

// NewEstimateNutrientsTask creates an estimate_nutrients task.
func NewEstimateNutrientsTask(
	id uuid.UUID,
	payload EstimateNutrientsPayload,
	estimator NutrientEstimator,
	logger *slog.Logger,
) (*EstimateNutrientsTask, error) {
	if estimator == nil {
		return nil, ErrNilEstimator
	}
	if logger == nil {
		return nil, ErrNilLogger
	}
	if len(payload.FoodItems) == 0 {
		return nil, ErrNoFoodItems
	}

	base, err := newBaseTask(id, TaskTypeEstimateNutrients, payload)
	if err != nil {
		return nil, err
	}

	return &EstimateNutrientsTask{
		baseTask:  base,
		items:     payload.FoodItems,
		estimator: estimator,
		logger: logger.With(
			"task_id", base.id,
			"task_type", TaskTypeEstimateNutrients,
			"user_id", payload.UserID,
		),
	}, nil
}

// NewEstimateNutrientsFactory returns the registry factory for estimate_nutrients.
func NewEstimateNutrientsFactory(estimator NutrientEstimator, logger *slog.Logger) Factory {
	return func(id uuid.UUID, payload []byte) (Task, error) {
		var p EstimateNutrientsPayload
		if err := json.Unmarshal(payload, &p); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidPayload, err)
		}
		return NewEstimateNutrientsTask(id, p, estimator, logger)
	}
}

// Execute estimates every item. A batch failure is stored as an error result
// instead of failing the task.
func (t *EstimateNutrientsTask) Execute(ctx context.Context) error {
	t.status = TaskStatusProcessing
	t.logger.Info("estimating nutrients", "items", len(t.items))

	estimates, err := t.estimator.EstimateNutrients(ctx, t.items)
	if err != nil {
		if ctx.Err() != nil {
			t.status = TaskStatusFailed
			return fmt.Errorf("task cancelled by context: %w", ctx.Err())
		}
		t.logger.Error("error in nutrient estimation task", "error", err)
		t.status = TaskStatusCompleted
		return t.setResult(EstimateNutrientsResult{Status: "error", Error: err.Error()})
	}

	failed := 0
	for _, e := range estimates {
		if e.Profile == nil {
			failed++
		}
	}
	t.logger.Info("nutrient estimation completed", "items", len(estimates), "failed_items", failed)

	t.status = TaskStatusCompleted
	return t.setResult(EstimateNutrientsResult{Status: "success", Results: estimates})
}
