package task

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/dingsen2/micronutrient-radar/internal/domain"
	"github.com/dingsen2/micronutrient-radar/internal/generation"
	"github.com/dingsen2/micronutrient-radar/internal/store"
)

// Common errors
var (
	ErrNilRecognizer = errors.New("food image recognizer cannot be nil")
	ErrNilEstimator  = errors.New("nutrient estimator cannot be nil")
	ErrNilLedger     = errors.New("ledger updater cannot be nil")
	ErrNilReceipts   = errors.New("receipt processor cannot be nil")
	ErrNilLogger     = errors.New("logger cannot be nil")
	ErrEmptyImageID  = errors.New("image ID cannot be empty")
)

// FoodImageRecognizer runs vision recognition for a stored image and
// persists the recognized items.
type FoodImageRecognizer interface {
	RecognizeFoodItems(ctx context.Context, imageID uuid.UUID) (*domain.FoodImage, error)
	MarkFailed(ctx context.Context, imageID uuid.UUID) error
}

// NutrientEstimator estimates per-item nutrients. Per-item failures are
// reported in the estimates; the error is for failures of the whole batch.
type NutrientEstimator interface {
	EstimateNutrients(ctx context.Context, items []domain.FoodItem) ([]domain.ItemEstimate, error)
}

// LedgerUpdater adds nutrient totals to a user's weekly ledger.
type LedgerUpdater interface {
	AddToWeek(
		ctx context.Context,
		userID uuid.UUID,
		at time.Time,
		totals domain.NutrientMap,
		source domain.DataSource,
	) (*domain.NutrientLedger, error)
}

// ProcessFoodImagePayload is the persisted payload of a process_food_image task.
type ProcessFoodImagePayload struct {
	ImageID uuid.UUID `json:"image_id"`
}

// ProcessFoodImageResult is the stored result of a process_food_image task.
type ProcessFoodImageResult struct {
	Status             string                `json:"status"`
	Message            string                `json:"message,omitempty"`
	ImageID            uuid.UUID             `json:"image_id"`
	RecognitionResults RecognitionResults    `json:"recognition_results"`
	NutrientResults    []domain.ItemEstimate `json:"nutrient_results"`
}

// RecognitionResults lists the items found in the image.
type RecognitionResults struct {
	FoodItems []domain.FoodItem `json:"food_items"`
}

// ProcessFoodImageTask recognizes the items in an uploaded photo, estimates
// their nutrients and adds the totals to the ledger of the capture week.
type ProcessFoodImageTask struct {
	baseTask
	imageID    uuid.UUID
	recognizer FoodImageRecognizer
	estimator  NutrientEstimator
	ledger     LedgerUpdater
	logger     *slog.Logger
}

// NewProcessFoodImageTask creates a process_food_image task. A nil id
// generates a new one.
func NewProcessFoodImageTask(
	id uuid.UUID,
	imageID uuid.UUID,
	recognizer FoodImageRecognizer,
	estimator NutrientEstimator,
	ledger LedgerUpdater,
	logger *slog.Logger,
) (*ProcessFoodImageTask, error) {
	if recognizer == nil {
		return nil, ErrNilRecognizer
	}
	if estimator == nil {
		return nil, ErrNilEstimator
	}
	if ledger == nil {
		return nil, ErrNilLedger
	}
	if logger == nil {
		return nil, ErrNilLogger
	}
	if imageID == uuid.Nil {
		return nil, ErrEmptyImageID
	}

	base, err := newBaseTask(id, TaskTypeProcessFoodImage, ProcessFoodImagePayload{ImageID: imageID})
	if err != nil {
		return nil, err
	}

	return &ProcessFoodImageTask{
		baseTask:   base,
		imageID:    imageID,
		recognizer: recognizer,
		estimator:  estimator,
		ledger:     ledger,
		logger: logger.With(
			"task_id", base.id,
			"task_type", TaskTypeProcessFoodImage,
			"image_id", imageID,
		),
	}, nil
}

// NewProcessFoodImageFactory returns the registry factory for process_food_image.
func NewProcessFoodImageFactory(
	recognizer FoodImageRecognizer,
	estimator NutrientEstimator,
	ledger LedgerUpdater,
	logger *slog.Logger,
) Factory {
	return func(id uuid.UUID, payload []byte) (Task, error) {
		var p ProcessFoodImagePayload
		if err := json.Unmarshal(payload, &p); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidPayload, err)
		}
		return NewProcessFoodImageTask(id, p.ImageID, recognizer, estimator, ledger, logger)
	}
}

// Execute runs recognition, estimation and the ledger update.
func (t *ProcessFoodImageTask) Execute(ctx context.Context) error {
	t.status = TaskStatusProcessing
	t.logger.Info("starting food image processing")

	if err := ctx.Err(); err != nil {
		t.status = TaskStatusFailed
		return fmt.Errorf("task cancelled by context: %w", err)
	}

	image, err := t.recognizer.RecognizeFoodItems(ctx, t.imageID)
	if err != nil {
		t.status = TaskStatusFailed
		t.logger.Error("failed to recognize food items", "error", err)
		return classify(fmt.Errorf("failed to recognize food items: %w", err))
	}

	result := ProcessFoodImageResult{
		Status:             "success",
		ImageID:            t.imageID,
		RecognitionResults: RecognitionResults{FoodItems: image.FoodItems},
		NutrientResults:    []domain.ItemEstimate{},
	}

	if len(image.FoodItems) == 0 {
		t.logger.Info("no food items recognized")
		result.Message = "No food items recognized"
		t.status = TaskStatusCompleted
		return t.setResult(result)
	}

	t.logger.Info("food items recognized", "count", len(image.FoodItems))

	estimates, err := t.estimator.EstimateNutrients(ctx, image.FoodItems)
	if err != nil {
		t.status = TaskStatusFailed
		t.logger.Error("failed to estimate nutrients", "error", err)
		return classify(fmt.Errorf("failed to estimate nutrients: %w", err))
	}
	result.NutrientResults = estimates

	totals := domain.SumTotals(estimates)
	if _, err := t.ledger.AddToWeek(ctx, image.UserID, image.CapturedAt, totals, domain.DataSourceImage); err != nil {
		t.status = TaskStatusFailed
		t.logger.Error("failed to update nutrient ledger", "error", err)
		return classify(fmt.Errorf("failed to update nutrient ledger: %w", err))
	}

	t.status = TaskStatusCompleted
	t.logger.Info("food image processing completed", "items", len(image.FoodItems))
	return t.setResult(result)
}

// OnFailure marks the image failed once retries are exhausted.
func (t *ProcessFoodImageTask) OnFailure(ctx context.Context, err error) {
	if errors.Is(err, store.ErrNotFound) {
		return
	}
	if markErr := t.recognizer.MarkFailed(ctx, t.imageID); markErr != nil {
		t.logger.Error("failed to mark food image failed", "error", markErr)
	}
}

// classify marks errors that a retry cannot fix as permanent.
func classify(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, store.ErrNotFound),
		errors.Is(err, domain.ErrValidation),
		!generation.IsRetryable(err):
		return Permanent(err)
	default:
		return err
	}
}
