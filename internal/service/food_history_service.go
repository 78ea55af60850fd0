package service

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/dingsen2/micronutrient-radar/internal/domain"
	"github.com/dingsen2/micronutrient-radar/internal/store"
)

// FoodHistoryInput is a meal to log.
type FoodHistoryInput struct {
	MealDatetime   time.Time
	MealType       domain.MealType
	FoodImageID    *uuid.UUID
	TotalNutrients domain.NutrientMap
}

// FoodHistoryService logs meals and feeds the weekly ledger.
type FoodHistoryService interface {
	// Create stores the entry and adds its totals to the ledger of the meal's
	// week with data source manual, in one transaction.
	Create(ctx context.Context, userID uuid.UUID, in FoodHistoryInput) (*domain.UserFoodHistory, error)

	// Get returns one of the user's entries or store.ErrFoodHistoryNotFound.
	Get(ctx context.Context, userID, id uuid.UUID) (*domain.UserFoodHistory, error)

	// List pages through the user's entries, newest meal first.
	List(ctx context.Context, userID uuid.UUID, skip, limit int) ([]*domain.UserFoodHistory, error)

	// ListRange returns the entries with meal_datetime in [start, end], newest first.
	ListRange(ctx context.Context, userID uuid.UUID, start, end time.Time) ([]*domain.UserFoodHistory, error)
}

type foodHistoryServiceImpl struct {
	history store.FoodHistoryStore
	ledgers store.LedgerStore
	images  store.FoodImageStore
	tx      store.Transactor
	logger  *slog.Logger
}

// NewFoodHistoryService creates a FoodHistoryService.
func NewFoodHistoryService(
	history store.FoodHistoryStore,
	ledgers store.LedgerStore,
	images store.FoodImageStore,
	tx store.Transactor,
	logger *slog.Logger,
) (FoodHistoryService, error) {
	switch {
	case history == nil:
		return nil, nilDependency("food_history", "foodHistoryStore")
	case ledgers == nil:
		return nil, nilDependency("food_history", "ledgerStore")
	case images == nil:
		return nil, nilDependency("food_history", "foodImageStore")
	case tx == nil:
		return nil, nilDependency("food_history", "transactor")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &foodHistoryServiceImpl{
		history: history,
		ledgers: ledgers,
		images:  images,
		tx:      tx,
		logger:  logger.With("component", "food_history_service"),
	}, nil
}

// Create implements FoodHistoryService.Create.
func (s *foodHistoryServiceImpl) Create(
	ctx context.Context,
	userID uuid.UUID,
	in FoodHistoryInput,
) (*domain.UserFoodHistory, error) {
	entry, err := domain.NewUserFoodHistory(userID, in.MealDatetime, in.MealType, in.FoodImageID, in.TotalNutrients)
	if err != nil {
		return nil, err
	}

	if entry.FoodImageID != nil {
		image, err := s.images.GetByID(ctx, *entry.FoodImageID)
		if err != nil {
			return nil, NewServiceError("food_history", "create", "failed to load linked food image", err)
		}
		if image.UserID != userID {
			return nil, NewServiceError("food_history", "create", "linked image belongs to another user",
				store.ErrFoodImageNotFound)
		}
	}

	err = s.tx.RunInTx(ctx, func(ctx context.Context, tx *sql.Tx) error {
		if err := s.history.WithTx(tx).Create(ctx, entry); err != nil {
			return err
		}
		_, err := accumulateWeek(ctx, s.ledgers.WithTx(tx), userID, entry.MealDatetime,
			entry.TotalNutrients, domain.DataSourceManual)
		return err
	})
	if err != nil {
		s.logger.Error("failed to create food history entry", "error", err, "user_id", userID)
		return nil, NewServiceError("food_history", "create", "failed to save food history", err)
	}

	s.logger.Info("food history entry created",
		"entry_id", entry.ID,
		"user_id", userID,
		"meal_type", entry.MealType)
	return entry, nil
}

// Get implements FoodHistoryService.Get.
func (s *foodHistoryServiceImpl) Get(ctx context.Context, userID, id uuid.UUID) (*domain.UserFoodHistory, error) {
	entry, err := s.history.GetByID(ctx, userID, id)
	if err != nil {
		return nil, NewServiceError("food_history", "get", "failed to get food history", err)
	}
	return entry, nil
}

// List implements FoodHistoryService.List.
func (s *foodHistoryServiceImpl) List(
	ctx context.Context,
	userID uuid.UUID,
	skip, limit int,
) ([]*domain.UserFoodHistory, error) {
	skip, limit = pageBounds(skip, limit)
	entries, err := s.history.List(ctx, userID, skip, limit)
	if err != nil {
		s.logger.Error("failed to list food history", "error", err, "user_id", userID)
		return nil, NewServiceError("food_history", "list", "failed to list food history", err)
	}
	return entries, nil
}

// ListRange implements FoodHistoryService.ListRange.
func (s *foodHistoryServiceImpl) ListRange(
	ctx context.Context,
	userID uuid.UUID,
	start, end time.Time,
) ([]*domain.UserFoodHistory, error) {
	if end.Before(start) {
		return nil, domain.NewValidationError("end_date", "must not be before start_date", nil)
	}
	entries, err := s.history.ListByRange(ctx, userID, start, end)
	if err != nil {
		s.logger.Error("failed to list food history range", "error", err, "user_id", userID)
		return nil, NewServiceError("food_history", "list_range", "failed to list food history", err)
	}
	return entries, nil
}
