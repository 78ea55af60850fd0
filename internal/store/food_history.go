package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/dingsen2/micronutrient-radar/internal/domain"
)

// FoodHistoryStore persists logged meals.
type FoodHistoryStore interface {
	Create(ctx context.Context, entry *domain.UserFoodHistory) error

	// GetByID returns the entry if it belongs to userID.
	// Returns ErrFoodHistoryNotFound otherwise.
	GetByID(ctx context.Context, userID, id uuid.UUID) (*domain.UserFoodHistory, error)

	// List returns a page of entries, newest meal first.
	List(ctx context.Context, userID uuid.UUID, offset, limit int) ([]*domain.UserFoodHistory, error)

	// ListByRange returns entries with start <= meal_datetime <= end, newest meal first.
	ListByRange(ctx context.Context, userID uuid.UUID, start, end time.Time) ([]*domain.UserFoodHistory, error)

	// WithTx returns a new FoodHistoryStore instance that uses the provided transaction.
	WithTx(tx *sql.Tx) FoodHistoryStore
}
