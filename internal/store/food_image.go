package store

import (
	"context"
	"database/sql"

	"github.com/google/uuid"

	"github.com/dingsen2/micronutrient-radar/internal/domain"
)

// FoodImageStore persists uploaded food photos and their recognized items.
type FoodImageStore interface {
	// Create saves a new image record. Items on the image are ignored.
	Create(ctx context.Context, image *domain.FoodImage) error

	// GetByID returns the image with its food items.
	// Returns ErrFoodImageNotFound if the image does not exist.
	GetByID(ctx context.Context, id uuid.UUID) (*domain.FoodImage, error)

	// ListByUser returns a user's images newest first, with their items.
	ListByUser(ctx context.Context, userID uuid.UUID, offset, limit int) ([]*domain.FoodImage, error)

	// Update writes status and recognition confidence.
	// Returns ErrFoodImageNotFound if the image does not exist.
	Update(ctx context.Context, image *domain.FoodImage) error

	// ReplaceItems deletes every item of the image and inserts items.
	// Should run inside a transaction so a retried recognition never
	// leaves duplicates.
	ReplaceItems(ctx context.Context, imageID uuid.UUID, items []domain.FoodItem) error

	// Delete removes the image and its items.
	// Returns ErrFoodImageNotFound if the image does not exist.
	Delete(ctx context.Context, id uuid.UUID) error

	// WithTx returns a new FoodImageStore instance that uses the provided transaction.
	WithTx(tx *sql.Tx) FoodImageStore
}
