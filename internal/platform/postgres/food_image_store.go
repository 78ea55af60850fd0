package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/dingsen2/micronutrient-radar/internal/domain"
	"github.com/dingsen2/micronutrient-radar/internal/platform/logger"
	"github.com/dingsen2/micronutrient-radar/internal/store"
)

const (
	foodImageColumns = `id, user_id, captured_at, image_url, status, recognition_confidence, created_at, updated_at`
	foodItemColumns  = `id, food_image_id, description, quantity, unit, fdc_id, confidence, is_estimated, created_at, updated_at`
)

// PostgresFoodImageStore implements store.FoodImageStore.
type PostgresFoodImageStore struct {
	db     store.DBTX
	logger *slog.Logger
}

// NewPostgresFoodImageStore creates a new PostgreSQL implementation of the FoodImageStore interface.
func NewPostgresFoodImageStore(db store.DBTX, logger *slog.Logger) *PostgresFoodImageStore {
	if db == nil {
		panic("db cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresFoodImageStore{
		db:     db,
		logger: logger.With(slog.String("component", "food_image_store")),
	}
}

var _ store.FoodImageStore = (*PostgresFoodImageStore)(nil)

// WithTx implements store.FoodImageStore.WithTx
func (s *PostgresFoodImageStore) WithTx(tx *sql.Tx) store.FoodImageStore {
	if tx == nil {
		return s
	}
	return &PostgresFoodImageStore{db: tx, logger: s.logger}
}

// Create implements store.FoodImageStore.Create
func (s *PostgresFoodImageStore) Create(ctx context.Context, image *domain.FoodImage) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	if err := image.Validate(); err != nil {
		return err
	}

	query := `
		INSERT INTO food_images (` + foodImageColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := s.db.ExecContext(ctx, query,
		image.ID,
		image.UserID,
		image.CapturedAt,
		image.ImageURL,
		image.Status,
		image.RecognitionConfidence,
		image.CreatedAt,
		image.UpdatedAt,
	)
	if err != nil {
		log.Error("failed to create food image",
			slog.String("image_id", image.ID.String()),
			slog.String("user_id", image.UserID.String()),
			slog.String("error", err.Error()))
		return MapError(err)
	}

	log.Debug("food image created", slog.String("image_id", image.ID.String()))
	return nil
}

// GetByID implements store.FoodImageStore.GetByID
func (s *PostgresFoodImageStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.FoodImage, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	query := `SELECT ` + foodImageColumns + ` FROM food_images WHERE id = $1`
	image, err := scanFoodImage(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		mapped := mapNotFound(err, store.ErrFoodImageNotFound)
		if !store.IsNotFoundError(mapped) {
			log.Error("failed to get food image",
				slog.String("image_id", id.String()),
				slog.String("error", err.Error()))
		}
		return nil, mapped
	}

	if image.FoodItems, err = s.listItems(ctx, image.ID); err != nil {
		return nil, err
	}
	return image, nil
}

// ListByUser implements store.FoodImageStore.ListByUser
func (s *PostgresFoodImageStore) ListByUser(
	ctx context.Context,
	userID uuid.UUID,
	offset, limit int,
) ([]*domain.FoodImage, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	query := `
		SELECT ` + foodImageColumns + `
		FROM food_images
		WHERE user_id = $1
		ORDER BY captured_at DESC, id ASC
		OFFSET $2 LIMIT $3
	`
	rows, err := s.db.QueryContext(ctx, query, userID, offset, limit)
	if err != nil {
		log.Error("failed to list food images",
			slog.String("user_id", userID.String()),
			slog.String("error", err.Error()))
		return nil, MapError(err)
	}

	images := []*domain.FoodImage{}
	for rows.Next() {
		image, err := scanFoodImage(rows)
		if err != nil {
			_ = rows.Close()
			return nil, fmt.Errorf("failed to scan food image: %w", err)
		}
		images = append(images, image)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, MapError(err)
	}
	_ = rows.Close()

	// Items are loaded after the image cursor is closed; a transaction
	// cannot run a second query while rows are open.
	for _, image := range images {
		if image.FoodItems, err = s.listItems(ctx, image.ID); err != nil {
			return nil, err
		}
	}
	return images, nil
}

// Update implements store.FoodImageStore.Update
func (s *PostgresFoodImageStore) Update(ctx context.Context, image *domain.FoodImage) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	if err := image.Validate(); err != nil {
		return err
	}

	query := `
		UPDATE food_images
		SET status = $1, recognition_confidence = $2, updated_at = $3
		WHERE id = $4
	`
	result, err := s.db.ExecContext(ctx, query,
		image.Status,
		image.RecognitionConfidence,
		image.UpdatedAt,
		image.ID,
	)
	if err != nil {
		log.Error("failed to update food image",
			slog.String("image_id", image.ID.String()),
			slog.String("error", err.Error()))
		return MapError(err)
	}
	return CheckRowsAffected(result, store.ErrFoodImageNotFound)
}

// Delete implements store.FoodImageStore.Delete
// Items are removed by the foreign key cascade.
func (s *PostgresFoodImageStore) Delete(ctx context.Context, id uuid.UUID) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	result, err := s.db.ExecContext(ctx, `DELETE FROM food_images WHERE id = $1`, id)
	if err != nil {
		log.Error("failed to delete food image",
			slog.String("image_id", id.String()),
			slog.String("error", err.Error()))
		return MapError(err)
	}
	return CheckRowsAffected(result, store.ErrFoodImageNotFound)
}

// ReplaceItems implements store.FoodImageStore.ReplaceItems
func (s *PostgresFoodImageStore) ReplaceItems(ctx context.Context, imageID uuid.UUID, items []domain.FoodItem) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	if _, err := s.db.ExecContext(ctx, `DELETE FROM food_items WHERE food_image_id = $1`, imageID); err != nil {
		log.Error("failed to clear food items",
			slog.String("image_id", imageID.String()),
			slog.String("error", err.Error()))
		return MapError(err)
	}

	query := `
		INSERT INTO food_items (` + foodItemColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	for i := range items {
		item := &items[i]
		item.FoodImageID = imageID
		if err := item.Validate(); err != nil {
			return err
		}
		if _, err := s.db.ExecContext(ctx, query,
			item.ID,
			item.FoodImageID,
			item.Description,
			item.Quantity,
			item.Unit,
			item.FDCID,
			item.Confidence,
			item.IsEstimated,
			item.CreatedAt,
			item.UpdatedAt,
		); err != nil {
			log.Error("failed to insert food item",
				slog.String("image_id", imageID.String()),
				slog.String("error", err.Error()))
			return MapError(err)
		}
	}

	log.Debug("food items replaced",
		slog.String("image_id", imageID.String()),
		slog.Int("count", len(items)))
	return nil
}

func (s *PostgresFoodImageStore) listItems(ctx context.Context, imageID uuid.UUID) ([]domain.FoodItem, error) {
	query := `
		SELECT ` + foodItemColumns + `
		FROM food_items
		WHERE food_image_id = $1
		ORDER BY created_at ASC, id ASC
	`
	rows, err := s.db.QueryContext(ctx, query, imageID)
	if err != nil {
		return nil, MapError(err)
	}
	defer func() { _ = rows.Close() }()

	items := []domain.FoodItem{}
	for rows.Next() {
		var (
			item  domain.FoodItem
			fdcID sql.NullInt64
		)
		if err := rows.Scan(
			&item.ID,
			&item.FoodImageID,
			&item.Description,
			&item.Quantity,
			&item.Unit,
			&fdcID,
			&item.Confidence,
			&item.IsEstimated,
			&item.CreatedAt,
			&item.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan food item: %w", err)
		}
		if fdcID.Valid {
			v := fdcID.Int64
			item.FDCID = &v
		}
		item.CreatedAt = item.CreatedAt.UTC()
		item.UpdatedAt = item.UpdatedAt.UTC()
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, MapError(err)
	}
	return items, nil
}

func scanFoodImage(row rowScanner) (*domain.FoodImage, error) {
	var image domain.FoodImage
	if err := row.Scan(
		&image.ID,
		&image.UserID,
		&image.CapturedAt,
		&image.ImageURL,
		&image.Status,
		&image.RecognitionConfidence,
		&image.CreatedAt,
		&image.UpdatedAt,
	); err != nil {
		return nil, err
	}
	image.CapturedAt = image.CapturedAt.UTC()
	image.CreatedAt = image.CreatedAt.UTC()
	image.UpdatedAt = image.UpdatedAt.UTC()
	image.FoodItems = []domain.FoodItem{}
	return &image, nil
}
