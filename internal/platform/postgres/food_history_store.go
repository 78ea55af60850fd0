package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/dingsen2/micronutrient-radar/internal/domain"
	"github.com/dingsen2/micronutrient-radar/internal/platform/logger"
	"github.com/dingsen2/micronutrient-radar/internal/store"
)

const foodHistoryColumns = `id, user_id, meal_datetime, meal_type, food_image_id, total_nutrients, created_at, updated_at`

// PostgresFoodHistoryStore implements store.FoodHistoryStore.
type PostgresFoodHistoryStore struct {
	db     store.DBTX
	logger *slog.Logger
}

// NewPostgresFoodHistoryStore creates a new PostgreSQL implementation of the FoodHistoryStore interface.
func NewPostgresFoodHistoryStore(db store.DBTX, logger *slog.Logger) *PostgresFoodHistoryStore {
	if db == nil {
		panic("db cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresFoodHistoryStore{
		db:     db,
		logger: logger.With(slog.String("component", "food_history_store")),
	}
}

var _ store.FoodHistoryStore = (*PostgresFoodHistoryStore)(nil)

// WithTx implements store.FoodHistoryStore.WithTx
func (s *PostgresFoodHistoryStore) WithTx(tx *sql.Tx) store.FoodHistoryStore {
	if tx == nil {
		return s
	}
	return &PostgresFoodHistoryStore{db: tx, logger: s.logger}
}

// Create implements store.FoodHistoryStore.Create
func (s *PostgresFoodHistoryStore) Create(ctx context.Context, entry *domain.UserFoodHistory) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	if err := entry.Validate(); err != nil {
		return err
	}
	totals, err := toJSONB(entry.TotalNutrients)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO user_food_history (` + foodHistoryColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	if _, err := s.db.ExecContext(ctx, query,
		entry.ID,
		entry.UserID,
		entry.MealDatetime,
		entry.MealType,
		entry.FoodImageID,
		totals,
		entry.CreatedAt,
		entry.UpdatedAt,
	); err != nil {
		log.Error("failed to create food history entry",
			slog.String("entry_id", entry.ID.String()),
			slog.String("user_id", entry.UserID.String()),
			slog.String("error", err.Error()))
		if IsForeignKeyViolation(err) {
			return fmt.Errorf("%w: unknown user or food image", store.ErrInvalidEntity)
		}
		return MapError(err)
	}
	return nil
}

// GetByID implements store.FoodHistoryStore.GetByID
func (s *PostgresFoodHistoryStore) GetByID(
	ctx context.Context,
	userID, id uuid.UUID,
) (*domain.UserFoodHistory, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	query := `SELECT ` + foodHistoryColumns + ` FROM user_food_history WHERE id = $1 AND user_id = $2`
	entry, err := scanFoodHistory(s.db.QueryRowContext(ctx, query, id, userID))
	if err != nil {
		mapped := mapNotFound(err, store.ErrFoodHistoryNotFound)
		if !store.IsNotFoundError(mapped) {
			log.Error("failed to get food history entry",
				slog.String("entry_id", id.String()),
				slog.String("error", err.Error()))
		}
		return nil, mapped
	}
	return entry, nil
}

// List implements store.FoodHistoryStore.List
func (s *PostgresFoodHistoryStore) List(
	ctx context.Context,
	userID uuid.UUID,
	offset, limit int,
) ([]*domain.UserFoodHistory, error) {
	query := `
		SELECT ` + foodHistoryColumns + `
		FROM user_food_history
		WHERE user_id = $1
		ORDER BY meal_datetime DESC, id ASC
		OFFSET $2 LIMIT $3
	`
	return s.list(ctx, query, userID, offset, limit)
}

// ListByRange implements store.FoodHistoryStore.ListByRange
func (s *PostgresFoodHistoryStore) ListByRange(
	ctx context.Context,
	userID uuid.UUID,
	start, end time.Time,
) ([]*domain.UserFoodHistory, error) {
	query := `
		SELECT ` + foodHistoryColumns + `
		FROM user_food_history
		WHERE user_id = $1 AND meal_datetime >= $2 AND meal_datetime <= $3
		ORDER BY meal_datetime DESC, id ASC
	`
	return s.list(ctx, query, userID, start.UTC(), end.UTC())
}

func (s *PostgresFoodHistoryStore) list(ctx context.Context, query string, args ...any) ([]*domain.UserFoodHistory, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		log.Error("failed to list food history", slog.String("error", err.Error()))
		return nil, MapError(err)
	}
	defer func() { _ = rows.Close() }()

	entries := []*domain.UserFoodHistory{}
	for rows.Next() {
		entry, err := scanFoodHistory(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan food history entry: %w", err)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, MapError(err)
	}
	return entries, nil
}

func scanFoodHistory(row rowScanner) (*domain.UserFoodHistory, error) {
	var (
		entry   domain.UserFoodHistory
		imageID uuid.NullUUID
		totals  []byte
	)
	if err := row.Scan(
		&entry.ID,
		&entry.UserID,
		&entry.MealDatetime,
		&entry.MealType,
		&imageID,
		&totals,
		&entry.CreatedAt,
		&entry.UpdatedAt,
	); err != nil {
		return nil, err
	}
	if imageID.Valid {
		id := imageID.UUID
		entry.FoodImageID = &id
	}
	entry.TotalNutrients = domain.NutrientMap{}
	if err := fromJSONB(totals, &entry.TotalNutrients); err != nil {
		return nil, err
	}
	entry.MealDatetime = entry.MealDatetime.UTC()
	entry.CreatedAt = entry.CreatedAt.UTC()
	entry.UpdatedAt = entry.UpdatedAt.UTC()
	return &entry, nil
}
