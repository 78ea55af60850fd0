package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/dingsen2/micronutrient-radar/internal/domain"
)

// LedgerStore persists weekly nutrient ledgers.
// The upsert sequence is EnsureWeek, GetForUpdate, Accumulate, Update,
// all inside one transaction.
type LedgerStore interface {
	// EnsureWeek inserts ledger unless a row for (user_id, week_start) exists.
	EnsureWeek(ctx context.Context, ledger *domain.NutrientLedger) error

	// GetForUpdate returns the week's ledger and locks the row until the
	// surrounding transaction ends.
	// Returns ErrLedgerNotFound if there is no row.
	GetForUpdate(ctx context.Context, userID uuid.UUID, weekStart time.Time) (*domain.NutrientLedger, error)

	// Update writes the nutrient and percent maps, data source and last_updated.
	Update(ctx context.Context, ledger *domain.NutrientLedger) error

	// GetByWeek returns the week's ledger without locking.
	// Returns ErrLedgerNotFound if there is no row.
	GetByWeek(ctx context.Context, userID uuid.UUID, weekStart time.Time) (*domain.NutrientLedger, error)

	// ListByUser returns up to limit ledgers, newest week first.
	ListByUser(ctx context.Context, userID uuid.UUID, limit int) ([]*domain.NutrientLedger, error)

	// WithTx returns a new LedgerStore instance that uses the provided transaction.
	WithTx(tx *sql.Tx) LedgerStore
}
