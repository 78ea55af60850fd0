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

const ledgerColumns = `id, user_id, week_start, nutrient, percent_rda, data_source, last_updated`

// PostgresLedgerStore implements store.LedgerStore.
type PostgresLedgerStore struct {
	db     store.DBTX
	logger *slog.Logger
}

// NewPostgresLedgerStore creates a new PostgreSQL implementation of the LedgerStore interface.
func NewPostgresLedgerStore(db store.DBTX, logger *slog.Logger) *PostgresLedgerStore {
	if db == nil {
		panic("db cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresLedgerStore{
		db:     db,
		logger: logger.With(slog.String("component", "ledger_store")),
	}
}

var _ store.LedgerStore = (*PostgresLedgerStore)(nil)

// WithTx implements store.LedgerStore.WithTx
func (s *PostgresLedgerStore) WithTx(tx *sql.Tx) store.LedgerStore {
	if tx == nil {
		return s
	}
	return &PostgresLedgerStore{db: tx, logger: s.logger}
}

// EnsureWeek implements store.LedgerStore.EnsureWeek
// Concurrent callers for the same week both succeed; only one row is written.
func (s *PostgresLedgerStore) EnsureWeek(ctx context.Context, ledger *domain.NutrientLedger) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	if err := ledger.Validate(); err != nil {
		return err
	}

	nutrients, err := toJSONB(ledger.Nutrients)
	if err != nil {
		return err
	}
	percent, err := toJSONB(ledger.PercentRDA)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO nutrient_ledgers (` + ledgerColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (user_id, week_start) DO NOTHING
	`
	if _, err := s.db.ExecContext(ctx, query,
		ledger.ID,
		ledger.UserID,
		ledger.WeekStart,
		nutrients,
		percent,
		ledger.DataSource,
		ledger.LastUpdated,
	); err != nil {
		log.Error("failed to ensure ledger week",
			slog.String("user_id", ledger.UserID.String()),
			slog.Time("week_start", ledger.WeekStart),
			slog.String("error", err.Error()))
		return MapError(err)
	}
	return nil
}

// GetForUpdate implements store.LedgerStore.GetForUpdate
func (s *PostgresLedgerStore) GetForUpdate(
	ctx context.Context,
	userID uuid.UUID,
	weekStart time.Time,
) (*domain.NutrientLedger, error) {
	query := `
		SELECT ` + ledgerColumns + `
		FROM nutrient_ledgers
		WHERE user_id = $1 AND week_start = $2
		FOR UPDATE
	`
	return s.getOne(ctx, query, userID, weekStart.UTC())
}

// GetByWeek implements store.LedgerStore.GetByWeek
func (s *PostgresLedgerStore) GetByWeek(
	ctx context.Context,
	userID uuid.UUID,
	weekStart time.Time,
) (*domain.NutrientLedger, error) {
	query := `
		SELECT ` + ledgerColumns + `
		FROM nutrient_ledgers
		WHERE user_id = $1 AND week_start = $2
	`
	return s.getOne(ctx, query, userID, weekStart.UTC())
}

func (s *PostgresLedgerStore) getOne(ctx context.Context, query string, args ...any) (*domain.NutrientLedger, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	ledger, err := scanLedger(s.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		mapped := mapNotFound(err, store.ErrLedgerNotFound)
		if !store.IsNotFoundError(mapped) {
			log.Error("failed to get ledger", slog.String("error", err.Error()))
		}
		return nil, mapped
	}
	return ledger, nil
}

// Update implements store.LedgerStore.Update
func (s *PostgresLedgerStore) Update(ctx context.Context, ledger *domain.NutrientLedger) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	if err := ledger.Validate(); err != nil {
		return err
	}

	nutrients, err := toJSONB(ledger.Nutrients)
	if err != nil {
		return err
	}
	percent, err := toJSONB(ledger.PercentRDA)
	if err != nil {
		return err
	}

	query := `
		UPDATE nutrient_ledgers
		SET nutrient = $1, percent_rda = $2, data_source = $3, last_updated = $4
		WHERE id = $5
	`
	result, err := s.db.ExecContext(ctx, query,
		nutrients,
		percent,
		ledger.DataSource,
		ledger.LastUpdated,
		ledger.ID,
	)
	if err != nil {
		log.Error("failed to update ledger",
			slog.String("ledger_id", ledger.ID.String()),
			slog.String("error", err.Error()))
		return MapError(err)
	}
	return CheckRowsAffected(result, store.ErrLedgerNotFound)
}

// ListByUser implements store.LedgerStore.ListByUser
func (s *PostgresLedgerStore) ListByUser(
	ctx context.Context,
	userID uuid.UUID,
	limit int,
) ([]*domain.NutrientLedger, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	query := `
		SELECT ` + ledgerColumns + `
		FROM nutrient_ledgers
		WHERE user_id = $1
		ORDER BY week_start DESC
		LIMIT $2
	`
	rows, err := s.db.QueryContext(ctx, query, userID, limit)
	if err != nil {
		log.Error("failed to list ledgers",
			slog.String("user_id", userID.String()),
			slog.String("error", err.Error()))
		return nil, MapError(err)
	}
	defer func() { _ = rows.Close() }()

	ledgers := []*domain.NutrientLedger{}
	for rows.Next() {
		ledger, err := scanLedger(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan ledger: %w", err)
		}
		ledgers = append(ledgers, ledger)
	}
	if err := rows.Err(); err != nil {
		return nil, MapError(err)
	}
	return ledgers, nil
}

func scanLedger(row rowScanner) (*domain.NutrientLedger, error) {
	var (
		ledger    domain.NutrientLedger
		nutrients []byte
		percent   []byte
	)
	if err := row.Scan(
		&ledger.ID,
		&ledger.UserID,
		&ledger.WeekStart,
		&nutrients,
		&percent,
		&ledger.DataSource,
		&ledger.LastUpdated,
	); err != nil {
		return nil, err
	}
	ledger.Nutrients = domain.NutrientMap{}
	ledger.PercentRDA = domain.NutrientMap{}
	if err := fromJSONB(nutrients, &ledger.Nutrients); err != nil {
		return nil, err
	}
	if err := fromJSONB(percent, &ledger.PercentRDA); err != nil {
		return nil, err
	}
	ledger.WeekStart = ledger.WeekStart.UTC()
	ledger.LastUpdated = ledger.LastUpdated.UTC()
	return &ledger, nil
}
