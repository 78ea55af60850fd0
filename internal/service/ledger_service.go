package service

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/dingsen2/micronutrient-radar/internal/domain"
	"github.com/dingsen2/micronutrient-radar/internal/store"
	"github.com/dingsen2/micronutrient-radar/internal/task"
)

// Ledger listing bounds, in weeks.
const (
	DefaultLedgerWeeks = 12
	MaxLedgerWeeks     = 104
)

// LedgerService maintains the weekly nutrient ledgers.
type LedgerService interface {
	// AddToWeek adds totals to the ledger of the week containing at,
	// creating the ledger if needed.
	AddToWeek(
		ctx context.Context,
		userID uuid.UUID,
		at time.Time,
		totals domain.NutrientMap,
		source domain.DataSource,
	) (*domain.NutrientLedger, error)

	// CurrentWeek returns the ledger for the current week or store.ErrLedgerNotFound.
	CurrentWeek(ctx context.Context, userID uuid.UUID) (*domain.NutrientLedger, error)

	// ListWeeks returns up to weeks ledgers, newest first.
	ListWeeks(ctx context.Context, userID uuid.UUID, weeks int) ([]*domain.NutrientLedger, error)
}

type ledgerServiceImpl struct {
	ledgers store.LedgerStore
	tx      store.Transactor
	now     func() time.Time
	logger  *slog.Logger
}

var _ task.LedgerUpdater = (*ledgerServiceImpl)(nil)

// NewLedgerService creates a LedgerService.
func NewLedgerService(ledgers store.LedgerStore, tx store.Transactor, logger *slog.Logger) (LedgerService, error) {
	if ledgers == nil {
		return nil, nilDependency("ledger", "ledgerStore")
	}
	if tx == nil {
		return nil, nilDependency("ledger", "transactor")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ledgerServiceImpl{
		ledgers: ledgers,
		tx:      tx,
		now:     time.Now,
		logger:  logger.With("component", "ledger_service"),
	}, nil
}

// AddToWeek runs the ledger upsert in its own transaction.
func (s *ledgerServiceImpl) AddToWeek(
	ctx context.Context,
	userID uuid.UUID,
	at time.Time,
	totals domain.NutrientMap,
	source domain.DataSource,
) (*domain.NutrientLedger, error) {
	var ledger *domain.NutrientLedger
	err := s.tx.RunInTx(ctx, func(ctx context.Context, tx *sql.Tx) error {
		var err error
		ledger, err = accumulateWeek(ctx, s.ledgers.WithTx(tx), userID, at, totals, source)
		return err
	})
	if err != nil {
		s.logger.Error("failed to update ledger",
			"error", err,
			"user_id", userID,
			"week_start", domain.WeekStart(at))
		return nil, NewServiceError("ledger", "add_to_week", "failed to update ledger", err)
	}

	s.logger.Info("ledger updated",
		"user_id", userID,
		"week_start", ledger.WeekStart,
		"data_source", source)
	return ledger, nil
}

// accumulateWeek upserts the week row, locks it and adds totals. It must run
// inside a transaction so the lock holds until commit.
func accumulateWeek(
	ctx context.Context,
	ledgers store.LedgerStore,
	userID uuid.UUID,
	at time.Time,
	totals domain.NutrientMap,
	source domain.DataSource,
) (*domain.NutrientLedger, error) {
	fresh, err := domain.NewNutrientLedger(userID, at, source)
	if err != nil {
		return nil, err
	}
	if err := ledgers.EnsureWeek(ctx, fresh); err != nil {
		return nil, err
	}

	ledger, err := ledgers.GetForUpdate(ctx, userID, fresh.WeekStart)
	if err != nil {
		return nil, err
	}
	if err := ledger.Accumulate(totals, source); err != nil {
		return nil, err
	}
	if err := ledgers.Update(ctx, ledger); err != nil {
		return nil, err
	}
	return ledger, nil
}

// CurrentWeek implements LedgerService.CurrentWeek.
func (s *ledgerServiceImpl) CurrentWeek(ctx context.Context, userID uuid.UUID) (*domain.NutrientLedger, error) {
	ledger, err := s.ledgers.GetByWeek(ctx, userID, domain.WeekStart(s.now()))
	if err != nil {
		if !store.IsNotFoundError(err) {
			s.logger.Error("failed to get current ledger", "error", err, "user_id", userID)
		}
		return nil, NewServiceError("ledger", "current_week", "failed to get current ledger", err)
	}
	return ledger, nil
}

// ListWeeks implements LedgerService.ListWeeks.
func (s *ledgerServiceImpl) ListWeeks(
	ctx context.Context,
	userID uuid.UUID,
	weeks int,
) ([]*domain.NutrientLedger, error) {
	switch {
	case weeks <= 0:
		weeks = DefaultLedgerWeeks
	case weeks > MaxLedgerWeeks:
		weeks = MaxLedgerWeeks
	}

	ledgers, err := s.ledgers.ListByUser(ctx, userID, weeks)
	if err != nil {
		s.logger.Error("failed to list ledgers", "error", err, "user_id", userID)
		return nil, NewServiceError("ledger", "list_weeks", "failed to list ledgers", err)
	}
	return ledgers, nil
}
