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
	receiptColumns  = `id, user_id, datetime, raw_text, status, ocr_confidence, ocr_provider, image_url, created_at, updated_at`
	lineItemColumns = `id, receipt_id, description, quantity, fdc_id, confidence, is_estimated`
)

// PostgresReceiptStore implements store.ReceiptStore.
type PostgresReceiptStore struct {
	db     store.DBTX
	logger *slog.Logger
}

// NewPostgresReceiptStore creates a new PostgreSQL implementation of the ReceiptStore interface.
func NewPostgresReceiptStore(db store.DBTX, logger *slog.Logger) *PostgresReceiptStore {
	if db == nil {
		panic("db cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresReceiptStore{
		db:     db,
		logger: logger.With(slog.String("component", "receipt_store")),
	}
}

var _ store.ReceiptStore = (*PostgresReceiptStore)(nil)

// WithTx implements store.ReceiptStore.WithTx
func (s *PostgresReceiptStore) WithTx(tx *sql.Tx) store.ReceiptStore {
	if tx == nil {
		return s
	}
	return &PostgresReceiptStore{db: tx, logger: s.logger}
}

// Create implements store.ReceiptStore.Create
func (s *PostgresReceiptStore) Create(ctx context.Context, receipt *domain.Receipt) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	if err := receipt.Validate(); err != nil {
		return err
	}

	query := `
		INSERT INTO receipts (` + receiptColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	if _, err := s.db.ExecContext(ctx, query,
		receipt.ID,
		receipt.UserID,
		receipt.Datetime,
		receipt.RawText,
		receipt.Status,
		receipt.OCRConfidence,
		receipt.OCRProvider,
		receipt.ImageURL,
		receipt.CreatedAt,
		receipt.UpdatedAt,
	); err != nil {
		log.Error("failed to create receipt",
			slog.String("receipt_id", receipt.ID.String()),
			slog.String("error", err.Error()))
		return MapError(err)
	}
	return nil
}

// GetByID implements store.ReceiptStore.GetByID
func (s *PostgresReceiptStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.Receipt, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	query := `SELECT ` + receiptColumns + ` FROM receipts WHERE id = $1`
	receipt, err := scanReceipt(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		mapped := mapNotFound(err, store.ErrReceiptNotFound)
		if !store.IsNotFoundError(mapped) {
			log.Error("failed to get receipt",
				slog.String("receipt_id", id.String()),
				slog.String("error", err.Error()))
		}
		return nil, mapped
	}

	if receipt.LineItems, err = s.listLineItems(ctx, id); err != nil {
		return nil, err
	}
	return receipt, nil
}

// Update implements store.ReceiptStore.Update
func (s *PostgresReceiptStore) Update(ctx context.Context, receipt *domain.Receipt) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	if err := receipt.Validate(); err != nil {
		return err
	}

	query := `
		UPDATE receipts
		SET raw_text = $1, status = $2, ocr_confidence = $3, ocr_provider = $4, updated_at = $5
		WHERE id = $6
	`
	result, err := s.db.ExecContext(ctx, query,
		receipt.RawText,
		receipt.Status,
		receipt.OCRConfidence,
		receipt.OCRProvider,
		receipt.UpdatedAt,
		receipt.ID,
	)
	if err != nil {
		log.Error("failed to update receipt",
			slog.String("receipt_id", receipt.ID.String()),
			slog.String("error", err.Error()))
		return MapError(err)
	}
	return CheckRowsAffected(result, store.ErrReceiptNotFound)
}

// Delete implements store.ReceiptStore.Delete
// Line items are removed by the foreign key cascade.
func (s *PostgresReceiptStore) Delete(ctx context.Context, id uuid.UUID) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	result, err := s.db.ExecContext(ctx, `DELETE FROM receipts WHERE id = $1`, id)
	if err != nil {
		log.Error("failed to delete receipt",
			slog.String("receipt_id", id.String()),
			slog.String("error", err.Error()))
		return MapError(err)
	}
	return CheckRowsAffected(result, store.ErrReceiptNotFound)
}

// ReplaceLineItems implements store.ReceiptStore.ReplaceLineItems
func (s *PostgresReceiptStore) ReplaceLineItems(
	ctx context.Context,
	receiptID uuid.UUID,
	items []domain.LineItem,
) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	if _, err := s.db.ExecContext(ctx, `DELETE FROM line_items WHERE receipt_id = $1`, receiptID); err != nil {
		log.Error("failed to clear line items",
			slog.String("receipt_id", receiptID.String()),
			slog.String("error", err.Error()))
		return MapError(err)
	}

	query := `
		INSERT INTO line_items (` + lineItemColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	for i := range items {
		item := &items[i]
		item.ReceiptID = receiptID
		if _, err := s.db.ExecContext(ctx, query,
			item.ID,
			item.ReceiptID,
			item.Description,
			item.Quantity,
			item.FDCID,
			item.Confidence,
			item.IsEstimated,
		); err != nil {
			log.Error("failed to insert line item",
				slog.String("receipt_id", receiptID.String()),
				slog.String("error", err.Error()))
			return MapError(err)
		}
	}
	return nil
}

func (s *PostgresReceiptStore) listLineItems(ctx context.Context, receiptID uuid.UUID) ([]domain.LineItem, error) {
	query := `SELECT ` + lineItemColumns + ` FROM line_items WHERE receipt_id = $1 ORDER BY description ASC, id ASC`
	rows, err := s.db.QueryContext(ctx, query, receiptID)
	if err != nil {
		return nil, MapError(err)
	}
	defer func() { _ = rows.Close() }()

	items := []domain.LineItem{}
	for rows.Next() {
		var (
			item  domain.LineItem
			fdcID sql.NullInt64
		)
		if err := rows.Scan(
			&item.ID,
			&item.ReceiptID,
			&item.Description,
			&item.Quantity,
			&fdcID,
			&item.Confidence,
			&item.IsEstimated,
		); err != nil {
			return nil, fmt.Errorf("failed to scan line item: %w", err)
		}
		if fdcID.Valid {
			v := fdcID.Int64
			item.FDCID = &v
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, MapError(err)
	}
	return items, nil
}

func scanReceipt(row rowScanner) (*domain.Receipt, error) {
	var receipt domain.Receipt
	if err := row.Scan(
		&receipt.ID,
		&receipt.UserID,
		&receipt.Datetime,
		&receipt.RawText,
		&receipt.Status,
		&receipt.OCRConfidence,
		&receipt.OCRProvider,
		&receipt.ImageURL,
		&receipt.CreatedAt,
		&receipt.UpdatedAt,
	); err != nil {
		return nil, err
	}
	receipt.Datetime = receipt.Datetime.UTC()
	receipt.CreatedAt = receipt.CreatedAt.UTC()
	receipt.UpdatedAt = receipt.UpdatedAt.UTC()
	receipt.LineItems = []domain.LineItem{}
	return &receipt, nil
}
