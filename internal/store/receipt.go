package store

import (
	"context"
	"database/sql"

	"github.com/google/uuid"

	"github.com/dingsen2/micronutrient-radar/internal/domain"
)

// ReceiptStore persists receipts and their line items.
type ReceiptStore interface {
	Create(ctx context.Context, receipt *domain.Receipt) error

	// GetByID returns the receipt with its line items.
	// Returns ErrReceiptNotFound if the receipt does not exist.
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Receipt, error)

	// Update writes raw text, status and OCR fields.
	Update(ctx context.Context, receipt *domain.Receipt) error

	// ReplaceLineItems deletes every line item of the receipt and inserts items.
	ReplaceLineItems(ctx context.Context, receiptID uuid.UUID, items []domain.LineItem) error

	// Delete removes the receipt and its line items.
	// Returns ErrReceiptNotFound if the receipt does not exist.
	Delete(ctx context.Context, id uuid.UUID) error

	// WithTx returns a new ReceiptStore instance that uses the provided transaction.
	WithTx(tx *sql.Tx) ReceiptStore
}
