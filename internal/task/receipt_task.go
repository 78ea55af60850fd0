package task

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/dingsen2/micronutrient-radar/internal/domain"
	"github.com/dingsen2/micronutrient-radar/internal/store"
)

// ErrEmptyReceiptID is returned when a receipt task has no receipt.
var ErrEmptyReceiptID = errors.New("receipt ID cannot be empty")

// ReceiptProcessor reads a stored receipt and persists its line items.
type ReceiptProcessor interface {
	ProcessReceipt(ctx context.Context, receiptID uuid.UUID) (*domain.Receipt, error)
	MarkFailed(ctx context.Context, receiptID uuid.UUID) error
}

// ProcessReceiptPayload is the persisted payload of a process_receipt task.
type ProcessReceiptPayload struct {
	ReceiptID uuid.UUID `json:"receipt_id"`
}

// ProcessReceiptResult is the stored result of a process_receipt task.
type ProcessReceiptResult struct {
	Status        string               `json:"status"`
	ReceiptID     uuid.UUID            `json:"receipt_id"`
	ReceiptStatus domain.ReceiptStatus `json:"receipt_status"`
	LineItems     []domain.LineItem    `json:"line_items"`
}

// ProcessReceiptTask reads a receipt with the LLM and stores the result.
type ProcessReceiptTask struct {
	baseTask
	receiptID uuid.UUID
	receipts  ReceiptProcessor
	logger    *slog.Logger
}

// NewProcessReceiptTask creates a process_receipt task.
func NewProcessReceiptTask(
	id uuid.UUID,
	receiptID uuid.UUID,
	receipts ReceiptProcessor,
	logger *slog.Logger,
) (*ProcessReceiptTask, error) {
	if receipts == nil {
		return nil, ErrNilReceipts
	}
	if logger == nil {
		return nil, ErrNilLogger
	}
	if receiptID == uuid.Nil {
		return nil, ErrEmptyReceiptID
	}

	base, err := newBaseTask(id, TaskTypeProcessReceipt, ProcessReceiptPayload{ReceiptID: receiptID})
	if err != nil {
		return nil, err
	}

	return &ProcessReceiptTask{
		baseTask:  base,
		receiptID: receiptID,
		receipts:  receipts,
		logger: logger.With(
			"task_id", base.id,
			"task_type", TaskTypeProcessReceipt,
			"receipt_id", receiptID,
		),
	}, nil
}

// NewProcessReceiptFactory returns the registry factory for process_receipt.
func NewProcessReceiptFactory(receipts ReceiptProcessor, logger *slog.Logger) Factory {
	return func(id uuid.UUID, payload []byte) (Task, error) {
		var p ProcessReceiptPayload
		if err := json.Unmarshal(payload, &p); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidPayload, err)
		}
		return NewProcessReceiptTask(id, p.ReceiptID, receipts, logger)
	}
}

// Execute reads the receipt.
func (t *ProcessReceiptTask) Execute(ctx context.Context) error {
	t.status = TaskStatusProcessing
	t.logger.Info("starting receipt processing")

	receipt, err := t.receipts.ProcessReceipt(ctx, t.receiptID)
	if err != nil {
		t.status = TaskStatusFailed
		t.logger.Error("failed to process receipt", "error", err)
		return classify(fmt.Errorf("failed to process receipt: %w", err))
	}

	t.status = TaskStatusCompleted
	t.logger.Info("receipt processing completed",
		"receipt_status", receipt.Status,
		"line_items", len(receipt.LineItems))
	return t.setResult(ProcessReceiptResult{
		Status:        "success",
		ReceiptID:     receipt.ID,
		ReceiptStatus: receipt.Status,
		LineItems:     receipt.LineItems,
	})
}

// OnFailure marks the receipt failed once retries are exhausted.
func (t *ProcessReceiptTask) OnFailure(ctx context.Context, err error) {
	if errors.Is(err, store.ErrNotFound) {
		return
	}
	if markErr := t.receipts.MarkFailed(ctx, t.receiptID); markErr != nil {
		t.logger.Error("failed to mark receipt failed", "error", markErr)
	}
}
