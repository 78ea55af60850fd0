package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"path"

	"github.com/google/uuid"

	"github.com/dingsen2/micronutrient-radar/internal/domain"
	"github.com/dingsen2/micronutrient-radar/internal/events"
	"github.com/dingsen2/micronutrient-radar/internal/generation"
	"github.com/dingsen2/micronutrient-radar/internal/platform/storage"
	"github.com/dingsen2/micronutrient-radar/internal/store"
	"github.com/dingsen2/micronutrient-radar/internal/task"
)

// ReceiptService accepts receipt uploads and reads them in the background.
type ReceiptService interface {
	// Upload stores the file, creates a needs_review receipt and enqueues a
	// process_receipt task. Returns the receipt and the task id.
	Upload(ctx context.Context, userID uuid.UUID, filename string, data []byte) (*domain.Receipt, uuid.UUID, error)

	// ProcessReceipt reads a stored receipt and persists its line items.
	ProcessReceipt(ctx context.Context, receiptID uuid.UUID) (*domain.Receipt, error)

	// MarkFailed flags a receipt whose processing gave up.
	MarkFailed(ctx context.Context, receiptID uuid.UUID) error

	// GetReceipt returns a receipt with line items. Receipts of other users
	// are reported as store.ErrReceiptNotFound.
	GetReceipt(ctx context.Context, userID, receiptID uuid.UUID) (*domain.Receipt, error)
}

type receiptServiceImpl struct {
	receipts      store.ReceiptStore
	tx            store.Transactor
	objects       storage.ObjectStore
	reader        generation.ReceiptReader
	emitter       events.EventEmitter
	maxUploadSize int64
	logger        *slog.Logger
}

var _ task.ReceiptProcessor = (*receiptServiceImpl)(nil)

// ReceiptDeps groups the collaborators of the receipt service.
type ReceiptDeps struct {
	Receipts      store.ReceiptStore
	Transactor    store.Transactor
	Objects       storage.ObjectStore
	Reader        generation.ReceiptReader
	Emitter       events.EventEmitter
	MaxUploadSize int64
}

// NewReceiptService creates a ReceiptService.
func NewReceiptService(deps ReceiptDeps, logger *slog.Logger) (ReceiptService, error) {
	switch {
	case deps.Receipts == nil:
		return nil, nilDependency("receipt", "receiptStore")
	case deps.Transactor == nil:
		return nil, nilDependency("receipt", "transactor")
	case deps.Objects == nil:
		return nil, nilDependency("receipt", "objectStore")
	case deps.Reader == nil:
		return nil, nilDependency("receipt", "reader")
	case deps.Emitter == nil:
		return nil, nilDependency("receipt", "eventEmitter")
	}
	if deps.MaxUploadSize <= 0 {
		deps.MaxUploadSize = DefaultMaxUploadSize
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &receiptServiceImpl{
		receipts:      deps.Receipts,
		tx:            deps.Transactor,
		objects:       deps.Objects,
		reader:        deps.Reader,
		emitter:       deps.Emitter,
		maxUploadSize: deps.MaxUploadSize,
		logger:        logger.With("component", "receipt_service"),
	}, nil
}

// Upload implements ReceiptService.Upload.
func (s *receiptServiceImpl) Upload(
	ctx context.Context,
	userID uuid.UUID,
	filename string,
	data []byte,
) (*domain.Receipt, uuid.UUID, error) {
	if int64(len(data)) > s.maxUploadSize {
		return nil, uuid.Nil, domain.NewValidationError("file",
			fmt.Sprintf("exceeds maximum size of %d bytes", s.maxUploadSize), domain.ErrFileTooLarge)
	}
	ext, contentType, err := domain.ReceiptContentType(filename)
	if err != nil {
		return nil, uuid.Nil, err
	}
	if len(data) == 0 {
		return nil, uuid.Nil, domain.NewValidationError("file", "is empty", domain.ErrInvalidFormat)
	}

	receiptID := uuid.New()
	key := path.Join("receipts", userID.String(), receiptID.String()+ext)
	location, err := s.objects.Put(ctx, key, data, contentType)
	if err != nil {
		s.logger.Error("failed to store receipt", "error", err, "user_id", userID)
		return nil, uuid.Nil, NewServiceError("receipt", "upload", "failed to store receipt", err)
	}

	receipt, err := domain.NewReceipt(receiptID, userID, location)
	if err == nil {
		err = s.receipts.Create(ctx, receipt)
	}
	if err != nil {
		s.logger.Error("failed to create receipt record", "error", err, "user_id", userID)
		if delErr := s.objects.Delete(ctx, location); delErr != nil {
			s.logger.Warn("failed to remove orphaned receipt", "error", delErr, "location", location)
		}
		return nil, uuid.Nil, NewServiceError("receipt", "upload", "failed to save receipt", err)
	}

	event, err := events.NewTaskRequestEvent(task.TaskTypeProcessReceipt, task.ProcessReceiptPayload{ReceiptID: receipt.ID})
	if err != nil {
		s.discard(ctx, receipt)
		return nil, uuid.Nil, NewServiceError("receipt", "upload", "failed to create event", err)
	}
	if err := s.emitter.EmitEvent(ctx, event); err != nil {
		s.logger.Error("failed to emit receipt event",
			"error", err,
			"receipt_id", receipt.ID,
			"event_id", event.ID)
		s.discard(ctx, receipt)
		return nil, uuid.Nil, NewServiceError("receipt", "upload", "failed to enqueue processing", err)
	}

	s.logger.Info("receipt uploaded",
		"receipt_id", receipt.ID,
		"user_id", userID,
		"task_id", event.ID,
		"content_type", contentType)
	return receipt, event.ID, nil
}

// discard removes an upload that was never queued for processing.
func (s *receiptServiceImpl) discard(ctx context.Context, receipt *domain.Receipt) {
	ctx = context.WithoutCancel(ctx)
	if err := s.receipts.Delete(ctx, receipt.ID); err != nil {
		s.logger.Warn("failed to remove unqueued receipt", "error", err, "receipt_id", receipt.ID)
	}
	if err := s.objects.Delete(ctx, receipt.ImageURL); err != nil {
		s.logger.Warn("failed to remove orphaned receipt", "error", err, "location", receipt.ImageURL)
	}
}

// ProcessReceipt implements ReceiptService.ProcessReceipt.
func (s *receiptServiceImpl) ProcessReceipt(ctx context.Context, receiptID uuid.UUID) (*domain.Receipt, error) {
	log := s.logger.With("receipt_id", receiptID)

	receipt, err := s.receipts.GetByID(ctx, receiptID)
	if err != nil {
		return nil, NewServiceError("receipt", "process", "failed to load receipt", err)
	}

	_, contentType, err := domain.ReceiptContentType(receipt.ImageURL)
	if err != nil {
		return nil, NewServiceError("receipt", "process", "stored receipt has an unsupported type", err)
	}

	data, err := s.objects.Get(ctx, receipt.ImageURL)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			return nil, NewServiceError("receipt", "process", "stored receipt is missing",
				fmt.Errorf("%w: %w", store.ErrNotFound, err))
		}
		return nil, NewServiceError("receipt", "process", "failed to read stored receipt", err)
	}

	reading, err := s.reader.ReadReceipt(ctx, data, contentType)
	if err != nil {
		return nil, NewServiceError("receipt", "process", "receipt reader call failed", err)
	}

	items := make([]domain.LineItem, 0, len(reading.Items))
	for _, line := range reading.Items {
		item, err := domain.NewLineItem(receipt.ID, line.Description, line.Quantity, line.Confidence)
		if err != nil {
			log.Debug("dropping receipt line", "error", err)
			continue
		}
		items = append(items, *item)
	}
	receipt.ApplyParse(reading.RawText, reading.Confidence, items)

	err = s.tx.RunInTx(ctx, func(ctx context.Context, tx *sql.Tx) error {
		txReceipts := s.receipts.WithTx(tx)
		if err := txReceipts.ReplaceLineItems(ctx, receipt.ID, receipt.LineItems); err != nil {
			return err
		}
		return txReceipts.Update(ctx, receipt)
	})
	if err != nil {
		log.Error("failed to persist receipt reading", "error", err)
		return nil, NewServiceError("receipt", "process", "failed to save receipt reading", err)
	}

	log.Info("receipt processed",
		"status", receipt.Status,
		"line_items", len(receipt.LineItems),
		"confidence", receipt.OCRConfidence)
	return receipt, nil
}

// MarkFailed implements ReceiptService.MarkFailed.
func (s *receiptServiceImpl) MarkFailed(ctx context.Context, receiptID uuid.UUID) error {
	receipt, err := s.receipts.GetByID(ctx, receiptID)
	if err != nil {
		return NewServiceError("receipt", "mark_failed", "failed to load receipt", err)
	}
	receipt.MarkFailed()
	if err := s.receipts.Update(ctx, receipt); err != nil {
		return NewServiceError("receipt", "mark_failed", "failed to update receipt", err)
	}
	s.logger.Info("receipt marked failed", "receipt_id", receiptID)
	return nil
}

// GetReceipt implements ReceiptService.GetReceipt.
func (s *receiptServiceImpl) GetReceipt(ctx context.Context, userID, receiptID uuid.UUID) (*domain.Receipt, error) {
	receipt, err := s.receipts.GetByID(ctx, receiptID)
	if err != nil {
		return nil, NewServiceError("receipt", "get_receipt", "failed to get receipt", err)
	}
	if receipt.UserID != userID {
		return nil, NewServiceError("receipt", "get_receipt", "receipt belongs to another user", store.ErrReceiptNotFound)
	}
	return receipt, nil
}
