package api

import (
	"log/slog"
	"net/http"

	"github.com/dingsen2/micronutrient-radar/internal/api/shared"
	"github.com/dingsen2/micronutrient-radar/internal/platform/logger"
	"github.com/dingsen2/micronutrient-radar/internal/service"
)

// ReceiptHandler serves receipt uploads.
type ReceiptHandler struct {
	receipts      service.ReceiptService
	maxUploadSize int64
	logger        *slog.Logger
}

// NewReceiptHandler creates a ReceiptHandler. A non-positive maxUploadSize
// means service.DefaultMaxUploadSize.
func NewReceiptHandler(receipts service.ReceiptService, maxUploadSize int64, logger *slog.Logger) *ReceiptHandler {
	if maxUploadSize <= 0 {
		maxUploadSize = service.DefaultMaxUploadSize
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ReceiptHandler{
		receipts:      receipts,
		maxUploadSize: maxUploadSize,
		logger:        logger.With("component", "receipt_handler"),
	}
}

// Upload handles POST /receipts/upload.
func (h *ReceiptHandler) Upload(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContextOrDefault(r.Context(), h.logger)

	userID, ok := requireUserID(w, r, log)
	if !ok {
		return
	}

	data, filename, err := readUpload(w, r, h.maxUploadSize)
	if err != nil {
		HandleAPIError(w, r, err, "Failed to read upload")
		return
	}

	receipt, taskID, err := h.receipts.Upload(r.Context(), userID, filename, data)
	if err != nil {
		HandleAPIError(w, r, err, "Failed to upload receipt")
		return
	}

	log.Info("receipt accepted", "receipt_id", receipt.ID, "task_id", taskID)
	shared.RespondWithJSON(w, r, http.StatusCreated, ReceiptUploadResponse{
		ReceiptID: receipt.ID,
		Status:    receipt.Status,
		TaskID:    taskID,
	})
}

// Get handles GET /receipts/{id}.
func (h *ReceiptHandler) Get(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContextOrDefault(r.Context(), h.logger)

	userID, receiptID, ok := handleUserIDAndPathUUID(w, r, "id", log)
	if !ok {
		return
	}

	receipt, err := h.receipts.GetReceipt(r.Context(), userID, receiptID)
	if err != nil {
		HandleAPIError(w, r, err, "Failed to retrieve receipt")
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, receipt)
}
