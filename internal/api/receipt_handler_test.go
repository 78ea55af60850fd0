package api

import (
	"context"
	"net/http"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dingsen2/micronutrient-radar/internal/domain"
	"github.com/dingsen2/micronutrient-radar/internal/store"
)

func receiptRouter(userID uuid.UUID, svc *fakeReceiptService, maxUpload int64) http.Handler {
	h := NewReceiptHandler(svc, maxUpload, nil)
	return newTestRouter(userID, func(r chi.Router) {
		r.Post("/receipts/upload", h.Upload)
		r.Get("/receipts/{id}", h.Get)
	})
}

func TestReceiptUploadHandler(t *testing.T) {
	userID := uuid.New()
	taskID := uuid.New()
	svc := &fakeReceiptService{
		UploadFn: func(_ context.Context, uid uuid.UUID, filename string, data []byte) (*domain.Receipt, uuid.UUID, error) {
			assert.Equal(t, "weekly-shop.pdf", filename)
			assert.Equal(t, []byte("%PDF-1.7"), data)
			r, err := domain.NewReceipt(uuid.New(), uid, "mem://receipts/r.pdf")
			return r, taskID, err
		},
	}

	w := doMultipart(t, receiptRouter(userID, svc, 0), "/receipts/upload", "weekly-shop.pdf", []byte("%PDF-1.7"), nil)

	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	resp := decodeBody[ReceiptUploadResponse](t, w)
	assert.Equal(t, domain.ReceiptStatusNeedsReview, resp.Status)
	assert.Equal(t, taskID, resp.TaskID)
	assert.NotEqual(t, uuid.Nil, resp.ReceiptID)
}

func TestReceiptUploadHandler_Rejected(t *testing.T) {
	tests := []struct {
		name       string
		uploadErr  error
		wantStatus int
	}{
		{"too large", domain.NewValidationError("file", "exceeds maximum size", domain.ErrFileTooLarge), http.StatusRequestEntityTooLarge},
		{"bad extension", domain.ErrUnsupportedReceiptExt, http.StatusUnsupportedMediaType},
		{"empty", domain.NewValidationError("file", "is empty", domain.ErrInvalidFormat), http.StatusBadRequest},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			svc := &fakeReceiptService{
				UploadFn: func(context.Context, uuid.UUID, string, []byte) (*domain.Receipt, uuid.UUID, error) {
					return nil, uuid.Nil, tc.uploadErr
				},
			}

			w := doMultipart(t, receiptRouter(uuid.New(), svc, 0), "/receipts/upload", "r.gif", []byte("GIF89a"), nil)

			assert.Equal(t, tc.wantStatus, w.Code)
		})
	}
}

func TestReceiptGetHandler(t *testing.T) {
	owner := uuid.New()
	receipt, err := domain.NewReceipt(uuid.New(), owner, "mem://receipts/r.png")
	require.NoError(t, err)
	receipt.ApplyParse("MILK 1.99", 0.9, []domain.LineItem{{ID: uuid.New(), ReceiptID: receipt.ID, Description: "Milk", Quantity: 1}})

	svc := &fakeReceiptService{
		GetFn: func(_ context.Context, uid, id uuid.UUID) (*domain.Receipt, error) {
			if uid != owner || id != receipt.ID {
				return nil, store.ErrReceiptNotFound
			}
			return receipt, nil
		},
	}

	w := doJSON(t, receiptRouter(owner, svc, 0), http.MethodGet, "/receipts/"+receipt.ID.String(), nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := decodeBody[domain.Receipt](t, w)
	assert.Equal(t, domain.ReceiptStatusParsed, body.Status)
	require.Len(t, body.LineItems, 1)
	assert.Equal(t, "Milk", body.LineItems[0].Description)

	w = doJSON(t, receiptRouter(uuid.New(), svc, 0), http.MethodGet, "/receipts/"+receipt.ID.String(), nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "Receipt not found", errorText(t, w))
}
