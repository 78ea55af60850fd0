package domain

import (
	"math"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ReceiptStatus is the parse state of an uploaded receipt.
type ReceiptStatus string

// Possible receipt status values
const (
	ReceiptStatusParsed      ReceiptStatus = "parsed"
	ReceiptStatusNeedsReview ReceiptStatus = "needs_review"
	ReceiptStatusFailed      ReceiptStatus = "failed"
)

// OCRProvider records which reader produced a receipt's text.
type OCRProvider string

// OCR providers
const (
	OCRProviderLocal OCRProvider = "local"
	OCRProviderCloud OCRProvider = "cloud"
)

// receiptExtensions maps accepted upload extensions to content types.
var receiptExtensions = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".pdf":  "application/pdf",
}

// Common validation errors for Receipt and LineItem
var (
	ErrEmptyReceiptUserID    = NewValidationError("user_id", "cannot be empty", nil)
	ErrInvalidReceiptStatus  = NewValidationError("status", "is not a valid receipt status", nil)
	ErrEmptyLineDescription  = NewValidationError("description", "cannot be empty", nil)
	ErrUnsupportedReceiptExt = NewValidationError("file", "must be a .jpg, .jpeg, .png or .pdf file", ErrUnsupportedMediaType)
)

// ReceiptContentType returns the content type for a receipt file name, or
// ErrUnsupportedReceiptExt.
func ReceiptContentType(filename string) (ext string, contentType string, err error) {
	ext = strings.ToLower(filepath.Ext(filename))
	contentType, ok := receiptExtensions[ext]
	if !ok {
		return "", "", ErrUnsupportedReceiptExt
	}
	return ext, contentType, nil
}

// Receipt is an uploaded shopping receipt.
type Receipt struct {
	ID            uuid.UUID     `json:"id"`
	UserID        uuid.UUID     `json:"user_id"`
	Datetime      time.Time     `json:"datetime"`
	RawText       string        `json:"raw_text"`
	Status        ReceiptStatus `json:"status"`
	OCRConfidence float64       `json:"ocr_confidence"`
	OCRProvider   OCRProvider   `json:"ocr_provider"`
	ImageURL      string        `json:"image_url"`
	CreatedAt     time.Time     `json:"created_at"`
	UpdatedAt     time.Time     `json:"updated_at"`
	LineItems     []LineItem    `json:"line_items"`
}

// NewReceipt creates a receipt awaiting review. The id is supplied by the
// caller because the stored file is named after it.
func NewReceipt(id, userID uuid.UUID, imageURL string) (*Receipt, error) {
	now := time.Now().UTC()
	r := &Receipt{
		ID:          id,
		UserID:      userID,
		Datetime:    now,
		Status:      ReceiptStatusNeedsReview,
		OCRProvider: OCRProviderCloud,
		ImageURL:    imageURL,
		CreatedAt:   now,
		UpdatedAt:   now,
		LineItems:   []LineItem{},
	}
	if err := r.Validate(); err != nil {
		return nil, err
	}
	return r, nil
}

// Validate checks if the Receipt has valid data.
func (r *Receipt) Validate() error {
	if r.ID == uuid.Nil {
		return NewValidationError("id", "cannot be empty", nil)
	}
	if r.UserID == uuid.Nil {
		return ErrEmptyReceiptUserID
	}
	switch r.Status {
	case ReceiptStatusParsed, ReceiptStatusNeedsReview, ReceiptStatusFailed:
	default:
		return ErrInvalidReceiptStatus
	}
	if r.OCRConfidence < 0 || r.OCRConfidence > 1 {
		return ErrInvalidConfidence
	}
	return nil
}

// ApplyParse records the result of reading the receipt.
func (r *Receipt) ApplyParse(rawText string, confidence float64, items []LineItem) {
	r.RawText = rawText
	r.OCRConfidence = Clamp01(confidence)
	r.LineItems = items
	r.UpdatedAt = time.Now().UTC()
	if len(items) == 0 {
		r.Status = ReceiptStatusNeedsReview
		return
	}
	r.Status = ReceiptStatusParsed
}

// MarkFailed flags the receipt after a pipeline failure.
func (r *Receipt) MarkFailed() {
	r.Status = ReceiptStatusFailed
	r.UpdatedAt = time.Now().UTC()
}

// LineItem is one purchased product read from a receipt.
type LineItem struct {
	ID          uuid.UUID `json:"id"`
	ReceiptID   uuid.UUID `json:"receipt_id"`
	Description string    `json:"description"`
	Quantity    float64   `json:"quantity"`
	FDCID       *int64    `json:"fdc_id,omitempty"`
	Confidence  float64   `json:"confidence"`
	IsEstimated bool      `json:"is_estimated"`
}

// NewLineItem creates an estimated line item. Non-positive quantities become 1.
func NewLineItem(receiptID uuid.UUID, description string, quantity, confidence float64) (*LineItem, error) {
	description = strings.TrimSpace(description)
	if description == "" {
		return nil, ErrEmptyLineDescription
	}
	if quantity <= 0 {
		quantity = 1
	}
	return &LineItem{
		ID:          uuid.New(),
		ReceiptID:   receiptID,
		Description: description,
		Quantity:    quantity,
		Confidence:  Clamp01(confidence),
		IsEstimated: true,
	}, nil
}

// Clamp01 limits v to the closed interval [0, 1]. NaN becomes 0.
func Clamp01(v float64) float64 {
	switch {
	case v < 0 || math.IsNaN(v):
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
