package domain

import (
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
)

// FoodImageStatus is the review state of an uploaded photo.
type FoodImageStatus string

// Possible food image status values
const (
	FoodImageStatusProcessed   FoodImageStatus = "processed"
	FoodImageStatusNeedsReview FoodImageStatus = "needs_review"
	FoodImageStatusFailed      FoodImageStatus = "failed"
)

// Common validation errors for FoodImage and FoodItem
var (
	ErrEmptyFoodImageID     = NewValidationError("id", "cannot be empty", nil)
	ErrEmptyFoodImageUserID = NewValidationError("user_id", "cannot be empty", nil)
	ErrEmptyImageURL        = NewValidationError("image_url", "cannot be empty", nil)
	ErrInvalidImageStatus   = NewValidationError("status", "is not a valid food image status", nil)
	ErrInvalidConfidence    = NewValidationError("confidence", "must be between 0 and 1", nil)
	ErrEmptyFoodDescription = NewValidationError("description", "cannot be empty", nil)
	ErrInvalidQuantity      = NewValidationError("quantity", "must be positive", nil)
)

// FoodImage is an uploaded meal photo.
type FoodImage struct {
	ID                    uuid.UUID       `json:"id"`
	UserID                uuid.UUID       `json:"user_id"`
	CapturedAt            time.Time       `json:"captured_at"`
	ImageURL              string          `json:"image_url"`
	Status                FoodImageStatus `json:"status"`
	RecognitionConfidence float64         `json:"recognition_confidence"`
	CreatedAt             time.Time       `json:"created_at"`
	UpdatedAt             time.Time       `json:"updated_at"`
	FoodItems             []FoodItem      `json:"food_items"`
}

// NewFoodImage creates a FoodImage in the initial processed state with zero
// confidence. A zero capturedAt means now.
func NewFoodImage(userID uuid.UUID, imageURL string, capturedAt time.Time) (*FoodImage, error) {
	now := time.Now().UTC()
	if capturedAt.IsZero() {
		capturedAt = now
	}
	img := &FoodImage{
		ID:         uuid.New(),
		UserID:     userID,
		CapturedAt: capturedAt.UTC(),
		ImageURL:   imageURL,
		Status:     FoodImageStatusProcessed,
		CreatedAt:  now,
		UpdatedAt:  now,
		FoodItems:  []FoodItem{},
	}
	if err := img.Validate(); err != nil {
		return nil, err
	}
	return img, nil
}

// Validate checks if the FoodImage has valid data.
func (f *FoodImage) Validate() error {
	if f.ID == uuid.Nil {
		return ErrEmptyFoodImageID
	}
	if f.UserID == uuid.Nil {
		return ErrEmptyFoodImageUserID
	}
	if f.ImageURL == "" {
		return ErrEmptyImageURL
	}
	if !isValidFoodImageStatus(f.Status) {
		return ErrInvalidImageStatus
	}
	if f.RecognitionConfidence < 0 || f.RecognitionConfidence > 1 {
		return ErrInvalidConfidence
	}
	return nil
}

// ApplyRecognition records the outcome of a recognition pass. Confidence is
// the mean item confidence; an empty result marks the image for review.
func (f *FoodImage) ApplyRecognition(items []FoodItem) {
	f.FoodItems = items
	f.UpdatedAt = time.Now().UTC()
	if len(items) == 0 {
		f.Status = FoodImageStatusNeedsReview
		f.RecognitionConfidence = 0
		return
	}
	var sum float64
	for _, item := range items {
		sum += item.Confidence
	}
	f.Status = FoodImageStatusProcessed
	f.RecognitionConfidence = sum / float64(len(items))
}

// MarkFailed flags the image after a pipeline failure.
func (f *FoodImage) MarkFailed() {
	f.Status = FoodImageStatusFailed
	f.UpdatedAt = time.Now().UTC()
}

func isValidFoodImageStatus(status FoodImageStatus) bool {
	switch status {
	case FoodImageStatusProcessed, FoodImageStatusNeedsReview, FoodImageStatusFailed:
		return true
	default:
		return false
	}
}

// FoodItem is a single food recognized in an image, or submitted directly
// for nutrient estimation (FoodImageID is then uuid.Nil).
type FoodItem struct {
	ID          uuid.UUID `json:"id"`
	FoodImageID uuid.UUID `json:"food_image_id"`
	Description string    `json:"description"`
	Quantity    float64   `json:"quantity"`
	Unit        string    `json:"unit"`
	FDCID       *int64    `json:"fdc_id,omitempty"`
	Confidence  float64   `json:"confidence"`
	IsEstimated bool      `json:"is_estimated"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// NewFoodItem creates an estimated FoodItem. An empty unit means piece.
func NewFoodItem(imageID uuid.UUID, description string, quantity float64, unit string, confidence float64) (*FoodItem, error) {
	now := time.Now().UTC()
	if strings.TrimSpace(unit) == "" {
		unit = UnitPiece
	}
	item := &FoodItem{
		ID:          uuid.New(),
		FoodImageID: imageID,
		Description: strings.TrimSpace(description),
		Quantity:    quantity,
		Unit:        strings.ToLower(strings.TrimSpace(unit)),
		Confidence:  confidence,
		IsEstimated: true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := item.Validate(); err != nil {
		return nil, err
	}
	return item, nil
}

// Validate checks if the FoodItem has valid data.
func (i *FoodItem) Validate() error {
	if i.Description == "" {
		return ErrEmptyFoodDescription
	}
	if !isFinite(i.Quantity) || i.Quantity <= 0 {
		return ErrInvalidQuantity
	}
	if !isFinite(i.Confidence) || i.Confidence < 0 || i.Confidence > 1 {
		return ErrInvalidConfidence
	}
	return nil
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
