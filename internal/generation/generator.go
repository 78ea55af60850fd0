package generation

import (
	"context"

	"github.com/dingsen2/micronutrient-radar/internal/domain"
)

// RecognizedItem is one food the vision model found in a photo, after
// lenient parsing.
type RecognizedItem struct {
	Description string  `json:"description"`
	Quantity    float64 `json:"quantity"`
	Unit        string  `json:"unit"`
	Confidence  float64 `json:"confidence"`
}

// ReceiptLine is one product read from a receipt.
type ReceiptLine struct {
	Description string  `json:"description"`
	Quantity    float64 `json:"quantity"`
	Confidence  float64 `json:"confidence"`
}

// ReceiptReading is the model's transcription of a receipt.
type ReceiptReading struct {
	RawText    string        `json:"raw_text"`
	Confidence float64       `json:"confidence"`
	Items      []ReceiptLine `json:"items"`
}

// FoodRecognizer identifies the food items in an image.
type FoodRecognizer interface {
	RecognizeFoodItems(ctx context.Context, image []byte, mimeType string) ([]RecognizedItem, error)
}

// NutrientEstimator estimates the nutrient content of 100 g of a food.
// The returned profile has source model_estimate and carries the model name
// and prompt version.
type NutrientEstimator interface {
	EstimateNutrientProfile(ctx context.Context, foodName string) (*domain.NutrientProfile, error)
}

// ReceiptReader transcribes a receipt image or PDF.
type ReceiptReader interface {
	ReadReceipt(ctx context.Context, data []byte, mimeType string) (*ReceiptReading, error)
}
