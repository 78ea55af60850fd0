package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/dingsen2/micronutrient-radar/internal/domain"
	"github.com/dingsen2/micronutrient-radar/internal/task"
)

// Common request/response structures

// RegisterRequest defines the payload for the user registration endpoint.
type RegisterRequest struct {
	Email    string `json:"email"    validate:"required,email"`
	Password string `json:"password" validate:"required,min=6,max=72"`
}

// LoginRequest defines the payload for the user login endpoint.
type LoginRequest struct {
	Email    string `json:"email"    validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// TokenResponse is returned by login and refresh.
type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	// ExpiresAt is the RFC 3339 expiry of the access token.
	ExpiresAt string `json:"expires_at"`
}

// RefreshTokenRequest defines the payload for the token refresh endpoint.
type RefreshTokenRequest struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
}

// UpdateProfileRequest replaces the given profile sections. Omitted sections
// are left unchanged.
type UpdateProfileRequest struct {
	Demographics map[string]any `json:"demographics"`
	Settings     map[string]any `json:"settings"`
}

// Validate requires at least one section.
func (r UpdateProfileRequest) Validate() error {
	if r.Demographics == nil && r.Settings == nil {
		return domain.NewValidationError("profile", "must include demographics or settings", nil)
	}
	return nil
}

// FoodImageUploadResponse is the stored image plus the id of its
// processing task.
type FoodImageUploadResponse struct {
	*domain.FoodImage
	TaskID uuid.UUID `json:"task_id"`
}

// FoodItemRequest is one food submitted for nutrient estimation.
type FoodItemRequest struct {
	Description string  `json:"description"  validate:"required"`
	Quantity    float64 `json:"quantity"     validate:"gt=0"`
	Unit        string  `json:"unit"`
	Confidence  float64 `json:"confidence"   validate:"gte=0,lte=1"`
	IsEstimated *bool   `json:"is_estimated"`
	FDCID       *int64  `json:"fdc_id"`
}

// EstimateRequest defines the payload of the nutrient estimate endpoint.
type EstimateRequest struct {
	FoodItems []FoodItemRequest `json:"food_items" validate:"required,min=1,dive"`
}

// EstimateResponse acknowledges an enqueued estimate.
type EstimateResponse struct {
	TaskID  uuid.UUID       `json:"task_id"`
	Status  task.TaskStatus `json:"status"`
	Message string          `json:"message"`
}

// FoodHistoryRequest defines the payload for logging a meal.
type FoodHistoryRequest struct {
	MealDatetime   time.Time          `json:"meal_datetime"   validate:"required"`
	MealType       domain.MealType    `json:"meal_type"       validate:"required,oneof=breakfast lunch dinner snack"`
	FoodImageID    *uuid.UUID         `json:"food_image_id"`
	TotalNutrients domain.NutrientMap `json:"total_nutrients"`
}

// ReceiptUploadResponse acknowledges an uploaded receipt.
type ReceiptUploadResponse struct {
	ReceiptID uuid.UUID            `json:"receipt_id"`
	Status    domain.ReceiptStatus `json:"status"`
	TaskID    uuid.UUID            `json:"task_id"`
}

// HealthResponse is returned by the health endpoint.
type HealthResponse struct {
	Status string `json:"status"`
}
