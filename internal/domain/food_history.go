package domain

import (
	"time"

	"github.com/google/uuid"
)

// MealType classifies a history entry.
type MealType string

// Meal types
const (
	MealTypeBreakfast MealType = "breakfast"
	MealTypeLunch     MealType = "lunch"
	MealTypeDinner    MealType = "dinner"
	MealTypeSnack     MealType = "snack"
)

// Common validation errors for UserFoodHistory
var (
	ErrEmptyHistoryUserID = NewValidationError("user_id", "cannot be empty", nil)
	ErrEmptyMealDatetime  = NewValidationError("meal_datetime", "is required", nil)
	ErrInvalidMealType    = NewValidationError("meal_type", "must be one of breakfast, lunch, dinner, snack", nil)
)

// UserFoodHistory is one logged meal with its nutrient totals.
type UserFoodHistory struct {
	ID             uuid.UUID   `json:"id"`
	UserID         uuid.UUID   `json:"user_id"`
	MealDatetime   time.Time   `json:"meal_datetime"`
	MealType       MealType    `json:"meal_type"`
	FoodImageID    *uuid.UUID  `json:"food_image_id"`
	TotalNutrients NutrientMap `json:"total_nutrients"`
	CreatedAt      time.Time   `json:"created_at"`
	UpdatedAt      time.Time   `json:"updated_at"`
}

// NewUserFoodHistory creates a validated history entry.
func NewUserFoodHistory(
	userID uuid.UUID,
	mealDatetime time.Time,
	mealType MealType,
	foodImageID *uuid.UUID,
	totals NutrientMap,
) (*UserFoodHistory, error) {
	now := time.Now().UTC()
	if totals == nil {
		totals = NutrientMap{}
	}
	h := &UserFoodHistory{
		ID:             uuid.New(),
		UserID:         userID,
		MealDatetime:   mealDatetime.UTC(),
		MealType:       mealType,
		FoodImageID:    foodImageID,
		TotalNutrients: totals,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := h.Validate(); err != nil {
		return nil, err
	}
	return h, nil
}

// Validate checks if the UserFoodHistory has valid data.
func (h *UserFoodHistory) Validate() error {
	if h.UserID == uuid.Nil {
		return ErrEmptyHistoryUserID
	}
	if h.MealDatetime.IsZero() {
		return ErrEmptyMealDatetime
	}
	switch h.MealType {
	case MealTypeBreakfast, MealTypeLunch, MealTypeDinner, MealTypeSnack:
	default:
		return ErrInvalidMealType
	}
	return h.TotalNutrients.Validate()
}
