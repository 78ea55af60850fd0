package api

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/dingsen2/micronutrient-radar/internal/api/shared"
	"github.com/dingsen2/micronutrient-radar/internal/domain"
	"github.com/dingsen2/micronutrient-radar/internal/service"
	"github.com/dingsen2/micronutrient-radar/internal/service/auth"
	"github.com/dingsen2/micronutrient-radar/internal/store"
	"github.com/dingsen2/micronutrient-radar/internal/task"
)

func TestMapErrorToStatusCode(t *testing.T) {
	wrapped := func(err error) error {
		return service.NewServiceError("food_history", "create", "failed", err)
	}

	tests := []struct {
		name string
		err  error
		want int
		msg  string
	}{
		{"expired token", auth.ErrExpiredToken, http.StatusUnauthorized, "Invalid token"},
		{"wrong token type", auth.ErrWrongTokenType, http.StatusUnauthorized, "Invalid refresh token"},
		{"bad credentials", auth.ErrInvalidCredentials, http.StatusUnauthorized, "Incorrect email or password"},
		{"no users", service.ErrNoUsers, http.StatusUnauthorized, "No users registered"},
		{
			"file too large",
			domain.NewValidationError("file", "exceeds maximum size", domain.ErrFileTooLarge),
			http.StatusRequestEntityTooLarge,
			"Invalid file: exceeds maximum size",
		},
		{
			"unsupported media type",
			domain.ErrUnsupportedReceiptExt,
			http.StatusUnsupportedMediaType,
			"Invalid file: must be a .jpg, .jpeg, .png or .pdf file",
		},
		{"validation", domain.ErrInvalidMealType, http.StatusBadRequest,
			"Invalid meal_type: must be one of breakfast, lunch, dinner, snack"},
		{"unsupported unit", fmt.Errorf("food_items[0]: %w", domain.ErrUnsupportedUnit),
			http.StatusBadRequest, "Unsupported unit"},
		{"email taken", store.ErrEmailExists, http.StatusBadRequest, "Email already registered"},
		{"invalid entity", wrapped(store.ErrInvalidEntity), http.StatusBadRequest, "Invalid entity data"},
		{"history not found", wrapped(store.ErrFoodHistoryNotFound), http.StatusNotFound, "Food history not found"},
		{"image not found", wrapped(store.ErrFoodImageNotFound), http.StatusNotFound, "Food image not found"},
		{"receipt not found", store.ErrReceiptNotFound, http.StatusNotFound, "Receipt not found"},
		{"ledger not found", store.ErrLedgerNotFound, http.StatusNotFound, "Ledger not found"},
		{"task not found", store.ErrTaskNotFound, http.StatusNotFound, "Task not found"},
		{"bare not found", store.ErrNotFound, http.StatusNotFound, "Resource not found"},
		{"queue full", wrapped(task.ErrQueueFull), http.StatusServiceUnavailable,
			"Service temporarily unavailable, please retry"},
		{"unknown", errors.New("pq: relation does not exist"), http.StatusInternalServerError,
			"An unexpected error occurred"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, MapErrorToStatusCode(tc.err))
			assert.Equal(t, tc.msg, GetSafeErrorMessage(tc.err))
		})
	}
}

func TestGetSafeErrorMessage_Nil(t *testing.T) {
	assert.Equal(t, "An unexpected error occurred", GetSafeErrorMessage(nil))
}

func TestSanitizeValidationError(t *testing.T) {
	tests := []struct {
		name string
		req  any
		want string
	}{
		{
			name: "missing email",
			req:  &RegisterRequest{Password: "secret123"},
			want: "Invalid email: required field",
		},
		{
			name: "short password",
			req:  &RegisterRequest{Email: "a@example.com", Password: "abc"},
			want: "Invalid password: too short",
		},
		{
			name: "nested item",
			req: &EstimateRequest{FoodItems: []FoodItemRequest{
				{Description: "apple", Quantity: 1},
				{Description: "", Quantity: 1},
			}},
			want: "Invalid food_items[1].description: required field",
		},
		{
			name: "numeric bound",
			req:  &EstimateRequest{FoodItems: []FoodItemRequest{{Description: "rice", Quantity: 1, Confidence: 1.5}}},
			want: "Invalid food_items[0].confidence: too large",
		},
		{
			name: "empty list",
			req:  &EstimateRequest{FoodItems: []FoodItemRequest{}},
			want: "Invalid food_items: too short",
		},
		{
			name: "custom validator",
			req:  &UpdateProfileRequest{},
			want: "Invalid profile: must include demographics or settings",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := shared.ValidateRequest(tc.req)
			assert.Error(t, err)
			assert.Equal(t, tc.want, SanitizeValidationError(err))
		})
	}

	assert.Equal(t, "Validation error", SanitizeValidationError(errors.New("boom")))
}

func TestHandleAPIError_HidesInternalDetail(t *testing.T) {
	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/api/v1/ledgers", nil)

	HandleAPIError(w, r, errors.New("dial tcp 10.0.0.5:5432: connection refused"), "Failed to list ledgers")

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "Failed to list ledgers", errorText(t, w))
	assert.NotContains(t, w.Body.String(), "10.0.0.5")
}

func TestHandleAPIError_KeepsSafeMessageForClientErrors(t *testing.T) {
	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/api/v1/receipts/x", nil)

	HandleAPIError(w, r, store.ErrReceiptNotFound, "Failed to retrieve receipt")

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "Receipt not found", errorText(t, w))
}
