package api

import (
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/dingsen2/micronutrient-radar/internal/api/shared"
	"github.com/dingsen2/micronutrient-radar/internal/domain"
	"github.com/dingsen2/micronutrient-radar/internal/service"
	"github.com/dingsen2/micronutrient-radar/internal/service/auth"
	"github.com/dingsen2/micronutrient-radar/internal/store"
	"github.com/dingsen2/micronutrient-radar/internal/task"
)

const genericErrorMessage = "An unexpected error occurred"

// MapErrorToStatusCode maps internal errors to appropriate HTTP status codes
// based on the error type. This prevents leaking internal error types or
// messages to clients.
func MapErrorToStatusCode(err error) int {
	switch {
	// Authentication errors
	case errors.Is(err, auth.ErrInvalidToken),
		errors.Is(err, auth.ErrExpiredToken),
		errors.Is(err, auth.ErrTokenNotYetValid),
		errors.Is(err, auth.ErrMissingToken),
		errors.Is(err, auth.ErrInvalidRefreshToken),
		errors.Is(err, auth.ErrExpiredRefreshToken),
		errors.Is(err, auth.ErrWrongTokenType),
		errors.Is(err, auth.ErrInvalidCredentials),
		errors.Is(err, service.ErrNoUsers),
		errors.Is(err, domain.ErrUnauthorized):
		return http.StatusUnauthorized

	// Upload limits, checked before the generic validation case since both
	// are validation errors
	case errors.Is(err, domain.ErrFileTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, domain.ErrUnsupportedMediaType):
		return http.StatusUnsupportedMediaType

	// Not found errors
	case store.IsNotFoundError(err):
		return http.StatusNotFound

	// Bad request errors
	case errors.Is(err, domain.ErrValidation),
		errors.Is(err, domain.ErrInvalidID),
		errors.Is(err, domain.ErrInvalidFormat),
		errors.Is(err, domain.ErrUnsupportedUnit),
		errors.Is(err, domain.ErrUnknownNutrient),
		errors.Is(err, store.ErrEmailExists),
		errors.Is(err, store.ErrInvalidEntity),
		errors.Is(err, shared.ErrEmptyBody):
		return http.StatusBadRequest

	// Backpressure
	case errors.Is(err, task.ErrQueueFull),
		errors.Is(err, task.ErrQueueClosed):
		return http.StatusServiceUnavailable

	// Default: internal server error
	default:
		return http.StatusInternalServerError
	}
}

// GetSafeErrorMessage returns a sanitized, user-friendly error message
// based on the error type. This prevents leaking sensitive internal details.
func GetSafeErrorMessage(err error) string {
	if err == nil {
		return genericErrorMessage
	}

	switch {
	// Authentication errors
	case errors.Is(err, auth.ErrInvalidToken),
		errors.Is(err, auth.ErrExpiredToken),
		errors.Is(err, auth.ErrTokenNotYetValid),
		errors.Is(err, auth.ErrMissingToken):
		return "Invalid token"

	case errors.Is(err, auth.ErrInvalidRefreshToken),
		errors.Is(err, auth.ErrExpiredRefreshToken),
		errors.Is(err, auth.ErrWrongTokenType):
		return "Invalid refresh token"

	case errors.Is(err, auth.ErrInvalidCredentials):
		return "Incorrect email or password"

	case errors.Is(err, service.ErrNoUsers):
		return "No users registered"

	case errors.Is(err, domain.ErrUnauthorized):
		return "Could not validate credentials"

	// Not found errors
	case errors.Is(err, store.ErrUserNotFound):
		return "User not found"
	case errors.Is(err, store.ErrFoodImageNotFound):
		return "Food image not found"
	case errors.Is(err, store.ErrFoodHistoryNotFound):
		return "Food history not found"
	case errors.Is(err, store.ErrLedgerNotFound):
		return "Ledger not found"
	case errors.Is(err, store.ErrReceiptNotFound):
		return "Receipt not found"
	case errors.Is(err, store.ErrTaskNotFound):
		return "Task not found"
	case store.IsNotFoundError(err):
		return "Resource not found"

	// Conflict errors
	case errors.Is(err, store.ErrEmailExists):
		return "Email already registered"

	// Validation errors carry their own readable message
	case errors.Is(err, domain.ErrValidation):
		return validationMessage(err)

	case errors.Is(err, domain.ErrInvalidID):
		return "Invalid ID"
	case errors.Is(err, domain.ErrUnsupportedUnit):
		return "Unsupported unit"
	case errors.Is(err, domain.ErrUnknownNutrient):
		return "Unknown nutrient"
	case errors.Is(err, domain.ErrInvalidFormat):
		return "Invalid format"
	case errors.Is(err, store.ErrInvalidEntity):
		return "Invalid entity data"
	case errors.Is(err, shared.ErrEmptyBody):
		return "Request body is empty"

	case errors.Is(err, task.ErrQueueFull),
		errors.Is(err, task.ErrQueueClosed):
		return "Service temporarily unavailable, please retry"

	default:
		return genericErrorMessage
	}
}

// validationMessage renders a domain validation error as "<field> <message>".
func validationMessage(err error) string {
	var verr *domain.ValidationError
	if errors.As(err, &verr) && verr.Field != "" {
		return fmt.Sprintf("Invalid %s: %s", verr.Field, verr.Message)
	}
	return "Validation error"
}

// HandleAPIError writes the status and safe message for err, logging the
// detail. defaultMsg replaces the generic message of a 500 when given.
func HandleAPIError(w http.ResponseWriter, r *http.Request, err error, defaultMsg string) {
	status := MapErrorToStatusCode(err)
	msg := GetSafeErrorMessage(err)
	if status == http.StatusInternalServerError && defaultMsg != "" {
		msg = defaultMsg
	}
	var opts []shared.ResponseOption
	if status == http.StatusUnauthorized {
		opts = append(opts, shared.WithElevatedLogLevel())
	}
	shared.RespondWithErrorAndLog(w, r, status, msg, err, opts...)
}

// handleDecodeError responds to a body that could not be decoded.
func handleDecodeError(w http.ResponseWriter, r *http.Request, err error) {
	msg := "Invalid request format"
	if errors.Is(err, shared.ErrEmptyBody) {
		msg = "Request body is empty"
	}
	shared.RespondWithErrorAndLog(w, r, http.StatusBadRequest, msg, err)
}

// handleValidationError responds to a request that failed struct validation.
func handleValidationError(w http.ResponseWriter, r *http.Request, err error) {
	shared.RespondWithErrorAndLog(w, r, http.StatusBadRequest, SanitizeValidationError(err), err)
}

// SanitizeValidationError removes sensitive details from validation errors
// and returns a user-friendly message naming the first failing field.
func SanitizeValidationError(err error) string {
	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
		fe := fieldErrs[0]
		tag := fe.Tag()
		if isNumericKind(fe.Kind()) {
			tag = numericTags[tag]
		}
		return fmt.Sprintf("Invalid %s: %s", jsonFieldName(fe), getValidationTagMessage(tag))
	}
	if errors.Is(err, domain.ErrValidation) {
		return validationMessage(err)
	}
	return "Validation error"
}

// jsonFieldName strips the struct name from a validator namespace such as
// "EstimateRequest.food_items[0].description". Field names are already the
// JSON names, see shared.Validate.
func jsonFieldName(fe validator.FieldError) string {
	ns := fe.Namespace()
	if i := strings.IndexByte(ns, '.'); i >= 0 {
		return ns[i+1:]
	}
	return fe.Field()
}

// numericTags renames length tags for number fields, where min and max bound
// the value rather than the length.
var numericTags = map[string]string{
	"required": "required",
	"min":      "gte",
	"max":      "lte",
	"gt":       "gt",
	"gte":      "gte",
	"lt":       "lt",
	"lte":      "lte",
	"oneof":    "oneof",
}

func isNumericKind(k reflect.Kind) bool {
	switch k {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return true
	}
	return false
}

// getValidationTagMessage maps validation tags to user-friendly error messages
func getValidationTagMessage(tag string) string {
	switch tag {
	case "required":
		return "required field"
	case "email":
		return "invalid email format"
	case "min":
		return "too short"
	case "max":
		return "too long"
	case "gt", "gte":
		return "too small"
	case "lt", "lte":
		return "too large"
	case "oneof":
		return "invalid value"
	case "dive":
		return "invalid item"
	default:
		return "validation failed"
	}
}
