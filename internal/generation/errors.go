package generation

import "errors"

// Common errors returned by the generation package
var (
	// ErrGenerationFailed is returned when a model call fails for any general reason
	ErrGenerationFailed = errors.New("failed to generate model output")

	// ErrInvalidResponse is returned when the LLM response cannot be parsed or is malformed
	ErrInvalidResponse = errors.New("invalid response from language model")

	// ErrContentBlocked is returned when the LLM blocks the content due to safety filters
	ErrContentBlocked = errors.New("content blocked by language model safety filters")

	// ErrTransientFailure is returned for temporary errors that might resolve on retry
	ErrTransientFailure = errors.New("transient error during generation")

	// ErrInvalidConfig is returned when the generator configuration is invalid
	ErrInvalidConfig = errors.New("invalid generator configuration")

	// ErrEmptyInput is returned when there is nothing to send to the model
	ErrEmptyInput = errors.New("empty input")
)

// IsRetryable reports whether a model call that failed with err may succeed
// if repeated.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	switch {
	case errors.Is(err, ErrContentBlocked),
		errors.Is(err, ErrInvalidConfig),
		errors.Is(err, ErrEmptyInput):
		return false
	default:
		return true
	}
}
