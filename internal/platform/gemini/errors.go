package gemini

import "errors"

// Error definitions for the gemini package.
var (
	// ErrEmptyImage is returned when an image or receipt has no bytes.
	ErrEmptyImage = errors.New("image data cannot be empty")

	// ErrEmptyFoodName is returned when a nutrient estimate is requested for a blank name.
	ErrEmptyFoodName = errors.New("food name cannot be empty")

	// ErrNoText is returned when a candidate carries no text parts.
	ErrNoText = errors.New("response contains no text")
)
