package domain

import (
	"fmt"
	"strings"
)

// Quantity units accepted by ToGrams.
const (
	UnitGram     = "g"
	UnitKilogram = "kg"
	UnitPound    = "lb"
	UnitOunce    = "oz"
	UnitPiece    = "piece"
)

// gramsPerUnit is the conversion table. A piece is a nominal 100 g serving.
var gramsPerUnit = map[string]float64{
	UnitGram:     1,
	UnitKilogram: 1000,
	UnitPound:    453.592,
	UnitOunce:    28.3495,
	UnitPiece:    100,
}

// ToGrams converts quantity in unit to grams. Unit matching ignores case and
// surrounding whitespace.
func ToGrams(quantity float64, unit string) (float64, error) {
	factor, ok := gramsPerUnit[strings.ToLower(strings.TrimSpace(unit))]
	if !ok {
		return 0, NewValidationError("unit", fmt.Sprintf("%q is not supported", unit), ErrUnsupportedUnit)
	}
	if !isFinite(quantity) {
		return 0, NewValidationError("quantity", "must be a finite number", ErrInvalidFormat)
	}
	if quantity < 0 {
		return 0, NewValidationError("quantity", "cannot be negative", ErrInvalidFormat)
	}
	return quantity * factor, nil
}

// TotalNutrients scales a per-100 g profile to the given quantity.
func TotalNutrients(quantity float64, unit string, profile *NutrientProfile) (NutrientMap, error) {
	if profile == nil {
		return nil, NewValidationError("nutrient_profile", "is required", nil)
	}
	grams, err := ToGrams(quantity, unit)
	if err != nil {
		return nil, err
	}
	return profile.Nutrients.Scale(grams / 100), nil
}
