package domain

import (
	"fmt"
	"math"
	"sort"
	"time"
)

// Nutrient identifiers. The unit is part of the name.
const (
	NutrientIron       = "iron_mg"
	NutrientPotassium  = "potassium_mg"
	NutrientMagnesium  = "magnesium_mg"
	NutrientCalcium    = "calcium_mg"
	NutrientVitaminD   = "vitamin_d_mcg"
	NutrientVitaminB12 = "vitamin_b12_mcg"
	NutrientFolate     = "folate_mcg"
	NutrientZinc       = "zinc_mg"
	NutrientSelenium   = "selenium_mcg"
	NutrientFiber      = "fiber_g"
)

// Nutrients is the fixed vocabulary, in presentation order.
var Nutrients = []string{
	NutrientIron,
	NutrientPotassium,
	NutrientMagnesium,
	NutrientCalcium,
	NutrientVitaminD,
	NutrientVitaminB12,
	NutrientFolate,
	NutrientZinc,
	NutrientSelenium,
	NutrientFiber,
}

// DailyRDA holds adult reference daily allowances in each nutrient's own unit.
var DailyRDA = map[string]float64{
	NutrientIron:       18,
	NutrientPotassium:  4700,
	NutrientMagnesium:  420,
	NutrientCalcium:    1300,
	NutrientVitaminD:   20,
	NutrientVitaminB12: 2.4,
	NutrientFolate:     400,
	NutrientZinc:       11,
	NutrientSelenium:   55,
	NutrientFiber:      28,
}

// IsKnownNutrient reports whether name is in the vocabulary.
func IsKnownNutrient(name string) bool {
	_, ok := DailyRDA[name]
	return ok
}

// NutrientMap maps nutrient identifiers to amounts.
type NutrientMap map[string]float64

// Validate rejects unknown keys and negative or non-finite amounts.
func (m NutrientMap) Validate() error {
	for _, name := range m.sortedKeys() {
		v := m[name]
		if !IsKnownNutrient(name) {
			return NewValidationError("nutrients", fmt.Sprintf("contains unknown nutrient %q", name), ErrUnknownNutrient)
		}
		if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
			return NewValidationError("nutrients", fmt.Sprintf("has invalid amount for %s", name), ErrInvalidFormat)
		}
	}
	return nil
}

// Add returns a new map with other's amounts added to m's.
func (m NutrientMap) Add(other NutrientMap) NutrientMap {
	out := make(NutrientMap, len(Nutrients))
	for k, v := range m {
		out[k] = v
	}
	for k, v := range other {
		out[k] += v
	}
	return out
}

// Scale returns a new map with every amount multiplied by factor.
func (m NutrientMap) Scale(factor float64) NutrientMap {
	out := make(NutrientMap, len(m))
	for k, v := range m {
		out[k] = v * factor
	}
	return out
}

func (m NutrientMap) sortedKeys() []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// WeeklyPercentRDA expresses weekly totals as a percentage of seven days of
// the reference allowance, rounded to one decimal. Nutrients missing from
// totals report 0.
func WeeklyPercentRDA(totals NutrientMap) NutrientMap {
	out := make(NutrientMap, len(Nutrients))
	for _, name := range Nutrients {
		rda := DailyRDA[name] * 7
		out[name] = math.Round(totals[name]/rda*100*10) / 10
	}
	return out
}

// ProfileSource records where a NutrientProfile came from.
type ProfileSource string

// Profile sources.
const (
	ProfileSourceModel ProfileSource = "model_estimate"
	ProfileSourceCache ProfileSource = "cache"
)

// NutrientProfile holds the nutrient content of 100 g of a food.
type NutrientProfile struct {
	FoodName         string        `json:"food_name"`
	Nutrients        NutrientMap   `json:"nutrients"`
	Source           ProfileSource `json:"source"`
	LLMPromptVersion string        `json:"llm_prompt_version"`
	EstimatedBy      string        `json:"estimated_by"`
	CreatedAt        time.Time     `json:"created_at"`
	UpdatedAt        time.Time     `json:"updated_at"`
}

// Validate requires a food name and a complete, valid nutrient map.
func (p *NutrientProfile) Validate() error {
	if p.FoodName == "" {
		return NewValidationError("food_name", "cannot be empty", nil)
	}
	if err := p.Nutrients.Validate(); err != nil {
		return err
	}
	for _, name := range Nutrients {
		if _, ok := p.Nutrients[name]; !ok {
			return NewValidationError("nutrients", fmt.Sprintf("is missing %s", name), ErrInvalidFormat)
		}
	}
	return nil
}

// ItemEstimate pairs a food item with its estimated profile. Profile and
// Totals are nil when estimation failed for that item; Err then holds the
// cause.
type ItemEstimate struct {
	Item    FoodItem         `json:"food_item"`
	Profile *NutrientProfile `json:"nutrient_profile"`
	Totals  NutrientMap      `json:"total_nutrients"`
	Err     error            `json:"-"`
}

// SumTotals adds the totals of every successful estimate.
func SumTotals(estimates []ItemEstimate) NutrientMap {
	sum := NutrientMap{}
	for _, e := range estimates {
		if e.Totals != nil {
			sum = sum.Add(e.Totals)
		}
	}
	return sum
}
