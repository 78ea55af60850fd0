package domain

import (
	"time"

	"github.com/google/uuid"
)

// DataSource tags what most recently contributed to a ledger.
type DataSource string

// Ledger data sources
const (
	DataSourceImage     DataSource = "image"
	DataSourceManual    DataSource = "manual"
	DataSourceEstimated DataSource = "estimated"
	DataSourceReceipt   DataSource = "receipt"
)

// Common validation errors for NutrientLedger
var (
	ErrEmptyLedgerUserID = NewValidationError("user_id", "cannot be empty", nil)
	ErrInvalidWeekStart  = NewValidationError("week_start", "must be a Monday at 00:00 UTC", nil)
	ErrInvalidDataSource = NewValidationError("data_source", "is not a valid ledger data source", nil)
)

// NutrientLedger aggregates one user's nutrient intake for one week.
type NutrientLedger struct {
	ID          uuid.UUID   `json:"id"`
	UserID      uuid.UUID   `json:"user_id"`
	WeekStart   time.Time   `json:"week_start"`
	Nutrients   NutrientMap `json:"nutrient"`
	PercentRDA  NutrientMap `json:"percent_rda"`
	DataSource  DataSource  `json:"data_source"`
	LastUpdated time.Time   `json:"last_updated"`
}

// WeekStart returns Monday 00:00 UTC of the week containing t.
func WeekStart(t time.Time) time.Time {
	t = t.UTC()
	day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	offset := (int(day.Weekday()) + 6) % 7
	return day.AddDate(0, 0, -offset)
}

// NewNutrientLedger creates an empty ledger for the week containing at.
func NewNutrientLedger(userID uuid.UUID, at time.Time, source DataSource) (*NutrientLedger, error) {
	l := &NutrientLedger{
		ID:          uuid.New(),
		UserID:      userID,
		WeekStart:   WeekStart(at),
		Nutrients:   NutrientMap{},
		PercentRDA:  WeeklyPercentRDA(NutrientMap{}),
		DataSource:  source,
		LastUpdated: time.Now().UTC(),
	}
	if err := l.Validate(); err != nil {
		return nil, err
	}
	return l, nil
}

// Accumulate adds totals into the ledger and recomputes the RDA percentages.
func (l *NutrientLedger) Accumulate(totals NutrientMap, source DataSource) error {
	if err := totals.Validate(); err != nil {
		return err
	}
	if !isValidDataSource(source) {
		return ErrInvalidDataSource
	}
	l.Nutrients = l.Nutrients.Add(totals)
	l.PercentRDA = WeeklyPercentRDA(l.Nutrients)
	l.DataSource = source
	l.LastUpdated = time.Now().UTC()
	return nil
}

// Validate checks if the NutrientLedger has valid data.
func (l *NutrientLedger) Validate() error {
	if l.UserID == uuid.Nil {
		return ErrEmptyLedgerUserID
	}
	if !l.WeekStart.Equal(WeekStart(l.WeekStart)) {
		return ErrInvalidWeekStart
	}
	if !isValidDataSource(l.DataSource) {
		return ErrInvalidDataSource
	}
	return l.Nutrients.Validate()
}

func isValidDataSource(source DataSource) bool {
	switch source {
	case DataSourceImage, DataSourceManual, DataSourceEstimated, DataSourceReceipt:
		return true
	default:
		return false
	}
}
