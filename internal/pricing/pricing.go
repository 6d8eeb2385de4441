// Package pricing computes reservation and late-return prices.
package pricing

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/library-reservations/backend/internal/storage/models"
)

var (
	// DailyRate is charged for each reserved day, both endpoints included.
	DailyRate = decimal.RequireFromString("2.00")
	// LateDailyRate is charged for each day a book is returned after its end date.
	LateDailyRate = decimal.RequireFromString("4.00")
)

// ErrUndetermined is returned when a price cannot be computed from its inputs.
var ErrUndetermined = errors.New("price undetermined")

// InitialPrice returns the price of reserving [start, end]: inclusive days times DailyRate.
func InitialPrice(start, end models.Date) (decimal.Decimal, error) {
	if start.IsZero() || end.IsZero() {
		return decimal.Zero, fmt.Errorf("%w: start and end dates are required", ErrUndetermined)
	}
	if end.Before(start) {
		return decimal.Zero, fmt.Errorf("%w: end date %s precedes start date %s", ErrUndetermined, end, start)
	}

	days := int64(end.DaysSince(start) + 1)
	return DailyRate.Mul(decimal.NewFromInt(days)).Round(2), nil
}

// PenaltyPrice returns the late fee for a book due on end and returned on returned.
// Returning on or before end is free.
func PenaltyPrice(end models.Date, initial *decimal.Decimal, returned models.Date) (decimal.Decimal, error) {
	if end.IsZero() || returned.IsZero() || initial == nil {
		return decimal.Zero, fmt.Errorf("%w: end date, initial price and returned date are required", ErrUndetermined)
	}
	if !returned.After(end) {
		return decimal.Zero.Round(2), nil
	}

	daysLate := int64(returned.DaysSince(end))
	return LateDailyRate.Mul(decimal.NewFromInt(daysLate)).Round(2), nil
}

// FinalPrice returns initial plus penalty.
func FinalPrice(initial, penalty decimal.Decimal) decimal.Decimal {
	return initial.Add(penalty).Round(2)
}
