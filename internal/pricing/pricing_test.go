package pricing

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/library-reservations/backend/internal/storage/models"
)

func TestInitialPrice(t *testing.T) {
	tests := []struct {
		name  string
		start string
		end   string
		want  string
	}{
		{"single day", "2024-03-01", "2024-03-01", "2.00"},
		{"six inclusive days", "2024-03-05", "2024-03-10", "12.00"},
		{"across month boundary", "2024-02-28", "2024-03-01", "6.00"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := InitialPrice(models.MustParseDate(tt.start), models.MustParseDate(tt.end))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.StringFixed(2))
		})
	}
}

func TestInitialPriceIsDeterministic(t *testing.T) {
	start, end := models.MustParseDate("2024-06-01"), models.MustParseDate("2024-06-15")
	first, err := InitialPrice(start, end)
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		again, err := InitialPrice(start, end)
		require.NoError(t, err)
		assert.True(t, first.Equal(again))
	}
}

func TestInitialPriceUndetermined(t *testing.T) {
	_, err := InitialPrice(models.Date{}, models.MustParseDate("2024-03-01"))
	assert.ErrorIs(t, err, ErrUndetermined)

	_, err = InitialPrice(models.MustParseDate("2024-03-02"), models.MustParseDate("2024-03-01"))
	assert.ErrorIs(t, err, ErrUndetermined)
}

func TestPenaltyPrice(t *testing.T) {
	initial := decimal.RequireFromString("12.00")
	end := models.MustParseDate("2024-03-01")

	tests := []struct {
		name     string
		returned string
		want     string
	}{
		{"early", "2024-02-27", "0.00"},
		{"on time", "2024-03-01", "0.00"},
		{"one day late", "2024-03-02", "4.00"},
		{"two days late", "2024-03-03", "8.00"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := PenaltyPrice(end, &initial, models.MustParseDate(tt.returned))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.StringFixed(2))
		})
	}

	penalty, err := PenaltyPrice(end, &initial, models.MustParseDate("2024-03-03"))
	require.NoError(t, err)
	assert.Equal(t, "20.00", FinalPrice(initial, penalty).StringFixed(2))
}

func TestPenaltyPriceUndetermined(t *testing.T) {
	initial := decimal.RequireFromString("12.00")
	end := models.MustParseDate("2024-03-01")

	_, err := PenaltyPrice(end, nil, models.MustParseDate("2024-03-03"))
	assert.ErrorIs(t, err, ErrUndetermined)

	_, err = PenaltyPrice(end, &initial, models.Date{})
	assert.ErrorIs(t, err, ErrUndetermined)

	_, err = PenaltyPrice(models.Date{}, &initial, models.MustParseDate("2024-03-03"))
	assert.ErrorIs(t, err, ErrUndetermined)
}
