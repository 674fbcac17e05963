package utils

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"property-ledger-backend/internal/domain"
)

func TestParseDate(t *testing.T) {
	t.Run("Valid date", func(t *testing.T) {
		date, err := ParseDate("2024-01-15")
		assert.NoError(t, err)
		assert.Equal(t, 2024, date.Year)
		assert.Equal(t, 1, date.Month)
		assert.Equal(t, 15, date.Day)
	})

	t.Run("Invalid format", func(t *testing.T) {
		_, err := ParseDate("2024/01/15")
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "invalid date format")
	})

	t.Run("Invalid month", func(t *testing.T) {
		_, err := ParseDate("2024-13-15")
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "month must be between 1 and 12")
	})

	t.Run("Day past month end", func(t *testing.T) {
		_, err := ParseDate("2023-02-29")
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "day must be between 1 and 28")
	})
}

func TestDaysInMonth(t *testing.T) {
	tests := []struct {
		year     int
		month    int
		expected int
	}{
		{2024, 1, 31},
		{2024, 2, 29},
		{2023, 2, 28},
		{2024, 4, 30},
		{2024, 12, 31},
		{2000, 2, 29},
		{1900, 2, 28},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, DaysInMonth(tt.year, tt.month), "%d-%02d", tt.year, tt.month)
	}
}

func TestInstallmentDueDate(t *testing.T) {
	start := Date{Year: 2024, Month: 1, Day: 31}

	tests := []struct {
		n        int32
		expected Date
	}{
		{1, Date{2024, 1, 31}},
		{2, Date{2024, 2, 29}},
		{3, Date{2024, 3, 31}},
		{4, Date{2024, 4, 30}},
		{12, Date{2024, 12, 31}},
		{13, Date{2025, 1, 31}},
		{14, Date{2025, 2, 28}},
	}
	for _, tt := range tests {
		got, err := InstallmentDueDate(start, tt.n)
		require.NoError(t, err)
		assert.Equal(t, tt.expected, got, "installment %d", tt.n)
	}

	_, err := InstallmentDueDate(start, 0)
	assert.Error(t, err)
}

func TestAmountWithInterest(t *testing.T) {
	t.Run("Applies percent rate", func(t *testing.T) {
		got, err := AmountWithInterest(decimal.RequireFromString("1000"), decimal.RequireFromString("5"))
		require.NoError(t, err)
		assert.True(t, got.Equal(decimal.RequireFromString("1050")), got.String())
	})

	t.Run("Rounds to cents", func(t *testing.T) {
		got, err := AmountWithInterest(decimal.RequireFromString("333.33"), decimal.RequireFromString("7.5"))
		require.NoError(t, err)
		// 333.33 * 1.075 = 358.32975
		assert.Equal(t, "358.33", got.StringFixed(2))
	})

	t.Run("Zero rate", func(t *testing.T) {
		got, err := AmountWithInterest(decimal.RequireFromString("12.34"), decimal.Zero)
		require.NoError(t, err)
		assert.Equal(t, "12.34", got.StringFixed(2))
	})

	t.Run("Negative rate rejected", func(t *testing.T) {
		_, err := AmountWithInterest(decimal.RequireFromString("10"), decimal.RequireFromString("-1"))
		assert.True(t, errors.Is(err, domain.ErrInvalidAmount))
	})
}

func TestParseAmount(t *testing.T) {
	d, err := ParseAmount(" 5000.00 ")
	require.NoError(t, err)
	assert.True(t, d.Equal(decimal.NewFromInt(5000)))

	for _, bad := range []string{"", "abc", "0", "-10", "1.005"} {
		_, err := ParseAmount(bad)
		assert.True(t, errors.Is(err, domain.ErrInvalidAmount), "input %q", bad)
	}
}
