package utils

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"property-ledger-backend/internal/domain"
)

var hundred = decimal.NewFromInt(100)

// Date represents a calendar date
type Date struct {
	Year  int
	Month int
	Day   int
}

// Time returns the date at midnight UTC.
func (d Date) Time() time.Time {
	return time.Date(d.Year, time.Month(d.Month), d.Day, 0, 0, 0, 0, time.UTC)
}

// ParseDate converts a yyyy-mm-dd formatted string into a Date struct
func ParseDate(dateStr string) (Date, error) {
	parts := strings.Split(dateStr, "-")
	if len(parts) != 3 {
		return Date{}, fmt.Errorf("invalid date format, expected yyyy-mm-dd")
	}

	year, err := strconv.Atoi(parts[0])
	if err != nil {
		return Date{}, fmt.Errorf("invalid year: %v", err)
	}

	month, err := strconv.Atoi(parts[1])
	if err != nil {
		return Date{}, fmt.Errorf("invalid month: %v", err)
	}

	day, err := strconv.Atoi(parts[2])
	if err != nil {
		return Date{}, fmt.Errorf("invalid day: %v", err)
	}

	if month < 1 || month > 12 {
		return Date{}, fmt.Errorf("month must be between 1 and 12")
	}

	if day < 1 || day > DaysInMonth(year, month) {
		return Date{}, fmt.Errorf("day must be between 1 and %d", DaysInMonth(year, month))
	}

	return Date{Year: year, Month: month, Day: day}, nil
}

// DaysInMonth returns the number of days in a given month
func DaysInMonth(year, month int) int {
	if month == 2 {
		if (year%4 == 0 && year%100 != 0) || (year%400 == 0) {
			return 29
		}
		return 28
	}

	if month == 4 || month == 6 || month == 9 || month == 11 {
		return 30
	}

	return 31
}

// InstallmentDueDate returns the due date of installment n (1-based) for a
// schedule starting on start. The day is clamped to the end of short months,
// so a schedule starting Jan 31 falls due Feb 28/29, Mar 31, Apr 30.
func InstallmentDueDate(start Date, n int32) (Date, error) {
	if n < 1 {
		return Date{}, fmt.Errorf("installment number must be positive, got %d", n)
	}
	offset := int(n - 1)
	months := start.Month - 1 + offset
	year := start.Year + months/12
	month := months%12 + 1

	day := start.Day
	if last := DaysInMonth(year, month); day > last {
		day = last
	}
	return Date{Year: year, Month: month, Day: day}, nil
}

// RoundCents rounds half away from zero to two fractional digits.
func RoundCents(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

// AmountWithInterest returns amount * (1 + ratePercent/100) rounded to cents.
// A zero rate returns the amount unchanged.
func AmountWithInterest(amount, ratePercent decimal.Decimal) (decimal.Decimal, error) {
	if amount.IsNegative() {
		return decimal.Zero, domain.Errorf(domain.ErrInvalidAmount, "amount cannot be negative, got %s", amount.String())
	}
	if ratePercent.IsNegative() {
		return decimal.Zero, domain.Errorf(domain.ErrInvalidAmount, "interest rate cannot be negative, got %s", ratePercent.String())
	}
	factor := decimal.NewFromInt(1).Add(ratePercent.Div(hundred))
	return RoundCents(amount.Mul(factor)), nil
}

// ParseAmount parses a monetary string and requires it to be positive with
// at most two fractional digits.
func ParseAmount(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return decimal.Zero, domain.Errorf(domain.ErrInvalidAmount, "malformed amount %q", s)
	}
	if !d.IsPositive() {
		return decimal.Zero, domain.Errorf(domain.ErrInvalidAmount, "amount must be greater than zero, got %s", d.String())
	}
	if err := domain.CheckCents("amount", d); err != nil {
		return decimal.Zero, err
	}
	return d, nil
}
