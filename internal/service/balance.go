package service

import (
	"context"

	"github.com/shopspring/decimal"

	"property-ledger-backend/internal/domain"
	"property-ledger-backend/internal/repository"
)

var (
	hundred = decimal.NewFromInt(100)

	// Lower bounds of each progress bucket, in percent. A bucket covers
	// [bound, next bound).
	bucketInProgress     = decimal.NewFromInt(25)
	bucketMoreThanHalf   = decimal.NewFromInt(50)
	bucketAlmostComplete = decimal.NewFromInt(75)
)

// displayPlaces is the precision of PaymentProgress.Percent.
const displayPlaces = 2

type balanceCalculator struct {
	entries    repository.LedgerEntryRepository
	properties repository.PropertyRepository
	agreements repository.RentalAgreementRepository
}

func NewBalanceCalculator(
	entries repository.LedgerEntryRepository,
	properties repository.PropertyRepository,
	agreements repository.RentalAgreementRepository,
) BalanceCalculator {
	return &balanceCalculator{
		entries:    entries,
		properties: properties,
		agreements: agreements,
	}
}

// SumCompleted adds the amounts of COMPLETED entries and ignores the rest.
func SumCompleted(entries []domain.LedgerEntry) decimal.Decimal {
	total := decimal.Zero
	for _, e := range entries {
		if e.Status == domain.EntryStatusCompleted {
			total = total.Add(e.Amount)
		}
	}
	return total
}

// Remaining is max(0, ref - paid).
func Remaining(paid, ref decimal.Decimal) (decimal.Decimal, error) {
	if err := checkNonNegative(paid, ref); err != nil {
		return decimal.Zero, err
	}
	rem := ref.Sub(paid)
	if rem.IsNegative() {
		return decimal.Zero, nil
	}
	return rem, nil
}

// Percent is min(100, paid/ref*100), or 0 when ref is 0. The value is not
// rounded, so it can be bucketed by Label without reaching 100 early.
func Percent(paid, ref decimal.Decimal) (decimal.Decimal, error) {
	if err := checkNonNegative(paid, ref); err != nil {
		return decimal.Zero, err
	}
	if !ref.IsPositive() {
		return decimal.Zero, nil
	}
	// Over-payment caps at 100.
	if paid.GreaterThanOrEqual(ref) {
		return hundred, nil
	}
	return paid.Mul(hundred).Div(ref), nil
}

// Label buckets a percentage: 0 Not Started, (0,25) Just Started,
// [25,50) In Progress, [50,75) More than Half, [75,100) Almost Complete,
// 100 Completed. isFullyPaid overrides everything.
func Label(percent decimal.Decimal, isFullyPaid bool) (domain.ProgressLabel, error) {
	if percent.IsNegative() || percent.GreaterThan(hundred) {
		return "", domain.Errorf(domain.ErrInvalidAmount, "progress percent must be within [0, 100], got %s", percent.String())
	}
	if isFullyPaid {
		return domain.ProgressFullyPaid, nil
	}
	switch {
	case percent.IsZero():
		return domain.ProgressNotStarted, nil
	case percent.LessThan(bucketInProgress):
		return domain.ProgressJustStarted, nil
	case percent.LessThan(bucketMoreThanHalf):
		return domain.ProgressInProgress, nil
	case percent.LessThan(bucketAlmostComplete):
		return domain.ProgressMoreThanHalf, nil
	case percent.LessThan(hundred):
		return domain.ProgressAlmostComplete, nil
	default:
		return domain.ProgressCompleted, nil
	}
}

// exactLabel buckets paid/ref without dividing, so a ratio like 99.999%
// stays "Almost Complete" even though it displays as 100.00.
func exactLabel(paid, ref decimal.Decimal, isFullyPaid bool) domain.ProgressLabel {
	if isFullyPaid {
		return domain.ProgressFullyPaid
	}
	if !ref.IsPositive() || paid.IsZero() {
		return domain.ProgressNotStarted
	}
	scaled := paid.Mul(hundred)
	below := func(bound decimal.Decimal) bool { return scaled.LessThan(ref.Mul(bound)) }
	switch {
	case below(bucketInProgress):
		return domain.ProgressJustStarted
	case below(bucketMoreThanHalf):
		return domain.ProgressInProgress
	case below(bucketAlmostComplete):
		return domain.ProgressMoreThanHalf
	case below(hundred):
		return domain.ProgressAlmostComplete
	default:
		return domain.ProgressCompleted
	}
}

func checkNonNegative(paid, ref decimal.Decimal) error {
	if ref.IsNegative() {
		return domain.Errorf(domain.ErrInvalidAmount, "reference price cannot be negative, got %s", ref.String())
	}
	if paid.IsNegative() {
		return domain.Errorf(domain.ErrInvalidAmount, "total paid cannot be negative, got %s", paid.String())
	}
	return nil
}

func (c *balanceCalculator) TotalPaid(ctx context.Context, propertyID, payerID int32) (decimal.Decimal, error) {
	entries, err := c.entries.FindByPropertyAndPayer(ctx, propertyID, payerID, domain.EntryStatusCompleted)
	if err != nil {
		return decimal.Zero, err
	}
	return SumCompleted(entries), nil
}

func (c *balanceCalculator) RemainingBalance(ctx context.Context, propertyID, payerID int32, referencePrice decimal.Decimal) (decimal.Decimal, error) {
	if err := checkNonNegative(decimal.Zero, referencePrice); err != nil {
		return decimal.Zero, err
	}
	paid, err := c.TotalPaid(ctx, propertyID, payerID)
	if err != nil {
		return decimal.Zero, err
	}
	return Remaining(paid, referencePrice)
}

func (c *balanceCalculator) ProgressPercent(ctx context.Context, propertyID, payerID int32, referencePrice decimal.Decimal) (decimal.Decimal, error) {
	if err := checkNonNegative(decimal.Zero, referencePrice); err != nil {
		return decimal.Zero, err
	}
	paid, err := c.TotalPaid(ctx, propertyID, payerID)
	if err != nil {
		return decimal.Zero, err
	}
	return Percent(paid, referencePrice)
}

func (c *balanceCalculator) ProgressLabel(percent decimal.Decimal, isFullyPaid bool) (domain.ProgressLabel, error) {
	return Label(percent, isFullyPaid)
}

// Progress derives every figure from a single read of the store. Percent
// is rounded for display; Label is computed from the exact ratio.
func (c *balanceCalculator) Progress(ctx context.Context, propertyID, payerID int32, referencePrice decimal.Decimal, isFullyPaid bool) (*domain.PaymentProgress, error) {
	if err := checkNonNegative(decimal.Zero, referencePrice); err != nil {
		return nil, err
	}
	paid, err := c.TotalPaid(ctx, propertyID, payerID)
	if err != nil {
		return nil, err
	}
	remaining, err := Remaining(paid, referencePrice)
	if err != nil {
		return nil, err
	}
	percent, err := Percent(paid, referencePrice)
	if err != nil {
		return nil, err
	}
	return &domain.PaymentProgress{
		PropertyID:     propertyID,
		PayerID:        payerID,
		ReferencePrice: referencePrice,
		TotalPaid:      paid,
		Remaining:      remaining,
		Percent:        percent.Round(displayPlaces),
		Label:          exactLabel(paid, referencePrice, isFullyPaid),
		FullyPaid:      isFullyPaid,
	}, nil
}

// ReferencePriceForProperty is the current listing price, for purchase
// style tracking.
func (c *balanceCalculator) ReferencePriceForProperty(ctx context.Context, propertyID int32) (decimal.Decimal, error) {
	p, err := c.properties.GetByID(ctx, propertyID)
	if err != nil {
		return decimal.Zero, err
	}
	return p.Price, nil
}

// ReferencePriceForAgreement is the contracted total. The flag reports
// whether the agreement has been closed as completed.
func (c *balanceCalculator) ReferencePriceForAgreement(ctx context.Context, agreementID int32) (decimal.Decimal, bool, error) {
	a, err := c.agreements.GetByID(ctx, agreementID)
	if err != nil {
		return decimal.Zero, false, err
	}
	return a.ContractTotal(), a.Status == domain.AgreementStatusCompleted, nil
}
