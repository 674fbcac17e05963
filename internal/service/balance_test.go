package service_test

import (
	"context"
	"errors"
	"math/rand"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"property-ledger-backend/internal/domain"
	"property-ledger-backend/internal/service"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestLabelBuckets(t *testing.T) {
	tests := []struct {
		percent string
		want    domain.ProgressLabel
	}{
		{"0", domain.ProgressNotStarted},
		{"0.01", domain.ProgressJustStarted},
		{"24.99", domain.ProgressJustStarted},
		{"25", domain.ProgressInProgress},
		{"49.99", domain.ProgressInProgress},
		{"50", domain.ProgressMoreThanHalf},
		{"74.99", domain.ProgressMoreThanHalf},
		{"75", domain.ProgressAlmostComplete},
		{"99.99", domain.ProgressAlmostComplete},
		{"100", domain.ProgressCompleted},
	}
	for _, tt := range tests {
		t.Run(tt.percent, func(t *testing.T) {
			got, err := service.Label(d(tt.percent), false)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	fully, err := service.Label(d("10"), true)
	require.NoError(t, err)
	assert.Equal(t, domain.ProgressFullyPaid, fully)
}

func TestLabelRejectsOutOfRange(t *testing.T) {
	for _, p := range []string{"-0.01", "100.01"} {
		_, err := service.Label(d(p), false)
		assert.True(t, errors.Is(err, domain.ErrInvalidAmount), p)
	}
}

func TestRemainingAndPercent(t *testing.T) {
	rem, err := service.Remaining(d("60000"), d("50000"))
	require.NoError(t, err)
	assert.True(t, rem.IsZero(), "over-payment clamps to zero")

	pct, err := service.Percent(d("60000"), d("50000"))
	require.NoError(t, err)
	assert.Equal(t, "100", pct.String())

	pct, err = service.Percent(d("100"), decimal.Zero)
	require.NoError(t, err)
	assert.True(t, pct.IsZero())

	pct, err = service.Percent(d("1"), d("3"))
	require.NoError(t, err)
	assert.Equal(t, "33.33", pct.Round(2).String())
	assert.True(t, pct.GreaterThan(d("33.33")), "percent is not rounded")

	_, err = service.Remaining(d("1"), d("-1"))
	assert.True(t, errors.Is(err, domain.ErrInvalidAmount))
	_, err = service.Percent(d("-1"), d("10"))
	assert.True(t, errors.Is(err, domain.ErrInvalidAmount))
}

func TestSumCompletedIsOrderIndependent(t *testing.T) {
	var entries []domain.LedgerEntry
	want := decimal.Zero
	for i := 1; i <= 50; i++ {
		amount := decimal.New(int64(i*137), -2)
		status := domain.EntryStatusCompleted
		if i%3 == 0 {
			status = domain.EntryStatusPending
		} else {
			want = want.Add(amount)
		}
		entries = append(entries, domain.LedgerEntry{Amount: amount, Status: status})
	}

	r := rand.New(rand.NewSource(7))
	for i := 0; i < 10; i++ {
		r.Shuffle(len(entries), func(a, b int) { entries[a], entries[b] = entries[b], entries[a] })
		assert.True(t, want.Equal(service.SumCompleted(entries)))
	}
}

// Scenario A
func TestBalance_SinglePaymentLifecycle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ref := d("50000")
	e := f.purchase(t, 5000, "TXN-1")

	pct, err := f.balance.ProgressPercent(ctx, salePropertyID, payerID, ref)
	require.NoError(t, err)
	assert.True(t, pct.IsZero(), "pending entries do not count")

	f.approve(t, e.ID)

	progress, err := f.balance.Progress(ctx, salePropertyID, payerID, ref, false)
	require.NoError(t, err)
	assert.Equal(t, "5000", progress.TotalPaid.String())
	assert.Equal(t, "45000", progress.Remaining.String())
	assert.Equal(t, "10", progress.Percent.String())
	assert.Equal(t, domain.ProgressJustStarted, progress.Label)
}

// Scenario B
func TestBalance_FullyPaidByTwoEntries(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ref := d("10000")
	f.approve(t, f.purchase(t, 4000, "TXN-1").ID)
	f.approve(t, f.purchase(t, 6000, "TXN-2").ID)

	paid, err := f.balance.TotalPaid(ctx, salePropertyID, payerID)
	require.NoError(t, err)
	assert.Equal(t, "10000", paid.String())

	rem, err := f.balance.RemainingBalance(ctx, salePropertyID, payerID, ref)
	require.NoError(t, err)
	assert.True(t, rem.IsZero())

	pct, err := f.balance.ProgressPercent(ctx, salePropertyID, payerID, ref)
	require.NoError(t, err)
	assert.Equal(t, "100", pct.String())

	label, err := f.balance.ProgressLabel(pct, false)
	require.NoError(t, err)
	assert.Equal(t, domain.ProgressCompleted, label)
}

func TestBalance_PercentIsMonotonic(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ref := d("50000")

	var ids []int32
	for i, amount := range []int64{1000, 7000, 250, 12000, 40000} {
		ids = append(ids, f.purchase(t, amount, string(rune('A'+i))).ID)
	}
	last := decimal.Zero
	for _, id := range ids {
		f.approve(t, id)
		pct, err := f.balance.ProgressPercent(ctx, salePropertyID, payerID, ref)
		require.NoError(t, err)
		assert.True(t, pct.GreaterThanOrEqual(last))
		last = pct
	}
	assert.Equal(t, "100", last.String())
}

func TestBalance_AlmostCompleteNearTheCap(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.approve(t, f.purchase(t, 99999, "TXN-1").ID)

	// 99999/100000 rounds to 100.00 for display but is not paid off.
	progress, err := f.balance.Progress(ctx, salePropertyID, payerID, d("100000"), false)
	require.NoError(t, err)
	assert.Equal(t, "100", progress.Percent.String())
	assert.Equal(t, domain.ProgressAlmostComplete, progress.Label)
	assert.Equal(t, "1", progress.Remaining.String())
}

func TestBalance_ProgressPercentFeedsLabelNearTheCap(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ref := d("100000")
	f.approve(t, f.purchase(t, 99999, "TXN-1").ID)

	pct, err := f.balance.ProgressPercent(ctx, salePropertyID, payerID, ref)
	require.NoError(t, err)
	assert.Equal(t, "99.999", pct.String())
	assert.True(t, pct.LessThan(d("100")))

	label, err := f.balance.ProgressLabel(pct, false)
	require.NoError(t, err)
	assert.Equal(t, domain.ProgressAlmostComplete, label)

	rem, err := f.balance.RemainingBalance(ctx, salePropertyID, payerID, ref)
	require.NoError(t, err)
	assert.Equal(t, "1", rem.String())
}

func TestBalance_ReferencePrices(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	price, err := f.balance.ReferencePriceForProperty(ctx, salePropertyID)
	require.NoError(t, err)
	assert.Equal(t, "50000", price.String())

	a := f.rentalAgreement(t)
	total, completed, err := f.balance.ReferencePriceForAgreement(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, "14400", total.String())
	assert.False(t, completed)

	_, err = f.balance.Progress(ctx, salePropertyID, payerID, d("-1"), false)
	assert.True(t, errors.Is(err, domain.ErrInvalidAmount))

	zero, err := f.balance.Progress(ctx, salePropertyID, payerID, decimal.Zero, false)
	require.NoError(t, err)
	assert.Equal(t, domain.ProgressNotStarted, zero.Label)
}
