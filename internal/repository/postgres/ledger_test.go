package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"property-ledger-backend/internal/domain"
)

var entryColumnNames = []string{
	"id", "property_id", "payer_id", "agreement_id", "kind", "amount",
	"property_price_snapshot", "installment_amount_snapshot", "discount_snapshot", "interest_rate_snapshot", "amount_with_interest",
	"transaction_id", "payment_method", "status", "payment_date", "due_date", "installment_number",
	"admin_notes", "approved_by", "approved_at", "version", "created_on", "updated_on",
}

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("error opening mock database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewStore(db, WithRetry(3, time.Millisecond)), mock
}

func purchaseRow(id int32, status domain.EntryStatus, version int32) *sqlmock.Rows {
	now := time.Now()
	return sqlmock.NewRows(entryColumnNames).AddRow(
		id, 10, 20, nil, "PURCHASE", "5000.00",
		"50000.00", "0", "0", "0", "5000.00",
		"TXN-1", "BANK_TRANSFER", string(status), now, nil, nil,
		"", nil, nil, version, now, now,
	)
}

func int32Ptr(v int32) *int32 { return &v }

func TestLedgerRepository_Create(t *testing.T) {
	ctx := context.Background()

	t.Run("Purchase success", func(t *testing.T) {
		store, mock := newMockStore(t)
		entry := &domain.LedgerEntry{
			PropertyID:    10,
			PayerID:       20,
			Kind:          domain.EntryKindPurchase,
			Amount:        decimal.RequireFromString("5000"),
			TransactionID: "TXN-1",
			PaymentMethod: domain.PaymentMethodBankTransfer,
		}

		mock.ExpectBegin()
		mock.ExpectQuery("INSERT INTO ledger_entries").
			WithArgs(int32(10), int32(20), nil, "PURCHASE", "5000",
				sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(),
				"TXN-1", "BANK_TRANSFER", "PENDING", sqlmock.AnyArg(), nil, nil,
				"", int32(1), sqlmock.AnyArg(), sqlmock.AnyArg()).
			WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(1))
		mock.ExpectCommit()

		err := store.LedgerEntryRepository.Create(ctx, entry)
		require.NoError(t, err)
		assert.Equal(t, int32(1), entry.ID)
		assert.Equal(t, domain.EntryStatusPending, entry.Status)
		assert.False(t, entry.PaymentDate.IsZero())
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Non-positive amount never reaches the database", func(t *testing.T) {
		store, mock := newMockStore(t)
		entry := &domain.LedgerEntry{
			PropertyID:    10,
			PayerID:       20,
			Kind:          domain.EntryKindPurchase,
			Amount:        decimal.Zero,
			TransactionID: "TXN-1",
		}
		err := store.LedgerEntryRepository.Create(ctx, entry)
		assert.True(t, errors.Is(err, domain.ErrInvalidAmount))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Duplicate installment from unique index", func(t *testing.T) {
		store, mock := newMockStore(t)
		entry := &domain.LedgerEntry{
			PropertyID:        10,
			PayerID:           20,
			AgreementID:       int32Ptr(5),
			Kind:              domain.EntryKindRental,
			Amount:            decimal.RequireFromString("1200"),
			TransactionID:     "RENT-3",
			InstallmentNumber: int32Ptr(3),
		}

		mock.ExpectBegin()
		mock.ExpectQuery("SELECT EXISTS").
			WithArgs(int32(5), "RENT-3").
			WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
		mock.ExpectQuery("INSERT INTO ledger_entries").
			WillReturnError(&pq.Error{Code: pqUniqueViolation, Constraint: constraintAgreementInstallment})
		mock.ExpectRollback()

		err := store.LedgerEntryRepository.Create(ctx, entry)
		assert.True(t, errors.Is(err, domain.ErrDuplicateInstallment), "got %v", err)
		assert.Contains(t, err.Error(), "installment 3 already recorded for agreement 5")
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Duplicate purchase transaction from unique index", func(t *testing.T) {
		store, mock := newMockStore(t)
		entry := &domain.LedgerEntry{
			PropertyID:    10,
			PayerID:       20,
			Kind:          domain.EntryKindPurchase,
			Amount:        decimal.RequireFromString("100"),
			TransactionID: "TXN-1",
		}

		mock.ExpectBegin()
		mock.ExpectQuery("INSERT INTO ledger_entries").
			WillReturnError(&pq.Error{Code: pqUniqueViolation, Constraint: constraintPurchaseTransaction})
		mock.ExpectRollback()

		err := store.LedgerEntryRepository.Create(ctx, entry)
		assert.True(t, errors.Is(err, domain.ErrDuplicateTransaction), "got %v", err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Rental transaction id already used on agreement", func(t *testing.T) {
		store, mock := newMockStore(t)
		entry := &domain.LedgerEntry{
			PropertyID:    10,
			PayerID:       20,
			AgreementID:   int32Ptr(5),
			Kind:          domain.EntryKindRental,
			Amount:        decimal.RequireFromString("1200"),
			TransactionID: "RENT-3",
		}

		mock.ExpectBegin()
		mock.ExpectQuery("SELECT EXISTS").
			WithArgs(int32(5), "RENT-3").
			WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
		mock.ExpectRollback()

		err := store.LedgerEntryRepository.Create(ctx, entry)
		assert.True(t, errors.Is(err, domain.ErrDuplicateTransaction))
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestLedgerRepository_GetByID(t *testing.T) {
	ctx := context.Background()

	t.Run("Success", func(t *testing.T) {
		store, mock := newMockStore(t)
		mock.ExpectQuery("SELECT (.+) FROM ledger_entries WHERE id = \\$1").
			WithArgs(int32(1)).
			WillReturnRows(purchaseRow(1, domain.EntryStatusPending, 1))

		entry, err := store.LedgerEntryRepository.GetByID(ctx, 1)
		require.NoError(t, err)
		assert.Equal(t, domain.EntryKindPurchase, entry.Kind)
		assert.True(t, entry.Amount.Equal(decimal.NewFromInt(5000)))
		assert.True(t, entry.Snapshot.PropertyPrice.Equal(decimal.NewFromInt(50000)))
		assert.Nil(t, entry.AgreementID)
		assert.Nil(t, entry.ApprovedBy)
	})

	t.Run("Not found", func(t *testing.T) {
		store, mock := newMockStore(t)
		mock.ExpectQuery("SELECT (.+) FROM ledger_entries WHERE id = \\$1").
			WithArgs(int32(99)).
			WillReturnRows(sqlmock.NewRows(entryColumnNames))

		_, err := store.LedgerEntryRepository.GetByID(ctx, 99)
		assert.True(t, errors.Is(err, domain.ErrNotFound))
	})

	t.Run("Transient failure retried then surfaced", func(t *testing.T) {
		store, mock := newMockStore(t)
		for i := 0; i < 3; i++ {
			mock.ExpectQuery("SELECT (.+) FROM ledger_entries WHERE id = \\$1").
				WillReturnError(&pq.Error{Code: "08006", Message: "connection failure"})
		}

		_, err := store.LedgerEntryRepository.GetByID(ctx, 1)
		assert.True(t, errors.Is(err, domain.ErrStorageUnavailable), "got %v", err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Transient failure recovers", func(t *testing.T) {
		store, mock := newMockStore(t)
		mock.ExpectQuery("SELECT (.+) FROM ledger_entries WHERE id = \\$1").
			WillReturnError(&pq.Error{Code: "40001", Message: "serialization failure"})
		mock.ExpectQuery("SELECT (.+) FROM ledger_entries WHERE id = \\$1").
			WillReturnRows(purchaseRow(1, domain.EntryStatusPending, 1))

		entry, err := store.LedgerEntryRepository.GetByID(ctx, 1)
		require.NoError(t, err)
		assert.Equal(t, int32(1), entry.ID)
	})
}

func TestLedgerRepository_FindByPropertyAndPayer(t *testing.T) {
	store, mock := newMockStore(t)
	rows := purchaseRow(1, domain.EntryStatusCompleted, 3)
	rows.AddRow(2, 10, 20, nil, "PURCHASE", "250.50", "50000", "0", "0", "0", "250.50",
		"TXN-2", "CASH", "COMPLETED", time.Now(), nil, nil, "", 7, time.Now(), 3, time.Now(), time.Now())

	mock.ExpectQuery("SELECT (.+) FROM ledger_entries WHERE property_id = \\$1 AND payer_id = \\$2 AND status = ANY\\(\\$3\\) ORDER BY payment_date ASC, id ASC").
		WithArgs(int32(10), int32(20), sqlmock.AnyArg()).
		WillReturnRows(rows)

	entries, err := store.LedgerEntryRepository.FindByPropertyAndPayer(context.Background(), 10, 20, domain.EntryStatusCompleted)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "250.50", entries[1].Amount.StringFixed(2))
	require.NotNil(t, entries[1].ApprovedBy)
	assert.Equal(t, int32(7), *entries[1].ApprovedBy)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLedgerRepository_ListOverdue(t *testing.T) {
	store, mock := newMockStore(t)
	asOf := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery("SELECT (.+) FROM ledger_entries\\s+WHERE kind = 'RENTAL' AND status IN \\('PENDING', 'PROCESSING'\\) AND due_date < \\$1").
		WithArgs(asOf).
		WillReturnRows(sqlmock.NewRows(entryColumnNames))

	entries, err := store.LedgerEntryRepository.ListOverdue(context.Background(), asOf)
	require.NoError(t, err)
	assert.Empty(t, entries)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLedgerRepository_UpdateStatus(t *testing.T) {
	ctx := context.Background()

	t.Run("Success writes status and history in one transaction", func(t *testing.T) {
		store, mock := newMockStore(t)

		mock.ExpectBegin()
		mock.ExpectQuery("SELECT (.+) FROM ledger_entries WHERE id = \\$1 FOR UPDATE").
			WithArgs(int32(1)).
			WillReturnRows(purchaseRow(1, domain.EntryStatusProcessing, 2))
		mock.ExpectExec("UPDATE ledger_entries SET status = \\$1").
			WithArgs("COMPLETED", "verified", int32(9), sqlmock.AnyArg(), sqlmock.AnyArg(), int32(1), int32(2)).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec("INSERT INTO entry_transitions").
			WithArgs(int32(1), "PROCESSING", "COMPLETED", int32(9), "verified", sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(1, 1))
		mock.ExpectCommit()

		updated, err := store.LedgerEntryRepository.UpdateStatus(ctx, 1, func(e *domain.LedgerEntry) (*domain.EntryTransition, error) {
			now := time.Now()
			from := e.Status
			e.Status = domain.EntryStatusCompleted
			e.AdminNotes = "verified"
			e.ApprovedBy = int32Ptr(9)
			e.ApprovedAt = &now
			return &domain.EntryTransition{From: from, To: e.Status, ActorID: 9, Note: "verified"}, nil
		})
		require.NoError(t, err)
		assert.Equal(t, domain.EntryStatusCompleted, updated.Status)
		assert.Equal(t, int32(3), updated.Version)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Mutation error rolls back with no write", func(t *testing.T) {
		store, mock := newMockStore(t)

		mock.ExpectBegin()
		mock.ExpectQuery("SELECT (.+) FROM ledger_entries WHERE id = \\$1 FOR UPDATE").
			WillReturnRows(purchaseRow(1, domain.EntryStatusCompleted, 3))
		mock.ExpectRollback()

		rejection := domain.Errorf(domain.ErrInvalidTransition, "entry already completed, cannot cancel")
		_, err := store.LedgerEntryRepository.UpdateStatus(ctx, 1, func(e *domain.LedgerEntry) (*domain.EntryTransition, error) {
			return nil, rejection
		})
		assert.Equal(t, rejection, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Version mismatch is a concurrent modification", func(t *testing.T) {
		store, mock := newMockStore(t)

		mock.ExpectBegin()
		mock.ExpectQuery("SELECT (.+) FROM ledger_entries WHERE id = \\$1 FOR UPDATE").
			WillReturnRows(purchaseRow(1, domain.EntryStatusPending, 1))
		mock.ExpectExec("UPDATE ledger_entries SET status = \\$1").
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectRollback()

		_, err := store.LedgerEntryRepository.UpdateStatus(ctx, 1, func(e *domain.LedgerEntry) (*domain.EntryTransition, error) {
			e.Status = domain.EntryStatusProcessing
			return &domain.EntryTransition{From: domain.EntryStatusPending, To: e.Status, ActorID: 9}, nil
		})
		assert.True(t, errors.Is(err, domain.ErrConcurrentModification))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Missing entry", func(t *testing.T) {
		store, mock := newMockStore(t)

		mock.ExpectBegin()
		mock.ExpectQuery("SELECT (.+) FROM ledger_entries WHERE id = \\$1 FOR UPDATE").
			WillReturnRows(sqlmock.NewRows(entryColumnNames))
		mock.ExpectRollback()

		_, err := store.LedgerEntryRepository.UpdateStatus(ctx, 404, func(e *domain.LedgerEntry) (*domain.EntryTransition, error) {
			t.Fatal("mutation must not run for a missing entry")
			return nil, nil
		})
		assert.True(t, errors.Is(err, domain.ErrNotFound))
	})
}

func TestLedgerRepository_ListTransitions(t *testing.T) {
	store, mock := newMockStore(t)
	at := time.Now()
	mock.ExpectQuery("SELECT id, entry_id, from_status, to_status, actor_id, note, created_on\\s+FROM entry_transitions WHERE entry_id = \\$1").
		WithArgs(int32(1)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "entry_id", "from_status", "to_status", "actor_id", "note", "created_on"}).
			AddRow(1, 1, "PENDING", "PROCESSING", 9, "", at).
			AddRow(2, 1, "PROCESSING", "COMPLETED", 9, "ok", at))

	history, err := store.LedgerEntryRepository.ListTransitions(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, domain.EntryStatusProcessing, history[0].To)
	assert.Equal(t, domain.EntryStatusCompleted, history[1].To)
}

func TestIsTransient(t *testing.T) {
	assert.True(t, isTransient(&pq.Error{Code: "08003"}))
	assert.True(t, isTransient(&pq.Error{Code: "40P01"}))
	assert.False(t, isTransient(&pq.Error{Code: pqUniqueViolation}))
	assert.False(t, isTransient(errors.New("syntax error")))
}
