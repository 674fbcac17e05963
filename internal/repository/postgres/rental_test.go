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

var agreementColumnNames = []string{
	"id", "property_id", "applicant_id", "agent_id", "listing_type", "agreed_amount", "duration_months",
	"interest_rate", "discount", "status", "applied_at", "approved_at", "completed_at", "cancelled_at",
	"rejection_reason", "admin_notes", "version", "updated_on",
}

func agreementRow(id int32, status domain.AgreementStatus, version int32) *sqlmock.Rows {
	now := time.Now()
	return sqlmock.NewRows(agreementColumnNames).AddRow(
		id, 10, 20, 30, "RENT", "1200.00", 12,
		"0", "0", string(status), now.Add(-time.Hour), nil, nil, nil,
		"", "", version, now,
	)
}

func TestAgreementRepository_Create(t *testing.T) {
	store, mock := newMockStore(t)
	months := int32(12)
	a := &domain.RentalAgreement{
		PropertyID:     10,
		ApplicantID:    20,
		AgentID:        30,
		ListingType:    domain.ListingTypeRent,
		AgreedAmount:   decimal.RequireFromString("1200"),
		DurationMonths: &months,
	}

	mock.ExpectQuery("INSERT INTO rental_agreements").
		WithArgs(int32(10), int32(20), int32(30), "RENT", "1200", int32(12),
			"0", "0", "PENDING", sqlmock.AnyArg(), "", int32(1), sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(4))

	err := store.RentalAgreementRepository.Create(context.Background(), a)
	require.NoError(t, err)
	assert.Equal(t, int32(4), a.ID)
	assert.Equal(t, domain.AgreementStatusPending, a.Status)
	assert.False(t, a.AppliedAt.IsZero())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAgreementRepository_GetByID(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		store, mock := newMockStore(t)
		mock.ExpectQuery("SELECT (.+) FROM rental_agreements WHERE id = \\$1").
			WithArgs(int32(4)).
			WillReturnRows(agreementRow(4, domain.AgreementStatusPending, 1))

		a, err := store.RentalAgreementRepository.GetByID(context.Background(), 4)
		require.NoError(t, err)
		require.NotNil(t, a.DurationMonths)
		assert.Equal(t, int32(12), *a.DurationMonths)
		assert.Nil(t, a.ApprovedAt)
		assert.Equal(t, "14400", a.ContractTotal().String())
	})

	t.Run("Not found", func(t *testing.T) {
		store, mock := newMockStore(t)
		mock.ExpectQuery("SELECT (.+) FROM rental_agreements WHERE id = \\$1").
			WillReturnRows(sqlmock.NewRows(agreementColumnNames))

		_, err := store.RentalAgreementRepository.GetByID(context.Background(), 4)
		assert.True(t, errors.Is(err, domain.ErrNotFound))
	})
}

func TestAgreementRepository_ListByAgent(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectQuery("SELECT (.+) FROM rental_agreements WHERE agent_id = \\$1 AND status = \\$2 ORDER BY applied_at DESC").
		WithArgs(int32(30), "PENDING").
		WillReturnRows(agreementRow(4, domain.AgreementStatusPending, 1))

	list, err := store.RentalAgreementRepository.ListByAgent(context.Background(), 30, domain.AgreementStatusPending)
	require.NoError(t, err)
	assert.Len(t, list, 1)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAgreementRepository_ListAll(t *testing.T) {
	t.Run("Status filter", func(t *testing.T) {
		store, mock := newMockStore(t)
		mock.ExpectQuery("SELECT (.+) FROM rental_agreements WHERE status = \\$1 ORDER BY applied_at DESC").
			WithArgs("APPROVED").
			WillReturnRows(agreementRow(4, domain.AgreementStatusApproved, 2))

		list, err := store.RentalAgreementRepository.ListAll(context.Background(), domain.AgreementStatusApproved)
		require.NoError(t, err)
		assert.Len(t, list, 1)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("No filter", func(t *testing.T) {
		store, mock := newMockStore(t)
		mock.ExpectQuery("SELECT (.+) FROM rental_agreements ORDER BY applied_at DESC, id DESC").
			WillReturnRows(sqlmock.NewRows(agreementColumnNames))

		list, err := store.RentalAgreementRepository.ListAll(context.Background(), "")
		require.NoError(t, err)
		assert.Empty(t, list)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestAgreementRepository_ListByApplicantWithoutFilter(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectQuery("SELECT (.+) FROM rental_agreements WHERE applicant_id = \\$1 ORDER BY applied_at DESC").
		WithArgs(int32(20)).
		WillReturnRows(sqlmock.NewRows(agreementColumnNames))

	list, err := store.RentalAgreementRepository.ListByApplicant(context.Background(), 20, "")
	require.NoError(t, err)
	assert.Empty(t, list)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAgreementRepository_UpdateStatus(t *testing.T) {
	t.Run("Approve", func(t *testing.T) {
		store, mock := newMockStore(t)

		mock.ExpectBegin()
		mock.ExpectQuery("SELECT (.+) FROM rental_agreements WHERE id = \\$1 FOR UPDATE").
			WithArgs(int32(4)).
			WillReturnRows(agreementRow(4, domain.AgreementStatusPending, 1))
		mock.ExpectExec("UPDATE rental_agreements SET status = \\$1").
			WithArgs("APPROVED", sqlmock.AnyArg(), nil, nil, "", "", sqlmock.AnyArg(), int32(4), int32(1)).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		updated, err := store.RentalAgreementRepository.UpdateStatus(context.Background(), 4, func(a *domain.RentalAgreement) error {
			now := time.Now()
			a.Status = domain.AgreementStatusApproved
			a.ApprovedAt = &now
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, domain.AgreementStatusApproved, updated.Status)
		assert.NotNil(t, updated.ApprovedAt)
		assert.Equal(t, int32(2), updated.Version)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Lost race", func(t *testing.T) {
		store, mock := newMockStore(t)

		mock.ExpectBegin()
		mock.ExpectQuery("SELECT (.+) FROM rental_agreements WHERE id = \\$1 FOR UPDATE").
			WillReturnRows(agreementRow(4, domain.AgreementStatusPending, 1))
		mock.ExpectExec("UPDATE rental_agreements SET status = \\$1").
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectRollback()

		_, err := store.RentalAgreementRepository.UpdateStatus(context.Background(), 4, func(a *domain.RentalAgreement) error {
			a.Status = domain.AgreementStatusRejected
			return nil
		})
		assert.True(t, errors.Is(err, domain.ErrConcurrentModification))
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestPropertyAndUserRepositories(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery("SELECT id, owner_id, title, price, listing_type FROM properties WHERE id = \\$1").
		WithArgs(int32(10)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "owner_id", "title", "price", "listing_type"}).
			AddRow(10, 30, "Lakeside flat", "50000.00", "SALE"))
	mock.ExpectQuery("SELECT id, email, name, role, created_on FROM users WHERE id = \\$1").
		WithArgs(int32(30)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "email", "name", "role", "created_on"}))

	p, err := store.PropertyRepository.GetByID(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, int32(30), p.OwnerID)
	assert.Equal(t, domain.ListingTypeSale, p.ListingType)
	assert.True(t, p.Price.Equal(decimal.NewFromInt(50000)))

	_, err = store.UserRepository.GetByID(context.Background(), 30)
	assert.True(t, errors.Is(err, domain.ErrNotFound))
}

func TestNotificationRepository(t *testing.T) {
	t.Run("Create", func(t *testing.T) {
		store, mock := newMockStore(t)
		n := &domain.Notification{UserID: 20, Title: "Payment approved", Message: "ok", Attributes: map[string]string{"type": domain.NotificationPaymentApproved}}

		mock.ExpectQuery("INSERT INTO notifications").
			WithArgs(int32(20), "Payment approved", "ok", false, sqlmock.AnyArg(), sqlmock.AnyArg()).
			WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(8))

		require.NoError(t, store.NotificationRepository.Create(context.Background(), n))
		assert.Equal(t, int32(8), n.ID)
	})

	t.Run("List", func(t *testing.T) {
		store, mock := newMockStore(t)
		mock.ExpectQuery("SELECT count\\(\\*\\) FROM notifications WHERE user_id = \\$1").
			WithArgs(int32(20)).
			WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
		mock.ExpectQuery("SELECT id, user_id, title, message, is_read, attributes, created_on").
			WithArgs(int32(20), int32(10), int32(0)).
			WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "title", "message", "is_read", "attributes", "created_on"}).
				AddRow(8, 20, "Payment approved", "ok", false, []byte(`{"type":"PAYMENT_APPROVED"}`), time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)))

		notes, total, err := store.NotificationRepository.List(context.Background(), 20, 10, 0)
		require.NoError(t, err)
		assert.Equal(t, int32(1), total)
		require.Len(t, notes, 1)
		assert.Equal(t, "2024-05-01", notes[0].CreatedOn)
		assert.Equal(t, domain.NotificationPaymentApproved, notes[0].Attributes["type"])
	})

	t.Run("MarkAsRead on someone else's notification", func(t *testing.T) {
		store, mock := newMockStore(t)
		mock.ExpectExec("UPDATE notifications SET is_read = TRUE WHERE id = \\$1 AND user_id = \\$2").
			WithArgs(int32(8), int32(21)).
			WillReturnResult(sqlmock.NewResult(0, 0))

		err := store.NotificationRepository.MarkAsRead(context.Background(), 8, 21)
		assert.True(t, errors.Is(err, domain.ErrNotFound))
	})

	t.Run("Create retries a terminated connection", func(t *testing.T) {
		store, mock := newMockStore(t)
		n := &domain.Notification{UserID: 20, Title: "Payment approved", Message: "ok"}

		mock.ExpectQuery("INSERT INTO notifications").
			WillReturnError(&pq.Error{Code: "57P01", Message: "terminating connection due to administrator command"})
		mock.ExpectQuery("INSERT INTO notifications").
			WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(9))

		require.NoError(t, store.NotificationRepository.Create(context.Background(), n))
		assert.Equal(t, int32(9), n.ID)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Persistent failure is storage unavailable", func(t *testing.T) {
		store, mock := newMockStore(t)
		for i := 0; i < 3; i++ {
			mock.ExpectQuery("SELECT count\\(\\*\\) FROM notifications").
				WillReturnError(&pq.Error{Code: "08006", Message: "connection failure"})
		}
		for i := 0; i < 3; i++ {
			mock.ExpectExec("UPDATE notifications SET is_read = TRUE").
				WillReturnError(&pq.Error{Code: "08006", Message: "connection failure"})
		}

		_, _, err := store.NotificationRepository.List(context.Background(), 20, 10, 0)
		assert.True(t, errors.Is(err, domain.ErrStorageUnavailable), "got %v", err)

		err = store.NotificationRepository.MarkAsRead(context.Background(), 8, 20)
		assert.True(t, errors.Is(err, domain.ErrStorageUnavailable), "got %v", err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestMigrationsDeclareUniqueIndexes(t *testing.T) {
	store, mock := newMockStore(t)
	for range Migrations() {
		mock.ExpectExec(".+").WillReturnResult(sqlmock.NewResult(0, 0))
	}
	require.NoError(t, store.Migrate(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())

	var joined string
	for _, stmt := range Migrations() {
		joined += stmt
	}
	assert.Contains(t, joined, constraintPurchaseTransaction)
	assert.Contains(t, joined, constraintAgreementInstallment)
	assert.Contains(t, joined, constraintAgreementTransaction)
	assert.Contains(t, joined, "NUMERIC(14,2)")
}
