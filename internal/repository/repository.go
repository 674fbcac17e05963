package repository

import (
	"context"
	"time"

	"property-ledger-backend/internal/domain"
)

// EntryMutation changes the mutable fields of a locked entry and returns the
// history row describing the change. Returning an error aborts the update
// with nothing written.
type EntryMutation func(entry *domain.LedgerEntry) (*domain.EntryTransition, error)

// AgreementMutation changes the status fields of a locked agreement.
type AgreementMutation func(agreement *domain.RentalAgreement) error

type LedgerEntryRepository interface {
	Create(ctx context.Context, entry *domain.LedgerEntry) error
	GetByID(ctx context.Context, id int32) (*domain.LedgerEntry, error)
	FindByPropertyAndPayer(ctx context.Context, propertyID, payerID int32, statuses ...domain.EntryStatus) ([]domain.LedgerEntry, error)
	ListByAgreement(ctx context.Context, agreementID int32) ([]domain.LedgerEntry, error)
	ListOverdue(ctx context.Context, asOf time.Time) ([]domain.LedgerEntry, error)

	// UpdateStatus reads the entry under a row lock, applies mutate and
	// writes status, notes and approver fields back atomically.
	UpdateStatus(ctx context.Context, id int32, mutate EntryMutation) (*domain.LedgerEntry, error)
	ListTransitions(ctx context.Context, entryID int32) ([]domain.EntryTransition, error)
}

type RentalAgreementRepository interface {
	Create(ctx context.Context, agreement *domain.RentalAgreement) error
	GetByID(ctx context.Context, id int32) (*domain.RentalAgreement, error)
	ListByApplicant(ctx context.Context, applicantID int32, status domain.AgreementStatus) ([]domain.RentalAgreement, error)
	ListByAgent(ctx context.Context, agentID int32, status domain.AgreementStatus) ([]domain.RentalAgreement, error)
	// ListAll returns every agreement, optionally filtered by status.
	ListAll(ctx context.Context, status domain.AgreementStatus) ([]domain.RentalAgreement, error)
	UpdateStatus(ctx context.Context, id int32, mutate AgreementMutation) (*domain.RentalAgreement, error)
}

// PropertyRepository reads listing data owned by the property service.
type PropertyRepository interface {
	GetByID(ctx context.Context, id int32) (*domain.Property, error)
}

type UserRepository interface {
	GetByID(ctx context.Context, id int32) (*domain.User, error)
}

type NotificationRepository interface {
	Create(ctx context.Context, note *domain.Notification) error
	List(ctx context.Context, userID int32, limit, offset int32) ([]domain.Notification, int32, error)
	MarkAsRead(ctx context.Context, id, userID int32) error
}
