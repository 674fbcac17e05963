package service

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"property-ledger-backend/internal/domain"
)

// RecordPaymentRequest describes a new ledger entry. PayerID defaults to the
// actor; agents and admins may record on a payer's behalf.
type RecordPaymentRequest struct {
	PropertyID        int32                `json:"property_id"`
	PayerID           int32                `json:"payer_id"`
	AgreementID       *int32               `json:"agreement_id,omitempty"`
	Amount            decimal.Decimal      `json:"amount"`
	TransactionID     string               `json:"transaction_id"`
	PaymentMethod     domain.PaymentMethod `json:"payment_method"`
	PaymentDate       time.Time            `json:"payment_date"`
	DueDate           *time.Time           `json:"due_date,omitempty"`
	InstallmentNumber *int32               `json:"installment_number,omitempty"`
	Notes             string               `json:"notes"`
}

type LedgerService interface {
	RecordPayment(ctx context.Context, actor domain.Actor, req RecordPaymentRequest) (*domain.LedgerEntry, error)
	GetEntry(ctx context.Context, actor domain.Actor, entryID int32) (*domain.LedgerEntry, error)
	FindByPropertyAndPayer(ctx context.Context, actor domain.Actor, propertyID, payerID int32, statuses ...domain.EntryStatus) ([]domain.LedgerEntry, error)
	ListAgreementEntries(ctx context.Context, actor domain.Actor, agreementID int32) ([]domain.LedgerEntry, error)
	EntryHistory(ctx context.Context, actor domain.Actor, entryID int32) ([]domain.EntryTransition, error)
	TransitionStatus(ctx context.Context, actor domain.Actor, entryID int32, to domain.EntryStatus, note string) (*domain.LedgerEntry, error)
}

// WorkflowService is the only writer of entry and agreement status.
type WorkflowService interface {
	TransitionEntry(ctx context.Context, actor domain.Actor, entryID int32, to domain.EntryStatus, note string) (*domain.LedgerEntry, error)
	MarkProcessing(ctx context.Context, actor domain.Actor, entryID int32, note string) (*domain.LedgerEntry, error)
	Complete(ctx context.Context, actor domain.Actor, entryID int32, note string) (*domain.LedgerEntry, error)
	CancelEntry(ctx context.Context, actor domain.Actor, entryID int32, note string) (*domain.LedgerEntry, error)
	TransitionAgreement(ctx context.Context, actor domain.Actor, agreementID int32, to domain.AgreementStatus, reason string) (*domain.RentalAgreement, error)
}

type BalanceCalculator interface {
	TotalPaid(ctx context.Context, propertyID, payerID int32) (decimal.Decimal, error)
	RemainingBalance(ctx context.Context, propertyID, payerID int32, referencePrice decimal.Decimal) (decimal.Decimal, error)
	ProgressPercent(ctx context.Context, propertyID, payerID int32, referencePrice decimal.Decimal) (decimal.Decimal, error)
	ProgressLabel(percent decimal.Decimal, isFullyPaid bool) (domain.ProgressLabel, error)
	Progress(ctx context.Context, propertyID, payerID int32, referencePrice decimal.Decimal, isFullyPaid bool) (*domain.PaymentProgress, error)
	ReferencePriceForProperty(ctx context.Context, propertyID int32) (decimal.Decimal, error)
	ReferencePriceForAgreement(ctx context.Context, agreementID int32) (decimal.Decimal, bool, error)
}

type AgreementService interface {
	Apply(ctx context.Context, actor domain.Actor, propertyID int32, terms domain.AgreementTerms) (*domain.RentalAgreement, error)
	Approve(ctx context.Context, actor domain.Actor, agreementID int32) (*domain.RentalAgreement, error)
	Reject(ctx context.Context, actor domain.Actor, agreementID int32, reason string) (*domain.RentalAgreement, error)
	Complete(ctx context.Context, actor domain.Actor, agreementID int32) (*domain.RentalAgreement, error)
	Cancel(ctx context.Context, actor domain.Actor, agreementID int32, reason string) (*domain.RentalAgreement, error)
	Get(ctx context.Context, actor domain.Actor, agreementID int32) (*domain.RentalAgreement, error)
	ListMine(ctx context.Context, actor domain.Actor, status domain.AgreementStatus) ([]domain.RentalAgreement, error)
	ListManaged(ctx context.Context, actor domain.Actor, status domain.AgreementStatus) ([]domain.RentalAgreement, error)
}

type NotificationService interface {
	GetNotifications(ctx context.Context, userID int32, page, pageSize int32) ([]domain.Notification, int32, error)
	MarkAsRead(ctx context.Context, userID, notificationID int32) error
}

// Event is a ledger or agreement state change handed to the notification
// layer after the change has been committed.
type Event struct {
	Type       string
	Recipients []int32
	Title      string
	Message    string
	Attributes map[string]string
}

type Notifier interface {
	Notify(ctx context.Context, event Event) error
}

type EmailService interface {
	Send(ctx context.Context, toEmail, toName, subject, body string) error
}
