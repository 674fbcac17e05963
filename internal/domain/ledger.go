package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type EntryKind string

const (
	EntryKindPurchase EntryKind = "PURCHASE" // direct purchase installment, no agreement
	EntryKindRental   EntryKind = "RENTAL"   // installment under a rental agreement
)

type EntryStatus string

const (
	EntryStatusPending    EntryStatus = "PENDING"
	EntryStatusProcessing EntryStatus = "PROCESSING"
	EntryStatusCompleted  EntryStatus = "COMPLETED"
	EntryStatusCancelled  EntryStatus = "CANCELLED"
)

// entryTransitions is the only place the ledger entry state machine lives.
var entryTransitions = map[EntryStatus][]EntryStatus{
	EntryStatusPending:    {EntryStatusProcessing, EntryStatusCancelled},
	EntryStatusProcessing: {EntryStatusCompleted, EntryStatusCancelled},
}

func (s EntryStatus) Valid() bool {
	switch s {
	case EntryStatusPending, EntryStatusProcessing, EntryStatusCompleted, EntryStatusCancelled:
		return true
	}
	return false
}

func (s EntryStatus) IsTerminal() bool {
	return s == EntryStatusCompleted || s == EntryStatusCancelled
}

// CanTransitionTo reports whether the entry state machine allows s → to.
func (s EntryStatus) CanTransitionTo(to EntryStatus) bool {
	for _, next := range entryTransitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

type PaymentMethod string

const (
	PaymentMethodCash         PaymentMethod = "CASH"
	PaymentMethodBankTransfer PaymentMethod = "BANK_TRANSFER"
	PaymentMethodCheck        PaymentMethod = "CHECK"
	PaymentMethodCard         PaymentMethod = "CARD"
	PaymentMethodMobileMoney  PaymentMethod = "MOBILE_MONEY"
	PaymentMethodOther        PaymentMethod = "OTHER"
)

func (m PaymentMethod) Valid() bool {
	switch m {
	case PaymentMethodCash, PaymentMethodBankTransfer, PaymentMethodCheck,
		PaymentMethodCard, PaymentMethodMobileMoney, PaymentMethodOther:
		return true
	}
	return false
}

// EntrySnapshot is captured when the entry is created and never rewritten,
// so later listing price changes do not alter historical entries.
type EntrySnapshot struct {
	PropertyPrice      decimal.Decimal `json:"property_price"`
	InstallmentAmount  decimal.Decimal `json:"installment_amount"`
	Discount           decimal.Decimal `json:"discount"`
	InterestRate       decimal.Decimal `json:"interest_rate"` // percent
	AmountWithInterest decimal.Decimal `json:"amount_with_interest"`
}

// LedgerEntry is one payment event. Only Status, AdminNotes, ApprovedBy and
// ApprovedAt change after creation.
type LedgerEntry struct {
	ID                int32           `json:"id"`
	PropertyID        int32           `json:"property_id"`
	PayerID           int32           `json:"payer_id"`
	AgreementID       *int32          `json:"agreement_id,omitempty"`
	Kind              EntryKind       `json:"kind"`
	Amount            decimal.Decimal `json:"amount"`
	Snapshot          EntrySnapshot   `json:"snapshot"`
	TransactionID     string          `json:"transaction_id"`
	PaymentMethod     PaymentMethod   `json:"payment_method"`
	Status            EntryStatus     `json:"status"`
	PaymentDate       time.Time       `json:"payment_date"`
	DueDate           *time.Time      `json:"due_date,omitempty"`
	InstallmentNumber *int32          `json:"installment_number,omitempty"`
	AdminNotes        string          `json:"admin_notes"`
	ApprovedBy        *int32          `json:"approved_by,omitempty"`
	ApprovedAt        *time.Time      `json:"approved_at,omitempty"`
	Version           int32           `json:"version"`
	CreatedOn         time.Time       `json:"created_on"`
	UpdatedOn         time.Time       `json:"updated_on"`
}

// CentPlaces is the maximum number of fractional digits a monetary amount
// may carry.
const CentPlaces = 2

// CheckCents rejects amounts with more than CentPlaces fractional digits.
// Trailing zeros do not count, so 10.500 is accepted.
func CheckCents(field string, v decimal.Decimal) error {
	if !v.Equal(v.Truncate(CentPlaces)) {
		return Errorf(ErrInvalidAmount, "%s must have at most %d decimal places, got %s", field, CentPlaces, v.String())
	}
	return nil
}

// Validate checks the write-once fields of a new entry.
func (e *LedgerEntry) Validate() error {
	if !e.Amount.IsPositive() {
		return Errorf(ErrInvalidAmount, "amount must be greater than zero, got %s", e.Amount.String())
	}
	if err := CheckCents("amount", e.Amount); err != nil {
		return err
	}
	switch e.Kind {
	case EntryKindPurchase:
		if e.TransactionID == "" {
			return Errorf(ErrInvalidTerms, "purchase entries require a transaction id")
		}
		if e.AgreementID != nil || e.InstallmentNumber != nil {
			return Errorf(ErrInvalidTerms, "purchase entries cannot reference an agreement installment")
		}
	case EntryKindRental:
		if e.AgreementID == nil {
			return Errorf(ErrInvalidTerms, "rental entries require an agreement")
		}
		if e.InstallmentNumber != nil && *e.InstallmentNumber <= 0 {
			return Errorf(ErrInvalidTerms, "installment number must be positive, got %d", *e.InstallmentNumber)
		}
	default:
		return Errorf(ErrInvalidTerms, "unknown entry kind %q", e.Kind)
	}
	if e.PaymentMethod != "" && !e.PaymentMethod.Valid() {
		return Errorf(ErrInvalidTerms, "unknown payment method %q", e.PaymentMethod)
	}
	for _, v := range []decimal.Decimal{e.Snapshot.PropertyPrice, e.Snapshot.InstallmentAmount, e.Snapshot.Discount, e.Snapshot.InterestRate} {
		if v.IsNegative() {
			return Errorf(ErrInvalidAmount, "snapshot values cannot be negative")
		}
	}
	return nil
}

// EntryTransition is one row of an entry's status history.
type EntryTransition struct {
	ID      int32       `json:"id"`
	EntryID int32       `json:"entry_id"`
	From    EntryStatus `json:"from"`
	To      EntryStatus `json:"to"`
	ActorID int32       `json:"actor_id"`
	Note    string      `json:"note"`
	At      time.Time   `json:"at"`
}
