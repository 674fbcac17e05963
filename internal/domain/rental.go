package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type AgreementStatus string

const (
	AgreementStatusPending   AgreementStatus = "PENDING"
	AgreementStatusApproved  AgreementStatus = "APPROVED"
	AgreementStatusRejected  AgreementStatus = "REJECTED"
	AgreementStatusCompleted AgreementStatus = "COMPLETED"
	AgreementStatusCancelled AgreementStatus = "CANCELLED"
)

var agreementTransitions = map[AgreementStatus][]AgreementStatus{
	AgreementStatusPending:  {AgreementStatusApproved, AgreementStatusRejected, AgreementStatusCancelled},
	AgreementStatusApproved: {AgreementStatusCompleted, AgreementStatusCancelled},
}

func (s AgreementStatus) Valid() bool {
	switch s {
	case AgreementStatusPending, AgreementStatusApproved, AgreementStatusRejected,
		AgreementStatusCompleted, AgreementStatusCancelled:
		return true
	}
	return false
}

func (s AgreementStatus) IsTerminal() bool {
	return s == AgreementStatusCompleted || s == AgreementStatusRejected || s == AgreementStatusCancelled
}

func (s AgreementStatus) CanTransitionTo(to AgreementStatus) bool {
	for _, next := range agreementTransitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

// AgreementTerms are supplied by the applicant.
type AgreementTerms struct {
	AgreedAmount   decimal.Decimal `json:"agreed_amount"`   // monthly rent or purchase installment
	DurationMonths *int32          `json:"duration_months"` // required for RENT listings
	InterestRate   decimal.Decimal `json:"interest_rate"`   // percent
	Discount       decimal.Decimal `json:"discount"`
	Notes          string          `json:"notes"`
}

// Validate checks the terms against the listing they apply to.
func (t AgreementTerms) Validate(listing ListingType) error {
	if !t.AgreedAmount.IsPositive() {
		return Errorf(ErrInvalidTerms, "agreed amount must be greater than zero, got %s", t.AgreedAmount.String())
	}
	if t.InterestRate.IsNegative() || t.Discount.IsNegative() {
		return Errorf(ErrInvalidTerms, "interest rate and discount cannot be negative")
	}
	if err := CheckCents("agreed amount", t.AgreedAmount); err != nil {
		return err
	}
	if err := CheckCents("discount", t.Discount); err != nil {
		return err
	}
	if listing == ListingTypeRent && (t.DurationMonths == nil || *t.DurationMonths <= 0) {
		return Errorf(ErrInvalidTerms, "rental agreements require a positive duration")
	}
	if t.DurationMonths != nil && *t.DurationMonths < 0 {
		return Errorf(ErrInvalidTerms, "duration cannot be negative")
	}
	return nil
}

// RentalAgreement is one applicant's application to rent or purchase a
// property. Rows are never deleted.
type RentalAgreement struct {
	ID              int32           `json:"id"`
	PropertyID      int32           `json:"property_id"`
	ApplicantID     int32           `json:"applicant_id"`
	AgentID         int32           `json:"agent_id"`
	ListingType     ListingType     `json:"listing_type"`
	AgreedAmount    decimal.Decimal `json:"agreed_amount"`
	DurationMonths  *int32          `json:"duration_months,omitempty"`
	InterestRate    decimal.Decimal `json:"interest_rate"`
	Discount        decimal.Decimal `json:"discount"`
	Status          AgreementStatus `json:"status"`
	AppliedAt       time.Time       `json:"applied_at"`
	ApprovedAt      *time.Time      `json:"approved_at,omitempty"`
	CompletedAt     *time.Time      `json:"completed_at,omitempty"`
	CancelledAt     *time.Time      `json:"cancelled_at,omitempty"`
	RejectionReason string          `json:"rejection_reason"`
	AdminNotes      string          `json:"admin_notes"`
	Version         int32           `json:"version"`
	UpdatedOn       time.Time       `json:"updated_on"`
}

// IsManagedBy reports whether actor is the owning agent or an admin.
func (a *RentalAgreement) IsManagedBy(actor Actor) bool {
	return actor.IsAdmin() || actor.ID == a.AgentID
}

// ContractTotal is the full contracted amount: monthly amount times the
// duration for rentals, the agreed amount for purchases, less any discount.
func (a *RentalAgreement) ContractTotal() decimal.Decimal {
	total := a.AgreedAmount
	if a.DurationMonths != nil && *a.DurationMonths > 0 {
		total = total.Mul(decimal.NewFromInt32(*a.DurationMonths))
	}
	total = total.Sub(a.Discount)
	if total.IsNegative() {
		return decimal.Zero
	}
	return total
}
