package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"property-ledger-backend/internal/domain"
	"property-ledger-backend/internal/logger"
	"property-ledger-backend/internal/metrics"
	"property-ledger-backend/internal/repository"
	"property-ledger-backend/internal/utils"
)

type ledgerService struct {
	entries    repository.LedgerEntryRepository
	agreements repository.RentalAgreementRepository
	properties repository.PropertyRepository
	workflow   WorkflowService
	notifier   Notifier
	metrics    *metrics.Metrics
	now        func() time.Time
}

func NewLedgerService(
	entries repository.LedgerEntryRepository,
	agreements repository.RentalAgreementRepository,
	properties repository.PropertyRepository,
	workflow WorkflowService,
	notifier Notifier,
	m *metrics.Metrics,
) LedgerService {
	if m == nil {
		m = metrics.Nop()
	}
	return &ledgerService{
		entries:    entries,
		agreements: agreements,
		properties: properties,
		workflow:   workflow,
		notifier:   notifier,
		metrics:    m,
		now:        time.Now,
	}
}

// RecordPayment appends a PENDING entry. Prices, discount and interest are
// snapshotted from the listing and agreement as they are right now.
func (s *ledgerService) RecordPayment(ctx context.Context, actor domain.Actor, req RecordPaymentRequest) (*domain.LedgerEntry, error) {
	logger.EnterMethod("ledgerService.RecordPayment", "propertyID", req.PropertyID, "actorID", actor.ID)

	property, err := s.properties.GetByID(ctx, req.PropertyID)
	if err != nil {
		logger.ExitMethodWithError("ledgerService.RecordPayment", err)
		return nil, err
	}

	payerID := req.PayerID
	if payerID == 0 {
		payerID = actor.ID
	}
	if payerID != actor.ID && !property.IsManagedBy(actor) {
		err := domain.Errorf(domain.ErrUnauthorized, "only the owning agent or an admin can record a payment for another payer")
		logger.ExitMethodWithError("ledgerService.RecordPayment", err)
		return nil, err
	}

	paymentDate := req.PaymentDate
	if paymentDate.IsZero() {
		paymentDate = s.now()
	}
	entry := &domain.LedgerEntry{
		PropertyID:        req.PropertyID,
		PayerID:           payerID,
		Amount:            req.Amount,
		TransactionID:     strings.TrimSpace(req.TransactionID),
		PaymentMethod:     req.PaymentMethod,
		PaymentDate:       paymentDate,
		DueDate:           req.DueDate,
		InstallmentNumber: req.InstallmentNumber,
		AdminNotes:        strings.TrimSpace(req.Notes),
		Snapshot: domain.EntrySnapshot{
			PropertyPrice:      property.Price,
			AmountWithInterest: req.Amount,
		},
	}

	if req.AgreementID == nil {
		if property.ListingType == domain.ListingTypeRent {
			err := domain.Errorf(domain.ErrInvalidTerms, "payments on rent listing %d must reference an agreement", property.ID)
			return nil, s.rejectCreate(domain.EntryKindPurchase, err)
		}
		entry.Kind = domain.EntryKindPurchase
	} else {
		entry.Kind = domain.EntryKindRental
		entry.AgreementID = req.AgreementID
		if err := s.applyAgreement(ctx, entry, *req.AgreementID); err != nil {
			return nil, s.rejectCreate(entry.Kind, err)
		}
	}

	if err := entry.Validate(); err != nil {
		return nil, s.rejectCreate(entry.Kind, err)
	}
	if err := s.entries.Create(ctx, entry); err != nil {
		return nil, s.rejectCreate(entry.Kind, err)
	}

	s.metrics.EntriesCreated.WithLabelValues(string(entry.Kind), metrics.OutcomeOK).Inc()
	logger.ExitMethod("ledgerService.RecordPayment", "entryID", entry.ID, "kind", entry.Kind)

	if property.OwnerID != actor.ID && s.notifier != nil {
		event := Event{
			Type:       domain.NotificationPaymentRecorded,
			Recipients: []int32{property.OwnerID},
			Title:      "New payment recorded",
			Message:    fmt.Sprintf("A payment of %s was recorded for %s and awaits review.", entry.Amount.StringFixed(2), propertyTitle(property)),
			Attributes: map[string]string{
				"entry_id":    fmt.Sprintf("%d", entry.ID),
				"property_id": fmt.Sprintf("%d", entry.PropertyID),
			},
		}
		if err := s.notifier.Notify(ctx, event); err != nil {
			logger.WarnContext(ctx, "Notification delivery failed", "type", event.Type, "error", err)
		}
	}
	return entry, nil
}

// applyAgreement checks the agreement covers this property and payer, then
// snapshots its terms onto the entry.
func (s *ledgerService) applyAgreement(ctx context.Context, entry *domain.LedgerEntry, agreementID int32) error {
	agreement, err := s.agreements.GetByID(ctx, agreementID)
	if err != nil {
		return err
	}
	if agreement.PropertyID != entry.PropertyID {
		return domain.Errorf(domain.ErrInvalidTerms, "agreement %d is for property %d, not %d", agreement.ID, agreement.PropertyID, entry.PropertyID)
	}
	if agreement.ApplicantID != entry.PayerID {
		return domain.Errorf(domain.ErrInvalidTerms, "agreement %d belongs to another applicant", agreement.ID)
	}
	if agreement.Status != domain.AgreementStatusApproved && agreement.Status != domain.AgreementStatusPending {
		return domain.Errorf(domain.ErrInvalidTransition, "agreement %d is %s and accepts no payments", agreement.ID, strings.ToLower(string(agreement.Status)))
	}

	withInterest, err := utils.AmountWithInterest(entry.Amount, agreement.InterestRate)
	if err != nil {
		return err
	}
	entry.Snapshot.InstallmentAmount = agreement.AgreedAmount
	entry.Snapshot.Discount = agreement.Discount
	entry.Snapshot.InterestRate = agreement.InterestRate
	entry.Snapshot.AmountWithInterest = withInterest

	if entry.TransactionID == "" {
		entry.TransactionID = uuid.NewString()
	}
	if entry.DueDate == nil && entry.InstallmentNumber != nil {
		start := agreement.AppliedAt
		if agreement.ApprovedAt != nil {
			start = *agreement.ApprovedAt
		}
		due, err := utils.InstallmentDueDate(dateOf(start), *entry.InstallmentNumber)
		if err != nil {
			return domain.Errorf(domain.ErrInvalidTerms, "%v", err)
		}
		at := due.Time()
		entry.DueDate = &at
	}
	return nil
}

func (s *ledgerService) rejectCreate(kind domain.EntryKind, err error) error {
	s.metrics.EntriesCreated.WithLabelValues(string(kind), outcome(err)).Inc()
	logger.ExitMethodWithError("ledgerService.RecordPayment", err)
	return err
}

func (s *ledgerService) GetEntry(ctx context.Context, actor domain.Actor, entryID int32) (*domain.LedgerEntry, error) {
	entry, err := s.entries.GetByID(ctx, entryID)
	if err != nil {
		return nil, err
	}
	if err := s.authorizeRead(ctx, actor, entry.PropertyID, entry.PayerID); err != nil {
		return nil, err
	}
	return entry, nil
}

func (s *ledgerService) FindByPropertyAndPayer(ctx context.Context, actor domain.Actor, propertyID, payerID int32, statuses ...domain.EntryStatus) ([]domain.LedgerEntry, error) {
	for _, st := range statuses {
		if !st.Valid() {
			return nil, domain.Errorf(domain.ErrInvalidTerms, "unknown entry status %q", st)
		}
	}
	if err := s.authorizeRead(ctx, actor, propertyID, payerID); err != nil {
		return nil, err
	}
	return s.entries.FindByPropertyAndPayer(ctx, propertyID, payerID, statuses...)
}

func (s *ledgerService) ListAgreementEntries(ctx context.Context, actor domain.Actor, agreementID int32) ([]domain.LedgerEntry, error) {
	agreement, err := s.agreements.GetByID(ctx, agreementID)
	if err != nil {
		return nil, err
	}
	if actor.ID != agreement.ApplicantID && !agreement.IsManagedBy(actor) {
		return nil, domain.Errorf(domain.ErrUnauthorized, "agreement %d is not visible to user %d", agreementID, actor.ID)
	}
	return s.entries.ListByAgreement(ctx, agreementID)
}

func (s *ledgerService) EntryHistory(ctx context.Context, actor domain.Actor, entryID int32) ([]domain.EntryTransition, error) {
	if _, err := s.GetEntry(ctx, actor, entryID); err != nil {
		return nil, err
	}
	return s.entries.ListTransitions(ctx, entryID)
}

func (s *ledgerService) TransitionStatus(ctx context.Context, actor domain.Actor, entryID int32, to domain.EntryStatus, note string) (*domain.LedgerEntry, error) {
	return s.workflow.TransitionEntry(ctx, actor, entryID, to, note)
}

// authorizeRead allows the payer, the owning agent and admins.
func (s *ledgerService) authorizeRead(ctx context.Context, actor domain.Actor, propertyID, payerID int32) error {
	if actor.ID == payerID || actor.IsAdmin() {
		return nil
	}
	property, err := s.properties.GetByID(ctx, propertyID)
	if err != nil {
		return err
	}
	if !property.IsManagedBy(actor) {
		return domain.Errorf(domain.ErrUnauthorized, "payments of user %d on property %d are not visible to user %d", payerID, propertyID, actor.ID)
	}
	return nil
}

func dateOf(t time.Time) utils.Date {
	t = t.UTC()
	return utils.Date{Year: t.Year(), Month: int(t.Month()), Day: t.Day()}
}

