package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"property-ledger-backend/internal/domain"
	"property-ledger-backend/internal/logger"
	"property-ledger-backend/internal/repository"
)

type agreementService struct {
	agreements repository.RentalAgreementRepository
	properties repository.PropertyRepository
	workflow   WorkflowService
	notifier   Notifier
	now        func() time.Time
}

func NewAgreementService(
	agreements repository.RentalAgreementRepository,
	properties repository.PropertyRepository,
	workflow WorkflowService,
	notifier Notifier,
) AgreementService {
	return &agreementService{
		agreements: agreements,
		properties: properties,
		workflow:   workflow,
		notifier:   notifier,
		now:        time.Now,
	}
}

// Apply opens a PENDING application by actor. The property owner becomes the
// agent responsible for approving it.
func (s *agreementService) Apply(ctx context.Context, actor domain.Actor, propertyID int32, terms domain.AgreementTerms) (*domain.RentalAgreement, error) {
	logger.EnterMethod("agreementService.Apply", "propertyID", propertyID, "applicantID", actor.ID)

	property, err := s.properties.GetByID(ctx, propertyID)
	if err != nil {
		logger.ExitMethodWithError("agreementService.Apply", err)
		return nil, err
	}
	if property.OwnerID == actor.ID {
		err := domain.Errorf(domain.ErrInvalidTerms, "the owning agent cannot apply for property %d", propertyID)
		logger.ExitMethodWithError("agreementService.Apply", err)
		return nil, err
	}
	if err := terms.Validate(property.ListingType); err != nil {
		logger.ExitMethodWithError("agreementService.Apply", err)
		return nil, err
	}
	a := &domain.RentalAgreement{
		PropertyID:     propertyID,
		ApplicantID:    actor.ID,
		AgentID:        property.OwnerID,
		ListingType:    property.ListingType,
		AgreedAmount:   terms.AgreedAmount,
		DurationMonths: terms.DurationMonths,
		InterestRate:   terms.InterestRate,
		Discount:       terms.Discount,
		Status:         domain.AgreementStatusPending,
		AppliedAt:      s.now(),
		AdminNotes:     strings.TrimSpace(terms.Notes),
	}
	if err := s.agreements.Create(ctx, a); err != nil {
		logger.ExitMethodWithError("agreementService.Apply", err)
		return nil, err
	}
	logger.ExitMethod("agreementService.Apply", "agreementID", a.ID)

	if s.notifier != nil {
		event := Event{
			Type:       domain.NotificationAgreementApplied,
			Recipients: []int32{a.AgentID},
			Title:      "New application",
			Message:    fmt.Sprintf("A new application #%d was submitted for %s.", a.ID, propertyTitle(property)),
			Attributes: map[string]string{
				"agreement_id": fmt.Sprintf("%d", a.ID),
				"property_id":  fmt.Sprintf("%d", a.PropertyID),
			},
		}
		if err := s.notifier.Notify(ctx, event); err != nil {
			logger.WarnContext(ctx, "Notification delivery failed", "type", event.Type, "error", err)
		}
	}
	return a, nil
}

func (s *agreementService) Approve(ctx context.Context, actor domain.Actor, agreementID int32) (*domain.RentalAgreement, error) {
	return s.workflow.TransitionAgreement(ctx, actor, agreementID, domain.AgreementStatusApproved, "")
}

func (s *agreementService) Reject(ctx context.Context, actor domain.Actor, agreementID int32, reason string) (*domain.RentalAgreement, error) {
	return s.workflow.TransitionAgreement(ctx, actor, agreementID, domain.AgreementStatusRejected, reason)
}

func (s *agreementService) Complete(ctx context.Context, actor domain.Actor, agreementID int32) (*domain.RentalAgreement, error) {
	return s.workflow.TransitionAgreement(ctx, actor, agreementID, domain.AgreementStatusCompleted, "")
}

func (s *agreementService) Cancel(ctx context.Context, actor domain.Actor, agreementID int32, reason string) (*domain.RentalAgreement, error) {
	return s.workflow.TransitionAgreement(ctx, actor, agreementID, domain.AgreementStatusCancelled, reason)
}

func (s *agreementService) Get(ctx context.Context, actor domain.Actor, agreementID int32) (*domain.RentalAgreement, error) {
	a, err := s.agreements.GetByID(ctx, agreementID)
	if err != nil {
		return nil, err
	}
	if actor.ID != a.ApplicantID && !a.IsManagedBy(actor) {
		return nil, domain.Errorf(domain.ErrUnauthorized, "agreement %d is not visible to user %d", agreementID, actor.ID)
	}
	return a, nil
}

func (s *agreementService) ListMine(ctx context.Context, actor domain.Actor, status domain.AgreementStatus) ([]domain.RentalAgreement, error) {
	if status != "" && !status.Valid() {
		return nil, domain.Errorf(domain.ErrInvalidTerms, "unknown agreement status %q", status)
	}
	return s.agreements.ListByApplicant(ctx, actor.ID, status)
}

func (s *agreementService) ListManaged(ctx context.Context, actor domain.Actor, status domain.AgreementStatus) ([]domain.RentalAgreement, error) {
	if status != "" && !status.Valid() {
		return nil, domain.Errorf(domain.ErrInvalidTerms, "unknown agreement status %q", status)
	}
	if actor.Role == domain.RolePayer {
		return nil, domain.Errorf(domain.ErrUnauthorized, "only agents and admins manage agreements")
	}
	// Admins manage every listing, not only ones they own.
	if actor.Role == domain.RoleAdmin {
		return s.agreements.ListAll(ctx, status)
	}
	return s.agreements.ListByAgent(ctx, actor.ID, status)
}
