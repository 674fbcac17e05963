package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"property-ledger-backend/internal/domain"
	"property-ledger-backend/internal/logger"
	"property-ledger-backend/internal/metrics"
	"property-ledger-backend/internal/repository"
)

type workflowService struct {
	entries    repository.LedgerEntryRepository
	agreements repository.RentalAgreementRepository
	properties repository.PropertyRepository
	notifier   Notifier
	metrics    *metrics.Metrics
	now        func() time.Time
}

func NewWorkflowService(
	entries repository.LedgerEntryRepository,
	agreements repository.RentalAgreementRepository,
	properties repository.PropertyRepository,
	notifier Notifier,
	m *metrics.Metrics,
) WorkflowService {
	if m == nil {
		m = metrics.Nop()
	}
	return &workflowService{
		entries:    entries,
		agreements: agreements,
		properties: properties,
		notifier:   notifier,
		metrics:    m,
		now:        time.Now,
	}
}

var entryVerbs = map[domain.EntryStatus]string{
	domain.EntryStatusPending:    "reopen",
	domain.EntryStatusProcessing: "mark as processing",
	domain.EntryStatusCompleted:  "complete",
	domain.EntryStatusCancelled:  "cancel",
}

var agreementVerbs = map[domain.AgreementStatus]string{
	domain.AgreementStatusPending:   "reopen",
	domain.AgreementStatusApproved:  "approve",
	domain.AgreementStatusRejected:  "reject",
	domain.AgreementStatusCompleted: "complete",
	domain.AgreementStatusCancelled: "cancel",
}

// TransitionEntry moves an entry through its state machine. Authorization is
// checked before the transition table, and both run under the row lock so a
// rejected request never writes.
func (s *workflowService) TransitionEntry(ctx context.Context, actor domain.Actor, entryID int32, to domain.EntryStatus, note string) (*domain.LedgerEntry, error) {
	if !to.Valid() {
		return nil, domain.Errorf(domain.ErrInvalidTransition, "unknown entry status %q", to)
	}

	current, err := s.entries.GetByID(ctx, entryID)
	if err != nil {
		return nil, err
	}
	// The owning agent is reference data and never changes under the lock.
	property, err := s.properties.GetByID(ctx, current.PropertyID)
	if err != nil {
		return nil, err
	}

	var from domain.EntryStatus
	updated, err := s.entries.UpdateStatus(ctx, entryID, func(e *domain.LedgerEntry) (*domain.EntryTransition, error) {
		from = e.Status
		if err := authorizeEntry(actor, e, property, to); err != nil {
			return nil, err
		}
		if !e.Status.CanTransitionTo(to) {
			return nil, entryTransitionError(e.Status, to)
		}

		e.Status = to
		if note = strings.TrimSpace(note); note != "" {
			e.AdminNotes = appendNote(e.AdminNotes, note)
		}
		if to == domain.EntryStatusCompleted {
			at := s.now()
			approver := actor.ID
			e.ApprovedBy = &approver
			e.ApprovedAt = &at
		}
		return &domain.EntryTransition{From: from, To: to, ActorID: actor.ID, Note: note}, nil
	})
	if err != nil {
		s.metrics.EntryTransitions.WithLabelValues(string(from), string(to), outcome(err)).Inc()
		logger.WarnContext(ctx, "Entry transition rejected", "entryID", entryID, "actorID", actor.ID, "to", to, "error", err)
		return nil, err
	}
	s.metrics.EntryTransitions.WithLabelValues(string(from), string(to), metrics.OutcomeOK).Inc()
	logger.InfoContext(ctx, "Entry transitioned", "entryID", entryID, "actorID", actor.ID, "from", from, "to", to)

	s.notify(ctx, entryEvent(updated, property, from))
	return updated, nil
}

func (s *workflowService) MarkProcessing(ctx context.Context, actor domain.Actor, entryID int32, note string) (*domain.LedgerEntry, error) {
	return s.TransitionEntry(ctx, actor, entryID, domain.EntryStatusProcessing, note)
}

func (s *workflowService) Complete(ctx context.Context, actor domain.Actor, entryID int32, note string) (*domain.LedgerEntry, error) {
	return s.TransitionEntry(ctx, actor, entryID, domain.EntryStatusCompleted, note)
}

func (s *workflowService) CancelEntry(ctx context.Context, actor domain.Actor, entryID int32, note string) (*domain.LedgerEntry, error) {
	return s.TransitionEntry(ctx, actor, entryID, domain.EntryStatusCancelled, note)
}

// authorizeEntry: only the owning agent or an admin moves an entry forward;
// the payer may additionally cancel their own entry.
func authorizeEntry(actor domain.Actor, e *domain.LedgerEntry, p *domain.Property, to domain.EntryStatus) error {
	if p.IsManagedBy(actor) {
		return nil
	}
	if to == domain.EntryStatusCancelled && actor.ID == e.PayerID {
		return nil
	}
	if to == domain.EntryStatusCancelled {
		return domain.Errorf(domain.ErrUnauthorized, "only the payer, the owning agent or an admin can cancel entry %d", e.ID)
	}
	return domain.Errorf(domain.ErrUnauthorized, "only the owning agent or an admin can %s entry %d", entryVerbs[to], e.ID)
}

func entryTransitionError(from, to domain.EntryStatus) error {
	if from == to {
		return domain.Errorf(domain.ErrInvalidTransition, "entry is already %s", strings.ToLower(string(from)))
	}
	if from.IsTerminal() {
		return domain.Errorf(domain.ErrInvalidTransition, "entry already %s, cannot %s", strings.ToLower(string(from)), entryVerbs[to])
	}
	if to == domain.EntryStatusCompleted {
		return domain.Errorf(domain.ErrInvalidTransition, "entry is %s, cannot complete before it is processing", strings.ToLower(string(from)))
	}
	return domain.Errorf(domain.ErrInvalidTransition, "entry is %s, cannot %s", strings.ToLower(string(from)), entryVerbs[to])
}

// TransitionAgreement is the single writer of agreement status.
func (s *workflowService) TransitionAgreement(ctx context.Context, actor domain.Actor, agreementID int32, to domain.AgreementStatus, reason string) (*domain.RentalAgreement, error) {
	if !to.Valid() {
		return nil, domain.Errorf(domain.ErrInvalidTransition, "unknown agreement status %q", to)
	}

	var from domain.AgreementStatus
	updated, err := s.agreements.UpdateStatus(ctx, agreementID, func(a *domain.RentalAgreement) error {
		from = a.Status
		if err := authorizeAgreement(actor, a, to); err != nil {
			return err
		}
		if !a.Status.CanTransitionTo(to) {
			return agreementTransitionError(a.Status, to)
		}

		// Timestamps never precede the application.
		at := s.now()
		if at.Before(a.AppliedAt) {
			at = a.AppliedAt
		}
		a.Status = to
		reason = strings.TrimSpace(reason)
		switch to {
		case domain.AgreementStatusApproved:
			a.ApprovedAt = &at
		case domain.AgreementStatusCompleted:
			a.CompletedAt = &at
		case domain.AgreementStatusRejected:
			a.RejectionReason = reason
		case domain.AgreementStatusCancelled:
			a.CancelledAt = &at
			if reason != "" {
				a.AdminNotes = appendNote(a.AdminNotes, "cancelled: "+reason)
			}
		}
		return nil
	})
	if err != nil {
		s.metrics.AgreementChanges.WithLabelValues(string(to), outcome(err)).Inc()
		logger.WarnContext(ctx, "Agreement transition rejected", "agreementID", agreementID, "actorID", actor.ID, "to", to, "error", err)
		return nil, err
	}
	s.metrics.AgreementChanges.WithLabelValues(string(to), metrics.OutcomeOK).Inc()
	logger.InfoContext(ctx, "Agreement transitioned", "agreementID", agreementID, "actorID", actor.ID, "from", from, "to", to)

	s.notify(ctx, agreementEvent(updated, actor))
	return updated, nil
}

func authorizeAgreement(actor domain.Actor, a *domain.RentalAgreement, to domain.AgreementStatus) error {
	if a.IsManagedBy(actor) {
		return nil
	}
	if to == domain.AgreementStatusCancelled && actor.ID == a.ApplicantID {
		return nil
	}
	if to == domain.AgreementStatusCancelled {
		return domain.Errorf(domain.ErrUnauthorized, "only the applicant, the owning agent or an admin can cancel agreement %d", a.ID)
	}
	return domain.Errorf(domain.ErrUnauthorized, "only the owning agent or an admin can %s agreement %d", agreementVerbs[to], a.ID)
}

func agreementTransitionError(from, to domain.AgreementStatus) error {
	if from == to {
		return domain.Errorf(domain.ErrInvalidTransition, "agreement is already %s", strings.ToLower(string(from)))
	}
	if from.IsTerminal() {
		return domain.Errorf(domain.ErrInvalidTransition, "agreement already %s, cannot %s", strings.ToLower(string(from)), agreementVerbs[to])
	}
	return domain.Errorf(domain.ErrInvalidTransition, "agreement is %s, cannot %s", strings.ToLower(string(from)), agreementVerbs[to])
}

// notify runs after commit. Delivery failures are logged and never change
// the outcome of the transition.
func (s *workflowService) notify(ctx context.Context, event Event) {
	if s.notifier == nil || event.Type == "" {
		return
	}
	if err := s.notifier.Notify(ctx, event); err != nil {
		logger.WarnContext(ctx, "Notification delivery failed", "type", event.Type, "error", err)
	}
}

func entryEvent(e *domain.LedgerEntry, p *domain.Property, from domain.EntryStatus) Event {
	attrs := map[string]string{
		"entry_id":    fmt.Sprintf("%d", e.ID),
		"property_id": fmt.Sprintf("%d", e.PropertyID),
		"from":        string(from),
		"to":          string(e.Status),
	}
	amount := e.Amount.StringFixed(2)
	switch e.Status {
	case domain.EntryStatusProcessing:
		return Event{
			Type:       domain.NotificationPaymentProcessing,
			Recipients: []int32{e.PayerID},
			Title:      "Payment under review",
			Message:    fmt.Sprintf("Your payment of %s for %s is being reviewed.", amount, propertyTitle(p)),
			Attributes: attrs,
		}
	case domain.EntryStatusCompleted:
		return Event{
			Type:       domain.NotificationPaymentApproved,
			Recipients: []int32{e.PayerID},
			Title:      "Payment approved",
			Message:    fmt.Sprintf("Your payment of %s for %s has been approved.", amount, propertyTitle(p)),
			Attributes: attrs,
		}
	case domain.EntryStatusCancelled:
		return Event{
			Type:       domain.NotificationPaymentCancelled,
			Recipients: uniqueRecipients(e.PayerID, p.OwnerID),
			Title:      "Payment cancelled",
			Message:    fmt.Sprintf("The payment of %s for %s was cancelled.", amount, propertyTitle(p)),
			Attributes: attrs,
		}
	}
	return Event{}
}

func agreementEvent(a *domain.RentalAgreement, actor domain.Actor) Event {
	attrs := map[string]string{
		"agreement_id": fmt.Sprintf("%d", a.ID),
		"property_id":  fmt.Sprintf("%d", a.PropertyID),
		"status":       string(a.Status),
	}
	switch a.Status {
	case domain.AgreementStatusApproved:
		return Event{Type: domain.NotificationAgreementApproved, Recipients: []int32{a.ApplicantID}, Title: "Application approved",
			Message: fmt.Sprintf("Your application #%d has been approved.", a.ID), Attributes: attrs}
	case domain.AgreementStatusRejected:
		msg := fmt.Sprintf("Your application #%d was rejected.", a.ID)
		if a.RejectionReason != "" {
			msg += " Reason: " + a.RejectionReason
		}
		return Event{Type: domain.NotificationAgreementRejected, Recipients: []int32{a.ApplicantID}, Title: "Application rejected",
			Message: msg, Attributes: attrs}
	case domain.AgreementStatusCompleted:
		return Event{Type: domain.NotificationAgreementCompleted, Recipients: uniqueRecipients(a.ApplicantID, a.AgentID), Title: "Agreement completed",
			Message: fmt.Sprintf("Agreement #%d has been completed.", a.ID), Attributes: attrs}
	case domain.AgreementStatusCancelled:
		// Tell the other party.
		recipient := a.AgentID
		if actor.ID != a.ApplicantID {
			recipient = a.ApplicantID
		}
		return Event{Type: domain.NotificationAgreementCancelled, Recipients: []int32{recipient}, Title: "Agreement cancelled",
			Message: fmt.Sprintf("Agreement #%d has been cancelled.", a.ID), Attributes: attrs}
	}
	return Event{}
}

func outcome(err error) string {
	switch kind := domain.KindOf(err); {
	case kind == nil, kind == domain.ErrStorageUnavailable:
		return metrics.OutcomeError
	default:
		return metrics.OutcomeRejected
	}
}

func appendNote(existing, note string) string {
	if existing == "" {
		return note
	}
	return existing + "\n" + note
}

func propertyTitle(p *domain.Property) string {
	if p.Title != "" {
		return p.Title
	}
	return fmt.Sprintf("property #%d", p.ID)
}

func uniqueRecipients(ids ...int32) []int32 {
	seen := make(map[int32]bool, len(ids))
	out := make([]int32, 0, len(ids))
	for _, id := range ids {
		if id != 0 && !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}
