// Package memory is an in-process implementation of the repository
// interfaces with the same uniqueness, locking and ordering rules as the
// postgres store. It backs tests and the ledgerctl dry-run mode.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"property-ledger-backend/internal/domain"
	"property-ledger-backend/internal/repository"
)

// Store holds every table behind a single mutex, which serializes
// mutations the way row locks do in postgres.
type Store struct {
	mu sync.Mutex

	entries     map[int32]*domain.LedgerEntry
	transitions map[int32][]domain.EntryTransition
	agreements  map[int32]*domain.RentalAgreement
	properties  map[int32]*domain.Property
	users       map[int32]*domain.User
	notes       []domain.Notification

	nextEntryID      int32
	nextTransitionID int32
	nextAgreementID  int32
	nextNoteID       int32

	Ledger        *LedgerRepository
	Agreements    *AgreementRepository
	Properties    *PropertyRepository
	Users         *UserRepository
	Notifications *NotificationRepository
}

func NewStore() *Store {
	s := &Store{
		entries:     make(map[int32]*domain.LedgerEntry),
		transitions: make(map[int32][]domain.EntryTransition),
		agreements:  make(map[int32]*domain.RentalAgreement),
		properties:  make(map[int32]*domain.Property),
		users:       make(map[int32]*domain.User),
	}
	s.Ledger = &LedgerRepository{s: s}
	s.Agreements = &AgreementRepository{s: s}
	s.Properties = &PropertyRepository{s: s}
	s.Users = &UserRepository{s: s}
	s.Notifications = &NotificationRepository{s: s}
	return s
}

// PutProperty seeds or replaces reference listing data.
func (s *Store) PutProperty(p domain.Property) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.properties[p.ID] = &p
}

// PutUser seeds or replaces reference user data.
func (s *Store) PutUser(u domain.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[u.ID] = &u
}

type LedgerRepository struct{ s *Store }

var _ repository.LedgerEntryRepository = (*LedgerRepository)(nil)

func (r *LedgerRepository) Create(ctx context.Context, e *domain.LedgerEntry) error {
	if err := e.Validate(); err != nil {
		return err
	}
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.entries {
		switch {
		case e.Kind == domain.EntryKindPurchase && existing.Kind == domain.EntryKindPurchase &&
			existing.PropertyID == e.PropertyID && existing.TransactionID == e.TransactionID:
			return domain.Errorf(domain.ErrDuplicateTransaction, "transaction %q already recorded for property %d", e.TransactionID, e.PropertyID)
		case e.Kind == domain.EntryKindRental && existing.AgreementID != nil && *existing.AgreementID == *e.AgreementID:
			if e.InstallmentNumber != nil && existing.InstallmentNumber != nil && *existing.InstallmentNumber == *e.InstallmentNumber {
				return domain.Errorf(domain.ErrDuplicateInstallment, "installment %d already recorded for agreement %d", *e.InstallmentNumber, *e.AgreementID)
			}
			if e.TransactionID != "" && existing.TransactionID == e.TransactionID {
				return domain.Errorf(domain.ErrDuplicateTransaction, "transaction %q already recorded for agreement %d", e.TransactionID, *e.AgreementID)
			}
		}
	}

	now := time.Now()
	s.nextEntryID++
	e.ID = s.nextEntryID
	if e.PaymentDate.IsZero() {
		e.PaymentDate = now
	}
	if e.PaymentMethod == "" {
		e.PaymentMethod = domain.PaymentMethodOther
	}
	e.Status = domain.EntryStatusPending
	e.Version = 1
	e.ApprovedBy = nil
	e.ApprovedAt = nil
	e.CreatedOn = now
	e.UpdatedOn = now

	stored := cloneEntry(e)
	s.entries[e.ID] = stored
	return nil
}

func (r *LedgerRepository) GetByID(ctx context.Context, id int32) (*domain.LedgerEntry, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[id]
	if !ok {
		return nil, domain.Errorf(domain.ErrNotFound, "ledger entry %d does not exist", id)
	}
	return cloneEntry(e), nil
}

func (r *LedgerRepository) FindByPropertyAndPayer(ctx context.Context, propertyID, payerID int32, statuses ...domain.EntryStatus) ([]domain.LedgerEntry, error) {
	return r.filter(func(e *domain.LedgerEntry) bool {
		if e.PropertyID != propertyID || e.PayerID != payerID {
			return false
		}
		if len(statuses) == 0 {
			return true
		}
		for _, st := range statuses {
			if e.Status == st {
				return true
			}
		}
		return false
	}, func(a, b *domain.LedgerEntry) bool {
		if !a.PaymentDate.Equal(b.PaymentDate) {
			return a.PaymentDate.Before(b.PaymentDate)
		}
		return a.ID < b.ID
	}), nil
}

func (r *LedgerRepository) ListByAgreement(ctx context.Context, agreementID int32) ([]domain.LedgerEntry, error) {
	return r.filter(func(e *domain.LedgerEntry) bool {
		return e.AgreementID != nil && *e.AgreementID == agreementID
	}, func(a, b *domain.LedgerEntry) bool {
		switch {
		case a.InstallmentNumber != nil && b.InstallmentNumber != nil && *a.InstallmentNumber != *b.InstallmentNumber:
			return *a.InstallmentNumber < *b.InstallmentNumber
		case a.InstallmentNumber != nil && b.InstallmentNumber == nil:
			return true
		case a.InstallmentNumber == nil && b.InstallmentNumber != nil:
			return false
		}
		if !a.PaymentDate.Equal(b.PaymentDate) {
			return a.PaymentDate.Before(b.PaymentDate)
		}
		return a.ID < b.ID
	}), nil
}

func (r *LedgerRepository) ListOverdue(ctx context.Context, asOf time.Time) ([]domain.LedgerEntry, error) {
	return r.filter(func(e *domain.LedgerEntry) bool {
		return e.Kind == domain.EntryKindRental && !e.Status.IsTerminal() && e.DueDate != nil && e.DueDate.Before(asOf)
	}, func(a, b *domain.LedgerEntry) bool {
		if !a.DueDate.Equal(*b.DueDate) {
			return a.DueDate.Before(*b.DueDate)
		}
		return a.ID < b.ID
	}), nil
}

func (r *LedgerRepository) filter(keep func(*domain.LedgerEntry) bool, less func(a, b *domain.LedgerEntry) bool) []domain.LedgerEntry {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	var matched []*domain.LedgerEntry
	for _, e := range s.entries {
		if keep(e) {
			matched = append(matched, e)
		}
	}
	sort.Slice(matched, func(i, j int) bool { return less(matched[i], matched[j]) })
	out := make([]domain.LedgerEntry, 0, len(matched))
	for _, e := range matched {
		out = append(out, *cloneEntry(e))
	}
	return out
}

func (r *LedgerRepository) UpdateStatus(ctx context.Context, id int32, mutate repository.EntryMutation) (*domain.LedgerEntry, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.entries[id]
	if !ok {
		return nil, domain.Errorf(domain.ErrNotFound, "ledger entry %d does not exist", id)
	}
	working := cloneEntry(stored)
	transition, err := mutate(working)
	if err != nil {
		return nil, err
	}
	if working.Version != stored.Version {
		return nil, domain.Errorf(domain.ErrConcurrentModification, "ledger entry %d was modified concurrently", id)
	}

	now := time.Now()
	// Only the mutable columns are copied back.
	stored.Status = working.Status
	stored.AdminNotes = working.AdminNotes
	stored.ApprovedBy = working.ApprovedBy
	stored.ApprovedAt = working.ApprovedAt
	stored.Version++
	stored.UpdatedOn = now

	if transition != nil {
		s.nextTransitionID++
		t := *transition
		t.ID = s.nextTransitionID
		t.EntryID = id
		t.At = now
		s.transitions[id] = append(s.transitions[id], t)
	}
	return cloneEntry(stored), nil
}

func (r *LedgerRepository) ListTransitions(ctx context.Context, entryID int32) ([]domain.EntryTransition, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	history := make([]domain.EntryTransition, len(s.transitions[entryID]))
	copy(history, s.transitions[entryID])
	return history, nil
}

type AgreementRepository struct{ s *Store }

var _ repository.RentalAgreementRepository = (*AgreementRepository)(nil)

func (r *AgreementRepository) Create(ctx context.Context, a *domain.RentalAgreement) error {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	s.nextAgreementID++
	a.ID = s.nextAgreementID
	if a.AppliedAt.IsZero() {
		a.AppliedAt = now
	}
	a.Status = domain.AgreementStatusPending
	a.Version = 1
	a.UpdatedOn = now
	s.agreements[a.ID] = cloneAgreement(a)
	return nil
}

func (r *AgreementRepository) GetByID(ctx context.Context, id int32) (*domain.RentalAgreement, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.agreements[id]
	if !ok {
		return nil, domain.Errorf(domain.ErrNotFound, "rental agreement %d does not exist", id)
	}
	return cloneAgreement(a), nil
}

func (r *AgreementRepository) ListByApplicant(ctx context.Context, applicantID int32, status domain.AgreementStatus) ([]domain.RentalAgreement, error) {
	return r.list(func(a *domain.RentalAgreement) bool {
		return a.ApplicantID == applicantID && (status == "" || a.Status == status)
	}), nil
}

func (r *AgreementRepository) ListByAgent(ctx context.Context, agentID int32, status domain.AgreementStatus) ([]domain.RentalAgreement, error) {
	return r.list(func(a *domain.RentalAgreement) bool {
		return a.AgentID == agentID && (status == "" || a.Status == status)
	}), nil
}

func (r *AgreementRepository) ListAll(ctx context.Context, status domain.AgreementStatus) ([]domain.RentalAgreement, error) {
	return r.list(func(a *domain.RentalAgreement) bool {
		return status == "" || a.Status == status
	}), nil
}

func (r *AgreementRepository) list(keep func(*domain.RentalAgreement) bool) []domain.RentalAgreement {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.RentalAgreement
	for _, a := range s.agreements {
		if keep(a) {
			out = append(out, *cloneAgreement(a))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].AppliedAt.Equal(out[j].AppliedAt) {
			return out[i].AppliedAt.After(out[j].AppliedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out
}

func (r *AgreementRepository) UpdateStatus(ctx context.Context, id int32, mutate repository.AgreementMutation) (*domain.RentalAgreement, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.agreements[id]
	if !ok {
		return nil, domain.Errorf(domain.ErrNotFound, "rental agreement %d does not exist", id)
	}
	working := cloneAgreement(stored)
	if err := mutate(working); err != nil {
		return nil, err
	}
	stored.Status = working.Status
	stored.ApprovedAt = working.ApprovedAt
	stored.CompletedAt = working.CompletedAt
	stored.CancelledAt = working.CancelledAt
	stored.RejectionReason = working.RejectionReason
	stored.AdminNotes = working.AdminNotes
	stored.Version++
	stored.UpdatedOn = time.Now()
	return cloneAgreement(stored), nil
}

type PropertyRepository struct{ s *Store }

func (r *PropertyRepository) GetByID(ctx context.Context, id int32) (*domain.Property, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p, ok := r.s.properties[id]
	if !ok {
		return nil, domain.Errorf(domain.ErrNotFound, "property %d does not exist", id)
	}
	cp := *p
	return &cp, nil
}

type UserRepository struct{ s *Store }

func (r *UserRepository) GetByID(ctx context.Context, id int32) (*domain.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	u, ok := r.s.users[id]
	if !ok {
		return nil, domain.Errorf(domain.ErrNotFound, "user %d does not exist", id)
	}
	cp := *u
	return &cp, nil
}

type NotificationRepository struct{ s *Store }

func (r *NotificationRepository) Create(ctx context.Context, n *domain.Notification) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.nextNoteID++
	n.ID = r.s.nextNoteID
	n.CreatedOn = time.Now().Format("2006-01-02")
	r.s.notes = append(r.s.notes, *n)
	return nil
}

func (r *NotificationRepository) List(ctx context.Context, userID int32, limit, offset int32) ([]domain.Notification, int32, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var mine []domain.Notification
	for i := len(r.s.notes) - 1; i >= 0; i-- {
		if r.s.notes[i].UserID == userID {
			mine = append(mine, r.s.notes[i])
		}
	}
	total := int32(len(mine))
	if offset >= total {
		return nil, total, nil
	}
	end := offset + limit
	if limit <= 0 || end > total {
		end = total
	}
	return mine[offset:end], total, nil
}

func (r *NotificationRepository) MarkAsRead(ctx context.Context, id, userID int32) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for i := range r.s.notes {
		if r.s.notes[i].ID == id && r.s.notes[i].UserID == userID {
			r.s.notes[i].IsRead = true
			return nil
		}
	}
	return domain.Errorf(domain.ErrNotFound, "notification %d not found for user %d", id, userID)
}

func cloneEntry(e *domain.LedgerEntry) *domain.LedgerEntry {
	cp := *e
	cp.AgreementID = clonePtr(e.AgreementID)
	cp.InstallmentNumber = clonePtr(e.InstallmentNumber)
	cp.ApprovedBy = clonePtr(e.ApprovedBy)
	cp.ApprovedAt = clonePtr(e.ApprovedAt)
	cp.DueDate = clonePtr(e.DueDate)
	return &cp
}

func cloneAgreement(a *domain.RentalAgreement) *domain.RentalAgreement {
	cp := *a
	cp.DurationMonths = clonePtr(a.DurationMonths)
	cp.ApprovedAt = clonePtr(a.ApprovedAt)
	cp.CompletedAt = clonePtr(a.CompletedAt)
	cp.CancelledAt = clonePtr(a.CancelledAt)
	return &cp
}

func clonePtr[T any](v *T) *T {
	if v == nil {
		return nil
	}
	cp := *v
	return &cp
}

// String is used in test failure output.
func (s *Store) String() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fmt.Sprintf("memory.Store{entries: %d, agreements: %d}", len(s.entries), len(s.agreements))
}
