package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"property-ledger-backend/internal/domain"
	"property-ledger-backend/internal/logger"
	"property-ledger-backend/internal/repository"
)

const entryColumns = `id, property_id, payer_id, agreement_id, kind, amount,
	property_price_snapshot, installment_amount_snapshot, discount_snapshot, interest_rate_snapshot, amount_with_interest,
	transaction_id, payment_method, status, payment_date, due_date, installment_number,
	admin_notes, approved_by, approved_at, version, created_on, updated_on`

type ledgerRepository struct {
	db    *sql.DB
	retry retryPolicy
}

func NewLedgerRepository(db *sql.DB) repository.LedgerEntryRepository {
	return &ledgerRepository{db: db, retry: defaultRetry}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntry(row rowScanner) (*domain.LedgerEntry, error) {
	e := &domain.LedgerEntry{}
	err := row.Scan(
		&e.ID, &e.PropertyID, &e.PayerID, &e.AgreementID, &e.Kind, &e.Amount,
		&e.Snapshot.PropertyPrice, &e.Snapshot.InstallmentAmount, &e.Snapshot.Discount, &e.Snapshot.InterestRate, &e.Snapshot.AmountWithInterest,
		&e.TransactionID, &e.PaymentMethod, &e.Status, &e.PaymentDate, &e.DueDate, &e.InstallmentNumber,
		&e.AdminNotes, &e.ApprovedBy, &e.ApprovedAt, &e.Version, &e.CreatedOn, &e.UpdatedOn,
	)
	if err != nil {
		return nil, err
	}
	return e, nil
}

func (r *ledgerRepository) Create(ctx context.Context, e *domain.LedgerEntry) error {
	logger.EnterMethod("ledgerRepository.Create", "propertyID", e.PropertyID, "payerID", e.PayerID, "kind", e.Kind)

	if err := e.Validate(); err != nil {
		logger.ExitMethodWithError("ledgerRepository.Create", err)
		return err
	}

	now := time.Now()
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

	err := r.retry.do(ctx, "ledgerRepository.Create", func() error {
		tx, err := r.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		defer tx.Rollback()

		// Rental transaction ids are advisory-unique per agreement; installment
		// numbers and purchase transaction ids are enforced by unique indexes.
		if e.Kind == domain.EntryKindRental && e.TransactionID != "" {
			var exists bool
			err := tx.QueryRowContext(ctx,
				`SELECT EXISTS(SELECT 1 FROM ledger_entries WHERE agreement_id = $1 AND transaction_id = $2)`,
				*e.AgreementID, e.TransactionID).Scan(&exists)
			if err != nil {
				return err
			}
			if exists {
				return domain.Errorf(domain.ErrDuplicateTransaction, "transaction %q already recorded for agreement %d", e.TransactionID, *e.AgreementID)
			}
		}

		query := `INSERT INTO ledger_entries (
				property_id, payer_id, agreement_id, kind, amount,
				property_price_snapshot, installment_amount_snapshot, discount_snapshot, interest_rate_snapshot, amount_with_interest,
				transaction_id, payment_method, status, payment_date, due_date, installment_number,
				admin_notes, version, created_on, updated_on
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20)
			RETURNING id`
		logger.DatabaseCall("INSERT", "ledger_entries", "propertyID", e.PropertyID, "transactionID", e.TransactionID)
		err = tx.QueryRowContext(ctx, query,
			e.PropertyID, e.PayerID, e.AgreementID, e.Kind, e.Amount,
			e.Snapshot.PropertyPrice, e.Snapshot.InstallmentAmount, e.Snapshot.Discount, e.Snapshot.InterestRate, e.Snapshot.AmountWithInterest,
			e.TransactionID, e.PaymentMethod, e.Status, e.PaymentDate, e.DueDate, e.InstallmentNumber,
			e.AdminNotes, e.Version, now, now,
		).Scan(&e.ID)
		if err != nil {
			return mapUniqueViolation(err, e)
		}
		return tx.Commit()
	})
	logger.DatabaseResult("INSERT", 1, err, "entryID", e.ID)

	if err != nil {
		logger.ExitMethodWithError("ledgerRepository.Create", err, "propertyID", e.PropertyID)
		return err
	}
	e.CreatedOn = now
	e.UpdatedOn = now
	logger.ExitMethod("ledgerRepository.Create", "entryID", e.ID)
	return nil
}

func (r *ledgerRepository) GetByID(ctx context.Context, id int32) (*domain.LedgerEntry, error) {
	var entry *domain.LedgerEntry
	err := r.retry.do(ctx, "ledgerRepository.GetByID", func() error {
		var err error
		entry, err = scanEntry(r.db.QueryRowContext(ctx, `SELECT `+entryColumns+` FROM ledger_entries WHERE id = $1`, id))
		return err
	})
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.Errorf(domain.ErrNotFound, "ledger entry %d does not exist", id)
	}
	if err != nil {
		return nil, err
	}
	return entry, nil
}

func (r *ledgerRepository) FindByPropertyAndPayer(ctx context.Context, propertyID, payerID int32, statuses ...domain.EntryStatus) ([]domain.LedgerEntry, error) {
	query := `SELECT ` + entryColumns + ` FROM ledger_entries WHERE property_id = $1 AND payer_id = $2`
	args := []interface{}{propertyID, payerID}
	if len(statuses) > 0 {
		statusStrs := make([]string, len(statuses))
		for i, s := range statuses {
			statusStrs[i] = string(s)
		}
		query += " AND status = ANY($3)"
		args = append(args, pq.Array(statusStrs))
	}
	query += " ORDER BY payment_date ASC, id ASC"
	return r.list(ctx, "ledgerRepository.FindByPropertyAndPayer", query, args...)
}

func (r *ledgerRepository) ListByAgreement(ctx context.Context, agreementID int32) ([]domain.LedgerEntry, error) {
	query := `SELECT ` + entryColumns + ` FROM ledger_entries WHERE agreement_id = $1
	          ORDER BY installment_number ASC NULLS LAST, payment_date ASC, id ASC`
	return r.list(ctx, "ledgerRepository.ListByAgreement", query, agreementID)
}

func (r *ledgerRepository) ListOverdue(ctx context.Context, asOf time.Time) ([]domain.LedgerEntry, error) {
	query := `SELECT ` + entryColumns + ` FROM ledger_entries
	          WHERE kind = 'RENTAL' AND status IN ('PENDING', 'PROCESSING') AND due_date < $1
	          ORDER BY due_date ASC, id ASC`
	return r.list(ctx, "ledgerRepository.ListOverdue", query, asOf)
}

func (r *ledgerRepository) list(ctx context.Context, op, query string, args ...interface{}) ([]domain.LedgerEntry, error) {
	var entries []domain.LedgerEntry
	err := r.retry.do(ctx, op, func() error {
		entries = nil
		logger.DatabaseCall("SELECT", "ledger_entries", "operation", op)
		rows, err := r.db.QueryContext(ctx, query, args...)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			e, err := scanEntry(rows)
			if err != nil {
				return err
			}
			entries = append(entries, *e)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return entries, nil
}

func (r *ledgerRepository) UpdateStatus(ctx context.Context, id int32, mutate repository.EntryMutation) (*domain.LedgerEntry, error) {
	logger.EnterMethod("ledgerRepository.UpdateStatus", "entryID", id)

	var updated *domain.LedgerEntry
	err := r.retry.do(ctx, "ledgerRepository.UpdateStatus", func() error {
		tx, err := r.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		defer tx.Rollback()

		entry, err := scanEntry(tx.QueryRowContext(ctx, `SELECT `+entryColumns+` FROM ledger_entries WHERE id = $1 FOR UPDATE`, id))
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Errorf(domain.ErrNotFound, "ledger entry %d does not exist", id)
		}
		if err != nil {
			return err
		}

		version := entry.Version
		transition, err := mutate(entry)
		if err != nil {
			return err
		}

		now := time.Now()
		res, err := tx.ExecContext(ctx,
			`UPDATE ledger_entries SET status = $1, admin_notes = $2, approved_by = $3, approved_at = $4, version = version + 1, updated_on = $5
			 WHERE id = $6 AND version = $7`,
			entry.Status, entry.AdminNotes, entry.ApprovedBy, entry.ApprovedAt, now, id, version)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		logger.DatabaseResult("UPDATE", n, nil, "entryID", id)
		if n == 0 {
			return domain.Errorf(domain.ErrConcurrentModification, "ledger entry %d was modified concurrently", id)
		}

		if transition != nil {
			_, err = tx.ExecContext(ctx,
				`INSERT INTO entry_transitions (entry_id, from_status, to_status, actor_id, note, created_on) VALUES ($1, $2, $3, $4, $5, $6)`,
				id, transition.From, transition.To, transition.ActorID, transition.Note, now)
			if err != nil {
				return err
			}
		}
		if err := tx.Commit(); err != nil {
			return err
		}

		entry.Version = version + 1
		entry.UpdatedOn = now
		updated = entry
		return nil
	})
	if err != nil {
		logger.ExitMethodWithError("ledgerRepository.UpdateStatus", err, "entryID", id)
		return nil, err
	}
	logger.ExitMethod("ledgerRepository.UpdateStatus", "entryID", id, "status", updated.Status)
	return updated, nil
}

func (r *ledgerRepository) ListTransitions(ctx context.Context, entryID int32) ([]domain.EntryTransition, error) {
	var history []domain.EntryTransition
	err := r.retry.do(ctx, "ledgerRepository.ListTransitions", func() error {
		history = nil
		rows, err := r.db.QueryContext(ctx,
			`SELECT id, entry_id, from_status, to_status, actor_id, note, created_on
			 FROM entry_transitions WHERE entry_id = $1 ORDER BY created_on ASC, id ASC`, entryID)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var t domain.EntryTransition
			if err := rows.Scan(&t.ID, &t.EntryID, &t.From, &t.To, &t.ActorID, &t.Note, &t.At); err != nil {
				return fmt.Errorf("scan entry transition: %w", err)
			}
			history = append(history, t)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return history, nil
}
