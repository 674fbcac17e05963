package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"property-ledger-backend/internal/domain"
	"property-ledger-backend/internal/logger"
	"property-ledger-backend/internal/repository"
)

const agreementColumns = `id, property_id, applicant_id, agent_id, listing_type, agreed_amount, duration_months,
	interest_rate, discount, status, applied_at, approved_at, completed_at, cancelled_at,
	rejection_reason, admin_notes, version, updated_on`

type agreementRepository struct {
	db    *sql.DB
	retry retryPolicy
}

func NewRentalAgreementRepository(db *sql.DB) repository.RentalAgreementRepository {
	return &agreementRepository{db: db, retry: defaultRetry}
}

func scanAgreement(row rowScanner) (*domain.RentalAgreement, error) {
	a := &domain.RentalAgreement{}
	err := row.Scan(&a.ID, &a.PropertyID, &a.ApplicantID, &a.AgentID, &a.ListingType, &a.AgreedAmount, &a.DurationMonths,
		&a.InterestRate, &a.Discount, &a.Status, &a.AppliedAt, &a.ApprovedAt, &a.CompletedAt, &a.CancelledAt,
		&a.RejectionReason, &a.AdminNotes, &a.Version, &a.UpdatedOn)
	if err != nil {
		return nil, err
	}
	return a, nil
}

func (r *agreementRepository) Create(ctx context.Context, a *domain.RentalAgreement) error {
	logger.EnterMethod("agreementRepository.Create", "propertyID", a.PropertyID, "applicantID", a.ApplicantID)

	now := time.Now()
	if a.AppliedAt.IsZero() {
		a.AppliedAt = now
	}
	a.Status = domain.AgreementStatusPending
	a.Version = 1

	query := `INSERT INTO rental_agreements (property_id, applicant_id, agent_id, listing_type, agreed_amount, duration_months,
	              interest_rate, discount, status, applied_at, admin_notes, version, updated_on)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13) RETURNING id`
	err := r.retry.do(ctx, "agreementRepository.Create", func() error {
		logger.DatabaseCall("INSERT", "rental_agreements", "propertyID", a.PropertyID)
		return r.db.QueryRowContext(ctx, query, a.PropertyID, a.ApplicantID, a.AgentID, a.ListingType, a.AgreedAmount, a.DurationMonths,
			a.InterestRate, a.Discount, a.Status, a.AppliedAt, a.AdminNotes, a.Version, now).Scan(&a.ID)
	})
	if err != nil {
		logger.ExitMethodWithError("agreementRepository.Create", err, "propertyID", a.PropertyID)
		return err
	}
	a.UpdatedOn = now
	logger.ExitMethod("agreementRepository.Create", "agreementID", a.ID)
	return nil
}

func (r *agreementRepository) GetByID(ctx context.Context, id int32) (*domain.RentalAgreement, error) {
	var a *domain.RentalAgreement
	err := r.retry.do(ctx, "agreementRepository.GetByID", func() error {
		var err error
		a, err = scanAgreement(r.db.QueryRowContext(ctx, `SELECT `+agreementColumns+` FROM rental_agreements WHERE id = $1`, id))
		return err
	})
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.Errorf(domain.ErrNotFound, "rental agreement %d does not exist", id)
	}
	if err != nil {
		return nil, err
	}
	return a, nil
}

func (r *agreementRepository) ListByApplicant(ctx context.Context, applicantID int32, status domain.AgreementStatus) ([]domain.RentalAgreement, error) {
	return r.list(ctx, "applicant_id", applicantID, status)
}

func (r *agreementRepository) ListByAgent(ctx context.Context, agentID int32, status domain.AgreementStatus) ([]domain.RentalAgreement, error) {
	return r.list(ctx, "agent_id", agentID, status)
}

func (r *agreementRepository) ListAll(ctx context.Context, status domain.AgreementStatus) ([]domain.RentalAgreement, error) {
	return r.list(ctx, "", 0, status)
}

// list filters on one of the two fixed owner columns, or on none when
// column is empty.
func (r *agreementRepository) list(ctx context.Context, column string, userID int32, status domain.AgreementStatus) ([]domain.RentalAgreement, error) {
	var conds []string
	var args []interface{}
	if column != "" {
		args = append(args, userID)
		conds = append(conds, fmt.Sprintf("%s = $%d", column, len(args)))
	}
	if status != "" {
		args = append(args, status)
		conds = append(conds, fmt.Sprintf("status = $%d", len(args)))
	}
	query := `SELECT ` + agreementColumns + ` FROM rental_agreements`
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY applied_at DESC, id DESC"

	var agreements []domain.RentalAgreement
	err := r.retry.do(ctx, "agreementRepository.list", func() error {
		agreements = nil
		rows, err := r.db.QueryContext(ctx, query, args...)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			a, err := scanAgreement(rows)
			if err != nil {
				return err
			}
			agreements = append(agreements, *a)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return agreements, nil
}

func (r *agreementRepository) UpdateStatus(ctx context.Context, id int32, mutate repository.AgreementMutation) (*domain.RentalAgreement, error) {
	logger.EnterMethod("agreementRepository.UpdateStatus", "agreementID", id)

	var updated *domain.RentalAgreement
	err := r.retry.do(ctx, "agreementRepository.UpdateStatus", func() error {
		tx, err := r.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		defer tx.Rollback()

		a, err := scanAgreement(tx.QueryRowContext(ctx, `SELECT `+agreementColumns+` FROM rental_agreements WHERE id = $1 FOR UPDATE`, id))
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Errorf(domain.ErrNotFound, "rental agreement %d does not exist", id)
		}
		if err != nil {
			return err
		}

		version := a.Version
		if err := mutate(a); err != nil {
			return err
		}

		now := time.Now()
		res, err := tx.ExecContext(ctx,
			`UPDATE rental_agreements SET status = $1, approved_at = $2, completed_at = $3, cancelled_at = $4,
			     rejection_reason = $5, admin_notes = $6, version = version + 1, updated_on = $7
			 WHERE id = $8 AND version = $9`,
			a.Status, a.ApprovedAt, a.CompletedAt, a.CancelledAt, a.RejectionReason, a.AdminNotes, now, id, version)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return domain.Errorf(domain.ErrConcurrentModification, "rental agreement %d was modified concurrently", id)
		}
		if err := tx.Commit(); err != nil {
			return err
		}

		a.Version = version + 1
		a.UpdatedOn = now
		updated = a
		return nil
	})
	if err != nil {
		logger.ExitMethodWithError("agreementRepository.UpdateStatus", err, "agreementID", id)
		return nil, err
	}
	logger.ExitMethod("agreementRepository.UpdateStatus", "agreementID", id, "status", updated.Status)
	return updated, nil
}
