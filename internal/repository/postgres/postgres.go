package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"property-ledger-backend/internal/logger"
	"property-ledger-backend/internal/repository"
)

type Store struct {
	db *sql.DB
	repository.LedgerEntryRepository
	repository.RentalAgreementRepository
	repository.PropertyRepository
	repository.UserRepository
	repository.NotificationRepository
}

type Option func(*retryPolicy)

// WithRetry overrides how often transient storage failures are retried.
func WithRetry(attempts int, backoff time.Duration) Option {
	return func(p *retryPolicy) {
		p.attempts = attempts
		p.backoff = backoff
	}
}

// WithRetryHook registers a callback invoked on every retried failure.
func WithRetryHook(hook func(op string)) Option {
	return func(p *retryPolicy) {
		p.onRetry = hook
	}
}

func NewStore(db *sql.DB, opts ...Option) *Store {
	policy := defaultRetry
	for _, opt := range opts {
		opt(&policy)
	}
	return &Store{
		db:                        db,
		LedgerEntryRepository:     &ledgerRepository{db: db, retry: policy},
		RentalAgreementRepository: &agreementRepository{db: db, retry: policy},
		PropertyRepository:        &propertyRepository{db: db, retry: policy},
		UserRepository:            &userRepository{db: db, retry: policy},
		NotificationRepository:    &notificationRepository{db: db, retry: policy},
	}
}

// Ping reports whether the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Migrate creates the ledger schema. Statements are idempotent.
func (s *Store) Migrate(ctx context.Context) error {
	for i, stmt := range Migrations() {
		logger.DatabaseCall("MIGRATE", fmt.Sprintf("statement %d", i+1))
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migration statement %d failed: %w", i+1, err)
		}
	}
	logger.Info("Schema migrated", "statements", len(Migrations()))
	return nil
}

// Migrations returns the schema statements in execution order. Money
// columns are NUMERIC so repeated summation never drifts.
func Migrations() []string {
	return []string{
		`CREATE TABLE IF NOT EXISTS users (
			id         SERIAL PRIMARY KEY,
			email      TEXT NOT NULL UNIQUE,
			name       TEXT NOT NULL,
			role       TEXT NOT NULL DEFAULT 'PAYER',
			created_on TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE TABLE IF NOT EXISTS properties (
			id           SERIAL PRIMARY KEY,
			owner_id     INTEGER NOT NULL REFERENCES users(id),
			title        TEXT NOT NULL DEFAULT '',
			price        NUMERIC(14,2) NOT NULL,
			listing_type TEXT NOT NULL CHECK (listing_type IN ('SALE', 'RENT'))
		)`,
		`CREATE TABLE IF NOT EXISTS rental_agreements (
			id               SERIAL PRIMARY KEY,
			property_id      INTEGER NOT NULL REFERENCES properties(id),
			applicant_id     INTEGER NOT NULL REFERENCES users(id),
			agent_id         INTEGER NOT NULL REFERENCES users(id),
			listing_type     TEXT NOT NULL,
			agreed_amount    NUMERIC(14,2) NOT NULL CHECK (agreed_amount > 0),
			duration_months  INTEGER,
			interest_rate    NUMERIC(7,4) NOT NULL DEFAULT 0,
			discount         NUMERIC(14,2) NOT NULL DEFAULT 0,
			status           TEXT NOT NULL,
			applied_at       TIMESTAMPTZ NOT NULL,
			approved_at      TIMESTAMPTZ,
			completed_at     TIMESTAMPTZ,
			cancelled_at     TIMESTAMPTZ,
			rejection_reason TEXT NOT NULL DEFAULT '',
			admin_notes      TEXT NOT NULL DEFAULT '',
			version          INTEGER NOT NULL DEFAULT 1,
			updated_on       TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_agreements_applicant ON rental_agreements(applicant_id, status)`,
		`CREATE INDEX IF NOT EXISTS idx_agreements_agent ON rental_agreements(agent_id, status)`,
		`CREATE TABLE IF NOT EXISTS ledger_entries (
			id                          SERIAL PRIMARY KEY,
			property_id                 INTEGER NOT NULL REFERENCES properties(id),
			payer_id                    INTEGER NOT NULL REFERENCES users(id),
			agreement_id                INTEGER REFERENCES rental_agreements(id),
			kind                        TEXT NOT NULL CHECK (kind IN ('PURCHASE', 'RENTAL')),
			amount                      NUMERIC(14,2) NOT NULL CHECK (amount > 0),
			property_price_snapshot     NUMERIC(14,2) NOT NULL DEFAULT 0,
			installment_amount_snapshot NUMERIC(14,2) NOT NULL DEFAULT 0,
			discount_snapshot           NUMERIC(14,2) NOT NULL DEFAULT 0,
			interest_rate_snapshot      NUMERIC(7,4) NOT NULL DEFAULT 0,
			amount_with_interest        NUMERIC(14,2) NOT NULL DEFAULT 0,
			transaction_id              TEXT NOT NULL,
			payment_method              TEXT NOT NULL DEFAULT 'OTHER',
			status                      TEXT NOT NULL CHECK (status IN ('PENDING', 'PROCESSING', 'COMPLETED', 'CANCELLED')),
			payment_date                TIMESTAMPTZ NOT NULL,
			due_date                    TIMESTAMPTZ,
			installment_number          INTEGER,
			admin_notes                 TEXT NOT NULL DEFAULT '',
			approved_by                 INTEGER REFERENCES users(id),
			approved_at                 TIMESTAMPTZ,
			version                     INTEGER NOT NULL DEFAULT 1,
			created_on                  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_on                  TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS ` + constraintPurchaseTransaction + `
			ON ledger_entries(property_id, transaction_id) WHERE kind = 'PURCHASE'`,
		`CREATE UNIQUE INDEX IF NOT EXISTS ` + constraintAgreementInstallment + `
			ON ledger_entries(agreement_id, installment_number) WHERE installment_number IS NOT NULL`,
		`CREATE UNIQUE INDEX IF NOT EXISTS ` + constraintAgreementTransaction + `
			ON ledger_entries(agreement_id, transaction_id) WHERE kind = 'RENTAL'`,
		`CREATE INDEX IF NOT EXISTS idx_ledger_entries_property_payer ON ledger_entries(property_id, payer_id, payment_date)`,
		`CREATE INDEX IF NOT EXISTS idx_ledger_entries_due ON ledger_entries(due_date) WHERE status IN ('PENDING', 'PROCESSING')`,
		`CREATE TABLE IF NOT EXISTS entry_transitions (
			id          SERIAL PRIMARY KEY,
			entry_id    INTEGER NOT NULL REFERENCES ledger_entries(id),
			from_status TEXT NOT NULL,
			to_status   TEXT NOT NULL,
			actor_id    INTEGER NOT NULL,
			note        TEXT NOT NULL DEFAULT '',
			created_on  TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_entry_transitions_entry ON entry_transitions(entry_id)`,
		`CREATE TABLE IF NOT EXISTS notifications (
			id         SERIAL PRIMARY KEY,
			user_id    INTEGER NOT NULL REFERENCES users(id),
			title      TEXT NOT NULL,
			message    TEXT NOT NULL,
			is_read    BOOLEAN NOT NULL DEFAULT FALSE,
			attributes JSONB,
			created_on DATE NOT NULL
		)`,
	}
}
