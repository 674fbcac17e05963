package postgres

import (
	"context"
	"database/sql/driver"
	"errors"
	"net"
	"strings"
	"time"

	"github.com/lib/pq"

	"property-ledger-backend/internal/domain"
	"property-ledger-backend/internal/logger"
)

const (
	pqUniqueViolation = "23505"

	constraintPurchaseTransaction  = "ledger_entries_purchase_txn_key"
	constraintAgreementInstallment = "ledger_entries_agreement_installment_key"
	constraintAgreementTransaction = "ledger_entries_agreement_txn_key"
)

type retryPolicy struct {
	attempts int
	backoff  time.Duration
	onRetry  func(op string)
}

var defaultRetry = retryPolicy{attempts: 3, backoff: 50 * time.Millisecond}

// do runs fn, retrying transient storage failures. Any other error is
// returned unchanged on the first attempt.
func (p retryPolicy) do(ctx context.Context, op string, fn func() error) error {
	attempts := p.attempts
	if attempts < 1 {
		attempts = 1
	}
	var err error
	for i := 1; i <= attempts; i++ {
		err = fn()
		if err == nil || !isTransient(err) {
			return err
		}
		logger.Warn("Transient storage failure", "operation", op, "attempt", i, "error", err)
		if p.onRetry != nil {
			p.onRetry(op)
		}
		if i == attempts {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(p.backoff * time.Duration(i)):
		}
	}
	return domain.Errorf(domain.ErrStorageUnavailable, "%s failed after %d attempts: %v", op, attempts, err)
}

func isTransient(err error) bool {
	if errors.Is(err, driver.ErrBadConn) {
		return true
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		code := string(pqErr.Code)
		return strings.HasPrefix(code, "08") || code == "57P01" || code == "40001" || code == "40P01"
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}

// mapUniqueViolation converts a unique index violation into the matching
// duplicate error. Other errors pass through.
func mapUniqueViolation(err error, entry *domain.LedgerEntry) error {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) || string(pqErr.Code) != pqUniqueViolation {
		return err
	}
	switch pqErr.Constraint {
	case constraintAgreementInstallment:
		return domain.Errorf(domain.ErrDuplicateInstallment, "installment %d already recorded for agreement %d", derefInt32(entry.InstallmentNumber), derefInt32(entry.AgreementID))
	case constraintPurchaseTransaction:
		return domain.Errorf(domain.ErrDuplicateTransaction, "transaction %q already recorded for property %d", entry.TransactionID, entry.PropertyID)
	case constraintAgreementTransaction:
		return domain.Errorf(domain.ErrDuplicateTransaction, "transaction %q already recorded for agreement %d", entry.TransactionID, derefInt32(entry.AgreementID))
	}
	return domain.Errorf(domain.ErrDuplicateTransaction, "duplicate ledger entry: %s", pqErr.Message)
}

func derefInt32(v *int32) int32 {
	if v == nil {
		return 0
	}
	return *v
}
