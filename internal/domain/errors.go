package domain

import (
	"errors"
	"fmt"
)

// Sentinel error kinds. Callers match with errors.Is; the wrapping *Error
// carries the human readable invariant that was violated.
var (
	ErrUnauthorized           = errors.New("unauthorized")
	ErrInvalidTransition      = errors.New("invalid transition")
	ErrInvalidAmount          = errors.New("invalid amount")
	ErrInvalidTerms           = errors.New("invalid terms")
	ErrDuplicateTransaction   = errors.New("duplicate transaction")
	ErrDuplicateInstallment   = errors.New("duplicate installment")
	ErrConcurrentModification = errors.New("concurrent modification")
	ErrNotFound               = errors.New("not found")
	ErrStorageUnavailable     = errors.New("storage unavailable")
)

// Error is a typed ledger failure: Kind is one of the sentinels above and
// Message names the rule that rejected the request.
type Error struct {
	Kind    error
	Message string
}

func (e *Error) Error() string {
	if e.Message == "" {
		return e.Kind.Error()
	}
	return fmt.Sprintf("%s: %s", e.Kind.Error(), e.Message)
}

func (e *Error) Unwrap() error { return e.Kind }

// Errorf builds an *Error of the given kind.
func Errorf(kind error, format string, args ...any) error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// KindOf returns the sentinel kind of err, or nil when err is not a ledger error.
func KindOf(err error) error {
	for _, kind := range []error{
		ErrUnauthorized,
		ErrInvalidTransition,
		ErrInvalidAmount,
		ErrInvalidTerms,
		ErrDuplicateTransaction,
		ErrDuplicateInstallment,
		ErrConcurrentModification,
		ErrNotFound,
		ErrStorageUnavailable,
	} {
		if errors.Is(err, kind) {
			return kind
		}
	}
	return nil
}
