package services

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/lib/pq"
)

// ErrorKind classifies ledger failures.
type ErrorKind string

const (
	KindNotFound          ErrorKind = "not_found"
	KindInsufficientFunds ErrorKind = "insufficient_funds"
	KindValidation        ErrorKind = "validation"
	KindConflict          ErrorKind = "conflict"
	KindStore             ErrorKind = "store"
)

// LedgerError is returned by every ledger and history operation.
type LedgerError struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *LedgerError) Error() string {
	if e.Err != nil && e.Kind == KindStore {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *LedgerError) Unwrap() error {
	return e.Err
}

// Is matches any LedgerError of the same kind, so callers can write
// errors.Is(err, services.ErrInsufficientFunds).
func (e *LedgerError) Is(target error) bool {
	t, ok := target.(*LedgerError)
	return ok && t.Kind == e.Kind
}

var (
	ErrNotFound          = &LedgerError{Kind: KindNotFound, Message: "not found"}
	ErrInsufficientFunds = &LedgerError{Kind: KindInsufficientFunds, Message: "insufficient balance"}
	ErrValidation        = &LedgerError{Kind: KindValidation, Message: "validation failed"}
	ErrConflict          = &LedgerError{Kind: KindConflict, Message: "concurrent update conflict"}
	ErrStore             = &LedgerError{Kind: KindStore, Message: "storage failure"}
)

func notFound(format string, args ...any) error {
	return &LedgerError{Kind: KindNotFound, Message: fmt.Sprintf(format, args...)}
}

func insufficientFunds(format string, args ...any) error {
	return &LedgerError{Kind: KindInsufficientFunds, Message: fmt.Sprintf(format, args...)}
}

func validationError(format string, args ...any) error {
	return &LedgerError{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

// Postgres error codes that mean the unit of work lost a race and may be
// retried by the caller.
var conflictCodes = map[pq.ErrorCode]bool{
	"40001": true, // serialization_failure
	"40P01": true, // deadlock_detected
	"55P03": true, // lock_not_available
}

// storeError wraps a storage failure. LedgerErrors pass through unchanged so
// business-rule failures raised inside a unit of work keep their kind.
func storeError(op string, err error) error {
	if err == nil {
		return nil
	}

	var ledgerErr *LedgerError
	if errors.As(err, &ledgerErr) {
		return err
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		if conflictCodes[pqErr.Code] {
			return &LedgerError{Kind: KindConflict, Message: op + ": concurrent update conflict, retry later", Err: err}
		}
		if pqErr.Code.Name() == "check_violation" {
			return &LedgerError{Kind: KindInsufficientFunds, Message: op + ": balance cannot become negative", Err: err}
		}
		if pqErr.Code.Name() == "numeric_value_out_of_range" {
			return &LedgerError{Kind: KindValidation, Message: op + ": balance would exceed the maximum", Err: err}
		}
	}

	return &LedgerError{Kind: KindStore, Message: op, Err: err}
}

// KindOf classifies any error returned by the ledger. Anything that is not a
// LedgerError is a store failure.
func KindOf(err error) ErrorKind {
	var ledgerErr *LedgerError
	if errors.As(err, &ledgerErr) {
		return ledgerErr.Kind
	}
	return KindStore
}

// HTTPStatus maps an error kind to a response status.
func HTTPStatus(kind ErrorKind) int {
	switch kind {
	case KindNotFound:
		return http.StatusNotFound
	case KindInsufficientFunds:
		return http.StatusUnprocessableEntity
	case KindValidation:
		return http.StatusBadRequest
	case KindConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// SendLedgerError writes err as a JSON error response. Storage failures are
// not echoed to the client.
func SendLedgerError(w http.ResponseWriter, err error) {
	kind := KindOf(err)
	message := err.Error()
	if kind == KindStore {
		message = "An Internal Error Occurred"
	}
	SendErrorResponse(w, message, HTTPStatus(kind), nil)
}
