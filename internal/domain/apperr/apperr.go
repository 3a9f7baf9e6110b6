// Package apperr defines the error taxonomy shared by the ledger services.
//
// Each kind is a sentinel matched with errors.Is. Services wrap a kind in an
// *Error to attach a user-facing message and, where there is one, the
// underlying cause:
//
//	return apperr.New(apperr.ErrOverpayment, "repayment exceeds balance due")
//
// Persistence and transport faults are not wrapped in a kind; callers see
// them as-is and treat them as retryable infrastructure failures.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrValidation covers bad input shape or range, detected before any mutation.
	ErrValidation = errors.New("validation failed")
	// ErrInvalidTerms is a validation failure on loan principal, tenure or rate.
	ErrInvalidTerms = fmt.Errorf("%w: invalid loan terms", ErrValidation)
	// ErrInvalidAmount is a validation failure on a monetary amount.
	ErrInvalidAmount = fmt.Errorf("%w: invalid amount", ErrValidation)

	ErrNotMember           = errors.New("membership cannot accrue contributions or loans")
	ErrInsufficientSavings = errors.New("insufficient confirmed savings")
	ErrIllegalTransition   = errors.New("illegal state transition")
	ErrOverpayment         = errors.New("repayment exceeds balance due")

	// ErrUnknownPayer means reconciliation found no membership for the payer.
	// The payment event is still recorded; see IsNonFatal.
	ErrUnknownPayer = errors.New("unknown payer")

	// ErrConflict reports a lost compare-and-set race. The caller may retry.
	ErrConflict = errors.New("concurrent modification")

	ErrNotFound  = errors.New("not found")
	ErrForbidden = errors.New("forbidden")
)

// Error is a classified failure with a message safe to show to users.
type Error struct {
	Kind  error
	Msg   string
	Cause error
}

// New returns an *Error of the given kind.
func New(kind error, msg string) *Error {
	return &Error{Kind: kind, Msg: msg}
}

// Newf is New with a formatted message.
func Newf(kind error, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// Wrap classifies cause under kind.
func Wrap(kind error, msg string, cause error) *Error {
	return &Error{Kind: kind, Msg: msg, Cause: cause}
}

func (e *Error) Error() string {
	switch {
	case e.Msg == "":
		return e.Kind.Error()
	case e.Cause != nil:
		return e.Msg + ": " + e.Cause.Error()
	default:
		return e.Msg
	}
}

// Unwrap exposes both the kind and the cause to errors.Is and errors.As.
func (e *Error) Unwrap() []error {
	if e.Cause == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Cause}
}

// Message returns the user-facing message of the first *Error in err's chain,
// falling back to err.Error().
func Message(err error) string {
	var ae *Error
	if errors.As(err, &ae) && ae.Msg != "" {
		return ae.Msg
	}
	if err == nil {
		return ""
	}
	return err.Error()
}

// IsRetryable reports whether the operation may succeed if repeated as-is.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrConflict)
}

// IsNonFatal reports errors that callers record but do not propagate.
func IsNonFatal(err error) bool {
	return errors.Is(err, ErrUnknownPayer)
}

// IsBusiness reports whether err belongs to the taxonomy, as opposed to an
// infrastructure fault.
func IsBusiness(err error) bool {
	for _, k := range kinds {
		if errors.Is(err, k) {
			return true
		}
	}
	return false
}

var kinds = []error{
	ErrValidation, ErrNotMember, ErrInsufficientSavings, ErrIllegalTransition,
	ErrOverpayment, ErrUnknownPayer, ErrConflict, ErrNotFound, ErrForbidden,
}

// HTTPStatus maps an error to the status code a transport should return.
func HTTPStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrUnknownPayer):
		return http.StatusNotFound
	case errors.Is(err, ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, ErrConflict), errors.Is(err, ErrIllegalTransition):
		return http.StatusConflict
	case errors.Is(err, ErrNotMember), errors.Is(err, ErrInsufficientSavings), errors.Is(err, ErrOverpayment):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}
