package domain

import (
	"errors"
	"fmt"
)

// Error kinds. Every named error below unwraps to exactly one of these.
var (
	ErrNotFound     = errors.New("not found")
	ErrForbidden    = errors.New("forbidden")
	ErrInvalidState = errors.New("invalid state")
	ErrConflict     = errors.New("conflict")
	ErrValidation   = errors.New("validation failed")
	ErrProvider     = errors.New("payment provider error")
	ErrInvariant    = errors.New("invariant violation")
)

// Error is a named failure with a stable machine-readable code.
type Error struct {
	Kind    error
	Code    string
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Kind
}

func newError(kind error, code, message string) *Error {
	return &Error{Kind: kind, Code: code, Message: message}
}

var (
	ErrOrderNotFound   = newError(ErrNotFound, "order_not_found", "order not found")
	ErrPaymentNotFound = newError(ErrNotFound, "payment_not_found", "payment not found")
	ErrNoPriorPayment  = newError(ErrNotFound, "no_prior_payment", "no previous payment found to retry")
	ErrGameNotFound    = newError(ErrNotFound, "game_not_found", "game not found")

	ErrOrderForbidden = newError(ErrForbidden, "forbidden", "order belongs to another user")

	ErrEmptyBasket     = newError(ErrValidation, "empty_basket", "basket is empty")
	ErrInvalidQuantity = newError(ErrValidation, "invalid_quantity", "quantity must be greater than zero")

	ErrAlreadyPaid         = newError(ErrInvalidState, "already_paid", "order already paid")
	ErrAlreadyCancelled    = newError(ErrInvalidState, "already_cancelled", "order already cancelled")
	ErrCannotCancelPaid    = newError(ErrInvalidState, "cannot_cancel_paid", "paid orders cannot be cancelled")
	ErrAlreadyConfirmed    = newError(ErrInvalidState, "already_confirmed", "payment already confirmed")
	ErrAlreadyFailed       = newError(ErrInvalidState, "already_failed", "payment already marked as failed")
	ErrCannotConfirmFailed = newError(ErrInvalidState, "cannot_confirm_failed", "failed payment cannot be confirmed")
	ErrRetryNotAllowed     = newError(ErrInvalidState, "retry_not_allowed", "only failed payments can be retried")
	ErrUnknownPaymentState = newError(ErrInvalidState, "unknown_payment_state", "payment is in an unrecognised state")

	ErrPaymentInProgress = newError(ErrConflict, "payment_in_progress", "payment already in progress for this order")
	ErrOrderConflict     = newError(ErrConflict, "order_conflict", "order was modified concurrently")

	ErrUnexpectedProviderState = newError(ErrInvariant, "unexpected_provider_state", "payment provider reported success for a failure request")
)

// ProviderFailure wraps a failed provider call so that both ErrProvider and
// the underlying cause (for example context.DeadlineExceeded) match errors.Is.
func ProviderFailure(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrProvider, op, err)
}

// Code returns the stable code of the first named error in err's chain.
func Code(err error) string {
	var named *Error
	if errors.As(err, &named) {
		return named.Code
	}
	switch {
	case errors.Is(err, ErrProvider):
		return "provider_error"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrForbidden):
		return "forbidden"
	case errors.Is(err, ErrValidation):
		return "validation_failed"
	case errors.Is(err, ErrConflict):
		return "conflict"
	case errors.Is(err, ErrInvalidState):
		return "invalid_state"
	case errors.Is(err, ErrInvariant):
		return "invariant_violation"
	}
	return "internal_error"
}
