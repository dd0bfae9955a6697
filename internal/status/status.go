package status

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound             = errors.New("not found")
	ErrInsufficientCapacity = errors.New("inventory: insufficient capacity")
	ErrInvalidPrice         = errors.New("ticket: price must be greater than zero")
	ErrNotListed            = errors.New("ticket: not listed for sale")
	ErrSelfTransfer         = errors.New("ticket: owner cannot buy own listing")
	ErrNotOwner             = errors.New("ticket: caller is not the owner")
	ErrNotOrganizer         = errors.New("event: caller is not the organizer")
	ErrListingChanged       = errors.New("ticket: listing changed after payment")
	ErrPaymentRejected      = errors.New("payment: rejected by wallet")
	ErrPaymentUnavailable   = errors.New("payment: wallet unavailable")
	ErrConflict             = errors.New("store: concurrent write conflict")
	ErrInFlight             = errors.New("request already in flight")
	ErrValidation           = errors.New("validation failed")
)

// ValidationError reports the first input field that failed validation.
type ValidationError struct {
	Field  string
	Reason string
}

func NewValidationError(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}

func (e *ValidationError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("validation failed: %s", e.Field)
	}
	return fmt.Sprintf("validation failed: %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// FulfillmentError reports a purchase whose payment cleared but whose ledger
// or ticket writes did not complete. The payment is not reversed.
type FulfillmentError struct {
	Operation string
	TxHash    string
	Requested int
	Minted    int
	Err       error
}

func (e *FulfillmentError) Error() string {
	return fmt.Sprintf("%s: payment %s cleared but purchase incomplete (%d of %d tickets issued): %v",
		e.Operation, e.TxHash, e.Minted, e.Requested, e.Err)
}

func (e *FulfillmentError) Unwrap() error { return e.Err }
