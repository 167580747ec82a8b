// Package apperr defines the error kinds shared by the pricing, campaign,
// inventory and order packages. Every kind carries a stable code that
// transport layers expose to clients unchanged.
package apperr

import (
	"errors"
	"fmt"
)

// Stable error codes.
const (
	CodeValidation        = "validation_error"
	CodeNotFound          = "not_found"
	CodeInvalidState      = "invalid_state"
	CodeInsufficientStock = "insufficient_stock"
	CodePayment           = "payment_not_confirmed"
	CodeInternal          = "internal_error"
)

// Coded is implemented by every error kind in this package.
type Coded interface {
	error
	Code() string
}

// ValidationError reports malformed or missing caller input.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Code() string { return CodeValidation }

// Missing returns a ValidationError for an absent required field.
func Missing(field string) *ValidationError {
	return &ValidationError{Field: field, Reason: "is required"}
}

// Invalid returns a ValidationError with a formatted reason.
func Invalid(field, format string, args ...any) *ValidationError {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// NotFoundError reports a missing product, campaign or order.
type NotFoundError struct {
	Entity string
	ID     string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Entity, e.ID)
}

func (e *NotFoundError) Code() string { return CodeNotFound }

// InvalidStateError reports an illegal lifecycle transition.
type InvalidStateError struct {
	Entity string
	ID     string
	From   string
	Action string
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("%s %s: cannot %s from %s", e.Entity, e.ID, e.Action, e.From)
}

func (e *InvalidStateError) Code() string { return CodeInvalidState }

// InsufficientStockError is returned when a reservation cannot be satisfied.
type InsufficientStockError struct {
	ProductID string
	Requested int64
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for product %s (requested %d)", e.ProductID, e.Requested)
}

func (e *InsufficientStockError) Code() string { return CodeInsufficientStock }

// PaymentError is returned when an external payment is not confirmed.
type PaymentError struct {
	Reference string
	Status    string
}

func (e *PaymentError) Error() string {
	return fmt.Sprintf("payment %s not confirmed (status %s)", e.Reference, e.Status)
}

func (e *PaymentError) Code() string { return CodePayment }

// CodeOf returns the stable code of the first coded error in err's chain,
// or CodeInternal.
func CodeOf(err error) string {
	var c Coded
	if errors.As(err, &c) {
		return c.Code()
	}
	return CodeInternal
}
