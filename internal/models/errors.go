package models

import (
	"errors"
	"fmt"
)

var (
	ErrValidation         = errors.New("validation failed")
	ErrNotFound           = errors.New("not found")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrDuplicateEmail     = errors.New("email already registered")
	ErrStockExceeded      = errors.New("quantity exceeds available stock")
	ErrInvalidTransition  = errors.New("invalid status transition")
	ErrUnauthorized       = errors.New("authentication required")
	ErrForbidden          = errors.New("administrator role required")
	ErrPrimaryAdmin       = errors.New("primary administrator cannot be deleted or demoted")
)

var (
	ErrUserNotFound    = fmt.Errorf("user %w", ErrNotFound)
	ErrProductNotFound = fmt.Errorf("product %w", ErrNotFound)
	ErrOrderNotFound   = fmt.Errorf("order %w", ErrNotFound)
)

// ErrEmptyCart is returned when checking out a cart without items
var ErrEmptyCart = &ValidationError{Field: "items", Message: "cart is empty"}

// ValidationError describes a missing or malformed input field
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return e.Field + ": " + e.Message
}

func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

// Invalid builds a ValidationError for field
func Invalid(field, format string, args ...any) error {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// StockError reports a quantity above the stock of a product
type StockError struct {
	ProductID int64
	Requested int
	Available int
}

func (e *StockError) Error() string {
	return fmt.Sprintf("product %d: requested %d, only %d in stock", e.ProductID, e.Requested, e.Available)
}

func (e *StockError) Unwrap() error {
	return ErrStockExceeded
}

// TransitionError reports an illegal order status change
type TransitionError struct {
	From OrderStatus
	To   OrderStatus
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("cannot change order status from %s to %s", e.From, e.To)
}

func (e *TransitionError) Unwrap() error {
	return ErrInvalidTransition
}
