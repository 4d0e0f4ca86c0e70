package shared

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound indicates a referenced entity does not exist.
	ErrNotFound = errors.New("not found")
	// ErrConsistency flags a broken internal invariant, e.g. a cyclic
	// account parent chain.
	ErrConsistency = errors.New("consistency violation")
)

// ValidationError reports malformed or missing required input. No mutation
// has taken place when it is returned.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("validation: %s", e.Reason)
	}
	return fmt.Sprintf("validation: %s: %s", e.Field, e.Reason)
}

// Validationf builds a ValidationError for a field.
func Validationf(field, format string, args ...any) error {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// InvalidStateError reports an operation attempted from a disallowed
// lifecycle state.
type InvalidStateError struct {
	Entity string
	State  string
	Op     string
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("%s: cannot %s from state %s", e.Entity, e.Op, e.State)
}

// InsufficientStockError reports a reservation or sale exceeding available
// stock while negative stock is disallowed.
type InsufficientStockError struct {
	ProductID   int64
	WarehouseID int64
	Requested   float64
	Available   float64
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for product %d: requested %.2f, available %.2f", e.ProductID, e.Requested, e.Available)
}

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// IsInvalidState reports whether err is an InvalidStateError.
func IsInvalidState(err error) bool {
	var se *InvalidStateError
	return errors.As(err, &se)
}

// IsInsufficientStock reports whether err is an InsufficientStockError.
func IsInsufficientStock(err error) bool {
	var ie *InsufficientStockError
	return errors.As(err, &ie)
}

// UserSafeMessage maps core errors to messages safe for the boundary layer.
func UserSafeMessage(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrNotFound):
		return "The requested record was not found."
	case IsValidation(err):
		return err.Error()
	case IsInvalidState(err):
		return err.Error()
	case IsInsufficientStock(err):
		return err.Error()
	default:
		return "An internal error occurred. Please try again."
	}
}
