package shared

import (
	"errors"
	"fmt"
)

// Error taxonomy shared by the warehouse core. Package level errors wrap one
// of these so callers can branch with errors.Is.
var (
	// ErrNotFound indicates an unknown shipment, pick list, item, product or location.
	ErrNotFound = errors.New("not found")
	// ErrInvalidState indicates an operation on a terminal entity or one that
	// would drive a ledger quantity negative.
	ErrInvalidState = errors.New("invalid state")
	// ErrValidation indicates malformed input.
	ErrValidation = errors.New("validation failed")
	// ErrDuplicate indicates a request that was already processed.
	ErrDuplicate = errors.New("duplicate request")
)

// ErrMissingActor is returned by every mutating call invoked without a caller identity.
var ErrMissingActor = fmt.Errorf("%w: actor required", ErrValidation)

// Validationf builds a validation error carrying a specific reason.
func Validationf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// UserSafeMessage returns a message suitable for API clients.
func UserSafeMessage(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrInvalidState), errors.Is(err, ErrValidation), errors.Is(err, ErrDuplicate):
		return err.Error()
	default:
		return "internal error"
	}
}
