package services

import (
	"errors"
	"fmt"
)

// Error kinds shared by both transition engines. Controllers map these to
// HTTP statuses; everything unmatched surfaces as a 500.
var (
	ErrUnauthenticated    = errors.New("unauthenticated")
	ErrForbidden          = errors.New("forbidden")
	ErrNotFound           = errors.New("not found")
	ErrAlreadyScheduled   = errors.New("cancellation already scheduled")
	ErrPaymentIncomplete  = errors.New("payment incomplete")
	ErrGatewayUnavailable = errors.New("payment gateway unavailable")
)

// InvalidTransitionError reports a requested status change outside the
// allowed-transition table.
type InvalidTransitionError struct {
	From string
	To   string
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid transition: %s -> %s", e.From, e.To)
}

// IsInvalidTransition reports whether err is an InvalidTransitionError.
func IsInvalidTransition(err error) bool {
	var ite *InvalidTransitionError
	return errors.As(err, &ite)
}
