package request

import (
	"errors"
	"fmt"
)

var (
	// ErrMissingTransactionID is returned when a follow-up request is built
	// for a transaction that never received a gateway transaction id.
	ErrMissingTransactionID = errors.New("request: missing gateway transaction id")
	// ErrMissingSequenceNumber is returned when a follow-up request is built
	// for a transaction without an assigned sequence number.
	ErrMissingSequenceNumber = errors.New("request: missing sequence number")
)

// ValidationError reports an invalid or absent payment form field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("request: invalid field %s: %s", e.Field, e.Reason)
}

// ConfigurationError reports a broken builder registration: no specific
// builder, or more than one, claimed a (payment method, action) pair.
type ConfigurationError struct {
	Method  string
	Action  Action
	Matches int
}

func (e *ConfigurationError) Error() string {
	if e.Matches == 0 {
		return fmt.Sprintf("request: no builder registered for %s/%s", e.Method, e.Action)
	}
	return fmt.Sprintf("request: %d builders registered for %s/%s, want exactly one", e.Matches, e.Method, e.Action)
}
