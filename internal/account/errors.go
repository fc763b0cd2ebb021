package account

import "fmt"

// ValidationError reports malformed caller input. It is surfaced
// immediately and never retried.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return "invalid account data: " + e.Reason
}

// NotFoundError reports a reference to an unknown identity.
type NotFoundError struct {
	Email string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("account not found: %s", e.Email)
}
