// Package sentinel holds the store-level facts that services translate into
// coded domain errors. Stores wrap them; nothing above the service layer
// should test for them directly.
package sentinel

import "errors"

var (
	ErrNotFound = errors.New("not found")
	ErrConflict = errors.New("conflict")

	// ErrExpired and ErrAlreadyUsed describe tokens and confirmation links.
	ErrExpired      = errors.New("expired")
	ErrAlreadyUsed  = errors.New("already used")
	ErrInvalidState = errors.New("invalid state")

	// ErrUnavailable marks an outage of a store or backend, as opposed to a
	// negative answer from it.
	ErrUnavailable = errors.New("unavailable")
)
