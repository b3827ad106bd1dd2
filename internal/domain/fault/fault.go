// Package fault defines the error categories shared by every domain package.
//
// Domain errors either wrap one of the sentinels below with fmt.Errorf("%w")
// or are typed errors whose Unwrap returns a sentinel, so transports can map
// them with errors.Is without knowing the concrete type.
package fault

import "github.com/go-faster/errors"

var (
	// ErrNotFound is returned when a referenced entity does not exist or is
	// not active.
	ErrNotFound = errors.New("not found")
	// ErrUnauthorized is returned when the actor may not perform the action.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrInvalidState is returned when the entity is in a state that does not
	// permit the action, e.g. a closed restaurant or an illegal transition.
	ErrInvalidState = errors.New("invalid state")
	// ErrValidation is returned for malformed input.
	ErrValidation = errors.New("validation failed")
	// ErrPersistence is returned when a write could not be committed.
	ErrPersistence = errors.New("persistence failure")
	// ErrDegradedPricing marks a pricing failure that was absorbed by falling
	// back to full prices. It is logged, never returned to callers.
	ErrDegradedPricing = errors.New("degraded pricing")
)
