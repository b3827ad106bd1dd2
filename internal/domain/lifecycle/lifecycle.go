// Package lifecycle describes whether a catalog entity may take part in new
// orders.
package lifecycle

// State is the lifecycle state of a restaurant, product, override or offer.
type State string

const (
	// Active entities are visible to order placement.
	Active State = "active"
	// Archived entities are kept for history but never resolved.
	Archived State = "archived"
)

// Valid reports whether s is a known state.
func (s State) Valid() bool {
	return s == Active || s == Archived
}

// IsActive reports whether s is Active.
func (s State) IsActive() bool {
	return s == Active
}
