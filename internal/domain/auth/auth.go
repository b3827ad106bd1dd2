// Package auth describes the authenticated caller of a domain operation.
package auth

import "context"

// Role is the kind of user acting on an order.
type Role string

const (
	RoleAdmin      Role = "admin"
	RoleRestaurant Role = "restaurant"
	RoleCourier    Role = "courier"
	RoleCustomer   Role = "customer"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleRestaurant, RoleCourier, RoleCustomer:
		return true
	}
	return false
}

// Actor is the authenticated user behind a request.
type Actor struct {
	UserID int64
	Role   Role
	// RestaurantID is the restaurant a RoleRestaurant actor works for.
	RestaurantID int64
}

type actorKey struct{}

// WithActor returns a copy of ctx carrying the actor.
func WithActor(ctx context.Context, a Actor) context.Context {
	return context.WithValue(ctx, actorKey{}, a)
}

// FromContext returns the actor stored in ctx, if any.
func FromContext(ctx context.Context) (Actor, bool) {
	a, ok := ctx.Value(actorKey{}).(Actor)
	return a, ok
}
