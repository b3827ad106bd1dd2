package order

import (
	"fmt"

	"github.com/xenking/food-delivery-orders/internal/domain/auth"
	"github.com/xenking/food-delivery-orders/internal/domain/fault"
)

// Authorize checks that actor may move o to target. A target outside the
// actor's permitted set, or an order outside the actor's scope, yields
// fault.ErrUnauthorized. A permitted target that is not reachable from the
// current status yields fault.ErrInvalidState.
func Authorize(o *Order, actor auth.Actor, target Status) error {
	if !target.Valid() {
		return fmt.Errorf("%w: unknown status %q", fault.ErrValidation, target)
	}

	switch actor.Role {
	case auth.RoleAdmin:
		return checkAdmin(o, target)
	case auth.RoleRestaurant:
		return checkRestaurant(o, actor, target)
	case auth.RoleCourier:
		return checkCourier(o, actor, target)
	case auth.RoleCustomer:
		return checkCustomer(o, actor, target)
	default:
		return fmt.Errorf("%w: role %q cannot change order status", fault.ErrUnauthorized, actor.Role)
	}
}

func checkAdmin(o *Order, target Status) error {
	if o.Status.IsTerminal() || o.Status == target {
		return illegal(o.Status, target)
	}
	return nil
}

// checkRestaurant lets staff of the order's restaurant move it forward through
// accepted, preparing and ready_for_pickup, or cancel it while still pending.
func checkRestaurant(o *Order, actor auth.Actor, target Status) error {
	if actor.RestaurantID != o.RestaurantID {
		return fmt.Errorf("%w: order belongs to another restaurant", fault.ErrUnauthorized)
	}
	switch target {
	case StatusAccepted, StatusPreparing, StatusReadyForPickup:
		if o.Status.rank() < 0 || o.Status.rank() > StatusPreparing.rank() || target.rank() <= o.Status.rank() {
			return illegal(o.Status, target)
		}
		return nil
	case StatusCancelled:
		if o.Status != StatusPending {
			return illegal(o.Status, target)
		}
		return nil
	default:
		return forbidden(actor.Role, target)
	}
}

func checkCourier(o *Order, actor auth.Actor, target Status) error {
	if target != StatusOnTheWay && target != StatusDelivered {
		return forbidden(actor.Role, target)
	}
	if o.DeliveryPersonID != nil && *o.DeliveryPersonID != actor.UserID {
		return fmt.Errorf("%w: order is assigned to another courier", fault.ErrUnauthorized)
	}
	switch {
	case target == StatusOnTheWay && o.Status == StatusReadyForPickup:
		return nil
	case target == StatusDelivered && o.Status == StatusOnTheWay:
		return nil
	default:
		return illegal(o.Status, target)
	}
}

func checkCustomer(o *Order, actor auth.Actor, target Status) error {
	if o.CustomerID != actor.UserID {
		return fmt.Errorf("%w: order belongs to another customer", fault.ErrUnauthorized)
	}
	if target != StatusCancelled {
		return forbidden(actor.Role, target)
	}
	if o.Status != StatusPending {
		return illegal(o.Status, target)
	}
	return nil
}

// CanView reports whether actor may read o.
func CanView(o *Order, actor auth.Actor) bool {
	switch actor.Role {
	case auth.RoleAdmin:
		return true
	case auth.RoleCustomer:
		return o.CustomerID == actor.UserID
	case auth.RoleRestaurant:
		return o.RestaurantID == actor.RestaurantID
	case auth.RoleCourier:
		if o.DeliveryPersonID != nil {
			return *o.DeliveryPersonID == actor.UserID
		}
		return o.Status == StatusReadyForPickup
	}
	return false
}

func illegal(from, to Status) error {
	return fmt.Errorf("%w: cannot move order from %s to %s", fault.ErrInvalidState, from, to)
}

func forbidden(role auth.Role, to Status) error {
	return fmt.Errorf("%w: %s may not set status %s", fault.ErrUnauthorized, role, to)
}
