package address

import "context"

// Address is a delivery address owned by a single user.
type Address struct {
	ID          int64
	OwnerUserID int64
	Line1       string
	City        string
}

// Repository looks up delivery addresses. GetByID returns an error wrapping
// fault.ErrNotFound when no such address exists.
type Repository interface {
	GetByID(ctx context.Context, id int64) (*Address, error)
}
