package identity

import (
	"context"

	"github.com/google/uuid"
)

type UserRepository interface {
	Create(ctx context.Context, u *User) error
	GetByID(ctx context.Context, id uuid.UUID) (*User, error)
	// ListCaregivers returns active physicians and professionals, optionally
	// narrowed to one type.
	ListCaregivers(ctx context.Context, userType UserType, limit, offset int) ([]*User, int, error)
}
