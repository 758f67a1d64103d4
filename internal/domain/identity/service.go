package identity

import (
	"context"
	"net/mail"
	"strings"

	"github.com/google/uuid"

	"github.com/healthdesk/triage/internal/platform/apperr"
)

// Service is the user directory.
type Service struct {
	users UserRepository
}

func NewService(users UserRepository) *Service {
	return &Service{users: users}
}

func (s *Service) CreateUser(ctx context.Context, u *User) error {
	u.Name = strings.TrimSpace(u.Name)
	u.Email = strings.ToLower(strings.TrimSpace(u.Email))
	if u.Name == "" {
		return apperr.Validation("name is required")
	}
	if _, err := mail.ParseAddress(u.Email); err != nil {
		return apperr.Validation("invalid email: %s", u.Email)
	}
	if !u.Type.Valid() {
		return apperr.Validation("invalid user_type: %s", u.Type)
	}
	u.Active = true
	return s.users.Create(ctx, u)
}

func (s *Service) GetUser(ctx context.Context, id uuid.UUID) (*User, error) {
	return s.users.GetByID(ctx, id)
}

// GetUserType returns the directory type of id, NotFound when absent.
func (s *Service) GetUserType(ctx context.Context, id uuid.UUID) (UserType, error) {
	u, err := s.users.GetByID(ctx, id)
	if err != nil {
		return "", err
	}
	return u.Type, nil
}

// ListCaregivers lists active physicians and professionals. An empty
// userType lists both.
func (s *Service) ListCaregivers(ctx context.Context, userType UserType, limit, offset int) ([]*User, int, error) {
	if userType != "" && !userType.IsCaregiver() {
		return nil, 0, apperr.Validation("invalid caregiver type: %s", userType)
	}
	return s.users.ListCaregivers(ctx, userType, limit, offset)
}
