package identity

import (
	"time"

	"github.com/google/uuid"
)

// UserType is the directory classification of a user. Routing reads it to
// decide which caregiver column an appointment fills.
type UserType string

const (
	UserTypePhysician    UserType = "PHYSICIAN"
	UserTypeProfessional UserType = "PROFESSIONAL"
	UserTypePatient      UserType = "PATIENT"
)

func (t UserType) Valid() bool {
	switch t {
	case UserTypePhysician, UserTypeProfessional, UserTypePatient:
		return true
	}
	return false
}

// IsCaregiver reports whether users of this type may receive appointments.
func (t UserType) IsCaregiver() bool {
	return t == UserTypePhysician || t == UserTypeProfessional
}

// User maps to the app_user table.
type User struct {
	ID        uuid.UUID `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	Email     string    `db:"email" json:"email"`
	Type      UserType  `db:"user_type" json:"user_type"`
	Active    bool      `db:"active" json:"active"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}
