package scheduling

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type AppointmentRepository interface {
	Create(ctx context.Context, a *Appointment) error
	GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error)
	Update(ctx context.Context, a *Appointment) error
	// FindByResponseID returns the appointment generated for a response, or
	// nil when there is none.
	FindByResponseID(ctx context.Context, responseID uuid.UUID) (*Appointment, error)
	// UpsertForResponse inserts a routed appointment or, when one already
	// exists for a.ResponseID, overwrites it. a.ID is set to the stored row.
	UpsertForResponse(ctx context.Context, a *Appointment) (created bool, err error)
	// LockCaregiver row-locks the caregiver's user record until the
	// surrounding transaction ends, serialising bookings for that caregiver.
	LockCaregiver(ctx context.Context, id uuid.UUID) error
	// FindConflict returns an appointment of the caregiver at exactly at
	// whose status is one of statuses, or nil.
	FindConflict(ctx context.Context, c Caregiver, at time.Time, statuses []Status) (*Appointment, error)
	// List returns appointments whose caregiver is of the given kind,
	// ordered by scheduled time.
	List(ctx context.Context, kind CaregiverKind, filter ListFilter, limit, offset int) ([]*Appointment, int, error)
}
