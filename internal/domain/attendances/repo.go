package attendances

import (
	"context"

	"github.com/google/uuid"
)

type AttendanceRepository interface {
	Create(ctx context.Context, a *Attendance) error
	GetByID(ctx context.Context, id uuid.UUID) (*Attendance, error)
	Update(ctx context.Context, a *Attendance) error
	Delete(ctx context.Context, id uuid.UUID) error
	// List returns attendances newest first.
	List(ctx context.Context, f ListFilter, limit, offset int) ([]*Attendance, int, error)

	// LinkResponse fails with Conflict when the pair is already linked and
	// NotFound when the response does not exist.
	LinkResponse(ctx context.Context, attendanceID, responseID uuid.UUID) error
	UnlinkResponse(ctx context.Context, attendanceID, responseID uuid.UUID) error
	// ListResponses returns the linked responses, most recently linked first.
	ListResponses(ctx context.Context, attendanceID uuid.UUID) ([]*LinkedResponse, error)
}
