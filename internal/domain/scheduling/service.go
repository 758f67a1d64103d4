package scheduling

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/healthdesk/triage/internal/domain/identity"
	"github.com/healthdesk/triage/internal/platform/apperr"
	"github.com/healthdesk/triage/internal/platform/db"
)

// ScoreSource reads the current total score of a response so a booking
// tied to it can snapshot the value.
type ScoreSource interface {
	TotalScore(ctx context.Context, responseID uuid.UUID) (int, error)
}

type Service struct {
	tx     db.Transactor
	appts  AppointmentRepository
	users  UserDirectory
	scores ScoreSource
	now    func() time.Time
}

func NewService(tx db.Transactor, appts AppointmentRepository, users UserDirectory, scores ScoreSource) *Service {
	return &Service{tx: tx, appts: appts, users: users, scores: scores, now: time.Now}
}

// BookingInput is a staff request for a specific slot.
type BookingInput struct {
	PatientID   uuid.UUID  `json:"patient_id"`
	CaregiverID uuid.UUID  `json:"caregiver_id"`
	ScheduledAt time.Time  `json:"scheduled_at"`
	Notes       *string    `json:"notes,omitempty"`
	ResponseID  *uuid.UUID `json:"response_id,omitempty"`
}

// AppointmentUpdate carries the staff-editable fields. Nil fields are left
// unchanged.
type AppointmentUpdate struct {
	ScheduledAt *time.Time `json:"scheduled_at,omitempty"`
	Notes       *string    `json:"notes,omitempty"`
	Status      *string    `json:"status,omitempty"`
}

// BookAppointment creates a pending appointment in a future slot. The slot
// is taken when the caregiver already has a pending or confirmed
// appointment at exactly the same time. Concurrent bookings for one
// caregiver are serialised on the caregiver's row.
func (s *Service) BookAppointment(ctx context.Context, in BookingInput) (*Appointment, error) {
	if in.ScheduledAt.IsZero() || !in.ScheduledAt.After(s.now()) {
		return nil, apperr.Validation("scheduled_at must be in the future")
	}
	if in.PatientID == uuid.Nil || in.CaregiverID == uuid.Nil {
		return nil, apperr.Validation("patient_id and caregiver_id are required")
	}

	caregiver, err := s.caregiver(ctx, in.CaregiverID)
	if err != nil {
		return nil, err
	}
	pt, err := s.users.GetUserType(ctx, in.PatientID)
	if err != nil {
		return nil, err
	}
	if pt != identity.UserTypePatient {
		return nil, apperr.Validation("user %s is not a patient", in.PatientID)
	}

	a := &Appointment{
		PatientID:   in.PatientID,
		Caregiver:   caregiver,
		ResponseID:  in.ResponseID,
		ScheduledAt: in.ScheduledAt.UTC(),
		Status:      StatusPending,
		Notes:       in.Notes,
	}
	err = s.tx.InTx(ctx, func(ctx context.Context) error {
		if err := s.appts.LockCaregiver(ctx, caregiver.ID); err != nil {
			return err
		}
		taken, err := s.appts.FindConflict(ctx, caregiver, a.ScheduledAt, ActiveStatuses)
		if err != nil {
			return err
		}
		if taken != nil {
			return apperr.Conflict("%s %s already has an appointment at %s",
				caregiver.Kind, caregiver.ID, a.ScheduledAt.Format(time.RFC3339))
		}
		if in.ResponseID != nil {
			score, err := s.scores.TotalScore(ctx, *in.ResponseID)
			if err != nil {
				return err
			}
			a.TotalScoreAtTime = &score
		}
		return s.appts.Create(ctx, a)
	})
	if err != nil {
		return nil, err
	}
	return a, nil
}

func (s *Service) caregiver(ctx context.Context, id uuid.UUID) (Caregiver, error) {
	return ResolveCaregiver(ctx, s.users, id)
}

// ResolveCaregiver looks id up in users and fails with a validation error
// unless it is a physician or professional.
func ResolveCaregiver(ctx context.Context, users UserDirectory, id uuid.UUID) (Caregiver, error) {
	t, err := users.GetUserType(ctx, id)
	if err != nil {
		return Caregiver{}, err
	}
	switch t {
	case identity.UserTypePhysician:
		return Physician(id), nil
	case identity.UserTypeProfessional:
		return Professional(id), nil
	}
	return Caregiver{}, apperr.Validation("user %s is not a physician or professional", id)
}

func (s *Service) GetAppointment(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return s.appts.GetByID(ctx, id)
}

// UpdateAppointment applies staff edits. A new scheduled_at must be in the
// future; the score snapshot and caregiver never change here.
func (s *Service) UpdateAppointment(ctx context.Context, id uuid.UUID, in AppointmentUpdate) (*Appointment, error) {
	var status Status
	if in.Status != nil {
		var err error
		if status, err = ParseStatus(*in.Status); err != nil {
			return nil, apperr.Validation("%v", err)
		}
	}
	if in.ScheduledAt != nil && !in.ScheduledAt.After(s.now()) {
		return nil, apperr.Validation("scheduled_at must be in the future")
	}

	var out *Appointment
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		a, err := s.appts.GetByID(ctx, id)
		if err != nil {
			return err
		}
		if in.ScheduledAt != nil {
			a.ScheduledAt = in.ScheduledAt.UTC()
		}
		if in.Notes != nil {
			a.Notes = in.Notes
		}
		if in.Status != nil {
			a.Status = status
		}
		if err := s.appts.Update(ctx, a); err != nil {
			return err
		}
		out = a
		return nil
	})
	return out, err
}

// CancelAppointment is the delete operation: the row stays, cancelled.
func (s *Service) CancelAppointment(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	cancelled := string(StatusCancelled)
	return s.UpdateAppointment(ctx, id, AppointmentUpdate{Status: &cancelled})
}

// ListPhysicianAppointments lists appointments held by physicians.
func (s *Service) ListPhysicianAppointments(ctx context.Context, f ListFilter, limit, offset int) ([]*Appointment, int, error) {
	return s.appts.List(ctx, KindPhysician, f, limit, offset)
}

// ListReferrals lists appointments held by professionals.
func (s *Service) ListReferrals(ctx context.Context, f ListFilter, limit, offset int) ([]*Appointment, int, error) {
	return s.appts.List(ctx, KindProfessional, f, limit, offset)
}
