package attendances

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/healthdesk/triage/internal/domain/identity"
	"github.com/healthdesk/triage/internal/domain/scheduling"
	"github.com/healthdesk/triage/internal/platform/apperr"
	"github.com/healthdesk/triage/internal/platform/db"
)

// AppointmentSource loads the appointment an attendance fulfils.
type AppointmentSource interface {
	GetAppointment(ctx context.Context, id uuid.UUID) (*scheduling.Appointment, error)
}

type Service struct {
	tx    db.Transactor
	repo  AttendanceRepository
	users scheduling.UserDirectory
	appts AppointmentSource
	now   func() time.Time
}

func NewService(tx db.Transactor, repo AttendanceRepository, users scheduling.UserDirectory, appts AppointmentSource) *Service {
	return &Service{tx: tx, repo: repo, users: users, appts: appts, now: time.Now}
}

// CreateInput opens an attendance. AttendedAt defaults to now.
type CreateInput struct {
	PatientID     uuid.UUID  `json:"patient_id"`
	CaregiverID   uuid.UUID  `json:"caregiver_id"`
	AppointmentID *uuid.UUID `json:"appointment_id,omitempty"`
	AttendedAt    *time.Time `json:"attended_at,omitempty"`
	Clinical
	Vitals
}

// UpdateInput carries the editable fields. Nil fields are left unchanged.
type UpdateInput struct {
	AttendedAt *time.Time `json:"attended_at,omitempty"`
	Clinical
	Vitals
}

func (s *Service) CreateAttendance(ctx context.Context, in CreateInput) (*Attendance, error) {
	if in.PatientID == uuid.Nil || in.CaregiverID == uuid.Nil {
		return nil, apperr.Validation("patient_id and caregiver_id are required")
	}
	if err := in.Vitals.validate(); err != nil {
		return nil, apperr.Validation("%v", err)
	}
	pt, err := s.users.GetUserType(ctx, in.PatientID)
	if err != nil {
		return nil, err
	}
	if pt != identity.UserTypePatient {
		return nil, apperr.Validation("user %s is not a patient", in.PatientID)
	}
	caregiver, err := scheduling.ResolveCaregiver(ctx, s.users, in.CaregiverID)
	if err != nil {
		return nil, err
	}
	if in.AppointmentID != nil {
		appt, err := s.appts.GetAppointment(ctx, *in.AppointmentID)
		if err != nil {
			return nil, err
		}
		if appt.PatientID != in.PatientID {
			return nil, apperr.Validation("appointment %s belongs to another patient", appt.ID)
		}
	}

	a := &Attendance{
		PatientID:     in.PatientID,
		Caregiver:     caregiver,
		AppointmentID: in.AppointmentID,
		AttendedAt:    s.now().UTC(),
		Status:        StatusInProgress,
		Clinical:      in.Clinical,
		Vitals:        in.Vitals,
	}
	if in.AttendedAt != nil {
		a.AttendedAt = in.AttendedAt.UTC()
	}
	if err := s.repo.Create(ctx, a); err != nil {
		return nil, err
	}
	return a, nil
}

// CreateFromAppointment opens an attendance for the appointment's patient
// and caregiver at its scheduled time.
func (s *Service) CreateFromAppointment(ctx context.Context, appointmentID uuid.UUID) (*Attendance, error) {
	appt, err := s.appts.GetAppointment(ctx, appointmentID)
	if err != nil {
		return nil, err
	}
	if appt.Status == scheduling.StatusCancelled {
		return nil, apperr.Validation("appointment %s is cancelled", appt.ID)
	}
	id := appt.ID
	a := &Attendance{
		PatientID:     appt.PatientID,
		Caregiver:     appt.Caregiver,
		AppointmentID: &id,
		AttendedAt:    appt.ScheduledAt.UTC(),
		Status:        StatusInProgress,
	}
	if err := s.repo.Create(ctx, a); err != nil {
		return nil, err
	}
	return a, nil
}

func (s *Service) GetAttendance(ctx context.Context, id uuid.UUID) (*Attendance, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *Service) ListAttendances(ctx context.Context, f ListFilter, limit, offset int) ([]*Attendance, int, error) {
	if f.From != nil && f.To != nil && f.From.After(*f.To) {
		return nil, 0, apperr.Validation("from must not be after to")
	}
	return s.repo.List(ctx, f, limit, offset)
}

// UpdateAttendance merges the set fields of in. Closed attendances stay
// editable so late notes can be recorded.
func (s *Service) UpdateAttendance(ctx context.Context, id uuid.UUID, in UpdateInput) (*Attendance, error) {
	if err := in.Vitals.validate(); err != nil {
		return nil, apperr.Validation("%v", err)
	}
	var out *Attendance
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		a, err := s.repo.GetByID(ctx, id)
		if err != nil {
			return err
		}
		if in.AttendedAt != nil {
			a.AttendedAt = in.AttendedAt.UTC()
		}
		a.Clinical.merge(in.Clinical)
		if in.BloodPressure != nil {
			a.BloodPressure = in.BloodPressure
		}
		if in.HeartRate != nil {
			a.HeartRate = in.HeartRate
		}
		if in.Temperature != nil {
			a.Temperature = in.Temperature
		}
		if in.RespiratoryRate != nil {
			a.RespiratoryRate = in.RespiratoryRate
		}
		if err := s.repo.Update(ctx, a); err != nil {
			return err
		}
		out = a
		return nil
	})
	return out, err
}

func (s *Service) UpdateStatus(ctx context.Context, id uuid.UUID, status string) (*Attendance, error) {
	st, err := ParseStatus(status)
	if err != nil {
		return nil, apperr.Validation("%v", err)
	}
	var out *Attendance
	err = s.tx.InTx(ctx, func(ctx context.Context) error {
		a, err := s.repo.GetByID(ctx, id)
		if err != nil {
			return err
		}
		a.Status = st
		if err := s.repo.Update(ctx, a); err != nil {
			return err
		}
		out = a
		return nil
	})
	return out, err
}

// DeleteAttendance removes the attendance and its response links.
func (s *Service) DeleteAttendance(ctx context.Context, id uuid.UUID) error {
	return s.repo.Delete(ctx, id)
}

func (s *Service) LinkResponse(ctx context.Context, id, responseID uuid.UUID) error {
	return s.tx.InTx(ctx, func(ctx context.Context) error {
		if _, err := s.repo.GetByID(ctx, id); err != nil {
			return err
		}
		return s.repo.LinkResponse(ctx, id, responseID)
	})
}

func (s *Service) UnlinkResponse(ctx context.Context, id, responseID uuid.UUID) error {
	return s.repo.UnlinkResponse(ctx, id, responseID)
}

func (s *Service) ListResponses(ctx context.Context, id uuid.UUID) ([]*LinkedResponse, error) {
	if _, err := s.repo.GetByID(ctx, id); err != nil {
		return nil, err
	}
	return s.repo.ListResponses(ctx, id)
}
