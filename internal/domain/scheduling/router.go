package scheduling

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/healthdesk/triage/internal/domain/identity"
)

// UserDirectory resolves the directory type of a user.
type UserDirectory interface {
	GetUserType(ctx context.Context, id uuid.UUID) (identity.UserType, error)
}

// RouteRequest carries a matched score rule's outcome for one response.
type RouteRequest struct {
	PatientID   uuid.UUID
	CaregiverID uuid.UUID
	Conduct     string
	Score       int
	ResponseID  uuid.UUID
}

// Router keeps exactly one system-generated appointment per routed
// response. It does not check slot conflicts: a routed appointment is a
// placeholder for the caregiver to triage and reschedule. Callers run it
// inside the transaction that scores the response.
type Router struct {
	appts  AppointmentRepository
	users  UserDirectory
	now    func() time.Time
	logger zerolog.Logger
}

func NewRouter(appts AppointmentRepository, users UserDirectory, logger zerolog.Logger) *Router {
	return &Router{appts: appts, users: users, now: time.Now, logger: logger}
}

// Route creates the appointment for req.ResponseID or, when one exists,
// reassigns it to the target caregiver, moves it to now, resets it to
// pending and refreshes its notes and score snapshot.
func (r *Router) Route(ctx context.Context, req RouteRequest) (*Appointment, error) {
	caregiver, err := r.resolve(ctx, req.CaregiverID)
	if err != nil {
		return nil, err
	}

	responseID := req.ResponseID
	score := req.Score
	var notes *string
	if req.Conduct != "" {
		conduct := req.Conduct
		notes = &conduct
	}

	existing, err := r.appts.FindByResponseID(ctx, responseID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		existing.PatientID = req.PatientID
		existing.Caregiver = caregiver
		existing.ScheduledAt = r.now().UTC()
		existing.Status = StatusPending
		existing.Notes = notes
		existing.TotalScoreAtTime = &score
		if err := r.appts.Update(ctx, existing); err != nil {
			return nil, err
		}
		r.logger.Info().
			Str("appointment_id", existing.ID.String()).
			Str("response_id", responseID.String()).
			Str("caregiver_kind", string(caregiver.Kind)).
			Int("score", score).
			Msg("routed appointment updated")
		return existing, nil
	}

	a := &Appointment{
		PatientID:        req.PatientID,
		Caregiver:        caregiver,
		ResponseID:       &responseID,
		ScheduledAt:      r.now().UTC(),
		Status:           StatusPending,
		Notes:            notes,
		TotalScoreAtTime: &score,
	}
	// A concurrent submission for the same response may have inserted the
	// row since the lookup; the upsert converges on it.
	created, err := r.appts.UpsertForResponse(ctx, a)
	if err != nil {
		return nil, err
	}
	r.logger.Info().
		Str("appointment_id", a.ID.String()).
		Str("response_id", responseID.String()).
		Str("caregiver_kind", string(caregiver.Kind)).
		Int("score", score).
		Bool("created", created).
		Msg("routed appointment stored")
	return a, nil
}

func (r *Router) resolve(ctx context.Context, id uuid.UUID) (Caregiver, error) {
	t, err := r.users.GetUserType(ctx, id)
	if err != nil {
		return Caregiver{}, err
	}
	switch t {
	case identity.UserTypePhysician:
		return Physician(id), nil
	case identity.UserTypeProfessional:
		return Professional(id), nil
	}
	r.logger.Warn().
		Str("caregiver_id", id.String()).
		Str("user_type", string(t)).
		Msg("routing target is not a caregiver; routing as professional")
	return Professional(id), nil
}

// RoutedFor returns the appointment generated for a response, or nil.
func (r *Router) RoutedFor(ctx context.Context, responseID uuid.UUID) (*Appointment, error) {
	return r.appts.FindByResponseID(ctx, responseID)
}
