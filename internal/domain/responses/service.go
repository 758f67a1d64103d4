package responses

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/healthdesk/triage/internal/domain/forms"
	"github.com/healthdesk/triage/internal/domain/identity"
	"github.com/healthdesk/triage/internal/domain/scheduling"
	"github.com/healthdesk/triage/internal/platform/apperr"
	"github.com/healthdesk/triage/internal/platform/db"
	"github.com/healthdesk/triage/internal/platform/websocket"
)

// FormStore loads a form with its questions, options and score rules.
type FormStore interface {
	GetForm(ctx context.Context, id uuid.UUID) (*forms.Form, error)
}

// Router turns a matched rule's caregiver into an appointment.
type Router interface {
	Route(ctx context.Context, req scheduling.RouteRequest) (*scheduling.Appointment, error)
	RoutedFor(ctx context.Context, responseID uuid.UUID) (*scheduling.Appointment, error)
}

type UserDirectory interface {
	GetUserType(ctx context.Context, id uuid.UUID) (identity.UserType, error)
}

// Recorder counts scoring outcomes.
type Recorder interface {
	ResponseScored(classification string, unmatchedAnswers int)
	AppointmentRouted(caregiverKind string)
}

// EventPublisher receives scoring and routing events once they are
// committed.
type EventPublisher interface {
	Publish(ctx context.Context, event websocket.Event) error
}

// Service runs the response lifecycle: store answers, score them, classify
// the total and route to a caregiver, all in one transaction.
type Service struct {
	tx        db.Transactor
	responses ResponseRepository
	forms     FormStore
	router    Router
	users     UserDirectory
	logger    zerolog.Logger
	events    EventPublisher
	metrics   Recorder
}

func NewService(tx db.Transactor, responses ResponseRepository, forms FormStore, router Router, users UserDirectory, logger zerolog.Logger) *Service {
	return &Service{tx: tx, responses: responses, forms: forms, router: router, users: users, logger: logger}
}

func (s *Service) SetPublisher(p EventPublisher) { s.events = p }

func (s *Service) SetRecorder(r Recorder) { s.metrics = r }

// SubmitResponse stores a new response for the patient and scores it.
func (s *Service) SubmitResponse(ctx context.Context, formID, patientID uuid.UUID, answers []forms.Answer) (*Response, error) {
	if err := s.checkPatient(ctx, patientID); err != nil {
		return nil, err
	}

	var out *Response
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		if _, err := s.forms.GetForm(ctx, formID); err != nil {
			return err
		}
		resp := &Response{FormID: formID, PatientID: patientID}
		if err := s.responses.Create(ctx, resp); err != nil {
			return err
		}
		if err := s.responses.ReplaceAnswers(ctx, resp.ID, answers); err != nil {
			return err
		}
		var err error
		out, err = s.evaluate(ctx, resp.ID)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.afterCommit(ctx, out)
	return out, nil
}

// UpdateResponse replaces every answer of the response identified by all
// three ids and recomputes its outcome and routing from scratch.
func (s *Service) UpdateResponse(ctx context.Context, formID, patientID, responseID uuid.UUID, answers []forms.Answer) (*Response, error) {
	var out *Response
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		if err := s.responses.Lock(ctx, formID, patientID, responseID); err != nil {
			return err
		}
		if err := s.responses.ReplaceAnswers(ctx, responseID, answers); err != nil {
			return err
		}
		var err error
		out, err = s.evaluate(ctx, responseID)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.afterCommit(ctx, out)
	return out, nil
}

// evaluate reloads the response with its answers and the form with its
// rules, then scores, classifies, routes and saves the outcome.
func (s *Service) evaluate(ctx context.Context, responseID uuid.UUID) (*Response, error) {
	resp, err := s.responses.GetByID(ctx, responseID)
	if err != nil {
		return nil, err
	}
	form, err := s.forms.GetForm(ctx, resp.FormID)
	if err != nil {
		return nil, err
	}

	log := s.logger.With().
		Str("form_id", resp.FormID.String()).
		Str("response_id", resp.ID.String()).
		Logger()

	result := forms.Score(form.QuestionIndex(), resp.Answers)
	resp.TotalScore = result.Total
	resp.Diagnostics = result.Diagnostics
	for _, d := range result.Diagnostics {
		log.Warn().
			Str("question_id", d.QuestionID.String()).
			Str("kind", string(d.Kind)).
			Str("label", d.Label).
			Msg("answer contributed no points")
	}

	rule := forms.MatchRule(form.ScoreRules, result.Total)
	if rule == nil {
		resp.clearOutcome()
	} else {
		resp.applyRule(rule)
	}

	if rule != nil && rule.TargetCaregiverID != nil {
		appt, err := s.router.Route(ctx, scheduling.RouteRequest{
			PatientID:   resp.PatientID,
			CaregiverID: *rule.TargetCaregiverID,
			Conduct:     rule.Conduct,
			Score:       result.Total,
			ResponseID:  resp.ID,
		})
		if err != nil {
			return nil, err
		}
		resp.RoutedAppointmentID = &appt.ID
		resp.routedTo = &appt.Caregiver
	} else {
		// An appointment routed by an earlier version of the answers is
		// left as it is.
		appt, err := s.router.RoutedFor(ctx, resp.ID)
		if err != nil {
			return nil, err
		}
		if appt != nil {
			resp.RoutedAppointmentID = &appt.ID
			log.Warn().
				Str("appointment_id", appt.ID.String()).
				Int("score", result.Total).
				Msg("response no longer routes; earlier appointment kept")
		}
	}

	if err := s.responses.SaveOutcome(ctx, resp); err != nil {
		return nil, err
	}
	log.Info().
		Int("score", resp.TotalScore).
		Bool("classified", rule != nil).
		Bool("routed", rule != nil && rule.TargetCaregiverID != nil).
		Msg("response scored")
	return resp, nil
}

func (s *Service) checkPatient(ctx context.Context, id uuid.UUID) error {
	t, err := s.users.GetUserType(ctx, id)
	if err != nil {
		return err
	}
	if t != identity.UserTypePatient {
		return apperr.Validation("user %s is not a patient", id)
	}
	return nil
}

// GetResponse returns a response of the form with a breakdown of every
// answer scored against the form's current options.
func (s *Service) GetResponse(ctx context.Context, formID, responseID uuid.UUID) (*Detail, error) {
	resp, err := s.responses.GetByID(ctx, responseID)
	if err != nil {
		return nil, err
	}
	if resp.FormID != formID {
		return nil, apperr.NotFound("response %s not found for form %s", responseID, formID)
	}
	form, err := s.forms.GetForm(ctx, formID)
	if err != nil {
		return nil, err
	}
	result := forms.Score(form.QuestionIndex(), resp.Answers)
	resp.Diagnostics = result.Diagnostics
	return &Detail{
		Response:     resp,
		FormTitle:    form.Title,
		CurrentScore: result.Total,
		Breakdown:    result.Answers,
	}, nil
}

func (s *Service) ListResponses(ctx context.Context, formID uuid.UUID, limit, offset int) ([]*Response, int, error) {
	if _, err := s.forms.GetForm(ctx, formID); err != nil {
		return nil, 0, err
	}
	return s.responses.ListByForm(ctx, formID, limit, offset)
}

// ListAll is the staff worklist of scored responses across active forms.
func (s *Service) ListAll(ctx context.Context, f ListFilter, limit, offset int) ([]*Summary, int, error) {
	if f.ScoreMin != nil && f.ScoreMax != nil && *f.ScoreMin > *f.ScoreMax {
		return nil, 0, apperr.Validation("score_min %d is greater than score_max %d", *f.ScoreMin, *f.ScoreMax)
	}
	if f.From != nil && f.To != nil && f.From.After(*f.To) {
		return nil, 0, apperr.Validation("from is after to")
	}
	return s.responses.List(ctx, f, limit, offset)
}

// DeleteResponse removes the response and its answers. An appointment
// routed from it stays, no longer linked to a response.
func (s *Service) DeleteResponse(ctx context.Context, formID, responseID uuid.UUID) error {
	return s.tx.InTx(ctx, func(ctx context.Context) error {
		return s.responses.Delete(ctx, formID, responseID)
	})
}

// TotalScore reads the stored score of a response.
func (s *Service) TotalScore(ctx context.Context, responseID uuid.UUID) (int, error) {
	return s.responses.TotalScore(ctx, responseID)
}

// routedEvent is the payload caregivers receive for a new or moved
// appointment.
type routedEvent struct {
	ResponseID     uuid.UUID `json:"response_id"`
	AppointmentID  uuid.UUID `json:"appointment_id"`
	PatientID      uuid.UUID `json:"patient_id"`
	Classification *string   `json:"classification"`
	Conduct        *string   `json:"conduct,omitempty"`
	TotalScore     int       `json:"total_score"`
}

func (s *Service) afterCommit(ctx context.Context, resp *Response) {
	if s.metrics != nil {
		classification := ""
		if resp.Classification != nil {
			classification = *resp.Classification
		}
		s.metrics.ResponseScored(classification, len(resp.Diagnostics))
		if resp.routedTo != nil {
			s.metrics.AppointmentRouted(string(resp.routedTo.Kind))
		}
	}
	s.publish(ctx, resp)
}

// publish announces a committed outcome on the form feed and, when the
// response was routed, in the caregiver's inbox. Delivery failures are
// logged and never fail the request.
func (s *Service) publish(ctx context.Context, resp *Response) {
	if s.events == nil || resp == nil {
		return
	}
	send := func(ev websocket.Event, err error) {
		if err == nil {
			err = s.events.Publish(ctx, ev)
		}
		if err != nil {
			s.logger.Warn().Err(err).Str("type", ev.Type).Str("response_id", resp.ID.String()).Msg("failed to publish event")
		}
	}

	send(websocket.NewEvent(websocket.EventResponseScored, websocket.FormTopic(resp.FormID), resp.ID.String(), resp))

	if resp.routedTo == nil || resp.RoutedAppointmentID == nil {
		return
	}
	send(websocket.NewEvent(websocket.EventAppointmentRouted, websocket.CaregiverTopic(resp.routedTo.ID), resp.RoutedAppointmentID.String(), routedEvent{
		ResponseID:     resp.ID,
		AppointmentID:  *resp.RoutedAppointmentID,
		PatientID:      resp.PatientID,
		Classification: resp.Classification,
		Conduct:        resp.Conduct,
		TotalScore:     resp.TotalScore,
	}))
}
