package responses

import (
	"time"

	"github.com/google/uuid"

	"github.com/healthdesk/triage/internal/domain/forms"
	"github.com/healthdesk/triage/internal/domain/scheduling"
)

// Response maps to the form_response table. The outcome fields are derived
// from Answers by scoring and are rewritten on every submission or update.
type Response struct {
	ID                  uuid.UUID          `db:"id" json:"id"`
	FormID              uuid.UUID          `db:"form_id" json:"form_id"`
	PatientID           uuid.UUID          `db:"patient_id" json:"patient_id"`
	TotalScore          int                `db:"total_score" json:"total_score"`
	Classification      *string            `db:"classification" json:"classification"`
	Conduct             *string            `db:"conduct" json:"conduct"`
	AssignedCaregiverID *uuid.UUID         `db:"assigned_caregiver_id" json:"assigned_caregiver_id"`
	Answers             []forms.Answer     `json:"answers,omitempty"`
	Diagnostics         []forms.Diagnostic `json:"diagnostics,omitempty"`
	RoutedAppointmentID *uuid.UUID         `json:"routed_appointment_id,omitempty"`
	SubmittedAt         time.Time          `db:"submitted_at" json:"submitted_at"`
	UpdatedAt           time.Time          `db:"updated_at" json:"updated_at"`

	// routedTo is set when the latest evaluation created or moved an
	// appointment.
	routedTo *scheduling.Caregiver
}

// clearOutcome resets the rule-derived fields.
func (r *Response) clearOutcome() {
	r.Classification = nil
	r.Conduct = nil
	r.AssignedCaregiverID = nil
}

// applyRule copies a matched rule's outcome onto the response.
func (r *Response) applyRule(rule *forms.ScoreRule) {
	classification := rule.Classification
	r.Classification = &classification
	r.Conduct = nil
	if rule.Conduct != "" {
		conduct := rule.Conduct
		r.Conduct = &conduct
	}
	r.AssignedCaregiverID = nil
	if rule.TargetCaregiverID != nil {
		id := *rule.TargetCaregiverID
		r.AssignedCaregiverID = &id
	}
}

// Detail is a response as shown to staff: the stored outcome next to a
// per-answer breakdown computed against the form's current options.
type Detail struct {
	*Response
	FormTitle    string              `json:"form_title"`
	CurrentScore int                 `json:"current_score"`
	Breakdown    []forms.AnswerScore `json:"breakdown"`
}

// SubmitInput is the body of a submission or update. PatientID is honoured
// for staff only.
type SubmitInput struct {
	PatientID *uuid.UUID     `json:"patient_id,omitempty"`
	Answers   []forms.Answer `json:"answers"`
}

// ListFilter narrows the cross-form response worklist. Only responses of
// active forms are listed.
type ListFilter struct {
	FormTitle   string
	PatientName string
	IsScreening *bool
	ScoreMin    *int
	ScoreMax    *int
	From        *time.Time
	To          *time.Time
}

// Summary is a worklist row: the stored outcome with the form and patient
// it belongs to.
type Summary struct {
	*Response
	FormTitle   string `json:"form_title"`
	IsScreening bool   `json:"is_screening"`
	PatientName string `json:"patient_name"`
}
