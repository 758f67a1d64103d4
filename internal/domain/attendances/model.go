package attendances

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/healthdesk/triage/internal/domain/scheduling"
)

type Status string

const (
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusCancelled  Status = "cancelled"
)

func ParseStatus(s string) (Status, error) {
	st := Status(strings.ToLower(strings.TrimSpace(s)))
	switch st {
	case StatusInProgress, StatusCompleted, StatusCancelled:
		return st, nil
	}
	return "", fmt.Errorf("invalid attendance status %q", s)
}

// Vitals are the measurements taken during an attendance. Unset values are
// nil.
type Vitals struct {
	BloodPressure   *string  `db:"blood_pressure" json:"blood_pressure,omitempty"`
	HeartRate       *int     `db:"heart_rate" json:"heart_rate,omitempty"`
	Temperature     *float64 `db:"temperature" json:"temperature,omitempty"`
	RespiratoryRate *int     `db:"respiratory_rate" json:"respiratory_rate,omitempty"`
}

func (v Vitals) validate() error {
	if v.HeartRate != nil && (*v.HeartRate < 0 || *v.HeartRate > 300) {
		return fmt.Errorf("heart_rate must be between 0 and 300")
	}
	if v.Temperature != nil && (*v.Temperature < 30 || *v.Temperature > 45) {
		return fmt.Errorf("temperature must be between 30 and 45")
	}
	if v.RespiratoryRate != nil && (*v.RespiratoryRate < 0 || *v.RespiratoryRate > 100) {
		return fmt.Errorf("respiratory_rate must be between 0 and 100")
	}
	return nil
}

// Clinical holds the free-text notes of an attendance.
type Clinical struct {
	ChiefComplaint      *string `db:"chief_complaint" json:"chief_complaint,omitempty"`
	PresentingIllness   *string `db:"presenting_illness" json:"presenting_illness,omitempty"`
	MedicalHistory      *string `db:"medical_history" json:"medical_history,omitempty"`
	PhysicalExamination *string `db:"physical_examination" json:"physical_examination,omitempty"`
	Diagnosis           *string `db:"diagnosis" json:"diagnosis,omitempty"`
	Treatment           *string `db:"treatment" json:"treatment,omitempty"`
}

// merge copies every set field of o over c.
func (c *Clinical) merge(o Clinical) {
	for _, f := range []struct{ dst, src **string }{
		{&c.ChiefComplaint, &o.ChiefComplaint},
		{&c.PresentingIllness, &o.PresentingIllness},
		{&c.MedicalHistory, &o.MedicalHistory},
		{&c.PhysicalExamination, &o.PhysicalExamination},
		{&c.Diagnosis, &o.Diagnosis},
		{&c.Treatment, &o.Treatment},
	} {
		if *f.src != nil {
			*f.dst = *f.src
		}
	}
}

// Attendance maps to the attendance table.
type Attendance struct {
	ID            uuid.UUID            `db:"id" json:"id"`
	PatientID     uuid.UUID            `db:"patient_id" json:"patient_id"`
	Caregiver     scheduling.Caregiver `json:"caregiver"`
	AppointmentID *uuid.UUID           `db:"appointment_id" json:"appointment_id,omitempty"`
	AttendedAt    time.Time            `db:"attended_at" json:"attended_at"`
	Status        Status               `db:"status" json:"status"`
	Clinical
	Vitals
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// LinkedResponse is a form response reviewed during an attendance.
type LinkedResponse struct {
	ResponseID     uuid.UUID `json:"response_id"`
	FormID         uuid.UUID `json:"form_id"`
	FormTitle      string    `json:"form_title"`
	TotalScore     int       `json:"total_score"`
	Classification *string   `json:"classification"`
	SubmittedAt    time.Time `json:"submitted_at"`
	LinkedAt       time.Time `json:"linked_at"`
}

// ListFilter narrows List. Names match case-insensitively by substring.
type ListFilter struct {
	PatientName   string
	CaregiverName string
	Status        *Status
	AppointmentID *uuid.UUID
	From          *time.Time
	To            *time.Time
}
