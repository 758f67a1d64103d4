package scheduling

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusCancelled Status = "cancelled"
	StatusCompleted Status = "completed"
)

// ActiveStatuses hold a caregiver's slot.
var ActiveStatuses = []Status{StatusPending, StatusConfirmed}

func ParseStatus(s string) (Status, error) {
	st := Status(strings.ToLower(strings.TrimSpace(s)))
	switch st {
	case StatusPending, StatusConfirmed, StatusCancelled, StatusCompleted:
		return st, nil
	}
	return "", fmt.Errorf("invalid appointment status %q", s)
}

type CaregiverKind string

const (
	KindPhysician    CaregiverKind = "physician"
	KindProfessional CaregiverKind = "professional"
)

// Caregiver is the one physician or professional an appointment belongs
// to. Storage flattens it to two nullable columns.
type Caregiver struct {
	Kind CaregiverKind `json:"kind"`
	ID   uuid.UUID     `json:"id"`
}

func Physician(id uuid.UUID) Caregiver    { return Caregiver{Kind: KindPhysician, ID: id} }
func Professional(id uuid.UUID) Caregiver { return Caregiver{Kind: KindProfessional, ID: id} }

// Columns splits the caregiver into (physician_id, professional_id).
func (c Caregiver) Columns() (physicianID, professionalID *uuid.UUID) {
	id := c.ID
	if c.Kind == KindPhysician {
		return &id, nil
	}
	return nil, &id
}

// CaregiverFromColumns rebuilds the caregiver from its storage columns.
// Exactly one of them must be set.
func CaregiverFromColumns(physicianID, professionalID *uuid.UUID) (Caregiver, error) {
	switch {
	case physicianID != nil && professionalID == nil:
		return Physician(*physicianID), nil
	case professionalID != nil && physicianID == nil:
		return Professional(*professionalID), nil
	}
	return Caregiver{}, fmt.Errorf("appointment must reference exactly one caregiver")
}

// Appointment maps to the appointment table.
type Appointment struct {
	ID               uuid.UUID  `db:"id" json:"id"`
	PatientID        uuid.UUID  `db:"patient_id" json:"patient_id"`
	Caregiver        Caregiver  `json:"caregiver"`
	ResponseID       *uuid.UUID `db:"response_id" json:"response_id,omitempty"`
	ScheduledAt      time.Time  `db:"scheduled_at" json:"scheduled_at"`
	Status           Status     `db:"status" json:"status"`
	Notes            *string    `db:"notes" json:"notes,omitempty"`
	TotalScoreAtTime *int       `db:"total_score_at_time" json:"total_score_at_time,omitempty"`
	CreatedAt        time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time  `db:"updated_at" json:"updated_at"`
}

// MarshalJSON adds the flattened caregiver ids next to the tagged form so
// clients filtering on physician_id or professional_id keep working.
func (a Appointment) MarshalJSON() ([]byte, error) {
	type plain Appointment
	phys, prof := a.Caregiver.Columns()
	return json.Marshal(struct {
		plain
		PhysicianID    *uuid.UUID `json:"physician_id"`
		ProfessionalID *uuid.UUID `json:"professional_id"`
	}{plain(a), phys, prof})
}

// ListFilter narrows appointment listings. Cancelled appointments are left
// out unless Status asks for them.
type ListFilter struct {
	PatientID   *uuid.UUID
	CaregiverID *uuid.UUID
	Status      *Status
	From        *time.Time
	To          *time.Time
}
