package responses

import (
	"context"

	"github.com/google/uuid"

	"github.com/healthdesk/triage/internal/domain/forms"
)

type ResponseRepository interface {
	// Create stores an empty response shell; ID and timestamps are set.
	Create(ctx context.Context, r *Response) error
	// ReplaceAnswers deletes the response's answers and stores answers in
	// their given order.
	ReplaceAnswers(ctx context.Context, responseID uuid.UUID, answers []forms.Answer) error
	// GetByID loads the response with its answers.
	GetByID(ctx context.Context, id uuid.UUID) (*Response, error)
	// Lock row-locks the response matching all three ids for the current
	// transaction.
	Lock(ctx context.Context, formID, patientID, id uuid.UUID) error
	SaveOutcome(ctx context.Context, r *Response) error
	Delete(ctx context.Context, formID, id uuid.UUID) error
	// ListByForm returns the form's responses, newest first, without answers.
	ListByForm(ctx context.Context, formID uuid.UUID, limit, offset int) ([]*Response, int, error)
	// List returns responses across active forms matching f, newest first,
	// without answers.
	List(ctx context.Context, f ListFilter, limit, offset int) ([]*Summary, int, error)
	TotalScore(ctx context.Context, id uuid.UUID) (int, error)
}
