package forms

import (
	"context"

	"github.com/google/uuid"

	"github.com/healthdesk/triage/internal/domain/identity"
)

type FormRepository interface {
	// Create stores the form with its questions and options. Ids and
	// positions are assigned by the repository.
	Create(ctx context.Context, f *Form) error
	// GetByID loads an active form with questions, options and score rules.
	GetByID(ctx context.Context, id uuid.UUID) (*Form, error)
	// Lock takes a row lock on an active form for the current transaction.
	Lock(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context, filter ListFilter, limit, offset int) ([]*Form, int, error)
	UpdateHeader(ctx context.Context, f *Form) error
	SetScreening(ctx context.Context, id uuid.UUID, value bool) error
	Deactivate(ctx context.Context, id uuid.UUID) error

	CreateQuestion(ctx context.Context, q *Question) error
	UpdateQuestion(ctx context.Context, q *Question) error
	DeleteQuestions(ctx context.Context, ids []uuid.UUID) error
	CreateOption(ctx context.Context, o *Option) error
	UpdateOption(ctx context.Context, o *Option) error
	DeleteOptions(ctx context.Context, ids []uuid.UUID) error

	SetAssignments(ctx context.Context, formID uuid.UUID, userIDs []uuid.UUID) error
	RemoveAssignments(ctx context.Context, formID uuid.UUID, userIDs []uuid.UUID) error
	ListAssigned(ctx context.Context, formID uuid.UUID) ([]*identity.User, error)
	ListAssignedTo(ctx context.Context, userID uuid.UUID) ([]*Form, error)
}

type RuleRepository interface {
	ListByForm(ctx context.Context, formID uuid.UUID) ([]ScoreRule, error)
	Get(ctx context.Context, formID, ruleID uuid.UUID) (*ScoreRule, error)
	Create(ctx context.Context, r *ScoreRule) error
	Update(ctx context.Context, r *ScoreRule) error
	Delete(ctx context.Context, formID, ruleID uuid.UUID) error
	DeleteByForm(ctx context.Context, formID uuid.UUID) error
}
