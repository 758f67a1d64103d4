package forms

import (
	"context"

	"github.com/google/uuid"

	"github.com/healthdesk/triage/internal/domain/identity"
	"github.com/healthdesk/triage/internal/platform/apperr"
	"github.com/healthdesk/triage/internal/platform/db"
)

// UserDirectory resolves user types for rule targets and assignments.
type UserDirectory interface {
	GetUserType(ctx context.Context, id uuid.UUID) (identity.UserType, error)
}

type Service struct {
	tx    db.Transactor
	forms FormRepository
	rules RuleRepository
	users UserDirectory
}

func NewService(tx db.Transactor, forms FormRepository, rules RuleRepository, users UserDirectory) *Service {
	return &Service{tx: tx, forms: forms, rules: rules, users: users}
}

// -- Forms --

// CreateForm stores a form with its questions and any initial score rules.
// Rules without an explicit order take their list position.
func (s *Service) CreateForm(ctx context.Context, in FormInput) (*Form, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}

	var rules []ScoreRule
	if in.ScoreRules != nil {
		for i, ri := range *in.ScoreRules {
			rules = append(rules, ri.toRule(uuid.Nil, i))
		}
		if err := s.validateRuleSet(ctx, rules); err != nil {
			return nil, err
		}
	}

	f := &Form{Title: in.Title, Description: in.Description, IsScreening: in.IsScreening}
	for i, qi := range in.Questions {
		f.Questions = append(f.Questions, qi.toQuestion(uuid.Nil, i))
	}

	var out *Form
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		if err := s.forms.Create(ctx, f); err != nil {
			return err
		}
		for i := range rules {
			rules[i].FormID = f.ID
			if err := s.rules.Create(ctx, &rules[i]); err != nil {
				return err
			}
		}
		var err error
		out, err = s.forms.GetByID(ctx, f.ID)
		return err
	})
	return out, err
}

func (s *Service) GetForm(ctx context.Context, id uuid.UUID) (*Form, error) {
	return s.forms.GetByID(ctx, id)
}

func (s *Service) ListForms(ctx context.Context, filter ListFilter, limit, offset int) ([]*Form, int, error) {
	return s.forms.List(ctx, filter, limit, offset)
}

// UpdateForm rewrites the title and description, reconciles questions and
// options by id and, when in.ScoreRules is set, replaces the rule set. The
// screening flag has its own operations and is not touched here.
func (s *Service) UpdateForm(ctx context.Context, id uuid.UUID, in FormInput) (*Form, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}

	var rules []ScoreRule
	if in.ScoreRules != nil {
		for i, ri := range *in.ScoreRules {
			rules = append(rules, ri.toRule(id, i))
		}
		if err := s.validateRuleSet(ctx, rules); err != nil {
			return nil, err
		}
	}

	var out *Form
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		if err := s.forms.Lock(ctx, id); err != nil {
			return err
		}
		current, err := s.forms.GetByID(ctx, id)
		if err != nil {
			return err
		}

		current.Title = in.Title
		current.Description = in.Description
		if err := s.forms.UpdateHeader(ctx, current); err != nil {
			return err
		}
		if err := s.applyQuestionPlan(ctx, planQuestions(id, current.Questions, in.Questions)); err != nil {
			return err
		}

		if in.ScoreRules != nil {
			if err := s.rules.DeleteByForm(ctx, id); err != nil {
				return err
			}
			for i := range rules {
				if err := s.rules.Create(ctx, &rules[i]); err != nil {
					return err
				}
			}
		}

		out, err = s.forms.GetByID(ctx, id)
		return err
	})
	return out, err
}

func (s *Service) applyQuestionPlan(ctx context.Context, plan questionPlan) error {
	if err := s.forms.DeleteQuestions(ctx, plan.deleteQuestions); err != nil {
		return err
	}
	if err := s.forms.DeleteOptions(ctx, plan.deleteOptions); err != nil {
		return err
	}
	for i := range plan.updateQuestions {
		if err := s.forms.UpdateQuestion(ctx, &plan.updateQuestions[i]); err != nil {
			return err
		}
	}
	for i := range plan.updateOptions {
		if err := s.forms.UpdateOption(ctx, &plan.updateOptions[i]); err != nil {
			return err
		}
	}
	for i := range plan.createOptions {
		if err := s.forms.CreateOption(ctx, &plan.createOptions[i]); err != nil {
			return err
		}
	}
	for i := range plan.createQuestions {
		if err := s.forms.CreateQuestion(ctx, &plan.createQuestions[i]); err != nil {
			return err
		}
	}
	return nil
}

// DeleteForm deactivates the form. Responses and rules stay stored.
func (s *Service) DeleteForm(ctx context.Context, id uuid.UUID) error {
	return s.forms.Deactivate(ctx, id)
}

func (s *Service) SetScreening(ctx context.Context, id uuid.UUID, value bool) (bool, error) {
	if err := s.forms.SetScreening(ctx, id, value); err != nil {
		return false, err
	}
	return value, nil
}

func (s *Service) ToggleScreening(ctx context.Context, id uuid.UUID) (bool, error) {
	var value bool
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		if err := s.forms.Lock(ctx, id); err != nil {
			return err
		}
		f, err := s.forms.GetByID(ctx, id)
		if err != nil {
			return err
		}
		value = !f.IsScreening
		return s.forms.SetScreening(ctx, id, value)
	})
	return value, err
}

// -- Score rules --

func (s *Service) ListScoreRules(ctx context.Context, formID uuid.UUID) ([]ScoreRule, error) {
	f, err := s.forms.GetByID(ctx, formID)
	if err != nil {
		return nil, err
	}
	return f.ScoreRules, nil
}

// CreateScoreRule adds one rule after checking it against the form's other
// rules. The form row is locked so concurrent rule writes on the same form
// are checked one after another.
func (s *Service) CreateScoreRule(ctx context.Context, formID uuid.UUID, in RuleInput) (*ScoreRule, error) {
	rule := in.toRule(formID, 0)
	if err := ValidateRule(rule); err != nil {
		return nil, err
	}
	if err := s.checkTarget(ctx, rule.TargetCaregiverID); err != nil {
		return nil, err
	}

	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		if err := s.forms.Lock(ctx, formID); err != nil {
			return err
		}
		existing, err := s.rules.ListByForm(ctx, formID)
		if err != nil {
			return err
		}
		if err := ValidateCandidate(rule, existing); err != nil {
			return err
		}
		return s.rules.Create(ctx, &rule)
	})
	if err != nil {
		return nil, err
	}
	return &rule, nil
}

// UpdateScoreRule replaces a rule's fields. A nil in.Order keeps the
// current order.
func (s *Service) UpdateScoreRule(ctx context.Context, formID, ruleID uuid.UUID, in RuleInput) (*ScoreRule, error) {
	var out *ScoreRule
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		if err := s.forms.Lock(ctx, formID); err != nil {
			return err
		}
		current, err := s.rules.Get(ctx, formID, ruleID)
		if err != nil {
			return err
		}

		rule := in.toRule(formID, current.Order)
		rule.ID = current.ID
		rule.CreatedAt = current.CreatedAt
		if err := ValidateRule(rule); err != nil {
			return err
		}
		if err := s.checkTarget(ctx, rule.TargetCaregiverID); err != nil {
			return err
		}

		existing, err := s.rules.ListByForm(ctx, formID)
		if err != nil {
			return err
		}
		if err := ValidateCandidate(rule, existing); err != nil {
			return err
		}
		if err := s.rules.Update(ctx, &rule); err != nil {
			return err
		}
		out = &rule
		return nil
	})
	return out, err
}

func (s *Service) DeleteScoreRule(ctx context.Context, formID, ruleID uuid.UUID) error {
	return s.tx.InTx(ctx, func(ctx context.Context) error {
		if err := s.forms.Lock(ctx, formID); err != nil {
			return err
		}
		return s.rules.Delete(ctx, formID, ruleID)
	})
}

func (s *Service) validateRuleSet(ctx context.Context, rules []ScoreRule) error {
	if err := ValidateNoOverlap(rules); err != nil {
		return err
	}
	for _, r := range rules {
		if err := s.checkTarget(ctx, r.TargetCaregiverID); err != nil {
			return err
		}
	}
	return nil
}

// checkTarget accepts an empty target or one naming a physician or
// professional.
func (s *Service) checkTarget(ctx context.Context, id *uuid.UUID) error {
	if id == nil {
		return nil
	}
	t, err := s.users.GetUserType(ctx, *id)
	if err != nil {
		return err
	}
	if !t.IsCaregiver() {
		return apperr.Validation("target caregiver %s is a %s, not a physician or professional", *id, t)
	}
	return nil
}

// -- Assignments --

// AssignPatients replaces the set of patients the form is handed to.
func (s *Service) AssignPatients(ctx context.Context, formID uuid.UUID, userIDs []uuid.UUID) error {
	if err := s.checkPatients(ctx, userIDs); err != nil {
		return err
	}
	return s.tx.InTx(ctx, func(ctx context.Context) error {
		if err := s.forms.Lock(ctx, formID); err != nil {
			return err
		}
		return s.forms.SetAssignments(ctx, formID, userIDs)
	})
}

func (s *Service) UnassignPatients(ctx context.Context, formID uuid.UUID, userIDs []uuid.UUID) error {
	return s.tx.InTx(ctx, func(ctx context.Context) error {
		if err := s.forms.Lock(ctx, formID); err != nil {
			return err
		}
		return s.forms.RemoveAssignments(ctx, formID, userIDs)
	})
}

func (s *Service) ListAssignedPatients(ctx context.Context, formID uuid.UUID) ([]*identity.User, error) {
	if _, err := s.forms.GetByID(ctx, formID); err != nil {
		return nil, err
	}
	return s.forms.ListAssigned(ctx, formID)
}

// FormsAssignedTo lists the active forms handed to a patient.
func (s *Service) FormsAssignedTo(ctx context.Context, userID uuid.UUID) ([]*Form, error) {
	return s.forms.ListAssignedTo(ctx, userID)
}

func (s *Service) checkPatients(ctx context.Context, userIDs []uuid.UUID) error {
	for _, id := range userIDs {
		t, err := s.users.GetUserType(ctx, id)
		if err != nil {
			return err
		}
		if t != identity.UserTypePatient {
			return apperr.Validation("user %s is not a patient", id)
		}
	}
	return nil
}
