package forms

import (
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/healthdesk/triage/internal/platform/apperr"
)

const minTitleLength = 4

// FormInput is the writable shape of a form. On update, questions and
// options that carry the id of an existing row are edited in place, those
// without one are added, and existing ones left out are removed. A nil
// ScoreRules leaves the rule set alone; an empty one clears it.
type FormInput struct {
	Title       string          `json:"title" yaml:"title"`
	Description *string         `json:"description,omitempty" yaml:"description,omitempty"`
	IsScreening bool            `json:"is_screening" yaml:"is_screening"`
	Questions   []QuestionInput `json:"questions" yaml:"questions"`
	ScoreRules  *[]RuleInput    `json:"score_rules,omitempty" yaml:"score_rules,omitempty"`
}

func (in FormInput) isEmpty() bool {
	return in.Title == "" && in.Description == nil && !in.IsScreening &&
		in.Questions == nil && in.ScoreRules == nil
}

type QuestionInput struct {
	ID       *uuid.UUID    `json:"id,omitempty" yaml:"-"`
	Text     string        `json:"text" yaml:"text"`
	Kind     QuestionKind  `json:"kind" yaml:"kind"`
	Required *bool         `json:"required,omitempty" yaml:"required,omitempty"`
	Options  []OptionInput `json:"options" yaml:"options"`
}

type OptionInput struct {
	ID    *uuid.UUID `json:"id,omitempty" yaml:"-"`
	Text  string     `json:"text" yaml:"text"`
	Value int        `json:"value" yaml:"value"`
}

// RuleInput is the writable shape of a score rule. A nil Order means
// "position in the list" when a form is created, 0 when a single rule is
// created and "unchanged" on update.
type RuleInput struct {
	MinScore          int        `json:"min_score" yaml:"min_score"`
	MaxScore          int        `json:"max_score" yaml:"max_score"`
	Classification    string     `json:"classification" yaml:"classification"`
	Conduct           string     `json:"conduct" yaml:"conduct"`
	TargetCaregiverID *uuid.UUID `json:"target_caregiver_id,omitempty" yaml:"target_caregiver_id,omitempty"`
	Order             *int       `json:"order,omitempty" yaml:"order,omitempty"`
}

func (in RuleInput) toRule(formID uuid.UUID, defaultOrder int) ScoreRule {
	order := defaultOrder
	if in.Order != nil {
		order = *in.Order
	}
	return ScoreRule{
		FormID:            formID,
		MinScore:          in.MinScore,
		MaxScore:          in.MaxScore,
		Classification:    strings.TrimSpace(in.Classification),
		Conduct:           strings.TrimSpace(in.Conduct),
		TargetCaregiverID: in.TargetCaregiverID,
		Order:             order,
	}
}

func (in *FormInput) validate() error {
	in.Title = strings.TrimSpace(in.Title)
	if utf8.RuneCountInString(in.Title) < minTitleLength {
		return apperr.Validation("title must be at least %d characters", minTitleLength)
	}
	for i := range in.Questions {
		q := &in.Questions[i]
		q.Kind = QuestionKind(strings.ToUpper(strings.TrimSpace(string(q.Kind))))
		if strings.TrimSpace(q.Text) == "" {
			return apperr.Validation("question %d: text is required", i+1)
		}
		if !q.Kind.Valid() {
			return apperr.Validation("question %d: invalid kind %q", i+1, q.Kind)
		}
		if len(q.Options) == 0 {
			return apperr.Validation("question %d: at least one option is required", i+1)
		}
		for j, o := range q.Options {
			if strings.TrimSpace(o.Text) == "" {
				return apperr.Validation("question %d option %d: text is required", i+1, j+1)
			}
		}
	}
	return nil
}

func (in QuestionInput) toQuestion(formID uuid.UUID, position int) Question {
	required := true
	if in.Required != nil {
		required = *in.Required
	}
	q := Question{
		FormID:   formID,
		Text:     strings.TrimSpace(in.Text),
		Kind:     in.Kind,
		Required: required,
		Position: position,
	}
	for j, o := range in.Options {
		q.Options = append(q.Options, Option{Text: o.Text, Value: o.Value, Position: j})
	}
	return q
}

// questionPlan is the set of row changes that turns a form's stored
// questions into the submitted ones.
type questionPlan struct {
	createQuestions []Question
	updateQuestions []Question
	deleteQuestions []uuid.UUID
	createOptions   []Option
	updateOptions   []Option
	deleteOptions   []uuid.UUID
}

func planQuestions(formID uuid.UUID, stored []Question, in []QuestionInput) questionPlan {
	var plan questionPlan

	existing := make(map[uuid.UUID]Question, len(stored))
	for _, q := range stored {
		existing[q.ID] = q
	}
	kept := make(map[uuid.UUID]bool)

	for i, qi := range in {
		next := qi.toQuestion(formID, i)
		old, ok := Question{}, false
		if qi.ID != nil {
			old, ok = existing[*qi.ID]
		}
		if !ok || kept[old.ID] {
			plan.createQuestions = append(plan.createQuestions, next)
			continue
		}
		kept[old.ID] = true
		next.ID = old.ID
		next.Options = nil
		plan.updateQuestions = append(plan.updateQuestions, next)

		oldOpts := make(map[uuid.UUID]bool, len(old.Options))
		for _, o := range old.Options {
			oldOpts[o.ID] = true
		}
		keptOpts := make(map[uuid.UUID]bool)
		for j, oi := range qi.Options {
			opt := Option{QuestionID: old.ID, Text: oi.Text, Value: oi.Value, Position: j}
			if oi.ID != nil && oldOpts[*oi.ID] && !keptOpts[*oi.ID] {
				opt.ID = *oi.ID
				keptOpts[opt.ID] = true
				plan.updateOptions = append(plan.updateOptions, opt)
				continue
			}
			plan.createOptions = append(plan.createOptions, opt)
		}
		for _, o := range old.Options {
			if !keptOpts[o.ID] {
				plan.deleteOptions = append(plan.deleteOptions, o.ID)
			}
		}
	}

	for _, q := range stored {
		if !kept[q.ID] {
			plan.deleteQuestions = append(plan.deleteQuestions, q.ID)
		}
	}
	return plan
}
