package forms

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
)

type QuestionKind string

const (
	KindSingleChoice QuestionKind = "SINGLE_CHOICE"
	KindMultiChoice  QuestionKind = "MULTI_CHOICE"
)

func (k QuestionKind) Valid() bool {
	return k == KindSingleChoice || k == KindMultiChoice
}

// Option maps to the question_option table. Value is the points awarded
// when the option is selected.
type Option struct {
	ID         uuid.UUID `db:"id" json:"id"`
	QuestionID uuid.UUID `db:"question_id" json:"question_id"`
	Text       string    `db:"text" json:"text"`
	Value      int       `db:"value" json:"value"`
	Position   int       `db:"position" json:"position"`
}

// Question maps to the form_question table.
type Question struct {
	ID       uuid.UUID    `db:"id" json:"id"`
	FormID   uuid.UUID    `db:"form_id" json:"form_id"`
	Text     string       `db:"text" json:"text"`
	Kind     QuestionKind `db:"kind" json:"kind"`
	Required bool         `db:"required" json:"required"`
	Position int          `db:"position" json:"position"`
	Options  []Option     `json:"options"`
}

// ScoreRule maps a closed score range of a form to a classification and,
// optionally, the caregiver that matching responses are routed to.
type ScoreRule struct {
	ID                uuid.UUID  `db:"id" json:"id"`
	FormID            uuid.UUID  `db:"form_id" json:"form_id"`
	MinScore          int        `db:"min_score" json:"min_score"`
	MaxScore          int        `db:"max_score" json:"max_score"`
	Classification    string     `db:"classification" json:"classification"`
	Conduct           string     `db:"conduct" json:"conduct"`
	TargetCaregiverID *uuid.UUID `db:"target_caregiver_id" json:"target_caregiver_id,omitempty"`
	Order             int        `db:"rule_order" json:"order"`
	CreatedAt         time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time  `db:"updated_at" json:"updated_at"`
}

// Range is the closed score interval the rule covers.
func (r ScoreRule) Range() Range { return Range{Min: r.MinScore, Max: r.MaxScore} }

// Form maps to the form table. Questions and ScoreRules are loaded with it.
type Form struct {
	ID            uuid.UUID   `db:"id" json:"id"`
	Title         string      `db:"title" json:"title"`
	Description   *string     `db:"description" json:"description,omitempty"`
	IsScreening   bool        `db:"is_screening" json:"is_screening"`
	Active        bool        `db:"active" json:"active"`
	Questions     []Question  `json:"questions,omitempty"`
	ScoreRules    []ScoreRule `json:"score_rules,omitempty"`
	ResponseCount int         `json:"response_count"`
	CreatedAt     time.Time   `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time   `db:"updated_at" json:"updated_at"`
}

// QuestionIndex keys the form's questions by id.
func (f *Form) QuestionIndex() map[uuid.UUID]*Question {
	idx := make(map[uuid.UUID]*Question, len(f.Questions))
	for i := range f.Questions {
		idx[f.Questions[i].ID] = &f.Questions[i]
	}
	return idx
}

// ListFilter narrows form listings. Zero values do not filter.
type ListFilter struct {
	Title       string
	IsScreening *bool
	UpdatedFrom *time.Time
	UpdatedTo   *time.Time
}

// Selection is what an answer picked: one option label for single-choice
// questions or a set of labels for multi-choice ones.
type Selection struct {
	multi  bool
	single string
	set    []string
}

func Single(text string) Selection { return Selection{single: text} }

func Multi(texts ...string) Selection {
	return Selection{multi: true, set: append([]string{}, texts...)}
}

func (s Selection) IsMulti() bool { return s.multi }

// Text returns the single label; ok is false for a multi selection.
func (s Selection) Text() (string, bool) { return s.single, !s.multi }

// Texts returns the label set; ok is false for a single selection.
func (s Selection) Texts() ([]string, bool) { return s.set, s.multi }

// Answer ties a selection to a question. On the wire a single selection is
// {"question_id", "value"} and a multi selection {"question_id", "values"}.
type Answer struct {
	QuestionID uuid.UUID
	Selection  Selection
}

var errAnswerShape = errors.New("answer must carry exactly one of value or values")

func (a Answer) MarshalJSON() ([]byte, error) {
	if texts, ok := a.Selection.Texts(); ok {
		if texts == nil {
			texts = []string{}
		}
		return json.Marshal(struct {
			QuestionID uuid.UUID `json:"question_id"`
			Values     []string  `json:"values"`
		}{a.QuestionID, texts})
	}
	text, _ := a.Selection.Text()
	return json.Marshal(struct {
		QuestionID uuid.UUID `json:"question_id"`
		Value      string    `json:"value"`
	}{a.QuestionID, text})
}

func (a *Answer) UnmarshalJSON(data []byte) error {
	var in struct {
		QuestionID uuid.UUID `json:"question_id"`
		Value      *string   `json:"value"`
		Values     *[]string `json:"values"`
	}
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	switch {
	case in.Value != nil && in.Values != nil, in.Value == nil && in.Values == nil:
		return errAnswerShape
	case in.Values != nil:
		a.Selection = Multi(*in.Values...)
	default:
		a.Selection = Single(*in.Value)
	}
	a.QuestionID = in.QuestionID
	return nil
}
