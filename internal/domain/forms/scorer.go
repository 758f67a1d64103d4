package forms

import (
	"github.com/google/uuid"
)

// DiagnosticKind names a way an answer failed to contribute points.
type DiagnosticKind string

const (
	// DiagUnknownQuestion: the answer references a question the form does not have.
	DiagUnknownQuestion DiagnosticKind = "unknown_question"
	// DiagUnmatchedOption: a selected label matches none of the question's options.
	DiagUnmatchedOption DiagnosticKind = "unmatched_option"
	// DiagKindMismatch: a single selection on a multi-choice question or the reverse.
	DiagKindMismatch DiagnosticKind = "kind_mismatch"
)

// Diagnostic records an answer that scored zero, fully or in part, because
// it did not line up with the form. Scoring never fails on these.
type Diagnostic struct {
	QuestionID uuid.UUID      `json:"question_id"`
	Kind       DiagnosticKind `json:"kind"`
	Label      string         `json:"label,omitempty"`
}

// AnswerScore is the contribution of one answer, in answer order.
type AnswerScore struct {
	QuestionID uuid.UUID `json:"question_id"`
	Score      int       `json:"score"`
}

type Result struct {
	Total       int           `json:"total"`
	Answers     []AnswerScore `json:"answers"`
	Diagnostics []Diagnostic  `json:"diagnostics,omitempty"`
}

// Score totals the points of answers against questions. Single-choice
// answers earn the value of the first option whose text equals the label;
// multi-choice answers earn the sum of every option whose text is in the
// selected set. Anything that does not line up contributes zero and is
// reported as a diagnostic.
func Score(questions map[uuid.UUID]*Question, answers []Answer) Result {
	res := Result{Answers: make([]AnswerScore, 0, len(answers))}
	for _, a := range answers {
		pts, diags := scoreAnswer(questions[a.QuestionID], a)
		res.Total += pts
		res.Answers = append(res.Answers, AnswerScore{QuestionID: a.QuestionID, Score: pts})
		res.Diagnostics = append(res.Diagnostics, diags...)
	}
	return res
}

func scoreAnswer(q *Question, a Answer) (int, []Diagnostic) {
	if q == nil {
		return 0, []Diagnostic{{QuestionID: a.QuestionID, Kind: DiagUnknownQuestion}}
	}

	switch q.Kind {
	case KindMultiChoice:
		texts, ok := a.Selection.Texts()
		if !ok {
			return 0, []Diagnostic{{QuestionID: q.ID, Kind: DiagKindMismatch}}
		}
		selected := make(map[string]bool, len(texts))
		for _, t := range texts {
			selected[t] = true
		}
		pts := 0
		matched := make(map[string]bool, len(texts))
		for _, opt := range q.Options {
			if selected[opt.Text] {
				pts += opt.Value
				matched[opt.Text] = true
			}
		}
		var diags []Diagnostic
		for _, t := range texts {
			if !matched[t] {
				diags = append(diags, Diagnostic{QuestionID: q.ID, Kind: DiagUnmatchedOption, Label: t})
				matched[t] = true
			}
		}
		return pts, diags

	case KindSingleChoice:
		text, ok := a.Selection.Text()
		if !ok {
			return 0, []Diagnostic{{QuestionID: q.ID, Kind: DiagKindMismatch}}
		}
		for _, opt := range q.Options {
			if opt.Text == text {
				return opt.Value, nil
			}
		}
		return 0, []Diagnostic{{QuestionID: q.ID, Kind: DiagUnmatchedOption, Label: text}}
	}

	return 0, []Diagnostic{{QuestionID: q.ID, Kind: DiagKindMismatch}}
}
