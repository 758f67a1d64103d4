package forms

import (
	"testing"

	"github.com/google/uuid"
)

func TestPlanQuestions(t *testing.T) {
	formID := uuid.New()
	keep := Question{ID: uuid.New(), FormID: formID, Options: []Option{{ID: uuid.New(), Text: "x"}, {ID: uuid.New(), Text: "y"}}}
	drop := Question{ID: uuid.New(), FormID: formID, Options: []Option{{ID: uuid.New()}}}
	keptOpt := keep.Options[1].ID

	plan := planQuestions(formID, []Question{keep, drop}, []QuestionInput{
		{Text: "New", Kind: KindSingleChoice, Options: []OptionInput{{Text: "n", Value: 1}}},
		{ID: &keep.ID, Text: "Kept", Kind: KindMultiChoice, Options: []OptionInput{
			{ID: &keptOpt, Text: "y2", Value: 2},
			{Text: "z", Value: 3},
		}},
	})

	if len(plan.createQuestions) != 1 || plan.createQuestions[0].Text != "New" || plan.createQuestions[0].Position != 0 {
		t.Errorf("unexpected created questions: %+v", plan.createQuestions)
	}
	if len(plan.createQuestions[0].Options) != 1 {
		t.Error("new questions carry their options")
	}
	if len(plan.updateQuestions) != 1 || plan.updateQuestions[0].ID != keep.ID || plan.updateQuestions[0].Position != 1 {
		t.Errorf("unexpected updated questions: %+v", plan.updateQuestions)
	}
	if len(plan.deleteQuestions) != 1 || plan.deleteQuestions[0] != drop.ID {
		t.Errorf("expected %s deleted, got %v", drop.ID, plan.deleteQuestions)
	}
	if len(plan.updateOptions) != 1 || plan.updateOptions[0].ID != keptOpt || plan.updateOptions[0].Text != "y2" {
		t.Errorf("unexpected updated options: %+v", plan.updateOptions)
	}
	if len(plan.createOptions) != 1 || plan.createOptions[0].QuestionID != keep.ID || plan.createOptions[0].Position != 1 {
		t.Errorf("unexpected created options: %+v", plan.createOptions)
	}
	if len(plan.deleteOptions) != 1 || plan.deleteOptions[0] != keep.Options[0].ID {
		t.Errorf("expected option x deleted, got %v", plan.deleteOptions)
	}
}

func TestPlanQuestions_ForeignAndRepeatedIDs(t *testing.T) {
	formID := uuid.New()
	stored := Question{ID: uuid.New(), FormID: formID}
	foreign := uuid.New()

	plan := planQuestions(formID, []Question{stored}, []QuestionInput{
		{ID: &foreign, Text: "Foreign", Kind: KindSingleChoice},
		{ID: &stored.ID, Text: "First", Kind: KindSingleChoice},
		{ID: &stored.ID, Text: "Again", Kind: KindSingleChoice},
	})
	if len(plan.updateQuestions) != 1 || plan.updateQuestions[0].Text != "First" {
		t.Errorf("expected only the first use of an id to update, got %+v", plan.updateQuestions)
	}
	if len(plan.createQuestions) != 2 {
		t.Errorf("expected unknown and repeated ids to be created, got %+v", plan.createQuestions)
	}
	if len(plan.deleteQuestions) != 0 {
		t.Errorf("expected nothing deleted, got %v", plan.deleteQuestions)
	}
}

func TestRuleInput_ToRule(t *testing.T) {
	formID := uuid.New()
	r := RuleInput{MinScore: 1, MaxScore: 2, Classification: "  Low "}.toRule(formID, 7)
	if r.Order != 7 || r.Classification != "Low" || r.FormID != formID {
		t.Errorf("unexpected rule: %+v", r)
	}
	if r := (RuleInput{Order: intPtr(2)}).toRule(formID, 7); r.Order != 2 {
		t.Errorf("expected explicit order 2, got %d", r.Order)
	}
}
