package forms

import (
	"context"
	"errors"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/healthdesk/triage/internal/domain/identity"
	"github.com/healthdesk/triage/internal/platform/apperr"
)

// -- In-memory store shared by the mock repositories --

type memStore struct {
	forms       map[uuid.UUID]*Form
	rules       map[uuid.UUID]*ScoreRule
	assignments map[uuid.UUID]map[uuid.UUID]bool
	users       map[uuid.UUID]identity.UserType
	locks       int
}

func newMemStore() *memStore {
	return &memStore{
		forms:       make(map[uuid.UUID]*Form),
		rules:       make(map[uuid.UUID]*ScoreRule),
		assignments: make(map[uuid.UUID]map[uuid.UUID]bool),
		users:       make(map[uuid.UUID]identity.UserType),
	}
}

func (m *memStore) activeForm(id uuid.UUID) (*Form, error) {
	f, ok := m.forms[id]
	if !ok || !f.Active {
		return nil, apperr.NotFound("form %s not found", id)
	}
	return f, nil
}

func (m *memStore) question(id uuid.UUID) *Question {
	for _, f := range m.forms {
		for i := range f.Questions {
			if f.Questions[i].ID == id {
				return &f.Questions[i]
			}
		}
	}
	return nil
}

func (m *memStore) addUser(t identity.UserType) uuid.UUID {
	id := uuid.New()
	m.users[id] = t
	return id
}

func (m *memStore) GetUserType(_ context.Context, id uuid.UUID) (identity.UserType, error) {
	t, ok := m.users[id]
	if !ok {
		return "", apperr.NotFound("user %s not found", id)
	}
	return t, nil
}

func (m *memStore) formRules(formID uuid.UUID) []ScoreRule {
	var out []ScoreRule
	for _, r := range m.rules {
		if r.FormID == formID {
			out = append(out, *r)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Order != out[j].Order {
			return out[i].Order < out[j].Order
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

type mockFormRepo struct{ *memStore }

func (m mockFormRepo) Create(ctx context.Context, f *Form) error {
	f.ID = uuid.New()
	f.Active = true
	f.CreatedAt = time.Now()
	f.UpdatedAt = f.CreatedAt
	questions := f.Questions
	stored := *f
	stored.Questions = nil
	m.forms[f.ID] = &stored
	for i := range questions {
		questions[i].FormID = f.ID
		questions[i].Position = i
		if err := m.CreateQuestion(ctx, &questions[i]); err != nil {
			return err
		}
	}
	return nil
}

func (m mockFormRepo) GetByID(_ context.Context, id uuid.UUID) (*Form, error) {
	f, err := m.activeForm(id)
	if err != nil {
		return nil, err
	}
	out := *f
	out.Questions = nil
	for _, q := range f.Questions {
		cp := q
		cp.Options = append([]Option(nil), q.Options...)
		sort.Slice(cp.Options, func(i, j int) bool { return cp.Options[i].Position < cp.Options[j].Position })
		out.Questions = append(out.Questions, cp)
	}
	sort.Slice(out.Questions, func(i, j int) bool { return out.Questions[i].Position < out.Questions[j].Position })
	out.ScoreRules = m.formRules(id)
	return &out, nil
}

func (m mockFormRepo) Lock(_ context.Context, id uuid.UUID) error {
	if _, err := m.activeForm(id); err != nil {
		return err
	}
	m.locks++
	return nil
}

func (m mockFormRepo) List(ctx context.Context, filter ListFilter, limit, offset int) ([]*Form, int, error) {
	var out []*Form
	for id, f := range m.forms {
		if !f.Active {
			continue
		}
		if filter.Title != "" && !strings.Contains(strings.ToLower(f.Title), strings.ToLower(filter.Title)) {
			continue
		}
		if filter.IsScreening != nil && f.IsScreening != *filter.IsScreening {
			continue
		}
		full, _ := m.GetByID(ctx, id)
		out = append(out, full)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Title < out[j].Title })
	total := len(out)
	if offset >= total {
		return nil, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return out[offset:end], total, nil
}

func (m mockFormRepo) UpdateHeader(_ context.Context, f *Form) error {
	stored, err := m.activeForm(f.ID)
	if err != nil {
		return err
	}
	stored.Title = f.Title
	stored.Description = f.Description
	stored.UpdatedAt = time.Now()
	return nil
}

func (m mockFormRepo) SetScreening(_ context.Context, id uuid.UUID, value bool) error {
	f, err := m.activeForm(id)
	if err != nil {
		return err
	}
	f.IsScreening = value
	return nil
}

func (m mockFormRepo) Deactivate(_ context.Context, id uuid.UUID) error {
	f, err := m.activeForm(id)
	if err != nil {
		return err
	}
	f.Active = false
	return nil
}

func (m mockFormRepo) CreateQuestion(ctx context.Context, q *Question) error {
	f, ok := m.forms[q.FormID]
	if !ok {
		return apperr.NotFound("form %s not found", q.FormID)
	}
	q.ID = uuid.New()
	opts := q.Options
	stored := *q
	stored.Options = nil
	f.Questions = append(f.Questions, stored)
	for j := range opts {
		opts[j].QuestionID = q.ID
		opts[j].Position = j
		if err := m.CreateOption(ctx, &opts[j]); err != nil {
			return err
		}
	}
	return nil
}

func (m mockFormRepo) UpdateQuestion(_ context.Context, q *Question) error {
	stored := m.question(q.ID)
	if stored == nil {
		return apperr.NotFound("question %s not found", q.ID)
	}
	stored.Text, stored.Kind, stored.Required, stored.Position = q.Text, q.Kind, q.Required, q.Position
	return nil
}

func (m mockFormRepo) DeleteQuestions(_ context.Context, ids []uuid.UUID) error {
	drop := make(map[uuid.UUID]bool, len(ids))
	for _, id := range ids {
		drop[id] = true
	}
	for _, f := range m.forms {
		kept := f.Questions[:0]
		for _, q := range f.Questions {
			if !drop[q.ID] {
				kept = append(kept, q)
			}
		}
		f.Questions = kept
	}
	return nil
}

func (m mockFormRepo) CreateOption(_ context.Context, o *Option) error {
	q := m.question(o.QuestionID)
	if q == nil {
		return apperr.NotFound("question %s not found", o.QuestionID)
	}
	o.ID = uuid.New()
	q.Options = append(q.Options, *o)
	return nil
}

func (m mockFormRepo) UpdateOption(_ context.Context, o *Option) error {
	q := m.question(o.QuestionID)
	if q == nil {
		return apperr.NotFound("question %s not found", o.QuestionID)
	}
	for i := range q.Options {
		if q.Options[i].ID == o.ID {
			q.Options[i] = *o
			return nil
		}
	}
	return apperr.NotFound("option %s not found", o.ID)
}

func (m mockFormRepo) DeleteOptions(_ context.Context, ids []uuid.UUID) error {
	drop := make(map[uuid.UUID]bool, len(ids))
	for _, id := range ids {
		drop[id] = true
	}
	for _, f := range m.forms {
		for i := range f.Questions {
			kept := f.Questions[i].Options[:0]
			for _, o := range f.Questions[i].Options {
				if !drop[o.ID] {
					kept = append(kept, o)
				}
			}
			f.Questions[i].Options = kept
		}
	}
	return nil
}

func (m mockFormRepo) SetAssignments(_ context.Context, formID uuid.UUID, userIDs []uuid.UUID) error {
	set := make(map[uuid.UUID]bool, len(userIDs))
	for _, id := range userIDs {
		set[id] = true
	}
	m.assignments[formID] = set
	return nil
}

func (m mockFormRepo) RemoveAssignments(_ context.Context, formID uuid.UUID, userIDs []uuid.UUID) error {
	for _, id := range userIDs {
		delete(m.assignments[formID], id)
	}
	return nil
}

func (m mockFormRepo) ListAssigned(_ context.Context, formID uuid.UUID) ([]*identity.User, error) {
	var out []*identity.User
	for id := range m.assignments[formID] {
		out = append(out, &identity.User{ID: id, Type: m.users[id], Active: true})
	}
	return out, nil
}

func (m mockFormRepo) ListAssignedTo(ctx context.Context, userID uuid.UUID) ([]*Form, error) {
	var out []*Form
	for formID, set := range m.assignments {
		if !set[userID] {
			continue
		}
		if f, err := m.GetByID(ctx, formID); err == nil {
			out = append(out, f)
		}
	}
	return out, nil
}

type mockRuleRepo struct{ *memStore }

func (m mockRuleRepo) ListByForm(_ context.Context, formID uuid.UUID) ([]ScoreRule, error) {
	return m.formRules(formID), nil
}

func (m mockRuleRepo) Get(_ context.Context, formID, ruleID uuid.UUID) (*ScoreRule, error) {
	r, ok := m.rules[ruleID]
	if !ok || r.FormID != formID {
		return nil, apperr.NotFound("score rule %s not found", ruleID)
	}
	cp := *r
	return &cp, nil
}

func (m mockRuleRepo) Create(_ context.Context, r *ScoreRule) error {
	r.ID = uuid.New()
	r.CreatedAt = time.Now()
	r.UpdatedAt = r.CreatedAt
	cp := *r
	m.rules[r.ID] = &cp
	return nil
}

func (m mockRuleRepo) Update(_ context.Context, r *ScoreRule) error {
	if _, ok := m.rules[r.ID]; !ok {
		return apperr.NotFound("score rule %s not found", r.ID)
	}
	r.UpdatedAt = time.Now()
	cp := *r
	m.rules[r.ID] = &cp
	return nil
}

func (m mockRuleRepo) Delete(_ context.Context, formID, ruleID uuid.UUID) error {
	r, ok := m.rules[ruleID]
	if !ok || r.FormID != formID {
		return apperr.NotFound("score rule %s not found", ruleID)
	}
	delete(m.rules, ruleID)
	return nil
}

func (m mockRuleRepo) DeleteByForm(_ context.Context, formID uuid.UUID) error {
	for id, r := range m.rules {
		if r.FormID == formID {
			delete(m.rules, id)
		}
	}
	return nil
}

// fakeTx runs the unit of work directly, joining any outer call.
type fakeTx struct{ calls int }

func (f *fakeTx) InTx(ctx context.Context, fn func(ctx context.Context) error) error {
	f.calls++
	return fn(ctx)
}

func newTestService() (*Service, *memStore) {
	store := newMemStore()
	return NewService(&fakeTx{}, mockFormRepo{store}, mockRuleRepo{store}, store), store
}

func intPtr(v int) *int { return &v }

func sampleInput() FormInput {
	return FormInput{
		Title: "  Anxiety screening ",
		Questions: []QuestionInput{
			{Text: "How often?", Kind: "single_choice", Options: []OptionInput{
				{Text: "Never", Value: 0}, {Text: "Sometimes", Value: 3}, {Text: "Always", Value: 5},
			}},
			{Text: "Symptoms", Kind: KindMultiChoice, Options: []OptionInput{
				{Text: "A", Value: 1}, {Text: "B", Value: 2}, {Text: "C", Value: 4},
			}},
		},
	}
}

func mustCreateForm(t *testing.T, svc *Service, in FormInput) *Form {
	t.Helper()
	f, err := svc.CreateForm(context.Background(), in)
	if err != nil {
		t.Fatalf("CreateForm: %v", err)
	}
	return f
}

// -- Forms --

func TestService_CreateForm(t *testing.T) {
	svc, _ := newTestService()
	in := sampleInput()
	in.ScoreRules = &[]RuleInput{
		{MinScore: 10, MaxScore: 20, Classification: "High"},
		{MinScore: 0, MaxScore: 9, Classification: "Low"},
	}
	f := mustCreateForm(t, svc, in)

	if f.Title != "Anxiety screening" {
		t.Errorf("expected trimmed title, got %q", f.Title)
	}
	if len(f.Questions) != 2 || f.Questions[0].Kind != KindSingleChoice {
		t.Fatalf("unexpected questions: %+v", f.Questions)
	}
	if !f.Questions[0].Required {
		t.Error("questions are required by default")
	}
	if len(f.Questions[1].Options) != 3 || f.Questions[1].Options[2].Text != "C" {
		t.Errorf("unexpected options: %+v", f.Questions[1].Options)
	}
	if len(f.ScoreRules) != 2 || f.ScoreRules[0].Classification != "High" || f.ScoreRules[1].Order != 1 {
		t.Errorf("rules should take their list position as order: %+v", f.ScoreRules)
	}
}

func TestService_CreateForm_Validation(t *testing.T) {
	svc, _ := newTestService()
	tests := []struct {
		name   string
		mutate func(*FormInput)
	}{
		{"short title", func(in *FormInput) { in.Title = " abc " }},
		{"unknown kind", func(in *FormInput) { in.Questions[0].Kind = "FREE_TEXT" }},
		{"no options", func(in *FormInput) { in.Questions[1].Options = nil }},
		{"blank question", func(in *FormInput) { in.Questions[0].Text = " " }},
		{"blank option", func(in *FormInput) { in.Questions[0].Options[1].Text = "" }},
		{"overlapping rules", func(in *FormInput) {
			in.ScoreRules = &[]RuleInput{
				{MinScore: 0, MaxScore: 10, Classification: "Low"},
				{MinScore: 10, MaxScore: 20, Classification: "High"},
			}
		}},
		{"inverted rule", func(in *FormInput) {
			in.ScoreRules = &[]RuleInput{{MinScore: 5, MaxScore: 1, Classification: "Low"}}
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := sampleInput()
			tt.mutate(&in)
			_, err := svc.CreateForm(context.Background(), in)
			if !errors.Is(err, apperr.ErrValidation) {
				t.Errorf("expected validation error, got %v", err)
			}
		})
	}
}

func TestService_CreateForm_TargetMustBeCaregiver(t *testing.T) {
	svc, store := newTestService()
	patient := store.addUser(identity.UserTypePatient)
	physician := store.addUser(identity.UserTypePhysician)

	in := sampleInput()
	in.ScoreRules = &[]RuleInput{{MinScore: 0, MaxScore: 5, Classification: "Low", TargetCaregiverID: &patient}}
	if _, err := svc.CreateForm(context.Background(), in); !errors.Is(err, apperr.ErrValidation) {
		t.Errorf("expected validation error for patient target, got %v", err)
	}

	missing := uuid.New()
	(*in.ScoreRules)[0].TargetCaregiverID = &missing
	if _, err := svc.CreateForm(context.Background(), in); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("expected not found for unknown target, got %v", err)
	}

	(*in.ScoreRules)[0].TargetCaregiverID = &physician
	f := mustCreateForm(t, svc, in)
	if got := f.ScoreRules[0].TargetCaregiverID; got == nil || *got != physician {
		t.Errorf("expected target %s, got %v", physician, got)
	}
}

func TestService_UpdateForm(t *testing.T) {
	svc, store := newTestService()
	f := mustCreateForm(t, svc, sampleInput())
	q0, q1 := f.Questions[0], f.Questions[1]

	keepOpt := q0.Options[1].ID
	in := FormInput{
		Title: "Anxiety screening v2",
		Questions: []QuestionInput{
			{ID: &q0.ID, Text: "How often, lately?", Kind: KindSingleChoice, Options: []OptionInput{
				{ID: &keepOpt, Text: "Sometimes", Value: 4},
				{Text: "Daily", Value: 6},
			}},
			{Text: "Sleep", Kind: KindSingleChoice, Options: []OptionInput{{Text: "Bad", Value: 2}}},
		},
	}
	got, err := svc.UpdateForm(context.Background(), f.ID, in)
	if err != nil {
		t.Fatalf("UpdateForm: %v", err)
	}
	if store.locks == 0 {
		t.Error("expected the form row to be locked")
	}
	if got.Title != "Anxiety screening v2" || len(got.Questions) != 2 {
		t.Fatalf("unexpected form: %+v", got)
	}
	first := got.Questions[0]
	if first.ID != q0.ID || first.Text != "How often, lately?" {
		t.Errorf("expected question %s edited in place, got %+v", q0.ID, first)
	}
	if len(first.Options) != 2 || first.Options[0].ID != keepOpt || first.Options[0].Value != 4 || first.Options[1].Text != "Daily" {
		t.Errorf("unexpected options after update: %+v", first.Options)
	}
	if got.Questions[1].ID == q1.ID || got.Questions[1].Text != "Sleep" {
		t.Errorf("expected %s removed and Sleep added, got %+v", q1.ID, got.Questions[1])
	}
}

func TestService_UpdateForm_Rules(t *testing.T) {
	svc, _ := newTestService()
	in := sampleInput()
	in.IsScreening = true
	in.ScoreRules = &[]RuleInput{{MinScore: 0, MaxScore: 9, Classification: "Low"}}
	f := mustCreateForm(t, svc, in)

	// Omitted rules and screening flag stay as they are.
	update := sampleInput()
	got, err := svc.UpdateForm(context.Background(), f.ID, update)
	if err != nil {
		t.Fatalf("UpdateForm: %v", err)
	}
	if len(got.ScoreRules) != 1 || !got.IsScreening {
		t.Errorf("expected rules and screening flag kept, got %+v", got)
	}

	update.ScoreRules = &[]RuleInput{}
	got, err = svc.UpdateForm(context.Background(), f.ID, update)
	if err != nil {
		t.Fatalf("UpdateForm: %v", err)
	}
	if len(got.ScoreRules) != 0 {
		t.Errorf("expected rules cleared, got %+v", got.ScoreRules)
	}
}

func TestService_UpdateForm_NotFound(t *testing.T) {
	svc, _ := newTestService()
	if _, err := svc.UpdateForm(context.Background(), uuid.New(), sampleInput()); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("expected not found, got %v", err)
	}
}

func TestService_DeleteForm(t *testing.T) {
	svc, _ := newTestService()
	f := mustCreateForm(t, svc, sampleInput())
	if err := svc.DeleteForm(context.Background(), f.ID); err != nil {
		t.Fatalf("DeleteForm: %v", err)
	}
	if _, err := svc.GetForm(context.Background(), f.ID); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("expected deleted form to be gone, got %v", err)
	}
	if err := svc.DeleteForm(context.Background(), f.ID); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("expected second delete to report not found, got %v", err)
	}
}

func TestService_Screening(t *testing.T) {
	svc, _ := newTestService()
	f := mustCreateForm(t, svc, sampleInput())

	v, err := svc.ToggleScreening(context.Background(), f.ID)
	if err != nil || !v {
		t.Fatalf("expected toggle to true, got %v %v", v, err)
	}
	v, err = svc.ToggleScreening(context.Background(), f.ID)
	if err != nil || v {
		t.Fatalf("expected toggle back to false, got %v %v", v, err)
	}
	if v, err = svc.SetScreening(context.Background(), f.ID, true); err != nil || !v {
		t.Fatalf("SetScreening: %v %v", v, err)
	}
	got, _ := svc.GetForm(context.Background(), f.ID)
	if !got.IsScreening {
		t.Error("expected form to be a screening form")
	}
}

func TestService_ListForms(t *testing.T) {
	svc, _ := newTestService()
	a := sampleInput()
	a.Title = "Depression intake"
	a.IsScreening = true
	mustCreateForm(t, svc, a)
	mustCreateForm(t, svc, sampleInput())

	yes := true
	items, total, err := svc.ListForms(context.Background(), ListFilter{IsScreening: &yes}, 20, 0)
	if err != nil {
		t.Fatalf("ListForms: %v", err)
	}
	if total != 1 || items[0].Title != "Depression intake" {
		t.Errorf("expected only the screening form, got %d", total)
	}
	_, total, _ = svc.ListForms(context.Background(), ListFilter{Title: "anxiety"}, 20, 0)
	if total != 1 {
		t.Errorf("expected title filter to match one form, got %d", total)
	}
}

// -- Score rules --

func TestService_CreateScoreRule(t *testing.T) {
	svc, _ := newTestService()
	f := mustCreateForm(t, svc, sampleInput())
	ctx := context.Background()

	low, err := svc.CreateScoreRule(ctx, f.ID, RuleInput{MinScore: 0, MaxScore: 9, Classification: "Low"})
	if err != nil {
		t.Fatalf("CreateScoreRule: %v", err)
	}
	if low.Order != 0 || low.FormID != f.ID {
		t.Errorf("unexpected rule: %+v", low)
	}

	_, err = svc.CreateScoreRule(ctx, f.ID, RuleInput{MinScore: 5, MaxScore: 15, Classification: "Mid"})
	var oe *OverlapError
	if !errors.As(err, &oe) {
		t.Fatalf("expected overlap error, got %v", err)
	}

	if _, err := svc.CreateScoreRule(ctx, f.ID, RuleInput{MinScore: 10, MaxScore: 20, Classification: "High", Order: intPtr(1)}); err != nil {
		t.Fatalf("CreateScoreRule: %v", err)
	}
	rules, err := svc.ListScoreRules(ctx, f.ID)
	if err != nil || len(rules) != 2 {
		t.Fatalf("expected 2 rules, got %v %v", rules, err)
	}
}

func TestService_CreateScoreRule_UnknownForm(t *testing.T) {
	svc, _ := newTestService()
	_, err := svc.CreateScoreRule(context.Background(), uuid.New(), RuleInput{MinScore: 0, MaxScore: 1, Classification: "Low"})
	if !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("expected not found, got %v", err)
	}
}

func TestService_UpdateScoreRule(t *testing.T) {
	svc, store := newTestService()
	f := mustCreateForm(t, svc, sampleInput())
	ctx := context.Background()
	low, _ := svc.CreateScoreRule(ctx, f.ID, RuleInput{MinScore: 0, MaxScore: 9, Classification: "Low", Order: intPtr(3)})
	if _, err := svc.CreateScoreRule(ctx, f.ID, RuleInput{MinScore: 20, MaxScore: 30, Classification: "High"}); err != nil {
		t.Fatalf("CreateScoreRule: %v", err)
	}

	// Widening the rule into its own old range is fine; nil order keeps 3.
	got, err := svc.UpdateScoreRule(ctx, f.ID, low.ID, RuleInput{MinScore: 0, MaxScore: 19, Classification: "Low", Conduct: "Watch"})
	if err != nil {
		t.Fatalf("UpdateScoreRule: %v", err)
	}
	if got.Order != 3 || got.MaxScore != 19 || got.Conduct != "Watch" {
		t.Errorf("unexpected rule: %+v", got)
	}

	if _, err := svc.UpdateScoreRule(ctx, f.ID, low.ID, RuleInput{MinScore: 0, MaxScore: 20, Classification: "Low"}); err == nil {
		t.Error("expected overlap with [20, 30]")
	}
	if _, err := svc.UpdateScoreRule(ctx, f.ID, uuid.New(), RuleInput{MinScore: 40, MaxScore: 50, Classification: "X"}); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("expected not found for unknown rule, got %v", err)
	}

	professional := store.addUser(identity.UserTypeProfessional)
	got, err = svc.UpdateScoreRule(ctx, f.ID, low.ID, RuleInput{MinScore: 0, MaxScore: 9, Classification: "Low", TargetCaregiverID: &professional, Order: intPtr(0)})
	if err != nil {
		t.Fatalf("UpdateScoreRule: %v", err)
	}
	if got.Order != 0 || got.TargetCaregiverID == nil {
		t.Errorf("expected order 0 and a target, got %+v", got)
	}
}

func TestService_DeleteScoreRule(t *testing.T) {
	svc, _ := newTestService()
	f := mustCreateForm(t, svc, sampleInput())
	ctx := context.Background()
	r, _ := svc.CreateScoreRule(ctx, f.ID, RuleInput{MinScore: 0, MaxScore: 9, Classification: "Low"})

	if err := svc.DeleteScoreRule(ctx, f.ID, r.ID); err != nil {
		t.Fatalf("DeleteScoreRule: %v", err)
	}
	if err := svc.DeleteScoreRule(ctx, f.ID, r.ID); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("expected not found, got %v", err)
	}
	// The freed range can be reused.
	if _, err := svc.CreateScoreRule(ctx, f.ID, RuleInput{MinScore: 0, MaxScore: 9, Classification: "Low"}); err != nil {
		t.Errorf("expected range to be free again, got %v", err)
	}
}

// -- Assignments --

func TestService_Assignments(t *testing.T) {
	svc, store := newTestService()
	f := mustCreateForm(t, svc, sampleInput())
	ctx := context.Background()
	p1 := store.addUser(identity.UserTypePatient)
	p2 := store.addUser(identity.UserTypePatient)
	doc := store.addUser(identity.UserTypePhysician)

	if err := svc.AssignPatients(ctx, f.ID, []uuid.UUID{p1, doc}); !errors.Is(err, apperr.ErrValidation) {
		t.Errorf("expected validation error for non-patient, got %v", err)
	}
	if err := svc.AssignPatients(ctx, f.ID, []uuid.UUID{p1, p2}); err != nil {
		t.Fatalf("AssignPatients: %v", err)
	}
	users, err := svc.ListAssignedPatients(ctx, f.ID)
	if err != nil || len(users) != 2 {
		t.Fatalf("expected 2 assigned patients, got %v %v", users, err)
	}

	if err := svc.UnassignPatients(ctx, f.ID, []uuid.UUID{p2}); err != nil {
		t.Fatalf("UnassignPatients: %v", err)
	}
	mine, _ := svc.FormsAssignedTo(ctx, p1)
	theirs, _ := svc.FormsAssignedTo(ctx, p2)
	if len(mine) != 1 || len(theirs) != 0 {
		t.Errorf("expected p1 to keep the form and p2 to lose it, got %d and %d", len(mine), len(theirs))
	}

	if _, err := svc.ListAssignedPatients(ctx, uuid.New()); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("expected not found for unknown form, got %v", err)
	}
}
