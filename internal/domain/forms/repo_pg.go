package forms

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/healthdesk/triage/internal/domain/identity"
	"github.com/healthdesk/triage/internal/platform/apperr"
	"github.com/healthdesk/triage/internal/platform/db"
)

// =========== Form Repository ===========

type formRepoPG struct{ pool *pgxpool.Pool }

func NewFormRepoPG(pool *pgxpool.Pool) FormRepository { return &formRepoPG{pool: pool} }

func (r *formRepoPG) conn(ctx context.Context) db.Querier { return db.Conn(ctx, r.pool) }

const formCols = `id, title, description, is_screening, active, created_at, updated_at`

func scanForm(row pgx.Row, extra ...interface{}) (*Form, error) {
	var f Form
	dest := append([]interface{}{&f.ID, &f.Title, &f.Description, &f.IsScreening, &f.Active, &f.CreatedAt, &f.UpdatedAt}, extra...)
	if err := row.Scan(dest...); err != nil {
		return nil, err
	}
	return &f, nil
}

func (r *formRepoPG) Create(ctx context.Context, f *Form) error {
	f.ID = uuid.New()
	f.Active = true
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO form (id, title, description, is_screening, active)
		VALUES ($1, $2, $3, $4, TRUE)
		RETURNING created_at, updated_at`,
		f.ID, f.Title, f.Description, f.IsScreening).Scan(&f.CreatedAt, &f.UpdatedAt)
	if err != nil {
		return err
	}
	for i := range f.Questions {
		q := &f.Questions[i]
		q.FormID = f.ID
		q.Position = i
		if err := r.CreateQuestion(ctx, q); err != nil {
			return err
		}
	}
	return nil
}

func (r *formRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Form, error) {
	f, err := scanForm(r.conn(ctx).QueryRow(ctx,
		`SELECT `+formCols+` FROM form WHERE id = $1 AND active`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("form %s not found", id)
	}
	if err != nil {
		return nil, err
	}

	if f.Questions, err = r.loadQuestions(ctx, id); err != nil {
		return nil, err
	}
	if f.ScoreRules, err = listRules(ctx, r.conn(ctx), id); err != nil {
		return nil, err
	}
	return f, nil
}

func (r *formRepoPG) loadQuestions(ctx context.Context, formID uuid.UUID) ([]Question, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT id, form_id, text, kind, required, position
		FROM form_question WHERE form_id = $1 ORDER BY position, id`, formID)
	if err != nil {
		return nil, err
	}
	var questions []Question
	byID := make(map[uuid.UUID]int)
	for rows.Next() {
		var q Question
		if err := rows.Scan(&q.ID, &q.FormID, &q.Text, &q.Kind, &q.Required, &q.Position); err != nil {
			rows.Close()
			return nil, err
		}
		byID[q.ID] = len(questions)
		questions = append(questions, q)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	rows, err = r.conn(ctx).Query(ctx, `
		SELECT o.id, o.question_id, o.text, o.value, o.position
		FROM question_option o JOIN form_question q ON q.id = o.question_id
		WHERE q.form_id = $1 ORDER BY o.position, o.id`, formID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var o Option
		if err := rows.Scan(&o.ID, &o.QuestionID, &o.Text, &o.Value, &o.Position); err != nil {
			return nil, err
		}
		if i, ok := byID[o.QuestionID]; ok {
			questions[i].Options = append(questions[i].Options, o)
		}
	}
	return questions, rows.Err()
}

func (r *formRepoPG) Lock(ctx context.Context, id uuid.UUID) error {
	var locked uuid.UUID
	err := r.conn(ctx).QueryRow(ctx, `SELECT id FROM form WHERE id = $1 AND active FOR UPDATE`, id).Scan(&locked)
	if errors.Is(err, pgx.ErrNoRows) {
		return apperr.NotFound("form %s not found", id)
	}
	return err
}

func (r *formRepoPG) List(ctx context.Context, filter ListFilter, limit, offset int) ([]*Form, int, error) {
	where := ` WHERE f.active`
	var args []interface{}
	idx := 1

	if filter.Title != "" {
		where += fmt.Sprintf(` AND f.title ILIKE $%d`, idx)
		args = append(args, "%"+filter.Title+"%")
		idx++
	}
	if filter.IsScreening != nil {
		where += fmt.Sprintf(` AND f.is_screening = $%d`, idx)
		args = append(args, *filter.IsScreening)
		idx++
	}
	if filter.UpdatedFrom != nil {
		where += fmt.Sprintf(` AND f.updated_at >= $%d`, idx)
		args = append(args, *filter.UpdatedFrom)
		idx++
	}
	if filter.UpdatedTo != nil {
		where += fmt.Sprintf(` AND f.updated_at <= $%d`, idx)
		args = append(args, *filter.UpdatedTo)
		idx++
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM form f`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `SELECT f.id, f.title, f.description, f.is_screening, f.active, f.created_at, f.updated_at,
			(SELECT COUNT(*) FROM form_response r WHERE r.form_id = f.id)
		FROM form f` + where + fmt.Sprintf(` ORDER BY f.updated_at DESC LIMIT $%d OFFSET $%d`, idx, idx+1)
	args = append(args, limit, offset)

	rows, err := r.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*Form
	for rows.Next() {
		var count int
		f, err := scanForm(rows, &count)
		if err != nil {
			return nil, 0, err
		}
		f.ResponseCount = count
		items = append(items, f)
	}
	return items, total, rows.Err()
}

func (r *formRepoPG) UpdateHeader(ctx context.Context, f *Form) error {
	err := r.conn(ctx).QueryRow(ctx, `
		UPDATE form SET title = $2, description = $3, updated_at = NOW()
		WHERE id = $1 AND active
		RETURNING updated_at`, f.ID, f.Title, f.Description).Scan(&f.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return apperr.NotFound("form %s not found", f.ID)
	}
	return err
}

func (r *formRepoPG) SetScreening(ctx context.Context, id uuid.UUID, value bool) error {
	tag, err := r.conn(ctx).Exec(ctx,
		`UPDATE form SET is_screening = $2, updated_at = NOW() WHERE id = $1 AND active`, id, value)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("form %s not found", id)
	}
	return nil
}

func (r *formRepoPG) Deactivate(ctx context.Context, id uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx,
		`UPDATE form SET active = FALSE, updated_at = NOW() WHERE id = $1 AND active`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("form %s not found", id)
	}
	return nil
}

func (r *formRepoPG) CreateQuestion(ctx context.Context, q *Question) error {
	q.ID = uuid.New()
	if _, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO form_question (id, form_id, text, kind, required, position)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		q.ID, q.FormID, q.Text, q.Kind, q.Required, q.Position); err != nil {
		return err
	}
	for i := range q.Options {
		o := &q.Options[i]
		o.QuestionID = q.ID
		o.Position = i
		if err := r.CreateOption(ctx, o); err != nil {
			return err
		}
	}
	return nil
}

func (r *formRepoPG) UpdateQuestion(ctx context.Context, q *Question) error {
	_, err := r.conn(ctx).Exec(ctx, `
		UPDATE form_question SET text = $2, kind = $3, required = $4, position = $5
		WHERE id = $1`, q.ID, q.Text, q.Kind, q.Required, q.Position)
	return err
}

func (r *formRepoPG) DeleteQuestions(ctx context.Context, ids []uuid.UUID) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := r.conn(ctx).Exec(ctx, `DELETE FROM form_question WHERE id = ANY($1)`, ids)
	return err
}

func (r *formRepoPG) CreateOption(ctx context.Context, o *Option) error {
	o.ID = uuid.New()
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO question_option (id, question_id, text, value, position)
		VALUES ($1, $2, $3, $4, $5)`, o.ID, o.QuestionID, o.Text, o.Value, o.Position)
	return err
}

func (r *formRepoPG) UpdateOption(ctx context.Context, o *Option) error {
	_, err := r.conn(ctx).Exec(ctx, `
		UPDATE question_option SET text = $2, value = $3, position = $4 WHERE id = $1`,
		o.ID, o.Text, o.Value, o.Position)
	return err
}

func (r *formRepoPG) DeleteOptions(ctx context.Context, ids []uuid.UUID) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := r.conn(ctx).Exec(ctx, `DELETE FROM question_option WHERE id = ANY($1)`, ids)
	return err
}

func (r *formRepoPG) SetAssignments(ctx context.Context, formID uuid.UUID, userIDs []uuid.UUID) error {
	if _, err := r.conn(ctx).Exec(ctx, `DELETE FROM form_assignment WHERE form_id = $1`, formID); err != nil {
		return err
	}
	if len(userIDs) == 0 {
		return nil
	}
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO form_assignment (form_id, user_id)
		SELECT $1, unnest($2::uuid[])
		ON CONFLICT DO NOTHING`, formID, userIDs)
	return err
}

func (r *formRepoPG) RemoveAssignments(ctx context.Context, formID uuid.UUID, userIDs []uuid.UUID) error {
	_, err := r.conn(ctx).Exec(ctx,
		`DELETE FROM form_assignment WHERE form_id = $1 AND user_id = ANY($2)`, formID, userIDs)
	return err
}

func (r *formRepoPG) ListAssigned(ctx context.Context, formID uuid.UUID) ([]*identity.User, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT u.id, u.name, u.email, u.user_type, u.active, u.created_at, u.updated_at
		FROM form_assignment a JOIN app_user u ON u.id = a.user_id
		WHERE a.form_id = $1 AND u.user_type = 'PATIENT'
		ORDER BY u.name`, formID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var users []*identity.User
	for rows.Next() {
		var u identity.User
		if err := rows.Scan(&u.ID, &u.Name, &u.Email, &u.Type, &u.Active, &u.CreatedAt, &u.UpdatedAt); err != nil {
			return nil, err
		}
		users = append(users, &u)
	}
	return users, rows.Err()
}

func (r *formRepoPG) ListAssignedTo(ctx context.Context, userID uuid.UUID) ([]*Form, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT f.id, f.title, f.description, f.is_screening, f.active, f.created_at, f.updated_at
		FROM form_assignment a JOIN form f ON f.id = a.form_id
		WHERE a.user_id = $1 AND f.active
		ORDER BY f.title`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*Form
	for rows.Next() {
		f, err := scanForm(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, f)
	}
	return items, rows.Err()
}

// =========== Score Rule Repository ===========

type ruleRepoPG struct{ pool *pgxpool.Pool }

func NewRuleRepoPG(pool *pgxpool.Pool) RuleRepository { return &ruleRepoPG{pool: pool} }

func (r *ruleRepoPG) conn(ctx context.Context) db.Querier { return db.Conn(ctx, r.pool) }

const ruleCols = `id, form_id, min_score, max_score, classification, conduct,
	target_caregiver_id, rule_order, created_at, updated_at`

func scanRule(row pgx.Row) (ScoreRule, error) {
	var sr ScoreRule
	err := row.Scan(&sr.ID, &sr.FormID, &sr.MinScore, &sr.MaxScore, &sr.Classification, &sr.Conduct,
		&sr.TargetCaregiverID, &sr.Order, &sr.CreatedAt, &sr.UpdatedAt)
	return sr, err
}

func listRules(ctx context.Context, q db.Querier, formID uuid.UUID) ([]ScoreRule, error) {
	rows, err := q.Query(ctx,
		`SELECT `+ruleCols+` FROM score_rule WHERE form_id = $1 ORDER BY rule_order, created_at, id`, formID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var rules []ScoreRule
	for rows.Next() {
		sr, err := scanRule(rows)
		if err != nil {
			return nil, err
		}
		rules = append(rules, sr)
	}
	return rules, rows.Err()
}

func (r *ruleRepoPG) ListByForm(ctx context.Context, formID uuid.UUID) ([]ScoreRule, error) {
	return listRules(ctx, r.conn(ctx), formID)
}

func (r *ruleRepoPG) Get(ctx context.Context, formID, ruleID uuid.UUID) (*ScoreRule, error) {
	sr, err := scanRule(r.conn(ctx).QueryRow(ctx,
		`SELECT `+ruleCols+` FROM score_rule WHERE id = $1 AND form_id = $2`, ruleID, formID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("score rule %s not found", ruleID)
	}
	if err != nil {
		return nil, err
	}
	return &sr, nil
}

func (r *ruleRepoPG) Create(ctx context.Context, sr *ScoreRule) error {
	sr.ID = uuid.New()
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO score_rule (id, form_id, min_score, max_score, classification, conduct,
			target_caregiver_id, rule_order)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at, updated_at`,
		sr.ID, sr.FormID, sr.MinScore, sr.MaxScore, sr.Classification, sr.Conduct,
		sr.TargetCaregiverID, sr.Order).Scan(&sr.CreatedAt, &sr.UpdatedAt)
}

func (r *ruleRepoPG) Update(ctx context.Context, sr *ScoreRule) error {
	err := r.conn(ctx).QueryRow(ctx, `
		UPDATE score_rule SET min_score = $3, max_score = $4, classification = $5, conduct = $6,
			target_caregiver_id = $7, rule_order = $8, updated_at = NOW()
		WHERE id = $1 AND form_id = $2
		RETURNING updated_at`,
		sr.ID, sr.FormID, sr.MinScore, sr.MaxScore, sr.Classification, sr.Conduct,
		sr.TargetCaregiverID, sr.Order).Scan(&sr.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return apperr.NotFound("score rule %s not found", sr.ID)
	}
	return err
}

func (r *ruleRepoPG) Delete(ctx context.Context, formID, ruleID uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM score_rule WHERE id = $1 AND form_id = $2`, ruleID, formID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("score rule %s not found", ruleID)
	}
	return nil
}

func (r *ruleRepoPG) DeleteByForm(ctx context.Context, formID uuid.UUID) error {
	_, err := r.conn(ctx).Exec(ctx, `DELETE FROM score_rule WHERE form_id = $1`, formID)
	return err
}
