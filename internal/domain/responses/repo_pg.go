package responses

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/healthdesk/triage/internal/domain/forms"
	"github.com/healthdesk/triage/internal/platform/apperr"
	"github.com/healthdesk/triage/internal/platform/db"
)

type responseRepoPG struct{ pool *pgxpool.Pool }

func NewResponseRepoPG(pool *pgxpool.Pool) ResponseRepository { return &responseRepoPG{pool: pool} }

func (r *responseRepoPG) conn(ctx context.Context) db.Querier { return db.Conn(ctx, r.pool) }

const responseCols = `id, form_id, patient_id, total_score, classification, conduct,
	assigned_caregiver_id, submitted_at, updated_at`

func scanResponse(row pgx.Row) (*Response, error) {
	var resp Response
	err := row.Scan(&resp.ID, &resp.FormID, &resp.PatientID, &resp.TotalScore, &resp.Classification,
		&resp.Conduct, &resp.AssignedCaregiverID, &resp.SubmittedAt, &resp.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &resp, nil
}

func (r *responseRepoPG) Create(ctx context.Context, resp *Response) error {
	resp.ID = uuid.New()
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO form_response (id, form_id, patient_id)
		VALUES ($1, $2, $3)
		RETURNING submitted_at, updated_at`,
		resp.ID, resp.FormID, resp.PatientID).Scan(&resp.SubmittedAt, &resp.UpdatedAt)
}

func (r *responseRepoPG) ReplaceAnswers(ctx context.Context, responseID uuid.UUID, answers []forms.Answer) error {
	if _, err := r.conn(ctx).Exec(ctx, `DELETE FROM response_answer WHERE response_id = $1`, responseID); err != nil {
		return err
	}
	if len(answers) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for i, a := range answers {
		var (
			value  *string
			values []string
		)
		if texts, ok := a.Selection.Texts(); ok {
			values = append([]string{}, texts...)
		} else {
			text, _ := a.Selection.Text()
			value = &text
		}
		batch.Queue(`
			INSERT INTO response_answer (id, response_id, question_id, value, selected_values, position)
			VALUES ($1, $2, $3, $4, $5, $6)`,
			uuid.New(), responseID, a.QuestionID, value, values, i)
	}
	br := r.sendBatch(ctx, batch)
	defer br.Close()
	for range answers {
		if _, err := br.Exec(); err != nil {
			return err
		}
	}
	return nil
}

// sendBatch queues on the ambient transaction when there is one.
func (r *responseRepoPG) sendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx.SendBatch(ctx, b)
	}
	if c := db.ConnFromContext(ctx); c != nil {
		return c.SendBatch(ctx, b)
	}
	return r.pool.SendBatch(ctx, b)
}

func (r *responseRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Response, error) {
	resp, err := scanResponse(r.conn(ctx).QueryRow(ctx,
		`SELECT `+responseCols+` FROM form_response WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("response %s not found", id)
	}
	if err != nil {
		return nil, err
	}

	rows, err := r.conn(ctx).Query(ctx, `
		SELECT question_id, value, selected_values FROM response_answer
		WHERE response_id = $1 ORDER BY position`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var (
			qid    uuid.UUID
			value  *string
			values []string
		)
		if err := rows.Scan(&qid, &value, &values); err != nil {
			return nil, err
		}
		a := forms.Answer{QuestionID: qid}
		if value != nil {
			a.Selection = forms.Single(*value)
		} else {
			a.Selection = forms.Multi(values...)
		}
		resp.Answers = append(resp.Answers, a)
	}
	return resp, rows.Err()
}

func (r *responseRepoPG) Lock(ctx context.Context, formID, patientID, id uuid.UUID) error {
	var got uuid.UUID
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT id FROM form_response
		WHERE id = $1 AND form_id = $2 AND patient_id = $3
		FOR UPDATE`, id, formID, patientID).Scan(&got)
	if errors.Is(err, pgx.ErrNoRows) {
		return apperr.NotFound("response %s not found for this form and patient", id)
	}
	return err
}

func (r *responseRepoPG) SaveOutcome(ctx context.Context, resp *Response) error {
	return r.conn(ctx).QueryRow(ctx, `
		UPDATE form_response SET total_score = $2, classification = $3, conduct = $4,
			assigned_caregiver_id = $5, updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at`,
		resp.ID, resp.TotalScore, resp.Classification, resp.Conduct, resp.AssignedCaregiverID).Scan(&resp.UpdatedAt)
}

func (r *responseRepoPG) Delete(ctx context.Context, formID, id uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM form_response WHERE id = $1 AND form_id = $2`, id, formID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("response %s not found", id)
	}
	return nil
}

func (r *responseRepoPG) ListByForm(ctx context.Context, formID uuid.UUID, limit, offset int) ([]*Response, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM form_response WHERE form_id = $1`, formID).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+responseCols+` FROM form_response WHERE form_id = $1
		ORDER BY submitted_at DESC, id LIMIT $2 OFFSET $3`, formID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*Response
	for rows.Next() {
		resp, err := scanResponse(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, resp)
	}
	return items, total, rows.Err()
}

func (r *responseRepoPG) List(ctx context.Context, f ListFilter, limit, offset int) ([]*Summary, int, error) {
	where := []string{"f.active"}
	var args []interface{}
	add := func(cond string, v interface{}) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}
	if f.FormTitle != "" {
		add("f.title ILIKE '%%' || $%d || '%%'", f.FormTitle)
	}
	if f.PatientName != "" {
		add("u.name ILIKE '%%' || $%d || '%%'", f.PatientName)
	}
	if f.IsScreening != nil {
		add("f.is_screening = $%d", *f.IsScreening)
	}
	if f.ScoreMin != nil {
		add("r.total_score >= $%d", *f.ScoreMin)
	}
	if f.ScoreMax != nil {
		add("r.total_score <= $%d", *f.ScoreMax)
	}
	if f.From != nil {
		add("r.submitted_at >= $%d", *f.From)
	}
	if f.To != nil {
		add("r.submitted_at <= $%d", *f.To)
	}
	from := `form_response r JOIN form f ON f.id = r.form_id JOIN app_user u ON u.id = r.patient_id
		WHERE ` + strings.Join(where, " AND ")

	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM `+from, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	args = append(args, limit, offset)
	rows, err := r.conn(ctx).Query(ctx, fmt.Sprintf(`
		SELECT r.id, r.form_id, r.patient_id, r.total_score, r.classification, r.conduct,
			r.assigned_caregiver_id, r.submitted_at, r.updated_at, f.title, f.is_screening, u.name
		FROM %s
		ORDER BY r.submitted_at DESC, r.id LIMIT $%d OFFSET $%d`, from, len(args)-1, len(args)), args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*Summary
	for rows.Next() {
		s := &Summary{Response: &Response{}}
		if err := rows.Scan(&s.ID, &s.FormID, &s.PatientID, &s.TotalScore, &s.Classification, &s.Conduct,
			&s.AssignedCaregiverID, &s.SubmittedAt, &s.UpdatedAt, &s.FormTitle, &s.IsScreening, &s.PatientName); err != nil {
			return nil, 0, err
		}
		items = append(items, s)
	}
	return items, total, rows.Err()
}

func (r *responseRepoPG) TotalScore(ctx context.Context, id uuid.UUID) (int, error) {
	var score int
	err := r.conn(ctx).QueryRow(ctx, `SELECT total_score FROM form_response WHERE id = $1`, id).Scan(&score)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, apperr.NotFound("response %s not found", id)
	}
	return score, err
}
