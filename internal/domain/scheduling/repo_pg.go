package scheduling

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/healthdesk/triage/internal/platform/apperr"
	"github.com/healthdesk/triage/internal/platform/db"
)

type appointmentRepoPG struct{ pool *pgxpool.Pool }

func NewAppointmentRepoPG(pool *pgxpool.Pool) AppointmentRepository {
	return &appointmentRepoPG{pool: pool}
}

func (r *appointmentRepoPG) conn(ctx context.Context) db.Querier { return db.Conn(ctx, r.pool) }

const apptCols = `id, patient_id, physician_id, professional_id, response_id, scheduled_at,
	status, notes, total_score_at_time, created_at, updated_at`

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var (
		a          Appointment
		phys, prof *uuid.UUID
	)
	err := row.Scan(&a.ID, &a.PatientID, &phys, &prof, &a.ResponseID, &a.ScheduledAt,
		&a.Status, &a.Notes, &a.TotalScoreAtTime, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if a.Caregiver, err = CaregiverFromColumns(phys, prof); err != nil {
		return nil, fmt.Errorf("appointment %s: %w", a.ID, err)
	}
	return &a, nil
}

func translate(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return apperr.Conflict("response already has an appointment")
	}
	return err
}

func (r *appointmentRepoPG) Create(ctx context.Context, a *Appointment) error {
	a.ID = uuid.New()
	phys, prof := a.Caregiver.Columns()
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO appointment (id, patient_id, physician_id, professional_id, response_id,
			scheduled_at, status, notes, total_score_at_time)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING created_at, updated_at`,
		a.ID, a.PatientID, phys, prof, a.ResponseID,
		a.ScheduledAt, a.Status, a.Notes, a.TotalScoreAtTime).Scan(&a.CreatedAt, &a.UpdatedAt)
	return translate(err)
}

func (r *appointmentRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	a, err := scanAppointment(r.conn(ctx).QueryRow(ctx,
		`SELECT `+apptCols+` FROM appointment WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("appointment %s not found", id)
	}
	return a, err
}

func (r *appointmentRepoPG) Update(ctx context.Context, a *Appointment) error {
	phys, prof := a.Caregiver.Columns()
	err := r.conn(ctx).QueryRow(ctx, `
		UPDATE appointment SET physician_id = $2, professional_id = $3, scheduled_at = $4,
			status = $5, notes = $6, total_score_at_time = $7, updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at`,
		a.ID, phys, prof, a.ScheduledAt, a.Status, a.Notes, a.TotalScoreAtTime).Scan(&a.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return apperr.NotFound("appointment %s not found", a.ID)
	}
	return err
}

func (r *appointmentRepoPG) FindByResponseID(ctx context.Context, responseID uuid.UUID) (*Appointment, error) {
	a, err := scanAppointment(r.conn(ctx).QueryRow(ctx,
		`SELECT `+apptCols+` FROM appointment WHERE response_id = $1`, responseID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return a, err
}

func (r *appointmentRepoPG) UpsertForResponse(ctx context.Context, a *Appointment) (bool, error) {
	if a.ResponseID == nil {
		return false, fmt.Errorf("upsert needs a response id")
	}
	phys, prof := a.Caregiver.Columns()
	var created bool
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO appointment (id, patient_id, physician_id, professional_id, response_id,
			scheduled_at, status, notes, total_score_at_time)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (response_id) WHERE response_id IS NOT NULL DO UPDATE SET
			patient_id = EXCLUDED.patient_id,
			physician_id = EXCLUDED.physician_id,
			professional_id = EXCLUDED.professional_id,
			scheduled_at = EXCLUDED.scheduled_at,
			status = EXCLUDED.status,
			notes = EXCLUDED.notes,
			total_score_at_time = EXCLUDED.total_score_at_time,
			updated_at = NOW()
		RETURNING id, created_at, updated_at, (xmax = 0)`,
		uuid.New(), a.PatientID, phys, prof, a.ResponseID,
		a.ScheduledAt, a.Status, a.Notes, a.TotalScoreAtTime).Scan(&a.ID, &a.CreatedAt, &a.UpdatedAt, &created)
	return created, err
}

func (r *appointmentRepoPG) LockCaregiver(ctx context.Context, id uuid.UUID) error {
	var locked uuid.UUID
	err := r.conn(ctx).QueryRow(ctx,
		`SELECT id FROM app_user WHERE id = $1 FOR NO KEY UPDATE`, id).Scan(&locked)
	if errors.Is(err, pgx.ErrNoRows) {
		return apperr.NotFound("user %s not found", id)
	}
	return err
}

func (r *appointmentRepoPG) FindConflict(ctx context.Context, c Caregiver, at time.Time, statuses []Status) (*Appointment, error) {
	col := "professional_id"
	if c.Kind == KindPhysician {
		col = "physician_id"
	}
	names := make([]string, len(statuses))
	for i, s := range statuses {
		names[i] = string(s)
	}
	a, err := scanAppointment(r.conn(ctx).QueryRow(ctx,
		`SELECT `+apptCols+` FROM appointment
		WHERE `+col+` = $1 AND scheduled_at = $2 AND status = ANY($3)
		LIMIT 1`, c.ID, at, names))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return a, err
}

func (r *appointmentRepoPG) List(ctx context.Context, kind CaregiverKind, f ListFilter, limit, offset int) ([]*Appointment, int, error) {
	col := "professional_id"
	if kind == KindPhysician {
		col = "physician_id"
	}
	where := []string{col + " IS NOT NULL"}
	var args []interface{}
	add := func(cond string, v interface{}) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}
	if f.CaregiverID != nil {
		add(col+" = $%d", *f.CaregiverID)
	}
	if f.PatientID != nil {
		add("patient_id = $%d", *f.PatientID)
	}
	if f.Status != nil {
		add("status = $%d", string(*f.Status))
	} else {
		add("status <> $%d", string(StatusCancelled))
	}
	if f.From != nil {
		add("scheduled_at >= $%d", *f.From)
	}
	if f.To != nil {
		add("scheduled_at <= $%d", *f.To)
	}
	cond := strings.Join(where, " AND ")

	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM appointment WHERE `+cond, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	args = append(args, limit, offset)
	rows, err := r.conn(ctx).Query(ctx, fmt.Sprintf(
		`SELECT `+apptCols+` FROM appointment WHERE %s ORDER BY scheduled_at, id LIMIT $%d OFFSET $%d`,
		cond, len(args)-1, len(args)), args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, a)
	}
	return items, total, rows.Err()
}
