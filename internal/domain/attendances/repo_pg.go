package attendances

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/healthdesk/triage/internal/domain/scheduling"
	"github.com/healthdesk/triage/internal/platform/apperr"
	"github.com/healthdesk/triage/internal/platform/db"
)

type attendanceRepoPG struct{ pool *pgxpool.Pool }

func NewAttendanceRepoPG(pool *pgxpool.Pool) AttendanceRepository {
	return &attendanceRepoPG{pool: pool}
}

func (r *attendanceRepoPG) conn(ctx context.Context) db.Querier { return db.Conn(ctx, r.pool) }

const attendanceCols = `a.id, a.patient_id, a.physician_id, a.professional_id, a.appointment_id,
	a.attended_at, a.status, a.chief_complaint, a.presenting_illness, a.medical_history,
	a.physical_examination, a.diagnosis, a.treatment, a.blood_pressure, a.heart_rate,
	a.temperature, a.respiratory_rate, a.created_at, a.updated_at`

func scanAttendance(row pgx.Row) (*Attendance, error) {
	var (
		a          Attendance
		phys, prof *uuid.UUID
	)
	err := row.Scan(&a.ID, &a.PatientID, &phys, &prof, &a.AppointmentID,
		&a.AttendedAt, &a.Status, &a.ChiefComplaint, &a.PresentingIllness, &a.MedicalHistory,
		&a.PhysicalExamination, &a.Diagnosis, &a.Treatment, &a.BloodPressure, &a.HeartRate,
		&a.Temperature, &a.RespiratoryRate, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if a.Caregiver, err = scheduling.CaregiverFromColumns(phys, prof); err != nil {
		return nil, fmt.Errorf("attendance %s: %w", a.ID, err)
	}
	return &a, nil
}

func (r *attendanceRepoPG) Create(ctx context.Context, a *Attendance) error {
	a.ID = uuid.New()
	phys, prof := a.Caregiver.Columns()
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO attendance (id, patient_id, physician_id, professional_id, appointment_id,
			attended_at, status, chief_complaint, presenting_illness, medical_history,
			physical_examination, diagnosis, treatment, blood_pressure, heart_rate,
			temperature, respiratory_rate)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
		RETURNING created_at, updated_at`,
		a.ID, a.PatientID, phys, prof, a.AppointmentID,
		a.AttendedAt, a.Status, a.ChiefComplaint, a.PresentingIllness, a.MedicalHistory,
		a.PhysicalExamination, a.Diagnosis, a.Treatment, a.BloodPressure, a.HeartRate,
		a.Temperature, a.RespiratoryRate).Scan(&a.CreatedAt, &a.UpdatedAt)
}

func (r *attendanceRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Attendance, error) {
	a, err := scanAttendance(r.conn(ctx).QueryRow(ctx,
		`SELECT `+attendanceCols+` FROM attendance a WHERE a.id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("attendance %s not found", id)
	}
	return a, err
}

func (r *attendanceRepoPG) Update(ctx context.Context, a *Attendance) error {
	err := r.conn(ctx).QueryRow(ctx, `
		UPDATE attendance SET attended_at = $2, status = $3, chief_complaint = $4,
			presenting_illness = $5, medical_history = $6, physical_examination = $7,
			diagnosis = $8, treatment = $9, blood_pressure = $10, heart_rate = $11,
			temperature = $12, respiratory_rate = $13, updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at`,
		a.ID, a.AttendedAt, a.Status, a.ChiefComplaint,
		a.PresentingIllness, a.MedicalHistory, a.PhysicalExamination,
		a.Diagnosis, a.Treatment, a.BloodPressure, a.HeartRate,
		a.Temperature, a.RespiratoryRate).Scan(&a.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return apperr.NotFound("attendance %s not found", a.ID)
	}
	return err
}

func (r *attendanceRepoPG) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM attendance WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("attendance %s not found", id)
	}
	return nil
}

func (r *attendanceRepoPG) List(ctx context.Context, f ListFilter, limit, offset int) ([]*Attendance, int, error) {
	var (
		where []string
		args  []interface{}
	)
	add := func(cond string, v interface{}) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}
	if f.PatientName != "" {
		add("p.name ILIKE '%%' || $%d || '%%'", f.PatientName)
	}
	if f.CaregiverName != "" {
		add("c.name ILIKE '%%' || $%d || '%%'", f.CaregiverName)
	}
	if f.Status != nil {
		add("a.status = $%d", *f.Status)
	}
	if f.AppointmentID != nil {
		add("a.appointment_id = $%d", *f.AppointmentID)
	}
	if f.From != nil {
		add("a.attended_at >= $%d", *f.From)
	}
	if f.To != nil {
		add("a.attended_at <= $%d", *f.To)
	}

	from := ` FROM attendance a
		JOIN app_user p ON p.id = a.patient_id
		JOIN app_user c ON c.id = COALESCE(a.physician_id, a.professional_id)`
	if len(where) > 0 {
		from += " WHERE " + strings.Join(where, " AND ")
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*)`+from, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	args = append(args, limit, offset)
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+attendanceCols+from+fmt.Sprintf(` ORDER BY a.attended_at DESC, a.id LIMIT $%d OFFSET $%d`, len(args)-1, len(args)),
		args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []*Attendance
	for rows.Next() {
		a, err := scanAttendance(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, a)
	}
	return out, total, rows.Err()
}

func (r *attendanceRepoPG) LinkResponse(ctx context.Context, attendanceID, responseID uuid.UUID) error {
	_, err := r.conn(ctx).Exec(ctx,
		`INSERT INTO attendance_response (attendance_id, response_id) VALUES ($1, $2)`,
		attendanceID, responseID)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505":
			return apperr.Conflict("response %s is already linked to attendance %s", responseID, attendanceID)
		case "23503":
			return apperr.NotFound("response %s not found", responseID)
		}
	}
	return err
}

func (r *attendanceRepoPG) UnlinkResponse(ctx context.Context, attendanceID, responseID uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx,
		`DELETE FROM attendance_response WHERE attendance_id = $1 AND response_id = $2`,
		attendanceID, responseID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("response %s is not linked to attendance %s", responseID, attendanceID)
	}
	return nil
}

func (r *attendanceRepoPG) ListResponses(ctx context.Context, attendanceID uuid.UUID) ([]*LinkedResponse, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT r.id, r.form_id, f.title, r.total_score, r.classification, r.submitted_at, ar.linked_at
		FROM attendance_response ar
		JOIN form_response r ON r.id = ar.response_id
		JOIN form f ON f.id = r.form_id
		WHERE ar.attendance_id = $1
		ORDER BY ar.linked_at DESC, r.id`, attendanceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*LinkedResponse
	for rows.Next() {
		var l LinkedResponse
		if err := rows.Scan(&l.ResponseID, &l.FormID, &l.FormTitle, &l.TotalScore,
			&l.Classification, &l.SubmittedAt, &l.LinkedAt); err != nil {
			return nil, err
		}
		out = append(out, &l)
	}
	return out, rows.Err()
}
