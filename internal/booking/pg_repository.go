package booking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clinichq/scheduling/internal/db"
)

type PgRepository struct {
	pool *pgxpool.Pool
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

const appointmentColumns = `id, patient_id, professional_id, room_id, consultation_type_id, date, start_min, duration_min, status, notes, created_at, updated_at`

// Helpers

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment

	err := row.Scan(
		&a.ID,
		&a.PatientID,
		&a.ProfessionalID,
		&a.RoomID,
		&a.ConsultationTypeID,
		&a.Date,
		&a.StartMin,
		&a.DurationMin,
		&a.Status,
		&a.Notes,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, err
	}

	return &a, nil
}

// Interface methods

func (r *PgRepository) GetPatientByID(ctx context.Context, id uuid.UUID) (*Patient, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, name, phone, email, created_at, updated_at
		FROM patients
		WHERE id = $1
	`, id)

	var p Patient
	err := row.Scan(&p.ID, &p.Name, &p.Phone, &p.Email, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPatientNotFound
		}
		return nil, err
	}
	return &p, nil
}

func (r *PgRepository) GetProfessionalByID(ctx context.Context, id uuid.UUID) (*Professional, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, name, specialty, created_at, updated_at
		FROM professionals
		WHERE id = $1
	`, id)

	var p Professional
	err := row.Scan(&p.ID, &p.Name, &p.Specialty, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrProfessionalNotFound
		}
		return nil, err
	}
	return &p, nil
}

// ListProfessionals returns every professional in a stable order. The
// waitlist matcher depends on this ordering for deterministic candidates.
func (r *PgRepository) ListProfessionals(ctx context.Context) ([]Professional, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, name, specialty, created_at, updated_at
		FROM professionals
		ORDER BY name, id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Professional
	for rows.Next() {
		var p Professional
		if err := rows.Scan(&p.ID, &p.Name, &p.Specialty, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, err
		}
		result = append(result, p)
	}
	return result, rows.Err()
}

func (r *PgRepository) GetRoomByID(ctx context.Context, id uuid.UUID) (*Room, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, name
		FROM rooms
		WHERE id = $1
	`, id)

	var rm Room
	err := row.Scan(&rm.ID, &rm.Name)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrRoomNotFound
		}
		return nil, err
	}
	return &rm, nil
}

func (r *PgRepository) GetAppointmentByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE id = $1
	`, id)
	return scanAppointment(row)
}

func (r *PgRepository) ListDayAppointments(ctx context.Context, q db.Querier, professionalID uuid.UUID, roomID *uuid.UUID, date time.Time) ([]Appointment, error) {
	if q == nil {
		q = r.pool
	}
	rows, err := q.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE date = $1
		  AND status <> 'cancelled'
		  AND (professional_id = $2 OR ($3::uuid IS NOT NULL AND room_id = $3))
		ORDER BY start_min
	`, date, professionalID, roomID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *a)
	}
	return result, rows.Err()
}

// ListConflicting locks and returns the ids of non-cancelled appointments
// whose interval intersects a's on the same day and professional or room.
// Run inside the booking transaction. The row locks narrow the race between
// "slot looked free" and the insert; concurrent inserts this query cannot
// see are caught by the agenda exclusion constraints at commit.
func (r *PgRepository) ListConflicting(ctx context.Context, q db.Querier, a Appointment) ([]uuid.UUID, error) {
	if q == nil {
		q = r.pool
	}
	rows, err := q.Query(ctx, `
		SELECT id
		FROM appointments
		WHERE date = $1
		  AND status <> 'cancelled'
		  AND id <> $2
		  AND (professional_id = $3 OR ($4::uuid IS NOT NULL AND room_id = $4))
		  AND start_min < $5
		  AND $6 < start_min + duration_min
		FOR UPDATE
	`, a.Date, a.ID, a.ProfessionalID, a.RoomID, a.EndMin(), a.StartMin)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (r *PgRepository) InsertAppointment(ctx context.Context, q db.Querier, a *Appointment) error {
	if q == nil {
		q = r.pool
	}
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	row := q.QueryRow(ctx, `
		INSERT INTO appointments (id, patient_id, professional_id, room_id, consultation_type_id, date, start_min, duration_min, status, notes, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, now(), now())
		RETURNING `+appointmentColumns+`
	`, a.ID, a.PatientID, a.ProfessionalID, a.RoomID, a.ConsultationTypeID, a.Date, a.StartMin, a.DurationMin, a.Status, a.Notes)

	stored, err := scanAppointment(row)
	if err != nil {
		if isOverlapViolation(err) {
			return ErrOverlap
		}
		return fmt.Errorf("insert appointment: %w", err)
	}
	*a = *stored
	return nil
}

// UpdateAppointmentSlot rewrites the time-defining fields of a live
// appointment (reschedule). Cancelled and completed rows are left alone.
func (r *PgRepository) UpdateAppointmentSlot(ctx context.Context, q db.Querier, a *Appointment) error {
	if q == nil {
		q = r.pool
	}
	row := q.QueryRow(ctx, `
		UPDATE appointments
		SET professional_id = $2,
		    room_id = $3,
		    date = $4,
		    start_min = $5,
		    duration_min = $6,
		    status = 'scheduled',
		    updated_at = now()
		WHERE id = $1
		  AND status IN ('scheduled', 'confirmed')
		RETURNING `+appointmentColumns+`
	`, a.ID, a.ProfessionalID, a.RoomID, a.Date, a.StartMin, a.DurationMin)

	stored, err := scanAppointment(row)
	if err != nil {
		if isOverlapViolation(err) {
			return ErrOverlap
		}
		return err
	}
	*a = *stored
	return nil
}

func (r *PgRepository) UpdateAppointmentStatus(ctx context.Context, q db.Querier, id uuid.UUID, from []AppointmentStatus, to AppointmentStatus) (*Appointment, error) {
	if q == nil {
		q = r.pool
	}
	row := q.QueryRow(ctx, `
		UPDATE appointments
		SET status = $2,
		    updated_at = now()
		WHERE id = $1
		  AND status = ANY($3)
		RETURNING `+appointmentColumns+`
	`, id, to, statusStrings(from))

	return scanAppointment(row)
}

func (r *PgRepository) InTx(ctx context.Context, fn func(q db.Querier) error) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (r *PgRepository) InsertEvent(ctx context.Context, ev EventLog) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO event_logs (event_type, appointment_id, payload, created_at)
		VALUES ($1, $2, $3, COALESCE($4, now()))
	`, ev.EventType, ev.AppointmentID, ev.Payload, nullableTime(ev.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert event log: %w", err)
	}

	return nil
}

// isOverlapViolation reports whether the write tripped one of the agenda
// exclusion constraints (23P01): a concurrent transaction committed an
// overlapping appointment the in-transaction conflict query could not see.
func isOverlapViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23P01"
}

func statusStrings(in []AppointmentStatus) []string {
	out := make([]string, len(in))
	for i, s := range in {
		out[i] = string(s)
	}
	return out
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
