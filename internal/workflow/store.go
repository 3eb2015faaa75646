package workflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/clinichq/scheduling/internal/db"
)

var (
	ErrRecordNotFound = errors.New("workflow record not found")
	// ErrStaleRecord means another instance won the pending→sent race; the
	// loser treats it as a no-op.
	ErrStaleRecord = errors.New("workflow record no longer pending")
)

// Store provides persistence for workflow_records. Methods that take a
// Querier can join a caller's transaction; passing nil uses the pool.
type Store struct {
	db db.Querier
}

func NewStore(q db.Querier) *Store {
	return &Store{db: q}
}

const recordColumns = `id, appointment_id, patient_id, phone, type, status, scheduled_at, sent_at, response, responded_at, created_at, updated_at`

func (s *Store) querier(q db.Querier) db.Querier {
	if q != nil {
		return q
	}
	return s.db
}

// Create inserts a pending record. Callers enforce the one-active-per-type
// invariant by running CancelActive first in the same transaction.
func (s *Store) Create(ctx context.Context, q db.Querier, r *Record) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	now := time.Now().UTC()
	r.CreatedAt = now
	r.UpdatedAt = now
	if r.Status == "" {
		r.Status = StatusPending
	}

	_, err := s.querier(q).Exec(ctx, `
		INSERT INTO workflow_records (id, appointment_id, patient_id, phone, type, status, scheduled_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		r.ID, r.AppointmentID, r.PatientID, r.Phone, string(r.Type), string(r.Status), r.ScheduledAt, r.CreatedAt, r.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("workflow: create record: %w", err)
	}
	return nil
}

// ListDue returns pending records whose scheduled_at has passed.
func (s *Store) ListDue(ctx context.Context, asOf time.Time, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.Query(ctx, `
		SELECT `+recordColumns+`
		FROM workflow_records
		WHERE status = 'pending' AND scheduled_at <= $1
		ORDER BY scheduled_at ASC
		LIMIT $2`, asOf, limit)
	if err != nil {
		return nil, fmt.Errorf("workflow: list due: %w", err)
	}
	defer rows.Close()
	return scanRecords(rows)
}

// MarkSent transitions pending → sent. Conditioned on the record still being
// pending at write time, so overlapping scheduler ticks cannot double-send.
func (s *Store) MarkSent(ctx context.Context, id uuid.UUID, at time.Time) error {
	tag, err := s.db.Exec(ctx, `
		UPDATE workflow_records
		SET status = 'sent', sent_at = $1, updated_at = $1
		WHERE id = $2 AND status = 'pending'`, at, id)
	if err != nil {
		return fmt.Errorf("workflow: mark sent: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrStaleRecord
	}
	return nil
}

// MarkResponded transitions sent → responded, stamping the patient response.
func (s *Store) MarkResponded(ctx context.Context, id uuid.UUID, response string, at time.Time) error {
	tag, err := s.db.Exec(ctx, `
		UPDATE workflow_records
		SET status = 'responded', response = $1, responded_at = $2, updated_at = $2
		WHERE id = $3 AND status = 'sent'`, response, at, id)
	if err != nil {
		return fmt.Errorf("workflow: mark responded: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrStaleRecord
	}
	return nil
}

// CancelActive retires every pending or sent record of the given types for
// an appointment. Runs in the same transaction as the appointment mutation
// that supersedes them, so stale notifications can never fire afterwards.
func (s *Store) CancelActive(ctx context.Context, q db.Querier, appointmentID uuid.UUID, types []Type) (int64, error) {
	if len(types) == 0 {
		return 0, nil
	}
	now := time.Now().UTC()
	tag, err := s.querier(q).Exec(ctx, `
		UPDATE workflow_records
		SET status = 'cancelled', updated_at = $1
		WHERE appointment_id = $2
		  AND status IN ('pending', 'sent')
		  AND type = ANY($3)`, now, appointmentID, typeStrings(types))
	if err != nil {
		return 0, fmt.Errorf("workflow: cancel active: %w", err)
	}
	return tag.RowsAffected(), nil
}

// FindRespondable returns the most recently sent record for the appointment
// among the given types.
func (s *Store) FindRespondable(ctx context.Context, appointmentID uuid.UUID, types []Type) (*Record, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+recordColumns+`
		FROM workflow_records
		WHERE appointment_id = $1
		  AND status = 'sent'
		  AND type = ANY($2)
		ORDER BY sent_at DESC
		LIMIT 1`, appointmentID, typeStrings(types))
	if err != nil {
		return nil, fmt.Errorf("workflow: find respondable: %w", err)
	}
	defer rows.Close()
	records, err := scanRecords(rows)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, ErrRecordNotFound
	}
	return &records[0], nil
}

// ExpireOverdue passively expires sent records nobody responded to before
// the cutoff, and pending records still unfired that long past their
// scheduled time (a worker outage must not replay stale outreach later).
// No appointment-side effect.
func (s *Store) ExpireOverdue(ctx context.Context, cutoff time.Time) (int64, error) {
	now := time.Now().UTC()
	tag, err := s.db.Exec(ctx, `
		UPDATE workflow_records
		SET status = 'expired', updated_at = $1
		WHERE (status = 'sent' AND sent_at < $2)
		   OR (status = 'pending' AND scheduled_at < $2)`, now, cutoff)
	if err != nil {
		return 0, fmt.Errorf("workflow: expire overdue: %w", err)
	}
	return tag.RowsAffected(), nil
}

// ListByAppointment returns the full audit trail for one appointment.
func (s *Store) ListByAppointment(ctx context.Context, appointmentID uuid.UUID) ([]Record, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+recordColumns+`
		FROM workflow_records
		WHERE appointment_id = $1
		ORDER BY created_at ASC`, appointmentID)
	if err != nil {
		return nil, fmt.Errorf("workflow: list by appointment: %w", err)
	}
	defer rows.Close()
	return scanRecords(rows)
}

func scanRecords(rows pgx.Rows) ([]Record, error) {
	var result []Record
	for rows.Next() {
		var r Record
		var typ, status string
		err := rows.Scan(
			&r.ID, &r.AppointmentID, &r.PatientID, &r.Phone,
			&typ, &status, &r.ScheduledAt,
			&r.SentAt, &r.Response, &r.RespondedAt,
			&r.CreatedAt, &r.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("workflow: scan record: %w", err)
		}
		r.Type = Type(typ)
		r.Status = Status(status)
		result = append(result, r)
	}
	return result, rows.Err()
}

func typeStrings(in []Type) []string {
	out := make([]string, len(in))
	for i, t := range in {
		out[i] = string(t)
	}
	return out
}
