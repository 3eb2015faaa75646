package waitlist

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/clinichq/scheduling/internal/db"
)

var ErrEntryNotFound = errors.New("waitlist entry not found")

// PgStore persists waitlist entries.
type PgStore struct {
	db db.Querier
}

func NewPgStore(q db.Querier) *PgStore {
	return &PgStore{db: q}
}

const entryColumns = `id, patient_id, professional_id, specialty, time_pref, priority, rank, fulfilled_at, created_at`

func (s *PgStore) Create(ctx context.Context, e *Entry) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	if e.TimePref == "" {
		e.TimePref = PrefAny
	}
	if e.Priority == "" {
		e.Priority = PriorityMedium
	}
	e.CreatedAt = time.Now().UTC()

	_, err := s.db.Exec(ctx, `
		INSERT INTO waitlist_entries (id, patient_id, professional_id, specialty, time_pref, priority, rank, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		e.ID, e.PatientID, e.ProfessionalID, e.Specialty, string(e.TimePref), string(e.Priority), e.Rank, e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("waitlist: create entry: %w", err)
	}
	return nil
}

func (s *PgStore) GetByID(ctx context.Context, id uuid.UUID) (*Entry, error) {
	row := s.db.QueryRow(ctx, `
		SELECT `+entryColumns+`
		FROM waitlist_entries
		WHERE id = $1`, id)

	e, err := scanEntry(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrEntryNotFound
		}
		return nil, err
	}
	return e, nil
}

// ListActive returns unfulfilled entries ordered by priority tier, then the
// staff-assigned rank, then age.
func (s *PgStore) ListActive(ctx context.Context) ([]Entry, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+entryColumns+`
		FROM waitlist_entries
		WHERE fulfilled_at IS NULL
		ORDER BY CASE priority WHEN 'high' THEN 0 WHEN 'medium' THEN 1 ELSE 2 END,
		         rank, created_at`)
	if err != nil {
		return nil, fmt.Errorf("waitlist: list active: %w", err)
	}
	defer rows.Close()

	var result []Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *e)
	}
	return result, rows.Err()
}

// MarkFulfilled consumes an entry after its suggested slot became a booking.
func (s *PgStore) MarkFulfilled(ctx context.Context, id uuid.UUID) error {
	tag, err := s.db.Exec(ctx, `
		UPDATE waitlist_entries
		SET fulfilled_at = $2
		WHERE id = $1 AND fulfilled_at IS NULL`, id, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("waitlist: mark fulfilled: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrEntryNotFound
	}
	return nil
}

func (s *PgStore) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := s.db.Exec(ctx, `DELETE FROM waitlist_entries WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("waitlist: delete entry: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrEntryNotFound
	}
	return nil
}

func scanEntry(row pgx.Row) (*Entry, error) {
	var e Entry
	var pref, prio string
	err := row.Scan(&e.ID, &e.PatientID, &e.ProfessionalID, &e.Specialty, &pref, &prio, &e.Rank, &e.FulfilledAt, &e.CreatedAt)
	if err != nil {
		return nil, err
	}
	e.TimePref = TimePreference(pref)
	e.Priority = Priority(prio)
	return &e, nil
}
