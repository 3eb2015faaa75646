package token

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/clinichq/scheduling/internal/db"
)

// PgStore persists tokens in the action_tokens table.
type PgStore struct {
	db db.Querier
}

func NewPgStore(q db.Querier) *PgStore {
	return &PgStore{db: q}
}

func (s *PgStore) Insert(ctx context.Context, t *Token) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO action_tokens (id, value, appointment_id, kind, expires_at, used, created_at)
		VALUES ($1, $2, $3, $4, $5, false, $6)
	`, t.ID, t.Value, t.AppointmentID, t.Kind, t.ExpiresAt, t.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert token: %w", err)
	}
	return nil
}

func (s *PgStore) GetByValue(ctx context.Context, value string) (*Token, error) {
	row := s.db.QueryRow(ctx, `
		SELECT id, value, appointment_id, kind, expires_at, used, used_at, created_at
		FROM action_tokens
		WHERE value = $1
	`, value)

	var t Token
	err := row.Scan(&t.ID, &t.Value, &t.AppointmentID, &t.Kind, &t.ExpiresAt, &t.Used, &t.UsedAt, &t.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &t, nil
}

// Consume performs the single-row compare-and-swap that makes the token
// single-use: only the first caller flips used=false→true.
func (s *PgStore) Consume(ctx context.Context, value string, usedAt time.Time) error {
	tag, err := s.db.Exec(ctx, `
		UPDATE action_tokens
		SET used = true,
		    used_at = $2
		WHERE value = $1
		  AND used = false
	`, value, usedAt)
	if err != nil {
		return fmt.Errorf("consume token: %w", err)
	}
	if tag.RowsAffected() == 0 {
		if _, getErr := s.GetByValue(ctx, value); getErr != nil {
			return getErr
		}
		return ErrAlreadyUsed
	}
	return nil
}
