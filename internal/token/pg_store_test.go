package token

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPgStoreConsumeWinner(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	usedAt := time.Now().UTC()
	mock.ExpectExec("UPDATE action_tokens").
		WithArgs("tok-value", usedAt).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	store := NewPgStore(mock)
	require.NoError(t, store.Consume(context.Background(), "tok-value", usedAt))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPgStoreConsumeLoserGetsAlreadyUsed(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	usedAt := time.Now().UTC()
	earlier := usedAt.Add(-time.Minute)

	// Zero rows: the CAS lost. The follow-up read distinguishes "used" from
	// "no such token".
	mock.ExpectExec("UPDATE action_tokens").
		WithArgs("tok-value", usedAt).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	mock.ExpectQuery("SELECT id, value, appointment_id, kind, expires_at, used, used_at, created_at").
		WithArgs("tok-value").
		WillReturnRows(pgxmock.NewRows([]string{"id", "value", "appointment_id", "kind", "expires_at", "used", "used_at", "created_at"}).
			AddRow(uuid.New(), "tok-value", uuid.New(), KindConfirm, usedAt.Add(time.Hour), true, &earlier, earlier))

	store := NewPgStore(mock)
	err = store.Consume(context.Background(), "tok-value", usedAt)
	assert.ErrorIs(t, err, ErrAlreadyUsed)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPgStoreConsumeUnknownToken(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	usedAt := time.Now().UTC()
	mock.ExpectExec("UPDATE action_tokens").
		WithArgs("missing", usedAt).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	mock.ExpectQuery("SELECT id, value, appointment_id, kind, expires_at, used, used_at, created_at").
		WithArgs("missing").
		WillReturnRows(pgxmock.NewRows([]string{"id", "value", "appointment_id", "kind", "expires_at", "used", "used_at", "created_at"}))

	store := NewPgStore(mock)
	err = store.Consume(context.Background(), "missing", usedAt)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}
