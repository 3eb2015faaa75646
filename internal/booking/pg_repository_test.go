package booking

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func exclusionViolation(constraint string) *pgconn.PgError {
	return &pgconn.PgError{Code: "23P01", ConstraintName: constraint}
}

func testSlot() Appointment {
	return Appointment{
		ID:             uuid.New(),
		PatientID:      uuid.New(),
		ProfessionalID: uuid.New(),
		Date:           time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC),
		StartMin:       10 * 60,
		DurationMin:    30,
		Status:         StatusScheduled,
	}
}

// A commit racing another instance trips the agenda exclusion constraint
// instead of the in-transaction conflict query; the caller must still see
// ErrOverlap, for either dimension.
func TestInsertAppointmentMapsExclusionToOverlap(t *testing.T) {
	for _, constraint := range []string{"appointments_pro_no_overlap", "appointments_room_no_overlap"} {
		t.Run(constraint, func(t *testing.T) {
			mock, err := pgxmock.NewPool()
			require.NoError(t, err)
			defer mock.Close()

			mock.ExpectQuery("INSERT INTO appointments").
				WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
				WillReturnError(exclusionViolation(constraint))

			repo := NewPgRepository(nil)
			appt := testSlot()
			err = repo.InsertAppointment(context.Background(), mock, &appt)
			assert.ErrorIs(t, err, ErrOverlap)
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestUpdateAppointmentSlotMapsExclusionToOverlap(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery("UPDATE appointments").
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnError(exclusionViolation("appointments_room_no_overlap"))

	repo := NewPgRepository(nil)
	appt := testSlot()
	err = repo.UpdateAppointmentSlot(context.Background(), mock, &appt)
	assert.ErrorIs(t, err, ErrOverlap)
	assert.NoError(t, mock.ExpectationsWereMet())
}
