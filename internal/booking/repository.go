package booking

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/clinichq/scheduling/internal/db"
)

var (
	ErrPatientNotFound      = errors.New("patient not found")
	ErrProfessionalNotFound = errors.New("professional not found")
	ErrRoomNotFound         = errors.New("room not found")
	ErrAppointmentNotFound  = errors.New("appointment not found")
)

// Repository contains all DB interactions needed by the booking service.
type Repository interface {
	GetPatientByID(ctx context.Context, id uuid.UUID) (*Patient, error)
	GetProfessionalByID(ctx context.Context, id uuid.UUID) (*Professional, error)
	ListProfessionals(ctx context.Context) ([]Professional, error)
	GetRoomByID(ctx context.Context, id uuid.UUID) (*Room, error)

	GetAppointmentByID(ctx context.Context, id uuid.UUID) (*Appointment, error)

	// ListDayAppointments returns non-cancelled appointments on the given day
	// that share the professional or, when roomID is set, the room.
	ListDayAppointments(ctx context.Context, q db.Querier, professionalID uuid.UUID, roomID *uuid.UUID, date time.Time) ([]Appointment, error)
	ListConflicting(ctx context.Context, q db.Querier, a Appointment) ([]uuid.UUID, error)

	InsertAppointment(ctx context.Context, q db.Querier, a *Appointment) error
	UpdateAppointmentSlot(ctx context.Context, q db.Querier, a *Appointment) error
	UpdateAppointmentStatus(ctx context.Context, q db.Querier, id uuid.UUID, from []AppointmentStatus, to AppointmentStatus) (*Appointment, error)

	// InTx runs fn inside a single transaction; the commit is the correctness
	// boundary for conflict checks and same-transaction workflow cancellation.
	InTx(ctx context.Context, fn func(q db.Querier) error) error

	InsertEvent(ctx context.Context, ev EventLog) error
}
