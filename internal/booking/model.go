package booking

import (
	"time"

	"github.com/google/uuid"
)

type AppointmentStatus string

const (
	StatusScheduled AppointmentStatus = "scheduled"
	StatusConfirmed AppointmentStatus = "confirmed"
	StatusCompleted AppointmentStatus = "completed"
	StatusCancelled AppointmentStatus = "cancelled"
	StatusNoShow    AppointmentStatus = "no_show"
)

type Patient struct {
	ID        uuid.UUID
	Name      string
	Phone     string
	Email     *string
	CreatedAt time.Time
	UpdatedAt time.Time
}

type Professional struct {
	ID        uuid.UUID
	Name      string
	Specialty *string
	CreatedAt time.Time
	UpdatedAt time.Time
}

type Room struct {
	ID   uuid.UUID
	Name string
}

type ConsultationType struct {
	ID          uuid.UUID
	Name        string
	DurationMin int
}

// Appointment occupies [StartMin, StartMin+DurationMin) on Date for one
// professional and, when assigned, one room. Cancelled rows stay in place
// (soft cancel) because workflows and tokens keep referencing them.
type Appointment struct {
	ID                 uuid.UUID
	PatientID          uuid.UUID
	ProfessionalID     uuid.UUID
	RoomID             *uuid.UUID
	ConsultationTypeID *uuid.UUID
	Date               time.Time // calendar day, midnight UTC
	StartMin           int       // minutes since midnight
	DurationMin        int
	Status             AppointmentStatus
	Notes              string
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// StartsAt is the wall-clock start instant.
func (a Appointment) StartsAt() time.Time {
	return a.Date.Add(time.Duration(a.StartMin) * time.Minute)
}

func (a Appointment) EndMin() int {
	return a.StartMin + a.DurationMin
}

type EventLog struct {
	ID            int64
	EventType     string
	AppointmentID *uuid.UUID
	Payload       []byte
	CreatedAt     time.Time
}
