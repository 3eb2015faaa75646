package waitlist

import (
	"time"

	"github.com/google/uuid"
)

type TimePreference string

const (
	PrefMorning   TimePreference = "morning"
	PrefAfternoon TimePreference = "afternoon"
	PrefAny       TimePreference = "any"
)

type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

// Entry is a standing request for a slot matching stated preferences. It
// persists until a suggested slot is accepted into an appointment.
type Entry struct {
	ID             uuid.UUID
	PatientID      uuid.UUID
	ProfessionalID *uuid.UUID
	Specialty      *string
	TimePref       TimePreference
	Priority       Priority
	Rank           int
	FulfilledAt    *time.Time
	CreatedAt      time.Time
}

func (e Entry) Active() bool {
	return e.FulfilledAt == nil
}

// Candidate is one free (date, time, professional) triple offered against an
// entry. Candidates can go stale; acceptance re-runs the conflict guard.
type Candidate struct {
	Date           time.Time
	StartMin       int
	ProfessionalID uuid.UUID
}
