package waitlist

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/clinichq/scheduling/internal/booking"
)

// Entries is the persistence surface; *PgStore satisfies it.
type Entries interface {
	Create(ctx context.Context, e *Entry) error
	GetByID(ctx context.Context, id uuid.UUID) (*Entry, error)
	ListActive(ctx context.Context) ([]Entry, error)
	MarkFulfilled(ctx context.Context, id uuid.UUID) error
	Delete(ctx context.Context, id uuid.UUID) error
}

// Booker turns an accepted candidate into a real appointment; the conflict
// guard re-runs inside, which is what invalidates stale candidates.
type Booker interface {
	Create(ctx context.Context, in booking.CreateInput) (*booking.Appointment, error)
}

// SuggestionScheduler enqueues the availability_suggestion workflow.
type SuggestionScheduler interface {
	ScheduleAvailabilitySuggestion(ctx context.Context, freedAppointmentID, patientID uuid.UUID, phone string) error
}

// Patients resolves contact details for suggestions.
type Patients interface {
	GetPatientByID(ctx context.Context, id uuid.UUID) (*booking.Patient, error)
}

type Service struct {
	entries  Entries
	matcher  *Matcher
	bookings Booker
	engine   SuggestionScheduler
	patients Patients
	logger   zerolog.Logger
}

func NewService(entries Entries, matcher *Matcher, bookings Booker, engine SuggestionScheduler, patients Patients, logger zerolog.Logger) *Service {
	return &Service{
		entries:  entries,
		matcher:  matcher,
		bookings: bookings,
		engine:   engine,
		patients: patients,
		logger:   logger.With().Str("component", "waitlist").Logger(),
	}
}

type CreateEntryInput struct {
	PatientID      uuid.UUID
	ProfessionalID *uuid.UUID
	Specialty      *string
	TimePref       TimePreference
	Priority       Priority
	Rank           int
}

func (s *Service) Create(ctx context.Context, in CreateEntryInput) (*Entry, error) {
	e := &Entry{
		PatientID:      in.PatientID,
		ProfessionalID: in.ProfessionalID,
		Specialty:      in.Specialty,
		TimePref:       in.TimePref,
		Priority:       in.Priority,
		Rank:           in.Rank,
	}
	if err := s.entries.Create(ctx, e); err != nil {
		return nil, err
	}
	return e, nil
}

func (s *Service) List(ctx context.Context) ([]Entry, error) {
	return s.entries.ListActive(ctx)
}

func (s *Service) Remove(ctx context.Context, id uuid.UUID) error {
	return s.entries.Delete(ctx, id)
}

// Matches runs the matcher for one entry against the current snapshot.
func (s *Service) Matches(ctx context.Context, id uuid.UUID) ([]Candidate, error) {
	e, err := s.entries.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.matcher.Match(ctx, *e, time.Now())
}

// Accept books a candidate for the entry's patient and consumes the entry.
// The candidate may have gone stale since it was suggested; the booking
// service's conflict guard decides, not the matcher.
func (s *Service) Accept(ctx context.Context, entryID uuid.UUID, cand Candidate) (*booking.Appointment, error) {
	e, err := s.entries.GetByID(ctx, entryID)
	if err != nil {
		return nil, err
	}
	if !e.Active() {
		return nil, ErrEntryNotFound
	}

	appt, err := s.bookings.Create(ctx, booking.CreateInput{
		PatientID:      e.PatientID,
		ProfessionalID: cand.ProfessionalID,
		Date:           cand.Date,
		StartMin:       cand.StartMin,
	})
	if err != nil {
		return nil, fmt.Errorf("book waitlist candidate: %w", err)
	}

	if err := s.entries.MarkFulfilled(ctx, e.ID); err != nil {
		// The booking stands; the entry cleanup is secondary.
		s.logger.Error().Err(err).Stringer("entry_id", e.ID).Msg("mark entry fulfilled")
	}

	return appt, nil
}

// SlotFreed offers a just-freed slot to the best-ranked matching entry by
// scheduling an availability_suggestion workflow. Best-effort: failures are
// logged, a cancellation never fails because of the waitlist.
func (s *Service) SlotFreed(ctx context.Context, appt booking.Appointment) {
	entries, err := s.entries.ListActive(ctx)
	if err != nil {
		s.logger.Error().Err(err).Msg("list waitlist entries for freed slot")
		return
	}

	var specialty *string
	if pro, err := s.professional(ctx, appt.ProfessionalID); err == nil && pro != nil {
		specialty = pro.Specialty
	}

	for _, e := range entries {
		if e.ProfessionalID != nil && *e.ProfessionalID != appt.ProfessionalID {
			continue
		}
		if e.Specialty != nil && (specialty == nil || *specialty != *e.Specialty) {
			continue
		}
		if !e.Prefers(appt.StartMin) {
			continue
		}
		if e.PatientID == appt.PatientID {
			continue
		}

		p, err := s.patients.GetPatientByID(ctx, e.PatientID)
		if err != nil {
			s.logger.Error().Err(err).Stringer("entry_id", e.ID).Msg("load waitlist patient")
			return
		}
		if err := s.engine.ScheduleAvailabilitySuggestion(ctx, appt.ID, e.PatientID, p.Phone); err != nil {
			s.logger.Error().Err(err).Stringer("entry_id", e.ID).Msg("schedule availability suggestion")
			return
		}

		s.logger.Info().
			Stringer("entry_id", e.ID).
			Stringer("appointment_id", appt.ID).
			Msg("freed slot offered to waitlist")
		return
	}
}

func (s *Service) professional(ctx context.Context, id uuid.UUID) (*booking.Professional, error) {
	if s.matcher == nil || s.matcher.dir == nil {
		return nil, nil
	}
	pros, err := s.matcher.dir.ListProfessionals(ctx)
	if err != nil {
		return nil, err
	}
	for i := range pros {
		if pros[i].ID == id {
			return &pros[i], nil
		}
	}
	return nil, nil
}
