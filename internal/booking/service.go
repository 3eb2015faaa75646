package booking

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/clinichq/scheduling/internal/config"
	"github.com/clinichq/scheduling/internal/db"
	"github.com/clinichq/scheduling/internal/observability/metrics"
	redisclient "github.com/clinichq/scheduling/internal/redis"
	"github.com/clinichq/scheduling/internal/schedule"
)

const (
	EventAppointmentBooked      = "APPOINTMENT_BOOKED"
	EventAppointmentRescheduled = "APPOINTMENT_RESCHEDULED"
	EventAppointmentCancelled   = "APPOINTMENT_CANCELLED"
	EventAppointmentNoShow      = "APPOINTMENT_NO_SHOW"
	EventAppointmentCompleted   = "APPOINTMENT_COMPLETED"
	EventAppointmentConfirmed   = "APPOINTMENT_CONFIRMED"
)

var (
	ErrOverlap                 = errors.New("slot overlaps an existing appointment")
	ErrTooSoon                 = errors.New("slot starts before the minimum advance notice")
	ErrInvalidDuration         = errors.New("invalid appointment duration")
	ErrAgendaBusy              = errors.New("agenda is being modified, please retry")
	ErrInvalidStatusTransition = errors.New("invalid status transition")
)

// NotificationScheduler is implemented by the workflow engine. Hooks run
// inside the same transaction as the appointment mutation so stale workflow
// records are cancelled atomically with the change that supersedes them.
type NotificationScheduler interface {
	BookingScheduled(ctx context.Context, q db.Querier, appt Appointment) error
	AppointmentRescheduled(ctx context.Context, q db.Querier, appt Appointment) error
	AppointmentCancelled(ctx context.Context, q db.Querier, appt Appointment) error
	AppointmentNoShow(ctx context.Context, q db.Querier, appt Appointment) error
	AppointmentCompleted(ctx context.Context, q db.Querier, appt Appointment, reviewOptOut bool) error
}

// FreedSlotNotifier is implemented by the waitlist service. Called after a
// cancellation commits; best-effort.
type FreedSlotNotifier interface {
	SlotFreed(ctx context.Context, appt Appointment)
}

type Service struct {
	repo      Repository
	locker    redisclient.Locker
	settings  config.Settings
	workflows NotificationScheduler
	waitlist  FreedSlotNotifier
	metrics   *metrics.SchedulingMetrics
	logger    zerolog.Logger
}

func NewService(repo Repository, locker redisclient.Locker, settings config.Settings, workflows NotificationScheduler, m *metrics.SchedulingMetrics, logger zerolog.Logger) *Service {
	return &Service{
		repo:      repo,
		locker:    locker,
		settings:  settings,
		workflows: workflows,
		metrics:   m,
		logger:    logger.With().Str("component", "booking").Logger(),
	}
}

// SetFreedSlotNotifier wires the waitlist after construction; the waitlist
// service itself depends on this service for guarded acceptance.
func (s *Service) SetFreedSlotNotifier(n FreedSlotNotifier) {
	s.waitlist = n
}

type CreateInput struct {
	PatientID          uuid.UUID
	ProfessionalID     uuid.UUID
	RoomID             *uuid.UUID
	ConsultationTypeID *uuid.UUID
	Date               time.Time
	StartMin           int
	DurationMin        int
	Notes              string
}

// Create books a new appointment. The slot-calendar pre-check callers may
// have done is advisory only: the overlap query runs again inside the
// transaction, under the per professional/day lock, and the agenda exclusion
// constraints reject at commit whatever concurrent writes slip past both
// (the room dimension shares no lock key across professionals).
func (s *Service) Create(ctx context.Context, in CreateInput) (*Appointment, error) {
	appt := Appointment{
		ID:                 uuid.New(),
		PatientID:          in.PatientID,
		ProfessionalID:     in.ProfessionalID,
		RoomID:             in.RoomID,
		ConsultationTypeID: in.ConsultationTypeID,
		Date:               in.Date.UTC().Truncate(24 * time.Hour),
		StartMin:           in.StartMin,
		DurationMin:        in.DurationMin,
		Status:             StatusScheduled,
		Notes:              in.Notes,
	}
	if appt.DurationMin == 0 {
		appt.DurationMin = s.settings.DefaultDurationMin
	}

	if err := s.validateSlot(appt, time.Now().UTC()); err != nil {
		return nil, err
	}

	if _, err := s.repo.GetPatientByID(ctx, appt.PatientID); err != nil {
		return nil, fmt.Errorf("load patient: %w", err)
	}
	if _, err := s.repo.GetProfessionalByID(ctx, appt.ProfessionalID); err != nil {
		return nil, fmt.Errorf("load professional: %w", err)
	}
	if appt.RoomID != nil {
		if _, err := s.repo.GetRoomByID(ctx, *appt.RoomID); err != nil {
			return nil, fmt.Errorf("load room: %w", err)
		}
	}

	err := s.locker.WithAgendaLock(ctx, appt.ProfessionalID, appt.Date, func(lockCtx context.Context) error {
		return s.repo.InTx(lockCtx, func(q db.Querier) error {
			conflicts, err := s.repo.ListConflicting(lockCtx, q, appt)
			if err != nil {
				return fmt.Errorf("check conflicts: %w", err)
			}
			if len(conflicts) > 0 {
				return ErrOverlap
			}
			if err := s.repo.InsertAppointment(lockCtx, q, &appt); err != nil {
				return err
			}
			return s.workflows.BookingScheduled(lockCtx, q, appt)
		})
	})
	if err != nil {
		if errors.Is(err, redisclient.ErrLockNotAcquired) {
			return nil, ErrAgendaBusy
		}
		if errors.Is(err, ErrOverlap) {
			s.metrics.ObserveConflict("overlap")
		}
		return nil, err
	}

	s.logEvent(ctx, appt.ID, EventAppointmentBooked, map[string]any{
		"professional_id": appt.ProfessionalID.String(),
		"date":            appt.Date.Format(time.DateOnly),
		"start":           schedule.Clock(appt.StartMin),
		"duration_min":    appt.DurationMin,
	})

	return &appt, nil
}

type RescheduleInput struct {
	ProfessionalID *uuid.UUID
	RoomID         *uuid.UUID
	Date           time.Time
	StartMin       int
	DurationMin    int
}

// Reschedule moves an existing appointment to a new slot, re-running the
// full conflict guard and cancelling workflows bound to the old date/time.
func (s *Service) Reschedule(ctx context.Context, id uuid.UUID, in RescheduleInput) (*Appointment, error) {
	current, err := s.repo.GetAppointmentByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if current.Status != StatusScheduled && current.Status != StatusConfirmed {
		return nil, ErrInvalidStatusTransition
	}

	next := *current
	next.Date = in.Date.UTC().Truncate(24 * time.Hour)
	next.StartMin = in.StartMin
	next.RoomID = in.RoomID
	if in.DurationMin > 0 {
		next.DurationMin = in.DurationMin
	}
	if in.ProfessionalID != nil {
		next.ProfessionalID = *in.ProfessionalID
		if _, err := s.repo.GetProfessionalByID(ctx, next.ProfessionalID); err != nil {
			return nil, fmt.Errorf("load professional: %w", err)
		}
	}

	if err := s.validateSlot(next, time.Now().UTC()); err != nil {
		return nil, err
	}

	err = s.locker.WithAgendaLock(ctx, next.ProfessionalID, next.Date, func(lockCtx context.Context) error {
		return s.repo.InTx(lockCtx, func(q db.Querier) error {
			conflicts, err := s.repo.ListConflicting(lockCtx, q, next)
			if err != nil {
				return fmt.Errorf("check conflicts: %w", err)
			}
			if len(conflicts) > 0 {
				return ErrOverlap
			}
			if err := s.repo.UpdateAppointmentSlot(lockCtx, q, &next); err != nil {
				return err
			}
			return s.workflows.AppointmentRescheduled(lockCtx, q, next)
		})
	})
	if err != nil {
		if errors.Is(err, redisclient.ErrLockNotAcquired) {
			return nil, ErrAgendaBusy
		}
		if errors.Is(err, ErrOverlap) {
			s.metrics.ObserveConflict("overlap")
		}
		return nil, err
	}

	s.logEvent(ctx, next.ID, EventAppointmentRescheduled, map[string]any{
		"date":  next.Date.Format(time.DateOnly),
		"start": schedule.Clock(next.StartMin),
	})

	// The old slot just opened up; offer it to the waitlist.
	if s.waitlist != nil {
		s.waitlist.SlotFreed(ctx, *current)
	}

	return &next, nil
}

// Cancel soft-cancels an appointment, retires its active workflows in the
// same transaction and offers the freed slot to the waitlist.
func (s *Service) Cancel(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	var cancelled *Appointment
	err := s.repo.InTx(ctx, func(q db.Querier) error {
		appt, err := s.repo.UpdateAppointmentStatus(ctx, q, id, []AppointmentStatus{StatusScheduled, StatusConfirmed}, StatusCancelled)
		if err != nil {
			if errors.Is(err, ErrAppointmentNotFound) {
				return s.transitionError(ctx, id)
			}
			return err
		}
		cancelled = appt
		return s.workflows.AppointmentCancelled(ctx, q, *appt)
	})
	if err != nil {
		return nil, err
	}

	s.logEvent(ctx, cancelled.ID, EventAppointmentCancelled, map[string]any{})

	if s.waitlist != nil {
		s.waitlist.SlotFreed(ctx, *cancelled)
	}

	return cancelled, nil
}

// MarkNoShow flags a missed appointment and queues the reschedule outreach.
func (s *Service) MarkNoShow(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	var marked *Appointment
	err := s.repo.InTx(ctx, func(q db.Querier) error {
		appt, err := s.repo.UpdateAppointmentStatus(ctx, q, id, []AppointmentStatus{StatusScheduled, StatusConfirmed}, StatusNoShow)
		if err != nil {
			if errors.Is(err, ErrAppointmentNotFound) {
				return s.transitionError(ctx, id)
			}
			return err
		}
		marked = appt
		return s.workflows.AppointmentNoShow(ctx, q, *appt)
	})
	if err != nil {
		return nil, err
	}

	s.logEvent(ctx, marked.ID, EventAppointmentNoShow, map[string]any{})
	return marked, nil
}

// Complete finalizes a visit. Unless staff opted the patient out, a review
// prompt is scheduled for a couple of hours later.
func (s *Service) Complete(ctx context.Context, id uuid.UUID, reviewOptOut bool) (*Appointment, error) {
	var completed *Appointment
	err := s.repo.InTx(ctx, func(q db.Querier) error {
		appt, err := s.repo.UpdateAppointmentStatus(ctx, q, id, []AppointmentStatus{StatusScheduled, StatusConfirmed}, StatusCompleted)
		if err != nil {
			if errors.Is(err, ErrAppointmentNotFound) {
				return s.transitionError(ctx, id)
			}
			return err
		}
		completed = appt
		return s.workflows.AppointmentCompleted(ctx, q, *appt, reviewOptOut)
	})
	if err != nil {
		return nil, err
	}

	s.logEvent(ctx, completed.ID, EventAppointmentCompleted, map[string]any{
		"review_opt_out": reviewOptOut,
	})
	return completed, nil
}

// ConfirmAppointment applies the patient's confirm action. Idempotent: a
// second confirmation of an already-confirmed appointment is a no-op.
func (s *Service) ConfirmAppointment(ctx context.Context, id uuid.UUID) error {
	_, err := s.repo.UpdateAppointmentStatus(ctx, nil, id, []AppointmentStatus{StatusScheduled}, StatusConfirmed)
	if err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			appt, getErr := s.repo.GetAppointmentByID(ctx, id)
			if getErr != nil {
				return getErr
			}
			if appt.Status == StatusConfirmed {
				return nil
			}
			return ErrInvalidStatusTransition
		}
		return err
	}

	s.logEvent(ctx, id, EventAppointmentConfirmed, map[string]any{"via": "action_link"})
	return nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return s.repo.GetAppointmentByID(ctx, id)
}

func (s *Service) ListDay(ctx context.Context, professionalID uuid.UUID, date time.Time) ([]Appointment, error) {
	return s.repo.ListDayAppointments(ctx, nil, professionalID, nil, date.UTC().Truncate(24*time.Hour))
}

// Availability answers the slot-calendar query for one professional(/room)/day.
func (s *Service) Availability(ctx context.Context, professionalID uuid.UUID, roomID *uuid.UUID, date time.Time, durationMin int) (schedule.Day, error) {
	day := date.UTC().Truncate(24 * time.Hour)
	appts, err := s.repo.ListDayAppointments(ctx, nil, professionalID, roomID, day)
	if err != nil {
		return schedule.Day{}, fmt.Errorf("list day appointments: %w", err)
	}
	if durationMin <= 0 {
		durationMin = s.settings.DefaultDurationMin
	}

	booked := make([]schedule.Booking, 0, len(appts))
	for _, a := range appts {
		booked = append(booked, schedule.Booking{StartMin: a.StartMin, DurationMin: a.DurationMin})
	}

	return schedule.Compute(schedule.Query{
		Window:         s.settings.WorkingHours[day.Weekday()],
		GranularityMin: s.settings.GranularityMin,
		BufferMin:      s.settings.BufferMin,
		DurationMin:    durationMin,
		Booked:         booked,
	}), nil
}

// validateSlot is the guard's input validation: duration bounds and the
// minimum advance notice from practice settings.
func (s *Service) validateSlot(a Appointment, now time.Time) error {
	if a.DurationMin <= 0 || a.DurationMin > s.settings.MaxDurationMin {
		return ErrInvalidDuration
	}
	if a.StartMin < 0 || a.EndMin() > 24*60 {
		return ErrInvalidDuration
	}
	if a.StartsAt().Before(now.Add(s.settings.MinAdvance)) {
		return ErrTooSoon
	}
	return nil
}

// transitionError distinguishes "row missing" from "row in a terminal state"
// after a zero-row conditional update.
func (s *Service) transitionError(ctx context.Context, id uuid.UUID) error {
	if _, err := s.repo.GetAppointmentByID(ctx, id); err != nil {
		return err
	}
	return ErrInvalidStatusTransition
}

func (s *Service) logEvent(ctx context.Context, appointmentID uuid.UUID, eventType string, payload map[string]any) {
	data, err := json.Marshal(payload)
	if err != nil {
		s.logger.Error().Err(err).Str("event", eventType).Msg("marshal event payload")
		data = nil
	}

	apptID := appointmentID
	ev := EventLog{
		EventType:     eventType,
		AppointmentID: &apptID,
		Payload:       data,
		CreatedAt:     time.Now().UTC(),
	}

	if err := s.repo.InsertEvent(ctx, ev); err != nil {
		s.logger.Error().Err(err).Str("event", eventType).Stringer("appointment_id", appointmentID).Msg("insert event log")
	}
}
