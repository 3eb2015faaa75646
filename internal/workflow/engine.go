package workflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/clinichq/scheduling/internal/booking"
	"github.com/clinichq/scheduling/internal/config"
	"github.com/clinichq/scheduling/internal/db"
	"github.com/clinichq/scheduling/internal/notify"
	"github.com/clinichq/scheduling/internal/observability/metrics"
	"github.com/clinichq/scheduling/internal/token"
)

// Records is the persistence surface the engine drives. *Store satisfies it.
type Records interface {
	Create(ctx context.Context, q db.Querier, r *Record) error
	ListDue(ctx context.Context, asOf time.Time, limit int) ([]Record, error)
	MarkSent(ctx context.Context, id uuid.UUID, at time.Time) error
	MarkResponded(ctx context.Context, id uuid.UUID, response string, at time.Time) error
	CancelActive(ctx context.Context, q db.Querier, appointmentID uuid.UUID, types []Type) (int64, error)
	FindRespondable(ctx context.Context, appointmentID uuid.UUID, types []Type) (*Record, error)
	ExpireOverdue(ctx context.Context, cutoff time.Time) (int64, error)
}

// TokenVault issues and checks single-use action tokens. *token.Vault satisfies it.
type TokenVault interface {
	Issue(ctx context.Context, appointmentID uuid.UUID, kind token.Kind, ttl time.Duration) (*token.Token, error)
	Validate(ctx context.Context, value string) (*token.Token, error)
	Consume(ctx context.Context, value string) error
}

// PatientDirectory resolves the contact details stamped onto each record.
type PatientDirectory interface {
	GetPatientByID(ctx context.Context, id uuid.UUID) (*booking.Patient, error)
}

// AppointmentConfirmer applies the confirm action's appointment-side effect.
type AppointmentConfirmer interface {
	ConfirmAppointment(ctx context.Context, id uuid.UUID) error
}

// Engine owns the per-appointment notification state machine: it schedules
// future triggers, fires due ones, and applies inbound patient actions.
type Engine struct {
	records   Records
	tokens    TokenVault
	delivery  notify.Delivery
	patients  PatientDirectory
	confirmer AppointmentConfirmer
	settings  config.Settings
	metrics   *metrics.SchedulingMetrics
	logger    zerolog.Logger
}

func NewEngine(records Records, tokens TokenVault, delivery notify.Delivery, patients PatientDirectory, settings config.Settings, m *metrics.SchedulingMetrics, logger zerolog.Logger) *Engine {
	return &Engine{
		records:  records,
		tokens:   tokens,
		delivery: delivery,
		patients: patients,
		settings: settings,
		metrics:  m,
		logger:   logger.With().Str("component", "workflow").Logger(),
	}
}

// SetAppointmentConfirmer breaks the construction cycle with the booking
// service, which in turn depends on this engine for scheduling hooks.
func (e *Engine) SetAppointmentConfirmer(c AppointmentConfirmer) {
	e.confirmer = c
}

// BookingScheduled enqueues the pre-visit confirmation workflows for a new
// booking: confirmation_24h at T−24h (or one minute from now when the
// appointment is already inside that window), and pre_confirmation shortly
// after booking for appointments more than 48h out.
func (e *Engine) BookingScheduled(ctx context.Context, q db.Querier, appt booking.Appointment) error {
	phone, err := e.patientPhone(ctx, appt.PatientID)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	confirmAt := appt.StartsAt().Add(-24 * time.Hour)
	if !confirmAt.After(now) {
		confirmAt = now.Add(time.Minute)
	}

	if err := e.scheduleUnique(ctx, q, appt, phone, TypeConfirmation24h, confirmAt); err != nil {
		return err
	}
	if appt.StartsAt().After(now.Add(48 * time.Hour)) {
		if err := e.scheduleUnique(ctx, q, appt, phone, TypePreConfirmation, now.Add(time.Minute)); err != nil {
			return err
		}
	}
	return nil
}

// AppointmentRescheduled cancels every workflow bound to the superseded
// date/time in the mutation's transaction, then schedules afresh.
func (e *Engine) AppointmentRescheduled(ctx context.Context, q db.Querier, appt booking.Appointment) error {
	if _, err := e.records.CancelActive(ctx, q, appt.ID, AllTypes()); err != nil {
		return err
	}
	return e.BookingScheduled(ctx, q, appt)
}

// AppointmentCancelled retires all active workflows and queues the
// reschedule offer for the patient who cancelled.
func (e *Engine) AppointmentCancelled(ctx context.Context, q db.Querier, appt booking.Appointment) error {
	if _, err := e.records.CancelActive(ctx, q, appt.ID, AllTypes()); err != nil {
		return err
	}
	phone, err := e.patientPhone(ctx, appt.PatientID)
	if err != nil {
		return err
	}
	return e.create(ctx, q, appt, phone, TypeReschedulePatientCancel, time.Now().UTC())
}

// AppointmentNoShow retires active workflows and queues an immediate
// reschedule outreach.
func (e *Engine) AppointmentNoShow(ctx context.Context, q db.Querier, appt booking.Appointment) error {
	if _, err := e.records.CancelActive(ctx, q, appt.ID, AllTypes()); err != nil {
		return err
	}
	phone, err := e.patientPhone(ctx, appt.PatientID)
	if err != nil {
		return err
	}
	return e.create(ctx, q, appt, phone, TypeRescheduleNoShow, time.Now().UTC())
}

// AppointmentCompleted retires the pre-visit workflows and, unless staff
// opted the patient out at finalization, schedules the review prompt.
func (e *Engine) AppointmentCompleted(ctx context.Context, q db.Querier, appt booking.Appointment, reviewOptOut bool) error {
	if _, err := e.records.CancelActive(ctx, q, appt.ID, []Type{TypeConfirmation24h, TypePreConfirmation}); err != nil {
		return err
	}
	if reviewOptOut {
		return nil
	}
	phone, err := e.patientPhone(ctx, appt.PatientID)
	if err != nil {
		return err
	}
	return e.scheduleUnique(ctx, q, appt, phone, TypeReviewReminder, time.Now().UTC().Add(e.settings.ReviewDelay))
}

// ScheduleAvailabilitySuggestion offers a freed slot to a waitlisted
// patient. Bound to the freed appointment so the audit trail links back.
func (e *Engine) ScheduleAvailabilitySuggestion(ctx context.Context, freedAppointmentID, patientID uuid.UUID, phone string) error {
	if _, err := e.records.CancelActive(ctx, nil, freedAppointmentID, []Type{TypeAvailabilitySuggestion}); err != nil {
		return err
	}
	rec := &Record{
		AppointmentID: freedAppointmentID,
		PatientID:     patientID,
		Phone:         phone,
		Type:          TypeAvailabilitySuggestion,
		ScheduledAt:   time.Now().UTC(),
	}
	return e.records.Create(ctx, nil, rec)
}

// FireDue runs one scheduler pass: every pending record whose time has come
// is flipped to sent via compare-and-swap (losing instances no-op), a fresh
// action token is issued, and the message payload is handed to delivery.
// Token or delivery failures are logged and do not undo the transition; the
// workflow status is the source of truth and outreach is best-effort.
func (e *Engine) FireDue(ctx context.Context, now time.Time) (int, error) {
	due, err := e.records.ListDue(ctx, now, 100)
	if err != nil {
		return 0, fmt.Errorf("list due workflows: %w", err)
	}

	fired := 0
	for i := range due {
		r := &due[i]
		if err := e.records.MarkSent(ctx, r.ID, now); err != nil {
			if errors.Is(err, ErrStaleRecord) {
				continue
			}
			e.logger.Error().Err(err).Stringer("record_id", r.ID).Msg("mark sent")
			continue
		}

		tok, err := e.tokens.Issue(ctx, r.AppointmentID, ActionFor(r.Type), e.settings.TokenTTL)
		if err != nil {
			e.metrics.ObserveWorkflowFired(string(r.Type), "token_error")
			e.logger.Error().Err(err).Stringer("record_id", r.ID).Msg("issue token")
			continue
		}

		payload := notify.Payload{
			Phone:         r.Phone,
			WorkflowType:  string(r.Type),
			AppointmentID: r.AppointmentID.String(),
			ActionToken:   tok.Value,
		}
		if err := e.delivery.Deliver(ctx, payload); err != nil {
			e.metrics.ObserveWorkflowFired(string(r.Type), "delivery_error")
			e.logger.Error().Err(err).Stringer("record_id", r.ID).Msg("hand off delivery payload")
			continue
		}

		e.metrics.ObserveWorkflowFired(string(r.Type), "sent")
		fired++
	}

	return fired, nil
}

// ExpireOverdue passively expires sent workflows past the response horizon
// and pending ones the worker never fired within it.
func (e *Engine) ExpireOverdue(ctx context.Context, now time.Time) (int64, error) {
	n, err := e.records.ExpireOverdue(ctx, now.Add(-e.settings.SentExpiry))
	if err != nil {
		return 0, err
	}
	if n > 0 {
		e.logger.Info().Int64("count", n).Msg("expired unanswered workflows")
	}
	return n, nil
}

// ActionResult describes a successfully applied inbound action.
type ActionResult struct {
	AppointmentID uuid.UUID
	Kind          token.Kind
	WorkflowType  Type
}

// ApplyAction handles a patient clicking an action link. Two-phase token
// policy: validate, apply the idempotent effects, consume last. Concurrent
// activations may both pass validation, but the consume CAS admits one
// winner; the loser gets ErrAlreadyUsed and its duplicate effects were no-ops.
func (e *Engine) ApplyAction(ctx context.Context, value string, want token.Kind) (*ActionResult, error) {
	tok, err := e.tokens.Validate(ctx, value)
	if err != nil {
		e.metrics.ObserveAction(string(want), actionOutcome(err))
		return nil, err
	}
	if tok.Kind != want {
		e.metrics.ObserveAction(string(want), "wrong_kind")
		return nil, token.ErrWrongKind
	}

	now := time.Now().UTC()

	rec, err := e.records.FindRespondable(ctx, tok.AppointmentID, TypesForKind(tok.Kind))
	if err != nil {
		if errors.Is(err, ErrRecordNotFound) {
			// A live token with no sent workflow accepting its kind: the
			// record was cancelled or expired after the message went out.
			// Rejected without burning the token or touching the appointment.
			e.metrics.ObserveAction(string(want), "no_workflow")
			return nil, token.ErrWrongKind
		}
		return nil, err
	}

	if want == token.KindConfirm {
		if err := e.confirmer.ConfirmAppointment(ctx, tok.AppointmentID); err != nil {
			// Token left unused: the action stays replayable after a
			// transient failure of the primary effect.
			e.metrics.ObserveAction(string(want), "effect_error")
			return nil, fmt.Errorf("confirm appointment: %w", err)
		}
	}

	result := &ActionResult{AppointmentID: tok.AppointmentID, Kind: tok.Kind, WorkflowType: rec.Type}
	if err := e.records.MarkResponded(ctx, rec.ID, responseFor(want), now); err != nil && !errors.Is(err, ErrStaleRecord) {
		// Secondary record; reconciliation is eventually consistent.
		e.logger.Error().Err(err).Stringer("record_id", rec.ID).Msg("mark responded")
	}

	if err := e.tokens.Consume(ctx, value); err != nil {
		e.metrics.ObserveAction(string(want), actionOutcome(err))
		return nil, err
	}

	e.metrics.ObserveAction(string(want), "ok")
	return result, nil
}

func (e *Engine) patientPhone(ctx context.Context, patientID uuid.UUID) (string, error) {
	p, err := e.patients.GetPatientByID(ctx, patientID)
	if err != nil {
		return "", fmt.Errorf("load patient contact: %w", err)
	}
	return p.Phone, nil
}

// scheduleUnique enforces the one-active-record-per-(appointment, type)
// invariant: any live record of the type is cancelled before the new one is
// created, inside the caller's transaction.
func (e *Engine) scheduleUnique(ctx context.Context, q db.Querier, appt booking.Appointment, phone string, t Type, at time.Time) error {
	if _, err := e.records.CancelActive(ctx, q, appt.ID, []Type{t}); err != nil {
		return err
	}
	return e.create(ctx, q, appt, phone, t, at)
}

func (e *Engine) create(ctx context.Context, q db.Querier, appt booking.Appointment, phone string, t Type, at time.Time) error {
	rec := &Record{
		AppointmentID: appt.ID,
		PatientID:     appt.PatientID,
		Phone:         phone,
		Type:          t,
		ScheduledAt:   at,
	}
	if err := e.records.Create(ctx, q, rec); err != nil {
		return err
	}
	e.logger.Info().
		Stringer("appointment_id", appt.ID).
		Str("type", string(t)).
		Time("scheduled_at", at).
		Msg("workflow scheduled")
	return nil
}

func responseFor(k token.Kind) string {
	switch k {
	case token.KindConfirm:
		return "confirmed via link"
	case token.KindReschedule:
		return "reschedule requested"
	case token.KindReview:
		return "review link opened"
	default:
		return "responded"
	}
}

func actionOutcome(err error) string {
	switch {
	case errors.Is(err, token.ErrNotFound):
		return "not_found"
	case errors.Is(err, token.ErrExpired):
		return "expired"
	case errors.Is(err, token.ErrAlreadyUsed):
		return "already_used"
	default:
		return "error"
	}
}
