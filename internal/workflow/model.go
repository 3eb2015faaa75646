package workflow

import (
	"time"

	"github.com/google/uuid"

	"github.com/clinichq/scheduling/internal/token"
)

// Type identifies one trigger condition. pre_confirmation and
// confirmation_24h are deliberately independent types: they cover different
// instants of the same appointment and are cancelled together on reschedule.
type Type string

const (
	TypeConfirmation24h         Type = "confirmation_24h"
	TypePreConfirmation         Type = "pre_confirmation"
	TypeRescheduleNoShow        Type = "reschedule_no_show"
	TypeReschedulePatientCancel Type = "reschedule_patient_cancel"
	TypeReviewReminder          Type = "review_reminder"
	TypeAvailabilitySuggestion  Type = "availability_suggestion"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusSent      Status = "sent"
	StatusResponded Status = "responded"
	StatusExpired   Status = "expired"
	StatusCancelled Status = "cancelled"
)

// Record is one scheduled notification bound to one appointment. Records are
// never deleted; terminal rows remain as the audit trail.
type Record struct {
	ID            uuid.UUID
	AppointmentID uuid.UUID
	PatientID     uuid.UUID
	Phone         string
	Type          Type
	Status        Status
	ScheduledAt   time.Time
	SentAt        *time.Time
	Response      *string
	RespondedAt   *time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// ActionFor is the closed compatibility table between workflow types and the
// action kind their link carries. A token of any other kind is rejected
// against the workflow, not string-compared ad hoc.
func ActionFor(t Type) token.Kind {
	switch t {
	case TypeConfirmation24h, TypePreConfirmation:
		return token.KindConfirm
	case TypeRescheduleNoShow, TypeReschedulePatientCancel, TypeAvailabilitySuggestion:
		return token.KindReschedule
	case TypeReviewReminder:
		return token.KindReview
	default:
		return ""
	}
}

// TypesForKind is the inverse of ActionFor.
func TypesForKind(k token.Kind) []Type {
	switch k {
	case token.KindConfirm:
		return []Type{TypeConfirmation24h, TypePreConfirmation}
	case token.KindReschedule:
		return []Type{TypeRescheduleNoShow, TypeReschedulePatientCancel, TypeAvailabilitySuggestion}
	case token.KindReview:
		return []Type{TypeReviewReminder}
	default:
		return nil
	}
}

// AllTypes lists every workflow type; used when a cancellation retires the
// whole notification pipeline of an appointment.
func AllTypes() []Type {
	return []Type{
		TypeConfirmation24h,
		TypePreConfirmation,
		TypeRescheduleNoShow,
		TypeReschedulePatientCancel,
		TypeReviewReminder,
		TypeAvailabilitySuggestion,
	}
}
