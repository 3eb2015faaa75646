package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/clinichq/scheduling/internal/booking"
	"github.com/clinichq/scheduling/internal/schedule"
	"github.com/clinichq/scheduling/internal/waitlist"
	"github.com/clinichq/scheduling/internal/workflow"
)

type CreateAppointmentRequest struct {
	PatientID          string  `json:"patient_id"`
	ProfessionalID     string  `json:"professional_id"`
	RoomID             *string `json:"room_id,omitempty"`
	ConsultationTypeID *string `json:"consultation_type_id,omitempty"`
	Date               string  `json:"date"` // YYYY-MM-DD
	Time               string  `json:"time"` // HH:MM
	DurationMin        int     `json:"duration_min,omitempty"`
	Notes              string  `json:"notes,omitempty"`
}

type RescheduleAppointmentRequest struct {
	ProfessionalID *string `json:"professional_id,omitempty"`
	RoomID         *string `json:"room_id,omitempty"`
	Date           string  `json:"date"`
	Time           string  `json:"time"`
	DurationMin    int     `json:"duration_min,omitempty"`
}

type CompleteAppointmentRequest struct {
	ReviewOptOut bool `json:"review_opt_out,omitempty"`
}

type AppointmentResponse struct {
	ID             uuid.UUID  `json:"id"`
	PatientID      uuid.UUID  `json:"patient_id"`
	ProfessionalID uuid.UUID  `json:"professional_id"`
	RoomID         *uuid.UUID `json:"room_id,omitempty"`
	Date           string     `json:"date"`
	Time           string     `json:"time"`
	DurationMin    int        `json:"duration_min"`
	Status         string     `json:"status"`
	Notes          string     `json:"notes,omitempty"`
}

func toAppointmentResponse(a *booking.Appointment) AppointmentResponse {
	return AppointmentResponse{
		ID:             a.ID,
		PatientID:      a.PatientID,
		ProfessionalID: a.ProfessionalID,
		RoomID:         a.RoomID,
		Date:           a.Date.Format(time.DateOnly),
		Time:           schedule.Clock(a.StartMin),
		DurationMin:    a.DurationMin,
		Status:         string(a.Status),
		Notes:          a.Notes,
	}
}

type SlotResponse struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

type AvailabilityResponse struct {
	Date     string         `json:"date"`
	Free     []SlotResponse `json:"free"`
	Occupied []SlotResponse `json:"occupied"`
}

func toSlotResponses(in []schedule.Interval) []SlotResponse {
	out := make([]SlotResponse, 0, len(in))
	for _, iv := range in {
		out = append(out, SlotResponse{Start: schedule.Clock(iv.StartMin), End: schedule.Clock(iv.EndMin)})
	}
	return out
}

type CreateWaitlistRequest struct {
	PatientID      string  `json:"patient_id"`
	ProfessionalID *string `json:"professional_id,omitempty"`
	Specialty      *string `json:"specialty,omitempty"`
	TimePref       string  `json:"time_pref,omitempty"` // morning, afternoon, any
	Priority       string  `json:"priority,omitempty"`  // low, medium, high
	Rank           int     `json:"rank,omitempty"`
}

type WaitlistEntryResponse struct {
	ID             uuid.UUID  `json:"id"`
	PatientID      uuid.UUID  `json:"patient_id"`
	ProfessionalID *uuid.UUID `json:"professional_id,omitempty"`
	Specialty      *string    `json:"specialty,omitempty"`
	TimePref       string     `json:"time_pref"`
	Priority       string     `json:"priority"`
	Rank           int        `json:"rank"`
	CreatedAt      time.Time  `json:"created_at"`
}

func toWaitlistEntryResponse(e *waitlist.Entry) WaitlistEntryResponse {
	return WaitlistEntryResponse{
		ID:             e.ID,
		PatientID:      e.PatientID,
		ProfessionalID: e.ProfessionalID,
		Specialty:      e.Specialty,
		TimePref:       string(e.TimePref),
		Priority:       string(e.Priority),
		Rank:           e.Rank,
		CreatedAt:      e.CreatedAt,
	}
}

type CandidateResponse struct {
	Date           string    `json:"date"`
	Time           string    `json:"time"`
	ProfessionalID uuid.UUID `json:"professional_id"`
}

type AcceptWaitlistRequest struct {
	Date           string `json:"date"`
	Time           string `json:"time"`
	ProfessionalID string `json:"professional_id"`
}

type ActionResponse struct {
	Status        string    `json:"status"`
	Action        string    `json:"action"`
	AppointmentID uuid.UUID `json:"appointment_id"`
	Message       string    `json:"message"`
}

type WorkflowRecordResponse struct {
	ID          uuid.UUID  `json:"id"`
	Type        string     `json:"type"`
	Status      string     `json:"status"`
	ScheduledAt time.Time  `json:"scheduled_at"`
	SentAt      *time.Time `json:"sent_at,omitempty"`
	Response    *string    `json:"response,omitempty"`
	RespondedAt *time.Time `json:"responded_at,omitempty"`
}

func toWorkflowRecordResponse(r workflow.Record) WorkflowRecordResponse {
	return WorkflowRecordResponse{
		ID:          r.ID,
		Type:        string(r.Type),
		Status:      string(r.Status),
		ScheduledAt: r.ScheduledAt,
		SentAt:      r.SentAt,
		Response:    r.Response,
		RespondedAt: r.RespondedAt,
	}
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}
