package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/clinichq/scheduling/internal/booking"
	redisclient "github.com/clinichq/scheduling/internal/redis"
	"github.com/clinichq/scheduling/internal/schedule"
	"github.com/clinichq/scheduling/internal/workflow"
)

func createAppointmentHandler(svc *booking.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CreateAppointmentRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		patientID, err := uuid.Parse(req.PatientID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_patient_id", "patient_id must be a valid UUID")
			return
		}
		professionalID, err := uuid.Parse(req.ProfessionalID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_professional_id", "professional_id must be a valid UUID")
			return
		}
		roomID, ok := parseOptionalUUID(w, req.RoomID, "room_id")
		if !ok {
			return
		}
		consultationTypeID, ok := parseOptionalUUID(w, req.ConsultationTypeID, "consultation_type_id")
		if !ok {
			return
		}
		date, startMin, ok := parseSlot(w, req.Date, req.Time)
		if !ok {
			return
		}

		appt, err := svc.Create(r.Context(), booking.CreateInput{
			PatientID:          patientID,
			ProfessionalID:     professionalID,
			RoomID:             roomID,
			ConsultationTypeID: consultationTypeID,
			Date:               date,
			StartMin:           startMin,
			DurationMin:        req.DurationMin,
			Notes:              req.Notes,
		})
		if err != nil {
			handleBookingError(w, err)
			return
		}

		writeJSON(w, http.StatusCreated, toAppointmentResponse(appt))
	}
}

func rescheduleAppointmentHandler(svc *booking.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseIDParam(w, r)
		if !ok {
			return
		}

		var req RescheduleAppointmentRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		var professionalID *uuid.UUID
		professionalID, ok = parseOptionalUUID(w, req.ProfessionalID, "professional_id")
		if !ok {
			return
		}
		roomID, ok := parseOptionalUUID(w, req.RoomID, "room_id")
		if !ok {
			return
		}
		date, startMin, ok := parseSlot(w, req.Date, req.Time)
		if !ok {
			return
		}

		appt, err := svc.Reschedule(r.Context(), id, booking.RescheduleInput{
			ProfessionalID: professionalID,
			RoomID:         roomID,
			Date:           date,
			StartMin:       startMin,
			DurationMin:    req.DurationMin,
		})
		if err != nil {
			handleBookingError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
	}
}

func cancelAppointmentHandler(svc *booking.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseIDParam(w, r)
		if !ok {
			return
		}

		appt, err := svc.Cancel(r.Context(), id)
		if err != nil {
			handleBookingError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
	}
}

func noShowAppointmentHandler(svc *booking.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseIDParam(w, r)
		if !ok {
			return
		}

		appt, err := svc.MarkNoShow(r.Context(), id)
		if err != nil {
			handleBookingError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
	}
}

func completeAppointmentHandler(svc *booking.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseIDParam(w, r)
		if !ok {
			return
		}

		var req CompleteAppointmentRequest
		if r.Body != nil {
			_ = json.NewDecoder(r.Body).Decode(&req)
		}

		appt, err := svc.Complete(r.Context(), id, req.ReviewOptOut)
		if err != nil {
			handleBookingError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
	}
}

func getAppointmentHandler(svc *booking.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseIDParam(w, r)
		if !ok {
			return
		}

		appt, err := svc.Get(r.Context(), id)
		if err != nil {
			handleBookingError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
	}
}

func listAppointmentsHandler(svc *booking.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		professionalID, err := uuid.Parse(r.URL.Query().Get("professional_id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_professional_id", "professional_id must be a valid UUID")
			return
		}
		date, err := time.Parse(time.DateOnly, r.URL.Query().Get("date"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_date", "date must be YYYY-MM-DD")
			return
		}

		appts, err := svc.ListDay(r.Context(), professionalID, date)
		if err != nil {
			handleBookingError(w, err)
			return
		}

		out := make([]AppointmentResponse, 0, len(appts))
		for i := range appts {
			out = append(out, toAppointmentResponse(&appts[i]))
		}
		writeJSON(w, http.StatusOK, out)
	}
}

func availabilityHandler(svc *booking.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		professionalID, err := uuid.Parse(r.URL.Query().Get("professional_id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_professional_id", "professional_id must be a valid UUID")
			return
		}
		var roomID *uuid.UUID
		if raw := r.URL.Query().Get("room_id"); raw != "" {
			id, err := uuid.Parse(raw)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_room_id", "room_id must be a valid UUID")
				return
			}
			roomID = &id
		}
		date, err := time.Parse(time.DateOnly, r.URL.Query().Get("date"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_date", "date must be YYYY-MM-DD")
			return
		}
		durationMin := 0
		if raw := r.URL.Query().Get("duration_min"); raw != "" {
			durationMin, err = strconv.Atoi(raw)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_duration", "duration_min must be an integer")
				return
			}
		}

		day, err := svc.Availability(r.Context(), professionalID, roomID, date, durationMin)
		if err != nil {
			handleBookingError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, AvailabilityResponse{
			Date:     date.Format(time.DateOnly),
			Free:     toSlotResponses(day.Free),
			Occupied: toSlotResponses(day.Occupied),
		})
	}
}

func listWorkflowsHandler(store *workflow.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseIDParam(w, r)
		if !ok {
			return
		}

		records, err := store.ListByAppointment(r.Context(), id)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
			return
		}

		out := make([]WorkflowRecordResponse, 0, len(records))
		for _, rec := range records {
			out = append(out, toWorkflowRecordResponse(rec))
		}
		writeJSON(w, http.StatusOK, out)
	}
}

// handleBookingError maps guard rejections and lookup failures onto the
// machine-readable reason codes of the booking API.
func handleBookingError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, booking.ErrPatientNotFound),
		errors.Is(err, booking.ErrProfessionalNotFound),
		errors.Is(err, booking.ErrRoomNotFound),
		errors.Is(err, booking.ErrAppointmentNotFound):
		writeError(w, http.StatusNotFound, "not-found", err.Error())
	case errors.Is(err, booking.ErrOverlap):
		writeError(w, http.StatusConflict, "overlap", err.Error())
	case errors.Is(err, booking.ErrTooSoon):
		writeError(w, http.StatusConflict, "too-soon", err.Error())
	case errors.Is(err, booking.ErrInvalidDuration):
		writeError(w, http.StatusBadRequest, "invalid-duration", err.Error())
	case errors.Is(err, booking.ErrInvalidStatusTransition):
		writeError(w, http.StatusConflict, "invalid_status_transition", err.Error())
	case errors.Is(err, booking.ErrAgendaBusy), errors.Is(err, redisclient.ErrLockNotAcquired):
		writeError(w, http.StatusConflict, "agenda_busy", "agenda is being modified, please retry shortly")
	default:
		writeError(w, http.StatusInternalServerError, "internal-error", err.Error())
	}
}

// Parse helpers

func parseIDParam(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_id", "id must be a valid UUID")
		return uuid.Nil, false
	}
	return id, true
}

func parseOptionalUUID(w http.ResponseWriter, raw *string, field string) (*uuid.UUID, bool) {
	if raw == nil || *raw == "" {
		return nil, true
	}
	id, err := uuid.Parse(*raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_"+field, field+" must be a valid UUID")
		return nil, false
	}
	return &id, true
}

func parseSlot(w http.ResponseWriter, dateRaw, timeRaw string) (time.Time, int, bool) {
	date, err := time.Parse(time.DateOnly, dateRaw)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_date", "date must be YYYY-MM-DD")
		return time.Time{}, 0, false
	}
	startMin, err := schedule.ParseClock(timeRaw)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_time", "time must be HH:MM")
		return time.Time{}, 0, false
	}
	return date, startMin, true
}
