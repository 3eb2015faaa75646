package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/clinichq/scheduling/internal/booking"
	redisclient "github.com/clinichq/scheduling/internal/redis"
	"github.com/clinichq/scheduling/internal/schedule"
	"github.com/clinichq/scheduling/internal/waitlist"
)

func createWaitlistHandler(svc *waitlist.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CreateWaitlistRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		patientID, ok := parseOptionalUUID(w, &req.PatientID, "patient_id")
		if !ok {
			return
		}
		if patientID == nil {
			writeError(w, http.StatusBadRequest, "invalid_patient_id", "patient_id is required")
			return
		}
		professionalID, ok := parseOptionalUUID(w, req.ProfessionalID, "professional_id")
		if !ok {
			return
		}
		pref, ok := parseTimePref(w, req.TimePref)
		if !ok {
			return
		}
		priority, ok := parsePriority(w, req.Priority)
		if !ok {
			return
		}

		entry, err := svc.Create(r.Context(), waitlist.CreateEntryInput{
			PatientID:      *patientID,
			ProfessionalID: professionalID,
			Specialty:      req.Specialty,
			TimePref:       pref,
			Priority:       priority,
			Rank:           req.Rank,
		})
		if err != nil {
			handleWaitlistError(w, err)
			return
		}

		writeJSON(w, http.StatusCreated, toWaitlistEntryResponse(entry))
	}
}

func listWaitlistHandler(svc *waitlist.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		entries, err := svc.List(r.Context())
		if err != nil {
			handleWaitlistError(w, err)
			return
		}

		out := make([]WaitlistEntryResponse, 0, len(entries))
		for i := range entries {
			out = append(out, toWaitlistEntryResponse(&entries[i]))
		}
		writeJSON(w, http.StatusOK, out)
	}
}

func removeWaitlistHandler(svc *waitlist.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseIDParam(w, r)
		if !ok {
			return
		}

		if err := svc.Remove(r.Context(), id); err != nil {
			handleWaitlistError(w, err)
			return
		}

		w.WriteHeader(http.StatusNoContent)
	}
}

func matchWaitlistHandler(svc *waitlist.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseIDParam(w, r)
		if !ok {
			return
		}

		cands, err := svc.Matches(r.Context(), id)
		if err != nil {
			handleWaitlistError(w, err)
			return
		}

		out := make([]CandidateResponse, 0, len(cands))
		for _, c := range cands {
			out = append(out, CandidateResponse{
				Date:           c.Date.Format(time.DateOnly),
				Time:           schedule.Clock(c.StartMin),
				ProfessionalID: c.ProfessionalID,
			})
		}
		writeJSON(w, http.StatusOK, out)
	}
}

func acceptWaitlistHandler(svc *waitlist.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseIDParam(w, r)
		if !ok {
			return
		}

		var req AcceptWaitlistRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		professionalID, ok := parseOptionalUUID(w, &req.ProfessionalID, "professional_id")
		if !ok {
			return
		}
		if professionalID == nil {
			writeError(w, http.StatusBadRequest, "invalid_professional_id", "professional_id is required")
			return
		}
		date, startMin, ok := parseSlot(w, req.Date, req.Time)
		if !ok {
			return
		}

		appt, err := svc.Accept(r.Context(), id, waitlist.Candidate{
			Date:           date,
			StartMin:       startMin,
			ProfessionalID: *professionalID,
		})
		if err != nil {
			handleWaitlistError(w, err)
			return
		}

		writeJSON(w, http.StatusCreated, toAppointmentResponse(appt))
	}
}

func handleWaitlistError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, waitlist.ErrEntryNotFound):
		writeError(w, http.StatusNotFound, "not-found", err.Error())
	case errors.Is(err, booking.ErrOverlap):
		writeError(w, http.StatusConflict, "overlap", "the suggested slot has been taken")
	case errors.Is(err, booking.ErrTooSoon):
		writeError(w, http.StatusConflict, "too-soon", err.Error())
	case errors.Is(err, booking.ErrPatientNotFound), errors.Is(err, booking.ErrProfessionalNotFound):
		writeError(w, http.StatusNotFound, "not-found", err.Error())
	case errors.Is(err, booking.ErrAgendaBusy), errors.Is(err, redisclient.ErrLockNotAcquired):
		writeError(w, http.StatusConflict, "agenda_busy", "agenda is being modified, please retry shortly")
	default:
		writeError(w, http.StatusInternalServerError, "internal-error", err.Error())
	}
}

func parseTimePref(w http.ResponseWriter, raw string) (waitlist.TimePreference, bool) {
	switch raw {
	case "":
		return waitlist.PrefAny, true
	case string(waitlist.PrefMorning), string(waitlist.PrefAfternoon), string(waitlist.PrefAny):
		return waitlist.TimePreference(raw), true
	default:
		writeError(w, http.StatusBadRequest, "invalid_time_pref", "time_pref must be morning, afternoon or any")
		return "", false
	}
}

func parsePriority(w http.ResponseWriter, raw string) (waitlist.Priority, bool) {
	switch raw {
	case "":
		return waitlist.PriorityMedium, true
	case string(waitlist.PriorityLow), string(waitlist.PriorityMedium), string(waitlist.PriorityHigh):
		return waitlist.Priority(raw), true
	default:
		writeError(w, http.StatusBadRequest, "invalid_priority", "priority must be low, medium or high")
		return "", false
	}
}
