package api

import (
	"errors"
	"net/http"

	"github.com/clinichq/scheduling/internal/token"
	"github.com/clinichq/scheduling/internal/workflow"
)

// actionHandler serves the public links embedded in patient messages. The
// token in the query string is the only credential; failures are reported
// with stable reason codes so the messaging layer can render them, and token
// problems are never surfaced as server errors.
func actionHandler(engine *workflow.Engine, kind token.Kind, message string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		value := r.URL.Query().Get("token")
		if value == "" {
			writeError(w, http.StatusBadRequest, "missing-token", "token query parameter is required")
			return
		}

		result, err := engine.ApplyAction(r.Context(), value, kind)
		if err != nil {
			handleActionError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, ActionResponse{
			Status:        "ok",
			Action:        string(result.Kind),
			AppointmentID: result.AppointmentID,
			Message:       message,
		})
	}
}

func confirmActionHandler(engine *workflow.Engine) http.HandlerFunc {
	return actionHandler(engine, token.KindConfirm, "appointment confirmed")
}

func rescheduleActionHandler(engine *workflow.Engine) http.HandlerFunc {
	return actionHandler(engine, token.KindReschedule, "a staff member will contact you to reschedule")
}

func reviewActionHandler(engine *workflow.Engine) http.HandlerFunc {
	return actionHandler(engine, token.KindReview, "thank you for your feedback")
}

func handleActionError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, token.ErrNotFound),
		errors.Is(err, token.ErrExpired),
		errors.Is(err, token.ErrAlreadyUsed):
		writeError(w, http.StatusGone, "invalid-or-expired", "this link is no longer valid")
	case errors.Is(err, token.ErrWrongKind):
		writeError(w, http.StatusBadRequest, "wrong-action-type", "this link does not match the requested action")
	default:
		writeError(w, http.StatusInternalServerError, "internal-error", err.Error())
	}
}
