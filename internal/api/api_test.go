package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clinichq/scheduling/internal/booking"
	redisclient "github.com/clinichq/scheduling/internal/redis"
	"github.com/clinichq/scheduling/internal/token"
)

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var body ErrorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	return body
}

func TestHandleBookingError(t *testing.T) {
	tests := []struct {
		err        error
		wantStatus int
		wantCode   string
	}{
		{booking.ErrPatientNotFound, http.StatusNotFound, "not-found"},
		{booking.ErrAppointmentNotFound, http.StatusNotFound, "not-found"},
		{fmt.Errorf("load professional: %w", booking.ErrProfessionalNotFound), http.StatusNotFound, "not-found"},
		{booking.ErrOverlap, http.StatusConflict, "overlap"},
		{booking.ErrTooSoon, http.StatusConflict, "too-soon"},
		{booking.ErrInvalidDuration, http.StatusBadRequest, "invalid-duration"},
		{booking.ErrInvalidStatusTransition, http.StatusConflict, "invalid_status_transition"},
		{booking.ErrAgendaBusy, http.StatusConflict, "agenda_busy"},
		{redisclient.ErrLockNotAcquired, http.StatusConflict, "agenda_busy"},
		{errors.New("boom"), http.StatusInternalServerError, "internal-error"},
	}

	for _, tt := range tests {
		t.Run(tt.wantCode+"/"+tt.err.Error(), func(t *testing.T) {
			rec := httptest.NewRecorder()
			handleBookingError(rec, tt.err)

			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, tt.wantCode, decodeError(t, rec).Error)
		})
	}
}

func TestHandleActionErrorNeverLeaksTokenProblemsAs5xx(t *testing.T) {
	tests := []struct {
		err        error
		wantStatus int
		wantCode   string
	}{
		{token.ErrNotFound, http.StatusGone, "invalid-or-expired"},
		{token.ErrExpired, http.StatusGone, "invalid-or-expired"},
		{token.ErrAlreadyUsed, http.StatusGone, "invalid-or-expired"},
		{token.ErrWrongKind, http.StatusBadRequest, "wrong-action-type"},
		{errors.New("db down"), http.StatusInternalServerError, "internal-error"},
	}

	for _, tt := range tests {
		t.Run(tt.wantCode, func(t *testing.T) {
			rec := httptest.NewRecorder()
			handleActionError(rec, tt.err)

			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, tt.wantCode, decodeError(t, rec).Error)
		})
	}
}

func TestParseSlot(t *testing.T) {
	rec := httptest.NewRecorder()
	date, startMin, ok := parseSlot(rec, "2026-03-02", "09:30")
	require.True(t, ok)
	assert.Equal(t, "2026-03-02", date.Format("2006-01-02"))
	assert.Equal(t, 570, startMin)

	rec = httptest.NewRecorder()
	_, _, ok = parseSlot(rec, "02/03/2026", "09:30")
	assert.False(t, ok)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_date", decodeError(t, rec).Error)

	rec = httptest.NewRecorder()
	_, _, ok = parseSlot(rec, "2026-03-02", "late morning")
	assert.False(t, ok)
	assert.Equal(t, "invalid_time", decodeError(t, rec).Error)
}

func TestParseOptionalUUID(t *testing.T) {
	rec := httptest.NewRecorder()
	id, ok := parseOptionalUUID(rec, nil, "room_id")
	assert.True(t, ok)
	assert.Nil(t, id)

	valid := "7b4a3cf1-2e4e-4b62-9c6a-1f26a8c0de11"
	rec = httptest.NewRecorder()
	id, ok = parseOptionalUUID(rec, &valid, "room_id")
	require.True(t, ok)
	require.NotNil(t, id)
	assert.Equal(t, valid, id.String())

	bogus := "not-a-uuid"
	rec = httptest.NewRecorder()
	_, ok = parseOptionalUUID(rec, &bogus, "room_id")
	assert.False(t, ok)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_room_id", decodeError(t, rec).Error)
}

func TestRequestIDMiddleware(t *testing.T) {
	handler := RequestIDMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NotEmpty(t, GetRequestID(r.Context()))
		w.WriteHeader(http.StatusNoContent)
	}))

	// Generated when absent.
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	// Propagated when supplied.
	rec = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-ID", "req-42")
	handler.ServeHTTP(rec, req)
	assert.Equal(t, "req-42", rec.Header().Get("X-Request-ID"))
}

func TestLoggingMiddlewareCapturesStatus(t *testing.T) {
	handler := LoggingMiddleware(zerolog.Nop())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusTeapot, rec.Code)
}
