package waitlist

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clinichq/scheduling/internal/booking"
	"github.com/clinichq/scheduling/internal/config"
	"github.com/clinichq/scheduling/internal/db"
)

// fakeDirectory returns a fixed professional list and per-day bookings.
type fakeDirectory struct {
	pros  []booking.Professional
	appts map[string][]booking.Appointment // key: proID|date
}

func newFakeDirectory() *fakeDirectory {
	return &fakeDirectory{appts: make(map[string][]booking.Appointment)}
}

func (d *fakeDirectory) addProfessional(name string, specialty string) uuid.UUID {
	id := uuid.New()
	p := booking.Professional{ID: id, Name: name}
	if specialty != "" {
		p.Specialty = &specialty
	}
	d.pros = append(d.pros, p)
	return id
}

func (d *fakeDirectory) book(proID uuid.UUID, date time.Time, startMin, durationMin int) {
	key := proID.String() + "|" + date.Format(time.DateOnly)
	d.appts[key] = append(d.appts[key], booking.Appointment{
		ID: uuid.New(), ProfessionalID: proID, Date: date,
		StartMin: startMin, DurationMin: durationMin, Status: booking.StatusScheduled,
	})
}

func (d *fakeDirectory) ListProfessionals(context.Context) ([]booking.Professional, error) {
	return append([]booking.Professional(nil), d.pros...), nil
}

func (d *fakeDirectory) ListDayAppointments(_ context.Context, _ db.Querier, proID uuid.UUID, _ *uuid.UUID, date time.Time) ([]booking.Appointment, error) {
	return d.appts[proID.String()+"|"+date.Format(time.DateOnly)], nil
}

// Saturday 2026-02-28; the next day is a Sunday, then Monday 2026-03-02.
var testNow = time.Date(2026, 2, 28, 12, 0, 0, 0, time.UTC)

func TestMatchIsDeterministic(t *testing.T) {
	dir := newFakeDirectory()
	dir.addProfessional("Dr. Adams", "Dermatology")
	dir.addProfessional("Dr. Brown", "Dermatology")
	m := NewMatcher(dir, config.DefaultSettings())

	first, err := m.Match(context.Background(), Entry{TimePref: PrefAny}, testNow)
	require.NoError(t, err)
	second, err := m.Match(context.Background(), Entry{TimePref: PrefAny}, testNow)
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestMatchSkipsSundayAndCaps(t *testing.T) {
	dir := newFakeDirectory()
	proID := dir.addProfessional("Dr. Adams", "")
	m := NewMatcher(dir, config.DefaultSettings())

	cands, err := m.Match(context.Background(), Entry{TimePref: PrefAny}, testNow)
	require.NoError(t, err)

	// Capped at six; the Sunday after testNow contributes nothing, so every
	// candidate lands on Monday with the first professional.
	require.Len(t, cands, 6)
	monday := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	for _, c := range cands {
		assert.Equal(t, monday, c.Date)
		assert.Equal(t, proID, c.ProfessionalID)
		assert.NotEqual(t, time.Sunday, c.Date.Weekday())
	}
	// Canonical morning times come first, on 30-minute marks.
	assert.Equal(t, 9*60, cands[0].StartMin)
	assert.Equal(t, 9*60+30, cands[1].StartMin)
}

func TestMatchSaturdayMorningOnly(t *testing.T) {
	dir := newFakeDirectory()
	dir.addProfessional("Dr. Adams", "")
	settings := config.DefaultSettings()
	settings.WaitlistHorizonDays = 1 // only the Saturday after this Friday
	m := NewMatcher(dir, settings)

	friday := time.Date(2026, 3, 6, 12, 0, 0, 0, time.UTC)

	cands, err := m.Match(context.Background(), Entry{TimePref: PrefAny}, friday)
	require.NoError(t, err)
	require.NotEmpty(t, cands)
	for _, c := range cands {
		assert.Equal(t, time.Saturday, c.Date.Weekday())
		assert.Less(t, c.StartMin, 12*60)
	}

	// An afternoon-only entry gets nothing out of a Saturday.
	cands, err = m.Match(context.Background(), Entry{TimePref: PrefAfternoon}, friday)
	require.NoError(t, err)
	assert.Empty(t, cands)
}

func TestMatchHonorsTimePreference(t *testing.T) {
	dir := newFakeDirectory()
	dir.addProfessional("Dr. Adams", "")
	m := NewMatcher(dir, config.DefaultSettings())

	cands, err := m.Match(context.Background(), Entry{TimePref: PrefAfternoon}, testNow)
	require.NoError(t, err)
	require.NotEmpty(t, cands)
	for _, c := range cands {
		assert.GreaterOrEqual(t, c.StartMin, 14*60)
	}
}

func TestMatchSkipsBookedSlots(t *testing.T) {
	dir := newFakeDirectory()
	proID := dir.addProfessional("Dr. Adams", "")
	monday := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	// 09:00-09:30 booked; with the 10 minute buffer 09:30 is blocked too.
	dir.book(proID, monday, 9*60, 30)

	m := NewMatcher(dir, config.DefaultSettings())

	cands, err := m.Match(context.Background(), Entry{TimePref: PrefMorning}, testNow)
	require.NoError(t, err)
	require.NotEmpty(t, cands)
	assert.Equal(t, 10*60, cands[0].StartMin)
	for _, c := range cands {
		if c.Date.Equal(monday) {
			assert.NotEqual(t, 9*60, c.StartMin)
			assert.NotEqual(t, 9*60+30, c.StartMin)
		}
	}
}

func TestMatchFiltersProfessionalAndSpecialty(t *testing.T) {
	dir := newFakeDirectory()
	dermID := dir.addProfessional("Dr. Adams", "Dermatology")
	dir.addProfessional("Dr. Brown", "Cardiology")
	m := NewMatcher(dir, config.DefaultSettings())

	spec := "Dermatology"
	cands, err := m.Match(context.Background(), Entry{TimePref: PrefAny, Specialty: &spec}, testNow)
	require.NoError(t, err)
	require.NotEmpty(t, cands)
	for _, c := range cands {
		assert.Equal(t, dermID, c.ProfessionalID)
	}

	other := uuid.New()
	cands, err = m.Match(context.Background(), Entry{TimePref: PrefAny, ProfessionalID: &other}, testNow)
	require.NoError(t, err)
	assert.Empty(t, cands)
}

func TestEntryPrefers(t *testing.T) {
	assert.True(t, Entry{TimePref: PrefMorning}.Prefers(9*60))
	assert.False(t, Entry{TimePref: PrefMorning}.Prefers(14*60))
	assert.True(t, Entry{TimePref: PrefAfternoon}.Prefers(14*60))
	assert.False(t, Entry{TimePref: PrefAfternoon}.Prefers(9*60))
	assert.True(t, Entry{TimePref: PrefAny}.Prefers(9*60))
	assert.True(t, Entry{TimePref: PrefAny}.Prefers(14*60))
}
