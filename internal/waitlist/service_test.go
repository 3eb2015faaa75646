package waitlist

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clinichq/scheduling/internal/booking"
	"github.com/clinichq/scheduling/internal/config"
)

type memEntries struct {
	entries map[uuid.UUID]*Entry
}

func newMemEntries() *memEntries {
	return &memEntries{entries: make(map[uuid.UUID]*Entry)}
}

func (m *memEntries) Create(_ context.Context, e *Entry) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	if e.TimePref == "" {
		e.TimePref = PrefAny
	}
	if e.Priority == "" {
		e.Priority = PriorityMedium
	}
	e.CreatedAt = time.Now().UTC()
	cp := *e
	m.entries[e.ID] = &cp
	return nil
}

func (m *memEntries) GetByID(_ context.Context, id uuid.UUID) (*Entry, error) {
	e, ok := m.entries[id]
	if !ok {
		return nil, ErrEntryNotFound
	}
	cp := *e
	return &cp, nil
}

func (m *memEntries) ListActive(_ context.Context) ([]Entry, error) {
	var out []Entry
	for _, e := range m.entries {
		if e.Active() {
			out = append(out, *e)
		}
	}
	return out, nil
}

func (m *memEntries) MarkFulfilled(_ context.Context, id uuid.UUID) error {
	e, ok := m.entries[id]
	if !ok || !e.Active() {
		return ErrEntryNotFound
	}
	now := time.Now().UTC()
	e.FulfilledAt = &now
	return nil
}

func (m *memEntries) Delete(_ context.Context, id uuid.UUID) error {
	if _, ok := m.entries[id]; !ok {
		return ErrEntryNotFound
	}
	delete(m.entries, id)
	return nil
}

type recordBooker struct {
	inputs []booking.CreateInput
	err    error
}

func (b *recordBooker) Create(_ context.Context, in booking.CreateInput) (*booking.Appointment, error) {
	if b.err != nil {
		return nil, b.err
	}
	b.inputs = append(b.inputs, in)
	return &booking.Appointment{
		ID:             uuid.New(),
		PatientID:      in.PatientID,
		ProfessionalID: in.ProfessionalID,
		Date:           in.Date,
		StartMin:       in.StartMin,
		DurationMin:    30,
		Status:         booking.StatusScheduled,
	}, nil
}

type recordSuggestions struct {
	patientIDs []uuid.UUID
	phones     []string
}

func (r *recordSuggestions) ScheduleAvailabilitySuggestion(_ context.Context, _ uuid.UUID, patientID uuid.UUID, phone string) error {
	r.patientIDs = append(r.patientIDs, patientID)
	r.phones = append(r.phones, phone)
	return nil
}

type stubPatients struct{}

func (stubPatients) GetPatientByID(_ context.Context, id uuid.UUID) (*booking.Patient, error) {
	return &booking.Patient{ID: id, Name: "Pat", Phone: "+15550009999"}, nil
}

func newWaitlistFixture(dir Directory) (*Service, *memEntries, *recordBooker, *recordSuggestions) {
	entries := newMemEntries()
	booker := &recordBooker{}
	suggestions := &recordSuggestions{}
	matcher := NewMatcher(dir, config.DefaultSettings())
	svc := NewService(entries, matcher, booker, suggestions, stubPatients{}, zerolog.Nop())
	return svc, entries, booker, suggestions
}

func TestAcceptBooksAndFulfills(t *testing.T) {
	dir := newFakeDirectory()
	proID := dir.addProfessional("Dr. Adams", "")
	svc, entries, booker, _ := newWaitlistFixture(dir)

	entry, err := svc.Create(context.Background(), CreateEntryInput{PatientID: uuid.New()})
	require.NoError(t, err)

	cand := Candidate{
		Date:           time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC),
		StartMin:       9 * 60,
		ProfessionalID: proID,
	}

	appt, err := svc.Accept(context.Background(), entry.ID, cand)
	require.NoError(t, err)
	assert.Equal(t, entry.PatientID, appt.PatientID)
	assert.Equal(t, proID, appt.ProfessionalID)
	require.Len(t, booker.inputs, 1)

	stored, err := entries.GetByID(context.Background(), entry.ID)
	require.NoError(t, err)
	assert.False(t, stored.Active())

	// A consumed entry cannot be accepted again.
	_, err = svc.Accept(context.Background(), entry.ID, cand)
	assert.ErrorIs(t, err, ErrEntryNotFound)
}

func TestAcceptStaleCandidateSurfacesGuardError(t *testing.T) {
	dir := newFakeDirectory()
	proID := dir.addProfessional("Dr. Adams", "")
	svc, entries, booker, _ := newWaitlistFixture(dir)
	booker.err = booking.ErrOverlap

	entry, err := svc.Create(context.Background(), CreateEntryInput{PatientID: uuid.New()})
	require.NoError(t, err)

	_, err = svc.Accept(context.Background(), entry.ID, Candidate{
		Date: time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC), StartMin: 9 * 60, ProfessionalID: proID,
	})
	assert.ErrorIs(t, err, booking.ErrOverlap)

	// The entry survives a failed acceptance.
	stored, err := entries.GetByID(context.Background(), entry.ID)
	require.NoError(t, err)
	assert.True(t, stored.Active())
}

func TestSlotFreedOffersToMatchingEntry(t *testing.T) {
	dir := newFakeDirectory()
	proID := dir.addProfessional("Dr. Adams", "Dermatology")
	svc, _, _, suggestions := newWaitlistFixture(dir)

	morningPatient := uuid.New()
	_, err := svc.Create(context.Background(), CreateEntryInput{PatientID: morningPatient, TimePref: PrefMorning})
	require.NoError(t, err)

	freed := booking.Appointment{
		ID:             uuid.New(),
		PatientID:      uuid.New(),
		ProfessionalID: proID,
		Date:           time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC),
		StartMin:       9 * 60,
		DurationMin:    30,
		Status:         booking.StatusCancelled,
	}
	svc.SlotFreed(context.Background(), freed)

	require.Len(t, suggestions.patientIDs, 1)
	assert.Equal(t, morningPatient, suggestions.patientIDs[0])
	assert.Equal(t, "+15550009999", suggestions.phones[0])
}

func TestSlotFreedSkipsNonMatchingEntries(t *testing.T) {
	dir := newFakeDirectory()
	proID := dir.addProfessional("Dr. Adams", "Dermatology")
	otherPro := dir.addProfessional("Dr. Brown", "Cardiology")
	svc, _, _, suggestions := newWaitlistFixture(dir)

	// Afternoon preference does not cover a morning slot.
	_, err := svc.Create(context.Background(), CreateEntryInput{PatientID: uuid.New(), TimePref: PrefAfternoon})
	require.NoError(t, err)
	// Bound to a different professional.
	_, err = svc.Create(context.Background(), CreateEntryInput{PatientID: uuid.New(), ProfessionalID: &otherPro})
	require.NoError(t, err)
	// Wrong specialty.
	cardio := "Cardiology"
	_, err = svc.Create(context.Background(), CreateEntryInput{PatientID: uuid.New(), Specialty: &cardio})
	require.NoError(t, err)

	// The patient whose own appointment freed the slot is never offered it.
	cancelling := uuid.New()
	_, err = svc.Create(context.Background(), CreateEntryInput{PatientID: cancelling})
	require.NoError(t, err)

	freed := booking.Appointment{
		ID:             uuid.New(),
		PatientID:      cancelling,
		ProfessionalID: proID,
		Date:           time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC),
		StartMin:       9 * 60,
		DurationMin:    30,
	}
	svc.SlotFreed(context.Background(), freed)

	assert.Empty(t, suggestions.patientIDs)
}

func TestRemoveEntry(t *testing.T) {
	dir := newFakeDirectory()
	dir.addProfessional("Dr. Adams", "")
	svc, _, _, _ := newWaitlistFixture(dir)

	entry, err := svc.Create(context.Background(), CreateEntryInput{PatientID: uuid.New()})
	require.NoError(t, err)

	require.NoError(t, svc.Remove(context.Background(), entry.ID))
	assert.ErrorIs(t, svc.Remove(context.Background(), entry.ID), ErrEntryNotFound)
}
