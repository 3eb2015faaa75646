package waitlist

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/clinichq/scheduling/internal/booking"
	"github.com/clinichq/scheduling/internal/config"
	"github.com/clinichq/scheduling/internal/db"
	"github.com/clinichq/scheduling/internal/schedule"
)

// Directory is the read surface the matcher needs; *booking.PgRepository
// satisfies it. ListProfessionals must return a stable order; it is part of
// the matcher's deterministic candidate ordering.
type Directory interface {
	ListProfessionals(ctx context.Context) ([]booking.Professional, error)
	ListDayAppointments(ctx context.Context, q db.Querier, professionalID uuid.UUID, roomID *uuid.UUID, date time.Time) ([]booking.Appointment, error)
}

// Matcher produces ranked candidate slots for a waitlist entry. Candidates
// are generated day-by-day, professional-by-professional, time-by-time, in
// that nested order, stopping at the cap, so two runs over the same
// appointment snapshot yield the same list.
type Matcher struct {
	dir      Directory
	settings config.Settings
}

func NewMatcher(dir Directory, settings config.Settings) *Matcher {
	return &Matcher{dir: dir, settings: settings}
}

// Match scans the configured horizon starting the day after now. Sundays are
// excluded, Saturdays are limited to the morning block, and the entry's
// time-of-day preference maps to fixed canonical start times.
func (m *Matcher) Match(ctx context.Context, e Entry, now time.Time) ([]Candidate, error) {
	pros, err := m.dir.ListProfessionals(ctx)
	if err != nil {
		return nil, fmt.Errorf("waitlist: list professionals: %w", err)
	}
	pros = filterProfessionals(pros, e)
	if len(pros) == 0 {
		return nil, nil
	}

	maxCandidates := m.settings.WaitlistMaxCandidates
	var out []Candidate

	day := now.UTC().Truncate(24 * time.Hour)
	for d := 1; d <= m.settings.WaitlistHorizonDays; d++ {
		date := day.AddDate(0, 0, d)
		weekday := date.Weekday()
		if weekday == time.Sunday {
			continue
		}
		window := m.settings.WorkingHours[weekday]
		if !window.Enabled {
			continue
		}

		times := canonicalTimes(e.TimePref)
		if weekday == time.Saturday {
			times = morningOnly(times)
		}
		if len(times) == 0 {
			continue
		}

		for _, pro := range pros {
			appts, err := m.dir.ListDayAppointments(ctx, nil, pro.ID, nil, date)
			if err != nil {
				return nil, fmt.Errorf("waitlist: list day appointments: %w", err)
			}
			booked := make([]schedule.Booking, 0, len(appts))
			for _, a := range appts {
				booked = append(booked, schedule.Booking{StartMin: a.StartMin, DurationMin: a.DurationMin})
			}
			q := schedule.Query{
				Window:         window,
				GranularityMin: m.settings.GranularityMin,
				BufferMin:      m.settings.BufferMin,
				DurationMin:    m.settings.DefaultDurationMin,
				Booked:         booked,
			}

			for _, t := range times {
				if !schedule.IsFree(q, t) {
					continue
				}
				out = append(out, Candidate{Date: date, StartMin: t, ProfessionalID: pro.ID})
				if len(out) >= maxCandidates {
					return out, nil
				}
			}
		}
	}

	return out, nil
}

// Prefers returns whether the entry's time-of-day preference covers a start
// minute; used when offering a freed slot.
func (e Entry) Prefers(startMin int) bool {
	switch e.TimePref {
	case PrefMorning:
		return startMin < 12*60
	case PrefAfternoon:
		return startMin >= 12*60
	default:
		return true
	}
}

func filterProfessionals(pros []booking.Professional, e Entry) []booking.Professional {
	out := pros[:0]
	for _, p := range pros {
		if e.ProfessionalID != nil && p.ID != *e.ProfessionalID {
			continue
		}
		if e.Specialty != nil && (p.Specialty == nil || *p.Specialty != *e.Specialty) {
			continue
		}
		out = append(out, p)
	}
	return out
}

// canonicalTimes maps a preference to its fixed set of start times:
// morning 09:00–11:30, afternoon 14:00–17:30, on 30-minute marks.
func canonicalTimes(pref TimePreference) []int {
	switch pref {
	case PrefMorning:
		return timesBetween(9*60, 11*60+30)
	case PrefAfternoon:
		return timesBetween(14*60, 17*60+30)
	default:
		return append(timesBetween(9*60, 11*60+30), timesBetween(14*60, 17*60+30)...)
	}
}

func timesBetween(first, last int) []int {
	var out []int
	for t := first; t <= last; t += 30 {
		out = append(out, t)
	}
	return out
}

func morningOnly(times []int) []int {
	out := times[:0]
	for _, t := range times {
		if t < 12*60 {
			out = append(out, t)
		}
	}
	return out
}
