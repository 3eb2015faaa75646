package schedule

import (
	"fmt"
	"sort"

	"github.com/clinichq/scheduling/internal/config"
)

// Interval is a half-open [StartMin, EndMin) range of minutes since midnight.
type Interval struct {
	StartMin int
	EndMin   int
}

// Booking is an existing non-cancelled appointment on the day under query.
type Booking struct {
	StartMin    int
	DurationMin int
}

// Query carries everything the calendar needs. Settings arrive as explicit
// inputs so the computation is deterministic and safe to call concurrently.
type Query struct {
	Window         config.DayWindow
	GranularityMin int
	BufferMin      int
	DurationMin    int // duration of the slot being looked for
	Booked         []Booking
}

// Day is the computed availability for one professional/room/day.
type Day struct {
	Free     []Interval
	Occupied []Interval
}

// Compute walks the working-hours window and returns the ordered free slots
// and the ordered occupied intervals. Each booking blocks [start, end+buffer);
// when the cursor lands inside a block it jumps to the block's end, so the
// first instant after a busy stretch is offered even off the granularity grid.
// A slot that would extend past the window end is never offered.
func Compute(q Query) Day {
	var day Day

	if !q.Window.Enabled || q.GranularityMin <= 0 || q.DurationMin <= 0 {
		return day
	}

	blocks := buildBlocks(q.Booked, q.BufferMin)
	for _, b := range q.Booked {
		if b.DurationMin > 0 {
			day.Occupied = append(day.Occupied, Interval{StartMin: b.StartMin, EndMin: b.StartMin + b.DurationMin})
		}
	}
	sort.Slice(day.Occupied, func(i, j int) bool { return day.Occupied[i].StartMin < day.Occupied[j].StartMin })

	cursor := q.Window.StartMin
	for cursor+q.DurationMin <= q.Window.EndMin {
		if end, blocked := blockedUntil(blocks, cursor, cursor+q.DurationMin); blocked {
			if end <= cursor {
				end = cursor + q.GranularityMin
			}
			cursor = end
			continue
		}
		day.Free = append(day.Free, Interval{StartMin: cursor, EndMin: cursor + q.DurationMin})
		cursor += q.GranularityMin
	}

	return day
}

// IsFree reports whether a slot starting at startMin fits inside the window
// without touching any blocked interval.
func IsFree(q Query, startMin int) bool {
	if !q.Window.Enabled || q.DurationMin <= 0 {
		return false
	}
	if startMin < q.Window.StartMin || startMin+q.DurationMin > q.Window.EndMin {
		return false
	}
	_, blocked := blockedUntil(buildBlocks(q.Booked, q.BufferMin), startMin, startMin+q.DurationMin)
	return !blocked
}

func buildBlocks(booked []Booking, bufferMin int) []Interval {
	blocks := make([]Interval, 0, len(booked))
	for _, b := range booked {
		if b.DurationMin <= 0 {
			continue
		}
		blocks = append(blocks, Interval{StartMin: b.StartMin, EndMin: b.StartMin + b.DurationMin + bufferMin})
	}
	sort.Slice(blocks, func(i, j int) bool { return blocks[i].StartMin < blocks[j].StartMin })
	return blocks
}

// blockedUntil returns the latest end among blocks intersecting [from, to),
// and whether any intersection exists.
func blockedUntil(blocks []Interval, from, to int) (int, bool) {
	end := 0
	blocked := false
	for _, b := range blocks {
		if b.StartMin < to && from < b.EndMin {
			blocked = true
			if b.EndMin > end {
				end = b.EndMin
			}
		}
	}
	return end, blocked
}

// Clock renders minutes since midnight as HH:MM.
func Clock(min int) string {
	return fmt.Sprintf("%02d:%02d", min/60, min%60)
}

// ParseClock parses HH:MM into minutes since midnight.
func ParseClock(s string) (int, error) {
	var h, m int
	if _, err := fmt.Sscanf(s, "%d:%d", &h, &m); err != nil {
		return 0, fmt.Errorf("parse clock %q: %w", s, err)
	}
	if h < 0 || h > 23 || m < 0 || m > 59 {
		return 0, fmt.Errorf("parse clock %q: out of range", s)
	}
	return h*60 + m, nil
}
