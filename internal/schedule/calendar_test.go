package schedule

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clinichq/scheduling/internal/config"
)

func mustClock(t *testing.T, s string) int {
	t.Helper()
	min, err := ParseClock(s)
	require.NoError(t, err)
	return min
}

func TestComputeEmptyDay(t *testing.T) {
	day := Compute(Query{
		Window:         config.DayWindow{Enabled: true, StartMin: 9 * 60, EndMin: 11 * 60},
		GranularityMin: 30,
		BufferMin:      10,
		DurationMin:    30,
	})

	require.Len(t, day.Free, 4)
	assert.Equal(t, Interval{StartMin: 540, EndMin: 570}, day.Free[0])
	assert.Equal(t, Interval{StartMin: 630, EndMin: 660}, day.Free[3])
	assert.Empty(t, day.Occupied)
}

func TestComputeCursorJumpsPastBufferedBooking(t *testing.T) {
	// A 09:00-09:30 booking with a 10 minute buffer blocks until 09:40, so
	// 09:40 must be the first slot offered after it, not 10:00.
	day := Compute(Query{
		Window:         config.DayWindow{Enabled: true, StartMin: 9 * 60, EndMin: 12 * 60},
		GranularityMin: 30,
		BufferMin:      10,
		DurationMin:    30,
		Booked:         []Booking{{StartMin: 9 * 60, DurationMin: 30}},
	})

	require.NotEmpty(t, day.Free)
	assert.Equal(t, mustClock(t, "09:40"), day.Free[0].StartMin)
	require.Len(t, day.Occupied, 1)
	assert.Equal(t, Interval{StartMin: 540, EndMin: 570}, day.Occupied[0])
}

func TestComputeSlotNeverExtendsPastWindowEnd(t *testing.T) {
	day := Compute(Query{
		Window:         config.DayWindow{Enabled: true, StartMin: 9 * 60, EndMin: 10 * 60},
		GranularityMin: 30,
		BufferMin:      0,
		DurationMin:    45,
	})

	require.Len(t, day.Free, 1)
	assert.Equal(t, Interval{StartMin: 540, EndMin: 585}, day.Free[0])
}

func TestComputeDisabledDayHasNoSlots(t *testing.T) {
	day := Compute(Query{
		Window:         config.DayWindow{Enabled: false, StartMin: 9 * 60, EndMin: 18 * 60},
		GranularityMin: 30,
		DurationMin:    30,
	})

	assert.Empty(t, day.Free)
	assert.Empty(t, day.Occupied)
}

func TestComputeBackToBackBookings(t *testing.T) {
	// Two adjacent bookings merge into one blocked stretch; the cursor jumps
	// to the end of the later block plus its buffer.
	day := Compute(Query{
		Window:         config.DayWindow{Enabled: true, StartMin: 9 * 60, EndMin: 12 * 60},
		GranularityMin: 30,
		BufferMin:      10,
		DurationMin:    30,
		Booked: []Booking{
			{StartMin: 9 * 60, DurationMin: 30},
			{StartMin: 9*60 + 40, DurationMin: 30},
		},
	})

	require.NotEmpty(t, day.Free)
	assert.Equal(t, mustClock(t, "10:20"), day.Free[0].StartMin)
}

func TestIsFree(t *testing.T) {
	q := Query{
		Window:         config.DayWindow{Enabled: true, StartMin: 9 * 60, EndMin: 12 * 60},
		GranularityMin: 30,
		BufferMin:      10,
		DurationMin:    30,
		Booked:         []Booking{{StartMin: 10 * 60, DurationMin: 30}},
	}

	assert.True(t, IsFree(q, 9*60))
	assert.False(t, IsFree(q, 10*60))    // exactly on the booking
	assert.False(t, IsFree(q, 9*60+45))  // would run into it
	assert.False(t, IsFree(q, 10*60+30)) // inside the buffer tail
	assert.True(t, IsFree(q, 10*60+40))  // first instant after the buffer
	assert.False(t, IsFree(q, 11*60+45)) // past window end
	assert.False(t, IsFree(q, 8*60))     // before window start
}

func TestClockRoundTrip(t *testing.T) {
	assert.Equal(t, "09:05", Clock(545))
	assert.Equal(t, "00:00", Clock(0))

	min, err := ParseClock("14:30")
	require.NoError(t, err)
	assert.Equal(t, 870, min)

	_, err = ParseClock("25:00")
	assert.Error(t, err)
	_, err = ParseClock("bogus")
	assert.Error(t, err)
}
