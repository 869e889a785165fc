package calendar

import (
	"errors"
	"strings"
	"testing"
	"time"

	ics "github.com/arran4/golang-ical"
	"github.com/stretchr/testify/require"

	"github.com/and161185/cems/internal/errs"
	"github.com/and161185/cems/internal/model"
)

func weekly(start time.Time) model.EventFields {
	p := model.RecurrenceWeekly
	return model.EventFields{
		Title:             "Standup",
		StartTime:         start,
		EndTime:           start.Add(15 * time.Minute),
		IsRecurring:       true,
		RecurrencePattern: &p,
	}
}

func TestOccurrences_Weekly(t *testing.T) {
	start := time.Date(2025, 5, 26, 9, 0, 0, 0, time.UTC)
	got, err := Occurrences(weekly(start), start, start.Add(21*24*time.Hour), 0)
	require.NoError(t, err)
	require.Len(t, got, 4)
	for i, o := range got {
		require.True(t, o.Start.Equal(start.Add(time.Duration(i)*7*24*time.Hour)))
		require.Equal(t, 15*time.Minute, o.End.Sub(o.Start))
	}
}

func TestOccurrences_Cap(t *testing.T) {
	start := time.Date(2025, 1, 1, 8, 0, 0, 0, time.UTC)
	p := model.RecurrenceDaily
	f := model.EventFields{StartTime: start, EndTime: start.Add(time.Hour), IsRecurring: true, RecurrencePattern: &p}

	got, err := Occurrences(f, start, start.AddDate(1, 0, 0), 3)
	require.NoError(t, err)
	require.Len(t, got, 3)
	require.True(t, got[2].Start.Equal(start.AddDate(0, 0, 2)))
}

func TestOccurrences_CapStopsExpansionEarly(t *testing.T) {
	start := time.Date(1900, 1, 1, 8, 0, 0, 0, time.UTC)
	p := model.RecurrenceDaily
	f := model.EventFields{StartTime: start, EndTime: start.Add(time.Hour), IsRecurring: true, RecurrencePattern: &p}
	to := time.Date(3900, 1, 1, 0, 0, 0, 0, time.UTC)

	var got []model.Occurrence
	allocs := testing.AllocsPerRun(5, func() {
		var err error
		got, err = Occurrences(f, start, to, 1)
		require.NoError(t, err)
	})
	require.Len(t, got, 1)
	require.True(t, got[0].Start.Equal(start))
	// the window holds about 730k daily starts
	require.Less(t, allocs, float64(1000))
}

func TestOccurrences_OverlapAtRangeStart(t *testing.T) {
	start := time.Date(2025, 1, 1, 8, 0, 0, 0, time.UTC)
	p := model.RecurrenceDaily
	f := model.EventFields{StartTime: start, EndTime: start.Add(2 * time.Hour), IsRecurring: true, RecurrencePattern: &p}

	from := start.AddDate(0, 0, 1).Add(time.Hour) // inside the second instance
	got, err := Occurrences(f, from, from.Add(30*time.Minute), 0)
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.True(t, got[0].Start.Equal(start.AddDate(0, 0, 1)))
}

func TestOccurrences_NonRecurring(t *testing.T) {
	start := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	f := model.EventFields{StartTime: start, EndTime: start.Add(time.Hour)}

	got, err := Occurrences(f, start.Add(-time.Hour), start.Add(time.Hour), 0)
	require.NoError(t, err)
	require.Len(t, got, 1)

	got, err = Occurrences(f, start.Add(2*time.Hour), start.Add(3*time.Hour), 0)
	require.NoError(t, err)
	require.Empty(t, got)
}

func TestOccurrences_BadRange(t *testing.T) {
	now := time.Now()
	_, err := Occurrences(model.EventFields{StartTime: now, EndTime: now}, now, now.Add(-time.Second), 0)
	require.True(t, errors.Is(err, errs.ErrInvalidArgument))
}

func TestRule_RequiresPattern(t *testing.T) {
	_, err := Rule(model.EventFields{IsRecurring: true})
	require.True(t, errors.Is(err, errs.ErrInvalidArgument))

	bad := model.Recurrence("hourly")
	_, err = Rule(model.EventFields{IsRecurring: true, RecurrencePattern: &bad})
	require.True(t, errors.Is(err, errs.ErrInvalidArgument))
}

func TestEncode_RoundTrip(t *testing.T) {
	start := time.Date(2025, 5, 26, 9, 0, 0, 0, time.UTC)
	loc := "Room 1"
	ev := model.Event{ID: 42, OwnerID: 1, EventFields: weekly(start), CreatedAt: start.Add(-time.Hour)}
	ev.Location = &loc
	ev.Description = "daily sync"

	out := Encode(ev, start)
	require.Contains(t, out, "FREQ=WEEKLY")

	cal, err := ics.ParseCalendar(strings.NewReader(out))
	require.NoError(t, err)
	events := cal.Events()
	require.Len(t, events, 1)
	ve := events[0]
	require.Equal(t, "42@cems", ve.Id())
	require.Equal(t, "Standup", ve.GetProperty(ics.ComponentPropertySummary).Value)
	require.Equal(t, "Room 1", ve.GetProperty(ics.ComponentPropertyLocation).Value)

	gotStart, err := ve.GetStartAt()
	require.NoError(t, err)
	require.True(t, gotStart.Equal(start))
	gotEnd, err := ve.GetEndAt()
	require.NoError(t, err)
	require.True(t, gotEnd.Equal(start.Add(15*time.Minute)))
}

func TestEncode_NoRRuleForSingleEvent(t *testing.T) {
	start := time.Date(2025, 5, 26, 9, 0, 0, 0, time.UTC)
	ev := model.Event{ID: 7, EventFields: model.EventFields{Title: "Once", StartTime: start, EndTime: start.Add(time.Hour)}}
	out := Encode(ev, start)
	require.NotContains(t, out, "RRULE")
	require.NotContains(t, out, "LOCATION")
}
