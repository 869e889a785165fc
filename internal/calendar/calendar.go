// Package calendar expands recurring events and renders them as iCalendar.
package calendar

import (
	"fmt"
	"strings"
	"time"

	ics "github.com/arran4/golang-ical"
	"github.com/teambition/rrule-go"

	"github.com/and161185/cems/internal/errs"
	"github.com/and161185/cems/internal/model"
)

// DefaultMaxOccurrences caps an expansion when the caller passes no limit.
const DefaultMaxOccurrences = 500

// ProductID identifies exported calendars.
const ProductID = "-//cems//event export//EN"

var frequencies = map[model.Recurrence]rrule.Frequency{
	model.RecurrenceDaily:   rrule.DAILY,
	model.RecurrenceWeekly:  rrule.WEEKLY,
	model.RecurrenceMonthly: rrule.MONTHLY,
	model.RecurrenceYearly:  rrule.YEARLY,
}

// Rule builds the recurrence rule for a recurring event anchored at its start.
func Rule(f model.EventFields) (*rrule.RRule, error) {
	if !f.IsRecurring || f.RecurrencePattern == nil {
		return nil, errs.Invalid("event is not recurring")
	}
	freq, ok := frequencies[*f.RecurrencePattern]
	if !ok {
		return nil, errs.Invalid("unknown recurrence pattern %q", *f.RecurrencePattern)
	}
	return rrule.NewRRule(rrule.ROption{Freq: freq, Dtstart: f.StartTime.UTC()})
}

// Occurrences lists instances of f that overlap [from, to], earliest first, at most max.
// A non-positive max means DefaultMaxOccurrences.
func Occurrences(f model.EventFields, from, to time.Time, max int) ([]model.Occurrence, error) {
	if to.Before(from) {
		return nil, errs.Invalid("range end is before range start")
	}
	if max <= 0 {
		max = DefaultMaxOccurrences
	}
	dur := f.EndTime.Sub(f.StartTime)

	if !f.IsRecurring {
		if f.StartTime.After(to) || f.EndTime.Before(from) {
			return []model.Occurrence{}, nil
		}
		return []model.Occurrence{{Start: f.StartTime, End: f.EndTime}}, nil
	}

	r, err := Rule(f)
	if err != nil {
		return nil, err
	}
	lower, upper := from.Add(-dur).UTC(), to.UTC()
	out := []model.Occurrence{}
	next := r.Iterator()
	for len(out) < max {
		s, ok := next()
		if !ok || s.After(upper) {
			break
		}
		if s.Before(lower) {
			continue
		}
		end := s.Add(dur)
		if end.Before(from) {
			continue
		}
		out = append(out, model.Occurrence{Start: s, End: end})
	}
	return out, nil
}

// UID is the stable iCalendar identifier of an event.
func UID(eventID int64) string { return fmt.Sprintf("%d@cems", eventID) }

// Encode renders one event as a VCALENDAR document.
func Encode(ev model.Event, stamp time.Time) string {
	cal := ics.NewCalendar()
	cal.SetMethod(ics.MethodPublish)
	cal.SetProductId(ProductID)

	ve := cal.AddEvent(UID(ev.ID))
	ve.SetDtStampTime(stamp.UTC())
	ve.SetCreatedTime(ev.CreatedAt.UTC())
	ve.SetStartAt(ev.StartTime.UTC())
	ve.SetEndAt(ev.EndTime.UTC())
	ve.SetSummary(ev.Title)
	if ev.Description != "" {
		ve.SetDescription(ev.Description)
	}
	if ev.Location != nil {
		ve.SetLocation(*ev.Location)
	}
	if ev.IsRecurring && ev.RecurrencePattern != nil {
		ve.AddProperty(ics.ComponentPropertyRrule, "FREQ="+strings.ToUpper(string(*ev.RecurrencePattern)))
	}
	return cal.Serialize()
}
