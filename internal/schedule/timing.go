package schedule

import (
	"fmt"
	"time"

	"github.com/roach88/surveyops/internal/model"
)

const (
	// DefaultSendHour is used when an email config has no sendHour.
	DefaultSendHour = 7
	// SendNowDelay is the thank-you delay in sendNow mode.
	SendNowDelay = 3 * time.Minute
)

// Zones holds the fallback zones for events without their own timezone.
type Zones struct {
	Start *time.Location
	End   *time.Location
}

// DefaultZones returns the legacy defaults: New York for the start of an
// event, Los Angeles for its end.
func DefaultZones() (Zones, error) {
	start, err := time.LoadLocation("America/New_York")
	if err != nil {
		return Zones{}, fmt.Errorf("load start zone: %w", err)
	}
	end, err := time.LoadLocation("America/Los_Angeles")
	if err != nil {
		return Zones{}, fmt.Errorf("load end zone: %w", err)
	}
	return Zones{Start: start, End: end}, nil
}

// forEvent resolves the zones for one event.
func (z Zones) forEvent(e model.Event) (start, end *time.Location, err error) {
	start, end = z.Start, z.End
	if start == nil {
		start = time.UTC
	}
	if end == nil {
		end = time.UTC
	}
	if e.Timezone == "" {
		return start, end, nil
	}
	loc, err := time.LoadLocation(e.Timezone)
	if err != nil {
		return nil, nil, fmt.Errorf("event %s timezone %q: %w", e.ID, e.Timezone, err)
	}
	return loc, loc, nil
}

// StartOfDay is midnight of t's calendar day in loc.
func StartOfDay(t time.Time, loc *time.Location) time.Time {
	y, m, d := t.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, loc)
}

// EndOfDay is the last millisecond of t's calendar day in loc.
func EndOfDay(t time.Time, loc *time.Location) time.Time {
	y, m, d := t.In(loc).Date()
	return time.Date(y, m, d, 23, 59, 59, int(999*time.Millisecond), loc)
}

// withHour replaces the hour of t, keeping every other field.
func withHour(t time.Time, hour int) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, hour, t.Minute(), t.Second(), t.Nanosecond(), t.Location())
}

func intOr(p *int, def int) int {
	if p == nil {
		return def
	}
	return *p
}

// IsPreRegistration reports whether now is before the event's start day.
func IsPreRegistration(e model.Event, now time.Time, startZone *time.Location) bool {
	if e.PreRegDate == nil || e.StartDate == nil {
		return false
	}
	return now.Before(StartOfDay(*e.StartDate, startZone))
}

// ReminderTime computes the reminder fire time for an event starting at
// start.
func ReminderTime(start time.Time, cfg model.ReminderEmail, startZone *time.Location) time.Time {
	t := withHour(StartOfDay(start, startZone), intOr(cfg.SendHour, DefaultSendHour))
	return t.AddDate(0, 0, -intOr(cfg.DaysBefore, 0))
}

// ThankYouTime computes the thank-you fire time. eventEnd may be nil only
// in the sendNow modes; ok is false when no time can be derived.
func ThankYouTime(now time.Time, eventEnd *time.Time, cfg model.ThankYouEmail, endZone *time.Location) (t time.Time, ok bool) {
	switch {
	case cfg.SendNow:
		return now.Add(SendNowDelay), true
	case cfg.SendNowAfterDays != nil:
		return now.AddDate(0, 0, *cfg.SendNowAfterDays), true
	case eventEnd == nil:
		return time.Time{}, false
	}
	t = withHour(EndOfDay(*eventEnd, endZone), intOr(cfg.SendHour, DefaultSendHour))
	return t.AddDate(0, 0, intOr(cfg.DaysAfter, 0)), true
}
