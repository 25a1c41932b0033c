package services

import (
	"fmt"
	"time"
)

const dayIDLayout = "2006-01-02"

// DayPolicy pins the calendar used for day ids, streaks and the implicit
// midnight reset of the watch counter. The zero value uses UTC.
type DayPolicy struct {
	Location *time.Location
}

// UTCDays is the default policy: day boundaries at 00:00 UTC.
func UTCDays() DayPolicy {
	return DayPolicy{Location: time.UTC}
}

// NewDayPolicy resolves an IANA zone name ("" or "UTC" give UTC).
func NewDayPolicy(zone string) (DayPolicy, error) {
	if zone == "" || zone == "UTC" {
		return UTCDays(), nil
	}
	loc, err := time.LoadLocation(zone)
	if err != nil {
		return DayPolicy{}, fmt.Errorf("invalid day boundary zone %q: %w", zone, err)
	}
	return DayPolicy{Location: loc}, nil
}

func (p DayPolicy) location() *time.Location {
	if p.Location == nil {
		return time.UTC
	}
	return p.Location
}

// DayID formats t as YYYY-MM-DD in the policy's zone.
func (p DayPolicy) DayID(t time.Time) string {
	return t.In(p.location()).Format(dayIDLayout)
}

// PreviousDayID is the id of the calendar day before t's day.
func (p DayPolicy) PreviousDayID(t time.Time) string {
	y, m, d := t.In(p.location()).Date()
	return time.Date(y, m, d-1, 0, 0, 0, 0, p.location()).Format(dayIDLayout)
}

// StartOfNextDay is the local midnight that ends t's day.
func (p DayPolicy) StartOfNextDay(t time.Time) time.Time {
	y, m, d := t.In(p.location()).Date()
	return time.Date(y, m, d+1, 0, 0, 0, 0, p.location())
}
