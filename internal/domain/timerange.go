package domain

import (
	"strings"
	"time"
)

// TimePeriod is a named relative deletion window.
type TimePeriod int

const (
	PeriodLastHour TimePeriod = iota
	PeriodLastDay
	PeriodLastWeek
	PeriodFourWeeks
	PeriodEverything
)

var periodNames = map[TimePeriod]string{
	PeriodLastHour:   "last_hour",
	PeriodLastDay:    "last_day",
	PeriodLastWeek:   "last_week",
	PeriodFourWeeks:  "four_weeks",
	PeriodEverything: "everything",
}

func (p TimePeriod) String() string {
	if n, ok := periodNames[p]; ok {
		return n
	}
	return "unknown"
}

// Window returns the length of the period. PeriodEverything has no window.
func (p TimePeriod) Window() (time.Duration, bool) {
	switch p {
	case PeriodLastHour:
		return time.Hour, true
	case PeriodLastDay:
		return 24 * time.Hour, true
	case PeriodLastWeek:
		return 7 * 24 * time.Hour, true
	case PeriodFourWeeks:
		return 4 * 7 * 24 * time.Hour, true
	default:
		return 0, false
	}
}

// Valid reports whether p is one of the named periods.
func (p TimePeriod) Valid() bool {
	_, ok := periodNames[p]
	return ok
}

// ParseTimePeriod parses a period name such as "last_hour" or "everything".
func ParseTimePeriod(s string) (TimePeriod, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	for p, n := range periodNames {
		if n == name {
			return p, nil
		}
	}
	return 0, NewDomainError("ParseTimePeriod", ErrInvalidPeriod, s)
}

// TimeRange is the half-open interval [Begin, End) of data to delete.
// A zero Begin means "since the beginning of time", which also covers persistent storage.
type TimeRange struct {
	Begin time.Time `json:"begin"`
	End   time.Time `json:"end"`
}

// IsUnbounded reports whether the range starts at the beginning of time.
func (r TimeRange) IsUnbounded() bool { return r.Begin.IsZero() }

// IncludesPersistent reports whether persistent quota-managed storage may be touched.
// Only full-history clears qualify.
func (r TimeRange) IncludesPersistent() bool { return r.IsUnbounded() }

// Contains reports whether t falls inside the range.
func (r TimeRange) Contains(t time.Time) bool {
	if !r.Begin.IsZero() && t.Before(r.Begin) {
		return false
	}
	return t.Before(r.End)
}
