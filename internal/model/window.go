package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// MinutesPerDay is the exclusive upper bound for a TimeOfDay start and the
// inclusive upper bound for an end ("24:00").
const MinutesPerDay = 24 * 60

var (
	// ErrInvalidTime is returned for clock strings that are not HH:MM.
	ErrInvalidTime = errors.New("invalid time of day")
	// ErrInvalidWindow is returned when start is not strictly before end,
	// which also rejects windows that would cross midnight.
	ErrInvalidWindow = errors.New("invalid time window")
	// ErrInvalidDate is returned for dates that are not YYYY-MM-DD.
	ErrInvalidDate = errors.New("invalid date")
)

// TimeOfDay is a clock time expressed in minutes since midnight.
type TimeOfDay int

// ParseTimeOfDay parses "HH:MM".  "24:00" parses to MinutesPerDay so it can
// be used as the end of a window that runs until midnight.
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	s = strings.TrimSpace(s)
	if s == "24:00" {
		return MinutesPerDay, nil
	}
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidTime, s)
	}
	return TimeOfDay(t.Hour()*60 + t.Minute()), nil
}

// String formats the value as HH:MM.
func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", int(t)/60, int(t)%60)
}

func (t TimeOfDay) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

func (t *TimeOfDay) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidTime, string(b))
	}
	v, err := ParseTimeOfDay(s)
	if err != nil {
		return err
	}
	*t = v
	return nil
}

// Window is a half-open interval [Start, End) within one calendar day.
type Window struct {
	Start TimeOfDay `json:"start"`
	End   TimeOfDay `json:"end"`
}

// NewWindow builds a validated window.  Start must be strictly before End
// and both must lie within the day.
func NewWindow(start, end TimeOfDay) (Window, error) {
	w := Window{Start: start, End: end}
	if err := w.Validate(); err != nil {
		return Window{}, err
	}
	return w, nil
}

// ParseWindow parses two HH:MM strings into a validated window.
func ParseWindow(start, end string) (Window, error) {
	s, err := ParseTimeOfDay(start)
	if err != nil {
		return Window{}, err
	}
	e, err := ParseTimeOfDay(end)
	if err != nil {
		return Window{}, err
	}
	return NewWindow(s, e)
}

// Validate checks the window bounds.
func (w Window) Validate() error {
	if w.Start < 0 || w.Start >= MinutesPerDay || w.End <= 0 || w.End > MinutesPerDay {
		return fmt.Errorf("%w: %s-%s out of day range", ErrInvalidWindow, w.Start, w.End)
	}
	if w.Start >= w.End {
		return fmt.Errorf("%w: start %s must be before end %s", ErrInvalidWindow, w.Start, w.End)
	}
	return nil
}

// Overlaps reports whether a and b share at least one instant.  Windows that
// only touch (a.End == b.Start) do not overlap.
func Overlaps(a, b Window) bool {
	return a.Start < b.End && b.Start < a.End
}

// Contains reports whether t lies in [Start, End).
func (w Window) Contains(t TimeOfDay) bool {
	return w.Start <= t && t < w.End
}

// Minutes returns the window length.
func (w Window) Minutes() int {
	return int(w.End - w.Start)
}

func (w Window) String() string {
	return "[" + w.Start.String() + "," + w.End.String() + ")"
}

// Date is a calendar day without a time zone.
type Date struct {
	Year  int
	Month time.Month
	Day   int
}

// ParseDate parses "YYYY-MM-DD".
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(time.DateOnly, strings.TrimSpace(s))
	if err != nil {
		return Date{}, fmt.Errorf("%w: %q", ErrInvalidDate, s)
	}
	return DateOf(t), nil
}

// DateOf returns the calendar day of t in t's location.
func DateOf(t time.Time) Date {
	y, m, d := t.Date()
	return Date{Year: y, Month: m, Day: d}
}

// In returns midnight of the date in loc.
func (d Date) In(loc *time.Location) time.Time {
	return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, loc)
}

// Before reports whether d is an earlier day than o.
func (d Date) Before(o Date) bool {
	if d.Year != o.Year {
		return d.Year < o.Year
	}
	if d.Month != o.Month {
		return d.Month < o.Month
	}
	return d.Day < o.Day
}

// IsZero reports whether the date is unset.
func (d Date) IsZero() bool {
	return d == Date{}
}

func (d Date) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, int(d.Month), d.Day)
}

func (d Date) MarshalJSON() ([]byte, error) {
	return []byte(strconv.Quote(d.String())), nil
}

func (d *Date) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidDate, string(b))
	}
	v, err := ParseDate(s)
	if err != nil {
		return err
	}
	*d = v
	return nil
}
