// Package timewindow validates times of day against the quarter-hour grid and
// computes work-entry durations, including windows that cross midnight.
package timewindow

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/and161185/kizami/internal/errs"
)

const (
	minutesPerDay = 24 * 60
	gridMinutes   = 15
)

var layouts = []string{"15:04", "15:04:05"}

// Parse reads a time of day in HH:MM or HH:MM:SS form.
func Parse(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, l := range layouts {
		if t, err := time.Parse(l, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: malformed time %q", errs.ErrValidation, s)
}

// IsQuarterAligned reports whether t falls on :00, :15, :30 or :45 with zero seconds.
func IsQuarterAligned(t time.Time) bool {
	return t.Minute()%gridMinutes == 0 && t.Second() == 0 && t.Nanosecond() == 0
}

// IsQuarterAlignedString is IsQuarterAligned over textual input; malformed input is not aligned.
func IsQuarterAlignedString(s string) bool {
	t, err := Parse(s)
	return err == nil && IsQuarterAligned(t)
}

// Window is a start/end pair in minutes since midnight.
// EndMinutes is already shifted by a day when the window crosses midnight.
type Window struct {
	StartMinutes int
	EndMinutes   int
}

// New builds the window between two times of day. Equal times are rejected.
func New(start, end time.Time) (Window, error) {
	s := minutesOfDay(start)
	e := minutesOfDay(end)
	if s == e {
		return Window{}, fmt.Errorf("%w: start equals end", errs.ErrValidation)
	}
	if e < s {
		e += minutesPerDay
	}
	return Window{StartMinutes: s, EndMinutes: e}, nil
}

// DurationMinutes is the length of the window.
func (w Window) DurationMinutes() int { return w.EndMinutes - w.StartMinutes }

// Hours is the length of the window in hours, rounded to two decimals.
func (w Window) Hours() float64 {
	return math.Round(float64(w.DurationMinutes())/60*100) / 100
}

// CrossesMidnight reports whether the window ends on the following day.
func (w Window) CrossesMidnight() bool { return w.EndMinutes >= minutesPerDay }

// DurationHours returns the hours between start and end, wrapping past midnight
// when end is earlier than start.
func DurationHours(start, end time.Time) (float64, error) {
	w, err := New(start, end)
	if err != nil {
		return 0, err
	}
	return w.Hours(), nil
}

// StrictDurationMinutes re-derives the duration and additionally requires it to
// be a whole number of quarter hours.
func StrictDurationMinutes(start, end time.Time) (int, error) {
	w, err := New(start, end)
	if err != nil {
		return 0, err
	}
	d := w.DurationMinutes()
	if d%gridMinutes != 0 {
		return 0, fmt.Errorf("%w: duration of %d minutes is not a multiple of %d", errs.ErrGranularity, d, gridMinutes)
	}
	return d, nil
}

// Validate checks both ends against the grid and returns the duration in hours.
func Validate(start, end time.Time) (float64, error) {
	if !IsQuarterAligned(start) {
		return 0, fmt.Errorf("%w: start time must be on a 15 minute step", errs.ErrValidation)
	}
	if !IsQuarterAligned(end) {
		return 0, fmt.Errorf("%w: end time must be on a 15 minute step", errs.ErrValidation)
	}
	return DurationHours(start, end)
}

// Options lists every grid time of a day, "00:00" through "23:45".
func Options() []string {
	out := make([]string, 0, minutesPerDay/gridMinutes)
	for m := 0; m < minutesPerDay; m += gridMinutes {
		out = append(out, fmt.Sprintf("%02d:%02d", m/60, m%60))
	}
	return out
}

func minutesOfDay(t time.Time) int { return t.Hour()*60 + t.Minute() }
