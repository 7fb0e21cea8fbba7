package domain

import (
	"errors"
	"fmt"
	"sort"
	"time"
)

// DateLayout is the canonical calendar date format. Lexicographic order of
// dates in this layout matches chronological order.
const DateLayout = "2006-01-02"

var (
	// ErrInvalidDate is returned for dates not in YYYY-MM-DD form.
	ErrInvalidDate = errors.New("invalid date")
	// ErrEmptyInput is returned when a required input is empty.
	ErrEmptyInput = errors.New("empty input")
)

// ParseDate validates a YYYY-MM-DD string and returns it as midnight UTC.
func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w %q: expected YYYY-MM-DD", ErrInvalidDate, s)
	}
	return t, nil
}

// DayWindow returns [date 00:00:00, date 23:59:59] in UTC.
func DayWindow(date string) (Window, error) {
	start, err := ParseDate(date)
	if err != nil {
		return Window{}, err
	}
	return Window{Start: start, End: start.Add(24*time.Hour - time.Second)}, nil
}

// Window is an inclusive time range.
type Window struct {
	Start time.Time
	End   time.Time
}

// Contains reports whether t lies in the window, bounds included.
func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.Start) && !t.After(w.End)
}

// DateRange expands [start, end] into every calendar date, inclusive.
func DateRange(start, end string) ([]string, error) {
	from, err := ParseDate(start)
	if err != nil {
		return nil, err
	}
	to, err := ParseDate(end)
	if err != nil {
		return nil, err
	}
	if to.Before(from) {
		return nil, fmt.Errorf("%w: end %s is before start %s", ErrInvalidDate, end, start)
	}

	var dates []string
	for d := from; !d.After(to); d = d.AddDate(0, 0, 1) {
		dates = append(dates, d.Format(DateLayout))
	}
	return dates, nil
}

// ShiftDate moves date by days.
func ShiftDate(date string, days int) (string, error) {
	t, err := ParseDate(date)
	if err != nil {
		return "", err
	}
	return t.AddDate(0, 0, days).Format(DateLayout), nil
}

// ValidateDates checks every date and rejects an empty list.
func ValidateDates(dates []string) error {
	if len(dates) == 0 {
		return fmt.Errorf("%w: no dates given", ErrEmptyInput)
	}
	for _, d := range dates {
		if _, err := ParseDate(d); err != nil {
			return err
		}
	}
	return nil
}

// SortDates sorts dates in place in chronological order.
func SortDates(dates []string) {
	sort.Strings(dates)
}
