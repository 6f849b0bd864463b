// Package daterange maps dashboard range selectors onto concrete date intervals.
package daterange

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// DateLayout is the wire format for range boundaries.
const DateLayout = "2006-01-02"

// Selector identifies a symbolic dashboard range.
type Selector string

// Supported selectors.
const (
	Today       Selector = "today"
	Yesterday   Selector = "yesterday"
	Last7Days   Selector = "last_7_days"
	Last30Days  Selector = "last_30_days"
	ThisMonth   Selector = "this_month"
	LastMonth   Selector = "last_month"
	ThisQuarter Selector = "this_quarter"
	Custom      Selector = "custom"
)

// DateRange is an inclusive [From, To] interval of calendar days.
type DateRange struct {
	From  string `json:"from"`
	To    string `json:"to"`
	Label string `json:"label"`
}

// RangeParseError reports a boundary that could not be parsed. Resolve never
// returns it; it falls back to a safe default instead.
type RangeParseError struct {
	Value string
	Err   error
}

func (e *RangeParseError) Error() string {
	return fmt.Sprintf("daterange: parse %q: %v", e.Value, e.Err)
}

func (e *RangeParseError) Unwrap() error { return e.Err }

// ParseSelector maps free text onto a Selector. Unknown values map to ThisMonth.
func ParseSelector(raw string) Selector {
	switch sel := Selector(strings.ToLower(strings.TrimSpace(raw))); sel {
	case Today, Yesterday, Last7Days, Last30Days, ThisMonth, LastMonth, ThisQuarter, Custom:
		return sel
	default:
		return ThisMonth
	}
}

// Resolve converts a selector into a concrete range relative to today. Day
// boundaries are midnight in today's location.
func Resolve(selector Selector, customFrom, customTo string, today time.Time) DateRange {
	day := midnight(today)
	switch selector {
	case Today:
		return newRange(day, day, "Today")
	case Yesterday:
		y := day.AddDate(0, 0, -1)
		return newRange(y, y, "Yesterday")
	case Last7Days:
		return newRange(day.AddDate(0, 0, -7), day, "Last 7 days")
	case Last30Days:
		return newRange(day.AddDate(0, 0, -30), day, "Last 30 days")
	case LastMonth:
		start := time.Date(day.Year(), day.Month()-1, 1, 0, 0, 0, 0, day.Location())
		end := time.Date(day.Year(), day.Month(), 0, 0, 0, 0, 0, day.Location())
		return newRange(start, end, "Last month")
	case ThisQuarter:
		qMonth := time.Month((int(day.Month())-1)/3*3 + 1)
		start := time.Date(day.Year(), qMonth, 1, 0, 0, 0, 0, day.Location())
		return newRange(start, day, "This quarter")
	case Custom:
		from := parseOrDefault(customFrom, day)
		to := parseOrDefault(customTo, day)
		if from.After(to) {
			from, to = to, from
		}
		return newRange(from, to, customLabel(from, to))
	default:
		start := time.Date(day.Year(), day.Month(), 1, 0, 0, 0, 0, day.Location())
		return newRange(start, day, "This month")
	}
}

// PreviousRange returns the comparison period that ends the day before from
// and spans the same number of days as to-from (one day minimum). Input that
// fails to parse is returned unchanged.
func PreviousRange(from, to string) DateRange {
	start, errFrom := Parse(from)
	end, errTo := Parse(to)
	if errFrom != nil || errTo != nil {
		return DateRange{From: from, To: to, Label: spanLabel(from, to)}
	}
	span := int(math.Round(end.Sub(start).Hours() / 24))
	if span < 1 {
		span = 1
	}
	prevTo := start.AddDate(0, 0, -1)
	prevFrom := start.AddDate(0, 0, -span)
	return newRange(prevFrom, prevTo, "Previous period")
}

// Parse reads a YYYY-MM-DD boundary as local midnight.
func Parse(value string) (time.Time, error) {
	t, err := time.ParseInLocation(DateLayout, strings.TrimSpace(value), time.Local)
	if err != nil {
		return time.Time{}, &RangeParseError{Value: value, Err: err}
	}
	return t, nil
}

// Bounds parses both boundaries of the range.
func (r DateRange) Bounds() (time.Time, time.Time, error) {
	from, err := Parse(r.From)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	to, err := Parse(r.To)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	return from, to, nil
}

// Days returns the inclusive number of calendar days covered, or 0 when the
// range cannot be parsed.
func (r DateRange) Days() int {
	from, to, err := r.Bounds()
	if err != nil || to.Before(from) {
		return 0
	}
	return int(math.Round(to.Sub(from).Hours()/24)) + 1
}

// String renders the range for logs and labels.
func (r DateRange) String() string {
	return spanLabel(r.From, r.To)
}

func newRange(from, to time.Time, label string) DateRange {
	return DateRange{From: from.Format(DateLayout), To: to.Format(DateLayout), Label: label}
}

func midnight(t time.Time) time.Time {
	if t.IsZero() {
		t = time.Now()
	}
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

func parseOrDefault(value string, fallback time.Time) time.Time {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	t, err := time.ParseInLocation(DateLayout, strings.TrimSpace(value), fallback.Location())
	if err != nil {
		return fallback
	}
	return t
}

func customLabel(from, to time.Time) string {
	return spanLabel(from.Format(DateLayout), to.Format(DateLayout))
}

func spanLabel(from, to string) string {
	if from == to {
		return from
	}
	return from + " to " + to
}
