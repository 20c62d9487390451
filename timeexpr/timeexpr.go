// Package timeexpr resolves human time expressions to absolute timestamps.
//
// Three forms are accepted:
//
//   - the literals "now" and "immediate"
//   - relative durations, short ("5m", "2h", "1d") or long ("5 minutes",
//     "2 hours", "1 day"), optionally prefixed with "in"
//   - absolute dates, parsed with github.com/jinzhu/now in the location of
//     the reference time ("2026-03-01 18:30", "2026-03-01T18:30:00Z", "18:30")
//
// Anything else fails with a *herald.ParseError, including a bare number
// such as "5", which is ambiguous between a duration and an hour.
package timeexpr

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/jinzhu/now"

	"github.com/xraph/herald"
)

var (
	relative = regexp.MustCompile(`^(?:in\s+)?(\d+)\s*([a-z]+)$`)
	// A number with no unit would otherwise parse as an hour of today.
	unitless = regexp.MustCompile(`^(?:in\s+)?\d+$`)
)

var units = map[string]time.Duration{
	"s": time.Second, "sec": time.Second, "secs": time.Second, "second": time.Second, "seconds": time.Second,
	"m": time.Minute, "min": time.Minute, "mins": time.Minute, "minute": time.Minute, "minutes": time.Minute,
	"h": time.Hour, "hr": time.Hour, "hrs": time.Hour, "hour": time.Hour, "hours": time.Hour,
	"d": 24 * time.Hour, "day": 24 * time.Hour, "days": 24 * time.Hour,
	"w": 7 * 24 * time.Hour, "week": 7 * 24 * time.Hour, "weeks": 7 * 24 * time.Hour,
}

// Resolve maps expr to an absolute time relative to ref.
func Resolve(expr string, ref time.Time) (time.Time, error) {
	s := strings.ToLower(strings.TrimSpace(expr))
	if s == "" {
		return time.Time{}, &herald.ParseError{Input: expr, Reason: "empty expression"}
	}

	switch s {
	case "now", "immediate", "immediately":
		return ref, nil
	}

	if unitless.MatchString(s) {
		return time.Time{}, &herald.ParseError{Input: expr, Reason: "number needs a unit, e.g. " + s + "m"}
	}

	if d, ok, err := parseRelative(s); ok {
		if err != nil {
			return time.Time{}, &herald.ParseError{Input: expr, Reason: err.Error()}
		}
		return ref.Add(d), nil
	}

	if t, err := time.Parse(time.RFC3339, strings.TrimSpace(expr)); err == nil {
		return t, nil
	}

	cfg := &now.Config{
		WeekStartDay: time.Monday,
		TimeLocation: ref.Location(),
		TimeFormats:  now.TimeFormats,
	}
	t, err := cfg.With(ref).Parse(strings.TrimSpace(expr))
	if err != nil {
		return time.Time{}, &herald.ParseError{Input: expr, Reason: "not a relative duration or date"}
	}
	return t, nil
}

// Duration parses only the relative form and returns it as a duration.
func Duration(expr string) (time.Duration, error) {
	d, ok, err := parseRelative(strings.ToLower(strings.TrimSpace(expr)))
	if !ok {
		return 0, &herald.ParseError{Input: expr, Reason: "not a relative duration"}
	}
	if err != nil {
		return 0, &herald.ParseError{Input: expr, Reason: err.Error()}
	}
	return d, nil
}

func parseRelative(s string) (time.Duration, bool, error) {
	m := relative.FindStringSubmatch(s)
	if m == nil {
		return 0, false, nil
	}
	unit, known := units[m[2]]
	if !known {
		return 0, false, nil
	}
	n, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil {
		return 0, true, err
	}
	if n > int64((1<<63-1)/unit) {
		return 0, true, strconv.ErrRange
	}
	return time.Duration(n) * unit, true, nil
}
