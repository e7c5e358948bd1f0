// Package weekkey implements the YYYY-Www week identifiers that scope every
// site's task sheet. Keys are fixed width and zero padded, so ordinary string
// comparison orders them chronologically.
package weekkey

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Key is an ISO-8601 week identifier such as "2024-W05".
type Key string

// WrapMode selects how Next rolls over from the last week of a year.
type WrapMode string

const (
	// WrapFixed53 wraps only after week 53, whatever the year. A 52-week year
	// produces one extra "YYYY-W53" key before rolling over. This is the
	// historical behaviour and keeps existing carry-forward chains stable.
	WrapFixed53 WrapMode = "fixed53"
	// WrapISO wraps after the real last ISO week of the year (52 or 53).
	WrapISO WrapMode = "iso"
)

// LegacyMaxWeek is the week number WrapFixed53 treats as the end of every year.
const LegacyMaxWeek = 53

const dateLayout = "2006-01-02"

var pattern = regexp.MustCompile(`^(\d{4})-W(\d{2})$`)

// ParseWrapMode maps a configuration value to a WrapMode. Unknown values fall
// back to WrapFixed53.
func ParseWrapMode(value string) WrapMode {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case string(WrapISO):
		return WrapISO
	default:
		return WrapFixed53
	}
}

// Format builds a key from an ISO year and week.
func Format(year, week int) Key {
	return Key(fmt.Sprintf("%04d-W%02d", year, week))
}

// Of returns the ISO week key containing t, evaluated in t's location.
func Of(t time.Time) Key {
	year, week := t.ISOWeek()
	return Format(year, week)
}

// Parse splits a key into year and week. Week must be in 1..53. The whole
// string must match; surrounding whitespace makes a key invalid because
// keys order lexicographically.
func Parse(value string) (year, week int, ok bool) {
	match := pattern.FindStringSubmatch(value)
	if match == nil {
		return 0, 0, false
	}
	year, _ = strconv.Atoi(match[1])
	week, _ = strconv.Atoi(match[2])
	if week < 1 || week > LegacyMaxWeek {
		return 0, 0, false
	}
	return year, week, true
}

// Valid reports whether value satisfies the persisted key format.
func Valid(value string) bool {
	_, _, ok := Parse(value)
	return ok
}

// Before reports whether a is strictly earlier than b. Only meaningful for
// valid keys.
func Before(a, b Key) bool {
	return a < b
}

// String implements fmt.Stringer.
func (k Key) String() string {
	return string(k)
}

// WeeksInYear returns the number of ISO weeks in year (52 or 53).
// December 28 always falls in the last ISO week of its year.
func WeeksInYear(year int) int {
	_, week := time.Date(year, time.December, 28, 12, 0, 0, 0, time.UTC).ISOWeek()
	return week
}

// Next returns the key following current. Surrounding whitespace is
// ignored; unparseable input degrades to the week containing now.
func Next(current string, now time.Time, mode WrapMode) Key {
	year, week, ok := Parse(strings.TrimSpace(current))
	if !ok {
		return Of(now)
	}

	last := LegacyMaxWeek
	if mode == WrapISO {
		last = WeeksInYear(year)
	}

	week++
	if week > last {
		return Format(year+1, 1)
	}
	return Format(year, week)
}

// MondayOf returns midnight of the Monday starting t's calendar week.
func MondayOf(t time.Time) time.Time {
	offset := (int(t.Weekday()) + 6) % 7
	day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
	return day.AddDate(0, 0, -offset)
}

// CalendarRange returns the Monday and Sunday of t's week as YYYY-MM-DD.
func CalendarRange(t time.Time) (from, to string) {
	monday := MondayOf(t)
	return monday.Format(dateLayout), monday.AddDate(0, 0, 6).Format(dateLayout)
}
