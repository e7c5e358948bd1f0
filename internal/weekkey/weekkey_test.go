package weekkey

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func date(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 10, 0, 0, 0, time.UTC)
}

func TestOfYearBoundaries(t *testing.T) {
	cases := []struct {
		name string
		at   time.Time
		want Key
	}{
		{"mid year", date(2024, time.March, 13), "2024-W11"},
		{"late december in next year week 1", date(2024, time.December, 30), "2025-W01"},
		{"last sunday of 2024", date(2024, time.December, 29), "2024-W52"},
		{"early january in previous year", date(2021, time.January, 3), "2020-W53"},
		{"first monday of 2021", date(2021, time.January, 4), "2021-W01"},
		{"new year friday", date(2027, time.January, 1), "2026-W53"},
		{"jan 4 is always week 1", date(2026, time.January, 4), "2026-W01"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Of(tc.at))
		})
	}
}

func TestWeeksInYear(t *testing.T) {
	assert.Equal(t, 53, WeeksInYear(2015))
	assert.Equal(t, 53, WeeksInYear(2020))
	assert.Equal(t, 52, WeeksInYear(2024))
	assert.Equal(t, 52, WeeksInYear(2025))
	assert.Equal(t, 53, WeeksInYear(2026))
}

func TestNextFixed53(t *testing.T) {
	now := date(2030, time.June, 1)

	assert.Equal(t, Key("2024-W06"), Next("2024-W05", now, WrapFixed53))
	assert.Equal(t, Key("2020-W53"), Next("2020-W52", now, WrapFixed53))
	assert.Equal(t, Key("2021-W01"), Next("2020-W53", now, WrapFixed53))
	assert.Equal(t, Key("2025-W01"), Next("2024-W53", now, WrapFixed53))
	// 2024 has 52 ISO weeks; the legacy mode still emits W53 once.
	assert.Equal(t, Key("2024-W53"), Next("2024-W52", now, WrapFixed53))
}

func TestNextISO(t *testing.T) {
	now := date(2030, time.June, 1)

	assert.Equal(t, Key("2020-W53"), Next("2020-W52", now, WrapISO))
	assert.Equal(t, Key("2021-W01"), Next("2020-W53", now, WrapISO))
	assert.Equal(t, Key("2025-W01"), Next("2024-W52", now, WrapISO))
	assert.Equal(t, Key("2025-W01"), Next("2024-W53", now, WrapISO))
}

func TestNextMalformedFallsBackToNow(t *testing.T) {
	now := date(2024, time.March, 13)

	for _, raw := range []string{"", "garbage", "2024-W5", "24-W05", "2024-W00", "2024-W54", "2024W05"} {
		assert.Equal(t, Key("2024-W11"), Next(raw, now, WrapFixed53), "input %q", raw)
	}
}

func TestParseAndValid(t *testing.T) {
	year, week, ok := Parse("2025-W09")
	require.True(t, ok)
	assert.Equal(t, 2025, year)
	assert.Equal(t, 9, week)

	assert.True(t, Valid("2020-W53"))
	assert.False(t, Valid("2020-W60"))
	assert.False(t, Valid("2020-w05"))

	for _, raw := range []string{" 2024-W05", "2024-W05 ", "\t2024-W05", "2024-W05\n"} {
		_, _, ok := Parse(raw)
		assert.False(t, ok, "input %q", raw)
		assert.False(t, Valid(raw), "input %q", raw)
	}
}

func TestNextToleratesPadding(t *testing.T) {
	now := date(2030, time.June, 1)

	assert.Equal(t, Key("2024-W06"), Next(" 2024-W05 ", now, WrapFixed53))
}

func TestParseWrapMode(t *testing.T) {
	assert.Equal(t, WrapISO, ParseWrapMode(" ISO "))
	assert.Equal(t, WrapFixed53, ParseWrapMode("fixed53"))
	assert.Equal(t, WrapFixed53, ParseWrapMode("whatever"))
}

func TestOrderingExamples(t *testing.T) {
	assert.True(t, Before("2024-W05", "2024-W12"))
	assert.True(t, Before("2024-W12", "2025-W01"))
	assert.False(t, Before("2025-W01", "2025-W01"))
}

func TestCalendarRange(t *testing.T) {
	from, to := CalendarRange(date(2024, time.January, 3))
	assert.Equal(t, "2024-01-01", from)
	assert.Equal(t, "2024-01-07", to)

	from, to = CalendarRange(date(2024, time.January, 7))
	assert.Equal(t, "2024-01-01", from)
	assert.Equal(t, "2024-01-07", to)

	from, to = CalendarRange(date(2024, time.December, 31))
	assert.Equal(t, "2024-12-30", from)
	assert.Equal(t, "2025-01-05", to)
}

func TestPropertyFormattedKeysOrderChronologically(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		y1 := rapid.IntRange(1000, 9999).Draw(rt, "y1")
		w1 := rapid.IntRange(1, 53).Draw(rt, "w1")
		y2 := rapid.IntRange(1000, 9999).Draw(rt, "y2")
		w2 := rapid.IntRange(1, 53).Draw(rt, "w2")

		chronological := y1 < y2 || (y1 == y2 && w1 < w2)
		if got := Before(Format(y1, w1), Format(y2, w2)); got != chronological {
			rt.Fatalf("Before(%s, %s) = %v, want %v", Format(y1, w1), Format(y2, w2), got, chronological)
		}
	})
}

func TestPropertyOfIsMonotonic(t *testing.T) {
	base := date(1990, time.January, 1)
	rapid.Check(t, func(rt *rapid.T) {
		a := rapid.IntRange(0, 20000).Draw(rt, "a")
		b := rapid.IntRange(0, 20000).Draw(rt, "b")
		if a > b {
			a, b = b, a
		}
		ka := Of(base.AddDate(0, 0, a))
		kb := Of(base.AddDate(0, 0, b))
		if kb < ka {
			rt.Fatalf("Of not monotonic: day %d -> %s, day %d -> %s", a, ka, b, kb)
		}
		if !Valid(string(ka)) {
			rt.Fatalf("Of produced invalid key %s", ka)
		}
	})
}

func TestPropertyNextISOFollowsCalendar(t *testing.T) {
	base := date(1990, time.January, 1)
	rapid.Check(t, func(rt *rapid.T) {
		offset := rapid.IntRange(0, 20000).Draw(rt, "offset")
		day := base.AddDate(0, 0, offset)
		want := Of(day.AddDate(0, 0, 7))
		if got := Next(string(Of(day)), day, WrapISO); got != want {
			rt.Fatalf("Next(%s) = %s, want %s", Of(day), got, want)
		}
	})
}
