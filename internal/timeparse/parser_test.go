package timeparse

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newYork(t *testing.T) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)
	return loc
}

// Sunday 2025-06-15 12:00 EDT, away from any DST switch.
func reference(t *testing.T) (time.Time, *time.Location) {
	loc := newYork(t)
	return time.Date(2025, time.June, 15, 12, 0, 0, 0, loc), loc
}

func TestParse_Relative(t *testing.T) {
	now, loc := reference(t)
	cases := map[string]time.Duration{
		"5m":   5 * time.Minute,
		"90m":  90 * time.Minute,
		"2h":   2 * time.Hour,
		"3d":   72 * time.Hour,
		"10 m": 10 * time.Minute,
		"1H":   time.Hour,
	}
	for expr, want := range cases {
		t.Run(expr, func(t *testing.T) {
			got, err := Parse(expr, now, loc)
			require.NoError(t, err)
			assert.True(t, got.Equal(now.Add(want)), "got %s", got)
			assert.Equal(t, time.UTC, got.Location())
		})
	}
}

func TestParse_RelativeExactForAllAmounts(t *testing.T) {
	now, loc := reference(t)
	for _, unit := range []string{"m", "h", "d"} {
		for n := 1; n <= 120; n++ {
			got, err := Parse(fmt.Sprintf("%d%s", n, unit), now, loc)
			require.NoError(t, err)
			assert.True(t, got.Equal(now.Add(time.Duration(n)*units[unit])))
		}
	}
}

func TestParse_RelativeOverflow(t *testing.T) {
	now, loc := reference(t)
	_, err := Parse("99999999999999999999d", now, loc)
	assert.ErrorIs(t, err, ErrParse)
}

func TestParse_Tomorrow(t *testing.T) {
	now, loc := reference(t)
	got, err := Parse("tomorrow", now, loc)
	require.NoError(t, err)
	assert.True(t, got.Equal(time.Date(2025, time.June, 16, 9, 0, 0, 0, loc)))
}

func TestParse_TodayAt(t *testing.T) {
	now, loc := reference(t)

	got, err := Parse("today at 3pm", now, loc)
	require.NoError(t, err)
	assert.True(t, got.Equal(time.Date(2025, time.June, 15, 15, 0, 0, 0, loc)))

	got, err = Parse("Today at 9:15am", now, loc)
	require.NoError(t, err)
	assert.True(t, got.Equal(time.Date(2025, time.June, 16, 9, 15, 0, 0, loc)), "past time rolls to tomorrow")
}

func TestParse_TomorrowAt(t *testing.T) {
	now, loc := reference(t)
	got, err := Parse("tomorrow at 9:30pm", now, loc)
	require.NoError(t, err)
	assert.True(t, got.Equal(time.Date(2025, time.June, 16, 21, 30, 0, 0, loc)))

	got, err = Parse("tomorrow at 7", now, loc)
	require.NoError(t, err)
	assert.True(t, got.Equal(time.Date(2025, time.June, 16, 7, 0, 0, 0, loc)))
}

func TestParse_DateAt(t *testing.T) {
	now, loc := reference(t)
	cases := []struct {
		expr string
		want time.Time
	}{
		{"dec 25th at 4pm", time.Date(2025, time.December, 25, 16, 0, 0, 0, loc)},
		{"December 25 at 6:15pm", time.Date(2025, time.December, 25, 18, 15, 0, 0, loc)},
		{"jan 1st at 9pm", time.Date(2026, time.January, 1, 21, 0, 0, 0, loc)},
		{"june 15 at 11am", time.Date(2026, time.June, 15, 11, 0, 0, 0, loc)},
		{"june 15 at 1pm", time.Date(2025, time.June, 15, 13, 0, 0, 0, loc)},
		{"sept 2nd at 08:05", time.Date(2025, time.September, 2, 8, 5, 0, 0, loc)},
	}
	for _, tc := range cases {
		t.Run(tc.expr, func(t *testing.T) {
			got, err := Parse(tc.expr, now, loc)
			require.NoError(t, err)
			assert.True(t, got.Equal(tc.want), "got %s want %s", got.In(loc), tc.want)
		})
	}
}

func TestParse_DateAtInvalid(t *testing.T) {
	now, loc := reference(t)
	for _, expr := range []string{"feb 30 at 9am", "dec 32 at 9am", "dec 25 at 25:00", "dec 25 at noonish"} {
		_, err := Parse(expr, now, loc)
		assert.ErrorIs(t, err, ErrParse, expr)
	}
}

func TestParse_ClockOnly(t *testing.T) {
	now, loc := reference(t)
	cases := []struct {
		expr string
		want time.Time
	}{
		{"9pm", time.Date(2025, time.June, 15, 21, 0, 0, 0, loc)},
		{"9:20PM", time.Date(2025, time.June, 15, 21, 20, 0, 0, loc)},
		{"9 pm", time.Date(2025, time.June, 15, 21, 0, 0, 0, loc)},
		{"21:00", time.Date(2025, time.June, 15, 21, 0, 0, 0, loc)},
		{"9:45am", time.Date(2025, time.June, 16, 9, 45, 0, 0, loc)},
		{"12am", time.Date(2025, time.June, 16, 0, 0, 0, 0, loc)},
		{"12pm", time.Date(2025, time.June, 16, 12, 0, 0, 0, loc)},
		{"12:01pm", time.Date(2025, time.June, 15, 12, 1, 0, 0, loc)},
	}
	for _, tc := range cases {
		t.Run(tc.expr, func(t *testing.T) {
			got, err := Parse(tc.expr, now, loc)
			require.NoError(t, err)
			assert.True(t, got.Equal(tc.want), "got %s want %s", got.In(loc), tc.want)
		})
	}
}

func TestParse_ClockOnlyNeverInPast(t *testing.T) {
	now, loc := reference(t)
	for hour := 0; hour < 24; hour++ {
		for _, minute := range []int{0, 1, 29, 59} {
			expr := fmt.Sprintf("%d:%02d", hour, minute)
			got, err := Parse(expr, now, loc)
			require.NoError(t, err, expr)
			assert.True(t, got.After(now), "%s resolved to %s", expr, got.In(loc))
			assert.True(t, got.Sub(now) <= 24*time.Hour, expr)
		}
	}
}

func TestParse_InvalidClock(t *testing.T) {
	now, loc := reference(t)
	for _, expr := range []string{"25:00", "24:00", "13pm", "9:75", "today at 30:00", "tomorrow at 99pm"} {
		_, err := Parse(expr, now, loc)
		assert.ErrorIs(t, err, ErrParse, expr)
	}
}

func TestParse_Fallback(t *testing.T) {
	now, loc := reference(t)

	got, err := Parse("2025-07-01 10:00", now, loc)
	require.NoError(t, err)
	assert.True(t, got.Equal(time.Date(2025, time.July, 1, 10, 0, 0, 0, loc)))

	_, err = Parse("2020-01-01", now, loc)
	assert.ErrorIs(t, err, ErrParse, "fallback result in the past is rejected")

	_, err = Parse("whenever you like", now, loc)
	assert.ErrorIs(t, err, ErrParse)
}

type stubFallback struct {
	result time.Time
	err    error
	calls  int
}

func (f *stubFallback) Parse(string, time.Time, *time.Location) (time.Time, error) {
	f.calls++
	return f.result, f.err
}

func TestParse_FallbackIsUntrusted(t *testing.T) {
	now, loc := reference(t)

	stub := &stubFallback{result: now.Add(-time.Hour)}
	_, err := New(WithFallback(stub)).Parse("next friday", now, loc)
	assert.ErrorIs(t, err, ErrParse)
	assert.Equal(t, 1, stub.calls)

	stub = &stubFallback{err: errors.New("boom")}
	_, err = New(WithFallback(stub)).Parse("next friday", now, loc)
	assert.ErrorIs(t, err, ErrParse)

	stub = &stubFallback{result: now.Add(48 * time.Hour)}
	got, err := New(WithFallback(stub)).Parse("next friday", now, loc)
	require.NoError(t, err)
	assert.True(t, got.Equal(now.Add(48*time.Hour)))
}

func TestParse_GrammarsBeatFallback(t *testing.T) {
	now, loc := reference(t)
	stub := &stubFallback{result: now.Add(time.Hour)}
	_, err := New(WithFallback(stub)).Parse("5m", now, loc)
	require.NoError(t, err)
	assert.Zero(t, stub.calls)
}

func TestParse_NoFallback(t *testing.T) {
	now, loc := reference(t)
	_, err := New(WithFallback(nil)).Parse("2025-07-01 10:00", now, loc)
	assert.ErrorIs(t, err, ErrParse)
}

func TestParse_Empty(t *testing.T) {
	now, loc := reference(t)
	_, err := Parse("   ", now, loc)
	var perr *Error
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, "empty expression", perr.Reason)
}

func TestParse_TimezoneMatters(t *testing.T) {
	now, _ := reference(t)
	tokyo, err := time.LoadLocation("Asia/Tokyo")
	require.NoError(t, err)

	got, err := Parse("tomorrow", now, tokyo)
	require.NoError(t, err)
	// 12:00 EDT is 01:00 JST on June 16, so "tomorrow" is June 17 09:00 JST.
	assert.True(t, got.Equal(time.Date(2025, time.June, 17, 9, 0, 0, 0, tokyo)))
}

func TestParseDuration(t *testing.T) {
	d, err := ParseDuration("1h")
	require.NoError(t, err)
	assert.Equal(t, time.Hour, d)

	d, err = ParseDuration("15 m")
	require.NoError(t, err)
	assert.Equal(t, 15*time.Minute, d)

	for _, expr := range []string{"tomorrow", "0m", "9pm", ""} {
		_, err := ParseDuration(expr)
		assert.ErrorIs(t, err, ErrParse, expr)
	}
}
