package timeparse

import (
	"time"

	"github.com/jinzhu/now"
)

// Fallback is the last-resort parser consulted when no grammar matches.
// Its output is validated by the caller like any other untrusted input.
type Fallback interface {
	Parse(expr string, ref time.Time, loc *time.Location) (time.Time, error)
}

// NowFallback delegates to github.com/jinzhu/now, which understands absolute
// forms such as "2026-12-25 10:00", "12/25/2026" or "15:04".
type NowFallback struct{}

func (NowFallback) Parse(expr string, ref time.Time, loc *time.Location) (time.Time, error) {
	cfg := &now.Config{
		WeekStartDay: time.Monday,
		TimeLocation: loc,
		TimeFormats:  now.TimeFormats,
	}
	return cfg.With(ref.In(loc)).Parse(expr)
}

type noFallback struct{}

func (noFallback) Parse(expr string, _ time.Time, _ *time.Location) (time.Time, error) {
	return time.Time{}, newError(expr, "unrecognized time expression")
}
