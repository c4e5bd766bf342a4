// Package timeparse turns free-form reminder expressions such as "5m",
// "tomorrow at 9pm" or "dec 25th at 4:30pm" into absolute UTC instants.
//
// Grammars are tried in a fixed order and the first production that matches
// the whole token stream wins:
//
//	relative   = number ("m" | "h" | "d")
//	tomorrow   = "tomorrow"
//	today-at   = "today" "at" clock
//	tomorrow-at = "tomorrow" "at" clock
//	date-at    = month number [ordinal] "at" clock
//	clock-only = clock
//	clock      = number [":" number] ["am" | "pm"]
//
// Anything else is handed to a Fallback, whose result must still lie after
// the reference instant.
package timeparse

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// ErrParse marks every error returned by this package.
var ErrParse = errors.New("parse error")

// Error describes why an expression was rejected.
type Error struct {
	Expr   string
	Reason string
}

func (e *Error) Error() string {
	return fmt.Sprintf("cannot parse %q: %s", e.Expr, e.Reason)
}

func (e *Error) Unwrap() error {
	return ErrParse
}

func newError(expr, reason string) error {
	return &Error{Expr: expr, Reason: reason}
}

// DefaultHour is the local hour used when only a day is given ("tomorrow").
const DefaultHour = 9

var months = map[string]time.Month{
	"jan": time.January, "january": time.January,
	"feb": time.February, "february": time.February,
	"mar": time.March, "march": time.March,
	"apr": time.April, "april": time.April,
	"may": time.May,
	"jun": time.June, "june": time.June,
	"jul": time.July, "july": time.July,
	"aug": time.August, "august": time.August,
	"sep": time.September, "sept": time.September, "september": time.September,
	"oct": time.October, "october": time.October,
	"nov": time.November, "november": time.November,
	"dec": time.December, "december": time.December,
}

var units = map[string]time.Duration{
	"m": time.Minute,
	"h": time.Hour,
	"d": 24 * time.Hour,
}

// Parser evaluates expressions against a reference instant.
type Parser struct {
	fallback Fallback
}

// Option configures a Parser.
type Option func(*Parser)

// WithFallback replaces the natural-language delegate. A nil fallback
// disables the last grammar entirely.
func WithFallback(f Fallback) Option {
	return func(p *Parser) {
		if f == nil {
			f = noFallback{}
		}
		p.fallback = f
	}
}

// New returns a Parser using NowFallback unless overridden.
func New(opts ...Option) *Parser {
	p := &Parser{fallback: NowFallback{}}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

var defaultParser = New()

// Parse evaluates expr with the default parser.
func Parse(expr string, now time.Time, loc *time.Location) (time.Time, error) {
	return defaultParser.Parse(expr, now, loc)
}

// Parse returns the instant expr denotes relative to now, computed in loc
// and normalized to UTC.
func (p *Parser) Parse(expr string, now time.Time, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.UTC
	}
	clean := strings.TrimSpace(expr)
	if clean == "" {
		return time.Time{}, newError(expr, "empty expression")
	}

	s := &state{expr: clean, toks: tokenize(clean), now: now.In(loc), loc: loc}
	productions := []func() (time.Time, bool, error){
		s.relative,
		s.tomorrow,
		s.todayAt,
		s.tomorrowAt,
		s.dateAt,
		s.clockOnly,
	}
	for _, production := range productions {
		s.pos = 0
		t, ok, err := production()
		if err != nil {
			return time.Time{}, err
		}
		if ok {
			return t.UTC(), nil
		}
	}

	t, err := p.fallback.Parse(clean, now, loc)
	if err != nil {
		var perr *Error
		if errors.As(err, &perr) {
			return time.Time{}, err
		}
		return time.Time{}, newError(expr, "unrecognized time expression")
	}
	if !t.After(now) {
		return time.Time{}, newError(expr, "time is in the past")
	}
	return t.UTC(), nil
}

// ParseDuration accepts only the relative grammar ("30m", "1h", "2d").
func ParseDuration(expr string) (time.Duration, error) {
	clean := strings.TrimSpace(expr)
	s := &state{expr: clean, toks: tokenize(clean)}
	n, unit, ok, err := s.duration()
	if err != nil {
		return 0, err
	}
	if !ok || n == 0 {
		return 0, newError(expr, "expected a duration such as 30m, 1h or 2d")
	}
	return time.Duration(n) * unit, nil
}

type state struct {
	expr string
	toks []token
	pos  int
	now  time.Time
	loc  *time.Location
}

func (s *state) peek() (token, bool) {
	if s.pos >= len(s.toks) {
		return token{}, false
	}
	return s.toks[s.pos], true
}

func (s *state) atEnd() bool {
	return s.pos >= len(s.toks)
}

func (s *state) word(words ...string) (string, bool) {
	tok, ok := s.peek()
	if !ok || tok.kind != tokWord {
		return "", false
	}
	for _, w := range words {
		if tok.text == w {
			s.pos++
			return w, true
		}
	}
	return "", false
}

func (s *state) number() (string, bool) {
	tok, ok := s.peek()
	if !ok || tok.kind != tokNumber {
		return "", false
	}
	s.pos++
	return tok.text, true
}

func (s *state) duration() (int64, time.Duration, bool, error) {
	digits, ok := s.number()
	if !ok {
		return 0, 0, false, nil
	}
	tok, ok := s.peek()
	if !ok || tok.kind != tokWord {
		return 0, 0, false, nil
	}
	unit, ok := units[tok.text]
	if !ok {
		return 0, 0, false, nil
	}
	s.pos++
	if !s.atEnd() {
		return 0, 0, false, nil
	}
	n, err := strconv.ParseInt(digits, 10, 64)
	if err != nil || n > int64(math.MaxInt64/unit) {
		return 0, 0, false, newError(s.expr, "duration is too large")
	}
	return n, unit, true, nil
}

func (s *state) relative() (time.Time, bool, error) {
	n, unit, ok, err := s.duration()
	if err != nil || !ok {
		return time.Time{}, false, err
	}
	return s.now.Add(time.Duration(n) * unit), true, nil
}

func (s *state) tomorrow() (time.Time, bool, error) {
	if _, ok := s.word("tomorrow"); !ok || !s.atEnd() {
		return time.Time{}, false, nil
	}
	return s.at(1, DefaultHour, 0), true, nil
}

func (s *state) todayAt() (time.Time, bool, error) {
	if _, ok := s.word("today"); !ok {
		return time.Time{}, false, nil
	}
	if _, ok := s.word("at"); !ok {
		return time.Time{}, false, nil
	}
	hour, minute, ok, err := s.clock()
	if err != nil || !ok {
		return time.Time{}, false, err
	}
	return s.rollForward(hour, minute), true, nil
}

func (s *state) tomorrowAt() (time.Time, bool, error) {
	if _, ok := s.word("tomorrow"); !ok {
		return time.Time{}, false, nil
	}
	if _, ok := s.word("at"); !ok {
		return time.Time{}, false, nil
	}
	hour, minute, ok, err := s.clock()
	if err != nil || !ok {
		return time.Time{}, false, err
	}
	return s.at(1, hour, minute), true, nil
}

func (s *state) dateAt() (time.Time, bool, error) {
	tok, ok := s.peek()
	if !ok || tok.kind != tokWord {
		return time.Time{}, false, nil
	}
	month, ok := months[tok.text]
	if !ok {
		return time.Time{}, false, nil
	}
	s.pos++
	digits, ok := s.number()
	if !ok {
		return time.Time{}, false, nil
	}
	s.word("st", "nd", "rd", "th")
	if _, ok := s.word("at"); !ok {
		return time.Time{}, false, nil
	}
	hour, minute, ok, err := s.clock()
	if err != nil {
		return time.Time{}, false, err
	}
	if !ok {
		return time.Time{}, false, newError(s.expr, "invalid time of day")
	}

	day, err := strconv.Atoi(digits)
	if err != nil || day < 1 || day > 31 {
		return time.Time{}, false, newError(s.expr, "invalid day of month")
	}
	for year := s.now.Year(); year <= s.now.Year()+1; year++ {
		candidate := time.Date(year, month, day, hour, minute, 0, 0, s.loc)
		if candidate.Month() != month || candidate.Day() != day {
			continue
		}
		if candidate.After(s.now) {
			return candidate, true, nil
		}
	}
	return time.Time{}, false, newError(s.expr, "no such date")
}

func (s *state) clockOnly() (time.Time, bool, error) {
	hour, minute, ok, err := s.clock()
	if err != nil || !ok {
		return time.Time{}, false, err
	}
	return s.rollForward(hour, minute), true, nil
}

// clock parses H[:MM][am|pm] and must consume the rest of the stream. A
// stream that has the shape of a clock but out-of-range fields is an error,
// not a non-match.
func (s *state) clock() (hour, minute int, ok bool, err error) {
	hourDigits, ok := s.number()
	if !ok || len(hourDigits) > 2 {
		return 0, 0, false, nil
	}
	minuteDigits := ""
	if tok, ok := s.peek(); ok && tok.kind == tokColon {
		s.pos++
		minuteDigits, ok = s.number()
		if !ok || len(minuteDigits) != 2 {
			return 0, 0, false, nil
		}
	}
	period, _ := s.word("am", "pm")
	if !s.atEnd() {
		return 0, 0, false, nil
	}

	hour, _ = strconv.Atoi(hourDigits)
	if minuteDigits != "" {
		minute, _ = strconv.Atoi(minuteDigits)
	}
	switch {
	case period == "pm" && hour != 12:
		hour += 12
	case period == "am" && hour == 12:
		hour = 0
	}
	if hour < 0 || hour > 23 {
		return 0, 0, false, newError(s.expr, "hour must be between 0 and 23")
	}
	if minute < 0 || minute > 59 {
		return 0, 0, false, newError(s.expr, "minute must be between 0 and 59")
	}
	return hour, minute, true, nil
}

// at returns the wall clock hour:minute, days calendar days after today.
func (s *state) at(days, hour, minute int) time.Time {
	y, m, d := s.now.Date()
	return time.Date(y, m, d+days, hour, minute, 0, 0, s.loc)
}

// rollForward returns today at hour:minute, or tomorrow if that is not
// strictly after now.
func (s *state) rollForward(hour, minute int) time.Time {
	t := s.at(0, hour, minute)
	if !t.After(s.now) {
		t = s.at(1, hour, minute)
	}
	return t
}
