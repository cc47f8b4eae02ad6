// Package timeframe turns the query-string period presets and date filters
// used by the read endpoints into concrete UTC ranges.
package timeframe

import (
	"fmt"
	"strings"
	"time"
)

// Period is one of the fixed look-back presets.
type Period string

const (
	PeriodDay     Period = "1d"
	PeriodWeek    Period = "7d"
	PeriodMonth   Period = "30d"
	PeriodQuarter Period = "90d"
	PeriodYear    Period = "1y"

	DefaultPeriod = PeriodWeek
)

var periodDays = map[Period]int{
	PeriodDay:     1,
	PeriodWeek:    7,
	PeriodMonth:   30,
	PeriodQuarter: 90,
	PeriodYear:    365,
}

// DateLayout is the day format accepted by the date filters.
const DateLayout = "2006-01-02"

type TimeProvider interface {
	Now(loc *time.Location) time.Time
}

// DefaultTimeProvider uses the system clock.
type DefaultTimeProvider struct{}

func (p *DefaultTimeProvider) Now(loc *time.Location) time.Time {
	return time.Now().In(loc)
}

// FixedTimeProvider always returns the same instant. Used by tests and the seeder.
type FixedTimeProvider struct {
	At time.Time
}

func (p *FixedTimeProvider) Now(loc *time.Location) time.Time {
	return p.At.In(loc)
}

// DateRange is a closed [Start, End] interval in UTC.
type DateRange struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Contains reports whether t falls inside the range.
func (r DateRange) Contains(t time.Time) bool {
	return !t.Before(r.Start) && !t.After(r.End)
}

// ParsePeriod maps a preset string to a Period. Empty and unknown values
// fall back to DefaultPeriod; ok is false for unknown values.
func ParsePeriod(value string) (p Period, ok bool) {
	value = strings.ToLower(strings.TrimSpace(value))
	if value == "" {
		return DefaultPeriod, true
	}
	if _, known := periodDays[Period(value)]; known {
		return Period(value), true
	}
	return DefaultPeriod, false
}

// Days is the look-back length of the period.
func (p Period) Days() int {
	if d, ok := periodDays[p]; ok {
		return d
	}
	return periodDays[DefaultPeriod]
}

// Range is the window ending at now: [now - Days*24h, now].
func (p Period) Range(now time.Time) DateRange {
	now = now.UTC()
	return DateRange{
		Start: now.Add(-time.Duration(p.Days()) * 24 * time.Hour),
		End:   now,
	}
}

// Parser resolves date filters against a clock.
type Parser struct {
	timeProvider TimeProvider
}

func NewParser() *Parser {
	return &Parser{timeProvider: &DefaultTimeProvider{}}
}

func NewParserWithTimeProvider(tp TimeProvider) *Parser {
	return &Parser{timeProvider: tp}
}

// Now returns the parser's current time in UTC.
func (p *Parser) Now() time.Time {
	return p.timeProvider.Now(time.UTC)
}

// PeriodRange resolves a preset string to a range ending now.
func (p *Parser) PeriodRange(value string) (Period, DateRange) {
	period, _ := ParsePeriod(value)
	return period, period.Range(p.Now())
}

// ParseOptionalRange parses a from/to pair of dates. Each side may be empty,
// in which case that side is unbounded and returned as nil. Dates are
// YYYY-MM-DD or RFC3339; a bare end date includes the whole day.
func (p *Parser) ParseOptionalRange(fromStr, toStr string) (from, to *time.Time, err error) {
	if fromStr != "" {
		t, err := parseDate(fromStr, false)
		if err != nil {
			return nil, nil, fmt.Errorf("invalid start date %q: %w", fromStr, err)
		}
		from = &t
	}
	if toStr != "" {
		t, err := parseDate(toStr, true)
		if err != nil {
			return nil, nil, fmt.Errorf("invalid end date %q: %w", toStr, err)
		}
		to = &t
	}
	if from != nil && to != nil && to.Before(*from) {
		return nil, nil, fmt.Errorf("end date %s is before start date %s", toStr, fromStr)
	}
	return from, to, nil
}

func parseDate(value string, isEndDate bool) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t.UTC(), nil
	}
	date, err := time.ParseInLocation(DateLayout, value, time.UTC)
	if err != nil {
		return time.Time{}, err
	}
	if isEndDate {
		return time.Date(date.Year(), date.Month(), date.Day(), 23, 59, 59, 999999999, time.UTC), nil
	}
	return date, nil
}
