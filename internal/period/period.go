// Package period narrows position sets to calendar periods and daily hour
// windows. Every function takes its reference time explicitly.
package period

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"parkwatch/internal/domain"
)

var ErrInvalidTimeRange = errors.New("invalid time range")

// Keyword names a calendar period relative to a reference time
type Keyword string

const (
	LastDay   Keyword = "lastDay"
	LastWeek  Keyword = "lastWeek"
	LastMonth Keyword = "lastMonth"
	ThisMonth Keyword = "thisMonth"
)

// Keywords lists the supported period keywords.
func Keywords() []Keyword {
	return []Keyword{LastDay, LastWeek, LastMonth, ThisMonth}
}

// Normalize maps unknown keywords to LastDay.
func Normalize(k Keyword) Keyword {
	switch k {
	case LastDay, LastWeek, LastMonth, ThisMonth:
		return k
	default:
		return LastDay
	}
}

// Closed reports whether the period lies entirely before now's day, so its
// contents can no longer change.
func (k Keyword) Closed() bool {
	return Normalize(k) != ThisMonth
}

// Range is an inclusive time interval
type Range struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

func (r Range) Contains(t time.Time) bool {
	return !t.Before(r.Start) && !t.After(r.End)
}

// Resolve turns a keyword into an absolute range in now's location.
// Ranges cover whole days: from 00:00:00.000 on the first day to
// 23:59:59.999 on the last.
func Resolve(k Keyword, now time.Time) Range {
	loc := now.Location()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, loc)

	switch Normalize(k) {
	case LastWeek:
		sunday := today.AddDate(0, 0, -int(today.Weekday())-7)
		return days(sunday, sunday.AddDate(0, 0, 6))
	case LastMonth:
		first := time.Date(now.Year(), now.Month()-1, 1, 0, 0, 0, 0, loc)
		last := time.Date(now.Year(), now.Month(), 0, 0, 0, 0, 0, loc)
		return days(first, last)
	case ThisMonth:
		first := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, loc)
		last := time.Date(now.Year(), now.Month()+1, 0, 0, 0, 0, 0, loc)
		return days(first, last)
	default:
		yesterday := today.AddDate(0, 0, -1)
		return days(yesterday, yesterday)
	}
}

func days(first, last time.Time) Range {
	end := time.Date(last.Year(), last.Month(), last.Day()+1, 0, 0, 0, 0, last.Location()).Add(-time.Millisecond)
	return Range{Start: first, End: end}
}

// FilterByPeriod keeps positions whose timestamp falls inside the resolved period.
func FilterByPeriod(positions []domain.Position, k Keyword, now time.Time) []domain.Position {
	return FilterByRange(positions, Resolve(k, now))
}

func FilterByRange(positions []domain.Position, r Range) []domain.Position {
	out := make([]domain.Position, 0, len(positions))
	for _, p := range positions {
		if p.Usable() && r.Contains(p.Timestamp) {
			out = append(out, p)
		}
	}
	return out
}

// FilterByHourRange keeps positions whose local hour h satisfies
// startHour <= h < endHour, on any date.
func FilterByHourRange(positions []domain.Position, startHour, endHour int, loc *time.Location) []domain.Position {
	if loc == nil {
		loc = time.Local
	}
	out := make([]domain.Position, 0, len(positions))
	for _, p := range positions {
		if !p.Usable() {
			continue
		}
		h := p.Timestamp.In(loc).Hour()
		if h >= startHour && h < endHour {
			out = append(out, p)
		}
	}
	return out
}

// TimeRange is a daily window of whole hours, End exclusive
type TimeRange struct {
	StartHour int
	EndHour   int
}

func (tr TimeRange) String() string {
	return fmt.Sprintf("%02d:00-%02d:00", tr.StartHour, tr.EndHour%24)
}

// Presets are the six-hour windows offered by the history view.
var Presets = []TimeRange{{0, 6}, {6, 12}, {12, 18}, {18, 24}}

// ParseTimeRange parses "HH:00-HH:00". An end of 00:00 means midnight.
func ParseTimeRange(s string) (TimeRange, error) {
	from, to, ok := strings.Cut(strings.TrimSpace(s), "-")
	if !ok {
		return TimeRange{}, fmt.Errorf("%w: %q", ErrInvalidTimeRange, s)
	}
	start, err := parseHour(from)
	if err != nil {
		return TimeRange{}, fmt.Errorf("%w: %q: %v", ErrInvalidTimeRange, s, err)
	}
	end, err := parseHour(to)
	if err != nil {
		return TimeRange{}, fmt.Errorf("%w: %q: %v", ErrInvalidTimeRange, s, err)
	}
	if end == 0 {
		end = 24
	}
	if start >= end {
		return TimeRange{}, fmt.Errorf("%w: %q: start must precede end", ErrInvalidTimeRange, s)
	}
	return TimeRange{StartHour: start, EndHour: end}, nil
}

func parseHour(s string) (int, error) {
	hh, mm, hasMinutes := strings.Cut(strings.TrimSpace(s), ":")
	if hasMinutes && mm != "00" {
		return 0, fmt.Errorf("minutes must be 00, got %q", mm)
	}
	h, err := strconv.Atoi(hh)
	if err != nil {
		return 0, err
	}
	if h < 0 || h > 24 {
		return 0, fmt.Errorf("hour %d out of range", h)
	}
	return h, nil
}
