// Package dates turns spoken due-time phrases into timestamps in a fixed zone.
package dates

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	// Embedded zone database so the fixed zone resolves on minimal hosts.
	_ "time/tzdata"
)

// DefaultHour is used when a phrase names a day but no time of day.
const DefaultHour = 18

var (
	todayPattern    = regexp.MustCompile(`\b(today|tonight)\b`)
	tomorrowPattern = regexp.MustCompile(`\btomorrow\b`)
	weekdayPattern  = regexp.MustCompile(`\b(sunday|monday|tuesday|wednesday|thursday|friday|saturday)\b`)
	monthDayPattern = regexp.MustCompile(`\b(january|february|march|april|may|june|july|august|september|october|november|december|jan|feb|mar|apr|jun|jul|aug|sept|sep|oct|nov|dec)\.?\s+(\d{1,2})(?:st|nd|rd|th)?\b`)
	slashPattern    = regexp.MustCompile(`\b(\d{1,2})/(\d{1,2})(?:/(\d{4}|\d{2}))?\b`)
)

var weekdays = map[string]time.Weekday{
	"sunday":    time.Sunday,
	"monday":    time.Monday,
	"tuesday":   time.Tuesday,
	"wednesday": time.Wednesday,
	"thursday":  time.Thursday,
	"friday":    time.Friday,
	"saturday":  time.Saturday,
}

var months = map[string]time.Month{
	"january": time.January, "jan": time.January,
	"february": time.February, "feb": time.February,
	"march": time.March, "mar": time.March,
	"april": time.April, "apr": time.April,
	"may":  time.May,
	"june": time.June, "jun": time.June,
	"july": time.July, "jul": time.July,
	"august": time.August, "aug": time.August,
	"september": time.September, "sept": time.September, "sep": time.September,
	"october": time.October, "oct": time.October,
	"november": time.November, "nov": time.November,
	"december": time.December, "dec": time.December,
}

// Normalizer converts free text to timestamps in one designated zone.
type Normalizer struct {
	loc *time.Location
	now func() time.Time
}

// New creates a Normalizer for loc using the wall clock.
func New(loc *time.Location) *Normalizer {
	return NewWithClock(loc, time.Now)
}

// NewWithClock creates a Normalizer with an injectable clock.
func NewWithClock(loc *time.Location, now func() time.Time) *Normalizer {
	if loc == nil {
		loc = time.UTC
	}
	if now == nil {
		now = time.Now
	}
	return &Normalizer{loc: loc, now: now}
}

// LoadLocation resolves an IANA zone name.
func LoadLocation(name string) (*time.Location, error) {
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("load time zone %q: %w", name, err)
	}
	return loc, nil
}

// Location returns the fixed target zone.
func (n *Normalizer) Location() *time.Location {
	return n.loc
}

// Now returns the current time in the target zone.
func (n *Normalizer) Now() time.Time {
	return n.now().In(n.loc)
}

// Normalize converts a phrase to a timestamp. It never fails: phrases it cannot
// read fall back to tomorrow at the default hour.
func (n *Normalizer) Normalize(text string) time.Time {
	phrase := strings.ToLower(strings.TrimSpace(text))
	now := n.Now()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, n.loc)
	hour, minute, hasTime := ExtractTime(phrase)
	if !hasTime {
		hour, minute = DefaultHour, 0
	}

	switch {
	case todayPattern.MatchString(phrase):
		return n.at(today, hour, minute)
	case tomorrowPattern.MatchString(phrase):
		return n.at(today.AddDate(0, 0, 1), hour, minute)
	}

	if m := weekdayPattern.FindStringSubmatch(phrase); m != nil {
		diff := (int(weekdays[m[1]]) - int(today.Weekday()) + 7) % 7
		if diff == 0 && !hasTime {
			diff = 7
		}
		return n.at(today.AddDate(0, 0, diff), hour, minute)
	}

	if m := monthDayPattern.FindStringSubmatch(phrase); m != nil {
		day, _ := strconv.Atoi(m[2])
		if d, ok := n.date(now.Year(), months[m[1]], day); ok {
			return n.at(d, hour, minute)
		}
	}

	if m := slashPattern.FindStringSubmatch(phrase); m != nil {
		month, _ := strconv.Atoi(m[1])
		day, _ := strconv.Atoi(m[2])
		year := now.Year()
		if m[3] != "" {
			year, _ = strconv.Atoi(m[3])
			if len(m[3]) == 2 {
				year += 2000
			}
		}
		if month >= 1 && month <= 12 {
			if d, ok := n.date(year, time.Month(month), day); ok {
				return n.at(d, hour, minute)
			}
		}
	}

	return n.at(today.AddDate(0, 0, 1), DefaultHour, 0)
}

// NormalizeISO is Normalize rendered as RFC 3339 in the target zone.
func (n *Normalizer) NormalizeISO(text string) string {
	return n.Normalize(text).Format(time.RFC3339)
}

// ParseISO reads an RFC 3339 timestamp, or a zone-less local timestamp which is
// interpreted in the target zone.
func (n *Normalizer) ParseISO(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t.In(n.loc), nil
	}
	for _, layout := range []string{"2006-01-02T15:04:05", "2006-01-02T15:04", "2006-01-02"} {
		if t, err := time.ParseInLocation(layout, value, n.loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", value)
}

func (n *Normalizer) at(day time.Time, hour, minute int) time.Time {
	return time.Date(day.Year(), day.Month(), day.Day(), hour, minute, 0, 0, n.loc)
}

// date builds a calendar date, rejecting overflow such as February 30.
func (n *Normalizer) date(year int, month time.Month, day int) (time.Time, bool) {
	if day < 1 || day > 31 {
		return time.Time{}, false
	}
	d := time.Date(year, month, day, 0, 0, 0, 0, n.loc)
	if d.Month() != month || d.Day() != day {
		return time.Time{}, false
	}
	return d, true
}
