package dates

import (
	"regexp"
	"strconv"
	"strings"
)

const meridiem = `([ap])\.?\s*m\b\.?`

// Time-of-day patterns in priority order.
var (
	midnightPattern = regexp.MustCompile(`\bmidnight\b`)
	noonPattern     = regexp.MustCompile(`\bnoon\b`)
	decimalPattern  = regexp.MustCompile(`\b(\d{1,2})\.(\d{2})\s*` + meridiem)
	colonPattern    = regexp.MustCompile(`\b(\d{1,2}):(\d{2})(?:\s*` + meridiem + `)?`)
	spacedPattern   = regexp.MustCompile(`\b(\d{1,2})\s+(\d{2})\s*` + meridiem)
	barePattern     = regexp.MustCompile(`\b(\d{1,2})\s*` + meridiem)
)

// TimePatterns lists every time-of-day expression recognized by ExtractTime.
var TimePatterns = []*regexp.Regexp{
	midnightPattern, noonPattern, decimalPattern, colonPattern, spacedPattern, barePattern,
}

// ExtractTime finds a time of day in text and returns it on a 24-hour clock.
func ExtractTime(text string) (hour, minute int, ok bool) {
	text = strings.ToLower(text)
	if midnightPattern.MatchString(text) {
		return 0, 0, true
	}
	if noonPattern.MatchString(text) {
		return 12, 0, true
	}

	if m := decimalPattern.FindStringSubmatch(text); m != nil {
		if h, mi, valid := clock(m[1], m[2], m[3]); valid {
			return h, mi, true
		}
	}
	if m := colonPattern.FindStringSubmatch(text); m != nil {
		if h, mi, valid := clock(m[1], m[2], m[3]); valid {
			return h, mi, true
		}
	}
	if m := spacedPattern.FindStringSubmatch(text); m != nil {
		if h, mi, valid := clock(m[1], m[2], m[3]); valid {
			return h, mi, true
		}
	}
	if m := barePattern.FindStringSubmatch(text); m != nil {
		if h, mi, valid := clock(m[1], "0", m[2]); valid {
			return h, mi, true
		}
	}
	return 0, 0, false
}

// clock validates the parts and converts 12-hour readings to 24-hour.
func clock(hourText, minuteText, mer string) (int, int, bool) {
	h, err := strconv.Atoi(hourText)
	if err != nil {
		return 0, 0, false
	}
	m, err := strconv.Atoi(minuteText)
	if err != nil || m < 0 || m > 59 {
		return 0, 0, false
	}

	switch mer {
	case "":
		if h < 0 || h > 23 {
			return 0, 0, false
		}
		return h, m, true
	case "p":
		if h < 1 || h > 12 {
			return 0, 0, false
		}
		if h != 12 {
			h += 12
		}
	case "a":
		if h < 1 || h > 12 {
			return 0, 0, false
		}
		if h == 12 {
			h = 0
		}
	}
	return h, m, true
}
