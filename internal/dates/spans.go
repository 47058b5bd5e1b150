package dates

import (
	"regexp"
	"sort"
)

var dayPatterns = []*regexp.Regexp{todayPattern, tomorrowPattern, weekdayPattern, monthDayPattern, slashPattern}

// Spans returns the merged byte ranges of day and time-of-day expressions in
// lower-cased text, in order of appearance.
func Spans(text string) [][2]int {
	var raw [][2]int
	for _, re := range append(append([]*regexp.Regexp{}, dayPatterns...), TimePatterns...) {
		for _, loc := range re.FindAllStringIndex(text, -1) {
			raw = append(raw, [2]int{loc[0], loc[1]})
		}
	}
	if len(raw) == 0 {
		return nil
	}

	sort.Slice(raw, func(i, j int) bool { return raw[i][0] < raw[j][0] })
	merged := [][2]int{raw[0]}
	for _, r := range raw[1:] {
		last := &merged[len(merged)-1]
		if r[0] <= last[1] {
			last[1] = max(last[1], r[1])
			continue
		}
		merged = append(merged, r)
	}
	return merged
}
