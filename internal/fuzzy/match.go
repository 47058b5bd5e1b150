// Package fuzzy resolves a spoken child name against a roster.
package fuzzy

import (
	"strings"

	"github.com/ashureev/voicetask/internal/domain"
)

// MaxDistance is the largest edit distance still considered a candidate.
const MaxDistance = 3

// Result is the outcome of matching one name against a roster.
type Result struct {
	Match       *domain.Child
	IsAmbiguous bool
	Candidates  []domain.Child
}

// Found returns true if a unique roster entry matched.
func (r Result) Found() bool {
	return r.Match != nil
}

// Match resolves input against roster. Rules are tried in order and the first
// one that yields a unique child wins: exact, prefix, substring, then edit distance.
func Match(input string, roster []domain.Child) Result {
	needle := strings.ToLower(strings.TrimSpace(input))
	if needle == "" || len(roster) == 0 {
		return Result{}
	}

	for i := range roster {
		if strings.ToLower(roster[i].Name) == needle {
			return unique(roster[i])
		}
	}

	prefix := filter(roster, func(name string) bool { return strings.HasPrefix(name, needle) })
	if len(prefix) == 1 {
		return unique(prefix[0])
	}

	contains := filter(roster, func(name string) bool { return strings.Contains(name, needle) })
	if len(contains) == 1 {
		return unique(contains[0])
	}

	// Several children share the spoken prefix or fragment ("E" for Emma and Ella).
	if len(prefix) > 1 {
		return Result{IsAmbiguous: true, Candidates: prefix}
	}
	if len(contains) > 1 {
		return Result{IsAmbiguous: true, Candidates: contains}
	}

	best := MaxDistance + 1
	var closest []domain.Child
	for _, c := range roster {
		d := Levenshtein(needle, strings.ToLower(c.Name))
		switch {
		case d > MaxDistance:
			continue
		case d < best:
			best = d
			closest = []domain.Child{c}
		case d == best:
			closest = append(closest, c)
		}
	}

	switch len(closest) {
	case 0:
		return Result{}
	case 1:
		return unique(closest[0])
	default:
		return Result{IsAmbiguous: true, Candidates: closest}
	}
}

func unique(c domain.Child) Result {
	return Result{Match: &c, Candidates: []domain.Child{c}}
}

func filter(roster []domain.Child, keep func(lowerName string) bool) []domain.Child {
	var out []domain.Child
	for _, c := range roster {
		if keep(strings.ToLower(c.Name)) {
			out = append(out, c)
		}
	}
	return out
}

// Levenshtein returns the edit distance between a and b, counted in runes.
func Levenshtein(a, b string) int {
	ra, rb := []rune(a), []rune(b)
	if len(ra) == 0 {
		return len(rb)
	}
	if len(rb) == 0 {
		return len(ra)
	}

	prev := make([]int, len(rb)+1)
	curr := make([]int, len(rb)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(ra); i++ {
		curr[0] = i
		for j := 1; j <= len(rb); j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			curr[j] = min(prev[j]+1, curr[j-1]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}
	return prev[len(rb)]
}

// Question builds the follow-up asked when a name did not resolve uniquely.
func Question(candidates []domain.Child) string {
	switch len(candidates) {
	case 0:
		return "I didn't find any children with that name."
	case 1:
		return "Did you mean " + candidates[0].Name + "?"
	case 2:
		return "Did you mean " + candidates[0].Name + " or " + candidates[1].Name + "?"
	default:
		return "Which child did you mean: " + JoinNames(candidates, "or") + "?"
	}
}

// JoinNames renders names as "A, B, or C" using the given conjunction.
func JoinNames(children []domain.Child, conj string) string {
	names := make([]string, len(children))
	for i, c := range children {
		names[i] = c.Name
	}
	switch len(names) {
	case 0:
		return ""
	case 1:
		return names[0]
	case 2:
		return names[0] + " " + conj + " " + names[1]
	default:
		return strings.Join(names[:len(names)-1], ", ") + ", " + conj + " " + names[len(names)-1]
	}
}
