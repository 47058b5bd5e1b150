package extract

import (
	"context"
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"github.com/ashureev/voicetask/internal/dates"
	"github.com/ashureev/voicetask/internal/domain"
)

var (
	cancelPattern  = regexp.MustCompile(`\b(cancel|never ?mind|forget it)\b`)
	newTaskPattern = regexp.MustCompile(`\b(new task|start over|another task)\b`)
	revisePattern  = regexp.MustCompile(`\b(actually|instead|change it|make it)\b`)
	pointsPattern  = regexp.MustCompile(`(?:\b(?:for|worth)\s+)?\b(\d{1,5})\s*(?:points?|pts)\b`)
	numberPattern  = regexp.MustCompile(`^(?:for\s+)?(\d{1,5})$`)
	leadingFiller  = regexp.MustCompile(`^(?:(?:please|actually|instead|can|could|you|add|create|make|change|it|to|a|an|the|new|another|task|chore|start|over|assign|give|it's|its|is|for|and|that|this|um|uh|ok|okay)\s+)+`)
	trailingFiller = regexp.MustCompile(`(?:\s+(?:for|by|at|on|due|and|to|is|worth|please|instead|due by))+$`)
	spacePattern   = regexp.MustCompile(`\s+`)
)

// RuleExtractor is a deterministic, dependency-free implementation of the
// extraction contract: cancel words, roster names, "N points", day and
// time phrases, and whatever text remains as the task title.
type RuleExtractor struct{}

// Extract reads one utterance.
func (RuleExtractor) Extract(_ context.Context, req Request) (domain.SlotDelta, error) {
	text := spacePattern.ReplaceAllString(strings.ToLower(strings.TrimSpace(req.Utterance)), " ")
	if text == "" {
		return domain.NoopDelta(), nil
	}
	if cancelPattern.MatchString(text) {
		return domain.SlotDelta{Intent: domain.IntentCancel}, nil
	}

	intent := domain.IntentAnswer
	switch {
	case newTaskPattern.MatchString(text):
		intent = domain.IntentNewTask
	case revisePattern.MatchString(text):
		intent = domain.IntentRevise
	}

	var u domain.SlotUpdates
	masked := []byte(text)
	mask := func(from, to int) {
		for i := from; i < to; i++ {
			masked[i] = ' '
		}
	}

	if m := pointsPattern.FindStringSubmatchIndex(text); m != nil {
		if n, err := strconv.Atoi(text[m[2]:m[3]]); err == nil && n > 0 {
			u.Points = domain.IntPtr(n)
		}
		mask(m[0], m[1])
	} else if req.ExpectedSlot == domain.SlotPoints {
		if m := numberPattern.FindStringSubmatch(text); m != nil {
			if n, err := strconv.Atoi(m[1]); err == nil && n > 0 {
				u.Points = domain.IntPtr(n)
				mask(0, len(text))
			}
		}
	}

	for _, c := range req.Roster {
		name := strings.ToLower(strings.TrimSpace(c.Name))
		if name == "" {
			continue
		}
		re := regexp.MustCompile(`\b` + regexp.QuoteMeta(name) + `\b`)
		if loc := re.FindStringIndex(text); loc != nil {
			u.AssignedChildName = domain.StringPtr(c.Name)
			u.AssignedChildID = domain.StringPtr(c.ID)
			mask(loc[0], loc[1])
			break
		}
	}

	var dueParts []string
	for _, span := range dates.Spans(text) {
		dueParts = append(dueParts, text[span[0]:span[1]])
		mask(span[0], span[1])
	}
	if len(dueParts) > 0 {
		u.DueText = domain.StringPtr(strings.Join(dueParts, " "))
	}

	residual := cleanResidual(string(masked))
	switch {
	case residual == "":
	case u.AssignedChildName == nil && req.ExpectedSlot == domain.SlotAssignedChild && isNameLike(residual):
		// A short answer to "who is this for" that is not on the roster.
		u.AssignedChildName = domain.StringPtr(titleCase(residual))
	case len(residual) >= 2:
		u.Title = domain.StringPtr(residual)
	}

	if u.Empty() && intent != domain.IntentNewTask {
		return domain.NoopDelta(), nil
	}
	return domain.SlotDelta{Intent: intent, SlotUpdates: u}, nil
}

func cleanResidual(s string) string {
	s = strings.TrimSpace(spacePattern.ReplaceAllString(s, " "))
	for {
		next := strings.TrimSpace(leadingFiller.ReplaceAllString(s+" ", ""))
		next = strings.TrimSpace(trailingFiller.ReplaceAllString(next, ""))
		if next == s {
			return s
		}
		s = next
	}
}

func isNameLike(s string) bool {
	words := strings.Fields(s)
	if len(words) == 0 || len(words) > 2 {
		return false
	}
	for _, r := range s {
		if r >= '0' && r <= '9' {
			return false
		}
	}
	return true
}

func titleCase(s string) string {
	words := strings.Fields(s)
	for i, w := range words {
		r := []rune(w)
		r[0] = unicode.ToUpper(r[0])
		words[i] = string(r)
	}
	return strings.Join(words, " ")
}

var _ Extractor = RuleExtractor{}
