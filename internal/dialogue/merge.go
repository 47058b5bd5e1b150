// Package dialogue turns utterances into a completed task: it guards turn
// order, merges extracted deltas into session state and decides what to say.
package dialogue

import (
	"strings"
	"time"

	"github.com/ashureev/voicetask/internal/dates"
	"github.com/ashureev/voicetask/internal/domain"
	"github.com/ashureev/voicetask/internal/fuzzy"
)

// Merge applies delta to sess and returns the resulting session. sess is not
// modified. Fields present in the delta replace stored values; absent fields
// are kept.
//
// A cancel intent only changes the status. A new_task intent clears the slots
// before applying its updates. Naming a different child than the one already
// stored also clears the slots.
func Merge(sess *domain.Session, delta domain.SlotDelta, norm *dates.Normalizer) *domain.Session {
	next := sess.Clone()

	switch delta.Intent {
	case domain.IntentCancel:
		next.Status = domain.StatusCancelled
		return next
	case domain.IntentAnswer, domain.IntentRevise:
	case domain.IntentNewTask:
		next.Slots = domain.Slots{}
	default:
		next.Recompute()
		return next
	}

	u := Validate(delta.SlotUpdates, next.Roster, norm)
	childID, childName, hasChild := resolveChild(u, next.Roster)
	if hasChild && switchesChild(next.Slots, childID, childName) {
		next.Slots = domain.Slots{}
	}

	if hasChild {
		next.Slots.AssignedChildID = childID
		next.Slots.AssignedChildName = childName
	}
	if u.Title != nil {
		next.Slots.Title = *u.Title
	}
	switch {
	case u.DueText != nil && u.DueISO != nil:
		next.Slots.DueText, next.Slots.DueISO = *u.DueText, *u.DueISO
	case u.DueText != nil:
		next.Slots.DueText = *u.DueText
		next.Slots.DueISO = ""
		if norm != nil {
			next.Slots.DueISO = norm.NormalizeISO(*u.DueText)
		}
	case u.DueISO != nil:
		next.Slots.DueText, next.Slots.DueISO = "", *u.DueISO
	}
	if u.Points != nil {
		next.Slots.Points = *u.Points
	}

	next.Recompute()
	return next
}

// Validate returns the canonical form of u: strings trimmed, empty strings
// and non-positive points dropped, ids outside roster dropped and dueIso
// values that do not parse dropped. Valid dueIso values are rewritten as
// RFC 3339 in the normalizer's zone.
func Validate(u domain.SlotUpdates, roster []domain.Child, norm *dates.Normalizer) domain.SlotUpdates {
	out := domain.SlotUpdates{
		AssignedChildID:   trimmed(u.AssignedChildID),
		AssignedChildName: trimmed(u.AssignedChildName),
		Title:             trimmed(u.Title),
		DueText:           trimmed(u.DueText),
		DueISO:            trimmed(u.DueISO),
	}
	if u.Points != nil && *u.Points > 0 {
		out.Points = domain.IntPtr(*u.Points)
	}
	if out.AssignedChildID != nil {
		if _, ok := childByID(roster, *out.AssignedChildID); !ok {
			out.AssignedChildID = nil
		}
	}
	if out.DueISO != nil {
		if norm == nil {
			if _, err := time.Parse(time.RFC3339, *out.DueISO); err != nil {
				out.DueISO = nil
			}
		} else if due, err := norm.ParseISO(*out.DueISO); err != nil {
			out.DueISO = nil
		} else {
			out.DueISO = domain.StringPtr(due.Format(time.RFC3339))
		}
	}
	return out
}

// resolveChild works out which child the updates name. A roster id wins and
// brings its canonical name; otherwise a spoken name is matched against the
// roster and kept as spoken when no unique match exists.
func resolveChild(u domain.SlotUpdates, roster []domain.Child) (id, name string, ok bool) {
	if u.AssignedChildID != nil {
		c, _ := childByID(roster, *u.AssignedChildID)
		return c.ID, c.Name, true
	}
	if u.AssignedChildName == nil {
		return "", "", false
	}
	if r := fuzzy.Match(*u.AssignedChildName, roster); r.Found() {
		return r.Match.ID, r.Match.Name, true
	}
	return "", *u.AssignedChildName, true
}

// switchesChild reports whether the incoming child differs from the stored
// one, resolved or not. The same roster id or a case-insensitively equal name
// is not a switch.
func switchesChild(cur domain.Slots, id, name string) bool {
	if cur.AssignedChildID == "" && cur.AssignedChildName == "" {
		return false
	}
	if id != "" && id == cur.AssignedChildID {
		return false
	}
	return !strings.EqualFold(name, cur.AssignedChildName)
}

func trimmed(p *string) *string {
	if p == nil {
		return nil
	}
	v := strings.TrimSpace(*p)
	if v == "" {
		return nil
	}
	return &v
}

func childByID(roster []domain.Child, id string) (domain.Child, bool) {
	for _, c := range roster {
		if c.ID == id {
			return c, true
		}
	}
	return domain.Child{}, false
}
