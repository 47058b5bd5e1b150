package dialogue

import (
	"fmt"
	"strconv"
	"time"

	"github.com/ashureev/voicetask/internal/dates"
	"github.com/ashureev/voicetask/internal/domain"
	"github.com/ashureev/voicetask/internal/fuzzy"
)

// ReplyType tells the caller whether the dialogue continues.
type ReplyType string

const (
	ReplyFollowup  ReplyType = "followup"
	ReplyConfirmed ReplyType = "confirmed"
	ReplyCancelled ReplyType = "cancelled"
	ReplyIgnored   ReplyType = "ignored"
)

// Fixed prompts.
const (
	PromptTitle     = "What task should I create?"
	PromptDue       = "When is this due?"
	PromptPoints    = "How many points is this worth?"
	PromptWho       = "Who should I assign this to?"
	SpeakCancelled  = "Okay, I cancelled this task."
	SpeakIgnored    = "Turn ignored (out of order)"
	speakNotHeard   = "Sorry, I didn't catch that."
	speakNoChildren = "There are no children on the roster yet."
)

// Reply is what the dialogue says after one turn.
type Reply struct {
	Type     ReplyType
	Speak    string
	Question string
	Result   *domain.TaskPayload
}

// Respond decides the reply for a merged session. delta is the delta that
// produced it and only shapes the wording.
func Respond(sess *domain.Session, delta domain.SlotDelta, norm *dates.Normalizer) Reply {
	if sess.Status == domain.StatusCancelled {
		return Reply{Type: ReplyCancelled, Speak: SpeakCancelled}
	}

	if sess.Slots.UnresolvedChild() {
		q := unresolvedQuestion(sess.Slots.AssignedChildName, sess.Roster)
		return Reply{Type: ReplyFollowup, Speak: q, Question: q}
	}

	if len(sess.Missing) == 0 {
		return confirm(sess, norm)
	}

	q := Prompt(sess.Missing[0], sess.Roster)
	speak := q
	if delta.Intent == domain.IntentNoop {
		speak = speakNotHeard + " " + q
	}
	return Reply{Type: ReplyFollowup, Speak: speak, Question: q}
}

// Prompt returns the fixed question for slot.
func Prompt(slot domain.SlotName, roster []domain.Child) string {
	switch slot {
	case domain.SlotAssignedChild:
		if len(roster) == 0 {
			return "Who is this task for?"
		}
		return "Who is this task for? You can say " + fuzzy.JoinNames(roster, "or") + "."
	case domain.SlotTitle:
		return PromptTitle
	case domain.SlotDue:
		return PromptDue
	case domain.SlotPoints:
		return PromptPoints
	}
	return ""
}

// unresolvedQuestion asks about a spoken name that did not resolve: the
// matcher's own question when several children are close, otherwise the
// full roster.
func unresolvedQuestion(name string, roster []domain.Child) string {
	if r := fuzzy.Match(name, roster); r.IsAmbiguous {
		return fuzzy.Question(r.Candidates)
	}
	if len(roster) == 0 {
		return fmt.Sprintf("I couldn't find %s. %s %s", name, speakNoChildren, PromptWho)
	}
	return fmt.Sprintf("I couldn't find %s. Your children are %s. %s",
		name, fuzzy.JoinNames(roster, "and"), PromptWho)
}

func confirm(sess *domain.Session, norm *dates.Normalizer) Reply {
	due := DueTime(sess.Slots, norm)
	name := sess.Slots.AssignedChildName
	if c, ok := sess.ChildByID(sess.Slots.AssignedChildID); ok {
		name = c.Name
	}

	return Reply{
		Type: ReplyConfirmed,
		Speak: fmt.Sprintf("Added \"%s\" for %s, due %s, for %d points.",
			sess.Slots.Title, name, norm.FormatDue(due), sess.Slots.Points),
		Result: &domain.TaskPayload{
			ChildID: sess.Slots.AssignedChildID,
			Title:   sess.Slots.Title,
			DueAt:   strconv.FormatInt(due.UnixMilli(), 10),
			Points:  sess.Slots.Points,
		},
	}
}

// DueTime returns the due timestamp of complete slots, normalizing the
// spoken phrase when no timestamp was stored.
func DueTime(s domain.Slots, norm *dates.Normalizer) time.Time {
	if s.DueISO != "" {
		if t, err := norm.ParseISO(s.DueISO); err == nil {
			return t
		}
	}
	return norm.Normalize(s.DueText)
}
