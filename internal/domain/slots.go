package domain

// SlotName identifies one required field of the task schema.
type SlotName string

const (
	SlotAssignedChild SlotName = "assignedChild"
	SlotTitle         SlotName = "title"
	SlotDue           SlotName = "due"
	SlotPoints        SlotName = "points"
)

// CanonicalSlots is the fixed order in which missing slots are reported and asked.
var CanonicalSlots = []SlotName{SlotAssignedChild, SlotTitle, SlotDue, SlotPoints}

// Slots is the partially filled task record. Zero values mean unset.
type Slots struct {
	AssignedChildID   string `json:"assignedChildId,omitempty"`
	AssignedChildName string `json:"assignedChildName,omitempty"`
	Title             string `json:"title,omitempty"`
	DueText           string `json:"dueText,omitempty"`
	DueISO            string `json:"dueIso,omitempty"`
	Points            int    `json:"points,omitempty"`
}

// Missing returns the unsatisfied slots in canonical order.
//
// A child name without an id is an unresolved reference and does not satisfy
// the assignedChild slot.
func (s Slots) Missing() []SlotName {
	missing := make([]SlotName, 0, len(CanonicalSlots))
	if s.AssignedChildID == "" {
		missing = append(missing, SlotAssignedChild)
	}
	if s.Title == "" {
		missing = append(missing, SlotTitle)
	}
	if s.DueISO == "" && s.DueText == "" {
		missing = append(missing, SlotDue)
	}
	if s.Points <= 0 {
		missing = append(missing, SlotPoints)
	}
	return missing
}

// UnresolvedChild reports whether a spoken child name is held without a roster match.
func (s Slots) UnresolvedChild() bool {
	return s.AssignedChildName != "" && s.AssignedChildID == ""
}

// SlotUpdates is the partial record carried by a delta. Nil means absent.
type SlotUpdates struct {
	AssignedChildID   *string `json:"assignedChildId,omitempty"`
	AssignedChildName *string `json:"assignedChildName,omitempty"`
	Title             *string `json:"title,omitempty"`
	DueText           *string `json:"dueText,omitempty"`
	DueISO            *string `json:"dueIso,omitempty"`
	Points            *int    `json:"points,omitempty"`
}

// Empty returns true if no field is present.
func (u SlotUpdates) Empty() bool {
	return u.AssignedChildID == nil && u.AssignedChildName == nil && u.Title == nil &&
		u.DueText == nil && u.DueISO == nil && u.Points == nil
}

// Intent classifies what an utterance is trying to do.
type Intent string

const (
	IntentAnswer  Intent = "answer"
	IntentRevise  Intent = "revise"
	IntentNewTask Intent = "new_task"
	IntentCancel  Intent = "cancel"
	IntentNoop    Intent = "noop"
)

// Valid returns true for the known intents.
func (i Intent) Valid() bool {
	switch i {
	case IntentAnswer, IntentRevise, IntentNewTask, IntentCancel, IntentNoop:
		return true
	}
	return false
}

// SlotDelta is the structured update extracted from a single utterance.
type SlotDelta struct {
	Intent      Intent      `json:"intent"`
	SlotUpdates SlotUpdates `json:"slot_updates"`
	Ambiguous   []string    `json:"ambiguous,omitempty"`
	Notes       string      `json:"notes,omitempty"`
}

// NoopDelta is the fallback used when extraction fails.
func NoopDelta() SlotDelta {
	return SlotDelta{Intent: IntentNoop}
}

// StringPtr and IntPtr help build SlotUpdates literals.
func StringPtr(v string) *string { return &v }

func IntPtr(v int) *int { return &v }
