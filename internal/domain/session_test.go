package domain

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestNewSession(t *testing.T) {
	now := time.Date(2025, time.September, 17, 10, 0, 0, 0, time.UTC)
	roster := []Child{{ID: "1", Name: "Emma"}}

	s := NewSession("s1", "u1", roster, now, 15*time.Minute)

	if s.Status != StatusInProgress {
		t.Errorf("Expected in_progress, got %s", s.Status)
	}
	if diff := cmp.Diff(CanonicalSlots, s.Missing); diff != "" {
		t.Errorf("missing (-want +got):\n%s", diff)
	}
	if s.ExpectedSlot != SlotAssignedChild {
		t.Errorf("Expected assignedChild to be asked first, got %s", s.ExpectedSlot)
	}
	if s.LastTurnIndex != -1 {
		t.Errorf("Expected no accepted turn, got %d", s.LastTurnIndex)
	}
	if !s.ExpiresAt.Equal(now.Add(15 * time.Minute)) {
		t.Errorf("Unexpected expiry %v", s.ExpiresAt)
	}

	roster[0].Name = "Changed"
	if s.Roster[0].Name != "Emma" {
		t.Error("Expected roster to be snapshotted")
	}
}

func TestSlotsMissing(t *testing.T) {
	tests := []struct {
		name  string
		slots Slots
		want  []SlotName
	}{
		{"empty", Slots{}, CanonicalSlots},
		{"unresolved name", Slots{AssignedChildName: "Zoe", Title: "x", DueText: "today", Points: 1}, []SlotName{SlotAssignedChild}},
		{"due iso only", Slots{AssignedChildID: "1", Title: "x", DueISO: "2025-09-18T18:00:00Z"}, []SlotName{SlotPoints}},
		{"complete", Slots{AssignedChildID: "1", Title: "x", DueText: "today", Points: 5}, []SlotName{}},
	}
	for _, tt := range tests {
		if diff := cmp.Diff(tt.want, tt.slots.Missing()); diff != "" {
			t.Errorf("%s (-want +got):\n%s", tt.name, diff)
		}
	}
}

func TestRecompute_StatusFollowsMissing(t *testing.T) {
	s := NewSession("s1", "u1", nil, time.Now(), time.Minute)
	s.Slots = Slots{AssignedChildID: "1", Title: "x", DueText: "today", Points: 5}
	s.Recompute()
	if s.Status != StatusReadyToCreate || s.ExpectedSlot != "" {
		t.Errorf("Expected ready_to_create with nothing expected, got %s %q", s.Status, s.ExpectedSlot)
	}

	s.Slots.Points = 0
	s.Recompute()
	if s.Status != StatusInProgress {
		t.Errorf("Expected in_progress again, got %s", s.Status)
	}

	s.Status = StatusCancelled
	s.Recompute()
	if s.Status != StatusCancelled {
		t.Errorf("Expected terminal status kept, got %s", s.Status)
	}
}

func TestSessionExpired(t *testing.T) {
	now := time.Now()
	s := NewSession("s1", "u1", nil, now, time.Minute)
	if s.Expired(now) {
		t.Error("Expected fresh session to be live")
	}
	if !s.Expired(now.Add(time.Minute)) {
		t.Error("Expected session expired at its deadline")
	}
}

func TestClone_DoesNotAlias(t *testing.T) {
	s := NewSession("s1", "u1", []Child{{ID: "1", Name: "Emma"}}, time.Now(), time.Minute)
	c := s.Clone()
	c.Roster[0].Name = "Other"
	c.Missing[0] = SlotPoints
	if s.Roster[0].Name != "Emma" || s.Missing[0] != SlotAssignedChild {
		t.Error("Expected clone to own its slices")
	}
}

func TestIntentValid(t *testing.T) {
	for _, i := range []Intent{IntentAnswer, IntentRevise, IntentNewTask, IntentCancel, IntentNoop} {
		if !i.Valid() {
			t.Errorf("Expected %s valid", i)
		}
	}
	if Intent("dance").Valid() {
		t.Error("Expected unknown intent invalid")
	}
}
