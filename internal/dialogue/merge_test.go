package dialogue

import (
	"testing"
	"time"

	"github.com/ashureev/voicetask/internal/dates"
	"github.com/ashureev/voicetask/internal/domain"
	"github.com/google/go-cmp/cmp"
)

var testRoster = []domain.Child{
	{ID: "1", Name: "Emma"},
	{ID: "2", Name: "Emily"},
	{ID: "3", Name: "Liam"},
}

// wednesday is Wed Sep 17 2025 10:00 in New York.
func wednesday(t *testing.T) time.Time {
	t.Helper()
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Fatalf("load location: %v", err)
	}
	return time.Date(2025, time.September, 17, 10, 0, 0, 0, loc)
}

func testNormalizer(t *testing.T) *dates.Normalizer {
	t.Helper()
	now := wednesday(t)
	return dates.NewWithClock(now.Location(), func() time.Time { return now })
}

func newTestSession(t *testing.T, roster []domain.Child) *domain.Session {
	t.Helper()
	return domain.NewSession("s1", "u1", roster, wednesday(t), 15*time.Minute)
}

func answer(u domain.SlotUpdates) domain.SlotDelta {
	return domain.SlotDelta{Intent: domain.IntentAnswer, SlotUpdates: u}
}

func checkInvariants(t *testing.T, sess *domain.Session) {
	t.Helper()
	if diff := cmp.Diff(sess.Slots.Missing(), sess.Missing); diff != "" {
		t.Errorf("missing out of sync with slots (-want +got):\n%s", diff)
	}
	if (sess.Status == domain.StatusReadyToCreate) != (len(sess.Missing) == 0) {
		t.Errorf("status %q inconsistent with missing %v", sess.Status, sess.Missing)
	}
	want := domain.SlotName("")
	if len(sess.Missing) > 0 {
		want = sess.Missing[0]
	}
	if sess.ExpectedSlot != want {
		t.Errorf("Expected expectedSlot %q, got %q", want, sess.ExpectedSlot)
	}
}

func TestMerge_OverlayKeepsAbsentFields(t *testing.T) {
	norm := testNormalizer(t)
	sess := newTestSession(t, testRoster)
	sess.Slots = domain.Slots{AssignedChildID: "1", AssignedChildName: "Emma", Title: "dishes"}

	next := Merge(sess, answer(domain.SlotUpdates{Points: domain.IntPtr(5)}), norm)

	want := domain.Slots{AssignedChildID: "1", AssignedChildName: "Emma", Title: "dishes", Points: 5}
	if diff := cmp.Diff(want, next.Slots); diff != "" {
		t.Errorf("slots mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]domain.SlotName{domain.SlotDue}, next.Missing); diff != "" {
		t.Errorf("missing mismatch (-want +got):\n%s", diff)
	}
	checkInvariants(t, next)
}

func TestMerge_DoesNotModifyInput(t *testing.T) {
	sess := newTestSession(t, testRoster)
	before := sess.Clone()

	Merge(sess, answer(domain.SlotUpdates{Title: domain.StringPtr("dishes")}), testNormalizer(t))

	if diff := cmp.Diff(before, sess); diff != "" {
		t.Errorf("input session changed (-before +after):\n%s", diff)
	}
}

func TestMerge_InvariantsHoldAcrossDeltas(t *testing.T) {
	norm := testNormalizer(t)
	deltas := []domain.SlotDelta{
		answer(domain.SlotUpdates{AssignedChildName: domain.StringPtr("liam")}),
		answer(domain.SlotUpdates{Title: domain.StringPtr("  ")}),
		answer(domain.SlotUpdates{Title: domain.StringPtr("feed the dog")}),
		answer(domain.SlotUpdates{Points: domain.IntPtr(0)}),
		domain.NoopDelta(),
		answer(domain.SlotUpdates{DueText: domain.StringPtr("friday at 5 pm")}),
		{Intent: domain.IntentRevise, SlotUpdates: domain.SlotUpdates{Points: domain.IntPtr(10)}},
	}

	sess := newTestSession(t, testRoster)
	checkInvariants(t, sess)
	for _, d := range deltas {
		sess = Merge(sess, d, norm)
		checkInvariants(t, sess)
	}
	if sess.Status != domain.StatusReadyToCreate {
		t.Errorf("Expected ready_to_create, got %q", sess.Status)
	}
}

func TestMerge_Idempotent(t *testing.T) {
	norm := testNormalizer(t)
	delta := answer(domain.SlotUpdates{
		AssignedChildName: domain.StringPtr("Emma"),
		Title:             domain.StringPtr("clean room"),
		DueText:           domain.StringPtr("tomorrow"),
	})

	once := Merge(newTestSession(t, testRoster), delta, norm)
	twice := Merge(once, delta, norm)

	if diff := cmp.Diff(once.Slots, twice.Slots); diff != "" {
		t.Errorf("second merge changed slots (-once +twice):\n%s", diff)
	}
	if diff := cmp.Diff(once.Missing, twice.Missing); diff != "" {
		t.Errorf("second merge changed missing (-once +twice):\n%s", diff)
	}
}

func TestMerge_ResolvesSpokenName(t *testing.T) {
	next := Merge(newTestSession(t, testRoster), answer(domain.SlotUpdates{
		AssignedChildName: domain.StringPtr("emmy"),
	}), testNormalizer(t))

	if next.Slots.AssignedChildID != "1" || next.Slots.AssignedChildName != "Emma" {
		t.Errorf("Expected Emma (1), got %q (%q)", next.Slots.AssignedChildName, next.Slots.AssignedChildID)
	}
	checkInvariants(t, next)
}

func TestMerge_IDBringsRosterName(t *testing.T) {
	next := Merge(newTestSession(t, testRoster), answer(domain.SlotUpdates{
		AssignedChildID:   domain.StringPtr("3"),
		AssignedChildName: domain.StringPtr("lee um"),
	}), testNormalizer(t))

	if next.Slots.AssignedChildName != "Liam" {
		t.Errorf("Expected roster name Liam, got %q", next.Slots.AssignedChildName)
	}
}

func TestMerge_UnresolvedNameStaysMissing(t *testing.T) {
	next := Merge(newTestSession(t, testRoster), answer(domain.SlotUpdates{
		AssignedChildName: domain.StringPtr("Zoe"),
		Title:             domain.StringPtr("homework"),
	}), testNormalizer(t))

	if !next.Slots.UnresolvedChild() {
		t.Fatalf("Expected unresolved child, got %+v", next.Slots)
	}
	if next.ExpectedSlot != domain.SlotAssignedChild {
		t.Errorf("Expected assignedChild to be expected, got %q", next.ExpectedSlot)
	}
	if next.Status != domain.StatusInProgress {
		t.Errorf("Expected in_progress, got %q", next.Status)
	}
	checkInvariants(t, next)
}

func TestMerge_AmbiguousNameStaysUnresolved(t *testing.T) {
	next := Merge(newTestSession(t, testRoster), answer(domain.SlotUpdates{
		AssignedChildName: domain.StringPtr("Em"),
	}), testNormalizer(t))

	if next.Slots.AssignedChildID != "" {
		t.Errorf("Expected no id for ambiguous name, got %q", next.Slots.AssignedChildID)
	}
	if next.Slots.AssignedChildName != "Em" {
		t.Errorf("Expected spoken name kept, got %q", next.Slots.AssignedChildName)
	}
}

func TestMerge_SwitchingChildClearsSlots(t *testing.T) {
	sess := newTestSession(t, testRoster)
	sess.Slots = domain.Slots{AssignedChildID: "1", AssignedChildName: "Emma", Title: "dishes", Points: 5}
	sess.Recompute()

	next := Merge(sess, answer(domain.SlotUpdates{AssignedChildName: domain.StringPtr("Liam")}), testNormalizer(t))

	want := domain.Slots{AssignedChildID: "3", AssignedChildName: "Liam"}
	if diff := cmp.Diff(want, next.Slots); diff != "" {
		t.Errorf("slots mismatch (-want +got):\n%s", diff)
	}
	checkInvariants(t, next)
}

func TestMerge_ReplacingUnresolvedNameClearsSlots(t *testing.T) {
	norm := testNormalizer(t)
	sess := Merge(newTestSession(t, testRoster), answer(domain.SlotUpdates{
		AssignedChildName: domain.StringPtr("Zoe"),
		Title:             domain.StringPtr("clean room"),
		DueText:           domain.StringPtr("tomorrow"),
		Points:            domain.IntPtr(20),
	}), norm)

	next := Merge(sess, answer(domain.SlotUpdates{AssignedChildName: domain.StringPtr("Emma")}), norm)

	want := domain.Slots{AssignedChildID: "1", AssignedChildName: "Emma"}
	if diff := cmp.Diff(want, next.Slots); diff != "" {
		t.Errorf("slots mismatch (-want +got):\n%s", diff)
	}
	if next.Status != domain.StatusInProgress || next.ExpectedSlot != domain.SlotTitle {
		t.Errorf("Expected title to be asked next, got status %q expected %q", next.Status, next.ExpectedSlot)
	}
	checkInvariants(t, next)

	same := Merge(sess, answer(domain.SlotUpdates{AssignedChildName: domain.StringPtr("zoe")}), norm)
	if same.Slots.Title != "clean room" || same.Slots.Points != 20 {
		t.Errorf("Expected slots kept when repeating the same name, got %+v", same.Slots)
	}
}

func TestMerge_SameChildKeepsSlots(t *testing.T) {
	sess := newTestSession(t, testRoster)
	sess.Slots = domain.Slots{AssignedChildID: "1", AssignedChildName: "Emma", Title: "dishes"}
	sess.Recompute()

	for _, u := range []domain.SlotUpdates{
		{AssignedChildName: domain.StringPtr("EMMA")},
		{AssignedChildID: domain.StringPtr("1")},
	} {
		next := Merge(sess, answer(u), testNormalizer(t))
		if next.Slots.Title != "dishes" {
			t.Errorf("Expected title kept for %+v, got %q", u, next.Slots.Title)
		}
	}
}

func TestMerge_Cancel(t *testing.T) {
	sess := newTestSession(t, testRoster)
	sess.Slots.Title = "dishes"
	sess.Recompute()

	next := Merge(sess, domain.SlotDelta{
		Intent:      domain.IntentCancel,
		SlotUpdates: domain.SlotUpdates{Title: domain.StringPtr("ignored")},
	}, testNormalizer(t))

	if next.Status != domain.StatusCancelled {
		t.Errorf("Expected cancelled, got %q", next.Status)
	}
	if next.Slots.Title != "dishes" {
		t.Errorf("Expected slots untouched, got %+v", next.Slots)
	}
}

func TestMerge_NewTaskClearsFirst(t *testing.T) {
	sess := newTestSession(t, testRoster)
	sess.Slots = domain.Slots{AssignedChildID: "1", AssignedChildName: "Emma", Title: "dishes", Points: 5}
	sess.Recompute()

	next := Merge(sess, domain.SlotDelta{
		Intent:      domain.IntentNewTask,
		SlotUpdates: domain.SlotUpdates{Title: domain.StringPtr("laundry")},
	}, testNormalizer(t))

	if diff := cmp.Diff(domain.Slots{Title: "laundry"}, next.Slots); diff != "" {
		t.Errorf("slots mismatch (-want +got):\n%s", diff)
	}
	checkInvariants(t, next)
}

func TestMerge_NoopAndUnknownIntentChangeNothing(t *testing.T) {
	sess := newTestSession(t, testRoster)
	u := domain.SlotUpdates{Title: domain.StringPtr("dishes")}

	for _, intent := range []domain.Intent{domain.IntentNoop, "dance"} {
		next := Merge(sess, domain.SlotDelta{Intent: intent, SlotUpdates: u}, testNormalizer(t))
		if diff := cmp.Diff(sess.Slots, next.Slots); diff != "" {
			t.Errorf("intent %q changed slots (-want +got):\n%s", intent, diff)
		}
	}
}

func TestMerge_DueTextIsNormalized(t *testing.T) {
	next := Merge(newTestSession(t, testRoster), answer(domain.SlotUpdates{
		DueText: domain.StringPtr("tomorrow 5pm"),
	}), testNormalizer(t))

	if next.Slots.DueISO != "2025-09-18T17:00:00-04:00" {
		t.Errorf("Expected tomorrow 17:00, got %q", next.Slots.DueISO)
	}
}

func TestMerge_DueISOReplacesText(t *testing.T) {
	sess := newTestSession(t, testRoster)
	sess.Slots.DueText = "friday"

	next := Merge(sess, answer(domain.SlotUpdates{DueISO: domain.StringPtr("2025-09-20T09:30")}), testNormalizer(t))

	if next.Slots.DueText != "" || next.Slots.DueISO != "2025-09-20T09:30:00-04:00" {
		t.Errorf("Unexpected due slots %+v", next.Slots)
	}
}

func TestValidate(t *testing.T) {
	got := Validate(domain.SlotUpdates{
		AssignedChildID:   domain.StringPtr("99"),
		AssignedChildName: domain.StringPtr("  Emma "),
		Title:             domain.StringPtr(" "),
		DueText:           domain.StringPtr(" friday "),
		DueISO:            domain.StringPtr("next week-ish"),
		Points:            domain.IntPtr(-3),
	}, testRoster, testNormalizer(t))

	want := domain.SlotUpdates{
		AssignedChildName: domain.StringPtr("Emma"),
		DueText:           domain.StringPtr("friday"),
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("validated updates mismatch (-want +got):\n%s", diff)
	}
}
