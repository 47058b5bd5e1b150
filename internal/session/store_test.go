package session

import (
	"context"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/ashureev/voicetask/internal/domain"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 9, 17, 10, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

var roster = []domain.Child{{ID: "1", Name: "Emma"}}

func TestStore_CreateAndGet(t *testing.T) {
	clock := newFakeClock()
	s := NewStore(15*time.Minute, WithClock(clock.Now))

	created := s.Create("sess-1", roster, "user-1")
	if created.Status != domain.StatusInProgress {
		t.Errorf("Expected in_progress, got %s", created.Status)
	}
	if created.LastTurnIndex != -1 {
		t.Errorf("Expected lastTurnIndex -1, got %d", created.LastTurnIndex)
	}
	if len(created.Missing) != 4 || created.ExpectedSlot != domain.SlotAssignedChild {
		t.Errorf("Expected all slots missing, got %v (expected %q)", created.Missing, created.ExpectedSlot)
	}
	if !created.ExpiresAt.Equal(clock.Now().Add(15 * time.Minute)) {
		t.Errorf("Unexpected expiry %s", created.ExpiresAt)
	}

	got, ok := s.Get("sess-1")
	if !ok {
		t.Fatal("Expected session to be found")
	}
	if got.UserID != "user-1" || len(got.Roster) != 1 {
		t.Errorf("Unexpected session %+v", got)
	}
}

func TestStore_GeneratesIDs(t *testing.T) {
	n := 0
	s := NewStore(time.Minute, WithIDGenerator(func() string {
		n++
		return "gen-" + strconv.Itoa(n)
	}))

	if got := s.Create("", nil, "u").ID; got != "gen-1" {
		t.Errorf("Expected gen-1, got %s", got)
	}
}

func TestStore_ReturnsCopies(t *testing.T) {
	s := NewStore(time.Minute)
	created := s.Create("sess-1", roster, "user-1")
	created.Roster[0].Name = "Mutated"
	created.Slots.Title = "mutated"

	got, _ := s.Get("sess-1")
	if got.Roster[0].Name != "Emma" || got.Slots.Title != "" {
		t.Errorf("Stored session was aliased: %+v", got)
	}
}

func TestStore_ExpiredSessionIsAbsent(t *testing.T) {
	clock := newFakeClock()
	s := NewStore(15*time.Minute, WithClock(clock.Now))
	s.Create("sess-1", roster, "user-1")

	clock.Advance(14 * time.Minute)
	if _, ok := s.Get("sess-1"); !ok {
		t.Fatal("Expected session before expiry")
	}

	// Activity does not extend the TTL.
	s.Update("sess-1", func(sess *domain.Session) { sess.LastTurnIndex = 0 })

	clock.Advance(time.Minute)
	if _, ok := s.Get("sess-1"); ok {
		t.Fatal("Expected session to be expired")
	}
	if s.Len() != 0 {
		t.Errorf("Expected expired session to be purged on read, len=%d", s.Len())
	}
	if _, ok := s.Update("sess-1", func(*domain.Session) {}); ok {
		t.Error("Expected update of expired session to fail")
	}
}

func TestStore_Update(t *testing.T) {
	s := NewStore(time.Minute)
	s.Create("sess-1", roster, "user-1")

	updated, ok := s.Update("sess-1", func(sess *domain.Session) {
		sess.ID = "hijack"
		sess.UserID = "other"
		sess.LastTurnIndex = 3
		sess.LastTurnID = "t-3"
	})
	if !ok {
		t.Fatal("Expected update to succeed")
	}
	if updated.ID != "sess-1" || updated.UserID != "user-1" {
		t.Errorf("Update changed identity: %+v", updated)
	}
	if updated.LastTurnIndex != 3 || updated.LastTurnID != "t-3" {
		t.Errorf("Update not applied: %+v", updated)
	}

	if _, ok := s.Update("missing", func(*domain.Session) {}); ok {
		t.Error("Expected update of unknown session to fail")
	}
}

func TestStore_Put(t *testing.T) {
	s := NewStore(time.Minute)
	sess := s.Create("sess-1", roster, "user-1")
	sess.Slots.Title = "clean room"
	sess.Recompute()

	if !s.Put(sess) {
		t.Fatal("Expected put to succeed")
	}
	got, _ := s.Get("sess-1")
	if got.Slots.Title != "clean room" || got.ExpectedSlot != domain.SlotAssignedChild {
		t.Errorf("Unexpected stored state %+v", got)
	}
	if s.Put(&domain.Session{ID: "unknown"}) {
		t.Error("Expected put of unknown session to fail")
	}
}

func TestStore_Delete(t *testing.T) {
	s := NewStore(time.Minute)
	s.Create("sess-1", roster, "user-1")

	if !s.Delete("sess-1") {
		t.Error("Expected delete to report true")
	}
	if s.Delete("sess-1") {
		t.Error("Expected second delete to report false")
	}
	if got := s.ListByUser("user-1"); len(got) != 0 {
		t.Errorf("Expected user index to be cleared, got %d", len(got))
	}
}

func TestStore_ListByUser(t *testing.T) {
	clock := newFakeClock()
	s := NewStore(time.Hour, WithClock(clock.Now))

	s.Create("a", roster, "user-1")
	clock.Advance(time.Second)
	s.Create("b", roster, "user-1")
	s.Create("c", roster, "user-2")
	s.Update("a", func(sess *domain.Session) { sess.Status = domain.StatusCancelled })

	all := s.ListByUser("user-1")
	if len(all) != 2 || all[0].ID != "a" || all[1].ID != "b" {
		t.Fatalf("Unexpected sessions %+v", all)
	}

	active := s.ListActiveByUser("user-1")
	if len(active) != 1 || active[0].ID != "b" {
		t.Errorf("Unexpected active sessions %+v", active)
	}
}

func TestStore_StartCancelsPreviousSession(t *testing.T) {
	s := NewStore(time.Hour)
	first := s.Start("user-1", roster)
	second := s.Start("user-1", roster)

	if first.ID == second.ID {
		t.Fatal("Expected a new session id")
	}
	old, _ := s.Get(first.ID)
	if old.Status != domain.StatusCancelled {
		t.Errorf("Expected previous session cancelled, got %s", old.Status)
	}
	active := s.ListActiveByUser("user-1")
	if len(active) != 1 || active[0].ID != second.ID {
		t.Errorf("Expected exactly the new session active, got %+v", active)
	}
}

func TestStore_SweepExpired(t *testing.T) {
	clock := newFakeClock()
	s := NewStore(10*time.Minute, WithClock(clock.Now))
	s.Create("old", roster, "user-1")
	clock.Advance(5 * time.Minute)
	s.Create("new", roster, "user-1")
	clock.Advance(6 * time.Minute)

	if removed := s.SweepExpired(); removed != 1 {
		t.Errorf("Expected 1 removed, got %d", removed)
	}
	if removed := s.SweepExpired(); removed != 0 {
		t.Errorf("Expected sweep to be idempotent, got %d", removed)
	}
	if _, ok := s.Get("new"); !ok {
		t.Error("Expected unexpired session to survive the sweep")
	}
}

func TestStore_LockSerializesPerSession(t *testing.T) {
	s := NewStore(time.Minute)
	s.Create("sess-1", roster, "user-1")

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := s.Lock("sess-1")
			defer unlock()
			cur, _ := s.Get("sess-1")
			s.Update("sess-1", func(sess *domain.Session) { sess.LastTurnIndex = cur.LastTurnIndex + 1 })
		}()
	}
	wg.Wait()

	got, _ := s.Get("sess-1")
	if got.LastTurnIndex != 49 {
		t.Errorf("Expected 50 serialized increments from -1, got %d", got.LastTurnIndex)
	}
	if n := s.locks.size(); n != 0 {
		t.Errorf("Expected released locks to be forgotten, %d remain", n)
	}
}

type fakePruner struct {
	mu    sync.Mutex
	calls int
}

func (p *fakePruner) PruneTurns(_ context.Context, _ time.Duration) (int64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	return 1, nil
}

func (p *fakePruner) Calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

func TestStartTTLWorker(t *testing.T) {
	clock := newFakeClock()
	s := NewStore(time.Minute, WithClock(clock.Now))
	s.Create("sess-1", roster, "user-1")
	clock.Advance(2 * time.Minute)

	pruner := &fakePruner{}
	ctx, cancel := context.WithCancel(context.Background())
	done := StartTTLWorker(ctx, s, SweepConfig{
		Interval:      5 * time.Millisecond,
		TurnRetention: time.Hour,
		Pruner:        pruner,
	})

	deadline := time.Now().Add(2 * time.Second)
	for (s.Len() != 0 || pruner.Calls() == 0) && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	<-done

	if s.Len() != 0 {
		t.Errorf("Expected worker to purge expired session, len=%d", s.Len())
	}
	if pruner.Calls() == 0 {
		t.Error("Expected worker to prune the turn log")
	}
}
