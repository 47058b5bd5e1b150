// Package session provides the TTL-bounded in-memory store of dialogue sessions.
package session

import (
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/ashureev/voicetask/internal/domain"
	"github.com/google/uuid"
)

// DefaultTTL bounds a conversation from its creation. Activity never extends it.
const DefaultTTL = 15 * time.Minute

// Store keeps sessions keyed by id with a secondary per-user index.
// Every read treats a session past its expiry as absent and purges it.
// Returned sessions are copies; mutate through Update or Put.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*domain.Session
	byUser   map[string]map[string]struct{}

	locks *keyedMutex
	ttl   time.Duration
	now   func() time.Time
	newID func() string
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the wall clock.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithIDGenerator overrides session id generation.
func WithIDGenerator(gen func() string) Option {
	return func(s *Store) { s.newID = gen }
}

// NewStore creates an empty store whose sessions live for ttl after creation.
func NewStore(ttl time.Duration, opts ...Option) *Store {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	s := &Store{
		sessions: make(map[string]*domain.Session),
		byUser:   make(map[string]map[string]struct{}),
		locks:    newKeyedMutex(),
		ttl:      ttl,
		now:      time.Now,
		newID:    func() string { return uuid.New().String() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// TTL returns the fixed session lifetime.
func (s *Store) TTL() time.Duration {
	return s.ttl
}

// Now returns the store's current time.
func (s *Store) Now() time.Time {
	return s.now()
}

// Lock serializes read-modify-write sequences on one session. Unrelated
// sessions never contend. Call the returned function to release.
func (s *Store) Lock(sessionID string) func() {
	return s.locks.Lock("session:" + sessionID)
}

// Create stores a new in-progress session. An empty sessionID gets a generated one.
func (s *Store) Create(sessionID string, roster []domain.Child, userID string) *domain.Session {
	if sessionID == "" {
		sessionID = s.newID()
	}
	sess := domain.NewSession(sessionID, userID, roster, s.now(), s.ttl)

	s.mu.Lock()
	defer s.mu.Unlock()
	if old, ok := s.sessions[sessionID]; ok {
		s.unindex(old)
	}
	s.sessions[sessionID] = sess
	s.index(sess)
	return sess.Clone()
}

// Start opens a new session for userID after cancelling any in-progress one,
// so a user never has two active dialogues.
func (s *Store) Start(userID string, roster []domain.Child) *domain.Session {
	unlock := s.locks.Lock("user:" + userID)
	defer unlock()

	for _, active := range s.ListActiveByUser(userID) {
		release := s.Lock(active.ID)
		s.Update(active.ID, func(sess *domain.Session) {
			if sess.Active() {
				sess.Status = domain.StatusCancelled
			}
		})
		release()
		slog.Info("Cancelled previous session", "user_id", userID, "session_id", active.ID)
	}
	return s.Create("", roster, userID)
}

// Get returns a copy of the session, or false if it is absent or expired.
func (s *Store) Get(sessionID string) (*domain.Session, bool) {
	s.mu.RLock()
	sess, ok := s.sessions[sessionID]
	expired := ok && sess.Expired(s.now())
	var out *domain.Session
	if ok && !expired {
		out = sess.Clone()
	}
	s.mu.RUnlock()

	if expired {
		s.purge(sessionID)
		return nil, false
	}
	return out, ok
}

// Update applies fn to the stored session and returns the result.
// The session id and owner cannot be changed through fn.
func (s *Store) Update(sessionID string, fn func(*domain.Session)) (*domain.Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[sessionID]
	if !ok {
		return nil, false
	}
	if sess.Expired(s.now()) {
		s.remove(sess)
		return nil, false
	}

	next := sess.Clone()
	fn(next)
	next.ID, next.UserID = sess.ID, sess.UserID
	s.sessions[sessionID] = next
	return next.Clone(), true
}

// Put replaces the stored state of an existing session with next.
func (s *Store) Put(next *domain.Session) bool {
	_, ok := s.Update(next.ID, func(sess *domain.Session) {
		*sess = *next.Clone()
	})
	return ok
}

// Delete removes a session and reports whether it existed.
func (s *Store) Delete(sessionID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[sessionID]
	if !ok {
		return false
	}
	s.remove(sess)
	return true
}

// ListByUser returns the user's live sessions, oldest first.
func (s *Store) ListByUser(userID string) []*domain.Session {
	return s.list(userID, func(*domain.Session) bool { return true })
}

// ListActiveByUser returns the user's in-progress sessions.
func (s *Store) ListActiveByUser(userID string) []*domain.Session {
	return s.list(userID, (*domain.Session).Active)
}

func (s *Store) list(userID string, keep func(*domain.Session) bool) []*domain.Session {
	now := s.now()
	var out, expired []*domain.Session

	s.mu.RLock()
	for id := range s.byUser[userID] {
		sess := s.sessions[id]
		if sess == nil {
			continue
		}
		if sess.Expired(now) {
			expired = append(expired, sess)
			continue
		}
		if keep(sess) {
			out = append(out, sess.Clone())
		}
	}
	s.mu.RUnlock()

	for _, sess := range expired {
		s.purge(sess.ID)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// SweepExpired removes every session past its expiry and returns how many.
// It is safe to run concurrently with other operations.
func (s *Store) SweepExpired() int {
	now := s.now()
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for _, sess := range s.sessions {
		if sess.Expired(now) {
			s.remove(sess)
			removed++
		}
	}
	return removed
}

// Len returns the number of stored sessions, expired ones included.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// purge deletes sessionID if it is still expired once the write lock is held.
func (s *Store) purge(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sess, ok := s.sessions[sessionID]; ok && sess.Expired(s.now()) {
		s.remove(sess)
	}
}

func (s *Store) remove(sess *domain.Session) {
	delete(s.sessions, sess.ID)
	s.unindex(sess)
}

func (s *Store) index(sess *domain.Session) {
	ids, ok := s.byUser[sess.UserID]
	if !ok {
		ids = make(map[string]struct{})
		s.byUser[sess.UserID] = ids
	}
	ids[sess.ID] = struct{}{}
}

func (s *Store) unindex(sess *domain.Session) {
	if ids, ok := s.byUser[sess.UserID]; ok {
		delete(ids, sess.ID)
		if len(ids) == 0 {
			delete(s.byUser, sess.UserID)
		}
	}
}
