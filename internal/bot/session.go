package bot

import (
	"sync"
	"time"

	"github.com/okian/steamwatch/pkg/clock"
)

// DefaultSessionTTL bounds how long an unfinished add flow is remembered.
const DefaultSessionTTL = 10 * time.Minute

// Session is an add flow in progress for one watcher.
type Session struct {
	AccountID string // empty until a link was received
	ExpiresAt time.Time
}

// Sessions is the per-watcher table of add flows. Entries expire after the
// TTL; expired entries are dropped on access and by Sweep.
type Sessions struct {
	mu    sync.Mutex
	ttl   time.Duration
	clock clock.Clock
	m     map[int64]Session
}

// NewSessions creates an empty table.
func NewSessions(ttl time.Duration, c clock.Clock) *Sessions {
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	if c == nil {
		c = clock.Real()
	}
	return &Sessions{ttl: ttl, clock: c, m: make(map[int64]Session)}
}

// Open starts (or restarts) a flow without an account.
func (s *Sessions) Open(watcherID int64) {
	s.Put(watcherID, "")
}

// Put stores accountID for watcherID and refreshes the expiry.
func (s *Sessions) Put(watcherID int64, accountID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.m[watcherID] = Session{AccountID: accountID, ExpiresAt: s.clock.Now().Add(s.ttl)}
}

// Get returns the live session of watcherID.
func (s *Sessions) Get(watcherID int64) (Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.m[watcherID]
	if !ok {
		return Session{}, false
	}
	if !s.clock.Now().Before(sess.ExpiresAt) {
		delete(s.m, watcherID)
		return Session{}, false
	}
	return sess, true
}

// Drop forgets the session of watcherID.
func (s *Sessions) Drop(watcherID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.m, watcherID)
}

// Sweep removes expired sessions and returns how many were removed.
func (s *Sessions) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.clock.Now()
	n := 0
	for id, sess := range s.m {
		if !now.Before(sess.ExpiresAt) {
			delete(s.m, id)
			n++
		}
	}
	return n
}

// Len returns the number of stored sessions, live or not yet swept.
func (s *Sessions) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.m)
}
