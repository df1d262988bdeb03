package repository

import (
	"context"
	"sync"
	"time"

	"github.com/okian/steamwatch/internal/domain/identity"
	"github.com/okian/steamwatch/internal/domain/model"
	"github.com/okian/steamwatch/pkg/clock"
)

type regKey struct {
	watcherID int64
	accountID string
	gameID    int64
}

// MemoryStore is an in-memory Store. All state is lost on restart, so it is
// meant for tests and the "memory" storage driver.
type MemoryStore struct {
	mu     sync.RWMutex
	clock  clock.Clock
	closed bool

	regs      []model.Registration
	regIndex  map[regKey]struct{}
	snapshots map[model.TargetKey]map[string]time.Time // hash -> last seen
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty store.
func NewMemoryStore(opts ...Option) *MemoryStore {
	s := &MemoryStore{
		clock:     clock.Real(),
		regIndex:  make(map[regKey]struct{}),
		snapshots: make(map[model.TargetKey]map[string]time.Time),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *MemoryStore) ListRegistrations(ctx context.Context, f Filter) ([]model.Registration, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}

	out := make([]model.Registration, 0, len(s.regs))
	for _, r := range s.regs {
		if f.Matches(r) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *MemoryStore) AddRegistration(ctx context.Context, r model.Registration) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if err := ValidateRegistration(r); err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false, ErrClosed
	}

	k := regKey{watcherID: r.WatcherID, accountID: r.AccountID, gameID: r.GameID}
	if _, exists := s.regIndex[k]; exists {
		return false, nil
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = s.clock.Now().UTC()
	}
	s.regIndex[k] = struct{}{}
	s.regs = append(s.regs, r)
	return true, nil
}

func (s *MemoryStore) RemoveRegistration(ctx context.Context, watcherID int64, accountID string, gameID int64) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false, ErrClosed
	}

	k := regKey{watcherID: watcherID, accountID: accountID, gameID: gameID}
	if _, exists := s.regIndex[k]; !exists {
		return false, nil
	}
	delete(s.regIndex, k)
	for i, r := range s.regs {
		if r.WatcherID == watcherID && r.AccountID == accountID && r.GameID == gameID {
			s.regs = append(s.regs[:i], s.regs[i+1:]...)
			break
		}
	}
	return true, nil
}

func (s *MemoryStore) KnownHashes(ctx context.Context, accountID string, gameID int64) (identity.Set, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}

	rows := s.snapshots[model.TargetKey{AccountID: accountID, GameID: gameID}]
	out := make(identity.Set, len(rows))
	for h := range rows {
		out[h] = struct{}{}
	}
	return out, nil
}

func (s *MemoryStore) MergeHashes(ctx context.Context, accountID string, gameID int64, hashes identity.Set) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(hashes) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}

	key := model.TargetKey{AccountID: accountID, GameID: gameID}
	rows, ok := s.snapshots[key]
	if !ok {
		rows = make(map[string]time.Time, len(hashes))
		s.snapshots[key] = rows
	}
	now := s.clock.Now().UTC()
	for h := range hashes {
		rows[h] = now
	}
	return nil
}

func (s *MemoryStore) PruneStale(ctx context.Context, retention time.Duration) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, ErrClosed
	}

	watched := make(map[string]struct{}, len(s.regs))
	for _, r := range s.regs {
		watched[r.AccountID] = struct{}{}
	}
	cutoff := s.clock.Now().UTC().Add(-retention)

	var removed int64
	for key, rows := range s.snapshots {
		if _, ok := watched[key.AccountID]; !ok {
			removed += int64(len(rows))
			delete(s.snapshots, key)
			continue
		}
		if retention <= 0 {
			continue
		}
		for h, lastSeen := range rows {
			if lastSeen.Before(cutoff) {
				delete(rows, h)
				removed++
			}
		}
		if len(rows) == 0 {
			delete(s.snapshots, key)
		}
	}
	return removed, nil
}

// Close marks the store closed; later calls return ErrClosed.
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
