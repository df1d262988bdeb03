// Package repository defines the registration and snapshot store contracts
// and an in-memory implementation.
package repository

import (
	"context"
	"time"

	"github.com/okian/steamwatch/internal/domain/identity"
	"github.com/okian/steamwatch/internal/domain/model"
)

// Filter narrows ListRegistrations. Zero values match everything.
type Filter struct {
	WatcherID int64
	AccountID string
	GameID    int64
}

// Matches reports whether r satisfies the filter.
func (f Filter) Matches(r model.Registration) bool {
	if f.WatcherID != 0 && r.WatcherID != f.WatcherID {
		return false
	}
	if f.AccountID != "" && r.AccountID != f.AccountID {
		return false
	}
	if f.GameID != 0 && r.GameID != f.GameID {
		return false
	}
	return true
}

// RegistrationStore holds (watcher, account, game) associations.
type RegistrationStore interface {
	// ListRegistrations returns registrations matching f, oldest first.
	ListRegistrations(ctx context.Context, f Filter) ([]model.Registration, error)
	// AddRegistration inserts r. A duplicate (watcher, account, game) is not
	// an error; added is false.
	AddRegistration(ctx context.Context, r model.Registration) (added bool, err error)
	// RemoveRegistration deletes one registration; removed is false when none matched.
	RemoveRegistration(ctx context.Context, watcherID int64, accountID string, gameID int64) (removed bool, err error)
}

// SnapshotStore holds the identity hashes already observed per target.
type SnapshotStore interface {
	// KnownHashes returns every stored hash for (accountID, gameID).
	KnownHashes(ctx context.Context, accountID string, gameID int64) (identity.Set, error)
	// MergeHashes adds hashes and refreshes the last-seen time of ones already
	// stored. It never removes a hash.
	MergeHashes(ctx context.Context, accountID string, gameID int64, hashes identity.Set) error
	// PruneStale drops snapshot rows of accounts nobody watches any more and
	// rows not seen for longer than retention. A non-positive retention only
	// drops unwatched accounts. Returns the removed row count.
	PruneStale(ctx context.Context, retention time.Duration) (int64, error)
}

// Store is the full persistence surface used by the service.
type Store interface {
	RegistrationStore
	SnapshotStore
	Close() error
}

// ValidateRegistration reports ErrInvalidRegistration for incomplete rows.
func ValidateRegistration(r model.Registration) error {
	if r.WatcherID == 0 || r.AccountID == "" || r.GameID <= 0 {
		return ErrInvalidRegistration
	}
	return nil
}
