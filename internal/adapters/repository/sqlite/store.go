// Package sqlite provides the SQLite-backed registration and snapshot store.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/okian/steamwatch/internal/adapters/repository"
	"github.com/okian/steamwatch/internal/adapters/repository/sqlite/migrations"
	"github.com/okian/steamwatch/internal/domain/identity"
	"github.com/okian/steamwatch/internal/domain/model"
	"github.com/okian/steamwatch/pkg/clock"
	_ "modernc.org/sqlite"
)

// Store persists registrations and inventory snapshots in one SQLite file.
type Store struct {
	sqlDB  *sql.DB
	clock  clock.Clock
	closed atomic.Bool
}

var _ repository.Store = (*Store)(nil)

// Option configures a Store.
type Option func(*Store)

// WithClock sets the clock used for created/detected/last-seen timestamps.
func WithClock(c clock.Clock) Option {
	return func(s *Store) {
		if c != nil {
			s.clock = c
		}
	}
}

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

// Open opens (creating if needed) the database at path and applies migrations.
func Open(ctx context.Context, path string, opts ...Option) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}

	cleanPath := filepath.Clean(path)
	if dir := filepath.Dir(cleanPath); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("create storage dir: %w", err)
		}
	}

	dsn := cleanPath + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}

	s := &Store{sqlDB: sqlDB, clock: clock.Real()}
	for _, opt := range opts {
		opt(s)
	}
	if err := applyMigrations(ctx, sqlDB, migrations.FS); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return s, nil
}

// Close closes the underlying database. Calling it again is a no-op.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil || !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	return s.sqlDB.Close()
}

func (s *Store) ready(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil || s.closed.Load() {
		return repository.ErrClosed
	}
	return nil
}

func (s *Store) ListRegistrations(ctx context.Context, f repository.Filter) ([]model.Registration, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}

	var (
		where []string
		args  []any
	)
	if f.WatcherID != 0 {
		where = append(where, "watcher_id = ?")
		args = append(args, f.WatcherID)
	}
	if f.AccountID != "" {
		where = append(where, "account_id = ?")
		args = append(args, f.AccountID)
	}
	if f.GameID != 0 {
		where = append(where, "app_id = ?")
		args = append(args, f.GameID)
	}

	query := "SELECT watcher_id, account_id, app_id, context_id, created_at FROM registrations"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY id"

	rows, err := s.sqlDB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list registrations: %w", err)
	}
	defer rows.Close()

	var out []model.Registration
	for rows.Next() {
		var (
			r       model.Registration
			created int64
		)
		if err := rows.Scan(&r.WatcherID, &r.AccountID, &r.GameID, &r.ContextID, &created); err != nil {
			return nil, fmt.Errorf("scan registration: %w", err)
		}
		r.CreatedAt = fromMillis(created)
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate registrations: %w", err)
	}
	return out, nil
}

func (s *Store) AddRegistration(ctx context.Context, r model.Registration) (bool, error) {
	if err := s.ready(ctx); err != nil {
		return false, err
	}
	if err := repository.ValidateRegistration(r); err != nil {
		return false, err
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = s.clock.Now()
	}

	res, err := s.sqlDB.ExecContext(ctx, `
INSERT OR IGNORE INTO registrations (watcher_id, account_id, app_id, context_id, created_at)
VALUES (?, ?, ?, ?, ?)`,
		r.WatcherID, r.AccountID, r.GameID, r.ContextID, toMillis(r.CreatedAt),
	)
	if err != nil {
		return false, fmt.Errorf("add registration: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("add registration rows: %w", err)
	}
	return n == 1, nil
}

func (s *Store) RemoveRegistration(ctx context.Context, watcherID int64, accountID string, gameID int64) (bool, error) {
	if err := s.ready(ctx); err != nil {
		return false, err
	}
	res, err := s.sqlDB.ExecContext(ctx,
		"DELETE FROM registrations WHERE watcher_id = ? AND account_id = ? AND app_id = ?",
		watcherID, accountID, gameID,
	)
	if err != nil {
		return false, fmt.Errorf("remove registration: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("remove registration rows: %w", err)
	}
	return n > 0, nil
}

func (s *Store) KnownHashes(ctx context.Context, accountID string, gameID int64) (identity.Set, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	rows, err := s.sqlDB.QueryContext(ctx,
		"SELECT item_hash FROM inventory_snapshots WHERE account_id = ? AND app_id = ?",
		accountID, gameID,
	)
	if err != nil {
		return nil, fmt.Errorf("known hashes: %w", err)
	}
	defer rows.Close()

	out := identity.NewSet()
	for rows.Next() {
		var h string
		if err := rows.Scan(&h); err != nil {
			return nil, fmt.Errorf("scan hash: %w", err)
		}
		out[h] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate hashes: %w", err)
	}
	return out, nil
}

func (s *Store) MergeHashes(ctx context.Context, accountID string, gameID int64, hashes identity.Set) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	if len(hashes) == 0 {
		return nil
	}

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin merge: %w", err)
	}
	rollbackWith := func(cause error) error {
		if rollbackErr := tx.Rollback(); rollbackErr != nil {
			return fmt.Errorf("%w: rollback merge: %v", cause, rollbackErr)
		}
		return cause
	}

	stmt, err := tx.PrepareContext(ctx, `
INSERT INTO inventory_snapshots (account_id, app_id, item_hash, detected_at, last_seen_at)
VALUES (?, ?, ?, ?, ?)
ON CONFLICT(account_id, app_id, item_hash) DO UPDATE SET
    last_seen_at = excluded.last_seen_at`)
	if err != nil {
		return rollbackWith(fmt.Errorf("prepare merge: %w", err))
	}
	defer stmt.Close()

	now := toMillis(s.clock.Now())
	for h := range hashes {
		if _, err := stmt.ExecContext(ctx, accountID, gameID, h, now, now); err != nil {
			return rollbackWith(fmt.Errorf("merge hash: %w", err))
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit merge: %w", err)
	}
	return nil
}

func (s *Store) PruneStale(ctx context.Context, retention time.Duration) (int64, error) {
	if err := s.ready(ctx); err != nil {
		return 0, err
	}

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin prune: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `
DELETE FROM inventory_snapshots
WHERE NOT EXISTS (
    SELECT 1 FROM registrations r WHERE r.account_id = inventory_snapshots.account_id
)`)
	if err != nil {
		return 0, fmt.Errorf("prune unwatched: %w", err)
	}
	removed, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("prune unwatched rows: %w", err)
	}

	if retention > 0 {
		cutoff := toMillis(s.clock.Now().Add(-retention))
		res, err := tx.ExecContext(ctx, "DELETE FROM inventory_snapshots WHERE last_seen_at < ?", cutoff)
		if err != nil {
			return 0, fmt.Errorf("prune expired: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, fmt.Errorf("prune expired rows: %w", err)
		}
		removed += n
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit prune: %w", err)
	}
	return removed, nil
}
