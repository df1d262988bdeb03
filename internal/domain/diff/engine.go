// Package diff detects items that appeared in an inventory since the last
// observation of the same (account, game) target.
package diff

import (
	"context"
	"fmt"

	"github.com/okian/steamwatch/internal/domain/identity"
	"github.com/okian/steamwatch/internal/domain/model"
	"github.com/okian/steamwatch/pkg/logger"
)

// Fetcher retrieves one inventory page.
type Fetcher interface {
	Fetch(ctx context.Context, accountID string, gameID, contextID int64, pageSize int) (model.Inventory, error)
}

// SnapshotStore is the subset of the snapshot store the engine needs.
type SnapshotStore interface {
	KnownHashes(ctx context.Context, accountID string, gameID int64) (identity.Set, error)
	MergeHashes(ctx context.Context, accountID string, gameID int64, hashes identity.Set) error
}

// Engine combines fetches with stored snapshots.
type Engine struct {
	fetcher  Fetcher
	store    SnapshotStore
	pageSize int
	logger   logger.Logger
}

// Option applies a configuration option to the Engine.
type Option func(*Engine)

// WithPageSize sets the requested inventory page size.
func WithPageSize(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.pageSize = n
		}
	}
}

// WithLogger sets a custom logger for the engine.
func WithLogger(l logger.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// NewEngine creates a diff engine.
func NewEngine(f Fetcher, s SnapshotStore, opts ...Option) *Engine {
	e := &Engine{
		fetcher: f,
		store:   s,
		logger:  logger.Get().Named("diff"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// DetectNewItems fetches the target, returns items whose identity hash is
// not in the stored snapshot and merges the full current set into it.
// Items come back in fetch order, each hash at most once.
//
// Fetch errors are returned untouched so callers can classify them; nothing
// is written in that case.
func (e *Engine) DetectNewItems(ctx context.Context, t model.Target) ([]model.NewItem, error) {
	inv, err := e.fetcher.Fetch(ctx, t.AccountID, t.GameID, t.ContextID, e.pageSize)
	if err != nil {
		return nil, err
	}

	current := identity.Of(inv.Assets)
	known, err := e.store.KnownHashes(ctx, t.AccountID, t.GameID)
	if err != nil {
		return nil, fmt.Errorf("%w: load snapshot: %w", ErrStore, err)
	}
	fresh := current.Minus(known)

	if err := e.store.MergeHashes(ctx, t.AccountID, t.GameID, current); err != nil {
		return nil, fmt.Errorf("%w: merge snapshot: %w", ErrStore, err)
	}

	if len(fresh) == 0 {
		return nil, nil
	}

	names := displayNames(inv.Descriptions)
	out := make([]model.NewItem, 0, len(fresh))
	for _, it := range inv.Assets {
		h := identity.Hash(it)
		if !fresh.Has(h) {
			continue
		}
		delete(fresh, h)
		out = append(out, model.NewItem{Item: it, DisplayName: resolveName(it, names)})
	}

	e.logger.Debug(ctx, "new items detected",
		logger.String("target", t.String()),
		logger.Int("assets", len(inv.Assets)),
		logger.Int("new", len(out)),
	)
	return out, nil
}

// Seed records the current inventory of a target nobody has observed yet,
// without reporting anything. It returns the number of items stored.
//
// A target that already has a snapshot is left alone and nothing is
// fetched.
func (e *Engine) Seed(ctx context.Context, t model.Target) (int, error) {
	known, err := e.store.KnownHashes(ctx, t.AccountID, t.GameID)
	if err != nil {
		return 0, fmt.Errorf("%w: load snapshot: %w", ErrStore, err)
	}
	if len(known) > 0 {
		e.logger.Debug(ctx, "seed skipped, snapshot exists",
			logger.String("target", t.String()),
			logger.Int("known", len(known)),
		)
		return 0, nil
	}

	inv, err := e.fetcher.Fetch(ctx, t.AccountID, t.GameID, t.ContextID, e.pageSize)
	if err != nil {
		return 0, err
	}
	current := identity.Of(inv.Assets)
	if err := e.store.MergeHashes(ctx, t.AccountID, t.GameID, current); err != nil {
		return 0, fmt.Errorf("%w: merge snapshot: %w", ErrStore, err)
	}
	return len(current), nil
}

// displayNames maps each class id to the name of its first description:
// market_hash_name, else name.
func displayNames(descs []model.Description) map[string]string {
	names := make(map[string]string, len(descs))
	for _, d := range descs {
		if _, seen := names[d.ClassID]; seen {
			continue
		}
		name := d.MarketHashName
		if name == "" {
			name = d.Name
		}
		names[d.ClassID] = name
	}
	return names
}

func resolveName(it model.Item, names map[string]string) string {
	if n := names[it.ClassID]; n != "" {
		return n
	}
	if it.ClassID != "" {
		return it.ClassID
	}
	return "Unknown Item"
}
