// Package model contains domain models passed between layers.
package model

import (
	"strconv"
	"time"
)

// Target identifies one polled inventory. Snapshots and scheduling dedupe
// on (AccountID, GameID); ContextID rides along for the fetch.
type Target struct {
	AccountID string // SteamID64
	GameID    int64  // Steam appid
	ContextID int64  // inventory context, 2 for most games
}

// Key returns the dedupe key of the target.
func (t Target) Key() TargetKey {
	return TargetKey{AccountID: t.AccountID, GameID: t.GameID}
}

func (t Target) String() string {
	return t.AccountID + "/" + strconv.FormatInt(t.GameID, 10) + "/" + strconv.FormatInt(t.ContextID, 10)
}

// TargetKey is the unit of work per cycle and the snapshot partition.
type TargetKey struct {
	AccountID string
	GameID    int64
}

// Item is one inventory asset as returned by the inventory service.
type Item struct {
	AssetID    string `json:"assetid"`
	ClassID    string `json:"classid"`
	InstanceID string `json:"instanceid"`
	Amount     string `json:"amount,omitempty"`
}

// Description carries display metadata for a class of items.
type Description struct {
	ClassID        string `json:"classid"`
	InstanceID     string `json:"instanceid"`
	MarketHashName string `json:"market_hash_name"`
	Name           string `json:"name"`
}

// Inventory is a single fetched page.
type Inventory struct {
	Assets       []Item
	Descriptions []Description
	MoreItems    bool
}

// NewItem is an item not present in the previous snapshot.
type NewItem struct {
	Item
	DisplayName string
}

// Registration links a watcher (chat user) to a target.
type Registration struct {
	WatcherID int64
	AccountID string
	GameID    int64
	ContextID int64
	CreatedAt time.Time
}

// Target returns the polled target of the registration.
func (r Registration) Target() Target {
	return Target{AccountID: r.AccountID, GameID: r.GameID, ContextID: r.ContextID}
}

// CycleRequest asks the scheduler worker to run one check cycle.
type CycleRequest struct {
	ID          string
	Reason      string // "tick", "manual", "startup"
	RequestedAt time.Time
}
