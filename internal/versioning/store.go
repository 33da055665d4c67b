// Package versioning keeps an append-only history of extracted records per
// trade, with a latest pointer and the diff between the two newest versions.
package versioning

import (
	"context"
	"errors"
	"time"

	"github.com/termsheet-validation/backend/internal/record"
)

var (
	ErrNotFound         = errors.New("trade history not found")
	ErrDuplicateVersion = errors.New("version already exists")
	ErrInvalidTradeID   = errors.New("trade id is required")
)

// Snapshot is one immutable version of a trade's extracted record.
type Snapshot struct {
	TradeID    string        `json:"trade_id"`
	Version    int           `json:"version"`
	SnapshotID string        `json:"snapshot_id"`
	Source     string        `json:"source"`
	Timestamp  time.Time     `json:"timestamp"`
	Data       record.Record `json:"data"`
}

type Change struct {
	Old record.Value `json:"old"`
	New record.Value `json:"new"`
}

// Diff describes how Version differs from FromVersion.
type Diff struct {
	TradeID     string                  `json:"trade_id"`
	FromVersion int                     `json:"from_version"`
	Version     int                     `json:"version"`
	Timestamp   time.Time               `json:"timestamp"`
	Added       map[string]record.Value `json:"added"`
	Removed     map[string]record.Value `json:"removed"`
	Modified    map[string]Change       `json:"modified"`
}

func (d *Diff) IsEmpty() bool {
	return len(d.Added) == 0 && len(d.Removed) == 0 && len(d.Modified) == 0
}

// Store persists trade histories.
//
// Append must write the snapshot, move the latest pointer and, when diff is
// non-nil, replace the stored diff as one unit. It returns
// ErrDuplicateVersion if the trade already has snap.Version. Stores never
// rewrite an existing version.
type Store interface {
	SnapshotIDs(ctx context.Context, tradeID string) ([]string, error)
	Latest(ctx context.Context, tradeID string) (*Snapshot, error)
	Append(ctx context.Context, snap *Snapshot, diff *Diff) error
	Version(ctx context.Context, tradeID string, version int) (*Snapshot, error)
	Versions(ctx context.Context, tradeID string) ([]*Snapshot, error)
	Diff(ctx context.Context, tradeID string) (*Diff, error)
	TradeIDs(ctx context.Context) ([]string, error)
}
