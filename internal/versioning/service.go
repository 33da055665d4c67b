package versioning

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/termsheet-validation/backend/internal/record"
	"github.com/termsheet-validation/backend/pkg/logger"
)

const (
	StatusCreated = "created"
	StatusUpdated = "updated"
)

var (
	snapshotVersionRe = regexp.MustCompile(`^v(\d+)_`)
	documentExts      = map[string]bool{".pdf": true, ".docx": true, ".eml": true, ".msg": true, ".txt": true, ".text": true, ".md": true, ".json": true}
)

// Metadata describes where a committed record came from.
type Metadata struct {
	Source    string
	Timestamp time.Time
}

type CommitResult struct {
	TradeID    string `json:"trade_id"`
	Status     string `json:"status"`
	Version    int    `json:"version"`
	SnapshotID string `json:"snapshot_id"`
	Diff       *Diff  `json:"diff,omitempty"`
	Message    string `json:"message"`
}

type Service struct {
	store Store
	now   func() time.Time
}

func NewService(store Store) *Service {
	return &Service{store: store, now: time.Now}
}

// WithClock returns a copy of the service that stamps commits using now.
func (s *Service) WithClock(now func() time.Time) *Service {
	cp := *s
	cp.now = now
	return &cp
}

func (s *Service) Store() Store {
	return s.store
}

// Commit appends rec as the next version of tradeID. Identical content still
// produces a new version. Commits for the same trade must be serialized by
// the caller.
func (s *Service) Commit(ctx context.Context, tradeID string, rec record.Record, meta Metadata) (*CommitResult, error) {
	tradeID = strings.TrimSpace(tradeID)
	if tradeID == "" {
		return nil, ErrInvalidTradeID
	}

	ids, err := s.store.SnapshotIDs(ctx, tradeID)
	if err != nil {
		return nil, fmt.Errorf("failed to list snapshots: %w", err)
	}
	version := NextVersion(ids)

	ts := meta.Timestamp
	if ts.IsZero() {
		ts = s.now()
	}
	snap := &Snapshot{
		TradeID:    tradeID,
		Version:    version,
		SnapshotID: SnapshotID(version, meta.Source),
		Source:     meta.Source,
		Timestamp:  ts.UTC(),
		Data:       cloneRecord(rec),
	}

	latest, err := s.store.Latest(ctx, tradeID)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("failed to read latest snapshot: %w", err)
	}

	var diff *Diff
	if latest != nil {
		d := ComputeDiff(latest.Data, snap.Data)
		d.TradeID = tradeID
		d.FromVersion = latest.Version
		d.Version = version
		d.Timestamp = snap.Timestamp
		diff = &d
	}

	if err := s.store.Append(ctx, snap, diff); err != nil {
		return nil, fmt.Errorf("failed to append version %d: %w", version, err)
	}

	res := &CommitResult{
		TradeID:    tradeID,
		Version:    version,
		SnapshotID: snap.SnapshotID,
		Diff:       diff,
	}
	if diff == nil {
		res.Status = StatusCreated
		res.Message = fmt.Sprintf("Created version %d for Trade ID: %s", version, tradeID)
	} else {
		res.Status = StatusUpdated
		res.Message = fmt.Sprintf("Updated to version %d for Trade ID: %s", version, tradeID)
	}

	logger.Info("Trade version committed",
		zap.String("trade_id", tradeID),
		zap.Int("version", version),
		zap.String("status", res.Status),
		zap.String("snapshot_id", snap.SnapshotID),
	)
	return res, nil
}

// ComputeDiff compares two records key by key. Keys are matched exactly;
// a key present in both with a different value is modified.
func ComputeDiff(prev, next record.Record) Diff {
	d := Diff{
		Added:    make(map[string]record.Value),
		Removed:  make(map[string]record.Value),
		Modified: make(map[string]Change),
	}
	for key, old := range prev {
		cur, ok := next[key]
		if !ok {
			d.Removed[key] = old
			continue
		}
		if !old.Equal(cur) {
			d.Modified[key] = Change{Old: old, New: cur}
		}
	}
	for key, cur := range next {
		if _, ok := prev[key]; !ok {
			d.Added[key] = cur
		}
	}
	return d
}

// NextVersion returns one more than the highest version found in snapshot
// identifiers of the form v<N>_<source>.json, or 1 when there are none.
func NextVersion(snapshotIDs []string) int {
	highest := 0
	for _, id := range snapshotIDs {
		m := snapshotVersionRe.FindStringSubmatch(id)
		if m == nil {
			continue
		}
		n, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		if n > highest {
			highest = n
		}
	}
	return highest + 1
}

// SnapshotID names a version after its source with a document extension
// replaced by .json and spaces replaced by underscores.
func SnapshotID(version int, source string) string {
	name := filepath.Base(strings.TrimSpace(source))
	if ext := filepath.Ext(name); documentExts[strings.ToLower(ext)] {
		name = strings.TrimSuffix(name, ext)
	}
	name = strings.ReplaceAll(name, " ", "_")
	if name == "" || name == "." || name == string(filepath.Separator) {
		name = "record"
	}
	return fmt.Sprintf("v%d_%s.json", version, name)
}

func cloneRecord(rec record.Record) record.Record {
	out := make(record.Record, len(rec))
	for k, v := range rec {
		out[k] = v
	}
	return out
}
