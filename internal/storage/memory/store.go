// Package memory is an in-process trade history store used by tests and the
// "memory" storage driver. Nothing survives a restart.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/termsheet-validation/backend/internal/record"
	"github.com/termsheet-validation/backend/internal/validation"
	"github.com/termsheet-validation/backend/internal/versioning"
)

var (
	_ versioning.Store       = (*Store)(nil)
	_ validation.RunRecorder = (*Store)(nil)
)

type history struct {
	versions []*versioning.Snapshot // ordered by version
	diff     *versioning.Diff
}

type Store struct {
	mu     sync.RWMutex
	trades map[string]*history
	runs   []validation.Run
}

func NewStore() *Store {
	return &Store{trades: make(map[string]*history)}
}

func (s *Store) SnapshotIDs(_ context.Context, tradeID string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	h, ok := s.trades[tradeID]
	if !ok {
		return nil, nil
	}
	ids := make([]string, len(h.versions))
	for i, v := range h.versions {
		ids[i] = v.SnapshotID
	}
	return ids, nil
}

func (s *Store) Latest(_ context.Context, tradeID string) (*versioning.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	h, ok := s.trades[tradeID]
	if !ok || len(h.versions) == 0 {
		return nil, versioning.ErrNotFound
	}
	return copySnapshot(h.versions[len(h.versions)-1]), nil
}

// Append stores a copy of snap. Versions must arrive in increasing order.
func (s *Store) Append(_ context.Context, snap *versioning.Snapshot, diff *versioning.Diff) error {
	if snap == nil || snap.TradeID == "" {
		return versioning.ErrInvalidTradeID
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	h, ok := s.trades[snap.TradeID]
	if !ok {
		h = &history{}
		s.trades[snap.TradeID] = h
	}
	for _, v := range h.versions {
		if v.Version >= snap.Version {
			return versioning.ErrDuplicateVersion
		}
	}

	h.versions = append(h.versions, copySnapshot(snap))
	if diff != nil {
		d := *diff
		h.diff = &d
	}
	return nil
}

func (s *Store) Version(_ context.Context, tradeID string, version int) (*versioning.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if h, ok := s.trades[tradeID]; ok {
		for _, v := range h.versions {
			if v.Version == version {
				return copySnapshot(v), nil
			}
		}
	}
	return nil, versioning.ErrNotFound
}

func (s *Store) Versions(_ context.Context, tradeID string) ([]*versioning.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	h, ok := s.trades[tradeID]
	if !ok {
		return nil, versioning.ErrNotFound
	}
	out := make([]*versioning.Snapshot, len(h.versions))
	for i, v := range h.versions {
		out[i] = copySnapshot(v)
	}
	return out, nil
}

func (s *Store) Diff(_ context.Context, tradeID string) (*versioning.Diff, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	h, ok := s.trades[tradeID]
	if !ok || h.diff == nil {
		return nil, versioning.ErrNotFound
	}
	d := *h.diff
	return &d, nil
}

func (s *Store) TradeIDs(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.trades))
	for id := range s.trades {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

func (s *Store) RecordRun(_ context.Context, run validation.Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.runs = append(s.runs, run)
	return nil
}

func (s *Store) RunStats(_ context.Context) (*validation.Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	byType := make(map[string]*validation.TypeStats)
	for _, r := range s.runs {
		ts, ok := byType[r.Type]
		if !ok {
			ts = &validation.TypeStats{Type: r.Type}
			byType[r.Type] = ts
		}
		ts.Total++
		if r.Valid {
			ts.Valid++
		}
		if r.Status == validation.StatusNotFound {
			ts.NotFound++
		}
	}

	rows := make([]validation.TypeStats, 0, len(byType))
	for _, ts := range byType {
		rows = append(rows, *ts)
	}
	return validation.NewStats(rows), nil
}

func copySnapshot(s *versioning.Snapshot) *versioning.Snapshot {
	cp := *s
	cp.Data = make(record.Record, len(s.Data))
	for k, v := range s.Data {
		cp.Data[k] = v
	}
	return &cp
}
