// Package models holds the row shapes shared by the SQL stores and their
// conversions to and from the domain types.
package models

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/termsheet-validation/backend/internal/record"
	"github.com/termsheet-validation/backend/internal/validation"
	"github.com/termsheet-validation/backend/internal/versioning"
)

type TradeVersion struct {
	TradeID    string
	Version    int
	SnapshotID string
	Source     string
	Data       string
	CreatedAt  int64
}

type TradeDiff struct {
	TradeID     string
	FromVersion int
	Version     int
	Added       string
	Removed     string
	Modified    string
	CreatedAt   int64
}

type ValidationRun struct {
	ID             string
	TradeID        string
	DerivativeType string
	Valid          bool
	AnomalyCount   int
	Status         int
	CreatedAt      int64
}

func NewTradeVersion(s *versioning.Snapshot) (*TradeVersion, error) {
	data, err := json.Marshal(s.Data)
	if err != nil {
		return nil, fmt.Errorf("failed to encode snapshot data: %w", err)
	}
	return &TradeVersion{
		TradeID:    s.TradeID,
		Version:    s.Version,
		SnapshotID: s.SnapshotID,
		Source:     s.Source,
		Data:       string(data),
		CreatedAt:  s.Timestamp.Unix(),
	}, nil
}

func (r *TradeVersion) Snapshot() (*versioning.Snapshot, error) {
	data, err := record.Decode([]byte(r.Data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode snapshot %s: %w", r.SnapshotID, err)
	}
	return &versioning.Snapshot{
		TradeID:    r.TradeID,
		Version:    r.Version,
		SnapshotID: r.SnapshotID,
		Source:     r.Source,
		Timestamp:  time.Unix(r.CreatedAt, 0).UTC(),
		Data:       data,
	}, nil
}

func NewTradeDiff(d *versioning.Diff) (*TradeDiff, error) {
	added, err := json.Marshal(d.Added)
	if err != nil {
		return nil, fmt.Errorf("failed to encode added fields: %w", err)
	}
	removed, err := json.Marshal(d.Removed)
	if err != nil {
		return nil, fmt.Errorf("failed to encode removed fields: %w", err)
	}
	modified, err := json.Marshal(d.Modified)
	if err != nil {
		return nil, fmt.Errorf("failed to encode modified fields: %w", err)
	}
	return &TradeDiff{
		TradeID:     d.TradeID,
		FromVersion: d.FromVersion,
		Version:     d.Version,
		Added:       string(added),
		Removed:     string(removed),
		Modified:    string(modified),
		CreatedAt:   d.Timestamp.Unix(),
	}, nil
}

func (r *TradeDiff) Diff() (*versioning.Diff, error) {
	d := &versioning.Diff{
		TradeID:     r.TradeID,
		FromVersion: r.FromVersion,
		Version:     r.Version,
		Timestamp:   time.Unix(r.CreatedAt, 0).UTC(),
		Added:       map[string]record.Value{},
		Removed:     map[string]record.Value{},
		Modified:    map[string]versioning.Change{},
	}
	if err := json.Unmarshal([]byte(r.Added), &d.Added); err != nil {
		return nil, fmt.Errorf("failed to decode added fields: %w", err)
	}
	if err := json.Unmarshal([]byte(r.Removed), &d.Removed); err != nil {
		return nil, fmt.Errorf("failed to decode removed fields: %w", err)
	}
	if err := json.Unmarshal([]byte(r.Modified), &d.Modified); err != nil {
		return nil, fmt.Errorf("failed to decode modified fields: %w", err)
	}
	return d, nil
}

func NewValidationRun(run validation.Run) *ValidationRun {
	return &ValidationRun{
		ID:             run.ID,
		TradeID:        run.TradeID,
		DerivativeType: run.Type,
		Valid:          run.Valid,
		AnomalyCount:   run.Anomalies,
		Status:         int(run.Status),
		CreatedAt:      run.CreatedAt.Unix(),
	}
}
