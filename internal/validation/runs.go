package validation

import (
	"context"
	"math"
	"sort"
	"time"
)

// Run is the outcome of one validation call, kept for statistics.
type Run struct {
	ID        string    `json:"id"`
	TradeID   string    `json:"trade_id"`
	Type      string    `json:"type"`
	Valid     bool      `json:"valid"`
	Anomalies int       `json:"anomalies"`
	Status    Status    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
}

// RunRecorder stores validation runs and aggregates them.
type RunRecorder interface {
	RecordRun(ctx context.Context, run Run) error
	RunStats(ctx context.Context) (*Stats, error)
}

type TypeStats struct {
	Type     string `json:"type"`
	Total    int    `json:"total"`
	Valid    int    `json:"valid"`
	NotFound int    `json:"not_found"`
}

type Stats struct {
	TotalRuns      int         `json:"total_runs"`
	ValidRuns      int         `json:"valid_runs"`
	InvalidRuns    int         `json:"invalid_runs"`
	NotFoundRuns   int         `json:"not_found_runs"`
	ValidationRate float64     `json:"validation_rate"`
	ByType         []TypeStats `json:"by_type"`
}

// NewStats totals per-type counts. ValidationRate is the share of valid runs
// as a percentage rounded to two decimals, or 0 with no runs.
func NewStats(byType []TypeStats) *Stats {
	s := &Stats{ByType: append([]TypeStats(nil), byType...)}
	sort.Slice(s.ByType, func(i, j int) bool { return s.ByType[i].Type < s.ByType[j].Type })
	for _, t := range s.ByType {
		s.TotalRuns += t.Total
		s.ValidRuns += t.Valid
		s.NotFoundRuns += t.NotFound
	}
	s.InvalidRuns = s.TotalRuns - s.ValidRuns
	if s.TotalRuns > 0 {
		s.ValidationRate = math.Round(float64(s.ValidRuns)*100/float64(s.TotalRuns)*100) / 100
	}
	if s.ByType == nil {
		s.ByType = []TypeStats{}
	}
	return s
}
