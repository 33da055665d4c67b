package versioning_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/termsheet-validation/backend/internal/record"
	"github.com/termsheet-validation/backend/internal/storage/memory"
	"github.com/termsheet-validation/backend/internal/versioning"
)

func newService() *versioning.Service {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	return versioning.NewService(memory.NewStore()).WithClock(func() time.Time { return now })
}

func TestCommitSameRecordTwice(t *testing.T) {
	ctx := context.Background()
	svc := newService()
	rec := record.FromStrings(map[string]string{"Buyer": "Acme", "Quantity": "1,000"})

	first, err := svc.Commit(ctx, "TRADE-1", rec, versioning.Metadata{Source: "termsheet.pdf"})
	require.NoError(t, err)
	assert.Equal(t, versioning.StatusCreated, first.Status)
	assert.Equal(t, 1, first.Version)
	assert.Equal(t, "v1_termsheet.json", first.SnapshotID)
	assert.Nil(t, first.Diff)
	assert.Equal(t, "Created version 1 for Trade ID: TRADE-1", first.Message)

	second, err := svc.Commit(ctx, "TRADE-1", rec, versioning.Metadata{Source: "termsheet.pdf"})
	require.NoError(t, err)
	assert.Equal(t, versioning.StatusUpdated, second.Status)
	assert.Equal(t, 2, second.Version)
	require.NotNil(t, second.Diff)
	assert.True(t, second.Diff.IsEmpty())
	assert.Equal(t, 1, second.Diff.FromVersion)
	assert.Equal(t, "Updated to version 2 for Trade ID: TRADE-1", second.Message)

	versions, err := svc.Store().Versions(ctx, "TRADE-1")
	require.NoError(t, err)
	require.Len(t, versions, 2)
	assert.Equal(t, 1, versions[0].Version)
	assert.Equal(t, 2, versions[1].Version)
}

func TestCommitPersistsLatestAndDiff(t *testing.T) {
	ctx := context.Background()
	svc := newService()

	_, err := svc.Commit(ctx, "TRADE-9", record.FromStrings(map[string]string{"x": "1", "y": "2"}), versioning.Metadata{Source: "a.txt"})
	require.NoError(t, err)
	res, err := svc.Commit(ctx, "TRADE-9", record.FromStrings(map[string]string{"x": "1", "y": "3", "z": "4"}), versioning.Metadata{Source: "b.txt"})
	require.NoError(t, err)

	latest, err := svc.Store().Latest(ctx, "TRADE-9")
	require.NoError(t, err)
	assert.Equal(t, 2, latest.Version)
	assert.Equal(t, "b.txt", latest.Source)
	assert.Equal(t, "3", latest.Data.Text("y"))

	stored, err := svc.Store().Diff(ctx, "TRADE-9")
	require.NoError(t, err)
	assert.Equal(t, res.Diff.Modified, stored.Modified)

	first, err := svc.Store().Version(ctx, "TRADE-9", 1)
	require.NoError(t, err)
	assert.Equal(t, "2", first.Data.Text("y"), "earlier versions are never rewritten")
}

func TestComputeDiff(t *testing.T) {
	prev := record.FromStrings(map[string]string{"x": "1", "y": "2"})
	next := record.FromStrings(map[string]string{"x": "1", "y": "3", "z": "4"})

	d := versioning.ComputeDiff(prev, next)

	assert.Equal(t, map[string]record.Value{"z": record.Text("4")}, d.Added)
	assert.Empty(t, d.Removed)
	assert.Equal(t, map[string]versioning.Change{
		"y": {Old: record.Text("2"), New: record.Text("3")},
	}, d.Modified)
}

func TestComputeDiffRemovedAndKinds(t *testing.T) {
	prev := record.FromMap(map[string]any{"a": "1", "gone": "x"})
	next := record.FromMap(map[string]any{"a": 1})

	d := versioning.ComputeDiff(prev, next)

	assert.Contains(t, d.Removed, "gone")
	assert.Contains(t, d.Modified, "a", "text and number are different values")
	assert.Empty(t, d.Added)
}

func TestNextVersion(t *testing.T) {
	tests := []struct {
		name string
		ids  []string
		want int
	}{
		{name: "none", want: 1},
		{name: "contiguous", ids: []string{"v1_a.json", "v2_a.json"}, want: 3},
		{name: "gap and order", ids: []string{"v7_b.json", "v2_a.json"}, want: 8},
		{name: "ignores foreign names", ids: []string{"changes.json", "vx_a.json", "v3_c.json"}, want: 4},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, versioning.NextVersion(tt.ids))
		})
	}
}

func TestSnapshotID(t *testing.T) {
	assert.Equal(t, "v3_termsheet.json", versioning.SnapshotID(3, "uploads/termsheet.pdf"))
	assert.Equal(t, "v1_Termsheet_TRADE-1.2_review.json", versioning.SnapshotID(1, "Termsheet TRADE-1.2 review"))
	assert.Equal(t, "v2_record.json", versioning.SnapshotID(2, ""))
}

func TestCommitRequiresTradeID(t *testing.T) {
	_, err := newService().Commit(context.Background(), "  ", record.Record{}, versioning.Metadata{})
	assert.True(t, errors.Is(err, versioning.ErrInvalidTradeID))
}

func TestCommitDistinctTradesConcurrently(t *testing.T) {
	ctx := context.Background()
	svc := newService()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := fmt.Sprintf("TRADE-%d", i)
			for j := 0; j < 3; j++ {
				_, err := svc.Commit(ctx, id, record.FromStrings(map[string]string{"n": fmt.Sprint(j)}), versioning.Metadata{Source: "s.txt"})
				assert.NoError(t, err)
			}
		}(i)
	}
	wg.Wait()

	ids, err := svc.Store().TradeIDs(ctx)
	require.NoError(t, err)
	assert.Len(t, ids, 8)
	for _, id := range ids {
		versions, err := svc.Store().Versions(ctx, id)
		require.NoError(t, err)
		assert.Len(t, versions, 3)
	}
}
