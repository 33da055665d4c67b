package scheduler

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/termsheet-validation/backend/internal/classification"
	"github.com/termsheet-validation/backend/internal/extraction"
	"github.com/termsheet-validation/backend/internal/ingestion"
	"github.com/termsheet-validation/backend/internal/schema"
	"github.com/termsheet-validation/backend/internal/storage/memory"
	"github.com/termsheet-validation/backend/internal/versioning"
)

func newTestProcessor(t *testing.T, store versioning.Store) *ingestion.Processor {
	t.Helper()
	catalog := schema.Default()
	extractor, err := extraction.New(catalog.Sections())
	require.NoError(t, err)
	return ingestion.NewProcessor(extractor, versioning.NewService(store), classification.New(catalog))
}

func newTestScheduler(t *testing.T, inbox string) (*Scheduler, *memory.Store) {
	t.Helper()
	store := memory.NewStore()
	return New(newTestProcessor(t, store), Config{Interval: time.Hour, InboxDir: inbox}), store
}

// cancellingStore cancels the sweep while a document is being committed.
type cancellingStore struct {
	*memory.Store
	cancel context.CancelFunc
}

func (s *cancellingStore) Append(ctx context.Context, _ *versioning.Snapshot, _ *versioning.Diff) error {
	s.cancel()
	return ctx.Err()
}

type countingInvalidator struct{ calls atomic.Int32 }

func (c *countingInvalidator) Invalidate() { c.calls.Add(1) }

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

func TestSweepInbox(t *testing.T) {
	inbox := t.TempDir()
	writeFile(t, inbox, "a.txt", "Trade ID: TRADE-A\nBuyer: Acme\n")
	writeFile(t, inbox, "b.txt", "   \n")
	writeFile(t, inbox, "notes.csv", "ignored")
	require.NoError(t, os.Mkdir(filepath.Join(inbox, "nested"), 0o755))

	s, store := newTestScheduler(t, inbox)

	res, err := s.SweepInbox(context.Background())
	require.NoError(t, err)
	assert.Equal(t, SweepResult{Processed: 1, Failed: 1}, res)

	assert.FileExists(t, filepath.Join(inbox, processedDir, "a.txt"))
	assert.FileExists(t, filepath.Join(inbox, failedDir, "b.txt"))
	assert.FileExists(t, filepath.Join(inbox, "notes.csv"))
	assert.NoFileExists(t, filepath.Join(inbox, "a.txt"))

	ids, err := store.TradeIDs(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"TRADE-A"}, ids)

	res, err = s.SweepInbox(context.Background())
	require.NoError(t, err)
	assert.Equal(t, SweepResult{}, res, "moved files are not picked up again")
}

func TestSweepInboxKeepsEarlierCopies(t *testing.T) {
	inbox := t.TempDir()
	s, _ := newTestScheduler(t, inbox)

	for i := 0; i < 2; i++ {
		writeFile(t, inbox, "a.txt", "Trade ID: TRADE-A\nBuyer: Acme\n")
		_, err := s.SweepInbox(context.Background())
		require.NoError(t, err)
	}

	entries, err := os.ReadDir(filepath.Join(inbox, processedDir))
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}

func TestSweepInboxMissingDir(t *testing.T) {
	s, _ := newTestScheduler(t, filepath.Join(t.TempDir(), "absent"))
	_, err := s.SweepInbox(context.Background())
	assert.Error(t, err)
}

func TestStartRunsImmediately(t *testing.T) {
	inbox := t.TempDir()
	writeFile(t, inbox, "a.txt", "Trade ID: TRADE-A\nBuyer: Acme\n")
	s, store := newTestScheduler(t, inbox)

	s.Start(context.Background())
	s.Start(context.Background())

	assert.Eventually(t, func() bool {
		ids, err := store.TradeIDs(context.Background())
		return err == nil && len(ids) == 1
	}, 5*time.Second, 10*time.Millisecond)

	s.Stop()
	s.Stop()
}

func TestSweepInboxLeavesInterruptedFiles(t *testing.T) {
	inbox := t.TempDir()
	writeFile(t, inbox, "a.txt", "Trade ID: TRADE-A\nBuyer: Acme\n")
	writeFile(t, inbox, "b.txt", "Trade ID: TRADE-B\nBuyer: Acme\n")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	store := &cancellingStore{Store: memory.NewStore(), cancel: cancel}
	s := New(newTestProcessor(t, store), Config{Interval: time.Hour, InboxDir: inbox})

	res, err := s.SweepInbox(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, SweepResult{}, res)
	assert.FileExists(t, filepath.Join(inbox, "a.txt"))
	assert.FileExists(t, filepath.Join(inbox, "b.txt"))
	assert.NoDirExists(t, filepath.Join(inbox, failedDir))
}

func TestRunOnceInvalidatesReference(t *testing.T) {
	ref := &countingInvalidator{}
	s := New(newTestProcessor(t, memory.NewStore()), Config{Interval: time.Hour, Reference: ref})

	s.RunOnce(context.Background())
	s.RunOnce(context.Background())
	assert.Equal(t, int32(2), ref.calls.Load())
}
