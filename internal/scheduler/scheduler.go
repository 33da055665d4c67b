// Package scheduler runs the periodic background jobs: sweeping the inbox
// directory for new documents and refreshing cached classifications.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/termsheet-validation/backend/internal/extraction"
	"github.com/termsheet-validation/backend/internal/ingestion"
	"github.com/termsheet-validation/backend/pkg/logger"
)

const (
	processedDir = "processed"
	failedDir    = "failed"
)

// Invalidator drops cached reference data so the next lookup rereads it.
type Invalidator interface {
	Invalidate()
}

type Config struct {
	Interval time.Duration
	// InboxDir is swept on every tick when set.
	InboxDir string
	// Reference is invalidated at the start of every tick when set, so edits
	// to the risk system export are picked up.
	Reference Invalidator
}

// SweepResult counts the documents handled by one inbox sweep.
type SweepResult struct {
	Processed int `json:"processed"`
	Failed    int `json:"failed"`
}

type Scheduler struct {
	processor *ingestion.Processor
	cfg       Config

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	running bool
}

func New(processor *ingestion.Processor, cfg Config) *Scheduler {
	if cfg.Interval <= 0 {
		cfg.Interval = 5 * time.Minute
	}
	return &Scheduler{processor: processor, cfg: cfg}
}

// Start runs the jobs once immediately and then on every interval until
// Stop is called or ctx is done.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}

	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})
	s.running = true

	go s.loop(ctx, s.done)
	logger.Info("Scheduler started",
		zap.Duration("interval", s.cfg.Interval),
		zap.String("inbox", s.cfg.InboxDir),
	)
}

func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	cancel, done := s.cancel, s.done
	s.mu.Unlock()

	cancel()
	<-done
	logger.Info("Scheduler stopped")
}

func (s *Scheduler) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		s.RunOnce(ctx)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// RunOnce refreshes reference data, sweeps the inbox (when configured) and
// reclassifies every trade.
func (s *Scheduler) RunOnce(ctx context.Context) {
	if s.cfg.Reference != nil {
		s.cfg.Reference.Invalidate()
	}

	if s.cfg.InboxDir != "" {
		res, err := s.SweepInbox(ctx)
		if err != nil {
			logger.Error("Inbox sweep failed", zap.Error(err))
		} else if res.Processed+res.Failed > 0 {
			logger.Info("Inbox swept", zap.Int("processed", res.Processed), zap.Int("failed", res.Failed))
		}
	}

	n, err := s.processor.Reclassify(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Reclassification failed", zap.Error(err))
		return
	}
	logger.Debug("Reclassification completed", zap.Int("trades", n))
}

// SweepInbox ingests every supported file directly inside the inbox and
// moves it to processed/ or failed/. Unsupported files are left in place.
func (s *Scheduler) SweepInbox(ctx context.Context) (SweepResult, error) {
	var res SweepResult

	entries, err := os.ReadDir(s.cfg.InboxDir)
	if err != nil {
		return res, fmt.Errorf("failed to read inbox: %w", err)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		if entry.IsDir() {
			continue
		}
		if _, err := extraction.DetectFormat(entry.Name()); err != nil {
			continue
		}

		path := filepath.Join(s.cfg.InboxDir, entry.Name())
		target := processedDir
		if _, err := s.processor.IngestFile(ctx, path); err != nil {
			// Interrupted documents stay in the inbox for the next sweep.
			if ctxErr := ctx.Err(); ctxErr != nil {
				return res, ctxErr
			}
			target = failedDir
			res.Failed++
		} else {
			res.Processed++
		}

		if err := moveInto(path, filepath.Join(s.cfg.InboxDir, target)); err != nil {
			return res, err
		}
	}
	return res, nil
}

// moveInto moves path into dir, suffixing the name with a timestamp when a
// file of that name was already moved there.
func moveInto(path, dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create %s: %w", dir, err)
	}

	name := filepath.Base(path)
	dest := filepath.Join(dir, name)
	if _, err := os.Stat(dest); err == nil {
		ext := filepath.Ext(name)
		dest = filepath.Join(dir, fmt.Sprintf("%s_%d%s", name[:len(name)-len(ext)], time.Now().UnixNano(), ext))
	}

	if err := os.Rename(path, dest); err != nil {
		return fmt.Errorf("failed to move %s: %w", name, err)
	}
	return nil
}
