// Package ingestion runs documents through extraction, versioning and
// classification, and announces each outcome on an event hub.
package ingestion

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/termsheet-validation/backend/internal/classification"
	"github.com/termsheet-validation/backend/internal/extraction"
	"github.com/termsheet-validation/backend/internal/metrics"
	"github.com/termsheet-validation/backend/internal/record"
	"github.com/termsheet-validation/backend/internal/versioning"
	"github.com/termsheet-validation/backend/pkg/logger"
	"github.com/termsheet-validation/backend/pkg/utils"
)

// ReportCache keeps classification reports per trade version.
type ReportCache interface {
	GetClassification(ctx context.Context, tradeID string, version int) (*classification.Report, bool, error)
	SetClassification(ctx context.Context, tradeID string, version int, report *classification.Report) error
	// InvalidateTrade drops the reports of every version of a trade.
	InvalidateTrade(ctx context.Context, tradeID string) error
}

type Option func(*Processor)

func WithCache(cache ReportCache) Option {
	return func(p *Processor) { p.cache = cache }
}

func WithHub(hub *Hub) Option {
	return func(p *Processor) { p.hub = hub }
}

type Processor struct {
	extractor  *extraction.Extractor
	versions   *versioning.Service
	classifier *classification.Classifier
	cache      ReportCache
	hub        *Hub
	locks      *keyedMutex
}

func NewProcessor(extractor *extraction.Extractor, versions *versioning.Service, classifier *classification.Classifier, opts ...Option) *Processor {
	p := &Processor{
		extractor:  extractor,
		versions:   versions,
		classifier: classifier,
		hub:        NewHub(),
		locks:      newKeyedMutex(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Processor) Hub() *Hub {
	return p.hub
}

// Outcome is the result of ingesting one document.
type Outcome struct {
	Checksum       string                   `json:"checksum"`
	Extraction     *extraction.Result       `json:"extraction"`
	Commit         *versioning.CommitResult `json:"commit"`
	Classification *classification.Report   `json:"classification"`
}

// IngestFile reads a document from disk and ingests it.
func (p *Processor) IngestFile(ctx context.Context, path string) (*Outcome, error) {
	format, err := extraction.DetectFormat(path)
	if err != nil {
		return nil, err
	}
	content, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", extraction.ErrDocumentNotFound, path)
		}
		return nil, fmt.Errorf("failed to read document: %w", err)
	}
	return p.Ingest(ctx, extraction.Document{Name: filepath.Base(path), Format: format, Content: content})
}

// Ingest extracts doc, commits the record as the next version of its trade
// and classifies it. Commits for the same trade are serialized.
func (p *Processor) Ingest(ctx context.Context, doc extraction.Document) (*Outcome, error) {
	format := string(doc.Format)
	if format == "" {
		if f, err := extraction.DetectFormat(doc.Name); err == nil {
			format = string(f)
		}
	}

	outcome, err := p.ingest(ctx, doc)
	if err != nil {
		metrics.DocumentsIngested.WithLabelValues(format, "failed").Inc()
		p.hub.Publish(Event{Type: EventFailed, Source: doc.Name, Error: err.Error()})
		logger.Warn("Document ingestion failed", zap.String("document", doc.Name), zap.Error(err))
		return nil, err
	}

	metrics.DocumentsIngested.WithLabelValues(string(outcome.Extraction.Format), "ok").Inc()
	metrics.VersionsCommitted.WithLabelValues(outcome.Commit.Status).Inc()
	p.hub.Publish(Event{
		Type:       EventIngested,
		TradeID:    outcome.Commit.TradeID,
		Version:    outcome.Commit.Version,
		Status:     outcome.Commit.Status,
		Source:     outcome.Extraction.Source,
		Primary:    outcome.Classification.Primary,
		Confidence: outcome.Classification.Confidence,
	})
	logger.Info("Document ingested",
		zap.String("document", doc.Name),
		zap.String("checksum", outcome.Checksum),
		zap.String("trade_id", outcome.Commit.TradeID),
		zap.Int("version", outcome.Commit.Version),
		zap.String("primary", outcome.Classification.Primary),
	)
	return outcome, nil
}

func (p *Processor) ingest(ctx context.Context, doc extraction.Document) (*Outcome, error) {
	start := time.Now()
	res, err := p.extractor.Extract(ctx, doc)
	if err != nil {
		return nil, err
	}
	metrics.ExtractionDuration.WithLabelValues(string(res.Format)).Observe(time.Since(start).Seconds())

	rec := record.FromStrings(res.Record)

	unlock := p.locks.Lock(res.TradeID)
	commit, err := p.versions.Commit(ctx, res.TradeID, rec, versioning.Metadata{Source: res.Source})
	unlock()
	if err != nil {
		return nil, fmt.Errorf("failed to commit trade %s: %w", res.TradeID, err)
	}

	// Reports of superseded versions are never read again.
	if p.cache != nil && commit.Version > 1 {
		if err := p.cache.InvalidateTrade(ctx, commit.TradeID); err != nil {
			logger.Warn("Failed to invalidate cached classifications", zap.String("trade_id", commit.TradeID), zap.Error(err))
		}
	}

	report := p.classify(ctx, commit.TradeID, commit.Version, rec)

	return &Outcome{
		Checksum:       utils.Checksum(doc.Content),
		Extraction:     res,
		Commit:         commit,
		Classification: report,
	}, nil
}

// Classification returns the report for the latest snapshot of a trade,
// from the cache when possible.
func (p *Processor) Classification(ctx context.Context, tradeID string) (*classification.Report, error) {
	latest, err := p.versions.Store().Latest(ctx, tradeID)
	if err != nil {
		return nil, err
	}

	if p.cache != nil {
		report, found, err := p.cache.GetClassification(ctx, latest.TradeID, latest.Version)
		if err != nil {
			logger.Warn("Classification cache read failed", zap.String("trade_id", tradeID), zap.Error(err))
		} else if found {
			return report, nil
		}
	}

	return p.classify(ctx, latest.TradeID, latest.Version, latest.Data), nil
}

// Reclassify refreshes the cached report of every tracked trade and
// returns how many trades it visited.
func (p *Processor) Reclassify(ctx context.Context) (int, error) {
	ids, err := p.versions.Store().TradeIDs(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list trades: %w", err)
	}
	metrics.TradesTracked.Set(float64(len(ids)))

	n := 0
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return n, err
		}
		latest, err := p.versions.Store().Latest(ctx, id)
		if err != nil {
			logger.Warn("Failed to load latest snapshot", zap.String("trade_id", id), zap.Error(err))
			continue
		}
		report := p.classify(ctx, latest.TradeID, latest.Version, latest.Data)
		p.hub.Publish(Event{
			Type:       EventReclassified,
			TradeID:    latest.TradeID,
			Version:    latest.Version,
			Primary:    report.Primary,
			Confidence: report.Confidence,
		})
		n++
	}
	return n, nil
}

func (p *Processor) classify(ctx context.Context, tradeID string, version int, rec record.Record) *classification.Report {
	report := p.classifier.Classify(rec)
	report.TradeID = tradeID
	report.Version = version

	metrics.Classifications.WithLabelValues(report.Primary).Inc()
	metrics.ClassificationConfidence.Observe(report.Confidence)

	if p.cache != nil {
		if err := p.cache.SetClassification(ctx, tradeID, version, report); err != nil {
			logger.Warn("Failed to cache classification", zap.String("trade_id", tradeID), zap.Error(err))
		}
	}
	return report
}
