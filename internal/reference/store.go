package reference

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"
	"unicode"

	"github.com/patrickmn/go-cache"
	"go.uber.org/zap"

	"github.com/termsheet-validation/backend/internal/record"
	"github.com/termsheet-validation/backend/internal/validation"
	"github.com/termsheet-validation/backend/pkg/logger"
	"github.com/termsheet-validation/backend/pkg/retry"
)

var _ validation.ReferenceLookup = (*Store)(nil)

const defaultTTL = 5 * time.Minute

// Store answers reference lookups from a Source, keeping loaded tables for
// the configured TTL.
type Store struct {
	source Source
	tables map[string]string
	cache  *cache.Cache
	retry  retry.Config
}

// NewStore maps derivative type names to table names. Type names are
// matched ignoring case and punctuation, so "InterestRateSwap" and
// "interest_rate_swap" select the same table.
func NewStore(source Source, tables map[string]string, ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	byType := make(map[string]string, len(tables))
	for typ, table := range tables {
		byType[typeKey(typ)] = table
	}

	cfg := retry.DefaultConfig()
	cfg.Logger = logger.GetLogger()

	return &Store{
		source: source,
		tables: byType,
		cache:  cache.New(ttl, 2*ttl),
		retry:  cfg,
	}
}

// Lookup implements validation.ReferenceLookup. A missing risk file, a
// missing or unconfigured table, and a table without a trade id column all
// hold no matching row. Only unreadable data is an error.
func (s *Store) Lookup(ctx context.Context, tradeID, derivativeType string) (record.Record, bool, error) {
	name, ok := s.tables[typeKey(derivativeType)]
	if !ok {
		logger.Warn("No reference table configured",
			zap.String("type", derivativeType),
			zap.String("trade_id", tradeID),
		)
		return nil, false, nil
	}

	table, err := s.Table(ctx, name)
	if isMissing(err) {
		logger.Warn("Reference table unavailable",
			zap.String("table", name),
			zap.String("trade_id", tradeID),
			zap.Error(err),
		)
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	rec, found := table.Find(tradeID)
	logger.Debug("Reference lookup",
		zap.String("table", name),
		zap.String("trade_id", tradeID),
		zap.Bool("found", found),
	)
	return rec, found, nil
}

// Table loads (or returns the cached copy of) a named table.
func (s *Store) Table(ctx context.Context, name string) (*Table, error) {
	if cached, ok := s.cache.Get(name); ok {
		return cached.(*Table), nil
	}

	rows, err := retry.DoWithResult(ctx, s.retry, func() ([][]string, error) {
		rows, err := s.source.Rows(ctx, name)
		if errors.Is(err, ErrTableNotFound) || errors.Is(err, fs.ErrNotExist) {
			return nil, retry.Permanent(err)
		}
		return rows, err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load reference table %s: %w", name, err)
	}

	table, err := NewTable(name, rows)
	if err != nil {
		return nil, err
	}

	s.cache.SetDefault(name, table)
	logger.Info("Reference table loaded", zap.String("table", name), zap.Int("rows", table.Len()))
	return table, nil
}

// Invalidate drops every cached table.
func (s *Store) Invalidate() {
	s.cache.Flush()
}

func isMissing(err error) bool {
	return errors.Is(err, ErrTableNotFound) ||
		errors.Is(err, ErrNoTradeIDColumn) ||
		errors.Is(err, fs.ErrNotExist)
}

func typeKey(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}
