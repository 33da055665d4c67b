package app

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/termsheet-validation/backend/internal/extraction"
	"github.com/termsheet-validation/backend/internal/record"
	"github.com/termsheet-validation/backend/internal/validation"
	"github.com/termsheet-validation/backend/pkg/config"
)

func testConfig(dir string) *config.Config {
	return &config.Config{
		Storage: config.StorageConfig{Driver: "memory"},
		Reference: config.ReferenceConfig{
			Path:   dir,
			Format: "csv",
			Tables: map[string]string{"interestrateswap": "interest_risk_swap"},
		},
		Extraction: config.ExtractionConfig{MaxFileSize: 1 << 20},
		Validation: config.ValidationConfig{FXTolerance: 0.0001},
	}
}

func TestNewWiresPipeline(t *testing.T) {
	dir := t.TempDir()
	csv := "tradeId,notional_amount\nTRADE-1,1000\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "interest_risk_swap.csv"), []byte(csv), 0o644))

	a, err := New(context.Background(), testConfig(dir))
	require.NoError(t, err)
	defer a.Close()
	ctx := context.Background()

	require.NoError(t, a.Ready(ctx))

	out, err := a.Processor.Ingest(ctx, extraction.Document{
		Name:    "ts.txt",
		Content: []byte("Trade ID: TRADE-1\nBuyer: Acme\n"),
	})
	require.NoError(t, err)
	assert.Equal(t, 1, out.Commit.Version)

	rec := record.FromStrings(map[string]string{"tradeId": "TRADE-1", "notional_amount": "1000"})
	report, status, err := a.Validator.Validate(ctx, "irs", rec)
	require.NoError(t, err)
	assert.Equal(t, validation.StatusOK, status)
	assert.True(t, report.Valid)
	assert.Empty(t, report.Anomalies)

	stats, err := a.Store.RunStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.TotalRuns)
}

func TestNewRejectsUnknownDriver(t *testing.T) {
	cfg := testConfig(t.TempDir())
	cfg.Storage.Driver = "mongodb"

	_, err := New(context.Background(), cfg)
	assert.ErrorContains(t, err, "unknown storage driver")
}

func TestNewFailsOnMissingTemplate(t *testing.T) {
	cfg := testConfig(t.TempDir())
	cfg.Extraction.TemplatePath = filepath.Join(t.TempDir(), "missing.yaml")

	_, err := New(context.Background(), cfg)
	assert.ErrorContains(t, err, "failed to load extraction template")
}

func TestValidateWithoutRiskWorkbook(t *testing.T) {
	cfg := testConfig(t.TempDir())
	cfg.Reference = config.ReferenceConfig{
		Path:   filepath.Join(t.TempDir(), "risk_system.xlsx"),
		Format: "xlsx",
		Tables: map[string]string{"amortisedscheduleswap": "amortized_schedule_swap"},
	}

	a, err := New(context.Background(), cfg)
	require.NoError(t, err)
	defer a.Close()

	rec := record.FromMap(map[string]any{
		"tradeId":                 "TRADE-AM-1",
		"amortization_profile":    "custom",
		"initial_notional":        "1000",
		"reduction_dates":         []any{"2025-06-01", "2025-01-01"},
		"reduction_amounts":       []any{100, 200},
		"rate_type":               "fixed",
		"fixed_rate":              "0.04",
		"payment_adjustment_rule": "Following",
	})
	report, status, err := a.Validator.Validate(context.Background(), "AmortisedScheduleSwap", rec)
	require.NoError(t, err)
	assert.Equal(t, validation.StatusNotFound, status)
	assert.False(t, report.Valid)
	require.Len(t, report.Anomalies, 1)
	assert.Equal(t, "reduction_dates", report.Anomalies[0].Field)
	assert.Contains(t, report.Message, "internal validation found issues")
}
