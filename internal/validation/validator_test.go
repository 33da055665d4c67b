package validation

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/termsheet-validation/backend/internal/record"
)

type fakeLookup struct {
	rows map[string]record.Record // keyed by type + "/" + trade id
	err  error
	seen []string
}

func (f *fakeLookup) Lookup(_ context.Context, tradeID, derivativeType string) (record.Record, bool, error) {
	f.seen = append(f.seen, derivativeType+"/"+tradeID)
	if f.err != nil {
		return nil, false, f.err
	}
	rec, ok := f.rows[derivativeType+"/"+tradeID]
	return rec, ok, nil
}

type fakeRecorder struct {
	runs []Run
}

func (f *fakeRecorder) RecordRun(_ context.Context, run Run) error {
	f.runs = append(f.runs, run)
	return nil
}

func (f *fakeRecorder) RunStats(context.Context) (*Stats, error) {
	return NewStats(nil), nil
}

func irsRow(notional string) map[string]string {
	return map[string]string{
		"tradeId":              "TRADE-IRS-1",
		"effective_date":       "2025-01-01",
		"maturity_date":        "2030-01-01",
		"notional_amount":      notional,
		"fixed_rate":           "0.035",
		"floating_rate_index":  "SOFR",
		"payment_frequency":    "Quarterly",
		"day_count_convention": "ACT/360",
		"reset_dates":          "Quarterly",
		"discount_curve":       "USD-OIS",
	}
}

func TestValidateIRSNotionalMismatch(t *testing.T) {
	lookup := &fakeLookup{rows: map[string]record.Record{
		"InterestRateSwap/TRADE-IRS-1": record.FromStrings(irsRow("200")),
	}}
	v := New(lookup)

	report, status, err := v.Validate(context.Background(), "irs", record.FromStrings(irsRow("100")))
	require.NoError(t, err)

	assert.Equal(t, StatusOK, status)
	assert.False(t, report.Valid)
	require.Len(t, report.Anomalies, 1)
	a := report.Anomalies[0]
	assert.Equal(t, "notional_amount", a.Field)
	assert.Equal(t, SeverityHigh, a.Severity)
	assert.Equal(t, "100", a.CurrentValue)
	require.NotNil(t, a.ReferenceValue)
	assert.Equal(t, "200", *a.ReferenceValue)
	assert.Equal(t, "Mismatch in notional_amount", a.Issue)
	assert.Equal(t, "Economic factor mismatch with reference swap in risk file", report.Message)
}

func TestValidateIRSMatchesCaseInsensitively(t *testing.T) {
	ref := map[string]string{}
	for k, v := range irsRow("1000000") {
		ref[strings.ToUpper(k)] = "  " + v + " "
	}
	lookup := &fakeLookup{rows: map[string]record.Record{
		"InterestRateSwap/TRADE-IRS-1": record.FromStrings(ref),
	}}

	rec := record.FromStrings(irsRow("1000000"))
	report, status, err := New(lookup).Validate(context.Background(), "InterestRateSwap", rec)
	require.NoError(t, err)

	assert.Equal(t, StatusOK, status)
	assert.True(t, report.Valid)
	assert.Empty(t, report.Anomalies)
	assert.Equal(t, "Swap matches reference swap in risk file on all economic factors", report.Message)
}

func TestValidateUnknownTrade(t *testing.T) {
	rec := record.FromStrings(irsRow("100"))
	rec["tradeId"] = record.Text("UNKNOWN")

	report, status, err := New(&fakeLookup{}).Validate(context.Background(), "irs", rec)
	require.NoError(t, err)

	assert.Equal(t, StatusNotFound, status)
	assert.False(t, report.Valid)
	assert.Empty(t, report.Anomalies)
	assert.Equal(t, "No reference swap found in risk file for tradeId UNKNOWN.", report.Message)
}

func TestValidateNotFoundKeepsInternalAnomalies(t *testing.T) {
	rec := record.FromStrings(map[string]string{
		"TradeID":               "TRADE-CCS-404",
		"base_notional_amount":  "100",
		"quote_notional_amount": "121",
		"fx_spot_rate":          "1.2",
	})

	report, status, err := New(&fakeLookup{}).Validate(context.Background(), "ccs", rec)
	require.NoError(t, err)

	assert.Equal(t, StatusNotFound, status)
	assert.False(t, report.Valid)
	require.Len(t, report.Anomalies, 1)
	assert.Equal(t, "No reference swap found in risk file for tradeId TRADE-CCS-404, and internal validation found issues.", report.Message)
}

func TestValidateRequiresTradeID(t *testing.T) {
	tests := []struct {
		name string
		rec  record.Record
	}{
		{name: "missing", rec: record.FromStrings(map[string]string{"notional_amount": "1"})},
		{name: "empty", rec: record.FromStrings(map[string]string{"tradeid": " "})},
		{name: "null", rec: record.Record{"tradeId": record.Null()}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lookup := &fakeLookup{}
			report, status, err := New(lookup).Validate(context.Background(), "irs", tt.rec)
			require.NoError(t, err)
			assert.Equal(t, StatusBadRequest, status)
			assert.Equal(t, "tradeId is required", report.Error)
			assert.Empty(t, lookup.seen, "no reference lookup without a trade id")
		})
	}
}

func TestValidateErrors(t *testing.T) {
	_, _, err := New(&fakeLookup{}).Validate(context.Background(), "bond", record.Record{})
	assert.True(t, errors.Is(err, ErrUnsupportedType))

	boom := errors.New("risk file unreadable")
	rec := record.FromStrings(map[string]string{"tradeId": "T1"})
	_, _, err = New(&fakeLookup{err: boom}).Validate(context.Background(), "irs", rec)
	assert.True(t, errors.Is(err, boom))
}

func TestValidateRecordsRuns(t *testing.T) {
	recorder := &fakeRecorder{}
	v := New(&fakeLookup{}, WithRecorder(recorder))

	_, _, err := v.Validate(context.Background(), "irs", record.FromStrings(map[string]string{"tradeId": "T1"}))
	require.NoError(t, err)
	_, _, err = v.Validate(context.Background(), "irs", record.Record{})
	require.NoError(t, err)

	require.Len(t, recorder.runs, 1, "bad requests are not recorded")
	run := recorder.runs[0]
	assert.Equal(t, "T1", run.TradeID)
	assert.Equal(t, "InterestRateSwap", run.Type)
	assert.Equal(t, StatusNotFound, run.Status)
	assert.NotEmpty(t, run.ID)
}

func TestLookupRuleSet(t *testing.T) {
	tests := map[string]string{
		"irs":                     "InterestRateSwap",
		"InterestRateSwap":        "InterestRateSwap",
		"Cross Currency Swap":     "CrossCurrencySwap",
		"CCS":                     "CrossCurrencySwap",
		"amortized":               "AmortisedScheduleSwap",
		"amortised_schedule_swap": "AmortisedScheduleSwap",
	}
	for name, want := range tests {
		rs, err := LookupRuleSet(name)
		require.NoError(t, err, name)
		assert.Equal(t, want, rs.Type, name)
	}

	_, err := LookupRuleSet("FXDigital")
	assert.True(t, errors.Is(err, ErrUnsupportedType))
}

func TestNewStats(t *testing.T) {
	stats := NewStats([]TypeStats{
		{Type: "b", Total: 2, Valid: 1},
		{Type: "a", Total: 1, Valid: 1, NotFound: 0},
	})
	assert.Equal(t, 3, stats.TotalRuns)
	assert.Equal(t, 2, stats.ValidRuns)
	assert.Equal(t, 1, stats.InvalidRuns)
	assert.Equal(t, 66.67, stats.ValidationRate)
	assert.Equal(t, "a", stats.ByType[0].Type)

	empty := NewStats(nil)
	assert.Zero(t, empty.ValidationRate)
	assert.NotNil(t, empty.ByType)
}

func TestCompareStructuredFields(t *testing.T) {
	current := record.FromMap(map[string]any{
		"reduction_dates":   []any{"2025-01-01", "2025-06-01"},
		"reduction_amounts": `[100, 200]`,
	})
	reference := record.FromStrings(map[string]string{
		"reduction_dates":   `["2025-01-01",  "2025-06-01"]`,
		"reduction_amounts": "[100,250]",
	})

	got := compareEconomicFields(amortisedScheduleSwap, current, reference)

	var fields []string
	for _, a := range got {
		fields = append(fields, a.Field)
	}
	assert.NotContains(t, fields, "reduction_dates")
	assert.Contains(t, fields, "reduction_amounts")
}

func TestNotionalConsistency(t *testing.T) {
	d := decimal.RequireFromString
	tol := d("0.0001")

	assert.Len(t, notionalConsistency(d("100"), d("121"), d("1.2"), tol), 1)
	assert.Empty(t, notionalConsistency(d("100"), d("120"), d("1.2"), tol))
	assert.Empty(t, notionalConsistency(d("100"), d("120.01"), d("1.2"), tol))
}
