package validation

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/termsheet-validation/backend/internal/record"
)

var defaultOpts = checkOptions{fxTolerance: decimal.NewFromFloat(DefaultFXTolerance)}

func issues(anomalies []Anomaly) []string {
	out := make([]string, 0, len(anomalies))
	for _, a := range anomalies {
		out = append(out, a.Issue)
	}
	return out
}

func TestCurrencySwapNotionals(t *testing.T) {
	tests := []struct {
		name     string
		fields   map[string]string
		want     []string
		wantHigh int
	}{
		{
			name:     "quote off by more than tolerance",
			fields:   map[string]string{"base_notional_amount": "100", "quote_notional_amount": "121", "fx_spot_rate": "1.2"},
			want:     []string{"Notional amounts inconsistent with FX spot rate"},
			wantHigh: 1,
		},
		{
			name:   "consistent",
			fields: map[string]string{"base_notional_amount": "100", "quote_notional_amount": "120", "fx_spot_rate": "1.2"},
			want:   []string{},
		},
		{
			name:     "missing fx rate",
			fields:   map[string]string{"base_notional_amount": "100", "quote_notional_amount": "120"},
			want:     []string{"Invalid notional amounts or FX rate (must be positive)"},
			wantHigh: 1,
		},
		{
			name:     "unparseable notional",
			fields:   map[string]string{"base_notional_amount": "ten", "quote_notional_amount": "120", "fx_spot_rate": "1.2"},
			wantHigh: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := checkCurrencySwap(record.FromStrings(tt.fields), defaultOpts)
			if tt.want != nil {
				assert.Equal(t, tt.want, issues(got))
			}
			high := 0
			for _, a := range got {
				if a.Severity == SeverityHigh {
					high++
				}
			}
			assert.Equal(t, tt.wantHigh, high)
		})
	}
}

func TestCurrencySwapNotionalMessage(t *testing.T) {
	got := checkCurrencyNotionals(record.FromStrings(map[string]string{
		"base_notional_amount": "100", "quote_notional_amount": "121", "fx_spot_rate": "1.2",
	}), defaultOpts.fxTolerance)

	require.Len(t, got, 1)
	assert.Equal(t, "notional_amounts", got[0].Field)
	assert.Equal(t, "Base: 100, Quote: 121, FX: 1.2", got[0].CurrentValue)
	assert.Equal(t, "Expected Quote Notional: 120", got[0].ExpectedValue)
}

func TestCurrencySwapUnparseableMessage(t *testing.T) {
	got := checkCurrencyNotionals(record.FromStrings(map[string]string{"base_notional_amount": "ten"}), defaultOpts.fxTolerance)
	require.Len(t, got, 1)
	assert.Contains(t, got[0].Issue, "Error validating notional amounts: base_notional_amount")
}

func TestCurrencySwapPrincipalAndLegs(t *testing.T) {
	rec := record.FromStrings(map[string]string{
		"base_notional_amount":       "100",
		"quote_notional_amount":      "120",
		"fx_spot_rate":               "1.2",
		"amortization_schedule":      "Quarterly",
		"principal_exchange_initial": "TRUE",
		"principal_exchange_final":   "no",
		"base_leg_rate_type":         "Fixed",
		"quote_leg_rate_type":        "floating",
		"quote_leg_floating_index":   "EURIBOR",
	})

	got := checkCurrencySwap(rec, defaultOpts)
	assert.Equal(t, []string{
		"Amortizing swap should have final principal exchange",
		"Base leg is fixed but no fixed rate specified",
	}, issues(got))
	assert.Equal(t, SeverityMedium, got[0].Severity)
	assert.Equal(t, "no", got[0].CurrentValue)
	assert.Equal(t, SeverityHigh, got[1].Severity)

	rec["base_leg_rate_type"] = record.Text("hybrid")
	rec["amortization_schedule"] = record.Text("Bullet")
	got = checkCurrencySwap(rec, defaultOpts)
	assert.Equal(t, []string{"Invalid base leg rate type (should be 'fixed' or 'floating')"}, issues(got))
	assert.Equal(t, "hybrid", got[0].CurrentValue)
}

func TestCurrencySwapValidAgainstReference(t *testing.T) {
	fields := map[string]string{
		"tradeId":               "TRADE-CCS-1",
		"base_currency":         "USD",
		"quote_currency":        "EUR",
		"base_notional_amount":  "100",
		"quote_notional_amount": "120",
		"fx_spot_rate":          "1.2",
	}
	lookup := &fakeLookup{rows: map[string]record.Record{"CrossCurrencySwap/TRADE-CCS-1": record.FromStrings(fields)}}

	report, status, err := New(lookup).Validate(context.Background(), "ccs", record.FromStrings(fields))
	require.NoError(t, err)
	assert.Equal(t, StatusOK, status)
	assert.True(t, report.Valid)
	assert.Equal(t, "Currency swap matches reference swap in risk file on all economic factors", report.Message)

	fields["quote_notional_amount"] = "121"
	report, _, err = New(lookup).Validate(context.Background(), "ccs", record.FromStrings(fields))
	require.NoError(t, err)
	assert.False(t, report.Valid)
	assert.Equal(t, "Currency swap validation found issues", report.Message)
	// internal check plus the reference mismatch
	assert.Equal(t, 2, report.HighCount())
}

func TestCurrencySwapTolerance(t *testing.T) {
	rec := record.FromStrings(map[string]string{
		"tradeId": "T", "base_notional_amount": "100", "quote_notional_amount": "121", "fx_spot_rate": "1.2",
	})

	report, _, err := New(&fakeLookup{}, WithFXTolerance(0.01)).Validate(context.Background(), "ccs", rec)
	require.NoError(t, err)
	assert.Empty(t, report.Anomalies)
}

func amortisedBase() map[string]any {
	return map[string]any{
		"amortization_profile":    "custom",
		"initial_notional":        "1000",
		"reduction_dates":         `["2025-01-01", "2025-06-01"]`,
		"reduction_amounts":       `[100, 200]`,
		"rate_type":               "fixed",
		"fixed_rate":              "0.04",
		"payment_adjustment_rule": "Modified Following",
	}
}

func TestAmortisedSwapRules(t *testing.T) {
	tests := []struct {
		name   string
		change map[string]any
		drop   []string
		want   []string
	}{
		{name: "clean", want: []string{}},
		{name: "non-positive initial", change: map[string]any{"initial_notional": "0"}, want: []string{"Initial notional must be positive"}},
		{name: "missing initial", drop: []string{"initial_notional"}, want: []string{"Initial notional must be positive"}},
		{name: "bad initial", change: map[string]any{"initial_notional": "lots"}, want: []string{"Invalid initial notional format"}},
		{name: "negative residual", change: map[string]any{"residual_notional": "-1"}, want: []string{"Residual notional cannot be negative"}},
		{name: "residual above initial", change: map[string]any{"residual_notional": 5000}, want: []string{"Residual notional cannot be greater than initial notional"}},
		{name: "bad residual", change: map[string]any{"residual_notional": "n/a"}, want: []string{"Invalid residual notional format"}},
		{
			name:   "invalid json dates",
			change: map[string]any{"reduction_dates": "2025-01-01"},
			want: []string{
				"Invalid JSON format for reduction dates",
				"Reduction dates and amounts must have the same length",
			},
		},
		{
			name:   "amounts not a list",
			change: map[string]any{"reduction_amounts": `{"a": 1}`},
			want:   []string{"Reduction amounts must be a list"},
		},
		{name: "length mismatch", change: map[string]any{"reduction_amounts": []any{100}}, want: []string{"Reduction dates and amounts must have the same length"}},
		{name: "unpadded dates", change: map[string]any{"reduction_dates": []any{"2025-1-5", "2025-06-01"}}, want: []string{}},
		{name: "unpadded dates out of order", change: map[string]any{"reduction_dates": []any{"2025-12-1", "2025-6-01"}}, want: []string{"Reduction dates must be in chronological order"}},
		{name: "bad date", change: map[string]any{"reduction_dates": []any{"2025-01-01", "01/06/2025"}}, want: []string{"Invalid date format in reduction dates"}},
		{name: "non-positive amount", change: map[string]any{"reduction_amounts": []any{100, 0}}, want: []string{"All reduction amounts must be positive"}},
		{name: "bad amount", change: map[string]any{"reduction_amounts": []any{100, "x"}}, want: []string{"Invalid amount format in reduction amounts"}},
		{name: "total exceeds initial", change: map[string]any{"reduction_amounts": []any{600, 500}}, want: []string{"Total reduction amount exceeds initial notional"}},
		{name: "linear without frequency", change: map[string]any{"amortization_profile": "Linear"}, want: []string{"Payment frequency required for linear amortization"}},
		{name: "fixed without rate", drop: []string{"fixed_rate"}, want: []string{"Fixed rate is required for fixed rate swaps"}},
		{name: "negative fixed rate", change: map[string]any{"fixed_rate": "-0.01"}, want: []string{"Fixed rate cannot be negative"}},
		{name: "bad fixed rate", change: map[string]any{"fixed_rate": "4%"}, want: []string{"Invalid fixed rate format"}},
		{
			name:   "floating without reference or reset",
			change: map[string]any{"rate_type": "floating", "spread": "ten bps"},
			want: []string{
				"Reference rate is required for floating rate swaps",
				"Reset frequency is required for floating rate swaps",
				"Invalid spread format",
			},
		},
		{name: "unknown rate type", change: map[string]any{"rate_type": "zero"}, want: []string{"Invalid rate type (should be 'fixed' or 'floating')"}},
		{name: "missing rate type", drop: []string{"rate_type"}, want: []string{"Rate type is required"}},
		{
			name:   "bad adjustment rule",
			change: map[string]any{"payment_adjustment_rule": "Nearest"},
			want:   []string{"Invalid payment adjustment rule. Valid rules are: following, modified following, preceding, modified preceding, unadjusted"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fields := amortisedBase()
			for k, v := range tt.change {
				fields[k] = v
			}
			for _, k := range tt.drop {
				delete(fields, k)
			}
			got := checkAmortisedSwap(record.FromMap(fields), defaultOpts)
			assert.Equal(t, tt.want, issues(got))
		})
	}
}

func TestAmortisedSwapAnomalyDetails(t *testing.T) {
	fields := amortisedBase()
	fields["reduction_amounts"] = []any{600, 500}
	fields["residual_notional"] = "2000"

	got := checkAmortisedSwap(record.FromMap(fields), defaultOpts)
	require.Len(t, got, 2)

	assert.Equal(t, "residual_notional", got[0].Field)
	require.NotNil(t, got[0].ReferenceValue)
	assert.Equal(t, "1000", *got[0].ReferenceValue)

	assert.Equal(t, "amortization_schedule", got[1].Field)
	assert.Equal(t, "Total reduction: 1100, Initial notional: 1000", got[1].CurrentValue)
}

func TestReductionDatesOutOfOrderAlwaysFlagged(t *testing.T) {
	profiles := []string{"custom", "Custom Schedule", "linear", "bullet", ""}
	for _, profile := range profiles {
		t.Run(profile, func(t *testing.T) {
			fields := amortisedBase()
			fields["amortization_profile"] = profile
			fields["payment_frequency"] = "Monthly"
			fields["reduction_dates"] = []any{"2025-06-01", "2025-01-01"}

			got := checkAmortisedSwap(record.FromMap(fields), defaultOpts)

			var found bool
			for _, a := range got {
				if a.Field == "reduction_dates" && a.Issue == "Reduction dates must be in chronological order" {
					found = true
					assert.Equal(t, SeverityHigh, a.Severity)
				}
			}
			assert.True(t, found, "profile %q", profile)
		})
	}
}

func TestAmortisedSwapEqualDatesAreNotChronological(t *testing.T) {
	fields := amortisedBase()
	fields["reduction_dates"] = []any{"2025-01-01", "2025-01-01"}

	got := checkAmortisedSwap(record.FromMap(fields), defaultOpts)
	assert.Equal(t, []string{"Reduction dates must be in chronological order"}, issues(got))
}
