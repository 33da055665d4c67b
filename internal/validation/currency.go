package validation

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/termsheet-validation/backend/internal/record"
)

func checkCurrencySwap(rec record.Record, opts checkOptions) []Anomaly {
	var out []Anomaly
	out = append(out, checkCurrencyNotionals(rec, opts.fxTolerance)...)
	out = append(out, checkPrincipalExchange(rec)...)
	out = append(out, checkLegRateTypes(rec)...)
	return out
}

// numberOrZero reads a numeric field; an absent field counts as zero.
func numberOrZero(rec record.Record, field string) (decimal.Decimal, error) {
	v, ok := rec.Get(field)
	if !ok {
		return decimal.Zero, nil
	}
	d, err := v.Decimal()
	if err != nil {
		return decimal.Zero, fmt.Errorf("%s: %w", field, err)
	}
	return d, nil
}

// checkCurrencyNotionals requires quote = base × fx within a relative
// tolerance.
func checkCurrencyNotionals(rec record.Record, tolerance decimal.Decimal) []Anomaly {
	base, err := numberOrZero(rec, "base_notional_amount")
	if err == nil {
		var quote, fx decimal.Decimal
		if quote, err = numberOrZero(rec, "quote_notional_amount"); err == nil {
			if fx, err = numberOrZero(rec, "fx_spot_rate"); err == nil {
				return notionalConsistency(base, quote, fx, tolerance)
			}
		}
	}
	return []Anomaly{{
		Field:    "notional_amounts",
		Issue:    "Error validating notional amounts: " + err.Error(),
		Severity: SeverityHigh,
	}}
}

func notionalConsistency(base, quote, fx, tolerance decimal.Decimal) []Anomaly {
	if !base.IsPositive() || !quote.IsPositive() || !fx.IsPositive() {
		return []Anomaly{{
			Field:    "notional_amounts",
			Issue:    "Invalid notional amounts or FX rate (must be positive)",
			Severity: SeverityHigh,
		}}
	}

	expected := base.Mul(fx)
	relDiff := expected.Sub(quote).Abs().Div(quote)
	if relDiff.GreaterThan(tolerance) {
		return []Anomaly{{
			Field:         "notional_amounts",
			CurrentValue:  fmt.Sprintf("Base: %s, Quote: %s, FX: %s", base, quote, fx),
			ExpectedValue: fmt.Sprintf("Expected Quote Notional: %s", expected),
			Issue:         "Notional amounts inconsistent with FX spot rate",
			Severity:      SeverityHigh,
		}}
	}
	return nil
}

// checkPrincipalExchange expects both principal exchanges on an amortizing
// (non-bullet) schedule.
func checkPrincipalExchange(rec record.Record) []Anomaly {
	switch strings.ToLower(rec.Text("amortization_schedule")) {
	case "", "none", "bullet":
		return nil
	}

	var out []Anomaly
	for _, end := range []string{"initial", "final"} {
		field := "principal_exchange_" + end
		if strings.ToLower(rec.Text(field)) == "true" {
			continue
		}
		out = append(out, Anomaly{
			Field:        field,
			CurrentValue: rec.Text(field),
			Issue:        fmt.Sprintf("Amortizing swap should have %s principal exchange", end),
			Severity:     SeverityMedium,
		})
	}
	return out
}

func checkLegRateTypes(rec record.Record) []Anomaly {
	var out []Anomaly
	for _, leg := range []string{"base", "quote"} {
		title := strings.ToUpper(leg[:1]) + leg[1:]
		rateType := strings.ToLower(rec.Text(leg + "_leg_rate_type"))

		switch rateType {
		case "":
		case "fixed":
			if isBlank(rec, leg+"_leg_fixed_rate") {
				out = append(out, Anomaly{
					Field:    leg + "_leg_fixed_rate",
					Issue:    title + " leg is fixed but no fixed rate specified",
					Severity: SeverityHigh,
				})
			}
		case "floating":
			if isBlank(rec, leg+"_leg_floating_index") {
				out = append(out, Anomaly{
					Field:    leg + "_leg_floating_index",
					Issue:    title + " leg is floating but no floating index specified",
					Severity: SeverityHigh,
				})
			}
		default:
			out = append(out, Anomaly{
				Field:        leg + "_leg_rate_type",
				CurrentValue: rateType,
				Issue:        fmt.Sprintf("Invalid %s leg rate type (should be 'fixed' or 'floating')", leg),
				Severity:     SeverityHigh,
			})
		}
	}
	return out
}

// isBlank reports whether field is absent or holds an empty value.
func isBlank(rec record.Record, field string) bool {
	v, ok := rec.Get(field)
	return !ok || v.IsEmpty()
}
