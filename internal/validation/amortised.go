package validation

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/termsheet-validation/backend/internal/record"
)

// reductionDateLayout reads YYYY-MM-DD with or without zero padding.
const reductionDateLayout = "2006-1-2"

var paymentAdjustmentRules = []string{"following", "modified following", "preceding", "modified preceding", "unadjusted"}

func checkAmortisedSwap(rec record.Record, _ checkOptions) []Anomaly {
	var out []Anomaly
	out = append(out, checkAmortizationSchedule(rec)...)
	out = append(out, checkRateSpecification(rec)...)
	out = append(out, checkPaymentAdjustment(rec)...)
	return out
}

func checkAmortizationSchedule(rec record.Record) []Anomaly {
	var out []Anomaly
	profile := strings.ToLower(rec.Text("amortization_profile"))

	initial, err := numberOrZero(rec, "initial_notional")
	initialOK := err == nil
	switch {
	case !initialOK:
		out = append(out, Anomaly{
			Field:        "initial_notional",
			CurrentValue: rec.Text("initial_notional"),
			Issue:        "Invalid initial notional format",
			Severity:     SeverityHigh,
		})
	case !initial.IsPositive():
		out = append(out, Anomaly{
			Field:        "initial_notional",
			CurrentValue: initial.String(),
			Issue:        "Initial notional must be positive",
			Severity:     SeverityHigh,
		})
	}

	if _, ok := rec.Get("residual_notional"); ok {
		out = append(out, checkResidualNotional(rec, initial, initialOK)...)
	}

	switch profile {
	case "custom", "custom schedule":
		out = append(out, checkCustomSchedule(rec, initial, initialOK)...)
	case "linear":
		if isBlank(rec, "payment_frequency") {
			out = append(out, Anomaly{
				Field:    "payment_frequency",
				Issue:    "Payment frequency required for linear amortization",
				Severity: SeverityMedium,
			})
		}
		out = append(out, checkReductionOrderOnly(rec)...)
	default:
		out = append(out, checkReductionOrderOnly(rec)...)
	}
	return out
}

func checkResidualNotional(rec record.Record, initial decimal.Decimal, initialOK bool) []Anomaly {
	v, _ := rec.Get("residual_notional")
	residual, err := v.Decimal()
	if err != nil {
		return []Anomaly{{
			Field:        "residual_notional",
			CurrentValue: rec.Text("residual_notional"),
			Issue:        "Invalid residual notional format",
			Severity:     SeverityHigh,
		}}
	}

	var out []Anomaly
	if residual.IsNegative() {
		out = append(out, Anomaly{
			Field:        "residual_notional",
			CurrentValue: residual.String(),
			Issue:        "Residual notional cannot be negative",
			Severity:     SeverityHigh,
		})
	}
	if initialOK && residual.GreaterThan(initial) {
		out = append(out, Anomaly{
			Field:          "residual_notional",
			CurrentValue:   residual.String(),
			ReferenceValue: strPtr(initial.String()),
			Issue:          "Residual notional cannot be greater than initial notional",
			Severity:       SeverityHigh,
		})
	}
	return out
}

// scheduleList reads reduction_dates or reduction_amounts. JSON text is
// decoded; an absent field is an empty list. isList is false when the value
// decoded to something other than a list.
func scheduleList(rec record.Record, field, label string) (items []record.Value, isList bool, anomalies []Anomaly) {
	v, ok := rec.Get(field)
	if !ok {
		return nil, true, nil
	}

	decoded, err := v.Decode()
	if err != nil {
		return nil, true, []Anomaly{{
			Field:        field,
			CurrentValue: v.String(),
			Issue:        "Invalid JSON format for " + label,
			Severity:     SeverityHigh,
		}}
	}

	items, err = decoded.Items()
	if err != nil {
		return nil, false, []Anomaly{{
			Field:        field,
			CurrentValue: decoded.String(),
			Issue:        strings.ToUpper(label[:1]) + label[1:] + " must be a list",
			Severity:     SeverityHigh,
		}}
	}
	return items, true, nil
}

func checkCustomSchedule(rec record.Record, initial decimal.Decimal, initialOK bool) []Anomaly {
	dates, datesAreList, out := scheduleList(rec, "reduction_dates", "reduction dates")
	amounts, amountsAreList, more := scheduleList(rec, "reduction_amounts", "reduction amounts")
	out = append(out, more...)

	if datesAreList && amountsAreList && len(dates) != len(amounts) {
		out = append(out, Anomaly{
			Field:        "amortization_schedule",
			CurrentValue: fmt.Sprintf("Dates: %d, Amounts: %d", len(dates), len(amounts)),
			Issue:        "Reduction dates and amounts must have the same length",
			Severity:     SeverityHigh,
		})
	}

	if datesAreList {
		out = append(out, checkReductionOrder(dates)...)
	}

	if !amountsAreList {
		return out
	}
	total := decimal.Zero
	allPositive := true
	for _, item := range amounts {
		amount, err := item.Decimal()
		if err != nil {
			return append(out, Anomaly{
				Field:        "reduction_amounts",
				CurrentValue: record.List(amounts...).String(),
				Issue:        "Invalid amount format in reduction amounts",
				Severity:     SeverityHigh,
			})
		}
		if !amount.IsPositive() {
			allPositive = false
		}
		total = total.Add(amount)
	}
	if !allPositive {
		out = append(out, Anomaly{
			Field:        "reduction_amounts",
			CurrentValue: record.List(amounts...).String(),
			Issue:        "All reduction amounts must be positive",
			Severity:     SeverityHigh,
		})
	}
	if initialOK && initial.IsPositive() && total.GreaterThan(initial) {
		out = append(out, Anomaly{
			Field:        "amortization_schedule",
			CurrentValue: fmt.Sprintf("Total reduction: %s, Initial notional: %s", total, initial),
			Issue:        "Total reduction amount exceeds initial notional",
			Severity:     SeverityHigh,
		})
	}
	return out
}

// checkReductionOrderOnly applies the chronological check outside a custom
// schedule. Undecodable values are left to the reference comparison.
func checkReductionOrderOnly(rec record.Record) []Anomaly {
	v, ok := rec.Get("reduction_dates")
	if !ok {
		return nil
	}
	decoded, err := v.Decode()
	if err != nil {
		return nil
	}
	dates, err := decoded.Items()
	if err != nil {
		return nil
	}
	return checkReductionOrder(dates)
}

// checkReductionOrder requires strictly increasing YYYY-M-D dates.
func checkReductionOrder(dates []record.Value) []Anomaly {
	if len(dates) < 2 {
		return nil
	}

	parsed := make([]time.Time, len(dates))
	for i, d := range dates {
		t, err := d.Time(reductionDateLayout)
		if err != nil {
			return []Anomaly{{
				Field:        "reduction_dates",
				CurrentValue: record.List(dates...).String(),
				Issue:        "Invalid date format in reduction dates",
				Severity:     SeverityHigh,
			}}
		}
		parsed[i] = t
	}

	for i := 1; i < len(parsed); i++ {
		if !parsed[i-1].Before(parsed[i]) {
			return []Anomaly{{
				Field:        "reduction_dates",
				CurrentValue: record.List(dates...).String(),
				Issue:        "Reduction dates must be in chronological order",
				Severity:     SeverityHigh,
			}}
		}
	}
	return nil
}

func checkRateSpecification(rec record.Record) []Anomaly {
	rateType := strings.ToLower(rec.Text("rate_type"))

	switch rateType {
	case "fixed":
		if isBlank(rec, "fixed_rate") {
			return []Anomaly{{
				Field:    "fixed_rate",
				Issue:    "Fixed rate is required for fixed rate swaps",
				Severity: SeverityHigh,
			}}
		}
		v, _ := rec.Get("fixed_rate")
		rate, err := v.Decimal()
		if err != nil {
			return []Anomaly{{
				Field:        "fixed_rate",
				CurrentValue: rec.Text("fixed_rate"),
				Issue:        "Invalid fixed rate format",
				Severity:     SeverityHigh,
			}}
		}
		if rate.IsNegative() {
			return []Anomaly{{
				Field:        "fixed_rate",
				CurrentValue: rec.Text("fixed_rate"),
				Issue:        "Fixed rate cannot be negative",
				Severity:     SeverityMedium,
			}}
		}
		return nil

	case "floating":
		var out []Anomaly
		if isBlank(rec, "reference_rate") {
			out = append(out, Anomaly{
				Field:    "reference_rate",
				Issue:    "Reference rate is required for floating rate swaps",
				Severity: SeverityHigh,
			})
		}
		if isBlank(rec, "reset_frequency") {
			out = append(out, Anomaly{
				Field:    "reset_frequency",
				Issue:    "Reset frequency is required for floating rate swaps",
				Severity: SeverityMedium,
			})
		}
		if !isBlank(rec, "spread") {
			v, _ := rec.Get("spread")
			if _, err := v.Decimal(); err != nil {
				out = append(out, Anomaly{
					Field:        "spread",
					CurrentValue: rec.Text("spread"),
					Issue:        "Invalid spread format",
					Severity:     SeverityMedium,
				})
			}
		}
		return out

	case "":
		return []Anomaly{{
			Field:    "rate_type",
			Issue:    "Rate type is required",
			Severity: SeverityHigh,
		}}

	default:
		return []Anomaly{{
			Field:        "rate_type",
			CurrentValue: rateType,
			Issue:        "Invalid rate type (should be 'fixed' or 'floating')",
			Severity:     SeverityHigh,
		}}
	}
}

func checkPaymentAdjustment(rec record.Record) []Anomaly {
	rule := strings.ToLower(rec.Text("payment_adjustment_rule"))
	if rule == "" {
		return nil
	}
	for _, valid := range paymentAdjustmentRules {
		if rule == valid {
			return nil
		}
	}
	return []Anomaly{{
		Field:        "payment_adjustment_rule",
		CurrentValue: rule,
		Issue:        "Invalid payment adjustment rule. Valid rules are: " + strings.Join(paymentAdjustmentRules, ", "),
		Severity:     SeverityMedium,
	}}
}
