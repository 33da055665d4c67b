package validation

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/shopspring/decimal"

	"github.com/termsheet-validation/backend/internal/record"
)

// RuleSet is everything that differs between the validated swap types.
type RuleSet struct {
	// Type is the derivative type name used for reference lookups.
	Type  string
	codes []string

	EconomicFields []string
	high           map[string]bool
	// structured fields are compared as canonical JSON when both sides
	// hold a list or mapping.
	structured map[string]bool

	check func(rec record.Record, opts checkOptions) []Anomaly

	validMessage   string
	invalidMessage string
}

type checkOptions struct {
	fxTolerance decimal.Decimal
}

// Severity returns the severity of a reference mismatch on field.
func (r *RuleSet) Severity(field string) Severity {
	if r.high[field] {
		return SeverityHigh
	}
	return SeverityMedium
}

func set(fields ...string) map[string]bool {
	m := make(map[string]bool, len(fields))
	for _, f := range fields {
		m[f] = true
	}
	return m
}

var irsEconomicFields = []string{
	"effective_date", "maturity_date", "notional_amount", "fixed_rate", "floating_rate_index",
	"payment_frequency", "day_count_convention", "reset_dates", "discount_curve",
}

// Every economic field of a plain swap is material.
var interestRateSwap = &RuleSet{
	Type:           "InterestRateSwap",
	codes:          []string{"irs", "swap", "interestrateswap"},
	EconomicFields: irsEconomicFields,
	high:           set(irsEconomicFields...),
	validMessage:   "Swap matches reference swap in risk file on all economic factors",
	invalidMessage: "Economic factor mismatch with reference swap in risk file",
}

var crossCurrencySwap = &RuleSet{
	Type:  "CrossCurrencySwap",
	codes: []string{"ccs", "currencyswap", "crosscurrencyswap"},
	EconomicFields: []string{
		"base_currency", "quote_currency", "base_notional_amount", "quote_notional_amount",
		"principal_exchange_initial", "principal_exchange_final", "amortization_schedule",
		"base_leg_rate_type", "quote_leg_rate_type", "base_leg_fixed_rate", "quote_leg_fixed_rate",
		"base_leg_floating_index", "quote_leg_floating_index", "basis_spread",
		"base_payment_frequency", "quote_payment_frequency", "fx_spot_rate",
		"base_holiday_calendar", "quote_holiday_calendar", "collateral_agreement",
		"effective_date", "maturity_date",
	},
	high: set("base_currency", "quote_currency", "base_notional_amount", "quote_notional_amount",
		"fx_spot_rate", "effective_date", "maturity_date"),
	check:          checkCurrencySwap,
	validMessage:   "Currency swap matches reference swap in risk file on all economic factors",
	invalidMessage: "Currency swap validation found issues",
}

var amortisedScheduleSwap = &RuleSet{
	Type:  "AmortisedScheduleSwap",
	codes: []string{"amortised", "amortized", "amortisedswap", "amortizedswap", "amortisedscheduleswap", "amortizedscheduleswap"},
	EconomicFields: []string{
		"amortization_profile", "initial_notional", "reduction_dates", "reduction_amounts",
		"fixed_rate", "floating_rate", "rate_type", "reference_rate", "payment_adjustment_rule",
		"residual_notional", "effective_date", "maturity_date", "payment_frequency",
		"day_count_convention", "reset_frequency", "spread",
	},
	high: set("amortization_profile", "initial_notional", "reduction_dates", "reduction_amounts",
		"effective_date", "maturity_date"),
	structured:     set("reduction_dates", "reduction_amounts"),
	check:          checkAmortisedSwap,
	validMessage:   "Amortized schedule swap matches reference swap in risk file on all economic factors",
	invalidMessage: "Amortized schedule swap validation found issues",
}

// RuleSets returns the validated types in a stable order.
func RuleSets() []*RuleSet {
	return []*RuleSet{amortisedScheduleSwap, crossCurrencySwap, interestRateSwap}
}

// LookupRuleSet resolves a type name or short code such as "irs" or
// "Cross Currency Swap". Case, spaces, dashes and underscores are ignored.
func LookupRuleSet(name string) (*RuleSet, error) {
	code := compact(name)
	for _, rs := range RuleSets() {
		for _, c := range rs.codes {
			if c == code {
				return rs, nil
			}
		}
	}
	return nil, fmt.Errorf("%w: %q", ErrUnsupportedType, name)
}

func compact(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}
