// Package validation checks extracted swap records for internal consistency
// and against the reference row held by the risk system.
package validation

import (
	"context"
	"errors"

	"github.com/termsheet-validation/backend/internal/record"
)

var ErrUnsupportedType = errors.New("unsupported derivative type")

type Severity string

const (
	SeverityHigh   Severity = "high"
	SeverityMedium Severity = "medium"
)

// Status mirrors the HTTP status a validation outcome maps to.
type Status int

const (
	StatusOK         Status = 200
	StatusBadRequest Status = 400
	StatusNotFound   Status = 404
)

// Anomaly is one field-level finding. ReferenceValue is set only when a
// reference value was involved.
type Anomaly struct {
	Field          string   `json:"field"`
	CurrentValue   string   `json:"current_value"`
	ReferenceValue *string  `json:"reference_value,omitempty"`
	ExpectedValue  string   `json:"expected_value,omitempty"`
	Issue          string   `json:"issue"`
	Severity       Severity `json:"severity"`
}

type Report struct {
	TradeID   string    `json:"trade_id,omitempty"`
	Type      string    `json:"type,omitempty"`
	Valid     bool      `json:"valid"`
	Anomalies []Anomaly `json:"anomalies"`
	Message   string    `json:"message,omitempty"`
	Error     string    `json:"error,omitempty"`
}

// HighCount returns the number of high-severity anomalies.
func (r *Report) HighCount() int {
	n := 0
	for _, a := range r.Anomalies {
		if a.Severity == SeverityHigh {
			n++
		}
	}
	return n
}

// ReferenceLookup finds the risk-system row for a trade. A missing row is
// reported with found=false, not an error.
type ReferenceLookup interface {
	Lookup(ctx context.Context, tradeID, derivativeType string) (rec record.Record, found bool, err error)
}

func strPtr(s string) *string {
	return &s
}
