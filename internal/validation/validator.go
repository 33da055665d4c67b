package validation

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/termsheet-validation/backend/internal/record"
	"github.com/termsheet-validation/backend/pkg/logger"
)

const DefaultFXTolerance = 0.0001

type Option func(*Validator)

// WithFXTolerance sets the relative tolerance of the cross-currency notional
// check.
func WithFXTolerance(tolerance float64) Option {
	return func(v *Validator) { v.tolerance = decimal.NewFromFloat(tolerance) }
}

// WithRecorder stores every completed run for statistics.
func WithRecorder(r RunRecorder) Option {
	return func(v *Validator) { v.recorder = r }
}

type Validator struct {
	lookup    ReferenceLookup
	recorder  RunRecorder
	tolerance decimal.Decimal
	now       func() time.Time
}

func New(lookup ReferenceLookup, opts ...Option) *Validator {
	v := &Validator{
		lookup:    lookup,
		tolerance: decimal.NewFromFloat(DefaultFXTolerance),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Validate checks rec as a swap of derivativeType. Rule failures are
// reported as anomalies; the returned error is reserved for an unknown type
// and reference lookup failures.
func (v *Validator) Validate(ctx context.Context, derivativeType string, rec record.Record) (*Report, Status, error) {
	rs, err := LookupRuleSet(derivativeType)
	if err != nil {
		return nil, 0, err
	}

	tradeID := rec.Text("tradeId")
	if tradeID == "" {
		return &Report{Type: rs.Type, Error: "tradeId is required", Anomalies: []Anomaly{}}, StatusBadRequest, nil
	}

	var internal []Anomaly
	if rs.check != nil {
		internal = rs.check(rec, checkOptions{fxTolerance: v.tolerance})
	}

	reference, found, err := v.lookup.Lookup(ctx, tradeID, rs.Type)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to look up reference swap: %w", err)
	}

	report := &Report{TradeID: tradeID, Type: rs.Type}
	var status Status
	if !found {
		status = StatusNotFound
		report.Anomalies = nonNilAnomalies(internal)
		if len(internal) > 0 {
			report.Message = fmt.Sprintf("No reference swap found in risk file for tradeId %s, and internal validation found issues.", tradeID)
		} else {
			report.Message = fmt.Sprintf("No reference swap found in risk file for tradeId %s.", tradeID)
		}
	} else {
		status = StatusOK
		report.Anomalies = nonNilAnomalies(append(internal, compareEconomicFields(rs, rec, reference)...))
		report.Valid = len(report.Anomalies) == 0
		if report.Valid {
			report.Message = rs.validMessage
		} else {
			report.Message = rs.invalidMessage
		}
	}

	logger.Info("Validation completed",
		zap.String("trade_id", tradeID),
		zap.String("type", rs.Type),
		zap.Bool("valid", report.Valid),
		zap.Int("anomalies", len(report.Anomalies)),
		zap.Int("status", int(status)),
	)

	v.record(ctx, report, status)
	return report, status, nil
}

func (v *Validator) record(ctx context.Context, report *Report, status Status) {
	if v.recorder == nil {
		return
	}
	run := Run{
		ID:        uuid.New().String(),
		TradeID:   report.TradeID,
		Type:      report.Type,
		Valid:     report.Valid,
		Anomalies: len(report.Anomalies),
		Status:    status,
		CreatedAt: v.now().UTC(),
	}
	if err := v.recorder.RecordRun(ctx, run); err != nil {
		logger.Warn("Failed to record validation run", zap.String("trade_id", run.TradeID), zap.Error(err))
	}
}

func nonNilAnomalies(a []Anomaly) []Anomaly {
	if a == nil {
		return []Anomaly{}
	}
	return a
}
