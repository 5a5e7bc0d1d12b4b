package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics holds OTel metric instruments for catalog audits.
// All Record methods are no-ops on a nil receiver.
type Metrics struct {
	DiscrepancyCount metric.Int64Counter
	DispatchOutcome  metric.Int64Counter
	CreationOutcome  metric.Int64Counter
	ActivityCalls    metric.Int64Counter
	RunDuration      metric.Float64Histogram
	ApprovalLatency  metric.Float64Histogram
}

// NewMetrics creates the audit metric instruments.
func NewMetrics() (*Metrics, error) {
	meter := otel.Meter("catalog-audit")

	discrepancyCount, err := meter.Int64Counter("audit.discrepancy.count",
		metric.WithDescription("Number of discrepancies detected"),
	)
	if err != nil {
		return nil, err
	}

	dispatchOutcome, err := meter.Int64Counter("audit.dispatch.outcome",
		metric.WithDescription("Correction outcomes by class"),
	)
	if err != nil {
		return nil, err
	}

	creationOutcome, err := meter.Int64Counter("audit.creation.outcome",
		metric.WithDescription("Product creation outcomes"),
	)
	if err != nil {
		return nil, err
	}

	activityCalls, err := meter.Int64Counter("audit.activity.calls",
		metric.WithDescription("Number of activity invocations"),
	)
	if err != nil {
		return nil, err
	}

	runDuration, err := meter.Float64Histogram("audit.run.duration_seconds",
		metric.WithDescription("Wall time of one reconciliation run"),
	)
	if err != nil {
		return nil, err
	}

	approvalLatency, err := meter.Float64Histogram("audit.approval.latency_seconds",
		metric.WithDescription("Time from pending to approval decision"),
	)
	if err != nil {
		return nil, err
	}

	return &Metrics{
		DiscrepancyCount: discrepancyCount,
		DispatchOutcome:  dispatchOutcome,
		CreationOutcome:  creationOutcome,
		ActivityCalls:    activityCalls,
		RunDuration:      runDuration,
		ApprovalLatency:  approvalLatency,
	}, nil
}

// RecordDiscrepancies records detected discrepancies per kind.
func (m *Metrics) RecordDiscrepancies(ctx context.Context, byKind map[string]int) {
	if m == nil {
		return
	}
	for kind, n := range byKind {
		m.DiscrepancyCount.Add(ctx, int64(n),
			metric.WithAttributes(attribute.String("kind", kind)),
		)
	}
}

// RecordDispatch records correction outcomes for one class.
func (m *Metrics) RecordDispatch(ctx context.Context, class string, succeeded, failed int) {
	if m == nil {
		return
	}
	m.DispatchOutcome.Add(ctx, int64(succeeded),
		metric.WithAttributes(attribute.String("class", class), attribute.String("outcome", "success")),
	)
	m.DispatchOutcome.Add(ctx, int64(failed),
		metric.WithAttributes(attribute.String("class", class), attribute.String("outcome", "failure")),
	)
}

// RecordCreation records one product creation outcome.
func (m *Metrics) RecordCreation(ctx context.Context, ok bool) {
	if m == nil {
		return
	}
	outcome := "failure"
	if ok {
		outcome = "success"
	}
	m.CreationOutcome.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

// RecordRun records the duration of a reconciliation run.
func (m *Metrics) RecordRun(ctx context.Context, d time.Duration, mode string) {
	if m == nil {
		return
	}
	m.RunDuration.Record(ctx, d.Seconds(), metric.WithAttributes(attribute.String("mode", mode)))
}

// RecordApprovalLatency records the time from pending to decision.
func (m *Metrics) RecordApprovalLatency(ctx context.Context, d time.Duration) {
	if m == nil {
		return
	}
	m.ApprovalLatency.Record(ctx, d.Seconds())
}

// RecordActivity records an activity invocation.
func (m *Metrics) RecordActivity(ctx context.Context, name string) {
	if m == nil {
		return
	}
	m.ActivityCalls.Add(ctx, 1,
		metric.WithAttributes(attribute.String("activity", name)),
	)
}
