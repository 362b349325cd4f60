package otel

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "tenantforge"

// Metrics holds all TenantForge metric instruments.
type Metrics struct {
	ProvisionsStarted   metric.Int64Counter
	ProvisionsSucceeded metric.Int64Counter
	ProvisionsFailed    metric.Int64Counter
	OrphansRemoved      metric.Int64Counter
	Rollbacks           metric.Int64Counter
	StepDuration        metric.Float64Histogram
}

// NewMetrics creates all metric instruments.
func NewMetrics() (*Metrics, error) {
	meter := otel.Meter(meterName)
	m := &Metrics{}
	var err error

	m.ProvisionsStarted, err = meter.Int64Counter("tenantforge.provisions.started",
		metric.WithDescription("Number of tenant provisions started"))
	if err != nil {
		return nil, err
	}

	m.ProvisionsSucceeded, err = meter.Int64Counter("tenantforge.provisions.succeeded",
		metric.WithDescription("Number of tenants activated"))
	if err != nil {
		return nil, err
	}

	m.ProvisionsFailed, err = meter.Int64Counter("tenantforge.provisions.failed",
		metric.WithDescription("Number of tenant provisions failed, by kind"))
	if err != nil {
		return nil, err
	}

	m.OrphansRemoved, err = meter.Int64Counter("tenantforge.orphans.removed",
		metric.WithDescription("Number of orphaned tenants cleaned up"))
	if err != nil {
		return nil, err
	}

	m.Rollbacks, err = meter.Int64Counter("tenantforge.rollbacks",
		metric.WithDescription("Number of provisioning rollbacks, by result"))
	if err != nil {
		return nil, err
	}

	m.StepDuration, err = meter.Float64Histogram("tenantforge.step.duration_seconds",
		metric.WithDescription("Provisioning step duration in seconds"))
	if err != nil {
		return nil, err
	}

	return m, nil
}

func (m *Metrics) inc(ctx context.Context, c metric.Int64Counter, attrs ...attribute.KeyValue) {
	if m == nil || c == nil {
		return
	}
	c.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// ProvisionStarted counts a started provisioning command.
func (m *Metrics) ProvisionStarted(ctx context.Context, mode string) {
	if m == nil {
		return
	}
	m.inc(ctx, m.ProvisionsStarted, attribute.String("mode", mode))
}

// ProvisionSucceeded counts an activated tenant.
func (m *Metrics) ProvisionSucceeded(ctx context.Context) {
	if m == nil {
		return
	}
	m.inc(ctx, m.ProvisionsSucceeded)
}

// ProvisionFailed counts a failed provisioning by failure kind.
func (m *Metrics) ProvisionFailed(ctx context.Context, kind string) {
	if m == nil {
		return
	}
	m.inc(ctx, m.ProvisionsFailed, attribute.String("kind", kind))
}

// OrphanRemoved counts a cleared orphan.
func (m *Metrics) OrphanRemoved(ctx context.Context, tenantFound bool) {
	if m == nil {
		return
	}
	m.inc(ctx, m.OrphansRemoved, attribute.Bool("tenant_found", tenantFound))
}

// Rollback counts a rollback by result ("ok", "noop", "failed").
func (m *Metrics) Rollback(ctx context.Context, result string) {
	if m == nil {
		return
	}
	m.inc(ctx, m.Rollbacks, attribute.String("result", result))
}

// ObserveStep records the duration of one provisioning step.
func (m *Metrics) ObserveStep(ctx context.Context, step string, seconds float64) {
	if m == nil || m.StepDuration == nil {
		return
	}
	m.StepDuration.Record(ctx, seconds, metric.WithAttributes(attribute.String("step", step)))
}
