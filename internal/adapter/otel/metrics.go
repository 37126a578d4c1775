package otel

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "apfabric"

// Metrics holds all pipeline metric instruments.
type Metrics struct {
	InvoicesProcessed metric.Int64Counter
	InvoicesBlocked   metric.Int64Counter
	InvoicesErrored   metric.Int64Counter
	AutoPosted        metric.Int64Counter
	StageDuration     metric.Float64Histogram
	PipelineDuration  metric.Float64Histogram
}

// NewMetrics creates all metric instruments.
func NewMetrics() (*Metrics, error) {
	meter := otel.Meter(meterName)
	m := &Metrics{}
	var err error

	m.InvoicesProcessed, err = meter.Int64Counter("apfabric.invoices.processed",
		metric.WithDescription("Number of invoices fully processed"))
	if err != nil {
		return nil, err
	}

	m.InvoicesBlocked, err = meter.Int64Counter("apfabric.invoices.duplicate_blocked",
		metric.WithDescription("Number of invoices blocked as duplicates"))
	if err != nil {
		return nil, err
	}

	m.InvoicesErrored, err = meter.Int64Counter("apfabric.invoices.errored",
		metric.WithDescription("Number of invoices that failed mid-pipeline"))
	if err != nil {
		return nil, err
	}

	m.AutoPosted, err = meter.Int64Counter("apfabric.gl.auto_posted",
		metric.WithDescription("Number of invoices GL-coded above the auto-post threshold"))
	if err != nil {
		return nil, err
	}

	m.StageDuration, err = meter.Float64Histogram("apfabric.stage.duration_seconds",
		metric.WithDescription("Per-stage processing duration in seconds"))
	if err != nil {
		return nil, err
	}

	m.PipelineDuration, err = meter.Float64Histogram("apfabric.pipeline.duration_seconds",
		metric.WithDescription("End-to-end pipeline duration in seconds"))
	if err != nil {
		return nil, err
	}

	return m, nil
}
