package observability

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.4.0"
)

// Metrics holds all application metrics. A disabled instance records
// nothing; every Record method is safe to call on it.
type Metrics struct {
	meter metric.Meter

	// Pool operation metrics
	MintsExecuted     metric.Int64Counter
	SwapsExecuted     metric.Int64Counter
	SwapsClamped      metric.Int64Counter
	OperationDuration metric.Float64Histogram

	// Settlement metrics
	SettlementFailures metric.Int64Counter

	// Pool state metrics
	PoolPrice     metric.Float64Gauge
	PoolLiquidity metric.Float64Gauge

	// Error metrics
	Errors metric.Int64Counter

	exporter *prometheus.Exporter
}

// NewMetrics creates a new Metrics instance
func NewMetrics(serviceName string, enabled bool) (*Metrics, error) {
	if !enabled {
		return &Metrics{}, nil
	}

	res, err := resource.New(
		context.Background(),
		resource.WithAttributes(
			semconv.ServiceNameKey.String(serviceName),
			semconv.ServiceVersionKey.String("1.0.0"),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	exporter, err := prometheus.New()
	if err != nil {
		return nil, fmt.Errorf("failed to create Prometheus exporter: %w", err)
	}

	provider := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(exporter),
	)

	m := &Metrics{
		meter:    provider.Meter(serviceName),
		exporter: exporter,
	}

	if err := m.initMetrics(); err != nil {
		return nil, fmt.Errorf("failed to initialize metrics: %w", err)
	}

	return m, nil
}

func (m *Metrics) initMetrics() error {
	var err error

	m.MintsExecuted, err = m.meter.Int64Counter(
		"pool.mints.executed",
		metric.WithDescription("Total liquidity mints executed"),
	)
	if err != nil {
		return err
	}

	m.SwapsExecuted, err = m.meter.Int64Counter(
		"pool.swaps.executed",
		metric.WithDescription("Total swaps executed"),
	)
	if err != nil {
		return err
	}

	m.SwapsClamped, err = m.meter.Int64Counter(
		"pool.swaps.clamped",
		metric.WithDescription("Swaps clamped at the range boundary"),
	)
	if err != nil {
		return err
	}

	m.OperationDuration, err = m.meter.Float64Histogram(
		"pool.operation.duration",
		metric.WithDescription("Pool operation duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return err
	}

	m.SettlementFailures, err = m.meter.Int64Counter(
		"pool.settlement.failures",
		metric.WithDescription("Settlements rejected before committing state"),
	)
	if err != nil {
		return err
	}

	m.PoolPrice, err = m.meter.Float64Gauge(
		"pool.price",
		metric.WithDescription("Current pool price (token1 per token0)"),
	)
	if err != nil {
		return err
	}

	m.PoolLiquidity, err = m.meter.Float64Gauge(
		"pool.liquidity",
		metric.WithDescription("Current in-range liquidity"),
	)
	if err != nil {
		return err
	}

	m.Errors, err = m.meter.Int64Counter(
		"pool.errors",
		metric.WithDescription("Total errors encountered"),
	)
	if err != nil {
		return err
	}

	return nil
}

// RecordMint records a completed mint
func (m *Metrics) RecordMint(ctx context.Context, pool string, duration time.Duration) {
	if m == nil || m.MintsExecuted == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("pool", pool), attribute.String("op", "mint"))
	m.MintsExecuted.Add(ctx, 1, attrs)
	m.OperationDuration.Record(ctx, float64(duration.Microseconds())/1000, attrs)
}

// RecordSwap records a completed swap
func (m *Metrics) RecordSwap(ctx context.Context, pool string, clamped bool, duration time.Duration) {
	if m == nil || m.SwapsExecuted == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("pool", pool), attribute.String("op", "swap"))
	m.SwapsExecuted.Add(ctx, 1, attrs)
	m.OperationDuration.Record(ctx, float64(duration.Microseconds())/1000, attrs)
	if clamped {
		m.SwapsClamped.Add(ctx, 1, attrs)
	}
}

// RecordSettlementFailure records a settlement rejection
func (m *Metrics) RecordSettlementFailure(ctx context.Context, pool, op string) {
	if m == nil || m.SettlementFailures == nil {
		return
	}
	m.SettlementFailures.Add(ctx, 1, metric.WithAttributes(
		attribute.String("pool", pool),
		attribute.String("op", op),
	))
}

// SetPoolState records the pool's current price and liquidity
func (m *Metrics) SetPoolState(ctx context.Context, pool string, price, liquidity float64) {
	if m == nil || m.PoolPrice == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("pool", pool))
	m.PoolPrice.Record(ctx, price, attrs)
	m.PoolLiquidity.Record(ctx, liquidity, attrs)
}

// RecordError records an error
func (m *Metrics) RecordError(ctx context.Context, errorType string) {
	if m == nil || m.Errors == nil {
		return
	}
	m.Errors.Add(ctx, 1, metric.WithAttributes(attribute.String("type", errorType)))
}

// Handler returns the HTTP handler for Prometheus metrics
func (m *Metrics) Handler() http.Handler {
	return promhttp.Handler()
}
