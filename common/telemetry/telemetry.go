package telemetry

import (
	"context"
	"fmt"
	"net/http"
	_ "net/http/pprof"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"

	"github.com/lyzr/agentkit/common/logger"
)

const meterName = "agentkit"

// Telemetry exposes Prometheus-backed OpenTelemetry metrics for workflow
// runs, node executions and poller ticks, plus a /metrics HTTP endpoint.
type Telemetry struct {
	meterProvider *sdkmetric.MeterProvider
	meter         metric.Meter
	log           *logger.Logger

	runExecutions  metric.Int64Counter
	runDuration    metric.Float64Histogram
	runSuccess     metric.Int64Counter
	runFailure     metric.Int64Counter
	nodeExecutions metric.Int64Counter
	nodeDuration   metric.Float64Histogram
	nodeFailure    metric.Int64Counter
	pollerTicks    metric.Int64Counter
	pollerMatches  metric.Int64Counter
	pollerErrors   metric.Int64Counter

	pprofAddr   string
	metricsAddr string
	enablePprof bool
}

// New builds the telemetry provider and its metric instruments. It does not
// start any servers; call Start for that.
func New(ctx context.Context, pprofPort, metricsPort int, enablePprof bool, log *logger.Logger) (*Telemetry, error) {
	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName("agentkit"),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("build telemetry resource: %w", err)
	}

	exporter, err := prometheus.New()
	if err != nil {
		return nil, fmt.Errorf("create prometheus exporter: %w", err)
	}

	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(exporter),
	)
	otel.SetMeterProvider(mp)

	t := &Telemetry{
		meterProvider: mp,
		meter:         mp.Meter(meterName),
		log:           log,
		pprofAddr:     fmt.Sprintf("localhost:%d", pprofPort),
		metricsAddr:   fmt.Sprintf(":%d", metricsPort),
		enablePprof:   enablePprof,
	}

	if err := t.createInstruments(); err != nil {
		return nil, fmt.Errorf("create metric instruments: %w", err)
	}

	return t, nil
}

func (t *Telemetry) createInstruments() error {
	var err error

	if t.runExecutions, err = t.meter.Int64Counter("workflow.run.executions.total", metric.WithDescription("total workflow run executions")); err != nil {
		return err
	}
	if t.runDuration, err = t.meter.Float64Histogram("workflow.run.duration", metric.WithDescription("workflow run duration"), metric.WithUnit("ms")); err != nil {
		return err
	}
	if t.runSuccess, err = t.meter.Int64Counter("workflow.run.success.total", metric.WithDescription("completed workflow runs")); err != nil {
		return err
	}
	if t.runFailure, err = t.meter.Int64Counter("workflow.run.failure.total", metric.WithDescription("failed workflow runs")); err != nil {
		return err
	}
	if t.nodeExecutions, err = t.meter.Int64Counter("workflow.node.executions.total", metric.WithDescription("total node executions")); err != nil {
		return err
	}
	if t.nodeDuration, err = t.meter.Float64Histogram("workflow.node.duration", metric.WithDescription("node execution duration"), metric.WithUnit("ms")); err != nil {
		return err
	}
	if t.nodeFailure, err = t.meter.Int64Counter("workflow.node.failure.total", metric.WithDescription("failed node executions")); err != nil {
		return err
	}
	if t.pollerTicks, err = t.meter.Int64Counter("poller.ticks.total", metric.WithDescription("poller loop iterations")); err != nil {
		return err
	}
	if t.pollerMatches, err = t.meter.Int64Counter("poller.matches.total", metric.WithDescription("messages fetched by the poller for dispatch")); err != nil {
		return err
	}
	if t.pollerErrors, err = t.meter.Int64Counter("poller.errors.total", metric.WithDescription("per-integration poll errors")); err != nil {
		return err
	}
	return nil
}

// Start launches the /metrics server (and pprof, if enabled) in background
// goroutines. It does not block.
func (t *Telemetry) Start(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	go func() {
		t.log.Info("metrics server starting", "addr", t.metricsAddr)
		if err := http.ListenAndServe(t.metricsAddr, mux); err != nil {
			t.log.Warn("metrics server stopped", "error", err)
		}
	}()

	if t.enablePprof {
		go func() {
			t.log.Info("pprof server starting", "addr", t.pprofAddr)
			if err := http.ListenAndServe(t.pprofAddr, nil); err != nil {
				t.log.Warn("pprof server stopped", "error", err)
			}
		}()
	}

	return nil
}

// RecordRun records a terminal workflow run outcome.
func (t *Telemetry) RecordRun(ctx context.Context, workflowID string, duration time.Duration, success bool, nodeCount int) {
	attrs := []attribute.KeyValue{
		attribute.String("workflow.id", workflowID),
		attribute.Int("nodes.executed", nodeCount),
	}
	t.runExecutions.Add(ctx, 1, metric.WithAttributes(attrs...))
	t.runDuration.Record(ctx, float64(duration.Milliseconds()), metric.WithAttributes(attrs...))
	if success {
		t.runSuccess.Add(ctx, 1, metric.WithAttributes(attrs...))
	} else {
		t.runFailure.Add(ctx, 1, metric.WithAttributes(attrs...))
	}
}

// RecordNode records a single node execution.
func (t *Telemetry) RecordNode(ctx context.Context, nodeType string, duration time.Duration, success bool) {
	attrs := []attribute.KeyValue{attribute.String("node.type", nodeType)}
	t.nodeExecutions.Add(ctx, 1, metric.WithAttributes(attrs...))
	t.nodeDuration.Record(ctx, float64(duration.Milliseconds()), metric.WithAttributes(attrs...))
	if !success {
		t.nodeFailure.Add(ctx, 1, metric.WithAttributes(attrs...))
	}
}

// RecordPollerTick records one poller loop iteration for an integration.
func (t *Telemetry) RecordPollerTick(ctx context.Context, integrationKind string, matches int, err error) {
	attrs := []attribute.KeyValue{attribute.String("integration.kind", integrationKind)}
	t.pollerTicks.Add(ctx, 1, metric.WithAttributes(attrs...))
	if matches > 0 {
		t.pollerMatches.Add(ctx, int64(matches), metric.WithAttributes(attrs...))
	}
	if err != nil {
		t.pollerErrors.Add(ctx, 1, metric.WithAttributes(attrs...))
	}
}

// Shutdown flushes and tears down the meter provider.
func (t *Telemetry) Shutdown(ctx context.Context) error {
	if t.meterProvider == nil {
		return nil
	}
	return t.meterProvider.Shutdown(ctx)
}
