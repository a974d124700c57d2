package telemetry

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

const (
	serviceName = "flowforge-workflow-engine"

	metricWorkflowExecutions = "workflow.executions.total"
	metricWorkflowDuration   = "workflow.execution.duration"
	metricWorkflowSuccess    = "workflow.executions.success.total"
	metricWorkflowFailure    = "workflow.executions.failure.total"
	metricNodeExecutions     = "node.executions.total"
	metricNodeDuration       = "node.execution.duration"
	metricNodeSuccess        = "node.executions.success.total"
	metricNodeFailure        = "node.executions.failure.total"
	metricHTTPCalls          = "http.calls.total"
	metricHTTPDuration       = "http.call.duration"
	metricSchemaCacheHits    = "schema_cache.hits.total"
	metricSchemaCacheMisses  = "schema_cache.misses.total"
	metricSchedulerActive    = "scheduler.active_nodes"
)

// Provider manages OpenTelemetry setup and provides access to tracers, meters
// and the workflow-engine-specific metric instruments (SPEC_FULL.md's
// ambient-observability expansion of §4.4/§4.5 — concurrency and cache
// hit-rate are design-time/runtime signals the spec itself doesn't name, but
// the teacher's own telemetry package carries this stack for everything it
// instruments, so the engine's scheduler and schema cache get the same
// treatment).
type Provider struct {
	meterProvider  *sdkmetric.MeterProvider
	tracerProvider trace.TracerProvider
	meter          metric.Meter
	tracer         trace.Tracer

	workflowExecutions metric.Int64Counter
	workflowDuration   metric.Float64Histogram
	workflowSuccess    metric.Int64Counter
	workflowFailure    metric.Int64Counter
	nodeExecutions     metric.Int64Counter
	nodeDuration       metric.Float64Histogram
	nodeSuccess        metric.Int64Counter
	nodeFailure        metric.Int64Counter
	httpCalls          metric.Int64Counter
	httpDuration       metric.Float64Histogram
	schemaCacheHits    metric.Int64Counter
	schemaCacheMisses  metric.Int64Counter
	schedulerActive    metric.Int64UpDownCounter

	mu sync.RWMutex
}

// Config holds telemetry configuration.
type Config struct {
	ServiceName    string
	ServiceVersion string
	Environment    string
	EnableTracing  bool
	EnableMetrics  bool
}

// DefaultConfig returns default telemetry configuration.
func DefaultConfig() Config {
	return Config{
		ServiceName:    serviceName,
		ServiceVersion: "0.1.0",
		Environment:    "development",
		EnableTracing:  true,
		EnableMetrics:  true,
	}
}

// NewProvider creates a new telemetry provider with a Prometheus metrics
// exporter, initializing OpenTelemetry with the given configuration.
func NewProvider(ctx context.Context, config Config) (*Provider, error) {
	provider := &Provider{}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(config.ServiceName),
			semconv.ServiceVersion(config.ServiceVersion),
			attribute.String("environment", config.Environment),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	if config.EnableMetrics {
		if err := provider.initMetrics(res); err != nil {
			return nil, fmt.Errorf("failed to initialize metrics: %w", err)
		}
	}

	if config.EnableTracing {
		provider.initTracing()
	}

	return provider, nil
}

func (p *Provider) initMetrics(res *resource.Resource) error {
	exporter, err := prometheus.New()
	if err != nil {
		return fmt.Errorf("failed to create prometheus exporter: %w", err)
	}

	p.meterProvider = sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(exporter),
	)
	otel.SetMeterProvider(p.meterProvider)
	p.meter = p.meterProvider.Meter(serviceName)

	if err := p.createMetricInstruments(); err != nil {
		return fmt.Errorf("failed to create metric instruments: %w", err)
	}

	return nil
}

func (p *Provider) initTracing() {
	p.tracerProvider = otel.GetTracerProvider()
	p.tracer = p.tracerProvider.Tracer(serviceName)
}

func (p *Provider) createMetricInstruments() error {
	var err error

	if p.workflowExecutions, err = p.meter.Int64Counter(metricWorkflowExecutions,
		metric.WithDescription("Total number of workflow executions")); err != nil {
		return err
	}
	if p.workflowDuration, err = p.meter.Float64Histogram(metricWorkflowDuration,
		metric.WithDescription("Workflow execution duration in milliseconds"), metric.WithUnit("ms")); err != nil {
		return err
	}
	if p.workflowSuccess, err = p.meter.Int64Counter(metricWorkflowSuccess,
		metric.WithDescription("Total number of successful workflow executions")); err != nil {
		return err
	}
	if p.workflowFailure, err = p.meter.Int64Counter(metricWorkflowFailure,
		metric.WithDescription("Total number of failed workflow executions")); err != nil {
		return err
	}
	if p.nodeExecutions, err = p.meter.Int64Counter(metricNodeExecutions,
		metric.WithDescription("Total number of node executions")); err != nil {
		return err
	}
	if p.nodeDuration, err = p.meter.Float64Histogram(metricNodeDuration,
		metric.WithDescription("Node execution duration in milliseconds"), metric.WithUnit("ms")); err != nil {
		return err
	}
	if p.nodeSuccess, err = p.meter.Int64Counter(metricNodeSuccess,
		metric.WithDescription("Total number of successful node executions")); err != nil {
		return err
	}
	if p.nodeFailure, err = p.meter.Int64Counter(metricNodeFailure,
		metric.WithDescription("Total number of failed node executions")); err != nil {
		return err
	}
	if p.httpCalls, err = p.meter.Int64Counter(metricHTTPCalls,
		metric.WithDescription("Total number of HTTP calls issued by http_source connectors")); err != nil {
		return err
	}
	if p.httpDuration, err = p.meter.Float64Histogram(metricHTTPDuration,
		metric.WithDescription("HTTP call duration in milliseconds"), metric.WithUnit("ms")); err != nil {
		return err
	}
	if p.schemaCacheHits, err = p.meter.Int64Counter(metricSchemaCacheHits,
		metric.WithDescription("Total number of schema cache hits")); err != nil {
		return err
	}
	if p.schemaCacheMisses, err = p.meter.Int64Counter(metricSchemaCacheMisses,
		metric.WithDescription("Total number of schema cache misses")); err != nil {
		return err
	}
	if p.schedulerActive, err = p.meter.Int64UpDownCounter(metricSchedulerActive,
		metric.WithDescription("Number of nodes currently executing across all running workflows")); err != nil {
		return err
	}

	return nil
}

// Tracer returns the tracer for creating spans.
func (p *Provider) Tracer() trace.Tracer {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.tracer
}

// Meter returns the meter for recording metrics.
func (p *Provider) Meter() metric.Meter {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.meter
}

// RecordWorkflowExecution records metrics for one completed workflow run.
func (p *Provider) RecordWorkflowExecution(ctx context.Context, workflowID string, duration time.Duration, success bool, nodesExecuted int) {
	if p.meter == nil {
		return
	}

	attrs := []attribute.KeyValue{
		attribute.String("workflow.id", workflowID),
		attribute.Int("nodes.executed", nodesExecuted),
	}

	p.workflowExecutions.Add(ctx, 1, metric.WithAttributes(attrs...))
	p.workflowDuration.Record(ctx, float64(duration.Milliseconds()), metric.WithAttributes(attrs...))
	if success {
		p.workflowSuccess.Add(ctx, 1, metric.WithAttributes(attrs...))
	} else {
		p.workflowFailure.Add(ctx, 1, metric.WithAttributes(attrs...))
	}
}

// RecordNodeExecution records metrics for one node's execution, identified by
// connectorID rather than a separate node-type field (the graph model has no
// node-type distinct from the connector it runs — see DESIGN.md's Open
// Question decisions).
func (p *Provider) RecordNodeExecution(ctx context.Context, nodeID, connectorID string, duration time.Duration, success bool) {
	if p.meter == nil {
		return
	}

	attrs := []attribute.KeyValue{
		attribute.String("node.id", nodeID),
		attribute.String("connector.id", connectorID),
	}

	p.nodeExecutions.Add(ctx, 1, metric.WithAttributes(attrs...))
	p.nodeDuration.Record(ctx, float64(duration.Milliseconds()), metric.WithAttributes(attrs...))
	if success {
		p.nodeSuccess.Add(ctx, 1, metric.WithAttributes(attrs...))
	} else {
		p.nodeFailure.Add(ctx, 1, metric.WithAttributes(attrs...))
	}
}

// RecordHTTPCall records metrics for one http_source request.
func (p *Provider) RecordHTTPCall(ctx context.Context, method, url string, statusCode int, duration time.Duration) {
	if p.meter == nil {
		return
	}

	attrs := []attribute.KeyValue{
		attribute.String("http.method", method),
		attribute.String("http.url", url),
		attribute.Int("http.status_code", statusCode),
	}

	p.httpCalls.Add(ctx, 1, metric.WithAttributes(attrs...))
	p.httpDuration.Record(ctx, float64(duration.Milliseconds()), metric.WithAttributes(attrs...))
}

// RecordSchemaCacheAccess records one schemacache.Cache.Get outcome.
func (p *Provider) RecordSchemaCacheAccess(ctx context.Context, nodeID string, hit bool) {
	if p.meter == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("node.id", nodeID))
	if hit {
		p.schemaCacheHits.Add(ctx, 1, attrs)
	} else {
		p.schemaCacheMisses.Add(ctx, 1, attrs)
	}
}

// RecordSchedulerNodeStart increments the active-node gauge; callers must
// pair every call with a later RecordSchedulerNodeEnd for the same node.
func (p *Provider) RecordSchedulerNodeStart(ctx context.Context) {
	if p.meter == nil {
		return
	}
	p.schedulerActive.Add(ctx, 1)
}

// RecordSchedulerNodeEnd decrements the active-node gauge.
func (p *Provider) RecordSchedulerNodeEnd(ctx context.Context) {
	if p.meter == nil {
		return
	}
	p.schedulerActive.Add(ctx, -1)
}

// Shutdown gracefully shuts down the telemetry provider.
func (p *Provider) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.meterProvider != nil {
		if err := p.meterProvider.Shutdown(ctx); err != nil {
			return fmt.Errorf("failed to shutdown meter provider: %w", err)
		}
	}

	return nil
}
