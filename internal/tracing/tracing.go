package tracing

import (
	"context"
	"fmt"
	"os"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/jaeger"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	"go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.12.0"
	oteltrace "go.opentelemetry.io/otel/trace"

	"conversation-chaos/internal/config"
)

// InstrumentationName identifies spans emitted by this module.
const InstrumentationName = "conversation-chaos"

// TracingService manages OpenTelemetry tracing
type TracingService struct {
	config   config.TracingConfig
	tracer   oteltrace.Tracer
	provider *trace.TracerProvider
}

// NewTracingService creates a new tracing service
func NewTracingService(cfg config.TracingConfig) (*TracingService, error) {
	if !cfg.Enabled {
		return &TracingService{
			config: cfg,
			tracer: otel.Tracer(InstrumentationName),
		}, nil
	}

	res, err := resource.New(context.Background(),
		resource.WithAttributes(
			semconv.ServiceNameKey.String(cfg.ServiceName),
			semconv.ServiceVersionKey.String(cfg.ServiceVersion),
			semconv.DeploymentEnvironmentKey.String(cfg.Environment),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	var exporter trace.SpanExporter
	switch cfg.ExporterType {
	case "jaeger":
		exporter, err = jaeger.New(jaeger.WithCollectorEndpoint(jaeger.WithEndpoint(cfg.JaegerEndpoint)))
		if err != nil {
			return nil, fmt.Errorf("failed to create Jaeger exporter: %w", err)
		}
	case "otlp":
		client := otlptracehttp.NewClient(
			otlptracehttp.WithEndpoint(cfg.OTLPEndpoint),
			otlptracehttp.WithHeaders(cfg.OTLPHeaders),
		)
		exporter, err = otlptrace.New(context.Background(), client)
		if err != nil {
			return nil, fmt.Errorf("failed to create OTLP exporter: %w", err)
		}
	case "console":
		exporter = NewConsoleExporter(os.Stdout)
	default:
		return nil, fmt.Errorf("unsupported exporter type: %s", cfg.ExporterType)
	}

	return newWithExporter(cfg, res, trace.WithBatcher(exporter)), nil
}

// NewWithSpanProcessor builds an enabled service that hands every span to sp.
// Tests use it with a tracetest.SpanRecorder.
func NewWithSpanProcessor(cfg config.TracingConfig, sp trace.SpanProcessor) *TracingService {
	return newWithExporter(cfg, nil, trace.WithSpanProcessor(sp))
}

func newWithExporter(cfg config.TracingConfig, res *resource.Resource, processor trace.TracerProviderOption) *TracingService {
	samplingRatio := cfg.SamplingRatio
	if samplingRatio <= 0 {
		samplingRatio = 1.0
	}

	opts := []trace.TracerProviderOption{
		processor,
		trace.WithSampler(trace.TraceIDRatioBased(samplingRatio)),
	}
	if res != nil {
		opts = append(opts, trace.WithResource(res))
	}
	tp := trace.NewTracerProvider(opts...)

	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	return &TracingService{
		config:   cfg,
		tracer:   tp.Tracer(InstrumentationName),
		provider: tp,
	}
}

// StartSpan starts a new span
func (ts *TracingService) StartSpan(ctx context.Context, name string, opts ...oteltrace.SpanStartOption) (context.Context, oteltrace.Span) {
	return ts.tracer.Start(ctx, name, opts...)
}

// RecordError records an error in the current span
func (ts *TracingService) RecordError(span oteltrace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

// Close shuts down the tracing service
func (ts *TracingService) Close(ctx context.Context) error {
	if ts.provider != nil {
		return ts.provider.Shutdown(ctx)
	}
	return nil
}

// GetTracer returns the underlying tracer
func (ts *TracingService) GetTracer() oteltrace.Tracer {
	return ts.tracer
}

// TraceOperation is a helper function to trace an operation
func (ts *TracingService) TraceOperation(ctx context.Context, operationName string, fn func(context.Context, oteltrace.Span) error) error {
	ctx, span := ts.StartSpan(ctx, operationName)
	defer span.End()

	err := fn(ctx, span)
	if err != nil {
		ts.RecordError(span, err)
		return err
	}

	span.SetStatus(codes.Ok, "")
	return nil
}

// InstrumentLedgerOperation creates a span for run ledger access
func (ts *TracingService) InstrumentLedgerOperation(ctx context.Context, operation, backend, fingerprint string) (context.Context, oteltrace.Span) {
	return ts.StartSpan(ctx, fmt.Sprintf("ledger.%s", operation),
		oteltrace.WithAttributes(
			attribute.String("ledger.operation", operation),
			attribute.String("ledger.backend", backend),
			attribute.String("chaos.fingerprint", fingerprint),
			attribute.String("component", "ledger"),
		),
	)
}

// InstrumentHTTPRequest creates a span for HTTP requests
func (ts *TracingService) InstrumentHTTPRequest(ctx context.Context, method string, path string) (context.Context, oteltrace.Span) {
	return ts.StartSpan(ctx, fmt.Sprintf("http.%s %s", method, path),
		oteltrace.WithAttributes(
			attribute.String("http.method", method),
			attribute.String("http.route", path),
			attribute.String("component", "http"),
		),
	)
}
