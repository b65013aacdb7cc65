package observability

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

// TracerProvider wraps the OpenTelemetry tracer provider; StartSpan and
// FinishSpan open and close spans with it. The memory engine, retrieval and
// graph packages do not call StartSpan, so their methods open no spans.
type TracerProvider struct {
	provider *sdktrace.TracerProvider
	tracer   trace.Tracer
}

// InitTracing configures an OTLP/gRPC exporter and registers it as the
// global tracer provider.
func InitTracing(ctx context.Context, serviceName, environment, endpoint string) (*TracerProvider, error) {
	exporter, err := otlptrace.New(ctx, otlptracegrpc.NewClient(
		otlptracegrpc.WithEndpoint(endpoint),
		otlptracegrpc.WithInsecure(),
	))
	if err != nil {
		return nil, fmt.Errorf("observability: create otlp exporter: %w", err)
	}

	res, err := resource.Merge(resource.Default(), resource.NewSchemaless(
		attribute.String("service.name", serviceName),
		attribute.String("deployment.environment", environment),
	))
	if err != nil {
		return nil, fmt.Errorf("observability: build resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.TraceContext{})

	return &TracerProvider{provider: tp, tracer: tp.Tracer(serviceName)}, nil
}

// Shutdown flushes and stops the tracer provider.
func (tp *TracerProvider) Shutdown(ctx context.Context) error {
	if tp == nil || tp.provider == nil {
		return nil
	}
	return tp.provider.Shutdown(ctx)
}

// SpanFields are the standard attributes StartSpan attaches to a span
// (spec §4.10).
type SpanFields struct {
	Component string
	Operation string
	OrgID     string
	AgentID   string
	UserID    string
	MemoryID  string
}

// StartSpan opens a span named "component.operation" and tags it with the
// tenant/entity identifiers spec §4.10 requires.
func (tp *TracerProvider) StartSpan(ctx context.Context, f SpanFields) (context.Context, trace.Span) {
	tracer := otel.Tracer("memoryengine")
	if tp != nil && tp.tracer != nil {
		tracer = tp.tracer
	}
	ctx, span := tracer.Start(ctx, f.Component+"."+f.Operation)
	span.SetAttributes(
		attribute.String("component", f.Component),
		attribute.String("operation", f.Operation),
	)
	if f.OrgID != "" {
		span.SetAttributes(attribute.String("tenant.org_id", f.OrgID))
	}
	if f.AgentID != "" {
		span.SetAttributes(attribute.String("tenant.agent_id", f.AgentID))
	}
	if f.UserID != "" {
		span.SetAttributes(attribute.String("tenant.user_id", f.UserID))
	}
	if f.MemoryID != "" {
		span.SetAttributes(attribute.String("memory.id", f.MemoryID))
	}
	return ctx, span
}

// FinishSpan records success/failure and latency on the span, then ends it.
func FinishSpan(span trace.Span, err error) {
	span.SetAttributes(attribute.Bool("success", err == nil))
	if ro, ok := span.(sdktrace.ReadOnlySpan); ok {
		span.SetAttributes(attribute.Int64("latency_ms", time.Since(ro.StartTime()).Milliseconds()))
	}
	if err != nil {
		span.RecordError(err)
	}
	span.End()
}
