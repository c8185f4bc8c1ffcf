// Package telemetry provides OpenTelemetry tracing with OTLP gRPC export.
// Each run gets its own tracer provider; nothing is installed globally.
package telemetry

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// OTLPConfig configures the OpenTelemetry OTLP gRPC exporter.
type OTLPConfig struct {
	// Endpoint is the OTLP gRPC endpoint (e.g., "localhost:4317"). Empty
	// disables export.
	Endpoint string

	// ServiceName identifies this service in traces
	ServiceName string

	// ServiceVersion is the version of this service
	ServiceVersion string

	// InsecureTLS disables TLS for the gRPC connection (use for local dev)
	InsecureTLS bool

	// ExportTimeout is the timeout for exporting a batch
	ExportTimeout time.Duration
}

// DefaultOTLPConfig returns sensible defaults for OTLP configuration.
func DefaultOTLPConfig(serviceName string) OTLPConfig {
	return OTLPConfig{
		ServiceName:    serviceName,
		ServiceVersion: "1.0.0",
		InsecureTLS:    true,
		ExportTimeout:  10 * time.Second,
	}
}

// Telemetry holds the tracer for one run.
type Telemetry struct {
	tracer   trace.Tracer
	shutdown func(context.Context) error
}

// Setup creates the tracer. With no endpoint the tracer is a no-op and
// Shutdown does nothing.
func Setup(ctx context.Context, cfg OTLPConfig) (*Telemetry, error) {
	if cfg.Endpoint == "" {
		return Noop(), nil
	}

	// Create OTLP exporter options
	exporterOpts := []otlptracegrpc.Option{
		otlptracegrpc.WithEndpoint(cfg.Endpoint),
		otlptracegrpc.WithTimeout(cfg.ExportTimeout),
	}
	if cfg.InsecureTLS {
		exporterOpts = append(exporterOpts,
			otlptracegrpc.WithInsecure(),
			otlptracegrpc.WithDialOption(grpc.WithTransportCredentials(insecure.NewCredentials())),
		)
	}

	exporter, err := otlptracegrpc.New(ctx, exporterOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create OTLP exporter: %w", err)
	}

	res := resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceName(cfg.ServiceName),
		semconv.ServiceVersion(cfg.ServiceVersion),
	)

	// A one-shot process exports once, at shutdown
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter, sdktrace.WithExportTimeout(cfg.ExportTimeout)),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
	)
	return NewWithProvider(tp, cfg.ServiceName), nil
}

// NewWithProvider wraps an SDK tracer provider. Shutdown flushes it.
func NewWithProvider(tp *sdktrace.TracerProvider, name string) *Telemetry {
	return &Telemetry{
		tracer:   tp.Tracer(name),
		shutdown: tp.Shutdown,
	}
}

// Noop returns a Telemetry that records nothing.
func Noop() *Telemetry {
	return &Telemetry{
		tracer:   noop.NewTracerProvider().Tracer("edaproc"),
		shutdown: func(context.Context) error { return nil },
	}
}

// Shutdown flushes pending spans.
func (t *Telemetry) Shutdown(ctx context.Context) error {
	return t.shutdown(ctx)
}

// StartRun opens the root span of a run.
func (t *Telemetry) StartRun(ctx context.Context, runID, requestID string) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, "edaproc.run", trace.WithAttributes(
		attribute.String("run.id", runID),
		attribute.String("request.id", requestID),
	))
}

// StartStage opens a span for one pipeline stage. The returned function ends
// it, recording err when non-nil.
func (t *Telemetry) StartStage(ctx context.Context, stage string, attrs ...attribute.KeyValue) (context.Context, func(err error)) {
	ctx, span := t.tracer.Start(ctx, "edaproc."+stage, trace.WithAttributes(attrs...))
	return ctx, func(err error) {
		End(span, err)
	}
}

// End records err on span, if any, and ends it.
func End(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}
