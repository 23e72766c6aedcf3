// Package telemetry sets up the tracer used to annotate each connection's
// lifetime with a span. Spans are exported as JSON by the stdouttrace
// exporter to the writer passed to New; the point here is
// giving operators a way to see one connection's shape, not long-term
// trace storage.
package telemetry

import (
	"context"
	"io"

	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
)

// TracerProvider wraps an sdktrace.TracerProvider so callers can obtain a
// Tracer and shut the provider down cleanly on exit.
type TracerProvider struct {
	provider *sdktrace.TracerProvider
}

// New constructs a TracerProvider that writes spans as JSON to w. Passing
// io.Discard effectively disables tracing while still satisfying every
// call site that expects a trace.Tracer.
func New(w io.Writer, serviceName string) (*TracerProvider, error) {
	exporter, err := stdouttrace.New(stdouttrace.WithWriter(w))
	if err != nil {
		return nil, err
	}

	res := resource.NewWithAttributes(semconv.SchemaURL,
		semconv.ServiceNameKey.String(serviceName),
	)

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)

	return &TracerProvider{provider: provider}, nil
}

// Tracer returns a trace.Tracer for instrumenting connections.
func (p *TracerProvider) Tracer(name string) trace.Tracer {
	return p.provider.Tracer(name)
}

// Shutdown flushes pending spans and releases the exporter.
func (p *TracerProvider) Shutdown(ctx context.Context) error {
	return p.provider.Shutdown(ctx)
}
