// Package observability sets up the tracer provider used by the tracing aspect.
package observability

import (
	"context"
	"fmt"
	"io"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.27.0"
	"go.opentelemetry.io/otel/trace"
)

// DefaultServiceName is used when no service name is configured
const DefaultServiceName = "aopdemo"

// Tracing owns a tracer provider exporting spans as JSON to a writer
type Tracing struct {
	provider *sdktrace.TracerProvider
}

// NewTracing creates a tracer provider for serviceName writing spans to out
func NewTracing(ctx context.Context, serviceName string, out io.Writer) (*Tracing, error) {
	serviceName = strings.TrimSpace(serviceName)
	if serviceName == "" {
		serviceName = DefaultServiceName
	}

	res, err := resource.New(ctx, resource.WithAttributes(
		semconv.ServiceNameKey.String(serviceName),
	))
	if err != nil {
		return nil, fmt.Errorf("failed to build tracing resource: %w", err)
	}

	exporter, err := stdouttrace.New(stdouttrace.WithWriter(out))
	if err != nil {
		return nil, fmt.Errorf("failed to create span exporter: %w", err)
	}

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithSyncer(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(provider)

	return &Tracing{provider: provider}, nil
}

// Tracer returns the tracer for the aspect layer
func (t *Tracing) Tracer() trace.Tracer {
	return t.provider.Tracer("github.com/glimte/aopdemo/aop")
}

// Shutdown flushes and stops the provider
func (t *Tracing) Shutdown(ctx context.Context) error {
	return t.provider.Shutdown(ctx)
}
