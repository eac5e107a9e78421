// Package tracing configures the OpenTelemetry tracer provider used around
// pipeline stages and exports.
package tracing

import (
	"context"
	"fmt"
	"io"
	"os"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

// InstrumentationName is the tracer name used by every package.
const InstrumentationName = "github.com/edfinlab/spendtrends"

// Options configures Setup.
type Options struct {
	Enabled bool
	// Exporter is "stdout" or "none".
	Exporter string
	// Writer receives stdout spans; defaults to os.Stderr.
	Writer  io.Writer
	Version string
}

// Shutdown flushes and stops the provider.
type Shutdown func(context.Context) error

// Setup installs a global tracer provider. When tracing is disabled the
// global no-op provider is left in place and the returned Shutdown does nothing.
func Setup(opts Options) (Shutdown, error) {
	noop := func(context.Context) error { return nil }
	if !opts.Enabled || opts.Exporter == "none" {
		return noop, nil
	}

	w := opts.Writer
	if w == nil {
		w = os.Stderr
	}
	exporter, err := stdouttrace.New(stdouttrace.WithWriter(w), stdouttrace.WithPrettyPrint())
	if err != nil {
		return noop, fmt.Errorf("create span exporter: %w", err)
	}

	res := resource.NewSchemaless(
		attribute.String("service.name", "spendtrends"),
		attribute.String("service.version", opts.Version),
	)
	provider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(provider)
	return provider.Shutdown, nil
}

// Tracer returns the package tracer from the global provider.
func Tracer() trace.Tracer {
	return otel.Tracer(InstrumentationName)
}
