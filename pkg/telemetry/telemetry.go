// Package telemetry configures OpenTelemetry tracing.
package telemetry

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

type Config struct {
	Enabled     bool
	ServiceName string
	Version     string
	// Exporter replaces the OTLP exporter, mostly for tests.
	Exporter sdktrace.SpanExporter
}

// Shutdown flushes and stops the tracer provider.
type Shutdown func(context.Context) error

// Setup installs a global tracer provider. Tracing is on when cfg.Enabled is
// set or OTEL_EXPORTER_OTLP_ENDPOINT is present; otherwise the global no-op
// provider stays in place.
func Setup(ctx context.Context, cfg Config) (Shutdown, error) {
	if !cfg.Enabled && os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT") == "" && cfg.Exporter == nil {
		return func(context.Context) error { return nil }, nil
	}

	exporter := cfg.Exporter
	if exporter == nil {
		exp, err := otlptracehttp.New(ctx)
		if err != nil {
			return nil, fmt.Errorf("creating otlp exporter: %w", err)
		}
		exporter = exp
	}

	name := cfg.ServiceName
	if name == "" {
		name = "deskpilot"
	}
	res := resource.NewSchemaless(
		attribute.String("service.name", name),
		attribute.String("service.version", cfg.Version),
	)

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)
	slog.Debug("Tracing enabled", "service", name)

	return tp.Shutdown, nil
}
