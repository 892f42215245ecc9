package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestSetup_DisabledIsNoop(t *testing.T) {
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "")

	shutdown, err := Setup(t.Context(), Config{})
	require.NoError(t, err)
	require.NoError(t, shutdown(t.Context()))
}

// keptExporter keeps its spans across Shutdown so they can be inspected.
type keptExporter struct {
	*tracetest.InMemoryExporter
}

func (keptExporter) Shutdown(context.Context) error { return nil }

func TestSetup_ExportsSpans(t *testing.T) {
	exporter := keptExporter{tracetest.NewInMemoryExporter()}
	previous := otel.GetTracerProvider()
	t.Cleanup(func() { otel.SetTracerProvider(previous) })

	shutdown, err := Setup(t.Context(), Config{ServiceName: "test", Version: "1.0", Exporter: exporter})
	require.NoError(t, err)

	_, span := otel.Tracer("test").Start(t.Context(), "invocation")
	span.End()
	require.NoError(t, shutdown(t.Context()))

	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	assert.Equal(t, "invocation", spans[0].Name)

	var service string
	for _, kv := range spans[0].Resource.Attributes() {
		if kv.Key == "service.name" {
			service = kv.Value.AsString()
		}
	}
	assert.Equal(t, "test", service)
}
