package observability

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

// setupTracingTest creates a test tracer provider with an in-memory span recorder.
func setupTracingTest(t *testing.T) (*tracetest.InMemoryExporter, func()) {
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSyncer(exporter),
	)

	// Save the original provider
	originalProvider := otel.GetTracerProvider()

	// Set test provider
	otel.SetTracerProvider(tp)

	// Update the package-level tracer
	tracer = otel.Tracer("trainkeep")

	cleanup := func() {
		otel.SetTracerProvider(originalProvider)
		if err := tp.Shutdown(context.Background()); err != nil {
			t.Logf("Error shutting down tracer provider: %v", err)
		}
	}

	return exporter, cleanup
}

func TestStartSaveSpan(t *testing.T) {
	exporter, cleanup := setupTracingTest(t)
	defer cleanup()

	sm := NewSpanManager()
	require.NotNil(t, sm)

	t.Run("creates span with kind in name and attributes", func(t *testing.T) {
		ctx := context.Background()
		_, span := sm.StartSaveSpan(ctx, "checkpoint", 7)
		require.NotNil(t, span)

		span.End()

		spans := exporter.GetSpans()
		require.Len(t, spans, 1)

		s := spans[0]
		assert.Equal(t, "trainkeep.save_checkpoint", s.Name)

		var kind string
		var epoch int64
		for _, attr := range s.Attributes {
			switch attr.Key {
			case "checkpoint.kind":
				kind = attr.Value.AsString()
			case "checkpoint.epoch":
				epoch = attr.Value.AsInt64()
			}
		}
		assert.Equal(t, "checkpoint", kind)
		assert.Equal(t, int64(7), epoch)
	})

	t.Run("returns context with span", func(t *testing.T) {
		exporter.Reset()

		ctx := context.Background()
		newCtx, span := sm.StartSaveSpan(ctx, "recovery", 1)
		assert.NotEqual(t, ctx, newCtx)
		span.End()

		spans := exporter.GetSpans()
		require.Len(t, spans, 1)
		assert.Equal(t, "trainkeep.save_recovery", spans[0].Name)
	})
}

func TestEndSpanWithError(t *testing.T) {
	exporter, cleanup := setupTracingTest(t)
	defer cleanup()

	sm := &otelSpanManager{}

	t.Run("sets OK status for nil error", func(t *testing.T) {
		_, span := sm.StartSaveSpan(context.Background(), "checkpoint", 1)

		sm.EndSpanWithError(span, nil)

		spans := exporter.GetSpans()
		require.Len(t, spans, 1)
		assert.Equal(t, codes.Ok, spans[0].Status.Code)
		assert.Equal(t, "", spans[0].Status.Description)
	})

	t.Run("sets Error status and records error", func(t *testing.T) {
		exporter.Reset()

		_, span := sm.StartSaveSpan(context.Background(), "checkpoint", 2)
		sm.EndSpanWithError(span, errors.New("no space left on device"))

		spans := exporter.GetSpans()
		require.Len(t, spans, 1)

		s := spans[0]
		assert.Equal(t, codes.Error, s.Status.Code)
		assert.Equal(t, "no space left on device", s.Status.Description)

		found := false
		for _, event := range s.Events {
			if event.Name == "exception" {
				found = true
			}
		}
		assert.True(t, found, "Expected exception event")
	})

	t.Run("nil span does not panic", func(t *testing.T) {
		assert.NotPanics(t, func() {
			sm.EndSpanWithError(nil, errors.New("test"))
		})
	})
}

func TestAddSpanEvent(t *testing.T) {
	exporter, cleanup := setupTracingTest(t)
	defer cleanup()

	sm := NewSpanManager()

	t.Run("adds event to current span", func(t *testing.T) {
		ctx, span := sm.StartSaveSpan(context.Background(), "checkpoint", 3)

		sm.AddSpanEvent(ctx, "checkpoint.evicted",
			attribute.String("path", "/ckpt/checkpoint-1.json.lz4"),
		)
		span.End()

		spans := exporter.GetSpans()
		require.Len(t, spans, 1)
		require.Len(t, spans[0].Events, 1)

		event := spans[0].Events[0]
		assert.Equal(t, "checkpoint.evicted", event.Name)
		require.Len(t, event.Attributes, 1)
		assert.Equal(t, "/ckpt/checkpoint-1.json.lz4", event.Attributes[0].Value.AsString())
	})

	t.Run("no panic with no current span", func(t *testing.T) {
		assert.NotPanics(t, func() {
			sm.AddSpanEvent(context.Background(), "test_event")
		})
	})
}
