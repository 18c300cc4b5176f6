package tracing

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/rimborsami/rimborsami/internal/domain"
)

func keepGlobalProvider(t *testing.T) {
	prev := otel.GetTracerProvider()
	t.Cleanup(func() { otel.SetTracerProvider(prev) })
}

func TestSetupDisabled(t *testing.T) {
	keepGlobalProvider(t)
	before := otel.GetTracerProvider()

	shutdown, err := Setup(domain.TracingConfig{Enabled: false, ServiceName: "off"})
	require.NoError(t, err)
	assert.Same(t, before, otel.GetTracerProvider())
	assert.NoError(t, shutdown(context.Background()))
}

func TestSetupRecordsSpansWithServiceName(t *testing.T) {
	tests := []struct {
		name        string
		serviceName string
		want        string
	}{
		{"configured", "rimborsami-api", "rimborsami-api"},
		{"default", "", "rimborsami"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			keepGlobalProvider(t)
			rec := tracetest.NewSpanRecorder()

			shutdown, err := Setup(domain.TracingConfig{Enabled: true, ServiceName: tt.serviceName},
				sdktrace.WithSpanProcessor(rec))
			require.NoError(t, err)
			require.IsType(t, &sdktrace.TracerProvider{}, otel.GetTracerProvider())

			_, span := otel.Tracer("test").Start(context.Background(), "quiz.evaluate")
			assert.True(t, span.SpanContext().TraceID().IsValid())
			span.End()

			ended := rec.Ended()
			require.Len(t, ended, 1)
			assert.Equal(t, "quiz.evaluate", ended[0].Name())
			assert.Contains(t, ended[0].Resource().Attributes(), attribute.String("service.name", tt.want))

			require.NoError(t, shutdown(context.Background()))
		})
	}
}
