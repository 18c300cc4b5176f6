// Package tracing installs the OpenTelemetry tracer provider used by the
// API middleware, the pipeline and the worker.
package tracing

import (
	"context"

	"github.com/rotisserie/eris"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/rimborsami/rimborsami/internal/domain"
)

const defaultServiceName = "rimborsami"

// ShutdownFunc flushes and stops the provider installed by Setup.
type ShutdownFunc func(ctx context.Context) error

// Setup installs a global SDK tracer provider tagged with the configured
// service name. When tracing is disabled the global no-op provider stays in
// place and the returned ShutdownFunc does nothing.
func Setup(cfg domain.TracingConfig, opts ...sdktrace.TracerProviderOption) (ShutdownFunc, error) {
	if !cfg.Enabled {
		return func(context.Context) error { return nil }, nil
	}

	name := cfg.ServiceName
	if name == "" {
		name = defaultServiceName
	}
	res, err := resource.Merge(resource.Default(),
		resource.NewSchemaless(attribute.String("service.name", name)))
	if err != nil {
		return nil, eris.Wrap(err, "tracing resource")
	}

	tp := sdktrace.NewTracerProvider(append([]sdktrace.TracerProviderOption{
		sdktrace.WithResource(res),
	}, opts...)...)
	otel.SetTracerProvider(tp)

	return func(ctx context.Context) error {
		if err := tp.Shutdown(ctx); err != nil {
			return eris.Wrap(err, "tracer provider shutdown")
		}
		return nil
	}, nil
}
