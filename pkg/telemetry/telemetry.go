// Package telemetry sets up OpenTelemetry tracing for runs, model calls and tool calls.
package telemetry

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"

	"boxonomics/pkg/config"
	"boxonomics/pkg/logx"
	"boxonomics/pkg/version"
)

// TracerName is the instrumentation scope used across the module.
const TracerName = "boxonomics"

// Tracer returns the module tracer from the global provider.
func Tracer() trace.Tracer {
	return otel.Tracer(TracerName)
}

// Init installs an OTLP gRPC tracer provider when an endpoint is configured.
// The returned shutdown flushes pending spans and is safe to call when tracing is disabled.
func Init(ctx context.Context, cfg config.TelemetryConfig) (func(context.Context) error, error) {
	logger := logx.NewLogger("telemetry")
	if cfg.OTLPEndpoint == "" {
		logger.Debug("🔕 OpenTelemetry disabled")
		return func(context.Context) error { return nil }, nil
	}

	opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(cfg.OTLPEndpoint)}
	if cfg.Insecure {
		opts = append(opts, otlptracegrpc.WithInsecure())
	}
	exporter, err := otlptracegrpc.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create OTLP exporter: %w", err)
	}

	tp := NewTracerProvider(cfg.ServiceName, sdktrace.WithBatcher(exporter))
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	logger.Info("📡 OpenTelemetry tracing to %s as %s", cfg.OTLPEndpoint, cfg.ServiceName)
	return tp.Shutdown, nil
}

// NewTracerProvider builds a tracer provider tagged with the service name. Tests pass an in-memory span processor.
func NewTracerProvider(serviceName string, opts ...sdktrace.TracerProviderOption) *sdktrace.TracerProvider {
	res := resource.NewSchemaless(
		attribute.String("service.name", serviceName),
		attribute.String("service.version", version.Version),
	)
	opts = append([]sdktrace.TracerProviderOption{
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
	}, opts...)
	return sdktrace.NewTracerProvider(opts...)
}
