package observability

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/sdk/resource"
	"go.opentelemetry.io/otel/sdk/trace"
	oteltrace "go.opentelemetry.io/otel/trace"
)

// InitTracer wires an OTLP/gRPC exporter and installs it as the global
// tracer provider for deviceName, covering a reactor invocation span
// from dispatch through suspend/resume to its terminal outcome. Returns
// a shutdown function the caller must invoke on process termination.
func InitTracer(deviceName, collectorEndpoint string) (func(context.Context) error, error) {
	ctx := context.Background()

	exporter, err := otlptracegrpc.New(ctx,
		otlptracegrpc.WithEndpoint(collectorEndpoint),
		otlptracegrpc.WithInsecure(),
	)
	if err != nil {
		return nil, fmt.Errorf("observability: trace exporter: %w", err)
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(deviceName),
			semconv.ServiceNamespace("reactormesh"),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("observability: trace resource: %w", err)
	}

	tp := trace.NewTracerProvider(
		trace.WithBatcher(exporter),
		trace.WithResource(res),
		trace.WithSampler(trace.AlwaysSample()),
	)

	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	return tp.Shutdown, nil
}

// StartSpan starts a span named spanName under the "devrt" tracer,
// covering one reactor invocation from dispatch through suspend/resume
// to its terminal outcome.
func StartSpan(ctx context.Context, spanName string) (context.Context, oteltrace.Span) {
	return otel.Tracer("devrt").Start(ctx, spanName)
}
