package telemetry

import (
	"context"
	"fmt"
	"log"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/jaeger"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
)

/*
LEARNING: TRACING A RELAY

Every HTTP request gets a server span from the tracing middleware. A live
connection adds its own spans on top:

	GET /ws/documents/{id}      (upgrade request)
	└── WebSocket.Connect       (access gate, registry join)
	Relay.HandleInbound         (one per inbound delta: parse, fan-out, publish)
	Relay.Publish               (child of HandleInbound, run by the publisher goroutine)
	Relay.DeliverRemote         (one per delta relayed by another instance)

Relay spans are frequent, so production deployments lower TRACE_SAMPLE_RATIO.
ParentBased keeps a sampled request's child spans together.
*/

// Shutdown flushes pending spans.
type Shutdown func(context.Context) error

// InitJaeger installs a tracer provider exporting to jaegerEndpoint.
// An empty endpoint leaves the global no-op provider in place.
func InitJaeger(serviceName, version, jaegerEndpoint string, sampleRatio float64) (Shutdown, error) {
	if jaegerEndpoint == "" {
		log.Println("  Tracing disabled (JAEGER_ENDPOINT is empty)")
		return func(context.Context) error { return nil }, nil
	}

	exp, err := jaeger.New(
		jaeger.WithCollectorEndpoint(jaeger.WithEndpoint(jaegerEndpoint)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create Jaeger exporter: %w", err)
	}

	// Resource identifies the service in the Jaeger UI
	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(serviceName),
			semconv.ServiceVersion(version),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exp),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(Sampler(sampleRatio)),
	)
	otel.SetTracerProvider(tp)

	log.Printf("✓ Jaeger tracing initialized: %s (sampling %.0f%%)", jaegerEndpoint, sampleRatio*100)

	return tp.Shutdown, nil
}

// Sampler follows the parent's decision and samples root spans at ratio.
func Sampler(ratio float64) sdktrace.Sampler {
	switch {
	case ratio >= 1:
		return sdktrace.ParentBased(sdktrace.AlwaysSample())
	case ratio <= 0:
		return sdktrace.ParentBased(sdktrace.NeverSample())
	default:
		return sdktrace.ParentBased(sdktrace.TraceIDRatioBased(ratio))
	}
}
