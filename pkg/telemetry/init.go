// Package telemetry wires OpenTelemetry tracing for scans.
package telemetry

import (
	"context"
	"fmt"
	"io"
	"os"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"

	"github.com/DrSkyle/wastewatch/pkg/version"
)

// AttrCommit carries the build revision on every span.
const AttrCommit = attribute.Key("vcs.ref.head.revision")

// Resource describes this build of wastewatch. It is schemaless so it merges
// with the SDK defaults whatever semconv version those use.
func Resource() (*resource.Resource, error) {
	return resource.Merge(
		resource.Default(),
		resource.NewSchemaless(
			semconv.ServiceName(version.AppName),
			semconv.ServiceVersion(version.Current),
			AttrCommit.String(version.Commit),
		),
	)
}

// Init installs the global tracer provider. Spans go to OTLP/HTTP when
// endpoint is set or OTEL_EXPORTER_OTLP_ENDPOINT is, and are discarded
// otherwise. The returned func flushes and shuts the provider down.
func Init(ctx context.Context, endpoint string) (func(context.Context) error, error) {
	res, err := Resource()
	if err != nil {
		return nil, fmt.Errorf("telemetry resource: %w", err)
	}

	if endpoint == "" {
		endpoint = os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")
	}
	var exporter sdktrace.SpanExporter
	if endpoint != "" {
		exporter, err = otlptracehttp.New(ctx, otlptracehttp.WithEndpointURL(endpoint))
	} else {
		exporter, err = stdouttrace.New(stdouttrace.WithWriter(io.Discard))
	}
	if err != nil {
		return nil, fmt.Errorf("telemetry exporter: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{}))
	return tp.Shutdown, nil
}
