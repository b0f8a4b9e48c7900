package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"

	"github.com/DrSkyle/wastewatch/pkg/version"
)

func TestInit_DiscardExporter(t *testing.T) {
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	ctx := context.Background()

	shutdown, err := Init(ctx, "")
	require.NoError(t, err)

	_, span := otel.Tracer("wastewatch/test").Start(ctx, "unit")
	assert.True(t, span.SpanContext().IsValid())
	ro, ok := span.(sdktrace.ReadOnlySpan)
	require.True(t, ok)
	name, _ := ro.Resource().Set().Value(semconv.ServiceNameKey)
	assert.Equal(t, version.AppName, name.AsString())
	span.End()

	require.NoError(t, shutdown(ctx))
}

func TestResource_CarriesBuildInfo(t *testing.T) {
	current, commit := version.Current, version.Commit
	t.Cleanup(func() { version.Current, version.Commit = current, commit })
	version.Current, version.Commit = "1.4.0", "abc1234"

	res, err := Resource()
	require.NoError(t, err)

	attrs := map[attribute.Key]string{}
	for _, kv := range res.Attributes() {
		attrs[kv.Key] = kv.Value.Emit()
	}
	assert.Equal(t, "wastewatch", attrs[semconv.ServiceNameKey])
	assert.Equal(t, "1.4.0", attrs[semconv.ServiceVersionKey])
	assert.Equal(t, "abc1234", attrs[AttrCommit])
	assert.Contains(t, attrs, semconv.TelemetrySDKNameKey, "SDK defaults are kept")
}
