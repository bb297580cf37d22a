package otel

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestParseHeaders(t *testing.T) {
	got := ParseHeaders(" authorization = Bearer x ,broken,,=empty,tenant=symm")
	require.Equal(t, map[string]string{
		"authorization": "Bearer x",
		"tenant":        "symm",
	}, got)
}

func TestInitDisabled(t *testing.T) {
	shutdown, err := Init(context.Background(), Config{ServiceName: "attesterd"})
	require.NoError(t, err)
	require.NoError(t, shutdown(context.Background()))

	_, err = Init(context.Background(), Config{Traces: true})
	require.Error(t, err)
}

func restoreGlobals(t *testing.T) {
	t.Helper()
	tp, mp, prop := otel.GetTracerProvider(), otel.GetMeterProvider(), otel.GetTextMapPropagator()
	t.Cleanup(func() {
		otel.SetTracerProvider(tp)
		otel.SetMeterProvider(mp)
		otel.SetTextMapPropagator(prop)
	})
}

func TestInitExportsSpansWithNodeResource(t *testing.T) {
	restoreGlobals(t)
	spans := tracetest.NewInMemoryExporter()
	reader := sdkmetric.NewManualReader()

	shutdown, err := Init(context.Background(), Config{
		ServiceName:  "attesterd",
		Environment:  "test",
		Traces:       true,
		Metrics:      true,
		Variant:      "strict",
		ChainIDs:     []uint64{56, 42161},
		Signer:       "0x00000000000000000000000000000000000000AB",
		SpanExporter: spans,
		MetricReader: reader,
	})
	require.NoError(t, err)

	_, span := otel.Tracer("symmoracle/router").Start(context.Background(), "router.uPnl_A")
	span.End()
	counter, err := otel.Meter("symmoracle/test").Int64Counter("attestations")
	require.NoError(t, err)
	counter.Add(context.Background(), 1)

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	require.NotEmpty(t, rm.ScopeMetrics)

	tp, ok := otel.GetTracerProvider().(*sdktrace.TracerProvider)
	require.True(t, ok)
	require.NoError(t, tp.ForceFlush(context.Background()))
	got := spans.GetSpans()
	require.Len(t, got, 1)
	require.Equal(t, "router.uPnl_A", got[0].Name)

	attrs := map[attribute.Key]attribute.Value{}
	for _, kv := range got[0].Resource.Attributes() {
		attrs[kv.Key] = kv.Value
	}
	require.Equal(t, "strict", attrs[AttrVariant].AsString())
	require.Equal(t, []int64{56, 42161}, attrs[AttrChainIDs].AsInt64Slice())
	require.Equal(t, strings.ToLower("0x00000000000000000000000000000000000000AB"), attrs[AttrSigner].AsString())
	require.Equal(t, "attesterd", attrs["service.name"].AsString())
	require.NoError(t, shutdown(context.Background()))
}

func TestSamplerRespectsParent(t *testing.T) {
	require.Contains(t, Sampler(0).Description(), "AlwaysOnSampler")
	require.Contains(t, Sampler(0.25).Description(), "TraceIDRatioBased")
	require.Contains(t, Sampler(1).Description(), "ParentBased")

	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSampler(Sampler(0.0000001)), sdktrace.WithSyncer(exporter))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })
	ctx, parent := tp.Tracer("t").Start(context.Background(), "root")
	_, child := tp.Tracer("t").Start(ctx, "child")
	child.End()
	parent.End()
	require.Equal(t, parent.SpanContext().IsSampled(), child.SpanContext().IsSampled())
}
