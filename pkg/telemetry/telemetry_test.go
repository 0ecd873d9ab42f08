package telemetry

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/entrhq/scout/pkg/config"
)

func TestInitDisabledIsNoop(t *testing.T) {
	for _, cfg := range []config.TelemetryConfig{
		{Enabled: false, OTLPEndpoint: "localhost:4317"},
		{Enabled: true},
	} {
		shutdown, err := Init(context.Background(), cfg, "test")
		require.NoError(t, err)
		require.NotNil(t, shutdown)
		assert.NoError(t, shutdown(context.Background()))
	}
}

func TestNewResource(t *testing.T) {
	res, err := NewResource(context.Background(), "scout", "1.2.3")
	require.NoError(t, err)

	attrs := map[string]string{}
	for _, kv := range res.Attributes() {
		attrs[string(kv.Key)] = kv.Value.Emit()
	}
	assert.Equal(t, "scout", attrs["service.name"])
	assert.Equal(t, "1.2.3", attrs["service.version"])
}

func TestRegisterPropagatesTraceContext(t *testing.T) {
	prevTP, prevProp := otel.GetTracerProvider(), otel.GetTextMapPropagator()
	t.Cleanup(func() {
		otel.SetTracerProvider(prevTP)
		otel.SetTextMapPropagator(prevProp)
	})

	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	Register(tp)

	ctx, span := otel.Tracer("test").Start(context.Background(), "request")
	header := http.Header{}
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(header))
	span.End()

	assert.NotEmpty(t, header.Get("traceparent"))
	require.Len(t, recorder.Ended(), 1)
	assert.Equal(t, "request", recorder.Ended()[0].Name())
}
