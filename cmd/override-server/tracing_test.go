package main

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

func quietLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func shutdownTracer(t *testing.T, tp *sdktrace.TracerProvider) {
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = tp.Shutdown(ctx)
	})
}

func TestNewTracerProvider_NoEndpointSamplesNothing(t *testing.T) {
	tp, err := newTracerProvider(context.Background(), serverConfig{TraceSampleRate: 1}, quietLogger())
	require.NoError(t, err)
	shutdownTracer(t, tp)

	_, span := tp.Tracer("override").Start(context.Background(), "approve")
	assert.False(t, span.SpanContext().IsSampled())
}

func TestNewTracerProvider_ExportsToCollector(t *testing.T) {
	cfg := serverConfig{OTLPEndpoint: "localhost:4317", OTLPInsecure: true, TraceSampleRate: 1}
	tp, err := newTracerProvider(context.Background(), cfg, quietLogger())
	require.NoError(t, err)
	shutdownTracer(t, tp)

	_, span := tp.Tracer("override").Start(context.Background(), "approve")
	assert.True(t, span.SpanContext().IsSampled())
}

func TestSampler(t *testing.T) {
	var high trace.TraceID
	for i := range high {
		high[i] = 0xff
	}
	root := sdktrace.SamplingParameters{TraceID: high, Name: "create"}
	tests := []struct {
		name string
		rate float64
		want sdktrace.SamplingDecision
	}{
		{"always", 1, sdktrace.RecordAndSample},
		{"above one", 3, sdktrace.RecordAndSample},
		{"never", 0, sdktrace.Drop},
		{"negative", -1, sdktrace.Drop},
		{"ratio drops high trace ids", 0.01, sdktrace.Drop},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, sampler(tt.rate).ShouldSample(root).Decision)
		})
	}
}
