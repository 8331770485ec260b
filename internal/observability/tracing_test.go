package observability

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace/noop"
)

func TestInitTracingStdoutExportsSpans(t *testing.T) {
	t.Cleanup(func() { otel.SetTracerProvider(noop.NewTracerProvider()) })

	var buf bytes.Buffer
	ctx := context.Background()
	shutdown, err := InitTracing(ctx, TracingConfig{
		Enabled:     true,
		ServiceName: "turbinecraft-test",
		Exporter:    "stdout",
		SampleRatio: 1,
		Writer:      &buf,
	}, nil)
	if err != nil {
		t.Fatalf("InitTracing: %v", err)
	}
	_, span := otel.Tracer("test").Start(ctx, "probe-span")
	span.End()
	ShutdownWithTimeout(ctx, shutdown, nil)

	if !strings.Contains(buf.String(), "probe-span") {
		t.Fatalf("exported spans missing probe-span:\n%s", buf.String())
	}
}

func TestInitTracingDisabled(t *testing.T) {
	shutdown, err := InitTracing(context.Background(), TracingConfig{}, nil)
	if err != nil {
		t.Fatalf("InitTracing: %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
	_, span := otel.Tracer("test").Start(context.Background(), "ignored")
	if span.SpanContext().IsValid() {
		t.Fatalf("disabled tracing produced a sampled span")
	}
	span.End()
}

func TestInitTracingRejectsUnknownExporter(t *testing.T) {
	_, err := InitTracing(context.Background(), TracingConfig{Enabled: true, Exporter: "zipkin"}, nil)
	if err == nil {
		t.Fatalf("expected error for unknown exporter")
	}
}

func TestTracingConfigFromEnv(t *testing.T) {
	t.Setenv("TURBINE_TRACING_ENABLED", "true")
	t.Setenv("TURBINE_TRACING_SAMPLE_RATIO", "0.25")
	cfg := TracingConfigFromEnv()
	if !cfg.Enabled || cfg.SampleRatio != 0.25 || cfg.Exporter != "stdout" {
		t.Fatalf("config: got %+v", cfg)
	}
}
