package observability

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// TracingConfig governs how simulation tracing is initialised.
type TracingConfig struct {
	Enabled     bool
	ServiceName string
	Exporter    string // stdout | none
	SampleRatio float64

	// Writer receives stdout spans; nil means os.Stdout.
	Writer io.Writer
}

// TracingConfigFromEnv reads TURBINE_TRACING_* variables.
func TracingConfigFromEnv() TracingConfig {
	enabled := strings.EqualFold(os.Getenv("TURBINE_TRACING_ENABLED"), "true")
	exporter := strings.ToLower(os.Getenv("TURBINE_TRACING_EXPORTER"))
	if exporter == "" {
		exporter = "stdout"
	}
	service := os.Getenv("TURBINE_TRACING_SERVICE_NAME")
	if service == "" {
		service = "turbinecraft"
	}
	ratio := 1.0
	if raw := os.Getenv("TURBINE_TRACING_SAMPLE_RATIO"); raw != "" {
		if v, err := strconv.ParseFloat(raw, 64); err == nil && v >= 0 && v <= 1 {
			ratio = v
		}
	}
	return TracingConfig{
		Enabled:     enabled,
		ServiceName: service,
		Exporter:    exporter,
		SampleRatio: ratio,
	}
}

// InitTracing installs the global tracer provider and propagators. The
// returned function flushes and stops the provider.
func InitTracing(ctx context.Context, cfg TracingConfig, logger *log.Logger) (func(context.Context) error, error) {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	if !cfg.Enabled || cfg.Exporter == "none" {
		otel.SetTracerProvider(noop.NewTracerProvider())
		otel.SetTextMapPropagator(propagation.TraceContext{})
		logger.Printf("tracing disabled")
		return func(context.Context) error { return nil }, nil
	}

	exp, err := exporterFromConfig(cfg)
	if err != nil {
		return nil, err
	}
	res, err := resource.New(ctx,
		resource.WithAttributes(
			attribute.String("service.name", cfg.ServiceName),
			attribute.String("service.namespace", "turbinecraft"),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("create resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(cfg.SampleRatio))),
		sdktrace.WithBatcher(exp),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
	logger.Printf("tracing enabled exporter=%s service=%s ratio=%.2f", cfg.Exporter, cfg.ServiceName, cfg.SampleRatio)
	return tp.Shutdown, nil
}

func exporterFromConfig(cfg TracingConfig) (sdktrace.SpanExporter, error) {
	switch strings.ToLower(cfg.Exporter) {
	case "stdout", "":
		w := cfg.Writer
		if w == nil {
			w = os.Stdout
		}
		return stdouttrace.New(
			stdouttrace.WithWriter(w),
			stdouttrace.WithPrettyPrint(),
			stdouttrace.WithoutTimestamps(),
		)
	default:
		return nil, fmt.Errorf("unsupported tracing exporter: %s", cfg.Exporter)
	}
}

// ShutdownWithTimeout runs shutdown with a bounded timeout and logs failures.
func ShutdownWithTimeout(ctx context.Context, shutdown func(context.Context) error, logger *log.Logger) {
	if shutdown == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := shutdown(ctx); err != nil && logger != nil {
		logger.Printf("tracing shutdown: %v", err)
	}
}
