package observability

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/Sumatoshi-tech/codeshape"

// Providers is what a crawl reports through.
type Providers struct {
	Tracer trace.Tracer
	Meter  metric.Meter
	Logger *slog.Logger

	// Shutdown flushes buffered spans and metric points. Call it once before exit.
	Shutdown func(ctx context.Context) error
}

// Init builds the logger and, when cfg names an OTLP endpoint, exporting
// tracer and meter providers registered as the otel globals.
func Init(cfg Config) (Providers, error) {
	ctx := context.Background()
	logger := NewLogger(cfg)

	res, err := resource.New(ctx, resource.WithAttributes(
		semconv.ServiceName(cfg.ServiceName),
		semconv.ServiceVersion(cfg.ServiceVersion),
	))
	if err != nil {
		return Providers{}, fmt.Errorf("build otel resource: %w", err)
	}

	exp, err := newExporters(ctx, cfg, res)
	if err != nil {
		return Providers{}, err
	}

	otel.SetTracerProvider(exp.tracing)
	otel.SetMeterProvider(exp.metering)
	otel.SetTextMapPropagator(propagation.TraceContext{})

	timeout := cfg.ShutdownTimeout
	if timeout <= 0 {
		timeout = defaultShutdownTimeout
	}

	return Providers{
		Tracer: exp.tracing.Tracer(instrumentationName),
		Meter:  exp.metering.Meter(instrumentationName),
		Logger: logger,
		Shutdown: func(parent context.Context) error {
			ctx, cancel := context.WithTimeout(parent, timeout)
			defer cancel()

			return errors.Join(exp.stopTracing(ctx), exp.stopMetering(ctx))
		},
	}, nil
}
