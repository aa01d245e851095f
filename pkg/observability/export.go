package observability

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/metric"
	noopmetric "go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	nooptrace "go.opentelemetry.io/otel/trace/noop"
)

type stopFunc func(ctx context.Context) error

func stopNothing(context.Context) error { return nil }

// exporters pairs each provider with the function that flushes it.
type exporters struct {
	tracing      trace.TracerProvider
	stopTracing  stopFunc
	metering     metric.MeterProvider
	stopMetering stopFunc
}

func newExporters(ctx context.Context, cfg Config, res *resource.Resource) (exporters, error) {
	if cfg.OTLPEndpoint == "" {
		return exporters{
			tracing:      nooptrace.NewTracerProvider(),
			stopTracing:  stopNothing,
			metering:     noopmetric.NewMeterProvider(),
			stopMetering: stopNothing,
		}, nil
	}

	traceOpts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(cfg.OTLPEndpoint)}
	metricOpts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithEndpoint(cfg.OTLPEndpoint)}

	if cfg.OTLPInsecure {
		traceOpts = append(traceOpts, otlptracegrpc.WithInsecure())
		metricOpts = append(metricOpts, otlpmetricgrpc.WithInsecure())
	}

	if len(cfg.OTLPHeaders) > 0 {
		traceOpts = append(traceOpts, otlptracegrpc.WithHeaders(cfg.OTLPHeaders))
		metricOpts = append(metricOpts, otlpmetricgrpc.WithHeaders(cfg.OTLPHeaders))
	}

	spanExporter, err := otlptracegrpc.New(ctx, traceOpts...)
	if err != nil {
		return exporters{}, fmt.Errorf("create trace exporter: %w", err)
	}

	tracerOpts := []sdktrace.TracerProviderOption{
		sdktrace.WithBatcher(spanExporter),
		sdktrace.WithResource(res),
	}

	// Without an explicit ratio the SDK reads OTEL_TRACES_SAMPLER itself.
	if cfg.SampleRatio > 0 {
		tracerOpts = append(tracerOpts,
			sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(cfg.SampleRatio))))
	}

	tp := sdktrace.NewTracerProvider(tracerOpts...)

	metricExporter, err := otlpmetricgrpc.New(ctx, metricOpts...)
	if err != nil {
		return exporters{}, fmt.Errorf("create metric exporter: %w", err)
	}

	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(metricExporter)),
		sdkmetric.WithResource(res),
	)

	return exporters{tracing: tp, stopTracing: tp.Shutdown, metering: mp, stopMetering: mp.Shutdown}, nil
}
