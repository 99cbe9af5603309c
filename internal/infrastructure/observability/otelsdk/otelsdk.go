package otelsdk

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/contrib/bridges/otelzap"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploghttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	otellog "go.opentelemetry.io/otel/log"
	"go.opentelemetry.io/otel/log/global"
	lognoop "go.opentelemetry.io/otel/log/noop"
	"go.opentelemetry.io/otel/propagation"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap/zapcore"
)

type Config struct {
	ServiceName    string
	ServiceVersion string
	Env            string
	// Endpoint is the OTLP/HTTP collector host:port. Empty disables export; spans are
	// still created so trace ids reach the logs.
	Endpoint string
	Insecure bool
}

// SDK owns the trace and log providers and the zap core that bridges into OTLP logs.
type SDK struct {
	TracerProvider trace.TracerProvider
	LoggerProvider otellog.LoggerProvider
	shutdownFuncs  []func(context.Context) error
}

// Setup installs the W3C trace-context and baggage propagators globally and, when an
// endpoint is configured, batch OTLP exporters for spans and logs.
func Setup(ctx context.Context, cfg Config) (*SDK, error) {
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(cfg.ServiceName),
			semconv.ServiceVersion(cfg.ServiceVersion),
			semconv.DeploymentEnvironment(cfg.Env),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("otel resource: %w", err)
	}

	sdk := &SDK{}
	if cfg.Endpoint == "" {
		tp := sdktrace.NewTracerProvider(sdktrace.WithResource(res))
		sdk.TracerProvider = tp
		sdk.LoggerProvider = lognoop.NewLoggerProvider()
		sdk.shutdownFuncs = append(sdk.shutdownFuncs, tp.Shutdown)
		otel.SetTracerProvider(tp)
		return sdk, nil
	}

	traceOpts := []otlptracehttp.Option{otlptracehttp.WithEndpoint(cfg.Endpoint)}
	logOpts := []otlploghttp.Option{otlploghttp.WithEndpoint(cfg.Endpoint)}
	if cfg.Insecure {
		traceOpts = append(traceOpts, otlptracehttp.WithInsecure())
		logOpts = append(logOpts, otlploghttp.WithInsecure())
	}

	traceExporter, err := otlptracehttp.New(ctx, traceOpts...)
	if err != nil {
		return nil, fmt.Errorf("otlp trace exporter: %w", err)
	}
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(traceExporter, sdktrace.WithBatchTimeout(5*time.Second)),
		sdktrace.WithResource(res),
	)
	sdk.TracerProvider = tp
	sdk.shutdownFuncs = append(sdk.shutdownFuncs, tp.Shutdown)
	otel.SetTracerProvider(tp)

	logExporter, err := otlploghttp.New(ctx, logOpts...)
	if err != nil {
		_ = sdk.Shutdown(ctx)
		return nil, fmt.Errorf("otlp log exporter: %w", err)
	}
	lp := sdklog.NewLoggerProvider(
		sdklog.WithResource(res),
		sdklog.WithProcessor(sdklog.NewBatchProcessor(logExporter)),
	)
	sdk.LoggerProvider = lp
	sdk.shutdownFuncs = append(sdk.shutdownFuncs, lp.Shutdown)
	global.SetLoggerProvider(lp)

	return sdk, nil
}

// ZapCore returns a core that forwards zap entries to the OTLP log pipeline.
func (s *SDK) ZapCore(name string) zapcore.Core {
	return otelzap.NewCore(name, otelzap.WithLoggerProvider(s.LoggerProvider))
}

// Shutdown flushes and stops providers in reverse setup order.
func (s *SDK) Shutdown(ctx context.Context) error {
	var errs error
	for i := len(s.shutdownFuncs) - 1; i >= 0; i-- {
		errs = errors.Join(errs, s.shutdownFuncs[i](ctx))
	}
	s.shutdownFuncs = nil
	return errs
}
