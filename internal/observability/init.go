package observability

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	promexporter "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	noopmetric "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	nooptrace "go.opentelemetry.io/otel/trace/noop"
)

// instrumentationName names the tracer and meter.
const instrumentationName = "github.com/Sumatoshi-tech/shcov"

// Providers holds the initialized observability providers.
type Providers struct {
	Tracer trace.Tracer
	Meter  metric.Meter
	Logger *slog.Logger

	// Shutdown writes the metrics textfile, flushes exporters and releases
	// resources. Must be called before exit.
	Shutdown func(ctx context.Context) error
}

// teardown collects cleanup steps and runs them last-in first-out.
type teardown []func(context.Context) error

func (td *teardown) add(step func(context.Context) error) {
	*td = append(*td, step)
}

func (td teardown) run(ctx context.Context) error {
	var errs []error

	for _, step := range slices.Backward(td) {
		errs = append(errs, step(ctx))
	}

	return errors.Join(errs...)
}

// Init builds the tracer, meter and logger for one command. Tracing is
// exported only with an OTLP endpoint; metrics are collected when an OTLP
// endpoint or a metrics textfile is configured. Otherwise no-op providers
// are returned.
func Init(cfg Config) (Providers, error) {
	ctx := context.Background()

	res, err := resource.New(ctx, resource.WithAttributes(resourceAttrs(cfg)...))
	if err != nil {
		return Providers{}, fmt.Errorf("build otel resource: %w", err)
	}

	var td teardown

	tp, err := newTracerProvider(ctx, cfg, res, &td)
	if err != nil {
		return Providers{}, errors.Join(err, td.run(ctx))
	}

	mp, err := newMeterProvider(ctx, cfg, res, &td)
	if err != nil {
		return Providers{}, errors.Join(err, td.run(ctx))
	}

	otel.SetTracerProvider(tp)
	otel.SetMeterProvider(mp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	timeout := time.Duration(cfg.ShutdownTimeoutSec) * time.Second
	if timeout <= 0 {
		timeout = defaultShutdownTimeoutSec * time.Second
	}

	return Providers{
		Tracer: tp.Tracer(instrumentationName, trace.WithInstrumentationVersion(cfg.ServiceVersion)),
		Meter:  mp.Meter(instrumentationName, metric.WithInstrumentationVersion(cfg.ServiceVersion)),
		Logger: newLogger(cfg),
		Shutdown: func(ctx context.Context) error {
			ctx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()

			return td.run(ctx)
		},
	}, nil
}

func resourceAttrs(cfg Config) []attribute.KeyValue {
	attrs := []attribute.KeyValue{semconv.ServiceName(cfg.ServiceName)}

	if cfg.ServiceVersion != "" {
		attrs = append(attrs, semconv.ServiceVersion(cfg.ServiceVersion))
	}

	if cfg.Environment != "" {
		attrs = append(attrs, semconv.DeploymentEnvironment(cfg.Environment))
	}

	if cfg.Mode != "" {
		attrs = append(attrs, attribute.String("app.mode", string(cfg.Mode)))
	}

	return attrs
}

func newLogger(cfg Config) *slog.Logger {
	out := cfg.LogWriter
	if out == nil {
		out = os.Stderr
	}

	opts := &slog.HandlerOptions{Level: cfg.LogLevel}

	var handler slog.Handler = slog.NewTextHandler(out, opts)
	if cfg.LogJSON {
		handler = slog.NewJSONHandler(out, opts)
	}

	return slog.New(NewContextHandler(handler, cfg.ServiceName, cfg.ServiceVersion, cfg.Mode))
}

func newTracerProvider(
	ctx context.Context, cfg Config, res *resource.Resource, td *teardown,
) (trace.TracerProvider, error) {
	if cfg.OTLPEndpoint == "" {
		return nooptrace.NewTracerProvider(), nil
	}

	opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(cfg.OTLPEndpoint)}
	if len(cfg.OTLPHeaders) > 0 {
		opts = append(opts, otlptracegrpc.WithHeaders(cfg.OTLPHeaders))
	}

	if cfg.OTLPInsecure {
		opts = append(opts, otlptracegrpc.WithInsecure())
	}

	exporter, err := otlptracegrpc.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create trace exporter: %w", err)
	}

	root := sdktrace.AlwaysSample()
	if cfg.SampleRatio > 0 {
		root = sdktrace.TraceIDRatioBased(cfg.SampleRatio)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(root)),
		sdktrace.WithBatcher(exporter),
	)
	td.add(tp.Shutdown)

	return tp, nil
}

func newMeterProvider(
	ctx context.Context, cfg Config, res *resource.Resource, td *teardown,
) (metric.MeterProvider, error) {
	if cfg.OTLPEndpoint == "" && cfg.MetricsTextfile == "" {
		return noopmetric.NewMeterProvider(), nil
	}

	opts := []sdkmetric.Option{sdkmetric.WithResource(res)}

	if cfg.OTLPEndpoint != "" {
		exporterOpts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithEndpoint(cfg.OTLPEndpoint)}
		if len(cfg.OTLPHeaders) > 0 {
			exporterOpts = append(exporterOpts, otlpmetricgrpc.WithHeaders(cfg.OTLPHeaders))
		}

		if cfg.OTLPInsecure {
			exporterOpts = append(exporterOpts, otlpmetricgrpc.WithInsecure())
		}

		exporter, err := otlpmetricgrpc.New(ctx, exporterOpts...)
		if err != nil {
			return nil, fmt.Errorf("create metric exporter: %w", err)
		}

		opts = append(opts, sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter)))
	}

	var registry *prometheus.Registry

	if cfg.MetricsTextfile != "" {
		registry = prometheus.NewRegistry()

		reader, err := promexporter.New(promexporter.WithRegisterer(registry))
		if err != nil {
			return nil, fmt.Errorf("create prometheus exporter: %w", err)
		}

		opts = append(opts, sdkmetric.WithReader(reader))
	}

	mp := sdkmetric.NewMeterProvider(opts...)
	td.add(mp.Shutdown)

	// Registered after mp.Shutdown so it runs first, while the reader can
	// still collect.
	if registry != nil {
		td.add(func(context.Context) error {
			return WriteTextfile(cfg.MetricsTextfile, registry)
		})
	}

	return mp, nil
}

// WriteTextfile writes everything gathered by g to path in the Prometheus
// text exposition format, for the node_exporter textfile collector.
func WriteTextfile(path string, g prometheus.Gatherer) error {
	err := prometheus.WriteToTextfile(path, g)
	if err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}

	return nil
}

// envCarrier adapts an environment slice to propagation.TextMapCarrier.
// Keys are upper-cased, so a traceparent header becomes TRACEPARENT.
type envCarrier map[string]string

func (c envCarrier) Get(key string) string { return c[strings.ToUpper(key)] }

func (c envCarrier) Set(key, value string) { c[strings.ToUpper(key)] = value }

func (c envCarrier) Keys() []string {
	keys := make([]string, 0, len(c))
	for k := range c {
		keys = append(keys, k)
	}

	return keys
}

// PropagationEnv returns KEY=value entries that carry the span context of
// ctx into a child process, such as TRACEPARENT. It returns nil when ctx
// holds no recording span.
func PropagationEnv(ctx context.Context) []string {
	if !trace.SpanContextFromContext(ctx).IsValid() {
		return nil
	}

	carrier := envCarrier{}
	otel.GetTextMapPropagator().Inject(ctx, carrier)

	env := make([]string, 0, len(carrier))
	for _, k := range slices.Sorted(maps.Keys(carrier)) {
		env = append(env, k+"="+carrier[k])
	}

	return env
}
