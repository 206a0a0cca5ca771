package observability

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/Black-And-White-Club/raffle-bot/app/shared/handlerwrapper"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// Config holds the settings needed to build the observability stack.
type Config struct {
	ServiceName     string
	Environment     string
	Version         string
	MetricsAddress  string
	OTLPEndpoint    string
	TraceSampleRate float64
}

// Provider owns the process-wide logger, tracer provider and metrics registry.
type Provider struct {
	Logger   *slog.Logger
	Tracer   trace.Tracer
	Registry *prometheus.Registry

	metricsServer *http.Server
	shutdownTrace func(context.Context) error
}

// Observability bundles the provider with the module metrics built on its registry.
type Observability struct {
	Provider       *Provider
	RaffleMetrics  RaffleMetrics
	HandlerMetrics handlerwrapper.Metrics
}

// Init builds logging, tracing and metrics from cfg.
//
// Tracing is opt-in: with no OTLP endpoint the tracer is a no-op and no global
// provider is registered. Metrics are always collected; they are only served
// when MetricsAddress is set.
func Init(ctx context.Context, cfg Config) (*Observability, error) {
	logger := NewLogger(cfg.Environment, os.Stdout).With(
		slog.String("service", cfg.ServiceName),
		slog.String("version", cfg.Version),
	)
	slog.SetDefault(logger)

	provider := &Provider{
		Logger:        logger,
		Registry:      prometheus.NewRegistry(),
		shutdownTrace: func(context.Context) error { return nil },
	}
	provider.Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	tracer, shutdown, err := newTracer(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize tracing: %w", err)
	}
	provider.Tracer = tracer
	provider.shutdownTrace = shutdown

	raffleMetrics, err := NewPrometheusRaffleMetrics(provider.Registry)
	if err != nil {
		return nil, fmt.Errorf("failed to register raffle metrics: %w", err)
	}
	handlerMetrics, err := NewPrometheusHandlerMetrics(provider.Registry)
	if err != nil {
		return nil, fmt.Errorf("failed to register handler metrics: %w", err)
	}

	if cfg.MetricsAddress != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(provider.Registry, promhttp.HandlerOpts{}))
		provider.metricsServer = &http.Server{
			Addr:              cfg.MetricsAddress,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			logger.Info("Serving metrics", slog.String("address", cfg.MetricsAddress))
			if err := provider.metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("Metrics server stopped", slog.Any("error", err))
			}
		}()
	}

	return &Observability{
		Provider:       provider,
		RaffleMetrics:  raffleMetrics,
		HandlerMetrics: handlerMetrics,
	}, nil
}

// Shutdown flushes spans and stops the metrics server.
func (p *Provider) Shutdown(ctx context.Context) error {
	var errs []error
	if p.metricsServer != nil {
		if err := p.metricsServer.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("metrics server: %w", err))
		}
	}
	if p.shutdownTrace != nil {
		if err := p.shutdownTrace(ctx); err != nil {
			errs = append(errs, fmt.Errorf("tracer provider: %w", err))
		}
	}
	return errors.Join(errs...)
}

// NewLogger returns a JSON logger for deployed environments and a text logger
// for local development.
func NewLogger(environment string, w io.Writer) *slog.Logger {
	switch strings.ToLower(environment) {
	case "", "dev", "development", "local":
		return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: slog.LevelDebug}))
	default:
		return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}
}

// NewTestObservability returns an Observability that discards everything.
func NewTestObservability() *Observability {
	return &Observability{
		Provider: &Provider{
			Logger:        slog.New(slog.NewTextHandler(io.Discard, nil)),
			Tracer:        noop.NewTracerProvider().Tracer("test"),
			Registry:      prometheus.NewRegistry(),
			shutdownTrace: func(context.Context) error { return nil },
		},
		RaffleMetrics:  &NoOpRaffleMetrics{},
		HandlerMetrics: handlerwrapper.NoOpMetrics{},
	}
}

func newTracer(ctx context.Context, cfg Config) (trace.Tracer, func(context.Context) error, error) {
	noopShutdown := func(context.Context) error { return nil }
	if cfg.OTLPEndpoint == "" {
		return noop.NewTracerProvider().Tracer(cfg.ServiceName), noopShutdown, nil
	}

	exporter, err := otlptracehttp.New(ctx, otlptracehttp.WithEndpointURL(cfg.OTLPEndpoint))
	if err != nil {
		return nil, noopShutdown, err
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(cfg.ServiceName),
			semconv.ServiceVersion(cfg.Version),
			semconv.DeploymentEnvironment(cfg.Environment),
		),
	)
	if err != nil {
		return nil, noopShutdown, err
	}

	sampler := sdktrace.AlwaysSample()
	if cfg.TraceSampleRate > 0 && cfg.TraceSampleRate < 1 {
		sampler = sdktrace.ParentBased(sdktrace.TraceIDRatioBased(cfg.TraceSampleRate))
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sampler),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.TraceContext{})

	return tp.Tracer(cfg.ServiceName), tp.Shutdown, nil
}
