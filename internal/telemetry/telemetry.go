// Package telemetry wires OpenTelemetry tracing over OTLP/HTTP.
package telemetry

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	"pkt.systems/pslog"
)

// Tracer returns the named tracer from the global provider. Until Setup
// installs an exporter the global provider is a no-op.
func Tracer(name string) trace.Tracer {
	return otel.Tracer(name)
}

// Shutdown flushes and stops whatever Setup started.
type Shutdown func(context.Context) error

type errorHandler struct {
	logger pslog.Logger
}

func (h errorHandler) Handle(err error) {
	if err != nil {
		h.logger.Warn("telemetry.exporter.error", "error", err)
	}
}

type target struct {
	endpoint string
	path     string
	insecure bool
}

// Setup installs a batching OTLP/HTTP tracer provider. An empty endpoint
// disables tracing and returns a no-op Shutdown.
func Setup(ctx context.Context, endpoint, serviceName string, logger pslog.Logger) (Shutdown, error) {
	noop := func(context.Context) error { return nil }
	if strings.TrimSpace(endpoint) == "" {
		return noop, nil
	}
	tgt, err := resolveTarget(endpoint)
	if err != nil {
		return noop, err
	}
	res, err := resource.New(ctx,
		resource.WithSchemaURL(semconv.SchemaURL),
		resource.WithAttributes(semconv.ServiceName(serviceName)),
	)
	if err != nil {
		return noop, fmt.Errorf("telemetry: build resource: %w", err)
	}

	opts := []otlptracehttp.Option{
		otlptracehttp.WithEndpoint(tgt.endpoint),
		otlptracehttp.WithTimeout(10 * time.Second),
	}
	if tgt.insecure {
		opts = append(opts, otlptracehttp.WithInsecure())
	}
	if tgt.path != "" && tgt.path != "/" {
		opts = append(opts, otlptracehttp.WithURLPath(tgt.path))
	}
	exporter, err := otlptracehttp.New(ctx, opts...)
	if err != nil {
		return noop, fmt.Errorf("telemetry: start trace exporter: %w", err)
	}
	provider := sdktrace.NewTracerProvider(
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.AlwaysSample())),
		sdktrace.WithBatcher(exporter),
	)
	otel.SetTracerProvider(provider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
	otel.SetErrorHandler(errorHandler{logger: logger})
	logger.Info("telemetry.tracing.enabled", "endpoint", tgt.endpoint, "path", tgt.path, "insecure", tgt.insecure)

	return func(ctx context.Context) error {
		if err := provider.Shutdown(ctx); err != nil {
			return fmt.Errorf("trace shutdown: %w", err)
		}
		return nil
	}, nil
}

// resolveTarget accepts host[:port] (plain HTTP) or an http(s) URL with an
// optional path. The OTLP/HTTP port 4318 is assumed when none is given.
func resolveTarget(raw string) (target, error) {
	raw = strings.TrimSpace(raw)
	if !strings.Contains(raw, "://") {
		raw = "http://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return target{}, fmt.Errorf("telemetry: parse endpoint: %w", err)
	}
	t := target{endpoint: u.Host, path: strings.TrimSuffix(u.Path, "/")}
	switch strings.ToLower(u.Scheme) {
	case "http":
		t.insecure = true
	case "https":
	default:
		return target{}, fmt.Errorf("telemetry: unsupported scheme %q", u.Scheme)
	}
	if t.endpoint == "" {
		return target{}, fmt.Errorf("telemetry: missing endpoint host")
	}
	if u.Port() == "" {
		t.endpoint = net.JoinHostPort(u.Hostname(), "4318")
	}
	return t, nil
}
