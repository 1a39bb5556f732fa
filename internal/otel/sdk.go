package otel

import (
	"context"
	"os"
	"strings"

	otelapi "go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	sdkresource "go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

const defaultServiceName = "sigserver"

// TracingOptions configures span export. Tracing stays on the no-op
// provider unless an OTLP endpoint is set.
type TracingOptions struct {
	Endpoint           string
	ServiceName        string
	ServiceVersion     string
	ResourceAttributes map[string]string
}

// SetupTracing installs a batching OTLP/HTTP tracer provider and the W3C
// propagators. The returned func flushes and stops the provider.
func SetupTracing(ctx context.Context, options TracingOptions) (func(context.Context) error, error) {
	endpoint := normalizeEndpoint(options.Endpoint)
	if endpoint == "" {
		return func(context.Context) error { return nil }, nil
	}

	exporter, err := otlptracehttp.New(ctx,
		otlptracehttp.WithEndpoint(endpoint),
		otlptracehttp.WithInsecure(),
	)
	if err != nil {
		return nil, err
	}

	res, err := sdkresource.New(ctx, sdkresource.WithAttributes(resourceAttributes(options)...))
	if err != nil {
		_ = exporter.Shutdown(ctx)
		return nil, err
	}

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithResource(res),
		sdktrace.WithBatcher(exporter),
	)
	otelapi.SetTracerProvider(provider)
	otelapi.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
	return provider.Shutdown, nil
}

func resourceAttributes(options TracingOptions) []attribute.KeyValue {
	serviceName := strings.TrimSpace(options.ServiceName)
	if serviceName == "" {
		serviceName = defaultServiceName
	}
	attrs := []attribute.KeyValue{
		attribute.String("service.name", serviceName),
	}
	if version := strings.TrimSpace(options.ServiceVersion); version != "" {
		attrs = append(attrs, attribute.String("service.version", version))
	}
	if host, err := os.Hostname(); err == nil && strings.TrimSpace(host) != "" {
		attrs = append(attrs, attribute.String("host.name", host))
	}
	for key, value := range options.ResourceAttributes {
		if trimmed := strings.TrimSpace(key); trimmed != "" {
			attrs = append(attrs, attribute.String(trimmed, value))
		}
	}
	return attrs
}

// ParseResourceAttributes reads "k1=v1,k2=v2" pairs. Malformed pairs are skipped.
func ParseResourceAttributes(raw string) map[string]string {
	attributes := make(map[string]string)
	for _, pair := range strings.Split(raw, ",") {
		key, value, ok := strings.Cut(strings.TrimSpace(pair), "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		if key == "" {
			continue
		}
		attributes[key] = strings.TrimSpace(value)
	}
	if len(attributes) == 0 {
		return nil
	}
	return attributes
}

func normalizeEndpoint(raw string) string {
	endpoint := strings.TrimSpace(raw)
	endpoint = strings.TrimPrefix(endpoint, "http://")
	endpoint = strings.TrimPrefix(endpoint, "https://")
	return strings.TrimSuffix(endpoint, "/")
}
