// Package telemetry installs the OpenTelemetry tracer provider used by the
// login exchange.
package telemetry

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

// Config selects where spans are exported.
type Config struct {
	// Endpoint is the OTLP gRPC collector, e.g. http://localhost:4317. Empty
	// keeps spans in process: they still carry ids for log correlation but
	// are never exported.
	Endpoint string

	// Insecure forces a plaintext connection for https endpoints.
	Insecure bool

	ServiceName    string
	ServiceVersion string
}

// NewTracerProvider builds a tracer provider exporting to cfg.Endpoint.
func NewTracerProvider(ctx context.Context, cfg Config, opts ...sdktrace.TracerProviderOption) (*sdktrace.TracerProvider, error) {
	res, err := resource.Merge(
		resource.Default(),
		resource.NewSchemaless(
			semconv.ServiceName(cfg.ServiceName),
			semconv.ServiceVersion(cfg.ServiceVersion),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("telemetry: resource: %w", err)
	}
	opts = append([]sdktrace.TracerProviderOption{sdktrace.WithResource(res)}, opts...)

	endpoint := strings.TrimSpace(cfg.Endpoint)
	if endpoint == "" {
		return sdktrace.NewTracerProvider(opts...), nil
	}

	target, insecure, err := grpcTarget(endpoint)
	if err != nil {
		return nil, err
	}

	expOpts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(target)}
	if insecure || cfg.Insecure {
		expOpts = append(expOpts, otlptracegrpc.WithInsecure())
	}
	exp, err := otlptracegrpc.New(ctx, expOpts...)
	if err != nil {
		return nil, fmt.Errorf("telemetry: otlp exporter: %w", err)
	}

	opts = append(opts, sdktrace.WithBatcher(exp))
	return sdktrace.NewTracerProvider(opts...), nil
}

// grpcTarget reduces endpoint to host:port. Paths are dropped; anything but
// https is dialled without TLS.
func grpcTarget(endpoint string) (string, bool, error) {
	if !strings.Contains(endpoint, "://") {
		endpoint = "http://" + endpoint
	}
	u, err := url.Parse(endpoint)
	if err != nil {
		return "", false, fmt.Errorf("telemetry: invalid OTLP endpoint %q: %w", endpoint, err)
	}
	if u.Host == "" {
		return "", false, fmt.Errorf("telemetry: invalid OTLP endpoint %q: missing host", endpoint)
	}
	return u.Host, u.Scheme != "https", nil
}

// SetGlobal installs tp as the global tracer provider.
func SetGlobal(tp *sdktrace.TracerProvider) {
	otel.SetTracerProvider(tp)
}
