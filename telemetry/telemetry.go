// Package telemetry installs the process-wide OpenTelemetry tracer provider.
package telemetry

import (
	"context"
	"fmt"
	"net/url"

	"github.com/celer-network/go-sequencer/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

const ServiceName = "sequencer"

// Setup installs a tracer provider. Spans are exported over OTLP/HTTP when
// endpoint is set, e.g. "http://localhost:4318". Otherwise they are sampled
// but dropped, so span processors can still be registered.
func Setup(ctx context.Context, endpoint string) (*sdktrace.TracerProvider, error) {
	logger := log.NewLogger("telemetry")
	opts := []sdktrace.TracerProviderOption{
		sdktrace.WithResource(resource.NewSchemaless(attribute.String("service.name", ServiceName))),
	}
	if endpoint != "" {
		u, err := url.Parse(endpoint)
		if err != nil || u.Host == "" {
			return nil, fmt.Errorf("telemetry: invalid otlp endpoint %q", endpoint)
		}
		exporterOpts := []otlptracehttp.Option{otlptracehttp.WithEndpoint(u.Host)}
		if u.Scheme != "https" {
			exporterOpts = append(exporterOpts, otlptracehttp.WithInsecure())
		}
		if u.Path != "" && u.Path != "/" {
			exporterOpts = append(exporterOpts, otlptracehttp.WithURLPath(u.Path))
		}
		exporter, err := otlptracehttp.New(ctx, exporterOpts...)
		if err != nil {
			return nil, fmt.Errorf("telemetry: %w", err)
		}
		opts = append(opts, sdktrace.WithBatcher(exporter))
		logger.Info().Str("endpoint", endpoint).Msg("Exporting traces")
	}
	tp := sdktrace.NewTracerProvider(opts...)
	otel.SetTracerProvider(tp)
	return tp, nil
}
