package observe

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	promexporter "go.opentelemetry.io/otel/exporters/prometheus"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"

	"go.opentelemetry.io/otel"
)

// Provider bundles the configured OpenTelemetry meter provider and its
// shutdown function.
type Provider struct {
	MeterProvider *sdkmetric.MeterProvider

	shutdown func(context.Context) error
}

// Shutdown flushes and stops the meter provider. Safe to call multiple
// times.
func (p *Provider) Shutdown(ctx context.Context) error {
	if p.shutdown == nil {
		return nil
	}
	fn := p.shutdown
	p.shutdown = nil
	return fn(ctx)
}

// InitProvider configures the process-global OpenTelemetry meter provider
// with a Prometheus exporter. Metrics become scrapeable via
// [promhttp.Handler] on the ops HTTP endpoint.
func InitProvider(serviceName, serviceVersion string) (*Provider, error) {
	res, err := resource.Merge(resource.Default(), resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceName(serviceName),
		semconv.ServiceVersion(serviceVersion),
	))
	if err != nil {
		return nil, fmt.Errorf("failed to build otel resource: %w", err)
	}

	exporter, err := promexporter.New()
	if err != nil {
		return nil, fmt.Errorf("failed to create prometheus exporter: %w", err)
	}

	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(exporter),
	)
	otel.SetMeterProvider(mp)

	slog.Info("observability initialised",
		"service", serviceName, "version", serviceVersion)

	return &Provider{
		MeterProvider: mp,
		shutdown: func(ctx context.Context) error {
			var errs []error
			if err := mp.ForceFlush(ctx); err != nil {
				errs = append(errs, fmt.Errorf("metric flush: %w", err))
			}
			if err := mp.Shutdown(ctx); err != nil {
				errs = append(errs, fmt.Errorf("meter provider shutdown: %w", err))
			}
			return errors.Join(errs...)
		},
	}, nil
}
