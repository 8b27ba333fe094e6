package metrics

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Config configures the metrics provider.
type Config struct {
	Enabled          bool
	ExporterEndpoint string
	ExporterProtocol string
	ServiceName      string
	Environment      string
}

// Metrics exposes application-level instruments.
type Metrics struct {
	reconcileRuns      metric.Int64Counter
	transitionsApplied metric.Int64Counter
	notifications      metric.Int64Counter
	providerCalls      metric.Int64Counter
	providerLatency    metric.Float64Histogram
	webhookIngests     metric.Int64Counter
}

// NewProvider configures and registers the meter provider.
func NewProvider(lc fx.Lifecycle, cfg Config, log *zap.Logger) (metric.MeterProvider, error) {
	if !cfg.Enabled {
		provider := noop.NewMeterProvider()
		otel.SetMeterProvider(provider)
		return provider, nil
	}

	exporter, err := newExporter(cfg.ExporterProtocol, cfg.ExporterEndpoint)
	if err != nil {
		return nil, err
	}

	reader := sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(10*time.Second))
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	otel.SetMeterProvider(provider)

	if lc != nil {
		lc.Append(fx.Hook{
			OnStop: func(ctx context.Context) error {
				if log != nil {
					log.Info("shutting down meter provider")
				}
				return provider.Shutdown(ctx)
			},
		})
	}

	if log != nil {
		log.Info("metrics initialized",
			zap.String("endpoint", cfg.ExporterEndpoint),
			zap.String("protocol", cfg.ExporterProtocol),
		)
	}

	return provider, nil
}

// New configures the domain metrics instruments.
func New(cfg Config, provider metric.MeterProvider) (*Metrics, error) {
	name := strings.TrimSpace(cfg.ServiceName)
	if name == "" {
		name = "hostelway"
	}
	meter := provider.Meter(name)

	reconcileRuns, err := meter.Int64Counter("hostelway_reconcile_runs_total")
	if err != nil {
		return nil, err
	}
	transitionsApplied, err := meter.Int64Counter("hostelway_transitions_applied_total")
	if err != nil {
		return nil, err
	}
	notifications, err := meter.Int64Counter("hostelway_notifications_total")
	if err != nil {
		return nil, err
	}
	providerCalls, err := meter.Int64Counter("hostelway_provider_calls_total")
	if err != nil {
		return nil, err
	}
	providerLatency, err := meter.Float64Histogram("hostelway_provider_call_duration_seconds")
	if err != nil {
		return nil, err
	}
	webhookIngests, err := meter.Int64Counter("hostelway_webhook_ingests_total")
	if err != nil {
		return nil, err
	}

	return &Metrics{
		reconcileRuns:      reconcileRuns,
		transitionsApplied: transitionsApplied,
		notifications:      notifications,
		providerCalls:      providerCalls,
		providerLatency:    providerLatency,
		webhookIngests:     webhookIngests,
	}, nil
}

// RecordReconcile increments reconcile run counts.
func (m *Metrics) RecordReconcile(ctx context.Context, source string, transitions int) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("source", strings.TrimSpace(source)))
	m.reconcileRuns.Add(ctx, 1, attrs)
	if transitions > 0 {
		m.transitionsApplied.Add(ctx, int64(transitions), attrs)
	}
}

// RecordNotification increments notification outcome counts.
func (m *Metrics) RecordNotification(ctx context.Context, notificationType, outcome string) {
	if m == nil {
		return
	}
	m.notifications.Add(ctx, 1, metric.WithAttributes(
		attribute.String("type", strings.TrimSpace(notificationType)),
		attribute.String("outcome", strings.TrimSpace(outcome)),
	))
}

// RecordProviderCall records one outbound provider call and its latency.
func (m *Metrics) RecordProviderCall(ctx context.Context, provider, operation, result string, elapsed time.Duration) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("provider", strings.TrimSpace(provider)),
		attribute.String("operation", strings.TrimSpace(operation)),
		attribute.String("result", strings.TrimSpace(result)),
	)
	m.providerCalls.Add(ctx, 1, attrs)
	m.providerLatency.Record(ctx, elapsed.Seconds(), attrs)
}

// RecordWebhookIngest increments webhook ingest counts per resolution status.
func (m *Metrics) RecordWebhookIngest(ctx context.Context, provider, status string) {
	if m == nil {
		return
	}
	m.webhookIngests.Add(ctx, 1, metric.WithAttributes(
		attribute.String("provider", strings.TrimSpace(provider)),
		attribute.String("status", strings.TrimSpace(status)),
	))
}

func newExporter(protocol, endpoint string) (sdkmetric.Exporter, error) {
	protocol = strings.ToLower(strings.TrimSpace(protocol))
	switch protocol {
	case "http", "http/protobuf":
		opts := []otlpmetrichttp.Option{}
		if endpoint != "" {
			opts = append(opts, otlpmetrichttp.WithEndpoint(endpoint))
		}
		return otlpmetrichttp.New(context.Background(), opts...)
	case "grpc", "grpc/protobuf", "":
		opts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithInsecure()}
		if endpoint != "" {
			opts = append(opts, otlpmetricgrpc.WithEndpoint(endpoint))
		}
		return otlpmetricgrpc.New(context.Background(), opts...)
	default:
		return nil, fmt.Errorf("unsupported OTLP protocol %q", protocol)
	}
}
