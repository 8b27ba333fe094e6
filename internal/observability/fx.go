package observability

import (
	"os"
	"strings"

	"github.com/smallbiznis/hostelway/internal/config"
	"github.com/smallbiznis/hostelway/internal/observability/metrics"
	"go.uber.org/fx"
)

func provideMetricsConfig(cfg config.Config) metrics.Config {
	enabled := true
	switch strings.ToLower(strings.TrimSpace(os.Getenv("OTEL_ENABLED"))) {
	case "0", "false", "no", "off":
		enabled = false
	}
	protocol := strings.ToLower(strings.TrimSpace(os.Getenv("OTEL_EXPORTER_OTLP_PROTOCOL")))
	if protocol == "" {
		protocol = "grpc"
	}

	return metrics.Config{
		Enabled:          enabled,
		ExporterEndpoint: cfg.OTLPEndpoint,
		ExporterProtocol: protocol,
		ServiceName:      cfg.AppName,
		Environment:      cfg.Environment,
	}
}

// Module wires the meter provider and domain instruments.
var Module = fx.Module("observability",
	fx.Provide(
		provideMetricsConfig,
		metrics.NewProvider,
		metrics.New,
	),
)
