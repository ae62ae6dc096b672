package telemetry

import (
	"context"

	"github.com/d3vfreak/fleet-overview/internal/setup/config"
	"github.com/uptrace/uptrace-go/uptrace"
)

// StartTracing configures the global OpenTelemetry providers to export to
// Uptrace. It returns a shutdown function that flushes pending spans, or a
// no-op when no DSN is configured.
func StartTracing(cfg *config.Telemetry, version string) func(context.Context) error {
	if cfg.UptraceDSN == "" {
		return func(context.Context) error { return nil }
	}

	uptrace.ConfigureOpentelemetry(
		uptrace.WithDSN(cfg.UptraceDSN),
		uptrace.WithServiceName(cfg.ServiceName),
		uptrace.WithServiceVersion(version),
	)

	return uptrace.Shutdown
}
