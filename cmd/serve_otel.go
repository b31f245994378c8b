//go:build otel

package cmd

import (
	"context"
	"log/slog"

	"github.com/engramhq/engramd/internal/config"
	"github.com/engramhq/engramd/internal/tracing"
)

// initTracing installs the OpenTelemetry OTLP exporter when the tracing
// config is enabled. Only compiled with -tags otel. The returned function
// flushes remaining spans; it is nil when export is off.
func initTracing(ctx context.Context, cfg *config.Config) func(context.Context) error {
	if !cfg.Tracing.Enabled || cfg.Tracing.Endpoint == "" {
		slog.Debug("OTel export available but not enabled (set tracing.enabled + tracing.endpoint)")
		return nil
	}

	shutdown, err := tracing.Init(ctx, tracing.Config{
		Endpoint:    cfg.Tracing.Endpoint,
		Protocol:    cfg.Tracing.Protocol,
		Insecure:    cfg.Tracing.Insecure,
		ServiceName: cfg.Tracing.ServiceName,
		Headers:     cfg.Tracing.Headers,
	})
	if err != nil {
		slog.Warn("failed to create OTel exporter", "error", err)
		return nil
	}

	slog.Info("OpenTelemetry OTLP export enabled",
		"endpoint", cfg.Tracing.Endpoint,
		"protocol", cfg.Tracing.Protocol,
	)
	return shutdown
}
