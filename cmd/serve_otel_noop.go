//go:build !otel

package cmd

import (
	"context"

	"github.com/engramhq/engramd/internal/config"
)

// initTracing is a no-op when built without the "otel" tag.
// Build with `go build -tags otel` to enable OpenTelemetry export.
func initTracing(_ context.Context, _ *config.Config) func(context.Context) error {
	return nil
}
