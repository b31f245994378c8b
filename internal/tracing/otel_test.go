package tracing

import (
	"context"
	"testing"
	"time"

	"go.opentelemetry.io/otel"
)

func TestInit_EmptyEndpoint(t *testing.T) {
	_, err := Init(context.Background(), Config{})
	if err == nil {
		t.Error("expected error for empty endpoint")
	}
}

func TestInit_InstallsGlobalProvider(t *testing.T) {
	prev := otel.GetTracerProvider()
	t.Cleanup(func() { otel.SetTracerProvider(prev) })

	// The gRPC exporter dials lazily, so no collector is needed here.
	shutdown, err := Init(context.Background(), Config{
		Endpoint: "localhost:4317",
		Insecure: true,
	})
	if err != nil {
		t.Fatalf("Init: %v", err)
	}

	if otel.GetTracerProvider() == prev {
		t.Error("global tracer provider should have been replaced")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := shutdown(ctx); err != nil {
		t.Errorf("shutdown: %v", err)
	}
}

func TestConfig_Protocols(t *testing.T) {
	tests := []struct {
		protocol string
		valid    bool
	}{
		{"grpc", true},
		{"http", true},
		{"", true}, // defaults to grpc
	}
	for _, tc := range tests {
		cfg := Config{
			Endpoint: "localhost:4317",
			Protocol: tc.protocol,
		}
		if tc.valid && cfg.Endpoint == "" {
			t.Errorf("protocol %q: expected valid config", tc.protocol)
		}
	}
}
