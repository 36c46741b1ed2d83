package telemetry

import (
	"context"
	"testing"
	"time"

	"go.opentelemetry.io/otel"
)

func TestDisabledProviderIsInert(t *testing.T) {
	provider, err := NewProvider(context.Background(), Config{Enabled: false})
	if err != nil {
		t.Fatalf("disabled provider must construct: %v", err)
	}
	if provider.meterProvider != nil {
		t.Fatal("disabled provider must not build an SDK meter provider")
	}
	if provider.Meter("test") == nil {
		t.Fatal("Meter must fall back to the otel global")
	}
	if err := provider.Shutdown(context.Background()); err != nil {
		t.Fatalf("disabled shutdown must be a no-op: %v", err)
	}
}

func TestNilProviderShutdown(t *testing.T) {
	var provider *Provider
	if err := provider.Shutdown(context.Background()); err != nil {
		t.Fatalf("nil provider shutdown must be a no-op: %v", err)
	}
}

func TestStripScheme(t *testing.T) {
	cases := map[string]string{
		"http://collector:4318":  "collector:4318",
		"https://collector:4318": "collector:4318",
		"collector:4318":         "collector:4318",
	}
	for in, want := range cases {
		if got := stripScheme(in); got != want {
			t.Fatalf("stripScheme(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestRelayMetricsNilReceiverIsInert(t *testing.T) {
	var metrics *RelayMetrics
	ctx := context.Background()
	metrics.RecordIngested(ctx, "github", 2)
	metrics.RecordDuplicate(ctx, "github")
	metrics.RecordOutcome(ctx, "delivered", 1)
	metrics.RecordRetryScheduled(ctx, 30*time.Second)
	metrics.RecordAttemptDuration(ctx, time.Millisecond)
}

func TestRelayMetricsRegisterOnGlobalMeter(t *testing.T) {
	metrics, err := NewRelayMetrics(otel.Meter("test.relay"))
	if err != nil {
		t.Fatalf("register instruments: %v", err)
	}
	ctx := context.Background()
	metrics.RecordIngested(ctx, "github", 1)
	metrics.RecordOutcome(ctx, "dead", 5)
}
