package tracing

import (
	"context"
	"strings"
	"testing"
	"time"

	"go.opentelemetry.io/otel/attribute"
)

func TestNewProvider_Disabled(t *testing.T) {
	provider, err := NewProvider(context.Background(), Config{ServiceName: "farmrank-api", Enabled: false}, nil)
	if err != nil {
		t.Fatalf("expected no error for disabled tracing, got %v", err)
	}
	if provider.IsEnabled() {
		t.Error("expected tracing to be disabled")
	}
	if provider.Tracer("test") == nil {
		t.Error("disabled provider should still hand out a tracer")
	}
}

func TestNewProvider_InvalidConfig(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
	}{
		{"missing service name", Config{Enabled: true, SamplingRate: 0.1}},
		{"negative sampling rate", Config{ServiceName: "svc", Enabled: true, SamplingRate: -0.1}},
		{"sampling rate above 1", Config{ServiceName: "svc", Enabled: true, SamplingRate: 1.5}},
		{"unsupported exporter", Config{ServiceName: "svc", Enabled: true, SamplingRate: 0.1, ExporterType: "zipkin"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewProvider(context.Background(), tt.cfg, nil); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestNewProvider_ValidConfig(t *testing.T) {
	tests := []struct {
		name         string
		exporterType string
		samplingRate float64
		endpoint     string
	}{
		{"otlp-http with 10% sampling", ExporterOTLPHTTP, 0.1, "localhost:4318"},
		{"otlp-grpc with 100% sampling", ExporterOTLPGRPC, 1.0, "localhost:4317"},
		{"default exporter with 0% sampling", "", 0.0, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			provider, err := NewProvider(context.Background(), Config{
				ServiceName:  "farmrank-api",
				Enabled:      true,
				Environment:  "test",
				ExporterType: tt.exporterType,
				OTLPEndpoint: tt.endpoint,
				SamplingRate: tt.samplingRate,
				InsecureMode: true,
			}, nil)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !provider.IsEnabled() {
				t.Error("expected tracing to be enabled")
			}

			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := provider.Shutdown(ctx); err != nil {
				t.Errorf("unexpected shutdown error: %v", err)
			}
		})
	}
}

func TestProvider_Shutdown_Nil(t *testing.T) {
	provider := &Provider{}
	if err := provider.Shutdown(context.Background()); err != nil {
		t.Errorf("unexpected error on shutdown with nil tp: %v", err)
	}
}

func TestConfig_Validate_ReportsEveryProblem(t *testing.T) {
	err := Config{Enabled: true, SamplingRate: 2, ExporterType: "zipkin"}.Validate()
	if err == nil {
		t.Fatal("expected error")
	}
	for _, want := range []string{"service name", "sampling rate", "zipkin"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("Validate() = %q, missing %q", err, want)
		}
	}

	if err := (Config{SamplingRate: 5}).Validate(); err != nil {
		t.Errorf("disabled config should not be validated, got %v", err)
	}
}

func TestSamplerFor(t *testing.T) {
	tests := []struct {
		rate       float64
		wantPrefix string
	}{
		{1, "ParentBased{root:AlwaysOnSampler"},
		{0, "AlwaysOffSampler"},
		{0.25, "ParentBased{root:TraceIDRatioBased{0.25}"},
	}
	for _, tt := range tests {
		if got := samplerFor(tt.rate).Description(); !strings.HasPrefix(got, tt.wantPrefix) {
			t.Errorf("samplerFor(%v) = %q, want prefix %q", tt.rate, got, tt.wantPrefix)
		}
	}
}

func TestResourceAttributes(t *testing.T) {
	find := func(attrs []attribute.KeyValue, key attribute.Key) (string, bool) {
		for _, a := range attrs {
			if a.Key == key {
				return a.Value.AsString(), true
			}
		}
		return "", false
	}

	attrs := resourceAttributes(Config{ServiceName: "farmrank-api", Environment: "test", DistanceProvider: "haversine"})
	if got, _ := find(attrs, "service.name"); got != "farmrank-api" {
		t.Errorf("service.name = %q", got)
	}
	if got, _ := find(attrs, "deployment.environment"); got != "test" {
		t.Errorf("deployment.environment = %q", got)
	}
	if got, _ := find(attrs, AttrDistanceProvider); got != "haversine" {
		t.Errorf("%s = %q, want haversine", AttrDistanceProvider, got)
	}

	if _, ok := find(resourceAttributes(Config{ServiceName: "farmrank-api"}), AttrDistanceProvider); ok {
		t.Error("distance provider attribute should be omitted when unset")
	}
}
