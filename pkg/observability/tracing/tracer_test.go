package tracing

import (
	"context"
	"testing"
)

func TestNewTracerProvider_Disabled(t *testing.T) {
	tp, err := NewTracerProvider(context.Background(), TracerConfig{ServiceName: "mountsync"})
	if err != nil {
		t.Fatalf("NewTracerProvider: %v", err)
	}

	_, span := tp.Tracer("test").Start(context.Background(), "noop")
	if span.SpanContext().IsSampled() {
		t.Fatal("disabled provider must not sample spans")
	}
	span.End()

	if err := tp.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
}

func TestTracerConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     TracerConfig
		wantErr bool
	}{
		{name: "disabled ignores fields", cfg: TracerConfig{}, wantErr: false},
		{name: "valid", cfg: TracerConfig{Enabled: true, ServiceName: "mountsync", Endpoint: "localhost:4317", SampleRate: 0.5}, wantErr: false},
		{name: "missing service", cfg: TracerConfig{Enabled: true, Endpoint: "localhost:4317"}, wantErr: true},
		{name: "missing endpoint", cfg: TracerConfig{Enabled: true, ServiceName: "mountsync"}, wantErr: true},
		{name: "sample rate too high", cfg: TracerConfig{Enabled: true, ServiceName: "mountsync", Endpoint: "localhost:4317", SampleRate: 1.5}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestNewTracerProvider_EnabledRejectsInvalidConfig(t *testing.T) {
	if _, err := NewTracerProvider(context.Background(), TracerConfig{Enabled: true, ServiceName: "mountsync"}); err == nil {
		t.Fatal("expected error without endpoint")
	}
}
