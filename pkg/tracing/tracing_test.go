package tracing

import (
	"context"
	"testing"

	"github.com/PlastyPesa/NeoXten-Automation-Framework-sub001/pkg/api"
)

func TestSetup_Disabled(t *testing.T) {
	shutdown, err := Setup(context.Background(), api.TracingConfig{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Errorf("shutdown: %v", err)
	}
}

func TestSanitizeEndpoint(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"localhost:4317", "localhost:4317"},
		{"http://collector:4317", "collector:4317"},
		{"https://otel.example.com:443/", "otel.example.com:443"},
		{"collector:4317/", "collector:4317"},
		{"  ", ""},
	}
	for _, tt := range tests {
		if got := SanitizeEndpoint(tt.in); got != tt.want {
			t.Errorf("SanitizeEndpoint(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
