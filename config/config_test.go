package config

import (
	"strings"
	"testing"
	"time"
)

func TestParse_Defaults(t *testing.T) {
	cfg, err := Parse([]byte(``))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	if cfg.Port != 8080 {
		t.Errorf("Port = %d, want 8080", cfg.Port)
	}
	if cfg.Backend != BackendSim {
		t.Errorf("Backend = %q, want %q", cfg.Backend, BackendSim)
	}
	if cfg.Address != "udpin://0.0.0.0:14551" {
		t.Errorf("Address = %q, want default udpin address", cfg.Address)
	}
	if cfg.ConnectTimeout.Duration() != 30*time.Second {
		t.Errorf("ConnectTimeout = %s, want 30s", cfg.ConnectTimeout.Duration())
	}
	if cfg.ReconnectBackoff.Duration() != 2*time.Second {
		t.Errorf("ReconnectBackoff = %s, want 2s", cfg.ReconnectBackoff.Duration())
	}
	if cfg.TelemetryRateHz != 2 {
		t.Errorf("TelemetryRateHz = %v, want 2", cfg.TelemetryRateHz)
	}
	if cfg.PushRateHz != 10 {
		t.Errorf("PushRateHz = %v, want 10", cfg.PushRateHz)
	}
}

func TestParse_FullConfig(t *testing.T) {
	yaml := `
port: 9090
backend: bridge
socket_path: /run/bridge.sock
connect_timeout: 10s
reconnect_backoff: 500ms
telemetry_rate_hz: 4
push_rate_hz: 20
`
	cfg, err := Parse([]byte(yaml))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	if cfg.Port != 9090 {
		t.Errorf("Port = %d, want 9090", cfg.Port)
	}
	if cfg.Backend != BackendBridge {
		t.Errorf("Backend = %q, want bridge", cfg.Backend)
	}
	if cfg.SocketPath != "/run/bridge.sock" {
		t.Errorf("SocketPath = %q, want /run/bridge.sock", cfg.SocketPath)
	}
	if cfg.ReconnectBackoff.Duration() != 500*time.Millisecond {
		t.Errorf("ReconnectBackoff = %s, want 500ms", cfg.ReconnectBackoff.Duration())
	}
	if cfg.SourceAddress() != "/run/bridge.sock" {
		t.Errorf("SourceAddress() = %q, want socket path for bridge backend", cfg.SourceAddress())
	}
}

func TestParse_EnvExpansion(t *testing.T) {
	t.Setenv("TELEMD_TEST_SOCK", "/tmp/custom.sock")

	cfg, err := Parse([]byte("backend: bridge\nsocket_path: ${TELEMD_TEST_SOCK}\n"))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if cfg.SocketPath != "/tmp/custom.sock" {
		t.Errorf("SocketPath = %q, want /tmp/custom.sock", cfg.SocketPath)
	}
}

func TestParse_EnvDefault(t *testing.T) {
	cfg, err := Parse([]byte("address: ${TELEMD_UNSET_VAR:-serial:///dev/ttyACM0:57600}\n"))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if cfg.Address != "serial:///dev/ttyACM0:57600" {
		t.Errorf("Address = %q, want fallback serial address", cfg.Address)
	}
}

func TestParse_EnvMissing(t *testing.T) {
	_, err := Parse([]byte("address: ${TELEMD_DEFINITELY_UNSET}\n"))
	if err == nil {
		t.Fatal("Parse() error = nil, want unset variable error")
	}
	if !strings.Contains(err.Error(), "TELEMD_DEFINITELY_UNSET") {
		t.Errorf("error = %v, want mention of the variable name", err)
	}
}

func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{"bad yaml", "port: [nope", "failed to parse YAML"},
		{"bad backend", "backend: dji\n", "backend must be"},
		{"bad port", "port: 70000\n", "port must be"},
		{"negative rate", "push_rate_hz: -1\n", "push_rate_hz must be positive"},
		{"excessive rate", "push_rate_hz: 500\n", "push_rate_hz must not exceed 100"},
		{"short timeout", "connect_timeout: 100ms\n", "connect_timeout must be at least 1s"},
		{"short backoff", "reconnect_backoff: 1ms\n", "reconnect_backoff must be at least"},
		{"bad duration", "connect_timeout: soon\n", "invalid duration"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			if err == nil {
				t.Fatalf("Parse() error = nil, want %q", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}
