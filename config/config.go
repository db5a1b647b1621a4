// Package config provides YAML configuration parsing for telemd.
//
// Example configuration:
//
//	port: 8080
//	backend: sim
//	address: udpin://0.0.0.0:14551
//	connect_timeout: 30s
//	telemetry_rate_hz: 2
//	push_rate_hz: 10
//
// For the bridge backend:
//
//	backend: bridge
//	socket_path: /tmp/telemd-bridge.sock
//	reconnect_backoff: 2s
package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Backend selects the ingestion adapter.
type Backend string

// Supported backends.
const (
	// BackendSim runs the push-stream adapter over the built-in simulated
	// flight source.
	BackendSim Backend = "sim"

	// BackendBridge reads newline-delimited JSON frames from a local unix
	// socket written by a bridge process.
	BackendBridge Backend = "bridge"
)

// Defaults applied by [Parse] for unset fields.
const (
	defaultPort             = 8080
	defaultAddress          = "udpin://0.0.0.0:14551"
	defaultSocketPath       = "/tmp/telemd-bridge.sock"
	defaultConnectTimeout   = 30 * time.Second
	defaultReconnectBackoff = 2 * time.Second
	defaultTelemetryRateHz  = 2.0
	defaultPushRateHz       = 10.0

	// minReconnectBackoff prevents accidental hammering of the bridge socket.
	minReconnectBackoff = 100 * time.Millisecond
)

// Config is the root configuration structure for telemd.
//
// It maps directly to the YAML configuration file. Use [Load] or [Parse] to
// create one; both apply defaults and validate.
type Config struct {
	// Port is the HTTP server port. Defaults to 8080.
	Port int `yaml:"port"`

	// Backend selects the ingestion adapter: "sim" or "bridge".
	// Defaults to "sim".
	Backend Backend `yaml:"backend"`

	// Address is the vehicle address for the push-stream backend.
	// Supports environment variable substitution: ${VAR} or ${VAR:-default}.
	Address string `yaml:"address"`

	// SocketPath is the unix socket path for the bridge backend.
	// Supports environment variable substitution.
	SocketPath string `yaml:"socket_path"`

	// ConnectTimeout bounds the wait for the vehicle heartbeat on the
	// push-stream backend. Defaults to 30s.
	ConnectTimeout Duration `yaml:"connect_timeout"`

	// ReconnectBackoff is the fixed delay between reconnect attempts of the
	// bridge backend. Defaults to 2s.
	ReconnectBackoff Duration `yaml:"reconnect_backoff"`

	// TelemetryRateHz is the update rate requested from the telemetry
	// source. Defaults to 2.
	TelemetryRateHz float64 `yaml:"telemetry_rate_hz"`

	// PushRateHz is the rate at which snapshots are pushed to stream
	// clients. Defaults to 10.
	PushRateHz float64 `yaml:"push_rate_hz"`
}

// SourceAddress returns the address clients see on /status: the vehicle
// address for the stream backend, the socket path for the bridge backend.
func (c *Config) SourceAddress() string {
	if c.Backend == BackendBridge {
		return c.SocketPath
	}
	return c.Address
}

// Duration wraps time.Duration for YAML unmarshalling.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler for Duration.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}

	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}

	*d = Duration(parsed)
	return nil
}

// Duration returns the underlying time.Duration value.
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

// envVarPattern matches ${VAR} and ${VAR:-default} patterns.
var envVarPattern = regexp.MustCompile(`\$\{([^}:]+)(:-([^}]*))?\}`)

// expandEnvVars replaces ${VAR} and ${VAR:-default} patterns with
// environment values. A reference to an unset variable without a default is
// an error.
func expandEnvVars(s string) (string, error) {
	var firstErr error

	result := envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		if firstErr != nil {
			return match
		}

		submatches := envVarPattern.FindStringSubmatch(match)
		if len(submatches) < 2 {
			return match
		}

		varName := submatches[1]
		hasDefault := len(submatches) > 2 && submatches[2] != ""
		defaultVal := ""
		if hasDefault && len(submatches) > 3 {
			defaultVal = submatches[3]
		}

		value, exists := os.LookupEnv(varName)
		if !exists {
			if hasDefault {
				return defaultVal
			}
			firstErr = fmt.Errorf("environment variable %q is not set", varName)
			return match
		}
		return value
	})

	if firstErr != nil {
		return "", firstErr
	}
	return result, nil
}

// Load reads and parses a YAML configuration file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse parses YAML configuration data, applies defaults and validates.
// Environment variables are expanded in Address and SocketPath.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if cfg.Port == 0 {
		cfg.Port = defaultPort
	}
	if cfg.Backend == "" {
		cfg.Backend = BackendSim
	}
	if cfg.Address == "" {
		cfg.Address = defaultAddress
	}
	if cfg.SocketPath == "" {
		cfg.SocketPath = defaultSocketPath
	}
	if cfg.ConnectTimeout == 0 {
		cfg.ConnectTimeout = Duration(defaultConnectTimeout)
	}
	if cfg.ReconnectBackoff == 0 {
		cfg.ReconnectBackoff = Duration(defaultReconnectBackoff)
	}
	if cfg.TelemetryRateHz == 0 {
		cfg.TelemetryRateHz = defaultTelemetryRateHz
	}
	if cfg.PushRateHz == 0 {
		cfg.PushRateHz = defaultPushRateHz
	}

	if err := cfg.expandAndValidate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// expandAndValidate expands environment variables and validates the config.
func (c *Config) expandAndValidate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", c.Port)
	}

	switch c.Backend {
	case BackendSim, BackendBridge:
	default:
		return fmt.Errorf("backend must be %q or %q, got %q", BackendSim, BackendBridge, c.Backend)
	}

	expanded, err := expandEnvVars(c.Address)
	if err != nil {
		return fmt.Errorf("address: %w", err)
	}
	c.Address = expanded

	expanded, err = expandEnvVars(c.SocketPath)
	if err != nil {
		return fmt.Errorf("socket_path: %w", err)
	}
	c.SocketPath = expanded

	if c.Backend == BackendBridge && c.SocketPath == "" {
		return fmt.Errorf("socket_path is required for the bridge backend")
	}

	if c.ConnectTimeout.Duration() < time.Second {
		return fmt.Errorf("connect_timeout must be at least 1s, got %s", c.ConnectTimeout.Duration())
	}
	if c.ReconnectBackoff.Duration() < minReconnectBackoff {
		return fmt.Errorf("reconnect_backoff must be at least %s, got %s",
			minReconnectBackoff, c.ReconnectBackoff.Duration())
	}

	if c.TelemetryRateHz <= 0 {
		return fmt.Errorf("telemetry_rate_hz must be positive, got %v", c.TelemetryRateHz)
	}
	if c.PushRateHz <= 0 {
		return fmt.Errorf("push_rate_hz must be positive, got %v", c.PushRateHz)
	}
	if c.PushRateHz > 100 {
		return fmt.Errorf("push_rate_hz must not exceed 100, got %v", c.PushRateHz)
	}

	return nil
}
