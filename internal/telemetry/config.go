package telemetry

import (
	"errors"
	"fmt"
	"net"
	"strings"
	"time"
)

// ErrInvalidConfig indicates invalid configuration.
var ErrInvalidConfig = errors.New("invalid telemetry configuration")

// Config holds telemetry configuration.
type Config struct {
	Enabled        bool   `koanf:"enabled"`
	Endpoint       string `koanf:"endpoint"`
	Protocol       string `koanf:"protocol"`
	ServiceName    string `koanf:"service_name"`
	ServiceVersion string `koanf:"service_version"`

	// Insecure disables TLS; only allowed for local endpoints.
	Insecure      bool `koanf:"insecure"`
	TLSSkipVerify bool `koanf:"tls_skip_verify"`

	SampleRate      float64       `koanf:"sample_rate"`
	Metrics         bool          `koanf:"metrics"`
	ExportInterval  time.Duration `koanf:"export_interval"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

// NewDefaultConfig returns defaults. Telemetry is off until a collector is
// configured.
func NewDefaultConfig() *Config {
	return &Config{
		Endpoint:        "localhost:4317",
		Protocol:        "grpc",
		ServiceName:     "lexflow",
		ServiceVersion:  "dev",
		Insecure:        true,
		SampleRate:      1.0,
		Metrics:         true,
		ExportInterval:  15 * time.Second,
		ShutdownTimeout: 5 * time.Second,
	}
}

// Validate checks configuration for errors.
func (c *Config) Validate() error {
	if !c.Enabled {
		return nil
	}
	if c.Endpoint == "" || c.ServiceName == "" {
		return fmt.Errorf("%w: endpoint and service_name are required", ErrInvalidConfig)
	}
	if c.Protocol != "grpc" && c.Protocol != "http/protobuf" {
		return fmt.Errorf("%w: protocol must be grpc or http/protobuf, got %q", ErrInvalidConfig, c.Protocol)
	}
	if c.Insecure && !isLocal(c.Endpoint) {
		return fmt.Errorf("%w: insecure export is only allowed to local endpoints", ErrInvalidConfig)
	}
	if c.SampleRate < 0 || c.SampleRate > 1 {
		return fmt.Errorf("%w: sample_rate must be in [0,1]", ErrInvalidConfig)
	}
	if c.Metrics && c.ExportInterval <= 0 {
		return fmt.Errorf("%w: export_interval must be positive", ErrInvalidConfig)
	}
	if c.ShutdownTimeout <= 0 {
		return fmt.Errorf("%w: shutdown_timeout must be positive", ErrInvalidConfig)
	}
	return nil
}

func isLocal(endpoint string) bool {
	host := stripScheme(endpoint)
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	host = strings.Trim(host, "[]")
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

// stripScheme removes http:// or https://; the exporters want host:port.
func stripScheme(endpoint string) string {
	endpoint = strings.TrimPrefix(endpoint, "https://")
	return strings.TrimPrefix(endpoint, "http://")
}
