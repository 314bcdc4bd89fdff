package logging

import (
	"errors"
	"fmt"
	"regexp"
	"time"
)

// ErrInvalidConfig indicates invalid configuration.
var ErrInvalidConfig = errors.New("invalid logging configuration")

// Config holds logging configuration.
type Config struct {
	Level      string            `koanf:"level"`
	Format     string            `koanf:"format"`
	Output     OutputConfig      `koanf:"output"`
	Sampling   SamplingConfig    `koanf:"sampling"`
	Caller     bool              `koanf:"caller"`
	Stacktrace string            `koanf:"stacktrace"`
	Fields     map[string]string `koanf:"fields"`
	Redaction  RedactionConfig   `koanf:"redaction"`
}

// OutputConfig controls where logs are written.
type OutputConfig struct {
	Stdout bool `koanf:"stdout"`
	OTEL   bool `koanf:"otel"`
}

// SamplingConfig controls log volume below error level.
type SamplingConfig struct {
	Enabled    bool          `koanf:"enabled"`
	Tick       time.Duration `koanf:"tick"`
	Initial    int           `koanf:"initial"`
	Thereafter int           `koanf:"thereafter"`
}

// RedactionConfig controls sensitive data redaction.
type RedactionConfig struct {
	Enabled  bool     `koanf:"enabled"`
	Fields   []string `koanf:"fields"`
	Patterns []string `koanf:"patterns"`
}

// NewDefaultConfig returns production defaults.
func NewDefaultConfig() *Config {
	return &Config{
		Level:  "info",
		Format: "json",
		Output: OutputConfig{Stdout: true},
		Sampling: SamplingConfig{
			Enabled:    true,
			Tick:       time.Second,
			Initial:    100,
			Thereafter: 10,
		},
		Caller:     true,
		Stacktrace: "error",
		Fields:     map[string]string{"service": "lexflow"},
		Redaction: RedactionConfig{
			Enabled: true,
			Fields: []string{
				"password", "secret", "token", "api_key",
				"authorization", "bearer", "credential", "dsn",
			},
			Patterns: []string{
				`(?i)bearer\s+\S+`,
				`(?i)api[_-]?key[=:]\s*\S+`,
				`postgres(?:ql)?://[^:\s]+:[^@\s]+@`,
			},
		},
	}
}

// Validate checks config for errors.
func (c *Config) Validate() error {
	if _, err := ParseLevel(c.Level); err != nil {
		return fmt.Errorf("%w: level: %v", ErrInvalidConfig, err)
	}
	if c.Stacktrace != "" {
		if _, err := ParseLevel(c.Stacktrace); err != nil {
			return fmt.Errorf("%w: stacktrace level: %v", ErrInvalidConfig, err)
		}
	}
	if c.Format != "json" && c.Format != "console" {
		return fmt.Errorf("%w: format must be json or console, got %q", ErrInvalidConfig, c.Format)
	}
	if !c.Output.Stdout && !c.Output.OTEL {
		return fmt.Errorf("%w: at least one output must be enabled", ErrInvalidConfig)
	}
	if c.Sampling.Enabled && c.Sampling.Tick <= 0 {
		return fmt.Errorf("%w: sampling tick must be positive", ErrInvalidConfig)
	}
	if c.Redaction.Enabled {
		for _, p := range c.Redaction.Patterns {
			if len(p) > maxPatternLen {
				return fmt.Errorf("%w: redaction pattern longer than %d chars", ErrInvalidConfig, maxPatternLen)
			}
			if _, err := regexp.Compile(p); err != nil {
				return fmt.Errorf("%w: redaction pattern %q: %v", ErrInvalidConfig, p, err)
			}
		}
	}
	for k, v := range c.Fields {
		if k == "" || v == "" {
			return fmt.Errorf("%w: constant fields need a key and a value", ErrInvalidConfig)
		}
	}
	return nil
}
