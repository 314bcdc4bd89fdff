// Package config loads lexflow configuration.
//
// Each component owns its section type; Config aggregates them so a single
// YAML file plus LEXFLOW_ environment overrides configures the daemon.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/fyrsmithlabs/lexflow/internal/corpus"
	"github.com/fyrsmithlabs/lexflow/internal/embeddings"
	"github.com/fyrsmithlabs/lexflow/internal/events"
	"github.com/fyrsmithlabs/lexflow/internal/generation"
	"github.com/fyrsmithlabs/lexflow/internal/logging"
	"github.com/fyrsmithlabs/lexflow/internal/retrieval"
	"github.com/fyrsmithlabs/lexflow/internal/synthesis"
	"github.com/fyrsmithlabs/lexflow/internal/telemetry"
	"github.com/fyrsmithlabs/lexflow/internal/validation"
	"github.com/fyrsmithlabs/lexflow/internal/vectorstore"
	"github.com/fyrsmithlabs/lexflow/internal/workflow"
)

// ErrInvalidConfig indicates a section failed validation.
var ErrInvalidConfig = errors.New("invalid configuration")

// Config holds the complete lexflow configuration.
type Config struct {
	Server      ServerConfig          `koanf:"server"`
	Logging     logging.Config        `koanf:"logging"`
	Telemetry   telemetry.Config      `koanf:"telemetry"`
	VectorStore vectorstore.Config    `koanf:"vectorstore"`
	Embeddings  embeddings.Config     `koanf:"embeddings"`
	Generation  generation.Config     `koanf:"generation"`
	Retrieval   retrieval.Config      `koanf:"retrieval"`
	Cache       retrieval.CacheConfig `koanf:"cache"`
	Synthesis   synthesis.Config      `koanf:"synthesis"`
	Validation  validation.Config     `koanf:"validation"`
	Corpus      corpus.Config         `koanf:"corpus"`
	Events      events.Config         `koanf:"events"`
	Workflows   WorkflowsConfig       `koanf:"workflows"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host            string   `koanf:"host"`
	Port            int      `koanf:"port"`
	ReadTimeout     Duration `koanf:"read_timeout"`
	WriteTimeout    Duration `koanf:"write_timeout"`
	ShutdownTimeout Duration `koanf:"shutdown_timeout"`

	// BodyLimit uses echo's size syntax, e.g. "1M".
	BodyLimit string `koanf:"body_limit"`

	// AuthToken enables bearer authentication on /api/v1 when set.
	AuthToken Secret `koanf:"auth_token"`

	// RateLimit is requests per second per client IP; zero disables it.
	RateLimit float64 `koanf:"rate_limit"`
}

// Addr returns host:port.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// WorkflowsConfig holds orchestrator configuration.
type WorkflowsConfig struct {
	// Files are definition files (.yaml, .toml, .json) loaded at startup.
	Files []string `koanf:"files"`

	// DisableBuiltin skips registering the reference workflows.
	DisableBuiltin bool `koanf:"disable_builtin"`

	Timeout     time.Duration `koanf:"timeout"`
	HistorySize int           `koanf:"history_size"`
	Parallelism int           `koanf:"parallelism"`
}

// Orchestrator returns the orchestrator settings.
func (w WorkflowsConfig) Orchestrator() workflow.Config {
	return workflow.Config{
		Timeout:     w.Timeout,
		HistorySize: w.HistorySize,
		Parallelism: w.Parallelism,
	}
}

// Default returns a fully defaulted configuration.
func Default() *Config {
	cfg := base()
	cfg.ApplyDefaults()
	return cfg
}

// base carries the sections whose defaults are not zero-value driven.
// Provider-dependent defaults are applied only after loading.
func base() *Config {
	return &Config{
		Logging:   *logging.NewDefaultConfig(),
		Telemetry: *telemetry.NewDefaultConfig(),
	}
}

// ApplyDefaults fills zero values in every section.
func (c *Config) ApplyDefaults() {
	if c.Server.Host == "" {
		c.Server.Host = "127.0.0.1"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.ReadTimeout == 0 {
		c.Server.ReadTimeout = Duration(30 * time.Second)
	}
	if c.Server.WriteTimeout == 0 {
		c.Server.WriteTimeout = Duration(5 * time.Minute)
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = Duration(10 * time.Second)
	}
	if c.Server.BodyLimit == "" {
		c.Server.BodyLimit = "1M"
	}

	if c.Workflows.HistorySize == 0 {
		c.Workflows.HistorySize = 100
	}
	if c.Workflows.Parallelism == 0 {
		c.Workflows.Parallelism = 8
	}

	c.VectorStore.ApplyDefaults()
	c.Embeddings.ApplyDefaults()
	c.Generation.ApplyDefaults()
	c.Retrieval.ApplyDefaults()
	c.Cache.ApplyDefaults()
	c.Synthesis.ApplyDefaults()
	c.Validation.ApplyDefaults()
	c.Corpus.ApplyDefaults()
	c.Events.ApplyDefaults()
}

// Validate validates every section and joins the failures.
func (c *Config) Validate() error {
	var errs []error
	check := func(section string, err error) {
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", section, err))
		}
	}

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		check("server", fmt.Errorf("%w: port %d out of range", ErrInvalidConfig, c.Server.Port))
	}
	if c.Server.ShutdownTimeout <= 0 {
		check("server", fmt.Errorf("%w: shutdown_timeout must be positive", ErrInvalidConfig))
	}
	if c.Server.RateLimit < 0 {
		check("server", fmt.Errorf("%w: rate_limit must not be negative", ErrInvalidConfig))
	}
	if c.Workflows.Timeout < 0 {
		check("workflows", fmt.Errorf("%w: timeout must not be negative", ErrInvalidConfig))
	}

	check("logging", c.Logging.Validate())
	check("telemetry", c.Telemetry.Validate())
	check("vectorstore", c.VectorStore.Validate())
	check("embeddings", c.Embeddings.Validate())
	check("generation", c.Generation.Validate())
	check("retrieval", c.Retrieval.Validate())
	check("cache", c.Cache.Validate())
	check("synthesis", c.Synthesis.Validate())
	check("validation", c.Validation.Validate())
	check("corpus", c.Corpus.Validate())
	check("events", c.Events.Validate())

	return errors.Join(errs...)
}

// Redacted returns a copy safe to print. Server.AuthToken redacts itself.
func (c Config) Redacted() Config {
	c.Generation.APIKey = mask(c.Generation.APIKey)
	c.Embeddings.APIKey = mask(c.Embeddings.APIKey)
	c.VectorStore.Qdrant.APIKey = mask(c.VectorStore.Qdrant.APIKey)
	c.Cache.Redis.Password = mask(c.Cache.Redis.Password)
	if c.Corpus.Driver == "postgres" {
		c.Corpus.DSN = mask(c.Corpus.DSN)
	}
	return c
}
