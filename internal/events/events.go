// Package events publishes workflow lifecycle events to NATS.
//
// Subjects have the form
//
//	<prefix>.<workflow>.<execution_id>.<started|step|completed>
//
// and carry the JSON-encoded workflow.Event.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/lexflow/internal/workflow"
)

// ErrInvalidConfig indicates invalid configuration.
var ErrInvalidConfig = errors.New("invalid configuration")

// Config configures the NATS connection.
type Config struct {
	Enabled       bool          `koanf:"enabled"`
	URL           string        `koanf:"url"`
	SubjectPrefix string        `koanf:"subject_prefix"`
	MaxReconnects int           `koanf:"max_reconnects"`
	ReconnectWait time.Duration `koanf:"reconnect_wait"`
}

// ApplyDefaults sets default values for unset fields.
func (c *Config) ApplyDefaults() {
	if c.URL == "" {
		c.URL = nats.DefaultURL
	}
	if c.SubjectPrefix == "" {
		c.SubjectPrefix = "lexflow.executions"
	}
	if c.MaxReconnects == 0 {
		c.MaxReconnects = 5
	}
	if c.ReconnectWait == 0 {
		c.ReconnectWait = time.Second
	}
}

// Validate validates the configuration.
func (c Config) Validate() error {
	if !c.Enabled {
		return nil
	}
	if c.URL == "" {
		return fmt.Errorf("%w: url required", ErrInvalidConfig)
	}
	if c.SubjectPrefix == "" || strings.ContainsAny(c.SubjectPrefix, " *>") {
		return fmt.Errorf("%w: invalid subject prefix %q", ErrInvalidConfig, c.SubjectPrefix)
	}
	return nil
}

// Publisher forwards workflow events to NATS. It implements
// workflow.Observer.
type Publisher struct {
	nc     *nats.Conn
	prefix string
	owned  bool
	logger *zap.Logger
}

// Connect dials NATS and returns a publisher that owns the connection.
func Connect(cfg Config, logger *zap.Logger) (*Publisher, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	nc, err := nats.Connect(cfg.URL,
		nats.Name("lexflow"),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("nats disconnected", zap.Error(err))
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info("nats reconnected", zap.String("url", c.ConnectedUrl()))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connecting to NATS at %s: %w", cfg.URL, err)
	}
	p := NewPublisher(nc, cfg.SubjectPrefix, logger)
	p.owned = true
	return p, nil
}

// NewPublisher wraps an existing connection. The caller keeps ownership.
func NewPublisher(nc *nats.Conn, prefix string, logger *zap.Logger) *Publisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	if prefix == "" {
		prefix = "lexflow.executions"
	}
	return &Publisher{nc: nc, prefix: prefix, logger: logger}
}

// Observe publishes ev. Publishing is buffered by the client and never
// blocks the run; failures are logged.
func (p *Publisher) Observe(_ context.Context, ev workflow.Event) {
	if err := p.Publish(ev); err != nil {
		p.logger.Warn("publishing workflow event failed",
			zap.String("execution_id", ev.ExecutionID),
			zap.String("type", string(ev.Type)),
			zap.Error(err),
		)
	}
}

// Publish encodes and publishes one event.
func (p *Publisher) Publish(ev workflow.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	subject := Subject(p.prefix, ev.Workflow, ev.ExecutionID, ev.Type)
	if err := p.nc.Publish(subject, data); err != nil {
		return fmt.Errorf("publish %s: %w", subject, err)
	}
	return nil
}

// Close drains the connection if the publisher owns it.
func (p *Publisher) Close() error {
	if !p.owned {
		return nil
	}
	return p.nc.Drain()
}

// Subject builds the subject of an event. Tokens are sanitized so workflow
// names cannot add subject levels or wildcards.
func Subject(prefix, workflowName, executionID string, t workflow.EventType) string {
	return strings.Join([]string{prefix, token(workflowName), token(executionID), string(t)}, ".")
}

// Subscribe delivers decoded events for one workflow, or all workflows when
// workflowName is empty.
func Subscribe(nc *nats.Conn, prefix, workflowName string, handler func(workflow.Event)) (*nats.Subscription, error) {
	if prefix == "" {
		prefix = "lexflow.executions"
	}
	wf := "*"
	if workflowName != "" {
		wf = token(workflowName)
	}
	subject := strings.Join([]string{prefix, wf, "*", "*"}, ".")
	return nc.Subscribe(subject, func(msg *nats.Msg) {
		var ev workflow.Event
		if err := json.Unmarshal(msg.Data, &ev); err != nil {
			return
		}
		handler(ev)
	})
}

var tokenReplacer = strings.NewReplacer(".", "_", " ", "_", "*", "_", ">", "_", "\t", "_")

func token(s string) string {
	if s == "" {
		return "_"
	}
	return tokenReplacer.Replace(s)
}

var _ workflow.Observer = (*Publisher)(nil)
