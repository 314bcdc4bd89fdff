package workflow

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/panjf2000/ants/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/lexflow/internal/capability"
)

// Config configures the orchestrator.
type Config struct {
	// Timeout bounds every run unless the definition sets its own.
	// Zero means runs are bounded only by the caller's context.
	Timeout time.Duration `koanf:"timeout"`

	// HistorySize is the number of finished runs kept for inspection.
	HistorySize int `koanf:"history_size"`

	// Parallelism bounds concurrent tasks in ExecuteParallel.
	Parallelism int `koanf:"parallelism"`
}

// ApplyDefaults fills zero values.
func (c *Config) ApplyDefaults() {
	if c.HistorySize <= 0 {
		c.HistorySize = 100
	}
	if c.Parallelism <= 0 {
		c.Parallelism = 8
	}
}

// EventType identifies a lifecycle event.
type EventType string

const (
	EventStarted   EventType = "started"
	EventStep      EventType = "step"
	EventCompleted EventType = "completed"
)

// Event describes a run lifecycle transition.
type Event struct {
	Type        EventType `json:"type"`
	ExecutionID string    `json:"execution_id"`
	Workflow    string    `json:"workflow"`
	StepID      string    `json:"step_id,omitempty"`
	Capability  string    `json:"capability,omitempty"`
	Status      string    `json:"status,omitempty"`
	Error       string    `json:"error,omitempty"`
	DurationMS  int64     `json:"duration_ms,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}

// Observer receives lifecycle events. Implementations must not block.
type Observer interface {
	Observe(ctx context.Context, ev Event)
}

// Option customizes an Orchestrator.
type Option func(*Orchestrator)

// WithMetrics records run and step metrics.
func WithMetrics(m *Metrics) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

// WithObserver forwards lifecycle events to obs.
func WithObserver(obs Observer) Option {
	return func(o *Orchestrator) { o.observer = obs }
}

// Orchestrator runs registered workflows.
//
// Definitions and capabilities are registered at startup. Execute is safe
// for concurrent use; every run owns its own execution context.
type Orchestrator struct {
	registry *capability.Registry
	config   Config

	mu    sync.RWMutex
	defs  map[string]*compiledDefinition
	order []string

	history  *history
	metrics  *Metrics
	observer Observer
	pool     *ants.Pool
	logger   *zap.Logger
	tracer   trace.Tracer
}

// New creates an orchestrator over registry.
func New(registry *capability.Registry, cfg Config, logger *zap.Logger, opts ...Option) (*Orchestrator, error) {
	if registry == nil {
		return nil, errors.New("capability registry is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg.ApplyDefaults()

	pool, err := ants.NewPool(cfg.Parallelism)
	if err != nil {
		return nil, fmt.Errorf("creating task pool: %w", err)
	}

	o := &Orchestrator{
		registry: registry,
		config:   cfg,
		defs:     make(map[string]*compiledDefinition),
		history:  newHistory(cfg.HistorySize),
		pool:     pool,
		logger:   logger,
		tracer:   otel.Tracer("lexflow.workflow"),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o, nil
}

// Close releases the task pool.
func (o *Orchestrator) Close() {
	o.pool.Release()
}

// RegisterCapability adds c to the underlying registry.
func (o *Orchestrator) RegisterCapability(c capability.Capability) error {
	return o.registry.Register(c)
}

// RegisterWorkflow validates def and makes it executable.
func (o *Orchestrator) RegisterWorkflow(def Definition) error {
	cd, err := compile(def, o.registry)
	if err != nil {
		return err
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	if _, exists := o.defs[def.Name]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateWorkflow, def.Name)
	}
	o.defs[def.Name] = cd
	o.order = append(o.order, def.Name)

	o.logger.Debug("workflow registered",
		zap.String("workflow", def.Name),
		zap.Int("steps", len(def.Steps)))
	return nil
}

// Capabilities lists registered capabilities.
func (o *Orchestrator) Capabilities() []capability.Descriptor {
	return o.registry.List()
}

// Workflows lists registered workflows in registration order.
func (o *Orchestrator) Workflows() []Summary {
	o.mu.RLock()
	defer o.mu.RUnlock()

	out := make([]Summary, 0, len(o.order))
	for _, name := range o.order {
		out = append(out, o.defs[name].summary())
	}
	return out
}

// Definition returns the normalized definition registered under name.
func (o *Orchestrator) Definition(name string) (Definition, error) {
	cd, err := o.lookup(name)
	if err != nil {
		return Definition{}, err
	}
	return cd.def, nil
}

// History returns up to limit finished runs, newest first.
func (o *Orchestrator) History(limit int) []ExecutionRecord {
	return o.history.recent(limit)
}

// Stats returns aggregate run statistics.
func (o *Orchestrator) Stats() Stats {
	s := o.history.stats()
	o.mu.RLock()
	s.Workflows = len(o.defs)
	o.mu.RUnlock()
	s.Capabilities = o.registry.Len()
	return s
}

func (o *Orchestrator) lookup(name string) (*compiledDefinition, error) {
	o.mu.RLock()
	defer o.mu.RUnlock()

	cd, ok := o.defs[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownWorkflow, name)
	}
	return cd, nil
}

// Execute runs the named workflow with input.
//
// Only definition-level problems are returned as errors. Step failures,
// capability panics and timeouts are reported through the returned Result,
// which always carries every step result produced before the run stopped.
func (o *Orchestrator) Execute(ctx context.Context, name string, input map[string]any) (*Result, error) {
	cd, err := o.lookup(name)
	if err != nil {
		return nil, err
	}
	if input == nil {
		input = map[string]any{}
	}

	res := &Result{
		ExecutionID: uuid.NewString(),
		Workflow:    name,
		Status:      StatusCompleted,
		Results:     make(map[string]capability.Result, len(cd.steps)),
		StartedAt:   time.Now(),
	}

	ctx, span := o.tracer.Start(ctx, "workflow.Execute", trace.WithAttributes(
		attribute.String("workflow", name),
		attribute.String("execution_id", res.ExecutionID),
	))
	defer span.End()

	timeout := cd.def.Timeout
	if timeout <= 0 {
		timeout = o.config.Timeout
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	logger := o.logger.With(
		zap.String("workflow", name),
		zap.String("execution_id", res.ExecutionID))
	logger.Info("workflow started", zap.Int("steps", len(cd.steps)))
	o.emit(ctx, Event{Type: EventStarted, ExecutionID: res.ExecutionID, Workflow: name})

	scope := map[string]any{InputRoot: input}

	for _, s := range cd.steps {
		if err := ctx.Err(); err != nil {
			res.Status = StatusFailed
			res.Error = fmt.Sprintf("workflow interrupted before step %s: %v", s.ID, err)
			break
		}

		stepRes := o.runStep(ctx, s, scope)
		res.Results[s.ID] = stepRes
		res.Order = append(res.Order, s.ID)

		o.metrics.recordStep(s.Capability, string(stepRes.Status), stepRes.Duration)
		o.emit(ctx, Event{
			Type:        EventStep,
			ExecutionID: res.ExecutionID,
			Workflow:    name,
			StepID:      s.ID,
			Capability:  s.Capability,
			Status:      string(stepRes.Status),
			Error:       stepRes.Error,
			DurationMS:  stepRes.Duration.Milliseconds(),
		})

		if stepRes.OK() {
			scope[s.ID] = stepRes.Payload
			logger.Debug("step completed",
				zap.String("step", s.ID),
				zap.Duration("duration", stepRes.Duration))
			continue
		}

		if s.BestEffort {
			logger.Warn("best-effort step failed",
				zap.String("step", s.ID),
				zap.String("error", stepRes.Error))
			continue
		}

		res.Status = StatusFailed
		if ctx.Err() != nil {
			res.Error = fmt.Sprintf("workflow timed out in step %s: %s", s.ID, stepRes.Error)
		} else {
			res.Error = fmt.Sprintf("step %s failed: %s", s.ID, stepRes.Error)
		}
		break
	}

	if out, ok := scope[cd.def.OutputStep].(map[string]any); ok {
		res.Output = out
	}
	res.Duration = time.Since(res.StartedAt)
	res.DurationMS = res.Duration.Milliseconds()

	if res.Status == StatusFailed {
		span.SetStatus(codes.Error, res.Error)
		logger.Warn("workflow failed",
			zap.String("error", res.Error),
			zap.Int("steps_run", len(res.Order)),
			zap.Duration("duration", res.Duration))
	} else {
		span.SetStatus(codes.Ok, "")
		logger.Info("workflow completed",
			zap.Int("steps_run", len(res.Order)),
			zap.Duration("duration", res.Duration))
	}

	o.history.record(res)
	o.metrics.recordRun(name, res.Status, res.Duration)
	o.emit(context.WithoutCancel(ctx), Event{
		Type:        EventCompleted,
		ExecutionID: res.ExecutionID,
		Workflow:    name,
		Status:      string(res.Status),
		Error:       res.Error,
		DurationMS:  res.DurationMS,
	})

	return res, nil
}

func (o *Orchestrator) runStep(ctx context.Context, s compiledStep, scope map[string]any) capability.Result {
	ctx, span := o.tracer.Start(ctx, "workflow.step", trace.WithAttributes(
		attribute.String("step.id", s.ID),
		attribute.String("capability", s.Capability),
		attribute.Bool("best_effort", s.BestEffort),
	))
	defer span.End()

	input, err := s.template.Resolve(scope)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "input resolution failed")
		return capability.Failed(err)
	}

	if s.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.Timeout)
		defer cancel()
	}

	res := capability.Invoke(ctx, s.capability, capability.Task(input))
	if res.OK() {
		span.SetStatus(codes.Ok, "")
	} else {
		span.SetStatus(codes.Error, res.Error)
	}
	return res
}

// ExecuteParallel runs independent tasks concurrently and returns one result
// per task id. Unknown capabilities yield failed results rather than errors.
func (o *Orchestrator) ExecuteParallel(ctx context.Context, tasks []ParallelTask) (map[string]capability.Result, error) {
	seen := make(map[string]bool, len(tasks))
	for _, t := range tasks {
		if t.ID == "" {
			return nil, fmt.Errorf("%w: parallel task id is required", ErrInvalidDefinition)
		}
		if seen[t.ID] {
			return nil, fmt.Errorf("%w: duplicate parallel task id %q", ErrInvalidDefinition, t.ID)
		}
		seen[t.ID] = true
	}

	ctx, span := o.tracer.Start(ctx, "workflow.ExecuteParallel", trace.WithAttributes(
		attribute.Int("tasks", len(tasks)),
	))
	defer span.End()

	var (
		mu  sync.Mutex
		wg  sync.WaitGroup
		out = make(map[string]capability.Result, len(tasks))
	)
	store := func(id string, r capability.Result) {
		mu.Lock()
		out[id] = r
		mu.Unlock()
	}

	for _, t := range tasks {
		c, err := o.registry.Lookup(t.Capability)
		if err != nil {
			store(t.ID, capability.Failed(err))
			continue
		}

		task := t
		wg.Add(1)
		if err := o.pool.Submit(func() {
			defer wg.Done()
			r := capability.Invoke(ctx, c, capability.Task(task.Input).Clone())
			o.metrics.recordStep(task.Capability, string(r.Status), r.Duration)
			store(task.ID, r)
		}); err != nil {
			wg.Done()
			store(task.ID, capability.Failed(fmt.Errorf("scheduling task: %w", err)))
		}
	}
	wg.Wait()

	ids := make([]string, 0, len(out))
	failed := 0
	for id, r := range out {
		ids = append(ids, id)
		if !r.OK() {
			failed++
		}
	}
	sort.Strings(ids)
	o.logger.Info("parallel tasks finished",
		zap.Strings("tasks", ids),
		zap.Int("failed", failed))

	return out, nil
}

func (o *Orchestrator) emit(ctx context.Context, ev Event) {
	if o.observer == nil {
		return
	}
	ev.Timestamp = time.Now()
	o.observer.Observe(ctx, ev)
}
