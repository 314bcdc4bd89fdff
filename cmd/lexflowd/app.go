package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/lexflow/internal/capability"
	"github.com/fyrsmithlabs/lexflow/internal/config"
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

// loadConfig reads the config file named by --config, or the default path,
// and applies the --log-level override.
func loadConfig() (*config.Config, error) {
	path := configPath
	if path == "" {
		p, err := config.DefaultPath()
		if err != nil {
			return nil, err
		}
		path = p
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
		if err := cfg.Logging.Validate(); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

// appOption overrides a component, mainly for tests.
type appOption func(*app)

func withEmbedder(p embeddings.Provider) appOption {
	return func(a *app) { a.embedder = p }
}

func withGenerator(g generation.Generator) appOption {
	return func(a *app) { a.generator = g }
}

// app holds every long-lived dependency of the daemon.
type app struct {
	cfg    *config.Config
	logger *zap.Logger

	telemetry *telemetry.Telemetry
	records   *corpus.Store
	embedder  embeddings.Provider
	vectors   vectorstore.Store
	cache     retrieval.Cache
	pipeline  *retrieval.Pipeline
	generator generation.Generator
	validator *validation.Validator
	publisher *events.Publisher
	orch      *workflow.Orchestrator
	registry  *prometheus.Registry

	closers []func() error
}

// newStores opens the corpus record store, the embedder and the vector
// index. It is enough for ingest.
func newStores(ctx context.Context, cfg *config.Config, logger *zap.Logger, opts ...appOption) (*app, error) {
	a := &app{cfg: cfg, logger: logger}
	for _, opt := range opts {
		opt(a)
	}
	if err := a.openStores(ctx); err != nil {
		_ = a.Close(ctx)
		return nil, err
	}
	return a, nil
}

func (a *app) openStores(ctx context.Context) error {
	cfg, logger := a.cfg, a.logger

	tel, err := telemetry.New(ctx, &cfg.Telemetry, logger.Named("telemetry"))
	if err != nil {
		return fmt.Errorf("initializing telemetry: %w", err)
	}
	a.telemetry = tel
	a.closers = append(a.closers, func() error { return tel.Shutdown(context.Background()) })

	records, err := corpus.Open(cfg.Corpus, logger.Named("corpus"))
	if err != nil {
		return fmt.Errorf("opening corpus: %w", err)
	}
	a.records = records
	a.closers = append(a.closers, records.Close)

	if a.embedder == nil {
		embedder, err := embeddings.NewProvider(cfg.Embeddings, logger.Named("embeddings"))
		if err != nil {
			return fmt.Errorf("creating embedding provider: %w", err)
		}
		a.embedder = embedder
	}
	a.closers = append(a.closers, a.embedder.Close)

	vectors, err := vectorstore.NewStore(ctx, cfg.VectorStore, a.embedder, logger.Named("vectorstore"))
	if err != nil {
		return fmt.Errorf("creating vector store: %w", err)
	}
	a.vectors = vectors
	a.closers = append(a.closers, vectors.Close)
	return nil
}

// newApp builds the full dependency graph: stores, retrieval, generation,
// the capability registry and the orchestrator.
func newApp(ctx context.Context, cfg *config.Config, logger *zap.Logger, opts ...appOption) (*app, error) {
	a, err := newStores(ctx, cfg, logger, opts...)
	if err != nil {
		return nil, err
	}
	if err := a.wire(ctx); err != nil {
		_ = a.Close(ctx)
		return nil, err
	}
	return a, nil
}

func (a *app) wire(ctx context.Context) error {
	cfg, logger := a.cfg, a.logger

	cache, err := retrieval.NewCache(ctx, cfg.Cache, logger.Named("cache"))
	if err != nil {
		return fmt.Errorf("creating retrieval cache: %w", err)
	}
	a.cache = cache
	if c, ok := cache.(interface{ Close() error }); ok {
		a.closers = append(a.closers, c.Close)
	}

	client := retrieval.NewClient(a.vectors, a.records, logger.Named("retrieval"))
	pipelineOpts := []retrieval.Option{retrieval.WithVersioner(a.records)}
	if cache != nil {
		pipelineOpts = append(pipelineOpts, retrieval.WithCache(cache))
	}
	a.pipeline = retrieval.NewPipeline(client, cfg.Retrieval, logger.Named("retrieval"), pipelineOpts...)

	if a.generator == nil {
		gen, err := generation.New(cfg.Generation, logger.Named("generation"))
		if err != nil {
			return fmt.Errorf("creating generator: %w", err)
		}
		a.generator = gen
	}

	unit := synthesis.New(a.generator, cfg.Synthesis, logger.Named("synthesis"))
	a.validator = validation.New(cfg.Validation, logger.Named("validation"))

	caps, err := capability.NewRegistry(
		retrieval.NewCapability(a.pipeline, logger.Named("retrieval")),
		synthesis.NewCapability(unit, a.pipeline, logger.Named("synthesis")),
		synthesis.NewResearchCapability(unit, a.pipeline),
		validation.NewCapability(a.validator, a.generator, logger.Named("validation")),
	)
	if err != nil {
		return fmt.Errorf("registering capabilities: %w", err)
	}

	a.registry = prometheus.NewRegistry()
	a.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	orchOpts := []workflow.Option{workflow.WithMetrics(workflow.NewMetrics(a.registry))}
	if cfg.Events.Enabled {
		pub, err := events.Connect(cfg.Events, logger.Named("events"))
		if err != nil {
			return fmt.Errorf("connecting event publisher: %w", err)
		}
		a.publisher = pub
		a.closers = append(a.closers, pub.Close)
		orchOpts = append(orchOpts, workflow.WithObserver(pub))
	}

	orch, err := workflow.New(caps, cfg.Workflows.Orchestrator(), logger.Named("workflow"), orchOpts...)
	if err != nil {
		return fmt.Errorf("creating orchestrator: %w", err)
	}
	a.orch = orch
	a.closers = append(a.closers, func() error { orch.Close(); return nil })

	return a.registerWorkflows()
}

func (a *app) registerWorkflows() error {
	var defs []workflow.Definition
	if !a.cfg.Workflows.DisableBuiltin {
		defs = append(defs, workflow.ReferenceDefinitions()...)
	}
	if len(a.cfg.Workflows.Files) > 0 {
		loaded, err := workflow.LoadDefinitions(a.cfg.Workflows.Files...)
		if err != nil {
			return fmt.Errorf("loading workflow definitions: %w", err)
		}
		defs = append(defs, loaded...)
	}
	for _, def := range defs {
		if err := a.orch.RegisterWorkflow(def); err != nil {
			return fmt.Errorf("registering workflow %q: %w", def.Name, err)
		}
	}
	a.logger.Info("workflows registered", zap.Int("count", len(defs)))
	return nil
}

// Close releases resources in reverse order of acquisition.
func (a *app) Close(_ context.Context) error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	_ = logging.Sync(a.logger)
	return errors.Join(errs...)
}
