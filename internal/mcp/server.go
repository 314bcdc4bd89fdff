package mcp

import (
	"context"
	"errors"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/lexflow/internal/retrieval"
	"github.com/fyrsmithlabs/lexflow/internal/validation"
	"github.com/fyrsmithlabs/lexflow/internal/workflow"
)

// Orchestrator runs registered workflows.
type Orchestrator interface {
	Workflows() []workflow.Summary
	Execute(ctx context.Context, name string, input map[string]any) (*workflow.Result, error)
}

// Retriever runs multi-query retrieval.
type Retriever interface {
	Retrieve(ctx context.Context, req retrieval.Request) ([]retrieval.Passage, error)
}

// Validator parses assessment text into a report.
type Validator interface {
	Validate(ctx context.Context, content string) validation.Report
}

// Config configures the MCP server.
type Config struct {
	// Name is the implementation name. Default: "lexflow"
	Name string

	// Version is the implementation version. Default: "dev"
	Version string
}

// Server serves lexflow tools over MCP.
type Server struct {
	mcp       *mcp.Server
	orch      Orchestrator
	retriever Retriever
	validator Validator
	metrics   *Metrics
	logger    *zap.Logger
}

// NewServer creates a server and registers its tools. The retriever and
// validator are optional; their tools are omitted when nil.
func NewServer(cfg Config, orch Orchestrator, retriever Retriever, val Validator, logger *zap.Logger) (*Server, error) {
	if orch == nil {
		return nil, errors.New("orchestrator is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Name == "" {
		cfg.Name = "lexflow"
	}
	if cfg.Version == "" {
		cfg.Version = "dev"
	}

	s := &Server{
		mcp:       mcp.NewServer(&mcp.Implementation{Name: cfg.Name, Version: cfg.Version}, nil),
		orch:      orch,
		retriever: retriever,
		validator: val,
		metrics:   NewMetrics(logger),
		logger:    logger,
	}
	s.registerTools()
	return s, nil
}

// Run serves on stdio until ctx is done or the client disconnects.
func (s *Server) Run(ctx context.Context) error {
	s.logger.Info("starting MCP server on stdio transport")
	return s.Serve(ctx, &mcp.StdioTransport{})
}

// Serve serves on transport.
func (s *Server) Serve(ctx context.Context, transport mcp.Transport) error {
	if err := s.mcp.Run(ctx, transport); err != nil {
		return fmt.Errorf("server run failed: %w", err)
	}
	return nil
}

// MCP returns the underlying SDK server.
func (s *Server) MCP() *mcp.Server {
	return s.mcp
}
