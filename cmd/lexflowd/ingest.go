package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/lexflow/internal/config"
	"github.com/fyrsmithlabs/lexflow/internal/corpus"
	"github.com/fyrsmithlabs/lexflow/internal/logging"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest <file>...",
	Short: "Load corpus sections into the record and vector stores",
	Long: `Load corpus section files (.json, .yaml) into the configured record
store and vector index. Every successful file bumps the corpus version,
which invalidates cached retrieval results.

Examples:
  lexflowd ingest sections.yaml
  lexflowd ingest --config /etc/lexflow/config.yaml part1.json part2.json`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		logger, err := logging.NewStderrLogger(&cfg.Logging, nil)
		if err != nil {
			return fmt.Errorf("initializing logger: %w", err)
		}

		version, total, err := runIngest(ctx, cfg, logger, args)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "ingested %d sections (corpus version %d)\n", total, version)
		return nil
	},
}

// runIngest parses every file before touching the stores so a bad file
// aborts the whole run.
func runIngest(ctx context.Context, cfg *config.Config, logger *zap.Logger, paths []string, opts ...appOption) (int64, int, error) {
	batches := make([][]corpus.Section, 0, len(paths))
	total := 0
	for _, p := range paths {
		secs, err := corpus.LoadSections(p)
		if err != nil {
			return 0, 0, err
		}
		batches = append(batches, secs)
		total += len(secs)
	}

	a, err := newStores(ctx, cfg, logger, opts...)
	if err != nil {
		return 0, 0, err
	}
	defer func() {
		if err := a.Close(context.Background()); err != nil {
			logger.Warn("shutdown incomplete", zap.Error(err))
		}
	}()

	ingester := corpus.NewIngester(a.records, a.vectors, logger.Named("ingest"))
	var version int64
	for i, secs := range batches {
		v, err := ingester.Ingest(ctx, secs)
		if err != nil {
			return 0, 0, fmt.Errorf("ingesting %s: %w", paths[i], err)
		}
		version = v
	}
	return version, total, nil
}
