// Package main implements lexflowd, the lexflow workflow daemon.
//
// lexflowd serves the HTTP API (serve), the MCP tool surface over stdio (mcp)
// and loads corpus section files into the record and vector stores (ingest).
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version information (set via ldflags).
var (
	version   = "dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

var (
	configPath string
	logLevel   string
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "lexflowd",
	Short: "Retrieval-augmented workflow daemon",
	Long: `lexflowd runs multi-step retrieval, synthesis and validation workflows
over an indexed corpus.

Configuration is read from ~/.config/lexflow/config.yaml (or --config) and
may be overridden with LEXFLOW_ environment variables, using "__" for
nesting, e.g. LEXFLOW_SERVER__PORT=9090.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.SetVersionTemplate(versionString() + "\n")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file path (default ~/.config/lexflow/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override logging.level")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(mcpCmd)
	rootCmd.AddCommand(ingestCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(versionCmd)
}

func versionString() string {
	return fmt.Sprintf("lexflowd %s (commit %s, built %s)", version, gitCommit, buildDate)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, _ []string) {
		fmt.Fprintln(cmd.OutOrStdout(), versionString())
	},
}
