// Package main implements lexctl, a command-line client for the lexflowd
// HTTP API.
package main

import (
	"os"
	"time"

	"github.com/spf13/cobra"
)

var (
	// serverURL is the base URL of the lexflowd HTTP server.
	serverURL string
	// authToken is sent as a bearer token when set.
	authToken string
	timeout   time.Duration

	version = "dev"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "lexctl",
	Short: "CLI for lexflowd HTTP server operations",
	Long: `lexctl is a command-line interface for the lexflowd HTTP API.
It lists and runs workflows, queries the corpus and scores assessments.`,
	Version:      version,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", envOr("LEXFLOW_SERVER", "http://127.0.0.1:8080"), "lexflowd server URL")
	rootCmd.PersistentFlags().StringVar(&authToken, "token", os.Getenv("LEXFLOW_TOKEN"), "API bearer token")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 5*time.Minute, "request timeout")

	rootCmd.AddCommand(healthCmd)
	rootCmd.AddCommand(workflowsCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(retrieveCmd)
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(executionsCmd)
	rootCmd.AddCommand(statsCmd)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
