package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	lexhttp "github.com/fyrsmithlabs/lexflow/internal/http"
	"github.com/fyrsmithlabs/lexflow/internal/retrieval"
	"github.com/fyrsmithlabs/lexflow/internal/workflow"
)

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check lexflowd server health",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, cancel := requestContext(cmd.Context())
		defer cancel()

		var resp lexhttp.HealthResponse
		err := newClient().do(ctx, http.MethodGet, "/api/v1/health", nil, &resp)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Server Status: %s\n", resp.Status)
		fmt.Fprintf(out, "Server URL: %s\n", serverURL)
		if resp.Version != "" {
			fmt.Fprintf(out, "Version: %s\n", resp.Version)
		}
		for name, state := range resp.Services {
			fmt.Fprintf(out, "  %s: %s\n", name, state)
		}
		return nil
	},
}

var workflowsCmd = &cobra.Command{
	Use:   "workflows [name]",
	Short: "List workflows, or show one definition",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := requestContext(cmd.Context())
		defer cancel()
		c := newClient()

		if len(args) == 1 {
			var def workflow.Definition
			if err := c.do(ctx, http.MethodGet, "/api/v1/workflows/"+url.PathEscape(args[0]), nil, &def); err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), def)
		}

		var resp lexhttp.WorkflowsResponse
		if err := c.do(ctx, http.MethodGet, "/api/v1/workflows", nil, &resp); err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		for _, s := range resp.Workflows {
			fmt.Fprintf(out, "%-28s %d steps  %s\n", s.Name, s.Steps, s.Description)
		}
		return nil
	},
}

var runInputs []string
var runInputFile string

var runCmd = &cobra.Command{
	Use:   "run <workflow>",
	Short: "Execute a workflow",
	Long: `Execute a workflow and print the result as JSON.

Inputs are key=value pairs; a value that parses as JSON is sent as JSON,
otherwise as a string. Repeating a key builds a list.

Examples:
  lexctl run simple_qa -i question="What notice is required?"
  lexctl run legal_research_report -i queries="notice period" -i queries="termination" -i question="..."
  lexctl run simple_qa --input-file input.json`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		input, err := buildInput(runInputs, runInputFile)
		if err != nil {
			return err
		}
		ctx, cancel := requestContext(cmd.Context())
		defer cancel()

		var res workflow.Result
		path := "/api/v1/workflows/" + url.PathEscape(args[0]) + "/execute"
		if err := newClient().do(ctx, http.MethodPost, path, lexhttp.ExecuteRequest{Input: input}, &res); err != nil {
			return err
		}
		if err := printJSON(cmd.OutOrStdout(), res); err != nil {
			return err
		}
		if res.Status != workflow.StatusCompleted {
			return fmt.Errorf("workflow %s: %s", res.Status, res.Error)
		}
		return nil
	},
}

var retrieveTopK int

var retrieveCmd = &cobra.Command{
	Use:   "retrieve <query>...",
	Short: "Run multi-query retrieval against the corpus",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := requestContext(cmd.Context())
		defer cancel()

		req := retrieval.Request{Queries: args, TopKPerQuery: retrieveTopK}
		var resp lexhttp.RetrieveResponse
		if err := newClient().do(ctx, http.MethodPost, "/api/v1/retrieve", req, &resp); err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		for i, p := range resp.Passages {
			fmt.Fprintf(out, "%2d. [%.3f] %s (%s)\n", i+1, p.Score, p.ID, p.OriginQuery)
		}
		fmt.Fprintf(out, "%d passages\n", resp.Count)
		return nil
	},
}

var validateCmd = &cobra.Command{
	Use:   "validate [file]",
	Short: "Score an assessment from a file or stdin",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		content, err := readInput(cmd.InOrStdin(), args)
		if err != nil {
			return err
		}
		if strings.TrimSpace(content) == "" {
			return fmt.Errorf("no content to validate")
		}
		ctx, cancel := requestContext(cmd.Context())
		defer cancel()

		var rep map[string]any
		if err := newClient().do(ctx, http.MethodPost, "/api/v1/validate", lexhttp.ValidateRequest{Assessment: content}, &rep); err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), rep)
	},
}

var executionsLimit int

var executionsCmd = &cobra.Command{
	Use:   "executions",
	Short: "List recent workflow runs",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, cancel := requestContext(cmd.Context())
		defer cancel()

		var resp lexhttp.ExecutionsResponse
		path := "/api/v1/executions?limit=" + strconv.Itoa(executionsLimit)
		if err := newClient().do(ctx, http.MethodGet, path, nil, &resp); err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		for _, e := range resp.Executions {
			fmt.Fprintf(out, "%s  %-24s %-9s %6dms\n", e.ExecutionID, e.Workflow, e.Status, e.DurationMS)
		}
		return nil
	},
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show execution statistics",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, cancel := requestContext(cmd.Context())
		defer cancel()

		var stats workflow.Stats
		if err := newClient().do(ctx, http.MethodGet, "/api/v1/stats", nil, &stats); err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), stats)
	},
}

func init() {
	runCmd.Flags().StringArrayVarP(&runInputs, "input", "i", nil, "input as key=value (repeatable)")
	runCmd.Flags().StringVar(&runInputFile, "input-file", "", "JSON file holding the input object")
	retrieveCmd.Flags().IntVarP(&retrieveTopK, "top-k", "k", 0, "results per query (server default when 0)")
	executionsCmd.Flags().IntVarP(&executionsLimit, "limit", "n", 20, "number of runs to list")
}

// buildInput merges --input-file with key=value pairs; pairs win.
func buildInput(pairs []string, file string) (map[string]any, error) {
	input := map[string]any{}
	if file != "" {
		data, err := os.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("failed to read input file %s: %w", file, err)
		}
		if err := json.Unmarshal(data, &input); err != nil {
			return nil, fmt.Errorf("input file %s: %w", file, err)
		}
	}

	seen := map[string]bool{}
	for _, pair := range pairs {
		key, raw, ok := strings.Cut(pair, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid input %q: want key=value", pair)
		}
		var value any
		if err := json.Unmarshal([]byte(raw), &value); err != nil {
			value = raw
		}
		if seen[key] {
			if list, ok := input[key].([]any); ok {
				input[key] = append(list, value)
			} else {
				input[key] = []any{input[key], value}
			}
			continue
		}
		seen[key] = true
		input[key] = value
	}
	return input, nil
}

func readInput(stdin io.Reader, args []string) (string, error) {
	if len(args) == 0 || args[0] == "-" {
		data, err := io.ReadAll(stdin)
		if err != nil {
			return "", fmt.Errorf("failed to read from stdin: %w", err)
		}
		return string(data), nil
	}
	data, err := os.ReadFile(args[0])
	if err != nil {
		return "", fmt.Errorf("failed to read file %s: %w", args[0], err)
	}
	return string(data), nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
