// Package mcp exposes lexflow to agents as Model Context Protocol tools.
//
// Tools: list_workflows, execute_workflow, retrieve_passages and
// validate_answer. The server runs on stdio under `lexflowd mcp`.
package mcp
