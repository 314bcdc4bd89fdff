// Package capability defines the uniform execution contract shared by every
// unit of work a workflow step can invoke.
//
// A Capability has a name, a Kind drawn from a closed set (retrieval,
// generation, validation), a declared list of payload fields it produces,
// and a single Execute method:
//
//	Execute(ctx context.Context, task Task) Result
//
// Capabilities never return errors across this boundary. Failures are
// reported as a Result with StatusFailed and a populated Error string, so the
// orchestrator can record partial progress instead of unwinding.
//
// The Registry maps names to capabilities. It is populated at startup and
// treated as read-only afterwards; it is passed explicitly to the workflow
// orchestrator rather than held in package state.
package capability
