// Package workflow executes named, multi-step workflows over registered
// capabilities.
//
// # Definitions
//
// A Definition is an ordered list of steps. Each step names a capability and
// an input template. Templates reference values produced earlier in the same
// run with a small path grammar:
//
//	reference := "${" segment ("." segment)* "}"
//	segment   := [A-Za-z0-9_-]+
//
// The first segment is either the literal "input" (the caller's input) or
// the id of an earlier step; the remaining segments walk into that step's
// result payload. A string that is exactly one reference is replaced by the
// referenced value with its type intact. References embedded in longer
// strings are interpolated as text.
//
// References are checked when a definition is registered: forward references,
// references to unknown steps and references to fields the upstream
// capability does not declare are rejected with ErrUnresolvedVariable before
// anything runs.
//
// # Execution
//
// Steps run strictly in order. Every run owns a fresh execution context
// seeded with {"input": input}. A failed step stops the run and the caller
// receives every result produced so far. Steps marked best_effort record
// their failure and the run continues. The orchestrator never retries.
//
// A timeout around the whole run (Config.Timeout, Definition.Timeout or the
// caller's context deadline) yields a failed Result carrying the partial
// context accumulated so far.
package workflow
