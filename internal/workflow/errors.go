package workflow

import "errors"

var (
	// ErrUnknownWorkflow indicates no definition is registered under the requested name.
	ErrUnknownWorkflow = errors.New("unknown workflow")

	// ErrUnresolvedVariable indicates a template reference that cannot be satisfied.
	ErrUnresolvedVariable = errors.New("unresolved variable")

	// ErrInvalidDefinition indicates a structurally invalid workflow definition.
	ErrInvalidDefinition = errors.New("invalid workflow definition")

	// ErrDuplicateWorkflow indicates a workflow name was registered twice.
	ErrDuplicateWorkflow = errors.New("duplicate workflow")
)
