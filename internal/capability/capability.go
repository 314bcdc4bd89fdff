package capability

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"
)

// Capability is a named, uniformly invokable unit of work.
type Capability interface {
	// Name is the registry key.
	Name() string

	// Kind classifies the capability.
	Kind() Kind

	// Outputs lists the payload fields a completed result carries. An empty
	// list disables field checking for references to this capability.
	Outputs() []string

	// Execute runs the task. Implementations report failure through the
	// returned Result and must honor ctx cancellation.
	Execute(ctx context.Context, task Task) Result
}

// ExecuteFunc is the signature of a function-backed capability.
type ExecuteFunc func(ctx context.Context, task Task) Result

// Func adapts a function to the Capability interface.
type Func struct {
	name    string
	kind    Kind
	outputs []string
	fn      ExecuteFunc
}

// NewFunc creates a function-backed capability.
func NewFunc(name string, kind Kind, outputs []string, fn ExecuteFunc) *Func {
	return &Func{name: name, kind: kind, outputs: outputs, fn: fn}
}

func (f *Func) Name() string      { return f.name }
func (f *Func) Kind() Kind        { return f.kind }
func (f *Func) Outputs() []string { return f.outputs }

// Execute calls the wrapped function.
func (f *Func) Execute(ctx context.Context, task Task) Result {
	return f.fn(ctx, task)
}

var _ Capability = (*Func)(nil)

// Invoke executes c and records the elapsed time on the result.
//
// A panic inside the capability is recovered and reported as a failed
// result, so a misbehaving capability cannot take down a workflow run.
func Invoke(ctx context.Context, c Capability, task Task) (res Result) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			res = Failed(fmt.Errorf("%w: panic in %s: %v\n%s", ErrExecution, c.Name(), r, debug.Stack()))
		}
		if res.Status == "" {
			res = Failedf("%s returned no status", c.Name())
		}
		res.Duration = time.Since(start)
	}()

	if err := ctx.Err(); err != nil {
		return Failed(fmt.Errorf("%w: %v", ErrExecution, err))
	}
	return c.Execute(ctx, task)
}
