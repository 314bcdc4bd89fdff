package capability

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrExecution wraps any failure raised by a capability's external call.
	ErrExecution = errors.New("capability execution failed")

	// ErrInvalidTask indicates the task could not be bound to the capability's request type.
	ErrInvalidTask = errors.New("invalid task")

	// ErrUnknownCapability indicates no capability is registered under the name.
	ErrUnknownCapability = errors.New("unknown capability")

	// ErrDuplicateCapability indicates a capability name was registered twice.
	ErrDuplicateCapability = errors.New("duplicate capability")

	// ErrInvalidCapability indicates a capability with missing name or unsupported kind.
	ErrInvalidCapability = errors.New("invalid capability")
)

// Kind classifies a capability.
type Kind string

const (
	KindRetrieval  Kind = "retrieval"
	KindGeneration Kind = "generation"
	KindValidation Kind = "validation"
)

// Kinds returns every supported kind.
func Kinds() []Kind {
	return []Kind{KindRetrieval, KindGeneration, KindValidation}
}

// Valid reports whether k is one of the supported kinds.
func (k Kind) Valid() bool {
	switch k {
	case KindRetrieval, KindGeneration, KindValidation:
		return true
	}
	return false
}

// Status is the terminal state of a capability invocation.
type Status string

const (
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Task is the named input handed to a capability.
type Task map[string]any

// String returns the value under key if it is a string.
func (t Task) String(key string) string {
	if v, ok := t[key].(string); ok {
		return v
	}
	return ""
}

// Clone returns a shallow copy of the task.
func (t Task) Clone() Task {
	out := make(Task, len(t))
	for k, v := range t {
		out[k] = v
	}
	return out
}

// Result is produced exactly once per capability invocation.
type Result struct {
	Status   Status         `json:"status"`
	Payload  map[string]any `json:"payload,omitempty"`
	Error    string         `json:"error,omitempty"`
	Duration time.Duration  `json:"-"`
}

// Completed builds a successful result.
func Completed(payload map[string]any) Result {
	if payload == nil {
		payload = map[string]any{}
	}
	return Result{Status: StatusCompleted, Payload: payload}
}

// Failed builds a failed result from err.
func Failed(err error) Result {
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	return Result{Status: StatusFailed, Error: msg}
}

// Failedf builds a failed result wrapping ErrExecution.
func Failedf(format string, args ...any) Result {
	return Failed(fmt.Errorf("%w: %s", ErrExecution, fmt.Sprintf(format, args...)))
}

// OK reports whether the invocation completed.
func (r Result) OK() bool {
	return r.Status == StatusCompleted
}

// MarshalJSON adds duration_ms to the encoded result.
func (r Result) MarshalJSON() ([]byte, error) {
	type alias Result
	return json.Marshal(struct {
		alias
		DurationMS int64 `json:"duration_ms"`
	}{alias: alias(r), DurationMS: r.Duration.Milliseconds()})
}
