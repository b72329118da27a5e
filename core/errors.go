package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ValidationError reports tool arguments or state values that do not match
// their declared shape. It is recovered locally by re-prompting the caller.
type ValidationError struct {
	Field   string `json:"field"`
	Value   any    `json:"value,omitempty"`
	Message string `json:"message"`
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation error: " + e.Message
	}
	return fmt.Sprintf("validation error for field '%s': %s", e.Field, e.Message)
}

// NotFoundError reports a lookup miss (agent, tool, identity record).
type NotFoundError struct {
	Kind string `json:"kind"`
	Key  string `json:"key"`
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Kind, e.Key)
}

// HandoffLoopError reports that the per-turn handoff cap was exceeded.
type HandoffLoopError struct {
	Cap   int      `json:"cap"`
	Chain []string `json:"chain"`
}

func (e *HandoffLoopError) Error() string {
	return fmt.Sprintf("handoff cap of %d exceeded: %s", e.Cap, strings.Join(e.Chain, " -> "))
}

// ExternalActionError wraps a failing or timed out action provider.
type ExternalActionError struct {
	Action string
	Err    error
}

func (e *ExternalActionError) Error() string {
	return fmt.Sprintf("external action %s failed: %v", e.Action, e.Err)
}

func (e *ExternalActionError) Unwrap() error { return e.Err }

// Timeout reports whether the action exceeded its deadline.
func (e *ExternalActionError) Timeout() bool { return errors.Is(e.Err, context.DeadlineExceeded) }

// FatalInitializationError aborts session start before any caller turn.
type FatalInitializationError struct {
	Reason string
	Err    error
}

func (e *FatalInitializationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("session initialization failed: %s: %v", e.Reason, e.Err)
	}
	return "session initialization failed: " + e.Reason
}

func (e *FatalInitializationError) Unwrap() error { return e.Err }
