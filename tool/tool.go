// Package tool implements the tool calling surface agents use to reach
// side-effecting actions, update shared state and request handoffs. Tools
// receive schema validated arguments and a Context that records flow control
// requests (transfer, terminate) for the dispatch loop to classify.
package tool

import (
	"fmt"

	"github.com/hupe1980/concierge/core"
)

// Tool defines a capability an agent can invoke through the reasoning engine.
//
// Implementations should:
//   - Provide clear, descriptive names (snake_case)
//   - Define a JSON schema for parameters
//   - Honor tc.Context() cancellation when talking to providers
type Tool interface {
	// Name returns the unique identifier for this tool.
	Name() string

	// Description is shown to the reasoning engine to decide when to call the tool.
	Description() string

	// Parameters returns a JSON schema describing the expected input format.
	Parameters() map[string]any

	// Call executes the tool with parsed arguments.
	Call(tc *Context, args map[string]any) (any, error)
}

// ActionDependent is implemented by tools that need action providers.
// Session construction verifies every listed action has a provider.
type ActionDependent interface {
	RequiredActions() []string
}

// Error codes carried by ToolError.
const (
	CodeValidation = "VALIDATION_ERROR"
	CodeExecution  = "EXECUTION_ERROR"
	CodeNotFound   = "NOT_FOUND"
	CodeTimeout    = "TIMEOUT"
)

// ToolError represents errors that occur during tool execution.
type ToolError struct {
	Tool    string `json:"tool"`              // Name of the tool that failed
	Message string `json:"message"`           // Error message
	Code    string `json:"code"`              // Error code for categorization
	Details any    `json:"details,omitempty"` // Additional error details
	Cause   error  `json:"-"`
}

func (e *ToolError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("tool error [%s] in %s: %s", e.Code, e.Tool, e.Message)
	}
	return fmt.Sprintf("tool error in %s: %s", e.Tool, e.Message)
}

// Unwrap exposes the underlying cause so errors.As reaches typed errors
// such as *core.ValidationError or *core.ExternalActionError.
func (e *ToolError) Unwrap() error { return e.Cause }

// NewToolError creates a new ToolError with the specified details.
func NewToolError(tool, message, code string) *ToolError {
	return &ToolError{
		Tool:    tool,
		Message: message,
		Code:    code,
	}
}

// ValidationError is re-exported for tool authors.
type ValidationError = core.ValidationError
