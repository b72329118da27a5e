package tool

import (
	"errors"
	"fmt"
	"time"

	"github.com/hupe1980/concierge/core"
	"github.com/hupe1980/concierge/internal/util"
)

// FunctionTool is a generic adapter that exposes a plain Go function as a tool.
//
// Responsibilities:
//   - Holds a JSON-Schema-like parameter specification
//   - Validates model supplied arguments against that schema before execution
//   - Invokes the wrapped function with a *Context
//   - Normalizes error handling so callers receive *ToolError with consistent codes:
//     VALIDATION_ERROR  -> schema / argument mismatch
//     NOT_FOUND         -> unknown record or provider
//     TIMEOUT           -> provider exceeded its deadline
//     EXECUTION_ERROR   -> any other failure
//     (custom codes preserved if the function returns *ToolError directly)
//
// A FunctionTool has no mutable state after construction and is safe for
// concurrent use.
type FunctionTool struct {
	name        string
	description string
	parameters  map[string]any
	actions     []string
	fn          func(tc *Context, args map[string]any) (any, error)
}

// NewFunctionTool constructs a FunctionTool from explicit schema and function.
//
// Example:
//
//	lookup := NewFunctionTool(
//	  "check_resident",
//	  "Verify a resident by name and unit",
//	  map[string]any{
//	    "type": "object",
//	    "properties": map[string]any{
//	      "name": map[string]any{"type": "string"},
//	      "unit": map[string]any{"type": "string"},
//	    },
//	    "required": []string{"name", "unit"},
//	  },
//	  func(tc *Context, args map[string]any) (any, error) {
//	    res, err := tc.Invoke(action.CheckIdentity, args)
//	    if err != nil {
//	      return nil, err
//	    }
//	    return res.Message, nil
//	  },
//	).WithActions(action.CheckIdentity)
func NewFunctionTool(
	name, description string,
	parameters map[string]any,
	fn func(tc *Context, args map[string]any) (any, error),
) *FunctionTool {
	if parameters == nil {
		parameters = map[string]any{"type": "object", "properties": map[string]any{}}
	}
	return &FunctionTool{
		name:        name,
		description: description,
		parameters:  parameters,
		fn:          fn,
	}
}

// NewFunctionToolFromStruct derives the parameter schema from a struct using reflection.
func NewFunctionToolFromStruct(
	name, description string,
	structType any,
	fn func(tc *Context, args map[string]any) (any, error),
) *FunctionTool {
	return NewFunctionTool(name, description, util.CreateSchema(structType), fn)
}

// WithActions declares the action providers the tool invokes.
func (t *FunctionTool) WithActions(names ...string) *FunctionTool {
	t.actions = append(t.actions, names...)
	return t
}

// Name returns the unique tool name.
func (t *FunctionTool) Name() string { return t.name }

// Description returns the natural language description exposed to models.
func (t *FunctionTool) Description() string { return t.description }

// Parameters returns the JSON schema describing expected arguments.
func (t *FunctionTool) Parameters() map[string]any { return t.parameters }

// RequiredActions implements ActionDependent.
func (t *FunctionTool) RequiredActions() []string { return t.actions }

// Call validates the provided args against the declared schema then invokes the
// underlying function.
//
// Logging Fields:
//
//	tool: tool name
//	call_id: tool call identifier
//	duration_ms: execution time in milliseconds
func (t *FunctionTool) Call(tc *Context, args map[string]any) (any, error) {
	logger := tc.Logger()
	start := time.Now()

	logger.Debug("tool.call.start", "tool", t.name, "call_id", tc.CallID())

	if err := util.ValidateParameters(args, t.parameters); err != nil {
		logger.Warn("tool.call.validation_failed", "tool", t.name, "error", err.Error())

		return nil, &ToolError{
			Tool:    t.name,
			Message: fmt.Sprintf("parameter validation failed: %v", err),
			Code:    CodeValidation,
			Details: err,
			Cause:   err,
		}
	}

	result, err := t.fn(tc, args)
	if err != nil {
		var toolErr *ToolError
		if errors.As(err, &toolErr) {
			logger.Error("tool.call.error", "tool", t.name, "error", toolErr.Message)

			return nil, toolErr
		}

		logger.Error("tool.call.error", "tool", t.name, "error", err.Error())

		return nil, &ToolError{
			Tool:    t.name,
			Message: err.Error(),
			Code:    codeFor(err),
			Cause:   err,
		}
	}

	logger.Info("tool.call.success", "tool", t.name, "duration_ms", time.Since(start).Milliseconds())

	return result, nil
}

func codeFor(err error) string {
	var (
		vErr   *core.ValidationError
		nf     *core.NotFoundError
		extErr *core.ExternalActionError
	)
	switch {
	case errors.As(err, &vErr):
		return CodeValidation
	case errors.As(err, &nf):
		return CodeNotFound
	case errors.As(err, &extErr) && extErr.Timeout():
		return CodeTimeout
	default:
		return CodeExecution
	}
}

var (
	_ Tool            = (*FunctionTool)(nil)
	_ ActionDependent = (*FunctionTool)(nil)
)
