package tool

import (
	"fmt"
	"strings"
)

// Field describes one state field gathered by a collect tool.
type Field struct {
	// State is the shared state field written.
	State string
	// Arg is the tool argument carrying the value; defaults to State.
	Arg string
	// Description is exposed in the parameter schema.
	Description string
	// Prompt is returned while the field is still missing.
	Prompt string
}

func (f Field) arg() string {
	if f.Arg != "" {
		return f.Arg
	}
	return f.State
}

func (f Field) prompt() string {
	if f.Prompt != "" {
		return f.Prompt
	}
	return fmt.Sprintf("Please provide the %s.", strings.ReplaceAll(f.arg(), "_", " "))
}

// NewCollectTool builds a multi-step field collection tool. Every argument is
// optional: values received are written to shared state, and while any field
// is still unset the tool replies with that field's prompt. Once all fields
// are known onComplete runs (its result becomes the tool result).
func NewCollectTool(name, description string, fields []Field, onComplete func(tc *Context) (any, error)) *FunctionTool {
	props := make(map[string]any, len(fields))
	for _, f := range fields {
		props[f.arg()] = map[string]any{"type": "string", "description": f.Description}
	}
	schema := map[string]any{"type": "object", "properties": props}

	return NewFunctionTool(name, description, schema, func(tc *Context, args map[string]any) (any, error) {
		for _, f := range fields {
			v, ok := args[f.arg()].(string)
			if !ok || strings.TrimSpace(v) == "" {
				continue
			}
			if err := tc.SetState(f.State, strings.TrimSpace(v)); err != nil {
				return nil, err
			}
		}
		for _, f := range fields {
			if _, ok := tc.GetState(f.State); !ok {
				return f.prompt(), nil
			}
		}
		if onComplete == nil {
			return "Recorded.", nil
		}
		return onComplete(tc)
	})
}
