package agent

import (
	"context"
	"fmt"
	"strings"

	"github.com/hupe1980/concierge/core"
	"github.com/hupe1980/concierge/internal/util"
	"github.com/hupe1980/concierge/model"
	"github.com/hupe1980/concierge/state"
	"github.com/hupe1980/concierge/tool"
)

// Persona is the presentation of an agent on the output channel.
type Persona struct {
	Name  string
	Voice string
}

// EnterContext is handed to enter hooks after the context of the entering
// agent has been reconciled. Hooks may edit Messages.
type EnterContext struct {
	Agent    *Definition
	From     string
	State    *state.State
	Messages []core.Message
}

// EnterHook runs when an agent becomes active.
type EnterHook func(ctx context.Context, ec *EnterContext) error

// Definition is an immutable agent description.
type Definition struct {
	ID          string
	Description string
	Instruction Instruction
	Tools       []tool.Tool
	Persona     Persona
	// Model overrides the session model for this agent.
	Model   model.Model
	OnEnter []EnterHook
}

// DisplayName returns the persona name, or the id.
func (d *Definition) DisplayName() string {
	if d.Persona.Name != "" {
		return d.Persona.Name
	}
	return d.ID
}

// Validate checks the definition for registration.
func (d *Definition) Validate() error {
	if strings.TrimSpace(d.ID) == "" {
		return &core.ValidationError{Field: "id", Message: "agent id must not be empty"}
	}
	seen := map[string]struct{}{}
	for _, t := range d.Tools {
		if t == nil {
			return &core.ValidationError{Field: "tools", Message: fmt.Sprintf("agent %s has a nil tool", d.ID)}
		}
		if _, dup := seen[t.Name()]; dup {
			return &core.ValidationError{Field: "tools", Value: t.Name(), Message: fmt.Sprintf("duplicate tool in agent %s", d.ID)}
		}
		seen[t.Name()] = struct{}{}
	}
	return nil
}

// Tool looks up one of the agent's tools by name.
func (d *Definition) Tool(name string) (tool.Tool, bool) {
	for _, t := range d.Tools {
		if t.Name() == name {
			return t, true
		}
	}
	return nil, false
}

// ToolDefinitions returns the tool schema set advertised to the model.
func (d *Definition) ToolDefinitions() []model.ToolDefinition {
	defs := make([]model.ToolDefinition, 0, len(d.Tools))
	for _, t := range d.Tools {
		defs = append(defs, model.ToolDefinition{
			Type: "function",
			Function: model.FunctionDefinition{
				Name:        t.Name(),
				Description: t.Description(),
				Parameters:  t.Parameters(),
			},
		})
	}
	return defs
}

// RequiredActions lists every action provider the agent's tools depend on.
func (d *Definition) RequiredActions() []string {
	var names []string
	for _, t := range d.Tools {
		if ad, ok := t.(tool.ActionDependent); ok {
			names = append(names, ad.RequiredActions()...)
		}
	}
	return names
}

// Enter runs the enter hooks in order on ec.
func (d *Definition) Enter(ctx context.Context, ec *EnterContext) error {
	for _, hook := range d.OnEnter {
		if err := hook(ctx, ec); err != nil {
			return fmt.Errorf("enter hook of agent %s: %w", d.ID, err)
		}
	}
	return nil
}

// Chain composes hooks into one.
func Chain(hooks ...EnterHook) EnterHook {
	return func(ctx context.Context, ec *EnterContext) error {
		for _, h := range hooks {
			if err := h(ctx, ec); err != nil {
				return err
			}
		}
		return nil
	}
}

// InjectSystem returns a hook appending a system note rendered against the state.
func InjectSystem(text string) EnterHook {
	return func(_ context.Context, ec *EnterContext) error {
		var data map[string]any
		if ec.State != nil {
			data = ec.State.Snapshot()
		}
		rendered, err := util.RenderTemplate(text, data)
		if err != nil {
			return err
		}
		ec.Messages = append(ec.Messages, core.NewSystemMessage(rendered))
		return nil
	}
}
