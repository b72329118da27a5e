package agent

import (
	"github.com/hupe1980/concierge/internal/util"
	"github.com/hupe1980/concierge/state"
)

// Provider supplies dynamic instruction text at runtime.
type Provider interface {
	Instruction(st *state.State) (string, error)
}

// Func is a functional adapter to allow ordinary functions to be used as Providers.
type Func func(st *state.State) (string, error)

// Instruction implements Provider.
func (f Func) Instruction(st *state.State) (string, error) { return f(st) }

// Instruction represents either a static instruction template or a dynamic provider.
type Instruction struct {
	text     string
	provider Provider
}

// NewInstructionFromText creates an Instruction from a static template.
// Templates are rendered against the state snapshot, e.g. {{.resident_name}}.
func NewInstructionFromText(text string) Instruction { return Instruction{text: text} }

// NewInstructionFromProvider creates an Instruction from a dynamic provider.
func NewInstructionFromProvider(p Provider) Instruction { return Instruction{provider: p} }

// NewInstructionFromFunc creates an Instruction from a function.
func NewInstructionFromFunc(f func(st *state.State) (string, error)) Instruction {
	return Instruction{provider: Func(f)}
}

// IsStatic returns true if the instruction is backed by a static template.
func (i Instruction) IsStatic() bool { return i.provider == nil }

// Resolve returns the rendered instruction text.
func (i Instruction) Resolve(st *state.State) (string, error) {
	text := i.text
	if i.provider != nil {
		var err error
		if text, err = i.provider.Instruction(st); err != nil {
			return "", err
		}
	}
	var data map[string]any
	if st != nil {
		data = st.Snapshot()
	}
	return util.RenderTemplate(text, data)
}
