package handoff

import (
	"fmt"

	"github.com/hupe1980/concierge/agent"
	"github.com/hupe1980/concierge/core"
	"github.com/hupe1980/concierge/state"
)

// DefaultWindow is the number of prior messages carried across a handoff.
const DefaultWindow = 6

// Reconciler builds the context of an agent that becomes active.
type Reconciler struct {
	window int
}

// NewReconciler creates a Reconciler keeping window messages per history.
// A non-positive window selects DefaultWindow.
func NewReconciler(window int) *Reconciler {
	if window <= 0 {
		window = DefaultWindow
	}
	return &Reconciler{window: window}
}

// Window returns the configured window size.
func (r *Reconciler) Window() int { return r.window }

// Reconcile returns the context for target: the rendered instruction, a
// persona line with the state digest, the pair-safe window of the target's
// own non-system history, then the pair-safe window of the prior agent's
// non-system history without messages already present. Each part holds at
// most Window messages, so the carried history is bounded by 2*Window.
func (r *Reconciler) Reconcile(target *agent.Definition, st *state.State, existing, prior []core.Message) ([]core.Message, error) {
	instruction, err := target.Instruction.Resolve(st)
	if err != nil {
		return nil, fmt.Errorf("render instruction of agent %s: %w", target.ID, err)
	}

	out := []core.Message{
		core.NewSystemMessage(instruction),
		core.NewSystemMessage(fmt.Sprintf("You are %s. Current data:\n%s", target.DisplayName(), st.Summarize())),
	}

	own := PairSafeWindow(nonSystem(existing), r.window)
	seen := make(map[string]struct{}, len(own))
	for _, m := range own {
		seen[m.ID] = struct{}{}
	}
	out = append(out, own...)

	for _, m := range PairSafeWindow(nonSystem(prior), r.window) {
		if _, dup := seen[m.ID]; dup {
			continue
		}
		seen[m.ID] = struct{}{}
		out = append(out, m)
	}
	return out, nil
}

// PairSafeWindow returns at most the last k messages of msgs, dropping any
// tool call whose result falls outside the window and any result whose call
// does. Straddling pairs are dropped whole.
func PairSafeWindow(msgs []core.Message, k int) []core.Message {
	if k <= 0 {
		return nil
	}
	if len(msgs) > k {
		msgs = msgs[len(msgs)-k:]
	}

	calls := map[string]bool{}
	results := map[string]bool{}
	for _, m := range msgs {
		switch {
		case m.IsToolCall():
			calls[m.CallID()] = true
		case m.IsToolResult():
			results[m.CallID()] = true
		}
	}

	out := make([]core.Message, 0, len(msgs))
	for _, m := range msgs {
		switch {
		case m.IsToolCall() && !results[m.CallID()]:
			continue
		case m.IsToolResult() && !calls[m.CallID()]:
			continue
		}
		out = append(out, m)
	}
	return out
}

func nonSystem(msgs []core.Message) []core.Message {
	out := make([]core.Message, 0, len(msgs))
	for _, m := range msgs {
		if m.Role != core.RoleSystem {
			out = append(out, m)
		}
	}
	return out
}
