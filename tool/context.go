package tool

import (
	"context"
	"fmt"

	"github.com/hupe1980/concierge/action"
	"github.com/hupe1980/concierge/core"
	"github.com/hupe1980/concierge/logging"
	"github.com/hupe1980/concierge/state"
)

// Actions accumulates the flow control requests made during one tool call.
type Actions struct {
	TransferTo      string
	TransferMessage string
	Terminate       bool
	FinalMessage    string
	StateDelta      map[string]any
}

// Context is the constrained surface handed to a tool invocation. It exposes
// shared state, action providers and flow control without giving the tool
// access to the session itself.
type Context struct {
	ctx       context.Context
	sessionID string
	agentID   string
	callID    string
	state     *state.State
	providers action.Set
	actions   Actions

	*loggerAdapter
}

// ContextConfig carries the dependencies of a Context.
type ContextConfig struct {
	SessionID string
	AgentID   string
	CallID    string
	State     *state.State
	Providers action.Set
	Logger    logging.Logger
}

// NewContext constructs a tool context bound to ctx.
func NewContext(ctx context.Context, cfg ContextConfig) *Context {
	st := cfg.State
	if st == nil {
		st = state.New()
	}
	return &Context{
		ctx:           ctx,
		sessionID:     cfg.SessionID,
		agentID:       cfg.AgentID,
		callID:        cfg.CallID,
		state:         st,
		providers:     cfg.Providers,
		loggerAdapter: newLoggerAdapter(cfg.Logger),
	}
}

// Context returns the context of the invocation. It carries the tool deadline.
func (tc *Context) Context() context.Context { return tc.ctx }

// SessionID returns the session identifier.
func (tc *Context) SessionID() string { return tc.sessionID }

// AgentID returns the agent executing the tool.
func (tc *Context) AgentID() string { return tc.agentID }

// CallID returns the tool call identifier.
func (tc *Context) CallID() string { return tc.callID }

// Logger returns the logger associated with the tool invocation.
func (tc *Context) Logger() logging.Logger { return tc.loggerAdapter.Logger() }

// GetState reads a shared state field.
func (tc *Context) GetState(k string) (any, bool) { return tc.state.Get(k) }

// GetString reads a string state field.
func (tc *Context) GetString(k string) string { return tc.state.GetString(k) }

// Summary returns the shared state digest.
func (tc *Context) Summary() string { return tc.state.Summarize() }

// PreviousAgent returns the agent active before the last handoff.
func (tc *Context) PreviousAgent() string { return tc.state.PreviousAgent() }

// SetState writes a shared state field. Only the current agent may write.
func (tc *Context) SetState(k string, v any) error {
	if cur := tc.state.CurrentAgent(); cur != "" && cur != tc.agentID {
		return fmt.Errorf("agent %s cannot write state while %s is active", tc.agentID, cur)
	}
	if err := tc.state.Set(k, v); err != nil {
		return err
	}
	if tc.actions.StateDelta == nil {
		tc.actions.StateDelta = map[string]any{}
	}
	tc.actions.StateDelta[k] = v
	return nil
}

// UnsetState clears shared state fields. Only the current agent may clear.
func (tc *Context) UnsetState(keys ...string) error {
	if cur := tc.state.CurrentAgent(); cur != "" && cur != tc.agentID {
		return fmt.Errorf("agent %s cannot write state while %s is active", tc.agentID, cur)
	}
	for _, k := range keys {
		tc.state.Unset(k)
		if tc.actions.StateDelta == nil {
			tc.actions.StateDelta = map[string]any{}
		}
		tc.actions.StateDelta[k] = nil
	}
	return nil
}

// TransferToAgent asks the dispatch loop to hand the conversation to target.
// message is spoken before the target agent takes over.
func (tc *Context) TransferToAgent(target, message string) {
	if message == "" {
		message = fmt.Sprintf("Transferring to %s.", target)
	}
	tc.actions.TransferTo = target
	tc.actions.TransferMessage = message
	tc.LogInfo("tool.transfer.request", "from_agent", tc.agentID, "to_agent", target, "call_id", tc.callID)
}

// Terminate asks the dispatch loop to end the session after speaking message.
func (tc *Context) Terminate(message string) {
	tc.actions.Terminate = true
	tc.actions.FinalMessage = message
	tc.LogInfo("tool.terminate.request", "agent", tc.agentID, "call_id", tc.callID)
}

// Actions returns the flow control requests accumulated so far.
func (tc *Context) Actions() *Actions { return &tc.actions }

// Invoke runs the named action provider. A missing provider yields a
// *core.NotFoundError; provider failures and deadline expiry are wrapped in
// *core.ExternalActionError.
func (tc *Context) Invoke(name string, args map[string]any) (action.Result, error) {
	p, ok := tc.providers.Get(name)
	if !ok {
		return action.Result{}, &core.NotFoundError{Kind: "action", Key: name}
	}
	tc.LogDebug("tool.action.invoke", "action", name, "call_id", tc.callID)
	res, err := p.Invoke(tc.ctx, args)
	if err != nil {
		return action.Result{}, &core.ExternalActionError{Action: name, Err: err}
	}
	return res, nil
}
