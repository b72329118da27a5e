package handoff

import (
	"context"
	"fmt"

	"github.com/hupe1980/concierge/agent"
	"github.com/hupe1980/concierge/core"
	"github.com/hupe1980/concierge/logging"
	"github.com/hupe1980/concierge/state"
)

// DefaultHandoffCap is the maximum number of handoffs within one user turn.
const DefaultHandoffCap = 5

// Transition describes an accepted active-agent change.
type Transition struct {
	Record core.HandoffRecord
	Agent  *agent.Definition
	// Context is the reconciled history now held by Agent.
	Context []core.Message
	// Message is spoken before Agent takes over.
	Message string
}

// Options configures a Coordinator.
type Options struct {
	Cap    int
	Window int
	Logger logging.Logger
}

// Coordinator owns active-agent transitions. It is driven by the session's
// single turn loop and is not safe for concurrent use.
type Coordinator struct {
	registry   *agent.Registry
	state      *state.State
	histories  *Histories
	reconciler *Reconciler
	entry      string
	cap        int
	logger     logging.Logger

	hops       int
	chain      []string
	terminated bool
}

// NewCoordinator creates a Coordinator whose entry agent is entry.
func NewCoordinator(reg *agent.Registry, st *state.State, h *Histories, entry string, optFns ...func(o *Options)) (*Coordinator, error) {
	opts := Options{Cap: DefaultHandoffCap, Window: DefaultWindow}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Cap <= 0 {
		opts.Cap = DefaultHandoffCap
	}
	if _, err := reg.Lookup(entry); err != nil {
		return nil, err
	}
	return &Coordinator{
		registry:   reg,
		state:      st,
		histories:  h,
		reconciler: NewReconciler(opts.Window),
		entry:      entry,
		cap:        opts.Cap,
		logger:     logging.OrNoOp(opts.Logger),
	}, nil
}

// Entry returns the entry agent id.
func (c *Coordinator) Entry() string { return c.entry }

// Cap returns the per-turn handoff cap.
func (c *Coordinator) Cap() int { return c.cap }

// Hops returns the number of handoffs in the current turn.
func (c *Coordinator) Hops() int { return c.hops }

// Start makes the entry agent active and builds its initial context.
func (c *Coordinator) Start(ctx context.Context) (*Transition, error) {
	def, err := c.registry.Lookup(c.entry)
	if err != nil {
		return nil, err
	}
	c.state.Begin(c.entry)
	msgs, err := c.enter(ctx, def, "")
	if err != nil {
		return nil, err
	}
	c.histories.Replace(def.ID, msgs)
	c.logger.Info("handoff.start", "agent", c.entry)
	return &Transition{Agent: def, Context: msgs}, nil
}

// BeginTurn resets the per-turn handoff counter.
func (c *Coordinator) BeginTurn() {
	c.hops = 0
	c.chain = []string{c.state.CurrentAgent()}
}

// Transfer moves the conversation to target. Unknown targets yield a
// *core.NotFoundError. When the handoff would exceed the per-turn cap a
// *core.HandoffLoopError is returned and the active agent is unchanged.
func (c *Coordinator) Transfer(ctx context.Context, target, message string) (*Transition, error) {
	if c.terminated {
		return nil, fmt.Errorf("session terminated")
	}
	def, err := c.registry.Lookup(target)
	if err != nil {
		return nil, err
	}

	c.hops++
	c.chain = append(c.chain, target)
	if c.hops > c.cap {
		c.logger.Warn("handoff.loop", "cap", c.cap, "chain", c.chain)
		return nil, &core.HandoffLoopError{Cap: c.cap, Chain: append([]string(nil), c.chain...)}
	}

	return c.move(ctx, def, message)
}

// Fallback forces a transition to the entry agent. It is not counted against
// the handoff cap and is recorded with reason apology.
func (c *Coordinator) Fallback(ctx context.Context, apology string) (*Transition, error) {
	def, err := c.registry.Lookup(c.entry)
	if err != nil {
		return nil, err
	}
	c.logger.Warn("handoff.fallback", "from", c.state.CurrentAgent(), "to", c.entry)
	return c.move(ctx, def, apology)
}

// Terminate marks the session as ended.
func (c *Coordinator) Terminate() { c.terminated = true }

// Terminated reports whether Terminate was called.
func (c *Coordinator) Terminated() bool { return c.terminated }

// move commits the handoff only after the target's context is built and its
// enter hooks succeed; on failure the active agent and histories are untouched.
func (c *Coordinator) move(ctx context.Context, def *agent.Definition, message string) (*Transition, error) {
	from := c.state.CurrentAgent()

	msgs, err := c.enter(ctx, def, from)
	if err != nil {
		c.logger.Warn("handoff.enter.failed", "from", from, "to", def.ID, "error", err)
		return nil, err
	}
	rec := c.state.RecordHandoff(from, def.ID, message)
	c.histories.Replace(def.ID, msgs)

	if hl, ok := c.logger.(interface{ LogHandoff(from, to, reason string) }); ok {
		hl.LogHandoff(from, def.ID, message)
	} else {
		c.logger.Info("handoff.transfer", "from", from, "to", def.ID, "reason", message)
	}
	return &Transition{Record: rec, Agent: def, Context: msgs, Message: message}, nil
}

func (c *Coordinator) enter(ctx context.Context, def *agent.Definition, from string) ([]core.Message, error) {
	var prior []core.Message
	if from != "" {
		prior = c.histories.History(from)
	}
	msgs, err := c.reconciler.Reconcile(def, c.state, c.histories.History(def.ID), prior)
	if err != nil {
		return nil, err
	}

	ec := &agent.EnterContext{Agent: def, From: from, State: c.state, Messages: msgs}
	if err := def.Enter(ctx, ec); err != nil {
		return nil, err
	}
	return ec.Messages, nil
}
