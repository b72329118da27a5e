package flow

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/hupe1980/concierge/action"
	"github.com/hupe1980/concierge/agent"
	"github.com/hupe1980/concierge/core"
	"github.com/hupe1980/concierge/handoff"
	"github.com/hupe1980/concierge/internal/util"
	"github.com/hupe1980/concierge/logging"
	"github.com/hupe1980/concierge/metrics"
	"github.com/hupe1980/concierge/model"
	"github.com/hupe1980/concierge/state"
	"github.com/hupe1980/concierge/tool"
)

// Defaults of a Loop.
const (
	DefaultMaxToolHops = 5
	DefaultToolTimeout = 10 * time.Second
	DefaultApology     = "I'm sorry, I got a little lost there. Let me take you back to the front desk."
	DefaultRejection   = "Sorry, I can't help with that."
	DefaultFailure     = "Sorry, I couldn't complete that right now. Please try again in a moment."
)

// ErrTerminated is returned by RunTurn once the session has ended.
var ErrTerminated = errors.New("session terminated")

// Reply is one utterance produced during a turn.
type Reply struct {
	AgentID string
	Text    string
	Voice   string
}

// TurnInput is a caller utterance.
type TurnInput struct {
	Text string
}

// TurnResult reports what happened during a turn.
type TurnResult struct {
	Replies    []Reply
	Agent      string // active agent after the turn
	Handoffs   []core.HandoffRecord
	ToolCalls  int
	ToolHops   int
	CapReached bool
	Terminated bool
	Usage      model.TokenUsage
}

// Text joins the reply texts.
func (r *TurnResult) Text() string {
	parts := make([]string, len(r.Replies))
	for i, rep := range r.Replies {
		parts[i] = rep.Text
	}
	return strings.Join(parts, " ")
}

// Config carries the session collaborators of a Loop.
type Config struct {
	SessionID   string
	Registry    *agent.Registry
	Coordinator *handoff.Coordinator
	Histories   *handoff.Histories
	State       *state.State
	Providers   action.Set
	// Model is used by agents without their own model.
	Model model.Model
}

// Options configures a Loop.
type Options struct {
	MaxToolHops int
	ToolTimeout time.Duration
	// Interceptors wrap the default chain (logging, metrics, timeout, recover).
	Interceptors []Interceptor
	// ObserveTool receives a sample for every tool execution.
	ObserveTool func(metrics.ToolSample)
	Logger      logging.Logger
	Apology     string
	Rejection   string
	Failure     string
}

// Loop runs the dispatch cycle of a session. It is driven by one turn at a
// time and is not safe for concurrent use.
type Loop struct {
	cfg    Config
	opts   Options
	exec   Executor
	logger logging.Logger
}

// New creates a Loop.
func New(cfg Config, optFns ...func(o *Options)) *Loop {
	opts := Options{
		MaxToolHops: DefaultMaxToolHops,
		ToolTimeout: DefaultToolTimeout,
		Apology:     DefaultApology,
		Rejection:   DefaultRejection,
		Failure:     DefaultFailure,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.MaxToolHops <= 0 {
		opts.MaxToolHops = DefaultMaxToolHops
	}

	l := &Loop{cfg: cfg, opts: opts, logger: logging.OrNoOp(opts.Logger)}

	interceptors := append([]Interceptor(nil), opts.Interceptors...)
	interceptors = append(interceptors,
		Logging(l.logger),
		Metrics(opts.ObserveTool),
		Timeout(opts.ToolTimeout),
		Recover(l.logger),
	)
	l.exec = Chain(l.invoke, interceptors...)
	return l
}

// RunTurn processes one caller utterance with the active agent.
func (l *Loop) RunTurn(ctx context.Context, in TurnInput) (*TurnResult, error) {
	if l.cfg.Coordinator.Terminated() {
		return nil, ErrTerminated
	}
	l.cfg.Coordinator.BeginTurn()

	res := &TurnResult{}
	t := &turn{res: res}
	l.cfg.Histories.Append(l.cfg.State.CurrentAgent(), core.NewUserMessage(in.Text))

	for {
		def, err := l.cfg.Registry.Lookup(l.cfg.State.CurrentAgent())
		if err != nil {
			return res, err
		}

		resp, err := l.reason(ctx, def)
		if err != nil {
			res.Agent = def.ID
			return res, err
		}
		res.Usage.Add(resp.Usage)

		if resp.Text != "" {
			l.say(t, def, resp.Text)
		}
		if len(resp.ToolCalls) == 0 {
			break
		}

		more, err := l.dispatch(ctx, t, def, resp.ToolCalls)
		if err != nil {
			res.Agent = l.cfg.State.CurrentAgent()
			return res, err
		}
		if !more {
			break
		}
	}

	res.Agent = l.cfg.State.CurrentAgent()
	return res, nil
}

type turn struct {
	res       *TurnResult
	lastReply string
}

func (l *Loop) reason(ctx context.Context, def *agent.Definition) (model.Response, error) {
	m := def.Model
	if m == nil {
		m = l.cfg.Model
	}
	req := model.Request{
		Messages: l.cfg.Histories.History(def.ID),
		Tools:    def.ToolDefinitions(),
	}

	start := time.Now()
	resp, err := model.Collect(ctx, m, req)
	tokens := 0
	if resp.Usage != nil {
		tokens = resp.Usage.TotalTokens
	}
	if ml, ok := l.logger.(interface {
		LogModelCall(model string, tokens int, dur time.Duration, err error)
	}); ok {
		ml.LogModelCall(m.Info().Name, tokens, time.Since(start), err)
	}
	if err != nil {
		return model.Response{}, fmt.Errorf("reasoning step of agent %s: %w", def.ID, err)
	}
	return resp, nil
}

// dispatch executes the tool calls of one reasoning step in order. It
// reports whether another reasoning step should run.
func (l *Loop) dispatch(ctx context.Context, t *turn, def *agent.Definition, calls []core.ToolCall) (bool, error) {
	for i, call := range calls {
		rest := calls[i+1:]

		tl, ok := def.Tool(call.Name)
		if !ok {
			l.record(def.ID, call, Envelope{Status: core.ToolStatusError, Err: &core.NotFoundError{Kind: "tool", Key: call.Name}})
			l.skip(def.ID, rest, "not executed")
			l.logger.Warn("flow.tool.unknown", "agent", def.ID, "tool", call.Name)
			l.say(t, def, l.opts.Rejection)
			return false, nil
		}

		args, err := util.DecodeArguments(call.Arguments)
		if err != nil {
			vErr := &core.ValidationError{Field: "arguments", Message: err.Error()}
			l.record(def.ID, call, Envelope{Status: core.ToolStatusError, Err: vErr})
			l.skip(def.ID, rest, "not executed")
			l.say(t, def, repromptFor(vErr))
			return false, nil
		}

		if !tool.IsTransfer(tl) {
			if t.res.ToolHops >= l.opts.MaxToolHops {
				t.res.CapReached = true
				l.logger.Warn("flow.tool_hops.exceeded", "agent", def.ID, "cap", l.opts.MaxToolHops)
				l.skip(def.ID, calls[i:], "tool limit reached")
				l.repeatLastReply(t, def)
				return false, nil
			}
			t.res.ToolHops++
		}
		t.res.ToolCalls++

		env := l.exec(ctx, Call{Agent: def, Tool: tl, ToolCall: call, Args: args})
		l.record(def.ID, call, env)

		if env.Err != nil {
			var (
				ext  *core.ExternalActionError
				vErr *core.ValidationError
			)
			switch {
			case errors.As(env.Err, &ext):
				l.skip(def.ID, rest, "not executed")
				l.say(t, def, l.opts.Failure)
				return false, nil
			case errors.As(env.Err, &vErr):
				l.skip(def.ID, rest, "not executed")
				l.say(t, def, repromptFor(vErr))
				return false, nil
			}
			// Other failures are left to the agent, which sees the error result.
		} else {
			switch env.Outcome.Kind {
			case tool.OutcomeTerminal:
				l.skip(def.ID, rest, "session ended")
				if env.Outcome.Message != "" {
					l.say(t, def, env.Outcome.Message)
				}
				l.cfg.Coordinator.Terminate()
				t.res.Terminated = true
				return false, nil
			case tool.OutcomeHandoff:
				l.skip(def.ID, rest, "conversation transferred")
				return l.handoff(ctx, t, def, env.Outcome)
			default:
				if env.Outcome.Message != "" {
					t.lastReply = env.Outcome.Message
				}
			}
		}

		if err := ctx.Err(); err != nil {
			l.skip(def.ID, rest, "interrupted")
			return false, err
		}
	}
	return true, nil
}

func (l *Loop) handoff(ctx context.Context, t *turn, from *agent.Definition, out tool.Outcome) (bool, error) {
	tr, err := l.cfg.Coordinator.Transfer(ctx, out.Target, out.Message)
	if err != nil {
		var (
			loopErr *core.HandoffLoopError
			nf      *core.NotFoundError
		)
		switch {
		case errors.As(err, &loopErr):
			fb, ferr := l.cfg.Coordinator.Fallback(ctx, l.opts.Apology)
			if ferr != nil {
				return false, ferr
			}
			t.res.Handoffs = append(t.res.Handoffs, fb.Record)
			l.say(t, fb.Agent, l.opts.Apology)
			return false, nil
		case errors.As(err, &nf):
			l.logger.Warn("flow.handoff.unknown_target", "agent", from.ID, "target", out.Target)
			l.say(t, from, fmt.Sprintf("Sorry, I can't transfer you to %s.", out.Target))
			return false, nil
		default:
			return false, err
		}
	}

	t.res.Handoffs = append(t.res.Handoffs, tr.Record)
	if tr.Message != "" {
		t.res.Replies = append(t.res.Replies, Reply{AgentID: from.ID, Text: tr.Message, Voice: from.Persona.Voice})
	}
	if err := ctx.Err(); err != nil {
		return false, err
	}
	return true, nil
}

func (l *Loop) invoke(ctx context.Context, call Call) Envelope {
	start := time.Now()
	logger := l.logger
	if sl, ok := logger.(*logging.SessionLogger); ok {
		logger = sl.WithAgent(call.Agent.ID)
	}
	tc := tool.NewContext(ctx, tool.ContextConfig{
		SessionID: l.cfg.SessionID,
		AgentID:   call.Agent.ID,
		CallID:    call.ToolCall.ID,
		State:     l.cfg.State,
		Providers: l.cfg.Providers,
		Logger:    logger,
	})

	result, err := call.Tool.Call(tc, call.Args)
	if err != nil {
		return Envelope{Status: core.ToolStatusError, Err: err, Duration: time.Since(start)}
	}
	return Envelope{
		Status:   core.ToolStatusSuccess,
		Outcome:  tool.Classify(result, tc.Actions()),
		Duration: time.Since(start),
	}
}

func (l *Loop) say(t *turn, def *agent.Definition, text string) {
	l.cfg.Histories.Append(def.ID, core.NewAgentMessage(def.ID, text))
	t.res.Replies = append(t.res.Replies, Reply{AgentID: def.ID, Text: text, Voice: def.Persona.Voice})
}

// repeatLastReply voices the last tool result of the turn unless it was
// already spoken.
func (l *Loop) repeatLastReply(t *turn, def *agent.Definition) {
	if t.lastReply == "" {
		return
	}
	if n := len(t.res.Replies); n > 0 && t.res.Replies[n-1].Text == t.lastReply {
		return
	}
	l.say(t, def, t.lastReply)
}

func (l *Loop) record(agentID string, call core.ToolCall, env Envelope) {
	res := core.ToolResult{CallID: call.ID, Name: call.Name, Status: env.Status, Payload: env.Outcome.Payload}
	if env.Err != nil {
		res.Error = env.Err.Error()
	}
	l.cfg.Histories.Append(agentID,
		core.NewToolCallMessage(agentID, call),
		core.NewToolResultMessage(agentID, res),
	)
}

func (l *Loop) skip(agentID string, calls []core.ToolCall, reason string) {
	for _, call := range calls {
		l.record(agentID, call, Envelope{Status: core.ToolStatusError, Err: errors.New(reason)})
	}
}

func repromptFor(err *core.ValidationError) string {
	if err.Field == "" || err.Field == "arguments" {
		return "Sorry, could you repeat that?"
	}
	return fmt.Sprintf("Please provide the %s.", strings.ReplaceAll(err.Field, "_", " "))
}
