package flow

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/hupe1980/concierge/action"
	"github.com/hupe1980/concierge/agent"
	"github.com/hupe1980/concierge/core"
	"github.com/hupe1980/concierge/handoff"
	"github.com/hupe1980/concierge/metrics"
	"github.com/hupe1980/concierge/model"
	"github.com/hupe1980/concierge/state"
	"github.com/hupe1980/concierge/tool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type harness struct {
	loop  *Loop
	model *model.MockModel
	state *state.State
	hist  *handoff.Histories
	coord *handoff.Coordinator
}

func newHarness(t *testing.T, providers action.Set, defs []*agent.Definition, optFns ...func(o *Options)) *harness {
	t.Helper()
	reg, err := agent.NewRegistry(defs...)
	require.NoError(t, err)
	reg.Freeze()

	st := state.New()
	hist := handoff.NewHistories()
	coord, err := handoff.NewCoordinator(reg, st, hist, defs[0].ID)
	require.NoError(t, err)
	_, err = coord.Start(context.Background())
	require.NoError(t, err)

	m := model.NewMockModel("mock")
	loop := New(Config{
		SessionID:   "s-1",
		Registry:    reg,
		Coordinator: coord,
		Histories:   hist,
		State:       st,
		Providers:   providers,
		Model:       m,
	}, optFns...)
	return &harness{loop: loop, model: m, state: st, hist: hist, coord: coord}
}

func mainAgent(tools ...tool.Tool) *agent.Definition {
	return &agent.Definition{
		ID:          "main",
		Instruction: agent.NewInstructionFromText("Front desk."),
		Persona:     agent.Persona{Name: "Alex", Voice: "alloy"},
		Tools:       tools,
	}
}

func visitorAgent(tools ...tool.Tool) *agent.Definition {
	return &agent.Definition{
		ID:          "visitor",
		Instruction: agent.NewInstructionFromText("Visitors."),
		Persona:     agent.Persona{Name: "Vera", Voice: "shimmer"},
		Tools:       tools,
	}
}

func assertPaired(t *testing.T, msgs []core.Message) {
	t.Helper()
	calls, results := map[string]bool{}, map[string]bool{}
	for _, m := range msgs {
		if m.IsToolCall() {
			calls[m.CallID()] = true
		}
		if m.IsToolResult() {
			results[m.CallID()] = true
		}
	}
	assert.Equal(t, calls, results)
}

func TestRunTurn_PlainReply(t *testing.T) {
	h := newHarness(t, nil, []*agent.Definition{mainAgent()})
	h.model.AddResponse("hello", "Welcome! How can I help?")

	res, err := h.loop.RunTurn(context.Background(), TurnInput{Text: "hello"})
	require.NoError(t, err)
	require.Len(t, res.Replies, 1)
	assert.Equal(t, Reply{AgentID: "main", Text: "Welcome! How can I help?", Voice: "alloy"}, res.Replies[0])
	assert.Equal(t, "main", res.Agent)
	assert.Greater(t, res.Usage.TotalTokens, 0)

	hist := h.hist.History("main")
	assert.Equal(t, core.RoleUser, hist[len(hist)-2].Role)
	assert.Equal(t, core.RoleAgent, hist[len(hist)-1].Role)

	req := h.model.Requests()[0]
	assert.Equal(t, core.RoleSystem, req.Messages[0].Role)
}

func TestRunTurn_ToolReplyIsVoiced(t *testing.T) {
	lookup := tool.NewFunctionTool("list_vacancies", "List vacancies", nil,
		func(tc *tool.Context, _ map[string]any) (any, error) {
			return tc.Invoke(action.ListVacancies, nil)
		}).WithActions(action.ListVacancies)
	providers := action.Set{action.ListVacancies: action.ProviderFunc(func(context.Context, map[string]any) (action.Result, error) {
		return action.Result{Success: true, Message: "Units C303 and D404 are available."}, nil
	})}

	h := newHarness(t, providers, []*agent.Definition{mainAgent(lookup)})
	h.model.Enqueue(model.MockStep{ToolCalls: []core.ToolCall{model.Call("list_vacancies", "")}})

	res, err := h.loop.RunTurn(context.Background(), TurnInput{Text: "any apartments?"})
	require.NoError(t, err)
	assert.Equal(t, "Units C303 and D404 are available.", res.Text())
	assert.Equal(t, 1, res.ToolCalls)
	assert.Equal(t, 1, res.ToolHops)
	assert.Len(t, h.model.Requests(), 2)
	assertPaired(t, h.hist.History("main"))
}

func TestRunTurn_ValidationReprompts(t *testing.T) {
	check := tool.NewFunctionTool("check_identity", "Check a resident", map[string]any{
		"type": "object",
		"properties": map[string]any{
			"name": map[string]any{"type": "string"},
			"unit": map[string]any{"type": "string"},
		},
		"required": []string{"name", "unit"},
	}, func(*tool.Context, map[string]any) (any, error) {
		t.Fatal("must not run")
		return nil, nil
	})

	h := newHarness(t, nil, []*agent.Definition{mainAgent(check)})
	h.model.Enqueue(model.MockStep{ToolCalls: []core.ToolCall{model.Call("check_identity", `{"name":"John Doe"}`)}})

	res, err := h.loop.RunTurn(context.Background(), TurnInput{Text: "I'm John Doe"})
	require.NoError(t, err)
	assert.Equal(t, "Please provide the unit.", res.Text())
	assert.Len(t, h.model.Requests(), 1)
	assertPaired(t, h.hist.History("main"))
}

func TestRunTurn_MalformedArguments(t *testing.T) {
	echo := tool.NewFunctionTool("echo", "", nil, func(*tool.Context, map[string]any) (any, error) { return "x", nil })
	h := newHarness(t, nil, []*agent.Definition{mainAgent(echo)})
	h.model.Enqueue(model.MockStep{ToolCalls: []core.ToolCall{model.Call("echo", `{not json`)}})

	res, err := h.loop.RunTurn(context.Background(), TurnInput{Text: "hi"})
	require.NoError(t, err)
	assert.Equal(t, "Sorry, could you repeat that?", res.Text())
}

func TestRunTurn_UnknownToolRejected(t *testing.T) {
	h := newHarness(t, nil, []*agent.Definition{mainAgent()})
	h.model.Enqueue(model.MockStep{ToolCalls: []core.ToolCall{model.Call("open_door", ""), model.Call("other", "")}})

	res, err := h.loop.RunTurn(context.Background(), TurnInput{Text: "open the door"})
	require.NoError(t, err)
	assert.Equal(t, DefaultRejection, res.Text())
	assert.Equal(t, 0, res.ToolCalls)

	hist := h.hist.History("main")
	assertPaired(t, hist)
	var errs []string
	for _, m := range hist {
		if m.IsToolResult() {
			errs = append(errs, m.ToolResult.Error)
		}
	}
	require.Len(t, errs, 2)
	assert.Contains(t, errs[0], `tool "open_door" not found`)
}

func TestRunTurn_ProviderTimeoutIsSpokenFailure(t *testing.T) {
	notify := tool.NewFunctionTool("notify_resident", "", nil, func(tc *tool.Context, _ map[string]any) (any, error) {
		return tc.Invoke(action.NotifyResident, nil)
	}).WithActions(action.NotifyResident)
	providers := action.Set{action.NotifyResident: action.ProviderFunc(func(ctx context.Context, _ map[string]any) (action.Result, error) {
		<-ctx.Done()
		return action.Result{}, ctx.Err()
	})}

	var samples []metrics.ToolSample
	h := newHarness(t, providers, []*agent.Definition{mainAgent(notify)}, func(o *Options) {
		o.ToolTimeout = 20 * time.Millisecond
		o.ObserveTool = func(s metrics.ToolSample) { samples = append(samples, s) }
	})
	h.model.Enqueue(model.MockStep{ToolCalls: []core.ToolCall{model.Call("notify_resident", "")}})

	res, err := h.loop.RunTurn(context.Background(), TurnInput{Text: "tell John I'm here"})
	require.NoError(t, err)
	assert.Equal(t, DefaultFailure, res.Text())
	assert.Equal(t, "main", res.Agent)
	require.Len(t, samples, 1)
	assert.Equal(t, "error", samples[0].Status)
	assert.Equal(t, "notify_resident", samples[0].Tool)
}

func TestRunTurn_ExternalFailure(t *testing.T) {
	door := tool.NewFunctionTool("open_door", "", nil, func(tc *tool.Context, _ map[string]any) (any, error) {
		return tc.Invoke(action.OpenDoor, nil)
	})
	providers := action.Set{action.OpenDoor: action.ProviderFunc(func(context.Context, map[string]any) (action.Result, error) {
		return action.Result{}, errors.New("relay offline")
	})}
	h := newHarness(t, providers, []*agent.Definition{mainAgent(door)})
	h.model.Enqueue(model.MockStep{ToolCalls: []core.ToolCall{model.Call("open_door", "")}})

	res, err := h.loop.RunTurn(context.Background(), TurnInput{Text: "open"})
	require.NoError(t, err)
	assert.Equal(t, DefaultFailure, res.Text())
}

func TestRunTurn_HandoffContinuesWithTarget(t *testing.T) {
	h := newHarness(t, nil, []*agent.Definition{
		mainAgent(tool.NewTransferTool("visitor", "")),
		visitorAgent(tool.NewReturnTool("transfer_back", "")),
	})
	h.model.Enqueue(
		model.MockStep{ToolCalls: []core.ToolCall{model.Call("transfer_visitor", "")}},
		model.MockStep{Text: "Hi, who are you visiting?"},
	)

	res, err := h.loop.RunTurn(context.Background(), TurnInput{Text: "I'm here to see John Doe"})
	require.NoError(t, err)
	require.Len(t, res.Replies, 2)
	assert.Equal(t, Reply{AgentID: "main", Text: "Transferring to visitor.", Voice: "alloy"}, res.Replies[0])
	assert.Equal(t, Reply{AgentID: "visitor", Text: "Hi, who are you visiting?", Voice: "shimmer"}, res.Replies[1])
	assert.Equal(t, "visitor", res.Agent)
	assert.Equal(t, 0, res.ToolHops, "transfers do not count as tool hops")
	require.Len(t, res.Handoffs, 1)
	assert.Equal(t, "main", h.state.PreviousAgent())

	// visitor saw the caller's request through the reconciled window
	reqs := h.model.Requests()
	require.Len(t, reqs, 2)
	assert.Equal(t, "I'm here to see John Doe", model.LastUserText(reqs[1].Messages))
	assert.Equal(t, "transfer_back", reqs[1].Tools[0].Function.Name)
	assertPaired(t, reqs[1].Messages)
}

func TestRunTurn_UnknownTransferTarget(t *testing.T) {
	h := newHarness(t, nil, []*agent.Definition{mainAgent(tool.NewTransferToAgentTool())})
	h.model.Enqueue(model.MockStep{ToolCalls: []core.ToolCall{model.Call("transfer_to_agent", `{"agent":"billing"}`)}})

	res, err := h.loop.RunTurn(context.Background(), TurnInput{Text: "billing please"})
	require.NoError(t, err)
	assert.Equal(t, "Sorry, I can't transfer you to billing.", res.Text())
	assert.Equal(t, "main", h.state.CurrentAgent())
}

func TestRunTurn_HandoffLoopFallsBackToEntry(t *testing.T) {
	h := newHarness(t, nil, []*agent.Definition{
		mainAgent(tool.NewTransferTool("visitor", "")),
		visitorAgent(tool.NewTransferTool("main", "")),
	})
	h.model.Handler = func(req model.Request) (model.MockStep, bool) {
		return model.MockStep{ToolCalls: []core.ToolCall{model.Call(req.Tools[0].Function.Name, "")}}, true
	}

	res, err := h.loop.RunTurn(context.Background(), TurnInput{Text: "ping pong"})
	require.NoError(t, err)
	assert.Equal(t, "main", res.Agent)
	assert.Len(t, res.Handoffs, handoff.DefaultHandoffCap+1)
	last := res.Handoffs[len(res.Handoffs)-1]
	assert.Equal(t, DefaultApology, last.Reason)
	assert.Equal(t, "main", last.To)

	lastReply := res.Replies[len(res.Replies)-1]
	assert.Equal(t, Reply{AgentID: "main", Text: DefaultApology, Voice: "alloy"}, lastReply)

	// the next turn has a fresh budget
	h.model.Handler = nil
	h.model.AddResponse("hello again", "Hello!")
	res, err = h.loop.RunTurn(context.Background(), TurnInput{Text: "hello again"})
	require.NoError(t, err)
	assert.Equal(t, "Hello!", res.Text())
}

func TestRunTurn_TerminalEndsSession(t *testing.T) {
	h := newHarness(t, nil, []*agent.Definition{mainAgent(tool.NewEndSessionTool("end_call", "", "Goodbye!"))})
	h.model.Enqueue(model.MockStep{ToolCalls: []core.ToolCall{model.Call("end_call", ""), model.Call("end_call", "")}})

	res, err := h.loop.RunTurn(context.Background(), TurnInput{Text: "bye"})
	require.NoError(t, err)
	assert.True(t, res.Terminated)
	assert.Equal(t, "Goodbye!", res.Text())
	assert.True(t, h.coord.Terminated())
	assertPaired(t, h.hist.History("main"))

	_, err = h.loop.RunTurn(context.Background(), TurnInput{Text: "hello?"})
	assert.ErrorIs(t, err, ErrTerminated)
}

func TestRunTurn_ToolHopCap(t *testing.T) {
	n := 0
	count := tool.NewFunctionTool("count", "", nil, func(*tool.Context, map[string]any) (any, error) {
		n++
		return fmt.Sprintf("count %d", n), nil
	})
	h := newHarness(t, nil, []*agent.Definition{mainAgent(count)})
	h.model.Handler = func(model.Request) (model.MockStep, bool) {
		return model.MockStep{ToolCalls: []core.ToolCall{model.Call("count", "")}}, true
	}

	res, err := h.loop.RunTurn(context.Background(), TurnInput{Text: "count forever"})
	require.NoError(t, err)
	assert.True(t, res.CapReached)
	assert.Equal(t, DefaultMaxToolHops, res.ToolHops)
	assert.Equal(t, DefaultMaxToolHops, n)
	assert.Equal(t, "count 5", res.Text())
	assertPaired(t, h.hist.History("main"))
}

func TestRunTurn_PanickingToolIsRecovered(t *testing.T) {
	boom := tool.NewFunctionTool("boom", "", nil, func(*tool.Context, map[string]any) (any, error) {
		panic("kaboom")
	})
	h := newHarness(t, nil, []*agent.Definition{mainAgent(boom)})
	h.model.Enqueue(
		model.MockStep{ToolCalls: []core.ToolCall{model.Call("boom", "")}},
		model.MockStep{Text: "Something went wrong, sorry."},
	)

	res, err := h.loop.RunTurn(context.Background(), TurnInput{Text: "do it"})
	require.NoError(t, err)
	assert.Equal(t, "Something went wrong, sorry.", res.Text())

	reqs := h.model.Requests()
	last := reqs[1].Messages[len(reqs[1].Messages)-1]
	require.True(t, last.IsToolResult())
	assert.Equal(t, core.ToolStatusError, last.ToolResult.Status)
	assert.Contains(t, last.ToolResult.Error, "kaboom")
}

func TestRunTurn_SideEffectSurvivesCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var toolCtxErr error
	ticket := tool.NewFunctionTool("log_ticket", "", nil, func(tc *tool.Context, _ map[string]any) (any, error) {
		cancel()
		toolCtxErr = tc.Context().Err()
		return "Ticket logged.", nil
	})
	h := newHarness(t, nil, []*agent.Definition{mainAgent(ticket)})
	h.model.Enqueue(model.MockStep{ToolCalls: []core.ToolCall{model.Call("log_ticket", "")}})

	res, err := h.loop.RunTurn(ctx, TurnInput{Text: "my sink leaks"})
	require.ErrorIs(t, err, context.Canceled)
	assert.NoError(t, toolCtxErr)
	assert.Equal(t, 1, res.ToolCalls)
	assert.Len(t, h.model.Requests(), 1)
	assertPaired(t, h.hist.History("main"))
}

func TestRunTurn_ModelErrorPropagates(t *testing.T) {
	h := newHarness(t, nil, []*agent.Definition{mainAgent()})
	h.model.Enqueue(model.MockStep{Err: errors.New("rate limited")})

	_, err := h.loop.RunTurn(context.Background(), TurnInput{Text: "hi"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "reasoning step of agent main")
}

func TestRunTurn_AgentModelOverride(t *testing.T) {
	own := model.NewMockModel("own")
	own.AddResponse("hi", "from own model")
	def := mainAgent()
	def.Model = own

	h := newHarness(t, nil, []*agent.Definition{def})
	res, err := h.loop.RunTurn(context.Background(), TurnInput{Text: "hi"})
	require.NoError(t, err)
	assert.Equal(t, "from own model", res.Text())
	assert.Empty(t, h.model.Requests())
}

func TestChainOrderAndCustomInterceptor(t *testing.T) {
	var (
		mu    sync.Mutex
		trace []string
	)
	mark := func(name string) Interceptor {
		return func(next Executor) Executor {
			return func(ctx context.Context, call Call) Envelope {
				mu.Lock()
				trace = append(trace, name)
				mu.Unlock()
				return next(ctx, call)
			}
		}
	}
	exec := Chain(func(context.Context, Call) Envelope {
		trace = append(trace, "base")
		return Envelope{Status: core.ToolStatusSuccess}
	}, mark("outer"), mark("inner"))
	exec(context.Background(), Call{})
	assert.Equal(t, []string{"outer", "inner", "base"}, trace)

	trace = nil
	echo := tool.NewFunctionTool("echo", "", nil, func(*tool.Context, map[string]any) (any, error) { return "ok", nil })
	h := newHarness(t, nil, []*agent.Definition{mainAgent(echo)}, func(o *Options) {
		o.Interceptors = []Interceptor{mark("custom")}
	})
	h.model.Enqueue(model.MockStep{ToolCalls: []core.ToolCall{model.Call("echo", "")}})
	_, err := h.loop.RunTurn(context.Background(), TurnInput{Text: "x"})
	require.NoError(t, err)
	assert.Equal(t, []string{"custom"}, trace)
}

func TestTimeoutWrapsDeadline(t *testing.T) {
	exec := Chain(func(ctx context.Context, call Call) Envelope {
		<-ctx.Done()
		return Envelope{Status: core.ToolStatusError, Err: ctx.Err()}
	}, Timeout(10*time.Millisecond))

	env := exec(context.Background(), Call{ToolCall: core.ToolCall{Name: "slow"}})
	var ext *core.ExternalActionError
	require.ErrorAs(t, env.Err, &ext)
	assert.True(t, ext.Timeout())
	assert.Equal(t, "slow", ext.Action)
}

func TestTimeoutIsCooperative(t *testing.T) {
	var sawDeadline bool
	exec := Chain(func(ctx context.Context, call Call) Envelope {
		_, sawDeadline = ctx.Deadline()
		time.Sleep(30 * time.Millisecond)
		return Envelope{Status: core.ToolStatusSuccess}
	}, Timeout(5*time.Millisecond))

	env := exec(context.Background(), Call{ToolCall: core.ToolCall{Name: "stubborn"}})
	assert.True(t, sawDeadline)
	assert.Equal(t, core.ToolStatusSuccess, env.Status)
	assert.NoError(t, env.Err)
}

func TestRepromptFor(t *testing.T) {
	assert.Equal(t, "Please provide the resident name.", repromptFor(&core.ValidationError{Field: "resident_name"}))
	assert.True(t, strings.HasPrefix(repromptFor(&core.ValidationError{}), "Sorry"))
}
