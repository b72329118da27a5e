package tool

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/hupe1980/concierge/action"
	"github.com/hupe1980/concierge/core"
	"github.com/hupe1980/concierge/state"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestContext(t *testing.T, agentID string, providers action.Set) (*Context, *state.State) {
	t.Helper()
	st := state.New()
	st.Begin(agentID)
	return NewContext(context.Background(), ContextConfig{
		SessionID: "s-1",
		AgentID:   agentID,
		CallID:    "call-1",
		State:     st,
		Providers: providers,
	}), st
}

// -------------------- FunctionTool Tests --------------------

func TestFunctionTool_Success(t *testing.T) {
	tl := NewFunctionTool("echo", "Echo the unit", map[string]any{
		"type":       "object",
		"properties": map[string]any{"unit": map[string]any{"type": "string"}},
		"required":   []string{"unit"},
	}, func(tc *Context, args map[string]any) (any, error) {
		return "unit " + args["unit"].(string), nil
	})

	tc, _ := newTestContext(t, "main", nil)
	res, err := tl.Call(tc, map[string]any{"unit": "A101"})
	require.NoError(t, err)
	assert.Equal(t, "unit A101", res)
}

func TestFunctionTool_ValidationError(t *testing.T) {
	called := false
	tl := NewFunctionTool("echo", "", map[string]any{
		"type":       "object",
		"properties": map[string]any{"unit": map[string]any{"type": "string"}},
		"required":   []string{"unit"},
	}, func(*Context, map[string]any) (any, error) {
		called = true
		return nil, nil
	})

	tc, _ := newTestContext(t, "main", nil)
	_, err := tl.Call(tc, map[string]any{})
	require.Error(t, err)
	assert.False(t, called)

	var toolErr *ToolError
	require.True(t, errors.As(err, &toolErr))
	assert.Equal(t, CodeValidation, toolErr.Code)

	var vErr *core.ValidationError
	require.True(t, errors.As(err, &vErr))
	assert.Equal(t, "unit", vErr.Field)
}

func TestFunctionTool_ErrorCodes(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code string
	}{
		{"not found", &core.NotFoundError{Kind: "action", Key: "x"}, CodeNotFound},
		{"timeout", &core.ExternalActionError{Action: "x", Err: context.DeadlineExceeded}, CodeTimeout},
		{"external", &core.ExternalActionError{Action: "x", Err: errors.New("down")}, CodeExecution},
		{"plain", errors.New("boom"), CodeExecution},
		{"custom", NewToolError("t", "custom", "CUSTOM"), "CUSTOM"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tl := NewFunctionTool("t", "", nil, func(*Context, map[string]any) (any, error) { return nil, tt.err })
			tc, _ := newTestContext(t, "main", nil)
			_, err := tl.Call(tc, nil)
			var toolErr *ToolError
			require.True(t, errors.As(err, &toolErr))
			assert.Equal(t, tt.code, toolErr.Code)
		})
	}
}

func TestToolErrorFormatting(t *testing.T) {
	err := NewToolError("open_door", "jammed", CodeExecution)
	assert.Equal(t, "tool error [EXECUTION_ERROR] in open_door: jammed", err.Error())
	assert.Equal(t, "tool error in open_door: jammed", (&ToolError{Tool: "open_door", Message: "jammed"}).Error())
}

// -------------------- Context Tests --------------------

func TestContext_SetStateSingleWriter(t *testing.T) {
	tc, st := newTestContext(t, "visitor", nil)
	require.NoError(t, tc.SetState(state.FieldVisitorName, "Bob"))
	assert.Equal(t, "Bob", st.GetString(state.FieldVisitorName))
	assert.Equal(t, map[string]any{state.FieldVisitorName: "Bob"}, tc.Actions().StateDelta)

	st.RecordHandoff("visitor", "main", "")
	assert.Error(t, tc.SetState(state.FieldVisitorName, "Eve"))
	assert.Equal(t, "Bob", st.GetString(state.FieldVisitorName))
}

func TestContext_UnsetState(t *testing.T) {
	tc, st := newTestContext(t, "visitor", nil)
	require.NoError(t, tc.SetState(state.FieldUnit, "A101"))
	require.NoError(t, tc.UnsetState(state.FieldUnit))

	_, ok := st.Get(state.FieldUnit)
	assert.False(t, ok)
	assert.Equal(t, map[string]any{state.FieldUnit: nil}, tc.Actions().StateDelta)

	st.RecordHandoff("visitor", "main", "")
	assert.Error(t, tc.UnsetState(state.FieldUnit))
}

func TestContext_InvokeWrapsProviderFailures(t *testing.T) {
	providers := action.Set{
		"ok": action.ProviderFunc(func(context.Context, map[string]any) (action.Result, error) {
			return action.Result{Success: true, Message: "done"}, nil
		}),
		"slow": action.ProviderFunc(func(ctx context.Context, _ map[string]any) (action.Result, error) {
			<-ctx.Done()
			return action.Result{}, ctx.Err()
		}),
	}

	tc, _ := newTestContext(t, "main", providers)
	res, err := tc.Invoke("ok", nil)
	require.NoError(t, err)
	assert.Equal(t, "done", res.Message)

	_, err = tc.Invoke("missing", nil)
	var nf *core.NotFoundError
	assert.True(t, errors.As(err, &nf))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	slowCtx := NewContext(ctx, ContextConfig{AgentID: "main", Providers: providers})
	_, err = slowCtx.Invoke("slow", nil)
	var ext *core.ExternalActionError
	require.True(t, errors.As(err, &ext))
	assert.True(t, ext.Timeout())
}

// -------------------- Flow control Tests --------------------

func TestTransferTool(t *testing.T) {
	tl := NewTransferTool("visitor", "")
	assert.Equal(t, "transfer_visitor", tl.Name())

	tc, _ := newTestContext(t, "main", nil)
	res, err := tl.Call(tc, nil)
	require.NoError(t, err)

	out := Classify(res, tc.Actions())
	assert.Equal(t, OutcomeHandoff, out.Kind)
	assert.Equal(t, "visitor", out.Target)
	assert.Equal(t, "Transferring to visitor.", out.Message)
}

func TestTransferToAgentTool_RequiresAgent(t *testing.T) {
	tl := NewTransferToAgentTool()
	tc, _ := newTestContext(t, "main", nil)
	_, err := tl.Call(tc, map[string]any{})
	var vErr *core.ValidationError
	assert.True(t, errors.As(err, &vErr))

	_, err = tl.Call(tc, map[string]any{"agent": "rental"})
	require.NoError(t, err)
	assert.Equal(t, "rental", tc.Actions().TransferTo)
}

func TestReturnTool(t *testing.T) {
	tl := NewReturnTool("transfer_back", "Return to the previous agent")

	tc, st := newTestContext(t, "main", nil)
	_, err := tl.Call(tc, nil)
	assert.Error(t, err)

	st.RecordHandoff("main", "visitor", "")
	tc = NewContext(context.Background(), ContextConfig{AgentID: "visitor", State: st})
	_, err = tl.Call(tc, nil)
	require.NoError(t, err)
	assert.Equal(t, "main", tc.Actions().TransferTo)
}

func TestEndSessionToolIsTerminal(t *testing.T) {
	tl := NewEndSessionTool("end_call", "End the call", "Goodbye!")
	tc, _ := newTestContext(t, "maintenance", nil)
	res, err := tl.Call(tc, nil)
	require.NoError(t, err)

	out := Classify(res, tc.Actions())
	assert.Equal(t, OutcomeTerminal, out.Kind)
	assert.Equal(t, "Goodbye!", out.Message)
}

func TestClassifyReplyText(t *testing.T) {
	assert.Equal(t, Outcome{Kind: OutcomeReply, Message: "ok", Payload: "ok"}, Classify("ok", &Actions{}))

	res := action.Result{Success: true, Message: "Door open"}
	assert.Equal(t, "Door open", Classify(res, nil).Message)
	assert.Equal(t, `{"a":1}`, Classify(map[string]int{"a": 1}, nil).Message)

	both := &Actions{TransferTo: "main", Terminate: true, FinalMessage: "bye"}
	assert.Equal(t, OutcomeTerminal, Classify(nil, both).Kind)
}

// -------------------- Collect Tests --------------------

func TestCollectTool_RepromptsUntilComplete(t *testing.T) {
	tl := NewCollectTool("collect_resident", "Collect the resident", []Field{
		{State: state.FieldResidentName, Arg: "name", Prompt: "Please provide the resident's full name."},
		{State: state.FieldUnit, Arg: "unit", Prompt: "Please provide the unit number."},
	}, func(tc *Context) (any, error) {
		return "Recorded " + tc.GetString(state.FieldResidentName) + " in " + tc.GetString(state.FieldUnit), nil
	})

	tc, st := newTestContext(t, "visitor", nil)

	res, err := tl.Call(tc, map[string]any{})
	require.NoError(t, err)
	assert.Equal(t, "Please provide the resident's full name.", res)

	res, err = tl.Call(tc, map[string]any{"name": " Jane Smith "})
	require.NoError(t, err)
	assert.Equal(t, "Please provide the unit number.", res)
	assert.Equal(t, "Jane Smith", st.GetString(state.FieldResidentName))

	res, err = tl.Call(tc, map[string]any{"unit": "B202"})
	require.NoError(t, err)
	assert.Equal(t, "Recorded Jane Smith in B202", res)
}

func TestIsTransfer(t *testing.T) {
	assert.True(t, IsTransfer(NewTransferTool("visitor", "")))
	assert.True(t, IsTransfer(NewTransferToAgentTool()))
	assert.True(t, IsTransfer(NewReturnTool("transfer_back", "")))
	assert.False(t, IsTransfer(NewEndSessionTool("end_call", "", "Bye.")))
	assert.False(t, IsTransfer(NewFunctionTool("x", "", nil, func(*Context, map[string]any) (any, error) { return nil, nil })))
}

func TestTransferToolMessage(t *testing.T) {
	tl := NewTransferTool("visitor", "", func(o *TransferOptions) { o.Message = "Transferring to visitor services" })
	tc, _ := newTestContext(t, "main", nil)
	res, err := tl.Call(tc, nil)
	require.NoError(t, err)
	assert.Equal(t, "Transferring to visitor services", Classify(res, tc.Actions()).Message)
}
