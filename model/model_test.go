package model

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/hupe1980/concierge/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMockModelScriptedSteps(t *testing.T) {
	m := NewMockModel("mock").Enqueue(
		MockStep{ToolCalls: []core.ToolCall{Call("transfer_visitor", "{}")}},
		MockStep{Text: "Hello visitor"},
	)
	ctx := context.Background()
	req := Request{Messages: []core.Message{core.NewUserMessage("I'm visiting")}}

	first, err := Collect(ctx, m, req)
	require.NoError(t, err)
	require.Len(t, first.ToolCalls, 1)
	assert.NotEmpty(t, first.ToolCalls[0].ID)
	assert.Equal(t, "tool_calls", first.FinishReason)

	second, err := Collect(ctx, m, req)
	require.NoError(t, err)
	assert.Equal(t, "Hello visitor", second.Text)
	assert.Equal(t, 0, m.Pending())
	assert.Len(t, m.Requests(), 2)
}

func TestMockModelFallbacks(t *testing.T) {
	m := NewMockModel("mock")
	m.AddResponse("hi", "Welcome!")
	ctx := context.Background()

	resp, err := Collect(ctx, m, Request{Messages: []core.Message{core.NewUserMessage("hi")}})
	require.NoError(t, err)
	assert.Equal(t, "Welcome!", resp.Text)

	resp, err = Collect(ctx, m, Request{Messages: []core.Message{core.NewUserMessage("other")}})
	require.NoError(t, err)
	assert.Equal(t, "Mock response to: other", resp.Text)
	require.NotNil(t, resp.Usage)
	assert.Equal(t, resp.Usage.PromptTokens+resp.Usage.CompletionTokens, resp.Usage.TotalTokens)

	toolMsg := core.NewToolResultMessage("main", core.ToolResult{CallID: "c", Status: core.ToolStatusSuccess, Payload: "Door open"})
	resp, err = Collect(ctx, m, Request{Messages: []core.Message{core.NewUserMessage("open"), toolMsg}})
	require.NoError(t, err)
	assert.Equal(t, "Door open", resp.Text)
}

func TestMockModelHandler(t *testing.T) {
	m := NewMockModel("mock")
	m.Handler = func(req Request) (MockStep, bool) {
		if len(req.Tools) == 0 {
			return MockStep{}, false
		}
		return MockStep{Text: req.Tools[0].Function.Name}, true
	}
	ctx := context.Background()
	msgs := []core.Message{core.NewUserMessage("x")}

	resp, err := Collect(ctx, m, Request{Messages: msgs, Tools: []ToolDefinition{{Type: "function", Function: FunctionDefinition{Name: "lookup"}}}})
	require.NoError(t, err)
	assert.Equal(t, "lookup", resp.Text)

	resp, err = Collect(ctx, m, Request{Messages: msgs})
	require.NoError(t, err)
	assert.Equal(t, "Mock response to: x", resp.Text)
}

func TestCollectPropagatesErrors(t *testing.T) {
	boom := errors.New("rate limited")
	m := NewMockModel("mock").Enqueue(MockStep{Err: boom})
	_, err := Collect(context.Background(), m, Request{Messages: []core.Message{core.NewUserMessage("x")}})
	assert.ErrorIs(t, err, boom)

	m.Enqueue(MockStep{Text: "late", Delay: time.Second})
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = Collect(ctx, m, Request{Messages: []core.Message{core.NewUserMessage("x")}})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestTokenUsageAdd(t *testing.T) {
	var u TokenUsage
	u.Add(&TokenUsage{PromptTokens: 3, CompletionTokens: 2, TotalTokens: 5})
	u.Add(nil)
	u.Add(&TokenUsage{PromptTokens: 1, CompletionTokens: 1, TotalTokens: 2})
	assert.Equal(t, TokenUsage{PromptTokens: 4, CompletionTokens: 3, TotalTokens: 7}, u)
}
