package testutil

import (
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/concierge/core"
)

// HistoryBuilder provides a fluent helper for constructing histories in tests.
// Example:
//
//	msgs := NewHistoryBuilder("main").User("hi").Say("hello").ToolPair("check_identity", "ok").Build()
//
// Messages are authored by the current agent, which Agent switches.
type HistoryBuilder struct {
	agent string
	msgs  []core.Message
}

// NewHistoryBuilder creates a builder authoring agent messages as agentID.
func NewHistoryBuilder(agentID string) *HistoryBuilder { return &HistoryBuilder{agent: agentID} }

// Agent switches the author of subsequent agent and tool messages (chainable).
func (b *HistoryBuilder) Agent(id string) *HistoryBuilder { b.agent = id; return b }

// System appends a system message (chainable).
func (b *HistoryBuilder) System(text string) *HistoryBuilder {
	b.msgs = append(b.msgs, core.NewSystemMessage(text))
	return b
}

// User appends a caller message (chainable).
func (b *HistoryBuilder) User(text string) *HistoryBuilder {
	b.msgs = append(b.msgs, core.NewUserMessage(text))
	return b
}

// Say appends an agent reply (chainable).
func (b *HistoryBuilder) Say(text string) *HistoryBuilder {
	b.msgs = append(b.msgs, core.NewAgentMessage(b.agent, text))
	return b
}

// ToolPair appends a successful call/result pair (chainable).
func (b *HistoryBuilder) ToolPair(name string, payload any) *HistoryBuilder {
	call, res := Pair(b.agent, name, payload)
	b.msgs = append(b.msgs, call, res)
	return b
}

// DanglingCall appends a tool call without a result (chainable).
func (b *HistoryBuilder) DanglingCall(name string) *HistoryBuilder {
	b.msgs = append(b.msgs, core.NewToolCallMessage(b.agent, core.ToolCall{ID: core.NewID(), Name: name}))
	return b
}

// Len returns the number of messages appended so far.
func (b *HistoryBuilder) Len() int { return len(b.msgs) }

// Build returns a copy of the history.
func (b *HistoryBuilder) Build() []core.Message {
	return append([]core.Message(nil), b.msgs...)
}

// Pair returns a tool call message and its successful result.
func Pair(agentID, name string, payload any) (core.Message, core.Message) {
	call := core.NewToolCallMessage(agentID, core.ToolCall{ID: core.NewID(), Name: name})
	res := core.NewToolResultMessage(agentID, core.ToolResult{
		CallID:  call.ToolCall.ID,
		Name:    name,
		Status:  core.ToolStatusSuccess,
		Payload: payload,
	})
	return call, res
}

// AssertNoOrphans fails t when msgs holds a tool call without its result or
// a result without its call.
func AssertNoOrphans(t require.TestingT, msgs []core.Message) {
	if h, ok := t.(interface{ Helper() }); ok {
		h.Helper()
	}
	calls, results := map[string]int{}, map[string]int{}
	for _, m := range msgs {
		if m.IsToolCall() {
			calls[m.CallID()]++
		}
		if m.IsToolResult() {
			results[m.CallID()]++
		}
	}
	for id := range calls {
		require.Contains(t, results, id, "tool call %s without result", id)
	}
	for id := range results {
		require.Contains(t, calls, id, "tool result %s without call", id)
	}
}
