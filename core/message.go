package core

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Role identifies the author category of a Message.
type Role string

const (
	// RoleSystem marks instructions and injected context.
	RoleSystem Role = "system"
	// RoleUser marks caller input.
	RoleUser Role = "user"
	// RoleAgent marks agent output, including tool call requests.
	RoleAgent Role = "agent"
	// RoleTool marks tool results.
	RoleTool Role = "tool"
)

// ToolStatus is the lifecycle state of a tool invocation.
type ToolStatus string

const (
	ToolStatusPending ToolStatus = "pending"
	ToolStatusSuccess ToolStatus = "success"
	ToolStatusError   ToolStatus = "error"
)

// ToolCall describes a tool invocation requested by an agent.
type ToolCall struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments,omitempty"` // JSON object
}

// ToolResult describes the outcome of a ToolCall. CallID links it back to
// the originating call.
type ToolResult struct {
	CallID  string     `json:"call_id"`
	Name    string     `json:"name"`
	Status  ToolStatus `json:"status"`
	Payload any        `json:"payload,omitempty"`
	Error   string     `json:"error,omitempty"`
}

// Message is a single conversation entry. An agent message carries at most
// one ToolCall; a tool message carries exactly one ToolResult.
type Message struct {
	ID         string      `json:"id"`
	Role       Role        `json:"role"`
	Agent      string      `json:"agent,omitempty"`
	Content    string      `json:"content,omitempty"`
	ToolCall   *ToolCall   `json:"tool_call,omitempty"`
	ToolResult *ToolResult `json:"tool_result,omitempty"`
	Timestamp  time.Time   `json:"timestamp"`
}

// NewID returns a new random identifier.
func NewID() string { return uuid.NewString() }

func newMessage(role Role, agent, content string) Message {
	return Message{ID: NewID(), Role: role, Agent: agent, Content: content, Timestamp: time.Now()}
}

// NewSystemMessage creates a system message.
func NewSystemMessage(text string) Message { return newMessage(RoleSystem, "", text) }

// NewUserMessage creates a caller message.
func NewUserMessage(text string) Message { return newMessage(RoleUser, "", text) }

// NewAgentMessage creates a plain text agent reply.
func NewAgentMessage(agent, text string) Message { return newMessage(RoleAgent, agent, text) }

// NewToolCallMessage creates an agent message requesting call.
func NewToolCallMessage(agent string, call ToolCall) Message {
	m := newMessage(RoleAgent, agent, "")
	c := call
	m.ToolCall = &c
	return m
}

// NewToolResultMessage creates the tool message answering a call. Content is
// set to a textual rendering of the payload (or error) for model adapters.
func NewToolResultMessage(agent string, res ToolResult) Message {
	m := newMessage(RoleTool, agent, RenderPayload(res))
	r := res
	m.ToolResult = &r
	return m
}

// IsToolCall reports whether m requests a tool invocation.
func (m Message) IsToolCall() bool { return m.ToolCall != nil }

// IsToolResult reports whether m answers a tool invocation.
func (m Message) IsToolResult() bool { return m.ToolResult != nil }

// CallID returns the tool call identifier shared by both halves of a
// call/result pair, or "" for ordinary messages.
func (m Message) CallID() string {
	switch {
	case m.ToolCall != nil:
		return m.ToolCall.ID
	case m.ToolResult != nil:
		return m.ToolResult.CallID
	default:
		return ""
	}
}

// RenderPayload converts a tool result into model readable text.
func RenderPayload(res ToolResult) string {
	if res.Status == ToolStatusError || res.Error != "" {
		return "error: " + res.Error
	}
	switch p := res.Payload.(type) {
	case nil:
		return ""
	case string:
		return p
	case fmt.Stringer:
		return p.String()
	}
	b, err := json.Marshal(res.Payload)
	if err != nil {
		return fmt.Sprintf("%v", res.Payload)
	}
	return string(b)
}

// HandoffRecord documents one transition of the active agent.
type HandoffRecord struct {
	From      string    `json:"from"`
	To        string    `json:"to"`
	Reason    string    `json:"reason,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}
