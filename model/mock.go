package model

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/hupe1980/concierge/core"
)

// MockStep scripts one reasoning step of a MockModel.
type MockStep struct {
	Text      string
	ToolCalls []core.ToolCall
	Err       error
	Delay     time.Duration
	Usage     *TokenUsage
}

// Call is a convenience constructor for a scripted tool call.
func Call(name, arguments string) core.ToolCall {
	return core.ToolCall{Name: name, Arguments: arguments}
}

// MockModel is a scripted in-memory Model for tests and offline demos.
//
// Each Generate consumes the next queued step. With an empty queue it falls
// back to: a Handler result if set; a canned response registered for the last
// caller utterance; the text of a trailing tool result; or "Mock response to: <input>".
type MockModel struct {
	info Info

	mu        sync.Mutex
	script    []MockStep
	responses map[string]string
	requests  []Request

	// Handler computes a step for requests when the queue is empty. Returning
	// false falls through to the default behaviour.
	Handler func(req Request) (MockStep, bool)
}

// NewMockModel constructs a MockModel with tool support enabled.
func NewMockModel(name string) *MockModel {
	return &MockModel{
		info:      Info{Name: name, Provider: "mock", SupportsTools: true},
		responses: map[string]string{},
	}
}

// Enqueue appends scripted steps.
func (m *MockModel) Enqueue(steps ...MockStep) *MockModel {
	m.mu.Lock()
	m.script = append(m.script, steps...)
	m.mu.Unlock()
	return m
}

// AddResponse registers a canned completion for a caller utterance.
func (m *MockModel) AddResponse(prompt, response string) {
	m.mu.Lock()
	m.responses[prompt] = response
	m.mu.Unlock()
}

// Requests returns every request received so far.
func (m *MockModel) Requests() []Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Request(nil), m.requests...)
}

// Pending returns the number of unconsumed scripted steps.
func (m *MockModel) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.script)
}

func (m *MockModel) next(req Request) MockStep {
	m.mu.Lock()
	m.requests = append(m.requests, req)
	if len(m.script) > 0 {
		step := m.script[0]
		m.script = m.script[1:]
		m.mu.Unlock()
		return step
	}
	handler := m.Handler
	m.mu.Unlock()

	if handler != nil {
		if step, ok := handler(req); ok {
			return step
		}
	}

	if len(req.Messages) == 0 {
		return MockStep{Err: fmt.Errorf("no messages provided")}
	}
	last := req.Messages[len(req.Messages)-1]
	if last.Role == core.RoleTool {
		return MockStep{Text: last.Content}
	}
	input := LastUserText(req.Messages)

	m.mu.Lock()
	canned := m.responses[input]
	m.mu.Unlock()
	if canned != "" {
		return MockStep{Text: canned}
	}
	return MockStep{Text: fmt.Sprintf("Mock response to: %s", input)}
}

// Generate implements Model.
func (m *MockModel) Generate(ctx context.Context, req Request) (<-chan Response, <-chan error) {
	respCh := make(chan Response, 1)
	errCh := make(chan error, 1)

	go func() {
		defer close(respCh)
		defer close(errCh)

		step := m.next(req)
		if step.Delay > 0 {
			select {
			case <-ctx.Done():
				errCh <- ctx.Err()
				return
			case <-time.After(step.Delay):
			}
		}
		if step.Err != nil {
			errCh <- step.Err
			return
		}

		calls := make([]core.ToolCall, len(step.ToolCalls))
		for i, c := range step.ToolCalls {
			if c.ID == "" {
				c.ID = core.NewID()
			}
			calls[i] = c
		}
		usage := step.Usage
		if usage == nil {
			usage = estimateUsage(req, step.Text)
		}
		finish := "stop"
		if len(calls) > 0 {
			finish = "tool_calls"
		}
		respCh <- Response{
			ID:           core.NewID(),
			Text:         step.Text,
			ToolCalls:    calls,
			FinishReason: finish,
			Usage:        usage,
		}
	}()
	return respCh, errCh
}

// Info implements Model.
func (m *MockModel) Info() Info { return m.info }

// LastUserText returns the content of the most recent caller message.
func LastUserText(msgs []core.Message) string {
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role == core.RoleUser {
			return msgs[i].Content
		}
	}
	return ""
}

func estimateUsage(req Request, completion string) *TokenUsage {
	prompt := 0
	for _, msg := range req.Messages {
		prompt += len(strings.Fields(msg.Content))
	}
	out := len(strings.Fields(completion))
	return &TokenUsage{PromptTokens: prompt, CompletionTokens: out, TotalTokens: prompt + out}
}

var _ Model = (*MockModel)(nil)
