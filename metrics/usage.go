package metrics

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Usage is the aggregated usage of a session.
type Usage struct {
	Turns            int            `json:"turns"`
	PromptTokens     int            `json:"prompt_tokens"`
	CompletionTokens int            `json:"completion_tokens"`
	TotalTokens      int            `json:"total_tokens"`
	ToolCalls        int            `json:"tool_calls"`
	ToolErrors       int            `json:"tool_errors"`
	Handoffs         int            `json:"handoffs"`
	TurnsByAgent     map[string]int `json:"turns_by_agent,omitempty"`
}

// String renders a one-line usage summary.
func (u Usage) String() string {
	agents := make([]string, 0, len(u.TurnsByAgent))
	for a := range u.TurnsByAgent {
		agents = append(agents, a)
	}
	sort.Strings(agents)
	parts := make([]string, len(agents))
	for i, a := range agents {
		parts[i] = fmt.Sprintf("%s=%d", a, u.TurnsByAgent[a])
	}
	return fmt.Sprintf("turns=%d tokens=%d (prompt=%d completion=%d) tool_calls=%d tool_errors=%d handoffs=%d agents=[%s]",
		u.Turns, u.TotalTokens, u.PromptTokens, u.CompletionTokens, u.ToolCalls, u.ToolErrors, u.Handoffs, strings.Join(parts, " "))
}

// UsageCollector aggregates exchanges into a Usage summary.
type UsageCollector struct {
	mu    sync.Mutex
	usage Usage
}

// NewUsageCollector creates an empty collector.
func NewUsageCollector() *UsageCollector {
	return &UsageCollector{usage: Usage{TurnsByAgent: map[string]int{}}}
}

// ObserveExchange implements Hook.
func (c *UsageCollector) ObserveExchange(ex Exchange) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.usage.Turns++
	c.usage.PromptTokens += ex.Usage.PromptTokens
	c.usage.CompletionTokens += ex.Usage.CompletionTokens
	c.usage.TotalTokens += ex.Usage.TotalTokens
	c.usage.ToolCalls += ex.ToolCalls
	c.usage.Handoffs += ex.Handoffs
	if ex.Agent != "" {
		c.usage.TurnsByAgent[ex.Agent]++
	}
}

// ObserveTool implements ToolObserver.
func (c *UsageCollector) ObserveTool(s ToolSample) {
	if s.Status != "error" {
		return
	}
	c.mu.Lock()
	c.usage.ToolErrors++
	c.mu.Unlock()
}

// Summary returns a copy of the aggregated usage.
func (c *UsageCollector) Summary() Usage {
	c.mu.Lock()
	defer c.mu.Unlock()
	u := c.usage
	u.TurnsByAgent = make(map[string]int, len(c.usage.TurnsByAgent))
	for k, v := range c.usage.TurnsByAgent {
		u.TurnsByAgent[k] = v
	}
	return u
}

var (
	_ Hook         = (*UsageCollector)(nil)
	_ ToolObserver = (*UsageCollector)(nil)
)
