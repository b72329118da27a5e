package metrics

import (
	"time"

	"github.com/hupe1980/concierge/model"
)

// Exchange is one completed user turn.
type Exchange struct {
	SessionID  string
	Agent      string // active agent at the end of the turn
	Input      string
	Replies    []string
	ToolCalls  int
	Handoffs   int
	Usage      model.TokenUsage
	Duration   time.Duration
	Terminated bool
	Timestamp  time.Time
}

// ToolSample is one tool execution.
type ToolSample struct {
	Agent    string
	Tool     string
	Status   string
	Duration time.Duration
}

// Hook receives completed exchanges.
type Hook interface {
	ObserveExchange(ex Exchange)
}

// ToolObserver is implemented by hooks that also want per-tool samples.
type ToolObserver interface {
	ObserveTool(s ToolSample)
}

// HookFunc adapts a function to Hook.
type HookFunc func(ex Exchange)

// ObserveExchange implements Hook.
func (f HookFunc) ObserveExchange(ex Exchange) { f(ex) }

// Multi fans out to several hooks.
type Multi []Hook

// ObserveExchange implements Hook.
func (m Multi) ObserveExchange(ex Exchange) {
	for _, h := range m {
		h.ObserveExchange(ex)
	}
}

// ObserveTool implements ToolObserver for members that support it.
func (m Multi) ObserveTool(s ToolSample) {
	for _, h := range m {
		if to, ok := h.(ToolObserver); ok {
			to.ObserveTool(s)
		}
	}
}

var (
	_ Hook         = Multi(nil)
	_ ToolObserver = Multi(nil)
)
