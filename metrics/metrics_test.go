package metrics

import (
	"sync"
	"testing"
	"time"

	"github.com/hupe1980/concierge/model"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUsageCollector(t *testing.T) {
	c := NewUsageCollector()
	c.ObserveExchange(Exchange{Agent: "main", ToolCalls: 1, Usage: model.TokenUsage{PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15}})
	c.ObserveExchange(Exchange{Agent: "visitor", Handoffs: 1, Usage: model.TokenUsage{PromptTokens: 3, CompletionTokens: 2, TotalTokens: 5}})
	c.ObserveTool(ToolSample{Tool: "check_identity", Status: "error"})
	c.ObserveTool(ToolSample{Tool: "check_identity", Status: "success"})

	u := c.Summary()
	assert.Equal(t, 2, u.Turns)
	assert.Equal(t, 20, u.TotalTokens)
	assert.Equal(t, 13, u.PromptTokens)
	assert.Equal(t, 1, u.ToolCalls)
	assert.Equal(t, 1, u.ToolErrors)
	assert.Equal(t, 1, u.Handoffs)
	assert.Equal(t, map[string]int{"main": 1, "visitor": 1}, u.TurnsByAgent)
	assert.Contains(t, u.String(), "turns=2 tokens=20")
	assert.Contains(t, u.String(), "agents=[main=1 visitor=1]")

	u.TurnsByAgent["main"] = 99
	assert.Equal(t, 1, c.Summary().TurnsByAgent["main"])
}

func TestPrometheusHook(t *testing.T) {
	reg := prometheus.NewRegistry()
	h := NewPrometheusHook("test", reg)

	h.ObserveExchange(Exchange{Agent: "main", Handoffs: 2, Usage: model.TokenUsage{PromptTokens: 7, CompletionTokens: 3}, Duration: time.Second, Terminated: true})
	h.ObserveTool(ToolSample{Agent: "main", Tool: "open_door", Status: "success", Duration: time.Millisecond})

	assert.Equal(t, 1.0, testutil.ToFloat64(h.turnsTotal.WithLabelValues("main")))
	assert.Equal(t, 7.0, testutil.ToFloat64(h.tokensTotal.WithLabelValues("prompt")))
	assert.Equal(t, 3.0, testutil.ToFloat64(h.tokensTotal.WithLabelValues("completion")))
	assert.Equal(t, 2.0, testutil.ToFloat64(h.handoffsTotal))
	assert.Equal(t, 1.0, testutil.ToFloat64(h.terminations))
	assert.Equal(t, 1.0, testutil.ToFloat64(h.toolCallsTotal.WithLabelValues("main", "open_door", "success")))
	assert.Equal(t, 1, testutil.CollectAndCount(h.toolDuration))
}

type recordingHook struct {
	mu        sync.Mutex
	exchanges []Exchange
	tools     []ToolSample
}

func (r *recordingHook) ObserveExchange(ex Exchange) {
	r.mu.Lock()
	r.exchanges = append(r.exchanges, ex)
	r.mu.Unlock()
}

func (r *recordingHook) ObserveTool(s ToolSample) {
	r.mu.Lock()
	r.tools = append(r.tools, s)
	r.mu.Unlock()
}

func TestObserverDrainsOnClose(t *testing.T) {
	rec := &recordingHook{}
	o := NewObserver(rec, 0, nil)

	replies := []string{"hello"}
	o.PublishExchange(Exchange{Agent: "main", Replies: replies})
	o.PublishTool(ToolSample{Tool: "log_ticket"})
	replies[0] = "mutated"
	o.Close()
	o.Close()

	require.Len(t, rec.exchanges, 1)
	assert.Equal(t, []string{"hello"}, rec.exchanges[0].Replies)
	require.Len(t, rec.tools, 1)

	// publishing after close is a no-op
	o.PublishExchange(Exchange{})
	assert.Len(t, rec.exchanges, 1)
}

func TestObserverSurvivesPanickingHook(t *testing.T) {
	calls := 0
	o := NewObserver(HookFunc(func(Exchange) {
		calls++
		if calls == 1 {
			panic("boom")
		}
	}), 4, nil)
	o.PublishExchange(Exchange{})
	o.PublishExchange(Exchange{})
	o.Close()
	assert.Equal(t, 2, calls)
}

func TestMulti(t *testing.T) {
	a, b := &recordingHook{}, &recordingHook{}
	var plain int
	m := Multi{a, b, HookFunc(func(Exchange) { plain++ })}
	m.ObserveExchange(Exchange{Agent: "main"})
	m.ObserveTool(ToolSample{Tool: "x"})
	assert.Len(t, a.exchanges, 1)
	assert.Len(t, b.tools, 1)
	assert.Equal(t, 1, plain)
}
