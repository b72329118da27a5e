package metrics

import (
	"sync"

	"github.com/hupe1980/concierge/logging"
)

// DefaultBuffer is the queue length of an Observer.
const DefaultBuffer = 64

type event struct {
	exchange *Exchange
	tool     *ToolSample
}

// Observer delivers exchanges and tool samples to a hook on its own
// goroutine. Publishing never blocks the caller; when the queue is full the
// event is dropped and logged.
type Observer struct {
	hook   Hook
	queue  chan event
	logger logging.Logger

	wg        sync.WaitGroup
	closeOnce sync.Once
	mu        sync.RWMutex
	closed    bool
}

// NewObserver starts an observer feeding hook.
func NewObserver(hook Hook, buffer int, logger logging.Logger) *Observer {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	o := &Observer{hook: hook, queue: make(chan event, buffer), logger: logging.OrNoOp(logger)}
	o.wg.Add(1)
	go o.run()
	return o
}

func (o *Observer) run() {
	defer o.wg.Done()
	for ev := range o.queue {
		o.deliver(ev)
	}
}

func (o *Observer) deliver(ev event) {
	defer func() {
		if r := recover(); r != nil {
			o.logger.Error("metrics.hook.panic", "recover", r)
		}
	}()
	switch {
	case ev.exchange != nil:
		o.hook.ObserveExchange(*ev.exchange)
	case ev.tool != nil:
		if to, ok := o.hook.(ToolObserver); ok {
			to.ObserveTool(*ev.tool)
		}
	}
}

func (o *Observer) publish(ev event) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	if o.closed {
		return
	}
	select {
	case o.queue <- ev:
	default:
		o.logger.Warn("metrics.observer.dropped")
	}
}

// PublishExchange queues ex.
func (o *Observer) PublishExchange(ex Exchange) {
	ex.Replies = append([]string(nil), ex.Replies...)
	o.publish(event{exchange: &ex})
}

// PublishTool queues s.
func (o *Observer) PublishTool(s ToolSample) { o.publish(event{tool: &s}) }

// Close stops accepting events and waits until queued ones are delivered.
func (o *Observer) Close() {
	o.closeOnce.Do(func() {
		o.mu.Lock()
		o.closed = true
		close(o.queue)
		o.mu.Unlock()
	})
	o.wg.Wait()
}
