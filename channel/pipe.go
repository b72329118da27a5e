package channel

import (
	"context"
	"io"
	"sync"
)

// Pipe is an in-memory Channel for tests and embedding. Callers feed input
// with Say and read replies with Next or Utterances.
type Pipe struct {
	in  chan string
	out chan Utterance

	mu        sync.Mutex
	sent      []Utterance
	closeOnce sync.Once
}

// NewPipe creates a Pipe buffering up to buffer inputs and replies.
func NewPipe(buffer int) *Pipe {
	if buffer <= 0 {
		buffer = 16
	}
	return &Pipe{in: make(chan string, buffer), out: make(chan Utterance, buffer)}
}

// Say queues a caller utterance.
func (p *Pipe) Say(text string) { p.in <- text }

// Hangup disconnects the caller. Queued input is still delivered first.
func (p *Pipe) Hangup() { p.closeOnce.Do(func() { close(p.in) }) }

// Receive implements Channel.
func (p *Pipe) Receive(ctx context.Context) (string, error) {
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case text, ok := <-p.in:
		if !ok {
			return "", io.EOF
		}
		return text, nil
	}
}

// Send implements Channel.
func (p *Pipe) Send(ctx context.Context, u Utterance) error {
	p.mu.Lock()
	p.sent = append(p.sent, u)
	p.mu.Unlock()
	select {
	case p.out <- u:
	default:
	}
	return nil
}

// Next waits for the next reply.
func (p *Pipe) Next(ctx context.Context) (Utterance, error) {
	select {
	case <-ctx.Done():
		return Utterance{}, ctx.Err()
	case u := <-p.out:
		return u, nil
	}
}

// Utterances returns every reply sent so far.
func (p *Pipe) Utterances() []Utterance {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Utterance(nil), p.sent...)
}

var _ Channel = (*Pipe)(nil)
