// Package channel connects a session to the caller. Input arrives as text
// utterances (already transcribed) and replies leave as Utterances carrying
// the speaking agent's voice.
package channel

import "context"

// Utterance is one reply delivered to the caller.
type Utterance struct {
	AgentID string
	Persona string
	Voice   string
	Text    string
}

// Channel is the input/output surface of a session. Receive returns io.EOF
// when the caller disconnects.
type Channel interface {
	Receive(ctx context.Context) (string, error)
	Send(ctx context.Context, u Utterance) error
}
