package tool

import (
	"fmt"

	"github.com/hupe1980/concierge/action"
	"github.com/hupe1980/concierge/core"
)

// OutcomeKind classifies the effect of a tool call on the conversation.
type OutcomeKind string

const (
	// OutcomeReply continues with the same agent.
	OutcomeReply OutcomeKind = "reply"
	// OutcomeHandoff moves the conversation to another agent.
	OutcomeHandoff OutcomeKind = "handoff"
	// OutcomeTerminal ends the session after a final message.
	OutcomeTerminal OutcomeKind = "terminal"
)

// Outcome is the classified result of a tool call.
type Outcome struct {
	Kind    OutcomeKind
	Message string
	Target  string // set for OutcomeHandoff
	Payload any
}

// Classify derives the Outcome of a successful call from its return value and
// the flow control requests recorded on the Context. A termination request
// takes precedence over a transfer.
func Classify(result any, acts *Actions) Outcome {
	switch {
	case acts != nil && acts.Terminate:
		msg := acts.FinalMessage
		if msg == "" {
			msg = Text(result)
		}
		return Outcome{Kind: OutcomeTerminal, Message: msg, Payload: result}
	case acts != nil && acts.TransferTo != "":
		return Outcome{Kind: OutcomeHandoff, Target: acts.TransferTo, Message: acts.TransferMessage, Payload: result}
	default:
		return Outcome{Kind: OutcomeReply, Message: Text(result), Payload: result}
	}
}

// Text renders a tool return value as speakable text.
func Text(result any) string {
	switch r := result.(type) {
	case nil:
		return ""
	case string:
		return r
	case action.Result:
		return r.Message
	case *action.Result:
		return r.Message
	case fmt.Stringer:
		return r.String()
	}
	return core.RenderPayload(core.ToolResult{Status: core.ToolStatusSuccess, Payload: result})
}
