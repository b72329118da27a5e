package tool

import (
	"fmt"

	"github.com/hupe1980/concierge/core"
	"github.com/hupe1980/concierge/internal/util"
)

// TransferPrefix is the name prefix of the fixed-target transfer tools.
const TransferPrefix = "transfer_"

// transferTool marks tools whose only effect is a handoff. The dispatch loop
// does not count them against the per-turn tool-hop cap.
type transferTool struct {
	*FunctionTool
}

func (transferTool) Transfers() bool { return true }

// IsTransfer reports whether t only requests a handoff.
func IsTransfer(t Tool) bool {
	tt, ok := t.(interface{ Transfers() bool })
	return ok && tt.Transfers()
}

// TransferOptions configures a fixed-target transfer tool.
type TransferOptions struct {
	// Message is spoken before the target takes over.
	Message string
}

// NewTransferTool returns a tool that hands the conversation to target.
// Its name is "transfer_<target>".
func NewTransferTool(target, description string, optFns ...func(o *TransferOptions)) Tool {
	opts := TransferOptions{Message: fmt.Sprintf("Transferring to %s.", target)}
	for _, fn := range optFns {
		fn(&opts)
	}
	if description == "" {
		description = fmt.Sprintf("Transfer the caller to the %s agent.", target)
	}
	return transferTool{NewFunctionTool(TransferPrefix+target, description, nil,
		func(tc *Context, _ map[string]any) (any, error) {
			tc.TransferToAgent(target, opts.Message)
			return opts.Message, nil
		})}
}

// NewTransferToAgentTool returns the generic transfer tool taking the target
// agent id as argument.
func NewTransferToAgentTool() Tool {
	return transferTool{NewFunctionTool(
		"transfer_to_agent",
		"Request transfer of control to another agent by id. Use when another agent is better suited.",
		map[string]any{
			"type": "object",
			"properties": map[string]any{
				"agent": map[string]any{"type": "string", "description": "Target agent id"},
			},
			"required": []string{"agent"},
		},
		func(tc *Context, args map[string]any) (any, error) {
			target := util.StringArg(args, "agent")
			msg := fmt.Sprintf("Transferring to %s.", target)
			tc.TransferToAgent(target, msg)
			return msg, nil
		})}
}

// NewReturnTool returns a tool that hands the conversation back to the agent
// that was active before the current one.
func NewReturnTool(name, description string) Tool {
	return transferTool{NewFunctionTool(name, description, nil,
		func(tc *Context, _ map[string]any) (any, error) {
			prev := tc.PreviousAgent()
			if prev == "" || prev == tc.AgentID() {
				return nil, &core.NotFoundError{Kind: "agent", Key: "previous"}
			}
			msg := fmt.Sprintf("Transferring back to %s.", prev)
			tc.TransferToAgent(prev, msg)
			return msg, nil
		})}
}

// NewEndSessionTool returns a tool that ends the session with farewell.
func NewEndSessionTool(name, description, farewell string) Tool {
	return NewFunctionTool(name, description, nil,
		func(tc *Context, _ map[string]any) (any, error) {
			tc.Terminate(farewell)
			return farewell, nil
		})
}
