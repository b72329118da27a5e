package flow

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/hupe1980/concierge/agent"
	"github.com/hupe1980/concierge/core"
	"github.com/hupe1980/concierge/logging"
	"github.com/hupe1980/concierge/metrics"
	"github.com/hupe1980/concierge/tool"
)

// Call is one tool invocation handed to an Executor.
type Call struct {
	Agent    *agent.Definition
	Tool     tool.Tool
	ToolCall core.ToolCall
	Args     map[string]any
}

// Envelope is the uniform result of a tool execution.
type Envelope struct {
	Status   core.ToolStatus
	Outcome  tool.Outcome
	Err      error
	Duration time.Duration
}

// Executor runs a tool call.
type Executor func(ctx context.Context, call Call) Envelope

// Interceptor wraps an Executor.
type Interceptor func(next Executor) Executor

// Chain wraps base with interceptors. The first interceptor is outermost.
func Chain(base Executor, interceptors ...Interceptor) Executor {
	exec := base
	for i := len(interceptors) - 1; i >= 0; i-- {
		exec = interceptors[i](exec)
	}
	return exec
}

// Recover converts a panicking tool into an error envelope.
func Recover(logger logging.Logger) Interceptor {
	logger = logging.OrNoOp(logger)
	return func(next Executor) Executor {
		return func(ctx context.Context, call Call) (env Envelope) {
			defer func() {
				if r := recover(); r != nil {
					logger.Error("tool.call.panic", "tool", call.ToolCall.Name, "recover", r, "stack", string(debug.Stack()))
					env = Envelope{
						Status: core.ToolStatusError,
						Err:    tool.NewToolError(call.ToolCall.Name, fmt.Sprintf("panic recovered: %v", r), tool.CodeExecution),
					}
				}
			}()
			return next(ctx, call)
		}
	}
}

// Timeout bounds a tool execution by d. The execution context is detached
// from ctx cancellation so that session teardown does not abort a side
// effect in progress; only the deadline applies. Deadline failures are
// reported as *core.ExternalActionError.
//
// The deadline is cooperative: it reaches the tool through its context, and
// tools and action providers must honor ctx.Done() to be bounded by it. A
// tool that ignores its context runs to completion.
func Timeout(d time.Duration) Interceptor {
	return func(next Executor) Executor {
		return func(ctx context.Context, call Call) Envelope {
			if d <= 0 {
				return next(ctx, call)
			}
			tctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d)
			defer cancel()

			env := next(tctx, call)
			var ext *core.ExternalActionError
			if env.Err != nil && errors.Is(env.Err, context.DeadlineExceeded) && !errors.As(env.Err, &ext) {
				env.Err = &core.ExternalActionError{Action: call.ToolCall.Name, Err: env.Err}
			}
			return env
		}
	}
}

// Logging logs every tool execution.
func Logging(logger logging.Logger) Interceptor {
	logger = logging.OrNoOp(logger)
	return func(next Executor) Executor {
		return func(ctx context.Context, call Call) Envelope {
			logger.Debug("tool.call.start", "agent", call.Agent.ID, "tool", call.ToolCall.Name, "call_id", call.ToolCall.ID)
			env := next(ctx, call)
			if tl, ok := logger.(interface {
				LogToolCall(tool string, dur time.Duration, success bool, err error)
			}); ok {
				tl.LogToolCall(call.ToolCall.Name, env.Duration, env.Err == nil, env.Err)
			} else {
				logger.Info("tool.call.executed", "tool", call.ToolCall.Name, "duration_ms", env.Duration.Milliseconds(), "error", env.Err != nil)
			}
			return env
		}
	}
}

// Metrics reports a ToolSample for every execution.
func Metrics(observe func(metrics.ToolSample)) Interceptor {
	return func(next Executor) Executor {
		return func(ctx context.Context, call Call) Envelope {
			env := next(ctx, call)
			if observe != nil {
				observe(metrics.ToolSample{
					Agent:    call.Agent.ID,
					Tool:     call.ToolCall.Name,
					Status:   string(env.Status),
					Duration: env.Duration,
				})
			}
			return env
		}
	}
}
