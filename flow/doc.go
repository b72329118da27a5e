// Package flow implements the tool dispatch loop of the active agent.
//
// A turn starts with a reasoning step: the agent's reconciled history and
// tool schema set are sent to the model. Plain text ends the turn. Tool calls
// are executed one at a time through an interceptor chain and classified as a
// reply (the agent reasons again to voice the result), a handoff (the
// coordinator moves the conversation and the target reasons next) or a
// terminal outcome (final message, session ends).
//
// Failures never escape as raw errors to the caller: validation failures
// re-prompt, unknown tools are rejected, failing providers produce a spoken
// apology and a handoff loop falls back to the entry agent.
package flow
