// Package handoff moves a conversation between agents.
//
// The Reconciler assembles the context an agent sees when it becomes active:
// its rendered instruction, a persona line with the shared state digest, and
// bounded windows of its own and the previous agent's history. Windows never
// split a tool call from its result.
//
// The Coordinator owns the active-agent transitions of a session. It checks
// targets against the registry, enforces the per-turn handoff cap and can
// force a fallback to the entry agent when the cap trips.
package handoff
