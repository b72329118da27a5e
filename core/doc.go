// Package core provides the foundational domain types shared by every layer of
// the concierge runtime:
//
//   - Message (role tagged conversation entries, tool calls and tool results)
//   - HandoffRecord (audit trail of active agent transitions)
//   - typed error kinds surfaced by the registry, the coordinator and tool dispatch
//
// The package has no dependencies on the rest of the module so every other
// package can import it.
package core
