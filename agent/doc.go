// Package agent describes the specialist dialogue agents of a session and the
// registry that holds them.
//
// An agent is plain data (Definition): an id, an instruction template, the
// tools it may call, a persona (display name and voice), an optional model
// override and composable enter hooks. Behaviour lives in the flow and
// handoff packages, which read definitions from a Registry that is frozen
// once the session starts.
package agent
