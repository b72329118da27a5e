// Package metrics observes completed exchanges and tool executions of a
// session. Observation runs off the turn loop: the session publishes value
// copies to an Observer whose goroutine feeds the configured hooks.
package metrics
