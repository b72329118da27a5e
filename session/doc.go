// Package session runs one conversation from first utterance to shutdown.
//
// A Session owns the shared state, the per-agent histories, the handoff
// coordinator and the dispatch loop. Turns are strictly sequential: Run reads
// caller input on its own goroutine and buffers it while a turn is in flight.
// Exchanges are published to metrics hooks off the turn loop and every
// utterance is appended to the NDJSON transcript. Close flushes a usage
// summary and is safe to call more than once.
package session
