// Package testutil contains helpers for building conversation histories in
// tests and for checking the tool call pairing invariant.
package testutil
