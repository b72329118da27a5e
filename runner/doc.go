// Package runner hosts concurrent doorman sessions.
//
// A Runner creates one session per caller through a Factory, drives it over
// the caller's channel in its own goroutine and keeps a cancel handle per
// session id. Sessions share nothing; the runner only bounds how many run at
// once and stops them all on Shutdown.
package runner
