// Package session implements the acquisition session lifecycle.
//
// A Session is one in-flight credential acquisition attempt with a small
// state machine (Created, AwaitingUserAction, Polling/Listening/Driving,
// then a terminal Succeeded/Failed/Cancelled). The Supervisor owns every
// session: it enforces at most one active session per (provider, strategy)
// pair, runs each session's flow engine on its own goroutine, fans state
// transitions out to subscribers in order, and hands successful results to
// the credential store exactly once.
//
// Cancellation is cooperative. Cancel stores no state itself; it cancels the
// session's context and the engine unwinds, releasing its resources before
// the supervisor records the terminal state.
package session
