// Package flow implements the acquisition strategy engines.
//
// Each engine drives one strategy end to end: the RFC 8628 device flow, the
// authorization-code callback flow with a loopback redirect listener, the
// automated-browser flow, local credential file import, and pasted API keys.
// Engines move the session through its intermediate states, observe ctx at
// every suspend point, and return either a normalized credential record or a
// raw error for the classifier; they never format user-facing messages.
package flow
