// Package daemon exposes the orchestrator over a loopback HTTP API so other
// local tooling can start acquisitions, watch session transitions as
// server-sent events, and inspect providers, credentials, and automation
// availability. The daemon binds 127.0.0.1 only and integrates with systemd
// readiness notification.
package daemon
