// Package api is the service locator wiring the orchestrator's components
// together. Components register their handler implementation during startup
// and consumers look them up through the Get* accessors instead of importing
// each other, which keeps the CLI, the daemon surface, and the core packages
// free of cross-dependencies.
package api
