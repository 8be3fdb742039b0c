// Package registry holds the provider strategy registry: which identity
// providers exist, which acquisition strategies each one supports, and the
// endpoints and parameters every strategy needs. The built-in provider set
// can be extended or overridden through a providers.yaml overlay, which is
// hot-reloaded while the daemon runs.
package registry
