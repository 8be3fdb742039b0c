package cmd

import (
	"fmt"

	"grantor/internal/api"
	"grantor/internal/flow"
	"grantor/internal/prober"
	"grantor/internal/registry"
	"grantor/internal/session"
	"grantor/internal/store"
	"grantor/pkg/oauth"
)

// providerRegistry keeps the concrete registry for the config watcher; the
// locator only exposes the read interface.
var providerRegistry *registry.Registry

// componentRegistry returns the concrete provider registry built by
// ensureComponents.
func componentRegistry() *registry.Registry {
	return providerRegistry
}

// ensureComponents wires the orchestrator components and registers them with
// the service locator. Idempotent; commands call it lazily so tests can
// pre-register fakes.
func ensureComponents() error {
	if api.GetSupervisor() != nil {
		return nil
	}

	configPath, err := registry.DefaultConfigPath()
	if err != nil {
		return fmt.Errorf("failed to resolve config path: %w", err)
	}
	reg, err := registry.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load provider registry: %w", err)
	}

	fileStore, err := store.NewFileStore(store.FileStoreConfig{})
	if err != nil {
		return fmt.Errorf("failed to open credential store: %w", err)
	}

	p := prober.New()
	sv := session.NewSupervisor(reg, fileStore, flow.Engines(oauth.NewClient(), p, nil))

	providerRegistry = reg
	api.RegisterProviderRegistry(reg)
	api.RegisterCredentialStore(fileStore)
	api.RegisterProber(p)
	api.RegisterSupervisor(sv)
	return nil
}
