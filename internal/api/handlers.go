package api

import (
	"context"
	"sync"

	"grantor/internal/prober"
	"grantor/internal/registry"
	"grantor/internal/session"
	"grantor/internal/store"
)

// SupervisorHandler is the session supervisor contract exposed to the CLI and
// the daemon surface.
type SupervisorHandler interface {
	Start(ctx context.Context, providerID string, strategy registry.AcquisitionStrategy, displayName string, params session.Params) (string, error)
	Cancel(sessionID string) error
	Status(sessionID string) (session.Transition, error)
	Subscribe(sessionID string) (<-chan session.Transition, error)
	Wait(ctx context.Context, sessionID string) (session.Transition, error)
	ActiveSessions() []session.Transition
}

// CredentialStoreHandler is the credential store contract. Secret material in
// anything returned from List stays redacted on serialization.
type CredentialStoreHandler interface {
	store.Writer
	store.Lister
	store.Disabler
}

// ProberHandler is the automation availability contract.
type ProberHandler interface {
	Check(ctx context.Context) (*prober.Availability, error)
	Install(ctx context.Context) (<-chan prober.InstallEvent, error)
}

// RegistryHandler is the provider registry contract.
type RegistryHandler interface {
	Get(providerID string) (*registry.ProviderDescriptor, bool)
	StrategiesFor(providerID string) []registry.AcquisitionStrategy
	DefaultPathFor(providerID string) string
	All() []*registry.ProviderDescriptor
}

// Handler registry variables store the registered implementations, protected
// by handlerMutex. Registration happens once during startup; subsequent
// registrations replace the previous handler.
var (
	supervisorHandler SupervisorHandler
	storeHandler      CredentialStoreHandler
	proberHandler     ProberHandler
	registryHandler   RegistryHandler

	handlerMutex sync.RWMutex
)

// RegisterSupervisor registers the session supervisor handler.
func RegisterSupervisor(h SupervisorHandler) {
	handlerMutex.Lock()
	defer handlerMutex.Unlock()
	supervisorHandler = h
}

// GetSupervisor returns the registered supervisor handler, or nil before
// registration.
func GetSupervisor() SupervisorHandler {
	handlerMutex.RLock()
	defer handlerMutex.RUnlock()
	return supervisorHandler
}

// RegisterCredentialStore registers the credential store handler.
func RegisterCredentialStore(h CredentialStoreHandler) {
	handlerMutex.Lock()
	defer handlerMutex.Unlock()
	storeHandler = h
}

// GetCredentialStore returns the registered credential store handler, or nil
// before registration.
func GetCredentialStore() CredentialStoreHandler {
	handlerMutex.RLock()
	defer handlerMutex.RUnlock()
	return storeHandler
}

// RegisterProber registers the automation prober handler.
func RegisterProber(h ProberHandler) {
	handlerMutex.Lock()
	defer handlerMutex.Unlock()
	proberHandler = h
}

// GetProber returns the registered prober handler, or nil before registration.
func GetProber() ProberHandler {
	handlerMutex.RLock()
	defer handlerMutex.RUnlock()
	return proberHandler
}

// RegisterProviderRegistry registers the provider registry handler.
func RegisterProviderRegistry(h RegistryHandler) {
	handlerMutex.Lock()
	defer handlerMutex.Unlock()
	registryHandler = h
}

// GetProviderRegistry returns the registered provider registry handler, or
// nil before registration.
func GetProviderRegistry() RegistryHandler {
	handlerMutex.RLock()
	defer handlerMutex.RUnlock()
	return registryHandler
}
