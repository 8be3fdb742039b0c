package registry

import (
	"sync"

	"grantor/pkg/oauth"
)

// ProviderDescriptor describes one identity provider: which strategies it
// supports and the parameters each strategy needs. Descriptors are immutable
// after load; a config reload swaps the whole registry snapshot.
type ProviderDescriptor struct {
	// ID is the stable provider identifier ("github", "google", ...).
	ID string `yaml:"id"`

	// Label is the human-readable display name.
	Label string `yaml:"label"`

	// Strategies lists the supported acquisition strategies.
	Strategies []AcquisitionStrategy `yaml:"strategies"`

	// Endpoints holds the OAuth endpoints used by the flow strategies.
	Endpoints oauth.Endpoints `yaml:"endpoints"`

	// ClientID is the public OAuth client id registered for grantor.
	ClientID string `yaml:"client_id"`

	// Scopes is the space-separated scope string requested by flows.
	Scopes string `yaml:"scopes"`

	// DefaultCredentialPath is the provider tooling's local credential file,
	// used by the local_file_import strategy. Optional.
	DefaultCredentialPath string `yaml:"default_credential_path,omitempty"`

	// RequiresProjectID marks providers whose credentials are scoped to a
	// project the user must pick. Optional.
	RequiresProjectID bool `yaml:"requires_project_id,omitempty"`

	// CompletionMarker is the URL prefix the automated-browser engine treats
	// as "consent finished"; the authorization code rides on the redirect.
	CompletionMarker string `yaml:"completion_marker,omitempty"`
}

// Supports reports whether the provider supports the given strategy.
func (d *ProviderDescriptor) Supports(strategy AcquisitionStrategy) bool {
	for _, s := range d.Strategies {
		if s == strategy {
			return true
		}
	}
	return false
}

// Registry is the read-only lookup table for provider descriptors. It has no
// side effects and no failure modes beyond "unknown provider".
type Registry struct {
	mu        sync.RWMutex
	providers map[string]*ProviderDescriptor
	order     []string
}

// New creates a registry from the given descriptors. Later descriptors with
// the same id replace earlier ones, which is how the YAML overlay overrides
// built-in defaults.
func New(descriptors ...*ProviderDescriptor) *Registry {
	r := &Registry{providers: make(map[string]*ProviderDescriptor)}
	for _, d := range descriptors {
		if d == nil || d.ID == "" {
			continue
		}
		if _, exists := r.providers[d.ID]; !exists {
			r.order = append(r.order, d.ID)
		}
		r.providers[d.ID] = d
	}
	return r
}

// Get returns the descriptor for a provider id.
func (r *Registry) Get(providerID string) (*ProviderDescriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.providers[providerID]
	return d, ok
}

// StrategiesFor returns the strategies a provider supports. Unknown providers
// yield an empty set.
func (r *Registry) StrategiesFor(providerID string) []AcquisitionStrategy {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.providers[providerID]
	if !ok {
		return nil
	}
	out := make([]AcquisitionStrategy, len(d.Strategies))
	copy(out, d.Strategies)
	return out
}

// DefaultPathFor returns the provider's default local credential file path,
// or "" if the provider is unknown or has none.
func (r *Registry) DefaultPathFor(providerID string) string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.providers[providerID]
	if !ok {
		return ""
	}
	return d.DefaultCredentialPath
}

// All returns the descriptors in load order.
func (r *Registry) All() []*ProviderDescriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*ProviderDescriptor, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.providers[id])
	}
	return out
}

// Replace swaps the registry contents for a freshly loaded set. Used by the
// config watcher; readers observe either the old snapshot or the new one.
func (r *Registry) Replace(descriptors []*ProviderDescriptor) {
	fresh := New(descriptors...)

	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers = fresh.providers
	r.order = fresh.order
}
