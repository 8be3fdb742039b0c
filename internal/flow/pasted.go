package flow

import (
	"context"
	"fmt"
	"strings"
	"time"

	"grantor/internal/classify"
	"grantor/internal/registry"
	"grantor/internal/session"
	"grantor/internal/store"
	"grantor/pkg/logging"
)

// PastedSecretEngine stores an API key the user pasted. The secret arrives
// through the start parameters and never appears in session state or logs.
type PastedSecretEngine struct{}

// NewPastedSecretEngine creates a pasted-secret engine.
func NewPastedSecretEngine() *PastedSecretEngine {
	return &PastedSecretEngine{}
}

// Run validates and packages the pasted secret for one session.
func (e *PastedSecretEngine) Run(ctx context.Context, sess *session.Session, provider *registry.ProviderDescriptor, params session.Params) (*store.CredentialRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	value := strings.TrimSpace(params.Secret.Value())
	if value == "" {
		return nil, fmt.Errorf("%w: no secret was provided", classify.ErrInvalidResponse)
	}
	if strings.ContainsAny(value, "\n\r") {
		return nil, fmt.Errorf("%w: pasted secret contains line breaks", classify.ErrInvalidResponse)
	}

	logging.Info("Flow", "Pasted secret accepted for %s (%d chars)", provider.ID, len(value))

	return &store.CredentialRecord{
		ProviderID:  provider.ID,
		AuthMethod:  store.AuthMethodAPIKey,
		Secret:      store.NewRedactedSecret(value),
		DisplayName: sess.DisplayName(),
		Source:      store.SourcePastedSecret,
		CreatedAt:   time.Now(),
	}, nil
}
