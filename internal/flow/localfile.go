package flow

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"grantor/internal/classify"
	"grantor/internal/registry"
	"grantor/internal/session"
	"grantor/internal/store"
	"grantor/pkg/logging"
)

// LocalFileImportEngine imports an existing credential file written by the
// provider's own tooling (gcloud, codex, ...). The flow is synchronous: it
// validates the file and hands its contents over as one record.
type LocalFileImportEngine struct{}

// NewLocalFileImportEngine creates a local-file-import engine.
func NewLocalFileImportEngine() *LocalFileImportEngine {
	return &LocalFileImportEngine{}
}

// Run imports the credential file for one session. The path comes from the
// start parameters, falling back to the provider's default.
func (e *LocalFileImportEngine) Run(ctx context.Context, sess *session.Session, provider *registry.ProviderDescriptor, params session.Params) (*store.CredentialRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	path := params.CredentialPath
	if path == "" {
		path = provider.DefaultCredentialPath
	}
	if path == "" {
		return nil, fmt.Errorf("%w: provider %s has no default credential path and none was given", classify.ErrInvalidResponse, provider.ID)
	}

	expanded, err := expandHome(path)
	if err != nil {
		return nil, err
	}

	raw, err := os.ReadFile(expanded)
	if err != nil {
		return nil, fmt.Errorf("failed to read credential file %s: %w", expanded, err)
	}

	// Provider credential files are JSON; anything else is a wrong path or a
	// truncated write.
	var probe map[string]interface{}
	if err := json.Unmarshal(raw, &probe); err != nil {
		return nil, fmt.Errorf("%w: %s is not a valid credential file: %v", classify.ErrInvalidResponse, expanded, err)
	}
	if len(probe) == 0 {
		return nil, fmt.Errorf("%w: %s is empty", classify.ErrInvalidResponse, expanded)
	}

	logging.Info("Flow", "Imported credential file for %s from %s", provider.ID, expanded)

	return &store.CredentialRecord{
		ProviderID:  provider.ID,
		AuthMethod:  store.AuthMethodImportedFile,
		Secret:      store.NewRedactedSecret(string(raw)),
		DisplayName: sess.DisplayName(),
		Source:      store.SourceLocalFileImport,
		CreatedAt:   time.Now(),
	}, nil
}

// expandHome resolves a leading ~/ against the user's home directory.
func expandHome(path string) (string, error) {
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to resolve home directory: %w", err)
		}
		return filepath.Join(home, strings.TrimPrefix(path, "~")), nil
	}
	return path, nil
}
