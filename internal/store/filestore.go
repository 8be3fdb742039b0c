package store

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"grantor/pkg/logging"
)

// DefaultStorageDir is the default directory for stored credentials,
// relative to the user's home directory.
const DefaultStorageDir = ".config/grantor/credentials"

// StoredCredential is a stored record plus store-assigned metadata. The secret
// fields stay redacted on serialization; only the store's private on-disk
// representation carries raw material.
type StoredCredential struct {
	ID         string           `json:"id"`
	Record     CredentialRecord `json:"record"`
	Disabled   bool             `json:"disabled"`
	StoredAt   time.Time        `json:"stored_at"`
	DisabledAt time.Time        `json:"disabled_at,omitempty"`
}

// credentialFile is the on-disk representation. Unlike CredentialRecord it
// serializes raw secret material, which is why files are written 0600 inside
// a 0700 directory.
type credentialFile struct {
	ID            string     `json:"id"`
	ProviderID    string     `json:"provider_id"`
	AuthMethod    AuthMethod `json:"auth_method"`
	Secret        string     `json:"secret"`
	RefreshSecret string     `json:"refresh_secret,omitempty"`
	Expiry        time.Time  `json:"expiry,omitempty"`
	DisplayName   string     `json:"display_name,omitempty"`
	Source        Source     `json:"source"`
	CreatedAt     time.Time  `json:"created_at"`
	Disabled      bool       `json:"disabled"`
	StoredAt      time.Time  `json:"stored_at"`
	DisabledAt    time.Time  `json:"disabled_at,omitempty"`
}

// FileStore is a file-backed credential store.
//
// SECURITY: this store handles raw credential material. Files are created with
// 0600 permissions inside a 0700 directory, and secret values are never
// logged; only provider ids and credential ids appear in the audit log.
type FileStore struct {
	mu         sync.RWMutex
	storageDir string
}

// FileStoreConfig configures the file store.
type FileStoreConfig struct {
	// StorageDir is the directory for credential files.
	// Defaults to ~/.config/grantor/credentials.
	StorageDir string
}

// NewFileStore creates a file store, creating the storage directory if needed.
func NewFileStore(cfg FileStoreConfig) (*FileStore, error) {
	storageDir := cfg.StorageDir
	if storageDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		storageDir = filepath.Join(homeDir, DefaultStorageDir)
	}

	if err := os.MkdirAll(storageDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create credential storage directory: %w", err)
	}

	return &FileStore{storageDir: storageDir}, nil
}

// Save persists the record and returns the stored credential id.
func (s *FileStore) Save(ctx context.Context, record *CredentialRecord) (string, error) {
	if record == nil {
		return "", fmt.Errorf("nil credential record")
	}
	if record.ProviderID == "" {
		return "", fmt.Errorf("credential record missing provider id")
	}
	if record.Secret.IsEmpty() {
		return "", fmt.Errorf("credential record missing secret material")
	}

	id := credentialID(record.ProviderID, record.DisplayName, time.Now())

	file := &credentialFile{
		ID:            id,
		ProviderID:    record.ProviderID,
		AuthMethod:    record.AuthMethod,
		Secret:        record.Secret.Value(),
		RefreshSecret: record.RefreshSecret.Value(),
		Expiry:        record.Expiry,
		DisplayName:   record.DisplayName,
		Source:        record.Source,
		CreatedAt:     record.CreatedAt,
		StoredAt:      time.Now(),
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.writeFile(id, file); err != nil {
		logging.Warn("Store", "Credential save failed: provider=%s id=%s err=%v", record.ProviderID, id, err)
		return "", err
	}

	logging.Info("Store", "Credential stored: provider=%s id=%s method=%s source=%s",
		record.ProviderID, id, record.AuthMethod, record.Source)
	return id, nil
}

// List returns metadata for all stored credentials, newest first.
func (s *FileStore) List(ctx context.Context) ([]*StoredCredential, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries, err := os.ReadDir(s.storageDir)
	if err != nil {
		return nil, fmt.Errorf("failed to read credential storage directory: %w", err)
	}

	var out []*StoredCredential
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".json" {
			continue
		}
		file, err := s.readFile(entry.Name())
		if err != nil {
			logging.Warn("Store", "Skipping unreadable credential file %s: %v", entry.Name(), err)
			continue
		}
		out = append(out, file.toStored())
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].StoredAt.After(out[j].StoredAt)
	})
	return out, nil
}

// Disable marks a credential as disabled without removing its material.
func (s *FileStore) Disable(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	name := id + ".json"
	file, err := s.readFile(name)
	if err != nil {
		return fmt.Errorf("credential %s not found: %w", id, err)
	}

	if file.Disabled {
		return nil
	}
	file.Disabled = true
	file.DisabledAt = time.Now()

	if err := s.writeFile(id, file); err != nil {
		return err
	}
	logging.Info("Store", "Credential disabled: id=%s provider=%s", id, file.ProviderID)
	return nil
}

// Get returns a stored credential by id, including raw material access via
// the returned record's RedactedSecret values.
func (s *FileStore) Get(ctx context.Context, id string) (*StoredCredential, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	file, err := s.readFile(id + ".json")
	if err != nil {
		return nil, fmt.Errorf("credential %s not found: %w", id, err)
	}
	return file.toStored(), nil
}

func (f *credentialFile) toStored() *StoredCredential {
	return &StoredCredential{
		ID: f.ID,
		Record: CredentialRecord{
			ProviderID:    f.ProviderID,
			AuthMethod:    f.AuthMethod,
			Secret:        NewRedactedSecret(f.Secret),
			RefreshSecret: NewRedactedSecret(f.RefreshSecret),
			Expiry:        f.Expiry,
			DisplayName:   f.DisplayName,
			Source:        f.Source,
			CreatedAt:     f.CreatedAt,
		},
		Disabled:   f.Disabled,
		StoredAt:   f.StoredAt,
		DisabledAt: f.DisabledAt,
	}
}

func (s *FileStore) writeFile(id string, file *credentialFile) error {
	path := filepath.Join(s.storageDir, id+".json")

	data, err := json.MarshalIndent(file, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal credential: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write credential file: %w", err)
	}
	return nil
}

func (s *FileStore) readFile(name string) (*credentialFile, error) {
	path := filepath.Join(s.storageDir, name)

	// #nosec G304 -- path is constructed from the store's own directory listing
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var file credentialFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to unmarshal credential file: %w", err)
	}
	return &file, nil
}

// credentialID derives a filesystem-safe id from the provider, display name
// and store time.
func credentialID(providerID, displayName string, now time.Time) string {
	hash := sha256.Sum256([]byte(providerID + "\x00" + displayName + "\x00" + now.Format(time.RFC3339Nano)))
	return providerID + "-" + hex.EncodeToString(hash[:8])
}
