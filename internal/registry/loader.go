package registry

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"grantor/pkg/logging"

	"gopkg.in/yaml.v3"
)

const (
	userConfigDir     = ".config/grantor"
	providersFileName = "providers.yaml"
)

// providersFile is the YAML overlay schema.
type providersFile struct {
	Providers []*ProviderDescriptor `yaml:"providers"`
}

// DefaultConfigPath returns the default grantor config directory.
func DefaultConfigPath() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not determine user config directory: %w", err)
	}
	return filepath.Join(homeDir, userConfigDir), nil
}

// Load builds a registry from the built-in defaults plus the YAML overlay in
// the given config directory. A missing overlay file is not an error; the
// defaults stand alone.
func Load(configPath string) (*Registry, error) {
	descriptors, err := loadDescriptors(configPath)
	if err != nil {
		return nil, err
	}
	return New(descriptors...), nil
}

func loadDescriptors(configPath string) ([]*ProviderDescriptor, error) {
	descriptors := DefaultDescriptors()

	overlayPath := filepath.Join(configPath, providersFileName)
	data, err := os.ReadFile(overlayPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			logging.Info("Registry", "No providers.yaml at %s, using built-in providers", overlayPath)
			return descriptors, nil
		}
		return nil, fmt.Errorf("error reading %s: %w", overlayPath, err)
	}

	var overlay providersFile
	if err := yaml.Unmarshal(data, &overlay); err != nil {
		return nil, fmt.Errorf("error parsing %s: %w", overlayPath, err)
	}

	for _, d := range overlay.Providers {
		if err := validateDescriptor(d); err != nil {
			return nil, fmt.Errorf("invalid provider in %s: %w", overlayPath, err)
		}
	}

	logging.Info("Registry", "Loaded %d provider override(s) from %s", len(overlay.Providers), overlayPath)
	return append(descriptors, overlay.Providers...), nil
}

func validateDescriptor(d *ProviderDescriptor) error {
	if d == nil {
		return errors.New("empty provider entry")
	}
	if d.ID == "" {
		return errors.New("provider missing id")
	}
	if len(d.Strategies) == 0 {
		return fmt.Errorf("provider %s declares no strategies", d.ID)
	}
	for _, s := range d.Strategies {
		if _, err := ParseStrategy(string(s)); err != nil {
			return fmt.Errorf("provider %s: %w", d.ID, err)
		}
		switch s {
		case StrategyDeviceCode:
			if d.Endpoints.DeviceAuthorizationEndpoint == "" || d.Endpoints.TokenEndpoint == "" {
				return fmt.Errorf("provider %s: device_code requires device authorization and token endpoints", d.ID)
			}
		case StrategyCallback, StrategyAutomatedBrowser:
			if d.Endpoints.AuthorizationEndpoint == "" || d.Endpoints.TokenEndpoint == "" {
				return fmt.Errorf("provider %s: %s requires authorization and token endpoints", d.ID, s)
			}
		case StrategyLocalFileImport:
			if d.DefaultCredentialPath == "" {
				return fmt.Errorf("provider %s: local_file_import requires default_credential_path", d.ID)
			}
		}
	}
	return nil
}
