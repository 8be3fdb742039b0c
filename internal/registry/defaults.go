package registry

import "grantor/pkg/oauth"

// DefaultDescriptors returns the built-in provider set. The YAML overlay can
// replace or extend any of these.
func DefaultDescriptors() []*ProviderDescriptor {
	return []*ProviderDescriptor{
		{
			ID:    "github",
			Label: "GitHub",
			Strategies: []AcquisitionStrategy{
				StrategyDeviceCode,
				StrategyCallback,
				StrategyPastedSecret,
			},
			Endpoints: oauth.Endpoints{
				AuthorizationEndpoint:       "https://github.com/login/oauth/authorize",
				DeviceAuthorizationEndpoint: "https://github.com/login/device/code",
				TokenEndpoint:               "https://github.com/login/oauth/access_token",
			},
			ClientID: "Iv1.grantor-public",
			Scopes:   "repo read:org",
		},
		{
			ID:    "google",
			Label: "Google Cloud",
			Strategies: []AcquisitionStrategy{
				StrategyDeviceCode,
				StrategyCallback,
				StrategyAutomatedBrowser,
				StrategyLocalFileImport,
			},
			Endpoints: oauth.Endpoints{
				AuthorizationEndpoint:       "https://accounts.google.com/o/oauth2/v2/auth",
				DeviceAuthorizationEndpoint: "https://oauth2.googleapis.com/device/code",
				TokenEndpoint:               "https://oauth2.googleapis.com/token",
			},
			ClientID:              "grantor.apps.googleusercontent.com",
			Scopes:                "https://www.googleapis.com/auth/cloud-platform openid email",
			DefaultCredentialPath: "~/.config/gcloud/application_default_credentials.json",
			RequiresProjectID:     true,
			CompletionMarker:      "https://accounts.google.com/o/oauth2/approval",
		},
		{
			ID:    "anthropic",
			Label: "Anthropic",
			Strategies: []AcquisitionStrategy{
				StrategyCallback,
				StrategyAutomatedBrowser,
				StrategyPastedSecret,
			},
			Endpoints: oauth.Endpoints{
				AuthorizationEndpoint: "https://claude.ai/oauth/authorize",
				TokenEndpoint:         "https://console.anthropic.com/v1/oauth/token",
			},
			ClientID:         "grantor-cli",
			Scopes:           "user:profile user:inference",
			CompletionMarker: "https://console.anthropic.com/oauth/code/callback",
		},
		{
			ID:    "openai",
			Label: "OpenAI",
			Strategies: []AcquisitionStrategy{
				StrategyCallback,
				StrategyLocalFileImport,
				StrategyPastedSecret,
			},
			Endpoints: oauth.Endpoints{
				AuthorizationEndpoint: "https://auth.openai.com/oauth/authorize",
				TokenEndpoint:         "https://auth.openai.com/oauth/token",
			},
			ClientID:              "grantor-cli",
			Scopes:                "openid email profile offline_access",
			DefaultCredentialPath: "~/.codex/auth.json",
		},
	}
}
