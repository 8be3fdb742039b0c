package store

import (
	"context"
	"time"

	"golang.org/x/oauth2"

	"grantor/pkg/oauth"
)

// AuthMethod describes the kind of credential material a record carries.
type AuthMethod string

const (
	AuthMethodOAuth        AuthMethod = "oauth"
	AuthMethodDevice       AuthMethod = "device"
	AuthMethodAPIKey       AuthMethod = "api_key"
	AuthMethodImportedFile AuthMethod = "imported_file"
)

// Source describes how a credential was obtained, for audit purposes.
type Source string

const (
	SourceDeviceCode       Source = "device_code"
	SourceCallbackFlow     Source = "callback_flow"
	SourceAutomatedBrowser Source = "automated_browser"
	SourceLocalFileImport  Source = "local_file_import"
	SourcePastedSecret     Source = "pasted_secret"
)

// CredentialRecord is the normalized, provider-agnostic output of a successful
// acquisition, ready for storage.
//
// Ownership: after Save the record belongs to the credential store. The
// orchestrator holds it only transiently in memory and must not persist it
// on its own behalf.
type CredentialRecord struct {
	// ProviderID identifies the provider this credential authenticates to.
	ProviderID string `json:"provider_id"`

	// AuthMethod is the credential kind.
	AuthMethod AuthMethod `json:"auth_method"`

	// Secret holds the access token, API key, or serialized credential
	// material. RedactedSecret never serializes or prints the raw value.
	Secret RedactedSecret `json:"secret"`

	// RefreshSecret holds an optional refresh token.
	RefreshSecret RedactedSecret `json:"refresh_secret,omitempty"`

	// Expiry is when the secret expires, if the provider declared one.
	Expiry time.Time `json:"expiry,omitempty"`

	// DisplayName is the optional user-supplied label for this credential.
	DisplayName string `json:"display_name,omitempty"`

	// Source records how the credential was acquired.
	Source Source `json:"source"`

	// CreatedAt is when the acquisition completed.
	CreatedAt time.Time `json:"created_at"`
}

// OAuthToken exposes an OAuth-backed credential as an *oauth2.Token so
// consumers can hand it to golang.org/x/oauth2 transports directly. Returns
// nil for API keys and imported files, which are not bearer tokens.
func (r *CredentialRecord) OAuthToken() *oauth2.Token {
	switch r.AuthMethod {
	case AuthMethodOAuth, AuthMethodDevice:
	default:
		return nil
	}
	t := oauth.Token{
		AccessToken:  r.Secret.Value(),
		TokenType:    "Bearer",
		RefreshToken: r.RefreshSecret.Value(),
		ExpiresAt:    r.Expiry,
	}
	return t.ToOAuth2Token()
}

// Writer is the credential store collaborator interface. The supervisor calls
// Save exactly once per successful session, never on failure or cancel paths.
type Writer interface {
	// Save persists the record and returns the stored credential's id.
	Save(ctx context.Context, record *CredentialRecord) (string, error)
}

// Lister is implemented by stores that can enumerate stored credentials.
type Lister interface {
	// List returns metadata for all stored credentials. Secret material in
	// the returned records remains redacted on serialization.
	List(ctx context.Context) ([]*StoredCredential, error)
}

// Disabler is implemented by stores that can disable a credential without
// destroying it.
type Disabler interface {
	Disable(ctx context.Context, id string) error
}
