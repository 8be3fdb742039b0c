package oauth

import (
	"strings"
	"time"

	"golang.org/x/oauth2"
)

// DefaultExpiryMargin is the default margin when checking token expiry.
// This accounts for clock skew and network latency.
const DefaultExpiryMargin = 30 * time.Second

// Token represents a token-endpoint response with associated metadata.
type Token struct {
	// AccessToken is the bearer token used for authorization.
	AccessToken string `json:"access_token"`

	// TokenType is typically "Bearer".
	TokenType string `json:"token_type,omitempty"`

	// RefreshToken is used to obtain new access tokens (optional).
	RefreshToken string `json:"refresh_token,omitempty"`

	// ExpiresIn is the token lifetime in seconds (from the token response).
	ExpiresIn int `json:"expires_in,omitempty"`

	// ExpiresAt is the calculated expiration timestamp.
	ExpiresAt time.Time `json:"expires_at,omitempty"`

	// Scope is the granted scope(s), space-separated.
	Scope string `json:"scope,omitempty"`

	// IDToken is the OIDC ID token (if available).
	IDToken string `json:"id_token,omitempty"`
}

// IsExpired checks if the token has expired or will expire within
// DefaultExpiryMargin. Tokens without an expiry never expire.
func (t *Token) IsExpired() bool {
	if t.ExpiresAt.IsZero() {
		return false
	}
	return time.Now().Add(DefaultExpiryMargin).After(t.ExpiresAt)
}

// SetExpiresAtFromExpiresIn calculates and sets ExpiresAt from ExpiresIn.
func (t *Token) SetExpiresAtFromExpiresIn() {
	if t.ExpiresIn > 0 && t.ExpiresAt.IsZero() {
		t.ExpiresAt = time.Now().Add(time.Duration(t.ExpiresIn) * time.Second)
	}
}

// Scopes returns the scope as a slice of individual scopes.
func (t *Token) Scopes() []string {
	if t.Scope == "" {
		return nil
	}
	return strings.Fields(t.Scope)
}

// ToOAuth2Token converts the Token to an oauth2.Token for compatibility with
// golang.org/x/oauth2.
func (t *Token) ToOAuth2Token() *oauth2.Token {
	token := &oauth2.Token{
		AccessToken:  t.AccessToken,
		TokenType:    t.TokenType,
		RefreshToken: t.RefreshToken,
		Expiry:       t.ExpiresAt,
	}

	if t.IDToken != "" {
		token = token.WithExtra(map[string]interface{}{
			"id_token": t.IDToken,
		})
	}

	return token
}

// DeviceAuthorization represents an RFC 8628 device authorization response.
type DeviceAuthorization struct {
	// DeviceCode is the opaque code the client polls the token endpoint with.
	DeviceCode string `json:"device_code"`

	// UserCode is the short human-readable code the user enters at the
	// verification URI.
	UserCode string `json:"user_code"`

	// VerificationURI is where the user authorizes the device.
	VerificationURI string `json:"verification_uri"`

	// VerificationURIComplete embeds the user code in the URI (optional).
	VerificationURIComplete string `json:"verification_uri_complete,omitempty"`

	// ExpiresIn is the lifetime of the device code in seconds.
	ExpiresIn int `json:"expires_in"`

	// Interval is the minimum polling interval in seconds. Zero means the
	// RFC 8628 default of 5 seconds.
	Interval int `json:"interval,omitempty"`
}

// PollInterval returns the polling interval as a duration, applying the
// RFC 8628 default of 5 seconds when the provider did not declare one.
func (d *DeviceAuthorization) PollInterval() time.Duration {
	if d.Interval <= 0 {
		return 5 * time.Second
	}
	return time.Duration(d.Interval) * time.Second
}

// ExpiresAt returns the wall-clock expiry of the device code, relative to now.
func (d *DeviceAuthorization) ExpiresAt(now time.Time) time.Time {
	return now.Add(time.Duration(d.ExpiresIn) * time.Second)
}

// Token endpoint error codes from RFC 6749 §5.2 and RFC 8628 §3.5.
// Flow control decisions are made on these codes, never on the free-form
// error_description text.
const (
	// ErrorCodeAuthorizationPending means the user has not yet completed
	// authorization; the client keeps polling at the current interval.
	ErrorCodeAuthorizationPending = "authorization_pending"

	// ErrorCodeSlowDown means the client is polling too fast; the interval
	// must be increased by SlowDownIncrement before the next poll.
	ErrorCodeSlowDown = "slow_down"

	// ErrorCodeAccessDenied means the user declined the authorization request.
	ErrorCodeAccessDenied = "access_denied"

	// ErrorCodeExpiredToken means the device code expired before the user
	// completed authorization.
	ErrorCodeExpiredToken = "expired_token"

	// ErrorCodeInvalidGrant means the presented code or grant is not valid.
	ErrorCodeInvalidGrant = "invalid_grant"
)

// SlowDownIncrement is the interval increase mandated by RFC 8628 when the
// token endpoint answers slow_down.
const SlowDownIncrement = 5 * time.Second

// TokenEndpointError is a structured OAuth error response from a token
// endpoint.
type TokenEndpointError struct {
	// Code is the machine-readable error code ("authorization_pending", ...).
	Code string `json:"error"`

	// Description is the optional human-readable error_description.
	Description string `json:"error_description,omitempty"`

	// StatusCode is the HTTP status the error arrived with.
	StatusCode int `json:"-"`
}

// Error implements the error interface.
func (e *TokenEndpointError) Error() string {
	if e.Description != "" {
		return "token endpoint error: " + e.Code + ": " + e.Description
	}
	return "token endpoint error: " + e.Code
}

// IsPending reports whether the error means "keep polling".
func (e *TokenEndpointError) IsPending() bool {
	return e.Code == ErrorCodeAuthorizationPending
}

// IsSlowDown reports whether the error asks the client to back off.
func (e *TokenEndpointError) IsSlowDown() bool {
	return e.Code == ErrorCodeSlowDown
}

// IsDenied reports whether the user declined authorization.
func (e *TokenEndpointError) IsDenied() bool {
	return e.Code == ErrorCodeAccessDenied
}

// IsExpired reports whether the device code expired.
func (e *TokenEndpointError) IsExpired() bool {
	return e.Code == ErrorCodeExpiredToken
}

// Endpoints describes the provider endpoints a flow engine talks to.
// The yaml tags match the provider registry overlay schema.
type Endpoints struct {
	// AuthorizationEndpoint is the browser-facing consent URL.
	AuthorizationEndpoint string `yaml:"authorization_endpoint,omitempty" json:"authorization_endpoint,omitempty"`

	// DeviceAuthorizationEndpoint is the RFC 8628 device authorization URL.
	DeviceAuthorizationEndpoint string `yaml:"device_authorization_endpoint,omitempty" json:"device_authorization_endpoint,omitempty"`

	// TokenEndpoint is where codes and device codes are exchanged for tokens.
	TokenEndpoint string `yaml:"token_endpoint,omitempty" json:"token_endpoint,omitempty"`
}
