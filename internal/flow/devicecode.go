package flow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"grantor/internal/classify"
	"grantor/internal/registry"
	"grantor/internal/session"
	"grantor/internal/store"
	"grantor/pkg/logging"
	"grantor/pkg/oauth"
)

// DeviceCodeEngine implements the RFC 8628 device authorization flow: request
// a device grant, surface the user code, then poll the token endpoint until
// the user completes authorization or the grant expires.
type DeviceCodeEngine struct {
	client *oauth.Client
}

// NewDeviceCodeEngine creates a device-code engine.
func NewDeviceCodeEngine(client *oauth.Client) *DeviceCodeEngine {
	return &DeviceCodeEngine{client: client}
}

// Run executes the device flow for one session.
func (e *DeviceCodeEngine) Run(ctx context.Context, sess *session.Session, provider *registry.ProviderDescriptor, _ session.Params) (*store.CredentialRecord, error) {
	if provider.Endpoints.DeviceAuthorizationEndpoint == "" || provider.Endpoints.TokenEndpoint == "" {
		return nil, fmt.Errorf("%w: provider %s has no device flow endpoints", classify.ErrInvalidResponse, provider.ID)
	}

	grant, err := e.client.RequestDeviceAuthorization(ctx,
		provider.Endpoints.DeviceAuthorizationEndpoint, provider.ClientID, provider.Scopes)
	if err != nil {
		return nil, err
	}

	expiresAt := grant.ExpiresAt(time.Now())
	verificationURI := grant.VerificationURI
	if grant.VerificationURIComplete != "" {
		verificationURI = grant.VerificationURIComplete
	}
	if err := sess.SetDeviceGrant(grant.UserCode, verificationURI, expiresAt, grant.PollInterval()); err != nil {
		return nil, err
	}
	logging.Info("Flow", "Device grant issued for %s: user_code=%s interval=%s",
		provider.ID, grant.UserCode, grant.PollInterval())

	// The grant's own TTL bounds the poll loop, on top of the session cap.
	pollCtx, cancel := context.WithDeadline(ctx, expiresAt)
	defer cancel()

	if err := sess.MarkPolling(); err != nil {
		return nil, err
	}

	token, err := e.poll(pollCtx, provider, grant)
	if err != nil {
		// The grant expiring locally is a timeout, not a cancel.
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			return nil, fmt.Errorf("%w: device code expired", classify.ErrFlowTimeout)
		}
		return nil, err
	}

	return recordFromToken(provider.ID, sess.DisplayName(), store.AuthMethodDevice, store.SourceDeviceCode, token), nil
}

// poll drives the token polling loop. Flow control runs on the typed error
// codes of the token endpoint, never on message text.
func (e *DeviceCodeEngine) poll(ctx context.Context, provider *registry.ProviderDescriptor, grant *oauth.DeviceAuthorization) (*oauth.Token, error) {
	interval := grant.PollInterval()

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(interval):
		}

		token, err := e.client.PollDeviceToken(ctx, provider.Endpoints.TokenEndpoint, provider.ClientID, grant.DeviceCode)
		if err == nil {
			return token, nil
		}

		var oauthErr *oauth.TokenEndpointError
		if errors.As(err, &oauthErr) {
			switch {
			case oauthErr.IsPending():
				continue
			case oauthErr.IsSlowDown():
				interval += oauth.SlowDownIncrement
				logging.Debug("Flow", "Token endpoint asked to slow down, next interval %s", interval)
				continue
			case oauthErr.IsExpired():
				return nil, fmt.Errorf("%w: %v", classify.ErrFlowTimeout, err)
			default:
				// access_denied and friends terminate the loop as-is; the
				// classifier decides how each code surfaces.
				return nil, err
			}
		}
		return nil, err
	}
}

// recordFromToken normalizes a token response into a credential record.
func recordFromToken(providerID, displayName string, method store.AuthMethod, source store.Source, token *oauth.Token) *store.CredentialRecord {
	return &store.CredentialRecord{
		ProviderID:    providerID,
		AuthMethod:    method,
		Secret:        store.NewRedactedSecret(token.AccessToken),
		RefreshSecret: store.NewRedactedSecret(token.RefreshToken),
		Expiry:        token.ExpiresAt,
		DisplayName:   displayName,
		Source:        source,
		CreatedAt:     time.Now(),
	}
}
