package flow

import (
	"context"
	"fmt"
	"net/url"

	"grantor/internal/classify"
	"grantor/internal/registry"
	"grantor/internal/session"
	"grantor/internal/store"
	"grantor/pkg/logging"
	"grantor/pkg/oauth"
)

// CallbackEngine implements the authorization-code flow with PKCE: open the
// provider's consent page in the system browser and receive the code on a
// short-lived loopback listener.
type CallbackEngine struct {
	client      *oauth.Client
	openBrowser BrowserOpener
}

// NewCallbackEngine creates a callback engine. openBrowser may be nil, in
// which case the system default browser is used.
func NewCallbackEngine(client *oauth.Client, openBrowser BrowserOpener) *CallbackEngine {
	if openBrowser == nil {
		openBrowser = OpenBrowser
	}
	return &CallbackEngine{client: client, openBrowser: openBrowser}
}

// Run executes the callback flow for one session.
func (e *CallbackEngine) Run(ctx context.Context, sess *session.Session, provider *registry.ProviderDescriptor, _ session.Params) (*store.CredentialRecord, error) {
	if provider.Endpoints.AuthorizationEndpoint == "" || provider.Endpoints.TokenEndpoint == "" {
		return nil, fmt.Errorf("%w: provider %s has no authorization code endpoints", classify.ErrInvalidResponse, provider.ID)
	}

	pkce, err := oauth.GeneratePKCE()
	if err != nil {
		return nil, err
	}
	state, err := oauth.GenerateState()
	if err != nil {
		return nil, err
	}

	server := newCallbackServer()
	redirectURI, err := server.Start(ctx)
	if err != nil {
		return nil, err
	}
	// The port is released on every exit path, including cancellation.
	defer server.Stop()

	authorizeURL := buildAuthorizeURL(provider, redirectURI, state, pkce)
	if err := sess.SetAuthorizationURL(authorizeURL); err != nil {
		return nil, err
	}

	if err := e.openBrowser(authorizeURL); err != nil {
		// Not fatal: the URL is on the session for the user to open manually.
		logging.Warn("Flow", "Could not open browser for %s: %v", provider.ID, err)
	}

	if err := sess.MarkListening(); err != nil {
		return nil, err
	}

	result, err := server.Wait(ctx)
	if err != nil {
		return nil, err
	}

	token, err := exchangeCallback(ctx, e.client, provider, result, redirectURI, state, pkce)
	if err != nil {
		return nil, err
	}

	return recordFromToken(provider.ID, sess.DisplayName(), store.AuthMethodOAuth, store.SourceCallbackFlow, token), nil
}

// exchangeCallback validates the callback result and trades the code for
// tokens. Shared by the system-browser and automated-browser flows.
func exchangeCallback(ctx context.Context, client *oauth.Client, provider *registry.ProviderDescriptor, result *callbackResult, redirectURI, state string, pkce *oauth.PKCEChallenge) (*oauth.Token, error) {
	if result.IsError() {
		// Provider-side errors arrive typed so the classifier can tell a
		// user's "deny" apart from a protocol problem.
		return nil, &oauth.TokenEndpointError{
			Code:        result.Error,
			Description: result.ErrorDescription,
		}
	}
	if result.State != state {
		return nil, classify.ErrStateMismatch
	}
	if result.Code == "" {
		return nil, fmt.Errorf("%w: callback carried no authorization code", classify.ErrInvalidResponse)
	}

	return client.ExchangeAuthorizationCode(ctx,
		provider.Endpoints.TokenEndpoint, result.Code, redirectURI, provider.ClientID, pkce.CodeVerifier)
}

func buildAuthorizeURL(provider *registry.ProviderDescriptor, redirectURI, state string, pkce *oauth.PKCEChallenge) string {
	q := url.Values{
		"response_type":         {"code"},
		"client_id":             {provider.ClientID},
		"redirect_uri":          {redirectURI},
		"state":                 {state},
		"code_challenge":        {pkce.CodeChallenge},
		"code_challenge_method": {pkce.CodeChallengeMethod},
	}
	if provider.Scopes != "" {
		q.Set("scope", provider.Scopes)
	}
	return provider.Endpoints.AuthorizationEndpoint + "?" + q.Encode()
}
