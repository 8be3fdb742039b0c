package oauth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// DefaultHTTPTimeout is the default timeout for HTTP requests.
const DefaultHTTPTimeout = 30 * time.Second

// ErrMalformedResponse marks provider responses the client could not use:
// non-JSON bodies, responses missing required fields, and error statuses
// without a structured OAuth error body. Distinct from *TokenEndpointError,
// which carries a typed protocol error code.
var ErrMalformedResponse = errors.New("malformed provider response")

// Client performs the provider-facing OAuth protocol operations shared by the
// flow engines: device authorization requests, device token polling, and
// authorization code exchange.
type Client struct {
	httpClient *http.Client
}

// ClientOption configures the OAuth client.
type ClientOption func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// NewClient creates a new OAuth client.
func NewClient(opts ...ClientOption) *Client {
	c := &Client{
		httpClient: &http.Client{Timeout: DefaultHTTPTimeout},
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// RequestDeviceAuthorization starts an RFC 8628 device flow by requesting a
// device authorization grant.
func (c *Client) RequestDeviceAuthorization(ctx context.Context, endpoint, clientID, scope string) (*DeviceAuthorization, error) {
	data := url.Values{
		"client_id": {clientID},
	}
	if scope != "" {
		data.Set("scope", scope)
	}

	body, err := c.doFormRequest(ctx, endpoint, data)
	if err != nil {
		return nil, err
	}

	var auth DeviceAuthorization
	if err := json.Unmarshal(body, &auth); err != nil {
		return nil, fmt.Errorf("%w: failed to parse device authorization response: %v", ErrMalformedResponse, err)
	}
	if auth.DeviceCode == "" {
		return nil, fmt.Errorf("%w: device authorization response missing device_code", ErrMalformedResponse)
	}
	if auth.VerificationURI == "" {
		return nil, fmt.Errorf("%w: device authorization response missing verification_uri", ErrMalformedResponse)
	}

	return &auth, nil
}

// PollDeviceToken issues a single device-flow token poll. While the user has
// not completed authorization it returns a *TokenEndpointError whose code
// drives the poll loop (authorization_pending, slow_down, access_denied,
// expired_token).
func (c *Client) PollDeviceToken(ctx context.Context, tokenEndpoint, clientID, deviceCode string) (*Token, error) {
	data := url.Values{
		"grant_type":  {"urn:ietf:params:oauth:grant-type:device_code"},
		"device_code": {deviceCode},
		"client_id":   {clientID},
	}

	return c.doTokenRequest(ctx, tokenEndpoint, data)
}

// ExchangeAuthorizationCode exchanges an authorization code for tokens.
func (c *Client) ExchangeAuthorizationCode(ctx context.Context, tokenEndpoint, code, redirectURI, clientID, codeVerifier string) (*Token, error) {
	data := url.Values{
		"grant_type":   {"authorization_code"},
		"code":         {code},
		"redirect_uri": {redirectURI},
		"client_id":    {clientID},
	}
	if codeVerifier != "" {
		data.Set("code_verifier", codeVerifier)
	}

	return c.doTokenRequest(ctx, tokenEndpoint, data)
}

// doTokenRequest performs a token endpoint request. Non-2xx responses carrying
// a structured OAuth error body are returned as *TokenEndpointError so callers
// can match on the error code.
func (c *Client) doTokenRequest(ctx context.Context, tokenEndpoint string, data url.Values) (*Token, error) {
	body, err := c.doFormRequest(ctx, tokenEndpoint, data)
	if err != nil {
		return nil, err
	}

	var token Token
	if err := json.Unmarshal(body, &token); err != nil {
		return nil, fmt.Errorf("%w: failed to parse token response: %v", ErrMalformedResponse, err)
	}
	if token.AccessToken == "" {
		return nil, fmt.Errorf("%w: token response missing access_token", ErrMalformedResponse)
	}

	token.SetExpiresAtFromExpiresIn()

	return &token, nil
}

// doFormRequest POSTs form-encoded data and returns the response body.
func (c *Client) doFormRequest(ctx context.Context, endpoint string, data url.Values) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(data.Encode()))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request to %s failed: %w", endpoint, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response from %s: %w", endpoint, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		if oauthErr := parseErrorBody(body, resp.StatusCode); oauthErr != nil {
			return nil, oauthErr
		}
		return nil, fmt.Errorf("%w: request to %s failed with status %d", ErrMalformedResponse, endpoint, resp.StatusCode)
	}

	return body, nil
}

// parseErrorBody decodes an RFC 6749 error response. Returns nil if the body
// does not carry a structured error code.
func parseErrorBody(body []byte, statusCode int) *TokenEndpointError {
	var e TokenEndpointError
	if err := json.Unmarshal(body, &e); err != nil || e.Code == "" {
		return nil
	}
	e.StatusCode = statusCode
	return &e
}
