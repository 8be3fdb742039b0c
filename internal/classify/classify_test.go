package classify

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"testing"

	"grantor/pkg/oauth"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassify_Nil(t *testing.T) {
	assert.Nil(t, Classify(nil))
}

func TestClassify_Taxonomy(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantKind   Kind
		retryable  bool
		userAction bool
	}{
		{
			name:       "cancel sentinel",
			err:        ErrCancelled,
			wantKind:   KindUserCancelled,
			userAction: true,
		},
		{
			name:       "context canceled",
			err:        context.Canceled,
			wantKind:   KindUserCancelled,
			userAction: true,
		},
		{
			name:       "wrapped cancel",
			err:        fmt.Errorf("device poll: %w", ErrCancelled),
			wantKind:   KindUserCancelled,
			userAction: true,
		},
		{
			name:       "browser closed",
			err:        ErrBrowserClosed,
			wantKind:   KindBrowserClosed,
			userAction: true,
		},
		{
			name:     "automation unavailable",
			err:      ErrAutomationUnavailable,
			wantKind: KindAutomationUnavailable,
		},
		{
			name:      "flow timeout",
			err:       ErrFlowTimeout,
			wantKind:  KindTimeout,
			retryable: true,
		},
		{
			name:      "context deadline",
			err:       context.DeadlineExceeded,
			wantKind:  KindTimeout,
			retryable: true,
		},
		{
			name:      "state mismatch",
			err:       ErrStateMismatch,
			wantKind:  KindInvalidResponse,
			retryable: true,
		},
		{
			name:      "malformed provider response",
			err:       oauth.ErrMalformedResponse,
			wantKind:  KindInvalidResponse,
			retryable: true,
		},
		{
			name:      "wrapped malformed response",
			err:       fmt.Errorf("%w: token response missing access_token", oauth.ErrMalformedResponse),
			wantKind:  KindInvalidResponse,
			retryable: true,
		},
		{
			name:       "provider access_denied",
			err:        &oauth.TokenEndpointError{Code: oauth.ErrorCodeAccessDenied},
			wantKind:   KindUserCancelled,
			userAction: true,
		},
		{
			name:      "provider expired_token",
			err:       &oauth.TokenEndpointError{Code: oauth.ErrorCodeExpiredToken},
			wantKind:  KindTimeout,
			retryable: true,
		},
		{
			name:      "provider invalid_grant",
			err:       &oauth.TokenEndpointError{Code: oauth.ErrorCodeInvalidGrant},
			wantKind:  KindInvalidResponse,
			retryable: true,
		},
		{
			name:      "url error",
			err:       &url.Error{Op: "Post", URL: "https://idp.example.com/token", Err: errors.New("connection refused")},
			wantKind:  KindNetworkError,
			retryable: true,
		},
		{
			name:      "dns error",
			err:       &net.DNSError{Name: "idp.example.com", Err: "no such host"},
			wantKind:  KindNetworkError,
			retryable: true,
		},
		{
			name:      "unknown",
			err:       errors.New("something else"),
			wantKind:  KindUnknown,
			retryable: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Classify(tt.err)
			require.NotNil(t, got)
			assert.Equal(t, tt.wantKind, got.Kind)
			assert.Equal(t, tt.retryable, got.Retryable)
			assert.Equal(t, tt.userAction, got.IsUserAction())
			assert.NotEmpty(t, got.HumanMessage)
			if got.Retryable && got.Kind != KindTimeout {
				assert.NotEmpty(t, got.Remediation, "retryable errors should carry remediation")
			}
		})
	}
}

func TestClassify_Passthrough(t *testing.T) {
	original := Classify(ErrBrowserClosed)
	again := Classify(fmt.Errorf("wrapped: %w", original))
	assert.Same(t, original, again, "classified errors must pass through unchanged")
}

func TestClassify_Unwrap(t *testing.T) {
	cause := &oauth.TokenEndpointError{Code: oauth.ErrorCodeAccessDenied}
	got := Classify(fmt.Errorf("poll: %w", cause))

	var unwrapped *oauth.TokenEndpointError
	assert.True(t, errors.As(got, &unwrapped), "original cause must stay reachable")
}

func TestClassify_NetTimeout(t *testing.T) {
	got := Classify(&url.Error{Op: "Post", URL: "https://x", Err: &timeoutNetError{}})
	assert.Equal(t, KindTimeout, got.Kind)
}

type timeoutNetError struct{}

func (*timeoutNetError) Error() string   { return "i/o timeout" }
func (*timeoutNetError) Timeout() bool   { return true }
func (*timeoutNetError) Temporary() bool { return true }
