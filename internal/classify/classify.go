package classify

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"

	"grantor/pkg/oauth"
)

// Kind is the closed failure taxonomy. Every failure a flow engine can
// produce maps onto exactly one Kind before it reaches a subscriber.
type Kind string

const (
	// KindUserCancelled means the user cancelled the acquisition, either
	// locally or by declining on the provider side. Not an error banner.
	KindUserCancelled Kind = "user_cancelled"

	// KindBrowserClosed means the user closed the automated browser window.
	// Treated as voluntary user action, not a system failure.
	KindBrowserClosed Kind = "browser_closed"

	// KindTimeout means the flow ran out of time: device code expired, the
	// callback never arrived, or the wall-clock cap was hit.
	KindTimeout Kind = "timeout"

	// KindNetworkError means the provider could not be reached.
	KindNetworkError Kind = "network_error"

	// KindAutomationUnavailable means the automated browser engine is not
	// installed or not runnable.
	KindAutomationUnavailable Kind = "automation_unavailable"

	// KindInvalidResponse means the provider answered with something the
	// flow could not use: malformed JSON, unexpected error code, missing
	// fields, or a state mismatch.
	KindInvalidResponse Kind = "invalid_response"

	// KindUnknown is the fallback for genuinely unrecognized failures.
	KindUnknown Kind = "unknown"
)

// Sentinel errors the flow engines return. Keeping them here makes the
// classifier the single authority over how each one surfaces to users;
// engines never format user-facing messages themselves.
var (
	// ErrCancelled is returned when a session observes its cancellation flag.
	ErrCancelled = errors.New("acquisition cancelled")

	// ErrBrowserClosed is returned when the driven browser process exits
	// before reaching the completion marker.
	ErrBrowserClosed = errors.New("automation browser closed")

	// ErrFlowTimeout is returned when a flow exceeds its wall-clock bound.
	ErrFlowTimeout = errors.New("acquisition timed out")

	// ErrAutomationUnavailable is returned when the automated browser engine
	// is not installed or not runnable.
	ErrAutomationUnavailable = errors.New("automated browser unavailable")

	// ErrInvalidResponse is returned when a provider response cannot be used.
	ErrInvalidResponse = errors.New("invalid provider response")

	// ErrStateMismatch is returned when a callback arrives with a state value
	// that does not match the session's anti-forgery state.
	ErrStateMismatch = errors.New("oauth state mismatch")
)

// ClassifiedError is the normalized failure handed to subscribers.
type ClassifiedError struct {
	// Kind is the taxonomy bucket.
	Kind Kind `json:"kind"`

	// HumanMessage is the user-facing summary.
	HumanMessage string `json:"human_message"`

	// Remediation is an ordered list of suggested next steps.
	Remediation []string `json:"remediation,omitempty"`

	// Retryable reports whether retrying the same strategy may succeed.
	Retryable bool `json:"retryable"`

	// Cause is the original error, kept for diagnostics only.
	Cause error `json:"-"`
}

// Error implements the error interface.
func (e *ClassifiedError) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.HumanMessage)
}

// Unwrap returns the original cause for error chain inspection.
func (e *ClassifiedError) Unwrap() error {
	return e.Cause
}

// IsUserAction reports whether the failure represents voluntary user action
// (cancel, closed window). Callers deliver these as terminal transitions but
// must not surface them as error banners.
func (e *ClassifiedError) IsUserAction() bool {
	return e.Kind == KindUserCancelled || e.Kind == KindBrowserClosed
}

// Classify maps a raw engine failure into the closed taxonomy. It is a pure
// function: same error in, same classification out.
func Classify(err error) *ClassifiedError {
	if err == nil {
		return nil
	}

	// An already-classified error passes through unchanged.
	var classified *ClassifiedError
	if errors.As(err, &classified) {
		return classified
	}

	switch {
	case errors.Is(err, ErrCancelled), errors.Is(err, context.Canceled):
		return &ClassifiedError{
			Kind:         KindUserCancelled,
			HumanMessage: "Authorization was cancelled.",
			Retryable:    false,
			Cause:        err,
		}

	case errors.Is(err, ErrBrowserClosed):
		return &ClassifiedError{
			Kind:         KindBrowserClosed,
			HumanMessage: "The sign-in window was closed before authorization completed.",
			Retryable:    false,
			Cause:        err,
		}

	case errors.Is(err, ErrAutomationUnavailable):
		return &ClassifiedError{
			Kind:         KindAutomationUnavailable,
			HumanMessage: "The automated browser engine is not available.",
			Remediation: []string{
				"Run 'grantor automation install' to install the automated browser.",
				"Use the device-code or browser callback strategy instead.",
			},
			Retryable: false,
			Cause:     err,
		}

	case errors.Is(err, ErrFlowTimeout), errors.Is(err, context.DeadlineExceeded):
		return timeoutError(err)

	case errors.Is(err, ErrStateMismatch), errors.Is(err, ErrInvalidResponse),
		errors.Is(err, oauth.ErrMalformedResponse):
		return invalidResponseError(err)
	}

	// Provider token-endpoint errors carry typed codes.
	var oauthErr *oauth.TokenEndpointError
	if errors.As(err, &oauthErr) {
		switch {
		case oauthErr.IsDenied():
			return &ClassifiedError{
				Kind:         KindUserCancelled,
				HumanMessage: "Authorization was declined on the provider's page.",
				Retryable:    false,
				Cause:        err,
			}
		case oauthErr.IsExpired():
			return timeoutError(err)
		default:
			return invalidResponseError(err)
		}
	}

	// Transport failures: timeouts first, then connectivity.
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return timeoutError(err)
	}
	var urlErr *url.Error
	var opErr *net.OpError
	var dnsErr *net.DNSError
	if errors.As(err, &urlErr) || errors.As(err, &opErr) || errors.As(err, &dnsErr) {
		return &ClassifiedError{
			Kind:         KindNetworkError,
			HumanMessage: "Could not reach the identity provider.",
			Remediation: []string{
				"Check your network connection.",
				"Check proxy or VPN settings.",
				"Retry in a few moments.",
			},
			Retryable: true,
			Cause:     err,
		}
	}

	return &ClassifiedError{
		Kind:         KindUnknown,
		HumanMessage: "Credential acquisition failed unexpectedly.",
		Remediation: []string{
			"Retry the acquisition.",
			"Run with --log-level debug and inspect the logs.",
		},
		Retryable: true,
		Cause:     err,
	}
}

func timeoutError(cause error) *ClassifiedError {
	return &ClassifiedError{
		Kind:         KindTimeout,
		HumanMessage: "Authorization did not complete in time.",
		Remediation: []string{
			"Start the acquisition again.",
			"Complete the provider's authorization prompt promptly after it opens.",
		},
		Retryable: true,
		Cause:     cause,
	}
}

func invalidResponseError(cause error) *ClassifiedError {
	return &ClassifiedError{
		Kind:         KindInvalidResponse,
		HumanMessage: "The identity provider returned an unexpected response.",
		Remediation: []string{
			"Retry the acquisition.",
			"Verify the provider configuration (client id, endpoints).",
		},
		Retryable: true,
		Cause:     cause,
	}
}
