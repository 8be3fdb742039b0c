package cmd

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"grantor/internal/classify"
	"grantor/internal/registry"
	"grantor/internal/session"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func transitionsChan(transitions ...session.Transition) <-chan session.Transition {
	ch := make(chan session.Transition, len(transitions))
	for _, tr := range transitions {
		ch <- tr
	}
	close(ch)
	return ch
}

func TestRenderSession_Success(t *testing.T) {
	var buf bytes.Buffer
	cmd := newOutCommand(&buf)

	err := renderSession(cmd, transitionsChan(
		session.Transition{State: session.StateCreated, ProviderID: "acme", Timestamp: time.Now()},
		session.Transition{
			State:           session.StateAwaitingUserAction,
			ProviderID:      "acme",
			UserCode:        "WDJB-MJHT",
			VerificationURI: "https://idp.test/activate",
		},
		session.Transition{State: session.StatePolling, ProviderID: "acme"},
		session.Transition{State: session.StateSucceeded, ProviderID: "acme"},
	))
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, "WDJB-MJHT")
	assert.Contains(t, out, "https://idp.test/activate")
	assert.Contains(t, out, "Credential for acme stored.")
}

func TestRenderSession_Cancelled(t *testing.T) {
	var buf bytes.Buffer
	cmd := newOutCommand(&buf)

	err := renderSession(cmd, transitionsChan(
		session.Transition{State: session.StateCancelled, ProviderID: "acme"},
	))

	// Cancellation is reported calmly but still carries the user-action
	// outcome for the exit code.
	var cerr *classify.ClassifiedError
	require.True(t, errors.As(err, &cerr))
	assert.True(t, cerr.IsUserAction())
	assert.Contains(t, buf.String(), "Acquisition cancelled. Nothing was stored.")
	assert.NotContains(t, buf.String(), "Acquisition failed")
}

func TestRenderSession_Failed(t *testing.T) {
	var buf bytes.Buffer
	cmd := newOutCommand(&buf)

	cerr := classify.Classify(classify.ErrFlowTimeout)
	err := renderSession(cmd, transitionsChan(
		session.Transition{State: session.StateFailed, ProviderID: "acme", Err: cerr},
	))
	require.Error(t, err)

	out := buf.String()
	assert.Contains(t, out, "Acquisition failed")
	assert.Contains(t, out, cerr.HumanMessage)
	for _, step := range cerr.Remediation {
		assert.Contains(t, out, step)
	}
}

func TestPromptSecret_WritesPromptToCommandWriter(t *testing.T) {
	orig := passwordReader
	passwordReader = func(prompt string) ([]byte, error) {
		return []byte("sk-live-abc"), nil
	}
	defer func() { passwordReader = orig }()

	var buf bytes.Buffer
	cmd := newOutCommand(&buf)

	secret, err := promptSecret(cmd, "Acme")
	require.NoError(t, err)
	assert.Equal(t, "sk-live-abc", secret.Value())
	assert.Contains(t, buf.String(), "Acme API key")
}

func TestResolveStrategy(t *testing.T) {
	provider := &registry.ProviderDescriptor{
		ID: "acme",
		Strategies: []registry.AcquisitionStrategy{
			registry.StrategyCallback,
			registry.StrategyPastedSecret,
		},
	}

	acquireStrategy = ""
	s, err := resolveStrategy(provider)
	require.NoError(t, err)
	assert.Equal(t, registry.StrategyCallback, s, "defaults to the provider's first strategy")

	acquireStrategy = "pasted_secret"
	s, err = resolveStrategy(provider)
	require.NoError(t, err)
	assert.Equal(t, registry.StrategyPastedSecret, s)

	acquireStrategy = "device_code"
	_, err = resolveStrategy(provider)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "does not support")

	acquireStrategy = "bogus"
	_, err = resolveStrategy(provider)
	require.Error(t, err)

	acquireStrategy = ""
}
