package flow

import (
	"context"
	"fmt"
	"os"
	"os/exec"

	"grantor/internal/classify"
	"grantor/internal/prober"
	"grantor/internal/registry"
	"grantor/internal/session"
	"grantor/internal/store"
	"grantor/pkg/logging"
	"grantor/pkg/oauth"
)

// AutomatedBrowserEngine drives a dedicated browser window through the
// consent flow for environments where the system-browser path is blocked.
// The browser runs with an isolated throwaway profile and is pointed at the
// provider's consent page; the authorization code still arrives on the
// loopback redirect.
type AutomatedBrowserEngine struct {
	client *oauth.Client
	prober *prober.Prober
}

// NewAutomatedBrowserEngine creates an automated-browser engine.
func NewAutomatedBrowserEngine(client *oauth.Client, p *prober.Prober) *AutomatedBrowserEngine {
	return &AutomatedBrowserEngine{client: client, prober: p}
}

// Run executes the automated-browser flow for one session. It fails fast
// before any provider traffic when no automation browser is runnable.
func (e *AutomatedBrowserEngine) Run(ctx context.Context, sess *session.Session, provider *registry.ProviderDescriptor, _ session.Params) (*store.CredentialRecord, error) {
	avail, err := e.prober.Check(ctx)
	if err != nil {
		return nil, err
	}
	if !avail.Available {
		return nil, fmt.Errorf("%w: %s", classify.ErrAutomationUnavailable, avail.Reason)
	}

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
	defer server.Stop()

	authorizeURL := buildAuthorizeURL(provider, redirectURI, state, pkce)

	profileDir, err := os.MkdirTemp("", "grantor-browser-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create browser profile dir: %w", err)
	}
	defer os.RemoveAll(profileDir)

	// Cancelling ctx kills the browser through CommandContext.
	cmd := exec.CommandContext(ctx, avail.BinaryPath,
		"--user-data-dir="+profileDir,
		"--no-first-run",
		"--no-default-browser-check",
		"--new-window",
		"--app="+authorizeURL,
	)
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("%w: failed to launch %s: %v", classify.ErrAutomationUnavailable, avail.BinaryPath, err)
	}
	logging.Info("Flow", "Automation browser launched for %s (pid=%d, marker=%s)",
		provider.ID, cmd.Process.Pid, provider.CompletionMarker)

	if err := sess.MarkDriving(); err != nil {
		_ = cmd.Process.Kill()
		_ = cmd.Wait()
		return nil, err
	}

	// Closed after the exit status is delivered so the deferred reaper never
	// blocks once the process is gone.
	browserExited := make(chan error, 1)
	go func() {
		browserExited <- cmd.Wait()
		close(browserExited)
	}()

	// The window is closed for the user once the flow completes; the
	// process is reaped on every path.
	defer func() {
		select {
		case <-browserExited:
		default:
			_ = cmd.Process.Kill()
			<-browserExited
		}
	}()

	var result *callbackResult
	resultCh := make(chan *callbackResult, 1)
	errCh := make(chan error, 1)
	go func() {
		r, err := server.Wait(ctx)
		if err != nil {
			errCh <- err
			return
		}
		resultCh <- r
	}()

	select {
	case result = <-resultCh:
	case err := <-errCh:
		return nil, err
	case waitErr := <-browserExited:
		// Drain a callback that raced with the window closing.
		select {
		case result = <-resultCh:
		default:
			logging.Debug("Flow", "Automation browser exited before callback: %v", waitErr)
			return nil, classify.ErrBrowserClosed
		}
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	token, err := exchangeCallback(ctx, e.client, provider, result, redirectURI, state, pkce)
	if err != nil {
		return nil, err
	}

	return recordFromToken(provider.ID, sess.DisplayName(), store.AuthMethodOAuth, store.SourceAutomatedBrowser, token), nil
}
