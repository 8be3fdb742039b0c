package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"grantor/internal/api"
	"grantor/internal/classify"
	"grantor/internal/registry"
	"grantor/internal/session"
	"grantor/internal/store"

	"github.com/briandowns/spinner"
	"github.com/chzyer/readline"
	"github.com/spf13/cobra"
)

var (
	acquireStrategy string
	acquireName     string
	acquirePath     string
)

func newAcquireCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "acquire <provider>",
		Short: "Acquire a credential for a provider",
		Long: `Starts a credential acquisition for the given provider and walks you
through it. The strategy defaults to the provider's preferred one; list
the alternatives with 'grantor providers'.

Press Ctrl+C at any point to cancel; a cancelled acquisition stores
nothing.`,
		Args: cobra.ExactArgs(1),
		// Terminal outcomes are rendered by the command itself; cobra only
		// contributes the exit code.
		SilenceErrors: true,
		RunE:          runAcquire,
	}

	cmd.Flags().StringVarP(&acquireStrategy, "strategy", "s", "", "acquisition strategy (device_code, authorization_code_callback, automated_browser, local_file_import, pasted_secret)")
	cmd.Flags().StringVarP(&acquireName, "name", "n", "", "display name for the stored credential")
	cmd.Flags().StringVarP(&acquirePath, "path", "p", "", "credential file path for local_file_import")
	return cmd
}

func runAcquire(cmd *cobra.Command, args []string) error {
	if err := ensureComponents(); err != nil {
		return err
	}
	providerID := args[0]

	reg := api.GetProviderRegistry()
	provider, ok := reg.Get(providerID)
	if !ok {
		return fmt.Errorf("unknown provider %q; run 'grantor providers' to list them", providerID)
	}

	strategy, err := resolveStrategy(provider)
	if err != nil {
		return err
	}

	params := session.Params{CredentialPath: acquirePath}
	if strategy == registry.StrategyPastedSecret {
		secret, err := promptSecret(cmd, provider.Label)
		if err != nil {
			return err
		}
		params.Secret = secret
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sv := api.GetSupervisor()
	id, err := sv.Start(ctx, providerID, strategy, acquireName, params)
	if err != nil {
		return err
	}

	events, err := sv.Subscribe(id)
	if err != nil {
		return err
	}

	// Ctrl+C cancels the session; the event stream then delivers the
	// Cancelled transition and closes.
	go func() {
		<-ctx.Done()
		_ = sv.Cancel(id)
	}()

	return renderSession(cmd, events)
}

// resolveStrategy picks the strategy from the flag or the provider's
// preference order.
func resolveStrategy(provider *registry.ProviderDescriptor) (registry.AcquisitionStrategy, error) {
	if acquireStrategy == "" {
		return provider.Strategies[0], nil
	}
	strategy, err := registry.ParseStrategy(acquireStrategy)
	if err != nil {
		return "", err
	}
	if !provider.Supports(strategy) {
		return "", fmt.Errorf("provider %s does not support %s (supported: %s)",
			provider.ID, strategy, strategiesString(provider.Strategies))
	}
	return strategy, nil
}

func strategiesString(strategies []registry.AcquisitionStrategy) string {
	names := make([]string, len(strategies))
	for i, s := range strategies {
		names[i] = string(s)
	}
	return strings.Join(names, ", ")
}

// passwordReader reads the secret from the terminal; swapped in tests.
var passwordReader = readline.Password

// promptSecret reads the API key without echoing it.
func promptSecret(cmd *cobra.Command, label string) (store.RedactedSecret, error) {
	fmt.Fprintf(cmd.OutOrStdout(), "Paste your %s API key (input is hidden):\n", label)
	raw, err := passwordReader("> ")
	if err != nil {
		return store.RedactedSecret{}, fmt.Errorf("failed to read secret: %w", err)
	}
	return store.NewRedactedSecret(string(raw)), nil
}

// renderSession consumes the transition stream and renders progress until the
// session reaches a terminal state. The returned error carries the classified
// outcome for the exit code.
func renderSession(cmd *cobra.Command, events <-chan session.Transition) error {
	out := cmd.OutOrStdout()

	spin := spinner.New(spinner.CharSets[14], 100*time.Millisecond, spinner.WithWriter(os.Stderr))
	defer spin.Stop()

	var final session.Transition
	for tr := range events {
		switch tr.State {
		case session.StateAwaitingUserAction:
			spin.Stop()
			if tr.UserCode != "" {
				fmt.Fprintf(out, "\nEnter code  %s  at:\n  %s\n\n", tr.UserCode, tr.VerificationURI)
			} else if tr.VerificationURI != "" {
				fmt.Fprintf(out, "\nComplete sign-in in your browser:\n  %s\n\n", tr.VerificationURI)
			}
		case session.StatePolling:
			spin.Suffix = " Waiting for authorization..."
			spin.Start()
		case session.StateListening:
			spin.Suffix = " Waiting for the browser callback..."
			spin.Start()
		case session.StateDriving:
			spin.Suffix = " Driving the sign-in window..."
			spin.Start()
		}
		final = tr
	}
	spin.Stop()

	switch final.State {
	case session.StateSucceeded:
		fmt.Fprintf(out, "Credential for %s stored.\n", final.ProviderID)
		return nil
	case session.StateCancelled:
		fmt.Fprintln(out, "Acquisition cancelled. Nothing was stored.")
		return classify.Classify(classify.ErrCancelled)
	case session.StateFailed:
		return renderFailure(cmd, final.Err)
	default:
		return fmt.Errorf("session ended in unexpected state %s", final.State)
	}
}

// renderFailure prints the classified outcome. Voluntary user actions are
// reported calmly; real failures get the human message plus remediation.
func renderFailure(cmd *cobra.Command, cerr *classify.ClassifiedError) error {
	out := cmd.OutOrStdout()
	if cerr == nil {
		return fmt.Errorf("acquisition failed")
	}

	if cerr.IsUserAction() {
		fmt.Fprintf(out, "%s Nothing was stored.\n", cerr.HumanMessage)
		return cerr
	}

	fmt.Fprintf(cmd.ErrOrStderr(), "Acquisition failed: %s\n", cerr.HumanMessage)
	for _, step := range cerr.Remediation {
		fmt.Fprintf(cmd.ErrOrStderr(), "  - %s\n", step)
	}
	return cerr
}
