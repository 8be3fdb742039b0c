package cmd

import (
	"bytes"
	"errors"
	"testing"

	"grantor/internal/classify"
	"grantor/pkg/logging"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	logging.InitForTesting()
}

func TestGetExitCode(t *testing.T) {
	assert.Equal(t, ExitCodeError, getExitCode(errors.New("boom")))

	cancelled := classify.Classify(classify.ErrCancelled)
	assert.Equal(t, ExitCodeCancelled, getExitCode(cancelled))

	closed := classify.Classify(classify.ErrBrowserClosed)
	assert.Equal(t, ExitCodeCancelled, getExitCode(closed))

	timeout := classify.Classify(classify.ErrFlowTimeout)
	assert.Equal(t, ExitCodeAcquisitionFailed, getExitCode(timeout))
}

func TestVersionCommand(t *testing.T) {
	SetVersion("1.2.3")

	var buf bytes.Buffer
	cmd := newVersionCmd()
	cmd.SetOut(&buf)
	require.NoError(t, cmd.Execute())

	assert.Equal(t, "grantor version 1.2.3\n", buf.String())
}

func TestRootCommand_HasSubcommands(t *testing.T) {
	names := map[string]bool{}
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}
	for _, expected := range []string{"acquire", "providers", "credentials", "automation", "serve", "version", "self-update"} {
		assert.True(t, names[expected], "missing subcommand %s", expected)
	}
}

func newOutCommand(buf *bytes.Buffer) *cobra.Command {
	c := &cobra.Command{}
	c.SetOut(buf)
	c.SetErr(buf)
	return c
}
