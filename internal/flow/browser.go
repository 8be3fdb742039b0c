package flow

import (
	"fmt"
	"os/exec"
	"runtime"
)

// BrowserOpener opens a URL in the user's browser. Injected so tests and the
// daemon can suppress the real browser.
type BrowserOpener func(url string) error

// OpenBrowser opens the URL in the system default browser. A failure here is
// not fatal to a flow; the URL is still surfaced on the session for the user
// to open manually.
func OpenBrowser(url string) error {
	var cmd *exec.Cmd

	switch runtime.GOOS {
	case "linux":
		cmd = exec.Command("xdg-open", url)
	case "darwin":
		cmd = exec.Command("open", url)
	case "windows":
		cmd = exec.Command("cmd", "/c", "start", url)
	default:
		return fmt.Errorf("unsupported platform: %s", runtime.GOOS)
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to open browser: %w", err)
	}
	return nil
}
