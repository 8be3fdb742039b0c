package prober

import (
	"context"
	"fmt"
	"os/exec"
	"runtime"
	"strings"
	"sync"
	"time"

	"grantor/pkg/logging"

	"golang.org/x/sync/singleflight"
)

// checkTTL is how long a probe result stays valid. Probing forks a process,
// so concurrent and rapid repeat checks are collapsed onto one result.
const checkTTL = time.Minute

// versionTimeout bounds the --version invocation of a candidate binary.
const versionTimeout = 5 * time.Second

// candidateBinaries are probed in preference order.
var candidateBinaries = []string{
	"chromium",
	"chromium-browser",
	"google-chrome",
	"google-chrome-stable",
	"chrome",
}

// Availability is the result of probing for a runnable automation browser.
type Availability struct {
	// Available reports whether an automation browser can be launched.
	Available bool `json:"available"`

	// BinaryPath is the resolved executable, when available.
	BinaryPath string `json:"binary_path,omitempty"`

	// Version is the browser's reported version string, when available.
	Version string `json:"version,omitempty"`

	// Reason explains why the browser is unavailable.
	Reason string `json:"reason,omitempty"`
}

// Prober checks whether the automated-browser engine can run on this host.
// Results are cached briefly and concurrent checks are deduplicated.
type Prober struct {
	group singleflight.Group

	mu      sync.Mutex
	cached  *Availability
	checked time.Time
}

// New creates a Prober.
func New() *Prober {
	return &Prober{}
}

// Check probes for a runnable automation browser. The probe resolves a
// candidate binary on PATH and confirms it answers --version. Check never
// returns an error for "not installed"; that is an Availability with
// Available false and a Reason.
func (p *Prober) Check(ctx context.Context) (*Availability, error) {
	p.mu.Lock()
	if p.cached != nil && time.Since(p.checked) < checkTTL {
		cached := p.cached
		p.mu.Unlock()
		return cached, nil
	}
	p.mu.Unlock()

	v, err, _ := p.group.Do("check", func() (interface{}, error) {
		avail := p.probe(ctx)
		p.mu.Lock()
		p.cached = avail
		p.checked = time.Now()
		p.mu.Unlock()
		return avail, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Availability), nil
}

// Invalidate drops the cached probe result. Called after an install attempt.
func (p *Prober) Invalidate() {
	p.mu.Lock()
	p.cached = nil
	p.mu.Unlock()
}

func (p *Prober) probe(ctx context.Context) *Availability {
	for _, name := range candidateBinaries {
		path, err := exec.LookPath(name)
		if err != nil {
			continue
		}

		version, err := probeVersion(ctx, path)
		if err != nil {
			logging.Debug("Prober", "Candidate %s found but not runnable: %v", path, err)
			continue
		}

		logging.Debug("Prober", "Automation browser available: %s (%s)", path, version)
		return &Availability{
			Available:  true,
			BinaryPath: path,
			Version:    version,
		}
	}

	return &Availability{
		Available: false,
		Reason:    "no chromium-family browser found on PATH",
	}
}

func probeVersion(ctx context.Context, path string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, versionTimeout)
	defer cancel()

	out, err := exec.CommandContext(ctx, path, "--version").Output()
	if err != nil {
		return "", fmt.Errorf("%s --version failed: %w", path, err)
	}
	return strings.TrimSpace(string(out)), nil
}

// InstallEvent is one progress update from an installation attempt.
type InstallEvent struct {
	// Message is a human-readable progress line.
	Message string `json:"message"`

	// Done marks the final event of the stream.
	Done bool `json:"done"`

	// Success reports the installation outcome, valid when Done is true.
	Success bool `json:"success"`
}

// Install attempts to install a chromium browser via the platform package
// manager and streams progress events. The returned channel is closed after
// the final Done event. The probe cache is invalidated on completion so the
// next Check observes the new state.
func (p *Prober) Install(ctx context.Context) (<-chan InstallEvent, error) {
	name, args, err := installCommand()
	if err != nil {
		return nil, err
	}

	events := make(chan InstallEvent, 8)
	go func() {
		defer close(events)
		defer p.Invalidate()

		events <- InstallEvent{Message: fmt.Sprintf("Running %s %s", name, strings.Join(args, " "))}

		cmd := exec.CommandContext(ctx, name, args...)
		out, err := cmd.CombinedOutput()
		for _, line := range tailLines(string(out), 5) {
			events <- InstallEvent{Message: line}
		}
		if err != nil {
			logging.Warn("Prober", "Browser install failed: %v", err)
			events <- InstallEvent{Message: fmt.Sprintf("Installation failed: %v", err), Done: true}
			return
		}
		events <- InstallEvent{Message: "Installation complete", Done: true, Success: true}
	}()

	return events, nil
}

// installCommand picks the platform package manager invocation.
func installCommand() (string, []string, error) {
	switch runtime.GOOS {
	case "linux":
		if _, err := exec.LookPath("apt-get"); err == nil {
			return "apt-get", []string{"install", "-y", "chromium"}, nil
		}
		if _, err := exec.LookPath("dnf"); err == nil {
			return "dnf", []string{"install", "-y", "chromium"}, nil
		}
		return "", nil, fmt.Errorf("no supported package manager found (tried apt-get, dnf)")
	case "darwin":
		if _, err := exec.LookPath("brew"); err == nil {
			return "brew", []string{"install", "--cask", "chromium"}, nil
		}
		return "", nil, fmt.Errorf("homebrew not found; install chromium manually")
	default:
		return "", nil, fmt.Errorf("automated install not supported on %s", runtime.GOOS)
	}
}

func tailLines(s string, n int) []string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	out := make([]string, 0, len(lines))
	for _, l := range lines {
		if strings.TrimSpace(l) != "" {
			out = append(out, strings.TrimSpace(l))
		}
	}
	return out
}
