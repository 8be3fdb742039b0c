package daemon

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"grantor/pkg/logging"

	"github.com/coreos/go-systemd/v22/daemon"
	"golang.org/x/sync/errgroup"
)

// DefaultAddr is where the daemon listens. Loopback only; the session API is
// not meant to be reachable from other hosts.
const DefaultAddr = "127.0.0.1:8428"

// shutdownTimeout bounds graceful shutdown of in-flight requests.
const shutdownTimeout = 10 * time.Second

// Config carries daemon settings.
type Config struct {
	// Addr is the listen address. Defaults to DefaultAddr.
	Addr string
}

// Daemon is the long-running acquisition service: it exposes the session,
// provider, credential, and automation APIs over loopback HTTP with
// server-sent events for session streams.
type Daemon struct {
	config Config
	server *http.Server
}

// New creates a daemon.
func New(config Config) *Daemon {
	if config.Addr == "" {
		config.Addr = DefaultAddr
	}
	return &Daemon{config: config}
}

// Run serves until ctx is cancelled, then shuts down gracefully. It notifies
// systemd of readiness and stopping when running under a Type=notify unit.
func (d *Daemon) Run(ctx context.Context) error {
	listener, err := net.Listen("tcp", d.config.Addr)
	if err != nil {
		return fmt.Errorf("failed to bind %s: %w", d.config.Addr, err)
	}

	d.server = &http.Server{
		Handler:           newRouter(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	logging.Info("Daemon", "Listening on %s", listener.Addr())
	if _, err := daemon.SdNotify(false, daemon.SdNotifyReady); err != nil {
		logging.Debug("Daemon", "sd_notify not available: %v", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := d.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		logging.Info("Daemon", "Shutting down")
		return d.server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
