package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"grantor/internal/classify"
	"grantor/internal/registry"
	"grantor/internal/store"
	"grantor/pkg/logging"

	"github.com/google/uuid"
)

// Sentinel errors returned by the Supervisor surface.
var (
	// ErrUnknownProvider is returned when the provider id is not registered.
	ErrUnknownProvider = errors.New("unknown provider")

	// ErrInvalidStrategy is returned when the provider does not support the
	// requested strategy.
	ErrInvalidStrategy = errors.New("provider does not support strategy")

	// ErrUnknownSession is returned for session ids the supervisor has never
	// seen.
	ErrUnknownSession = errors.New("unknown session")
)

// Params carries strategy-specific start inputs that must not appear in the
// session's observable state.
type Params struct {
	// CredentialPath overrides the provider's default credential file for
	// the local_file_import strategy.
	CredentialPath string

	// Secret is the pasted API key for the pasted_secret strategy.
	Secret store.RedactedSecret
}

// Engine runs one acquisition strategy for one session. Implementations drive
// the session through its intermediate states and return the credential
// record on success. Engines observe ctx at every suspend point and release
// all resources before returning.
type Engine interface {
	Run(ctx context.Context, sess *Session, provider *registry.ProviderDescriptor, params Params) (*store.CredentialRecord, error)
}

// subscriberBuffer is the per-subscriber channel capacity. A session emits at
// most a handful of transitions, so subscribers never block the engine.
const subscriberBuffer = 16

// saveTimeout bounds the credential store hand-off after a successful flow.
const saveTimeout = 30 * time.Second

// maxWallClock is the hard per-strategy bound on total session time,
// enforced regardless of provider-declared TTLs.
func maxWallClock(strategy registry.AcquisitionStrategy) time.Duration {
	switch strategy {
	case registry.StrategyDeviceCode:
		return 20 * time.Minute
	case registry.StrategyCallback, registry.StrategyAutomatedBrowser:
		return 10 * time.Minute
	default:
		return 1 * time.Minute
	}
}

// entry is the supervisor's bookkeeping for one session.
type entry struct {
	sess        *Session
	cancel      context.CancelFunc
	done        chan struct{}
	subscribers []chan Transition
}

// Supervisor owns the lifecycle of acquisition sessions. It enforces the
// at-most-one-active-session-per-(provider, strategy) invariant, multiplexes
// engine transitions to subscribers, and hands successful results to the
// credential store exactly once.
//
// The supervisor is an explicit instance constructed at startup; there is no
// package-level singleton.
type Supervisor struct {
	registry *registry.Registry
	writer   store.Writer
	engines  map[registry.AcquisitionStrategy]Engine

	mu     sync.Mutex
	active map[string]*entry // keyed by provider/strategy
	byID   map[string]*entry
}

// NewSupervisor creates a supervisor. The engines map binds each strategy to
// its flow engine; strategies without an engine cannot be started.
func NewSupervisor(reg *registry.Registry, writer store.Writer, engines map[registry.AcquisitionStrategy]Engine) *Supervisor {
	return &Supervisor{
		registry: reg,
		writer:   writer,
		engines:  engines,
		active:   make(map[string]*entry),
		byID:     make(map[string]*entry),
	}
}

func pairKey(providerID string, strategy registry.AcquisitionStrategy) string {
	return providerID + "/" + string(strategy)
}

// Start begins a new acquisition session and returns its id. If a
// non-terminal session already exists for the same (provider, strategy) pair
// it is cancelled and awaited before the new session is created.
func (sv *Supervisor) Start(ctx context.Context, providerID string, strategy registry.AcquisitionStrategy, displayName string, params Params) (string, error) {
	provider, ok := sv.registry.Get(providerID)
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownProvider, providerID)
	}
	if !provider.Supports(strategy) {
		return "", fmt.Errorf("%w: %s does not support %s", ErrInvalidStrategy, providerID, strategy)
	}
	engine, ok := sv.engines[strategy]
	if !ok {
		return "", fmt.Errorf("%w: no engine for %s", ErrInvalidStrategy, strategy)
	}

	key := pairKey(providerID, strategy)

	// Displace any existing non-terminal session for this pair. The new
	// session is not created until the old one has fully torn down.
	for {
		sv.mu.Lock()
		existing, exists := sv.active[key]
		if !exists {
			break
		}
		cancel, done := existing.cancel, existing.done
		sv.mu.Unlock()

		logging.Info("Supervisor", "Displacing active session %s for %s", existing.sess.ID(), key)
		cancel()
		select {
		case <-done:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	defer sv.mu.Unlock()

	sessCtx, cancel := context.WithTimeout(context.Background(), maxWallClock(strategy))

	id := uuid.NewString()
	e := &entry{
		cancel: cancel,
		done:   make(chan struct{}),
	}
	e.sess = newSession(id, providerID, strategy, displayName, func(t Transition) {
		sv.fanOut(e, t)
	})

	sv.active[key] = e
	sv.byID[id] = e

	logging.Info("Supervisor", "Session %s started: provider=%s strategy=%s", id, providerID, strategy)
	go sv.runSession(sessCtx, e, key, engine, provider, params)

	return id, nil
}

// runSession drives the engine to completion and performs the terminal
// bookkeeping. It is the session's single writer.
func (sv *Supervisor) runSession(ctx context.Context, e *entry, key string, engine Engine, provider *registry.ProviderDescriptor, params Params) {
	defer e.cancel()

	record, err := engine.Run(ctx, e.sess, provider, params)

	switch {
	case err == nil:
		sv.completeSuccess(e, record)
	case isCancellation(err, ctx):
		// Resources are already released: engines tear down before
		// returning a cancellation.
		if terr := e.sess.markCancelled(); terr != nil {
			logging.Warn("Supervisor", "Session %s cancel transition rejected: %v", e.sess.ID(), terr)
		}
		logging.Info("Supervisor", "Session %s cancelled", e.sess.ID())
	default:
		cerr := classify.Classify(err)
		if terr := e.sess.markFailed(cerr); terr != nil {
			logging.Warn("Supervisor", "Session %s fail transition rejected: %v", e.sess.ID(), terr)
		}
		logging.Info("Supervisor", "Session %s failed: kind=%s", e.sess.ID(), cerr.Kind)
	}

	sv.finalize(e, key)
}

// completeSuccess hands the record to the credential store and marks the
// session Succeeded. The store sees the record exactly once; a failed
// hand-off fails the session.
func (sv *Supervisor) completeSuccess(e *entry, record *store.CredentialRecord) {
	saveCtx, cancel := context.WithTimeout(context.Background(), saveTimeout)
	defer cancel()

	storedID, err := sv.writer.Save(saveCtx, record)
	if err != nil {
		cerr := classify.Classify(fmt.Errorf("credential store save failed: %w", err))
		if terr := e.sess.markFailed(cerr); terr != nil {
			logging.Warn("Supervisor", "Session %s fail transition rejected: %v", e.sess.ID(), terr)
		}
		return
	}

	if terr := e.sess.markSucceeded(); terr != nil {
		logging.Warn("Supervisor", "Session %s success transition rejected: %v", e.sess.ID(), terr)
		return
	}
	logging.Info("Supervisor", "Session %s succeeded: provider=%s stored_id=%s",
		e.sess.ID(), record.ProviderID, storedID)
}

// finalize closes subscriber streams and releases the pair key after the
// terminal transition has been fanned out.
func (sv *Supervisor) finalize(e *entry, key string) {
	sv.mu.Lock()
	if sv.active[key] == e {
		delete(sv.active, key)
	}
	subs := e.subscribers
	e.subscribers = nil
	sv.mu.Unlock()

	for _, ch := range subs {
		close(ch)
	}
	close(e.done)
}

// fanOut delivers a transition to every subscriber, in order. Channels are
// buffered generously relative to the bounded number of transitions a
// session can emit, so sends do not block the engine.
func (sv *Supervisor) fanOut(e *entry, t Transition) {
	sv.mu.Lock()
	subs := make([]chan Transition, len(e.subscribers))
	copy(subs, e.subscribers)
	sv.mu.Unlock()

	for _, ch := range subs {
		ch <- t
	}
}

// isCancellation distinguishes a local cancel (session ends Cancelled) from
// a timeout or provider-side failure (session ends Failed).
func isCancellation(err error, ctx context.Context) bool {
	if errors.Is(err, classify.ErrCancelled) {
		return true
	}
	if errors.Is(err, context.Canceled) && !errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return true
	}
	return false
}

// Cancel requests cancellation of a session. It is idempotent: cancelling a
// terminal or already-cancelled session is a no-op.
func (sv *Supervisor) Cancel(sessionID string) error {
	sv.mu.Lock()
	e, ok := sv.byID[sessionID]
	sv.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownSession, sessionID)
	}

	if e.sess.State().IsTerminal() {
		return nil
	}
	logging.Debug("Supervisor", "Cancel requested for session %s", sessionID)
	e.cancel()
	return nil
}

// Status returns the current observable state of a session.
func (sv *Supervisor) Status(sessionID string) (Transition, error) {
	sv.mu.Lock()
	e, ok := sv.byID[sessionID]
	sv.mu.Unlock()
	if !ok {
		return Transition{}, fmt.Errorf("%w: %s", ErrUnknownSession, sessionID)
	}
	return e.sess.Snapshot(), nil
}

// Subscribe returns an ordered stream of state transitions for a session,
// beginning with a snapshot of the current state. The channel is closed once
// the session reaches a terminal state (the terminal transition is delivered
// first). Delivery is at-least-once: the initial snapshot may duplicate a
// transition that is also delivered through the stream.
func (sv *Supervisor) Subscribe(sessionID string) (<-chan Transition, error) {
	sv.mu.Lock()
	e, ok := sv.byID[sessionID]
	if !ok {
		sv.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrUnknownSession, sessionID)
	}

	ch := make(chan Transition, subscriberBuffer)
	snapshot := e.sess.Snapshot()
	ch <- snapshot
	if snapshot.State.IsTerminal() {
		sv.mu.Unlock()
		close(ch)
		return ch, nil
	}
	e.subscribers = append(e.subscribers, ch)
	sv.mu.Unlock()
	return ch, nil
}

// Wait blocks until the session reaches a terminal state or the context is
// cancelled, and returns the final snapshot.
func (sv *Supervisor) Wait(ctx context.Context, sessionID string) (Transition, error) {
	sv.mu.Lock()
	e, ok := sv.byID[sessionID]
	sv.mu.Unlock()
	if !ok {
		return Transition{}, fmt.Errorf("%w: %s", ErrUnknownSession, sessionID)
	}

	select {
	case <-e.done:
		return e.sess.Snapshot(), nil
	case <-ctx.Done():
		return Transition{}, ctx.Err()
	}
}

// ActiveSessions returns snapshots of all non-terminal sessions.
func (sv *Supervisor) ActiveSessions() []Transition {
	sv.mu.Lock()
	defer sv.mu.Unlock()

	out := make([]Transition, 0, len(sv.active))
	for _, e := range sv.active {
		out = append(out, e.sess.Snapshot())
	}
	return out
}
