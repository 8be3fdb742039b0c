package session

import (
	"fmt"
	"sync"
	"time"

	"grantor/internal/classify"
	"grantor/internal/registry"
)

// State is the acquisition session state machine.
//
//	Created -> AwaitingUserAction -> Polling|Listening|Driving -> terminal
//
// The synchronous strategies (local file import, pasted secret) go straight
// from Created to a terminal state. Terminal states are final.
type State string

const (
	StateCreated            State = "created"
	StateAwaitingUserAction State = "awaiting_user_action"
	StatePolling            State = "polling"
	StateListening          State = "listening"
	StateDriving            State = "driving"
	StateSucceeded          State = "succeeded"
	StateFailed             State = "failed"
	StateCancelled          State = "cancelled"
)

// IsTerminal reports whether the state is final.
func (s State) IsTerminal() bool {
	switch s {
	case StateSucceeded, StateFailed, StateCancelled:
		return true
	default:
		return false
	}
}

// allowedTransitions is the state machine graph. A transition not listed here
// is a programming error and is rejected.
var allowedTransitions = map[State][]State{
	StateCreated: {
		StateAwaitingUserAction,
		StateDriving,
		StateSucceeded,
		StateFailed,
		StateCancelled,
	},
	StateAwaitingUserAction: {
		StatePolling,
		StateListening,
		StateFailed,
		StateCancelled,
	},
	StatePolling:   {StateSucceeded, StateFailed, StateCancelled},
	StateListening: {StateSucceeded, StateFailed, StateCancelled},
	StateDriving:   {StateSucceeded, StateFailed, StateCancelled},
}

func transitionAllowed(from, to State) bool {
	for _, s := range allowedTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Transition is one observed state change, fanned out to subscribers.
type Transition struct {
	SessionID  string                       `json:"session_id"`
	ProviderID string                       `json:"provider_id"`
	Strategy   registry.AcquisitionStrategy `json:"strategy"`
	State      State                        `json:"state"`

	// UserCode and VerificationURI are populated for device-code sessions
	// once the provider has issued them.
	UserCode        string `json:"user_code,omitempty"`
	VerificationURI string `json:"verification_uri,omitempty"`

	// Err carries the classified failure for failed sessions.
	Err *classify.ClassifiedError `json:"error,omitempty"`

	Timestamp time.Time `json:"timestamp"`
}

// transitionCallback is invoked after every accepted state change, outside
// the session lock.
type transitionCallback func(t Transition)

// Session is one in-flight credential acquisition attempt. It is created by
// the Supervisor and mutated only by its owning engine and by Cancel.
type Session struct {
	mu sync.RWMutex

	id          string
	providerID  string
	strategy    registry.AcquisitionStrategy
	displayName string

	state           State
	userCode        string
	verificationURI string
	pollInterval    time.Duration
	createdAt       time.Time
	expiresAt       time.Time
	err             *classify.ClassifiedError

	onTransition transitionCallback
}

func newSession(id, providerID string, strategy registry.AcquisitionStrategy, displayName string, cb transitionCallback) *Session {
	return &Session{
		id:           id,
		providerID:   providerID,
		strategy:     strategy,
		displayName:  displayName,
		state:        StateCreated,
		createdAt:    time.Now(),
		onTransition: cb,
	}
}

// ID returns the opaque session identifier.
func (s *Session) ID() string { return s.id }

// ProviderID returns the provider this session acquires for.
func (s *Session) ProviderID() string { return s.providerID }

// Strategy returns the acquisition strategy.
func (s *Session) Strategy() registry.AcquisitionStrategy { return s.strategy }

// DisplayName returns the user-supplied credential label.
func (s *Session) DisplayName() string { return s.displayName }

// State returns the current state.
func (s *Session) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Err returns the classified failure for sessions that ended in Failed.
func (s *Session) Err() *classify.ClassifiedError {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.err
}

// UserCode returns the device-flow user code, once issued.
func (s *Session) UserCode() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.userCode
}

// VerificationURI returns the device-flow verification URI, once issued.
func (s *Session) VerificationURI() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.verificationURI
}

// ExpiresAt returns the provider-declared deadline, if any.
func (s *Session) ExpiresAt() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.expiresAt
}

// CreatedAt returns when the session was created.
func (s *Session) CreatedAt() time.Time { return s.createdAt }

// SetDeviceGrant records the provider-issued device grant details and moves
// the session to AwaitingUserAction.
func (s *Session) SetDeviceGrant(userCode, verificationURI string, expiresAt time.Time, interval time.Duration) error {
	s.mu.Lock()
	s.userCode = userCode
	s.verificationURI = verificationURI
	s.expiresAt = expiresAt
	s.pollInterval = interval
	s.mu.Unlock()
	return s.to(StateAwaitingUserAction, nil)
}

// SetAuthorizationURL records the browser URL the user must visit and moves
// the session to AwaitingUserAction. Used by the callback flow, where there
// is no user code.
func (s *Session) SetAuthorizationURL(uri string) error {
	s.mu.Lock()
	s.verificationURI = uri
	s.mu.Unlock()
	return s.to(StateAwaitingUserAction, nil)
}

// MarkAwaitingUserAction moves the session to AwaitingUserAction.
func (s *Session) MarkAwaitingUserAction() error { return s.to(StateAwaitingUserAction, nil) }

// MarkPolling moves the session to Polling.
func (s *Session) MarkPolling() error { return s.to(StatePolling, nil) }

// MarkListening moves the session to Listening.
func (s *Session) MarkListening() error { return s.to(StateListening, nil) }

// MarkDriving moves the session to Driving.
func (s *Session) MarkDriving() error { return s.to(StateDriving, nil) }

// markSucceeded, markFailed and markCancelled are driven by the Supervisor,
// which owns the terminal bookkeeping (store hand-off, subscriber close).
func (s *Session) markSucceeded() error { return s.to(StateSucceeded, nil) }

func (s *Session) markFailed(cerr *classify.ClassifiedError) error {
	return s.to(StateFailed, cerr)
}

func (s *Session) markCancelled() error { return s.to(StateCancelled, nil) }

// to performs a validated state transition and notifies the supervisor
// outside the lock. Transitions on a terminal session are rejected.
func (s *Session) to(next State, cerr *classify.ClassifiedError) error {
	s.mu.Lock()
	current := s.state
	if current.IsTerminal() {
		s.mu.Unlock()
		return fmt.Errorf("session %s is already terminal (%s)", s.id, current)
	}
	if !transitionAllowed(current, next) {
		s.mu.Unlock()
		return fmt.Errorf("invalid session transition %s -> %s", current, next)
	}
	s.state = next
	if cerr != nil {
		s.err = cerr
	}
	t := s.snapshotLocked()
	cb := s.onTransition
	s.mu.Unlock()

	if cb != nil {
		cb(t)
	}
	return nil
}

// Snapshot returns the session's current observable state as a Transition.
func (s *Session) Snapshot() Transition {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshotLocked()
}

func (s *Session) snapshotLocked() Transition {
	return Transition{
		SessionID:       s.id,
		ProviderID:      s.providerID,
		Strategy:        s.strategy,
		State:           s.state,
		UserCode:        s.userCode,
		VerificationURI: s.verificationURI,
		Err:             s.err,
		Timestamp:       time.Now(),
	}
}
