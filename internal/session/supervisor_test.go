package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"grantor/internal/classify"
	"grantor/internal/registry"
	"grantor/internal/store"
	"grantor/pkg/logging"
	"grantor/pkg/oauth"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	logging.InitForTesting()
}

// scriptedEngine runs an arbitrary function as the flow engine.
type scriptedEngine struct {
	run func(ctx context.Context, sess *Session, provider *registry.ProviderDescriptor, params Params) (*store.CredentialRecord, error)
}

func (e *scriptedEngine) Run(ctx context.Context, sess *Session, provider *registry.ProviderDescriptor, params Params) (*store.CredentialRecord, error) {
	return e.run(ctx, sess, provider, params)
}

// recordingWriter counts Save calls and captures the last record.
type recordingWriter struct {
	saves   int
	last    *store.CredentialRecord
	saveErr error
}

func (w *recordingWriter) Save(ctx context.Context, record *store.CredentialRecord) (string, error) {
	w.saves++
	w.last = record
	if w.saveErr != nil {
		return "", w.saveErr
	}
	return "cred-1", nil
}

func testRegistry() *registry.Registry {
	return registry.New(&registry.ProviderDescriptor{
		ID:    "acme",
		Label: "Acme",
		Strategies: []registry.AcquisitionStrategy{
			registry.StrategyDeviceCode,
			registry.StrategyPastedSecret,
		},
	})
}

func newTestSupervisor(writer store.Writer, engine Engine) *Supervisor {
	return NewSupervisor(testRegistry(), writer, map[registry.AcquisitionStrategy]Engine{
		registry.StrategyDeviceCode:   engine,
		registry.StrategyPastedSecret: engine,
	})
}

func TestSupervisor_StartValidation(t *testing.T) {
	sv := newTestSupervisor(&recordingWriter{}, &scriptedEngine{})

	_, err := sv.Start(context.Background(), "nope", registry.StrategyDeviceCode, "", Params{})
	assert.ErrorIs(t, err, ErrUnknownProvider)

	_, err = sv.Start(context.Background(), "acme", registry.StrategyAutomatedBrowser, "", Params{})
	assert.ErrorIs(t, err, ErrInvalidStrategy)
}

func TestSupervisor_SuccessfulSession(t *testing.T) {
	writer := &recordingWriter{}
	engine := &scriptedEngine{
		run: func(ctx context.Context, sess *Session, provider *registry.ProviderDescriptor, params Params) (*store.CredentialRecord, error) {
			require.NoError(t, sess.SetDeviceGrant("WDJB-MJHT", "https://idp.acme.test/device", time.Now().Add(time.Minute), time.Second))
			require.NoError(t, sess.MarkPolling())
			return &store.CredentialRecord{
				ProviderID: "acme",
				AuthMethod: store.AuthMethodDevice,
				Secret:     store.NewRedactedSecret("tok"),
				Source:     store.SourceDeviceCode,
				CreatedAt:  time.Now(),
			}, nil
		},
	}
	sv := newTestSupervisor(writer, engine)

	id, err := sv.Start(context.Background(), "acme", registry.StrategyDeviceCode, "work laptop", Params{})
	require.NoError(t, err)
	require.NotEmpty(t, id)

	final, err := sv.Wait(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, StateSucceeded, final.State)
	assert.Nil(t, final.Err)

	assert.Equal(t, 1, writer.saves, "store must see the record exactly once")
	require.NotNil(t, writer.last)
	assert.Equal(t, "acme", writer.last.ProviderID)
}

func TestSupervisor_SubscribeOrdering(t *testing.T) {
	proceed := make(chan struct{})
	engine := &scriptedEngine{
		run: func(ctx context.Context, sess *Session, provider *registry.ProviderDescriptor, params Params) (*store.CredentialRecord, error) {
			<-proceed
			require.NoError(t, sess.SetDeviceGrant("WDJB-MJHT", "https://idp.acme.test/device", time.Now().Add(time.Minute), time.Second))
			require.NoError(t, sess.MarkPolling())
			return &store.CredentialRecord{ProviderID: "acme", Secret: store.NewRedactedSecret("tok")}, nil
		},
	}
	sv := newTestSupervisor(&recordingWriter{}, engine)

	id, err := sv.Start(context.Background(), "acme", registry.StrategyDeviceCode, "", Params{})
	require.NoError(t, err)

	ch, err := sv.Subscribe(id)
	require.NoError(t, err)
	close(proceed)

	var states []State
	for tr := range ch {
		states = append(states, tr.State)
	}
	assert.Equal(t, []State{
		StateCreated,
		StateAwaitingUserAction,
		StatePolling,
		StateSucceeded,
	}, states)
}

func TestSupervisor_SubscribeAfterTerminal(t *testing.T) {
	engine := &scriptedEngine{
		run: func(ctx context.Context, sess *Session, provider *registry.ProviderDescriptor, params Params) (*store.CredentialRecord, error) {
			return &store.CredentialRecord{ProviderID: "acme", Secret: store.NewRedactedSecret("k")}, nil
		},
	}
	sv := newTestSupervisor(&recordingWriter{}, engine)

	id, err := sv.Start(context.Background(), "acme", registry.StrategyPastedSecret, "", Params{})
	require.NoError(t, err)
	_, err = sv.Wait(context.Background(), id)
	require.NoError(t, err)

	ch, err := sv.Subscribe(id)
	require.NoError(t, err)

	tr, ok := <-ch
	require.True(t, ok)
	assert.Equal(t, StateSucceeded, tr.State)
	_, ok = <-ch
	assert.False(t, ok, "stream closes after the terminal snapshot")
}

func TestSupervisor_DisplacesActiveSessionForSamePair(t *testing.T) {
	started := make(chan struct{}, 2)
	engine := &scriptedEngine{
		run: func(ctx context.Context, sess *Session, provider *registry.ProviderDescriptor, params Params) (*store.CredentialRecord, error) {
			require.NoError(t, sess.SetDeviceGrant("CODE", "https://idp.acme.test/device", time.Now().Add(time.Minute), time.Second))
			started <- struct{}{}
			<-ctx.Done()
			return nil, ctx.Err()
		},
	}
	sv := newTestSupervisor(&recordingWriter{}, engine)

	first, err := sv.Start(context.Background(), "acme", registry.StrategyDeviceCode, "", Params{})
	require.NoError(t, err)
	<-started

	second, err := sv.Start(context.Background(), "acme", registry.StrategyDeviceCode, "", Params{})
	require.NoError(t, err)
	require.NotEqual(t, first, second)

	// The displaced session is fully terminal before the new one exists.
	tr, err := sv.Status(first)
	require.NoError(t, err)
	assert.Equal(t, StateCancelled, tr.State)

	require.NoError(t, sv.Cancel(second))
	final, err := sv.Wait(context.Background(), second)
	require.NoError(t, err)
	assert.Equal(t, StateCancelled, final.State)
}

func TestSupervisor_CancelIsIdempotent(t *testing.T) {
	writer := &recordingWriter{}
	engine := &scriptedEngine{
		run: func(ctx context.Context, sess *Session, provider *registry.ProviderDescriptor, params Params) (*store.CredentialRecord, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		},
	}
	sv := newTestSupervisor(writer, engine)

	id, err := sv.Start(context.Background(), "acme", registry.StrategyDeviceCode, "", Params{})
	require.NoError(t, err)

	require.NoError(t, sv.Cancel(id))
	require.NoError(t, sv.Cancel(id))

	final, err := sv.Wait(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, StateCancelled, final.State)

	// Cancelling a terminal session is a no-op, not an error.
	require.NoError(t, sv.Cancel(id))
	assert.Zero(t, writer.saves, "cancelled sessions never reach the store")

	assert.ErrorIs(t, sv.Cancel("no-such-id"), ErrUnknownSession)
}

func TestSupervisor_ProviderDenyFailsWithUserCancelled(t *testing.T) {
	writer := &recordingWriter{}
	engine := &scriptedEngine{
		run: func(ctx context.Context, sess *Session, provider *registry.ProviderDescriptor, params Params) (*store.CredentialRecord, error) {
			return nil, &oauth.TokenEndpointError{Code: oauth.ErrorCodeAccessDenied}
		},
	}
	sv := newTestSupervisor(writer, engine)

	id, err := sv.Start(context.Background(), "acme", registry.StrategyDeviceCode, "", Params{})
	require.NoError(t, err)

	final, err := sv.Wait(context.Background(), id)
	require.NoError(t, err)

	// A provider-side decline ends Failed, unlike a local cancel.
	assert.Equal(t, StateFailed, final.State)
	require.NotNil(t, final.Err)
	assert.Equal(t, classify.KindUserCancelled, final.Err.Kind)
	assert.True(t, final.Err.IsUserAction())
	assert.Zero(t, writer.saves)
}

func TestSupervisor_StoreSaveFailureFailsSession(t *testing.T) {
	writer := &recordingWriter{saveErr: errors.New("disk full")}
	engine := &scriptedEngine{
		run: func(ctx context.Context, sess *Session, provider *registry.ProviderDescriptor, params Params) (*store.CredentialRecord, error) {
			return &store.CredentialRecord{ProviderID: "acme", Secret: store.NewRedactedSecret("k")}, nil
		},
	}
	sv := newTestSupervisor(writer, engine)

	id, err := sv.Start(context.Background(), "acme", registry.StrategyPastedSecret, "", Params{})
	require.NoError(t, err)

	final, err := sv.Wait(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, StateFailed, final.State)
	require.NotNil(t, final.Err)
	assert.Equal(t, 1, writer.saves)
}

func TestSupervisor_ActiveSessions(t *testing.T) {
	engine := &scriptedEngine{
		run: func(ctx context.Context, sess *Session, provider *registry.ProviderDescriptor, params Params) (*store.CredentialRecord, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		},
	}
	sv := newTestSupervisor(&recordingWriter{}, engine)

	id, err := sv.Start(context.Background(), "acme", registry.StrategyDeviceCode, "", Params{})
	require.NoError(t, err)

	active := sv.ActiveSessions()
	require.Len(t, active, 1)
	assert.Equal(t, id, active[0].SessionID)

	require.NoError(t, sv.Cancel(id))
	_, err = sv.Wait(context.Background(), id)
	require.NoError(t, err)
	assert.Empty(t, sv.ActiveSessions())
}

func TestSession_RejectsInvalidTransitions(t *testing.T) {
	s := newSession("s1", "acme", registry.StrategyDeviceCode, "", nil)

	// Polling before the device grant was issued is a programming error.
	assert.Error(t, s.MarkPolling())

	require.NoError(t, s.SetDeviceGrant("C", "https://v", time.Now().Add(time.Minute), time.Second))
	require.NoError(t, s.MarkPolling())
	require.NoError(t, s.markSucceeded())

	// Terminal is final.
	assert.Error(t, s.markCancelled())
	assert.Error(t, s.MarkPolling())
	assert.Equal(t, StateSucceeded, s.State())
}
