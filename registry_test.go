package bridge

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestCreateAndCloseSession(t *testing.T) {
	r, _ := newTestRegistry(t, ackConfig)

	sum, err := r.CreateSession(context.Background(), CreateSessionParams{
		ID:       "sess-1",
		Voice:    "verse",
		Metadata: map[string]string{"caller": "test"},
	})
	require.NoError(t, err)
	require.Equal(t, "sess-1", sum.ID)
	require.Equal(t, StatusConnected, sum.Status)
	require.Equal(t, "verse", sum.Voice)
	require.Equal(t, map[string]string{"caller": "test"}, sum.Metadata)

	require.NoError(t, r.CloseSession("sess-1"))
	require.Nil(t, r.GetSession("sess-1"))

	err = r.CloseSession("sess-1")
	require.Error(t, err)
	require.Equal(t, CodeSessionNotFound, CodeOf(err))
}

func TestCreateSessionGeneratesID(t *testing.T) {
	r, _ := newTestRegistry(t, ackConfig)

	a, err := r.CreateSession(context.Background(), CreateSessionParams{})
	require.NoError(t, err)
	b, err := r.CreateSession(context.Background(), CreateSessionParams{})
	require.NoError(t, err)
	require.NotEmpty(t, a.ID)
	require.NotEqual(t, a.ID, b.ID)
}

func TestCreateSessionDuplicateID(t *testing.T) {
	r, _ := newTestRegistry(t, ackConfig)

	_, err := r.CreateSession(context.Background(), CreateSessionParams{ID: "dup"})
	require.NoError(t, err)

	_, err = r.CreateSession(context.Background(), CreateSessionParams{ID: "dup"})
	require.Error(t, err)
	require.Equal(t, CodeInvalidInput, CodeOf(err))
}

func TestCreateSessionLimit(t *testing.T) {
	r, _ := newTestRegistry(t, ackConfig, WithMaxSessions(1))

	first, err := r.CreateSession(context.Background(), CreateSessionParams{})
	require.NoError(t, err)

	_, err = r.CreateSession(context.Background(), CreateSessionParams{})
	require.Error(t, err)
	require.Equal(t, CodeLimitExceeded, CodeOf(err))

	// Closing frees capacity.
	require.NoError(t, r.CloseSession(first.ID))
	_, err = r.CreateSession(context.Background(), CreateSessionParams{})
	require.NoError(t, err)
}

func TestListSessionsOrderedByCreation(t *testing.T) {
	r, _ := newTestRegistry(t, ackConfig)

	for _, id := range []string{"charlie", "alpha", "bravo"} {
		_, err := r.CreateSession(context.Background(), CreateSessionParams{ID: id})
		require.NoError(t, err)
		time.Sleep(2 * time.Millisecond)
	}

	list := r.ListSessions()
	require.Len(t, list, 3)
	require.Equal(t, "charlie", list[0].ID)
	require.Equal(t, "alpha", list[1].ID)
	require.Equal(t, "bravo", list[2].ID)
}

func TestCreateSessionConnectTimeout(t *testing.T) {
	// A remote that accepts the dial but never announces the session
	// leaves negotiation hanging until the connect timeout fires.
	silent := func(ctx context.Context, cfg DialConfig) (Transport, error) {
		ft := &fakeTransport{onText: cfg.OnText, onClose: cfg.OnClose}
		return ft, nil
	}
	r := New(
		WithDialer(silent),
		WithSweepInterval(time.Hour),
		WithIdleTimeout(time.Hour),
		WithConnectTimeout(50*time.Millisecond),
	)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = r.Close(ctx)
	})

	_, err := r.CreateSession(context.Background(), CreateSessionParams{ID: "stuck"})
	require.Error(t, err)
	require.Equal(t, CodeConnectionTimeout, CodeOf(err))
	require.Nil(t, r.GetSession("stuck"))
	require.Empty(t, r.ListSessions())
}

func TestCreateSessionDialFailure(t *testing.T) {
	failing := func(ctx context.Context, cfg DialConfig) (Transport, error) {
		return nil, context.DeadlineExceeded
	}
	r := New(
		WithDialer(failing),
		WithSweepInterval(time.Hour),
		WithIdleTimeout(time.Hour),
	)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = r.Close(ctx)
	})

	_, err := r.CreateSession(context.Background(), CreateSessionParams{ID: "refused"})
	require.Error(t, err)
	require.Equal(t, CodeConnectionError, CodeOf(err))
	require.Nil(t, r.GetSession("refused"))
}

func TestGetHistoryUnknownSession(t *testing.T) {
	r, _ := newTestRegistry(t, ackConfig)

	_, err := r.GetHistory("nope")
	require.Error(t, err)
	require.Equal(t, CodeSessionNotFound, CodeOf(err))
}

func TestIdleSweepClosesStaleSessions(t *testing.T) {
	r, _ := newTestRegistry(t, ackConfig,
		WithIdleTimeout(150*time.Millisecond),
		WithSweepInterval(25*time.Millisecond),
	)

	stale, err := r.CreateSession(context.Background(), CreateSessionParams{ID: "stale"})
	require.NoError(t, err)
	active, err := r.CreateSession(context.Background(), CreateSessionParams{ID: "active"})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		// Caller traffic keeps the active session alive through sweeps.
		_ = r.UpdateInstructions(active.ID, "stay with me")
		return r.GetSession(stale.ID) == nil
	}, 3*time.Second, 20*time.Millisecond)

	require.NotNil(t, r.GetSession(active.ID))
}

func TestRegistryCloseTearsDownSessions(t *testing.T) {
	fr := newFakeRemote(ackConfig)
	r := New(
		WithDialer(fr.dialer()),
		WithSweepInterval(time.Hour),
		WithIdleTimeout(time.Hour),
	)

	_, err := r.CreateSession(context.Background(), CreateSessionParams{ID: "a"})
	require.NoError(t, err)
	_, err = r.CreateSession(context.Background(), CreateSessionParams{ID: "b"})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, r.Close(ctx))

	require.Empty(t, r.ListSessions())
	require.True(t, fr.transport(0).wasClosed())
	require.True(t, fr.transport(1).wasClosed())
}

func TestArchiverReceivesTranscript(t *testing.T) {
	arch := &recordingArchiver{}
	r, _ := newTestRegistry(t, respondWith(
		map[string]any{"type": "response.text.delta", "delta": "bye"},
	), WithArchiver(arch))

	sum, err := r.CreateSession(context.Background(), CreateSessionParams{ID: "arch"})
	require.NoError(t, err)
	_, err = r.SendText(context.Background(), sum.ID, "farewell", false)
	require.NoError(t, err)

	require.NoError(t, r.CloseSession(sum.ID))

	require.Eventually(t, func() bool {
		return len(arch.turns("arch")) == 2
	}, 2*time.Second, 10*time.Millisecond)
}
