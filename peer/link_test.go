package peer

import (
	"context"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"collabtext/persist"
	"collabtext/relay"

	"github.com/alicebob/miniredis/v2"
	"github.com/cenkalti/backoff"
	"github.com/gorilla/mux"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRelay(t *testing.T) string {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	log, err := persist.OpenBolt(filepath.Join(t.TempDir(), "relay.db"))
	require.NoError(t, err)
	t.Cleanup(func() { log.Close() })

	r := mux.NewRouter()
	relay.NewServer(rdb, relay.WithUpdateLog(log)).Routes(r)
	ts := httptest.NewServer(r)
	t.Cleanup(ts.Close)
	return "ws" + strings.TrimPrefix(ts.URL, "http")
}

func runLink(t *testing.T, ctx context.Context, l *Link) <-chan error {
	t.Helper()
	errc := make(chan error, 1)
	go func() { errc <- l.Run(ctx) }()
	return errc
}

func eventuallyGet(t *testing.T, s *Session, key string, want any) {
	t.Helper()
	assert.Eventually(t, func() bool {
		v, _, err := s.Get(key)
		return err == nil && assert.ObjectsAreEqual(want, v)
	}, 5*time.Second, 10*time.Millisecond)
}

func TestLinkSyncsSessionsThroughRelay(t *testing.T) {
	url := newTestRelay(t) + "/ws/doc-1"
	a := newTestSession(t, SessionConfig{PeerID: "a"})
	b := newTestSession(t, SessionConfig{PeerID: "b"})

	// Written before connecting; shipped with the initial state.
	require.NoError(t, a.Set("offline", "yes"))

	ctx, cancel := context.WithCancel(context.Background())
	errA := runLink(t, ctx, NewLink(url, a))
	errB := runLink(t, ctx, NewLink(url, b))

	eventuallyGet(t, b, "offline", "yes")

	require.NoError(t, a.Set("title", "from a"))
	eventuallyGet(t, b, "title", "from a")

	require.NoError(t, b.Set("title", "from b"))
	eventuallyGet(t, a, "title", "from b")

	// Only local edits are undoable: b's undo restores a's value everywhere.
	undone, err := b.Undo()
	require.NoError(t, err)
	assert.True(t, undone)
	eventuallyGet(t, a, "title", "from a")

	cancel()
	assert.ErrorIs(t, <-errA, context.Canceled)
	assert.ErrorIs(t, <-errB, context.Canceled)
}

func TestLinkRetriesUntilCanceled(t *testing.T) {
	s := newTestSession(t, SessionConfig{})
	l := NewLink("ws://127.0.0.1:1/ws/doc-1", s, WithBackOff(func() backoff.BackOff {
		return backoff.NewConstantBackOff(10 * time.Millisecond)
	}))

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, l.Run(ctx), context.DeadlineExceeded)
}

func TestLinkGivesUpWhenBackOffStops(t *testing.T) {
	s := newTestSession(t, SessionConfig{})
	l := NewLink("ws://127.0.0.1:1/ws/doc-1", s, WithBackOff(func() backoff.BackOff {
		return &backoff.StopBackOff{}
	}))

	err := l.Run(context.Background())
	require.Error(t, err)
	assert.NotErrorIs(t, err, context.Canceled)
}

func TestLinkStopsWhenSessionCloses(t *testing.T) {
	url := newTestRelay(t) + "/ws/doc-1"
	s, err := NewSession(context.Background(), SessionConfig{DocID: "doc-1"})
	require.NoError(t, err)
	require.NoError(t, s.Close())

	err = NewLink(url, s).Run(context.Background())
	assert.ErrorIs(t, err, ErrSessionClosed)
}
