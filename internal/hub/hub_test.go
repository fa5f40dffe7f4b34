package hub

import (
	"context"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pongarena/backend/internal/match"
	"github.com/pongarena/backend/internal/tournament"
)

func newTestHub(t *testing.T) *Hub {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	return NewHub(ctx, Opts{Clock: clockwork.NewFakeClock()})
}

func createMatch(t *testing.T, h *Hub, mode match.Mode) *match.Session {
	t.Helper()
	reply := make(chan *match.Session, 1)
	h.Inbox() <- CreateMatch{Mode: mode, Reply: reply}
	select {
	case s := <-reply:
		require.NotNil(t, s)
		return s
	case <-time.After(time.Second):
		t.Fatalf("timed out creating match")
		return nil // unreachable
	}
}

func getMatch(t *testing.T, h *Hub, id string) *match.Session {
	t.Helper()
	reply := make(chan *match.Session, 1)
	h.Inbox() <- GetMatch{ID: id, Reply: reply}
	select {
	case s := <-reply:
		return s
	case <-time.After(time.Second):
		t.Fatalf("timed out looking up match")
		return nil // unreachable
	}
}

func createRoom(t *testing.T, h *Hub, size int) *tournament.Room {
	t.Helper()
	reply := make(chan *tournament.Room, 1)
	h.Inbox() <- CreateRoom{Size: size, Reply: reply}
	select {
	case r := <-reply:
		return r
	case <-time.After(time.Second):
		t.Fatalf("timed out creating room")
		return nil // unreachable
	}
}

func getRoom(t *testing.T, h *Hub, id string) *tournament.Room {
	t.Helper()
	reply := make(chan *tournament.Room, 1)
	h.Inbox() <- GetRoom{ID: id, Reply: reply}
	select {
	case r := <-reply:
		return r
	case <-time.After(time.Second):
		t.Fatalf("timed out looking up room")
		return nil // unreachable
	}
}

func TestHub_CreateAndLookupMatch(t *testing.T) {
	h := newTestHub(t)

	s := createMatch(t, h, match.ModeCasual)
	assert.NotEmpty(t, s.ID())
	assert.Same(t, s, getMatch(t, h, s.ID()))
	assert.Nil(t, getMatch(t, h, "no-such-id"))

	h.Inbox() <- RemoveMatch{ID: s.ID()}
	assert.Eventually(t, func() bool {
		return getMatch(t, h, s.ID()) == nil
	}, time.Second, 10*time.Millisecond)
}

func TestHub_FinishedSessionIsUntracked(t *testing.T) {
	h := newTestHub(t)
	s := createMatch(t, h, match.ModeCasual)

	s.Inbox() <- match.Shutdown{}

	assert.Eventually(t, func() bool {
		return getMatch(t, h, s.ID()) == nil
	}, time.Second, 10*time.Millisecond, "terminated sessions must fall out of the registry")
}

func TestHub_CreateRoomValidatesSize(t *testing.T) {
	h := newTestHub(t)

	r := createRoom(t, h, 4)
	require.NotNil(t, r)
	assert.Same(t, r, getRoom(t, h, r.ID()))

	assert.Nil(t, createRoom(t, h, 5), "non-bracket sizes are rejected")
}

func TestHub_RemoveRoomReleasesRouterBindings(t *testing.T) {
	h := newTestHub(t)
	r := createRoom(t, h, 4)

	h.Router().Bind("tok-a", r.ID())
	h.Router().Bind("tok-b", r.ID())

	h.Inbox() <- RemoveRoom{ID: r.ID()}

	assert.Eventually(t, func() bool {
		if getRoom(t, h, r.ID()) != nil {
			return false
		}
		_, ok := h.Router().Lookup("tok-a")
		return !ok
	}, time.Second, 10*time.Millisecond)
	_, ok := h.Router().Lookup("tok-b")
	assert.False(t, ok)
}
