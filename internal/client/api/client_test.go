package api

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"chessroom/internal/server/core"
	"chessroom/internal/server/match"
	"chessroom/internal/server/processor"
	"chessroom/internal/server/storage"
	"chessroom/internal/server/transport"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newServer(t *testing.T) string {
	t.Helper()
	hub := transport.NewHub(transport.Config{})
	proc := processor.New(storage.NewMemoryStore(), hub, match.Options{Time: clockwork.NewFakeClock()})
	hub.Bind(proc)

	srv := httptest.NewServer(hub.Router())
	t.Cleanup(func() {
		hub.Shutdown()
		srv.Close()
		proc.Registry().Shutdown()
	})
	return "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
}

func next(t *testing.T, c *Client, want core.EventType) Event {
	t.Helper()
	timeout := time.After(3 * time.Second)
	for {
		select {
		case ev, ok := <-c.Events():
			require.True(t, ok, "connection closed waiting for %s", want)
			if ev.Type == want {
				return ev
			}
		case <-timeout:
			t.Fatalf("timed out waiting for %s", want)
		}
	}
}

func TestClientPlaysAgainstServer(t *testing.T) {
	url := newServer(t)
	ctx := context.Background()

	white, black := New(url), New(url)
	require.NoError(t, white.Connect(ctx))
	require.NoError(t, black.Connect(ctx))
	defer white.Close()
	defer black.Close()

	require.NoError(t, white.Send(core.Action{Type: core.ActionJoin, MatchID: "c1"}))
	next(t, white, core.EventRoomJoined)
	require.NoError(t, black.Send(core.Action{Type: core.ActionJoin, MatchID: "c1"}))

	ev := next(t, black, core.EventGameStart)
	var start core.GameStart
	require.NoError(t, ev.Decode(&start))
	assert.NotEmpty(t, start.FEN)

	require.NoError(t, black.Send(core.Action{Type: core.ActionResign, MatchID: "c1"}))
	ev = next(t, white, core.EventGameOver)
	var over core.GameOver
	require.NoError(t, ev.Decode(&over))
	assert.Equal(t, core.SideA, over.Winner)
	assert.Equal(t, core.ReasonResignation, over.Reason)
}

func TestSendBeforeConnect(t *testing.T) {
	c := New("ws://127.0.0.1:1/ws")
	assert.ErrorIs(t, c.Send(core.Action{Type: core.ActionJoin, MatchID: "x"}), ErrNotConnected)
	assert.False(t, c.Connected())
	assert.Nil(t, c.Events())
	assert.NoError(t, c.Close())
}

func TestCloseEndsEvents(t *testing.T) {
	c := New(newServer(t))
	require.NoError(t, c.Connect(context.Background()))
	events := c.Events()

	require.NoError(t, c.Close())
	_, ok := <-events
	assert.False(t, ok)
	assert.False(t, c.Connected())
}
