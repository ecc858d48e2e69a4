package processor

import (
	"context"
	"testing"
	"time"

	"chessroom/internal/server/core"
	"chessroom/internal/server/rules"
	"chessroom/internal/server/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSweepDisconnectsOneGhost(t *testing.T) {
	f := newFixture(t, time.Minute)
	f.startMatch(t, "half")
	f.out.drop("a")

	assert.Equal(t, 1, f.proc.Sweep(context.Background()))

	ev, ok := f.out.last("b", core.EventGameOver)
	require.True(t, ok)
	assert.Equal(t, core.ReasonOpponentDisconnected, ev.Payload.(core.GameOver).Reason)
	assert.Equal(t, core.SideB, ev.Payload.(core.GameOver).Winner)
	assert.Equal(t, "opponent-disconnected", f.record(t, "half").Status)

	assert.Zero(t, f.proc.Sweep(context.Background()))
}

func TestSweepAfterRestart(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	require.NoError(t, store.Create(ctx, storage.MatchRecord{
		MatchID:      "restarted",
		FEN:          rules.StartingFEN,
		Participants: []string{"old-a", "old-b"},
		Status:       "ongoing",
		Timers:       core.Timers{White: time.Minute, Black: time.Minute},
	}))

	f := newFixtureWithStore(t, store, time.Minute)
	f.out.drop("old-a")
	f.out.drop("old-b")

	f.exec(t, NewJoinCommand("restarted", "c"))
	assert.Equal(t, []core.EventType{core.EventRoomFull}, f.out.types("c"))

	assert.Equal(t, 1, f.proc.Sweep(ctx))
	rec := f.record(t, "restarted")
	assert.Equal(t, "abandoned", rec.Status)
	assert.Empty(t, rec.Participants)

	f.exec(t, NewJoinCommand("restarted", "c"))
	ev, ok := f.out.last("c", core.EventGameOver)
	require.True(t, ok)
	assert.Equal(t, core.ReasonAbandoned, ev.Payload.(core.GameOver).Reason)
}

func TestSweepEvictsEmptySession(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, time.Minute)

	_, err := f.proc.Registry().Resolve(ctx, "empty")
	require.NoError(t, err)

	assert.Equal(t, 1, f.proc.Sweep(ctx))
	_, live := f.proc.Registry().Lookup("empty")
	assert.False(t, live)
	assert.Equal(t, "waiting", f.record(t, "empty").Status)
}

func TestSweeperRunsOnSchedule(t *testing.T) {
	f := newFixture(t, time.Minute)
	f.startMatch(t, "scheduled")
	f.out.drop("b")

	sw, err := NewSweeper(f.proc, f.clk, 10*time.Second)
	require.NoError(t, err)
	sw.Start()
	defer sw.Shutdown()

	require.Eventually(t, func() bool {
		f.clk.Advance(10 * time.Second)
		_, live := f.proc.Registry().Lookup("scheduled")
		return !live
	}, 3*time.Second, 20*time.Millisecond)

	assert.Equal(t, "opponent-disconnected", f.record(t, "scheduled").Status)
	assert.Equal(t, "w", f.record(t, "scheduled").Winner)
}
