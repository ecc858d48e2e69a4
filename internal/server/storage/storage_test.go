package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"chessroom/internal/server/core"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const startFEN = "rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 0 1"

func backends(t *testing.T) map[string]Store {
	t.Helper()

	path := filepath.Join(t.TempDir(), "matches.db")
	sqlite, err := NewSQLiteStore(path, true)
	require.NoError(t, err)
	require.NoError(t, sqlite.InitDB())
	t.Cleanup(func() { sqlite.Close() })

	mr := miniredis.RunT(t)
	rs, err := newRedisStore(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	require.NoError(t, err)
	t.Cleanup(func() { rs.Close() })

	return map[string]Store{
		"sqlite": sqlite,
		"redis":  rs,
		"memory": NewMemoryStore(),
	}
}

func waitingRecord(id string, at time.Time) MatchRecord {
	return MatchRecord{
		MatchID:      id,
		FEN:          startFEN,
		Moves:        []string{},
		Participants: []string{"conn-a"},
		Status:       "waiting",
		Timers:       core.Timers{White: 8 * time.Minute, Black: 8 * time.Minute},
		CreatedAt:    at,
		UpdatedAt:    at,
	}
}

func TestStoreCreateGet(t *testing.T) {
	ctx := context.Background()
	at := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			_, err := s.Get(ctx, "missing")
			assert.ErrorIs(t, err, ErrNotFound)

			require.NoError(t, s.Create(ctx, waitingRecord("ABCD", at)))
			assert.ErrorIs(t, s.Create(ctx, waitingRecord("ABCD", at)), ErrExists)

			got, err := s.Get(ctx, "ABCD")
			require.NoError(t, err)
			assert.Equal(t, "ABCD", got.MatchID)
			assert.Equal(t, startFEN, got.FEN)
			assert.Equal(t, []string{"conn-a"}, got.Participants)
			assert.Equal(t, "waiting", got.Status)
			assert.Equal(t, 8*time.Minute, got.Timers.White)
			assert.True(t, at.Equal(got.CreatedAt))
			assert.Nil(t, got.EndedAt)
			assert.Nil(t, got.LastMove)
		})
	}
}

func TestStoreUpdateStopsAtTerminal(t *testing.T) {
	ctx := context.Background()
	at := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			rec := waitingRecord("M1", at)
			require.NoError(t, s.Create(ctx, rec))

			rec.Participants = []string{"conn-a", "conn-b"}
			rec.Status = "ongoing"
			rec.Moves = []string{"e2e4"}
			rec.LastMove = &core.MoveRecord{Side: core.SideA, From: "e2", To: "e4", SAN: "e4", UCI: "e2e4"}
			rec.UpdatedAt = at.Add(time.Second)
			applied, err := s.Update(ctx, rec)
			require.NoError(t, err)
			assert.True(t, applied)

			ended := at.Add(2 * time.Second)
			rec.Status = string(core.ReasonResignation)
			rec.Winner = "b"
			rec.EndedAt = &ended
			rec.UpdatedAt = ended
			applied, err = s.Update(ctx, rec)
			require.NoError(t, err)
			assert.True(t, applied)

			late := rec
			late.Status = string(core.ReasonTimeout)
			late.Winner = "w"
			lateEnd := at.Add(time.Minute)
			late.EndedAt = &lateEnd
			applied, err = s.Update(ctx, late)
			require.NoError(t, err)
			assert.False(t, applied)

			got, err := s.Get(ctx, "M1")
			require.NoError(t, err)
			assert.Equal(t, "resignation", got.Status)
			assert.Equal(t, "b", got.Winner)
			require.NotNil(t, got.EndedAt)
			assert.True(t, ended.Equal(*got.EndedAt))
			assert.Equal(t, []string{"e2e4"}, got.Moves)
			require.NotNil(t, got.LastMove)
			assert.Equal(t, core.SideA, got.LastMove.Side)
			assert.True(t, at.Equal(got.CreatedAt))
		})
	}
}

func TestStoreUpdateMissing(t *testing.T) {
	ctx := context.Background()

	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			applied, err := s.Update(ctx, waitingRecord("nope", time.Now()))
			assert.ErrorIs(t, err, ErrNotFound)
			assert.False(t, applied)
		})
	}
}

func TestStoreRepairPosition(t *testing.T) {
	ctx := context.Background()
	at := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			rec := waitingRecord("broken", at)
			rec.FEN = "not a position"
			rec.PGN = "garbage"
			require.NoError(t, s.Create(ctx, rec))

			require.NoError(t, s.RepairPosition(ctx, "broken", startFEN))

			got, err := s.Get(ctx, "broken")
			require.NoError(t, err)
			assert.Equal(t, startFEN, got.FEN)
			assert.Empty(t, got.PGN)

			assert.ErrorIs(t, s.RepairPosition(ctx, "absent", startFEN), ErrNotFound)
		})
	}
}

func TestStoreList(t *testing.T) {
	ctx := context.Background()
	at := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			first := waitingRecord("first", at)
			second := waitingRecord("second", at.Add(time.Minute))
			second.Participants = []string{"conn-x", "conn-y"}
			second.Status = "ongoing"
			third := waitingRecord("third", at.Add(2*time.Minute))
			third.Participants = []string{"conn-y"}

			for _, rec := range []MatchRecord{first, second, third} {
				require.NoError(t, s.Create(ctx, rec))
			}

			all, err := s.List(ctx, ListFilter{})
			require.NoError(t, err)
			require.Len(t, all, 3)
			assert.Equal(t, "third", all[0].MatchID)
			assert.Equal(t, "first", all[2].MatchID)

			waiting, err := s.List(ctx, ListFilter{Status: "waiting"})
			require.NoError(t, err)
			assert.Len(t, waiting, 2)

			byConn, err := s.List(ctx, ListFilter{Participant: "conn-y"})
			require.NoError(t, err)
			require.Len(t, byConn, 2)
			assert.Equal(t, "third", byConn[0].MatchID)
			assert.Equal(t, "second", byConn[1].MatchID)

			limited, err := s.List(ctx, ListFilter{Limit: 1})
			require.NoError(t, err)
			assert.Len(t, limited, 1)
		})
	}
}

func TestStoreHealth(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			assert.True(t, s.IsHealthy(context.Background()))
			assert.Equal(t, name, s.Kind())
		})
	}
}
