package registry

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"chessroom/internal/server/clock"
	"chessroom/internal/server/core"
	"chessroom/internal/server/match"
	"chessroom/internal/server/rules"
	"chessroom/internal/server/storage"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingStore struct {
	*storage.MemoryStore
	creates atomic.Int32
	gets    atomic.Int32
}

func (s *countingStore) Get(ctx context.Context, id string) (storage.MatchRecord, error) {
	s.gets.Add(1)
	time.Sleep(5 * time.Millisecond)
	return s.MemoryStore.Get(ctx, id)
}

func (s *countingStore) Create(ctx context.Context, rec storage.MatchRecord) error {
	s.creates.Add(1)
	return s.MemoryStore.Create(ctx, rec)
}

type brokenStore struct {
	*storage.MemoryStore
}

func (brokenStore) Get(context.Context, string) (storage.MatchRecord, error) {
	return storage.MatchRecord{}, errors.New("connection refused")
}

func options() match.Options {
	return match.Options{
		Engine: rules.NewChess(),
		Clock:  clock.DefaultConfig(),
		Time:   clockwork.NewFakeClock(),
	}
}

func TestResolveCreatesOnce(t *testing.T) {
	ctx := context.Background()
	store := &countingStore{MemoryStore: storage.NewMemoryStore()}
	reg := New(store, options())

	const n = 32
	got := make([]*match.Session, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			s, err := reg.Resolve(ctx, "ABCD")
			assert.NoError(t, err)
			got[i] = s
		}(i)
	}
	wg.Wait()

	for _, s := range got {
		assert.Same(t, got[0], s)
	}
	assert.Equal(t, int32(1), store.creates.Load())
	assert.Equal(t, 1, reg.Len())

	rec, err := store.Get(ctx, "ABCD")
	require.NoError(t, err)
	assert.Equal(t, "waiting", rec.Status)
	assert.Equal(t, rules.StartingFEN, rec.FEN)
	assert.Empty(t, rec.Participants)
	assert.Equal(t, clock.DefaultInitial, rec.Timers.White)
}

func TestResolveReturnsLiveSession(t *testing.T) {
	ctx := context.Background()
	store := &countingStore{MemoryStore: storage.NewMemoryStore()}
	reg := New(store, options())

	first, err := reg.Resolve(ctx, "m")
	require.NoError(t, err)
	gets := store.gets.Load()

	second, err := reg.Resolve(ctx, "m")
	require.NoError(t, err)
	assert.Same(t, first, second)
	assert.Equal(t, gets, store.gets.Load(), "live session must not hit the store")
}

func TestResolveHydrates(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	opts := options()

	pos, _, err := opts.Engine.ApplyMove(opts.Engine.NewPosition(), core.Move{From: "e2", To: "e4"})
	require.NoError(t, err)
	require.NoError(t, store.Create(ctx, storage.MatchRecord{
		MatchID:      "warm",
		FEN:          pos.FEN(),
		Moves:        []string{"e2e4"},
		Participants: []string{"a", "b"},
		Status:       "ongoing",
		Timers:       core.Timers{White: 5 * time.Minute, Black: 7 * time.Minute},
	}))

	reg := New(store, opts)
	s, err := reg.Resolve(ctx, "warm")
	require.NoError(t, err)

	s.Lock()
	defer s.Unlock()
	assert.Equal(t, core.PhaseOngoing, s.Status().Phase())
	assert.Equal(t, []string{"a", "b"}, s.Participants())
	assert.Equal(t, core.SideB, s.Position().Turn())
	assert.Equal(t, 5*time.Minute, s.Clock().Timers().White)
	assert.False(t, s.Clock().Running())
}

func TestResolveRepairsInvalidPosition(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	require.NoError(t, store.Create(ctx, storage.MatchRecord{
		MatchID:      "corrupt",
		FEN:          "definitely not chess",
		Participants: []string{"a"},
		Status:       "waiting",
	}))

	reg := New(store, options())
	s, err := reg.Resolve(ctx, "corrupt")
	require.NoError(t, err)

	s.Lock()
	assert.Equal(t, rules.StartingFEN, s.Position().FEN())
	assert.Equal(t, core.SideA, s.SideOf("a"))
	s.Unlock()

	rec, err := store.Get(ctx, "corrupt")
	require.NoError(t, err)
	assert.Equal(t, rules.StartingFEN, rec.FEN)
}

func TestResolveStoreFailure(t *testing.T) {
	reg := New(brokenStore{storage.NewMemoryStore()}, options())

	_, err := reg.Resolve(context.Background(), "m")
	assert.Error(t, err)
	_, ok := reg.Lookup("m")
	assert.False(t, ok)
}

func TestEvictOnlyThatSession(t *testing.T) {
	ctx := context.Background()
	reg := New(storage.NewMemoryStore(), options())

	s, err := reg.Resolve(ctx, "m")
	require.NoError(t, err)

	stranger := match.New("m", options())
	assert.False(t, reg.Evict("m", stranger))
	assert.False(t, reg.Evict("other", s))

	assert.True(t, reg.Evict("m", s))
	assert.False(t, reg.Evict("m", s))
	_, ok := reg.Lookup("m")
	assert.False(t, ok)

	again, err := reg.Resolve(ctx, "m")
	require.NoError(t, err)
	assert.NotSame(t, s, again)
}

func TestFindByParticipant(t *testing.T) {
	ctx := context.Background()
	reg := New(storage.NewMemoryStore(), options())

	for _, id := range []string{"one", "two", "three"} {
		s, err := reg.Resolve(ctx, id)
		require.NoError(t, err)
		s.Lock()
		if id != "three" {
			s.Join("conn-a")
		}
		s.Join("conn-" + id)
		s.Unlock()
	}

	found := reg.FindByParticipant("conn-a")
	assert.Len(t, found, 2)
	assert.Len(t, reg.FindByParticipant("conn-three"), 1)
	assert.Empty(t, reg.FindByParticipant("nobody"))
	assert.Len(t, reg.Sessions(), 3)

	reg.Shutdown()
	for _, s := range reg.Sessions() {
		s.Lock()
		assert.False(t, s.Clock().Running())
		s.Unlock()
	}
}
