package clock

import (
	"context"
	"testing"
	"time"

	"chessroom/internal/server/core"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startedClock(t *testing.T, remaining core.Timers) *Clock {
	t.Helper()
	c := Restore(clockwork.NewFakeClock(), DefaultConfig(), remaining)
	require.True(t, c.Start(func(uint64) {}))
	t.Cleanup(c.Stop)
	return c
}

func TestDefaults(t *testing.T) {
	c := New(nil, Config{})
	assert.Equal(t, 8*time.Minute, c.Timers().White)
	assert.Equal(t, 8*time.Minute, c.Timers().Black)
	assert.Equal(t, 3*time.Second, c.Increment())
	assert.Equal(t, time.Second, c.Interval())
	assert.False(t, c.Running())
	assert.Zero(t, c.Generation())
}

func TestNoIncrement(t *testing.T) {
	c := New(clockwork.NewFakeClock(), Config{Initial: time.Minute, Increment: NoIncrement})
	assert.Zero(t, c.Increment())

	c.ApplyIncrement(core.SideA)
	assert.Equal(t, time.Minute, c.Timers().White)
}

func TestTickDecrementsSideToMove(t *testing.T) {
	c := startedClock(t, core.Timers{White: 10 * time.Second, Black: 10 * time.Second})
	gen := c.Generation()

	expired, ok := c.Tick(core.SideA, gen)
	assert.True(t, ok)
	assert.Equal(t, core.SideNone, expired)
	assert.Equal(t, 9*time.Second, c.Timers().White)
	assert.Equal(t, 10*time.Second, c.Timers().Black)

	_, ok = c.Tick(core.SideB, gen)
	assert.True(t, ok)
	assert.Equal(t, 9*time.Second, c.Timers().Black)
}

func TestIncrementArithmetic(t *testing.T) {
	initial := 60 * time.Second
	c := startedClock(t, core.Timers{White: initial, Black: initial})
	gen := c.Generation()

	// white thinks 4 ticks per move over 3 moves, black 2 ticks per move
	for i := 0; i < 3; i++ {
		for j := 0; j < 4; j++ {
			c.Tick(core.SideA, gen)
		}
		c.ApplyIncrement(core.SideA)
		for j := 0; j < 2; j++ {
			c.Tick(core.SideB, gen)
		}
		c.ApplyIncrement(core.SideB)
	}

	assert.Equal(t, initial-12*time.Second+3*3*time.Second, c.Timers().White)
	assert.Equal(t, initial-6*time.Second+3*3*time.Second, c.Timers().Black)
}

func TestTimeoutReportedOnce(t *testing.T) {
	c := startedClock(t, core.Timers{White: time.Second, Black: time.Minute})
	gen := c.Generation()

	expired, ok := c.Tick(core.SideA, gen)
	require.True(t, ok)
	assert.Equal(t, core.SideA, expired)
	assert.False(t, c.Running())

	// later deliveries of the same generation are stale
	expired, ok = c.Tick(core.SideA, gen)
	assert.False(t, ok)
	assert.Equal(t, core.SideNone, expired)
	_, ok = c.Tick(core.SideA, gen)
	assert.False(t, ok)
	assert.Equal(t, time.Duration(0), c.Timers().White)
}

func TestStaleGenerationIgnored(t *testing.T) {
	c := startedClock(t, core.Timers{White: time.Minute, Black: time.Minute})
	old := c.Generation()
	c.Stop()
	c.Stop()

	require.True(t, c.Start(func(uint64) {}))
	assert.NotEqual(t, old, c.Generation())

	_, ok := c.Tick(core.SideA, old)
	assert.False(t, ok)
	assert.Equal(t, time.Minute, c.Timers().White)
}

func TestGenerationsUniqueAcrossClocks(t *testing.T) {
	a := startedClock(t, core.Timers{White: time.Minute, Black: time.Minute})
	b := startedClock(t, core.Timers{White: time.Minute, Black: time.Minute})
	assert.NotEqual(t, a.Generation(), b.Generation())

	_, ok := b.Tick(core.SideA, a.Generation())
	assert.False(t, ok)
}

func TestStartIsIdempotent(t *testing.T) {
	c := startedClock(t, core.Timers{White: time.Minute, Black: time.Minute})
	gen := c.Generation()
	assert.False(t, c.Start(func(uint64) {}))
	assert.Equal(t, gen, c.Generation())
}

func TestTickerFiresWithGeneration(t *testing.T) {
	fc := clockwork.NewFakeClock()
	c := New(fc, Config{Initial: time.Minute, Interval: time.Second})

	fired := make(chan uint64, 4)
	require.True(t, c.Start(func(gen uint64) { fired <- gen }))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, fc.BlockUntilContext(ctx, 1))

	fc.Advance(time.Second)
	select {
	case gen := <-fired:
		assert.Equal(t, c.Generation(), gen)
	case <-time.After(time.Second):
		t.Fatal("tick not delivered")
	}

	c.Stop()
	require.NoError(t, fc.BlockUntilContext(ctx, 0))
	fc.Advance(5 * time.Second)
	select {
	case gen := <-fired:
		t.Fatalf("tick %d delivered after stop", gen)
	case <-time.After(50 * time.Millisecond):
	}
}
