// Package clock implements the server-authoritative dual countdown of a match.
//
// A Clock is not safe for concurrent use: it belongs to a match session and every
// method must be called with that session's lock held. The only concurrency is the
// ticker goroutine started by Start, which never touches clock state and only
// reports fires to the owner, tagged with the generation it was started under.
package clock

import (
	"sync/atomic"
	"time"

	"chessroom/internal/server/core"

	"github.com/jonboulle/clockwork"
)

const (
	DefaultInitial   = 8 * time.Minute
	DefaultIncrement = 3 * time.Second
	DefaultInterval  = time.Second

	// NoIncrement disables the per-move increment; a zero Increment means DefaultIncrement
	NoIncrement time.Duration = -1
)

// Config is the time control of a match
type Config struct {
	Initial   time.Duration
	Increment time.Duration
	Interval  time.Duration
}

// DefaultConfig returns 8 minutes per side with a 3 second increment
func DefaultConfig() Config {
	return Config{
		Initial:   DefaultInitial,
		Increment: DefaultIncrement,
		Interval:  DefaultInterval,
	}
}

func (c Config) withDefaults() Config {
	if c.Initial <= 0 {
		c.Initial = DefaultInitial
	}
	switch {
	case c.Increment == 0:
		c.Increment = DefaultIncrement
	case c.Increment < 0:
		c.Increment = 0
	}
	if c.Interval <= 0 {
		c.Interval = DefaultInterval
	}
	return c
}

// FireFunc is invoked from the ticker goroutine on every tick
type FireFunc func(generation uint64)

// generations are unique across all clocks of the process
var generations atomic.Uint64

type Clock struct {
	clk        clockwork.Clock
	increment  time.Duration
	interval   time.Duration
	remaining  core.Timers
	running    bool
	generation uint64
	done       chan struct{}
}

// New creates a stopped clock with both sides at cfg.Initial
func New(clk clockwork.Clock, cfg Config) *Clock {
	cfg = cfg.withDefaults()
	return Restore(clk, cfg, core.Timers{White: cfg.Initial, Black: cfg.Initial})
}

// Restore creates a stopped clock with the given remaining times
func Restore(clk clockwork.Clock, cfg Config, remaining core.Timers) *Clock {
	if clk == nil {
		clk = clockwork.NewRealClock()
	}
	cfg = cfg.withDefaults()
	return &Clock{
		clk:       clk,
		increment: cfg.Increment,
		interval:  cfg.Interval,
		remaining: remaining,
	}
}

// Start begins ticking. It returns false if the clock is already running.
func (c *Clock) Start(fire FireFunc) bool {
	if c.running {
		return false
	}

	c.running = true
	c.generation = generations.Add(1)
	c.done = make(chan struct{})

	gen, done := c.generation, c.done
	ticker := c.clk.NewTicker(c.interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.Chan():
				select {
				case <-done:
					return
				default:
				}
				fire(gen)
			}
		}
	}()
	return true
}

// Tick decrements the side to move by one interval. Ticks from a stopped clock or
// from an earlier generation are ignored and report ok=false. When a side runs out
// the clock stops itself and the expired side is returned; this happens once.
func (c *Clock) Tick(turn core.Side, generation uint64) (expired core.Side, ok bool) {
	if !c.running || generation != c.generation || !turn.Valid() {
		return core.SideNone, false
	}

	c.remaining.Set(turn, c.remaining.Get(turn)-c.interval)

	switch {
	case c.remaining.White <= 0:
		expired = core.SideA
	case c.remaining.Black <= 0:
		expired = core.SideB
	}
	if expired != core.SideNone {
		c.Stop()
	}
	return expired, true
}

// ApplyIncrement credits the mover right after an accepted move
func (c *Clock) ApplyIncrement(mover core.Side) {
	if !mover.Valid() {
		return
	}
	c.remaining.Set(mover, c.remaining.Get(mover)+c.increment)
}

// Stop halts ticking. Safe to call on a stopped clock.
func (c *Clock) Stop() {
	if !c.running {
		return
	}
	c.running = false
	close(c.done)
	c.done = nil
}

func (c *Clock) Running() bool {
	return c.running
}

// Generation identifies the current run; zero before the first Start
func (c *Clock) Generation() uint64 {
	return c.generation
}

func (c *Clock) Timers() core.Timers {
	return c.remaining
}

func (c *Clock) Interval() time.Duration {
	return c.interval
}

func (c *Clock) Increment() time.Duration {
	return c.increment
}
