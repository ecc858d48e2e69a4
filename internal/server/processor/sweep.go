package processor

import (
	"context"
	"fmt"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

const DefaultSweepInterval = 30 * time.Second

// Sweep disconnects participants whose connection is gone from the transport,
// such as those restored from storage after a restart, and drops live sessions
// nobody is seated in. It returns the number of sessions it changed.
func (p *Processor) Sweep(ctx context.Context) int {
	changed := 0
	for _, s := range p.reg.Sessions() {
		s.Lock()
		if !p.isLive(s) {
			s.Unlock()
			continue
		}

		participants := s.Participants()
		if len(participants) == 0 && !s.Status().IsTerminal() {
			p.reg.Evict(s.ID(), s)
			s.Unlock()
			changed++
			continue
		}

		var ghosts []string
		for _, conn := range participants {
			if !p.out.Connected(conn) {
				ghosts = append(ghosts, conn)
			}
		}

		if len(ghosts) > 0 {
			log.Info().Str("match", s.ID()).Strs("conns", ghosts).Msg("sweeping disconnected participants")
			if err := p.apply(ctx, s, s.Disconnect(ghosts...)); err != nil {
				log.Error().Err(err).Str("match", s.ID()).Msg("sweep failed")
			}
			changed++
		} else if s.Status().IsTerminal() {
			p.reg.Evict(s.ID(), s)
			changed++
		}
		s.Unlock()
	}
	return changed
}

// Sweeper runs Sweep on a schedule
type Sweeper struct {
	sched gocron.Scheduler
}

// NewSweeper schedules p.Sweep every interval on clk. Runs never overlap.
func NewSweeper(p *Processor, clk clockwork.Clock, interval time.Duration) (*Sweeper, error) {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	if clk == nil {
		clk = clockwork.NewRealClock()
	}

	sched, err := gocron.NewScheduler(gocron.WithClock(clk))
	if err != nil {
		return nil, fmt.Errorf("failed to create scheduler: %w", err)
	}

	_, err = sched.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(func(ctx context.Context) {
			if n := p.Sweep(ctx); n > 0 {
				log.Debug().Int("sessions", n).Msg("sweep complete")
			}
		}),
		gocron.WithName("ghost-sweep"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		sched.Shutdown()
		return nil, fmt.Errorf("failed to schedule sweep: %w", err)
	}

	return &Sweeper{sched: sched}, nil
}

func (s *Sweeper) Start() {
	s.sched.Start()
}

func (s *Sweeper) Shutdown() error {
	return s.sched.Shutdown()
}
