package processor

import (
	"context"
	"errors"
	"fmt"

	"chessroom/internal/server/core"
	"chessroom/internal/server/match"
	"chessroom/internal/server/registry"
	"chessroom/internal/server/storage"

	"github.com/rs/zerolog/log"
)

const maxJoinAttempts = 3

// Transport delivers events to connections
type Transport interface {
	Send(connID string, ev core.Event) error
	Connected(connID string) bool
}

// Processor routes commands to match sessions and applies their results:
// persistence first, then notifications, then eviction of ended matches.
type Processor struct {
	reg   *registry.Registry
	store storage.Store
	out   Transport
}

// New creates a processor owning a registry over store. Clock ticks of every
// session are fed back into Execute as CmdTick commands.
func New(store storage.Store, out Transport, opts match.Options) *Processor {
	p := &Processor{
		store: store,
		out:   out,
	}
	opts.OnTick = p.onTick
	p.reg = registry.New(store, opts)
	return p
}

func (p *Processor) Registry() *registry.Registry {
	return p.reg
}

func (p *Processor) onTick(matchID string, generation uint64) {
	if err := p.Execute(context.Background(), NewTickCommand(matchID, generation)); err != nil {
		log.Error().Err(err).Str("match", matchID).Msg("tick failed")
	}
}

// Execute runs one command to completion. The returned error is the failure of
// this command only (storage trouble); it is never shown to participants.
func (p *Processor) Execute(ctx context.Context, cmd Command) error {
	switch cmd.Type {
	case CmdJoin:
		return p.handleJoin(ctx, cmd)
	case CmdMove:
		return p.handleMove(ctx, cmd)
	case CmdResign:
		return p.handleSideAction(ctx, cmd, (*match.Session).Resign)
	case CmdOfferDraw:
		return p.handleSideAction(ctx, cmd, (*match.Session).OfferDraw)
	case CmdAcceptDraw:
		return p.withLive(ctx, cmd, func(s *match.Session) match.Result {
			return s.AcceptDraw(cmd.ConnID)
		})
	case CmdRejectDraw:
		return p.withLive(ctx, cmd, func(s *match.Session) match.Result {
			return s.RejectDraw(cmd.ConnID)
		})
	case CmdChat:
		return p.handleChat(ctx, cmd)
	case CmdReportEnd:
		return p.handleReportEnd(ctx, cmd)
	case CmdDisconnect:
		return p.handleDisconnect(ctx, cmd)
	case CmdTick:
		return p.handleTick(ctx, cmd)
	default:
		p.sendError(cmd, "unknown command", core.ErrInvalidRequest)
		return nil
	}
}

// handleJoin is the only path that creates or hydrates sessions
func (p *Processor) handleJoin(ctx context.Context, cmd Command) error {
	for attempt := 0; attempt < maxJoinAttempts; attempt++ {
		s, err := p.reg.Resolve(ctx, cmd.MatchID)
		if err != nil {
			log.Error().Err(err).Str("match", cmd.MatchID).Str("conn", cmd.ConnID).Msg("resolve failed")
			p.sendError(cmd, "match unavailable", core.ErrInternalError)
			return err
		}

		s.Lock()
		if !p.isLive(s) {
			// ended and evicted between resolve and lock
			s.Unlock()
			continue
		}
		err = p.apply(ctx, s, s.Join(cmd.ConnID))
		s.Unlock()
		return err
	}

	p.sendError(cmd, "match unavailable", core.ErrMatchUnavailable)
	return fmt.Errorf("join %s: session kept changing", cmd.MatchID)
}

func (p *Processor) handleMove(ctx context.Context, cmd Command) error {
	mv, ok := cmd.Args.(core.Move)
	if !ok {
		p.sendError(cmd, "invalid arguments", core.ErrInvalidRequest)
		return nil
	}

	err := p.withLive(ctx, cmd, func(s *match.Session) match.Result {
		return s.Move(cmd.ConnID, mv)
	})
	if errors.Is(err, errNotLive) {
		p.sendError(cmd, "match unavailable", core.ErrMatchUnavailable)
		return nil
	}
	return err
}

func (p *Processor) handleSideAction(ctx context.Context, cmd Command, fn func(*match.Session, string, core.Side) match.Result) error {
	args, _ := cmd.Args.(SideArgs)
	return p.withLive(ctx, cmd, func(s *match.Session) match.Result {
		return fn(s, cmd.ConnID, args.Side)
	})
}

func (p *Processor) handleChat(ctx context.Context, cmd Command) error {
	args, ok := cmd.Args.(ChatArgs)
	if !ok {
		p.sendError(cmd, "invalid arguments", core.ErrInvalidRequest)
		return nil
	}
	return p.withLive(ctx, cmd, func(s *match.Session) match.Result {
		return s.Chat(cmd.ConnID, args.Side, args.Text)
	})
}

// handleReportEnd applies a client-detected outcome only while the durable
// record is still open. The session is re-checked after the store round trip.
func (p *Processor) handleReportEnd(ctx context.Context, cmd Command) error {
	args, ok := cmd.Args.(ReportEndArgs)
	if !ok {
		p.sendError(cmd, "invalid arguments", core.ErrInvalidRequest)
		return nil
	}
	outcome, err := core.NewOutcome(args.Reason, args.Winner)
	if err != nil {
		p.sendError(cmd, err.Error(), core.ErrInvalidRequest)
		return nil
	}

	if _, ok := p.reg.Lookup(cmd.MatchID); !ok {
		return nil
	}

	rec, err := p.store.Get(ctx, cmd.MatchID)
	if err != nil {
		return fmt.Errorf("report end %s: %w", cmd.MatchID, err)
	}
	if !core.Open(rec.Status) {
		log.Debug().Str("match", cmd.MatchID).Str("status", rec.Status).Msg("reported end for closed match ignored")
		return nil
	}

	return p.withLive(ctx, cmd, func(s *match.Session) match.Result {
		return s.ReportEnd(cmd.ConnID, outcome)
	})
}

func (p *Processor) handleDisconnect(ctx context.Context, cmd Command) error {
	if cmd.MatchID != "" {
		return p.withLive(ctx, cmd, func(s *match.Session) match.Result {
			return s.Disconnect(cmd.ConnID)
		})
	}

	var errs []error
	for _, s := range p.reg.FindByParticipant(cmd.ConnID) {
		s.Lock()
		if p.isLive(s) {
			if err := p.apply(ctx, s, s.Disconnect(cmd.ConnID)); err != nil {
				errs = append(errs, err)
			}
		}
		s.Unlock()
	}
	return errors.Join(errs...)
}

func (p *Processor) handleTick(ctx context.Context, cmd Command) error {
	args, ok := cmd.Args.(TickArgs)
	if !ok {
		return nil
	}
	return p.withLive(ctx, cmd, func(s *match.Session) match.Result {
		return s.Tick(args.Generation)
	})
}

var errNotLive = errors.New("match not live")

// withLive runs fn on the live session of cmd.MatchID under its lock. Actions
// for matches that are not live are protocol violations and are dropped.
func (p *Processor) withLive(ctx context.Context, cmd Command, fn func(*match.Session) match.Result) error {
	s, ok := p.reg.Lookup(cmd.MatchID)
	if !ok {
		log.Debug().Str("match", cmd.MatchID).Str("conn", cmd.ConnID).Stringer("cmd", cmd.Type).Msg("no live match")
		return errNotLiveFor(cmd)
	}

	s.Lock()
	defer s.Unlock()

	if !p.isLive(s) {
		return errNotLiveFor(cmd)
	}
	return p.apply(ctx, s, fn(s))
}

// errNotLiveFor only surfaces for moves, which answer with an error event
func errNotLiveFor(cmd Command) error {
	if cmd.Type == CmdMove {
		return errNotLive
	}
	return nil
}

// isLive reports whether s is still the installed session for its id
func (p *Processor) isLive(s *match.Session) bool {
	cur, ok := p.reg.Lookup(s.ID())
	return ok && cur == s
}

// apply performs the side effects of a transition. Called with the session lock held.
func (p *Processor) apply(ctx context.Context, s *match.Session, r match.Result) error {
	var err error
	if r.Persist {
		err = p.persist(ctx, s)
	}

	p.deliver(r.Notifications)

	if r.Terminal {
		p.reg.Evict(s.ID(), s)
	}
	return err
}

func (p *Processor) persist(ctx context.Context, s *match.Session) error {
	rec := s.Record()

	applied, err := p.store.Update(ctx, rec)
	if errors.Is(err, storage.ErrNotFound) {
		err = p.store.Create(ctx, rec)
		applied = err == nil
	}
	if err != nil {
		log.Error().Err(err).Str("match", rec.MatchID).Str("status", rec.Status).Msg("failed to persist match")
		return fmt.Errorf("persist %s: %w", rec.MatchID, err)
	}
	if !applied {
		log.Debug().Str("match", rec.MatchID).Msg("stored record already closed, update skipped")
	}
	return nil
}

func (p *Processor) deliver(notifications []match.Notification) {
	for _, n := range notifications {
		for _, to := range n.To {
			if err := p.out.Send(to, n.Event); err != nil {
				log.Debug().Err(err).Str("conn", to).Str("event", string(n.Event.Type)).Msg("send failed")
			}
		}
	}
}

func (p *Processor) sendError(cmd Command, message, code string) {
	if cmd.ConnID == "" {
		return
	}
	if err := p.out.Send(cmd.ConnID, core.NewErrorEvent(cmd.MatchID, message, code)); err != nil {
		log.Debug().Err(err).Str("conn", cmd.ConnID).Msg("send failed")
	}
}
