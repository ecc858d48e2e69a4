package match

import (
	"errors"

	"chessroom/internal/server/core"
	"chessroom/internal/server/rules"

	"github.com/rs/zerolog/log"
)

// Join assigns conn to the next free side, or resynchronises a known participant
func (s *Session) Join(conn string) Result {
	var r Result

	if o, ended := s.status.Outcome(); ended {
		r.notifyOne(conn, s.event(core.EventGameOver, gameOver(o)))
		r.Terminal = true
		return r
	}

	if side := s.SideOf(conn); side != core.SideNone {
		r.notifyOne(conn, s.event(core.EventRoomJoined, core.RoomJoined{
			Side:         side,
			Participants: len(s.participants),
			Timers:       s.clock.Timers(),
		}))
		if len(s.participants) == MaxParticipants {
			if !s.clock.Running() && s.status.Phase() == core.PhaseOngoing {
				s.startClock()
			}
			r.notifyOne(conn, s.event(core.EventGameStart, core.GameStart{
				FEN:    s.position.FEN(),
				Timers: s.clock.Timers(),
			}))
		}
		return r
	}

	if len(s.participants) >= MaxParticipants {
		r.notifyOne(conn, s.event(core.EventRoomFull, nil))
		return r
	}

	s.participants = append(s.participants, conn)
	side := core.SideAt(len(s.participants) - 1)
	s.touch()
	r.Persist = true

	r.notifyOne(conn, s.event(core.EventRoomJoined, core.RoomJoined{
		Side:         side,
		Participants: len(s.participants),
		Timers:       s.clock.Timers(),
	}))

	if len(s.participants) == MaxParticipants {
		s.status = core.Ongoing()
		s.startClock()
		r.notify(s.Participants(), s.event(core.EventGameStart, core.GameStart{
			FEN:    s.position.FEN(),
			Timers: s.clock.Timers(),
		}))
	}

	log.Debug().Str("match", s.id).Str("conn", conn).Stringer("side", side).Msg("participant joined")
	return r
}

// Move applies mv for conn if it is that side's turn and the engine accepts it
func (s *Session) Move(conn string, mv core.Move) Result {
	var r Result

	if s.status.Phase() != core.PhaseOngoing {
		return r
	}

	side := s.SideOf(conn)
	if side == core.SideNone || side != s.position.Turn() {
		log.Debug().Str("match", s.id).Str("conn", conn).Str("move", mv.UCI()).Msg("out of turn move dropped")
		return r
	}

	pos, rec, err := s.opts.Engine.ApplyMove(s.position, mv)
	if err != nil {
		if !errors.Is(err, rules.ErrIllegalMove) {
			log.Warn().Err(err).Str("match", s.id).Str("move", mv.UCI()).Msg("rules engine failure")
		}
		r.notifyOne(conn, s.event(core.EventInvalidMove, core.InvalidMove{Move: mv, FEN: s.position.FEN()}))
		return r
	}

	s.position = pos
	s.moves = append(s.moves, rec.UCI)
	s.lastMove = rec
	s.clock.ApplyIncrement(side)
	s.touch()
	r.Persist = true

	everyone := s.Participants()
	r.notify(everyone, s.event(core.EventMoveMade, *rec))
	r.notify(everyone, s.event(core.EventTimerUpdate, s.clock.Timers()))

	switch t := s.opts.Engine.TerminalStatus(s.position); t {
	case rules.Ongoing:
	case rules.Checkmate:
		s.terminate(&r, core.Outcome{Reason: core.ReasonCheckmate, Winner: side})
	default:
		s.terminate(&r, core.Outcome{Reason: core.ReasonDrawRule, Detail: t.String()})
	}
	return r
}

// Resign ends the match in favour of the opponent of conn. A side that does not
// match the sender's assignment is ignored.
func (s *Session) Resign(conn string, side core.Side) Result {
	var r Result

	own, ok := s.ownSide(conn, side)
	if !ok || s.status.Phase() != core.PhaseOngoing {
		return r
	}

	if opp, ok := s.connOf(own.Opposite()); ok {
		r.notifyOne(opp, s.event(core.EventOpponentResigned, core.SideNotice{Side: own}))
	}
	s.terminate(&r, core.Outcome{Reason: core.ReasonResignation, Winner: own.Opposite()})
	return r
}

// OfferDraw records a pending offer and tells the other side. Only one offer
// can be pending at a time.
func (s *Session) OfferDraw(conn string, side core.Side) Result {
	var r Result

	own, ok := s.ownSide(conn, side)
	if !ok || s.status.Phase() != core.PhaseOngoing || s.pendingDraw != core.SideNone {
		return r
	}

	s.pendingDraw = own
	if opp, ok := s.connOf(own.Opposite()); ok {
		r.notifyOne(opp, s.event(core.EventDrawOffer, core.SideNotice{Side: own}))
	}
	return r
}

// AcceptDraw ends the match as a draw when the other side has an offer pending
func (s *Session) AcceptDraw(conn string) Result {
	var r Result

	if !s.answersOffer(conn) {
		return r
	}

	r.notify(s.Participants(), s.event(core.EventDrawAccepted, nil))
	s.terminate(&r, core.Outcome{Reason: core.ReasonDrawAgreement})
	return r
}

// RejectDraw clears the pending offer and tells the offerer
func (s *Session) RejectDraw(conn string) Result {
	var r Result

	if !s.answersOffer(conn) {
		return r
	}

	offerer := s.pendingDraw
	s.pendingDraw = core.SideNone
	if to, ok := s.connOf(offerer); ok {
		r.notifyOne(to, s.event(core.EventDrawRejected, core.SideNotice{Side: offerer.Opposite()}))
	}
	return r
}

// Chat relays text from a participant to the room
func (s *Session) Chat(conn string, side core.Side, text string) Result {
	var r Result

	own, ok := s.ownSide(conn, side)
	if !ok || s.status.IsTerminal() {
		return r
	}

	r.notify(s.Participants(), s.event(core.EventChat, core.ChatMessage{Side: own, Text: text}))
	return r
}

// ReportEnd applies an outcome detected by a participant's client. The caller
// has already checked that the durable record is still open.
func (s *Session) ReportEnd(conn string, o core.Outcome) Result {
	var r Result

	if s.SideOf(conn) == core.SideNone {
		return r
	}
	s.terminate(&r, o)
	return r
}

// Disconnect removes the given connections. An emptied room is abandoned; a
// single remaining participant wins by opponent disconnection.
func (s *Session) Disconnect(conns ...string) Result {
	var r Result

	if s.status.IsTerminal() {
		return r
	}

	gone := make(map[string]bool, len(conns))
	for _, c := range conns {
		gone[c] = true
	}

	var (
		remaining     []string
		remainingSide core.Side
		leftSide      core.Side
		left          bool
	)
	for i, p := range s.participants {
		if gone[p] {
			leftSide = core.SideAt(i)
			left = true
			// the slot stays so the other side keeps its index
			s.participants[i] = ""
			continue
		}
		remaining = append(remaining, p)
		remainingSide = core.SideAt(i)
	}
	if !left {
		return r
	}
	s.touch()

	switch len(remaining) {
	case 0:
		s.terminate(&r, core.Outcome{Reason: core.ReasonAbandoned})
	default:
		r.notify(remaining, s.event(core.EventOpponentDisconnected, core.SideNotice{Side: leftSide}))
		s.terminate(&r, core.Outcome{Reason: core.ReasonOpponentDisconnected, Winner: remainingSide})
	}
	return r
}

// Tick handles a clock fire of the given generation
func (s *Session) Tick(generation uint64) Result {
	var r Result

	if s.status.Phase() != core.PhaseOngoing {
		return r
	}

	expired, ok := s.clock.Tick(s.position.Turn(), generation)
	if !ok {
		return r
	}

	r.notify(s.Participants(), s.event(core.EventTimerUpdate, s.clock.Timers()))
	if expired != core.SideNone {
		s.terminate(&r, core.Outcome{Reason: core.ReasonTimeout, Winner: expired.Opposite()})
	}
	return r
}

// terminate is the only path into a terminal status. The first caller wins;
// later calls leave the session untouched.
func (s *Session) terminate(r *Result, o core.Outcome) bool {
	if s.status.IsTerminal() {
		return false
	}

	s.clock.Stop()
	s.pendingDraw = core.SideNone
	s.status = core.Terminal(o)
	now := s.now()
	s.endedAt = &now
	s.updatedAt = now

	r.Persist = true
	r.Terminal = true
	r.notify(s.Participants(), s.event(core.EventGameOver, gameOver(o)))

	log.Info().
		Str("match", s.id).
		Str("reason", string(o.Reason)).
		Stringer("winner", o.Winner).
		Msg("match ended")
	return true
}

// ownSide resolves the sender's side, rejecting payloads that claim the other one
func (s *Session) ownSide(conn string, claimed core.Side) (core.Side, bool) {
	own := s.SideOf(conn)
	if own == core.SideNone {
		return core.SideNone, false
	}
	if claimed != core.SideNone && claimed != own {
		log.Debug().Str("match", s.id).Str("conn", conn).Msg("action for foreign side dropped")
		return core.SideNone, false
	}
	return own, true
}

func (s *Session) answersOffer(conn string) bool {
	if s.status.Phase() != core.PhaseOngoing || s.pendingDraw == core.SideNone {
		return false
	}
	return s.SideOf(conn) == s.pendingDraw.Opposite()
}

func gameOver(o core.Outcome) core.GameOver {
	return core.GameOver{Winner: o.Winner, Reason: o.Reason, Detail: o.Detail}
}
