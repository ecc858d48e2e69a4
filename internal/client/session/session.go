// Package session holds the terminal client's view of its current match.
package session

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"chessroom/internal/client/api"
	"chessroom/internal/client/display"
	"chessroom/internal/server/core"
)

// Sender is the part of the connection commands need
type Sender interface {
	Send(core.Action) error
}

// Session is the client state built from server events
type Session struct {
	Out    io.Writer
	Client Sender

	mu      sync.Mutex
	matchID string
	side    core.Side
	fen     string
	timers  core.Timers
	ended   *core.GameOver
	offer   core.Side
}

func New(out io.Writer, client Sender) *Session {
	return &Session{Out: out, Client: client}
}

// Snapshot is a copy of the session state
type Snapshot struct {
	MatchID string
	Side    core.Side
	FEN     string
	Timers  core.Timers
	Ended   *core.GameOver
	Offer   core.Side
}

func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{
		MatchID: s.matchID,
		Side:    s.side,
		FEN:     s.fen,
		Timers:  s.timers,
		Ended:   s.ended,
		Offer:   s.offer,
	}
}

// Joining resets the state for a new match id
func (s *Session) Joining(matchID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.matchID = matchID
	s.side = core.SideNone
	s.fen = ""
	s.timers = core.Timers{}
	s.ended = nil
	s.offer = core.SideNone
}

// Send stamps the current match id on a and sends it
func (s *Session) Send(a core.Action) error {
	s.mu.Lock()
	if a.MatchID == "" {
		a.MatchID = s.matchID
	}
	s.mu.Unlock()

	if a.MatchID == "" {
		return fmt.Errorf("no match joined, use 'join <matchId>' first")
	}
	return s.Client.Send(a)
}

// Apply folds one server event into the state and prints it
func (s *Session) Apply(ev api.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if ev.MatchID != "" && s.matchID != "" && ev.MatchID != s.matchID {
		return nil
	}

	switch ev.Type {
	case core.EventRoomJoined:
		var p core.RoomJoined
		if err := ev.Decode(&p); err != nil {
			return err
		}
		s.side, s.timers = p.Side, p.Timers
		s.printf("%sJoined %s as %s (%d/2)%s\n", display.Green, ev.MatchID, display.SideName(p.Side), p.Participants, display.Reset)

	case core.EventRoomFull:
		s.printf("%sMatch %s is full%s\n", display.Red, ev.MatchID, display.Reset)

	case core.EventGameStart:
		var p core.GameStart
		if err := ev.Decode(&p); err != nil {
			return err
		}
		s.fen, s.timers = p.FEN, p.Timers
		s.printf("%sGame started%s\n", display.Green, display.Reset)
		s.renderLocked()

	case core.EventMoveMade:
		var p core.MoveRecord
		if err := ev.Decode(&p); err != nil {
			return err
		}
		s.fen = p.FEN
		s.printf("%s played %s\n", display.SideName(p.Side), p.SAN)
		s.renderLocked()

	case core.EventTimerUpdate:
		var p core.Timers
		if err := ev.Decode(&p); err != nil {
			return err
		}
		s.timers = p

	case core.EventInvalidMove:
		var p core.InvalidMove
		if err := ev.Decode(&p); err != nil {
			return err
		}
		s.printf("%sIllegal move %s%s\n", display.Red, p.Move.UCI(), display.Reset)

	case core.EventDrawOffer:
		var p core.SideNotice
		if err := ev.Decode(&p); err != nil {
			return err
		}
		s.offer = p.Side
		if p.Side != s.side {
			s.printf("%s%s offers a draw ('draw accept' or 'draw reject')%s\n", display.Yellow, display.SideName(p.Side), display.Reset)
		}

	case core.EventDrawRejected:
		s.offer = core.SideNone
		s.printf("%sDraw offer rejected%s\n", display.Yellow, display.Reset)

	case core.EventDrawAccepted:
		s.offer = core.SideNone
		s.printf("%sDraw agreed%s\n", display.Yellow, display.Reset)

	case core.EventOpponentResigned:
		s.printf("%sOpponent resigned%s\n", display.Yellow, display.Reset)

	case core.EventOpponentDisconnected:
		s.printf("%sOpponent disconnected%s\n", display.Yellow, display.Reset)

	case core.EventChat:
		var p core.ChatMessage
		if err := ev.Decode(&p); err != nil {
			return err
		}
		s.printf("%s: %s\n", display.SideName(p.Side), p.Text)

	case core.EventGameOver:
		var p core.GameOver
		if err := ev.Decode(&p); err != nil {
			return err
		}
		s.ended = &p
		s.offer = core.SideNone
		s.printf("%sGame over: %s%s\n", display.Magenta, describeOutcome(p), display.Reset)

	case core.EventError:
		var p core.ErrorResponse
		if err := ev.Decode(&p); err != nil {
			return err
		}
		msg := p.Error
		if p.Details != "" {
			msg += ": " + p.Details
		}
		s.printf("%s[%s] %s%s\n", display.Red, p.Code, msg, display.Reset)

	default:
		s.printf("unhandled event %s\n", ev.Type)
	}
	return nil
}

// Render prints the current board
func (s *Session) Render() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.renderLocked()
}

func (s *Session) renderLocked() {
	if s.fen == "" {
		s.printf("No position yet\n")
		return
	}
	b, err := display.ParseFEN(s.fen)
	if err != nil {
		s.printf("%s%s%s\n", display.Red, err.Error(), display.Reset)
		return
	}
	b.Render(s.Out, s.side)
	s.printf("%s\n", display.Timers(s.timers, b.Turn()))
}

func (s *Session) printf(format string, args ...any) {
	fmt.Fprintf(s.Out, format, args...)
}

func describeOutcome(o core.GameOver) string {
	var parts []string
	if o.Winner.Valid() {
		parts = append(parts, display.SideName(o.Winner)+" wins")
	} else {
		parts = append(parts, "draw")
	}
	reason := string(o.Reason)
	if o.Detail != "" {
		reason += " (" + o.Detail + ")"
	}
	parts = append(parts, "by "+reason)
	return strings.Join(parts, " ")
}
