// Package match holds the state machine of a single two-player match.
//
// Transition methods must be called with the session lock held. They never
// perform I/O: each returns a Result describing the notifications to send and
// whether the record must be persisted, which the caller applies afterwards.
package match

import (
	"fmt"
	"time"

	"chessroom/internal/server/clock"
	"chessroom/internal/server/core"
	"chessroom/internal/server/rules"
	"chessroom/internal/server/storage"

	"github.com/jonboulle/clockwork"
	"github.com/sasha-s/go-deadlock"
)

const MaxParticipants = 2

// TickFunc receives clock fires for a match. It runs on the clock's ticker
// goroutine, never under the session lock.
type TickFunc func(matchID string, generation uint64)

// Options are the collaborators shared by every session of a process
type Options struct {
	Engine rules.Engine
	Clock  clock.Config
	Time   clockwork.Clock
	OnTick TickFunc
}

func (o Options) withDefaults() Options {
	if o.Engine == nil {
		o.Engine = rules.NewChess()
	}
	if o.Time == nil {
		o.Time = clockwork.NewRealClock()
	}
	return o
}

// Notification is an event addressed to resolved connection ids
type Notification struct {
	To    []string
	Event core.Event
}

// Result is the outcome of one transition
type Result struct {
	Notifications []Notification
	Persist       bool
	// Terminal is set when the session has ended and should be evicted
	Terminal bool
}

// Empty reports whether the transition had no effect at all
func (r Result) Empty() bool {
	return len(r.Notifications) == 0 && !r.Persist && !r.Terminal
}

type Session struct {
	mu deadlock.Mutex

	id           string
	opts         Options
	participants []string
	position     rules.Position
	moves        []string
	lastMove     *core.MoveRecord
	clock        *clock.Clock
	status       core.Status
	pendingDraw  core.Side
	createdAt    time.Time
	updatedAt    time.Time
	endedAt      *time.Time
}

// New creates a waiting session with no participants and the initial position
func New(id string, opts Options) *Session {
	opts = opts.withDefaults()
	now := opts.Time.Now().UTC()
	return &Session{
		id:        id,
		opts:      opts,
		position:  opts.Engine.NewPosition(),
		moves:     []string{},
		clock:     clock.New(opts.Time, opts.Clock),
		status:    core.Waiting(),
		createdAt: now,
		updatedAt: now,
	}
}

// Restore rebuilds a session from its durable record. The position is parsed
// by the caller so it can repair records the engine rejects.
func Restore(rec storage.MatchRecord, pos rules.Position, opts Options) (*Session, error) {
	opts = opts.withDefaults()

	status, err := core.ParseStatus(rec.Status, rec.Winner, rec.Detail)
	if err != nil {
		return nil, fmt.Errorf("match %s: %w", rec.MatchID, err)
	}
	if len(rec.Participants) > MaxParticipants {
		return nil, fmt.Errorf("match %s: %d participants recorded", rec.MatchID, len(rec.Participants))
	}
	if !status.IsTerminal() {
		for _, p := range rec.Participants {
			if p == "" {
				return nil, fmt.Errorf("match %s: open match with a vacated side", rec.MatchID)
			}
		}
	}

	c := clock.New(opts.Time, opts.Clock)
	if !rec.Timers.IsZero() {
		c = clock.Restore(opts.Time, opts.Clock, rec.Timers)
	}

	s := &Session{
		id:           rec.MatchID,
		opts:         opts,
		participants: append([]string(nil), rec.Participants...),
		position:     pos,
		moves:        append([]string{}, rec.Moves...),
		clock:        c,
		status:       status,
		createdAt:    rec.CreatedAt,
		updatedAt:    rec.UpdatedAt,
	}
	if rec.LastMove != nil {
		lm := *rec.LastMove
		s.lastMove = &lm
	}
	if rec.EndedAt != nil {
		t := *rec.EndedAt
		s.endedAt = &t
	}
	return s, nil
}

func (s *Session) Lock()   { s.mu.Lock() }
func (s *Session) Unlock() { s.mu.Unlock() }

func (s *Session) ID() string { return s.id }

func (s *Session) Status() core.Status { return s.status }

// Participants returns the connected participant ids in side order
func (s *Session) Participants() []string {
	out := make([]string, 0, len(s.participants))
	for _, p := range s.participants {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// slots returns the side slots with departed participants left blank and
// trailing blanks dropped, so a slot's index stays its side
func (s *Session) slots() []string {
	n := len(s.participants)
	for n > 0 && s.participants[n-1] == "" {
		n--
	}
	return append([]string{}, s.participants[:n]...)
}

// SideOf returns the side assigned to conn, or SideNone
func (s *Session) SideOf(conn string) core.Side {
	if conn == "" {
		return core.SideNone
	}
	for i, p := range s.participants {
		if p == conn {
			return core.SideAt(i)
		}
	}
	return core.SideNone
}

func (s *Session) connOf(side core.Side) (string, bool) {
	i := side.Index()
	if i < 0 || i >= len(s.participants) || s.participants[i] == "" {
		return "", false
	}
	return s.participants[i], true
}

func (s *Session) Position() rules.Position { return s.position }

func (s *Session) Clock() *clock.Clock { return s.clock }

func (s *Session) PendingDraw() core.Side { return s.pendingDraw }

// Record projects the session onto its durable form
func (s *Session) Record() storage.MatchRecord {
	rec := storage.MatchRecord{
		MatchID:      s.id,
		FEN:          s.position.FEN(),
		PGN:          s.position.PGN(),
		Moves:        append([]string{}, s.moves...),
		Participants: s.slots(),
		Status:       s.status.String(),
		Timers:       s.clock.Timers(),
		CreatedAt:    s.createdAt,
		UpdatedAt:    s.updatedAt,
	}
	if o, ok := s.status.Outcome(); ok {
		rec.Winner = o.Winner.String()
		rec.Detail = o.Detail
	}
	if s.lastMove != nil {
		lm := *s.lastMove
		rec.LastMove = &lm
	}
	if s.endedAt != nil {
		t := *s.endedAt
		rec.EndedAt = &t
	}
	return rec
}

func (s *Session) now() time.Time {
	return s.opts.Time.Now().UTC()
}

func (s *Session) touch() {
	s.updatedAt = s.now()
}

func (s *Session) event(t core.EventType, payload any) core.Event {
	return core.Event{Type: t, MatchID: s.id, Payload: payload}
}

func (s *Session) startClock() {
	id, onTick := s.id, s.opts.OnTick
	s.clock.Start(func(gen uint64) {
		if onTick != nil {
			onTick(id, gen)
		}
	})
}

func (r *Result) notify(to []string, ev core.Event) {
	if len(to) == 0 {
		return
	}
	r.Notifications = append(r.Notifications, Notification{To: to, Event: ev})
}

func (r *Result) notifyOne(to string, ev core.Event) {
	r.notify([]string{to}, ev)
}
