// Package registry owns the live match sessions of the process.
package registry

import (
	"context"
	"errors"
	"fmt"

	"chessroom/internal/server/match"
	"chessroom/internal/server/rules"
	"chessroom/internal/server/storage"

	"github.com/rs/zerolog/log"
	"github.com/sasha-s/go-deadlock"
	"golang.org/x/sync/singleflight"
)

// Registry maps match ids to live sessions, hydrating from the store on a miss
type Registry struct {
	mu       deadlock.RWMutex
	sessions map[string]*match.Session
	group    singleflight.Group
	store    storage.Store
	opts     match.Options
}

// New creates an empty registry backed by store
func New(store storage.Store, opts match.Options) *Registry {
	if opts.Engine == nil {
		opts.Engine = rules.NewChess()
	}
	return &Registry{
		sessions: make(map[string]*match.Session),
		store:    store,
		opts:     opts,
	}
}

// Resolve returns the live session for id. On a miss the session is restored
// from its record, or created and persisted if the id was never seen.
// Concurrent resolves of one id share a single load and install.
func (r *Registry) Resolve(ctx context.Context, id string) (*match.Session, error) {
	if s, ok := r.Lookup(id); ok {
		return s, nil
	}

	v, err, _ := r.group.Do(id, func() (any, error) {
		if s, ok := r.Lookup(id); ok {
			return s, nil
		}

		s, err := r.load(ctx, id)
		if err != nil {
			return nil, err
		}

		r.mu.Lock()
		r.sessions[id] = s
		r.mu.Unlock()
		return s, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*match.Session), nil
}

func (r *Registry) load(ctx context.Context, id string) (*match.Session, error) {
	rec, err := r.store.Get(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		s := match.New(id, r.opts)
		err = r.store.Create(ctx, s.Record())
		if err == nil {
			log.Info().Str("match", id).Msg("match created")
			return s, nil
		}
		if !errors.Is(err, storage.ErrExists) {
			return nil, fmt.Errorf("create match %s: %w", id, err)
		}
		// created elsewhere in the meantime
		rec, err = r.store.Get(ctx, id)
	}
	if err != nil {
		return nil, fmt.Errorf("load match %s: %w", id, err)
	}

	return r.hydrate(ctx, rec)
}

func (r *Registry) hydrate(ctx context.Context, rec storage.MatchRecord) (*match.Session, error) {
	pos, err := r.opts.Engine.ParsePosition(rec.FEN)
	if err != nil {
		log.Warn().Err(err).Str("match", rec.MatchID).Msg("stored position invalid, resetting to initial position")

		pos = r.opts.Engine.NewPosition()
		rec.FEN = pos.FEN()
		rec.PGN = ""
		if err := r.store.RepairPosition(ctx, rec.MatchID, rec.FEN); err != nil {
			log.Error().Err(err).Str("match", rec.MatchID).Msg("failed to write repaired position")
		}
	}

	s, err := match.Restore(rec, pos, r.opts)
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("match", rec.MatchID).
		Str("status", rec.Status).
		Int("participants", len(rec.Participants)).
		Msg("match hydrated")
	return s, nil
}

// Lookup returns the live session without touching the store
func (r *Registry) Lookup(id string) (*match.Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[id]
	return s, ok
}

// Evict removes s if it is still the live session for id
func (r *Registry) Evict(id string, s *match.Session) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if cur, ok := r.sessions[id]; !ok || cur != s {
		return false
	}
	delete(r.sessions, id)
	log.Debug().Str("match", id).Msg("match evicted")
	return true
}

// Sessions returns a snapshot of the live sessions
func (r *Registry) Sessions() []*match.Session {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*match.Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s)
	}
	return out
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// FindByParticipant returns the live sessions conn is seated in. It locks each
// session in turn, so it must not be called while holding a session lock.
func (r *Registry) FindByParticipant(conn string) []*match.Session {
	var found []*match.Session
	for _, s := range r.Sessions() {
		s.Lock()
		seated := s.SideOf(conn).Valid()
		s.Unlock()
		if seated {
			found = append(found, s)
		}
	}
	return found
}

// Shutdown stops every running clock
func (r *Registry) Shutdown() {
	for _, s := range r.Sessions() {
		s.Lock()
		s.Clock().Stop()
		s.Unlock()
	}
}
