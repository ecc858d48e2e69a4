package storage

import (
	"context"
	"errors"
	"time"

	"chessroom/internal/server/core"
)

var (
	// ErrNotFound is returned when no record exists for a match id
	ErrNotFound = errors.New("match record not found")
	// ErrExists is returned by Create when the match id is already taken
	ErrExists = errors.New("match record already exists")
)

// Store persists match records. Records are never deleted.
type Store interface {
	// Get returns the record for matchID or ErrNotFound
	Get(ctx context.Context, matchID string) (MatchRecord, error)
	// Create inserts the initial record of a never-seen match
	Create(ctx context.Context, rec MatchRecord) error
	// Update overwrites the record only while the stored status is still open
	// (waiting or ongoing). It reports whether the write applied.
	Update(ctx context.Context, rec MatchRecord) (bool, error)
	// RepairPosition replaces the stored position of a record that failed to load
	RepairPosition(ctx context.Context, matchID, fen string) error
	// List returns records matching filter, most recently updated first
	List(ctx context.Context, filter ListFilter) ([]MatchRecord, error)
	// Kind names the backend for health reporting
	Kind() string
	// IsHealthy returns true if the backend is operational
	IsHealthy(ctx context.Context) bool
	Close() error
}

// ListFilter narrows List results. Empty fields match everything.
type ListFilter struct {
	Status      string
	Participant string
	Limit       int
}

const DefaultListLimit = 50

func (f ListFilter) limit() int {
	if f.Limit <= 0 {
		return DefaultListLimit
	}
	return f.Limit
}

// matches applies the filter in memory for backends without a query language
func (f ListFilter) matches(rec MatchRecord) bool {
	if f.Status != "" && rec.Status != f.Status {
		return false
	}
	if f.Participant == "" {
		return true
	}
	for _, p := range rec.Participants {
		if p == f.Participant {
			return true
		}
	}
	return false
}

// MatchRecord is the durable projection of a match session
type MatchRecord struct {
	MatchID      string           `json:"matchId"`
	FEN          string           `json:"fen"`
	PGN          string           `json:"pgn"`
	Moves        []string         `json:"moves"`
	LastMove     *core.MoveRecord `json:"lastMove,omitempty"`
	Participants []string         `json:"participants"`
	Status       string           `json:"status"`
	Winner       string           `json:"winner,omitempty"`
	Detail       string           `json:"detail,omitempty"`
	Timers       core.Timers      `json:"timers"`
	CreatedAt    time.Time        `json:"createdAt"`
	UpdatedAt    time.Time        `json:"updatedAt"`
	EndedAt      *time.Time       `json:"endedAt,omitempty"`
}

// Clone returns a deep copy so callers never share slices with a store
func (r MatchRecord) Clone() MatchRecord {
	c := r
	if r.Moves != nil {
		c.Moves = append([]string(nil), r.Moves...)
	}
	if r.Participants != nil {
		c.Participants = append([]string(nil), r.Participants...)
	}
	if r.LastMove != nil {
		lm := *r.LastMove
		c.LastMove = &lm
	}
	if r.EndedAt != nil {
		t := *r.EndedAt
		c.EndedAt = &t
	}
	return c
}
