package storage

import (
	"context"
	"sort"
	"time"

	"chessroom/internal/server/core"

	"github.com/sasha-s/go-deadlock"
)

// MemoryStore is a process-local Store used when persistence is disabled
type MemoryStore struct {
	mu      deadlock.RWMutex
	records map[string]MatchRecord
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]MatchRecord)}
}

func (s *MemoryStore) Kind() string                       { return "memory" }
func (s *MemoryStore) IsHealthy(ctx context.Context) bool { return true }
func (s *MemoryStore) Close() error                       { return nil }

func (s *MemoryStore) Get(ctx context.Context, matchID string) (MatchRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[matchID]
	if !ok {
		return MatchRecord{}, ErrNotFound
	}
	return rec.Clone(), nil
}

func (s *MemoryStore) Create(ctx context.Context, rec MatchRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.records[rec.MatchID]; ok {
		return ErrExists
	}
	s.records[rec.MatchID] = rec.Clone()
	return nil
}

func (s *MemoryStore) Update(ctx context.Context, rec MatchRecord) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.records[rec.MatchID]
	if !ok {
		return false, ErrNotFound
	}
	if !core.Open(cur.Status) {
		return false, nil
	}

	next := rec.Clone()
	next.CreatedAt = cur.CreatedAt
	s.records[rec.MatchID] = next
	return true, nil
}

func (s *MemoryStore) RepairPosition(ctx context.Context, matchID, fen string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.records[matchID]
	if !ok {
		return ErrNotFound
	}
	cur.FEN = fen
	cur.PGN = ""
	cur.UpdatedAt = time.Now().UTC()
	s.records[matchID] = cur
	return nil
}

func (s *MemoryStore) List(ctx context.Context, filter ListFilter) ([]MatchRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var records []MatchRecord
	for _, rec := range s.records {
		if filter.matches(rec) {
			records = append(records, rec.Clone())
		}
	}

	sort.Slice(records, func(i, j int) bool {
		return records[i].UpdatedAt.After(records[j].UpdatedAt)
	})
	if len(records) > filter.limit() {
		records = records[:filter.limit()]
	}
	return records, nil
}
