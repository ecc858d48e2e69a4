package storage

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"chessroom/internal/server/core"

	"github.com/fxamacker/cbor/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

const (
	redisKeyPrefix  = "chessroom:match:"
	redisIndexKey   = "chessroom:matches"
	redisMaxRetries = 5
)

// RedisStore keeps one cbor-encoded value per match plus a set of known ids
type RedisStore struct {
	client *redis.Client
	enc    cbor.EncMode
}

// NewRedisStore connects to the server described by a redis:// URL
func NewRedisStore(ctx context.Context, url string) (*RedisStore, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return newRedisStore(client)
}

func newRedisStore(client *redis.Client) (*RedisStore, error) {
	enc, err := cbor.EncOptions{Time: cbor.TimeRFC3339Nano}.EncMode()
	if err != nil {
		return nil, fmt.Errorf("cbor encoder: %w", err)
	}
	return &RedisStore{client: client, enc: enc}, nil
}

func matchKey(matchID string) string {
	return redisKeyPrefix + matchID
}

func (s *RedisStore) encode(rec MatchRecord) ([]byte, error) {
	b, err := s.enc.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("encode match %s: %w", rec.MatchID, err)
	}
	return b, nil
}

func decodeRecord(b []byte) (MatchRecord, error) {
	var rec MatchRecord
	if err := cbor.Unmarshal(b, &rec); err != nil {
		return MatchRecord{}, fmt.Errorf("decode match record: %w", err)
	}
	return rec, nil
}

// Kind implements Store
func (s *RedisStore) Kind() string {
	return "redis"
}

// IsHealthy pings the server
func (s *RedisStore) IsHealthy(ctx context.Context) bool {
	return s.client.Ping(ctx).Err() == nil
}

// Get implements Store
func (s *RedisStore) Get(ctx context.Context, matchID string) (MatchRecord, error) {
	b, err := s.client.Get(ctx, matchKey(matchID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return MatchRecord{}, ErrNotFound
	}
	if err != nil {
		return MatchRecord{}, fmt.Errorf("get match %s: %w", matchID, err)
	}
	return decodeRecord(b)
}

// Create implements Store
func (s *RedisStore) Create(ctx context.Context, rec MatchRecord) error {
	b, err := s.encode(rec)
	if err != nil {
		return err
	}

	ok, err := s.client.SetNX(ctx, matchKey(rec.MatchID), b, 0).Result()
	if err != nil {
		return fmt.Errorf("create match %s: %w", rec.MatchID, err)
	}
	if !ok {
		return ErrExists
	}

	if err := s.client.SAdd(ctx, redisIndexKey, rec.MatchID).Err(); err != nil {
		return fmt.Errorf("index match %s: %w", rec.MatchID, err)
	}
	return nil
}

// modify runs fn against the current record under WATCH and writes the
// result in a MULTI block. fn returning false skips the write.
func (s *RedisStore) modify(ctx context.Context, matchID string, fn func(*MatchRecord) (bool, error)) (bool, error) {
	key := matchKey(matchID)

	for attempt := 0; attempt < redisMaxRetries; attempt++ {
		applied := false
		err := s.client.Watch(ctx, func(tx *redis.Tx) error {
			b, err := tx.Get(ctx, key).Bytes()
			if errors.Is(err, redis.Nil) {
				return ErrNotFound
			}
			if err != nil {
				return err
			}

			rec, err := decodeRecord(b)
			if err != nil {
				return err
			}

			write, err := fn(&rec)
			if err != nil || !write {
				return err
			}

			out, err := s.encode(rec)
			if err != nil {
				return err
			}

			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Set(ctx, key, out, 0)
				return nil
			})
			if err == nil {
				applied = true
			}
			return err
		}, key)

		if errors.Is(err, redis.TxFailedErr) {
			log.Debug().Str("match", matchID).Int("attempt", attempt).Msg("redis watch conflict, retrying")
			continue
		}
		if err != nil && !errors.Is(err, ErrNotFound) {
			return false, fmt.Errorf("update match %s: %w", matchID, err)
		}
		return applied, err
	}

	return false, fmt.Errorf("update match %s: too many concurrent writers", matchID)
}

// Update implements Store
func (s *RedisStore) Update(ctx context.Context, rec MatchRecord) (bool, error) {
	return s.modify(ctx, rec.MatchID, func(cur *MatchRecord) (bool, error) {
		if !core.Open(cur.Status) {
			return false, nil
		}
		createdAt := cur.CreatedAt
		*cur = rec.Clone()
		cur.CreatedAt = createdAt
		return true, nil
	})
}

// RepairPosition implements Store
func (s *RedisStore) RepairPosition(ctx context.Context, matchID, fen string) error {
	_, err := s.modify(ctx, matchID, func(cur *MatchRecord) (bool, error) {
		cur.FEN = fen
		cur.PGN = ""
		cur.UpdatedAt = time.Now().UTC()
		return true, nil
	})
	return err
}

// List implements Store
func (s *RedisStore) List(ctx context.Context, filter ListFilter) ([]MatchRecord, error) {
	ids, err := s.client.SMembers(ctx, redisIndexKey).Result()
	if err != nil {
		return nil, fmt.Errorf("list matches: %w", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = matchKey(id)
	}

	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("list matches: %w", err)
	}

	var records []MatchRecord
	for i, v := range values {
		raw, ok := v.(string)
		if !ok {
			continue
		}
		rec, err := decodeRecord([]byte(raw))
		if err != nil {
			log.Warn().Err(err).Str("match", ids[i]).Msg("skipping undecodable record")
			continue
		}
		if filter.matches(rec) {
			records = append(records, rec)
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

// Close closes the client
func (s *RedisStore) Close() error {
	return s.client.Close()
}
