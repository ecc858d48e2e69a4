package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"chessroom/internal/server/core"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog/log"
)

const recordColumns = `match_id, fen, pgn, moves, last_move, participants, status, winner, detail,
	white_ms, black_ms, created_at, updated_at, ended_at`

// SQLiteStore keeps match records in a single SQLite table
type SQLiteStore struct {
	db           *sql.DB
	path         string
	healthStatus atomic.Bool
}

// NewSQLiteStore opens the database at dataSourceName
func NewSQLiteStore(dataSourceName string, devMode bool) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dataSourceName)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// WAL lets readers (HTTP API) proceed during match writes
	if devMode {
		if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
		}
	}

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)

	s := &SQLiteStore{
		db:   db,
		path: dataSourceName,
	}
	s.healthStatus.Store(true)

	return s, nil
}

// Kind implements Store
func (s *SQLiteStore) Kind() string {
	return "sqlite"
}

// IsHealthy reports the outcome of the most recent write
func (s *SQLiteStore) IsHealthy(ctx context.Context) bool {
	return s.healthStatus.Load()
}

// executeWrite runs fn in a transaction and tracks storage health
func (s *SQLiteStore) executeWrite(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		s.degrade("failed to begin transaction", err)
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	if err := fn(tx); err != nil {
		tx.Rollback()
		if !errors.Is(err, ErrNotFound) && !errors.Is(err, ErrExists) {
			s.degrade("write operation failed", err)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		s.degrade("failed to commit", err)
		return fmt.Errorf("failed to commit: %w", err)
	}

	if !s.healthStatus.Swap(true) {
		log.Info().Str("store", "sqlite").Msg("storage recovered")
	}
	return nil
}

func (s *SQLiteStore) degrade(msg string, err error) {
	if s.healthStatus.Swap(false) {
		log.Error().Err(err).Str("store", "sqlite").Msg("storage degraded: " + msg)
	}
}

// Get implements Store
func (s *SQLiteStore) Get(ctx context.Context, matchID string) (MatchRecord, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+recordColumns+` FROM matches WHERE match_id = ?`, matchID)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return MatchRecord{}, ErrNotFound
	}
	if err != nil {
		return MatchRecord{}, fmt.Errorf("query match %s: %w", matchID, err)
	}
	return rec, nil
}

// Create implements Store
func (s *SQLiteStore) Create(ctx context.Context, rec MatchRecord) error {
	cols, err := encodeColumns(rec)
	if err != nil {
		return err
	}

	return s.executeWrite(ctx, func(tx *sql.Tx) error {
		query := `INSERT INTO matches (` + recordColumns + `)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(match_id) DO NOTHING`

		res, err := tx.ExecContext(ctx, query,
			rec.MatchID, rec.FEN, rec.PGN, cols.moves, cols.lastMove, cols.participants,
			rec.Status, rec.Winner, rec.Detail,
			rec.Timers.White.Milliseconds(), rec.Timers.Black.Milliseconds(),
			rec.CreatedAt.UTC(), rec.UpdatedAt.UTC(), cols.endedAt,
		)
		if err != nil {
			return fmt.Errorf("insert match %s: %w", rec.MatchID, err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return ErrExists
		}
		return nil
	})
}

// Update implements Store
func (s *SQLiteStore) Update(ctx context.Context, rec MatchRecord) (bool, error) {
	cols, err := encodeColumns(rec)
	if err != nil {
		return false, err
	}

	applied := false
	err = s.executeWrite(ctx, func(tx *sql.Tx) error {
		query := `UPDATE matches SET
			fen = ?, pgn = ?, moves = ?, last_move = ?, participants = ?,
			status = ?, winner = ?, detail = ?, white_ms = ?, black_ms = ?,
			updated_at = ?, ended_at = ?
		WHERE match_id = ? AND status IN ('waiting', 'ongoing')`

		res, err := tx.ExecContext(ctx, query,
			rec.FEN, rec.PGN, cols.moves, cols.lastMove, cols.participants,
			rec.Status, rec.Winner, rec.Detail,
			rec.Timers.White.Milliseconds(), rec.Timers.Black.Milliseconds(),
			rec.UpdatedAt.UTC(), cols.endedAt,
			rec.MatchID,
		)
		if err != nil {
			return fmt.Errorf("update match %s: %w", rec.MatchID, err)
		}

		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("update match %s: %w", rec.MatchID, err)
		}
		if n > 0 {
			applied = true
			return nil
		}

		var exists int
		err = tx.QueryRowContext(ctx, `SELECT 1 FROM matches WHERE match_id = ?`, rec.MatchID).Scan(&exists)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		return err
	})
	return applied, err
}

// RepairPosition implements Store
func (s *SQLiteStore) RepairPosition(ctx context.Context, matchID, fen string) error {
	return s.executeWrite(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`UPDATE matches SET fen = ?, pgn = '', updated_at = ? WHERE match_id = ?`,
			fen, time.Now().UTC(), matchID)
		if err != nil {
			return fmt.Errorf("repair match %s: %w", matchID, err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return ErrNotFound
		}
		return nil
	})
}

// List implements Store
func (s *SQLiteStore) List(ctx context.Context, filter ListFilter) ([]MatchRecord, error) {
	query := `SELECT ` + recordColumns + ` FROM matches WHERE 1=1`

	var args []interface{}

	if filter.Status != "" {
		query += " AND status = ?"
		args = append(args, filter.Status)
	}

	if filter.Participant != "" {
		query += " AND EXISTS (SELECT 1 FROM json_each(matches.participants) WHERE json_each.value = ?)"
		args = append(args, filter.Participant)
	}

	query += " ORDER BY updated_at DESC LIMIT ?"
	args = append(args, filter.limit())

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	defer rows.Close()

	var records []MatchRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan failed: %w", err)
		}
		records = append(records, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration failed: %w", err)
	}

	return records, nil
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// InitDB creates the database schema
func (s *SQLiteStore) InitDB() error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(Schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}

	return tx.Commit()
}

// DeleteDB removes the database file
func (s *SQLiteStore) DeleteDB() error {
	if err := s.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}

	// ☣ DESTRUCTIVE: removes every match record
	for _, suffix := range []string{"", "-wal", "-shm"} {
		if err := os.Remove(s.path + suffix); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to delete database file: %w", err)
		}
	}

	return nil
}

type encodedColumns struct {
	moves        string
	participants string
	lastMove     sql.NullString
	endedAt      sql.NullTime
}

func encodeColumns(rec MatchRecord) (encodedColumns, error) {
	var cols encodedColumns

	moves := rec.Moves
	if moves == nil {
		moves = []string{}
	}
	b, err := json.Marshal(moves)
	if err != nil {
		return cols, fmt.Errorf("encode moves: %w", err)
	}
	cols.moves = string(b)

	participants := rec.Participants
	if participants == nil {
		participants = []string{}
	}
	if b, err = json.Marshal(participants); err != nil {
		return cols, fmt.Errorf("encode participants: %w", err)
	}
	cols.participants = string(b)

	if rec.LastMove != nil {
		if b, err = json.Marshal(rec.LastMove); err != nil {
			return cols, fmt.Errorf("encode last move: %w", err)
		}
		cols.lastMove = sql.NullString{String: string(b), Valid: true}
	}

	if rec.EndedAt != nil {
		cols.endedAt = sql.NullTime{Time: rec.EndedAt.UTC(), Valid: true}
	}

	return cols, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (MatchRecord, error) {
	var (
		rec                      MatchRecord
		moves, participants      string
		lastMove                 sql.NullString
		whiteMillis, blackMillis int64
		endedAt                  sql.NullTime
	)

	err := row.Scan(
		&rec.MatchID, &rec.FEN, &rec.PGN, &moves, &lastMove, &participants,
		&rec.Status, &rec.Winner, &rec.Detail,
		&whiteMillis, &blackMillis,
		&rec.CreatedAt, &rec.UpdatedAt, &endedAt,
	)
	if err != nil {
		return MatchRecord{}, err
	}

	if err := json.Unmarshal([]byte(moves), &rec.Moves); err != nil {
		return MatchRecord{}, fmt.Errorf("decode moves: %w", err)
	}
	if err := json.Unmarshal([]byte(participants), &rec.Participants); err != nil {
		return MatchRecord{}, fmt.Errorf("decode participants: %w", err)
	}
	if lastMove.Valid && strings.TrimSpace(lastMove.String) != "" {
		var mv core.MoveRecord
		if err := json.Unmarshal([]byte(lastMove.String), &mv); err != nil {
			return MatchRecord{}, fmt.Errorf("decode last move: %w", err)
		}
		rec.LastMove = &mv
	}

	rec.Timers = core.Timers{
		White: time.Duration(whiteMillis) * time.Millisecond,
		Black: time.Duration(blackMillis) * time.Millisecond,
	}
	if endedAt.Valid {
		t := endedAt.Time
		rec.EndedAt = &t
	}

	return rec, nil
}
