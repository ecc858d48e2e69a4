package storage

// Schema defines the SQLite database structure
const Schema = `
CREATE TABLE IF NOT EXISTS matches (
	match_id TEXT PRIMARY KEY,
	fen TEXT NOT NULL,
	pgn TEXT NOT NULL DEFAULT '',
	moves TEXT NOT NULL DEFAULT '[]',
	last_move TEXT,
	participants TEXT NOT NULL DEFAULT '[]',
	status TEXT NOT NULL DEFAULT 'waiting',
	winner TEXT NOT NULL DEFAULT '' CHECK(winner IN ('', 'w', 'b')),
	detail TEXT NOT NULL DEFAULT '',
	white_ms INTEGER NOT NULL,
	black_ms INTEGER NOT NULL,
	created_at DATETIME NOT NULL,
	updated_at DATETIME NOT NULL,
	ended_at DATETIME
);

CREATE INDEX IF NOT EXISTS idx_matches_status ON matches(status);
CREATE INDEX IF NOT EXISTS idx_matches_updated ON matches(updated_at DESC);
`
