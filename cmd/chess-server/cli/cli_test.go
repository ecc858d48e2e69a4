package cli

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"
	"time"

	"chessroom/internal/server/rules"
	"chessroom/internal/server/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitQueryDelete(t *testing.T) {
	path := filepath.Join(t.TempDir(), "matches.db")
	var out bytes.Buffer

	require.NoError(t, Init(&out, path))
	assert.Contains(t, out.String(), "Database initialized")

	store, err := storage.NewSQLiteStore(path, false)
	require.NoError(t, err)
	now := time.Now().UTC()
	for _, rec := range []storage.MatchRecord{
		{MatchID: "done", Status: "resignation", Winner: "b", Participants: []string{"0123456789abcdef", "fedcba9876543210"}},
		{MatchID: "open", Status: "waiting", Participants: []string{"0123456789abcdef"}},
	} {
		rec.FEN = rules.StartingFEN
		rec.CreatedAt, rec.UpdatedAt = now, now
		require.NoError(t, store.Create(context.Background(), rec))
	}
	require.NoError(t, store.Close())

	out.Reset()
	require.NoError(t, Query(&out, path, QueryFilter{}))
	assert.Contains(t, out.String(), "done")
	assert.Contains(t, out.String(), "open")
	assert.Contains(t, out.String(), "01234567,fedcba98")
	assert.Contains(t, out.String(), "Found 2 match(es)")

	out.Reset()
	require.NoError(t, Query(&out, path, QueryFilter{Status: "resignation"}))
	assert.Contains(t, out.String(), "Found 1 match(es)")
	assert.NotContains(t, out.String(), "open")

	out.Reset()
	require.NoError(t, Query(&out, path, QueryFilter{Participant: "nobody"}))
	assert.Contains(t, out.String(), "No matches found")

	out.Reset()
	require.NoError(t, Delete(&out, path))
	assert.Contains(t, out.String(), "Database deleted")
	assert.NoFileExists(t, path)
}

func TestMissingDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "absent.db")
	var out bytes.Buffer

	assert.Error(t, Query(&out, path, QueryFilter{}))
	assert.Error(t, Delete(&out, path))
	assert.NoFileExists(t, path)
}
