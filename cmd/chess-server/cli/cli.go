// Package cli implements the database maintenance commands of chess-server.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"chessroom/internal/server/storage"
)

// QueryFilter narrows the match listing
type QueryFilter struct {
	Status      string
	Participant string
	Limit       int
}

// Init creates the match schema at path
func Init(w io.Writer, path string) error {
	store, err := storage.NewSQLiteStore(path, false)
	if err != nil {
		return fmt.Errorf("failed to create store: %w", err)
	}
	defer store.Close()

	if err := store.InitDB(); err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}

	fmt.Fprintf(w, "Database initialized at: %s\n", path)
	return nil
}

// Delete removes the database file at path
func Delete(w io.Writer, path string) error {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("database not found: %s", path)
	}

	store, err := storage.NewSQLiteStore(path, false)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}

	if err := store.DeleteDB(); err != nil {
		return fmt.Errorf("failed to delete database: %w", err)
	}

	fmt.Fprintf(w, "Database deleted: %s\n", path)
	return nil
}

// Query prints stored matches as a table
func Query(w io.Writer, path string, filter QueryFilter) error {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("database not found: %s", path)
	}

	store, err := storage.NewSQLiteStore(path, false)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer store.Close()

	records, err := store.List(context.Background(), storage.ListFilter{
		Status:      filter.Status,
		Participant: filter.Participant,
		Limit:       filter.Limit,
	})
	if err != nil {
		return fmt.Errorf("query failed: %w", err)
	}

	if len(records) == 0 {
		fmt.Fprintln(w, "No matches found")
		return nil
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "Match ID\tStatus\tWinner\tMoves\tParticipants\tUpdated")
	fmt.Fprintln(tw, strings.Repeat("-", 80))

	for _, rec := range records {
		winner := rec.Winner
		if winner == "" {
			winner = "-"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\t%s\n",
			rec.MatchID,
			rec.Status,
			winner,
			len(rec.Moves),
			strings.Join(shortIDs(rec.Participants), ","),
			rec.UpdatedAt.Format("2006-01-02 15:04:05"),
		)
	}
	tw.Flush()

	fmt.Fprintf(w, "\nFound %d match(es)\n", len(records))
	return nil
}

// shortIDs truncates connection uuids for display
func shortIDs(ids []string) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		if len(id) > 8 {
			id = id[:8]
		}
		out[i] = id
	}
	return out
}
