package storage

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

type SQLiteArchive struct {
	db *sql.DB
}

// NewSQLiteArchive opens (or creates) an on-disk feed archive. Pass
// ":memory:" for an ephemeral one.
func NewSQLiteArchive(path string) (*SQLiteArchive, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite db: %w", err)
	}

	_, err = db.Exec(`
CREATE TABLE IF NOT EXISTS feeds (
    url TEXT PRIMARY KEY,
    retrieved_at INTEGER NOT NULL,
    body BLOB NOT NULL
);`)
	if err != nil {
		return nil, fmt.Errorf("creating feeds table: %w", err)
	}

	return &SQLiteArchive{db: db}, nil
}

func (a *SQLiteArchive) WriteFeed(feed ArchivedFeed) error {
	_, err := a.db.Exec(`
INSERT INTO feeds (url, retrieved_at, body) VALUES (?, ?, ?)
ON CONFLICT (url) DO UPDATE SET retrieved_at = excluded.retrieved_at, body = excluded.body`,
		feed.URL, feed.RetrievedAt.Unix(), feed.Body,
	)
	if err != nil {
		return fmt.Errorf("writing feed: %w", err)
	}
	return nil
}

func (a *SQLiteArchive) ReadFeed(url string) (*ArchivedFeed, error) {
	feed := &ArchivedFeed{URL: url}
	var retrievedAt int64

	row := a.db.QueryRow(`SELECT retrieved_at, body FROM feeds WHERE url = ?`, url)
	err := row.Scan(&retrievedAt, &feed.Body)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("reading feed: %w", err)
	}

	feed.RetrievedAt = time.Unix(retrievedAt, 0).UTC()
	return feed, nil
}

func (a *SQLiteArchive) Close() error {
	return a.db.Close()
}
