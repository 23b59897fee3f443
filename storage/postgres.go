package storage

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
)

type PostgresArchive struct {
	db *sql.DB
}

func NewPostgresArchive(connStr string) (*PostgresArchive, error) {
	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("opening postgres db: %w", err)
	}

	_, err = db.Exec(`
CREATE TABLE IF NOT EXISTS feeds (
    url TEXT PRIMARY KEY,
    retrieved_at BIGINT NOT NULL,
    body BYTEA NOT NULL
);`)
	if err != nil {
		return nil, fmt.Errorf("creating feeds table: %w", err)
	}

	return &PostgresArchive{db: db}, nil
}

func (a *PostgresArchive) WriteFeed(feed ArchivedFeed) error {
	_, err := a.db.Exec(`
INSERT INTO feeds (url, retrieved_at, body) VALUES ($1, $2, $3)
ON CONFLICT (url) DO UPDATE SET retrieved_at = EXCLUDED.retrieved_at, body = EXCLUDED.body`,
		feed.URL, feed.RetrievedAt.Unix(), feed.Body,
	)
	if err != nil {
		return fmt.Errorf("writing feed: %w", err)
	}
	return nil
}

func (a *PostgresArchive) ReadFeed(url string) (*ArchivedFeed, error) {
	feed := &ArchivedFeed{URL: url}
	var retrievedAt int64

	row := a.db.QueryRow(`SELECT retrieved_at, body FROM feeds WHERE url = $1`, url)
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

func (a *PostgresArchive) Close() error {
	return a.db.Close()
}
