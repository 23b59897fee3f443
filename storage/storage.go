// Package storage archives the most recently fetched static feed per
// URL, so a restarted process can serve a snapshot before its first
// successful refresh.
package storage

import (
	"errors"
	"time"
)

var ErrNotFound = errors.New("feed not found")

type ArchivedFeed struct {
	URL         string
	RetrievedAt time.Time
	Body        []byte
}

// Archive persists one feed body per URL; a write replaces the
// previous body for that URL.
type Archive interface {
	WriteFeed(feed ArchivedFeed) error

	// ReadFeed returns the archived feed for a URL, or ErrNotFound.
	ReadFeed(url string) (*ArchivedFeed, error)
}
