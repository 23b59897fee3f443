package storage

import (
	"sync"
)

type MemoryArchive struct {
	mutex sync.Mutex
	feeds map[string]ArchivedFeed
}

func NewMemoryArchive() *MemoryArchive {
	return &MemoryArchive{
		feeds: map[string]ArchivedFeed{},
	}
}

func (a *MemoryArchive) WriteFeed(feed ArchivedFeed) error {
	a.mutex.Lock()
	defer a.mutex.Unlock()

	body := make([]byte, len(feed.Body))
	copy(body, feed.Body)
	feed.Body = body

	a.feeds[feed.URL] = feed
	return nil
}

func (a *MemoryArchive) ReadFeed(url string) (*ArchivedFeed, error) {
	a.mutex.Lock()
	defer a.mutex.Unlock()

	feed, ok := a.feeds[url]
	if !ok {
		return nil, ErrNotFound
	}
	return &feed, nil
}
