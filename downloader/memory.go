package downloader

import (
	"context"
	"time"

	"buswidget.dev/transit/timedcache"
)

const memoryCacheMaxEntries = 64

// Caches downloaded files in memory. Concurrent requests for the same
// URL while the cache is cold share a single HTTP fetch.
type MemoryDownloader struct {
	cache *timedcache.Cache[string, []byte]

	TimeNow func() time.Time
}

func NewMemoryDownloader() *MemoryDownloader {
	d := &MemoryDownloader{
		cache:   timedcache.New[string, []byte](memoryCacheMaxEntries),
		TimeNow: time.Now,
	}
	d.cache.TimeNow = func() time.Time { return d.TimeNow() }
	return d
}

func (d *MemoryDownloader) Get(
	ctx context.Context,
	url string,
	headers map[string]string,
	options GetOptions,
) ([]byte, error) {
	if !options.Cache {
		return HTTPGet(ctx, url, headers, options)
	}

	return d.cache.Get(ctx, url, options.CacheTTL, func(ctx context.Context) ([]byte, error) {
		return HTTPGet(ctx, url, headers, options)
	})
}
