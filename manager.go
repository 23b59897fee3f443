package transit

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"buswidget.dev/transit/downloader"
	"buswidget.dev/transit/model"
	"buswidget.dev/transit/parse"
	"buswidget.dev/transit/storage"
	"buswidget.dev/transit/timedcache"
)

const (
	DefaultStaticTTL       = 30 * time.Minute
	DefaultStaticTimeout   = 60 * time.Second
	DefaultStaticMaxSize   = 800 << 20 // 800 MB
	DefaultRealtimeTTL     = 30 * time.Second
	DefaultRealtimeTimeout = 15 * time.Second
	DefaultRealtimeMaxSize = 1 << 20 // 1 MB

	snapshotCacheMaxEntries = 4
)

// Manager loads static feeds into snapshots and realtime feeds into
// trip updates, caching both.
type Manager struct {
	StaticTTL        time.Duration
	StaticTimeout    time.Duration
	StaticMaxSize    int
	RealtimeTTL      time.Duration
	RealtimeTimeout  time.Duration
	RealtimeMaxSize  int
	ProviderPriority map[string]int
	Downloader       downloader.Downloader
	Logger           *zap.Logger
	TimeNow          func() time.Time

	archive   storage.Archive
	snapshots *timedcache.Cache[string, *model.Snapshot]
}

// NewManager creates a Manager on top of the given feed archive. The
// archive retains the last good zip per URL, so a fresh process can
// serve a snapshot even when the upstream is down.
func NewManager(archive storage.Archive) *Manager {
	m := &Manager{
		StaticTTL:       DefaultStaticTTL,
		StaticTimeout:   DefaultStaticTimeout,
		StaticMaxSize:   DefaultStaticMaxSize,
		RealtimeTTL:     DefaultRealtimeTTL,
		RealtimeTimeout: DefaultRealtimeTimeout,
		RealtimeMaxSize: DefaultRealtimeMaxSize,
		Downloader:      downloader.NewMemoryDownloader(),
		Logger:          zap.NewNop(),
		TimeNow:         time.Now,

		archive:   archive,
		snapshots: timedcache.New[string, *model.Snapshot](snapshotCacheMaxEntries),
	}
	m.snapshots.TimeNow = func() time.Time { return m.TimeNow() }
	return m
}

// LoadStatic returns the snapshot for a static feed URL, refreshing it
// when the TTL has lapsed. Concurrent callers share one refresh. A
// failed refresh surfaces its error to the caller that triggered it;
// the previous snapshot keeps serving subsequent callers until the
// next attempt. A parse failure never publishes a partial snapshot.
func (m *Manager) LoadStatic(ctx context.Context, staticURL string) (*model.Snapshot, error) {
	snap, err := m.snapshots.Get(ctx, staticURL, m.StaticTTL, func(ctx context.Context) (*model.Snapshot, error) {
		return m.refreshStatic(ctx, staticURL)
	})
	if err != nil {
		m.Logger.Warn("static refresh failed",
			zap.String("url", staticURL), zap.Error(err))
		return nil, err
	}
	return snap, nil
}

func (m *Manager) refreshStatic(ctx context.Context, staticURL string) (*model.Snapshot, error) {
	fetchedAt := m.TimeNow()

	buf, err := m.Downloader.Get(ctx, staticURL, nil, downloader.GetOptions{
		MaxSize: m.StaticMaxSize,
		Timeout: m.StaticTimeout,
	})
	if err != nil {
		archived, archiveErr := m.readArchived(staticURL)
		if archiveErr != nil {
			return nil, fmt.Errorf("downloading static feed: %w", err)
		}
		m.Logger.Warn("static download failed, using archived feed",
			zap.String("url", staticURL),
			zap.Time("retrievedAt", archived.RetrievedAt),
			zap.Error(err))
		buf = archived.Body
		fetchedAt = archived.RetrievedAt
	} else {
		m.writeArchived(staticURL, buf, fetchedAt)
	}

	snap, err := parse.ParseStatic(buf, parse.Options{
		FetchedAt:        fetchedAt,
		ProviderPriority: m.ProviderPriority,
	})
	if err != nil {
		return nil, fmt.Errorf("parsing static feed: %w", err)
	}

	m.Logger.Info("static snapshot refreshed",
		zap.String("url", staticURL),
		zap.Int("stops", len(snap.Stops)),
		zap.Int("routes", len(snap.Routes)),
		zap.Int("trips", len(snap.Trips)))

	return snap, nil
}

func (m *Manager) readArchived(staticURL string) (*storage.ArchivedFeed, error) {
	if m.archive == nil {
		return nil, storage.ErrNotFound
	}
	return m.archive.ReadFeed(staticURL)
}

func (m *Manager) writeArchived(staticURL string, body []byte, retrievedAt time.Time) {
	if m.archive == nil {
		return
	}
	err := m.archive.WriteFeed(storage.ArchivedFeed{
		URL:         staticURL,
		RetrievedAt: retrievedAt,
		Body:        body,
	})
	if err != nil {
		m.Logger.Warn("archiving static feed failed",
			zap.String("url", staticURL), zap.Error(err))
	}
}

// LoadRealtime fetches and decodes every trip update feed. Feed bytes
// are cached briefly so bursts of requests don't hammer the upstream.
// Any feed failing to fetch or decode fails the whole load.
func (m *Manager) LoadRealtime(ctx context.Context, urls []string, windowStart, windowEnd int64) ([]*parse.Realtime, error) {
	feeds := make([]*parse.Realtime, 0, len(urls))
	for _, url := range urls {
		buf, err := m.Downloader.Get(ctx, url, nil, downloader.GetOptions{
			MaxSize:  m.RealtimeMaxSize,
			Timeout:  m.RealtimeTimeout,
			Cache:    true,
			CacheTTL: m.RealtimeTTL,
		})
		if err != nil {
			return nil, fmt.Errorf("downloading trip updates from %s: %w", url, err)
		}

		rt, err := parse.ParseRealtime(buf, url, windowStart, windowEnd)
		if err != nil {
			return nil, fmt.Errorf("decoding trip updates from %s: %w", url, err)
		}
		feeds = append(feeds, rt)
	}
	return feeds, nil
}
