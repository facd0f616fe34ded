package directory

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/persistorai/kpfed/internal/metrics"
	"github.com/persistorai/kpfed/internal/models"
)

const (
	snapshotFileName = "providers_snapshot.json"
	pidFileName      = "refresh.pid"

	defaultMaxAge      = 24 * time.Hour
	defaultMetaTimeout = 10 * time.Second
	// Covers every fetch of one refresh, which may outlive the caller that started it.
	defaultRefreshTimeout = 2 * time.Minute
	metaFetchLimit     = 8
)

// ErrRefreshInProgress is returned by TryRefresh while another refresh runs.
var ErrRefreshInProgress = errors.New("directory refresh already in progress")

// ErrNoSnapshot is returned when no snapshot exists and none could be built.
var ErrNoSnapshot = errors.New("provider directory unavailable")

// State is the refresh state of a Cache.
type State int32

// Cache states.
const (
	StateIdle State = iota
	StateRefreshing
)

// String implements fmt.Stringer.
func (s State) String() string {
	if s == StateRefreshing {
		return "refreshing"
	}

	return "idle"
}

// MetaFetcher retrieves a provider's capability graph.
type MetaFetcher interface {
	MetaKnowledgeGraph(ctx context.Context, provider, baseURL string) (*models.MetaKnowledgeGraph, error)
}

// CacheConfig configures a Cache.
type CacheConfig struct {
	Dir             string
	RegistryFile    string
	MaxAge          time.Duration
	RefreshInterval time.Duration
	MetaTimeout     time.Duration
	RefreshTimeout  time.Duration
	// TrustedProvider and TrustedURL override the registry entry for the trusted provider.
	TrustedProvider string
	TrustedURL      string
}

// Cache holds the current directory snapshot and keeps it fresh. It is safe
// for concurrent use; concurrent refreshes are collapsed into one.
type Cache struct {
	cfg     CacheConfig
	fetcher MetaFetcher
	log     *logrus.Logger
	now     func() time.Time

	group singleflight.Group
	state atomic.Int32

	mu   sync.RWMutex
	snap *Snapshot
}

// NewCache creates a directory cache. The snapshot is loaded lazily.
func NewCache(cfg CacheConfig, fetcher MetaFetcher, log *logrus.Logger) *Cache {
	if cfg.MaxAge <= 0 {
		cfg.MaxAge = defaultMaxAge
	}

	if cfg.MetaTimeout <= 0 {
		cfg.MetaTimeout = defaultMetaTimeout
	}

	if cfg.RefreshTimeout <= 0 {
		cfg.RefreshTimeout = defaultRefreshTimeout
	}

	return &Cache{cfg: cfg, fetcher: fetcher, log: log, now: time.Now}
}

// SnapshotPath returns the on-disk snapshot location.
func (c *Cache) SnapshotPath() string { return filepath.Join(c.cfg.Dir, snapshotFileName) }

// State returns whether a refresh is running.
func (c *Cache) State() State { return State(c.state.Load()) }

// Current returns the in-memory snapshot without refreshing. It may be nil.
func (c *Cache) Current() *Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.snap
}

// Snapshot returns a snapshot no older than MaxAge. A missing or stale
// snapshot is refreshed synchronously by the caller that discovers it. If the
// refresh fails and an older snapshot exists, the older one is returned.
func (c *Cache) Snapshot(ctx context.Context) (*Snapshot, error) {
	snap := c.Current()
	if snap == nil {
		loaded, err := c.Reload()
		if err != nil {
			c.log.WithError(err).Warn("directory.load")
		}

		snap = loaded
	}

	if snap != nil && !snap.Stale(c.now(), c.cfg.MaxAge) {
		return snap, nil
	}

	if snap == nil {
		c.log.Warn("directory.missing: building provider snapshot now")
	} else {
		c.log.WithField("updated_at", snap.UpdatedAt).Info("directory.stale: refreshing provider snapshot")
	}

	fresh, err := c.Refresh(ctx)
	if err != nil {
		if snap != nil {
			c.log.WithError(err).Warn("directory.refresh failed, serving stale snapshot")
			return snap, nil
		}

		return nil, fmt.Errorf("%w: %w", ErrNoSnapshot, err)
	}

	return fresh, nil
}

// Reload reads the snapshot file and adopts it if it is newer than the
// in-memory one. It returns the snapshot in effect afterwards.
func (c *Cache) Reload() (*Snapshot, error) {
	disk, err := readSnapshot(c.SnapshotPath())
	if err != nil {
		return c.Current(), err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if disk != nil && (c.snap == nil || disk.UpdatedAt.After(c.snap.UpdatedAt)) {
		c.snap = disk
	}

	return c.snap, nil
}

// Refresh rebuilds the snapshot. Concurrent callers share one refresh, which
// runs detached from ctx under RefreshTimeout so one caller giving up does not
// spoil the result for the others. Refresh returns early when ctx is done.
func (c *Cache) Refresh(ctx context.Context) (*Snapshot, error) {
	ch := c.group.DoChan("refresh", func() (any, error) {
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.cfg.RefreshTimeout)
		defer cancel()

		return c.refresh(rctx)
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}

		return res.Val.(*Snapshot), nil //nolint:forcetypeassert // refresh always returns *Snapshot
	}
}

// TryRefresh is Refresh that fails fast with ErrRefreshInProgress instead of joining a running refresh.
func (c *Cache) TryRefresh(ctx context.Context) (*Snapshot, error) {
	if c.State() == StateRefreshing {
		return nil, ErrRefreshInProgress
	}

	return c.Refresh(ctx)
}

func (c *Cache) refresh(ctx context.Context) (*Snapshot, error) {
	c.state.Store(int32(StateRefreshing))
	defer c.state.Store(int32(StateIdle))

	start := c.now()

	if err := os.MkdirAll(c.cfg.Dir, 0o750); err != nil {
		metrics.DirectoryRefreshes.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("creating cache dir: %w", err)
	}

	pidPath := filepath.Join(c.cfg.Dir, pidFileName)
	if err := writePIDMarker(pidPath); err != nil {
		c.log.WithError(err).Warn("directory.refresh")
	}
	defer os.Remove(pidPath) //nolint:errcheck // marker may already be gone

	c.log.WithField("pid", os.Getpid()).Info("directory.refresh started")

	prev, err := c.Reload()
	if err != nil {
		c.log.WithError(err).Warn("directory.refresh: ignoring unreadable snapshot")
	}

	urls, err := c.registryURLs(prev)
	if err != nil {
		metrics.DirectoryRefreshes.WithLabelValues("error").Inc()
		return nil, err
	}

	providers := c.fetchAll(ctx, urls, prev)

	// Fetches cut short by the deadline are not a provider answering with nothing.
	if err := ctx.Err(); err != nil {
		metrics.DirectoryRefreshes.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("refreshing provider directory: %w", err)
	}

	snap := &Snapshot{UpdatedAt: c.now().UTC(), Providers: providers}
	if err := writeSnapshot(c.SnapshotPath(), snap); err != nil {
		metrics.DirectoryRefreshes.WithLabelValues("error").Inc()
		return nil, err
	}

	c.mu.Lock()
	c.snap = snap
	c.mu.Unlock()

	metrics.DirectoryRefreshes.WithLabelValues("ok").Inc()
	c.log.WithFields(logrus.Fields{
		"providers": len(providers),
		"duration":  c.now().Sub(start),
	}).Info("directory.refresh finished")

	return snap, nil
}

// registryURLs returns the provider URLs to refresh. An empty registry keeps
// the previous provider list when there is one.
func (c *Cache) registryURLs(prev *Snapshot) (map[string]string, error) {
	urls := map[string]string{}

	if c.cfg.RegistryFile != "" {
		loaded, err := LoadRegistry(c.cfg.RegistryFile)
		if err != nil {
			if prev == nil {
				return nil, err
			}

			c.log.WithError(err).Warn("directory.registry: keeping previous provider list")
		}

		urls = loaded
	}

	if len(urls) == 0 && prev != nil {
		c.log.Warn("directory.registry: no providers registered, keeping previous provider list")

		urls = make(map[string]string, len(prev.Providers))
		for name, info := range prev.Providers {
			urls[name] = info.URL
		}
	}

	if c.cfg.TrustedProvider != "" && c.cfg.TrustedURL != "" {
		if urls == nil {
			urls = map[string]string{}
		}

		urls[c.cfg.TrustedProvider] = c.cfg.TrustedURL
	}

	return urls, nil
}

// fetchAll pulls capability data for every provider, starting from the
// previous snapshot so a provider that fails to answer keeps its old entry.
// Providers no longer registered are dropped.
func (c *Cache) fetchAll(ctx context.Context, urls map[string]string, prev *Snapshot) map[string]ProviderInfo {
	out := make(map[string]ProviderInfo, len(urls))

	for name, url := range urls {
		info := ProviderInfo{URL: url}
		if prev != nil {
			if old, ok := prev.Providers[name]; ok {
				info.Predicates = old.Predicates
				info.Prefixes = old.Prefixes
			}
		}

		out[name] = info
	}

	if prev != nil {
		for name := range prev.Providers {
			if _, ok := urls[name]; !ok {
				c.log.WithField("provider", name).Info("directory.refresh: dropping stale provider")
			}
		}
	}

	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(metaFetchLimit)

	for name, url := range urls {
		g.Go(func() error {
			fctx, cancel := context.WithTimeout(gctx, c.cfg.MetaTimeout)
			defer cancel()

			meta, err := c.fetcher.MetaKnowledgeGraph(fctx, name, url)
			if err != nil {
				c.log.WithError(err).WithField("provider", name).Warn("directory.meta_knowledge_graph")
				return nil
			}

			mu.Lock()
			out[name] = ProviderInfoFromMeta(url, meta)
			mu.Unlock()

			return nil
		})
	}

	_ = g.Wait()

	return out
}

// Run refreshes the snapshot every RefreshInterval and reloads it whenever
// another process replaces the snapshot file. It blocks until ctx is done.
func (c *Cache) Run(ctx context.Context) error {
	if err := os.MkdirAll(c.cfg.Dir, 0o750); err != nil {
		return fmt.Errorf("creating cache dir: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}
	defer watcher.Close() //nolint:errcheck // close error is not actionable

	if err := watcher.Add(c.cfg.Dir); err != nil {
		return fmt.Errorf("watching %s: %w", c.cfg.Dir, err)
	}

	var tick <-chan time.Time
	if c.cfg.RefreshInterval > 0 {
		ticker := time.NewTicker(c.cfg.RefreshInterval)
		defer ticker.Stop()

		tick = ticker.C
	}

	snapshotPath := c.SnapshotPath()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-tick:
			if _, err := c.Refresh(ctx); err != nil {
				c.log.WithError(err).Warn("directory.refresh")
			}
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}

			if filepath.Clean(event.Name) != snapshotPath || (!event.Has(fsnotify.Create) && !event.Has(fsnotify.Write)) {
				continue
			}

			if _, err := c.Reload(); err != nil {
				c.log.WithError(err).Warn("directory.reload")
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}

			c.log.WithError(err).Warn("directory.watch")
		}
	}
}
