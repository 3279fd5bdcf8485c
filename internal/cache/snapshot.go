// Package cache keeps parsed comment snapshots in memory (and optionally Redis)
// so repeated trend queries do not reread the CSV.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"CommentTrends/internal/config"
	"CommentTrends/internal/domain"
	"CommentTrends/internal/metrics"
	"CommentTrends/internal/ports"
)

// Loader parses a snapshot file.
type Loader interface {
	LoadSnapshot(ctx context.Context, path string) (domain.Snapshot, error)
}

type entry struct {
	modTime   time.Time
	snapshot  domain.Snapshot
	expiresAt time.Time
	redisKey  string
}

// SnapshotCache is a read-through cache keyed by path and modification time.
// Entries expire after the TTL and are dropped by Invalidate.
type SnapshotCache struct {
	loader     Loader
	ttl        time.Duration
	maxEntries int
	rdb        *redis.Client
	logger     *slog.Logger
	now        func() time.Time

	mu      sync.Mutex
	entries map[string]*entry
}

var _ ports.SnapshotReader = (*SnapshotCache)(nil)

// NewSnapshotCache builds the cache. A nil rdb disables the Redis tier.
func NewSnapshotCache(loader Loader, cfg config.CacheConfig, rdb *redis.Client, logger *slog.Logger) *SnapshotCache {
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &SnapshotCache{
		loader:     loader,
		ttl:        ttl,
		maxEntries: cfg.MaxEntries,
		rdb:        rdb,
		logger:     logger,
		now:        time.Now,
		entries:    map[string]*entry{},
	}
}

// ConnectRedis opens the optional L2 tier. It returns nil when redisURL is
// empty, invalid or unreachable; the cache then runs memory-only.
func ConnectRedis(ctx context.Context, redisURL string, logger *slog.Logger) *redis.Client {
	if redisURL == "" {
		return nil
	}
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		logger.Warn("cache: invalid redis URL, L2 disabled", "error", err)
		return nil
	}
	rdb := redis.NewClient(opts)
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		logger.Warn("cache: redis unreachable, L2 disabled", "error", err)
		_ = rdb.Close()
		return nil
	}
	logger.Info("cache: L2 redis connected", "addr", opts.Addr)
	return rdb
}

// Snapshot returns the parsed snapshot at path, loading it on a miss.
func (c *SnapshotCache) Snapshot(ctx context.Context, path string) (domain.Snapshot, error) {
	info, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		c.Invalidate(path)
		return domain.Snapshot{}, domain.ErrSnapshotNotFound
	}
	if err != nil {
		return domain.Snapshot{}, fmt.Errorf("stat snapshot: %w", err)
	}
	modTime := info.ModTime()
	now := c.now()

	c.mu.Lock()
	if e, ok := c.entries[path]; ok {
		if e.modTime.Equal(modTime) && now.Before(e.expiresAt) {
			c.mu.Unlock()
			metrics.IncrCacheHits()
			return e.snapshot, nil
		}
		delete(c.entries, path)
	}
	c.mu.Unlock()

	key := redisKey(path, modTime)
	if snap, ok := c.fromRedis(ctx, key); ok {
		metrics.IncrCacheHits()
		c.store(path, &entry{modTime: modTime, snapshot: snap, expiresAt: now.Add(c.ttl), redisKey: key})
		return snap, nil
	}

	metrics.IncrCacheMisses()
	snap, err := c.loader.LoadSnapshot(ctx, path)
	if err != nil {
		return domain.Snapshot{}, err
	}
	c.store(path, &entry{modTime: modTime, snapshot: snap, expiresAt: now.Add(c.ttl), redisKey: key})
	c.toRedis(ctx, key, snap)
	return snap, nil
}

// Invalidate drops any cached copy of path. Call it after writing a new snapshot.
func (c *SnapshotCache) Invalidate(path string) {
	c.mu.Lock()
	e, ok := c.entries[path]
	delete(c.entries, path)
	c.mu.Unlock()

	if ok && c.rdb != nil && e.redisKey != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := c.rdb.Del(ctx, e.redisKey).Err(); err != nil {
			c.debug("cache: L2 delete failed", "error", err)
		}
	}
}

// Len reports the number of in-memory entries.
func (c *SnapshotCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *SnapshotCache) store(path string, e *entry) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.maxEntries > 0 && len(c.entries) >= c.maxEntries {
		var oldest string
		for p, existing := range c.entries {
			if oldest == "" || existing.expiresAt.Before(c.entries[oldest].expiresAt) {
				oldest = p
			}
		}
		delete(c.entries, oldest)
	}
	c.entries[path] = e
}

func (c *SnapshotCache) fromRedis(ctx context.Context, key string) (domain.Snapshot, bool) {
	if c.rdb == nil {
		return domain.Snapshot{}, false
	}
	data, err := c.rdb.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.debug("cache: L2 get failed", "error", err)
		}
		return domain.Snapshot{}, false
	}
	var snap domain.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return domain.Snapshot{}, false
	}
	c.debug("cache: L2 hit", "key", key)
	return snap, true
}

func (c *SnapshotCache) toRedis(ctx context.Context, key string, snap domain.Snapshot) {
	if c.rdb == nil {
		return
	}
	data, err := json.Marshal(snap)
	if err != nil {
		return
	}
	if err := c.rdb.Set(ctx, key, data, c.ttl).Err(); err != nil {
		c.debug("cache: L2 set failed", "error", err)
	}
}

func (c *SnapshotCache) debug(msg string, args ...any) {
	if c.logger != nil {
		c.logger.Debug(msg, args...)
	}
}

func redisKey(path string, modTime time.Time) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s|%d", path, modTime.UnixNano())))
	return fmt.Sprintf("commenttrends:snapshot:%x", sum[:12])
}
