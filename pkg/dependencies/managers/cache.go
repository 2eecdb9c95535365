package managers

import (
	"context"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/fulmenhq/pkgscout/pkg/logger"
	"github.com/fulmenhq/pkgscout/pkg/registry"
)

// CacheStats tracks release cache performance
type CacheStats struct {
	Hits   int64
	Misses int64
	Size   int
}

// ReleaseCache maps package name to release metadata for the lifetime of the
// strategy that owns it. Entries are never invalidated. Concurrent misses for
// the same package share one load; failed loads are not cached.
type ReleaseCache struct {
	mu      sync.Mutex
	entries map[string]*registry.PackageInfo
	group   singleflight.Group
	hits    int64
	misses  int64
}

// NewReleaseCache creates an empty cache.
func NewReleaseCache() *ReleaseCache {
	return &ReleaseCache{entries: make(map[string]*registry.PackageInfo)}
}

// Get returns the cached metadata for name, calling load on a miss.
func (c *ReleaseCache) Get(ctx context.Context, name string, load func(context.Context) (*registry.PackageInfo, error)) (*registry.PackageInfo, error) {
	c.mu.Lock()
	if info, ok := c.entries[name]; ok {
		c.hits++
		c.mu.Unlock()
		return info, nil
	}
	c.misses++
	c.mu.Unlock()

	v, err, _ := c.group.Do(name, func() (interface{}, error) {
		c.mu.Lock()
		if info, ok := c.entries[name]; ok {
			c.mu.Unlock()
			return info, nil
		}
		c.mu.Unlock()

		info, err := load(ctx)
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		c.entries[name] = info
		c.mu.Unlock()
		return info, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*registry.PackageInfo), nil
}

// Stats returns a snapshot of cache counters.
func (c *ReleaseCache) Stats() CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return CacheStats{Hits: c.hits, Misses: c.misses, Size: len(c.entries)}
}

func (c *ReleaseCache) logStats(manager, project string) {
	st := c.Stats()
	logger.Debug("Release cache",
		logger.String("manager", manager),
		logger.String("project", project),
		logger.Int("hits", int(st.Hits)),
		logger.Int("misses", int(st.Misses)),
		logger.Int("size", st.Size))
}
