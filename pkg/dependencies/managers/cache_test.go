package managers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fulmenhq/pkgscout/pkg/logger"
	"github.com/fulmenhq/pkgscout/pkg/registry"
)

func TestReleaseCache_LoadsOnce(t *testing.T) {
	c := NewReleaseCache()
	var loads int32
	load := func(context.Context) (*registry.PackageInfo, error) {
		atomic.AddInt32(&loads, 1)
		return &registry.PackageInfo{Time: map[string]string{"1.0.0": "2020-01-01T00:00:00Z"}}, nil
	}

	for i := 0; i < 3; i++ {
		info, err := c.Get(context.Background(), "left-pad", load)
		require.NoError(t, err)
		assert.Contains(t, info.Time, "1.0.0")
	}
	assert.Equal(t, int32(1), loads)
	assert.Equal(t, CacheStats{Hits: 2, Misses: 1, Size: 1}, c.Stats())
}

func TestReleaseCache_FailuresAreNotCached(t *testing.T) {
	c := NewReleaseCache()
	_, err := c.Get(context.Background(), "flaky", func(context.Context) (*registry.PackageInfo, error) {
		return nil, errors.New("registry unavailable")
	})
	require.Error(t, err)

	info, err := c.Get(context.Background(), "flaky", func(context.Context) (*registry.PackageInfo, error) {
		return &registry.PackageInfo{}, nil
	})
	require.NoError(t, err)
	assert.NotNil(t, info)
	assert.Equal(t, 1, c.Stats().Size)
}

func TestReleaseCache_ConcurrentMisses(t *testing.T) {
	c := NewReleaseCache()
	var loads int32
	release := make(chan struct{})
	load := func(context.Context) (*registry.PackageInfo, error) {
		atomic.AddInt32(&loads, 1)
		<-release
		return &registry.PackageInfo{}, nil
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := c.Get(context.Background(), "react", load)
			assert.NoError(t, err)
		}()
	}
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), atomic.LoadInt32(&loads))
	assert.Equal(t, 1, c.Stats().Size)

	_, err := c.Get(context.Background(), "react", load)
	require.NoError(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&loads))
}

func TestReleaseCache_LogStats(t *testing.T) {
	require.NoError(t, logger.Initialize(logger.Config{Level: logger.DebugLevel, JSON: true}))
	defer func() { _ = logger.Initialize(logger.Config{Level: logger.InfoLevel}) }()
	var buf bytes.Buffer
	logger.SetOutput(&buf)

	c := NewReleaseCache()
	load := func(context.Context) (*registry.PackageInfo, error) {
		return &registry.PackageInfo{Time: map[string]string{"18.0.0": "2022-03-29T00:00:00Z"}}, nil
	}
	for i := 0; i < 3; i++ {
		_, err := c.Get(context.Background(), "react", load)
		require.NoError(t, err)
	}
	c.logStats("npm", "app")

	var entry struct {
		Message string         `json:"message"`
		Fields  map[string]any `json:"fields"`
	}
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry))
	assert.Equal(t, "Release cache", entry.Message)
	assert.Equal(t, "npm", entry.Fields["manager"])
	assert.Equal(t, "app", entry.Fields["project"])
	assert.EqualValues(t, 2, entry.Fields["hits"])
	assert.EqualValues(t, 1, entry.Fields["misses"])
	assert.EqualValues(t, 1, entry.Fields["size"])
}
