package cache

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ad-tracker/youtube-playlist-sync-go/internal/config"
)

func newTestCache(t *testing.T) *ViewCache {
	t.Helper()
	c, err := New(config.CacheConfig{MaxCost: 1 << 20, NumCounters: 1000, TTL: time.Minute})
	require.NoError(t, err)
	t.Cleanup(c.Close)
	return c
}

func TestViewCache_SetGet(t *testing.T) {
	c := newTestCache(t)

	c.Set(KeyHomepage, "rendered", 1)
	c.Wait()

	got, ok := c.Get(KeyHomepage)
	require.True(t, ok)
	assert.Equal(t, "rendered", got)
}

func TestViewCache_Invalidate(t *testing.T) {
	c := newTestCache(t)

	c.Set(KeyHomepage, 1, 1)
	c.Set(PlaylistKey("PL1"), 2, 1)
	c.Set(PlaylistKey("PL2"), 3, 1)
	c.Set(VideoKey("vid1"), 4, 1)
	c.Wait()

	assert.Equal(t, 1, c.Invalidate(KeyHomepage, "unknown"))
	_, ok := c.Get(KeyHomepage)
	assert.False(t, ok)

	assert.Equal(t, 2, c.Invalidate("videos:"))
	_, ok = c.Get(PlaylistKey("PL1"))
	assert.False(t, ok)
	_, ok = c.Get(VideoKey("vid1"))
	assert.True(t, ok)
}

func TestViewCache_Clear(t *testing.T) {
	c := newTestCache(t)

	c.Set(KeyGallery, "g", 1)
	c.Wait()
	c.Clear()

	_, ok := c.Get(KeyGallery)
	assert.False(t, ok)
	assert.Equal(t, 0, c.Invalidate(KeyGallery))
}

func TestViewCache_IndexFollowsEvictions(t *testing.T) {
	c, err := New(config.CacheConfig{MaxCost: 5, NumCounters: 100})
	require.NoError(t, err)
	t.Cleanup(c.Close)

	for i := 0; i < 50; i++ {
		c.Set(VideoKey(fmt.Sprintf("vid%02d", i)), i, 1)
		c.Wait()
	}

	indexed := c.Len()
	assert.LessOrEqual(t, indexed, 5, "evicted and rejected keys leave the index")

	c.mu.Lock()
	keys := make([]string, 0, len(c.keys))
	for k := range c.keys {
		keys = append(keys, k)
	}
	c.mu.Unlock()
	for _, k := range keys {
		_, ok := c.Get(k)
		assert.True(t, ok, "indexed key %s is cached", k)
	}

	assert.Equal(t, indexed, c.Invalidate("video:"))
	assert.Zero(t, c.Len())
}

func TestViewCache_StaleCallbackKeepsNewerWrite(t *testing.T) {
	c := newTestCache(t)

	c.Set(KeyGallery, "old", 1)
	c.Wait()
	old := entry{key: KeyGallery, gen: c.keys[KeyGallery]}
	c.Set(KeyGallery, "new", 1)
	c.Wait()

	c.forget(old)
	assert.Equal(t, 1, c.Len())
	assert.Equal(t, 1, c.Invalidate(KeyGallery))
}

func TestKeys(t *testing.T) {
	assert.Equal(t, "section:news", SectionKey("news"))
	assert.Equal(t, "videos:PL1", PlaylistKey("PL1"))
	assert.Equal(t, "video:abc", VideoKey("abc"))
}
