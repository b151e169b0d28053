package invalidation

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ad-tracker/youtube-playlist-sync-go/internal/cache"
	"github.com/ad-tracker/youtube-playlist-sync-go/internal/config"
)

func testRouter() *Router {
	return NewRouter("https://example.com/", config.InvalidationConfig{
		CategoryMap:        map[string]string{"nation": "news", "bahasa": "berita"},
		HomepageCategories: []string{"news", "Nation", "videos"},
	})
}

func TestRouter_Section(t *testing.T) {
	r := testRouter()
	assert.Equal(t, "news", r.Section("nation"))
	assert.Equal(t, "berita", r.Section("Bahasa"))
	assert.Equal(t, "sport", r.Section(" sport "))
}

func TestRouter_TriggersHomepage(t *testing.T) {
	r := testRouter()
	assert.True(t, r.TriggersHomepage([]string{"sport", "nation"}))
	assert.False(t, r.TriggersHomepage([]string{"sport", "bahasa"}))
	assert.False(t, r.TriggersHomepage(nil))
}

func TestRouter_URLVariants(t *testing.T) {
	r := testRouter()
	assert.Equal(t, []string{"https://example.com/news", "https://example.com/news/"}, r.URLVariants("/news/"))
	assert.Equal(t, []string{"https://example.com", "https://example.com/"}, r.URLVariants("/"))
}

func TestRouter_PlanPost(t *testing.T) {
	p := testRouter().Plan(Change{Type: ChangePost, Slug: "budget-2026", Categories: []string{"nation", "bahasa"}})

	assert.Equal(t, []string{"/news/budget-2026", "/news", "/berita", "/"}, p.Paths)
	assert.Contains(t, p.URLs, "https://example.com/news/budget-2026/")
	assert.Len(t, p.URLs, 8)
	assert.Equal(t, []string{"post:budget-2026", "section:news", "section:berita", "homepage"}, p.Tags)
	assert.ElementsMatch(t, []string{cache.SectionKey("news"), cache.SectionKey("berita"), cache.KeyHomepage}, p.CacheKeys)
	assert.Equal(t, Target{Type: "post", Slug: "budget-2026", Categories: []string{"nation", "bahasa"}}, p.Targets[0])
	assert.Len(t, p.Targets, 4)
}

func TestRouter_PlanPostWithoutHomepageCategory(t *testing.T) {
	p := testRouter().Plan(Change{Type: ChangePost, Slug: "match", Categories: []string{"sport"}})
	assert.Equal(t, []string{"/sport/match", "/sport"}, p.Paths)
	assert.NotContains(t, p.Tags, "homepage")
}

func TestRouter_PlanCategoryPath(t *testing.T) {
	p := testRouter().Plan(Change{Type: ChangeCategory, Path: "/sport/"})
	assert.Equal(t, []string{"/sport"}, p.Paths)
	assert.Equal(t, []Target{{Type: "category", Path: "/sport"}}, p.Targets)
}

func TestRouter_PlanHomepage(t *testing.T) {
	p := testRouter().Plan(Change{Type: ChangeHomepage})
	assert.Equal(t, []string{"/"}, p.Paths)
	assert.Equal(t, []string{"homepage"}, p.Tags)
	assert.Equal(t, []string{cache.KeyHomepage}, p.CacheKeys)
}

func TestRouter_PlanPlaylist(t *testing.T) {
	p := testRouter().Plan(Change{
		Type:      ChangePlaylist,
		Playlists: []PlaylistRef{{ID: "PL1", Slug: "highlights"}, {ID: "PL2"}},
		VideoIDs:  []string{"v1"},
	})

	assert.Equal(t, []string{"/videos", "/videos/highlights", "/"}, p.Paths)
	assert.Contains(t, p.Tags, "playlist:PL1")
	assert.Contains(t, p.Tags, "playlist:PL2")
	assert.Contains(t, p.Tags, "video:v1")
	assert.Contains(t, p.CacheKeys, cache.KeyGallery)
	assert.Contains(t, p.CacheKeys, cache.PlaylistKey("PL2"))
	assert.Contains(t, p.CacheKeys, cache.VideoKey("v1"))
}

func TestRouter_PlanPlaylistWithoutHomepage(t *testing.T) {
	r := NewRouter("https://example.com", config.InvalidationConfig{})
	p := r.Plan(Change{Type: ChangePlaylist, Playlists: []PlaylistRef{{ID: "PL1"}}})
	assert.Equal(t, []string{"/videos"}, p.Paths)
}
