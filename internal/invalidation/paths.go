// Package invalidation propagates content changes to every caching tier:
// the in-process view cache, the CDN, and the frontend's static pages.
package invalidation

import (
	"slices"
	"strings"

	"github.com/ad-tracker/youtube-playlist-sync-go/internal/cache"
	"github.com/ad-tracker/youtube-playlist-sync-go/internal/config"
)

// ChangeType names what kind of content changed.
type ChangeType string

// ChangeType values. The first three mirror the revalidation endpoint's types.
const (
	ChangePost     ChangeType = "post"
	ChangeCategory ChangeType = "category"
	ChangeHomepage ChangeType = "homepage"
	ChangePlaylist ChangeType = "playlist"
)

const videosSection = "videos"

// PlaylistRef identifies a playlist page on the site.
type PlaylistRef struct {
	ID   string
	Slug string
}

// Change describes mutated content.
//
//nolint:govet // fieldalignment: Accept minor memory overhead for better readability
type Change struct {
	Type       ChangeType
	Slug       string   // post slug
	Path       string   // explicit path for category changes
	Categories []string // raw category identifiers
	Playlists  []PlaylistRef
	VideoIDs   []string
}

// Target is one call to the revalidation endpoint.
type Target struct {
	Type       string   `json:"type"`
	Slug       string   `json:"slug,omitempty"`
	Path       string   `json:"path,omitempty"`
	Categories []string `json:"categories,omitempty"`
}

// Plan is everything a change invalidates.
type Plan struct {
	Paths     []string
	URLs      []string
	Tags      []string
	CacheKeys []string
	Targets   []Target
}

// Router derives paths, tags and cache keys from a Change using the
// category→section table and the homepage allow-list.
type Router struct {
	baseURL            string
	categoryMap        map[string]string
	homepageCategories map[string]bool
}

// NewRouter builds a Router from configuration.
func NewRouter(baseURL string, cfg config.InvalidationConfig) *Router {
	r := &Router{
		baseURL:            strings.TrimRight(baseURL, "/"),
		categoryMap:        make(map[string]string, len(cfg.CategoryMap)),
		homepageCategories: make(map[string]bool, len(cfg.HomepageCategories)),
	}
	for k, v := range cfg.CategoryMap {
		r.categoryMap[strings.ToLower(k)] = v
	}
	for _, c := range cfg.HomepageCategories {
		r.homepageCategories[strings.ToLower(c)] = true
	}
	return r
}

// Section maps a raw category to its frontend section. Unmapped categories
// are used as-is.
func (r *Router) Section(category string) string {
	category = strings.ToLower(strings.TrimSpace(category))
	if s, ok := r.categoryMap[category]; ok {
		return s
	}
	return category
}

// TriggersHomepage reports whether any category is on the homepage allow-list.
func (r *Router) TriggersHomepage(categories []string) bool {
	for _, c := range categories {
		if r.homepageCategories[strings.ToLower(strings.TrimSpace(c))] {
			return true
		}
	}
	return false
}

// Plan derives the invalidation plan for change.
func (r *Router) Plan(change Change) Plan {
	b := &planBuilder{router: r}

	switch change.Type {
	case ChangePost:
		sections := r.sections(change.Categories)
		postPath := "/" + change.Slug
		if len(sections) > 0 {
			postPath = "/" + sections[0] + "/" + change.Slug
		}
		b.add(postPath, "post:"+change.Slug, "")
		b.target(Target{Type: string(ChangePost), Slug: change.Slug, Categories: change.Categories})
		for _, s := range sections {
			b.section(s)
		}
		if r.TriggersHomepage(change.Categories) {
			b.homepage()
		}

	case ChangeCategory:
		if change.Path != "" {
			section := strings.Trim(change.Path, "/")
			b.add("/"+section, "section:"+section, cache.SectionKey(section))
			b.target(Target{Type: string(ChangeCategory), Path: "/" + section})
		}
		for _, s := range r.sections(change.Categories) {
			b.section(s)
		}
		if r.TriggersHomepage(change.Categories) {
			b.homepage()
		}

	case ChangeHomepage:
		b.homepage()

	case ChangePlaylist:
		b.section(videosSection)
		b.cacheKey(cache.KeyGallery)
		for _, p := range change.Playlists {
			b.cacheKey(cache.PlaylistKey(p.ID))
			b.tag("playlist:" + p.ID)
			if p.Slug != "" {
				path := "/" + videosSection + "/" + p.Slug
				b.add(path, "", "")
				b.target(Target{Type: string(ChangeCategory), Path: path})
			}
		}
		for _, id := range change.VideoIDs {
			b.tag("video:" + id)
			b.cacheKey(cache.VideoKey(id))
		}
		if r.homepageCategories[videosSection] {
			b.homepage()
		}
	}

	return b.plan
}

func (r *Router) sections(categories []string) []string {
	var out []string
	for _, c := range categories {
		if s := r.Section(c); s != "" && !slices.Contains(out, s) {
			out = append(out, s)
		}
	}
	return out
}

// URLVariants returns the absolute URL of path with and without a trailing
// slash, since the CDN caches them separately.
func (r *Router) URLVariants(path string) []string {
	if path == "/" || path == "" {
		return []string{r.baseURL, r.baseURL + "/"}
	}
	path = "/" + strings.Trim(path, "/")
	return []string{r.baseURL + path, r.baseURL + path + "/"}
}

type planBuilder struct {
	router *Router
	plan   Plan
}

func (b *planBuilder) add(path, tag, key string) {
	if path != "" && !slices.Contains(b.plan.Paths, path) {
		b.plan.Paths = append(b.plan.Paths, path)
		b.plan.URLs = append(b.plan.URLs, b.router.URLVariants(path)...)
	}
	b.tag(tag)
	b.cacheKey(key)
}

func (b *planBuilder) tag(tag string) {
	if tag != "" && !slices.Contains(b.plan.Tags, tag) {
		b.plan.Tags = append(b.plan.Tags, tag)
	}
}

func (b *planBuilder) cacheKey(key string) {
	if key != "" && !slices.Contains(b.plan.CacheKeys, key) {
		b.plan.CacheKeys = append(b.plan.CacheKeys, key)
	}
}

func (b *planBuilder) target(t Target) {
	for _, existing := range b.plan.Targets {
		if existing.Type == t.Type && existing.Slug == t.Slug && existing.Path == t.Path {
			return
		}
	}
	b.plan.Targets = append(b.plan.Targets, t)
}

func (b *planBuilder) section(section string) {
	b.add("/"+section, "section:"+section, cache.SectionKey(section))
	b.target(Target{Type: string(ChangeCategory), Path: "/" + section})
}

func (b *planBuilder) homepage() {
	b.add("/", "homepage", cache.KeyHomepage)
	b.target(Target{Type: string(ChangeHomepage), Path: "/"})
}
