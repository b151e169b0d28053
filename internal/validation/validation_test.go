package validation

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ad-tracker/youtube-playlist-sync-go/internal/models"
)

func TestIsValidVideoID(t *testing.T) {
	tests := []struct {
		id   string
		want bool
	}{
		{"dQw4w9WgXcQ", true},
		{"abc-_123XYZ", true},
		{"short", false},
		{"dQw4w9WgXcQx", false},
		{"dQw4w9WgXc!", false},
		{"", false},
	}
	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			assert.Equal(t, tt.want, IsValidVideoID(tt.id))
		})
	}
}

func TestIsValidPlaylistID(t *testing.T) {
	assert.True(t, IsValidPlaylistID("PLrAXtmErZgOeiKm4sgNOknGvNjby9efdf"))
	assert.True(t, IsValidPlaylistID("UUuAXFkgsw1L7xaCfnd5JJOw"))
	assert.False(t, IsValidPlaylistID("XX123"))
	assert.False(t, IsValidPlaylistID("PL"))
}

func TestValidateRevalidateRequest(t *testing.T) {
	tests := []struct {
		name    string
		req     models.RevalidateRequestDTO
		wantErr bool
	}{
		{"post with slug", models.RevalidateRequestDTO{Type: "post", Slug: "budget-2026", Categories: []string{"nation"}}, false},
		{"post without slug", models.RevalidateRequestDTO{Type: "post"}, true},
		{"post with bad slug", models.RevalidateRequestDTO{Type: "post", Slug: "Bad Slug"}, true},
		{"category with path", models.RevalidateRequestDTO{Type: "category", Path: "/news"}, false},
		{"category with categories", models.RevalidateRequestDTO{Type: "category", Categories: []string{"bahasa"}}, false},
		{"category without target", models.RevalidateRequestDTO{Type: "category"}, true},
		{"category relative path", models.RevalidateRequestDTO{Type: "category", Path: "news"}, true},
		{"homepage", models.RevalidateRequestDTO{Type: "homepage"}, false},
		{"blank category", models.RevalidateRequestDTO{Type: "homepage", Categories: []string{" "}}, true},
		{"unknown type", models.RevalidateRequestDTO{Type: "author"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateRevalidateRequest(&tt.req)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
