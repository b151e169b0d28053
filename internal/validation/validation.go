// Package validation checks identifiers, request bodies and push
// notification signatures.
package validation

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/ad-tracker/youtube-playlist-sync-go/internal/models"
)

var (
	videoIDRegex    = regexp.MustCompile(`^[a-zA-Z0-9_-]{11}$`)
	playlistIDRegex = regexp.MustCompile(`^(PL|UU|LL|FL|OL|RD)[a-zA-Z0-9_-]{10,64}$`)
	slugRegex       = regexp.MustCompile(`^[a-z0-9]+(?:-[a-z0-9]+)*$`)
)

// IsValidVideoID reports whether id has the shape of a YouTube video ID.
func IsValidVideoID(id string) bool {
	return videoIDRegex.MatchString(id)
}

// IsValidPlaylistID reports whether id has the shape of a YouTube playlist ID.
func IsValidPlaylistID(id string) bool {
	return playlistIDRegex.MatchString(id)
}

// ValidateRevalidateRequest checks that a revalidation request names what it
// invalidates: a slug for posts, a path or categories for categories.
func ValidateRevalidateRequest(req *models.RevalidateRequestDTO) error {
	switch req.Type {
	case "post":
		if !slugRegex.MatchString(req.Slug) {
			return fmt.Errorf("invalid slug: %q", req.Slug)
		}
	case "category":
		if req.Path == "" && len(req.Categories) == 0 {
			return fmt.Errorf("category revalidation requires path or categories")
		}
		if req.Path != "" && !strings.HasPrefix(req.Path, "/") {
			return fmt.Errorf("path must start with '/': %q", req.Path)
		}
	case "homepage":
	default:
		return fmt.Errorf("unknown revalidation type: %q", req.Type)
	}

	for _, c := range req.Categories {
		if strings.TrimSpace(c) == "" {
			return fmt.Errorf("empty category")
		}
	}
	return nil
}
