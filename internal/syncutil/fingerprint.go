package syncutil

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"

	"github.com/ad-tracker/youtube-playlist-sync-go/internal/models"
)

// Fingerprint hashes the ordered (videoID, position) pairs of a fetched page.
// Titles are excluded so snapshot edits do not force a reconcile.
func Fingerprint(items []models.RemoteItem) string {
	h := sha256.New()
	for _, item := range items {
		h.Write([]byte(item.VideoID))
		h.Write([]byte{0})
		h.Write([]byte(strconv.Itoa(item.Position)))
		h.Write([]byte{'\n'})
	}
	return hex.EncodeToString(h.Sum(nil))
}
