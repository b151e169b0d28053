// Package parser decodes push notification feeds.
package parser

import (
	"encoding/xml"
	"errors"
	"fmt"
	"strings"
	"time"
)

// videoRefPrefix prefixes the ref attribute of a deleted-entry.
const videoRefPrefix = "yt:video:"

// ErrNotAFeed is returned when the body is not an Atom feed document.
var ErrNotAFeed = errors.New("body is not an atom feed")

// AtomFeed is a push notification body. One delivery may carry several
// entries and tombstones.
type AtomFeed struct {
	XMLName xml.Name       `xml:"http://www.w3.org/2005/Atom feed"`
	Entries []AtomEntry    `xml:"http://www.w3.org/2005/Atom entry"`
	Deleted []DeletedEntry `xml:"http://purl.org/atompub/tombstones/1.0 deleted-entry"`
}

// AtomEntry is one published or updated video.
type AtomEntry struct {
	VideoID   string    `xml:"http://www.youtube.com/xml/schemas/2015 videoId"`
	ChannelID string    `xml:"http://www.youtube.com/xml/schemas/2015 channelId"`
	Title     string    `xml:"http://www.w3.org/2005/Atom title"`
	Link      AtomLink  `xml:"http://www.w3.org/2005/Atom link"`
	Published time.Time `xml:"http://www.w3.org/2005/Atom published"`
	Updated   time.Time `xml:"http://www.w3.org/2005/Atom updated"`
}

// AtomLink is an entry's alternate link.
type AtomLink struct {
	Rel  string `xml:"rel,attr"`
	Href string `xml:"href,attr"`
}

// DeletedEntry is a tombstone for a removed video.
type DeletedEntry struct {
	Ref  string    `xml:"ref,attr"`
	When time.Time `xml:"when,attr"`
}

// VideoData is one parsed entry.
type VideoData struct {
	VideoID     string
	ChannelID   string
	Title       string
	VideoURL    string
	PublishedAt time.Time
	UpdatedAt   time.Time
}

// Notification is a parsed delivery. VideoIDs and DeletedVideoIDs are
// de-duplicated in document order.
type Notification struct {
	Entries         []VideoData
	VideoIDs        []string
	DeletedVideoIDs []string
}

// Empty reports whether the notification names no videos.
func (n *Notification) Empty() bool {
	return len(n.VideoIDs) == 0 && len(n.DeletedVideoIDs) == 0
}

// ParseNotification decodes a push notification body. Entries without a
// video ID are skipped; a feed with no usable entries yields an empty
// Notification rather than an error.
func ParseNotification(raw []byte) (*Notification, error) {
	var feed AtomFeed
	if err := xml.Unmarshal(raw, &feed); err != nil {
		var unexpected xml.UnmarshalError
		if errors.As(err, &unexpected) {
			return nil, fmt.Errorf("%w: %v", ErrNotAFeed, err)
		}
		return nil, fmt.Errorf("unmarshal atom feed: %w", err)
	}

	n := &Notification{}
	seen := make(map[string]bool)

	for _, e := range feed.Entries {
		id := strings.TrimSpace(e.VideoID)
		if id == "" {
			continue
		}
		videoURL := e.Link.Href
		if videoURL == "" {
			videoURL = "https://www.youtube.com/watch?v=" + id
		}
		n.Entries = append(n.Entries, VideoData{
			VideoID:     id,
			ChannelID:   strings.TrimSpace(e.ChannelID),
			Title:       strings.TrimSpace(e.Title),
			VideoURL:    videoURL,
			PublishedAt: e.Published,
			UpdatedAt:   e.Updated,
		})
		if !seen[id] {
			seen[id] = true
			n.VideoIDs = append(n.VideoIDs, id)
		}
	}

	deleted := make(map[string]bool)
	for _, d := range feed.Deleted {
		id := strings.TrimPrefix(strings.TrimSpace(d.Ref), videoRefPrefix)
		if id == "" || deleted[id] {
			continue
		}
		deleted[id] = true
		n.DeletedVideoIDs = append(n.DeletedVideoIDs, id)
	}

	return n, nil
}
