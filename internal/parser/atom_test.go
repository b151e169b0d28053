package parser

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const feedHeader = `<?xml version="1.0" encoding="UTF-8"?>
<feed xmlns:yt="http://www.youtube.com/xml/schemas/2015" xmlns:at="http://purl.org/atompub/tombstones/1.0" xmlns="http://www.w3.org/2005/Atom">`

func TestParseNotification(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		rawXML      string
		wantVideos  []string
		wantDeleted []string
		wantErr     bool
	}{
		{
			name: "single entry",
			rawXML: feedHeader + `
  <entry>
    <yt:videoId>dQw4w9WgXcQ</yt:videoId>
    <yt:channelId>UCuAXFkgsw1L7xaCfnd5JJOw</yt:channelId>
    <title>Never Gonna Give You Up</title>
    <link rel="alternate" href="https://www.youtube.com/watch?v=dQw4w9WgXcQ"/>
    <published>2009-10-25T06:57:33+00:00</published>
    <updated>2022-03-15T12:00:00+00:00</updated>
  </entry>
</feed>`,
			wantVideos: []string{"dQw4w9WgXcQ"},
		},
		{
			name: "multiple entries are de-duplicated in order",
			rawXML: feedHeader + `
  <entry><yt:videoId>B</yt:videoId><title>b</title></entry>
  <entry><yt:videoId>A</yt:videoId><title>a</title></entry>
  <entry><yt:videoId>B</yt:videoId><title>b again</title></entry>
</feed>`,
			wantVideos: []string{"B", "A"},
		},
		{
			name: "deleted entries",
			rawXML: feedHeader + `
  <at:deleted-entry ref="yt:video:gone1" when="2025-01-15T10:00:00+00:00"/>
  <at:deleted-entry ref="yt:video:gone1" when="2025-01-15T10:00:01+00:00"/>
  <at:deleted-entry ref="yt:video:gone2" when="2025-01-15T10:00:02+00:00"/>
</feed>`,
			wantDeleted: []string{"gone1", "gone2"},
		},
		{
			name: "entry without video id is skipped",
			rawXML: feedHeader + `
  <entry><title>no id</title></entry>
  <entry><yt:videoId>  spaced  </yt:videoId><title>ok</title></entry>
</feed>`,
			wantVideos: []string{"spaced"},
		},
		{
			name:   "empty feed",
			rawXML: feedHeader + `</feed>`,
		},
		{
			name:    "malformed xml",
			rawXML:  `<feed><entry>`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := ParseNotification([]byte(tt.rawXML))
			if tt.wantErr {
				require.Error(t, err)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.wantVideos, got.VideoIDs)
			assert.Equal(t, tt.wantDeleted, got.DeletedVideoIDs)
			assert.Equal(t, len(tt.wantVideos) == 0 && len(tt.wantDeleted) == 0, got.Empty())
		})
	}
}

func TestParseNotification_EntryFields(t *testing.T) {
	got, err := ParseNotification([]byte(feedHeader + `
  <entry>
    <yt:videoId>test123</yt:videoId>
    <yt:channelId>UCchannel123</yt:channelId>
    <title>Test Video</title>
    <published>2025-01-15T10:00:00+00:00</published>
    <updated>2025-01-15T11:00:00+00:00</updated>
  </entry>
</feed>`))
	require.NoError(t, err)
	require.Len(t, got.Entries, 1)

	e := got.Entries[0]
	assert.Equal(t, "UCchannel123", e.ChannelID)
	assert.Equal(t, "Test Video", e.Title)
	assert.Equal(t, "https://www.youtube.com/watch?v=test123", e.VideoURL)
	assert.True(t, mustParseTime("2025-01-15T10:00:00+00:00").Equal(e.PublishedAt))
	assert.True(t, mustParseTime("2025-01-15T11:00:00+00:00").Equal(e.UpdatedAt))
}

func TestParseNotification_WrongRootElement(t *testing.T) {
	_, err := ParseNotification([]byte(`<?xml version="1.0"?><rss><channel/></rss>`))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotAFeed)
}

func mustParseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		panic(err)
	}
	return t
}
