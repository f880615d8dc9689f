package storage

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestMetaMapRoundTrip(t *testing.T) {
	assert.Nil(t, metaToMap(nil))
	assert.Nil(t, metaFromMap(nil))

	posted := time.Date(2024, 5, 2, 8, 30, 0, 0, time.UTC)
	in := &RecordMeta{Author: "TTChelps", Source: "search", URL: "https://x.com/TTChelps/status/1", PostedAt: posted}
	m := metaToMap(in)
	assert.Equal(t, "2024-05-02T08:30:00Z", m["posted_at"])

	out := metaFromMap(m)
	assert.Equal(t, in.Author, out.Author)
	assert.Equal(t, in.Source, out.Source)
	assert.Equal(t, in.URL, out.URL)
	assert.True(t, out.PostedAt.Equal(posted))
}

func TestMetaToMapOmitsZeroPostedAt(t *testing.T) {
	m := metaToMap(&RecordMeta{Source: "scrape"})
	_, ok := m["posted_at"]
	assert.False(t, ok)
}
