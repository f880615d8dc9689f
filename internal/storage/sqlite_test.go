package storage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSQLite(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSQLiteInsertExists(t *testing.T) {
	ctx := context.Background()
	s := newTestSQLite(t)

	ok, err := s.Exists(ctx, "1")
	require.NoError(t, err)
	assert.False(t, ok)

	rec := Record{ID: "1", Text: "Line 1 delay", ProcessedText: "line 1 delay", Category: "LABEL_1", Timestamp: time.Now()}
	require.NoError(t, s.Insert(ctx, rec))

	ok, err = s.Exists(ctx, "1")
	require.NoError(t, err)
	assert.True(t, ok)

	assert.ErrorIs(t, s.Insert(ctx, rec), ErrDuplicate)
}

func TestSQLiteRecent(t *testing.T) {
	ctx := context.Background()
	s := newTestSQLite(t)
	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	for i, id := range []string{"a", "b", "c"} {
		rec := Record{ID: id, Text: id, ProcessedText: id, Category: "LABEL_0", Timestamp: base.Add(time.Duration(i) * time.Minute)}
		if id == "b" {
			rec.Meta = &RecordMeta{Author: "ttcnotices", Source: "scrape", URL: "https://x.com/ttcnotices/status/b", PostedAt: base}
		}
		require.NoError(t, s.Insert(ctx, rec))
	}

	got, err := s.Recent(ctx, 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "c", got[0].ID)
	assert.Equal(t, "b", got[1].ID)
	assert.True(t, got[1].Timestamp.Equal(base.Add(time.Minute)))
	require.NotNil(t, got[1].Meta)
	assert.Equal(t, "scrape", got[1].Meta.Source)
	assert.True(t, got[1].Meta.PostedAt.Equal(base))
	assert.Nil(t, got[0].Meta)
}
