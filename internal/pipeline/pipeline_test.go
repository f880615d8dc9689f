package pipeline

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/LJTian/TransitAlerts/internal/classifier"
	"github.com/LJTian/TransitAlerts/internal/collector"
	"github.com/LJTian/TransitAlerts/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeFetcher struct {
	name  string
	posts []collector.Post
	err   error
	calls int
}

func (f *fakeFetcher) Name() string { return f.name }

func (f *fakeFetcher) Fetch(_ context.Context, _ []string, _ int) ([]collector.Post, error) {
	f.calls++
	return f.posts, f.err
}

// countingStore 记录 Insert 调用，可注入错误
type countingStore struct {
	storage.PostStore
	inserts   []storage.Record
	existsErr error
	insertErr error
}

func (s *countingStore) Exists(ctx context.Context, id string) (bool, error) {
	if s.existsErr != nil {
		return false, s.existsErr
	}
	return s.PostStore.Exists(ctx, id)
}

func (s *countingStore) Insert(ctx context.Context, rec storage.Record) error {
	if s.insertErr != nil {
		return s.insertErr
	}
	s.inserts = append(s.inserts, rec)
	return s.PostStore.Insert(ctx, rec)
}

func newStore(t *testing.T) *countingStore {
	t.Helper()
	inner, err := storage.NewSQLiteStore(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { inner.Close() })
	return &countingStore{PostStore: inner}
}

var fixedLabel = classifier.Func(func(_ context.Context, text string) (classifier.Result, error) {
	return classifier.Result{Label: "LABEL_1", Score: 0.9}, nil
})

var fixedNow = time.Date(2024, 7, 1, 10, 0, 0, 0, time.UTC)

func newPipeline(f collector.Fetcher, c classifier.Classifier, s storage.PostStore) *Pipeline {
	p := New(f, c, s, []string{"ttcnotices", "TTChelps"}, 10)
	p.now = func() time.Time { return fixedNow }
	return p
}

func TestRunStoresOnlyNewPosts(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	require.NoError(t, store.PostStore.Insert(ctx, storage.Record{ID: "1", Text: "old", Category: "LABEL_0", Timestamp: fixedNow.Add(-time.Hour)}))

	f := &fakeFetcher{name: "search", posts: []collector.Post{
		{ID: "1", Text: "Line 1: delays", Source: "search"},
		{ID: "2", Text: "Check http://example.com NOW!! #TTC", Author: "TTCnotices", Source: "search"},
	}}
	res, err := newPipeline(f, fixedLabel, store).Run(ctx)
	require.NoError(t, err)

	assert.NotEmpty(t, res.RunID)
	assert.Equal(t, 2, res.Fetched)
	assert.Equal(t, 1, res.Saved)
	assert.Equal(t, 1, res.Skipped)
	assert.Equal(t, 0, res.Failed)

	require.Len(t, store.inserts, 1)
	rec := store.inserts[0]
	assert.Equal(t, "2", rec.ID)
	assert.Equal(t, "Check http://example.com NOW!! #TTC", rec.Text)
	assert.Equal(t, "check now ttc", rec.ProcessedText)
	assert.Equal(t, "LABEL_1", rec.Category)
	assert.True(t, rec.Timestamp.Equal(fixedNow))
	require.NotNil(t, rec.Meta)
	assert.Equal(t, "search", rec.Meta.Source)
}

func TestRunNothingFetched(t *testing.T) {
	store := newStore(t)
	f := &fakeFetcher{name: "search", err: collector.ErrFetchExhausted}

	res, err := newPipeline(f, fixedLabel, store).Run(context.Background())
	require.NoError(t, err)
	assert.Zero(t, res.Fetched)
	assert.Zero(t, res.Saved)
	assert.Empty(t, store.inserts)
}

func TestRunFetchErrorReturned(t *testing.T) {
	f := &fakeFetcher{name: "search", err: errors.New("boom")}
	_, err := newPipeline(f, fixedLabel, newStore(t)).Run(context.Background())
	assert.ErrorContains(t, err, "boom")
}

func TestRunIsIdempotent(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	f := &fakeFetcher{name: "search", posts: []collector.Post{
		{ID: "10", Text: "a"}, {ID: "11", Text: "b"}, {ID: "11", Text: "b again"},
	}}
	p := newPipeline(f, fixedLabel, store)

	first, err := p.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, first.Fetched)
	assert.Equal(t, 2, first.Saved)

	second, err := p.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, second.Saved)
	assert.Equal(t, 2, second.Skipped)
	assert.NotEqual(t, first.RunID, second.RunID)

	recent, err := store.Recent(ctx, 100)
	require.NoError(t, err)
	assert.Len(t, recent, 2)
}

func TestRunClassifierFailureIsolated(t *testing.T) {
	store := newStore(t)
	f := &fakeFetcher{name: "search", posts: []collector.Post{
		{ID: "1", Text: "bad"}, {ID: "2", Text: "good"},
	}}
	c := classifier.Func(func(_ context.Context, text string) (classifier.Result, error) {
		if text == "bad" {
			return classifier.Result{}, classifier.ErrClassification
		}
		return classifier.Result{Label: "LABEL_0", Score: 0.7}, nil
	})

	res, err := newPipeline(f, c, store).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Failed)
	assert.Equal(t, 1, res.Saved)
	require.Len(t, store.inserts, 1)
	assert.Equal(t, "2", store.inserts[0].ID)
}

func TestRunStoreFailureAborts(t *testing.T) {
	store := newStore(t)
	store.insertErr = errors.New("disk full")
	f := &fakeFetcher{name: "search", posts: []collector.Post{{ID: "1", Text: "a"}, {ID: "2", Text: "b"}}}

	res, err := newPipeline(f, fixedLabel, store).Run(context.Background())
	require.Error(t, err)
	assert.ErrorContains(t, err, "disk full")
	assert.Zero(t, res.Saved)
}

func TestRunExistsFailureAborts(t *testing.T) {
	store := newStore(t)
	store.existsErr = errors.New("connection reset")
	f := &fakeFetcher{name: "search", posts: []collector.Post{{ID: "1", Text: "a"}}}

	_, err := newPipeline(f, fixedLabel, store).Run(context.Background())
	assert.ErrorContains(t, err, "connection reset")
	assert.Empty(t, store.inserts)
}

func TestRunDuplicateInsertCountsAsSkipped(t *testing.T) {
	store := newStore(t)
	store.insertErr = storage.ErrDuplicate
	f := &fakeFetcher{name: "search", posts: []collector.Post{{ID: "1", Text: "a"}}}

	res, err := newPipeline(f, fixedLabel, store).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Skipped)
	assert.Zero(t, res.Saved)
}

func TestRunStoresFallbackPosts(t *testing.T) {
	store := newStore(t)
	primary := &fakeFetcher{name: "search", err: collector.ErrFetchUnavailable}
	fallback := &fakeFetcher{name: "scrape", posts: []collector.Post{
		{ID: "77", Text: "RT shuttle buses running", Author: "ttcnotices", Reshare: true, Source: "scrape"},
	}}
	f := &collector.FallbackFetcher{Primary: primary, Fallback: fallback, FallbackAccount: "ttcnotices"}

	res, err := newPipeline(f, fixedLabel, store).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Saved)
	assert.Equal(t, 1, fallback.calls)
	require.Len(t, store.inserts, 1)
	assert.Equal(t, "scrape", store.inserts[0].Meta.Source)
}

func TestRunStopsOnCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	store := newStore(t)
	f := &fakeFetcher{name: "search", posts: []collector.Post{{ID: "1", Text: "a"}}}

	_, err := newPipeline(f, fixedLabel, store).Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, store.inserts)
}

func TestRunEmptyTextSkipsClassifier(t *testing.T) {
	store := newStore(t)
	f := &fakeFetcher{name: "search", posts: []collector.Post{
		{ID: "5", Text: "https://t.co/abc123 👍"},
		{ID: "6", Text: "Line 4 delay"},
	}}
	var seen []string
	c := classifier.Func(func(_ context.Context, text string) (classifier.Result, error) {
		seen = append(seen, text)
		if text == "" {
			return classifier.Result{}, classifier.ErrClassification
		}
		return classifier.Result{Label: "LABEL_1", Score: 0.8}, nil
	})

	res, err := newPipeline(f, c, store).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, res.Saved)
	assert.Zero(t, res.Failed)
	assert.Equal(t, []string{"line 4 delay"}, seen)

	require.Len(t, store.inserts, 2)
	assert.Equal(t, "", store.inserts[0].ProcessedText)
	assert.Equal(t, DefaultEmptyLabel, store.inserts[0].Category)
	assert.Equal(t, "LABEL_1", store.inserts[1].Category)
}

func TestWithEmptyLabel(t *testing.T) {
	store := newStore(t)
	f := &fakeFetcher{name: "search", posts: []collector.Post{{ID: "5", Text: "http://x.y"}}}

	p := newPipeline(f, fixedLabel, store).WithEmptyLabel("LABEL_0").WithEmptyLabel("")
	_, err := p.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, store.inserts, 1)
	assert.Equal(t, "LABEL_0", store.inserts[0].Category)
}
