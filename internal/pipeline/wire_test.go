package pipeline

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/LJTian/TransitAlerts/internal/collector"
	"github.com/LJTian/TransitAlerts/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromConfigSQLite(t *testing.T) {
	cfg := &config.Config{
		Fetch: config.FetchConfig{
			SearchBaseURL:   "http://127.0.0.1:1",
			ScrapeBaseURL:   "http://127.0.0.1:1",
			Accounts:        []string{"ttcnotices"},
			FallbackAccount: "ttcnotices",
			Limit:           5,
		},
		Classifier: config.ClassifierConfig{Provider: "http", BaseURL: "http://127.0.0.1:1", Model: "m"},
		Store:      config.StoreConfig{Driver: "sqlite", SQLitePath: filepath.Join(t.TempDir(), "t.db")},
	}

	p, store, closeAll, err := FromConfig(context.Background(), cfg)
	require.NoError(t, err)
	defer func() { assert.NoError(t, closeAll()) }()

	assert.NotNil(t, store)
	assert.Equal(t, 5, p.limit)
	fb, ok := p.fetcher.(*collector.FallbackFetcher)
	require.True(t, ok)
	assert.Equal(t, "ttcnotices", fb.FallbackAccount)
}

func TestFromConfigUnknownProvider(t *testing.T) {
	cfg := &config.Config{Classifier: config.ClassifierConfig{Provider: "gpt"}}
	_, _, _, err := FromConfig(context.Background(), cfg)
	assert.ErrorContains(t, err, "unknown provider")
}
