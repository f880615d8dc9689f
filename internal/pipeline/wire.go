package pipeline

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/LJTian/TransitAlerts/internal/classifier"
	"github.com/LJTian/TransitAlerts/internal/collector"
	"github.com/LJTian/TransitAlerts/internal/config"
	"github.com/LJTian/TransitAlerts/internal/storage"
)

// FromConfig 按配置装配采集器、分类器与存储。返回的 close 释放存储连接与本地模型
func FromConfig(ctx context.Context, cfg *config.Config) (*Pipeline, storage.PostStore, func() error, error) {
	timeout := time.Duration(cfg.Fetch.TimeoutSecs) * time.Second

	fetcher := &collector.FallbackFetcher{
		Primary: collector.NewSearchFetcher(cfg.Fetch.SearchBaseURL, cfg.Fetch.BearerToken, timeout),
		Fallback: &collector.ScrapeFetcher{
			BaseURL:         cfg.Fetch.ScrapeBaseURL,
			ExcludeReshares: cfg.Fetch.FallbackExcludeReshares,
			Timeout:         timeout,
		},
		FallbackAccount: cfg.Fetch.FallbackAccount,
	}

	cls, err := classifier.New(cfg.Classifier)
	if err != nil {
		return nil, nil, nil, err
	}

	store, err := storage.Open(ctx, cfg.Store)
	if err != nil {
		closeClassifier(cls)
		return nil, nil, nil, err
	}

	closeAll := func() error {
		return errors.Join(store.Close(), closeClassifier(cls))
	}
	p := New(fetcher, cls, store, cfg.Fetch.Accounts, cfg.Fetch.Limit).WithEmptyLabel(cfg.Classifier.EmptyLabel)
	return p, store, closeAll, nil
}

func closeClassifier(c classifier.Classifier) error {
	if closer, ok := c.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}
