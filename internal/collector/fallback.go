package collector

import (
	"context"

	"go.uber.org/zap"
)

// FallbackFetcher 先走主接口；主接口报错或返回 0 条时才切换到降级抓取。
// 降级抓取只拿 FallbackAccount 一个账号，且可能包含转发。
type FallbackFetcher struct {
	Primary         Fetcher
	Fallback        Fetcher
	FallbackAccount string
}

func (f *FallbackFetcher) Name() string {
	return f.Primary.Name() + "+" + f.Fallback.Name()
}

func (f *FallbackFetcher) Fetch(ctx context.Context, accounts []string, limit int) ([]Post, error) {
	posts, err := f.Primary.Fetch(ctx, accounts, limit)
	if err != nil {
		zap.L().Warn("primary fetch failed", zap.String("fetcher", f.Primary.Name()), zap.Error(err))
	}
	if len(posts) > 0 {
		return truncate(posts, limit), nil
	}

	account := f.FallbackAccount
	if account == "" && len(accounts) > 0 {
		account = accounts[0]
	}
	zap.L().Info("primary fetch got 0 posts, falling back",
		zap.String("fetcher", f.Fallback.Name()),
		zap.String("account", account),
	)

	posts, err = f.Fallback.Fetch(ctx, []string{account}, limit)
	if err != nil {
		zap.L().Warn("fallback fetch failed", zap.String("fetcher", f.Fallback.Name()), zap.Error(err))
	}
	if len(posts) == 0 {
		return nil, ErrFetchExhausted
	}
	return truncate(posts, limit), nil
}

func truncate(posts []Post, limit int) []Post {
	if limit > 0 && len(posts) > limit {
		return posts[:limit]
	}
	return posts
}
