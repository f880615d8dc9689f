package collector

import (
	"context"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/gocolly/colly/v2"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

const (
	scrapeUserAgent      = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
	scrapeRequestTimeout = 15 * time.Second
	scrapeMaxPages       = 5
	// Nitter 在 title 属性里给出的时间格式
	scrapeDateLayout = "Jan 2, 2006 · 3:04 PM MST"
)

var statusIDRe = regexp.MustCompile(`/status/(\d+)`)

// ScrapeFetcher 降级方案：抓取 Nitter 兼容镜像的账号主页。
// 只支持单个账号，不支持服务端过滤转发。
type ScrapeFetcher struct {
	BaseURL string
	// ExcludeReshares 开启后在本地丢弃转发
	ExcludeReshares bool
	Timeout         time.Duration
	MaxPages        int
}

func (s *ScrapeFetcher) Name() string {
	return "scrape"
}

func (s *ScrapeFetcher) Fetch(ctx context.Context, accounts []string, limit int) ([]Post, error) {
	if len(accounts) == 0 {
		return nil, eris.New("scrape: no account given")
	}
	if limit <= 0 {
		return nil, nil
	}
	account := strings.TrimPrefix(strings.TrimSpace(accounts[0]), "@")
	if len(accounts) > 1 {
		zap.L().Warn("scrape: only the first account is fetched", zap.String("account", account), zap.Int("requested", len(accounts)))
	}

	timeout := s.Timeout
	if timeout <= 0 {
		timeout = scrapeRequestTimeout
	}
	maxPages := s.MaxPages
	if maxPages <= 0 {
		maxPages = scrapeMaxPages
	}

	c := colly.NewCollector(
		colly.UserAgent(scrapeUserAgent),
		colly.MaxDepth(maxPages),
	)
	c.SetRequestTimeout(timeout)

	var (
		posts    []Post
		seen     = make(map[string]bool)
		visitErr error
	)

	// colly 的请求不感知 ctx，每次发请求前检查，取消后不再发出
	c.OnRequest(func(r *colly.Request) {
		if ctx.Err() != nil {
			r.Abort()
		}
	})

	c.OnHTML(".timeline-item", func(e *colly.HTMLElement) {
		if len(posts) >= limit {
			return
		}
		p, ok := parseTimelineItem(e.DOM)
		if !ok || seen[p.ID] {
			return
		}
		if p.Reshare && s.ExcludeReshares {
			return
		}
		seen[p.ID] = true
		p.Source = s.Name()
		posts = append(posts, p)
	})

	// 翻页：只跟随带 cursor 的 "Load more" 链接
	c.OnHTML(".show-more a[href*='cursor=']", func(e *colly.HTMLElement) {
		if len(posts) >= limit || ctx.Err() != nil {
			return
		}
		if err := e.Request.Visit(e.Attr("href")); err != nil {
			zap.L().Debug("scrape: next page", zap.Error(err))
		}
	})

	c.OnError(func(r *colly.Response, err error) {
		visitErr = eris.Wrapf(err, "scrape: %s status %d", r.Request.URL, r.StatusCode)
	})

	start := strings.TrimRight(s.BaseURL, "/") + "/" + url.PathEscape(account)
	if err := c.Visit(start); err != nil && len(posts) == 0 {
		if visitErr != nil {
			return nil, visitErr
		}
		return nil, eris.Wrap(err, "scrape: visit")
	}
	c.Wait()

	if err := ctx.Err(); err != nil {
		return nil, eris.Wrap(err, "scrape: canceled")
	}
	if len(posts) == 0 && visitErr != nil {
		return nil, visitErr
	}
	if len(posts) > limit {
		posts = posts[:limit]
	}
	return posts, nil
}

// parseTimelineItem 从一条 timeline-item 中解析帖子；置顶帖会打乱时间顺序，直接跳过
func parseTimelineItem(sel *goquery.Selection) (Post, bool) {
	if sel.HasClass("show-more") || sel.Find(".pinned").Length() > 0 {
		return Post{}, false
	}

	href, _ := sel.Find("a.tweet-link").First().Attr("href")
	m := statusIDRe.FindStringSubmatch(href)
	if len(m) != 2 {
		return Post{}, false
	}
	id := m[1]

	author := strings.TrimPrefix(strings.TrimSpace(sel.Find(".username").First().Text()), "@")
	text := strings.TrimSpace(sel.Find(".tweet-content").First().Text())

	var createdAt time.Time
	if title, ok := sel.Find(".tweet-date a").First().Attr("title"); ok {
		if t, err := time.Parse(scrapeDateLayout, strings.TrimSpace(title)); err == nil {
			createdAt = t
		}
	}

	return Post{
		ID:        id,
		Text:      text,
		Author:    author,
		CreatedAt: createdAt,
		URL:       tweetURL(author, id),
		Reshare:   sel.Find(".retweet-header").Length() > 0,
	}, true
}
