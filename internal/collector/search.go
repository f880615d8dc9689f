package collector

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

const (
	searchRecentPath    = "/2/tweets/search/recent"
	searchMinPageSize   = 10
	searchMaxPageSize   = 100
	searchClientTimeout = 15 * time.Second
	searchUserAgent     = "TransitAlerts/1.0"
)

// SearchFetcher 通过 X API v2 的 recent search 拉取多个账号的最新原创帖子
type SearchFetcher struct {
	token  string
	client *resty.Client
}

func NewSearchFetcher(baseURL, token string, timeout time.Duration) *SearchFetcher {
	if timeout <= 0 {
		timeout = searchClientTimeout
	}
	client := resty.New().
		SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetTimeout(timeout).
		SetHeader("User-Agent", searchUserAgent)
	if token != "" {
		client.SetAuthToken(token)
	}
	return &SearchFetcher{token: token, client: client}
}

func (s *SearchFetcher) Name() string {
	return "search"
}

type searchTweet struct {
	ID               string    `json:"id"`
	Text             string    `json:"text"`
	AuthorID         string    `json:"author_id"`
	CreatedAt        time.Time `json:"created_at"`
	ReferencedTweets []struct {
		Type string `json:"type"`
		ID   string `json:"id"`
	} `json:"referenced_tweets"`
}

type searchUser struct {
	ID       string `json:"id"`
	Username string `json:"username"`
}

type searchResponse struct {
	Data     []searchTweet `json:"data"`
	Includes struct {
		Users []searchUser `json:"users"`
	} `json:"includes"`
	Meta struct {
		ResultCount int    `json:"result_count"`
		NextToken   string `json:"next_token"`
	} `json:"meta"`
}

// BuildQuery 多个账号用 OR 连接，并排除转发
func BuildQuery(accounts []string) string {
	parts := make([]string, 0, len(accounts))
	for _, a := range accounts {
		a = strings.TrimPrefix(strings.TrimSpace(a), "@")
		if a == "" {
			continue
		}
		parts = append(parts, "from:"+a)
	}
	return "(" + strings.Join(parts, " OR ") + ") -is:retweet"
}

func clampPageSize(n int) int {
	if n < searchMinPageSize {
		return searchMinPageSize
	}
	if n > searchMaxPageSize {
		return searchMaxPageSize
	}
	return n
}

func (s *SearchFetcher) Fetch(ctx context.Context, accounts []string, limit int) ([]Post, error) {
	if s.token == "" {
		return nil, eris.Wrap(ErrFetchUnavailable, "search: missing bearer token")
	}
	if len(accounts) == 0 || limit <= 0 {
		return nil, nil
	}

	query := BuildQuery(accounts)
	users := make(map[string]string)
	posts := make([]Post, 0, limit)
	nextToken := ""

	for len(posts) < limit {
		var page searchResponse
		req := s.client.R().
			SetContext(ctx).
			SetQueryParams(map[string]string{
				"query":        query,
				"max_results":  strconv.Itoa(clampPageSize(limit - len(posts))),
				"tweet.fields": "created_at,author_id,referenced_tweets",
				"expansions":   "author_id",
				"user.fields":  "username",
			}).
			SetResult(&page)
		if nextToken != "" {
			req.SetQueryParam("next_token", nextToken)
		}

		resp, err := req.Get(searchRecentPath)
		if err == nil && resp.IsError() {
			err = eris.Errorf("unexpected status %d", resp.StatusCode())
		}
		if err != nil {
			// 已拿到部分结果时不再视为不可用
			if len(posts) > 0 {
				zap.L().Warn("search: stop paging after error", zap.Int("collected", len(posts)), zap.Error(err))
				break
			}
			return nil, eris.Wrapf(ErrFetchUnavailable, "search: %v", err)
		}

		for _, u := range page.Includes.Users {
			users[u.ID] = u.Username
		}
		for _, t := range page.Data {
			if isRetweet(t) {
				continue
			}
			author := users[t.AuthorID]
			posts = append(posts, Post{
				ID:        t.ID,
				Text:      t.Text,
				Author:    author,
				CreatedAt: t.CreatedAt,
				URL:       tweetURL(author, t.ID),
				Source:    s.Name(),
			})
			if len(posts) >= limit {
				break
			}
		}

		nextToken = page.Meta.NextToken
		if nextToken == "" || len(page.Data) == 0 {
			break
		}
	}

	return posts, nil
}

func isRetweet(t searchTweet) bool {
	for _, ref := range t.ReferencedTweets {
		if ref.Type == "retweeted" {
			return true
		}
	}
	return false
}

func tweetURL(author, id string) string {
	if author == "" {
		return "https://x.com/i/web/status/" + id
	}
	return "https://x.com/" + author + "/status/" + id
}
