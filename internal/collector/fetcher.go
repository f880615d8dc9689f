package collector

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
)

var (
	// ErrFetchUnavailable 主检索接口不可用（未授权、限流、网络错误等），触发降级
	ErrFetchUnavailable = eris.New("fetch backend unavailable")
	// ErrFetchExhausted 主接口与降级抓取均无结果
	ErrFetchExhausted = eris.New("all fetch backends returned no posts")
)

// Post 统一采集后的帖子结构，采集后不再修改
type Post struct {
	// ID 平台侧的帖子 ID；整数 ID 统一按十进制字符串保存
	ID        string
	Text      string
	Author    string
	CreatedAt time.Time
	URL       string
	// Reshare 为 true 表示纯转发（只有降级抓取可能带出）
	Reshare bool
	// Source 产出该帖子的后端名称
	Source string
}

// Fetcher 抽象每一个帖子来源，返回按时间倒序、最多 limit 条的帖子
type Fetcher interface {
	Name() string
	Fetch(ctx context.Context, accounts []string, limit int) ([]Post, error)
}
