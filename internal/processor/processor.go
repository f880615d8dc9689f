package processor

import (
	"regexp"
	"strings"

	"github.com/LJTian/TransitAlerts/internal/collector"
)

var (
	// 带 scheme 的链接，直到下一个空白字符
	urlRe = regexp.MustCompile(`(?i)[a-z][a-z0-9+.\-]*://\S+`)
	// 只保留 ASCII 字母、数字与空白
	symbolRe = regexp.MustCompile(`[^a-zA-Z0-9\s]`)
)

// Normalize 去掉链接和符号、转小写并压缩空白，作为分类器输入。
// 输出只包含 [a-z0-9 ]，且 Normalize(Normalize(x)) == Normalize(x)。
func Normalize(text string) string {
	text = urlRe.ReplaceAllString(text, "")
	text = symbolRe.ReplaceAllString(text, "")
	return strings.Join(strings.Fields(strings.ToLower(text)), " ")
}

// Dedup 去掉同一批次内重复 ID 的帖子，保留第一次出现（即最新）的那条，顺序不变
func Dedup(posts []collector.Post) []collector.Post {
	out := make([]collector.Post, 0, len(posts))
	seen := make(map[string]struct{}, len(posts))

	for _, p := range posts {
		if p.ID == "" {
			continue
		}
		if _, ok := seen[p.ID]; ok {
			continue
		}
		seen[p.ID] = struct{}{}
		out = append(out, p)
	}

	return out
}
