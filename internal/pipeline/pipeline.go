package pipeline

import (
	"context"
	"errors"
	"time"

	"github.com/LJTian/TransitAlerts/internal/classifier"
	"github.com/LJTian/TransitAlerts/internal/collector"
	"github.com/LJTian/TransitAlerts/internal/processor"
	"github.com/LJTian/TransitAlerts/internal/storage"
	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// DefaultEmptyLabel 清洗后为空的帖子使用的类别
const DefaultEmptyLabel = "UNCLASSIFIED"

// Pipeline 一次完整的 采集 → 清洗 → 分类 → 去重入库
type Pipeline struct {
	fetcher    collector.Fetcher
	classifier classifier.Classifier
	store      storage.PostStore
	accounts   []string
	limit      int
	emptyLabel string

	now func() time.Time
}

// Result 单次运行的统计
type Result struct {
	RunID   string `json:"run_id"`
	Fetched int    `json:"fetched"`
	Saved   int    `json:"saved"`
	Skipped int    `json:"skipped"`
	Failed  int    `json:"failed"`
}

func New(f collector.Fetcher, c classifier.Classifier, s storage.PostStore, accounts []string, limit int) *Pipeline {
	return &Pipeline{
		fetcher:    f,
		classifier: c,
		store:      s,
		accounts:   accounts,
		limit:      limit,
		emptyLabel: DefaultEmptyLabel,
		now:        time.Now,
	}
}

// WithEmptyLabel 设置清洗后为空的帖子的类别，空串保持默认
func (p *Pipeline) WithEmptyLabel(label string) *Pipeline {
	if label != "" {
		p.emptyLabel = label
	}
	return p
}

// Run 执行一轮。两个采集后端都没有结果时视为正常结束；
// 单条分类失败只跳过该条，存储错误中止本轮并返回
func (p *Pipeline) Run(ctx context.Context) (Result, error) {
	res := Result{RunID: uuid.NewString()}
	log := zap.L().With(zap.String("run_id", res.RunID))

	posts, err := p.fetcher.Fetch(ctx, p.accounts, p.limit)
	if err != nil {
		if errors.Is(err, collector.ErrFetchExhausted) {
			log.Info("no posts fetched", zap.String("fetcher", p.fetcher.Name()))
			return res, nil
		}
		return res, eris.Wrap(err, "pipeline: fetch")
	}
	posts = processor.Dedup(posts)
	res.Fetched = len(posts)
	log.Info("fetched posts", zap.String("fetcher", p.fetcher.Name()), zap.Int("count", res.Fetched))

	for _, post := range posts {
		if err := ctx.Err(); err != nil {
			return res, eris.Wrap(err, "pipeline: canceled")
		}

		processed := processor.Normalize(post.Text)
		category, err := p.categorize(ctx, processed)
		if err != nil {
			res.Failed++
			log.Warn("classify failed", zap.String("id", post.ID), zap.Error(err))
			continue
		}

		exists, err := p.store.Exists(ctx, post.ID)
		if err != nil {
			return res, eris.Wrapf(err, "pipeline: check %s", post.ID)
		}
		if exists {
			res.Skipped++
			continue
		}

		err = p.store.Insert(ctx, toRecord(post, processed, category, p.now()))
		switch {
		case errors.Is(err, storage.ErrDuplicate):
			res.Skipped++
		case err != nil:
			return res, eris.Wrapf(err, "pipeline: save %s", post.ID)
		default:
			res.Saved++
			log.Info("saved post", zap.String("id", post.ID), zap.String("category", category))
		}
	}

	log.Info("run finished",
		zap.Int("fetched", res.Fetched),
		zap.Int("saved", res.Saved),
		zap.Int("skipped", res.Skipped),
		zap.Int("failed", res.Failed),
	)
	return res, nil
}

// categorize 清洗后为空的文本不送模型，直接记为 emptyLabel
func (p *Pipeline) categorize(ctx context.Context, processed string) (string, error) {
	if processed == "" {
		return p.emptyLabel, nil
	}
	res, err := p.classifier.Classify(ctx, processed)
	if err != nil {
		return "", err
	}
	return res.Label, nil
}

func toRecord(post collector.Post, processed, category string, now time.Time) storage.Record {
	return storage.Record{
		ID:            post.ID,
		Text:          post.Text,
		ProcessedText: processed,
		Category:      category,
		Timestamp:     now.UTC(),
		Meta: &storage.RecordMeta{
			Author:   post.Author,
			Source:   post.Source,
			URL:      post.URL,
			PostedAt: post.CreatedAt,
		},
	}
}
