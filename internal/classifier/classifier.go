package classifier

import (
	"context"
	"time"

	"github.com/LJTian/TransitAlerts/internal/config"
	"github.com/rotisserie/eris"
)

// ErrClassification 托管接口或本地模型调用失败
var ErrClassification = eris.New("classification failed")

type Result struct {
	Label string  `json:"label"`
	Score float64 `json:"score"`
}

// Classifier 对清洗后的文本给出 top-1 类别
type Classifier interface {
	Classify(ctx context.Context, text string) (Result, error)
}

type Func func(ctx context.Context, text string) (Result, error)

func (f Func) Classify(ctx context.Context, text string) (Result, error) {
	return f(ctx, text)
}

// New 按 provider 构造分类器；返回值实现 io.Closer 时由调用方关闭
func New(cfg config.ClassifierConfig) (Classifier, error) {
	switch cfg.Provider {
	case "", "http":
		return NewHTTPClassifier(cfg.BaseURL, cfg.Model, cfg.Token, cfg.RatePerSec, 30*time.Second), nil
	case "onnx":
		c, err := NewONNXClassifier(cfg.ModelPath, cfg.VocabPath, cfg.LibPath, cfg.Labels, cfg.MaxSeqLen)
		if err != nil {
			return nil, err
		}
		return c, nil
	default:
		return nil, eris.Errorf("classifier: unknown provider %q", cfg.Provider)
	}
}

// top 取分数最高的一项，分数相同保留靠前的
func top(results []Result) (Result, bool) {
	if len(results) == 0 {
		return Result{}, false
	}
	best := results[0]
	for _, r := range results[1:] {
		if r.Score > best.Score {
			best = r
		}
	}
	return best, true
}
