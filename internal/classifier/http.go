package classifier

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"
)

// HTTPClassifier 调用托管推理接口：POST {base}/models/{model}
type HTTPClassifier struct {
	client  *resty.Client
	model   string
	limiter *rate.Limiter
}

// ratePerSec <= 0 时不限速
func NewHTTPClassifier(baseURL, model, token string, ratePerSec float64, timeout time.Duration) *HTTPClassifier {
	client := resty.New().
		SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetTimeout(timeout).
		SetHeader("Content-Type", "application/json")
	if token != "" {
		client.SetAuthToken(token)
	}

	var limiter *rate.Limiter
	if ratePerSec > 0 {
		limiter = rate.NewLimiter(rate.Limit(ratePerSec), 1)
	}
	return &HTTPClassifier{client: client, model: model, limiter: limiter}
}

func (c *HTTPClassifier) Classify(ctx context.Context, text string) (Result, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return Result{}, eris.Wrap(err, "classifier: rate limiter wait")
		}
	}

	resp, err := c.client.R().
		SetContext(ctx).
		SetBody(map[string]any{
			"inputs":  text,
			"options": map[string]any{"wait_for_model": true},
		}).
		Post("/models/" + c.model)
	if err != nil {
		return Result{}, eris.Wrapf(ErrClassification, "classifier: request: %v", err)
	}
	if resp.IsError() {
		return Result{}, eris.Wrapf(ErrClassification, "classifier: status %d: %s", resp.StatusCode(), truncateBody(resp.Body()))
	}

	results, err := decodeResults(resp.Body())
	if err != nil {
		return Result{}, eris.Wrapf(ErrClassification, "classifier: decode: %v", err)
	}
	best, ok := top(results)
	if !ok {
		return Result{}, eris.Wrap(ErrClassification, "classifier: empty response")
	}
	return best, nil
}

// decodeResults 兼容 [{label,score}] 与 [[{label,score}]] 两种返回
func decodeResults(body []byte) ([]Result, error) {
	var nested [][]Result
	if err := json.Unmarshal(body, &nested); err == nil {
		if len(nested) == 0 {
			return nil, nil
		}
		return nested[0], nil
	}
	var flat []Result
	if err := json.Unmarshal(body, &flat); err != nil {
		return nil, err
	}
	return flat, nil
}

func truncateBody(b []byte) string {
	const limit = 200
	s := strings.TrimSpace(string(b))
	if len(s) > limit {
		return s[:limit]
	}
	return s
}
