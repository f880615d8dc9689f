package classifier

import (
	"context"
	"math"
	"sync"

	"github.com/rotisserie/eris"
	ort "github.com/yalue/onnxruntime_go"
)

// ONNX Runtime 环境全进程只初始化一次
var ortEnv struct {
	once sync.Once
	err  error
}

func initORT(libPath string) error {
	ortEnv.once.Do(func() {
		ort.SetSharedLibraryPath(libPath)
		ortEnv.err = ort.InitializeEnvironment()
	})
	return ortEnv.err
}

// ONNXClassifier 本地序列分类模型，输出 logits 形状为 [batch, numLabels]
type ONNXClassifier struct {
	mu         sync.Mutex
	session    *ort.DynamicAdvancedSession
	tok        *tokenizer
	labels     []string
	inputNames []string
}

// labels 按 logits 下标排列
func NewONNXClassifier(modelPath, vocabPath, libPath string, labels []string, maxSeqLen int) (*ONNXClassifier, error) {
	if len(labels) == 0 {
		return nil, eris.New("onnx: no labels configured")
	}
	if err := initORT(libPath); err != nil {
		return nil, eris.Wrap(err, "onnx: initialize runtime")
	}

	inputs, outputs, err := ort.GetInputOutputInfo(modelPath)
	if err != nil {
		return nil, eris.Wrap(err, "onnx: read model info")
	}
	inputNames, err := selectInputs(inputs)
	if err != nil {
		return nil, err
	}
	if len(outputs) == 0 {
		return nil, eris.New("onnx: model has no outputs")
	}
	dims := outputs[0].Dimensions
	if len(dims) != 2 {
		return nil, eris.Errorf("onnx: expected 2D logits output, got %v", dims)
	}
	if dims[1] > 0 && int(dims[1]) != len(labels) {
		return nil, eris.Errorf("onnx: model has %d labels, %d configured", dims[1], len(labels))
	}

	tok, err := newTokenizer(vocabPath, maxSeqLen)
	if err != nil {
		return nil, eris.Wrap(err, "onnx")
	}

	opts, err := ort.NewSessionOptions()
	if err != nil {
		return nil, eris.Wrap(err, "onnx: session options")
	}
	defer opts.Destroy()
	_ = opts.SetIntraOpNumThreads(2)
	_ = opts.SetInterOpNumThreads(1)

	session, err := ort.NewDynamicAdvancedSession(modelPath, inputNames, []string{outputs[0].Name}, opts)
	if err != nil {
		return nil, eris.Wrap(err, "onnx: create session")
	}

	return &ONNXClassifier{
		session:    session,
		tok:        tok,
		labels:     labels,
		inputNames: inputNames,
	}, nil
}

// selectInputs input_ids、attention_mask 必须有；token_type_ids 只在模型声明时传入（DistilBERT 没有）
func selectInputs(inputs []ort.InputOutputInfo) ([]string, error) {
	have := make(map[string]bool, len(inputs))
	for _, in := range inputs {
		have[in.Name] = true
	}
	names := []string{"input_ids", "attention_mask"}
	for _, n := range names {
		if !have[n] {
			return nil, eris.Errorf("onnx: model missing required input %q", n)
		}
	}
	if have["token_type_ids"] {
		names = append(names, "token_type_ids")
	}
	return names, nil
}

func (c *ONNXClassifier) Classify(ctx context.Context, text string) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, eris.Wrap(err, "onnx: classify")
	}

	ids, mask, types := c.tok.encode(text)
	shape := ort.NewShape(1, int64(len(ids)))

	values := map[string][]int64{
		"input_ids":      ids,
		"attention_mask": mask,
		"token_type_ids": types,
	}
	inputs := make([]ort.Value, 0, len(c.inputNames))
	defer func() {
		for _, v := range inputs {
			v.Destroy()
		}
	}()
	for _, name := range c.inputNames {
		t, err := ort.NewTensor(shape, values[name])
		if err != nil {
			return Result{}, eris.Wrapf(ErrClassification, "onnx: %s tensor: %v", name, err)
		}
		inputs = append(inputs, t)
	}

	out, err := ort.NewEmptyTensor[float32](ort.NewShape(1, int64(len(c.labels))))
	if err != nil {
		return Result{}, eris.Wrapf(ErrClassification, "onnx: output tensor: %v", err)
	}
	defer out.Destroy()

	c.mu.Lock()
	err = c.session.Run(inputs, []ort.Value{out})
	c.mu.Unlock()
	if err != nil {
		return Result{}, eris.Wrapf(ErrClassification, "onnx: inference: %v", err)
	}

	probs := softmax(out.GetData())
	i := argmax(probs)
	return Result{Label: c.labels[i], Score: probs[i]}, nil
}

func (c *ONNXClassifier) Close() error {
	if c.session == nil {
		return nil
	}
	return c.session.Destroy()
}

func softmax(logits []float32) []float64 {
	out := make([]float64, len(logits))
	if len(logits) == 0 {
		return out
	}
	maxLogit := float64(logits[0])
	for _, l := range logits[1:] {
		maxLogit = math.Max(maxLogit, float64(l))
	}
	var sum float64
	for i, l := range logits {
		out[i] = math.Exp(float64(l) - maxLogit)
		sum += out[i]
	}
	for i := range out {
		out[i] /= sum
	}
	return out
}

func argmax(xs []float64) int {
	best := 0
	for i, x := range xs {
		if x > xs[best] {
			best = i
		}
	}
	return best
}
