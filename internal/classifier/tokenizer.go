package classifier

import (
	"bufio"
	"os"
	"strings"
	"unicode"

	"github.com/rotisserie/eris"
	"golang.org/x/text/unicode/norm"
)

const defaultMaxSeqLen = 128

// vocab WordPiece 词表，token ID 即行号（从 0 开始）
type vocab struct {
	tokenToID map[string]int64

	unkID int64
	clsID int64
	sepID int64
}

func loadVocab(path string) (*vocab, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrap(err, "vocab: open")
	}
	defer f.Close()

	v := &vocab{tokenToID: make(map[string]int64, 32000)}
	var n int64
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		v.tokenToID[scanner.Text()] = n
		n++
	}
	if err := scanner.Err(); err != nil {
		return nil, eris.Wrap(err, "vocab: read")
	}
	if n == 0 {
		return nil, eris.Errorf("vocab: file is empty: %s", path)
	}

	for name, dest := range map[string]*int64{"[UNK]": &v.unkID, "[CLS]": &v.clsID, "[SEP]": &v.sepID} {
		id, ok := v.tokenToID[name]
		if !ok {
			return nil, eris.Errorf("vocab: missing special token %s", name)
		}
		*dest = id
	}
	return v, nil
}

func (v *vocab) lookup(token string) int64 {
	if id, ok := v.tokenToID[token]; ok {
		return id
	}
	return v.unkID
}

type tokenizer struct {
	vocab     *vocab
	maxSeqLen int
}

func newTokenizer(vocabPath string, maxSeqLen int) (*tokenizer, error) {
	v, err := loadVocab(vocabPath)
	if err != nil {
		return nil, err
	}
	if maxSeqLen < 2 {
		maxSeqLen = defaultMaxSeqLen
	}
	return &tokenizer{vocab: v, maxSeqLen: maxSeqLen}, nil
}

// encode 返回 [CLS] ... [SEP]，不补齐，超过 maxSeqLen 截断
func (t *tokenizer) encode(text string) (inputIDs, attentionMask, tokenTypeIDs []int64) {
	var pieces []string
	for _, word := range basicTokenize(text) {
		pieces = append(pieces, t.wordpiece(word)...)
	}
	if keep := t.maxSeqLen - 2; len(pieces) > keep {
		pieces = pieces[:keep]
	}

	n := len(pieces) + 2
	inputIDs = make([]int64, n)
	attentionMask = make([]int64, n)
	tokenTypeIDs = make([]int64, n)

	inputIDs[0] = t.vocab.clsID
	for i, p := range pieces {
		inputIDs[i+1] = t.vocab.lookup(p)
	}
	inputIDs[n-1] = t.vocab.sepID
	for i := range attentionMask {
		attentionMask[i] = 1
	}
	return inputIDs, attentionMask, tokenTypeIDs
}

// 贪心最长匹配
func (t *tokenizer) wordpiece(word string) []string {
	runes := []rune(word)
	if len(runes) > 200 {
		return []string{"[UNK]"}
	}

	var out []string
	for start := 0; start < len(runes); {
		end := len(runes)
		var piece string
		for ; end > start; end-- {
			sub := string(runes[start:end])
			if start > 0 {
				sub = "##" + sub
			}
			if _, ok := t.vocab.tokenToID[sub]; ok {
				piece = sub
				break
			}
		}
		if piece == "" {
			return []string{"[UNK]"}
		}
		out = append(out, piece)
		start = end
	}
	return out
}

// basicTokenize 小写、去重音，按空白和标点切分
func basicTokenize(text string) []string {
	var b strings.Builder
	for _, r := range norm.NFD.String(strings.ToLower(text)) {
		switch {
		case r == 0 || r == unicode.ReplacementChar:
		case unicode.In(r, unicode.Mn):
		case unicode.IsSpace(r):
			b.WriteRune(' ')
		case unicode.IsControl(r):
		case isPunctuation(r):
			b.WriteRune(' ')
			b.WriteRune(r)
			b.WriteRune(' ')
		default:
			b.WriteRune(r)
		}
	}
	return strings.Fields(b.String())
}

func isPunctuation(r rune) bool {
	if (r >= 33 && r <= 47) || (r >= 58 && r <= 64) ||
		(r >= 91 && r <= 96) || (r >= 123 && r <= 126) {
		return true
	}
	return unicode.IsPunct(r)
}
