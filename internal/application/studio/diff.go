package studio

import (
	"unicode"
	"unicode/utf8"

	"github.com/aryann/difflib"
)

// DiffOp 差异片段类型
type DiffOp string

const (
	DiffEqual  DiffOp = "equal"
	DiffInsert DiffOp = "insert"
	DiffDelete DiffOp = "delete"
)

// DiffDelta 连续的同类差异片段
type DiffDelta struct {
	Op   DiffOp `json:"op"`
	Text string `json:"text"`
}

// DiffSummary 改写前后的词级差异，Inserted/Deleted 按字符计
type DiffSummary struct {
	Inserted int         `json:"inserted"`
	Deleted  int         `json:"deleted"`
	Deltas   []DiffDelta `json:"deltas"`
}

// tokenize 按“空白 / 文字 / 标点”切分，中文以标点为界形成分句级片段
func tokenize(s string) []string {
	var out []string
	var cur []rune
	kind := -1
	for _, r := range s {
		k := 2
		switch {
		case unicode.IsSpace(r):
			k = 0
		case unicode.IsLetter(r) || unicode.IsNumber(r) || r == '_' || r == '\'':
			k = 1
		}
		if kind != -1 && (k != kind || k == 2) {
			out = append(out, string(cur))
			cur = cur[:0]
		}
		kind = k
		cur = append(cur, r)
	}
	if len(cur) > 0 {
		out = append(out, string(cur))
	}
	return out
}

// DiffWords 计算两段文本的词级差异
func DiffWords(before, after string) DiffSummary {
	summary := DiffSummary{Deltas: []DiffDelta{}}
	for _, rec := range difflib.Diff(tokenize(before), tokenize(after)) {
		op := DiffEqual
		switch rec.Delta {
		case difflib.LeftOnly:
			op = DiffDelete
			summary.Deleted += utf8.RuneCountInString(rec.Payload)
		case difflib.RightOnly:
			op = DiffInsert
			summary.Inserted += utf8.RuneCountInString(rec.Payload)
		}
		if n := len(summary.Deltas); n > 0 && summary.Deltas[n-1].Op == op {
			summary.Deltas[n-1].Text += rec.Payload
			continue
		}
		summary.Deltas = append(summary.Deltas, DiffDelta{Op: op, Text: rec.Payload})
	}
	return summary
}
