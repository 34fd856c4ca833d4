package node

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

const rawPreviewRunes = 500

var (
	leadingFencePattern  = regexp.MustCompile("^```(?:json)?\\s*")
	trailingFencePattern = regexp.MustCompile("\\s*```$")
)

// MarkerError 输出中缺少起始或结束信标
type MarkerError struct {
	Step string
}

func (e *MarkerError) Error() string {
	return fmt.Sprintf("在\"%s\"的输出中未能找到完整的数据块 (缺少起始或结束信标)。", e.Step)
}

// JSONParseError 信标之间的文本不是合法 JSON
type JSONParseError struct {
	Step string
	Raw  string
	Err  error
}

func (e *JSONParseError) Error() string {
	return fmt.Sprintf("解析来自\"%s\"的JSON数据时失败: %v\n\n原始文本:\n%s", e.Step, e.Err, Preview(e.Raw, rawPreviewRunes))
}

func (e *JSONParseError) Unwrap() error {
	return e.Err
}

// ExtractMarked 返回第一个 start 与其后第一个 end 之间的文本（已去除首尾空白）
func ExtractMarked(text, start, end string) (string, bool) {
	i := strings.Index(text, start)
	if i < 0 {
		return "", false
	}
	rest := text[i+len(start):]
	j := strings.Index(rest, end)
	if j < 0 {
		return "", false
	}
	inner := strings.TrimSpace(rest[:j])
	if inner == "" {
		return "", false
	}
	return inner, true
}

// StripCodeFence 去除包裹 JSON 的 ``` 或 ```json 代码块标记
func StripCodeFence(s string) string {
	s = leadingFencePattern.ReplaceAllString(s, "")
	return trailingFencePattern.ReplaceAllString(s, "")
}

// ParseMarkedJSON 提取信标之间的 JSON 并严格解析到 v。
// 信标缺失时返回 *MarkerError，不会返回默认值。
func ParseMarkedJSON(text, start, end, step string, v any) error {
	inner, ok := ExtractMarked(text, start, end)
	if !ok {
		return &MarkerError{Step: step}
	}
	payload := StripCodeFence(inner)
	if err := json.Unmarshal([]byte(payload), v); err != nil {
		return &JSONParseError{Step: step, Raw: payload, Err: err}
	}
	return nil
}

// WrapMarked 将 v 序列化为缩进 JSON 并用信标包裹
func WrapMarked(v any, start, end string) (string, error) {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "", err
	}
	return start + "\n" + string(b) + "\n" + end, nil
}
