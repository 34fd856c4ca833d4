package node

import (
	"regexp"
	"strings"
)

var fencedBlockPattern = regexp.MustCompile("```\\w*\\s*([\\s\\S]*?)\\s*```")

// ExtractJSONObject 从模型输出中截取 JSON 文本。
// 优先取第一个代码块；否则按先出现的开括号截取最宽的 {…} 或 […]；都没有时原样返回。
// 该策略不处理多个独立 JSON 块并存的情况。
func ExtractJSONObject(s string) string {
	if m := fencedBlockPattern.FindStringSubmatch(s); m != nil {
		return strings.TrimSpace(m[1])
	}

	raw := strings.TrimSpace(s)
	if raw == "" {
		return raw
	}

	objStart := strings.Index(raw, "{")
	arrStart := strings.Index(raw, "[")
	start, end := -1, -1
	switch {
	case objStart >= 0 && (arrStart < 0 || objStart < arrStart):
		start = objStart
		end = strings.LastIndex(raw, "}")
	case arrStart >= 0:
		start = arrStart
		end = strings.LastIndex(raw, "]")
	}
	if start >= 0 && end > start {
		return raw[start : end+1]
	}
	return raw
}

// ExtractOutermostObject 截取第一个 { 到最后一个 } 之间的文本。
// 找不到起始符号时 ok 为 false 且 hasOpen 为 false。
func ExtractOutermostObject(s string) (body string, hasOpen bool, ok bool) {
	start := strings.Index(s, "{")
	if start < 0 {
		return "", false, false
	}
	end := strings.LastIndex(s, "}")
	if end <= start {
		return "", true, false
	}
	return s[start : end+1], true, true
}
