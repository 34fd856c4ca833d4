package entity

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
)

// 模型输出的细纲与评审 JSON 形态并不稳定：文本字段可能给成数组，分数可能给成字符串。
// 这里的解码只在类型不符时做转换，合法 JSON 不因形态差异而整体失败。

// FlexText 将任意 JSON 值转为文本：字符串原样返回，数组逐项转换后以“、”连接，
// 数字与布尔取字面量，对象保留紧凑的 JSON 原文，null 为空串
func FlexText(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return ""
	}
	switch raw[0] {
	case '"':
		var s string
		if json.Unmarshal(raw, &s) == nil {
			return s
		}
	case '[':
		var items []json.RawMessage
		if json.Unmarshal(raw, &items) == nil {
			parts := make([]string, 0, len(items))
			for _, item := range items {
				if text := FlexText(item); text != "" {
					parts = append(parts, text)
				}
			}
			return strings.Join(parts, "、")
		}
	case '{':
		var buf bytes.Buffer
		if json.Compact(&buf, raw) == nil {
			return buf.String()
		}
	}
	return string(raw)
}

// FlexNumber 将 JSON 数字或数字字符串转为 float64，无法识别时为 0
func FlexNumber(raw json.RawMessage) float64 {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return 0
	}
	var f float64
	if json.Unmarshal(raw, &f) == nil {
		return f
	}
	var s string
	if json.Unmarshal(raw, &s) == nil {
		s = strings.TrimSpace(s)
		if i := strings.IndexByte(s, '/'); i > 0 {
			s = strings.TrimSpace(s[:i])
		}
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return f
		}
	}
	return 0
}

func decodeTextFields(data []byte, fields map[string]*string) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		return nil
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	for key, dst := range fields {
		if v, ok := raw[key]; ok {
			*dst = FlexText(v)
		}
	}
	return nil
}

// UnmarshalJSON 剧情点的各字段都按文本解码
func (p *PlotPoint) UnmarshalJSON(data []byte) error {
	return decodeTextFields(data, map[string]*string{
		"summary":               &p.Summary,
		"emotionalCurve":        &p.EmotionalCurve,
		"emotionalPayoff":       &p.EmotionalPayoff,
		"maslowsNeeds":          &p.MaslowsNeeds,
		"webNovelElements":      &p.WebNovelElements,
		"conflictSource":        &p.ConflictSource,
		"showDontTell":          &p.ShowDontTell,
		"dialogueAndSubtext":    &p.DialogueAndSubtext,
		"logicSolidification":   &p.LogicSolidification,
		"emotionAndInteraction": &p.EmotionAndInteraction,
		"pacingControl":         &p.PacingControl,
		"worldviewGlimpse":      &p.WorldviewGlimpse,
	})
}

// UnmarshalJSON 按文本解码下一章预告
func (n *NextChapterPreview) UnmarshalJSON(data []byte) error {
	return decodeTextFields(data, map[string]*string{
		"nextOutlineIdea": &n.NextOutlineIdea,
		"characterNeeds":  &n.CharacterNeeds,
	})
}

// UnmarshalJSON 按文本解码修改建议
func (s *Suggestion) UnmarshalJSON(data []byte) error {
	return decodeTextFields(data, map[string]*string{
		"area":       &s.Area,
		"suggestion": &s.Suggestion,
	})
}

// UnmarshalJSON 分数允许为数字字符串
func (s *ScoreItem) UnmarshalJSON(data []byte) error {
	if err := decodeTextFields(data, map[string]*string{
		"dimension": &s.Dimension,
		"reason":    &s.Reason,
	}); err != nil {
		return err
	}
	var aux struct {
		Score json.RawMessage `json:"score"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	if aux.Score != nil {
		s.Score = FlexNumber(aux.Score)
	}
	return nil
}

// UnmarshalJSON 总分允许为数字字符串，思考过程允许为数组
func (c *OutlineCritique) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		return nil
	}
	type plain OutlineCritique
	aux := struct {
		*plain
		ThoughtProcess json.RawMessage `json:"thoughtProcess"`
		OverallScore   json.RawMessage `json:"overallScore"`
	}{plain: (*plain)(c)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	if aux.ThoughtProcess != nil {
		c.ThoughtProcess = FlexText(aux.ThoughtProcess)
	}
	if aux.OverallScore != nil {
		c.OverallScore = FlexNumber(aux.OverallScore)
	}
	return nil
}
