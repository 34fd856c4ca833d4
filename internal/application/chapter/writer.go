// Package chapter 将章节正文的流式输出折叠为“思考过程 + 正文”
package chapter

import (
	"context"
	"errors"
	"io"
	"regexp"
	"strings"
	"unicode"

	"github.com/cloudwego/eino/schema"

	"z-novel-studio/internal/domain/entity"
	apperrors "z-novel-studio/pkg/errors"
	"z-novel-studio/pkg/metrics"
)

var titlePattern = regexp.MustCompile(`(?:章节标题：|Chapter Title:)\s*(.*)`)

// Snapshot 流式过程中的可见状态
type Snapshot struct {
	Thought string `json:"thought"`
	Content string `json:"content"`
}

// Result 定稿结果
type Result struct {
	Title   string `json:"title"`
	Thought string `json:"thought"`
	Content string `json:"content"`
}

// Writer 累积流式文本，每次追加后重新扫描整个缓冲区
type Writer struct {
	buf strings.Builder
}

// NewWriter 创建 Writer
func NewWriter() *Writer {
	return &Writer{}
}

// Feed 追加一段文本并返回当前快照
func (w *Writer) Feed(chunk string) Snapshot {
	w.buf.WriteString(chunk)
	return scan(w.buf.String())
}

// Text 返回已累积的原文
func (w *Writer) Text() string {
	return w.buf.String()
}

func scan(text string) Snapshot {
	thoughtAt := strings.Index(text, entity.MarkerThought)
	contentAt := strings.Index(text, entity.MarkerContent)

	var snap Snapshot
	switch {
	case contentAt >= 0:
		if thoughtAt >= 0 && thoughtAt+len(entity.MarkerThought) <= contentAt {
			snap.Thought = strings.TrimSpace(text[thoughtAt+len(entity.MarkerThought) : contentAt])
		}
		snap.Content = strings.TrimLeftFunc(text[contentAt+len(entity.MarkerContent):], unicode.IsSpace)
	case thoughtAt >= 0:
		snap.Thought = strings.TrimSpace(text[thoughtAt+len(entity.MarkerThought):])
	}
	return snap
}

// Finalize 定稿。
// 只有思考过程没有正文时返回 ErrStoppedAfterThinking，Result 中正文为空；
// 没有任何信标时整段文本视为正文。
func (w *Writer) Finalize(defaultTitle string) (Result, error) {
	text := w.buf.String()
	res := Result{Title: defaultTitle}

	hasContent := strings.Contains(text, entity.MarkerContent)
	hasThought := strings.Contains(text, entity.MarkerThought)

	switch {
	case hasContent:
		snap := scan(text)
		res.Thought = snap.Thought
		body := snap.Content
		if loc := titlePattern.FindStringSubmatchIndex(body); loc != nil {
			if title := strings.TrimSpace(body[loc[2]:loc[3]]); title != "" {
				res.Title = title
			}
			body = strings.TrimLeftFunc(body[loc[1]:], unicode.IsSpace)
		}
		res.Content = body
		if strings.TrimSpace(res.Content) == "" && res.Thought != "" {
			res.Content = ""
			return res, apperrors.ErrStoppedAfterThinking
		}
	case hasThought:
		res.Thought = scan(text).Thought
		return res, apperrors.ErrStoppedAfterThinking
	default:
		res.Content = text
	}
	return res, nil
}

// Run 驱动流读取器完成折叠，onSnapshot 可为 nil。
// 流中的错误或 ctx 取消都会中止折叠，此时不返回部分结果。
func Run(ctx context.Context, reader *schema.StreamReader[*schema.Message], defaultTitle string, onSnapshot func(Snapshot)) (Result, error) {
	defer reader.Close()

	w := NewWriter()
	for {
		if err := ctx.Err(); err != nil {
			metrics.ChapterStreamsTotal.WithLabelValues("aborted").Inc()
			return Result{}, err
		}
		msg, err := reader.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			status := "error"
			if errors.Is(err, context.Canceled) {
				status = "aborted"
			}
			metrics.ChapterStreamsTotal.WithLabelValues(status).Inc()
			return Result{}, err
		}
		if msg == nil || msg.Content == "" {
			continue
		}
		snap := w.Feed(msg.Content)
		if onSnapshot != nil {
			onSnapshot(snap)
		}
	}

	res, err := w.Finalize(defaultTitle)
	if err != nil {
		metrics.ChapterStreamsTotal.WithLabelValues("stopped_after_thinking").Inc()
		return res, err
	}
	metrics.ChapterStreamsTotal.WithLabelValues("success").Inc()
	metrics.ChapterWordCount.Observe(float64(len([]rune(res.Content))))
	return res, nil
}
