package chapter

import (
	"context"
	"errors"
	"testing"

	"github.com/cloudwego/eino/schema"

	"z-novel-studio/internal/domain/entity"
	apperrors "z-novel-studio/pkg/errors"
)

const (
	thought = entity.MarkerThought
	content = entity.MarkerContent
)

func TestWriter_FeedSnapshots(t *testing.T) {
	w := NewWriter()

	if snap := w.Feed("前言"); snap != (Snapshot{}) {
		t.Errorf("no markers should show nothing, got %+v", snap)
	}
	if snap := w.Feed(thought + " 先想想"); snap.Thought != "先想想" || snap.Content != "" {
		t.Errorf("thought only: %+v", snap)
	}
	if snap := w.Feed("主角动机\n" + content + "\n\n  雨"); snap.Thought != "先想想主角动机" || snap.Content != "雨" {
		t.Errorf("with content: %+v", snap)
	}
	if snap := w.Feed("停了。"); snap.Content != "雨停了。" {
		t.Errorf("content should keep growing: %+v", snap)
	}
}

func TestWriter_MarkerSplitAcrossChunks(t *testing.T) {
	w := NewWriter()
	w.Feed("[START_CHAPTER")
	snap := w.Feed("_CONTENT]正文")
	if snap.Content != "正文" {
		t.Errorf("marker split across chunks should still be found, got %+v", snap)
	}
}

func TestWriter_Finalize(t *testing.T) {
	cases := []struct {
		name    string
		text    string
		want    Result
		stopped bool
	}{
		{
			name: "title line",
			text: thought + "构思" + content + "\n章节标题：雨夜来客\n\n夜雨敲窗。",
			want: Result{Title: "雨夜来客", Thought: "构思", Content: "夜雨敲窗。"},
		},
		{
			name: "english title line",
			text: content + "Chapter Title: Night Rain\nBody",
			want: Result{Title: "Night Rain", Content: "Body"},
		},
		{
			name: "no title keeps default",
			text: content + "正文",
			want: Result{Title: "默认", Content: "正文"},
		},
		{
			name: "no markers",
			text: "  纯文本  ",
			want: Result{Title: "默认", Content: "  纯文本  "},
		},
		{
			name:    "thought only",
			text:    thought + "想了很多",
			want:    Result{Title: "默认", Thought: "想了很多"},
			stopped: true,
		},
		{
			name:    "empty content after thinking",
			text:    thought + "想了很多" + content + "   ",
			want:    Result{Title: "默认", Thought: "想了很多"},
			stopped: true,
		},
		{
			name: "empty content without thought",
			text: content + "  ",
			want: Result{Title: "默认"},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := NewWriter()
			w.Feed(tc.text)
			got, err := w.Finalize("默认")
			if tc.stopped {
				if !errors.Is(err, apperrors.ErrStoppedAfterThinking) {
					t.Fatalf("expected stopped-after-thinking, got %v", err)
				}
			} else if err != nil {
				t.Fatalf("Finalize: %v", err)
			}
			if got != tc.want {
				t.Errorf("got %+v, want %+v", got, tc.want)
			}
		})
	}
}

func TestRun(t *testing.T) {
	chunks := []*schema.Message{
		schema.AssistantMessage(thought, nil),
		schema.AssistantMessage("思路", nil),
		schema.AssistantMessage(content+"章节标题：开端\n", nil),
		schema.AssistantMessage("", nil),
		schema.AssistantMessage("第一句。", nil),
	}
	var snaps []Snapshot
	res, err := Run(context.Background(), schema.StreamReaderFromArray(chunks), "默认", func(s Snapshot) {
		snaps = append(snaps, s)
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Title != "开端" || res.Content != "第一句。" || res.Thought != "思路" {
		t.Errorf("result = %+v", res)
	}
	if len(snaps) != 4 {
		t.Errorf("expected a snapshot per non-empty chunk, got %d", len(snaps))
	}
}

func TestRun_StreamError(t *testing.T) {
	sr, sw := schema.Pipe[*schema.Message](2)
	upstream := apperrors.New(apperrors.CodeUpstreamAuth, "API密钥无效或未授权。请在设置中检查您的API密钥。")
	go func() {
		sw.Send(schema.AssistantMessage(content+"半句", nil), nil)
		sw.Send(nil, upstream)
		sw.Close()
	}()
	_, err := Run(context.Background(), sr, "默认", nil)
	if !errors.Is(err, upstream) {
		t.Fatalf("expected upstream error, got %v", err)
	}
}

func TestRun_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Run(ctx, schema.StreamReaderFromArray([]*schema.Message{schema.AssistantMessage("x", nil)}), "默认", nil)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected cancellation, got %v", err)
	}
}
