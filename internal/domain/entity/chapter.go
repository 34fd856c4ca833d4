package entity

import "unicode/utf8"

// ChapterStatus 章节状态
type ChapterStatus string

const (
	ChapterStatusStreaming ChapterStatus = "streaming"
	ChapterStatusComplete  ChapterStatus = "complete"
)

// GeneratedChapter 已生成的章节
type GeneratedChapter struct {
	ID      int           `json:"id"`
	Title   string        `json:"title"`
	Content string        `json:"content"`
	Thought string        `json:"preWritingThought,omitempty"`
	Status  ChapterStatus `json:"status"`
}

// WordCount 按字符数统计正文长度
func (c *GeneratedChapter) WordCount() int {
	return utf8.RuneCountInString(c.Content)
}

// IsComplete 判断章节是否已完成
func (c *GeneratedChapter) IsComplete() bool {
	return c.Status == ChapterStatusComplete
}

// NextChapterID 返回下一个章节 ID（最后一章 ID + 1）
func NextChapterID(chapters []GeneratedChapter) int {
	if len(chapters) == 0 {
		return 1
	}
	return chapters[len(chapters)-1].ID + 1
}
