package bridge

import (
	"z-novel-studio/internal/domain/entity"
)

// Payload 桥接请求的载荷，不同动作使用其中不同的字段
type Payload struct {
	Options entity.StoryOptions `json:"options"`

	StoryCore string `json:"storyCore,omitempty"`

	Outline      *entity.StoryOutline `json:"outline,omitempty"`
	StoryOutline *entity.StoryOutline `json:"storyOutline,omitempty"`

	Chapters        []entity.GeneratedChapter `json:"chapters,omitempty"`
	HistoryChapters []entity.GeneratedChapter `json:"historyChapters,omitempty"`

	ChapterTitle           string                          `json:"chapterTitle,omitempty"`
	PreviousAttempt        *entity.OptimizationEntry       `json:"previousAttempt,omitempty"`
	UserInput              string                          `json:"userInput,omitempty"`
	OutlineToCritique      *entity.DetailedOutlineAnalysis `json:"outlineToCritique,omitempty"`
	DetailedChapterOutline *entity.DetailedOutlineAnalysis `json:"detailedChapterOutline,omitempty"`
	DetailedOutline        *entity.DetailedOutlineAnalysis `json:"detailedOutline,omitempty"`

	OriginalText string `json:"originalText,omitempty"`
	Instruction  string `json:"instruction,omitempty"`

	Char1           *entity.CharacterProfile `json:"char1,omitempty"`
	Char2           *entity.CharacterProfile `json:"char2,omitempty"`
	Character       *entity.CharacterProfile `json:"character,omitempty"`
	CharacterPrompt string                   `json:"characterPrompt,omitempty"`
}

// storyOutline 兼容两种字段名，部分动作使用 outline，部分使用 storyOutline
func (p *Payload) storyOutline() *entity.StoryOutline {
	if p.StoryOutline != nil {
		return p.StoryOutline
	}
	return p.Outline
}

func derefOutline(d *entity.DetailedOutlineAnalysis) entity.DetailedOutlineAnalysis {
	if d == nil {
		return entity.DetailedOutlineAnalysis{}
	}
	return *d
}

func derefCharacter(c *entity.CharacterProfile) entity.CharacterProfile {
	if c == nil {
		return entity.CharacterProfile{}
	}
	return *c
}
