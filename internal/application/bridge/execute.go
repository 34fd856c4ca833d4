package bridge

import (
	"context"
	"encoding/json"

	"github.com/cloudwego/eino/schema"
)

// Citation 检索引用，当前上游不返回，保持空数组
type Citation struct {
	URI   string `json:"uri"`
	Title string `json:"title"`
}

// SearchResult performSearch 的响应
type SearchResult struct {
	Text      string     `json:"text"`
	Citations []Citation `json:"citations"`
}

// TitlesResult generateChapterTitles 的响应，内容为模型给出的 JSON 原文
type TitlesResult struct {
	Titles json.RawMessage `json:"titles"`
}

// OutlineResult generateDetailedOutline 的响应
type OutlineResult struct {
	Outline json.RawMessage `json:"outline"`
}

// CritiqueResult critiqueDetailedOutline 的响应
type CritiqueResult struct {
	Critique json.RawMessage `json:"critique"`
}

// TextResult 纯文本响应
type TextResult struct {
	Text string `json:"text"`
}

// Execute 执行非流式动作，返回值直接作为响应体
func (s *Service) Execute(ctx context.Context, action Action, p *Payload) (any, error) {
	if p == nil {
		p = &Payload{}
	}
	opts := p.Options

	switch action {
	case ActionListModels:
		return s.ListModels(ctx, opts)
	case ActionPerformSearch:
		text, err := s.Search(ctx, opts, p.StoryCore)
		if err != nil {
			return nil, err
		}
		return SearchResult{Text: text, Citations: []Citation{}}, nil
	case ActionGenerateChapterTitles:
		titles, err := s.ChapterTitlesJSON(ctx, opts, p.storyOutline(), p.Chapters)
		if err != nil {
			return nil, err
		}
		return TitlesResult{Titles: titles}, nil
	case ActionGenerateDetailedOutline:
		out, err := s.DetailedOutlineJSON(ctx, opts, p.storyOutline(), p.Chapters, p.ChapterTitle, p.PreviousAttempt, p.UserInput)
		if err != nil {
			return nil, err
		}
		return OutlineResult{Outline: out}, nil
	case ActionCritiqueDetailedOutline:
		out, err := s.CritiqueOutlineJSON(ctx, opts, derefOutline(p.OutlineToCritique), p.storyOutline(), p.ChapterTitle)
		if err != nil {
			return nil, err
		}
		return CritiqueResult{Critique: out}, nil
	case ActionEditChapterText:
		return textResult(s.EditChapterText(ctx, opts, p.OriginalText, p.Instruction))
	case ActionGenerateNewCharacter:
		return textResult(s.NewCharacterProfile(ctx, opts, p.storyOutline(), p.CharacterPrompt))
	case ActionWorldbookSuggestions:
		return textResult(s.WorldbookSuggestions(ctx, opts, p.storyOutline()))
	case ActionCharacterArcSuggestions:
		return textResult(s.CharacterArcSuggestions(ctx, opts, derefCharacter(p.Character), p.storyOutline()))
	case ActionNarrativeToolbox:
		return textResult(s.NarrativeToolbox(ctx, opts, derefOutline(p.DetailedOutline), p.storyOutline()))
	default:
		return nil, UnknownActionError(action)
	}
}

// Stream 执行流式动作
func (s *Service) Stream(ctx context.Context, action Action, p *Payload) (*schema.StreamReader[*schema.Message], error) {
	if p == nil {
		p = &Payload{}
	}
	switch action {
	case ActionGenerateChapter:
		return s.StreamChapter(ctx, p.Options, p.storyOutline(), p.HistoryChapters, derefOutline(p.DetailedChapterOutline))
	case ActionGenerateCharacterDialogue:
		return s.StreamCharacterInteraction(ctx, p.Options, derefCharacter(p.Char1), derefCharacter(p.Char2), p.storyOutline())
	default:
		return nil, UnknownActionError(action)
	}
}

func textResult(text string, err error) (any, error) {
	if err != nil {
		return nil, err
	}
	return TextResult{Text: text}, nil
}
