package dto

import (
	"time"

	"z-novel-studio/internal/application/studio"
	"z-novel-studio/internal/domain/entity"
)

// CreateSessionRequest 创建会话请求
type CreateSessionRequest struct {
	StoryCore string                   `json:"storyCore" binding:"max=20000"`
	Options   entity.StoryOptionsPatch `json:"storyOptions"`
}

// PlanRequest 生成创作计划请求，Refinement 非空时作为优化指令追加到故事核心后
type PlanRequest struct {
	StoryCore  string `json:"storyCore" binding:"max=20000"`
	Refinement string `json:"refinement" binding:"max=5000"`
}

// IterateOutlineRequest 细纲迭代请求
type IterateOutlineRequest struct {
	Title     string `json:"title" binding:"required,max=255"`
	UserInput string `json:"userInput" binding:"max=5000"`
}

// WriteChapterRequest 写作章节请求
type WriteChapterRequest struct {
	Title string `json:"title" binding:"required,max=255"`
}

// UpdateChapterRequest 手动编辑章节请求
type UpdateChapterRequest struct {
	Title   string `json:"title" binding:"max=255"`
	Content string `json:"content"`
}

// EditChapterRequest 按指令微调最后一章
type EditChapterRequest struct {
	Instruction string `json:"instruction" binding:"required,max=5000"`
}

// CharacterArcRequest 角色弧光建议请求
type CharacterArcRequest struct {
	Name string `json:"name" binding:"required"`
}

// NarrativeToolboxRequest 叙事技巧建议请求
type NarrativeToolboxRequest struct {
	Title string `json:"title" binding:"required"`
}

// NewCharacterRequest 新角色生成请求
type NewCharacterRequest struct {
	Prompt string `json:"prompt" binding:"required,max=5000"`
}

// InteractionRequest 角色互动场景请求
type InteractionRequest struct {
	Char1 string `json:"char1" binding:"required"`
	Char2 string `json:"char2" binding:"required"`
}

// SessionResponse 会话详情，凭据已脱敏
type SessionResponse struct {
	ID               string                    `json:"id"`
	State            entity.GameState          `json:"gameState"`
	StoryCore        string                    `json:"storyCore"`
	Options          entity.StoryOptions       `json:"storyOptions"`
	Outline          *entity.StoryOutline      `json:"storyOutline,omitempty"`
	Chapters         []entity.GeneratedChapter `json:"chapters"`
	GeneratedTitles  []string                  `json:"generatedTitles"`
	DetailedOutlines map[string]string         `json:"outlineHistory"`
	ActiveTitle      string                    `json:"activeOutlineTitle,omitempty"`
	LastError        string                    `json:"lastError,omitempty"`
	CreatedAt        time.Time                 `json:"createdAt"`
	UpdatedAt        time.Time                 `json:"updatedAt"`
}

// SessionSummary 会话列表项
type SessionSummary struct {
	ID           string           `json:"id"`
	Title        string           `json:"title"`
	State        entity.GameState `json:"gameState"`
	ChapterCount int              `json:"chapterCount"`
	UpdatedAt    time.Time        `json:"updatedAt"`
}

// SessionListResponse 会话列表响应
type SessionListResponse struct {
	Sessions []*SessionSummary `json:"sessions"`
}

// PlanResponse 创作计划结果
type PlanResponse struct {
	Session *SessionResponse `json:"session"`
	Brief   string           `json:"brief"`
	Warning string           `json:"warning,omitempty"`
}

// OutlineHistoryResponse 细纲优化历史
type OutlineHistoryResponse struct {
	Title   string                     `json:"title"`
	History []entity.OptimizationEntry `json:"history"`
}

// EditChapterResponse 微调结果
type EditChapterResponse struct {
	Chapter *entity.GeneratedChapter `json:"chapter"`
	Diff    studio.DiffSummary       `json:"diff"`
}

// TextResponse 纯文本结果
type TextResponse struct {
	Text string `json:"text"`
}

// AbortResponse 中止结果，Aborted 为 false 表示没有进行中的生成
type AbortResponse struct {
	Aborted bool `json:"aborted"`
}

// ToSessionResponse 转换会话
func ToSessionResponse(s *entity.Session) *SessionResponse {
	if s == nil {
		return nil
	}
	titles := []string(s.GeneratedTitles)
	if titles == nil {
		titles = []string{}
	}
	chapters := s.Chapters
	if chapters == nil {
		chapters = []entity.GeneratedChapter{}
	}
	return &SessionResponse{
		ID:               s.ID,
		State:            s.State,
		StoryCore:        s.StoryCore,
		Options:          s.Options.Redacted(),
		Outline:          s.Outline,
		Chapters:         chapters,
		GeneratedTitles:  titles,
		DetailedOutlines: s.DetailedOutlines,
		ActiveTitle:      s.ActiveTitle,
		LastError:        s.LastError,
		CreatedAt:        s.CreatedAt,
		UpdatedAt:        s.UpdatedAt,
	}
}

// ToSessionListResponse 转换会话列表
func ToSessionListResponse(items []*entity.Session) *SessionListResponse {
	out := &SessionListResponse{Sessions: make([]*SessionSummary, 0, len(items))}
	for _, s := range items {
		title := ""
		if s.Outline != nil {
			title = s.Outline.Title
		}
		out.Sessions = append(out.Sessions, &SessionSummary{
			ID:           s.ID,
			Title:        title,
			State:        s.State,
			ChapterCount: len(s.Chapters),
			UpdatedAt:    s.UpdatedAt,
		})
	}
	return out
}

// ToPlanResponse 转换规划结果
func ToPlanResponse(r *studio.PlanResult) *PlanResponse {
	return &PlanResponse{
		Session: ToSessionResponse(r.Session),
		Brief:   r.Brief,
		Warning: r.Warning,
	}
}
