// Package handler 提供 HTTP 请求处理器
package handler

import (
	"context"

	"github.com/gin-gonic/gin"

	"z-novel-studio/internal/application/studio"
	"z-novel-studio/internal/domain/entity"
	"z-novel-studio/internal/domain/repository"
	"z-novel-studio/internal/interfaces/http/dto"
	"z-novel-studio/pkg/logger"
)

// StudioService 工作台能力，由 studio.Service 实现
type StudioService interface {
	CreateSession(ctx context.Context, options entity.StoryOptionsPatch, storyCore string) (*entity.Session, error)
	GetSession(ctx context.Context, id string) (*entity.Session, error)
	ListSessions(ctx context.Context, page, pageSize int) (*repository.PagedResult[*entity.Session], error)
	DeleteSession(ctx context.Context, id string) error
	UpdateOptions(ctx context.Context, id string, patch entity.StoryOptionsPatch) (*entity.Session, error)
	UpdateOutline(ctx context.Context, id string, o *entity.StoryOutline) (*entity.Session, error)
	UpdateChapter(ctx context.Context, id string, chapterID int, title, content string) (*entity.Session, error)
	Abort(ctx context.Context, id string) bool

	Plan(ctx context.Context, id string, in studio.PlanInput) (*studio.PlanResult, error)
	GenerateTitles(ctx context.Context, id string) (*entity.Session, error)
	IterateOutline(ctx context.Context, id, chapterTitle, userInput string) (*entity.FinalDetailedOutline, error)
	OutlineHistory(ctx context.Context, id, chapterTitle string) ([]entity.OptimizationEntry, error)
	WriteChapter(ctx context.Context, id, chapterTitle string, onSnapshot func(studio.ChapterSnapshot)) (*entity.GeneratedChapter, error)
	RegenerateLastChapter(ctx context.Context, id string, onSnapshot func(studio.ChapterSnapshot)) (*entity.GeneratedChapter, error)
	EditLastChapter(ctx context.Context, id, instruction string) (*studio.EditResult, error)

	WorldbookSuggestions(ctx context.Context, id string) (string, error)
	CharacterArcSuggestions(ctx context.Context, id, name string) (string, error)
	NarrativeToolbox(ctx context.Context, id, chapterTitle string) (string, error)
	NewCharacter(ctx context.Context, id, characterPrompt string) (*entity.CharacterProfile, error)
	CharacterInteraction(ctx context.Context, id, name1, name2 string, onText func(string)) (string, error)
}

// SessionHandler 创作会话处理器
type SessionHandler struct {
	studio StudioService
}

// NewSessionHandler 创建会话处理器
func NewSessionHandler(svc StudioService) *SessionHandler {
	return &SessionHandler{studio: svc}
}

// CreateSession 创建会话
// @Summary 创建创作会话
// @Tags Sessions
// @Accept json
// @Produce json
// @Param body body dto.CreateSessionRequest true "故事核心与创作参数"
// @Success 201 {object} dto.Response[dto.SessionResponse]
// @Failure 400 {object} dto.ErrorResponse
// @Router /v1/sessions [post]
func (h *SessionHandler) CreateSession(c *gin.Context) {
	var req dto.CreateSessionRequest
	if !bindJSON(c, &req) {
		return
	}
	sess, err := h.studio.CreateSession(c.Request.Context(), req.Options, req.StoryCore)
	if err != nil {
		respondError(c, err)
		return
	}
	dto.Created(c, dto.ToSessionResponse(sess))
}

// ListSessions 分页列出会话
// @Summary 会话列表
// @Tags Sessions
// @Produce json
// @Param page query int false "页码" default(1)
// @Param page_size query int false "每页条数" default(20)
// @Success 200 {object} dto.Response[dto.SessionListResponse]
// @Router /v1/sessions [get]
func (h *SessionHandler) ListSessions(c *gin.Context) {
	pageReq := dto.BindPage(c)
	result, err := h.studio.ListSessions(c.Request.Context(), pageReq.Page, pageReq.PageSize)
	if err != nil {
		respondError(c, err)
		return
	}
	meta := dto.NewPageMeta(result.Page, result.PageSize, int(result.Total))
	dto.SuccessWithPage(c, dto.ToSessionListResponse(result.Items), meta)
}

// GetSession 获取会话详情
// @Summary 会话详情
// @Tags Sessions
// @Produce json
// @Param sid path string true "会话 ID"
// @Success 200 {object} dto.Response[dto.SessionResponse]
// @Failure 404 {object} dto.ErrorResponse
// @Router /v1/sessions/{sid} [get]
func (h *SessionHandler) GetSession(c *gin.Context) {
	sid, ok := sessionID(c)
	if !ok {
		return
	}
	sess, err := h.studio.GetSession(c.Request.Context(), sid)
	if err != nil {
		respondError(c, err)
		return
	}
	dto.Success(c, dto.ToSessionResponse(sess))
}

// DeleteSession 删除会话
// @Summary 删除会话
// @Tags Sessions
// @Param sid path string true "会话 ID"
// @Success 204
// @Failure 404 {object} dto.ErrorResponse
// @Router /v1/sessions/{sid} [delete]
func (h *SessionHandler) DeleteSession(c *gin.Context) {
	sid, ok := sessionID(c)
	if !ok {
		return
	}
	if err := h.studio.DeleteSession(c.Request.Context(), sid); err != nil {
		respondError(c, err)
		return
	}
	dto.NoContent(c)
}

// UpdateOptions 更新创作参数
// @Summary 更新创作参数
// @Tags Sessions
// @Accept json
// @Produce json
// @Param sid path string true "会话 ID"
// @Success 200 {object} dto.Response[dto.SessionResponse]
// @Router /v1/sessions/{sid}/options [put]
func (h *SessionHandler) UpdateOptions(c *gin.Context) {
	sid, ok := sessionID(c)
	if !ok {
		return
	}
	var req entity.StoryOptionsPatch
	if !bindJSON(c, &req) {
		return
	}
	sess, err := h.studio.UpdateOptions(c.Request.Context(), sid, req)
	if err != nil {
		respondError(c, err)
		return
	}
	dto.Success(c, dto.ToSessionResponse(sess))
}

// UpdateOutline 手动编辑总纲
// @Summary 更新总纲
// @Tags Sessions
// @Accept json
// @Produce json
// @Param sid path string true "会话 ID"
// @Success 200 {object} dto.Response[dto.SessionResponse]
// @Failure 409 {object} dto.ErrorResponse
// @Router /v1/sessions/{sid}/outline [put]
func (h *SessionHandler) UpdateOutline(c *gin.Context) {
	sid, ok := sessionID(c)
	if !ok {
		return
	}
	var req entity.StoryOutline
	if !bindJSON(c, &req) {
		return
	}
	sess, err := h.studio.UpdateOutline(c.Request.Context(), sid, &req)
	if err != nil {
		respondError(c, err)
		return
	}
	dto.Success(c, dto.ToSessionResponse(sess))
}

// UpdateChapter 手动编辑章节
// @Summary 更新章节
// @Tags Sessions
// @Accept json
// @Produce json
// @Param sid path string true "会话 ID"
// @Param cid path int true "章节 ID"
// @Param body body dto.UpdateChapterRequest true "标题与正文"
// @Success 200 {object} dto.Response[dto.SessionResponse]
// @Failure 409 {object} dto.ErrorResponse
// @Router /v1/sessions/{sid}/chapters/{cid} [put]
func (h *SessionHandler) UpdateChapter(c *gin.Context) {
	sid, ok := sessionID(c)
	if !ok {
		return
	}
	cid, err := dto.BindChapterID(c)
	if err != nil {
		respondError(c, err)
		return
	}
	var req dto.UpdateChapterRequest
	if !bindJSON(c, &req) {
		return
	}
	sess, err := h.studio.UpdateChapter(c.Request.Context(), sid, cid, req.Title, req.Content)
	if err != nil {
		respondError(c, err)
		return
	}
	dto.Success(c, dto.ToSessionResponse(sess))
}

// Abort 中止正在进行的生成
// @Summary 中止生成
// @Tags Sessions
// @Produce json
// @Param sid path string true "会话 ID"
// @Success 200 {object} dto.Response[dto.AbortResponse]
// @Router /v1/sessions/{sid}/abort [post]
func (h *SessionHandler) Abort(c *gin.Context) {
	sid, ok := sessionID(c)
	if !ok {
		return
	}
	aborted := h.studio.Abort(c.Request.Context(), sid)
	if !aborted {
		logger.Debug(c.Request.Context(), "abort requested with nothing in flight", "session_id", sid)
	}
	dto.Success(c, dto.AbortResponse{Aborted: aborted})
}
