// Package handler 提供 HTTP 请求处理器
package handler

import (
	"context"

	"github.com/gin-gonic/gin"

	"z-novel-studio/internal/application/studio"
	"z-novel-studio/internal/domain/entity"
	"z-novel-studio/internal/interfaces/http/dto"
)

// Plan 生成创作计划
// @Summary 生成创作计划
// @Description 生成创作简报并解析总纲，成功后清空已有章节并自动生成第一批章节标题
// @Tags Generation
// @Accept json
// @Produce json
// @Param sid path string true "会话 ID"
// @Param body body dto.PlanRequest false "故事核心与优化指令"
// @Success 200 {object} dto.Response[dto.PlanResponse]
// @Failure 409 {object} dto.ErrorResponse
// @Failure 422 {object} dto.ErrorResponse
// @Router /v1/sessions/{sid}/plan [post]
func (h *SessionHandler) Plan(c *gin.Context) {
	sid, ok := sessionID(c)
	if !ok {
		return
	}
	var req dto.PlanRequest
	if c.Request.ContentLength != 0 && !bindJSON(c, &req) {
		return
	}
	res, err := h.studio.Plan(c.Request.Context(), sid, studio.PlanInput{
		StoryCore:  req.StoryCore,
		Refinement: req.Refinement,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	dto.Success(c, dto.ToPlanResponse(res))
}

// GenerateTitles 续写章节标题
// @Summary 生成章节标题
// @Tags Generation
// @Produce json
// @Param sid path string true "会话 ID"
// @Success 200 {object} dto.Response[dto.SessionResponse]
// @Failure 400 {object} dto.ErrorResponse
// @Router /v1/sessions/{sid}/titles [post]
func (h *SessionHandler) GenerateTitles(c *gin.Context) {
	sid, ok := sessionID(c)
	if !ok {
		return
	}
	sess, err := h.studio.GenerateTitles(c.Request.Context(), sid)
	if err != nil {
		respondError(c, err)
		return
	}
	dto.Success(c, dto.ToSessionResponse(sess))
}

// IterateOutline 执行一轮细纲“生成-评审”
// @Summary 迭代章节细纲
// @Tags Generation
// @Accept json
// @Produce json
// @Param sid path string true "会话 ID"
// @Param body body dto.IterateOutlineRequest true "章节标题与修改意见"
// @Success 200 {object} dto.Response[entity.FinalDetailedOutline]
// @Router /v1/sessions/{sid}/outlines/iterate [post]
func (h *SessionHandler) IterateOutline(c *gin.Context) {
	sid, ok := sessionID(c)
	if !ok {
		return
	}
	var req dto.IterateOutlineRequest
	if !bindJSON(c, &req) {
		return
	}
	final, err := h.studio.IterateOutline(c.Request.Context(), sid, req.Title, req.UserInput)
	if err != nil {
		respondError(c, err)
		return
	}
	dto.Success(c, final)
}

// OutlineHistory 细纲优化历史
// @Summary 细纲优化历史
// @Tags Generation
// @Produce json
// @Param sid path string true "会话 ID"
// @Param title query string true "章节标题"
// @Success 200 {object} dto.Response[dto.OutlineHistoryResponse]
// @Router /v1/sessions/{sid}/outlines/history [get]
func (h *SessionHandler) OutlineHistory(c *gin.Context) {
	sid, ok := sessionID(c)
	if !ok {
		return
	}
	title := c.Query("title")
	if title == "" {
		dto.BadRequest(c, "title is required")
		return
	}
	history, err := h.studio.OutlineHistory(c.Request.Context(), sid, title)
	if err != nil {
		respondError(c, err)
		return
	}
	if history == nil {
		history = []entity.OptimizationEntry{}
	}
	dto.Success(c, dto.OutlineHistoryResponse{Title: title, History: history})
}

// WriteChapter 流式写作新章节
// @Summary 写作章节
// @Description 以 NDJSON 推送章节快照，最后一行为 done 或 error 事件
// @Tags Generation
// @Accept json
// @Produce application/x-ndjson
// @Param sid path string true "会话 ID"
// @Param body body dto.WriteChapterRequest true "章节标题"
// @Success 200 {object} dto.StreamEvent
// @Failure 409 {object} dto.ErrorResponse
// @Router /v1/sessions/{sid}/chapters/stream [post]
func (h *SessionHandler) WriteChapter(c *gin.Context) {
	sid, ok := sessionID(c)
	if !ok {
		return
	}
	var req dto.WriteChapterRequest
	if !bindJSON(c, &req) {
		return
	}
	h.streamChapter(c, func(ctx context.Context, onSnapshot func(studio.ChapterSnapshot)) (*entity.GeneratedChapter, error) {
		return h.studio.WriteChapter(ctx, sid, req.Title, onSnapshot)
	})
}

// RegenerateChapter 重新生成最后一章
// @Summary 重新生成最后一章
// @Tags Generation
// @Produce application/x-ndjson
// @Param sid path string true "会话 ID"
// @Success 200 {object} dto.StreamEvent
// @Failure 404 {object} dto.ErrorResponse
// @Router /v1/sessions/{sid}/chapters/regenerate [post]
func (h *SessionHandler) RegenerateChapter(c *gin.Context) {
	sid, ok := sessionID(c)
	if !ok {
		return
	}
	h.streamChapter(c, func(ctx context.Context, onSnapshot func(studio.ChapterSnapshot)) (*entity.GeneratedChapter, error) {
		return h.studio.RegenerateLastChapter(ctx, sid, onSnapshot)
	})
}

func (h *SessionHandler) streamChapter(c *gin.Context,
	run func(ctx context.Context, onSnapshot func(studio.ChapterSnapshot)) (*entity.GeneratedChapter, error)) {
	out := newNDJSONStream(c)
	ch, err := run(c.Request.Context(), func(snap studio.ChapterSnapshot) {
		out.send(dto.StreamEvent{Type: dto.StreamEventSnapshot, Chapter: snap})
	})
	switch {
	case err != nil && ch == nil && !out.started:
		respondError(c, err)
	case err != nil && ch != nil:
		out.send(dto.ErrorEvent(err, ch))
	case err != nil:
		out.send(dto.ErrorEvent(err, nil))
	default:
		out.send(dto.StreamEvent{Type: dto.StreamEventDone, Chapter: ch})
	}
}

// EditChapter 按指令微调最后一章
// @Summary 微调最后一章
// @Tags Generation
// @Accept json
// @Produce json
// @Param sid path string true "会话 ID"
// @Param body body dto.EditChapterRequest true "修改指令"
// @Success 200 {object} dto.Response[dto.EditChapterResponse]
// @Router /v1/sessions/{sid}/chapters/edit [post]
func (h *SessionHandler) EditChapter(c *gin.Context) {
	sid, ok := sessionID(c)
	if !ok {
		return
	}
	var req dto.EditChapterRequest
	if !bindJSON(c, &req) {
		return
	}
	res, err := h.studio.EditLastChapter(c.Request.Context(), sid, req.Instruction)
	if err != nil {
		respondError(c, err)
		return
	}
	dto.Success(c, dto.EditChapterResponse{Chapter: res.Chapter, Diff: res.Diff})
}
