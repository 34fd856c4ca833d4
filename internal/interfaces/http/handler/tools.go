// Package handler 提供 HTTP 请求处理器
package handler

import (
	"github.com/gin-gonic/gin"

	"z-novel-studio/internal/interfaces/http/dto"
)

// WorldbookSuggestions 世界书扩展建议
// @Summary 世界书建议
// @Tags Tools
// @Produce json
// @Param sid path string true "会话 ID"
// @Success 200 {object} dto.Response[dto.TextResponse]
// @Router /v1/sessions/{sid}/tools/worldbook [post]
func (h *SessionHandler) WorldbookSuggestions(c *gin.Context) {
	sid, ok := sessionID(c)
	if !ok {
		return
	}
	text, err := h.studio.WorldbookSuggestions(c.Request.Context(), sid)
	if err != nil {
		respondError(c, err)
		return
	}
	dto.Success(c, dto.TextResponse{Text: text})
}

// CharacterArcSuggestions 角色弧光建议
// @Summary 角色弧光建议
// @Tags Tools
// @Accept json
// @Produce json
// @Param sid path string true "会话 ID"
// @Param body body dto.CharacterArcRequest true "角色名"
// @Success 200 {object} dto.Response[dto.TextResponse]
// @Router /v1/sessions/{sid}/tools/character-arc [post]
func (h *SessionHandler) CharacterArcSuggestions(c *gin.Context) {
	sid, ok := sessionID(c)
	if !ok {
		return
	}
	var req dto.CharacterArcRequest
	if !bindJSON(c, &req) {
		return
	}
	text, err := h.studio.CharacterArcSuggestions(c.Request.Context(), sid, req.Name)
	if err != nil {
		respondError(c, err)
		return
	}
	dto.Success(c, dto.TextResponse{Text: text})
}

// NarrativeToolbox 叙事技巧建议
// @Summary 叙事技巧建议
// @Tags Tools
// @Accept json
// @Produce json
// @Param sid path string true "会话 ID"
// @Param body body dto.NarrativeToolboxRequest true "章节标题"
// @Success 200 {object} dto.Response[dto.TextResponse]
// @Router /v1/sessions/{sid}/tools/narrative [post]
func (h *SessionHandler) NarrativeToolbox(c *gin.Context) {
	sid, ok := sessionID(c)
	if !ok {
		return
	}
	var req dto.NarrativeToolboxRequest
	if !bindJSON(c, &req) {
		return
	}
	text, err := h.studio.NarrativeToolbox(c.Request.Context(), sid, req.Title)
	if err != nil {
		respondError(c, err)
		return
	}
	dto.Success(c, dto.TextResponse{Text: text})
}

// NewCharacter 生成新角色并加入总纲
// @Summary 生成新角色
// @Tags Tools
// @Accept json
// @Produce json
// @Param sid path string true "会话 ID"
// @Param body body dto.NewCharacterRequest true "角色描述"
// @Success 201 {object} dto.Response[entity.CharacterProfile]
// @Router /v1/sessions/{sid}/tools/character [post]
func (h *SessionHandler) NewCharacter(c *gin.Context) {
	sid, ok := sessionID(c)
	if !ok {
		return
	}
	var req dto.NewCharacterRequest
	if !bindJSON(c, &req) {
		return
	}
	profile, err := h.studio.NewCharacter(c.Request.Context(), sid, req.Prompt)
	if err != nil {
		respondError(c, err)
		return
	}
	dto.Created(c, profile)
}

// CharacterInteraction 流式生成角色互动场景
// @Summary 角色互动
// @Description 以 NDJSON 推送累积文本，最后一行为 done 或 error 事件
// @Tags Tools
// @Accept json
// @Produce application/x-ndjson
// @Param sid path string true "会话 ID"
// @Param body body dto.InteractionRequest true "两个角色名"
// @Success 200 {object} dto.StreamEvent
// @Router /v1/sessions/{sid}/tools/interaction [post]
func (h *SessionHandler) CharacterInteraction(c *gin.Context) {
	sid, ok := sessionID(c)
	if !ok {
		return
	}
	var req dto.InteractionRequest
	if !bindJSON(c, &req) {
		return
	}
	out := newNDJSONStream(c)
	scene, err := h.studio.CharacterInteraction(c.Request.Context(), sid, req.Char1, req.Char2, func(text string) {
		out.send(dto.StreamEvent{Type: dto.StreamEventSnapshot, Text: text})
	})
	switch {
	case err != nil && !out.started:
		respondError(c, err)
	case err != nil:
		out.send(dto.ErrorEvent(err, nil))
	default:
		out.send(dto.StreamEvent{Type: dto.StreamEventDone, Text: scene})
	}
}
