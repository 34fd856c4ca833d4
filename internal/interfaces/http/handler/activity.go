// Package handler 提供 HTTP 请求处理器
package handler

import (
	"context"

	"github.com/gin-gonic/gin"

	"z-novel-studio/internal/domain/entity"
	"z-novel-studio/internal/interfaces/http/dto"
	apperrors "z-novel-studio/pkg/errors"
)

// ActivityReader 会话活动统计读取，由 activity.Projector 实现
type ActivityReader interface {
	Get(ctx context.Context, sessionID string) (*entity.SessionActivity, error)
}

// ActivityHandler 会话活动统计处理器
type ActivityHandler struct {
	studio StudioService
	reader ActivityReader
}

// NewActivityHandler 创建活动统计处理器
func NewActivityHandler(svc StudioService, reader ActivityReader) *ActivityHandler {
	return &ActivityHandler{studio: svc, reader: reader}
}

// Get 获取会话活动统计
// @Summary 会话活动统计
// @Description 由 job-worker 异步累积，可能略滞后于会话本身
// @Tags Sessions
// @Produce json
// @Param sid path string true "会话 ID"
// @Success 200 {object} dto.Response[entity.SessionActivity]
// @Failure 404 {object} dto.ErrorResponse
// @Router /v1/sessions/{sid}/activity [get]
func (h *ActivityHandler) Get(c *gin.Context) {
	sid, ok := sessionID(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()
	if _, err := h.studio.GetSession(ctx, sid); err != nil {
		respondError(c, err)
		return
	}
	a, err := h.reader.Get(ctx, sid)
	if err != nil {
		respondError(c, apperrors.Wrap(err, apperrors.CodeCacheError, "failed to load session activity"))
		return
	}
	dto.Success(c, a)
}
