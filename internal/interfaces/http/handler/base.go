// Package handler 提供 HTTP 请求处理器
package handler

import (
	"context"
	"errors"

	"github.com/gin-gonic/gin"

	"z-novel-studio/internal/interfaces/http/dto"
	apperrors "z-novel-studio/pkg/errors"
	"z-novel-studio/pkg/logger"
)

// respondError 写出统一错误响应；请求被取消视为中止
func respondError(c *gin.Context, err error) {
	if errors.Is(err, context.Canceled) {
		err = apperrors.ErrGenerationAborted
	}
	appErr := apperrors.AsAppError(err)
	if appErr.HTTPStatus >= 500 && !apperrors.IsAborted(err) {
		logger.Error(c.Request.Context(), "request failed", err, "path", c.FullPath())
	}
	dto.FromError(c, appErr)
}

// bindJSON 绑定请求体，失败时写出 400
func bindJSON(c *gin.Context, v any) bool {
	if err := c.ShouldBindJSON(v); err != nil {
		dto.BadRequest(c, "invalid request body: "+err.Error())
		return false
	}
	return true
}

// sessionID 读取并校验路径中的会话 ID
func sessionID(c *gin.Context) (string, bool) {
	sid, err := dto.BindSessionID(c)
	if err != nil {
		respondError(c, err)
		return "", false
	}
	return sid, true
}
