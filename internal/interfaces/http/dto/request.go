// Package dto 提供 HTTP 层数据传输对象
package dto

import (
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	apperrors "z-novel-studio/pkg/errors"
)

// PageRequest 分页请求参数
type PageRequest struct {
	Page     int `form:"page" json:"page"`
	PageSize int `form:"page_size" json:"page_size"`
}

// Normalize 规范化分页参数
func (r *PageRequest) Normalize() {
	if r.Page < 1 {
		r.Page = 1
	}
	if r.PageSize < 1 {
		r.PageSize = 20
	}
	if r.PageSize > 50 {
		r.PageSize = 50
	}
}

// BindPage 从 Gin Context 绑定分页参数
func BindPage(c *gin.Context) PageRequest {
	req := PageRequest{
		Page:     parseIntWithDefault(c.Query("page"), 1),
		PageSize: parseIntWithDefault(c.Query("page_size"), 20),
	}
	req.Normalize()
	return req
}

// parseIntWithDefault 解析整数，失败时返回默认值
func parseIntWithDefault(s string, defaultVal int) int {
	if s == "" {
		return defaultVal
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return defaultVal
	}
	return v
}

// BindSessionID 从 URI 绑定会话 ID，必须是 UUID
func BindSessionID(c *gin.Context) (string, error) {
	sid := c.Param("sid")
	if _, err := uuid.Parse(sid); err != nil {
		return "", apperrors.New(apperrors.CodeInvalidParam, "invalid session id")
	}
	return sid, nil
}

// BindChapterID 从 URI 绑定章节 ID
func BindChapterID(c *gin.Context) (int, error) {
	id, err := strconv.Atoi(c.Param("cid"))
	if err != nil || id < 1 {
		return 0, apperrors.New(apperrors.CodeInvalidParam, "invalid chapter id")
	}
	return id, nil
}
