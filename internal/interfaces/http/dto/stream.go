package dto

import (
	apperrors "z-novel-studio/pkg/errors"
)

// 工作台流式事件类型
const (
	StreamEventSnapshot = "snapshot"
	StreamEventDone     = "done"
	StreamEventError    = "error"
)

// StreamEvent 工作台 NDJSON 流中的一行。
// 章节流的 Chapter 为当前快照；互动场景流的 Text 为累积全文。
type StreamEvent struct {
	Type    string `json:"type"`
	Chapter any    `json:"chapter,omitempty"`
	Text    string `json:"text,omitempty"`
	Error   string `json:"error,omitempty"`
	Code    string `json:"code,omitempty"`
	Aborted bool   `json:"aborted,omitempty"`
}

// ErrorEvent 由错误构造结束事件，chapter 可为 nil
func ErrorEvent(err error, chapter any) StreamEvent {
	appErr := apperrors.AsAppError(err)
	return StreamEvent{
		Type:    StreamEventError,
		Chapter: chapter,
		Error:   appErr.Message,
		Code:    string(appErr.Code),
		Aborted: apperrors.IsAborted(err),
	}
}
